// Package score defines the ordered activity grade (D worst to A best) and
// the weakest-link aggregation rule shared by every activity category.
package score
