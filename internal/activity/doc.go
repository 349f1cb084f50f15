// Package activity defines the build activity records tracked for each
// application version: the closed category set, the per-category payload
// variants, and each variant's own grade computation.
package activity
