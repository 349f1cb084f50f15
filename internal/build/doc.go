// Package build tracks the release health of application versions. A Record
// aggregates the activities reported for one (application, version) pair;
// the Store keys records, creates them on demand and persists the whole
// collection after every mutation.
//
// Locking is two-level: the store's index lock covers find-or-create, list
// and delete, while each record carries its own lock serializing activity
// changes. Unrelated versions mutate fully concurrently.
package build
