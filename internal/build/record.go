package build

import (
	"encoding/json"
	"sync"

	"github.com/releasedeck/releasedeck/internal/activity"
)

// Record is the per-(application, version) aggregate of reported activities.
// All mutation goes through Store.Update; the embedded lock serializes
// activity changes within one record.
type Record struct {
	ApplicationName    string `json:"application_name"`
	ApplicationVersion string `json:"application_version"`

	BuildJob       string `json:"build_job,omitempty"`
	BuildNumber    string `json:"build_number,omitempty"`
	BuildURL       string `json:"build_url,omitempty"`
	BuildBranch    string `json:"build_branch,omitempty"`
	BuildCommit    string `json:"build_commit,omitempty"`
	BuildTimestamp int64  `json:"build_timestamp"` // seconds, refreshed on every mutation

	// Activities holds at most one activity per (category, component)
	// pair, in insertion order within each category.
	Activities map[activity.Category][]activity.Activity `json:"activities"`

	mu sync.Mutex
}

func newRecord(name, version string) *Record {
	return &Record{
		ApplicationName:    name,
		ApplicationVersion: version,
		Activities:         make(map[activity.Category][]activity.Activity),
	}
}

// SetActivity replaces any existing activity for the same (category,
// component) pair with act. Last write wins; there are no merge semantics.
// Must be called inside a Store.Update mutation, which holds the record
// lock.
func (r *Record) SetActivity(act activity.Activity) {
	r.removeLocked(act.Category, act.Component)
	r.Activities[act.Category] = append(r.Activities[act.Category], act)
}

// Activity returns the activity for the given (category, component) pair.
func (r *Record) Activity(cat activity.Category, component string) (activity.Activity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.Activities[cat] {
		if a.Component == component {
			return a, true
		}
	}
	return activity.Activity{}, false
}

// ActivitiesByCategory returns the category's activities in insertion order.
func (r *Record) ActivitiesByCategory(cat activity.Category) []activity.Activity {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]activity.Activity, len(r.Activities[cat]))
	copy(out, r.Activities[cat])
	return out
}

// RemoveActivity deletes the activity for the given pair and reports whether
// one existed. Must be called inside a Store.Update mutation, which holds
// the record lock.
func (r *Record) RemoveActivity(cat activity.Category, component string) bool {
	return r.removeLocked(cat, component)
}

func (r *Record) removeLocked(cat activity.Category, component string) bool {
	list := r.Activities[cat]
	for i, a := range list {
		if a.Component == component {
			r.Activities[cat] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// ActivityCount returns the total number of activities across categories.
func (r *Record) ActivityCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, list := range r.Activities {
		n += len(list)
	}
	return n
}

// Summary is a point-in-time copy of a record's identifying and run
// metadata fields.
type Summary struct {
	ApplicationName    string
	ApplicationVersion string
	BuildJob           string
	BuildNumber        string
	BuildURL           string
	BuildBranch        string
	BuildCommit        string
	BuildTimestamp     int64
	ActivityCount      int
}

// Summary returns a snapshot of the record's metadata taken under the
// record lock, so read paths never observe a half-applied mutation.
func (r *Record) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, list := range r.Activities {
		n += len(list)
	}
	return Summary{
		ApplicationName:    r.ApplicationName,
		ApplicationVersion: r.ApplicationVersion,
		BuildJob:           r.BuildJob,
		BuildNumber:        r.BuildNumber,
		BuildURL:           r.BuildURL,
		BuildBranch:        r.BuildBranch,
		BuildCommit:        r.BuildCommit,
		BuildTimestamp:     r.BuildTimestamp,
		ActivityCount:      n,
	}
}

// MarshalJSON serializes the record under its lock so persistence never
// observes a half-applied mutation.
func (r *Record) MarshalJSON() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	type alias Record
	return json.Marshal((*alias)(r))
}

// UnmarshalJSON restores a record loaded from persistence.
func (r *Record) UnmarshalJSON(data []byte) error {
	type alias Record
	if err := json.Unmarshal(data, (*alias)(r)); err != nil {
		return err
	}
	if r.Activities == nil {
		r.Activities = make(map[activity.Category][]activity.Activity)
	}
	return nil
}
