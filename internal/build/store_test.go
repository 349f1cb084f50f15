package build

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/releasedeck/releasedeck/internal/activity"
	"github.com/releasedeck/releasedeck/internal/score"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func buildActivity(t *testing.T, component string, size, limit int64) activity.Activity {
	t.Helper()
	a, err := activity.New(component, &activity.BuildPayload{
		ArtifactFileName:      "app.jar",
		ArtifactFileSize:      size,
		ArtifactFileSizeLimit: limit,
	}, time.Unix(1700000000, 0))
	if err != nil {
		t.Fatalf("activity.New: %v", err)
	}
	return a
}

func TestUpdate_CreatesRecord(t *testing.T) {
	st := NewStore(nil)
	err := st.Update("Shop", "2.1.0", func(r *Record) error {
		r.SetActivity(buildActivity(t, "backend", 500, 1024))
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	rec, ok := st.Find("Shop", "2.1.0")
	if !ok {
		t.Fatal("Find: record not created")
	}
	a, ok := rec.Activity(activity.Build, "backend")
	if !ok {
		t.Fatal("Activity: not found")
	}
	if a.Grade != score.A {
		t.Errorf("Grade: got %v, want A", a.Grade)
	}
	if !st.Exists("Shop") {
		t.Error("Exists(Shop): got false, want true")
	}
}

func TestUpdate_SameKeyNoDuplicate(t *testing.T) {
	st := NewStore(nil)
	for i := 0; i < 3; i++ {
		if err := st.Update("Shop", "2.1.0", func(*Record) error { return nil }); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	if n := st.Count(); n != 1 {
		t.Errorf("Count: got %d, want 1", n)
	}
}

func TestUpdate_TrimsKey(t *testing.T) {
	st := NewStore(nil)
	if err := st.Update("  Shop ", " 2.1.0 ", func(*Record) error { return nil }); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, ok := st.Find("Shop", "2.1.0"); !ok {
		t.Error("Find with trimmed key: record not found")
	}
}

func TestUpdate_RefreshesTimestamp(t *testing.T) {
	st := NewStore(nil)
	st.now = fixedClock(time.Unix(1700000100, 0))
	if err := st.Update("Shop", "2.1.0", func(*Record) error { return nil }); err != nil {
		t.Fatalf("Update: %v", err)
	}
	rec, _ := st.Find("Shop", "2.1.0")
	if rec.BuildTimestamp != 1700000100 {
		t.Errorf("BuildTimestamp: got %d, want 1700000100", rec.BuildTimestamp)
	}
}

func TestUpdate_MutationErrorPropagates(t *testing.T) {
	saved := 0
	st := NewStore(func([]*Record) error { saved++; return nil })

	wantErr := errors.New("bad payload")
	err := st.Update("Shop", "2.1.0", func(*Record) error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("Update: got %v, want %v", err, wantErr)
	}
	if saved != 0 {
		t.Errorf("save calls after failed mutation: got %d, want 0", saved)
	}

	// The lock must have been released: a follow-up update succeeds.
	if err := st.Update("Shop", "2.1.0", func(*Record) error { return nil }); err != nil {
		t.Fatalf("follow-up Update: %v", err)
	}
	if saved != 1 {
		t.Errorf("save calls after successful mutation: got %d, want 1", saved)
	}
}

func TestUpdate_MutationPanicReleasesLock(t *testing.T) {
	st := NewStore(nil)

	func() {
		defer func() { _ = recover() }()
		_ = st.Update("Shop", "2.1.0", func(*Record) error { panic("boom") })
	}()

	done := make(chan struct{})
	go func() {
		_ = st.Update("Shop", "2.1.0", func(*Record) error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("record lock still held after panicking mutation")
	}
}

func TestLedgerReplaceSemantics(t *testing.T) {
	st := NewStore(nil)
	err := st.Update("Shop", "2.1.0", func(r *Record) error {
		r.SetActivity(buildActivity(t, "backend", 500, 1024))
		r.SetActivity(buildActivity(t, "backend", 2048, 1024))
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	rec, _ := st.Find("Shop", "2.1.0")
	list := rec.ActivitiesByCategory(activity.Build)
	if len(list) != 1 {
		t.Fatalf("activities for BUILD/backend: got %d, want 1", len(list))
	}
	if list[0].Grade != score.D {
		t.Errorf("Grade after replace: got %v, want D (size exceeded)", list[0].Grade)
	}
}

func TestLedger_InsertionOrderPerCategory(t *testing.T) {
	st := NewStore(nil)
	components := []string{"backend", "frontend", "worker"}
	err := st.Update("Shop", "2.1.0", func(r *Record) error {
		for _, c := range components {
			r.SetActivity(buildActivity(t, c, 100, 0))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	rec, _ := st.Find("Shop", "2.1.0")
	list := rec.ActivitiesByCategory(activity.Build)
	for i, c := range components {
		if list[i].Component != c {
			t.Errorf("list[%d]: got %q, want %q", i, list[i].Component, c)
		}
	}
}

func TestRemoveActivity(t *testing.T) {
	st := NewStore(nil)
	_ = st.Update("Shop", "2.1.0", func(r *Record) error {
		r.SetActivity(buildActivity(t, "backend", 100, 0))
		return nil
	})
	var removed, removedAgain bool
	_ = st.Update("Shop", "2.1.0", func(r *Record) error {
		removed = r.RemoveActivity(activity.Build, "backend")
		removedAgain = r.RemoveActivity(activity.Build, "backend")
		return nil
	})

	if !removed {
		t.Error("RemoveActivity: got false, want true")
	}
	if removedAgain {
		t.Error("second RemoveActivity: got true, want false")
	}
}

func TestUpdateByRun(t *testing.T) {
	saved := 0
	st := NewStore(func([]*Record) error { saved++; return nil })

	_ = st.Update("Shop", "2.1.0", func(r *Record) error {
		r.BuildJob = "shop-pipeline"
		r.BuildNumber = "42"
		return nil
	})
	_ = st.Update("Shop", "2.2.0", func(r *Record) error {
		r.BuildJob = "shop-pipeline"
		r.BuildNumber = "43"
		return nil
	})
	saved = 0

	err := st.UpdateByRun("shop-pipeline", 42, func(r *Record) error {
		r.BuildBranch = "main"
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateByRun: %v", err)
	}
	if saved != 1 {
		t.Errorf("save calls: got %d, want 1", saved)
	}

	rec, _ := st.Find("Shop", "2.1.0")
	if rec.BuildBranch != "main" {
		t.Errorf("matched record branch: got %q, want main", rec.BuildBranch)
	}
	other, _ := st.Find("Shop", "2.2.0")
	if other.BuildBranch != "" {
		t.Errorf("unmatched record branch: got %q, want empty", other.BuildBranch)
	}
}

func TestUpdateByRun_NoMatchNoSave(t *testing.T) {
	saved := 0
	st := NewStore(func([]*Record) error { saved++; return nil })

	if err := st.UpdateByRun("ghost-job", 1, func(*Record) error { return nil }); err != nil {
		t.Fatalf("UpdateByRun: %v", err)
	}
	if saved != 0 {
		t.Errorf("save calls without matches: got %d, want 0", saved)
	}
}

func TestList_SortedByApplicationName(t *testing.T) {
	st := NewStore(nil)
	for _, name := range []string{"Zoo", "Api", "Shop"} {
		_ = st.Update(name, "1.0", func(*Record) error { return nil })
	}
	list := st.List()
	want := []string{"Api", "Shop", "Zoo"}
	for i, name := range want {
		if list[i].ApplicationName != name {
			t.Errorf("List[%d]: got %q, want %q", i, list[i].ApplicationName, name)
		}
	}
}

func TestDelete(t *testing.T) {
	saved := 0
	st := NewStore(func([]*Record) error { saved++; return nil })
	_ = st.Update("Shop", "2.1.0", func(*Record) error { return nil })
	saved = 0

	if !st.Delete("Shop", "2.1.0") {
		t.Error("Delete: got false, want true")
	}
	if saved != 1 {
		t.Errorf("save calls after delete: got %d, want 1", saved)
	}
	if st.Delete("Shop", "2.1.0") {
		t.Error("second Delete: got true, want false")
	}
	if saved != 1 {
		t.Errorf("save calls after no-op delete: got %d, want 1", saved)
	}
}

func TestExists_TrimsName(t *testing.T) {
	st := NewStore(nil)
	_ = st.Update(" Shop ", "2.1.0", func(*Record) error { return nil })

	if !st.Exists("Shop") {
		t.Error("Exists(Shop): got false, want true")
	}
	if !st.Exists(" Shop ") {
		t.Error("Exists with padded name: got false, want true")
	}
	if st.Exists("Zoo") {
		t.Error("Exists(Zoo): got true, want false")
	}
}

func TestSummary_ConsistentUnderConcurrentUpdates(t *testing.T) {
	st := NewStore(nil)
	_ = st.Update("Shop", "2.1.0", func(*Record) error { return nil })
	rec, _ := st.Find("Shop", "2.1.0")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			n := fmt.Sprintf("%d", i)
			_ = st.Update("Shop", "2.1.0", func(r *Record) error {
				r.BuildJob = "job-" + n
				r.BuildNumber = n
				return nil
			})
		}
	}()

	// The snapshot must never mix fields from two different mutations.
	for i := 0; i < 500; i++ {
		s := rec.Summary()
		if s.BuildJob != "" && s.BuildJob != "job-"+s.BuildNumber {
			t.Fatalf("torn snapshot: job %q with number %q", s.BuildJob, s.BuildNumber)
		}
	}
	<-done
}

func TestConcurrentUpdates_DistinctKeys(t *testing.T) {
	st := NewStore(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			a, _ := activity.New("backend", &activity.BuildPayload{ArtifactFileSize: 100}, time.Now())
			_ = st.Update("App", fmt.Sprintf("1.0.%d", n), func(r *Record) error {
				r.SetActivity(a)
				return nil
			})
		}(i)
	}
	wg.Wait()

	if n := st.Count(); n != 50 {
		t.Errorf("Count: got %d, want 50", n)
	}
}

func TestConcurrentUpdates_SameKey(t *testing.T) {
	st := NewStore(nil)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			a, _ := activity.New(fmt.Sprintf("comp-%d", n%10), &activity.BuildPayload{ArtifactFileSize: 100}, time.Now())
			_ = st.Update("Shop", "2.1.0", func(r *Record) error {
				r.SetActivity(a)
				return nil
			})
		}(i)
	}
	wg.Wait()

	if n := st.Count(); n != 1 {
		t.Fatalf("Count: got %d, want 1", n)
	}
	rec, _ := st.Find("Shop", "2.1.0")
	// One activity per distinct component, regardless of interleaving.
	if n := rec.ActivityCount(); n != 10 {
		t.Errorf("ActivityCount: got %d, want 10", n)
	}
}
