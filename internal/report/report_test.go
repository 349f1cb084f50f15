package report

import (
	"testing"

	"github.com/releasedeck/releasedeck/internal/activity"
	"github.com/releasedeck/releasedeck/internal/build"
	"github.com/releasedeck/releasedeck/internal/score"
	"github.com/releasedeck/releasedeck/internal/workqueue"
)

func newService() (*Service, *build.Store, *workqueue.Queue) {
	store := build.NewStore(nil)
	queue := workqueue.New()
	return NewService(store, queue), store, queue
}

func TestApply_BuildReport(t *testing.T) {
	svc, store, queue := newService()

	err := svc.Apply(&Request{
		Application: "Shop",
		Version:     "2.1.0",
		Component:   "backend",
		Category:    activity.Build,
		JobName:     "shop-pipeline",
		RunNumber:   42,
		Branch:      "main",
		Build: &activity.BuildPayload{
			ArtifactFileName: "shop.jar",
			ArtifactFileSize: 900,
		},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	rec, ok := store.Find("Shop", "2.1.0")
	if !ok {
		t.Fatal("ledger entry not created")
	}
	if rec.BuildJob != "shop-pipeline" || rec.BuildNumber != "42" || rec.BuildBranch != "main" {
		t.Errorf("run metadata: job=%q number=%q branch=%q", rec.BuildJob, rec.BuildNumber, rec.BuildBranch)
	}
	a, ok := rec.Activity(activity.Build, "backend")
	if !ok {
		t.Fatal("activity not recorded")
	}
	if a.Grade != score.A {
		t.Errorf("grade: got %s, want A", a.Grade)
	}
	if queue.Len() != 0 {
		t.Errorf("queue: got %d items, want 0", queue.Len())
	}
}

func TestApply_LaterReportKeepsRunMetadata(t *testing.T) {
	svc, store, _ := newService()

	_ = svc.Apply(&Request{
		Application: "Shop", Version: "2.1.0", Component: "backend",
		Category: activity.Build, JobName: "shop-pipeline", RunNumber: 42,
		Build: &activity.BuildPayload{ArtifactFileSize: 10},
	})
	err := svc.Apply(&Request{
		Application: "Shop", Version: "2.1.0", Component: "backend",
		Category: activity.UnitTest,
		UnitTest: &activity.UnitTestPayload{TestsPassed: 12},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	rec, _ := store.Find("Shop", "2.1.0")
	if rec.BuildJob != "shop-pipeline" || rec.BuildNumber != "42" {
		t.Errorf("run metadata blanked: job=%q number=%q", rec.BuildJob, rec.BuildNumber)
	}
	if rec.ActivityCount() != 2 {
		t.Errorf("activities: got %d, want 2", rec.ActivityCount())
	}
}

func TestApply_QualityAuditDefers(t *testing.T) {
	svc, store, queue := newService()

	err := svc.Apply(&Request{
		Application: "Shop", Version: "2.1.0", Component: "backend",
		Category:   activity.QualityAudit,
		ProjectKey: "shop:main",
		JobName:    "shop-pipeline", RunNumber: 42,
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	rec, _ := store.Find("Shop", "2.1.0")
	a, ok := rec.Activity(activity.QualityAudit, "backend")
	if !ok {
		t.Fatal("placeholder activity not recorded")
	}
	if a.Grade != score.None {
		t.Errorf("placeholder grade: got %s, want none", a.Grade)
	}
	p, ok := a.Payload.(*activity.QualityAuditPayload)
	if !ok || p.Complete {
		t.Errorf("payload: %+v", a.Payload)
	}

	if queue.Len() != 1 {
		t.Fatalf("queue: got %d items, want 1", queue.Len())
	}
	item := queue.Snapshot()[0]
	if item.ProjectKey != "shop:main" || item.Application != "Shop" ||
		item.Version != "2.1.0" || item.Component != "backend" {
		t.Errorf("queued item: %+v", item)
	}
}

func TestApply_Validation(t *testing.T) {
	svc, store, queue := newService()

	tests := []struct {
		name string
		req  Request
	}{
		{"missing application", Request{Version: "1.0", Component: "c", Category: activity.Build}},
		{"whitespace application", Request{Application: "   ", Version: "1.0", Component: "c", Category: activity.Build}},
		{"whitespace version", Request{Application: "A", Version: " \t", Component: "c", Category: activity.Build}},
		{"whitespace component", Request{Application: "A", Version: "1.0", Component: "  ", Category: activity.Build}},
		{"missing version", Request{Application: "A", Component: "c", Category: activity.Build}},
		{"missing component", Request{Application: "A", Version: "1.0", Category: activity.Build}},
		{"unknown category", Request{Application: "A", Version: "1.0", Component: "c", Category: "DEPLOY"}},
		{"missing payload", Request{Application: "A", Version: "1.0", Component: "c", Category: activity.Build}},
		{"audit without project key", Request{Application: "A", Version: "1.0", Component: "c", Category: activity.QualityAudit}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.Apply(&tt.req); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}

	if store.Count() != 0 {
		t.Errorf("ledger entries after rejected reports: got %d", store.Count())
	}
	if queue.Len() != 0 {
		t.Errorf("queued items after rejected reports: got %d", queue.Len())
	}
}

func TestApply_TrimsIdentifyingFields(t *testing.T) {
	svc, store, _ := newService()

	err := svc.Apply(&Request{
		Application: " Shop ", Version: " 2.1.0 ", Component: " backend ",
		Category: activity.Build,
		Build:    &activity.BuildPayload{ArtifactFileSize: 10},
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	rec, ok := store.Find("Shop", "2.1.0")
	if !ok {
		t.Fatal("ledger entry not keyed by trimmed name and version")
	}
	if _, ok := rec.Activity(activity.Build, "backend"); !ok {
		t.Error("activity not keyed by trimmed component")
	}
}

func TestApply_ReplacesSameComponent(t *testing.T) {
	svc, store, _ := newService()

	_ = svc.Apply(&Request{
		Application: "Shop", Version: "2.1.0", Component: "backend",
		Category: activity.UnitTest,
		UnitTest: &activity.UnitTestPayload{TestsPassed: 10, TestsFailed: 2},
	})
	_ = svc.Apply(&Request{
		Application: "Shop", Version: "2.1.0", Component: "backend",
		Category: activity.UnitTest,
		UnitTest: &activity.UnitTestPayload{TestsPassed: 12},
	})

	rec, _ := store.Find("Shop", "2.1.0")
	list := rec.ActivitiesByCategory(activity.UnitTest)
	if len(list) != 1 {
		t.Fatalf("activities: got %d, want 1", len(list))
	}
	if list[0].Grade != score.A {
		t.Errorf("grade after replace: got %s, want A", list[0].Grade)
	}
}
