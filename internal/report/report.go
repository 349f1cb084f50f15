// Package report accepts activity reports from CI pipelines and applies
// them to the build ledger. Quality audits are two-phase: the report call
// records a placeholder and enqueues a deferred completion that the
// scheduler resolves against the analysis server.
package report

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/releasedeck/releasedeck/internal/activity"
	"github.com/releasedeck/releasedeck/internal/build"
	"github.com/releasedeck/releasedeck/internal/workqueue"
)

// Request is one activity report for one component of one application
// version. Exactly one payload field matching Category must be set, except
// for QUALITY_AUDIT which carries only the ProjectKey.
type Request struct {
	Application string            `json:"application"`
	Version     string            `json:"version"`
	Component   string            `json:"component"`
	Category    activity.Category `json:"category"`

	// Run metadata, recorded on the ledger entry when present.
	JobName   string `json:"job_name,omitempty"`
	RunNumber int    `json:"run_number,omitempty"`
	RunURL    string `json:"run_url,omitempty"`
	Branch    string `json:"branch,omitempty"`
	Commit    string `json:"commit,omitempty"`

	// ProjectKey identifies the analysis-server project for QUALITY_AUDIT
	// reports.
	ProjectKey string `json:"project_key,omitempty"`

	Build        *activity.BuildPayload                `json:"build,omitempty"`
	UnitTest     *activity.UnitTestPayload             `json:"unit_test,omitempty"`
	Dependencies *activity.DependenciesAnalysisPayload `json:"dependencies,omitempty"`
	Performance  *activity.PerformanceTestPayload      `json:"performance,omitempty"`
	Artifact     *activity.ArtifactReleasePayload      `json:"artifact,omitempty"`
	Image        *activity.ImageReleasePayload         `json:"image,omitempty"`
}

// Validate normalizes and checks the request's identifying fields.
// Whitespace padding is stripped so a padded name never slips past the
// emptiness checks and keys a ledger entry by the empty string.
func (r *Request) Validate() error {
	r.Application = strings.TrimSpace(r.Application)
	r.Version = strings.TrimSpace(r.Version)
	r.Component = strings.TrimSpace(r.Component)

	if r.Application == "" {
		return fmt.Errorf("report: application is required")
	}
	if r.Version == "" {
		return fmt.Errorf("report: version is required")
	}
	if r.Component == "" {
		return fmt.Errorf("report: component is required")
	}
	if !r.Category.Valid() {
		return fmt.Errorf("report: unknown category %q", r.Category)
	}
	return nil
}

// payload selects the concrete payload for the request's category.
func (r *Request) payload() (activity.Payload, error) {
	switch r.Category {
	case activity.Build:
		if r.Build == nil {
			return nil, fmt.Errorf("report: BUILD report carries no build payload")
		}
		return r.Build, nil
	case activity.UnitTest:
		if r.UnitTest == nil {
			return nil, fmt.Errorf("report: UNIT_TEST report carries no unit_test payload")
		}
		return r.UnitTest, nil
	case activity.QualityAudit:
		if r.ProjectKey == "" {
			return nil, fmt.Errorf("report: QUALITY_AUDIT report carries no project_key")
		}
		// Placeholder until the deferred completion fills the metrics in.
		return &activity.QualityAuditPayload{Complete: false}, nil
	case activity.DependenciesAnalysis:
		if r.Dependencies == nil {
			return nil, fmt.Errorf("report: DEPENDENCIES_ANALYSIS report carries no dependencies payload")
		}
		return r.Dependencies, nil
	case activity.PerformanceTest:
		if r.Performance == nil {
			return nil, fmt.Errorf("report: PERFORMANCE_TEST report carries no performance payload")
		}
		return r.Performance, nil
	case activity.ArtifactRelease:
		if r.Artifact == nil {
			return nil, fmt.Errorf("report: ARTIFACT_RELEASE report carries no artifact payload")
		}
		return r.Artifact, nil
	case activity.ImageRelease:
		if r.Image == nil {
			return nil, fmt.Errorf("report: IMAGE_RELEASE report carries no image payload")
		}
		return r.Image, nil
	}
	return nil, fmt.Errorf("report: unknown category %q", r.Category)
}

// Service applies reports to the ledger and feeds the deferred work queue.
type Service struct {
	store *build.Store
	queue *workqueue.Queue
	now   func() time.Time
}

// NewService wires the ledger store and the deferred work queue.
func NewService(store *build.Store, queue *workqueue.Queue) *Service {
	return &Service{store: store, queue: queue, now: time.Now}
}

// Apply validates the request and records its activity on the ledger entry
// for (application, version), creating the entry if needed. Run metadata is
// written only for fields the request carries, so later reports do not blank
// out earlier ones.
func (s *Service) Apply(req *Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	payload, err := req.payload()
	if err != nil {
		return err
	}
	act, err := activity.New(req.Component, payload, s.now())
	if err != nil {
		return err
	}

	err = s.store.Update(req.Application, req.Version, func(r *build.Record) error {
		if req.JobName != "" {
			r.BuildJob = req.JobName
		}
		if req.RunNumber > 0 {
			r.BuildNumber = fmt.Sprintf("%d", req.RunNumber)
		}
		if req.RunURL != "" {
			r.BuildURL = req.RunURL
		}
		if req.Branch != "" {
			r.BuildBranch = req.Branch
		}
		if req.Commit != "" {
			r.BuildCommit = req.Commit
		}
		r.SetActivity(act)
		return nil
	})
	if err != nil {
		return err
	}

	if req.Category == activity.QualityAudit {
		id := s.queue.Push(workqueue.Item{
			JobName:     req.JobName,
			RunNumber:   req.RunNumber,
			ProjectKey:  req.ProjectKey,
			Application: req.Application,
			Version:     req.Version,
			Component:   req.Component,
		})
		slog.Info("report: quality audit deferred",
			"application", req.Application, "version", req.Version,
			"component", req.Component, "project", req.ProjectKey, "item", id)
	}
	return nil
}
