package activity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/releasedeck/releasedeck/internal/score"
)

// Category identifies the kind of pipeline activity a record describes.
// The set is closed; payload construction switches on it.
type Category string

const (
	Build                Category = "BUILD"
	UnitTest             Category = "UNIT_TEST"
	QualityAudit         Category = "QUALITY_AUDIT"
	DependenciesAnalysis Category = "DEPENDENCIES_ANALYSIS"
	PerformanceTest      Category = "PERFORMANCE_TEST"
	ArtifactRelease      Category = "ARTIFACT_RELEASE"
	ImageRelease         Category = "IMAGE_RELEASE"
)

// Categories returns all defined categories in declaration order.
func Categories() []Category {
	return []Category{
		Build, UnitTest, QualityAudit, DependenciesAnalysis,
		PerformanceTest, ArtifactRelease, ImageRelease,
	}
}

// Valid reports whether c is one of the defined categories.
func (c Category) Valid() bool {
	switch c {
	case Build, UnitTest, QualityAudit, DependenciesAnalysis,
		PerformanceTest, ArtifactRelease, ImageRelease:
		return true
	}
	return false
}

// Payload is the category-specific part of an activity. Each variant owns
// its fields and its own grade computation.
type Payload interface {
	// Category returns the category this payload belongs to.
	Category() Category

	// Grade computes the activity's overall grade from the payload's
	// current state. Categories without a grading rule return score.None.
	Grade() score.Grade
}

// Activity is one category-specific result for one component of one
// application version. Grade is recomputed from the payload whenever the
// activity is (re)stored; it stays score.None for ungraded categories and
// for deferred activities that have not completed yet.
type Activity struct {
	Category  Category    `json:"category"`
	Component string      `json:"component"`
	Timestamp int64       `json:"timestamp"` // seconds since epoch
	Grade     score.Grade `json:"grade,omitempty"`
	Payload   Payload     `json:"payload"`
}

// New creates an activity for the given component with its payload and a
// grade computed from it. The component name must be non-empty.
func New(component string, payload Payload, now time.Time) (Activity, error) {
	if component == "" {
		return Activity{}, fmt.Errorf("activity: component name is required")
	}
	return Activity{
		Category:  payload.Category(),
		Component: component,
		Timestamp: now.Unix(),
		Grade:     payload.Grade(),
		Payload:   payload,
	}, nil
}

// Regrade recomputes the grade from the current payload state.
func (a *Activity) Regrade() {
	a.Grade = a.Payload.Grade()
}

// UnmarshalJSON decodes the payload into the concrete variant selected by
// the category field.
func (a *Activity) UnmarshalJSON(data []byte) error {
	var raw struct {
		Category  Category        `json:"category"`
		Component string          `json:"component"`
		Timestamp int64           `json:"timestamp"`
		Grade     score.Grade     `json:"grade,omitempty"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var payload Payload
	switch raw.Category {
	case Build:
		payload = &BuildPayload{}
	case UnitTest:
		payload = &UnitTestPayload{}
	case QualityAudit:
		payload = &QualityAuditPayload{}
	case DependenciesAnalysis:
		payload = &DependenciesAnalysisPayload{}
	case PerformanceTest:
		payload = &PerformanceTestPayload{}
	case ArtifactRelease:
		payload = &ArtifactReleasePayload{}
	case ImageRelease:
		payload = &ImageReleasePayload{}
	default:
		return fmt.Errorf("activity: unknown category %q", raw.Category)
	}
	if len(raw.Payload) > 0 {
		if err := json.Unmarshal(raw.Payload, payload); err != nil {
			return fmt.Errorf("activity: decode %s payload: %w", raw.Category, err)
		}
	}

	a.Category = raw.Category
	a.Component = raw.Component
	a.Timestamp = raw.Timestamp
	a.Grade = raw.Grade
	a.Payload = payload
	return nil
}
