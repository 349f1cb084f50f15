package activity

import "github.com/releasedeck/releasedeck/internal/score"

// BuildPayload records the compiled artifact produced by a BUILD step.
type BuildPayload struct {
	ArtifactFileName      string `json:"artifact_file_name"`
	ArtifactFileSize      int64  `json:"artifact_file_size"`
	ArtifactFileSizeDelta int64  `json:"artifact_file_size_delta"`
	ArtifactFileSizeLimit int64  `json:"artifact_file_size_limit"`
}

func (p *BuildPayload) Category() Category { return Build }

// GatePassed reports whether the artifact was found and respects the
// configured size limit. A limit of zero disables the check.
func (p *BuildPayload) GatePassed() bool {
	if p.ArtifactFileSize <= 0 {
		return false
	}
	return p.ArtifactFileSizeLimit <= 0 || p.ArtifactFileSize <= p.ArtifactFileSizeLimit
}

func (p *BuildPayload) Grade() score.Grade {
	return score.Aggregate(p.GatePassed(), score.A)
}

// UnitTestPayload records test suite results for a UNIT_TEST step.
type UnitTestPayload struct {
	Coverage     float64 `json:"coverage"` // 0..1
	TestsPassed  int     `json:"tests_passed"`
	TestsFailed  int     `json:"tests_failed"`
	TestsIgnored int     `json:"tests_ignored"`
}

func (p *UnitTestPayload) Category() Category { return UnitTest }

func (p *UnitTestPayload) GatePassed() bool { return p.TestsFailed == 0 }

func (p *UnitTestPayload) Grade() score.Grade {
	return score.Aggregate(p.GatePassed(), score.A)
}

// Issue is one bug or vulnerability reported by the quality analysis source.
type Issue struct {
	Severity string `json:"severity"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Rule     string `json:"rule"`
	Message  string `json:"message"`
	Creation string `json:"creation,omitempty"`
}

// Hotspot is one security hotspot reported by the quality analysis source.
type Hotspot struct {
	SecurityCategory string `json:"category"`
	File             string `json:"file"`
	Line             int    `json:"line"`
	Message          string `json:"message"`
	Probability      string `json:"probability"`
	Creation         string `json:"creation,omitempty"`
}

// QualityAuditPayload records the metrics fetched from the quality analysis
// source for a QUALITY_AUDIT step. Complete stays false between the report
// call and the deferred fetch that fills the metrics in.
type QualityAuditPayload struct {
	BugCount           int         `json:"bug_count"`
	BugScore           score.Grade `json:"bug_score,omitempty"`
	VulnerabilityCount int         `json:"vulnerability_count"`
	VulnerabilityScore score.Grade `json:"vulnerability_score,omitempty"`
	HotspotCount       int         `json:"hotspot_count"`
	HotspotScore       score.Grade `json:"hotspot_score,omitempty"`
	DuplicationRate    float64     `json:"duplication_rate"` // 0..1
	TestCoverage       float64     `json:"test_coverage"`    // 0..1
	LinesCount         int64       `json:"lines_count"`
	QualityGatePassed  bool        `json:"quality_gate_passed"`
	Complete           bool        `json:"complete"`

	Bugs            []Issue   `json:"bugs,omitempty"`
	Vulnerabilities []Issue   `json:"vulnerabilities,omitempty"`
	Hotspots        []Hotspot `json:"hotspots,omitempty"`
}

func (p *QualityAuditPayload) Category() Category { return QualityAudit }

func (p *QualityAuditPayload) Grade() score.Grade {
	if !p.Complete {
		return score.None
	}
	return score.Aggregate(p.QualityGatePassed, p.BugScore, p.VulnerabilityScore, p.HotspotScore)
}

// HasIssues reports whether the audit carries any detailed findings.
func (p *QualityAuditPayload) HasIssues() bool {
	return len(p.Bugs) > 0 || len(p.Vulnerabilities) > 0 || len(p.Hotspots) > 0
}

// DependencyUpgrade is one outdated dependency found by the analysis.
type DependencyUpgrade struct {
	Component      string `json:"component"`
	Dependency     string `json:"dependency"`
	CurrentVersion string `json:"current_version"`
	UpdateVersion  string `json:"update_version"`
}

// DependencyVulnerability is one vulnerable dependency found by the analysis.
type DependencyVulnerability struct {
	Dependency string   `json:"dependency"`
	Advisories []string `json:"advisories,omitempty"`
}

// DependenciesAnalysisPayload records the outcome of a dependency audit.
// The category defines no grading rule; its activities stay ungraded.
type DependenciesAnalysisPayload struct {
	Manager              string                    `json:"manager"`
	OutdatedDependencies int                       `json:"outdated_dependencies"`
	Vulnerabilities      int                       `json:"vulnerabilities"`
	OutdatedList         []DependencyUpgrade       `json:"outdated_list,omitempty"`
	VulnerabilityList    []DependencyVulnerability `json:"vulnerability_list,omitempty"`
}

func (p *DependenciesAnalysisPayload) Category() Category { return DependenciesAnalysis }

func (p *DependenciesAnalysisPayload) Grade() score.Grade { return score.None }

// HasIssues reports whether the analysis found anything actionable.
func (p *DependenciesAnalysisPayload) HasIssues() bool {
	return len(p.OutdatedList) > 0 || len(p.VulnerabilityList) > 0
}

// PerformanceTestPayload records load test results for a PERFORMANCE_TEST
// step.
type PerformanceTestPayload struct {
	TestCount   int64 `json:"test_count"`
	SampleCount int64 `json:"sample_count"`
	ErrorCount  int64 `json:"error_count"`
}

func (p *PerformanceTestPayload) Category() Category { return PerformanceTest }

// GatePassed reports whether the run produced samples and no errors.
func (p *PerformanceTestPayload) GatePassed() bool {
	return p.SampleCount > 0 && p.ErrorCount == 0
}

// Grade buckets the error ratio: full failure is D, up to 10% errors is B,
// up to 30% is C, more is D. A clean run with samples is A; a run with no
// samples at all stays ungraded.
func (p *PerformanceTestPayload) Grade() score.Grade {
	if p.ErrorCount > 0 {
		if p.ErrorCount >= p.SampleCount {
			return score.D
		}
		ratio := float64(p.ErrorCount) / float64(p.SampleCount) * 100
		switch {
		case ratio <= 10:
			return score.B
		case ratio <= 30:
			return score.C
		default:
			return score.D
		}
	}
	if p.SampleCount > 0 {
		return score.A
	}
	return score.None
}

// ArtifactReleasePayload records the publication of a build artifact to a
// repository. Ungraded.
type ArtifactReleasePayload struct {
	RepositoryName string   `json:"repository_name"`
	ArtifactName   string   `json:"artifact_name"`
	ArtifactURL    string   `json:"artifact_url"`
	Tags           []string `json:"tags,omitempty"`
}

func (p *ArtifactReleasePayload) Category() Category { return ArtifactRelease }

func (p *ArtifactReleasePayload) Grade() score.Grade { return score.None }

// ImageReleasePayload records the publication of a container image to a
// registry. Ungraded.
type ImageReleasePayload struct {
	RegistryName string   `json:"registry_name"`
	ImageName    string   `json:"image_name"`
	Tags         []string `json:"tags,omitempty"`
}

func (p *ImageReleasePayload) Category() Category { return ImageRelease }

func (p *ImageReleasePayload) Grade() score.Grade { return score.None }
