// Package sonar reads quality metrics from a SonarQube-compatible analysis
// server. The scheduler uses it to complete deferred quality audits once the
// server has finished analysing a build.
package sonar

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/releasedeck/releasedeck/internal/activity"
	"github.com/releasedeck/releasedeck/internal/config"
	"github.com/releasedeck/releasedeck/internal/score"
)

// todoRule marks code comments, not defects. Issues carrying it are not
// counted against the audit.
const todoRule = "java:S1135"

const pageSize = 500

// metricKeys are the measures read for one audit.
const metricKeys = "alert_status,reliability_rating,security_rating,security_review_rating,coverage,duplicated_lines_density,ncloc"

// Client calls the analysis server's REST API with a bearer token.
type Client struct {
	baseURL string
	client  *http.Client
}

// bearerRoundTripper injects the Authorization header into every request.
type bearerRoundTripper struct {
	base  http.RoundTripper
	token string
}

func (t *bearerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.token != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	return t.base.RoundTrip(req)
}

// New builds a Client from the analysis configuration. It builds the HTTP
// client once and reuses it across calls.
func New(cfg config.AnalysisConfig) *Client {
	transport := &bearerRoundTripper{
		base: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.AcceptInvalidCertificate, //nolint:gosec // user-configured
			},
		},
		token: cfg.Token(),
	}
	return &Client{
		baseURL: cfg.URL,
		client:  &http.Client{Transport: transport, Timeout: cfg.Timeout},
	}
}

// Audit fetches all measures and findings for projectKey and assembles a
// complete quality-audit payload.
func (c *Client) Audit(ctx context.Context, projectKey string) (*activity.QualityAuditPayload, error) {
	measures, err := c.measures(ctx, projectKey)
	if err != nil {
		return nil, fmt.Errorf("sonar: measures for %q: %w", projectKey, err)
	}

	bugs, err := c.issues(ctx, projectKey, "BUG")
	if err != nil {
		return nil, fmt.Errorf("sonar: bugs for %q: %w", projectKey, err)
	}
	vulns, err := c.issues(ctx, projectKey, "VULNERABILITY")
	if err != nil {
		return nil, fmt.Errorf("sonar: vulnerabilities for %q: %w", projectKey, err)
	}
	hotspots, err := c.hotspots(ctx, projectKey)
	if err != nil {
		return nil, fmt.Errorf("sonar: hotspots for %q: %w", projectKey, err)
	}

	return &activity.QualityAuditPayload{
		BugCount:           len(bugs),
		BugScore:           score.FromRating(measures["reliability_rating"]),
		VulnerabilityCount: len(vulns),
		VulnerabilityScore: score.FromRating(measures["security_rating"]),
		HotspotCount:       len(hotspots),
		HotspotScore:       score.FromRating(measures["security_review_rating"]),
		DuplicationRate:    percentage(measures["duplicated_lines_density"]),
		TestCoverage:       percentage(measures["coverage"]),
		LinesCount:         parseInt64(measures["ncloc"]),
		QualityGatePassed:  measures["alert_status"] == "OK",
		Complete:           true,
		Bugs:               bugs,
		Vulnerabilities:    vulns,
		Hotspots:           hotspots,
	}, nil
}

// measures returns the project's metric values keyed by metric name.
func (c *Client) measures(ctx context.Context, projectKey string) (map[string]string, error) {
	var payload struct {
		Component struct {
			Measures []struct {
				Metric string `json:"metric"`
				Value  string `json:"value"`
			} `json:"measures"`
		} `json:"component"`
	}
	q := url.Values{"component": {projectKey}, "metricKeys": {metricKeys}}
	if err := c.get(ctx, "/api/measures/component", q, &payload); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(payload.Component.Measures))
	for _, m := range payload.Component.Measures {
		out[m.Metric] = m.Value
	}
	return out, nil
}

// issues returns the project's unresolved issues of the given type, skipping
// to-do markers.
func (c *Client) issues(ctx context.Context, projectKey, issueType string) ([]activity.Issue, error) {
	var payload struct {
		Issues []struct {
			Rule         string `json:"rule"`
			Severity     string `json:"severity"`
			Component    string `json:"component"`
			Line         int    `json:"line"`
			Message      string `json:"message"`
			CreationDate string `json:"creationDate"`
		} `json:"issues"`
	}
	q := url.Values{
		"componentKeys": {projectKey},
		"types":         {issueType},
		"resolved":      {"false"},
		"ps":            {strconv.Itoa(pageSize)},
	}
	if err := c.get(ctx, "/api/issues/search", q, &payload); err != nil {
		return nil, err
	}

	out := make([]activity.Issue, 0, len(payload.Issues))
	for _, i := range payload.Issues {
		if i.Rule == todoRule {
			continue
		}
		out = append(out, activity.Issue{
			Severity: i.Severity,
			File:     i.Component,
			Line:     i.Line,
			Rule:     i.Rule,
			Message:  i.Message,
			Creation: i.CreationDate,
		})
	}
	return out, nil
}

// hotspots returns the project's security hotspots awaiting review.
func (c *Client) hotspots(ctx context.Context, projectKey string) ([]activity.Hotspot, error) {
	var payload struct {
		Hotspots []struct {
			SecurityCategory         string `json:"securityCategory"`
			VulnerabilityProbability string `json:"vulnerabilityProbability"`
			Component                string `json:"component"`
			Line                     int    `json:"line"`
			Message                  string `json:"message"`
			CreationDate             string `json:"creationDate"`
		} `json:"hotspots"`
	}
	q := url.Values{"projectKey": {projectKey}, "ps": {strconv.Itoa(pageSize)}}
	if err := c.get(ctx, "/api/hotspots/search", q, &payload); err != nil {
		return nil, err
	}

	out := make([]activity.Hotspot, 0, len(payload.Hotspots))
	for _, h := range payload.Hotspots {
		out = append(out, activity.Hotspot{
			SecurityCategory: h.SecurityCategory,
			File:             h.Component,
			Line:             h.Line,
			Message:          h.Message,
			Probability:      h.VulnerabilityProbability,
			Creation:         h.CreationDate,
		})
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// percentage parses a "85.3" style metric value into a 0..1 ratio.
func percentage(v string) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f / 100
}

func parseInt64(v string) int64 {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
