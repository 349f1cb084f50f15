package sonar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/releasedeck/releasedeck/internal/config"
	"github.com/releasedeck/releasedeck/internal/score"
)

// fakeAnalysisServer serves canned responses for the three audit endpoints.
func fakeAnalysisServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/measures/component", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("component") != "shop:main" {
			t.Errorf("component: got %q", r.URL.Query().Get("component"))
		}
		writeJSON(t, w, map[string]any{
			"component": map[string]any{
				"measures": []map[string]string{
					{"metric": "alert_status", "value": "OK"},
					{"metric": "reliability_rating", "value": "1.0"},
					{"metric": "security_rating", "value": "2.0"},
					{"metric": "security_review_rating", "value": "1.0"},
					{"metric": "coverage", "value": "82.5"},
					{"metric": "duplicated_lines_density", "value": "3.1"},
					{"metric": "ncloc", "value": "15400"},
				},
			},
		})
	})
	mux.HandleFunc("/api/issues/search", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("types") {
		case "BUG":
			writeJSON(t, w, map[string]any{
				"issues": []map[string]any{
					{"rule": "go:S100", "severity": "MAJOR", "component": "main.go", "line": 12, "message": "broken"},
					{"rule": "java:S1135", "severity": "INFO", "component": "main.go", "line": 1, "message": "todo marker"},
				},
			})
		case "VULNERABILITY":
			writeJSON(t, w, map[string]any{"issues": []map[string]any{}})
		default:
			t.Errorf("unexpected types: %q", r.URL.Query().Get("types"))
		}
	})
	mux.HandleFunc("/api/hotspots/search", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"hotspots": []map[string]any{
				{"securityCategory": "sql-injection", "vulnerabilityProbability": "HIGH",
					"component": "db.go", "line": 40, "message": "review this query"},
			},
		})
	})
	return httptest.NewServer(mux)
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

func testClient(url string) *Client {
	return New(config.AnalysisConfig{URL: url, Timeout: 5 * time.Second})
}

func TestAudit(t *testing.T) {
	srv := fakeAnalysisServer(t)
	defer srv.Close()

	p, err := testClient(srv.URL).Audit(context.Background(), "shop:main")
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}

	if !p.Complete {
		t.Error("Complete: got false")
	}
	if !p.QualityGatePassed {
		t.Error("QualityGatePassed: got false")
	}
	if p.BugScore != score.A || p.VulnerabilityScore != score.B || p.HotspotScore != score.A {
		t.Errorf("sub-scores: bug=%s vuln=%s hotspot=%s", p.BugScore, p.VulnerabilityScore, p.HotspotScore)
	}
	if p.TestCoverage != 0.825 {
		t.Errorf("coverage: got %v, want 0.825", p.TestCoverage)
	}
	if p.DuplicationRate != 0.031 {
		t.Errorf("duplication: got %v, want 0.031", p.DuplicationRate)
	}
	if p.LinesCount != 15400 {
		t.Errorf("lines: got %d, want 15400", p.LinesCount)
	}

	// The to-do rule is filtered out of the bug list.
	if p.BugCount != 1 || len(p.Bugs) != 1 {
		t.Fatalf("bugs: count=%d list=%d", p.BugCount, len(p.Bugs))
	}
	if p.Bugs[0].Rule != "go:S100" {
		t.Errorf("bug rule: got %q", p.Bugs[0].Rule)
	}
	if p.VulnerabilityCount != 0 {
		t.Errorf("vulnerabilities: got %d", p.VulnerabilityCount)
	}
	if p.HotspotCount != 1 || p.Hotspots[0].Probability != "HIGH" {
		t.Errorf("hotspots: %+v", p.Hotspots)
	}

	// Weakest sub-score wins: security rating "2.0" maps to B.
	if g := p.Grade(); g != score.B {
		t.Errorf("Grade: got %s, want B", g)
	}
}

func TestAudit_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).Audit(context.Background(), "shop:main"); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestAudit_BearerToken(t *testing.T) {
	t.Setenv("TEST_SONAR_TOKEN", "sq-token")

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(t, w, map[string]any{})
	}))
	defer srv.Close()

	c := New(config.AnalysisConfig{URL: srv.URL, TokenEnv: "TEST_SONAR_TOKEN", Timeout: 5 * time.Second})
	if _, err := c.Audit(context.Background(), "shop:main"); err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if gotAuth != "Bearer sq-token" {
		t.Errorf("Authorization: got %q", gotAuth)
	}
}
