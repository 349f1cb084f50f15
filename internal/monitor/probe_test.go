package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/releasedeck/releasedeck/internal/config"
)

func TestProbe_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	out := NewProber().Probe(context.Background(), config.Service{ID: "svc", URL: srv.URL}, false)
	if out.Status != StatusSuccess {
		t.Fatalf("status: got %s (%s), want SUCCESS", out.Status, out.Reason)
	}
	if out.HTTPStatus != http.StatusOK {
		t.Errorf("http status: got %d, want 200", out.HTTPStatus)
	}
}

func TestProbe_NonOKStatusIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	out := NewProber().Probe(context.Background(), config.Service{ID: "svc", URL: srv.URL}, false)
	if out.Status != StatusFailure {
		t.Fatalf("status: got %s, want FAILURE", out.Status)
	}
	if out.HTTPStatus != http.StatusServiceUnavailable {
		t.Errorf("http status: got %d, want 503", out.HTTPStatus)
	}
	if out.Reason == "" {
		t.Error("reason empty")
	}
}

func TestProbe_UnreachableIsFailure(t *testing.T) {
	// Reserve a port, then close it so the connection is refused.
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	out := NewProber().Probe(context.Background(), config.Service{ID: "svc", URL: url}, false)
	if out.Status != StatusFailure {
		t.Fatalf("status: got %s, want FAILURE", out.Status)
	}
}

func TestProbe_MalformedURL(t *testing.T) {
	tests := []string{"not a url", "ftp://host/file", "https://"}
	p := NewProber()
	for _, raw := range tests {
		out := p.Probe(context.Background(), config.Service{ID: "svc", URL: raw}, false)
		if out.Status != StatusInvalidConfiguration {
			t.Errorf("%q: got %s, want INVALID_CONFIGURATION", raw, out.Status)
		}
		if out.Reason == "" {
			t.Errorf("%q: reason empty", raw)
		}
	}
}

func TestProbe_SelfSignedCertificate(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewProber()

	out := p.Probe(context.Background(), config.Service{ID: "svc", URL: srv.URL}, false)
	if out.Status != StatusInvalidHTTPS {
		t.Errorf("strict probe: got %s, want INVALID_HTTPS", out.Status)
	}

	out = p.Probe(context.Background(), config.Service{
		ID: "svc", URL: srv.URL, AcceptInvalidCertificate: true,
	}, false)
	if out.Status != StatusSuccess {
		t.Errorf("insecure probe: got %s (%s), want SUCCESS", out.Status, out.Reason)
	}
}

func TestProbe_CertificateCheck(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	out := NewProber().Probe(context.Background(), config.Service{
		ID: "svc", URL: srv.URL, AcceptInvalidCertificate: true,
	}, true)

	if !out.CertificateChecked {
		t.Fatal("CertificateChecked: got false")
	}
	if out.CertificateExpiration <= time.Now().UnixMilli() {
		t.Errorf("expiration %d not in the future", out.CertificateExpiration)
	}
}

func TestProbe_NoCertificateCheckForPlainHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	out := NewProber().Probe(context.Background(), config.Service{ID: "svc", URL: srv.URL}, true)
	if out.CertificateChecked {
		t.Error("CertificateChecked set for plain http endpoint")
	}
}
