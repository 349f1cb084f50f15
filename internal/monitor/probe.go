package monitor

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/releasedeck/releasedeck/internal/config"
)

const probeTimeout = 10 * time.Second

// Prober performs one availability check per call against a configured
// service endpoint. It never runs inside a store lock; the Scheduler
// computes the outcome first and applies it afterwards.
type Prober struct {
	client   *http.Client // verifying TLS
	insecure *http.Client // certificate verification disabled
}

// NewProber builds the two HTTP clients once and reuses them across probes.
func NewProber() *Prober {
	return &Prober{
		client: &http.Client{Timeout: probeTimeout},
		insecure: &http.Client{
			Timeout: probeTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // user-configured
			},
		},
	}
}

// Probe checks the service's endpoint and returns the availability outcome.
// A malformed URL is a configuration defect (INVALID_CONFIGURATION), a TLS
// failure INVALID_HTTPS, any other error or non-200 status FAILURE.
// checkCert additionally inspects the TLS chain for HTTPS endpoints.
func (p *Prober) Probe(ctx context.Context, svc config.Service, checkCert bool) Outcome {
	u, err := url.Parse(svc.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Outcome{
			Status: StatusInvalidConfiguration,
			Reason: fmt.Sprintf("invalid service URL %q", svc.URL),
		}
	}

	out := p.checkAvailability(ctx, svc)

	if checkCert && u.Scheme == "https" {
		out.CertificateChecked = true
		if exp, err := p.certificateExpiration(ctx, u.Host); err == nil {
			out.CertificateExpiration = exp
		}
	}
	return out
}

func (p *Prober) checkAvailability(ctx context.Context, svc config.Service) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.URL, nil)
	if err != nil {
		return Outcome{
			Status: StatusInvalidConfiguration,
			Reason: fmt.Sprintf("invalid service URL %q", svc.URL),
		}
	}

	client := p.client
	if svc.AcceptInvalidCertificate {
		client = p.insecure
	}

	resp, err := client.Do(req)
	if err != nil {
		if isTLSError(err) {
			return Outcome{
				Status: StatusInvalidHTTPS,
				Reason: fmt.Sprintf("TLS handshake failed: %v", err),
			}
		}
		return Outcome{
			Status: StatusFailure,
			Reason: fmt.Sprintf("endpoint unreachable: %v", err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Outcome{
			Status:     StatusFailure,
			HTTPStatus: resp.StatusCode,
			Reason:     fmt.Sprintf("unexpected HTTP status %d", resp.StatusCode),
		}
	}
	return Outcome{Status: StatusSuccess, HTTPStatus: resp.StatusCode}
}

// certificateExpiration dials the TLS endpoint without verification and
// returns the earliest NotAfter of the presented chain, in milliseconds.
func (p *Prober) certificateExpiration(ctx context.Context, host string) (int64, error) {
	if _, _, err := net.SplitHostPort(host); err != nil {
		// No explicit port in the URL — append the HTTPS default.
		host = net.JoinHostPort(host, "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			// Expiration is read off whatever chain the server presents;
			// verification already happened during the availability check.
			InsecureSkipVerify: true, //nolint:gosec
		},
	}
	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		return 0, fmt.Errorf("monitor: tls dial %s: %w", host, err)
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peerCerts := conn.ConnectionState().PeerCertificates
	if len(peerCerts) == 0 {
		return 0, fmt.Errorf("monitor: no peer certificates from %s", host)
	}

	earliest := peerCerts[0].NotAfter
	for _, cert := range peerCerts[1:] {
		if cert.NotAfter.Before(earliest) {
			earliest = cert.NotAfter
		}
	}
	return earliest.UnixMilli(), nil
}

// isTLSError classifies handshake and verification failures so they map to
// INVALID_HTTPS rather than a transient FAILURE.
func isTLSError(err error) bool {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}
	var unknownAuthority x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthority) {
		return true
	}
	var hostnameErr x509.HostnameError
	if errors.As(err, &hostnameErr) {
		return true
	}
	var invalidErr x509.CertificateInvalidError
	return errors.As(err, &invalidErr)
}
