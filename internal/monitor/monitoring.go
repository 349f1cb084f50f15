package monitor

import (
	"time"
)

// Status is the current availability state of one monitored service.
type Status string

const (
	StatusSuccess              Status = "SUCCESS"
	StatusFailure              Status = "FAILURE"
	StatusInvalidHTTPS         Status = "INVALID_HTTPS"
	StatusInvalidConfiguration Status = "INVALID_CONFIGURATION"
	StatusDisabled             Status = "DISABLED"
)

// Icon returns the dashboard icon class for the status.
func (s Status) Icon() string {
	switch s {
	case StatusSuccess:
		return "icon-blue"
	case StatusFailure:
		return "icon-red"
	case StatusInvalidHTTPS, StatusInvalidConfiguration:
		return "icon-yellow"
	}
	return "icon-disabled"
}

// certificateCheckInterval is how long a certificate check stays fresh.
const certificateCheckInterval = 3600 // seconds

// Monitoring is the availability record of one service. Created lazily on
// the first probe outcome; mutated only by applying outcomes through the
// Store.
type Monitoring struct {
	ServiceID string `json:"service_id"`
	Status    Status `json:"status"`

	LastSuccessTimestamp int64  `json:"last_success_timestamp"` // seconds
	LastFailureTimestamp int64  `json:"last_failure_timestamp"` // seconds
	LastFailureReason    string `json:"last_failure_reason,omitempty"`
	FailureCount         int    `json:"failure_count"`

	LastCertificateCheckTimestamp int64 `json:"last_certificate_check_timestamp"` // seconds
	CertificateExpiration         int64 `json:"certificate_expiration"`           // milliseconds
}

func newMonitoring(serviceID string) *Monitoring {
	return &Monitoring{ServiceID: serviceID, Status: StatusDisabled}
}

// Outcome is the result of one probe, produced by the Prober and applied to
// the record. CertificateChecked is set when the probe inspected the TLS
// chain, whether or not an expiration could be read.
type Outcome struct {
	Status     Status
	HTTPStatus int
	Reason     string

	CertificateChecked    bool
	CertificateExpiration int64 // milliseconds, 0 when unknown
}

// Apply transitions the record according to the outcome. SUCCESS refreshes
// the success timestamp and resets the failure counter; FAILURE and
// INVALID_HTTPS record the failure and increment it. INVALID_CONFIGURATION
// is a configuration defect, not a transient outage: it changes the status
// and reason only.
func (m *Monitoring) Apply(o Outcome, now time.Time) {
	switch o.Status {
	case StatusSuccess:
		m.Status = StatusSuccess
		m.LastSuccessTimestamp = now.Unix()
		m.LastFailureReason = ""
		m.FailureCount = 0
	case StatusFailure, StatusInvalidHTTPS:
		m.Status = o.Status
		m.LastFailureTimestamp = now.Unix()
		m.LastFailureReason = o.Reason
		m.FailureCount++
	case StatusInvalidConfiguration:
		m.Status = StatusInvalidConfiguration
		m.LastFailureReason = o.Reason
	case StatusDisabled:
		m.Status = StatusDisabled
	}

	if o.CertificateChecked {
		m.LastCertificateCheckTimestamp = now.Unix()
		if o.CertificateExpiration > 0 {
			m.CertificateExpiration = o.CertificateExpiration
		}
	}
}

// LastTimestamp returns the most recent availability update, in seconds.
func (m *Monitoring) LastTimestamp() int64 {
	if m.LastSuccessTimestamp > m.LastFailureTimestamp {
		return m.LastSuccessTimestamp
	}
	return m.LastFailureTimestamp
}

// AvailabilityUpdateRequired reports whether the availability state is older
// than the configured probe delay.
func (m *Monitoring) AvailabilityUpdateRequired(now time.Time, delayMinutes int) bool {
	return now.Unix()-m.LastTimestamp() >= int64(delayMinutes)*60
}

// CertificateUpdateRequired reports whether the last certificate check is
// more than an hour old.
func (m *Monitoring) CertificateUpdateRequired(now time.Time) bool {
	return now.Unix()-m.LastCertificateCheckTimestamp >= certificateCheckInterval
}

// CertificateExpired reports whether the stored certificate expiration has
// passed. The stored value is in milliseconds while now is taken in
// seconds, hence the factor. Returns false when no certificate was ever
// read.
func (m *Monitoring) CertificateExpired(now time.Time) bool {
	if m.CertificateExpiration == 0 {
		return false
	}
	return now.Unix()*1000 >= m.CertificateExpiration
}

// IsFailure reports whether the current status is one of the failure
// states.
func (m *Monitoring) IsFailure() bool {
	switch m.Status {
	case StatusFailure, StatusInvalidHTTPS, StatusInvalidConfiguration:
		return true
	}
	return false
}
