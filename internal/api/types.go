package api

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State            string `json:"state"`
	ApplicationCount int    `json:"application_count"`
	ServiceCount     int    `json:"service_count"`
	FailingServices  int    `json:"failing_services"`
	DeferredAudits   int    `json:"deferred_audits"`
	ConnectedClients int    `json:"connected_clients"`
}

// ServiceResponse is one monitored service in GET /api/v1/services and the
// portal snapshot. Configuration and availability state are merged into one
// entry.
type ServiceResponse struct {
	ID       string `json:"id"`
	Label    string `json:"label,omitempty"`
	Category string `json:"category,omitempty"`
	URL      string `json:"url,omitempty"`

	Status string `json:"status"`
	Icon   string `json:"icon"`

	LastSuccessTimestamp int64  `json:"last_success_timestamp,omitempty"`
	LastFailureTimestamp int64  `json:"last_failure_timestamp,omitempty"`
	LastFailureReason    string `json:"last_failure_reason,omitempty"`
	FailureCount         int    `json:"failure_count"`

	CertificateExpiration int64 `json:"certificate_expiration,omitempty"` // milliseconds
	CertificateExpired    bool  `json:"certificate_expired"`
}

// PortalResponse is the payload for GET /api/v1/portal and the WebSocket
// stream: the complete dashboard state in one document.
type PortalResponse struct {
	Applications []ApplicationSummary `json:"applications"`
	Services     []ServiceResponse    `json:"services"`
	GeneratedAt  string               `json:"generated_at"` // RFC3339
}

// ApplicationSummary is one ledger entry in list responses, without the
// per-activity detail.
type ApplicationSummary struct {
	ApplicationName    string `json:"application_name"`
	ApplicationVersion string `json:"application_version"`
	BuildJob           string `json:"build_job,omitempty"`
	BuildNumber        string `json:"build_number,omitempty"`
	BuildBranch        string `json:"build_branch,omitempty"`
	BuildTimestamp     int64  `json:"build_timestamp"`
	ActivityCount      int    `json:"activity_count"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

// statusResponse is a generic JSON acknowledgement body.
type statusResponse struct {
	Status string `json:"status"`
}
