// Package api implements the HTTP REST API for releasedeck.
//
// New(opts) returns an http.Handler that serves:
//
//	GET    /api/v1/health                          — liveness plus object counts
//	GET    /api/v1/portal                          — full dashboard state
//	GET    /api/v1/applications                    — ledger summaries
//	GET    /api/v1/applications/{name}/{version}   — one full ledger entry
//	DELETE /api/v1/applications/{name}/{version}   — remove a ledger entry (auth)
//	POST   /api/v1/report                          — CI activity call-in (auth)
//	GET    /api/v1/services                        — monitored services with state
//	DELETE /api/v1/services/{id}                   — drop a service record (auth)
//	GET    /metrics                                — Prometheus text exposition
//
// Endpoints marked (auth) require the configured API key header when
// server.auth.mode is "apikey". All responses are JSON except /metrics.
package api
