// Package monitor tracks the live availability of deployed service
// endpoints. Each configured service has one Monitoring record whose state
// machine is driven by probe outcomes: HTTP reachability, TLS certificate
// validity and certificate expiration tracking.
//
// Availability timestamps are epoch seconds; the certificate expiration is
// epoch milliseconds. The mismatch is part of the stored contract and must
// not be "fixed" on one side only.
package monitor
