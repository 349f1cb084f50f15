// Package scheduler runs the periodic background work: draining deferred
// quality audits against the analysis server and probing monitored services
// that are due for an availability check.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/releasedeck/releasedeck/internal/activity"
	"github.com/releasedeck/releasedeck/internal/build"
	"github.com/releasedeck/releasedeck/internal/config"
	"github.com/releasedeck/releasedeck/internal/monitor"
	"github.com/releasedeck/releasedeck/internal/workqueue"
)

// Prober performs one availability check for a service.
type Prober interface {
	Probe(ctx context.Context, svc config.Service, checkCert bool) monitor.Outcome
}

// Auditor reads a complete quality audit from the analysis server.
type Auditor interface {
	Audit(ctx context.Context, projectKey string) (*activity.QualityAuditPayload, error)
}

// Options wires the scheduler's collaborators.
type Options struct {
	// Tick is the loop period.
	Tick time.Duration

	// AnalysisTimeout bounds each deferred audit completion.
	AnalysisTimeout time.Duration

	Builds   *build.Store
	Monitors *monitor.Store
	Queue    *workqueue.Queue
	Prober   Prober

	// Auditor may be nil when no analysis server is configured; queued
	// audits are then dropped with a warning.
	Auditor Auditor

	// Services is the initial monitored-service list. Replaceable at
	// runtime through SetServices on config reload.
	Services []config.Service
}

// Scheduler owns the background loop. Deferred audits and probes run
// concurrently within a tick; the tick itself waits for both to finish so
// ticks never pile up.
type Scheduler struct {
	opts Options

	mu       sync.RWMutex
	services []config.Service

	now func() time.Time // injectable for deterministic tests
}

// New creates a Scheduler. Call Run to start the loop.
func New(opts Options) *Scheduler {
	return &Scheduler{
		opts:     opts,
		services: opts.Services,
		now:      time.Now,
	}
}

// SetServices replaces the monitored-service list, typically after a config
// reload. Takes effect on the next tick.
func (s *Scheduler) SetServices(services []config.Service) {
	s.mu.Lock()
	s.services = services
	s.mu.Unlock()
	slog.Info("scheduler: service list updated", "services", len(services))
}

// Run executes the loop until ctx is cancelled. The first tick fires after
// one full period, not immediately, so startup probes do not race config
// loading.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()

	slog.Info("scheduler: started", "tick", s.opts.Tick)
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler: stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one full cycle: deferred audits and due probes, concurrently.
func (s *Scheduler) tick(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.drainQueue(ctx)
	}()
	go func() {
		defer wg.Done()
		s.probeServices(ctx)
	}()
	wg.Wait()
}

// drainQueue completes every queued audit at most once. Items are removed
// whether the completion succeeds or not; a failed completion is dropped
// with a warning and the placeholder activity stays ungraded.
func (s *Scheduler) drainQueue(ctx context.Context) {
	for _, item := range s.opts.Queue.Snapshot() {
		item := item
		protect("audit", func() {
			s.completeAudit(ctx, item)
		})
		s.opts.Queue.Remove(item.ID)
	}
}

func (s *Scheduler) completeAudit(ctx context.Context, item workqueue.Item) {
	if s.opts.Auditor == nil {
		slog.Warn("scheduler: no analysis server configured, dropping deferred audit",
			"application", item.Application, "version", item.Version, "project", item.ProjectKey)
		return
	}

	auditCtx, cancel := context.WithTimeout(ctx, s.opts.AnalysisTimeout)
	defer cancel()

	payload, err := s.opts.Auditor.Audit(auditCtx, item.ProjectKey)
	if err != nil {
		slog.Warn("scheduler: deferred audit failed, dropping",
			"application", item.Application, "version", item.Version,
			"project", item.ProjectKey, "err", err)
		return
	}

	act, err := activity.New(item.Component, payload, s.now())
	if err != nil {
		slog.Warn("scheduler: deferred audit produced invalid activity",
			"application", item.Application, "err", err)
		return
	}
	err = s.opts.Builds.Update(item.Application, item.Version, func(r *build.Record) error {
		r.SetActivity(act)
		return nil
	})
	if err != nil {
		slog.Warn("scheduler: storing completed audit failed",
			"application", item.Application, "version", item.Version, "err", err)
		return
	}
	slog.Info("scheduler: deferred audit completed",
		"application", item.Application, "version", item.Version,
		"component", item.Component, "grade", act.Grade)
}

// probeServices checks every monitored service that is due. Probes run in
// parallel, one goroutine per due service; outcomes are applied through the
// monitoring store as they arrive.
func (s *Scheduler) probeServices(ctx context.Context) {
	s.mu.RLock()
	services := make([]config.Service, len(s.services))
	copy(services, s.services)
	s.mu.RUnlock()

	now := s.now()
	var wg sync.WaitGroup
	for _, svc := range services {
		svc := svc

		if !svc.MonitoringAvailable() {
			s.markDisabled(svc.ID)
			continue
		}

		rec, ok := s.opts.Monitors.Get(svc.ID)
		if ok && !rec.AvailabilityUpdateRequired(now, svc.DelayMonitoringMinutes) {
			continue
		}
		checkCert := !ok || rec.CertificateUpdateRequired(now)

		wg.Add(1)
		go func() {
			defer wg.Done()
			protect("probe", func() {
				s.probe(ctx, svc, checkCert)
			})
		}()
	}
	wg.Wait()
}

func (s *Scheduler) probe(ctx context.Context, svc config.Service, checkCert bool) {
	out := s.opts.Prober.Probe(ctx, svc, checkCert)
	s.opts.Monitors.ApplyOutcome(svc.ID, out)

	if out.Status != monitor.StatusSuccess {
		slog.Warn("scheduler: probe failed",
			"service", svc.ID, "status", out.Status, "reason", out.Reason)
	}
	if rec, ok := s.opts.Monitors.Get(svc.ID); ok && rec.CertificateExpired(s.now()) {
		slog.Warn("scheduler: service certificate expired",
			"service", svc.ID, "expiration_ms", rec.CertificateExpiration)
	}
}

// markDisabled flips an existing record to DISABLED when its monitoring was
// switched off. Services never probed get no record at all.
func (s *Scheduler) markDisabled(serviceID string) {
	rec, ok := s.opts.Monitors.Get(serviceID)
	if !ok || rec.Status == monitor.StatusDisabled {
		return
	}
	s.opts.Monitors.ApplyOutcome(serviceID, monitor.Outcome{Status: monitor.StatusDisabled})
}

// protect runs fn and turns a panic into a logged error so one bad item or
// probe cannot take the whole loop down.
func protect(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduler: recovered panic", "kind", kind, "panic", r)
		}
	}()
	fn()
}
