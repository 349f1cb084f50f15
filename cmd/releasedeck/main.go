package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/releasedeck/releasedeck/internal/api"
	"github.com/releasedeck/releasedeck/internal/build"
	"github.com/releasedeck/releasedeck/internal/config"
	"github.com/releasedeck/releasedeck/internal/monitor"
	"github.com/releasedeck/releasedeck/internal/persist"
	"github.com/releasedeck/releasedeck/internal/report"
	"github.com/releasedeck/releasedeck/internal/scheduler"
	"github.com/releasedeck/releasedeck/internal/sonar"
	"github.com/releasedeck/releasedeck/internal/workqueue"
	"github.com/releasedeck/releasedeck/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	uiDir := flag.String("ui-dir", "", "serve the dashboard static files from this directory; leave empty to disable")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("releasedeck starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"tick_interval", cfg.Scheduler.TickInterval,
		"services", len(cfg.Services),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// SQLite persistence — the stores save the full collection after every
	// mutation and reload it here at startup.
	db, err := persist.Open(cfg.Storage.Path)
	if err != nil {
		slog.Error("failed to open storage", "path", cfg.Storage.Path, "err", err)
		os.Exit(1)
	}
	defer db.Close()

	builds := build.NewStore(db.SaveBuilds)
	monitors := monitor.NewStore(db.SaveMonitorings)

	records, err := db.LoadBuilds()
	if err != nil {
		slog.Error("failed to load build ledger", "err", err)
		os.Exit(1)
	}
	builds.Load(records)

	monitorings, err := db.LoadMonitorings()
	if err != nil {
		slog.Error("failed to load monitoring state", "err", err)
		os.Exit(1)
	}
	monitors.Load(monitorings)
	slog.Info("state restored", "applications", len(records), "services", len(monitorings))

	queue := workqueue.New()
	reporter := report.NewService(builds, queue)

	// The current service list, shared between the API, the stream, and the
	// scheduler; replaced on config reload.
	var svcMu sync.RWMutex
	services := cfg.Services
	currentServices := func() []config.Service {
		svcMu.RLock()
		defer svcMu.RUnlock()
		return services
	}

	// Deferred audit completion is optional: without an analysis server the
	// scheduler drops queued audits with a warning.
	var auditor scheduler.Auditor
	if cfg.Analysis.URL != "" {
		auditor = sonar.New(cfg.Analysis)
		slog.Info("analysis server configured", "url", cfg.Analysis.URL)
	}

	sched := scheduler.New(scheduler.Options{
		Tick:            cfg.Scheduler.TickInterval,
		AnalysisTimeout: cfg.Analysis.Timeout,
		Builds:          builds,
		Monitors:        monitors,
		Queue:           queue,
		Prober:          monitor.NewProber(),
		Auditor:         auditor,
		Services:        cfg.Services,
	})
	go sched.Run(ctx)

	// Hot reload: service list changes take effect without a restart.
	go func() {
		err := config.Watch(ctx, *configPath, func(next *config.Config) {
			svcMu.Lock()
			services = next.Services
			svcMu.Unlock()
			sched.SetServices(next.Services)
		})
		if err != nil {
			slog.Error("config watcher failed", "err", err)
		}
	}()

	// WebSocket hub — streams the portal state to dashboard clients.
	hub := ws.New(builds, monitors, currentServices, cfg.Server.StreamInterval)
	go hub.Run(ctx)

	// Combined HTTP server: REST API, metrics, and the WebSocket stream.
	apiHandler := api.New(api.Options{
		Builds:      builds,
		Monitors:    monitors,
		Queue:       queue,
		Reporter:    reporter,
		Services:    currentServices,
		ClientCount: hub.Count,
		Auth:        cfg.Server.Auth,
	})
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", apiHandler)
	httpMux.Handle("/metrics", apiHandler)
	httpMux.Handle("/ws/stream", hub)

	// Optional: serve the pre-built dashboard from a local directory.
	// The "/" catch-all serves index.html for any unknown path (SPA routing).
	if *uiDir != "" {
		fs := http.FileServer(http.Dir(*uiDir))
		httpMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			path := *uiDir + r.URL.Path
			if _, err := os.Stat(path); os.IsNotExist(err) {
				http.ServeFile(w, r, *uiDir+"/index.html")
				return
			}
			fs.ServeHTTP(w, r)
		})
		slog.Info("serving UI static files", "dir", *uiDir)
	}

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: httpMux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("releasedeck shutting down")
	httpSrv.Shutdown(context.Background()) //nolint:errcheck
}
