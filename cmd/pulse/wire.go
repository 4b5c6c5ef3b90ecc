package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/bryanwahyu/compliance-pulse/internal/application"
	appai "github.com/bryanwahyu/compliance-pulse/internal/application/ai"
	auditapp "github.com/bryanwahyu/compliance-pulse/internal/application/audit"
	appscans "github.com/bryanwahyu/compliance-pulse/internal/application/scans"
	"github.com/bryanwahyu/compliance-pulse/internal/config"
	"github.com/bryanwahyu/compliance-pulse/internal/domain/audit"
	domain "github.com/bryanwahyu/compliance-pulse/internal/domain/scans"
	"github.com/bryanwahyu/compliance-pulse/internal/infra/ai/openai"
	"github.com/bryanwahyu/compliance-pulse/internal/infra/audit/natsbus"
	"github.com/bryanwahyu/compliance-pulse/internal/infra/db"
	"github.com/bryanwahyu/compliance-pulse/internal/infra/db/sqlstore"
	"github.com/bryanwahyu/compliance-pulse/internal/infra/executor/local"
	"github.com/bryanwahyu/compliance-pulse/internal/infra/hostinfo"
	"github.com/bryanwahyu/compliance-pulse/internal/infra/render"
	"github.com/bryanwahyu/compliance-pulse/internal/infra/storage"
	"github.com/bryanwahyu/compliance-pulse/internal/logging"
	"github.com/bryanwahyu/compliance-pulse/internal/metrics"
)

// app holds the process-wide dependencies shared by every subcommand.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *sqlstore.Store
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	audit    *auditapp.Recorder
	clock    application.Clock

	closers []io.Closer
	nc      *nats.Conn
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("config load error: %w", err)
	}

	a := &app{cfg: cfg, clock: application.SystemClock{}}

	out := io.Writer(os.Stdout)
	if cfg.Log.Dir != "" {
		if err := os.MkdirAll(cfg.Log.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(cfg.Log.Dir, "pulse.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		a.closers = append(a.closers, f)
		out = io.MultiWriter(os.Stdout, f)
	}
	a.logger = logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: out})
	slog.SetDefault(a.logger)

	store, err := db.Open(ctx, cfg.Database.Driver, cfg.DatabaseDSN())
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	a.audit = &auditapp.Recorder{
		Repo:   store.Audit(),
		Logger: logging.Component(a.logger, "audit"),
		Clock:  a.clock,
	}
	if cfg.Audit.NatsURL != "" {
		nc, err := natsbus.Connect(cfg.Audit.NatsURL)
		if err != nil {
			// the audit bus is optional; rows are still written to the store
			a.logger.Warn("audit bus unavailable", "url", cfg.Audit.NatsURL, "error", err)
		} else {
			a.nc = nc
			a.audit.Publisher = natsbus.NewPublisher(nc, cfg.Audit.Subject, a.logger)
		}
	}
	return a, nil
}

func (a *app) Close() {
	if a.nc != nil {
		if err := a.nc.Drain(); err != nil {
			a.nc.Close()
		}
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	for _, c := range a.closers {
		_ = c.Close()
	}
}

// executor builds an Executor bound to organizationID. An empty id yields
// a template suitable for appscans.Pool.
func (a *app) executor(ctx context.Context, organizationID string) (*appscans.Executor, error) {
	renderers, err := render.ForFormats(a.cfg.Artifacts.ReportFormats)
	if err != nil {
		return nil, err
	}
	artifacts, err := a.artifactStore(ctx)
	if err != nil {
		return nil, err
	}

	prober := hostinfo.Prober{}
	opts := []local.Option{
		local.WithDefaultTimeout(a.cfg.Sandbox.ShellTimeout),
		local.WithLogger(logging.Component(a.logger, "rule-engine")),
	}
	if facts, err := prober.Facts(ctx); err == nil {
		opts = append(opts, local.WithPlatformFamily(facts.PlatformFamily))
	} else {
		a.logger.Warn("host facts unavailable", "error", err)
	}
	engine := local.NewEngine(local.NewPolicy(a.cfg.Sandbox.AllowedCommands), opts...)

	var advisor domain.Advisor
	if a.cfg.AI.APIKey != "" {
		advisor = appai.NewService(openai.NewClient(a.cfg.AI.APIKey, a.cfg.AI.Model))
	}

	return &appscans.Executor{
		OrganizationID: organizationID,
		Rules:          a.store.Rules(),
		Groups:         a.store.Groups(),
		Repo:           a.store.Scans(),
		Engine:         engine,
		Artifacts:      artifacts,
		Renderers:      renderers,
		Advisor:        advisor,
		Host:           prober,
		Audit:          a.audit,
		Metrics:        a.metrics,
		Logger:         logging.Component(a.logger, "scan-executor"),
		Clock:          a.clock,
	}, nil
}

func (a *app) artifactStore(ctx context.Context) (domain.ArtifactStore, error) {
	switch a.cfg.Artifacts.Backend {
	case "minio":
		m := a.cfg.Minio
		s, err := storage.New(ctx, m.Endpoint, m.Region, m.BucketName, m.AccessKey, m.SecretKey, m.UseSSL)
		if err != nil {
			return nil, fmt.Errorf("minio init error: %w", err)
		}
		return s, nil
	default:
		return storage.NewLocal(a.cfg.Artifacts.Dir)
	}
}

// recordManual stores an audit row for operator actions taken from the CLI.
func (a *app) recordManual(ctx context.Context, org string, action audit.Action, resourceType, id, msg string) {
	a.audit.Record(ctx, audit.Event{
		OrganizationID: org,
		Action:         action,
		ResourceType:   resourceType,
		ResourceID:     id,
		Message:        msg,
	})
}
