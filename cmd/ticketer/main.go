package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/audit-ticketer/internal/adapter/api"
	"github.com/V4T54L/audit-ticketer/internal/adapter/api/handler"
	"github.com/V4T54L/audit-ticketer/internal/adapter/graph"
	"github.com/V4T54L/audit-ticketer/internal/adapter/jira"
	"github.com/V4T54L/audit-ticketer/internal/adapter/metrics"
	"github.com/V4T54L/audit-ticketer/internal/adapter/oracle"
	"github.com/V4T54L/audit-ticketer/internal/adapter/pii"
	"github.com/V4T54L/audit-ticketer/internal/adapter/repository/csvlog"
	"github.com/V4T54L/audit-ticketer/internal/adapter/repository/memory"
	"github.com/V4T54L/audit-ticketer/internal/adapter/repository/postgres"
	redisrepo "github.com/V4T54L/audit-ticketer/internal/adapter/repository/redis"
	"github.com/V4T54L/audit-ticketer/internal/domain"
	"github.com/V4T54L/audit-ticketer/internal/pkg/config"
	"github.com/V4T54L/audit-ticketer/internal/pkg/logger"
	"github.com/V4T54L/audit-ticketer/internal/usecase"
)

const redisHealthInterval = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateDaemon(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	log, logCloser := logger.New(cfg.LoggerOptions())
	defer logCloser.Close()
	slog.SetDefault(log)
	log.Info("starting audit ticketer", "event_log", cfg.EventLog.Path, "commit_mode", cfg.Schedule.CommitMode)

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	eventLog, err := csvlog.NewEventLog(cfg.EventLog.Path, log)
	if err != nil {
		log.Error("failed to open event log", "error", err)
		os.Exit(1)
	}

	// --- Optional Postgres: outcome journal and API keys ---
	var db *sql.DB
	var journal domain.OutcomeJournal
	if cfg.Journal.PostgresURL != "" {
		db, err = sql.Open("postgres", cfg.Journal.PostgresURL)
		if err != nil {
			log.Error("failed to open postgres connection", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		pgJournal := postgres.NewOutcomeJournal(db, log)
		if err := pgJournal.EnsureSchema(ctx); err != nil {
			log.Error("failed to prepare postgres schema", "error", err)
			os.Exit(1)
		}
		journal = pgJournal
		log.Info("connected to postgres")
	}

	// --- Optional keystore: ingest dedup and create guard ---
	filter, guard, err := buildKeystore(ctx, cfg, eventLog, log)
	if err != nil {
		log.Error("failed to initialize keystore", "error", err)
		os.Exit(1)
	}

	// --- External systems ---
	source := graph.NewClient(graph.Config{
		TenantID:     cfg.Graph.TenantID,
		ClientID:     cfg.Graph.ClientID,
		ClientSecret: cfg.Graph.ClientSecret,
		AuthorityURL: cfg.Graph.AuthorityURL,
		BaseURL:      cfg.Graph.BaseURL,
		Category:     cfg.Graph.Category,
		Timeout:      cfg.Graph.Timeout,
	}, log)
	tickets := jira.NewClient(jira.Config{
		BaseURL:    cfg.Jira.URL,
		Email:      cfg.Jira.Email,
		APIToken:   cfg.Jira.APIToken,
		ProjectKey: cfg.Jira.ProjectKey,
		Timeout:    cfg.Jira.Timeout,
	}, log)
	decider := oracle.NewClient(oracle.Config{
		APIKey:  cfg.Oracle.APIKey,
		BaseURL: cfg.Oracle.BaseURL,
		Model:   cfg.Oracle.Model,
		Timeout: cfg.Oracle.Timeout,
	}, pii.NewRedactor(cfg.Admin.RedactionFields), log)

	// --- Use cases ---
	broker := handler.NewSSEBroker(ctx, log)
	ingest := usecase.NewIngestEventsUseCase(source, eventLog, filter, m, log, cfg.Graph.Top)
	dispatcher := usecase.NewDispatchEventsUseCase(eventLog, decider, tickets, log, usecase.DispatchOptions{
		TicketDelay: cfg.Schedule.TicketDelay,
		Guard:       guard,
		Reporter:    broker,
		Metrics:     m,
	})
	supervisor := usecase.NewSupervisor(eventLog, dispatcher, journal, m, log, usecase.CommitMode(cfg.Schedule.CommitMode))

	// --- Admin server ---
	adminServer := &http.Server{
		Addr: cfg.Admin.ListenAddr,
		Handler: api.NewRouter(api.RouterDeps{
			APIKeys:      postgres.NewAPIKeyRepository(db, cfg.Admin.APIKeys, log, cfg.Admin.APIKeyCacheTTL, m),
			Admin:        usecase.NewAdminEventsUseCase(eventLog),
			Ingester:     ingest,
			Broker:       broker,
			Gatherer:     reg,
			MaxBodyBytes: cfg.Admin.MaxBodyBytes,
		}, log),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		log.Info("starting admin server", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("admin server failed", "error", err)
			stop() // Trigger shutdown on server error
		}
	}()

	// --- Loops ---
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		runEvery(ctx, cfg.Schedule.IngestInterval, func(ctx context.Context) {
			_, _ = ingest.RunCycle(ctx)
		})
	}()
	go func() {
		defer wg.Done()
		runEvery(ctx, cfg.Schedule.DispatchInterval, func(ctx context.Context) {
			_, _ = supervisor.RunCycle(ctx)
		})
	}()

	<-ctx.Done()
	log.Info("shutdown signal received, stopping loops...")
	wg.Wait()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		log.Error("admin server shutdown failed", "error", err)
	}

	log.Info("audit ticketer shut down gracefully")
}

// runEvery runs fn immediately and then on every tick until ctx is done. Cycles never overlap.
// Cycle errors are logged by the use cases themselves.
func runEvery(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		fn(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// buildKeystore returns the dedup filter and create guard selected by cfg. Either may be nil.
// Redis backs both when configured; otherwise an in-memory keystore seeded from the event log is used.
func buildKeystore(ctx context.Context, cfg *config.Config, eventLog domain.EventLog, log *slog.Logger) (domain.KeyFilter, domain.CreateGuard, error) {
	wantFilter := cfg.Dedup.Enabled
	wantGuard := cfg.CreateGuardEnabled()
	if !wantFilter && !wantGuard {
		return nil, nil, nil
	}

	var filter domain.KeyFilter
	var guard domain.CreateGuard
	if cfg.Dedup.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Dedup.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		ks := redisrepo.NewKeystore(redis.NewClient(opts), log, cfg.Dedup.TTL)
		go ks.StartHealthCheck(ctx, redisHealthInterval)
		filter, guard = ks, ks
	} else {
		ks := memory.NewKeystore()
		n, err := ks.SeedFromLog(ctx, eventLog)
		if err != nil {
			return nil, nil, err
		}
		log.Info("seeded in-memory keystore from event log", "rows", n)
		filter, guard = ks, ks
	}

	if !wantFilter {
		filter = nil
	}
	if !wantGuard {
		guard = nil
	}
	return filter, guard, nil
}
