package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/audit-ticketer/internal/adapter/graph"
	"github.com/V4T54L/audit-ticketer/internal/adapter/repository/csvlog"
	"github.com/V4T54L/audit-ticketer/internal/adapter/repository/memory"
	redisrepo "github.com/V4T54L/audit-ticketer/internal/adapter/repository/redis"
	"github.com/V4T54L/audit-ticketer/internal/domain"
	"github.com/V4T54L/audit-ticketer/internal/pkg/config"
	"github.com/V4T54L/audit-ticketer/internal/pkg/logger"
	"github.com/V4T54L/audit-ticketer/internal/usecase"
)

// Fetches the newest audit events once and appends them to the event log.
// Must not run against a file that a ticketer daemon is writing.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	top := flag.Int("top", cfg.Graph.Top, "number of latest events to fetch")
	flag.Parse()
	cfg.Graph.Top = *top

	if err := cfg.ValidateIngest(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	log, logCloser := logger.New(cfg.LoggerOptions())
	defer logCloser.Close()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventLog, err := csvlog.NewEventLog(cfg.EventLog.Path, log)
	if err != nil {
		log.Error("failed to open event log", "error", err)
		os.Exit(1)
	}

	var filter domain.KeyFilter
	if cfg.Dedup.Enabled {
		if cfg.Dedup.RedisURL != "" {
			opts, err := redis.ParseURL(cfg.Dedup.RedisURL)
			if err != nil {
				log.Error("failed to parse redis url", "error", err)
				os.Exit(1)
			}
			client := redis.NewClient(opts)
			defer client.Close()
			filter = redisrepo.NewKeystore(client, log, cfg.Dedup.TTL)
		} else {
			ks := memory.NewKeystore()
			if _, err := ks.SeedFromLog(ctx, eventLog); err != nil {
				log.Error("failed to seed keystore from event log", "error", err)
				os.Exit(1)
			}
			filter = ks
		}
	}

	source := graph.NewClient(graph.Config{
		TenantID:     cfg.Graph.TenantID,
		ClientID:     cfg.Graph.ClientID,
		ClientSecret: cfg.Graph.ClientSecret,
		AuthorityURL: cfg.Graph.AuthorityURL,
		BaseURL:      cfg.Graph.BaseURL,
		Category:     cfg.Graph.Category,
		Timeout:      cfg.Graph.Timeout,
	}, log)

	res, err := usecase.NewIngestEventsUseCase(source, eventLog, filter, nil, log, cfg.Graph.Top).RunCycle(ctx)
	if err != nil {
		os.Exit(1)
	}
	log.Info("ingest complete", "path", eventLog.Path(), "fetched", res.Fetched, "appended", res.Appended)
}
