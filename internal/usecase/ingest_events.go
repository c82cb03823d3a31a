package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/audit-ticketer/internal/adapter/metrics"
	"github.com/V4T54L/audit-ticketer/internal/domain"
)

const taskIngest = "ingest"

// IngestResult summarizes one ingestion cycle.
type IngestResult struct {
	CycleID    string `json:"cycle_id"`
	Fetched    int    `json:"fetched"`
	Appended   int    `json:"appended"`
	Duplicates int    `json:"duplicates"`
}

// IngestEventsUseCase pulls the newest audit events, normalizes them and appends them
// to the event log.
type IngestEventsUseCase struct {
	source  domain.AuditSource
	log     domain.EventLog
	filter  domain.KeyFilter
	metrics *metrics.Metrics
	logger  *slog.Logger
	top     int
}

// NewIngestEventsUseCase creates the ingestion agent. filter and m may be nil.
func NewIngestEventsUseCase(source domain.AuditSource, log domain.EventLog, filter domain.KeyFilter, m *metrics.Metrics, logger *slog.Logger, top int) *IngestEventsUseCase {
	return &IngestEventsUseCase{
		source:  source,
		log:     log,
		filter:  filter,
		metrics: m,
		logger:  logger.With("component", "ingest_agent"),
		top:     top,
	}
}

// RunCycle fetches up to top events and appends them. A fetch failure aborts the cycle
// before anything is written.
func (uc *IngestEventsUseCase) RunCycle(ctx context.Context) (IngestResult, error) {
	start := time.Now()
	cycleID := uuid.NewString()
	logger := uc.logger.With("cycle_id", cycleID)

	events, err := uc.source.Fetch(ctx, uc.top)
	if err != nil {
		uc.fail(err)
		logger.Error("failed to fetch audit events", "error", err, "kind", domain.ErrorKind(err))
		return IngestResult{CycleID: cycleID}, fmt.Errorf("fetch audit events: %w", err)
	}

	res, err := uc.ingest(ctx, cycleID, events)
	uc.observe(start)
	if err != nil {
		logger.Error("failed to append audit events", "error", err, "kind", domain.ErrorKind(err))
		return res, err
	}
	logger.Info("ingestion cycle complete", "fetched", res.Fetched, "appended", res.Appended, "duplicates", res.Duplicates)
	return res, nil
}

// IngestEvents appends events pushed by a caller instead of fetched from the source.
func (uc *IngestEventsUseCase) IngestEvents(ctx context.Context, events []domain.AuditEvent) (IngestResult, error) {
	cycleID := uuid.NewString()
	res, err := uc.ingest(ctx, cycleID, events)
	if err != nil {
		uc.logger.Error("failed to append pushed events", "cycle_id", cycleID, "error", err)
		return res, err
	}
	uc.logger.Info("pushed events ingested", "cycle_id", cycleID, "received", res.Fetched, "appended", res.Appended, "duplicates", res.Duplicates)
	return res, nil
}

func (uc *IngestEventsUseCase) ingest(ctx context.Context, cycleID string, events []domain.AuditEvent) (IngestResult, error) {
	res := IngestResult{CycleID: cycleID, Fetched: len(events)}
	if uc.metrics != nil {
		uc.metrics.EventsFetched.Add(float64(len(events)))
	}
	if len(events) == 0 {
		return res, nil
	}

	rows := make([]domain.EventRow, len(events))
	for i, evt := range events {
		rows[i] = Normalize(evt)
	}

	if uc.filter != nil {
		unseen, err := uc.filter.Unseen(ctx, rows)
		if err != nil {
			// Rows are never appended unfiltered while dedup is enabled.
			uc.fail(err)
			return res, fmt.Errorf("filter seen events: %w", err)
		}
		res.Duplicates = len(rows) - len(unseen)
		rows = unseen
		if uc.metrics != nil {
			uc.metrics.EventsDuplicate.Add(float64(res.Duplicates))
		}
		if len(rows) == 0 {
			return res, nil
		}
	}

	if err := uc.log.Append(ctx, rows); err != nil {
		uc.fail(err)
		return res, fmt.Errorf("append events: %w", err)
	}
	res.Appended = len(rows)
	if uc.metrics != nil {
		uc.metrics.EventsAppended.Add(float64(len(rows)))
	}

	if uc.filter != nil {
		if err := uc.filter.Mark(ctx, rows); err != nil {
			uc.logger.Warn("failed to record appended keys, rows may be appended again", "cycle_id", cycleID, "error", err)
		}
	}
	return res, nil
}

func (uc *IngestEventsUseCase) fail(err error) {
	if uc.metrics != nil {
		uc.metrics.CycleFailures.WithLabelValues(taskIngest, domain.ErrorKind(err)).Inc()
	}
}

func (uc *IngestEventsUseCase) observe(start time.Time) {
	if uc.metrics != nil {
		uc.metrics.CycleDuration.WithLabelValues(taskIngest).Observe(time.Since(start).Seconds())
	}
}
