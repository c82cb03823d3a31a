package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/audit-ticketer/internal/adapter/metrics"
	"github.com/V4T54L/audit-ticketer/internal/domain"
)

const taskDispatch = "dispatch"

// CommitMode controls when dispatched rows are marked processed.
type CommitMode string

const (
	// CommitSnapshot marks completed rows once the whole pass has finished. A crash between
	// a ticket action and the flip redispatches the row (at-least-once).
	CommitSnapshot CommitMode = "snapshot"
	// CommitPerRow marks each row as soon as its ticket action completes. Pair it with a
	// CreateGuard so a redispatched row reuses its ticket.
	CommitPerRow CommitMode = "per_row"
)

const journalTimeout = 10 * time.Second

// CycleResult summarizes one supervisor cycle.
type CycleResult struct {
	CycleID     string           `json:"cycle_id"`
	Unprocessed int              `json:"unprocessed"`
	Completed   int              `json:"completed"`
	Failed      int              `json:"failed"`
	Processed   int              `json:"processed"`
	Outcomes    []domain.Outcome `json:"outcomes,omitempty"`
}

// Supervisor snapshots the unprocessed rows, runs the dispatch loop over them and marks
// completed rows processed.
type Supervisor struct {
	log        domain.EventLog
	dispatcher *DispatchEventsUseCase
	journal    domain.OutcomeJournal
	metrics    *metrics.Metrics
	logger     *slog.Logger
	mode       CommitMode
}

// NewSupervisor creates the outer dispatch loop. journal and m may be nil.
func NewSupervisor(log domain.EventLog, dispatcher *DispatchEventsUseCase, journal domain.OutcomeJournal, m *metrics.Metrics, logger *slog.Logger, mode CommitMode) *Supervisor {
	if mode == "" {
		mode = CommitSnapshot
	}
	return &Supervisor{
		log:        log,
		dispatcher: dispatcher,
		journal:    journal,
		metrics:    m,
		logger:     logger.With("component", "supervisor", "commit_mode", string(mode)),
		mode:       mode,
	}
}

// RunCycle performs one dispatch pass.
func (s *Supervisor) RunCycle(ctx context.Context) (CycleResult, error) {
	start := time.Now()
	res := CycleResult{CycleID: uuid.NewString()}
	logger := s.logger.With("cycle_id", res.CycleID)
	defer s.observe(start)

	rows, err := s.log.ScanUnprocessed(ctx)
	if err != nil {
		s.fail(err)
		logger.Error("failed to scan unprocessed rows", "error", err)
		return res, fmt.Errorf("scan unprocessed rows: %w", err)
	}
	res.Unprocessed = len(rows)
	if s.metrics != nil {
		s.metrics.UnprocessedRows.Set(float64(len(rows)))
	}
	if len(rows) == 0 {
		logger.Debug("no unprocessed rows")
		return res, nil
	}
	logger.Info("found unprocessed rows", "count", len(rows))

	var onComplete CompleteFunc
	if s.mode == CommitPerRow {
		onComplete = func(ctx context.Context, row domain.StoredRow) error {
			n, err := s.log.MarkProcessed(context.WithoutCancel(ctx), []domain.RowRef{row.Ref()})
			res.Processed += n
			return err
		}
	}

	outcomes, dispatchErr := s.dispatcher.Dispatch(ctx, res.CycleID, rows, onComplete)
	res.Outcomes = outcomes
	for _, out := range outcomes {
		if out.Completed() {
			res.Completed++
		} else {
			res.Failed++
		}
	}
	s.journalOutcomes(ctx, outcomes, logger)

	// Completed rows are still flipped on shutdown; a storage failure aborts the flip.
	if dispatchErr != nil && !isCancellation(dispatchErr) {
		s.fail(dispatchErr)
		s.countProcessed(res.Processed)
		logger.Error("dispatch pass aborted", "error", dispatchErr, "completed", res.Completed, "processed", res.Processed)
		return res, fmt.Errorf("dispatch pass: %w", dispatchErr)
	}

	if s.mode == CommitSnapshot {
		var refs []domain.RowRef
		for i, out := range outcomes {
			if out.Completed() {
				refs = append(refs, rows[i].Ref())
			}
		}
		if len(refs) > 0 {
			n, err := s.log.MarkProcessed(context.WithoutCancel(ctx), refs)
			if err != nil {
				s.fail(err)
				logger.Error("failed to mark rows processed, they will be dispatched again", "error", err, "rows", len(refs))
				return res, fmt.Errorf("mark processed: %w", err)
			}
			res.Processed = n
		}
	}
	s.countProcessed(res.Processed)

	if dispatchErr != nil {
		logger.Warn("dispatch pass interrupted", "error", dispatchErr, "completed", res.Completed, "processed", res.Processed)
		return res, dispatchErr
	}
	logger.Info("dispatch cycle complete", "dispatched", len(outcomes), "completed", res.Completed, "failed", res.Failed, "processed", res.Processed)
	return res, nil
}

func (s *Supervisor) journalOutcomes(ctx context.Context, outcomes []domain.Outcome, logger *slog.Logger) {
	if s.journal == nil || len(outcomes) == 0 {
		return
	}
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()
	if err := s.journal.Record(jctx, outcomes); err != nil {
		logger.Warn("failed to journal dispatch outcomes", "error", err, "count", len(outcomes))
	}
}

func (s *Supervisor) countProcessed(n int) {
	if s.metrics != nil && n > 0 {
		s.metrics.RowsProcessed.Add(float64(n))
	}
}

func (s *Supervisor) fail(err error) {
	if s.metrics != nil {
		s.metrics.CycleFailures.WithLabelValues(taskDispatch, domain.ErrorKind(err)).Inc()
	}
}

func (s *Supervisor) observe(start time.Time) {
	if s.metrics != nil {
		s.metrics.CycleDuration.WithLabelValues(taskDispatch).Observe(time.Since(start).Seconds())
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
