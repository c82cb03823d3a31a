package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/V4T54L/audit-ticketer/internal/adapter/metrics"
	"github.com/V4T54L/audit-ticketer/internal/domain"
)

// CompleteFunc is called after a row's ticket action completes. An error aborts the pass.
type CompleteFunc func(ctx context.Context, row domain.StoredRow) error

// DispatchOptions holds the optional collaborators of the dispatch loop.
type DispatchOptions struct {
	// TicketDelay is the minimum spacing between ticket-system calls.
	TicketDelay time.Duration
	Guard       domain.CreateGuard
	Reporter    domain.OutcomeReporter
	Metrics     *metrics.Metrics
}

// DispatchEventsUseCase drains a snapshot of unprocessed rows into ticket actions.
type DispatchEventsUseCase struct {
	log      domain.EventLog
	oracle   domain.DecisionOracle
	tickets  domain.TicketClient
	guard    domain.CreateGuard
	reporter domain.OutcomeReporter
	metrics  *metrics.Metrics
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewDispatchEventsUseCase creates the dispatch loop.
func NewDispatchEventsUseCase(log domain.EventLog, oracle domain.DecisionOracle, tickets domain.TicketClient, logger *slog.Logger, opts DispatchOptions) *DispatchEventsUseCase {
	limit := rate.Inf
	if opts.TicketDelay > 0 {
		limit = rate.Every(opts.TicketDelay)
	}
	return &DispatchEventsUseCase{
		log:      log,
		oracle:   oracle,
		tickets:  tickets,
		guard:    opts.Guard,
		reporter: opts.Reporter,
		metrics:  opts.Metrics,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger.With("component", "dispatch_loop"),
	}
}

// Dispatch processes rows strictly in order. Per-row failures are recorded in the returned
// outcomes; only storage failures and cancellation stop the pass early, in which case the
// outcomes gathered so far are returned with the error.
func (uc *DispatchEventsUseCase) Dispatch(ctx context.Context, cycleID string, rows []domain.StoredRow, onComplete CompleteFunc) ([]domain.Outcome, error) {
	outcomes := make([]domain.Outcome, 0, len(rows))
	// Tickets created earlier in this pass, by (user, operation). Snapshot rows sharing a
	// matcher were ticketed in storage by that create and must not create again.
	created := make(map[domain.StateMatcher]string)

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		if key, ok := created[row.Matcher()]; ok && !row.TicketExists.Bool() {
			row.TicketExists = domain.FlagTrue
			row.TicketKey = key
		}

		out, err := uc.dispatchRow(ctx, cycleID, row)
		if out.Status == domain.OutcomeCreated || out.Status == domain.OutcomeReused {
			created[row.Matcher()] = out.TicketKey
		}
		outcomes = append(outcomes, out)
		uc.record(out)
		if err != nil {
			return outcomes, err
		}

		if out.Completed() && onComplete != nil {
			if err := onComplete(ctx, row); err != nil {
				return outcomes, err
			}
		}
	}
	return outcomes, nil
}

// dispatchRow returns an error only when the pass must stop.
func (uc *DispatchEventsUseCase) dispatchRow(ctx context.Context, cycleID string, row domain.StoredRow) (domain.Outcome, error) {
	key := row.Key()
	logger := uc.logger.With("cycle_id", cycleID, "timestamp", key.Timestamp, "user_principal_name", key.UserPrincipalName, "operation", key.Operation)

	decision, err := uc.oracle.Decide(ctx, row.EventRow)
	if err != nil {
		if ctx.Err() != nil {
			return uc.outcome(cycleID, row, domain.DefaultDecision(), domain.OutcomeFailed, err), ctx.Err()
		}
		if !errors.Is(err, domain.ErrMalformedResponse) {
			// Unreachable or unauthorized oracle: retry the row next pass rather than guess.
			logger.Error("decision oracle unavailable, leaving row unprocessed", "error", err, "kind", domain.ErrorKind(err))
			return uc.outcome(cycleID, row, domain.DefaultDecision(), domain.OutcomeFailed, err), nil
		}
		logger.Warn("decision oracle reply unusable, falling back to create", "error", err)
		decision = domain.DefaultDecision()
	}
	decision = sanitizeDecision(decision)

	// A ticketed row is never created again, only updated.
	if row.TicketExists.Bool() && decision.Action == domain.ActionCreate {
		decision.Action = domain.ActionUpdate
	}

	if decision.Action == domain.ActionUpdate {
		return uc.update(ctx, cycleID, row, decision, logger)
	}
	return uc.create(ctx, cycleID, row, decision, logger)
}

func (uc *DispatchEventsUseCase) update(ctx context.Context, cycleID string, row domain.StoredRow, decision domain.Decision, logger *slog.Logger) (domain.Outcome, error) {
	if row.TicketKey == "" {
		logger.Error("update requested for row without a ticket, leaving it unprocessed")
		return uc.outcome(cycleID, row, decision, domain.OutcomeSkipped, domain.ErrMissingTicketKey), nil
	}
	if err := uc.limiter.Wait(ctx); err != nil {
		return uc.outcome(cycleID, row, decision, domain.OutcomeFailed, err), err
	}
	if err := uc.tickets.Update(ctx, row.TicketKey, UpdateDescription(row.EventRow, decision)); err != nil {
		return uc.ticketFailure(ctx, cycleID, row, decision, err, logger)
	}

	out := uc.outcome(cycleID, row, decision, domain.OutcomeUpdated, nil)
	out.TicketKey = row.TicketKey
	logger.Info("ticket updated", "ticket_key", row.TicketKey)
	return out, nil
}

func (uc *DispatchEventsUseCase) create(ctx context.Context, cycleID string, row domain.StoredRow, decision domain.Decision, logger *slog.Logger) (domain.Outcome, error) {
	status := domain.OutcomeCreated
	ticketKey, found := uc.lookup(ctx, row.Key(), logger)

	if found {
		status = domain.OutcomeReused
		logger.Info("reusing ticket recorded for this event", "ticket_key", ticketKey)
	} else {
		if err := uc.limiter.Wait(ctx); err != nil {
			return uc.outcome(cycleID, row, decision, domain.OutcomeFailed, err), err
		}
		key, err := uc.tickets.Create(ctx, NewTicket(row.EventRow, decision))
		if err != nil {
			return uc.ticketFailure(ctx, cycleID, row, decision, err, logger)
		}
		ticketKey = key
		if uc.guard != nil {
			if err := uc.guard.Record(ctx, row.Key(), ticketKey); err != nil {
				logger.Warn("failed to record created ticket, a retry may create a duplicate", "ticket_key", ticketKey, "error", err)
			}
		}
	}

	matched, err := uc.log.UpdateState(ctx, row.Matcher(), domain.TicketCreated(ticketKey))
	out := uc.outcome(cycleID, row, decision, status, nil)
	out.TicketKey = ticketKey
	if err != nil {
		logger.Error("ticket created but its state could not be stored", "ticket_key", ticketKey, "error", err)
		out.Status = domain.OutcomeFailed
		out.Error = err.Error()
		return out, fmt.Errorf("store ticket state: %w", err)
	}
	out.Matched = matched
	if matched == 0 {
		logger.Info("ticket state already applied, no rows updated", "ticket_key", ticketKey)
	}
	logger.Info("ticket created", "ticket_key", ticketKey, "issue_type", decision.IssueType, "matched", matched)
	return out, nil
}

func (uc *DispatchEventsUseCase) lookup(ctx context.Context, key domain.NaturalKey, logger *slog.Logger) (string, bool) {
	if uc.guard == nil {
		return "", false
	}
	ticketKey, found, err := uc.guard.Lookup(ctx, key)
	if err != nil {
		logger.Warn("create guard lookup failed, creating ticket", "error", err)
		return "", false
	}
	return ticketKey, found
}

func (uc *DispatchEventsUseCase) ticketFailure(ctx context.Context, cycleID string, row domain.StoredRow, decision domain.Decision, err error, logger *slog.Logger) (domain.Outcome, error) {
	if ctx.Err() != nil {
		return uc.outcome(cycleID, row, decision, domain.OutcomeFailed, err), ctx.Err()
	}
	if errors.Is(err, domain.ErrTicketRejected) {
		logger.Error("ticket system rejected the request", "action", decision.Action, "error", err)
		return uc.outcome(cycleID, row, decision, domain.OutcomeRejected, err), nil
	}
	logger.Error("ticket action failed, row will be retried", "action", decision.Action, "error", err)
	return uc.outcome(cycleID, row, decision, domain.OutcomeFailed, err), nil
}

func (uc *DispatchEventsUseCase) outcome(cycleID string, row domain.StoredRow, decision domain.Decision, status domain.OutcomeStatus, err error) domain.Outcome {
	out := domain.Outcome{
		CycleID:   cycleID,
		Position:  row.Position,
		Key:       row.Key(),
		Action:    decision.Action,
		IssueType: decision.IssueType,
		Status:    status,
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

func (uc *DispatchEventsUseCase) record(out domain.Outcome) {
	if uc.metrics != nil {
		uc.metrics.TicketActions.WithLabelValues(string(out.Action), string(out.Status)).Inc()
	}
	if uc.reporter != nil {
		uc.reporter.Report(out)
	}
}

func sanitizeDecision(d domain.Decision) domain.Decision {
	if d.Action != domain.ActionCreate && d.Action != domain.ActionUpdate {
		d.Action = domain.ActionCreate
	}
	if d.IssueType == "" {
		d.IssueType = domain.DefaultIssueType
	}
	return d
}
