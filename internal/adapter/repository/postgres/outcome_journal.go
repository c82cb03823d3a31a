package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/V4T54L/audit-ticketer/internal/domain"
)

const outcomesTableName = "dispatch_outcomes"

// Schema creates the tables used by the journal and the API key repository.
const Schema = `
CREATE TABLE IF NOT EXISTS dispatch_outcomes (
	cycle_id            TEXT        NOT NULL,
	position            INTEGER     NOT NULL,
	event_timestamp     TEXT        NOT NULL,
	user_principal_name TEXT        NOT NULL,
	operation           TEXT        NOT NULL,
	action              TEXT        NOT NULL,
	issue_type          TEXT        NOT NULL,
	ticket_key          TEXT        NOT NULL DEFAULT '',
	status              TEXT        NOT NULL,
	error               TEXT        NOT NULL DEFAULT '',
	recorded_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (cycle_id, position)
);
CREATE TABLE IF NOT EXISTS api_keys (
	key        TEXT PRIMARY KEY,
	is_active  BOOLEAN NOT NULL DEFAULT true,
	expires_at TIMESTAMPTZ
);`

// OutcomeJournal implements domain.OutcomeJournal on PostgreSQL.
type OutcomeJournal struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewOutcomeJournal creates a new PostgreSQL outcome journal.
func NewOutcomeJournal(db *sql.DB, logger *slog.Logger) *OutcomeJournal {
	return &OutcomeJournal{db: db, logger: logger.With("component", "outcome_journal")}
}

// EnsureSchema creates the journal tables if they are missing.
func (j *OutcomeJournal) EnsureSchema(ctx context.Context) error {
	if _, err := j.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Record writes a cycle's outcomes with the COPY protocol in one transaction. Outcomes
// already journaled for the same (cycle_id, position) are ignored.
func (j *OutcomeJournal) Record(ctx context.Context, outcomes []domain.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	txn, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer txn.Rollback() // no-op after Commit

	tempTableName := "dispatch_outcomes_import"
	_, err = txn.ExecContext(ctx, `CREATE TEMP TABLE `+tempTableName+` (LIKE `+outcomesTableName+` INCLUDING DEFAULTS) ON COMMIT DROP;`)
	if err != nil {
		return fmt.Errorf("create staging table: %w", err)
	}

	stmt, err := txn.PrepareContext(ctx, pq.CopyIn(tempTableName,
		"cycle_id", "position", "event_timestamp", "user_principal_name", "operation",
		"action", "issue_type", "ticket_key", "status", "error"))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}

	for _, o := range outcomes {
		_, err = stmt.ExecContext(ctx, o.CycleID, o.Position, o.Key.Timestamp, o.Key.UserPrincipalName, o.Key.Operation,
			string(o.Action), o.IssueType, o.TicketKey, string(o.Status), o.Error)
		if err != nil {
			_ = stmt.Close()
			return fmt.Errorf("copy outcome: %w", err)
		}
	}
	// Flush buffered rows.
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close copy: %w", err)
	}

	_, err = txn.ExecContext(ctx, `
		INSERT INTO `+outcomesTableName+` (cycle_id, position, event_timestamp, user_principal_name, operation, action, issue_type, ticket_key, status, error)
		SELECT cycle_id, position, event_timestamp, user_principal_name, operation, action, issue_type, ticket_key, status, error FROM `+tempTableName+`
		ON CONFLICT (cycle_id, position) DO NOTHING;`)
	if err != nil {
		return fmt.Errorf("merge outcomes: %w", err)
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("commit outcomes: %w", err)
	}
	j.logger.Debug("journaled dispatch outcomes", "count", len(outcomes))
	return nil
}
