package domain

import "context"

// EventLog is the durable store of event rows and their ticket/processed state.
type EventLog interface {
	// Append adds rows to the end of the log as one all-or-nothing write.
	Append(ctx context.Context, rows []EventRow) error

	// ScanUnprocessed returns every row whose processed flag is falsy, in file order.
	ScanUnprocessed(ctx context.Context) ([]StoredRow, error)

	// ScanAll returns every row in file order.
	ScanAll(ctx context.Context) ([]StoredRow, error)

	// UpdateState applies patch to rows matching m whose ticket_exists is still falsy,
	// and returns how many rows were changed. Zero is not an error.
	UpdateState(ctx context.Context, m StateMatcher, patch StatePatch) (int, error)

	// MarkProcessed sets processed=true on the referenced rows.
	MarkProcessed(ctx context.Context, refs []RowRef) (int, error)

	// ResetProcessed clears processed on every row with the given natural key.
	ResetProcessed(ctx context.Context, key NaturalKey) (int, error)
}

// AuditSource fetches the newest raw audit events from the identity provider.
type AuditSource interface {
	Fetch(ctx context.Context, top int) ([]AuditEvent, error)
}

// DecisionOracle chooses a ticket action for a row.
type DecisionOracle interface {
	Decide(ctx context.Context, row EventRow) (Decision, error)
}

// TicketClient creates and updates issue-tracker tickets.
type TicketClient interface {
	Create(ctx context.Context, ticket Ticket) (string, error)
	Update(ctx context.Context, key, description string) error
}

// KeyFilter is the optional natural-key dedup index used before appending.
type KeyFilter interface {
	// Unseen returns the rows whose natural key has not been marked.
	Unseen(ctx context.Context, rows []EventRow) ([]EventRow, error)

	// Mark records the rows' natural keys after a successful append.
	Mark(ctx context.Context, rows []EventRow) error
}

// CreateGuard makes ticket creation idempotent per natural key.
type CreateGuard interface {
	// Lookup returns the ticket key recorded for k, if any.
	Lookup(ctx context.Context, k NaturalKey) (string, bool, error)

	// Record remembers the ticket created for k.
	Record(ctx context.Context, k NaturalKey, ticketKey string) error
}

// OutcomeJournal persists dispatch outcomes for audit.
type OutcomeJournal interface {
	Record(ctx context.Context, outcomes []Outcome) error
}

// OutcomeReporter receives each outcome as soon as it is known.
type OutcomeReporter interface {
	Report(o Outcome)
}

// APIKeyRepository defines the interface for validating API keys.
type APIKeyRepository interface {
	// IsValid checks if the provided API key is valid and active.
	// Implementations should handle caching to reduce database load.
	IsValid(ctx context.Context, key string) (bool, error)
}
