package domain

// Action is the ticket lifecycle step chosen for a row.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// DefaultIssueType is used when the oracle names no valid category.
const DefaultIssueType = "Task"

// Decision is the oracle's verdict for one row.
type Decision struct {
	Action    Action `json:"action"`
	IssueType string `json:"type"`
	Reason    string `json:"reason"`
}

// DefaultDecision is the safe fallback for failed or unparseable oracle calls.
func DefaultDecision() Decision {
	return Decision{Action: ActionCreate, IssueType: DefaultIssueType}
}

// Ticket is the content sent to the issue tracker.
type Ticket struct {
	Summary     string
	Description string
	IssueType   string
}

// OutcomeStatus is the per-row result of a dispatch pass.
type OutcomeStatus string

const (
	OutcomeCreated OutcomeStatus = "created"
	OutcomeReused  OutcomeStatus = "reused"
	OutcomeUpdated OutcomeStatus = "updated"
	OutcomeFailed  OutcomeStatus = "failed"
	OutcomeSkipped OutcomeStatus = "skipped"

	// OutcomeRejected is a definitive, non-retryable ticket failure.
	OutcomeRejected OutcomeStatus = "rejected"
)

// Outcome records what happened to one row during a dispatch pass.
type Outcome struct {
	CycleID   string        `json:"cycle_id"`
	Position  int           `json:"position"`
	Key       NaturalKey    `json:"key"`
	Action    Action        `json:"action"`
	IssueType string        `json:"issue_type"`
	TicketKey string        `json:"ticket_key,omitempty"`
	Status    OutcomeStatus `json:"status"`
	Error     string        `json:"error,omitempty"`
	// Matched is the number of rows whose ticket state was written after a create.
	Matched int `json:"matched"`
}

// Completed reports whether the row may be marked processed.
func (o Outcome) Completed() bool {
	switch o.Status {
	case OutcomeCreated, OutcomeReused, OutcomeUpdated, OutcomeRejected:
		return true
	}
	return false
}
