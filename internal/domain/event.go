package domain

import "strings"

// RiskLevel is the tier assigned to an audit event by the risk classifier.
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskHigh     RiskLevel = "High"
	RiskCritical RiskLevel = "Critical"
)

// ListSeparator joins multi-valued cells. Values containing it do not round-trip.
const ListSeparator = "|"

// EventRow is one normalized audit event as stored in the event log.
type EventRow struct {
	Timestamp                    string    `json:"timestamp"`
	Operation                    string    `json:"operation"`
	Result                       string    `json:"result"`
	UserPrincipalName            string    `json:"user_principal_name"`
	Message                      string    `json:"message"`
	RiskLevel                    RiskLevel `json:"risk_level"`
	TicketExists                 Flag      `json:"ticket_exists"`
	TicketKey                    string    `json:"ticket_key"`
	Processed                    Flag      `json:"processed"`
	TargetResourceIDs            []string  `json:"target_resource_ids"`
	TargetResourcePrincipalNames []string  `json:"target_resource_principal_names"`
	ModifiedProperties           []string  `json:"modified_properties"`
}

// NaturalKey identifies an event row without a synthetic id. Duplicates are legal.
type NaturalKey struct {
	Timestamp         string `json:"timestamp"`
	UserPrincipalName string `json:"user_principal_name"`
	Operation         string `json:"operation"`
}

// String renders the key for log fields and keystore keys.
func (k NaturalKey) String() string {
	return k.Timestamp + "|" + k.UserPrincipalName + "|" + k.Operation
}

// Key returns the row's natural key.
func (r EventRow) Key() NaturalKey {
	return NaturalKey{Timestamp: r.Timestamp, UserPrincipalName: r.UserPrincipalName, Operation: r.Operation}
}

// Matcher returns the (user_principal_name, operation) pair used to scope ticket state updates.
func (r EventRow) Matcher() StateMatcher {
	return StateMatcher{UserPrincipalName: r.UserPrincipalName, Operation: r.Operation}
}

// JoinList renders a multi-valued cell.
func JoinList(values []string) string {
	return strings.Join(values, ListSeparator)
}

// SplitList parses a multi-valued cell. An empty cell is an empty list.
func SplitList(cell string) []string {
	if cell == "" {
		return nil
	}
	return strings.Split(cell, ListSeparator)
}

// StoredRow is an event row together with its position in the log.
// Positions are stable because rows are never deleted or reordered.
type StoredRow struct {
	Position int `json:"position"`
	EventRow
}

// Ref returns a reference to this row for MarkProcessed.
func (r StoredRow) Ref() RowRef {
	return RowRef{Position: r.Position, Key: r.Key()}
}

// RowRef points at one row in the log. The key is re-checked before the row is touched.
type RowRef struct {
	Position int
	Key      NaturalKey
}

// StateMatcher selects rows for UpdateState.
type StateMatcher struct {
	UserPrincipalName string
	Operation         string
}

// StatePatch holds the state columns to set. Nil fields are left alone.
type StatePatch struct {
	TicketExists *bool
	TicketKey    *string
	Processed    *bool
}

// TicketCreated is the patch applied after a successful ticket creation.
func TicketCreated(key string) StatePatch {
	exists := true
	return StatePatch{TicketExists: &exists, TicketKey: &key}
}

// Apply writes the patch onto the row.
func (p StatePatch) Apply(r *EventRow) {
	if p.TicketExists != nil {
		r.TicketExists = FlagOf(*p.TicketExists)
	}
	if p.TicketKey != nil {
		r.TicketKey = *p.TicketKey
	}
	if p.Processed != nil {
		r.Processed = FlagOf(*p.Processed)
	}
}

// LogStats summarizes the event log for operators.
type LogStats struct {
	Total       int `json:"total"`
	Unprocessed int `json:"unprocessed"`
	Ticketed    int `json:"ticketed"`
}
