package mocks

import (
	"context"
	"strconv"
	"sync"

	"github.com/V4T54L/audit-ticketer/internal/domain"
)

// UpdateCall records one UpdateState invocation.
type UpdateCall struct {
	Matcher domain.StateMatcher
	Patch   domain.StatePatch
}

// MockEventLog is an in-memory domain.EventLog that records state mutations.
type MockEventLog struct {
	mu          sync.Mutex
	Rows        []domain.EventRow
	UpdateCalls []UpdateCall
	MarkedRefs  []domain.RowRef
	AppendErr   error
	ScanErr     error
	UpdateErr   error
	MarkErr     error
}

func (m *MockEventLog) Append(ctx context.Context, rows []domain.EventRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.Rows = append(m.Rows, rows...)
	return nil
}

func (m *MockEventLog) ScanUnprocessed(ctx context.Context) ([]domain.StoredRow, error) {
	all, err := m.ScanAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.StoredRow
	for _, row := range all {
		if !row.Processed.Bool() {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *MockEventLog) ScanAll(ctx context.Context) ([]domain.StoredRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ScanErr != nil {
		return nil, m.ScanErr
	}
	out := make([]domain.StoredRow, len(m.Rows))
	for i, row := range m.Rows {
		out[i] = domain.StoredRow{Position: i, EventRow: row}
	}
	return out, nil
}

func (m *MockEventLog) UpdateState(ctx context.Context, matcher domain.StateMatcher, patch domain.StatePatch) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls = append(m.UpdateCalls, UpdateCall{Matcher: matcher, Patch: patch})
	if m.UpdateErr != nil {
		return 0, m.UpdateErr
	}
	n := 0
	for i := range m.Rows {
		row := &m.Rows[i]
		if row.Matcher() == matcher && !row.TicketExists.Bool() {
			patch.Apply(row)
			n++
		}
	}
	return n, nil
}

func (m *MockEventLog) MarkProcessed(ctx context.Context, refs []domain.RowRef) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarkErr != nil {
		return 0, m.MarkErr
	}
	m.MarkedRefs = append(m.MarkedRefs, refs...)
	n := 0
	for _, ref := range refs {
		if ref.Position < len(m.Rows) && m.Rows[ref.Position].Key() == ref.Key && !m.Rows[ref.Position].Processed.Bool() {
			m.Rows[ref.Position].Processed = domain.FlagTrue
			n++
		}
	}
	return n, nil
}

func (m *MockEventLog) ResetProcessed(ctx context.Context, key domain.NaturalKey) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i := range m.Rows {
		if m.Rows[i].Key() == key && m.Rows[i].Processed.Bool() {
			m.Rows[i].Processed = domain.FlagFalse
			n++
		}
	}
	return n, nil
}

// Snapshot returns a copy of the current rows.
func (m *MockEventLog) Snapshot() []domain.EventRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.EventRow(nil), m.Rows...)
}

// MockAuditSource returns canned events.
type MockAuditSource struct {
	mu       sync.Mutex
	Events   []domain.AuditEvent
	FetchErr error
	Tops     []int
}

func (m *MockAuditSource) Fetch(ctx context.Context, top int) ([]domain.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tops = append(m.Tops, top)
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	if top < len(m.Events) {
		return m.Events[:top], nil
	}
	return m.Events, nil
}

// MockOracle returns DecideFunc's result, or Decision/Err.
type MockOracle struct {
	mu         sync.Mutex
	DecideFunc func(row domain.EventRow) (domain.Decision, error)
	Decision   domain.Decision
	Err        error
	Rows       []domain.EventRow
}

func (m *MockOracle) Decide(ctx context.Context, row domain.EventRow) (domain.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Rows = append(m.Rows, row)
	if m.DecideFunc != nil {
		return m.DecideFunc(row)
	}
	return m.Decision, m.Err
}

// UpdatedTicket records one Update call.
type UpdatedTicket struct {
	Key         string
	Description string
}

// MockTicketClient records ticket calls and hands out sequential keys.
type MockTicketClient struct {
	mu        sync.Mutex
	Created   []domain.Ticket
	Updated   []UpdatedTicket
	CreateErr error
	UpdateErr error
	KeyPrefix string
}

func (m *MockTicketClient) Create(ctx context.Context, ticket domain.Ticket) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return "", m.CreateErr
	}
	m.Created = append(m.Created, ticket)
	prefix := m.KeyPrefix
	if prefix == "" {
		prefix = "SEC"
	}
	return prefix + "-" + strconv.Itoa(len(m.Created)), nil
}

func (m *MockTicketClient) Update(ctx context.Context, key, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	m.Updated = append(m.Updated, UpdatedTicket{Key: key, Description: description})
	return nil
}

// CreateCount returns how many tickets were created.
func (m *MockTicketClient) CreateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Created)
}

// MockJournal collects recorded outcomes.
type MockJournal struct {
	mu        sync.Mutex
	Outcomes  []domain.Outcome
	RecordErr error
}

func (m *MockJournal) Record(ctx context.Context, outcomes []domain.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RecordErr != nil {
		return m.RecordErr
	}
	m.Outcomes = append(m.Outcomes, outcomes...)
	return nil
}

// MockReporter collects reported outcomes.
type MockReporter struct {
	mu       sync.Mutex
	Outcomes []domain.Outcome
}

func (m *MockReporter) Report(o domain.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Outcomes = append(m.Outcomes, o)
}

// MockCreateGuard is an in-memory domain.CreateGuard.
type MockCreateGuard struct {
	mu        sync.Mutex
	Keys      map[domain.NaturalKey]string
	LookupErr error
	RecordErr error
}

func (m *MockCreateGuard) Lookup(ctx context.Context, k domain.NaturalKey) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LookupErr != nil {
		return "", false, m.LookupErr
	}
	key, ok := m.Keys[k]
	return key, ok, nil
}

func (m *MockCreateGuard) Record(ctx context.Context, k domain.NaturalKey, ticketKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RecordErr != nil {
		return m.RecordErr
	}
	if m.Keys == nil {
		m.Keys = make(map[domain.NaturalKey]string)
	}
	m.Keys[k] = ticketKey
	return nil
}

// MockKeyFilter is an in-memory domain.KeyFilter.
type MockKeyFilter struct {
	mu        sync.Mutex
	Seen      map[domain.NaturalKey]bool
	UnseenErr error
	MarkErr   error
}

func (m *MockKeyFilter) Unseen(ctx context.Context, rows []domain.EventRow) ([]domain.EventRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UnseenErr != nil {
		return nil, m.UnseenErr
	}
	var out []domain.EventRow
	for _, row := range rows {
		if !m.Seen[row.Key()] {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *MockKeyFilter) Mark(ctx context.Context, rows []domain.EventRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarkErr != nil {
		return m.MarkErr
	}
	if m.Seen == nil {
		m.Seen = make(map[domain.NaturalKey]bool)
	}
	for _, row := range rows {
		m.Seen[row.Key()] = true
	}
	return nil
}
