package domain

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func TestStatePatch_Apply(t *testing.T) {
	row := EventRow{TicketExists: FlagFalse, Processed: "no"}

	TicketCreated("SEC-1").Apply(&row)

	if row.TicketExists != FlagTrue {
		t.Errorf("TicketExists = %q, want %q", row.TicketExists, FlagTrue)
	}
	if row.TicketKey != "SEC-1" {
		t.Errorf("TicketKey = %q, want SEC-1", row.TicketKey)
	}
	if row.Processed != "no" {
		t.Errorf("Processed should be untouched, got %q", row.Processed)
	}

	processed := true
	StatePatch{Processed: &processed}.Apply(&row)
	if row.Processed != FlagTrue {
		t.Errorf("Processed = %q, want %q", row.Processed, FlagTrue)
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		cell string
		want []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{"a|b", []string{"a", "b"}},
		{"a||c", []string{"a", "", "c"}},
	}
	for _, tt := range tests {
		got := SplitList(tt.cell)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitList(%q) = %#v, want %#v", tt.cell, got, tt.want)
		}
		if tt.cell != "" && JoinList(got) != tt.cell {
			t.Errorf("JoinList(SplitList(%q)) = %q", tt.cell, JoinList(got))
		}
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{fmt.Errorf("open log: %w", ErrStorageUnavailable), "storage_unavailable"},
		{fmt.Errorf("row: %w", ErrMissingTicketKey), "missing_ticket_key"},
		{fmt.Errorf("jira 400: %w", ErrTicketRejected), "ticket_rejected"},
		{fmt.Errorf("decode: %w", ErrMalformedResponse), "malformed_response"},
		{fmt.Errorf("dial: %w", ErrTransientIO), "transient_io"},
		{errors.New("boom"), "unknown"},
	}
	for _, tt := range tests {
		if got := ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestOutcome_Completed(t *testing.T) {
	for status, want := range map[OutcomeStatus]bool{
		OutcomeCreated:  true,
		OutcomeReused:   true,
		OutcomeUpdated:  true,
		OutcomeRejected: true,
		OutcomeFailed:   false,
		OutcomeSkipped:  false,
	} {
		if got := (Outcome{Status: status}).Completed(); got != want {
			t.Errorf("Outcome{%s}.Completed() = %v, want %v", status, got, want)
		}
	}
}
