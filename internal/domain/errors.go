package domain

import (
	"context"
	"errors"
)

var (
	// ErrTransientIO covers network and auth failures from external APIs. The cycle is
	// aborted and retried on the next poll.
	ErrTransientIO = errors.New("transient io failure")

	// ErrMalformedResponse means an external payload could not be parsed.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrMissingTicketKey is returned when an update is chosen for a row without a ticket.
	ErrMissingTicketKey = errors.New("missing ticket key")

	// ErrTicketRejected is a non-retryable rejection by the issue tracker (a payload the tracker will never accept).
	ErrTicketRejected = errors.New("ticket rejected")

	// ErrStorageUnavailable means the event log could not be read or written.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ErrorKind maps err to a short label for metrics and log fields.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	case errors.Is(err, ErrMissingTicketKey):
		return "missing_ticket_key"
	case errors.Is(err, ErrTicketRejected):
		return "ticket_rejected"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrTransientIO):
		return "transient_io"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unknown"
	}
}
