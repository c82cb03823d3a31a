package usecase

import (
	"fmt"

	"github.com/V4T54L/audit-ticketer/internal/domain"
)

// UpdatePrefix marks descriptions written by an update.
const UpdatePrefix = "[UPDATE]"

// NewTicket builds the ticket created for a row.
func NewTicket(row domain.EventRow, decision domain.Decision) domain.Ticket {
	return domain.Ticket{
		Summary:     fmt.Sprintf("[%s] - %s", row.Operation, row.UserPrincipalName),
		Description: describe(row, decision),
		IssueType:   decision.IssueType,
	}
}

// UpdateDescription builds the replacement description sent on update.
func UpdateDescription(row domain.EventRow, decision domain.Decision) string {
	return UpdatePrefix + "\n" + describe(row, decision)
}

func describe(row domain.EventRow, decision domain.Decision) string {
	return fmt.Sprintf("Log Message: %s\nRisk Level: %s\nExplanation: %s", row.Message, row.RiskLevel, decision.Reason)
}
