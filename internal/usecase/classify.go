package usecase

import (
	"strings"

	"github.com/V4T54L/audit-ticketer/internal/domain"
)

// Classify assigns a risk tier to a raw audit event. Rules are checked in order and
// missing fields simply fail to match.
func Classify(evt domain.AuditEvent) domain.RiskLevel {
	if strings.EqualFold(evt.Result, "failure") {
		return domain.RiskCritical
	}
	if isMembershipMutation(evt.OperationType) || strings.Contains(evt.ActivityDisplayName, "Password") {
		return domain.RiskHigh
	}
	return domain.RiskLow
}

func isMembershipMutation(operationType string) bool {
	return strings.EqualFold(operationType, "Add") || strings.EqualFold(operationType, "Delete")
}
