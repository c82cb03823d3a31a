package usecase

import (
	"regexp"

	"github.com/V4T54L/audit-ticketer/internal/domain"
)

// Graph returns array-valued properties as stringified JSON, e.g. `["value"]`.
var arrayQuoting = regexp.MustCompile(`^[\["]+|[\]"]+$`)

// Normalize flattens a raw audit event into an event row with fresh ticket state.
func Normalize(evt domain.AuditEvent) domain.EventRow {
	var ids, names, props []string
	for _, tr := range evt.TargetResources {
		ids = append(ids, tr.ID)
		names = append(names, tr.UserPrincipalName)
		for _, mp := range tr.ModifiedProperties {
			props = append(props, mp.DisplayName+"="+stripArrayQuoting(mp.NewValue))
		}
	}

	return domain.EventRow{
		Timestamp:                    evt.ActivityDateTime,
		Operation:                    evt.ActivityDisplayName,
		Result:                       evt.Result,
		UserPrincipalName:            initiatorName(evt.InitiatedBy),
		Message:                      evt.OperationType + " corrId=" + evt.CorrelationID,
		RiskLevel:                    Classify(evt),
		TicketExists:                 domain.FlagFalse,
		TicketKey:                    "",
		Processed:                    domain.FlagFalse,
		TargetResourceIDs:            ids,
		TargetResourcePrincipalNames: names,
		ModifiedProperties:           props,
	}
}

// initiatorName prefers the human user, then the application.
func initiatorName(in domain.Initiator) string {
	if in.User != nil && in.User.UserPrincipalName != "" {
		return in.User.UserPrincipalName
	}
	if in.App != nil && in.App.DisplayName != "" {
		return in.App.DisplayName
	}
	return ""
}

func stripArrayQuoting(v string) string {
	return arrayQuoting.ReplaceAllString(v, "")
}
