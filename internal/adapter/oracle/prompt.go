package oracle

import (
	"strings"
	"text/template"

	"github.com/V4T54L/audit-ticketer/internal/domain"
)

var promptTemplate = template.Must(template.New("decision").Parse(`Log Entry:
Operation: {{.Operation}}
Result: {{.Result}}
User: {{.UserPrincipalName}}
Message: {{.Message}}
Risk Level: {{.RiskLevel}}
Ticket Already Exists: {{.TicketExists}}

Target Resource IDs: {{.TargetIDs}}
Target Principals: {{.TargetNames}}
Modified Properties: {{.ModifiedProperties}}

1. Should this log trigger:
- a NEW Jira ticket, or
- an UPDATE to an existing ticket?

2. What issue type should this be? Choose one of:
- Story
- Feature
- Request
- Bug

Reply in this format:
action: create or update
type: Story or Feature or Request or Bug
reason: <brief explanation>
`))

type promptData struct {
	domain.EventRow
	TicketExists       string
	TargetIDs          string
	TargetNames        string
	ModifiedProperties string
}

// BuildPrompt renders the decision question for row.
func BuildPrompt(row domain.EventRow) (string, error) {
	data := promptData{
		EventRow:           row,
		TicketExists:       strings.ToLower(strings.TrimSpace(string(row.TicketExists))),
		TargetIDs:          domain.JoinList(row.TargetResourceIDs),
		TargetNames:        domain.JoinList(row.TargetResourcePrincipalNames),
		ModifiedProperties: domain.JoinList(row.ModifiedProperties),
	}
	var b strings.Builder
	if err := promptTemplate.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
