package oracle

import (
	"strings"

	"github.com/V4T54L/audit-ticketer/internal/domain"
)

var validIssueTypes = map[string]struct{}{
	"Story":   {},
	"Feature": {},
	"Request": {},
	"Bug":     {},
}

// ParseDecision reads the labeled "action:", "type:" and "reason:" lines of a reply.
// The text is lowercased first; missing or invalid fields take the create/Task defaults.
func ParseDecision(text string) domain.Decision {
	d := domain.DefaultDecision()
	for _, line := range strings.Split(strings.ToLower(text), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "action:"):
			d.Action = domain.Action(strings.TrimSpace(strings.TrimPrefix(line, "action:")))
		case strings.HasPrefix(line, "type:"):
			d.IssueType = capitalize(strings.TrimSpace(strings.TrimPrefix(line, "type:")))
		case strings.HasPrefix(line, "reason:"):
			d.Reason = strings.TrimSpace(strings.TrimPrefix(line, "reason:"))
		}
	}

	if d.Action != domain.ActionCreate && d.Action != domain.ActionUpdate {
		d.Action = domain.ActionCreate
	}
	if _, ok := validIssueTypes[d.IssueType]; !ok {
		d.IssueType = domain.DefaultIssueType
	}
	return d
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
