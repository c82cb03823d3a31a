package pii

import (
	"strings"

	"github.com/V4T54L/audit-ticketer/internal/domain"
)

const RedactedPlaceholder = "[REDACTED]"

// Redactor masks the values of sensitive modified properties ("key=value" entries).
type Redactor struct {
	fieldsToRedact map[string]struct{} // lowercased property names
}

// NewRedactor creates a new Redactor for the given property names. Matching ignores case.
func NewRedactor(fields []string) *Redactor {
	fieldSet := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		if f := strings.TrimSpace(field); f != "" {
			fieldSet[strings.ToLower(f)] = struct{}{}
		}
	}
	return &Redactor{fieldsToRedact: fieldSet}
}

// Redact returns a copy of row with sensitive property values replaced, and whether
// anything was replaced. The input row is not modified.
func (r *Redactor) Redact(row domain.EventRow) (domain.EventRow, bool) {
	if r == nil || len(r.fieldsToRedact) == 0 || len(row.ModifiedProperties) == 0 {
		return row, false
	}

	redacted := false
	props := make([]string, len(row.ModifiedProperties))
	for i, prop := range row.ModifiedProperties {
		name, _, found := strings.Cut(prop, "=")
		if _, sensitive := r.fieldsToRedact[strings.ToLower(name)]; found && sensitive {
			props[i] = name + "=" + RedactedPlaceholder
			redacted = true
			continue
		}
		props[i] = prop
	}
	if !redacted {
		return row, false
	}
	row.ModifiedProperties = props
	return row, true
}
