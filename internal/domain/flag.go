package domain

import "strings"

// Canonical tokens persisted by writers.
const (
	FlagTrue  Flag = "true"
	FlagFalse Flag = "false"
)

var falsyTokens = map[string]struct{}{
	"false": {},
	"no":    {},
	"0":     {},
	"":      {},
}

// Flag is a tolerant boolean column. Any token outside the falsy set is truthy,
// compared case-insensitively. Surrounding whitespace is not stripped.
type Flag string

// Bool interprets the stored token.
func (f Flag) Bool() bool {
	_, falsy := falsyTokens[strings.ToLower(string(f))]
	return !falsy
}

// FlagOf returns the canonical token for b.
func FlagOf(b bool) Flag {
	if b {
		return FlagTrue
	}
	return FlagFalse
}
