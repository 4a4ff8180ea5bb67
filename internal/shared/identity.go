package shared

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeUsername applies NFKC so visually identical usernames collide on the unique index.
func NormalizeUsername(raw string) string {
	return norm.NFKC.String(strings.TrimSpace(raw))
}

// NormalizeEmail case-folds the address. Casers are stateful, so one is built per call.
func NormalizeEmail(raw string) string {
	return cases.Fold().String(norm.NFKC.String(strings.TrimSpace(raw)))
}
