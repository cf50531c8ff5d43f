package util

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeIdentifier canonicalises a login identifier (username, email or
// phone). Emails are lower-cased since the backend matches them
// case-insensitively; usernames keep their case.
func NormalizeIdentifier(s string) string {
	s = strings.TrimSpace(norm.NFKC.String(s))
	if strings.Contains(s, "@") {
		return strings.ToLower(s)
	}
	return s
}
