package importer

import (
	"strings"
	"unicode/utf8"

	"example.com/trackerimport/internal/domain"
)

// ResolveUsername returns username when it is usable, otherwise the safe form
// of fallback. Length is counted in characters. Over-length names are
// recorded on summary when one is given.
func ResolveUsername(username string, summary *ImportSummary, fallback string) string {
	switch {
	case strings.TrimSpace(username) == "":
		return domain.SafeUsername(fallback)
	case utf8.RuneCountInString(username) > domain.MaxUsernameLength:
		if summary != nil {
			summary.AddConflict("Username", usernameConflictValue(username))
		}
		return domain.SafeUsername(fallback)
	default:
		return username
	}
}
