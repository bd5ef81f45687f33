// Package sanitize cleans free-text input before it is persisted or
// echoed back. Spaces are preserved so multi-word names survive intact.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	htmlTags     = regexp.MustCompile(`<[^>]*>`)
	nameAllowed  = regexp.MustCompile(`[^a-zA-Z\s'\-]`)
	nonNumeric   = regexp.MustCompile(`[^0-9.]`)
	campusDomain = regexp.MustCompile(`^[^\s@]+@sst\.scaler\.com$`)
)

var entities = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
)

// Text strips HTML tags and escapes dangerous characters.
func Text(input string) string {
	if input == "" {
		return ""
	}
	return entities.Replace(htmlTags.ReplaceAllString(input, ""))
}

// Name is like Text but additionally restricts the result to letters,
// spaces, hyphens and apostrophes.
func Name(input string) string {
	if input == "" {
		return ""
	}
	cleaned := entities.Replace(htmlTags.ReplaceAllString(input, ""))
	return nameAllowed.ReplaceAllString(cleaned, "")
}

// Numeric keeps only digits and the decimal point.
func Numeric(input string) string {
	return nonNumeric.ReplaceAllString(input, "")
}

// ValidEmail reports whether email belongs to the campus domain. Sign-up
// and sign-in are restricted to this single domain.
func ValidEmail(email string) bool {
	return campusDomain.MatchString(email)
}
