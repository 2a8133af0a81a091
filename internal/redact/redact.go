// Package redact removes personally identifying content from prompts
// before they are sent to an upstream provider.
//
// Three categories are detected independently: email addresses, German
// IBANs (DE prefix, 20 digits) and German phone numbers. Detection runs
// email, then IBAN, then phone. The phone pattern is permissive enough to match
// numeric runs inside the other categories, so it has to run last, after
// those runs have already been replaced.
package redact

import (
	"fmt"
	"regexp"
)

const (
	EmailPlaceholder = "<EMAIL_REMOVED>"
	IBANPlaceholder  = "<IBAN_REMOVED>"
	PhonePlaceholder = "<PHONE_REMOVED>"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	// German IBAN: DE + 2 check digits + 18 digits, optionally grouped
	// in blocks of four.
	ibanPattern = regexp.MustCompile(`\bDE\d{2}(?: ?\d{4}){4} ?\d{2}\b`)

	// German phone numbers: international prefix (+49, 0049), national
	// leading zero, separators space/hyphen/slash or none.
	phonePattern = regexp.MustCompile(`(?:\+49|0049)[ \-/]?[1-9]\d{1,4}(?:[ \-/]?\d{2,8}){1,4}|\b0[1-9]\d{1,4}(?:[ \-/]?\d{2,8}){1,4}\b`)
)

// Sanitize replaces detected PII with category placeholders. All
// non-matched content, including whitespace and punctuation, is
// preserved byte for byte. The second return value reports whether at
// least one category matched.
//
// Sanitize fails open: if detection panics, the original text is
// returned unchanged with piiFound=false. It is pure and safe for
// unbounded concurrent use.
func Sanitize(text string) (string, bool) {
	redacted, piiFound, _ := Try(text)
	return redacted, piiFound
}

// Try is Sanitize with the fail-open condition surfaced, so callers can
// log it at error severity. Availability outranks redaction: even when
// err is non-nil the returned text (the unmodified original) is usable.
func Try(text string) (redacted string, piiFound bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			redacted = text
			piiFound = false
			err = fmt.Errorf("pii detection failed: %v", r)
		}
	}()

	redacted = text

	if emailPattern.MatchString(redacted) {
		redacted = emailPattern.ReplaceAllString(redacted, EmailPlaceholder)
		piiFound = true
	}
	if ibanPattern.MatchString(redacted) {
		redacted = ibanPattern.ReplaceAllString(redacted, IBANPlaceholder)
		piiFound = true
	}
	if phonePattern.MatchString(redacted) {
		redacted = phonePattern.ReplaceAllString(redacted, PhonePlaceholder)
		piiFound = true
	}

	return redacted, piiFound, nil
}
