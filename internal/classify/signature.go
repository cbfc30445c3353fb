package classify

import (
	"regexp"
	"strings"
)

// signatureMaxLen caps signatures so pathological logs cannot blow up the
// dedup cache key.
const signatureMaxLen = 200

var (
	urlRe       = regexp.MustCompile(`https?://[^\s)]+`)
	dateDMYRe   = regexp.MustCompile(`(?i)\b\d{1,2}\s+(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\s+\d{4}\b`)
	dateMDYRe   = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\s+\d{1,2},?\s+\d{4}\b`)
	dateISORe   = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	dateSlashRe = regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`)
	clockRe     = regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}(:\d{2})?\s*(am|pm)?\b`)
	durationRe  = regexp.MustCompile(`(?i)\b\d+\.?\d*\s*(seconds?|minutes?|hours?|milliseconds?|ms)\b`)
	uuidRe      = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	statusRe    = regexp.MustCompile(`\b(30[0-9]|40[0-9]|50[0-9])\b`)
	numericIDRe = regexp.MustCompile(`\b\d{6,}\b`)
	emailRe     = regexp.MustCompile(`(?i)\b[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}\b`)

	// Missing-keys assertion text appears in several shapes; all of them
	// collapse to one canonical signature so key-mismatch failures group
	// together regardless of the API involved.
	actualJSONRe  = regexp.MustCompile(`(?i)actual\s+json\s+doesn['"]?t\s+contain\s+all\s+expected\s+keys`)
	missingKeyRe  = regexp.MustCompile(`(?i)missing\s+keys?`)
	keysListRe    = regexp.MustCompile(`(?i)missing\s+keys:\s*\[[^\]]+\]`)
	expectedHasRe = regexp.MustCompile(`(?i)expected\s+has:\s*['"]?\[[^\]]+\]['"]?`)
)

// Signature normalizes failure text into a dedup key: dynamic values
// (URLs, dates, times, durations, UUIDs, status codes, numeric IDs,
// emails) become placeholders so two failures that differ only in data
// share one classifier call. The stack trace is preferred over the raw
// log because it carries the error, not the narration.
func Signature(logText, stackTrace string) string {
	src := stackTrace
	if strings.TrimSpace(src) == "" {
		src = logText
	}
	s := strings.ToLower(src)

	s = urlRe.ReplaceAllString(s, "[url]")
	s = dateDMYRe.ReplaceAllString(s, "[date]")
	s = dateMDYRe.ReplaceAllString(s, "[date]")
	s = dateISORe.ReplaceAllString(s, "[date]")
	s = dateSlashRe.ReplaceAllString(s, "[date]")
	s = clockRe.ReplaceAllString(s, "[time]")
	s = durationRe.ReplaceAllString(s, "[duration]")
	s = uuidRe.ReplaceAllString(s, "[uuid]")
	s = statusRe.ReplaceAllString(s, "[status_code]")
	s = numericIDRe.ReplaceAllString(s, "[numeric_id]")
	s = emailRe.ReplaceAllString(s, "[email]")

	s = actualJSONRe.ReplaceAllString(s, "missing keys")
	s = missingKeyRe.ReplaceAllString(s, "missing keys")
	s = keysListRe.ReplaceAllString(s, "missing keys: [keys_list]")
	s = expectedHasRe.ReplaceAllString(s, "missing keys: [keys_list]")

	s = strings.Join(strings.Fields(s), " ")

	// All key-mismatch failures share one canonical signature.
	if strings.Contains(s, "missing keys") || strings.Contains(s, "[keys_list]") {
		if strings.Contains(s, "[status_code]") {
			s = "api status code: [status_code], missing keys: [keys_list]"
		} else {
			s = "missing keys: [keys_list]"
		}
	}

	if len(s) > signatureMaxLen {
		s = s[:signatureMaxLen]
	}
	return strings.TrimSpace(s)
}
