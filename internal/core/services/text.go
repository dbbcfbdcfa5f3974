package services

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var (
	amountRe = regexp.MustCompile(
		`(?i)\$\s?\d[\d,]*(?:\.\d+)?(?:\s?(?:k|mm|m|million|thousand|billion|bn)\b)?` +
			`|\b\d[\d,]*(?:\.\d+)?\s?(?:usd|dollars)\b`)

	isoDateRe   = regexp.MustCompile(`\b\d{4}-\d{1,2}-\d{1,2}\b`)
	slashDateRe = regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`)
	monthDateRe = regexp.MustCompile(
		`(?i)\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`)

	properNameRe = regexp.MustCompile(`\b[A-Z][A-Za-z'’.\-]*(?:\s+[A-Z][A-Za-z'’.\-]*)+`)

	possessiveRe = regexp.MustCompile(`(?i)['’]s\b`)

	ordinalRe = regexp.MustCompile(`(?i)(\d)(?:st|nd|rd|th)\b`)
)

var dateLayouts = []string{
	"2006-1-2",
	"1/2/2006",
	"1/2/06",
	"January 2 2006",
	"Jan 2 2006",
}

// normalizeText lower-cases text, drops possessives and apostrophes, and
// replaces other punctuation with spaces. Hyphens inside words are kept.
func normalizeText(s string) string {
	s = possessiveRe.ReplaceAllString(s, "")
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-':
			b.WriteRune(r)
		case r == '\'' || r == '’':
			// dropped: "don't" -> "dont"
		default:
			b.WriteRune(' ')
		}
	}

	fields := strings.Fields(b.String())
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "-")
		if f != "" {
			out = append(out, f)
		}
	}
	return strings.Join(out, " ")
}

// words splits text into normalised words.
func words(s string) []string {
	return strings.Fields(normalizeText(s))
}

// readableKey turns a fact key such as "ein_number" into "ein number".
func readableKey(key string) string {
	return strings.ReplaceAll(key, "_", " ")
}

// findAmounts returns every monetary amount in s, normalised.
func findAmounts(s string) []string {
	matches := amountRe.FindAllString(s, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimRight(m, ",")
		out = append(out, strings.ToLower(strings.Join(strings.Fields(m), "")))
	}
	return out
}

// parseAmount converts a normalised amount to a number, applying
// k/m/thousand/million/billion multipliers.
func parseAmount(s string) (float64, bool) {
	s = strings.ToLower(strings.Join(strings.Fields(s), ""))
	s = strings.TrimPrefix(s, "$")

	multiplier := 1.0
	for _, suffix := range []struct {
		text string
		mult float64
	}{
		{"thousand", 1e3},
		{"million", 1e6},
		{"billion", 1e9},
		{"dollars", 1},
		{"usd", 1},
		{"bn", 1e9},
		{"mm", 1e6},
		{"k", 1e3},
		{"m", 1e6},
	} {
		if strings.HasSuffix(s, suffix.text) {
			s = strings.TrimSuffix(s, suffix.text)
			multiplier = suffix.mult
			break
		}
	}

	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v * multiplier, true
}

// amountsEqual compares two normalised amounts numerically.
func amountsEqual(a, b string) bool {
	x, okX := parseAmount(a)
	y, okY := parseAmount(b)
	return okX && okY && math.Abs(x-y) < 0.005
}

// findDates returns every date in s, lower-cased with collapsed spaces.
func findDates(s string) []string {
	var out []string
	for _, re := range []*regexp.Regexp{isoDateRe, slashDateRe, monthDateRe} {
		for _, m := range re.FindAllString(s, -1) {
			out = append(out, strings.ToLower(strings.Join(strings.Fields(m), " ")))
		}
	}
	return out
}

// stripDatesAndAmounts blanks out every date and amount span.
func stripDatesAndAmounts(s string) string {
	for _, re := range []*regexp.Regexp{isoDateRe, slashDateRe, monthDateRe, amountRe} {
		s = re.ReplaceAllString(s, " ")
	}
	return s
}

// parseDate parses the date formats findDates recognises.
func parseDate(s string) (time.Time, bool) {
	cleaned := strings.NewReplacer(",", " ", ".", " ").Replace(s)
	cleaned = ordinalRe.ReplaceAllString(cleaned, "$1")
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// datesEqual compares two dates by calendar day, falling back to text.
func datesEqual(a, b string) bool {
	x, okX := parseDate(a)
	y, okY := parseDate(b)
	if okX && okY {
		return x.Equal(y)
	}
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// excerpt truncates s to at most limit characters, ending with "..." when cut.
func excerpt(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 3 {
		return string(r[:limit])
	}
	return string(r[:limit-3]) + "..."
}
