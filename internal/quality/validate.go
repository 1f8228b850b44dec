package quality

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	emailPattern     = regexp.MustCompile(`^[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}$`)
	nonDigit         = regexp.MustCompile(`\D`)
	currencyWords    = regexp.MustCompile(`\b(dollars?|usd|aud|gbp|eur)\b`)
	shorthandNumber  = regexp.MustCompile(`^([+-]?\d+(\.\d+)?)\s*([km])?$`)
	embeddedNumber   = regexp.MustCompile(`[+-]?\d+(\.\d+)?`)
	numberWordSplit  = regexp.MustCompile(`[\s-]+`)
	currencySymbols  = strings.NewReplacer("$", "", "£", "", "€", "", ",", "")
	nullMarkerValues = map[string]bool{"": true, "na": true, "n/a": true, "null": true, "none": true, "nan": true}
)

// DateLayouts are the accepted date layouts, tried in order.
var DateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
	"January 2, 2006",
	"01/02/2006",
	"01-02-2006",
}

// IsNull reports whether a raw value is a null marker
// (empty, NA, N/A, null, None or nan, case-insensitive).
func IsNull(s string) bool {
	return nullMarkerValues[strings.ToLower(strings.TrimSpace(s))]
}

// ValidEmail reports whether s is a well-formed email after trimming and lower-casing.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(strings.ToLower(strings.TrimSpace(s)))
}

// NormalizePhone formats a US phone number as "(555) 123-4567".
// Ten digits, or eleven digits with a leading 1, are accepted.
func NormalizePhone(s string) (string, bool) {
	digits := nonDigit.ReplaceAllString(s, "")
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return "", false
	}
	return "(" + digits[:3] + ") " + digits[3:6] + "-" + digits[6:], true
}

// ValidPhone reports whether s is a US phone number.
func ValidPhone(s string) bool {
	_, ok := NormalizePhone(s)
	return ok
}

// ParseDate parses s with the first matching layout in DateLayouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var (
	unitWords = map[string]float64{
		"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
		"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
		"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
		"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18,
		"nineteen": 19,
	}
	tensWords = map[string]float64{
		"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
		"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
	}
	scaleWords = map[string]float64{
		"hundred": 100, "thousand": 1_000, "million": 1_000_000, "billion": 1_000_000_000,
	}
)

// ParseNumber converts free-form numeric text to a number.
// It accepts plain numbers ("60000", "$60,000"), k/M shorthand ("60k",
// "2.5M"), numbers embedded in text ("approx 60000") and English number
// words ("sixty thousand", "one hundred and twenty-five").
// Currency words such as "dollars" or "usd" are ignored.
func ParseNumber(s string) (float64, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = currencySymbols.Replace(s)
	s = strings.TrimSpace(currencyWords.ReplaceAllString(s, ""))
	if s == "" {
		return 0, false
	}

	if m := shorthandNumber.FindStringSubmatch(s); m != nil {
		base, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false
		}
		switch m[3] {
		case "k":
			return base * 1_000, true
		case "m":
			return base * 1_000_000, true
		}
		return base, true
	}

	if m := embeddedNumber.FindString(s); m != "" {
		v, err := strconv.ParseFloat(m, 64)
		return v, err == nil
	}

	return parseNumberWords(s)
}

func parseNumberWords(s string) (float64, bool) {
	var total, current float64
	matched := false
	for _, w := range numberWordSplit.Split(s, -1) {
		switch {
		case w == "" || w == "and":
			continue
		case unitWords[w] != 0 || w == "zero":
			current += unitWords[w]
		case tensWords[w] != 0:
			current += tensWords[w]
		case scaleWords[w] != 0:
			if current == 0 {
				current = 1
			}
			if w == "hundred" {
				current *= 100
				break
			}
			total += current * scaleWords[w]
			current = 0
		default:
			return 0, false
		}
		matched = true
	}
	if !matched {
		return 0, false
	}
	return total + current, true
}
