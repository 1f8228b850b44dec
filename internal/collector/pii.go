package collector

import (
	"regexp"
	"strings"

	"github.com/leapstack-labs/leapmeta/internal/quality"
)

// piiKeywords are column-name fragments that indicate personal data.
// Any column whose lower-cased name contains one of them is flagged.
var piiKeywords = []string{"email", "ssn", "phone", "address", "name", "credit_card", "dob", "date_of_birth"}

var (
	ssnPattern   = regexp.MustCompile(`^\d{3}-\d{2}-\d{4}$`)
	phonePattern = regexp.MustCompile(`^\+?1?[\s.-]?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}$`)
)

// DetectPII reports whether a column likely holds personal data, and why.
// The column name is checked against known keywords first; otherwise the
// column is PII when most non-null samples look like emails, US phone
// numbers or SSNs.
func DetectPII(column string, samples []string) (bool, string) {
	name := strings.ToLower(strings.TrimSpace(column))
	for _, kw := range piiKeywords {
		if strings.Contains(name, kw) {
			return true, "name:" + kw
		}
	}

	counts := map[string]int{}
	total := 0
	for _, s := range samples {
		if quality.IsNull(s) {
			continue
		}
		total++
		s = strings.TrimSpace(s)
		switch {
		case quality.ValidEmail(s):
			counts["email"]++
		case ssnPattern.MatchString(s):
			counts["ssn"]++
		case phonePattern.MatchString(s):
			counts["phone"]++
		}
	}
	if total == 0 {
		return false, ""
	}
	for _, kind := range []string{"email", "ssn", "phone"} {
		if counts[kind]*2 > total {
			return true, "value:" + kind
		}
	}
	return false, ""
}
