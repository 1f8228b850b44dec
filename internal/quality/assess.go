package quality

import (
	"strings"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// Thresholds for check status.
const (
	PassThreshold = 0.95
	WarnThreshold = 0.80
)

// Check names.
const (
	CheckCompleteness = "completeness"
	CheckValidity     = "validity"
	CheckUniqueness   = "uniqueness"
)

// Semantic is a value kind inferred from a column name.
type Semantic string

// Known semantic kinds.
const (
	SemanticNone   Semantic = ""
	SemanticEmail  Semantic = "email"
	SemanticPhone  Semantic = "phone"
	SemanticDate   Semantic = "date"
	SemanticAge    Semantic = "age"
	SemanticSalary Semantic = "salary"
)

// SemanticOf guesses the semantic kind of a column from its name.
func SemanticOf(column string) Semantic {
	name := strings.ToLower(column)
	switch {
	case strings.Contains(name, "email"):
		return SemanticEmail
	case strings.Contains(name, "phone"):
		return SemanticPhone
	case strings.Contains(name, "date"), name == "dob", strings.HasSuffix(name, "_at"):
		return SemanticDate
	case name == "age", strings.HasSuffix(name, "_age"):
		return SemanticAge
	case strings.Contains(name, "salary"), strings.Contains(name, "income"):
		return SemanticSalary
	}
	return SemanticNone
}

// Valid reports whether a non-null value is valid for the semantic kind.
func (s Semantic) Valid(v string) bool {
	switch s {
	case SemanticEmail:
		return ValidEmail(v)
	case SemanticPhone:
		return ValidPhone(v)
	case SemanticDate:
		_, ok := ParseDate(v)
		return ok
	case SemanticAge:
		n, ok := ParseNumber(v)
		return ok && n >= 0 && n <= 130
	case SemanticSalary:
		n, ok := ParseNumber(v)
		return ok && n >= 0
	}
	return true
}

// Status maps an observed ratio to a check status.
func Status(observed float64) core.CheckStatus {
	switch {
	case observed >= PassThreshold:
		return core.CheckPass
	case observed >= WarnThreshold:
		return core.CheckWarn
	}
	return core.CheckFail
}

// isKeyColumn reports whether values of the column are expected to be unique.
func isKeyColumn(name string) bool {
	name = strings.ToLower(name)
	return name == "id" || strings.HasSuffix(name, "_id")
}

// Assess measures the quality of rows laid out in the order of a.Technical.Columns.
// Missing trailing cells count as nulls. It returns nil when there are no rows
// or no columns.
//
// Completeness is measured for every column, validity for columns with a
// semantic name, and uniqueness for key columns. Each dimension is averaged
// over the columns that measure it; a dimension no column measures is
// reported as 1 and left out of Score.
func Assess(a *core.Asset, rows [][]string) *core.QualityMetadata {
	cols := a.Technical.Columns
	if len(rows) == 0 || len(cols) == 0 {
		return nil
	}

	qm := &core.QualityMetadata{}
	var sums [3]float64
	var counts [3]int

	for i, col := range cols {
		nonNull := 0
		valid := 0
		seen := make(map[string]bool)
		semantic := SemanticOf(col.Name)

		for _, row := range rows {
			if i >= len(row) || IsNull(row[i]) {
				continue
			}
			v := row[i]
			nonNull++
			seen[v] = true
			if semantic.Valid(v) {
				valid++
			}
		}

		completeness := float64(nonNull) / float64(len(rows))
		qm.Checks = append(qm.Checks, check(CheckCompleteness, col.Name, completeness))
		sums[0] += completeness
		counts[0]++

		if nonNull == 0 {
			continue
		}
		if semantic != SemanticNone {
			validity := float64(valid) / float64(nonNull)
			qm.Checks = append(qm.Checks, check(CheckValidity, col.Name, validity))
			sums[1] += validity
			counts[1]++
		}
		if isKeyColumn(col.Name) {
			uniqueness := float64(len(seen)) / float64(nonNull)
			qm.Checks = append(qm.Checks, check(CheckUniqueness, col.Name, uniqueness))
			sums[2] += uniqueness
			counts[2]++
		}
	}

	dims := [3]*float64{&qm.Completeness, &qm.Validity, &qm.Uniqueness}
	var score float64
	measured := 0
	for d := range dims {
		if counts[d] == 0 {
			*dims[d] = 1
			continue
		}
		*dims[d] = round(sums[d] / float64(counts[d]))
		score += *dims[d]
		measured++
	}
	qm.Score = round(score / float64(measured))
	return qm
}

func check(name, column string, observed float64) core.QualityCheck {
	observed = round(observed)
	return core.QualityCheck{Name: name, Column: column, Status: Status(observed), Observed: observed}
}

// round keeps four decimals so scores are stable when serialized.
func round(v float64) float64 {
	return float64(int64(v*10000+0.5)) / 10000
}

// Summary counts checks by status.
type Summary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// Summarize counts the checks of qm by status. A nil qm gives a zero Summary.
func Summarize(qm *core.QualityMetadata) Summary {
	var s Summary
	if qm == nil {
		return s
	}
	for _, c := range qm.Checks {
		switch c.Status {
		case core.CheckPass:
			s.Pass++
		case core.CheckWarn:
			s.Warn++
		default:
			s.Fail++
		}
	}
	return s
}
