package collector

import (
	"math"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapmeta/internal/quality"
	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// Inferred column types.
const (
	TypeInteger = "integer"
	TypeFloat   = "float"
	TypeBoolean = "boolean"
	TypeDate    = "date"
	TypeString  = "string"
	TypeUnknown = "unknown"
)

// maxSamples bounds the distinct sample values kept per column.
const maxSamples = 5

// Profile infers a type and statistics for every column of a table.
// Cells missing from short rows count as nulls. Blank header names become
// column_<n>, and a name repeated case-insensitively gets a _<k> suffix.
// PII columns are flagged and classified confidential.
func Profile(header []string, rows [][]string) []core.Column {
	cols := make([]core.Column, 0, len(header))
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		values := make([]string, len(rows))
		for r, row := range rows {
			if i < len(row) {
				values[r] = row[i]
			}
		}
		name = strings.TrimSpace(name)
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		name = uniqueName(name, seen)
		col := profileColumn(name, values)
		col.Position = i
		cols = append(cols, col)
	}
	return cols
}

// uniqueName returns name, or name_2, name_3... when it is already taken,
// and marks the result as taken.
func uniqueName(name string, seen map[string]bool) string {
	out := name
	for k := 2; seen[strings.ToLower(out)]; k++ {
		out = name + "_" + strconv.Itoa(k)
	}
	seen[strings.ToLower(out)] = true
	return out
}

func profileColumn(name string, values []string) core.Column {
	p := &core.ColumnProfile{Count: int64(len(values))}
	seen := make(map[string]bool)
	var present []string

	for _, v := range values {
		if quality.IsNull(v) {
			p.Nulls++
			continue
		}
		v = strings.TrimSpace(v)
		present = append(present, v)
		if !seen[v] {
			seen[v] = true
			if len(p.SampleValues) < maxSamples {
				p.SampleValues = append(p.SampleValues, v)
			}
		}
	}
	p.Unique = int64(len(seen))

	typ := inferType(present)
	if typ == TypeInteger || typ == TypeFloat {
		numericStats(p, present)
	}

	col := core.Column{
		Name:     strings.TrimSpace(name),
		DataType: typ,
		Nullable: p.Nulls > 0,
		Profile:  p,
	}
	if pii, _ := DetectPII(col.Name, p.SampleValues); pii {
		col.PII = true
		col.Classification = core.ClassConfidential
	}
	return col
}

// inferType returns the narrowest type every value fits, trying integer,
// float, boolean, date, then string.
func inferType(values []string) string {
	if len(values) == 0 {
		return TypeUnknown
	}
	checks := []struct {
		typ string
		ok  func(string) bool
	}{
		{TypeInteger, isInteger},
		{TypeFloat, isFloat},
		{TypeBoolean, isBoolean},
		{TypeDate, isDate},
	}
	for _, c := range checks {
		all := true
		for _, v := range values {
			if !c.ok(v) {
				all = false
				break
			}
		}
		if all {
			return c.typ
		}
	}
	return TypeString
}

func isInteger(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

func isFloat(s string) bool {
	f, err := strconv.ParseFloat(s, 64)
	return err == nil && !math.IsInf(f, 0) && !math.IsNaN(f)
}

func isBoolean(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false":
		return true
	}
	return false
}

func isDate(s string) bool {
	_, ok := quality.ParseDate(s)
	return ok
}

// numericStats fills min, max, mean and sample standard deviation.
func numericStats(p *core.ColumnProfile, values []string) {
	var nums []float64
	for _, v := range values {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			nums = append(nums, f)
		}
	}
	if len(nums) == 0 {
		return
	}

	minV, maxV, sum := nums[0], nums[0], 0.0
	for _, f := range nums {
		minV = math.Min(minV, f)
		maxV = math.Max(maxV, f)
		sum += f
	}
	mean := sum / float64(len(nums))
	p.Min, p.Max, p.Mean = &minV, &maxV, &mean

	if len(nums) > 1 {
		var sq float64
		for _, f := range nums {
			sq += (f - mean) * (f - mean)
		}
		std := math.Sqrt(sq / float64(len(nums)-1))
		p.StdDev = &std
	}
}
