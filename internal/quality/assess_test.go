package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

func customersAsset() *core.Asset {
	a := &core.Asset{ID: "files.raw.customers_csv", Type: core.AssetFile}
	for i, name := range []string{"customer_id", "name", "email", "age"} {
		a.Technical.Columns = append(a.Technical.Columns, core.Column{Name: name, Position: i})
	}
	return a
}

func TestSemanticOf(t *testing.T) {
	tests := map[string]Semantic{
		"email":         SemanticEmail,
		"Contact_Email": SemanticEmail,
		"phone_number":  SemanticPhone,
		"join_date":     SemanticDate,
		"created_at":    SemanticDate,
		"dob":           SemanticDate,
		"age":           SemanticAge,
		"customer_age":  SemanticAge,
		"salary":        SemanticSalary,
		"annual_income": SemanticSalary,
		"name":          SemanticNone,
		"page":          SemanticNone,
	}
	for name, want := range tests {
		assert.Equal(t, want, SemanticOf(name), name)
	}
}

func TestStatus(t *testing.T) {
	assert.Equal(t, core.CheckPass, Status(1))
	assert.Equal(t, core.CheckPass, Status(0.95))
	assert.Equal(t, core.CheckWarn, Status(0.94))
	assert.Equal(t, core.CheckWarn, Status(0.8))
	assert.Equal(t, core.CheckFail, Status(0.79))
}

func TestAssess(t *testing.T) {
	rows := [][]string{
		{"1", "John Doe", "john@example.com", "30"},
		{"2", "Jane Roe", "invalid-email", "thirty five"},
		{"3", "", "jane@example.com", "200"},
		{"3", "Sam", "NA"},
	}

	qm := Assess(customersAsset(), rows)
	require.NotNil(t, qm)

	find := func(name, column string) core.QualityCheck {
		t.Helper()
		for _, c := range qm.Checks {
			if c.Name == name && c.Column == column {
				return c
			}
		}
		t.Fatalf("check %s on %s not found", name, column)
		return core.QualityCheck{}
	}

	assert.Equal(t, 1.0, find(CheckCompleteness, "customer_id").Observed)
	assert.Equal(t, 0.75, find(CheckCompleteness, "name").Observed)
	assert.Equal(t, core.CheckFail, find(CheckCompleteness, "name").Status)
	assert.Equal(t, 0.75, find(CheckCompleteness, "age").Observed, "short rows count as null")

	assert.InDelta(t, 0.6667, find(CheckValidity, "email").Observed, 1e-4)
	assert.InDelta(t, 0.6667, find(CheckValidity, "age").Observed, 1e-4)
	assert.Equal(t, 0.75, find(CheckUniqueness, "customer_id").Observed)

	// name has no semantic kind and is not a key
	for _, c := range qm.Checks {
		if c.Column == "name" {
			assert.Equal(t, CheckCompleteness, c.Name)
		}
	}

	assert.InDelta(t, 0.8125, qm.Completeness, 1e-4)
	assert.InDelta(t, 0.6667, qm.Validity, 1e-4)
	assert.Equal(t, 0.75, qm.Uniqueness)
	assert.InDelta(t, (0.8125+0.6667+0.75)/3, qm.Score, 1e-3)
	assert.GreaterOrEqual(t, qm.Score, 0.0)
	assert.LessOrEqual(t, qm.Score, 1.0)

	s := Summarize(qm)
	assert.Equal(t, len(qm.Checks), s.Pass+s.Warn+s.Fail)
}

func TestAssess_Unmeasured(t *testing.T) {
	a := &core.Asset{Technical: core.TechnicalMetadata{Columns: []core.Column{{Name: "note"}}}}

	qm := Assess(a, [][]string{{"x"}, {"y"}})
	require.NotNil(t, qm)
	assert.Equal(t, 1.0, qm.Completeness)
	assert.Equal(t, 1.0, qm.Validity)
	assert.Equal(t, 1.0, qm.Uniqueness)
	assert.Equal(t, 1.0, qm.Score)

	assert.Nil(t, Assess(a, nil))
	assert.Nil(t, Assess(&core.Asset{}, [][]string{{"x"}}))
	assert.Equal(t, Summary{}, Summarize(nil))
}
