package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

func TestInferType(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   string
	}{
		{"empty", nil, TypeUnknown},
		{"integers", []string{"1", "-2", "30"}, TypeInteger},
		{"floats", []string{"1.5", "2", "3e2"}, TypeFloat},
		{"booleans", []string{"true", "FALSE"}, TypeBoolean},
		{"dates", []string{"2024-01-02", "2024/03/04", "March 5, 2024"}, TypeDate},
		{"strings", []string{"abc", "1"}, TypeString},
		{"nan is not a float", []string{"1.0", "NaN"}, TypeString},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, inferType(tt.values))
		})
	}
}

func TestProfile(t *testing.T) {
	header := []string{"customer_id", "email", "age", ""}
	rows := [][]string{
		{"1", "a@example.com", "30", "x"},
		{"2", "N/A", "40", "y"},
		{"3", "b@example.com", "", "x"},
		{"3", "c@example.com", "50"},
	}

	cols := Profile(header, rows)
	require.Len(t, cols, 4)

	id := cols[0]
	assert.Equal(t, "customer_id", id.Name)
	assert.Equal(t, TypeInteger, id.DataType)
	assert.False(t, id.Nullable)
	assert.Equal(t, 0, id.Position)
	require.NotNil(t, id.Profile)
	assert.EqualValues(t, 4, id.Profile.Count)
	assert.EqualValues(t, 3, id.Profile.Unique)
	require.NotNil(t, id.Profile.Min)
	assert.InDelta(t, 1.0, *id.Profile.Min, 1e-9)
	assert.InDelta(t, 3.0, *id.Profile.Max, 1e-9)
	assert.InDelta(t, 2.25, *id.Profile.Mean, 1e-9)
	require.NotNil(t, id.Profile.StdDev)
	assert.InDelta(t, 0.9574, *id.Profile.StdDev, 1e-4)
	assert.False(t, id.PII)

	email := cols[1]
	assert.Equal(t, TypeString, email.DataType)
	assert.True(t, email.Nullable)
	assert.EqualValues(t, 1, email.Profile.Nulls)
	assert.True(t, email.PII)
	assert.Equal(t, core.ClassConfidential, email.Classification)
	assert.Nil(t, email.Profile.Min)

	age := cols[2]
	assert.Equal(t, TypeInteger, age.DataType)
	assert.EqualValues(t, 1, age.Profile.Nulls)
	assert.InDelta(t, 40.0, *age.Profile.Mean, 1e-9)

	blank := cols[3]
	assert.Equal(t, "column_4", blank.Name)
	assert.EqualValues(t, 1, blank.Profile.Nulls, "short row counts as null")
	assert.Equal(t, []string{"x", "y"}, blank.Profile.SampleValues)
}

func TestProfile_SampleLimit(t *testing.T) {
	var rows [][]string
	for _, v := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		rows = append(rows, []string{v})
	}
	cols := Profile([]string{"letter"}, rows)
	require.Len(t, cols, 1)
	assert.Len(t, cols[0].Profile.SampleValues, maxSamples)
	assert.EqualValues(t, 7, cols[0].Profile.Unique)
	assert.Nil(t, cols[0].Profile.StdDev)
}

func TestProfile_DuplicateNames(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		want   []string
	}{
		{"exact repeat", []string{"id", "amount", "id"}, []string{"id", "amount", "id_2"}},
		{"case only", []string{"Email", "email"}, []string{"Email", "email_2"}},
		{"three times", []string{"x", "X", "x"}, []string{"x", "X_2", "x_3"}},
		{"suffix already taken", []string{"id", "id_2", "id"}, []string{"id", "id_2", "id_3"}},
		{"padded repeat", []string{"id", " id "}, []string{"id", "id_2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cols := Profile(tt.header, nil)
			var names []string
			for _, c := range cols {
				names = append(names, c.Name)
			}
			assert.Equal(t, tt.want, names)
			a := core.Asset{ID: "lake.raw.t", Type: core.AssetFile, Technical: core.TechnicalMetadata{Columns: cols}}
			assert.NoError(t, a.Validate())
		})
	}
}
