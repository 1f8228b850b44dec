package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAsset() *Asset {
	return &Asset{
		ID:   "warehouse.sales.orders",
		Type: AssetTable,
		Name: "orders",
		Technical: TechnicalMetadata{
			Source: "warehouse",
			Columns: []Column{
				{Name: "order_id", DataType: "integer", Position: 0},
				{Name: "email", DataType: "string", Position: 1, PII: true, Classification: ClassConfidential},
			},
		},
	}
}

func TestAsset_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(a *Asset)
		wantErr string
	}{
		{name: "valid", mutate: func(*Asset) {}},
		{name: "two part id", mutate: func(a *Asset) { a.ID = "files.customers_csv" }},
		{name: "empty id", mutate: func(a *Asset) { a.ID = "" }, wantErr: "id: is required"},
		{name: "upper case id", mutate: func(a *Asset) { a.ID = "Warehouse.Orders" }, wantErr: "must look like"},
		{name: "single segment id", mutate: func(a *Asset) { a.ID = "orders" }, wantErr: "must look like"},
		{name: "unknown type", mutate: func(a *Asset) { a.Type = "cube" }, wantErr: "unknown asset type"},
		{
			name:    "duplicate column",
			mutate:  func(a *Asset) { a.Technical.Columns[1].Name = "ORDER_ID" },
			wantErr: "duplicate column",
		},
		{
			name:    "empty column name",
			mutate:  func(a *Asset) { a.Technical.Columns[0].Name = " " },
			wantErr: "name: is required",
		},
		{
			name:    "negative position",
			mutate:  func(a *Asset) { a.Technical.Columns[0].Position = -1 },
			wantErr: "must not be negative",
		},
		{
			name:    "bad classification",
			mutate:  func(a *Asset) { a.Technical.Columns[0].Classification = "secret" },
			wantErr: "unknown classification",
		},
		{
			name:    "quality score out of range",
			mutate:  func(a *Asset) { a.Quality = &QualityMetadata{Score: 1.5} },
			wantErr: "quality.score",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := validAsset()
			tt.mutate(a)
			err := a.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidAsset))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewAssetID(t *testing.T) {
	tests := []struct {
		source, namespace, name string
		want                    string
	}{
		{"warehouse", "sales", "orders", "warehouse.sales.orders"},
		{"files", "", "customers.csv", "files.customers_csv"},
		{" Lake ", "raw/2024", "Order Items", "lake.raw_2024.order_items"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := NewAssetID(tt.source, tt.namespace, tt.name)
			assert.Equal(t, tt.want, got)
			a := &Asset{ID: got, Type: AssetFile}
			assert.NoError(t, a.Validate())
		})
	}
}

func TestAsset_ColumnHelpers(t *testing.T) {
	a := validAsset()

	col, ok := a.Column("EMAIL")
	require.True(t, ok)
	assert.Equal(t, "email", col.Name)

	_, ok = a.Column("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"email"}, a.PIIColumns())
	assert.Equal(t, ClassConfidential, a.MaxClassification())
}

func TestParseColumnRef(t *testing.T) {
	ref, err := ParseColumnRef("warehouse.sales.orders#email")
	require.NoError(t, err)
	assert.Equal(t, "warehouse.sales.orders", ref.Asset)
	assert.Equal(t, "email", ref.Column)
	assert.Equal(t, "warehouse.sales.orders#email", ref.String())

	for _, bad := range []string{"orders", "#email", "orders#", ""} {
		_, err := ParseColumnRef(bad)
		assert.Error(t, err, bad)
	}
}

func TestMergeStrings(t *testing.T) {
	got := MergeStrings([]string{"pii", "finance"}, nil, []string{"finance", "", "core"})
	assert.Equal(t, []string{"core", "finance", "pii"}, got)
}

func TestMetadataSchema(t *testing.T) {
	var doc map[string]any
	require.NoError(t, json.Unmarshal(MetadataSchema(), &doc))
	assert.Equal(t, "Asset", doc["title"])

	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"id", "type", "technical", "business", "operational", "quality", "lineage"} {
		assert.Contains(t, props, key)
	}

	// Mutating the returned copy must not leak into later calls.
	b := MetadataSchema()
	b[0] = 'x'
	assert.Equal(t, byte('{'), MetadataSchema()[0])
}
