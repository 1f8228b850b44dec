package core

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// AssetType classifies a catalogued data asset.
type AssetType string

// Known asset types.
const (
	AssetTable   AssetType = "table"
	AssetView    AssetType = "view"
	AssetFile    AssetType = "file"
	AssetDataset AssetType = "dataset"
	AssetReport  AssetType = "report"
	AssetObject  AssetType = "object"
)

// AssetTypes lists every known asset type in display order.
var AssetTypes = []AssetType{AssetTable, AssetView, AssetFile, AssetDataset, AssetReport, AssetObject}

// Valid reports whether t is a known asset type.
func (t AssetType) Valid() bool {
	for _, known := range AssetTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Classification is the sensitivity level of an asset or column.
type Classification string

// Known classifications, least to most sensitive.
const (
	ClassPublic       Classification = "public"
	ClassInternal     Classification = "internal"
	ClassConfidential Classification = "confidential"
	ClassRestricted   Classification = "restricted"
)

// Valid reports whether c is empty or a known classification.
func (c Classification) Valid() bool {
	switch c {
	case "", ClassPublic, ClassInternal, ClassConfidential, ClassRestricted:
		return true
	}
	return false
}

// Rank orders classifications; higher is more sensitive.
func (c Classification) Rank() int {
	switch c {
	case ClassPublic:
		return 1
	case ClassInternal:
		return 2
	case ClassConfidential:
		return 3
	case ClassRestricted:
		return 4
	}
	return 0
}

// Criticality expresses business importance of an asset.
type Criticality string

// Known criticality levels.
const (
	CriticalityLow    Criticality = "low"
	CriticalityMedium Criticality = "medium"
	CriticalityHigh   Criticality = "high"
)

// Format is the physical format of a file-like asset.
type Format string

// Known formats. The file categories follow the organize-by-extension layout
// (json, csv, text, images, other).
const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatNDJSON  Format = "ndjson"
	FormatParquet Format = "parquet"
	FormatText    Format = "text"
	FormatImage   Format = "image"
	FormatOther   Format = "other"
)

// TagStale marks assets that the latest collection of their source did not see.
const TagStale = "stale"

// Asset is the unit of metadata in the catalog.
type Asset struct {
	ID          string              `json:"id"`
	Type        AssetType           `json:"type"`
	Name        string              `json:"name"`
	Technical   TechnicalMetadata   `json:"technical"`
	Business    BusinessMetadata    `json:"business"`
	Operational OperationalMetadata `json:"operational"`
	Quality     *QualityMetadata    `json:"quality,omitempty"`
	Lineage     LineageRefs         `json:"lineage"`
}

// TechnicalMetadata describes the physical shape of an asset.
type TechnicalMetadata struct {
	Source      string   `json:"source"`
	Location    string   `json:"location,omitempty"`
	Format      Format   `json:"format,omitempty"`
	SizeBytes   int64    `json:"size_bytes,omitempty"`
	RowCount    int64    `json:"row_count,omitempty"`
	Checksum    string   `json:"checksum,omitempty"`
	ContentType string   `json:"content_type,omitempty"`
	Columns     []Column `json:"columns,omitempty"`
}

// Column describes one field of a tabular asset.
type Column struct {
	Name           string         `json:"name"`
	DataType       string         `json:"data_type"`
	Nullable       bool           `json:"nullable"`
	Position       int            `json:"position"`
	Description    string         `json:"description,omitempty"`
	Classification Classification `json:"classification,omitempty"`
	PII            bool           `json:"pii"`
	Tags           []string       `json:"tags,omitempty"`
	GlossaryTerms  []string       `json:"glossary_terms,omitempty"`
	Profile        *ColumnProfile `json:"profile,omitempty"`
}

// ColumnProfile holds statistics gathered while profiling column values.
// Min, Max, Mean and StdDev are only set for numeric columns.
type ColumnProfile struct {
	Count        int64    `json:"count"`
	Nulls        int64    `json:"nulls"`
	Unique       int64    `json:"unique"`
	Min          *float64 `json:"min,omitempty"`
	Max          *float64 `json:"max,omitempty"`
	Mean         *float64 `json:"mean,omitempty"`
	StdDev       *float64 `json:"std_dev,omitempty"`
	SampleValues []string `json:"sample_values,omitempty"`
}

// BusinessMetadata captures ownership and meaning.
type BusinessMetadata struct {
	Owner         string      `json:"owner,omitempty"`
	Steward       string      `json:"steward,omitempty"`
	Domain        string      `json:"domain,omitempty"`
	Description   string      `json:"description,omitempty"`
	Tags          []string    `json:"tags,omitempty"`
	GlossaryTerms []string    `json:"glossary_terms,omitempty"`
	Criticality   Criticality `json:"criticality,omitempty"`
}

// OperationalMetadata records when and how an asset was observed.
type OperationalMetadata struct {
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	CollectedAt     time.Time `json:"collected_at"`
	RefreshSchedule string    `json:"refresh_schedule,omitempty"`
	RunID           string    `json:"run_id,omitempty"`
}

// QualityMetadata summarizes quality measurements for an asset.
type QualityMetadata struct {
	Score        float64        `json:"score"`
	Completeness float64        `json:"completeness"`
	Validity     float64        `json:"validity"`
	Uniqueness   float64        `json:"uniqueness"`
	Checks       []QualityCheck `json:"checks,omitempty"`
}

// CheckStatus is the outcome of a single quality check.
type CheckStatus string

// Check outcomes.
const (
	CheckPass CheckStatus = "pass"
	CheckWarn CheckStatus = "warn"
	CheckFail CheckStatus = "fail"
)

// QualityCheck is one measured quality dimension on one column.
type QualityCheck struct {
	Name     string      `json:"name"`
	Column   string      `json:"column"`
	Status   CheckStatus `json:"status"`
	Observed float64     `json:"observed"`
}

// LineageRefs lists the direct neighbours of an asset. It is derived from
// the lineage graph and never treated as the source of truth.
type LineageRefs struct {
	Upstream   []string `json:"upstream,omitempty"`
	Downstream []string `json:"downstream,omitempty"`
}

var (
	assetIDPattern = regexp.MustCompile(`^[a-z0-9_\-]+(\.[a-z0-9_\-]+){1,2}$`)
	idUnsafe       = regexp.MustCompile(`[^a-z0-9_\-]`)
)

// NewAssetID builds a normalized asset ID from its parts.
// An empty namespace yields "<source>.<name>".
func NewAssetID(source, namespace, name string) string {
	parts := []string{normalizeIDPart(source)}
	if ns := normalizeIDPart(namespace); ns != "" {
		parts = append(parts, ns)
	}
	parts = append(parts, normalizeIDPart(name))
	return strings.Join(parts, ".")
}

func normalizeIDPart(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return idUnsafe.ReplaceAllString(s, "_")
}

// SourceOf returns the source segment of an asset ID.
func SourceOf(id string) string {
	if i := strings.IndexByte(id, '.'); i >= 0 {
		return id[:i]
	}
	return id
}

// Validate checks the structural invariants of an asset.
func (a *Asset) Validate() error {
	verr := &ValidationError{AssetID: a.ID}

	switch {
	case a.ID == "":
		verr.add("id", "is required")
	case !assetIDPattern.MatchString(a.ID):
		verr.add("id", fmt.Sprintf("%q must look like source.namespace.name", a.ID))
	}
	if !a.Type.Valid() {
		verr.add("type", fmt.Sprintf("unknown asset type %q", a.Type))
	}

	seen := make(map[string]bool, len(a.Technical.Columns))
	for i, col := range a.Technical.Columns {
		field := fmt.Sprintf("technical.columns[%d]", i)
		if strings.TrimSpace(col.Name) == "" {
			verr.add(field+".name", "is required")
			continue
		}
		key := strings.ToLower(col.Name)
		if seen[key] {
			verr.add(field+".name", fmt.Sprintf("duplicate column %q", col.Name))
		}
		seen[key] = true
		if col.Position < 0 {
			verr.add(field+".position", "must not be negative")
		}
		if !col.Classification.Valid() {
			verr.add(field+".classification", fmt.Sprintf("unknown classification %q", col.Classification))
		}
	}

	if a.Quality != nil && (a.Quality.Score < 0 || a.Quality.Score > 1) {
		verr.add("quality.score", "must be within [0,1]")
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// Column looks up a column by name, case-insensitively.
func (a *Asset) Column(name string) (*Column, bool) {
	for i := range a.Technical.Columns {
		if strings.EqualFold(a.Technical.Columns[i].Name, name) {
			return &a.Technical.Columns[i], true
		}
	}
	return nil, false
}

// PIIColumns returns the sorted names of columns flagged as PII.
func (a *Asset) PIIColumns() []string {
	var cols []string
	for _, c := range a.Technical.Columns {
		if c.PII {
			cols = append(cols, c.Name)
		}
	}
	sort.Strings(cols)
	return cols
}

// HasTag reports whether the asset carries the given business tag.
func (a *Asset) HasTag(tag string) bool {
	for _, t := range a.Business.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// MaxClassification returns the most sensitive column classification.
func (a *Asset) MaxClassification() Classification {
	var out Classification
	for _, c := range a.Technical.Columns {
		if c.Classification.Rank() > out.Rank() {
			out = c.Classification
		}
	}
	return out
}

// MergeStrings returns the sorted union of the given string sets,
// without empty entries.
func MergeStrings(sets ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, set := range sets {
		for _, s := range set {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
