// Package impact estimates the downstream effect of changing an asset or
// one of its columns.
package impact

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapmeta/internal/dag"
	"github.com/leapstack-labs/leapmeta/internal/lineage"
	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// ChangeType is the kind of change being analyzed.
type ChangeType string

// Known change types.
const (
	ChangeDropAsset    ChangeType = "drop_asset"
	ChangeDropColumn   ChangeType = "drop_column"
	ChangeRenameColumn ChangeType = "rename_column"
	ChangeTypeChange   ChangeType = "type_change"
	ChangeSchema       ChangeType = "schema_change"
	ChangeData         ChangeType = "data_change"
)

// ChangeTypes lists every change type.
var ChangeTypes = []ChangeType{
	ChangeDropAsset, ChangeDropColumn, ChangeRenameColumn,
	ChangeTypeChange, ChangeSchema, ChangeData,
}

// ParseChangeType parses a change type name.
func ParseChangeType(s string) (ChangeType, error) {
	ct := ChangeType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range ChangeTypes {
		if ct == known {
			return ct, nil
		}
	}
	names := make([]string, len(ChangeTypes))
	for i, known := range ChangeTypes {
		names[i] = string(known)
	}
	return "", fmt.Errorf("unknown change type %q (want one of %s)", s, strings.Join(names, ", "))
}

// ColumnLevel reports whether the change targets a single column.
func (c ChangeType) ColumnLevel() bool {
	switch c {
	case ChangeDropColumn, ChangeRenameColumn, ChangeTypeChange:
		return true
	}
	return false
}

// weight is the base severity score of a change type.
func (c ChangeType) weight() int {
	switch c {
	case ChangeDropAsset, ChangeDropColumn:
		return 3
	case ChangeRenameColumn, ChangeTypeChange, ChangeSchema:
		return 2
	}
	return 1
}

// Severity grades the impact of a change.
type Severity string

// Severities, least to most severe.
const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

func severityOf(score int) Severity {
	switch {
	case score <= 0:
		return SeverityNone
	case score == 1:
		return SeverityLow
	case score == 2:
		return SeverityMedium
	case score <= 4:
		return SeverityHigh
	}
	return SeverityCritical
}

// Change describes a proposed change.
type Change struct {
	Target string     `json:"target"`
	Column string     `json:"column,omitempty"`
	Type   ChangeType `json:"type"`
	// MaxDepth bounds the downstream search; <= 0 means unlimited.
	MaxDepth int `json:"max_depth,omitempty"`
}

// AffectedAsset is one downstream asset reached by a change.
type AffectedAsset struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Type        core.AssetType   `json:"type"`
	Distance    int              `json:"distance"`
	Path        []string         `json:"path"`
	Owner       string           `json:"owner,omitempty"`
	Criticality core.Criticality `json:"criticality,omitempty"`
	Columns     []string         `json:"columns,omitempty"`
	PII         bool             `json:"pii"`
}

// Report is the result of Analyze.
type Report struct {
	Change          Change          `json:"change"`
	Affected        []AffectedAsset `json:"affected"`
	Severity        Severity        `json:"severity"`
	Score           int             `json:"score"`
	Owners          []string        `json:"owners"`
	Reports         []string        `json:"reports,omitempty"`
	PII             bool            `json:"pii"`
	Recommendations []string        `json:"recommendations"`
}

// Graph is the lineage view Analyze needs. *lineage.Tracker satisfies it.
type Graph interface {
	Asset(id string) (*core.Asset, bool)
	Downstream(id string, depth int) ([]lineage.Hop, error)
	TraceColumn(ref core.ColumnRef, dir dag.Direction, depth int) ([]lineage.ColumnHop, error)
	Path(from, to string) ([]string, error)
}

// Analyze computes the downstream impact of c.
func Analyze(g Graph, c Change) (*Report, error) {
	if c.Type == "" {
		c.Type = ChangeSchema
	}
	if _, err := ParseChangeType(string(c.Type)); err != nil {
		return nil, err
	}
	target, ok := g.Asset(c.Target)
	if !ok {
		return nil, fmt.Errorf("asset %q: %w", c.Target, core.ErrNotFound)
	}
	if c.Type.ColumnLevel() && c.Column == "" {
		return nil, fmt.Errorf("change %s needs a column", c.Type)
	}

	r := &Report{Change: c, Affected: []AffectedAsset{}, Owners: []string{}}

	var err error
	if c.Type.ColumnLevel() {
		err = r.columnImpact(g, target)
	} else {
		err = r.assetImpact(g, target)
	}
	if err != nil {
		return nil, err
	}

	sort.SliceStable(r.Affected, func(i, j int) bool {
		if r.Affected[i].Distance != r.Affected[j].Distance {
			return r.Affected[i].Distance < r.Affected[j].Distance
		}
		return r.Affected[i].ID < r.Affected[j].ID
	})

	var owners []string
	for _, a := range r.Affected {
		owners = append(owners, a.Owner)
		if a.Type == core.AssetReport {
			r.Reports = append(r.Reports, a.ID)
		}
		if a.PII {
			r.PII = true
		}
	}
	r.Owners = core.MergeStrings(owners)
	if r.Owners == nil {
		r.Owners = []string{}
	}

	r.score()
	r.recommend()
	return r, nil
}

func (r *Report) assetImpact(g Graph, target *core.Asset) error {
	hops, err := g.Downstream(target.ID, r.Change.MaxDepth)
	if err != nil {
		return err
	}
	if len(target.PIIColumns()) > 0 {
		r.PII = true
	}
	for _, h := range hops {
		a, ok := g.Asset(h.ID)
		if !ok {
			continue
		}
		aa, err := affected(g, target.ID, a, h.Depth)
		if err != nil {
			return err
		}
		aa.PII = len(a.PIIColumns()) > 0
		r.Affected = append(r.Affected, aa)
	}
	return nil
}

func (r *Report) columnImpact(g Graph, target *core.Asset) error {
	ref := core.ColumnRef{Asset: target.ID, Column: r.Change.Column}
	if col, ok := target.Column(ref.Column); ok {
		ref.Column = col.Name
		r.Change.Column = col.Name
		r.PII = col.PII
	}
	hops, err := g.TraceColumn(ref, dag.Downstream, r.Change.MaxDepth)
	if err != nil {
		return err
	}

	byAsset := make(map[string]*AffectedAsset)
	var order []string
	for _, h := range hops {
		a, ok := g.Asset(h.Ref.Asset)
		if !ok || a.ID == target.ID {
			continue
		}
		aa, seen := byAsset[a.ID]
		if !seen {
			v, err := affected(g, target.ID, a, h.Depth)
			if err != nil {
				return err
			}
			aa = &v
			byAsset[a.ID] = aa
			order = append(order, a.ID)
		}
		aa.Distance = min(aa.Distance, h.Depth)
		aa.Columns = core.MergeStrings(aa.Columns, []string{h.Ref.Column})
		if col, ok := a.Column(h.Ref.Column); ok && col.PII {
			aa.PII = true
		}
	}
	for _, id := range order {
		r.Affected = append(r.Affected, *byAsset[id])
	}
	return nil
}

func affected(g Graph, from string, a *core.Asset, depth int) (AffectedAsset, error) {
	path, err := g.Path(from, a.ID)
	if err != nil && !errors.Is(err, lineage.ErrNoPath) {
		return AffectedAsset{}, err
	}
	return AffectedAsset{
		ID:          a.ID,
		Name:        a.Name,
		Type:        a.Type,
		Distance:    depth,
		Path:        path,
		Owner:       a.Business.Owner,
		Criticality: a.Business.Criticality,
	}, nil
}

// score grades the report. Nothing downstream means no impact; otherwise
// the change weight is raised for breadth, reports, critical assets and PII.
func (r *Report) score() {
	if len(r.Affected) == 0 {
		r.Score = 0
		r.Severity = SeverityNone
		return
	}
	score := r.Change.Type.weight()
	switch n := len(r.Affected); {
	case n >= 10:
		score += 2
	case n >= 3:
		score++
	}
	if len(r.Reports) > 0 {
		score++
	}
	if len(r.highCriticality()) > 0 {
		score++
	}
	if r.PII {
		score++
	}
	r.Score = score
	r.Severity = severityOf(score)
}

func (r *Report) highCriticality() []string {
	var ids []string
	for _, a := range r.Affected {
		if a.Criticality == core.CriticalityHigh {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

func (r *Report) recommend() {
	c := r.Change
	subject := c.Target
	if c.Type.ColumnLevel() {
		subject = core.ColumnRef{Asset: c.Target, Column: c.Column}.String()
	}

	if len(r.Affected) == 0 {
		r.Recommendations = []string{fmt.Sprintf("No downstream assets depend on %s; the change can be applied directly.", subject)}
		return
	}

	ids := make([]string, len(r.Affected))
	for i, a := range r.Affected {
		ids[i] = a.ID
	}

	var recs []string
	switch c.Type {
	case ChangeDropAsset:
		recs = append(recs, fmt.Sprintf("Repoint %d downstream asset(s) to another source before dropping %s.", len(ids), subject))
	case ChangeDropColumn:
		recs = append(recs, fmt.Sprintf("Remove or replace reads of %s in: %s.", subject, strings.Join(ids, ", ")))
	case ChangeRenameColumn:
		recs = append(recs, fmt.Sprintf("Update column mappings that read %s, or keep the old name as an alias during migration.", subject))
	case ChangeTypeChange:
		recs = append(recs, fmt.Sprintf("Check casts, joins and comparisons on %s in downstream jobs.", subject))
	case ChangeSchema:
		recs = append(recs, fmt.Sprintf("Run downstream jobs against the new schema of %s in staging first.", subject))
	case ChangeData:
		recs = append(recs, "Re-run quality checks on downstream assets after the change lands.")
	}
	if len(r.Reports) > 0 {
		recs = append(recs, fmt.Sprintf("Warn consumers of %d report(s): %s.", len(r.Reports), strings.Join(r.Reports, ", ")))
	}
	if high := r.highCriticality(); len(high) > 0 {
		recs = append(recs, fmt.Sprintf("Schedule a maintenance window; high-criticality assets affected: %s.", strings.Join(high, ", ")))
	}
	if r.PII {
		recs = append(recs, "PII columns are in the impact path; review access controls and masking downstream.")
	}
	if len(r.Owners) > 0 {
		recs = append(recs, fmt.Sprintf("Notify owners: %s.", strings.Join(r.Owners, ", ")))
	} else {
		recs = append(recs, "Affected assets have no owner; assign owners before changing them.")
	}
	if r.Severity.Rank() >= SeverityHigh.Rank() {
		recs = append(recs, "Get sign-off from the affected owners before deploying.")
	}
	r.Recommendations = recs
}
