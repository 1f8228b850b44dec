package core

import (
	"fmt"
	"strings"
)

// TransformType describes how data moves along a lineage edge.
type TransformType string

// Known transform types.
const (
	TransformDirect     TransformType = "direct"
	TransformExpression TransformType = "expression"
	TransformAggregate  TransformType = "aggregate"
	TransformFilter     TransformType = "filter"
	TransformJoin       TransformType = "join"
	TransformCopy       TransformType = "copy"
)

// Valid reports whether t is empty or a known transform type.
func (t TransformType) Valid() bool {
	switch t {
	case "", TransformDirect, TransformExpression, TransformAggregate, TransformFilter, TransformJoin, TransformCopy:
		return true
	}
	return false
}

// ColumnRefSeparator separates the asset ID from the column name.
const ColumnRefSeparator = "#"

// ColumnRef addresses a single column of an asset.
type ColumnRef struct {
	Asset  string `json:"asset"`
	Column string `json:"column"`
}

func (r ColumnRef) String() string {
	return r.Asset + ColumnRefSeparator + r.Column
}

// IsZero reports whether the ref is empty.
func (r ColumnRef) IsZero() bool {
	return r.Asset == "" && r.Column == ""
}

// ParseColumnRef parses "asset#column".
func ParseColumnRef(s string) (ColumnRef, error) {
	asset, column, ok := strings.Cut(s, ColumnRefSeparator)
	if !ok || asset == "" || column == "" {
		return ColumnRef{}, fmt.Errorf("column ref %q must look like asset%scolumn", s, ColumnRefSeparator)
	}
	return ColumnRef{Asset: asset, Column: column}, nil
}

// IsColumnRef reports whether s addresses a column rather than an asset.
func IsColumnRef(s string) bool {
	return strings.Contains(s, ColumnRefSeparator)
}

// Edge is an asset-level lineage edge: data flows From -> To.
type Edge struct {
	From        string        `json:"from" yaml:"from"`
	To          string        `json:"to" yaml:"to"`
	Job         string        `json:"job,omitempty" yaml:"job,omitempty"`
	Transform   TransformType `json:"transform,omitempty" yaml:"transform,omitempty"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
}

// ColumnEdge is a field-level lineage edge.
type ColumnEdge struct {
	From       ColumnRef     `json:"from"`
	To         ColumnRef     `json:"to"`
	Job        string        `json:"job,omitempty"`
	Transform  TransformType `json:"transform,omitempty"`
	Expression string        `json:"expression,omitempty"`
}

// AssetEdge returns the asset-level edge implied by a column edge.
func (e ColumnEdge) AssetEdge() Edge {
	return Edge{From: e.From.Asset, To: e.To.Asset, Job: e.Job, Transform: e.Transform}
}
