package core

import (
	"errors"
	"strings"
)

// Sentinel errors shared across the catalog. Callers test them with errors.Is.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidAsset  = errors.New("invalid asset")
	ErrCycle         = errors.New("lineage cycle")
	ErrDuplicate     = errors.New("duplicate")
	ErrUnknownSource = errors.New("unknown source type")
)

// FieldError describes a single validation problem on an asset.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Message
}

// ValidationError aggregates all problems found while validating an asset.
type ValidationError struct {
	AssetID string
	Fields  []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.String())
	}
	id := e.AssetID
	if id == "" {
		id = "<empty>"
	}
	return "asset " + id + ": " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is match ErrInvalidAsset.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidAsset
}

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}
