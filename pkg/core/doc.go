// Package core defines the shared language of the leapmeta catalog.
//
// This package contains:
//   - Metadata entities (Asset, Column, ColumnProfile, QualityMetadata)
//   - Lineage entities (Edge, ColumnEdge, ColumnRef)
//   - Sentinel errors shared by every layer
//   - The published metadata JSON Schema (metadata_schema.json)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
