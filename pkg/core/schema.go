package core

import (
	_ "embed"
)

//go:embed schema/metadata_schema.json
var metadataSchema []byte

// MetadataSchema returns the JSON Schema document describing Asset.
// The returned slice is a copy and may be modified by the caller.
func MetadataSchema() []byte {
	out := make([]byte, len(metadataSchema))
	copy(out, metadataSchema)
	return out
}
