package glossary

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

type yamlDocument struct {
	Terms []Term `yaml:"terms"`
}

// ImportResult counts the outcome of an import.
type ImportResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
}

// ImportYAML bulk-loads terms from a YAML document with a top-level "terms"
// list. Terms matching an existing name are updated with the non-empty
// fields of the import; list fields are unioned.
func (g *Glossary) ImportYAML(r io.Reader) (ImportResult, error) {
	var doc yamlDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return ImportResult{}, fmt.Errorf("failed to parse glossary import: %w", err)
	}

	var res ImportResult
	for i, in := range doc.Terms {
		if strings.TrimSpace(in.Name) == "" {
			return res, fmt.Errorf("terms[%d]: name is required", i)
		}
		existing, ok := g.Get(in.Name)
		if !ok {
			in.ID = ""
			if _, err := g.Add(in); err != nil {
				return res, fmt.Errorf("terms[%d]: %w", i, err)
			}
			res.Added++
			continue
		}

		mergeTerm(&existing, in)
		if _, err := g.Update(existing); err != nil {
			return res, fmt.Errorf("terms[%d]: %w", i, err)
		}
		res.Updated++
	}
	return res, nil
}

func mergeTerm(dst *Term, src Term) {
	if src.Definition != "" {
		dst.Definition = src.Definition
	}
	if src.Domain != "" {
		dst.Domain = src.Domain
	}
	if src.Owner != "" {
		dst.Owner = src.Owner
	}
	if src.Steward != "" {
		dst.Steward = src.Steward
	}
	if src.Status != "" {
		dst.Status = src.Status
	}
	dst.Synonyms = append(dst.Synonyms, src.Synonyms...)
	dst.Related = append(dst.Related, src.Related...)
	dst.Links = append(dst.Links, src.Links...)
}
