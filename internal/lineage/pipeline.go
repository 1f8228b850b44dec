package lineage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// PipelineSet is the YAML document describing jobs and the assets they move
// data between.
type PipelineSet struct {
	Assets []AssetDecl `yaml:"assets"`
	Jobs   []Job       `yaml:"jobs"`
}

// AssetDecl declares an asset that no collector sees, such as a report.
type AssetDecl struct {
	ID          string           `yaml:"id"`
	Type        core.AssetType   `yaml:"type"`
	Name        string           `yaml:"name"`
	Owner       string           `yaml:"owner"`
	Description string           `yaml:"description"`
	Domain      string           `yaml:"domain"`
	Criticality core.Criticality `yaml:"criticality"`
	Tags        []string         `yaml:"tags"`
}

// Job is one pipeline step.
type Job struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	Transform   core.TransformType `yaml:"transform"`
	Schedule    string             `yaml:"schedule"`
	Owner       string             `yaml:"owner"`
	Inputs      []string           `yaml:"inputs"`
	Outputs     []string           `yaml:"outputs"`
	Columns     []ColumnMapping    `yaml:"columns"`
}

// ColumnMapping is a field-level mapping inside a job.
type ColumnMapping struct {
	From       string             `yaml:"from"`
	To         string             `yaml:"to"`
	Transform  core.TransformType `yaml:"transform"`
	Expression string             `yaml:"expression"`
}

// ParsePipelines decodes a pipeline document.
func ParsePipelines(r io.Reader) (*PipelineSet, error) {
	var set PipelineSet
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&set); err != nil {
		if errors.Is(err, io.EOF) {
			return &set, nil
		}
		return nil, fmt.Errorf("failed to parse pipelines: %w", err)
	}
	for i, job := range set.Jobs {
		if strings.TrimSpace(job.Name) == "" {
			return nil, fmt.Errorf("jobs[%d]: name is required", i)
		}
		if !job.Transform.Valid() {
			return nil, fmt.Errorf("job %s: unknown transform %q", job.Name, job.Transform)
		}
	}
	return &set, nil
}

// LoadPipelines reads the pipeline file at path and applies it.
// It returns the IDs of assets that were created or updated, sorted.
func (t *Tracker) LoadPipelines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pipelines: %w", err)
	}
	defer func() { _ = f.Close() }()

	set, err := ParsePipelines(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t.ApplyPipelines(set)
}

// ApplyPipelines adds the declared assets and the lineage of every job.
// Assets a job mentions but nobody declared become dataset stubs.
// Outputs inherit the job schedule and owner when theirs are unset.
// It returns the IDs of assets that were created or updated, sorted.
// It edits tracked assets in place and must not run alongside readers.
func (t *Tracker) ApplyPipelines(set *PipelineSet) ([]string, error) {
	touched := make(map[string]bool)

	for _, decl := range set.Assets {
		a, created := t.assetOrStub(decl.ID)
		if decl.Type != "" {
			a.Type = decl.Type
		}
		if decl.Name != "" {
			a.Name = decl.Name
		}
		if a.Business.Owner == "" {
			a.Business.Owner = decl.Owner
		}
		if a.Business.Description == "" {
			a.Business.Description = decl.Description
		}
		if a.Business.Domain == "" {
			a.Business.Domain = decl.Domain
		}
		if a.Business.Criticality == "" {
			a.Business.Criticality = decl.Criticality
		}
		a.Business.Tags = core.MergeStrings(a.Business.Tags, decl.Tags)
		if err := t.putAsset(a, created); err != nil {
			return nil, err
		}
		touched[a.ID] = true
	}

	for _, job := range set.Jobs {
		for _, id := range append(append([]string{}, job.Inputs...), job.Outputs...) {
			a, created := t.assetOrStub(id)
			if created {
				if err := t.putAsset(a, true); err != nil {
					return nil, fmt.Errorf("job %s: %w", job.Name, err)
				}
				touched[id] = true
			}
		}

		for _, out := range job.Outputs {
			a, _ := t.Asset(out)
			changed := false
			if a.Operational.RefreshSchedule == "" && job.Schedule != "" {
				a.Operational.RefreshSchedule = job.Schedule
				changed = true
			}
			if a.Business.Owner == "" && job.Owner != "" {
				a.Business.Owner = job.Owner
				changed = true
			}
			if changed {
				touched[out] = true
			}
			for _, in := range job.Inputs {
				e := core.Edge{From: in, To: out, Job: job.Name, Transform: job.Transform, Description: job.Description}
				if err := t.AddEdge(e); err != nil {
					return nil, fmt.Errorf("job %s: %w", job.Name, err)
				}
			}
		}

		for i, m := range job.Columns {
			from, err := core.ParseColumnRef(m.From)
			if err != nil {
				return nil, fmt.Errorf("job %s columns[%d]: %w", job.Name, i, err)
			}
			to, err := core.ParseColumnRef(m.To)
			if err != nil {
				return nil, fmt.Errorf("job %s columns[%d]: %w", job.Name, i, err)
			}
			for _, id := range []string{from.Asset, to.Asset} {
				if a, created := t.assetOrStub(id); created {
					if err := t.putAsset(a, true); err != nil {
						return nil, fmt.Errorf("job %s: %w", job.Name, err)
					}
				}
			}
			transform := m.Transform
			if transform == "" {
				transform = job.Transform
			}
			ce := core.ColumnEdge{From: from, To: to, Job: job.Name, Transform: transform, Expression: m.Expression}
			if err := t.AddColumnEdge(ce); err != nil {
				return nil, fmt.Errorf("job %s columns[%d]: %w", job.Name, i, err)
			}
			touched[from.Asset] = true
			touched[to.Asset] = true
		}
	}

	ids := make([]string, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// assetOrStub returns the tracked asset or a new dataset stub.
func (t *Tracker) assetOrStub(id string) (*core.Asset, bool) {
	if a, ok := t.Asset(id); ok {
		return a, false
	}
	name := id
	if i := strings.LastIndexByte(id, '.'); i >= 0 {
		name = id[i+1:]
	}
	return &core.Asset{
		ID:        id,
		Type:      core.AssetDataset,
		Name:      name,
		Technical: core.TechnicalMetadata{Source: core.SourceOf(id)},
	}, true
}

func (t *Tracker) putAsset(a *core.Asset, created bool) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if !created {
		return nil
	}
	return t.AddAsset(a)
}
