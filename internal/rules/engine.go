package rules

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// Engine applies loaded rules to assets. The zero value applies nothing.
type Engine struct {
	rules []*Rule
}

// Rules returns the loaded rules in execution order.
func (e *Engine) Rules() []*Rule {
	return e.rules
}

// Len returns the number of loaded rules.
func (e *Engine) Len() int {
	return len(e.rules)
}

// Verdict is the merged outcome of all rules for one column.
type Verdict struct {
	Classification core.Classification
	PII            *bool
	Tags           []string
	Terms          []string
}

// Apply runs every rule over every column of a and merges the verdicts into
// the columns. A later classification wins; tags and terms are unioned.
func (e *Engine) Apply(a *core.Asset) error {
	if len(e.rules) == 0 {
		return nil
	}
	for i := range a.Technical.Columns {
		col := &a.Technical.Columns[i]
		v, err := e.Classify(a, col)
		if err != nil {
			return err
		}
		if v.Classification != "" {
			col.Classification = v.Classification
		}
		if v.PII != nil {
			col.PII = *v.PII
		}
		col.Tags = core.MergeStrings(col.Tags, v.Tags)
		col.GlossaryTerms = core.MergeStrings(col.GlossaryTerms, v.Terms)
	}
	return nil
}

// Classify runs every rule for one column and returns the merged verdict.
func (e *Engine) Classify(a *core.Asset, col *core.Column) (Verdict, error) {
	var v Verdict
	arg := columnValue(a, col)

	for _, rule := range e.rules {
		thread := &starlark.Thread{
			Name:  "classify:" + rule.Name,
			Print: func(_ *starlark.Thread, _ string) {},
		}
		out, err := starlark.Call(thread, rule.classify, starlark.Tuple{arg}, nil)
		if err != nil {
			return Verdict{}, &LoadError{File: rule.Path, Message: fmt.Sprintf("classify(%s#%s): %v", a.ID, col.Name, err)}
		}
		if err := merge(&v, out); err != nil {
			return Verdict{}, &LoadError{File: rule.Path, Message: fmt.Sprintf("classify(%s#%s): %v", a.ID, col.Name, err)}
		}
	}

	sort.Strings(v.Tags)
	sort.Strings(v.Terms)
	return v, nil
}

func columnValue(a *core.Asset, col *core.Column) *starlarkstruct.Struct {
	var samples []starlark.Value
	if col.Profile != nil {
		for _, s := range col.Profile.SampleValues {
			samples = append(samples, starlark.String(s))
		}
	}
	return starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
		"name":       starlark.String(col.Name),
		"type":       starlark.String(col.DataType),
		"asset":      starlark.String(a.ID),
		"asset_type": starlark.String(a.Type),
		"pii":        starlark.Bool(col.PII),
		"samples":    starlark.NewList(samples),
	})
}

func merge(v *Verdict, out starlark.Value) error {
	switch x := out.(type) {
	case starlark.NoneType:
		return nil
	case starlark.String:
		return v.setClassification(string(x))
	case *starlark.List, starlark.Tuple:
		tags, err := toStrings(x)
		if err != nil {
			return err
		}
		v.Tags = core.MergeStrings(v.Tags, tags)
		return nil
	case *starlark.Dict:
		for _, item := range x.Items() {
			key, ok := starlark.AsString(item[0])
			if !ok {
				return fmt.Errorf("result keys must be strings, got %s", item[0].Type())
			}
			if err := v.mergeKey(key, item[1]); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unsupported result type %s", out.Type())
}

func (v *Verdict) mergeKey(key string, val starlark.Value) error {
	switch key {
	case "classification":
		s, ok := starlark.AsString(val)
		if !ok {
			return fmt.Errorf("classification must be a string, got %s", val.Type())
		}
		return v.setClassification(s)
	case "pii":
		b, ok := val.(starlark.Bool)
		if !ok {
			return fmt.Errorf("pii must be a bool, got %s", val.Type())
		}
		pii := bool(b)
		v.PII = &pii
	case "tags":
		tags, err := toStrings(val)
		if err != nil {
			return fmt.Errorf("tags: %w", err)
		}
		v.Tags = core.MergeStrings(v.Tags, tags)
	case "terms":
		terms, err := toStrings(val)
		if err != nil {
			return fmt.Errorf("terms: %w", err)
		}
		v.Terms = core.MergeStrings(v.Terms, terms)
	default:
		return fmt.Errorf("unknown result key %q", key)
	}
	return nil
}

func (v *Verdict) setClassification(s string) error {
	c := core.Classification(s)
	if c == "" || !c.Valid() {
		return fmt.Errorf("unknown classification %q", s)
	}
	v.Classification = c
	return nil
}

func toStrings(val starlark.Value) ([]string, error) {
	iterable, ok := val.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("expected a list of strings, got %s", val.Type())
	}
	iter := iterable.Iterate()
	defer iter.Done()

	var out []string
	var item starlark.Value
	for iter.Next(&item) {
		s, ok := starlark.AsString(item)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %s", item.Type())
		}
		out = append(out, s)
	}
	return out, nil
}
