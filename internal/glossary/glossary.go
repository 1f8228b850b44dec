// Package glossary manages the business glossary: agreed definitions of
// business terms and their links to catalogued assets and columns.
//
// The glossary is persisted as a JSON document:
//
//	{"version": 1, "terms": [{"id": "...", "name": "Customer", ...}]}
package glossary

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// FormatVersion is the version written to glossary documents.
const FormatVersion = 1

// Status is the lifecycle state of a term.
type Status string

// Term statuses.
const (
	StatusDraft      Status = "draft"
	StatusApproved   Status = "approved"
	StatusDeprecated Status = "deprecated"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusApproved, StatusDeprecated:
		return true
	}
	return false
}

// Term is a business term.
type Term struct {
	ID         string    `json:"id" yaml:"id"`
	Name       string    `json:"name" yaml:"name"`
	Definition string    `json:"definition" yaml:"definition"`
	Domain     string    `json:"domain,omitempty" yaml:"domain"`
	Synonyms   []string  `json:"synonyms,omitempty" yaml:"synonyms"`
	Related    []string  `json:"related,omitempty" yaml:"related"`
	Owner      string    `json:"owner,omitempty" yaml:"owner"`
	Steward    string    `json:"steward,omitempty" yaml:"steward"`
	Status     Status    `json:"status" yaml:"status"`
	Links      []string  `json:"links,omitempty" yaml:"links"`
	UpdatedAt  time.Time `json:"updated_at" yaml:"-"`
}

type document struct {
	Version int     `json:"version"`
	Terms   []*Term `json:"terms"`
}

// Glossary is an in-memory set of terms. It is safe for concurrent use.
type Glossary struct {
	mu    sync.RWMutex
	terms map[string]*Term // by ID

	// now is replaced in tests.
	now func() time.Time
}

// New creates an empty glossary.
func New() *Glossary {
	return NewWithClock(time.Now)
}

// NewWithClock creates an empty glossary that stamps edits with now.
func NewWithClock(now func() time.Time) *Glossary {
	return &Glossary{terms: make(map[string]*Term), now: now}
}

// Load reads a glossary document. A missing file yields an empty glossary.
func Load(path string) (*Glossary, error) {
	g := New()
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from configuration
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return g, nil
		}
		return nil, fmt.Errorf("failed to read glossary: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse glossary %s: %w", path, err)
	}
	if doc.Version > FormatVersion {
		return nil, fmt.Errorf("glossary %s: unsupported version %d", path, doc.Version)
	}

	for _, t := range doc.Terms {
		if t == nil {
			continue
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.Status == "" {
			t.Status = StatusDraft
		}
		if err := g.checkName(t.Name, t.ID); err != nil {
			return nil, fmt.Errorf("glossary %s: %w", path, err)
		}
		g.terms[t.ID] = t
	}
	return g, nil
}

// Save writes the glossary atomically: a temp file is written next to path
// and renamed over it.
func (g *Glossary) Save(path string) error {
	doc := document{Version: FormatVersion, Terms: []*Term{}}
	for _, t := range g.List() {
		doc.Terms = append(doc.Terms, &t)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode glossary: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create glossary directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".glossary-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write glossary: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write glossary: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace glossary: %w", err)
	}
	return nil
}

var titleCaser = cases.Title(language.English)

// displayName trims a term name and title-cases it when it is all lower case.
func displayName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == strings.ToLower(name) {
		return titleCaser.String(name)
	}
	return name
}

// checkName fails when another term (not id) already uses name.
func (g *Glossary) checkName(name, id string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("term name is required")
	}
	for _, t := range g.terms {
		if t.ID != id && strings.EqualFold(t.Name, name) {
			return fmt.Errorf("term %q: %w", name, core.ErrDuplicate)
		}
	}
	return nil
}

// Add inserts a new term and returns it with its generated ID.
// Names are compared case-insensitively.
func (g *Glossary) Add(t Term) (Term, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	t.Name = displayName(t.Name)
	if t.Status == "" {
		t.Status = StatusDraft
	}
	if !t.Status.Valid() {
		return Term{}, fmt.Errorf("term %q: unknown status %q", t.Name, t.Status)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if _, exists := g.terms[t.ID]; exists {
		return Term{}, fmt.Errorf("term id %s: %w", t.ID, core.ErrDuplicate)
	}
	if err := g.checkName(t.Name, t.ID); err != nil {
		return Term{}, err
	}
	t.Synonyms = core.MergeStrings(t.Synonyms)
	t.Related = core.MergeStrings(t.Related)
	t.Links = core.MergeStrings(t.Links)
	t.UpdatedAt = g.now().UTC()

	stored := t
	g.terms[t.ID] = &stored
	return stored, nil
}

// Update replaces the term with the same ID.
func (g *Glossary) Update(t Term) (Term, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.terms[t.ID]; !ok {
		return Term{}, fmt.Errorf("term %s: %w", t.ID, core.ErrNotFound)
	}
	t.Name = displayName(t.Name)
	if !t.Status.Valid() {
		return Term{}, fmt.Errorf("term %q: unknown status %q", t.Name, t.Status)
	}
	if err := g.checkName(t.Name, t.ID); err != nil {
		return Term{}, err
	}
	t.Synonyms = core.MergeStrings(t.Synonyms)
	t.Related = core.MergeStrings(t.Related)
	t.Links = core.MergeStrings(t.Links)
	t.UpdatedAt = g.now().UTC()

	stored := t
	g.terms[t.ID] = &stored
	return stored, nil
}

// Remove deletes a term by ID or name.
func (g *Glossary) Remove(ref string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := g.lookup(ref)
	if t == nil {
		return fmt.Errorf("term %q: %w", ref, core.ErrNotFound)
	}
	delete(g.terms, t.ID)
	return nil
}

// Get returns a term by ID or case-insensitive name.
func (g *Glossary) Get(ref string) (Term, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	t := g.lookup(ref)
	if t == nil {
		return Term{}, false
	}
	return clone(t), true
}

func (g *Glossary) lookup(ref string) *Term {
	if t, ok := g.terms[ref]; ok {
		return t
	}
	for _, t := range g.terms {
		if strings.EqualFold(t.Name, strings.TrimSpace(ref)) {
			return t
		}
	}
	return nil
}

// List returns all terms sorted by name.
func (g *Glossary) List() []Term {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Term, 0, len(g.terms))
	for _, t := range g.terms {
		out = append(out, clone(t))
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// Len returns the number of terms.
func (g *Glossary) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.terms)
}

// Link attaches an asset ID or "asset#column" ref to a term.
func (g *Glossary) Link(termRef, target string) (Term, error) {
	if err := validTarget(target); err != nil {
		return Term{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	t := g.lookup(termRef)
	if t == nil {
		return Term{}, fmt.Errorf("term %q: %w", termRef, core.ErrNotFound)
	}
	t.Links = core.MergeStrings(t.Links, []string{target})
	t.UpdatedAt = g.now().UTC()
	return clone(t), nil
}

// Unlink detaches a target from a term. Unlinking an absent target is a no-op.
func (g *Glossary) Unlink(termRef, target string) (Term, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := g.lookup(termRef)
	if t == nil {
		return Term{}, fmt.Errorf("term %q: %w", termRef, core.ErrNotFound)
	}
	links := t.Links[:0]
	changed := false
	for _, l := range t.Links {
		if l == target {
			changed = true
			continue
		}
		links = append(links, l)
	}
	t.Links = links
	if changed {
		t.UpdatedAt = g.now().UTC()
	}
	return clone(t), nil
}

// TermsFor returns the names of terms linked to target, sorted.
func (g *Glossary) TermsFor(target string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var names []string
	for _, t := range g.terms {
		for _, l := range t.Links {
			if l == target {
				names = append(names, t.Name)
				break
			}
		}
	}
	sort.Strings(names)
	return names
}

func validTarget(target string) error {
	if strings.TrimSpace(target) == "" {
		return errors.New("link target is required")
	}
	if core.IsColumnRef(target) {
		_, err := core.ParseColumnRef(target)
		return err
	}
	return nil
}

func clone(t *Term) Term {
	c := *t
	c.Synonyms = append([]string(nil), t.Synonyms...)
	c.Related = append([]string(nil), t.Related...)
	c.Links = append([]string(nil), t.Links...)
	return c
}
