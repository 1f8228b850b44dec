package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapmeta/internal/glossary"
	"github.com/leapstack-labs/leapmeta/internal/state"
	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// SuggestTerms proposes glossary links for the columns of stored assets.
// Suggestions scoring below minScore are dropped.
func (e *Engine) SuggestTerms(ctx context.Context, minScore float64) ([]glossary.Suggestion, error) {
	assets, err := e.store.ListAssets(ctx, state.Filter{})
	if err != nil {
		return nil, err
	}
	var out []glossary.Suggestion
	for _, s := range e.glossary.Suggest(assets) {
		if s.Score >= minScore {
			out = append(out, s)
		}
	}
	return out, nil
}

// ApplySuggestions links every suggestion and returns how many were applied.
// It stops at the first failing suggestion; links made before it are still
// saved to the glossary so it agrees with the stored assets.
func (e *Engine) ApplySuggestions(ctx context.Context, suggestions []glossary.Suggestion) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	applied := 0
	var linkErr error
	for _, s := range suggestions {
		if linkErr = e.link(ctx, s.TermID, s.Target); linkErr != nil {
			break
		}
		applied++
	}
	if applied == 0 {
		return 0, linkErr
	}
	return applied, errors.Join(linkErr, e.saveGlossary(ctx))
}

// LinkTerm links a term to an asset ID or an "asset#column" ref. The term is
// recorded both on the glossary entry and on the asset or column.
func (e *Engine) LinkTerm(ctx context.Context, termRef, target string) (glossary.Term, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.link(ctx, termRef, target); err != nil {
		return glossary.Term{}, err
	}
	if err := e.saveGlossary(ctx); err != nil {
		return glossary.Term{}, err
	}
	t, _ := e.glossary.Get(termRef)
	return t, nil
}

// UnlinkTerm removes a link made by LinkTerm.
func (e *Engine) UnlinkTerm(ctx context.Context, termRef, target string) (glossary.Term, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	term, ok := e.glossary.Get(termRef)
	if !ok {
		return glossary.Term{}, fmt.Errorf("term %q: %w", termRef, core.ErrNotFound)
	}
	err := e.editTarget(ctx, target, func(terms []string) []string {
		out := terms[:0:0]
		for _, t := range terms {
			if !strings.EqualFold(t, term.Name) {
				out = append(out, t)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	})
	if err != nil {
		return glossary.Term{}, err
	}
	term, err = e.glossary.Unlink(termRef, target)
	if err != nil {
		return glossary.Term{}, err
	}
	return term, e.saveGlossary(ctx)
}

func (e *Engine) link(ctx context.Context, termRef, target string) error {
	term, ok := e.glossary.Get(termRef)
	if !ok {
		return fmt.Errorf("term %q: %w", termRef, core.ErrNotFound)
	}
	err := e.editTarget(ctx, target, func(terms []string) []string {
		return core.MergeStrings(terms, []string{term.Name})
	})
	if err != nil {
		return err
	}
	_, err = e.glossary.Link(termRef, target)
	return err
}

// editTarget rewrites the glossary terms of an asset or column and saves it.
func (e *Engine) editTarget(ctx context.Context, target string, edit func([]string) []string) error {
	assetID, column := target, ""
	if core.IsColumnRef(target) {
		ref, err := core.ParseColumnRef(target)
		if err != nil {
			return err
		}
		assetID, column = ref.Asset, ref.Column
	}

	a, err := e.store.GetAsset(ctx, assetID)
	if err != nil {
		return err
	}
	if column == "" {
		a.Business.GlossaryTerms = edit(a.Business.GlossaryTerms)
	} else {
		col, ok := a.Column(column)
		if !ok {
			return fmt.Errorf("column %s: %w", target, core.ErrNotFound)
		}
		col.GlossaryTerms = edit(col.GlossaryTerms)
	}
	a.Operational.UpdatedAt = e.now().UTC()
	return e.store.SaveAsset(ctx, a)
}
