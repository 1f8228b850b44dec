package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/leapmeta/internal/config"
	"github.com/leapstack-labs/leapmeta/internal/state"
	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// SourceResult is the outcome of collecting one source.
type SourceResult struct {
	Name     string        `json:"name"`
	Type     string        `json:"type"`
	Assets   int           `json:"assets"`
	Skipped  int           `json:"skipped"`
	Stale    int           `json:"stale"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// CollectResult summarizes a collection run.
type CollectResult struct {
	Run     *state.Run     `json:"run"`
	Sources []SourceResult `json:"sources"`
}

// Failed returns the sources that failed.
func (r *CollectResult) Failed() []SourceResult {
	var out []SourceResult
	for _, s := range r.Sources {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// Collect runs the collectors of the given sources concurrently and merges
// their assets into the catalog. A failing source does not stop the others;
// the run is then recorded as failed and the joined source errors are
// returned together with the result.
func (e *Engine) Collect(ctx context.Context, sources []config.Source) (*CollectResult, error) {
	if len(sources) == 0 {
		return nil, errors.New("no sources to collect")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	names := make([]string, len(sources))
	for i, src := range sources {
		names[i] = src.Name
	}
	run, err := e.store.CreateRun(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	started := e.now()
	e.logger.Info("collection started", "run", run.ID, "sources", len(sources))

	results := make([]SourceResult, len(sources))
	collected := make([][]*core.Asset, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, src := range sources {
		g.Go(func() error {
			t0 := time.Now()
			assets, err := e.collectSource(gctx, src)
			results[i] = SourceResult{Name: src.Name, Type: src.Type, Duration: time.Since(t0), Err: err}
			collected[i] = assets
			// Source failures are reported per source, never to the group.
			return nil
		})
	}
	_ = g.Wait()

	var (
		toSave  []*core.Asset
		errs    []error
		stale   int
		stamped = e.now().UTC()
	)
	for i, src := range sources {
		res := &results[i]
		if res.Err != nil {
			e.logger.Error("source failed", "source", src.Name, "error", res.Err)
			e.metrics.CollectorFailed(src.Name)
			errs = append(errs, fmt.Errorf("source %s: %w", src.Name, res.Err))
			continue
		}

		stored, err := e.storedBySource(ctx, src.Name)
		if err != nil {
			res.Err = err
			errs = append(errs, fmt.Errorf("source %s: %w", src.Name, err))
			continue
		}

		seen := make(map[string]bool, len(collected[i]))
		for _, a := range collected[i] {
			if a == nil {
				res.Skipped++
				continue
			}
			if err := e.prepare(a); err != nil {
				e.logger.Warn("skipping asset", "source", src.Name, "asset", a.ID, "error", err)
				res.Skipped++
				continue
			}
			if seen[a.ID] {
				e.logger.Warn("skipping duplicate asset", "source", src.Name, "asset", a.ID)
				res.Skipped++
				continue
			}
			seen[a.ID] = true
			merge(a, stored[a.ID], run.ID, stamped)
			toSave = append(toSave, a)
			res.Assets++
		}

		for id, old := range stored {
			if seen[id] || old.Operational.RunID == "" || old.HasTag(core.TagStale) {
				continue
			}
			old.Business.Tags = core.MergeStrings(old.Business.Tags, []string{core.TagStale})
			toSave = append(toSave, old)
			res.Stale++
		}

		stale += res.Stale
		e.metrics.AddAssets(src.Name, res.Assets)
		e.logger.Info("source collected", "source", src.Name, "assets", res.Assets, "skipped", res.Skipped, "stale", res.Stale, "duration", res.Duration)
	}

	status := state.RunStatusCompleted
	if err := e.store.SaveAssets(ctx, toSave); err != nil {
		errs = append(errs, fmt.Errorf("failed to save assets: %w", err))
	}
	joined := errors.Join(errs...)

	rr := state.RunResult{Status: status, Stale: stale, Errors: len(errs)}
	for _, r := range results {
		rr.Assets += r.Assets
	}
	if joined != nil {
		rr.Status = state.RunStatusFailed
		rr.Error = joined.Error()
	}
	if err := e.store.CompleteRun(ctx, run.ID, rr); err != nil {
		return nil, fmt.Errorf("failed to complete run: %w", err)
	}
	e.metrics.AddStale(stale)
	e.metrics.ObserveRun(string(rr.Status), e.now().Sub(started))

	run, err = e.store.GetRun(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	e.logger.Info("collection finished", "run", run.ID, "status", run.Status, "assets", run.Assets, "stale", run.Stale, "errors", run.Errors)
	return &CollectResult{Run: run, Sources: results}, joined
}

func (e *Engine) collectSource(ctx context.Context, src config.Source) ([]*core.Asset, error) {
	c, err := e.newCollector(src, e.logger)
	if err != nil {
		return nil, err
	}
	if closer, ok := c.(interface{ Close() error }); ok {
		defer func() { _ = closer.Close() }()
	}
	return c.Collect(ctx)
}

// storedBySource returns the stored assets collected from a source, by ID.
func (e *Engine) storedBySource(ctx context.Context, source string) (map[string]*core.Asset, error) {
	assets, err := e.store.ListAssets(ctx, state.Filter{Source: source})
	if err != nil {
		return nil, err
	}
	out := make(map[string]*core.Asset, len(assets))
	for _, a := range assets {
		out[a.ID] = a
	}
	return out, nil
}

// prepare applies classification rules and glossary links, then validates.
func (e *Engine) prepare(a *core.Asset) error {
	if err := e.rules.Apply(a); err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	a.Business.GlossaryTerms = core.MergeStrings(a.Business.GlossaryTerms, e.glossary.TermsFor(a.ID))
	for i := range a.Technical.Columns {
		col := &a.Technical.Columns[i]
		ref := core.ColumnRef{Asset: a.ID, Column: col.Name}.String()
		col.GlossaryTerms = core.MergeStrings(col.GlossaryTerms, e.glossary.TermsFor(ref))
	}
	return a.Validate()
}

// merge carries user-edited metadata from the stored copy into a freshly
// collected asset and stamps it with the run.
func merge(a, old *core.Asset, runID string, now time.Time) {
	a.Operational.CollectedAt = now
	a.Operational.RunID = runID
	if a.Operational.UpdatedAt.IsZero() {
		a.Operational.UpdatedAt = now
	}
	if old == nil {
		if a.Operational.CreatedAt.IsZero() {
			a.Operational.CreatedAt = now
		}
		return
	}

	b, ob := &a.Business, old.Business
	b.Owner = firstNonEmpty(ob.Owner, b.Owner)
	b.Steward = firstNonEmpty(ob.Steward, b.Steward)
	b.Domain = firstNonEmpty(ob.Domain, b.Domain)
	b.Description = firstNonEmpty(ob.Description, b.Description)
	if ob.Criticality != "" {
		b.Criticality = ob.Criticality
	}
	b.Tags = withoutTag(core.MergeStrings(ob.Tags, b.Tags), core.TagStale)
	b.GlossaryTerms = core.MergeStrings(ob.GlossaryTerms, b.GlossaryTerms)

	if !old.Operational.CreatedAt.IsZero() {
		a.Operational.CreatedAt = old.Operational.CreatedAt
	}
	if a.Operational.RefreshSchedule == "" {
		a.Operational.RefreshSchedule = old.Operational.RefreshSchedule
	}

	for i := range a.Technical.Columns {
		col := &a.Technical.Columns[i]
		prev, ok := old.Column(col.Name)
		if !ok {
			continue
		}
		col.Description = firstNonEmpty(prev.Description, col.Description)
		col.GlossaryTerms = core.MergeStrings(prev.GlossaryTerms, col.GlossaryTerms)
		col.Tags = core.MergeStrings(prev.Tags, col.Tags)
		if prev.Classification.Rank() > col.Classification.Rank() {
			col.Classification = prev.Classification
		}
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func withoutTag(tags []string, tag string) []string {
	out := tags[:0:0]
	for _, t := range tags {
		if !strings.EqualFold(t, tag) {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
