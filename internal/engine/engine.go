// Package engine ties the catalog together.
// It runs collectors, applies classification rules, merges results with the
// stored catalog, loads pipeline lineage and answers lineage and impact queries.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/leapstack-labs/leapmeta/internal/collector"
	"github.com/leapstack-labs/leapmeta/internal/config"
	"github.com/leapstack-labs/leapmeta/internal/glossary"
	"github.com/leapstack-labs/leapmeta/internal/impact"
	"github.com/leapstack-labs/leapmeta/internal/lineage"
	"github.com/leapstack-labs/leapmeta/internal/metrics"
	"github.com/leapstack-labs/leapmeta/internal/rules"
	"github.com/leapstack-labs/leapmeta/internal/state"
	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// CollectorFactory builds the collector for one configured source.
type CollectorFactory func(src config.Source, logger *slog.Logger) (collector.Collector, error)

// Config holds engine configuration.
type Config struct {
	// StatePath is the path to the SQLite catalog (":memory:" for tests).
	StatePath string
	// GlossaryPath is the business glossary JSON document. Empty keeps the
	// glossary in memory only.
	GlossaryPath string
	// PipelinesPath is the default pipelines file for LoadPipelines.
	PipelinesPath string
	// RulesDir holds *.star classification rules (optional).
	RulesDir string
	// Concurrency bounds the number of sources collected at once.
	Concurrency int
	// Metrics is optional.
	Metrics *metrics.Metrics
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
	// NewCollector overrides collector construction (optional).
	NewCollector CollectorFactory
	// Now overrides the clock (optional).
	Now func() time.Time
}

// Engine orchestrates collection and lineage over a catalog store.
type Engine struct {
	store         state.Store
	rules         *rules.Engine
	glossary      *glossary.Glossary
	metrics       *metrics.Metrics
	logger        *slog.Logger
	newCollector  CollectorFactory
	now           func() time.Time
	glossaryPath  string
	pipelinesPath string
	concurrency   int

	// mu serializes catalog writes (collection, pipelines, term links).
	mu sync.Mutex
}

// New opens the catalog store and loads rules and the glossary.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	logger.Debug("initializing engine", "state_path", cfg.StatePath, "rules_dir", cfg.RulesDir)

	store, err := state.Open(context.Background(), cfg.StatePath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	ruleEngine := &rules.Engine{}
	if cfg.RulesDir != "" {
		ruleEngine, err = rules.Load(cfg.RulesDir)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to load rules: %w", err)
		}
	}

	g := glossary.New()
	if cfg.GlossaryPath != "" {
		g, err = glossary.Load(cfg.GlossaryPath)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to load glossary: %w", err)
		}
	}

	return newEngine(cfg, store, ruleEngine, g, logger), nil
}

// NewWithStore builds an engine around an already opened store. The engine
// takes ownership of the store and closes it on Close.
func NewWithStore(cfg Config, store state.Store, ruleEngine *rules.Engine, g *glossary.Glossary) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if ruleEngine == nil {
		ruleEngine = &rules.Engine{}
	}
	if g == nil {
		g = glossary.New()
	}
	return newEngine(cfg, store, ruleEngine, g, logger)
}

func newEngine(cfg Config, store state.Store, r *rules.Engine, g *glossary.Glossary, logger *slog.Logger) *Engine {
	e := &Engine{
		store:         store,
		rules:         r,
		glossary:      g,
		metrics:       cfg.Metrics,
		logger:        logger,
		newCollector:  cfg.NewCollector,
		now:           cfg.Now,
		glossaryPath:  cfg.GlossaryPath,
		pipelinesPath: cfg.PipelinesPath,
		concurrency:   cfg.Concurrency,
	}
	if e.newCollector == nil {
		e.newCollector = collector.New
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.concurrency <= 0 {
		e.concurrency = runtime.NumCPU()
	}
	logger.Debug("engine ready", "rules", r.Len(), "terms", g.Len())
	return e
}

// Close closes the catalog store.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the catalog store.
func (e *Engine) Store() state.Store {
	return e.store
}

// Glossary returns the business glossary.
func (e *Engine) Glossary() *glossary.Glossary {
	return e.glossary
}

// Rules returns the loaded classification rules.
func (e *Engine) Rules() *rules.Engine {
	return e.rules
}

// Tracker rebuilds a lineage tracker from the stored assets and edges.
// Stored edges that no longer fit the graph are logged and skipped.
func (e *Engine) Tracker(ctx context.Context) (*lineage.Tracker, error) {
	t, _, err := e.buildTracker(ctx)
	return t, err
}

// buildTracker rebuilds the tracker and also returns what had to be skipped.
func (e *Engine) buildTracker(ctx context.Context) (*lineage.Tracker, []error, error) {
	assets, err := e.store.ListAssets(ctx, state.Filter{})
	if err != nil {
		return nil, nil, err
	}
	edges, err := e.store.ListEdges(ctx)
	if err != nil {
		return nil, nil, err
	}
	colEdges, err := e.store.ListColumnEdges(ctx)
	if err != nil {
		return nil, nil, err
	}

	var skipped []error
	t := lineage.NewTracker()
	for _, a := range assets {
		if err := t.AddAsset(a); err != nil {
			e.logger.Warn("skipping stored asset", "asset", a.ID, "error", err)
			skipped = append(skipped, err)
		}
	}
	for _, edge := range edges {
		if err := t.AddEdge(edge); err != nil {
			e.logger.Warn("skipping stored edge", "from", edge.From, "to", edge.To, "error", err)
			skipped = append(skipped, fmt.Errorf("edge %s -> %s: %w", edge.From, edge.To, err))
		}
	}
	for _, ce := range colEdges {
		if err := t.AddColumnEdge(ce); err != nil {
			e.logger.Warn("skipping stored column edge", "from", ce.From.String(), "to", ce.To.String(), "error", err)
			skipped = append(skipped, fmt.Errorf("column edge %s -> %s: %w", ce.From, ce.To, err))
		}
	}
	return t, skipped, nil
}

// LoadPipelines reads a pipelines file and replaces the stored lineage with
// the stored graph plus the declared jobs. An empty path uses the configured
// pipelines file. A missing file returns an error matching os.ErrNotExist.
func (e *Engine) LoadPipelines(ctx context.Context, path string) (lineage.Stats, error) {
	if path == "" {
		path = e.pipelinesPath
	}
	if path == "" {
		return lineage.Stats{}, fmt.Errorf("no pipelines file configured: %w", os.ErrNotExist)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.Tracker(ctx)
	if err != nil {
		return lineage.Stats{}, err
	}
	touched, err := t.LoadPipelines(path)
	if err != nil {
		return lineage.Stats{}, err
	}

	changed := make([]*core.Asset, 0, len(touched))
	for _, id := range touched {
		if a, ok := t.Asset(id); ok {
			changed = append(changed, a)
		}
	}
	if err := e.store.SaveAssets(ctx, changed); err != nil {
		return lineage.Stats{}, fmt.Errorf("failed to save pipeline assets: %w", err)
	}
	if err := e.store.ReplaceLineage(ctx, t.Edges(), t.ColumnEdges()); err != nil {
		return lineage.Stats{}, fmt.Errorf("failed to save lineage: %w", err)
	}

	stats := t.Stats()
	e.logger.Info("pipelines loaded", "path", path, "assets", len(changed), "edges", stats.Edges, "column_edges", stats.ColumnEdges)
	return stats, nil
}

// Graph returns a lineage snapshot of the stored catalog.
func (e *Engine) Graph(ctx context.Context, opts lineage.GraphOptions) (*lineage.Snapshot, error) {
	t, err := e.Tracker(ctx)
	if err != nil {
		return nil, err
	}
	return t.Graph(opts)
}

// Impact analyzes a proposed change against the stored lineage.
func (e *Engine) Impact(ctx context.Context, c impact.Change) (*impact.Report, error) {
	t, err := e.Tracker(ctx)
	if err != nil {
		return nil, err
	}
	return impact.Analyze(t, c)
}

// Validate checks every stored asset and edge and returns the problems found.
func (e *Engine) Validate(ctx context.Context) ([]error, error) {
	assets, err := e.store.ListAssets(ctx, state.Filter{})
	if err != nil {
		return nil, err
	}
	var problems []error
	known := make(map[string]*core.Asset, len(assets))
	for _, a := range assets {
		known[a.ID] = a
		if err := a.Validate(); err != nil {
			problems = append(problems, err)
		}
	}

	colEdges, err := e.store.ListColumnEdges(ctx)
	if err != nil {
		return nil, err
	}
	for _, ce := range colEdges {
		for _, ref := range []core.ColumnRef{ce.From, ce.To} {
			if a, ok := known[ref.Asset]; ok {
				if _, ok := a.Column(ref.Column); !ok {
					problems = append(problems, fmt.Errorf("column edge %s -> %s: column %s: %w", ce.From, ce.To, ref, core.ErrNotFound))
				}
			}
		}
	}

	_, skipped, err := e.buildTracker(ctx)
	if err != nil {
		return nil, err
	}
	return append(problems, skipped...), nil
}

// saveGlossary writes the glossary file (when configured) and mirrors the
// terms into the store.
func (e *Engine) saveGlossary(ctx context.Context) error {
	if e.glossaryPath != "" {
		if err := e.glossary.Save(e.glossaryPath); err != nil {
			return err
		}
	}
	return e.store.SaveTerms(ctx, e.glossary.List())
}

// SaveGlossary persists glossary edits made through Glossary().
func (e *Engine) SaveGlossary(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.saveGlossary(ctx)
}
