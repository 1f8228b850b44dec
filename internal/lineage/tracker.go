package lineage

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/leapstack-labs/leapmeta/internal/dag"
	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// Hop is one asset reached by an upstream or downstream traversal.
type Hop struct {
	ID    string `json:"id"`
	Depth int    `json:"depth"`
	Via   string `json:"via"`
	Job   string `json:"job,omitempty"`
}

// ColumnHop is one column reached by TraceColumn.
type ColumnHop struct {
	Ref        core.ColumnRef     `json:"ref"`
	Depth      int                `json:"depth"`
	Via        core.ColumnRef     `json:"via"`
	Transform  core.TransformType `json:"transform,omitempty"`
	Expression string             `json:"expression,omitempty"`
}

// Stats summarizes the size and shape of the lineage graph.
type Stats struct {
	Assets      int      `json:"assets"`
	Edges       int      `json:"edges"`
	ColumnEdges int      `json:"column_edges"`
	Roots       []string `json:"roots"`
	Leaves      []string `json:"leaves"`
}

type edgeKey struct{ from, to string }

// Tracker holds assets and their asset- and column-level lineage.
// It is safe for concurrent use.
type Tracker struct {
	mu       sync.RWMutex
	assets   map[string]*core.Asset
	graph    *dag.Graph
	columns  *dag.Graph
	edges    map[edgeKey]core.Edge
	colEdges map[edgeKey]core.ColumnEdge
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		assets:   make(map[string]*core.Asset),
		graph:    dag.NewGraph(),
		columns:  dag.NewGraph(),
		edges:    make(map[edgeKey]core.Edge),
		colEdges: make(map[edgeKey]core.ColumnEdge),
	}
}

// AddAsset inserts or replaces an asset. Existing edges are kept.
func (t *Tracker) AddAsset(a *core.Asset) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("%w: asset id is required", core.ErrInvalidAsset)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.assets[a.ID] = a
	t.graph.AddNode(a.ID, nil)
	t.refreshRefs(a.ID)
	return nil
}

// Asset returns the asset with the given ID.
func (t *Tracker) Asset(id string) (*core.Asset, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	a, ok := t.assets[id]
	return a, ok
}

// Assets returns all assets sorted by ID.
func (t *Tracker) Assets() []*core.Asset {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*core.Asset, 0, len(t.assets))
	for _, a := range t.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddEdge records that data flows from e.From to e.To.
// Both assets must exist. A duplicate edge is ignored and keeps its first job.
func (t *Tracker) AddEdge(e core.Edge) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addEdgeLocked(e)
}

func (t *Tracker) addEdgeLocked(e core.Edge) error {
	if _, ok := t.assets[e.From]; !ok {
		return fmt.Errorf("edge source %q: %w", e.From, core.ErrNotFound)
	}
	if _, ok := t.assets[e.To]; !ok {
		return fmt.Errorf("edge target %q: %w", e.To, core.ErrNotFound)
	}
	if !e.Transform.Valid() {
		return fmt.Errorf("edge %s -> %s: unknown transform %q", e.From, e.To, e.Transform)
	}

	key := edgeKey{e.From, e.To}
	if _, dup := t.edges[key]; dup {
		return nil
	}
	if t.graph.WouldCycle(e.From, e.To) {
		return fmt.Errorf("edge %s -> %s: %w", e.From, e.To, core.ErrCycle)
	}
	if err := t.graph.AddEdge(e.From, e.To); err != nil {
		return err
	}
	t.edges[key] = e
	t.refreshRefs(e.From)
	t.refreshRefs(e.To)
	return nil
}

// AddColumnEdge records field-level lineage and the implied asset edge.
// Columns unknown to a known asset are added as placeholders of type "unknown".
func (t *Tracker) AddColumnEdge(e core.ColumnEdge) error {
	if e.From.Asset == "" || e.From.Column == "" || e.To.Asset == "" || e.To.Column == "" {
		return fmt.Errorf("column edge %s -> %s: both refs need an asset and a column", e.From, e.To)
	}
	if e.From.Asset == e.To.Asset {
		return fmt.Errorf("column edge %s -> %s: source and target are the same asset", e.From, e.To)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	from, ok := t.assets[e.From.Asset]
	if !ok {
		return fmt.Errorf("column edge source %q: %w", e.From.Asset, core.ErrNotFound)
	}
	to, ok := t.assets[e.To.Asset]
	if !ok {
		return fmt.Errorf("column edge target %q: %w", e.To.Asset, core.ErrNotFound)
	}

	if err := t.addEdgeLocked(e.AssetEdge()); err != nil {
		return err
	}

	e.From.Column = ensureColumn(from, e.From.Column)
	e.To.Column = ensureColumn(to, e.To.Column)

	fromKey, toKey := e.From.String(), e.To.String()
	key := edgeKey{fromKey, toKey}
	if _, dup := t.colEdges[key]; dup {
		return nil
	}
	if !t.columns.HasNode(fromKey) {
		t.columns.AddNode(fromKey, e.From)
	}
	if !t.columns.HasNode(toKey) {
		t.columns.AddNode(toKey, e.To)
	}
	if t.columns.WouldCycle(fromKey, toKey) {
		return fmt.Errorf("column edge %s -> %s: %w", fromKey, toKey, core.ErrCycle)
	}
	if err := t.columns.AddEdge(fromKey, toKey); err != nil {
		return err
	}
	t.colEdges[key] = e
	return nil
}

// ensureColumn returns the canonical column name, adding a placeholder if needed.
func ensureColumn(a *core.Asset, name string) string {
	if col, ok := a.Column(name); ok {
		return col.Name
	}
	a.Technical.Columns = append(a.Technical.Columns, core.Column{
		Name:     name,
		DataType: "unknown",
		Nullable: true,
		Position: len(a.Technical.Columns),
	})
	return name
}

// refreshRefs recomputes the derived lineage refs of an asset.
func (t *Tracker) refreshRefs(id string) {
	a, ok := t.assets[id]
	if !ok {
		return
	}
	a.Lineage.Upstream = t.graph.Parents(id)
	a.Lineage.Downstream = t.graph.Children(id)
}

// Upstream returns the assets data flows from, nearest first.
// depth <= 0 means unlimited.
func (t *Tracker) Upstream(id string, depth int) ([]Hop, error) {
	return t.walk(id, dag.Upstream, depth)
}

// Downstream returns the assets data flows into, nearest first.
// depth <= 0 means unlimited.
func (t *Tracker) Downstream(id string, depth int) ([]Hop, error) {
	return t.walk(id, dag.Downstream, depth)
}

func (t *Tracker) walk(id string, dir dag.Direction, depth int) ([]Hop, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if _, ok := t.assets[id]; !ok {
		return nil, fmt.Errorf("asset %q: %w", id, core.ErrNotFound)
	}
	visits := t.graph.Walk(id, dir, depth)
	hops := make([]Hop, 0, len(visits))
	for _, v := range visits {
		key := edgeKey{v.Via, v.ID}
		if dir == dag.Upstream {
			key = edgeKey{v.ID, v.Via}
		}
		hops = append(hops, Hop{ID: v.ID, Depth: v.Depth, Via: v.Via, Job: t.edges[key].Job})
	}
	return hops, nil
}

// TraceColumn follows field-level lineage from ref. depth <= 0 means unlimited.
// A column with no recorded column lineage yields an empty result.
func (t *Tracker) TraceColumn(ref core.ColumnRef, dir dag.Direction, depth int) ([]ColumnHop, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	a, ok := t.assets[ref.Asset]
	if !ok {
		return nil, fmt.Errorf("asset %q: %w", ref.Asset, core.ErrNotFound)
	}
	if col, ok := a.Column(ref.Column); ok {
		ref.Column = col.Name
	} else if !t.columns.HasNode(ref.String()) {
		return nil, fmt.Errorf("column %s: %w", ref, core.ErrNotFound)
	}

	visits := t.columns.Walk(ref.String(), dir, depth)
	hops := make([]ColumnHop, 0, len(visits))
	for _, v := range visits {
		node, _ := t.columns.GetNode(v.ID)
		via, _ := t.columns.GetNode(v.Via)
		h := ColumnHop{Ref: node.Data.(core.ColumnRef), Depth: v.Depth, Via: via.Data.(core.ColumnRef)}

		key := edgeKey{v.Via, v.ID}
		if dir == dag.Upstream {
			key = edgeKey{v.ID, v.Via}
		}
		if e, ok := t.colEdges[key]; ok {
			h.Transform = e.Transform
			h.Expression = e.Expression
		}
		hops = append(hops, h)
	}
	return hops, nil
}

// ErrNoPath is returned by Path when the target is not downstream of the source.
var ErrNoPath = errors.New("no lineage path")

// Path returns the shortest chain of asset IDs from -> to, inclusive.
func (t *Tracker) Path(from, to string) ([]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, id := range []string{from, to} {
		if _, ok := t.assets[id]; !ok {
			return nil, fmt.Errorf("asset %q: %w", id, core.ErrNotFound)
		}
	}
	path := t.graph.ShortestPath(from, to)
	if path == nil {
		return nil, fmt.Errorf("%s -> %s: %w", from, to, ErrNoPath)
	}
	return path, nil
}

// Edges returns all asset-level edges sorted by (From, To).
func (t *Tracker) Edges() []core.Edge {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]core.Edge, 0, len(t.edges))
	for _, e := range t.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// ColumnEdges returns all column-level edges sorted by (From, To).
func (t *Tracker) ColumnEdges() []core.ColumnEdge {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]core.ColumnEdge, 0, len(t.colEdges))
	for _, e := range t.colEdges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if a, b := out[i].From.String(), out[j].From.String(); a != b {
			return a < b
		}
		return out[i].To.String() < out[j].To.String()
	})
	return out
}

// Levels groups asset IDs by longest distance from a root.
func (t *Tracker) Levels() ([][]string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.graph.Levels()
}

// Stats summarizes the tracker contents.
func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return Stats{
		Assets:      len(t.assets),
		Edges:       len(t.edges),
		ColumnEdges: len(t.colEdges),
		Roots:       t.graph.Roots(),
		Leaves:      t.graph.Leaves(),
	}
}
