// Package viz renders lineage snapshots as HTML with inline SVG, JSON or
// Graphviz DOT.
package viz

import (
	"fmt"

	"github.com/leapstack-labs/leapmeta/internal/dag"
	"github.com/leapstack-labs/leapmeta/internal/lineage"
	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// Layout geometry in SVG user units.
const (
	NodeWidth  = 200
	NodeHeight = 48
	colGap     = 90
	rowGap     = 28
	padding    = 24
)

// typeColors maps asset types to fill colours.
var typeColors = map[core.AssetType]string{
	core.AssetTable:   "#4e79a7",
	core.AssetView:    "#76b7b2",
	core.AssetFile:    "#f28e2b",
	core.AssetDataset: "#59a14f",
	core.AssetReport:  "#e15759",
	core.AssetObject:  "#b07aa1",
}

// ColorOf returns the fill colour of an asset type.
func ColorOf(t core.AssetType) string {
	if c, ok := typeColors[t]; ok {
		return c
	}
	return "#9c9c9c"
}

// PlacedNode is a node with its position.
type PlacedNode struct {
	lineage.Node
	Layer int
	Row   int
	X, Y  int
	Color string
}

// PlacedEdge is an edge with its endpoints.
type PlacedEdge struct {
	core.Edge
	X1, Y1, X2, Y2 int
}

// Path returns the SVG path of the edge as a horizontal bezier.
func (e PlacedEdge) Path() string {
	mid := (e.X1 + e.X2) / 2
	return fmt.Sprintf("M%d %d C%d %d, %d %d, %d %d", e.X1, e.Y1, mid, e.Y1, mid, e.Y2, e.X2, e.Y2)
}

// LabelX is the x coordinate of the edge label.
func (e PlacedEdge) LabelX() int { return (e.X1 + e.X2) / 2 }

// LabelY is the y coordinate of the edge label.
func (e PlacedEdge) LabelY() int { return (e.Y1+e.Y2)/2 - 6 }

// Placement is a positioned snapshot.
type Placement struct {
	Nodes  []PlacedNode
	Edges  []PlacedEdge
	Layers int
	Width  int
	Height int
}

// Layout lays out a snapshot left to right. Each node's layer is its
// longest distance from a root; rows within a layer follow ID order.
func Layout(snap *lineage.Snapshot) *Placement {
	g := dag.NewGraph()
	for _, n := range snap.Nodes {
		g.AddNode(n.ID, n)
	}
	for _, e := range snap.Edges {
		_ = g.AddEdge(e.From, e.To)
	}

	levels, err := g.Levels()
	if err != nil {
		// Snapshots come from an acyclic tracker; fall back to one column.
		var ids []string
		for _, n := range g.Nodes() {
			ids = append(ids, n.ID)
		}
		levels = [][]string{ids}
	}

	l := &Placement{Layers: len(levels)}
	pos := make(map[string]PlacedNode, len(snap.Nodes))
	maxRows := 0
	for layer, ids := range levels {
		maxRows = max(maxRows, len(ids))
		for row, id := range ids {
			node, _ := g.GetNode(id)
			n := node.Data.(lineage.Node)
			p := PlacedNode{
				Node:  n,
				Layer: layer,
				Row:   row,
				X:     padding + layer*(NodeWidth+colGap),
				Y:     padding + row*(NodeHeight+rowGap),
				Color: ColorOf(n.Type),
			}
			pos[id] = p
			l.Nodes = append(l.Nodes, p)
		}
	}

	for _, e := range snap.Edges {
		from, okFrom := pos[e.From]
		to, okTo := pos[e.To]
		if !okFrom || !okTo {
			continue
		}
		l.Edges = append(l.Edges, PlacedEdge{
			Edge: e,
			X1:   from.X + NodeWidth,
			Y1:   from.Y + NodeHeight/2,
			X2:   to.X,
			Y2:   to.Y + NodeHeight/2,
		})
	}

	l.Width = 2*padding + max(1, l.Layers)*(NodeWidth+colGap) - colGap
	l.Height = 2*padding + max(1, maxRows)*(NodeHeight+rowGap) - rowGap
	return l
}
