// Package lineage tracks how data flows between catalogued assets.
//
// A Tracker holds two graphs: an asset-level graph keyed by asset ID and a
// column-level graph keyed by "asset#column". Column edges imply the matching
// asset edge. Both graphs stay acyclic: an edge that would close a loop is
// rejected with core.ErrCycle.
//
// # Basic Usage
//
//	t := lineage.NewTracker()
//	_ = t.AddAsset(orders)
//	_ = t.AddAsset(dailyRevenue)
//	_ = t.AddEdge(core.Edge{From: orders.ID, To: dailyRevenue.ID, Job: "build_revenue"})
//
//	hops, _ := t.Downstream(orders.ID, 0)
//	for _, h := range hops {
//	    fmt.Printf("%s (depth %d, via %s)\n", h.ID, h.Depth, h.Via)
//	}
//
// Pipelines declared in YAML are applied with LoadPipelines.
package lineage
