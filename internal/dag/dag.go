// Package dag provides directed graph operations for asset and column lineage.
// It supports cycle detection, topological layering, and bounded traversal.
package dag

import (
	"fmt"
	"slices"
	"sort"
)

// Node represents a node in the graph.
type Node struct {
	// ID is the unique identifier (asset ID or column ref)
	ID string
	// Data holds arbitrary node data
	Data any
}

// Direction selects which way a traversal follows edges.
type Direction int

const (
	// Upstream follows edges from child to parent (towards sources).
	Upstream Direction = iota
	// Downstream follows edges from parent to child (towards consumers).
	Downstream
)

func (d Direction) String() string {
	if d == Upstream {
		return "upstream"
	}
	return "downstream"
}

// Visit is one node reached by Walk.
type Visit struct {
	ID    string
	Depth int
	// Via is the neighbour the node was first reached from.
	Via string
}

// Graph represents a directed graph. Edges point from producer to consumer.
type Graph struct {
	nodes   map[string]*Node
	edges   map[string][]string // parent -> children (consumers)
	parents map[string][]string // child -> parents (producers)
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]*Node),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// AddNode adds a node to the graph, replacing its data if it already exists.
func (g *Graph) AddNode(id string, data any) {
	if node, exists := g.nodes[id]; exists {
		node.Data = data
		return
	}
	g.nodes[id] = &Node{ID: id, Data: data}
	g.edges[id] = []string{}
	g.parents[id] = []string{}
}

// HasNode reports whether id is in the graph.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// GetNode returns a node by ID.
func (g *Graph) GetNode(id string) (*Node, bool) {
	node, exists := g.nodes[id]
	return node, exists
}

// RemoveNode deletes a node and every edge touching it.
func (g *Graph) RemoveNode(id string) {
	if _, ok := g.nodes[id]; !ok {
		return
	}
	for _, child := range g.edges[id] {
		g.parents[child] = remove(g.parents[child], id)
	}
	for _, parent := range g.parents[id] {
		g.edges[parent] = remove(g.edges[parent], id)
	}
	delete(g.nodes, id)
	delete(g.edges, id)
	delete(g.parents, id)
}

// AddEdge adds a directed edge from parent to child (data flows parent -> child).
// Adding an existing edge is a no-op.
func (g *Graph) AddEdge(parentID, childID string) error {
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("child node %q does not exist", childID)
	}
	if parentID == childID {
		return fmt.Errorf("self-loop detected: %s", parentID)
	}

	if !slices.Contains(g.edges[parentID], childID) {
		g.edges[parentID] = append(g.edges[parentID], childID)
	}
	if !slices.Contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
	}
	return nil
}

// HasEdge reports whether parent -> child exists.
func (g *Graph) HasEdge(parentID, childID string) bool {
	return slices.Contains(g.edges[parentID], childID)
}

// Parents returns the sorted direct producers of a node.
func (g *Graph) Parents(id string) []string {
	return sorted(g.parents[id])
}

// Children returns the sorted direct consumers of a node.
func (g *Graph) Children(id string) []string {
	return sorted(g.edges[id])
}

// Nodes returns all nodes sorted by ID.
func (g *Graph) Nodes() []*Node {
	nodes := make([]*Node, 0, len(g.nodes))
	for _, node := range g.nodes {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].ID < nodes[j].ID
	})
	return nodes
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, children := range g.edges {
		count += len(children)
	}
	return count
}

// WouldCycle reports whether adding parent -> child would close a cycle.
func (g *Graph) WouldCycle(parentID, childID string) bool {
	if parentID == childID {
		return true
	}
	return g.reaches(childID, parentID)
}

// reaches reports whether to is reachable from from along child edges.
func (g *Graph) reaches(from, to string) bool {
	seen := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range g.edges[id] {
			if child == to {
				return true
			}
			if !seen[child] {
				seen[child] = true
				stack = append(stack, child)
			}
		}
	}
	return false
}

// HasCycle returns true if the graph contains a cycle, along with the cycle path.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make(map[string]string)

	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		recStack[id] = true

		for _, childID := range g.edges[id] {
			if !visited[childID] {
				path[childID] = id
				if dfs(childID) {
					return true
				}
			} else if recStack[childID] {
				cyclePath = []string{childID}
				for curr := id; curr != childID; curr = path[curr] {
					cyclePath = append([]string{curr}, cyclePath...)
				}
				cyclePath = append([]string{childID}, cyclePath...)
				return true
			}
		}

		recStack[id] = false
		return false
	}

	for _, id := range g.sortedIDs() {
		if !visited[id] && dfs(id) {
			return true, cyclePath
		}
	}
	return false, nil
}

// TopologicalSort returns node IDs with producers before consumers.
// Returns an error if the graph contains a cycle.
func (g *Graph) TopologicalSort() ([]string, error) {
	if hasCycle, cyclePath := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("cycle detected: %v", cyclePath)
	}

	visited := make(map[string]bool)
	result := make([]string, 0, len(g.nodes))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, parentID := range g.Parents(id) {
			visit(parentID)
		}
		result = append(result, id)
	}

	for _, id := range g.sortedIDs() {
		visit(id)
	}
	return result, nil
}

// Levels groups nodes by longest distance from a root.
// Level 0 contains nodes with no producers. Each level is sorted.
func (g *Graph) Levels() ([][]string, error) {
	if hasCycle, cyclePath := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("cycle detected: %v", cyclePath)
	}

	assigned := make(map[string]int, len(g.nodes))

	var getLevel func(id string) int
	getLevel = func(id string) int {
		if level, ok := assigned[id]; ok {
			return level
		}
		level := 0
		for _, parentID := range g.parents[id] {
			if l := getLevel(parentID) + 1; l > level {
				level = l
			}
		}
		assigned[id] = level
		return level
	}

	maxLevel := -1
	for id := range g.nodes {
		if level := getLevel(id); level > maxLevel {
			maxLevel = level
		}
	}

	levels := make([][]string, maxLevel+1)
	for id, level := range assigned {
		levels[level] = append(levels[level], id)
	}
	for i := range levels {
		sort.Strings(levels[i])
	}
	return levels, nil
}

// Walk traverses the graph breadth-first from start in the given direction.
// The start node is not included. Results are ordered by depth, then ID.
// maxDepth <= 0 means unlimited.
func (g *Graph) Walk(start string, dir Direction, maxDepth int) []Visit {
	if _, ok := g.nodes[start]; !ok {
		return nil
	}

	next := g.edges
	if dir == Upstream {
		next = g.parents
	}

	seen := map[string]bool{start: true}
	frontier := []string{start}
	var out []Visit

	for depth := 1; len(frontier) > 0 && (maxDepth <= 0 || depth <= maxDepth); depth++ {
		var level []Visit
		for _, id := range frontier {
			for _, n := range sorted(next[id]) {
				if seen[n] {
					continue
				}
				seen[n] = true
				level = append(level, Visit{ID: n, Depth: depth, Via: id})
			}
		}
		sort.Slice(level, func(i, j int) bool { return level[i].ID < level[j].ID })

		frontier = frontier[:0]
		for _, v := range level {
			frontier = append(frontier, v.ID)
		}
		out = append(out, level...)
	}
	return out
}

// ShortestPath returns the shortest downstream path from -> to, inclusive.
// It returns nil when to is unreachable.
func (g *Graph) ShortestPath(from, to string) []string {
	if _, ok := g.nodes[from]; !ok {
		return nil
	}
	if _, ok := g.nodes[to]; !ok {
		return nil
	}
	if from == to {
		return []string{from}
	}

	prev := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, child := range sorted(g.edges[id]) {
			if _, seen := prev[child]; seen {
				continue
			}
			prev[child] = id
			if child == to {
				path := []string{to}
				for curr := id; curr != ""; curr = prev[curr] {
					path = append(path, curr)
				}
				slices.Reverse(path)
				return path
			}
			queue = append(queue, child)
		}
	}
	return nil
}

// Roots returns nodes with no parents.
func (g *Graph) Roots() []string {
	var roots []string
	for id := range g.nodes {
		if len(g.parents[id]) == 0 {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)
	return roots
}

// Leaves returns nodes with no children.
func (g *Graph) Leaves() []string {
	var leaves []string
	for id := range g.nodes {
		if len(g.edges[id]) == 0 {
			leaves = append(leaves, id)
		}
	}
	sort.Strings(leaves)
	return leaves
}

// Subgraph returns a new graph containing only the specified nodes and their edges.
func (g *Graph) Subgraph(nodeIDs []string) *Graph {
	subgraph := NewGraph()
	nodeSet := make(map[string]bool)

	for _, id := range nodeIDs {
		if node, exists := g.nodes[id]; exists {
			nodeSet[id] = true
			subgraph.AddNode(id, node.Data)
		}
	}

	for id := range nodeSet {
		for _, childID := range g.edges[id] {
			if nodeSet[childID] {
				_ = subgraph.AddEdge(id, childID)
			}
		}
	}
	return subgraph
}

func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sorted(in []string) []string {
	out := slices.Clone(in)
	sort.Strings(out)
	return out
}

func remove(slice []string, str string) []string {
	out := slice[:0]
	for _, s := range slice {
		if s != str {
			out = append(out, s)
		}
	}
	return out
}
