// Package graph builds the final resolution graph out of a pubgrub.Solution
// (or a forked set of them): a deterministic, dedup'd DAG of resolved
// packages and the dependency edges between them, optionally annotated with
// the marker that gates an edge when more than one Python version target
// produced a different outcome.
//
// Grounded on deps.dev/util/resolve's Graph/NodeID/Edge shape — an arena of
// nodes addressed by small integer index, edges as (from, to, ...) triples
// — the strongest structural precedent in the pack for a DAG addressed by
// integer index rather than pointers, adapted from that package's
// multi-ecosystem VersionKey down to this module's PyPI-only package
// identity.
package graph

import (
	"fmt"
	"sort"

	"github.com/bilusteknoloji/pipg/internal/markers"
	"github.com/bilusteknoloji/pipg/internal/pubgrub"
)

// NodeID identifies a node in a Graph; always scoped to that Graph, and an
// index into its Nodes slice.
type NodeID int

// Node is one resolved package at a single concrete version.
type Node struct {
	Package string
	Extra   string
	Version string
}

// Edge is a dependency relationship from an importer Node to an imported
// Node. Marker is empty for an edge that holds under every resolved branch;
// non-empty for one that only held under some target Python versions (see
// UnionForked).
type Edge struct {
	From   NodeID
	To     NodeID
	Marker string
}

// Graph holds the result of dependency resolution: every resolved package
// and the edges between them, built from one or more pubgrub.Solutions.
type Graph struct {
	Nodes []Node
	Edges []Edge
}

// Build constructs a Graph from a single (unforked) Solution.
func Build(sol *pubgrub.Solution) *Graph {
	g := &Graph{}

	index := make(map[pubgrub.Name]NodeID, len(sol.Decisions))

	for _, d := range sol.Decisions {
		id := NodeID(len(g.Nodes))
		g.Nodes = append(g.Nodes, Node{Package: d.Name.Package, Extra: d.Name.Extra, Version: d.Version.String()})
		index[d.Name] = id
	}

	for _, e := range sol.Edges {
		from, ok := index[e.Parent]
		if !ok {
			continue
		}

		to, ok := index[e.Child]
		if !ok {
			// A dependency on a package outside the solved set (e.g. an
			// extra variant nobody requested) never became a node; no edge
			// without both endpoints.
			continue
		}

		g.Edges = append(g.Edges, Edge{From: from, To: to})
	}

	g.Canon()

	return g
}

// UnionForked merges every branch of a ForkedSolution into one Graph, with
// one node per (package, extra, version) seen in any branch; nodes carry no
// marker. An edge present in every branch is carried over unmarked; one
// present in only a strict subset is tagged with the OR ("or"-joined PEP 508
// marker expression) of the branches it survives in, so Flatten can later
// decide whether it applies to a given target environment.
func UnionForked(forked *pubgrub.ForkedSolution) *Graph {
	if len(forked.Branches) == 1 && forked.Branches[0].Marker == "" {
		return Build(forked.Branches[0].Solution)
	}

	type occurrence struct {
		markers []string
	}

	type nodeKey struct {
		name    pubgrub.Name
		version string
	}

	nodeOccurrence := make(map[nodeKey]*occurrence)
	edgeOccurrence := make(map[[2]nodeKey]*occurrence)

	for _, branch := range forked.Branches {
		branchVersion := make(map[pubgrub.Name]string, len(branch.Solution.Decisions))

		for _, d := range branch.Solution.Decisions {
			node := nodeKey{name: d.Name, version: d.Version.String()}
			branchVersion[d.Name] = node.version

			occ, ok := nodeOccurrence[node]
			if !ok {
				occ = &occurrence{}
				nodeOccurrence[node] = occ
			}

			occ.markers = append(occ.markers, branch.Marker)
		}

		for _, e := range branch.Solution.Edges {
			key := [2]nodeKey{{e.Parent, branchVersion[e.Parent]}, {e.Child, branchVersion[e.Child]}}

			occ, ok := edgeOccurrence[key]
			if !ok {
				occ = &occurrence{}
				edgeOccurrence[key] = occ
			}

			occ.markers = append(occ.markers, branch.Marker)
		}
	}

	total := len(forked.Branches)

	g := &Graph{}
	index := make(map[nodeKey]NodeID, len(nodeOccurrence))

	keys := make([]nodeKey, 0, len(nodeOccurrence))
	for key := range nodeOccurrence {
		keys = append(keys, key)
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].name != keys[j].name {
			return nameLess(keys[i].name, keys[j].name)
		}

		return keys[i].version < keys[j].version
	})

	for _, key := range keys {
		id := NodeID(len(g.Nodes))
		g.Nodes = append(g.Nodes, Node{Package: key.name.Package, Extra: key.name.Extra, Version: key.version})
		index[key] = id
	}

	for key, occ := range edgeOccurrence {
		from, ok := index[key[0]]
		if !ok {
			continue
		}

		to, ok := index[key[1]]
		if !ok {
			continue
		}

		g.Edges = append(g.Edges, Edge{From: from, To: to, Marker: occurrenceMarker(occ.markers, total)})
	}

	g.Canon()

	return g
}

// occurrenceMarker returns "" if markers covers every branch (the edge/node
// holds unconditionally), otherwise the OR of the branch markers it does
// hold under.
func occurrenceMarker(branchMarkers []string, total int) string {
	if len(branchMarkers) >= total {
		return ""
	}

	if len(branchMarkers) == 1 {
		return branchMarkers[0]
	}

	joined := branchMarkers[0]
	for _, m := range branchMarkers[1:] {
		joined = fmt.Sprintf("(%s) or (%s)", joined, m)
	}

	return joined
}

func nameLess(a, b pubgrub.Name) bool {
	if a.Package != b.Package {
		return a.Package < b.Package
	}

	return a.Extra < b.Extra
}

// Canon sorts Nodes into a canonical, input-order-independent ordering
// (package, then extra, then version) and renumbers Edges to match, so two
// graphs built from the same logical solution always compare equal
// regardless of map/slice iteration order upstream. Grounded on
// deps.dev/util/resolve's Graph.Canon, simplified since this module's nodes
// are already deduplicated by construction (one node per pubgrub.Name and
// version) and
// never need the BFS tie-break that package's duplicate-node case requires.
func (g *Graph) Canon() {
	type indexed struct {
		node Node
		old  NodeID
	}

	ordered := make([]indexed, len(g.Nodes))
	for i, n := range g.Nodes {
		ordered[i] = indexed{node: n, old: NodeID(i)}
	}

	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i].node, ordered[j].node
		if a.Package != b.Package {
			return a.Package < b.Package
		}

		if a.Extra != b.Extra {
			return a.Extra < b.Extra
		}

		return a.Version < b.Version
	})

	oldToNew := make(map[NodeID]NodeID, len(ordered))
	nodes := make([]Node, len(ordered))

	for newID, o := range ordered {
		oldToNew[o.old] = NodeID(newID)
		nodes[newID] = o.node
	}

	g.Nodes = nodes

	for i, e := range g.Edges {
		g.Edges[i] = Edge{From: oldToNew[e.From], To: oldToNew[e.To], Marker: e.Marker}
	}

	sort.Slice(g.Edges, func(i, j int) bool {
		ei, ej := g.Edges[i], g.Edges[j]
		if ei.From != ej.From {
			return ei.From < ej.From
		}

		if ei.To != ej.To {
			return ei.To < ej.To
		}

		return ei.Marker < ej.Marker
	})

	g.dedupEdges()
}

func (g *Graph) dedupEdges() {
	if len(g.Edges) == 0 {
		return
	}

	out := g.Edges[:1]

	for _, e := range g.Edges[1:] {
		last := out[len(out)-1]
		if e == last {
			continue
		}

		out = append(out, e)
	}

	g.Edges = out
}

// Flatten prunes every edge whose Marker doesn't hold under env (an
// unmarked edge always holds) and returns the set of package names
// reachable from rootNames through the surviving edges — the actual
// install set for a concrete target environment.
func (g *Graph) Flatten(env markers.Environment, rootNames []string) map[string]bool {
	adjacency := make(map[NodeID][]NodeID)

	for _, e := range g.Edges {
		if e.Marker != "" && !markers.Eval(e.Marker, env) {
			continue
		}

		adjacency[e.From] = append(adjacency[e.From], e.To)
	}

	byPackage := make(map[string][]NodeID)
	for i, n := range g.Nodes {
		byPackage[n.Package] = append(byPackage[n.Package], NodeID(i))
	}

	visited := make(map[NodeID]bool)

	var queue []NodeID

	for _, name := range rootNames {
		queue = append(queue, byPackage[name]...)
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if visited[id] {
			continue
		}

		visited[id] = true
		queue = append(queue, adjacency[id]...)
	}

	reachable := make(map[string]bool, len(visited))
	for id := range visited {
		reachable[g.Nodes[id].Package] = true
	}

	return reachable
}
