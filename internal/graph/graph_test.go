package graph

import (
	"testing"

	"github.com/bilusteknoloji/pipg/internal/markers"
	"github.com/bilusteknoloji/pipg/internal/pubgrub"
	"github.com/bilusteknoloji/pipg/internal/pypiver"
)

func mustVersion(t *testing.T, s string) pypiver.Version {
	t.Helper()

	v, err := pypiver.Parse(s)
	if err != nil {
		t.Fatalf("parsing version %q: %v", s, err)
	}

	return v
}

func TestBuildOrdersNodesCanonically(t *testing.T) {
	sol := &pubgrub.Solution{
		Decisions: []pubgrub.Decision{
			{Name: pubgrub.Name{Package: "b"}, Version: mustVersion(t, "1.0.0")},
			{Name: pubgrub.Name{Package: "a"}, Version: mustVersion(t, "2.0.0")},
		},
		Edges: []pubgrub.Edge{
			{Parent: pubgrub.Name{Package: "a"}, Child: pubgrub.Name{Package: "b"}},
		},
	}

	g := Build(sol)

	if len(g.Nodes) != 2 || g.Nodes[0].Package != "a" || g.Nodes[1].Package != "b" {
		t.Fatalf("got nodes %+v, want [a b] in canonical order", g.Nodes)
	}

	if len(g.Edges) != 1 || g.Edges[0].From != 0 || g.Edges[0].To != 1 {
		t.Fatalf("got edges %+v, want a single edge 0->1", g.Edges)
	}
}

func TestBuildDropsEdgesToUnresolvedExtras(t *testing.T) {
	sol := &pubgrub.Solution{
		Decisions: []pubgrub.Decision{
			{Name: pubgrub.Name{Package: "a"}, Version: mustVersion(t, "1.0.0")},
		},
		Edges: []pubgrub.Edge{
			{Parent: pubgrub.Name{Package: "a"}, Child: pubgrub.Name{Package: "b", Extra: "never-requested"}},
		},
	}

	g := Build(sol)

	if len(g.Edges) != 0 {
		t.Errorf("got %d edges, want 0 (child was never decided)", len(g.Edges))
	}
}

func TestUnionForkedCollapsesSingleBranch(t *testing.T) {
	forked := &pubgrub.ForkedSolution{
		Branches: []pubgrub.SolutionBranch{
			{Marker: "", Solution: &pubgrub.Solution{
				Decisions: []pubgrub.Decision{{Name: pubgrub.Name{Package: "a"}, Version: mustVersion(t, "1.0.0")}},
			}},
		},
	}

	g := UnionForked(forked)

	if len(g.Nodes) != 1 || g.Nodes[0].Package != "a" {
		t.Fatalf("got %+v, want a single unmarked node", g.Nodes)
	}
}

func TestUnionForkedTagsPartitionedNodes(t *testing.T) {
	forked := &pubgrub.ForkedSolution{
		Branches: []pubgrub.SolutionBranch{
			{Marker: `python_version == "3.9.0"`, Solution: &pubgrub.Solution{
				Decisions: []pubgrub.Decision{
					{Name: pubgrub.Name{Package: "a"}, Version: mustVersion(t, "1.0.0")},
				},
			}},
			{Marker: `python_version == "3.12.0"`, Solution: &pubgrub.Solution{
				Decisions: []pubgrub.Decision{
					{Name: pubgrub.Name{Package: "a"}, Version: mustVersion(t, "2.0.0")},
				},
			}},
		},
	}

	g := UnionForked(forked)

	if len(g.Nodes) != 2 {
		t.Fatalf("got %d nodes, want 2 (a@1.0.0 under 3.9, a@2.0.0 under 3.12)", len(g.Nodes))
	}

	for _, n := range g.Nodes {
		if n.Package != "a" {
			t.Errorf("unexpected node %+v", n)
		}
	}
}

func TestFlattenPrunesMarkerGatedEdges(t *testing.T) {
	g := &Graph{
		Nodes: []Node{
			{Package: "root"},
			{Package: "a"},
			{Package: "b"},
		},
		Edges: []Edge{
			{From: 0, To: 1},
			{From: 0, To: 2, Marker: `sys_platform == "win32"`},
		},
	}
	g.Canon()

	reachable := g.Flatten(markers.Environment{SysPlatform: "linux"}, []string{"root"})

	if !reachable["a"] {
		t.Error("expected a reachable (unmarked edge always holds)")
	}

	if reachable["b"] {
		t.Error("expected b unreachable (marker excludes linux)")
	}
}
