package lockfile

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/bilusteknoloji/pipg/internal/graph"
)

func sampleGraph() *graph.Graph {
	g := &graph.Graph{
		Nodes: []graph.Node{
			{Package: "a", Version: "1.0.0"},
			{Package: "b", Version: "2.0.0"},
			{Package: "c", Version: "3.0.0"},
		},
		Edges: []graph.Edge{
			{From: 0, To: 1},
			{From: 0, To: 2, Marker: `sys_platform == "win32"`},
		},
	}
	g.Canon()

	return g
}

func TestEncodeDecodeRoundTrips(t *testing.T) {
	g := sampleGraph()

	lf := Encode(g)

	got, err := Decode(lf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if !reflect.DeepEqual(got, g) {
		t.Errorf("got %+v, want %+v", got, g)
	}
}

func TestWriteReadRoundTrips(t *testing.T) {
	g := sampleGraph()
	lf := Encode(g)

	path := filepath.Join(t.TempDir(), "pipg.lock")

	if err := Write(path, lf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	back, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if !reflect.DeepEqual(back, lf) {
		t.Errorf("got %+v, want %+v", back, lf)
	}
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	_, err := Decode(&Lockfile{Version: 99})
	if err == nil {
		t.Fatal("expected an error for an unsupported lockfile version")
	}
}

func TestDecodeRejectsDanglingDependency(t *testing.T) {
	lf := &Lockfile{
		Version: CurrentVersion,
		Packages: []Package{
			{Name: "a", Version: "1.0.0", Dependencies: []Dependency{{Name: "ghost"}}},
		},
	}

	_, err := Decode(lf)
	if err == nil {
		t.Fatal("expected an error for a dependency with no matching package entry")
	}
}

func TestEncodeIsDeterministicAcrossInputOrder(t *testing.T) {
	g1 := &graph.Graph{
		Nodes: []graph.Node{{Package: "b", Version: "1.0.0"}, {Package: "a", Version: "1.0.0"}},
	}
	g1.Canon()

	g2 := &graph.Graph{
		Nodes: []graph.Node{{Package: "a", Version: "1.0.0"}, {Package: "b", Version: "1.0.0"}},
	}
	g2.Canon()

	if !reflect.DeepEqual(Encode(g1), Encode(g2)) {
		t.Error("expected Encode to produce the same output regardless of input node order")
	}
}
