// Package lockfile serializes a resolution graph.Graph to and from
// pipg.lock, a deterministic TOML document: one "[[package]]" table per
// resolved node and a "dependency" sub-table per outgoing edge, grounded on
// the array-of-tables shape uv's own uv.lock uses for the same purpose.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/bilusteknoloji/pipg/internal/graph"
)

// CurrentVersion is written into every lockfile this package produces, and
// checked on read so a future incompatible format change can refuse to
// silently misinterpret an older lockfile.
const CurrentVersion = 1

// Lockfile is the on-disk TOML shape of pipg.lock.
type Lockfile struct {
	Version  int       `toml:"version"`
	Packages []Package `toml:"package"`
}

// Package is one resolved node: a package name (plus optional extra) at an
// exact version, with the dependency edges pipg resolved for it.
type Package struct {
	Name         string       `toml:"name"`
	Extra        string       `toml:"extra,omitempty"`
	Version      string       `toml:"version"`
	Dependencies []Dependency `toml:"dependency,omitempty"`
}

// Dependency is one outgoing edge from a Package, optionally gated by a
// PEP 508 marker when it only held for a subset of the resolved Python
// version targets (see internal/graph.UnionForked).
type Dependency struct {
	Name   string `toml:"name"`
	Extra  string `toml:"extra,omitempty"`
	Marker string `toml:"marker,omitempty"`
}

// Encode converts g into the serializable Lockfile shape. Since g.Canon
// already sorted Nodes and Edges into a deterministic order, Encode's
// output is deterministic too — the same resolution always produces
// byte-identical TOML, letting pipg.lock be diffed and committed
// meaningfully.
func Encode(g *graph.Graph) *Lockfile {
	lf := &Lockfile{Version: CurrentVersion, Packages: make([]Package, len(g.Nodes))}

	for i, n := range g.Nodes {
		lf.Packages[i] = Package{Name: n.Package, Extra: n.Extra, Version: n.Version}
	}

	for _, e := range g.Edges {
		from := &lf.Packages[e.From]
		to := g.Nodes[e.To]
		from.Dependencies = append(from.Dependencies, Dependency{Name: to.Package, Extra: to.Extra, Marker: e.Marker})
	}

	return lf
}

// Decode reconstructs a graph.Graph from a Lockfile previously produced by
// Encode, re-running Canon so a hand-edited or reordered lockfile still
// round-trips to the same canonical form Build/UnionForked would have
// produced.
func Decode(lf *Lockfile) (*graph.Graph, error) {
	if lf.Version != CurrentVersion {
		return nil, fmt.Errorf("lockfile: unsupported version %d (pipg writes version %d)", lf.Version, CurrentVersion)
	}

	g := &graph.Graph{Nodes: make([]graph.Node, len(lf.Packages))}

	index := make(map[graph.Node]graph.NodeID, len(lf.Packages))

	for i, p := range lf.Packages {
		node := graph.Node{Package: p.Name, Extra: p.Extra, Version: p.Version}
		g.Nodes[i] = node
		index[node] = graph.NodeID(i)
	}

	for i, p := range lf.Packages {
		from := graph.NodeID(i)

		for _, dep := range p.Dependencies {
			to, ok := index[graph.Node{Package: dep.Name, Extra: dep.Extra, Version: depVersion(lf, dep)}]
			if !ok {
				return nil, fmt.Errorf("lockfile: dependency %s (extra %q) of %s has no matching [[package]] entry", dep.Name, dep.Extra, p.Name)
			}

			g.Edges = append(g.Edges, graph.Edge{From: from, To: to, Marker: dep.Marker})
		}
	}

	g.Canon()

	return g, nil
}

// depVersion finds the version a Dependency's (name, extra) pair resolved
// to, since a Dependency only names its target, not its version — the
// version lives on the matching Package entry.
func depVersion(lf *Lockfile, dep Dependency) string {
	for _, p := range lf.Packages {
		if p.Name == dep.Name && p.Extra == dep.Extra {
			return p.Version
		}
	}

	return ""
}

// Write renders lf as TOML and writes it to path using the
// write-temp-then-rename pattern internal/cache.Manager.Put and
// internal/downloader already use, so a cancelled or crashed write never
// leaves a torn pipg.lock behind.
func Write(path string, lf *Lockfile) error {
	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp lockfile %s: %w", tmpPath, err)
	}

	if err := toml.NewEncoder(f).Encode(lf); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)

		return fmt.Errorf("encoding lockfile: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("closing temp lockfile: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("renaming lockfile into place: %w", err)
	}

	return nil
}

// Read loads and parses path into a Lockfile.
func Read(path string) (*Lockfile, error) {
	var lf Lockfile

	if _, err := toml.DecodeFile(path, &lf); err != nil {
		return nil, fmt.Errorf("parsing lockfile %s: %w", filepath.Clean(path), err)
	}

	return &lf, nil
}
