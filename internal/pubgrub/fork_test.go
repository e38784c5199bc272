package pubgrub

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/bilusteknoloji/pipg/internal/markers"
	"github.com/bilusteknoloji/pipg/internal/registry"
	"github.com/bilusteknoloji/pipg/internal/resolver/candidate"
	"github.com/bilusteknoloji/pipg/internal/tags"
)

// fakeRegistry is a minimal candidate.Source + MetadataFetcher backed by an
// in-memory project table, letting ForkOnPythonVersions/Solve be exercised
// without a real index.
type fakeRegistry struct {
	projects map[string]*registry.ProjectIndex
	metadata map[string][]byte // keyed by filename
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{projects: make(map[string]*registry.ProjectIndex), metadata: make(map[string][]byte)}
}

func (f *fakeRegistry) addSdist(project, version string, requiresPython string, requiresDist ...string) {
	filename := fmt.Sprintf("%s-%s.tar.gz", project, version)

	idx, ok := f.projects[project]
	if !ok {
		idx = &registry.ProjectIndex{Name: project}
		f.projects[project] = idx
	}

	idx.Files = append(idx.Files, registry.File{Filename: filename, PackageType: "sdist"})

	var body strings.Builder

	fmt.Fprintf(&body, "Name: %s\n", project)
	fmt.Fprintf(&body, "Version: %s\n", version)

	if requiresPython != "" {
		fmt.Fprintf(&body, "Requires-Python: %s\n", requiresPython)
	}

	for _, d := range requiresDist {
		fmt.Fprintf(&body, "Requires-Dist: %s\n", d)
	}

	body.WriteString("\n")

	f.metadata[filename] = []byte(body.String())
}

func (f *fakeRegistry) SimpleDetail(ctx context.Context, idx registry.Index, project string) (*registry.ProjectIndex, error) {
	p, ok := f.projects[project]
	if !ok {
		return &registry.ProjectIndex{Name: project}, nil
	}

	return p, nil
}

func (f *fakeRegistry) WheelMetadata(ctx context.Context, idx registry.Index, file registry.File) ([]byte, error) {
	return f.metadata[file.Filename], nil
}

func TestForkOnPythonVersionsCollapsesWhenOutcomesAgree(t *testing.T) {
	reg := newFakeRegistry()
	reg.addSdist("a", "1.0.0", "")

	req := Request{
		Requirements: []string{"a"},
		CompatTags:   tags.Tags{},
		Strategy:     candidate.Highest,
		Prerelease:   candidate.PrereleaseIfNecessary,
	}

	forked, err := ForkOnPythonVersions(context.Background(), req, reg, reg, SolverOptions{}, []string{"3.9.0", "3.12.0"})
	if err != nil {
		t.Fatalf("ForkOnPythonVersions: %v", err)
	}

	if len(forked.Branches) != 1 {
		t.Fatalf("got %d branches, want 1 (outcomes agree, should collapse)", len(forked.Branches))
	}

	if forked.Branches[0].Marker != "" {
		t.Errorf("got marker %q, want empty for a collapsed single branch", forked.Branches[0].Marker)
	}
}

func TestForkOnPythonVersionsSplitsWhenOutcomesDiffer(t *testing.T) {
	reg := newFakeRegistry()
	reg.addSdist("a", "2.0.0", ">=3.10")
	reg.addSdist("a", "1.0.0", "")

	req := Request{
		Requirements: []string{"a"},
		CompatTags:   tags.Tags{},
		Strategy:     candidate.Highest,
		Prerelease:   candidate.PrereleaseIfNecessary,
	}

	forked, err := ForkOnPythonVersions(context.Background(), req, reg, reg, SolverOptions{}, []string{"3.9.0", "3.12.0"})
	if err != nil {
		t.Fatalf("ForkOnPythonVersions: %v", err)
	}

	if len(forked.Branches) != 2 {
		t.Fatalf("got %d branches, want 2 (a@2.0.0 requires python>=3.10, so 3.9 and 3.12 disagree)", len(forked.Branches))
	}

	versions := make(map[string]string)

	for _, b := range forked.Branches {
		versions[b.Marker] = decisionVersion(t, b.Solution, "a")
	}

	if versions[`python_version == "3.9.0"`] != "1.0.0" {
		t.Errorf("3.9 branch: got %v, want a@1.0.0", versions)
	}

	if versions[`python_version == "3.12.0"`] != "2.0.0" {
		t.Errorf("3.12 branch: got %v, want a@2.0.0", versions)
	}
}

func TestMarkerEnvironmentForOverridesPythonVersion(t *testing.T) {
	base := markers.Environment{PythonVersion: "3.9.0", SysPlatform: "linux"}

	env := markerEnvironmentFor(base, "3.12.0")
	if env.PythonVersion != "3.12.0" {
		t.Errorf("got %q, want 3.12.0", env.PythonVersion)
	}

	if env.SysPlatform != "linux" {
		t.Errorf("got %q, want linux preserved from base", env.SysPlatform)
	}
}
