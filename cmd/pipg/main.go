package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bilusteknoloji/pipg/internal/cache"
	"github.com/bilusteknoloji/pipg/internal/config"
	"github.com/bilusteknoloji/pipg/internal/downloader"
	"github.com/bilusteknoloji/pipg/internal/graph"
	"github.com/bilusteknoloji/pipg/internal/installer"
	"github.com/bilusteknoloji/pipg/internal/lockfile"
	"github.com/bilusteknoloji/pipg/internal/markers"
	"github.com/bilusteknoloji/pipg/internal/pipgerr"
	"github.com/bilusteknoloji/pipg/internal/pubgrub"
	"github.com/bilusteknoloji/pipg/internal/pubgrub/report"
	"github.com/bilusteknoloji/pipg/internal/python"
	"github.com/bilusteknoloji/pipg/internal/registry"
	registrycache "github.com/bilusteknoloji/pipg/internal/registry/cache"
	"github.com/bilusteknoloji/pipg/internal/resolver/candidate"
	"github.com/bilusteknoloji/pipg/internal/tags"
)

var version = "0.0.0"

func main() {
	err := run()
	os.Exit(pipgerr.ExitCode(err))
}

func run() error {
	rootCmd := &cobra.Command{
		Use:           "pipg",
		Short:         "A fast Python package installer",
		Long:          "pipg is a drop-in replacement for pip install that resolves and downloads packages concurrently.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newInstallCmd(), newResolveCmd(), newLockCmd(), newCacheCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}

	return err
}

// commonFlags are the resolution options shared by install/resolve/lock.
type commonFlags struct {
	pythonBin  string
	indexURL   string
	extraIndex []string
	strategy   string
	prerelease string
	jobs       int
	verbose    bool
}

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().String("python", "python3", "Python binary to use")
	cmd.Flags().String("index-url", "", "Base URL of the package index (default: https://pypi.org/simple/)")
	cmd.Flags().StringSlice("extra-index-url", nil, "Additional package index URLs")
	cmd.Flags().String("strategy", "", "Version selection strategy: highest, lowest, lowest-direct")
	cmd.Flags().String("prerelease", "", "Prerelease policy: if-necessary, allow, explicit, disallow")
	cmd.Flags().IntP("jobs", "j", 0, "Max concurrent operations (default: GOMAXPROCS)")
	cmd.Flags().BoolP("verbose", "v", false, "Verbose output")
}

func parseCommonFlags(cmd *cobra.Command) commonFlags {
	pythonBin, _ := cmd.Flags().GetString("python")
	indexURL, _ := cmd.Flags().GetString("index-url")
	extraIndex, _ := cmd.Flags().GetStringSlice("extra-index-url")
	strategy, _ := cmd.Flags().GetString("strategy")
	prerelease, _ := cmd.Flags().GetString("prerelease")
	jobs, _ := cmd.Flags().GetInt("jobs")
	verbose, _ := cmd.Flags().GetBool("verbose")

	return commonFlags{pythonBin, indexURL, extraIndex, strategy, prerelease, jobs, verbose}
}

func (f commonFlags) overrides() config.Overrides {
	var jobs *int
	if f.jobs > 0 {
		jobs = &f.jobs
	}

	return config.Overrides{
		IndexURL:       f.indexURL,
		ExtraIndexURLs: f.extraIndex,
		Jobs:           jobs,
		Strategy:       f.strategy,
		Prerelease:     f.prerelease,
	}
}

func newLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelWarn
	if verbose {
		logLevel = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

// loadConfig resolves a config.Config for the current directory, overlaid
// with whatever flags the caller set.
func loadConfig(flags commonFlags) (config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return config.Config{}, pipgerr.NewUserInputError(fmt.Errorf("finding working directory: %w", err))
	}

	return config.Load(cwd, os.Getenv, flags.overrides())
}

// buildIndex turns a resolved Config into the registry.Index the solver
// queries against. Extra index URLs are not yet fanned out to a multi-index
// search (spec.md's single-index happy path); the first configured index is
// what install/resolve/lock all use.
func buildIndex(cfg config.Config) registry.Index {
	return registry.Index{
		URL: cfg.IndexURL,
		Capabilities: registry.IndexCapabilities{
			TreatForbiddenAsNotFound: cfg.TreatForbiddenAsNotFound[cfg.IndexURL],
		},
	}
}

// formatPythonVersion converts a compact version like "312" to dotted "3.12".
func formatPythonVersion(v string) string {
	if len(v) >= 2 {
		return v[:1] + "." + v[1:]
	}

	return v
}

// buildMarkersEnvironment translates a detected Python environment into the
// PEP 508 marker environment the solver and report.Context share.
func buildMarkersEnvironment(env *python.Environment) markers.Environment {
	pyVer := formatPythonVersion(env.PythonVersion)

	var sysPlatform, osName, implName string

	switch {
	case strings.HasPrefix(env.PlatformTag, "macosx"):
		sysPlatform = "darwin"
		osName = "posix"
	case strings.HasPrefix(env.PlatformTag, "linux"):
		sysPlatform = "linux"
		osName = "posix"
	default:
		sysPlatform = "linux"
		osName = "posix"
	}

	implName = "cpython"

	return markers.Environment{
		PythonVersion:         pyVer,
		PythonFullVersion:     pyVer,
		SysPlatform:           sysPlatform,
		OsName:                osName,
		PlatformSystem:        capitalize(sysPlatform),
		ImplementationName:    implName,
		ImplementationVersion: pyVer,
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	return strings.ToUpper(s[:1]) + s[1:]
}

// buildCompatTags generates the PEP 425 compatibility tags the candidate
// selector ranks wheels by, ordered highest-priority first.
func buildCompatTags(env *python.Environment) tags.Tags {
	pyVer := env.PythonVersion // e.g., "312"
	platform := tags.NormalizePlatform(env.PlatformTag)
	platforms := tags.ExpandPlatform(platform)

	major, _ := strconv.Atoi(pyVer[:1])
	minor, _ := strconv.Atoi(pyVer[1:])

	return tags.New("cp", [2]int{major, minor}, platforms, false)
}

// newRegistryClient wires a registry.Service with the on-disk envelope
// cache, for every subcommand that talks to an index.
func newRegistryClient(logger *slog.Logger) *registry.Service {
	httpClient := &http.Client{Timeout: 30 * time.Second}

	opts := []registry.Option{
		registry.WithHTTPClient(httpClient),
		registry.WithLogger(logger),
	}

	store, err := registrycache.New(registrycache.WithLogger(logger))
	if err != nil {
		logger.Debug("registry cache unavailable, continuing without it", slog.String("error", err.Error()))
	} else {
		opts = append(opts, registry.WithCache(store))
	}

	return registry.New(opts...)
}

// solveForEnv runs detection, config loading, and resolution together,
// since install/resolve/lock all need exactly this pipeline before they
// diverge on what to do with the result.
func solveForEnv(ctx context.Context, requirements []string, flags commonFlags, logger *slog.Logger) (*pubgrub.Solution, *registry.Service, pubgrub.Request, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, nil, pubgrub.Request{}, err
	}

	env, err := detectEnv(ctx, flags.pythonBin, logger)
	if err != nil {
		return nil, nil, pubgrub.Request{}, err
	}

	markerEnv := buildMarkersEnvironment(env)
	compatTags := buildCompatTags(env)
	idx := buildIndex(cfg)

	client := newRegistryClient(logger)

	req := pubgrub.Request{
		Requirements: requirements,
		Index:        idx,
		CompatTags:   compatTags,
		Strategy:     cfg.Strategy,
		Prerelease:   cfg.Prerelease,
	}

	opts := pubgrub.SolverOptions{Logger: logger, Env: markerEnv}

	sol, err := pubgrub.Solve(ctx, req, client, client, opts)
	if err != nil {
		return nil, nil, pubgrub.Request{}, wrapSolveError(err)
	}

	return sol, client, req, nil
}

// wrapSolveError classifies a pubgrub.Solve failure into the pipgerr kind
// the rest of the program switches exit codes and rendering on.
func wrapSolveError(err error) error {
	var nse *pubgrub.NoSolutionError
	if errors.As(err, &nse) {
		return pipgerr.NewResolutionError(err, nse.Conflict)
	}

	return pipgerr.NewNetworkError(err, false)
}

func printResolutionFailure(err error) {
	rep := report.Explain(err, report.Context{})

	fmt.Fprintln(os.Stderr, rep.Summary)

	for _, line := range rep.Derivation {
		fmt.Fprintf(os.Stderr, "  %s\n", line)
	}

	for _, hint := range rep.Hints {
		fmt.Fprintf(os.Stderr, "hint: %s\n", hint.Message)
	}
}

// --- install ---

func newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install [packages...]",
		Short: "Resolve, download, and install Python packages",
		Args:  cobra.MinimumNArgs(0),
		RunE:  runInstall,
	}

	addCommonFlags(cmd)
	cmd.Flags().StringP("requirements", "r", "", "Install from requirements file")
	cmd.Flags().String("target", "", "Target directory (default: auto-detect site-packages)")
	cmd.Flags().Bool("dry-run", false, "Show the plan without downloading or installing")

	return cmd
}

func runInstall(cmd *cobra.Command, args []string) error {
	start := time.Now()
	common := parseCommonFlags(cmd)
	reqFile, _ := cmd.Flags().GetString("requirements")
	targetDir, _ := cmd.Flags().GetString("target")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	requirements, err := collectRequirements(args, reqFile)
	if err != nil {
		return err
	}

	if len(requirements) == 0 {
		return pipgerr.NewUserInputError(fmt.Errorf("no packages specified; use 'pipg install <pkg>' or 'pipg install -r requirements.txt'"))
	}

	logger := newLogger(common.verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Println("Resolving dependencies...")

	sol, client, req, err := solveForEnv(ctx, requirements, common, logger)
	if err != nil {
		if _, ok := err.(*pipgerr.ResolutionError); ok {
			printResolutionFailure(err)
		}

		return err
	}

	g := graph.Build(sol)
	printGraph(g)

	dists, err := pubgrub.DistributionsFor(ctx, req, client, sol)
	if err != nil {
		return pipgerr.NewMetadataError(err)
	}

	plans, err := buildDownloadRequests(g, dists)
	if err != nil {
		return err
	}

	if dryRun {
		printDryRun(plans)

		return nil
	}

	env, err := detectEnv(ctx, common.pythonBin, logger)
	if err != nil {
		return err
	}

	if targetDir != "" {
		absTarget, err := filepath.Abs(targetDir)
		if err != nil {
			return pipgerr.NewUserInputError(fmt.Errorf("resolving target directory: %w", err))
		}

		env.SitePackages = absTarget
	}

	results, tmpDir, err := downloadPackages(ctx, plans, common.jobs, logger)
	if err != nil {
		return err
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	printDownloadResults(results)

	fmt.Println("\nInstalling...")

	inst := installer.New(env, installer.WithLogger(logger))
	if err := inst.Install(ctx, results); err != nil {
		return pipgerr.NewUserInputError(fmt.Errorf("installing packages: %w", err))
	}

	fmt.Printf("  %d packages installed\n", len(results))
	fmt.Printf("\nDone in %.1fs\n", time.Since(start).Seconds())

	return nil
}

// --- resolve ---

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve [packages...]",
		Short: "Resolve dependencies and print the resulting graph, without installing",
		Args:  cobra.MinimumNArgs(0),
		RunE:  runResolve,
	}

	addCommonFlags(cmd)
	cmd.Flags().StringP("requirements", "r", "", "Resolve from requirements file")

	return cmd
}

func runResolve(cmd *cobra.Command, args []string) error {
	common := parseCommonFlags(cmd)
	reqFile, _ := cmd.Flags().GetString("requirements")

	requirements, err := collectRequirements(args, reqFile)
	if err != nil {
		return err
	}

	if len(requirements) == 0 {
		return pipgerr.NewUserInputError(fmt.Errorf("no packages specified; use 'pipg resolve <pkg>' or 'pipg resolve -r requirements.txt'"))
	}

	logger := newLogger(common.verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sol, _, _, err := solveForEnv(ctx, requirements, common, logger)
	if err != nil {
		if _, ok := err.(*pipgerr.ResolutionError); ok {
			printResolutionFailure(err)
		}

		return err
	}

	printGraph(graph.Build(sol))

	return nil
}

// --- lock ---

func newLockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock [packages...]",
		Short: "Resolve dependencies and write pipg.lock",
		Args:  cobra.MinimumNArgs(0),
		RunE:  runLock,
	}

	addCommonFlags(cmd)
	cmd.Flags().StringP("requirements", "r", "", "Resolve from requirements file")
	cmd.Flags().String("output", "pipg.lock", "Lockfile path to write")

	return cmd
}

func runLock(cmd *cobra.Command, args []string) error {
	common := parseCommonFlags(cmd)
	reqFile, _ := cmd.Flags().GetString("requirements")
	output, _ := cmd.Flags().GetString("output")

	requirements, err := collectRequirements(args, reqFile)
	if err != nil {
		return err
	}

	if len(requirements) == 0 {
		return pipgerr.NewUserInputError(fmt.Errorf("no packages specified; use 'pipg lock <pkg>' or 'pipg lock -r requirements.txt'"))
	}

	logger := newLogger(common.verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sol, _, _, err := solveForEnv(ctx, requirements, common, logger)
	if err != nil {
		if _, ok := err.(*pipgerr.ResolutionError); ok {
			printResolutionFailure(err)
		}

		return err
	}

	g := graph.Build(sol)

	if err := lockfile.Write(output, lockfile.Encode(g)); err != nil {
		return pipgerr.NewUserInputError(err)
	}

	fmt.Printf("Wrote %s (%d packages)\n", output, len(g.Nodes))

	return nil
}

// --- cache ---

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "cache", Short: "Inspect or clear pipg's on-disk caches"}

	cmd.AddCommand(
		&cobra.Command{Use: "info", Short: "Print the location of each cache directory", RunE: runCacheInfo},
		&cobra.Command{Use: "clear", Short: "Remove every cached wheel and registry response", RunE: runCacheClear},
	)

	return cmd
}

func runCacheInfo(cmd *cobra.Command, args []string) error {
	logger := newLogger(false)

	wheelCache, err := cache.New(cache.WithLogger(logger))
	if err != nil {
		return pipgerr.NewCacheError(err)
	}

	regCache, err := registrycache.New(registrycache.WithLogger(logger))
	if err != nil {
		return pipgerr.NewCacheError(err)
	}

	fmt.Printf("wheel cache:    %s\n", wheelCache.Dir())
	fmt.Printf("registry cache: %s\n", regCache.Dir())

	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	logger := newLogger(false)

	wheelCache, err := cache.New(cache.WithLogger(logger))
	if err != nil {
		return pipgerr.NewCacheError(err)
	}

	regCache, err := registrycache.New(registrycache.WithLogger(logger))
	if err != nil {
		return pipgerr.NewCacheError(err)
	}

	if err := os.RemoveAll(wheelCache.Dir()); err != nil {
		return pipgerr.NewCacheError(err)
	}

	if err := os.RemoveAll(regCache.Dir()); err != nil {
		return pipgerr.NewCacheError(err)
	}

	fmt.Println("cleared both caches")

	return nil
}

// --- shared helpers ---

func detectEnv(ctx context.Context, pythonBin string, logger *slog.Logger) (*python.Environment, error) {
	pyDetector := python.New(python.WithPythonBin(pythonBin))

	env, err := pyDetector.Detect(ctx)
	if err != nil {
		return nil, pipgerr.NewUserInputError(fmt.Errorf("detecting Python environment: %w", err))
	}

	logger.Debug("detected Python environment",
		slog.String("prefix", env.Prefix),
		slog.String("site-packages", env.SitePackages),
		slog.String("platform", env.PlatformTag),
		slog.String("version", env.PythonVersion),
		slog.Bool("venv", env.IsVirtualEnv),
	)

	return env, nil
}

// downloadPlan is one package's resolved distribution, ready to download.
type downloadPlan struct {
	name    string
	version string
	dist    candidate.Distribution
}

// buildDownloadRequests pairs every non-extra node in g with its resolved
// distribution, rejecting an sdist-only distribution outright: building
// wheels from source is out of scope, so a package that resolved to only a
// source distribution is a policy violation here, not a build step.
func buildDownloadRequests(g *graph.Graph, dists map[string]candidate.Distribution) ([]downloadPlan, error) {
	var plans []downloadPlan

	for _, n := range g.Nodes {
		if n.Extra != "" {
			continue
		}

		dist, ok := dists[n.Package]
		if !ok {
			continue
		}

		if !dist.IsWheel {
			return nil, pipgerr.NewPolicyError(fmt.Errorf("%s %s resolved to a source distribution only; building from source is not supported", n.Package, n.Version))
		}

		plans = append(plans, downloadPlan{name: n.Package, version: n.Version, dist: dist})
	}

	return plans, nil
}

func printDryRun(plans []downloadPlan) {
	fmt.Printf("\nWould download %d packages:\n", len(plans))

	for _, p := range plans {
		fmt.Printf("  %s (%s)\n", p.dist.File.Filename, formatSize(p.dist.File.Size))
	}

	fmt.Println("\nDry run, no changes made.")
}

func printDownloadResults(results []downloader.Result) {
	for _, r := range results {
		suffix := ""
		if r.Cached {
			suffix = " (cached)"
		}

		fmt.Printf("  %s (%s)%s\n", filepath.Base(r.FilePath), formatSize(r.Size), suffix)
	}
}

func downloadPackages(ctx context.Context, plans []downloadPlan, jobs int, logger *slog.Logger) ([]downloader.Result, string, error) {
	tmpDir, err := os.MkdirTemp("", "pipg-downloads-*")
	if err != nil {
		return nil, "", pipgerr.NewUserInputError(fmt.Errorf("creating temp directory: %w", err))
	}

	requests := make([]downloader.Request, len(plans))
	for i, p := range plans {
		requests[i] = downloader.Request{
			Name:     p.name,
			Version:  p.version,
			URL:      p.dist.File.URL,
			SHA256:   p.dist.File.Hashes["sha256"],
			Filename: p.dist.File.Filename,
		}
	}

	workers := runtime.GOMAXPROCS(0)
	if jobs > 0 {
		workers = jobs
	}

	fmt.Printf("\nDownloading %d packages (%d workers)...\n", len(requests), workers)

	httpClient := &http.Client{Timeout: 30 * time.Second}

	wheelCache, err := cache.New(cache.WithLogger(logger))
	if err != nil {
		logger.Debug("wheel cache unavailable, continuing without cache", slog.String("error", err.Error()))
	}

	dlOpts := []downloader.Option{
		downloader.WithHTTPClient(httpClient),
		downloader.WithLogger(logger),
	}

	if wheelCache != nil {
		dlOpts = append(dlOpts, downloader.WithCache(wheelCache))
	}

	if jobs > 0 {
		dlOpts = append(dlOpts, downloader.WithMaxWorkers(jobs))
	}

	dlManager := downloader.New(tmpDir, dlOpts...)

	results, err := dlManager.Download(ctx, requests)
	if err != nil {
		_ = os.RemoveAll(tmpDir)

		return nil, "", pipgerr.NewNetworkError(fmt.Errorf("downloading packages: %w", err), false)
	}

	return results, tmpDir, nil
}

// collectRequirements merges CLI args and requirements file entries.
func collectRequirements(args []string, reqFile string) ([]string, error) {
	var requirements []string

	requirements = append(requirements, args...)

	if reqFile != "" {
		fileReqs, err := parseRequirementsFile(reqFile)
		if err != nil {
			return nil, err
		}

		requirements = append(requirements, fileReqs...)
	}

	return requirements, nil
}

// parseRequirementsFile reads a pip-compatible requirements file.
// Skips comments, empty lines, and pip options (lines starting with -).
func parseRequirementsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pipgerr.NewUserInputError(fmt.Errorf("opening requirements file %s: %w", path, err))
	}
	defer func() { _ = f.Close() }()

	var reqs []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Strip inline comments.
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}

		// Skip empty lines and pip options (e.g., --index-url, -e, -c).
		if line == "" || strings.HasPrefix(line, "-") {
			continue
		}

		reqs = append(reqs, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, pipgerr.NewUserInputError(fmt.Errorf("reading requirements file %s: %w", path, err))
	}

	return reqs, nil
}

// printGraph prints every resolved package and its outgoing edges as an
// adjacency list, in the graph's canonical (sorted) node order.
func printGraph(g *graph.Graph) {
	children := make(map[int][]int)
	for _, e := range g.Edges {
		children[int(e.From)] = append(children[int(e.From)], int(e.To))
	}

	for i, n := range g.Nodes {
		if n.Extra != "" {
			continue
		}

		fmt.Printf("%s %s\n", n.Package, n.Version)

		for _, ci := range children[i] {
			child := g.Nodes[ci]
			label := child.Package

			if child.Extra != "" {
				label = fmt.Sprintf("%s[%s]", child.Package, child.Extra)
			}

			fmt.Printf("  -> %s %s\n", label, child.Version)
		}
	}
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	switch {
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%d KB", bytes/(1<<10))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
