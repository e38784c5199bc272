// Package config merges environment variables, a pipg.toml or
// pyproject.toml "[tool.pipg]" table, and CLI flags into one resolved
// Config, following the same env-var-with-injectable-lookup idiom as
// internal/python.Service's getenv field and the PIPG_CACHE_DIR precedent
// already established in internal/cache.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/bilusteknoloji/pipg/internal/pipgerr"
	"github.com/bilusteknoloji/pipg/internal/resolver/candidate"
)

// Config is the fully resolved set of options every component that needs
// one reads from, after file/env/flag merging.
type Config struct {
	IndexURL            string
	ExtraIndexURLs      []string
	CacheDir            string
	Jobs                int
	Strategy            candidate.Strategy
	Prerelease          candidate.PrereleasePolicy
	SourceBuildDisabled bool
	// TreatForbiddenAsNotFound maps an index URL to whether that index
	// answers an unknown project with 403 instead of 404 — the same
	// per-index quirk registry.IndexCapabilities carries, configured here
	// since it's a property of the index the user names, not something
	// the client can detect on its own.
	TreatForbiddenAsNotFound map[string]bool
}

// Default returns the configuration pipg uses when no file, env var, or
// flag overrides a setting.
func Default() Config {
	return Config{
		IndexURL:                 "https://pypi.org/simple/",
		Jobs:                     0, // 0 means "GOMAXPROCS", matching the teacher's installCmd default
		Strategy:                 candidate.Highest,
		Prerelease:               candidate.PrereleaseIfNecessary,
		SourceBuildDisabled:      false,
		TreatForbiddenAsNotFound: make(map[string]bool),
	}
}

// Overrides carries the CLI flag values a cobra command parsed — the
// highest-precedence layer. A nil/empty field means "the flag wasn't set,"
// leaving the env-var or file value (if any) in place.
type Overrides struct {
	IndexURL         string
	ExtraIndexURLs   []string
	CacheDir         string
	Jobs             *int
	Strategy         string
	Prerelease       string
	NoBuildIsolation *bool
}

// Load resolves a Config for a project rooted at projectDir: it starts from
// Default, overlays a pipg.toml or pyproject.toml "[tool.pipg]" table found
// under projectDir, overlays environment variables read through getenv, and
// finally overlays overrides — each layer only replacing a field the layer
// beneath it actually set. getenv is injectable the way
// internal/python.Service.getenv is, defaulting to os.Getenv in production
// and a fake map in tests.
func Load(projectDir string, getenv func(string) string, overrides Overrides) (Config, error) {
	cfg := Default()

	fileCfg, found, err := readProjectFile(projectDir)
	if err != nil {
		return Config{}, pipgerr.NewUserInputError(err)
	}

	if found {
		if err := applyFileConfig(&cfg, fileCfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}

	if err := applyOverrides(&cfg, overrides); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// fileConfig mirrors the flat field set pipg.toml carries directly, or the
// table pyproject.toml carries under "[tool.pipg]" — the same shape either
// way, just nested one level deeper in the pyproject.toml case.
type fileConfig struct {
	IndexURL            string   `toml:"index-url"`
	ExtraIndexURLs      []string `toml:"extra-index-url"`
	CacheDir            string   `toml:"cache-dir"`
	Jobs                *int     `toml:"jobs"`
	Strategy            string   `toml:"strategy"`
	Prerelease          string   `toml:"prerelease"`
	NoBuildIsolation    *bool    `toml:"no-build-isolation"`
	ForbiddenAsNotFound []string `toml:"treat-forbidden-as-not-found"`
}

type pyprojectFile struct {
	Tool struct {
		Pipg fileConfig `toml:"pipg"`
	} `toml:"tool"`
}

// readProjectFile looks for projectDir/pipg.toml first (its fields live at
// the document root), then projectDir/pyproject.toml (its fields live under
// "[tool.pipg]"). found is false when neither file exists — that's not an
// error, since every field has a built-in default.
func readProjectFile(projectDir string) (fileConfig, bool, error) {
	pipgPath := filepath.Join(projectDir, "pipg.toml")
	if _, err := os.Stat(pipgPath); err == nil {
		var fc fileConfig
		if _, err := toml.DecodeFile(pipgPath, &fc); err != nil {
			return fileConfig{}, false, fmt.Errorf("parsing %s: %w", pipgPath, err)
		}

		return fc, true, nil
	}

	pyprojectPath := filepath.Join(projectDir, "pyproject.toml")
	if _, err := os.Stat(pyprojectPath); err == nil {
		var pf pyprojectFile
		if _, err := toml.DecodeFile(pyprojectPath, &pf); err != nil {
			return fileConfig{}, false, fmt.Errorf("parsing %s: %w", pyprojectPath, err)
		}

		return pf.Tool.Pipg, true, nil
	}

	return fileConfig{}, false, nil
}

func applyFileConfig(cfg *Config, fc fileConfig) error {
	if fc.IndexURL != "" {
		cfg.IndexURL = fc.IndexURL
	}

	if len(fc.ExtraIndexURLs) > 0 {
		cfg.ExtraIndexURLs = fc.ExtraIndexURLs
	}

	if fc.CacheDir != "" {
		cfg.CacheDir = fc.CacheDir
	}

	if fc.Jobs != nil {
		cfg.Jobs = *fc.Jobs
	}

	if fc.Strategy != "" {
		strategy, err := parseStrategy(fc.Strategy)
		if err != nil {
			return err
		}

		cfg.Strategy = strategy
	}

	if fc.Prerelease != "" {
		policy, err := parsePrerelease(fc.Prerelease)
		if err != nil {
			return err
		}

		cfg.Prerelease = policy
	}

	if fc.NoBuildIsolation != nil {
		cfg.SourceBuildDisabled = *fc.NoBuildIsolation
	}

	for _, url := range fc.ForbiddenAsNotFound {
		cfg.TreatForbiddenAsNotFound[url] = true
	}

	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv("PIPG_INDEX_URL"); v != "" {
		cfg.IndexURL = v
	}

	if v := getenv("PIPG_EXTRA_INDEX_URL"); v != "" {
		cfg.ExtraIndexURLs = strings.Split(v, ",")
	}

	if v := getenv("PIPG_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}

	if v := getenv("PIPG_JOBS"); v != "" {
		jobs, err := strconv.Atoi(v)
		if err != nil {
			return pipgerr.NewUserInputError(fmt.Errorf("PIPG_JOBS: %w", err))
		}

		cfg.Jobs = jobs
	}

	if v := getenv("PIPG_STRATEGY"); v != "" {
		strategy, err := parseStrategy(v)
		if err != nil {
			return err
		}

		cfg.Strategy = strategy
	}

	if v := getenv("PIPG_PRERELEASE"); v != "" {
		policy, err := parsePrerelease(v)
		if err != nil {
			return err
		}

		cfg.Prerelease = policy
	}

	if v := getenv("PIPG_NO_BUILD_ISOLATION"); v != "" {
		disabled, err := strconv.ParseBool(v)
		if err != nil {
			return pipgerr.NewUserInputError(fmt.Errorf("PIPG_NO_BUILD_ISOLATION: %w", err))
		}

		cfg.SourceBuildDisabled = disabled
	}

	return nil
}

func applyOverrides(cfg *Config, o Overrides) error {
	if o.IndexURL != "" {
		cfg.IndexURL = o.IndexURL
	}

	if len(o.ExtraIndexURLs) > 0 {
		cfg.ExtraIndexURLs = o.ExtraIndexURLs
	}

	if o.CacheDir != "" {
		cfg.CacheDir = o.CacheDir
	}

	if o.Jobs != nil {
		cfg.Jobs = *o.Jobs
	}

	if o.Strategy != "" {
		strategy, err := parseStrategy(o.Strategy)
		if err != nil {
			return err
		}

		cfg.Strategy = strategy
	}

	if o.Prerelease != "" {
		policy, err := parsePrerelease(o.Prerelease)
		if err != nil {
			return err
		}

		cfg.Prerelease = policy
	}

	if o.NoBuildIsolation != nil {
		cfg.SourceBuildDisabled = *o.NoBuildIsolation
	}

	return nil
}

func parseStrategy(s string) (candidate.Strategy, error) {
	switch s {
	case "highest":
		return candidate.Highest, nil
	case "lowest":
		return candidate.Lowest, nil
	case "lowest-direct":
		return candidate.LowestDirect, nil
	default:
		return 0, pipgerr.NewUserInputError(fmt.Errorf("unknown resolution strategy %q (want highest, lowest, or lowest-direct)", s))
	}
}

func parsePrerelease(s string) (candidate.PrereleasePolicy, error) {
	switch s {
	case "if-necessary":
		return candidate.PrereleaseIfNecessary, nil
	case "allow", "yes":
		return candidate.PrereleaseYes, nil
	case "explicit":
		return candidate.PrereleaseExplicit, nil
	case "disallow", "no":
		return candidate.PrereleaseNo, nil
	default:
		return 0, pipgerr.NewUserInputError(fmt.Errorf("unknown prerelease policy %q (want if-necessary, allow, explicit, or disallow)", s))
	}
}
