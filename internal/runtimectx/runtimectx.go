package runtimectx

import (
	"path/filepath"

	"github.com/memogarden/memogarden-system/internal/kernerr"
)

// RuntimeContext is the process-wide, read-only bundle resolved once at
// startup (§5, §9 "Global state"): which verb invoked the process, where its
// data/config/log directories live, and the layered settings overlay. No
// component mutates it after Resolve returns.
type RuntimeContext struct {
	Verb     string
	Paths    Paths
	Settings Settings
	SoilPath string
	CorePath string
}

// Resolve computes a RuntimeContext for the given verb ("serve", "run", or
// "deploy"), honoring an optional explicit config_override path and an
// optional config.toml sibling found under the resolved config_dir.
func Resolve(verb, configOverride string) (RuntimeContext, error) {
	if verb == "" {
		verb = VerbRun
	}

	// First pass: locate config.toml using only verb defaults, env vars, and
	// an explicit override — config_dir can't be TOML-overridden before the
	// TOML file housing that override has even been found.
	bootPaths, err := ResolvePaths(verb, configOverride, DirOverrides{})
	if err != nil {
		return RuntimeContext{}, err
	}

	configPath := configOverride
	if configPath == "" {
		configPath = filepath.Join(bootPaths.ConfigDir, "config.toml")
	}

	dirOverrides, err := LoadDirOverrides(configPath)
	if err != nil {
		return RuntimeContext{}, err
	}

	// Second pass: re-resolve with config.toml's data_dir/config_dir/log_dir
	// folded in between the verb default and the env vars (§4.10).
	paths, err := ResolvePaths(verb, configOverride, dirOverrides)
	if err != nil {
		return RuntimeContext{}, err
	}

	settings, err := Overlay(NewViper(), configPath)
	if err != nil {
		return RuntimeContext{}, err
	}

	soilPath, err := ResolveDBPath(LayerSoil, paths)
	if err != nil {
		return RuntimeContext{}, err
	}
	corePath, err := ResolveDBPath(LayerCore, paths)
	if err != nil {
		return RuntimeContext{}, err
	}

	return RuntimeContext{
		Verb:     verb,
		Paths:    paths,
		Settings: settings,
		SoilPath: soilPath,
		CorePath: corePath,
	}, nil
}

// MustResolve is a convenience wrapper for callers (tests, the demonstration
// CLI) that want to panic rather than propagate an error from Resolve; any
// error from Resolve, including a config.toml read failure for a known
// verb, panics as a kernerr.ValidationError on the "verb" field.
func MustResolve(verb, configOverride string) RuntimeContext {
	rc, err := Resolve(verb, configOverride)
	if err != nil {
		panic(kernerr.NewValidationError("verb", err.Error()))
	}
	return rc
}
