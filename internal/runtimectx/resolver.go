package runtimectx

import (
	"os"
	"path/filepath"

	"github.com/memogarden/memogarden-system/internal/kernerr"
)

// Verb names accepted by Resolve (§4.10).
const (
	VerbServe  = "serve"
	VerbRun    = "run"
	VerbDeploy = "deploy"
)

// ReadinessSignal describes how a verb announces it is ready to serve.
type ReadinessSignal string

const (
	ReadinessSystemd ReadinessSignal = "systemd"
	ReadinessStdout  ReadinessSignal = "stdout"
	ReadinessNone    ReadinessSignal = "none"
)

// Paths is the resolved data/config/log directory triple for a verb.
type Paths struct {
	DataDir   string
	ConfigDir string
	LogDir    string // empty for deploy, which has no log dir (§4.10)
	Signal    ReadinessSignal
}

func verbDefaults(verb string) (Paths, error) {
	home, _ := os.UserHomeDir()
	switch verb {
	case VerbServe:
		return Paths{
			DataDir:   "/var/lib/memogarden",
			ConfigDir: "/etc/memogarden",
			LogDir:    "/var/log/memogarden",
			Signal:    ReadinessSystemd,
		}, nil
	case VerbRun:
		return Paths{
			DataDir:   filepath.Join(home, ".local", "share", "memogarden"),
			ConfigDir: filepath.Join(home, ".config", "memogarden"),
			LogDir:    filepath.Join(home, ".local", "state", "memogarden", "logs"),
			Signal:    ReadinessStdout,
		}, nil
	case VerbDeploy:
		return Paths{
			DataDir:   "/data",
			ConfigDir: "/config",
			LogDir:    "",
			Signal:    ReadinessNone,
		}, nil
	default:
		return Paths{}, kernerr.NewValidationError("verb", "must be one of serve, run, deploy")
	}
}

// ResolvePaths computes the verb's default paths, overridden in turn by
// dirs (config.toml's data_dir/config_dir/log_dir, §4.10), then by env
// vars, then by an explicit config_override path (whose parent becomes
// config_dir, leaving the other verb defaults untouched) — the same
// env > TOML > profile-default precedence Overlay uses for Settings.
func ResolvePaths(verb, configOverride string, dirs DirOverrides) (Paths, error) {
	p, err := verbDefaults(verb)
	if err != nil {
		return Paths{}, err
	}

	if dirs.DataDir != "" {
		p.DataDir = dirs.DataDir
	}
	if dirs.ConfigDir != "" {
		p.ConfigDir = dirs.ConfigDir
	}
	if dirs.LogDir != "" {
		p.LogDir = dirs.LogDir
	}

	if v := os.Getenv("MEMOGARDEN_DATA_DIR"); v != "" {
		p.DataDir = v
	}
	if v := os.Getenv("MEMOGARDEN_CONFIG_DIR"); v != "" {
		p.ConfigDir = v
	}
	if v := os.Getenv("MEMOGARDEN_LOG_DIR"); v != "" {
		p.LogDir = v
	}

	if configOverride != "" {
		p.ConfigDir = filepath.Dir(configOverride)
	}

	return p, nil
}

// ResolveDBPath computes the on-disk path for a database layer ("soil" or
// "core"): <LAYER>_DB env var, else DATA_DIR env var + "<layer>.db", else
// the verb default data dir + "<layer>.db" (§4.10).
func ResolveDBPath(layer string, paths Paths) (string, error) {
	var envVar string
	switch layer {
	case LayerSoil:
		envVar = "MEMOGARDEN_SOIL_DB"
	case LayerCore:
		envVar = "MEMOGARDEN_CORE_DB"
	default:
		return "", kernerr.NewValidationError("layer", "must be soil or core")
	}

	if v := os.Getenv(envVar); v != "" {
		return v, nil
	}
	if v := os.Getenv("MEMOGARDEN_DATA_DIR"); v != "" {
		return filepath.Join(v, layer+".db"), nil
	}
	return filepath.Join(paths.DataDir, layer+".db"), nil
}
