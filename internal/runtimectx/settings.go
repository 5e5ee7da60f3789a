package runtimectx

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/memogarden/memogarden-system/internal/kernerr"
)

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// Resource profile names (§4.10).
const (
	ProfileEmbedded = "embedded"
	ProfileStandard = "standard"
)

// Encryption intent flag (recorded only; the kernel never encrypts at rest,
// §1 Non-goals).
const (
	EncryptionDisabled = "disabled"
	EncryptionRequired = "required"
)

// Settings is the resolved, read-only tunable bundle (§4.10). It is built
// once at startup by Overlay and embedded in RuntimeContext; nothing in the
// kernel mutates it afterward (§5 "no mutable globals besides RuntimeContext").
type Settings struct {
	ViewEntries          int
	SearchLimit          int
	FossilizationRatio   float64
	CheckpointSeconds    int
	LogLevel             string
	BindAddress          string
	BindPort             int
	Encryption           string
	ViewCoalesceSeconds  int
}

// yamlProfile mirrors one entry of the bundled resources/config/profiles.yaml
// document (§4.10's two resource profiles, shipped as YAML per SPEC_FULL's
// domain-stack wiring for gopkg.in/yaml.v3).
type yamlProfile struct {
	ViewEntries         int     `yaml:"view_entries"`
	SearchLimit         int     `yaml:"search_limit"`
	FossilizationRatio  float64 `yaml:"fossilization_ratio"`
	CheckpointSeconds   int     `yaml:"checkpoint_seconds"`
	LogLevel            string  `yaml:"log_level"`
	ViewCoalesceSeconds int     `yaml:"view_coalesce_seconds"`
}

var (
	profilesOnce sync.Once
	profilesDoc  map[string]yamlProfile
)

// loadProfilesYAML parses the bundled profiles.yaml once, trying the
// embedded resource first and a filesystem sibling as the development
// fallback, the same two-step lookup every other C10 resource uses.
func loadProfilesYAML() map[string]yamlProfile {
	profilesOnce.Do(func() {
		data, err := resourcesFS.ReadFile("resources/config/profiles.yaml")
		if err != nil {
			fsPath := filepath.Join(sourceRoot(), "internal", "runtimectx", "resources", "config", "profiles.yaml")
			data, err = os.ReadFile(fsPath)
			if err != nil {
				profilesDoc = nil
				return
			}
		}
		var doc map[string]yamlProfile
		if err := yaml.Unmarshal(data, &doc); err != nil {
			profilesDoc = nil
			return
		}
		profilesDoc = doc
	})
	return profilesDoc
}

// hardCodedProfileDefaults is the last-resort fallback (§4.10's precedence
// chain ends in "hard-coded default") used only if the bundled YAML
// resource is missing or malformed — it should never be reached in a
// normal build, where profiles.yaml ships embedded in the binary.
func hardCodedProfileDefaults(profile string) Settings {
	switch profile {
	case ProfileEmbedded:
		return Settings{
			ViewEntries:         100,
			SearchLimit:         20,
			FossilizationRatio:  0.80,
			CheckpointSeconds:   300,
			LogLevel:            "warning",
			Encryption:          EncryptionDisabled,
			ViewCoalesceSeconds: 300,
		}
	default: // ProfileStandard
		return Settings{
			ViewEntries:         1000,
			SearchLimit:         100,
			FossilizationRatio:  0.90,
			CheckpointSeconds:   60,
			LogLevel:            "info",
			Encryption:          EncryptionDisabled,
			ViewCoalesceSeconds: 300,
		}
	}
}

// profileDefaults returns the per-profile defaults (§4.10), sourced from the
// bundled YAML resource profile document when available and falling back to
// the hard-coded table otherwise.
func profileDefaults(profile string) Settings {
	doc := loadProfilesYAML()
	if doc == nil {
		return hardCodedProfileDefaults(profile)
	}

	key := profile
	if _, ok := doc[key]; !ok {
		key = ProfileStandard
	}
	p, ok := doc[key]
	if !ok {
		return hardCodedProfileDefaults(profile)
	}

	return Settings{
		ViewEntries:         p.ViewEntries,
		SearchLimit:         p.SearchLimit,
		FossilizationRatio:  p.FossilizationRatio,
		CheckpointSeconds:   p.CheckpointSeconds,
		LogLevel:            p.LogLevel,
		Encryption:          EncryptionDisabled,
		ViewCoalesceSeconds: p.ViewCoalesceSeconds,
	}
}

// tomlOverrides is the subset of config.toml fields recognised by the
// settings overlay, parsed with BurntSushi/toml the way the teacher's
// local_config.go parses its own sidecar file (there with YAML; here with
// TOML per SPEC_FULL's ambient-stack choice).
type tomlOverrides struct {
	ResourceProfile string  `toml:"resource_profile"`
	BindAddress     string  `toml:"bind_address"`
	BindPort        int     `toml:"bind_port"`
	LogLevel        string  `toml:"log_level"`
	Encryption      string  `toml:"encryption"`
	DataDir         string  `toml:"data_dir"`
	ConfigDir       string  `toml:"config_dir"`
	LogDir          string  `toml:"log_dir"`
}

// loadTOML reads a config.toml file if present; a missing file is not an
// error (no overlay contributed).
func loadTOML(path string) (tomlOverrides, bool, error) {
	var out tomlOverrides
	if path == "" {
		return out, false, nil
	}
	if _, err := toml.DecodeFile(path, &out); err != nil {
		if isNotExist(err) {
			return out, false, nil
		}
		return out, false, kernerr.NewStorageError("read config toml", err)
	}
	return out, true, nil
}

// DirOverrides is the directory-override subset of config.toml (§4.10
// "Recognised runtime overrides beyond the profile": data_dir, config_dir,
// log_dir), threaded into ResolvePaths's own env>TOML>profile-default
// precedence chain rather than into Settings, since these three describe
// where the kernel looks for things rather than how it behaves once found.
type DirOverrides struct {
	DataDir   string
	ConfigDir string
	LogDir    string
}

// LoadDirOverrides reads just the directory-override fields out of
// config.toml. Resolve calls this before ResolvePaths's second pass so a
// `data_dir = "..."` key takes effect the same way MEMOGARDEN_DATA_DIR
// does; a missing file yields a zero DirOverrides, matching loadTOML.
func LoadDirOverrides(configTOMLPath string) (DirOverrides, error) {
	overrides, ok, err := loadTOML(configTOMLPath)
	if err != nil {
		return DirOverrides{}, err
	}
	if !ok {
		return DirOverrides{}, nil
	}
	return DirOverrides{DataDir: overrides.DataDir, ConfigDir: overrides.ConfigDir, LogDir: overrides.LogDir}, nil
}

// Overlay resolves Settings by precedence env > TOML > profile > hard-coded
// default (§4.10). v is a viper instance bound to MEMOGARDEN_* env vars
// (AutomaticEnv with the teacher's prefix-and-replacer pattern);
// configTOMLPath is the optional path to config.toml.
func Overlay(v *viper.Viper, configTOMLPath string) (Settings, error) {
	if v == nil {
		v = NewViper()
	}

	overrides, ok, err := loadTOML(configTOMLPath)
	if err != nil {
		return Settings{}, err
	}

	profile := v.GetString("resource_profile")
	if profile == "" && ok {
		profile = overrides.ResourceProfile
	}
	if profile == "" {
		profile = ProfileStandard
	}
	out := profileDefaults(profile)

	if ok {
		applyTOML(&out, overrides)
	}

	applyEnv(&out, v)

	return out, nil
}

// NewViper constructs a viper instance bound to the MEMOGARDEN_ environment
// namespace, mirroring the teacher's viper setup in internal/config.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("memogarden")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	return v
}

func applyTOML(s *Settings, o tomlOverrides) {
	if o.BindAddress != "" {
		s.BindAddress = o.BindAddress
	}
	if o.BindPort != 0 {
		s.BindPort = o.BindPort
	}
	if o.LogLevel != "" {
		s.LogLevel = o.LogLevel
	}
	if o.Encryption != "" {
		s.Encryption = o.Encryption
	}
}

func applyEnv(s *Settings, v *viper.Viper) {
	if val := v.GetString("bind_address"); val != "" {
		s.BindAddress = val
	}
	if val := v.GetString("bind_port"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			s.BindPort = n
		}
	}
	if val := v.GetString("log_level"); val != "" {
		s.LogLevel = val
	}
	if val := v.GetString("encryption"); val != "" {
		s.Encryption = val
	}
}

// ViewCoalesceWindow returns the configured idle window as a time.Duration.
func (s Settings) ViewCoalesceWindow() time.Duration {
	return time.Duration(s.ViewCoalesceSeconds) * time.Second
}
