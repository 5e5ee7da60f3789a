// Package runtimectx implements the context and schema resolvers (C10): the
// verb-to-paths mapping, the settings overlay, and the bundled SQL/JSON
// schema loader with filesystem fallback. Every other component receives its
// on-disk locations and tunables from a RuntimeContext resolved once at
// startup — grounded on the teacher's internal/config package, which plays
// the same "single resolved settings bundle" role over viper + TOML/YAML.
package runtimectx

import (
	"embed"
)

// resourcesFS holds the package's bundled SQL schemas, JSON type schemas,
// and the YAML resource-profile defaults, the way the teacher embeds
// cmd/bd's static web assets. This is the "bundled resource path" every C10
// loader tries first.
//
//go:embed resources/sql resources/types resources/config
var resourcesFS embed.FS
