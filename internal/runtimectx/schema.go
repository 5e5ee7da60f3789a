package runtimectx

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/memogarden/memogarden-system/internal/kernerr"
)

// Layer names accepted by GetSQLSchema.
const (
	LayerSoil = "soil"
	LayerCore = "core"
)

// Type schema categories accepted by GetTypeSchema/ListTypeSchemas.
const (
	CategoryFacts    = "facts"
	CategoryEntities = "entities"
)

// sourceRoot is the repository root, resolved once relative to this source
// file (via runtime.Caller) so the development fallback works regardless of
// the caller's working directory — mirrors the teacher's pattern of
// resolving bundled web-UI assets either from go:embed or a sibling dir
// during `go run` of cmd/bd.
func sourceRoot() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return ""
	}
	// this file lives at <root>/internal/runtimectx/schema.go
	return filepath.Join(filepath.Dir(file), "..", "..")
}

// GetSQLSchema returns the bootstrap SQL for the given database layer
// ("soil" or "core"), trying the bundled embed.FS resource first and a
// filesystem sibling (<root>/sql/<layer>.sql) as a development fallback.
func GetSQLSchema(layer string) (string, error) {
	if layer != LayerSoil && layer != LayerCore {
		return "", kernerr.NewValidationError("layer", "must be soil or core")
	}
	name := layer + ".sql"

	if data, err := resourcesFS.ReadFile("resources/sql/" + name); err == nil {
		return string(data), nil
	}

	fsPath := filepath.Join(sourceRoot(), "sql", name)
	if data, err := os.ReadFile(fsPath); err == nil {
		return string(data), nil
	}

	return "", kernerr.NewNotFoundError("sql schema", layer)
}

// GetTypeSchema returns the raw JSON schema document for a single type name
// within a category ("facts" or "entities"), trying the bundled resource
// then the filesystem fallback.
func GetTypeSchema(category, typeName string) ([]byte, error) {
	if category != CategoryFacts && category != CategoryEntities {
		return nil, kernerr.NewValidationError("category", "must be facts or entities")
	}
	rel := fmt.Sprintf("types/%s/%s.schema.json", category, typeName)

	if data, err := resourcesFS.ReadFile("resources/" + rel); err == nil {
		return data, nil
	}

	fsPath := filepath.Join(sourceRoot(), rel)
	if data, err := os.ReadFile(fsPath); err == nil {
		return data, nil
	}

	return nil, kernerr.NewNotFoundError("type schema", category+"/"+typeName)
}

// ListTypeSchemas returns the sorted list of type names (without the
// ".schema.json" suffix) bundled for a category.
func ListTypeSchemas(category string) ([]string, error) {
	if category != CategoryFacts && category != CategoryEntities {
		return nil, kernerr.NewValidationError("category", "must be facts or entities")
	}

	entries, err := resourcesFS.ReadDir("resources/types/" + category)
	if err != nil {
		fsPath := filepath.Join(sourceRoot(), "types", category)
		osEntries, osErr := os.ReadDir(fsPath)
		if osErr != nil {
			return nil, kernerr.NewNotFoundError("type schema category", category)
		}
		return namesFromDirEntries(osEntries)
	}
	return namesFromDirEntries(entries)
}

func namesFromDirEntries(entries []fs.DirEntry) ([]string, error) {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		if !strings.HasSuffix(n, ".schema.json") {
			continue
		}
		names = append(names, strings.TrimSuffix(n, ".schema.json"))
	}
	sort.Strings(names)
	return names, nil
}
