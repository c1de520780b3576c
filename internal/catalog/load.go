package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BuiltinSource is the Source of the embedded catalog.
const BuiltinSource = "builtin"

//go:embed zygo.yaml
var builtinYAML []byte

// Builtin returns the embedded Zygo platform catalog.
func Builtin() (*Catalog, error) {
	c, err := ParseYAML(builtinYAML, BuiltinSource)
	if err != nil {
		return nil, fmt.Errorf("builtin catalog: %w", err)
	}
	return c, nil
}

// Load reads a catalog from path. Directories and .cue files are read as
// CUE, .yaml and .yml files as YAML. An empty path loads Builtin.
func Load(path string) (*Catalog, error) {
	if path == "" || path == BuiltinSource {
		return Builtin()
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if info.IsDir() {
		return LoadCUE(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return ParseYAML(data, path)
	case ".cue":
		return ParseCUE(data, path)
	default:
		return nil, fmt.Errorf("%w: unsupported catalog file extension %q", ErrInvalidCatalog, ext)
	}
}
