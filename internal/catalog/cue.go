package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// LoadCUE loads the CUE package in dir as a catalog.
func LoadCUE(dir string) (*Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: not a directory: %s", ErrInvalidCatalog, dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("%w: no CUE instances in %s", ErrInvalidCatalog, dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("%s: %w: loading CUE files: %w", dir, ErrInvalidCatalog, inst.Err)
	}
	return decodeCUE(ctx.BuildInstance(inst), dir)
}

// ParseCUE decodes a single CUE file.
func ParseCUE(data []byte, name string) (*Catalog, error) {
	ctx := cuecontext.New()
	return decodeCUE(ctx.CompileBytes(data, cue.Filename(name)), name)
}

func decodeCUE(v cue.Value, source string) (*Catalog, error) {
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w: building CUE value: %w", source, ErrInvalidCatalog, err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", source, ErrInvalidCatalog, err)
	}

	// Go through JSON so CUE and YAML catalogs share one decoder. UseNumber
	// keeps integers exact and lets fractional numbers be rejected.
	data, err := v.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", source, ErrInvalidCatalog, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", source, ErrInvalidCatalog, err)
	}

	d := &decoder{locate: func(p Path) Position { return cuePosition(v, p, source) }}
	return d.catalog(root, source)
}

// cuePosition resolves p against v, backing off to the nearest ancestor
// that carries a position.
func cuePosition(v cue.Value, p Path, source string) Position {
	for n := len(p); n >= 0; n-- {
		sels := make([]cue.Selector, 0, n)
		for _, el := range p[:n] {
			switch x := el.(type) {
			case string:
				sels = append(sels, cue.Str(x))
			case int:
				sels = append(sels, cue.Index(x))
			}
		}
		pos := v.LookupPath(cue.MakePath(sels...)).Pos()
		if pos.IsValid() {
			return Position{File: pos.Filename(), Line: pos.Line(), Column: pos.Column()}
		}
	}
	return Position{File: source}
}
