package catalog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidCatalog is wrapped by every structural decoding failure.
var ErrInvalidCatalog = errors.New("invalid catalog")

// Path addresses a value inside a catalog document. Elements are map keys
// (string) or list indexes (int).
type Path []any

func (p Path) key(k string) Path { return append(p[:len(p):len(p)], k) }
func (p Path) index(i int) Path  { return append(p[:len(p):len(p)], i) }

// String renders the path as "rules[3].allow.any[0]".
func (p Path) String() string {
	var b strings.Builder
	for _, el := range p {
		switch v := el.(type) {
		case int:
			b.WriteString("[" + strconv.Itoa(v) + "]")
		case string:
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.WriteString(v)
		}
	}
	return b.String()
}

// Position is a location in a catalog source file. Zero Line means unknown.
type Position struct {
	File   string
	Line   int
	Column int
}

func (p Position) String() string {
	if p.Line == 0 {
		return p.File
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
}

// Error is a decoding failure at a specific catalog path.
type Error struct {
	Path    Path
	Pos     Position
	Message string

	// Err is ErrInvalidCatalog or a more specific sentinel such as
	// ir.ErrUnsupportedPredicate.
	Err error
}

func (e *Error) Error() string {
	where := e.Path.String()
	if where == "" {
		where = "<root>"
	}
	if pos := e.Pos.String(); pos != "" {
		return fmt.Sprintf("%s: %s: %s", pos, where, e.Message)
	}
	return fmt.Sprintf("%s: %s", where, e.Message)
}

func (e *Error) Unwrap() error {
	if e.Err == nil {
		return ErrInvalidCatalog
	}
	return e.Err
}

// Errors is every decoding failure of one source, in document order.
type Errors []*Error

func (es Errors) Error() string {
	if len(es) == 1 {
		return es[0].Error()
	}
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d catalog errors:\n  %s", len(es), strings.Join(msgs, "\n  "))
}

func (es Errors) Unwrap() []error {
	out := make([]error, len(es))
	for i, e := range es {
		out[i] = e
	}
	return out
}
