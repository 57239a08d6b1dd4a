// Package formatter renders query results in pluggable output formats
// (table, json, yaml).
package formatter

import (
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/artpar/scopedb/core/schema"
	"github.com/artpar/scopedb/core/txn"
	"github.com/artpar/scopedb/domain/coltype"
)

// Formatter converts query results to a specific output format.
type Formatter interface {
	// Name returns the formatter name (e.g., "table", "json", "yaml").
	Name() string

	// Description returns a human-readable description.
	Description() string

	// Format writes a result set.
	Format(w io.Writer, res Result, opts Options) error

	// FormatError writes an error.
	FormatError(w io.Writer, err error) error
}

// Result is a materialized result set. Columns lists the selected column
// paths in the order the records hold them; the key is always included.
type Result struct {
	Table   string
	Columns []string
	Records []txn.Record
}

// Options configures formatting behavior.
type Options struct {
	// NoHeader disables the header row for tabular formats.
	NoHeader bool

	// Compact minimizes whitespace (json).
	Compact bool
}

// rows converts the records to column-keyed maps of display values.
func (r Result) rows() []map[string]any {
	out := make([]map[string]any, len(r.Records))
	for i, rec := range r.Records {
		m := make(map[string]any, len(r.Columns)+1)
		m[schema.KeyColumn] = int64(rec.ID())
		for j, v := range rec.Values() {
			if j < len(r.Columns) {
				m[r.Columns[j]] = Display(v)
			}
		}
		out[i] = m
	}
	return out
}

// Display converts a decoded column value for output: blobs become 0x hex
// and row ids plain integers. NULL stays nil.
func Display(v any) any {
	switch x := v.(type) {
	case []byte:
		return "0x" + hex.EncodeToString(x)
	case coltype.RowID:
		return int64(x)
	}
	return v
}

// Registry manages registered formatters.
type Registry struct {
	mu         sync.RWMutex
	formatters map[string]Formatter
	defaultFmt string
}

// NewRegistry creates a registry holding the built-in formatters.
func NewRegistry() *Registry {
	r := &Registry{
		formatters: make(map[string]Formatter),
		defaultFmt: "table",
	}
	for _, f := range []Formatter{NewTableFormatter(), NewJSONFormatter(), NewYAMLFormatter()} {
		r.formatters[f.Name()] = f
	}
	return r
}

// Register adds a formatter to the registry.
func (r *Registry) Register(f Formatter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.formatters[f.Name()]; exists {
		return fmt.Errorf("formatter %q already registered", f.Name())
	}
	r.formatters[f.Name()] = f
	return nil
}

// Get returns a formatter by name.
func (r *Registry) Get(name string) (Formatter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.formatters[name]
	return f, ok
}

// Lookup returns the named formatter, or the default for an empty name.
func (r *Registry) Lookup(name string) (Formatter, error) {
	if name == "" {
		return r.Default(), nil
	}
	if f, ok := r.Get(name); ok {
		return f, nil
	}
	return nil, fmt.Errorf("unknown output format %q (available: %v)", name, r.List())
}

// Default returns the default formatter.
func (r *Registry) Default() Formatter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.formatters[r.defaultFmt]
}

// SetDefault sets the default formatter.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.formatters[name]; !exists {
		return fmt.Errorf("formatter %q not registered", name)
	}
	r.defaultFmt = name
	return nil
}

// List returns all registered formatter names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.formatters))
	for name := range r.formatters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Lookup returns a formatter from the default registry.
func Lookup(name string) (Formatter, error) {
	return DefaultRegistry.Lookup(name)
}

// List returns all formatter names from the default registry.
func List() []string {
	return DefaultRegistry.List()
}
