package format

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// Registry maps data-type codes to layouts. It is immutable once built and
// safe to share across goroutines without locking.
type Registry struct {
	schemas map[string]*Schema
}

// NewRegistry validates the given layouts and indexes them by code.
func NewRegistry(schemas ...*Schema) (*Registry, error) {
	r := &Registry{schemas: make(map[string]*Schema, len(schemas))}
	for _, s := range schemas {
		if err := s.validate(); err != nil {
			return nil, err
		}
		code := strings.ToUpper(s.Code)
		if _, exists := r.schemas[code]; exists {
			return nil, fmt.Errorf("layout already registered: %s", code)
		}
		r.schemas[code] = s
	}
	return r, nil
}

// Get returns the layout for code.
func (r *Registry) Get(code string) (*Schema, bool) {
	s, ok := r.schemas[strings.ToUpper(code)]
	return s, ok
}

// Lookup returns the layout for code or a *SchemaMismatchError.
func (r *Registry) Lookup(code string) (*Schema, error) {
	if s, ok := r.Get(code); ok {
		return s, nil
	}
	return nil, &SchemaMismatchError{Code: strings.ToUpper(code)}
}

// Codes returns all registered codes, sorted.
func (r *Registry) Codes() []string {
	codes := make([]string, 0, len(r.schemas))
	for code := range r.schemas {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// SchemaForTable returns the first layout (by code) that loads into table
// ("dataset.table").
func (r *Registry) SchemaForTable(table string) (*Schema, bool) {
	for _, code := range r.Codes() {
		if s := r.schemas[code]; s.TableRef() == table {
			return s, true
		}
	}
	return nil, false
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	r, err := NewRegistry(jrdbSchemas()...)
	if err != nil {
		panic(fmt.Sprintf("built-in layouts are invalid: %v", err))
	}
	return r
})

// Default returns the registry of built-in JRDB layouts.
func Default() *Registry {
	return defaultRegistry()
}

var fileNamePattern = regexp.MustCompile(`^([A-Za-z]{2,3})(\d{6})\.(csv|txt|lzh)$`)

// ParseFileName extracts the data-type code and effective date from names
// like "BAA260104.txt".
func ParseFileName(name string) (code string, date time.Time, ok bool) {
	m := fileNamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", time.Time{}, false
	}
	d, err := time.Parse(DateLayoutShort, m[2])
	if err != nil {
		return "", time.Time{}, false
	}
	return strings.ToUpper(m[1]), d, true
}
