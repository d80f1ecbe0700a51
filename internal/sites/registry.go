package sites

import (
	"fmt"
	"sort"
	"strings"
)

// Registry is a read-only index of adapters keyed by lower-case site name.
type Registry struct {
	byName map[string]Adapter
}

// NewRegistry indexes adapters, rejecting nil, unnamed or duplicate entries.
func NewRegistry(adapters ...Adapter) (Registry, error) {
	byName := make(map[string]Adapter, len(adapters))
	for _, adapter := range adapters {
		if adapter == nil {
			return Registry{}, fmt.Errorf("site adapter must not be nil")
		}
		name := strings.ToLower(strings.TrimSpace(adapter.SiteName()))
		if name == "" {
			return Registry{}, fmt.Errorf("site adapter name must not be empty")
		}
		if _, ok := byName[name]; ok {
			return Registry{}, fmt.Errorf("duplicate site adapter %q", name)
		}
		byName[name] = adapter
	}
	return Registry{byName: byName}, nil
}

// Get returns the adapter registered for name.
func (r Registry) Get(name string) (Adapter, bool) {
	if r.byName == nil {
		return nil, false
	}
	adapter, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return adapter, ok
}

// Names lists registered sites in sorted order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Restrict returns a registry holding only the named sites. Unknown names are
// an error so a typo in configuration is not silently ignored.
func (r Registry) Restrict(names []string) (Registry, error) {
	if len(names) == 0 {
		return r, nil
	}
	selected := make([]Adapter, 0, len(names))
	for _, name := range names {
		adapter, ok := r.Get(name)
		if !ok {
			return Registry{}, fmt.Errorf("unknown site %q (known: %s)", name, strings.Join(r.Names(), ", "))
		}
		selected = append(selected, adapter)
	}
	return NewRegistry(selected...)
}
