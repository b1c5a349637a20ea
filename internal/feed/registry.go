package feed

import (
	"fmt"
	"sort"
	"time"
)

// Definition binds a route name to a fetcher and its caching policy.
type Definition struct {
	Name        string
	CacheKey    string
	TTL         time.Duration
	MaxItems    int
	MaxRequests int
	Fetcher     Fetcher
}

// Registry maps feed names to definitions. It is built once at startup
// and read-only afterwards, so lookups need no locking.
type Registry struct {
	feeds map[string]*Definition
}

// NewRegistry creates an empty feed registry.
func NewRegistry() *Registry {
	return &Registry{feeds: make(map[string]*Definition)}
}

// Register adds a feed definition. Names must be unique.
func (r *Registry) Register(def *Definition) error {
	if def.Name == "" {
		return fmt.Errorf("feed definition requires a name")
	}
	if def.Fetcher == nil {
		return fmt.Errorf("feed %q requires a fetcher", def.Name)
	}
	if _, ok := r.feeds[def.Name]; ok {
		return fmt.Errorf("feed %q already registered", def.Name)
	}
	if def.CacheKey == "" {
		def.CacheKey = def.Name + ":posts"
	}
	if def.TTL <= 0 {
		def.TTL = 15 * time.Minute
	}
	if def.MaxItems <= 0 {
		def.MaxItems = 25
	}
	if def.MaxRequests <= 0 {
		def.MaxRequests = 1
	}
	r.feeds[def.Name] = def
	return nil
}

// Get returns the definition registered under name.
func (r *Registry) Get(name string) (*Definition, bool) {
	def, ok := r.feeds[name]
	return def, ok
}

// Names lists the registered feed names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.feeds))
	for name := range r.feeds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
