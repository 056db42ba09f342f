package registry

import (
	"sync"

	"gopkg.in/yaml.v3"
)

// DefinitionCache holds parsed definition documents for one build
// invocation, keyed by path relative to the components directory. The first
// load of a path wins; concurrent callers for the same path wait for it.
type DefinitionCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	once sync.Once
	doc  *yaml.Node
	err  error
}

// NewDefinitionCache creates an empty cache.
func NewDefinitionCache() *DefinitionCache {
	return &DefinitionCache{entries: make(map[string]*cacheEntry)}
}

// Load returns the cached document for rel, calling parse on first use.
func (c *DefinitionCache) Load(rel string, parse func() (*yaml.Node, error)) (*yaml.Node, error) {
	c.mu.Lock()
	entry, ok := c.entries[rel]
	if !ok {
		entry = &cacheEntry{}
		c.entries[rel] = entry
	}
	c.mu.Unlock()

	entry.once.Do(func() {
		entry.doc, entry.err = parse()
	})
	return entry.doc, entry.err
}

// Len reports how many paths have been loaded.
func (c *DefinitionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
