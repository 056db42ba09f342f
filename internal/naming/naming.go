// Package naming derives every identifier of a component from its canonical
// kebab-case name. The display class, the bundle global and the template
// macro are each computed from the canonical name alone; there is no
// mapping between derived forms.
package naming

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// Namespace is the shared browser global every bundle hangs off.
	Namespace = "Toolkit"
	// MacroPrefix prefixes every template macro name.
	MacroPrefix = "govuk"
)

// NameSet bundles the identifiers derived from one canonical name.
type NameSet struct {
	Canonical     string `json:"canonical"`
	DisplayClass  string `json:"displayClass"`
	BundleGlobal  string `json:"bundleGlobal"`
	TemplateMacro string `json:"templateMacro"`
}

// Names computes the full NameSet for canonical.
func Names(canonical string) NameSet {
	return NameSet{
		Canonical:     canonical,
		DisplayClass:  ToDisplayClass(canonical),
		BundleGlobal:  ToBundleGlobal(canonical),
		TemplateMacro: ToTemplateMacro(canonical),
	}
}

// ToDisplayClass converts "character-count" to "CharacterCount". Any run of
// characters other than letters and digits separates words.
func ToDisplayClass(canonical string) string {
	// Casers carry state and are not safe for concurrent use.
	title := cases.Title(language.Und)

	var b strings.Builder
	for _, word := range words(canonical) {
		b.WriteString(title.String(word))
	}
	return b.String()
}

// ToBundleGlobal converts "character-count" to "Toolkit.CharacterCount".
// An empty name maps to the bare namespace.
func ToBundleGlobal(canonical string) string {
	class := ToDisplayClass(canonical)
	if class == "" {
		return Namespace
	}
	return Namespace + "." + class
}

// SharedGlobal is the global of non-component code.
func SharedGlobal() string {
	return Namespace
}

// ToTemplateMacro converts "character-count" to "govukCharacterCount".
func ToTemplateMacro(canonical string) string {
	return MacroPrefix + ToDisplayClass(canonical)
}

func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Cache memoizes NameSets for the duration of one build.
type Cache struct {
	mu    sync.RWMutex
	names map[string]NameSet
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{names: make(map[string]NameSet)}
}

// Get returns the NameSet for canonical, computing it on first use.
func (c *Cache) Get(canonical string) NameSet {
	c.mu.RLock()
	ns, ok := c.names[canonical]
	c.mu.RUnlock()
	if ok {
		return ns
	}

	ns = Names(canonical)
	c.mu.Lock()
	c.names[canonical] = ns
	c.mu.Unlock()
	return ns
}
