package expr

import (
	"sort"
	"strings"
	"sync"
)

// Container is a thread-safe helper that gathers parsed expressions and
// provides analysis results, such as references and function calls.
type Container struct {
	// analyzeOnce ensures the extraction logic runs exactly once per batch of Adds.
	analyzeOnce sync.Once

	mu          sync.RWMutex
	expressions []Expr

	references      []string
	calledFunctions []string
}

// NewContainer creates a new, empty expression container.
func NewContainer() *Container {
	return &Container{}
}

// Add adds one or more expressions to the container for analysis.
// It safely ignores any nil expressions.
func (c *Container) Add(exprs ...Expr) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// NOTE: resetting the Once is only safe because Add is never called
	// concurrently with the getters; all Adds happen while the graph is built.
	c.analyzeOnce = sync.Once{}

	for _, e := range exprs {
		if e != nil {
			c.expressions = append(c.expressions, e)
		}
	}
}

func (c *Container) analyze() {
	c.analyzeOnce.Do(func() {
		c.mu.RLock()
		refs, funcs := extractReferencesAndFunctions(c.expressions...)
		c.mu.RUnlock()

		c.mu.Lock()
		c.references = refs
		c.calledFunctions = funcs
		c.mu.Unlock()
	})
}

// References returns every unique reference path as dotted text, sorted.
// Index accessors with a string literal become path segments, so
// dependencies['build'].result is reported as dependencies.build.result.
func (c *Container) References() []string {
	c.analyze()
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.references
}

// CalledFunctions returns every unique function name, lowercased and sorted.
func (c *Container) CalledFunctions() []string {
	c.analyze()
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.calledFunctions
}

func extractReferencesAndFunctions(exprs ...Expr) ([]string, []string) {
	refs := make(map[string]struct{})
	funcs := make(map[string]struct{})
	for _, e := range exprs {
		walk(e, refs, funcs)
	}
	refSlice := make([]string, 0, len(refs))
	for r := range refs {
		refSlice = append(refSlice, r)
	}
	sort.Strings(refSlice)

	funcSlice := make([]string, 0, len(funcs))
	for f := range funcs {
		funcSlice = append(funcSlice, f)
	}
	sort.Strings(funcSlice)
	return refSlice, funcSlice
}

func walk(e Expr, refs, funcs map[string]struct{}) {
	switch n := e.(type) {
	case *Reference:
		refs[strings.Join(n.Path(), ".")] = struct{}{}
		for _, p := range n.Parts {
			if p.Index != nil {
				walk(p.Index, refs, funcs)
			}
		}
	case *Call:
		funcs[strings.ToLower(n.Name)] = struct{}{}
		for _, a := range n.Args {
			walk(a, refs, funcs)
		}
	case *Unary:
		walk(n.Operand, refs, funcs)
	case *Binary:
		walk(n.Left, refs, funcs)
		walk(n.Right, refs, funcs)
	}
}

// Cache memoizes parse results by source text. It is safe for concurrent use.
type Cache struct {
	mu     sync.RWMutex
	parsed map[string]cacheEntry
}

type cacheEntry struct {
	expr Expr
	err  error
}

// NewCache returns an empty parse cache.
func NewCache() *Cache {
	return &Cache{parsed: make(map[string]cacheEntry)}
}

// Parse returns the cached tree for src, parsing it on first use. Parse
// errors are cached as well.
func (c *Cache) Parse(src string) (Expr, error) {
	c.mu.RLock()
	entry, ok := c.parsed[src]
	c.mu.RUnlock()
	if ok {
		return entry.expr, entry.err
	}

	e, err := Parse(src)
	c.mu.Lock()
	c.parsed[src] = cacheEntry{expr: e, err: err}
	c.mu.Unlock()
	return e, err
}

// Len reports how many distinct sources have been parsed.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.parsed)
}
