package expr_test

import (
	"sync"
	"testing"

	"github.com/specialistvlad/stagegrid/internal/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// parseExpr is a test helper to quickly get an expr.Expr from a string.
func parseExpr(t *testing.T, src string) expr.Expr {
	t.Helper()
	e, err := expr.Parse(src)
	require.NoError(t, err, "expression parsing failed")
	return e
}

func TestContainer_AddAndExtract(t *testing.T) {
	c := expr.NewContainer()
	c.Add(
		parseExpr(t, `upper('hello')`),
		parseExpr(t, `variables.foo`),
		parseExpr(t, `Lower(dependencies['build'].result)`),
		parseExpr(t, `variables.foo`), // Duplicate reference
		nil,
	)

	// --- Assert on Functions (sorted, unique, lowercased) ---
	require.Equal(t, []string{"lower", "upper"}, c.CalledFunctions())

	// --- Assert on References (sorted, unique) ---
	require.Equal(t, []string{"dependencies.build.result", "variables.foo"}, c.References())
}

func TestContainer_NestedIndexReferences(t *testing.T) {
	c := expr.NewContainer()
	c.Add(parseExpr(t, `dependencies[stage.name].result`))
	require.Equal(t, []string{"dependencies", "stage.name"}, c.References())
}

func TestContainer_AddAfterExtract(t *testing.T) {
	c := expr.NewContainer()
	c.Add(parseExpr(t, `variables.first`))
	require.Len(t, c.References(), 1)

	c.Add(parseExpr(t, `variables.second`))
	require.Len(t, c.References(), 2, "analysis should rerun after Add")
}

func TestCache_ConcurrentParse(t *testing.T) {
	cache := expr.NewCache()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := cache.Parse("eq(variables.os, 'linux')")
			assert.NoError(t, err)
			assert.NotNil(t, e)
		}()
	}
	wg.Wait()
	require.Equal(t, 1, cache.Len())

	_, err := cache.Parse("eq(")
	require.Error(t, err)
	_, err = cache.Parse("eq(")
	require.Error(t, err, "parse errors are cached too")
	require.Equal(t, 2, cache.Len())
}
