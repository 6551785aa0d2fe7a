package xquery

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapLoader serves library modules from memory, keyed by target
// namespace.
type mapLoader map[string]string

func (m mapLoader) LoadModule(uri string, _ []string) (io.ReadCloser, string, error) {
	src, ok := m[uri]
	if !ok {
		return nil, "", fmt.Errorf("no module for %s", uri)
	}
	return io.NopCloser(strings.NewReader(src)), "mem:" + uri, nil
}

func TestCompileImport(t *testing.T) {
	loader := mapLoader{
		"urn:math": `
			module namespace math = 'urn:math';
			declare variable $math:pi := 3.14159;
			declare function math:double($n) { $n * 2 };
		`,
	}
	query, err := CompileString(
		"import module namespace math = 'urn:math'; math:double($math:pi)",
		WithLoader(loader),
	)
	require.NoError(t, err)
	require.NotNil(t, query.Body)

	mod, ok := query.Modules["urn:math"]
	require.True(t, ok)
	assert.True(t, mod.Library)
	assert.Equal(t, "mem:urn:math", mod.Location)
	assert.Len(t, mod.Variables(), 1)
	assert.Len(t, mod.Functions(), 1)
}

func TestCompileImportChain(t *testing.T) {
	loader := mapLoader{
		"urn:a": `
			module namespace a = 'urn:a';
			import module namespace b = 'urn:b';
			declare variable $a:x := $b:y + 1;
		`,
		"urn:b": `
			module namespace b = 'urn:b';
			declare variable $b:y := 1;
		`,
	}
	query, err := CompileString(
		"import module namespace a = 'urn:a'; $a:x",
		WithLoader(loader),
	)
	require.NoError(t, err)
	require.Len(t, query.Globals, 2)
	assert.Equal(t, "y", query.Globals[0].Name.Local, "dependencies are initialized first")
	assert.Equal(t, "x", query.Globals[1].Name.Local)
	assert.Equal(t, 2, query.Slots())
}

func TestCompileMutualImport(t *testing.T) {
	loader := mapLoader{
		"urn:a": `
			module namespace a = 'urn:a';
			import module namespace b = 'urn:b';
			declare function a:base() { 1 };
			declare function a:f() { b:g() };
		`,
		"urn:b": `
			module namespace b = 'urn:b';
			import module namespace a = 'urn:a';
			declare function b:g() { a:base() };
		`,
	}
	query, err := CompileString("import module namespace a = 'urn:a'; a:f()", WithLoader(loader))
	require.NoError(t, err, "mutual imports without a dependency cycle compile")
	require.NotNil(t, query.Body)
	assert.Len(t, query.Modules, 2)
}

func TestCompileImportCycle(t *testing.T) {
	loader := mapLoader{
		"urn:a": `
			module namespace a = 'urn:a';
			import module namespace b = 'urn:b';
			declare variable $a:x := $b:y;
		`,
		"urn:b": `
			module namespace b = 'urn:b';
			import module namespace a = 'urn:a';
			declare variable $b:y := $a:x;
		`,
	}
	_, err := CompileString("import module namespace a = 'urn:a'; $a:x", WithLoader(loader))
	assertListCode(t, err, CodeModuleCycle)
	assert.ErrorContains(t, err, "urn:a")
	assert.ErrorContains(t, err, "urn:b")
}

func TestCompileImportMismatch(t *testing.T) {
	loader := mapLoader{
		"urn:a": "module namespace w = 'urn:wrong'; declare variable $w:x := 1;",
		"urn:b": "1 + 1",
	}
	_, err := CompileString("import module namespace a = 'urn:a'; 1", WithLoader(loader))
	assertListCode(t, err, CodeModuleNotFound)

	_, err = CompileString("import module namespace b = 'urn:b'; 1", WithLoader(loader))
	assertListCode(t, err, CodeModuleNotFound)
}

func TestCompileCallWithoutImport(t *testing.T) {
	loader := mapLoader{
		"urn:mid": `
			module namespace mid = 'urn:mid';
			import module namespace lib = 'urn:lib';
			declare function mid:use() { lib:f() };
		`,
		"urn:lib": "module namespace lib = 'urn:lib'; declare function lib:f() { 1 };",
	}
	// urn:lib ends up in the merged table through urn:mid, but the main
	// module never imported it: the call must not bind
	_, err := CompileString(`
		import module namespace mid = 'urn:mid';
		declare namespace lib = 'urn:lib';
		lib:f()
	`, WithLoader(loader))
	assertListCode(t, err, CodeUndefinedFunction)
}

func TestCompileImportFixup(t *testing.T) {
	loader := mapLoader{
		"urn:lib": "module namespace lib = 'urn:lib'; declare function lib:f() { 1 };",
	}
	_, err := CompileString(
		"import module namespace lib = 'urn:lib'; lib:f() + $lib:missing + lib:g()",
		WithLoader(loader),
	)
	require.Error(t, err)
	var list ErrorList
	require.ErrorAs(t, err, &list)
	assert.True(t, hasCode(list, CodeUndefinedRef))
	assert.True(t, hasCode(list, CodeUndefinedFunction))
}

func TestCompileImportedErrorLocation(t *testing.T) {
	loader := mapLoader{
		"urn:bad": "module namespace bad = 'urn:bad'; declare variable $bad:x := $nope;",
	}
	_, err := CompileString("import module namespace bad = 'urn:bad'; 1", WithLoader(loader))
	require.Error(t, err)
	var list ErrorList
	require.ErrorAs(t, err, &list)
	require.NotEmpty(t, list)
	assert.Equal(t, "mem:urn:bad", list[0].URI)
}

func TestGlobalOrder(t *testing.T) {
	query, err := CompileString(`
		declare variable $a := 1;
		declare variable $c := $a * 2;
		declare variable $b := $a + $c;
		$b
	`)
	require.NoError(t, err)
	require.Len(t, query.Globals, 3)

	slots := make(map[string]int)
	for _, decl := range query.Globals {
		slots[decl.Name.Local] = decl.Slot
	}
	assert.Less(t, slots["a"], slots["b"])
	assert.Less(t, slots["c"], slots["b"])
	assert.Less(t, slots["a"], slots["c"])
}

func TestGlobalCycleThroughFunction(t *testing.T) {
	_, err := CompileString(`
		declare variable $a := local:f();
		declare function local:f() { $a };
		$a
	`)
	assertListCode(t, err, CodeVariableCycle)
}

func TestCompileNeverPartial(t *testing.T) {
	query, err := CompileString("1 +")
	require.Error(t, err)
	assert.Nil(t, query)
}

func assertListCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var list ErrorList
	require.ErrorAs(t, err, &list)
	assert.True(t, hasCode(list, code), "want %s in %s", code, err)
}
