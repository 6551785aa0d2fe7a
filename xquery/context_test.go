package xquery

import (
	"testing"

	"github.com/midbel/xq/intern"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	ctx := NewStaticContext(nil)
	assert.Equal(t, ConstructionPreserve, ctx.Construction)
	assert.Equal(t, BoundaryStrip, ctx.BoundarySpace)
	assert.True(t, ctx.EmptyLeast)
	assert.Equal(t, DefaultCollationUri, ctx.DefaultCollation)
	assert.Equal(t, FnNamespaceUri, ctx.DefaultFuncNamespace)
	assert.Empty(t, ctx.DefaultElemNamespace)
}

func TestResolveQName(t *testing.T) {
	ctx := NewStaticContext(nil)
	require.NoError(t, ctx.DeclarePassiveNamespace("ex", "urn:example", true))

	qn, err := ctx.ResolveQName("ex", "item", useOther)
	require.NoError(t, err)
	assert.Equal(t, "urn:example", qn.Space)
	assert.Equal(t, "item", qn.LocalName())

	qn, err = ctx.ResolveQName("", "item", useOther)
	require.NoError(t, err)
	assert.Empty(t, qn.Space)

	qn, err = ctx.ResolveQName("", "item", useElement)
	require.NoError(t, err)
	assert.Empty(t, qn.Space, "no default element namespace declared")

	ctx.DefaultElemNamespace = "urn:default"
	qn, err = ctx.ResolveQName("", "item", useElement)
	require.NoError(t, err)
	assert.Equal(t, "urn:default", qn.Space)

	qn, err = ctx.ResolveQName("", "string", useFunction)
	require.NoError(t, err)
	assert.Equal(t, FnNamespaceUri, qn.Space)

	_, err = ctx.ResolveQName("nope", "item", useOther)
	assertCode(t, err, CodeUndeclaredPrefix)

	qn, err = ctx.ResolveQName("xs", "integer", useOther)
	require.NoError(t, err)
	assert.Equal(t, XsNamespaceUri, qn.Space)
}

func TestDeclarePassiveNamespace(t *testing.T) {
	ctx := NewStaticContext(nil)
	require.NoError(t, ctx.DeclarePassiveNamespace("a", "urn:1", true))
	assertCode(t, ctx.DeclarePassiveNamespace("a", "urn:2", true), CodeDupPrefix)

	// predeclared bindings can be overridden by an explicit declaration
	require.NoError(t, ctx.DeclarePassiveNamespace("fn", "urn:fn", true))
	uri, ok := ctx.LookupPrefix("fn")
	require.True(t, ok)
	assert.Equal(t, "urn:fn", uri)

	assertCode(t, ctx.DeclarePassiveNamespace("xmlns", "urn:x", true), CodeProtectedPrefix)
	assertCode(t, ctx.DeclarePassiveNamespace("xml", "urn:x", true), CodeProtectedPrefix)
	assertCode(t, ctx.DeclarePassiveNamespace("other", XmlNamespaceUri, true), CodeProtectedPrefix)
	require.NoError(t, ctx.DeclarePassiveNamespace("xml", XmlNamespaceUri, true))
}

func TestActiveNamespaces(t *testing.T) {
	ctx := NewStaticContext(nil)
	require.NoError(t, ctx.DeclarePassiveNamespace("p", "urn:passive", true))

	require.NoError(t, ctx.DeclareActiveNamespace("p", "urn:outer"))
	uri, ok := ctx.LookupPrefix("p")
	require.True(t, ok)
	assert.Equal(t, "urn:outer", uri, "active binding shadows the passive one")

	require.NoError(t, ctx.DeclareActiveNamespace("p", "urn:inner"))
	uri, _ = ctx.LookupPrefix("p")
	assert.Equal(t, "urn:inner", uri)

	require.NoError(t, ctx.DeclareActiveNamespace("", "urn:elems"))
	qn, err := ctx.ResolveQName("", "item", useElement)
	require.NoError(t, err)
	assert.Equal(t, "urn:elems", qn.Space, "xmlns default overrides the prolog default")

	ctx.UndeclareNamespace()
	ctx.UndeclareNamespace()
	uri, _ = ctx.LookupPrefix("p")
	assert.Equal(t, "urn:outer", uri)

	ctx.UndeclareNamespace()
	uri, _ = ctx.LookupPrefix("p")
	assert.Equal(t, "urn:passive", uri)
}

func TestDeclareVariable(t *testing.T) {
	ctx := NewStaticContext(nil)
	decl := &VarDecl{Name: intern.Local("x")}
	require.NoError(t, ctx.DeclareVariable(decl))
	require.NoError(t, ctx.DeclareVariable(decl), "re-declaring the same object is a no-op")
	assertCode(t, ctx.DeclareVariable(&VarDecl{Name: intern.Local("x")}), CodeDupVariable)
}

func TestDeclareFunction(t *testing.T) {
	ctx := NewStaticContext(nil)
	name := intern.Expanded("f", "local", LocalNamespaceUri)

	assertCode(t, ctx.DeclareFunction(&FuncDecl{Name: intern.Local("bare")}), CodeFunctionNoNS)
	assertCode(t, ctx.DeclareFunction(&FuncDecl{Name: intern.Expanded("f", "fn", FnNamespaceUri)}), CodeReservedFuncNS)

	require.NoError(t, ctx.DeclareFunction(&FuncDecl{Name: name}))
	assertCode(t, ctx.DeclareFunction(&FuncDecl{Name: name}), CodeDupFunction)

	// same name, different arity
	other := &FuncDecl{Name: name, Params: make([]Param, 2)}
	require.NoError(t, ctx.DeclareFunction(other))
}

func TestBindVariable(t *testing.T) {
	ctx := NewStaticContext(nil)

	ref := &varRef{name: intern.Local("x")}
	assertCode(t, ctx.BindVariable(ref), CodeUndefinedRef)

	decl := &VarDecl{Name: intern.Local("x")}
	require.NoError(t, ctx.DeclareVariable(decl))
	require.NoError(t, ctx.BindVariable(ref))
	assert.Same(t, decl, ref.decl)

	// a reference into an imported namespace waits for fixup
	require.NoError(t, ctx.importModule("urn:lib"))
	imported := &varRef{name: intern.Expanded("y", "m", "urn:lib")}
	require.NoError(t, ctx.BindVariable(imported))
	require.NotNil(t, imported.decl)
	assert.True(t, imported.decl.Pending())

	// a reference into an unknown namespace fails at once
	require.NoError(t, ctx.DeclarePassiveNamespace("o", "urn:other", true))
	stray := &varRef{name: intern.Expanded("z", "o", "urn:other")}
	assertCode(t, ctx.BindVariable(stray), CodeUndefinedRef)
}

func TestBindFunction(t *testing.T) {
	ctx := NewStaticContext(nil)

	require.NoError(t, ctx.BindFunction(&funcCall{name: intern.Expanded("count", "fn", FnNamespaceUri)}))
	require.NoError(t, ctx.BindFunction(&funcCall{name: intern.Local("count")}), "default function namespace")

	ctor := &funcCall{
		name: intern.Expanded("integer", "xs", XsNamespaceUri),
		args: []Expr{number{value: 1}},
	}
	require.NoError(t, ctx.BindFunction(ctor))
	assertCode(t, ctx.BindFunction(&funcCall{name: intern.Expanded("nope", "xs", XsNamespaceUri)}), CodeUndefinedFunction)

	// forward reference gets a placeholder, later resolved by the declaration
	name := intern.Expanded("f", "local", LocalNamespaceUri)
	ref := &funcCall{name: name}
	require.NoError(t, ctx.BindFunction(ref))
	require.NotNil(t, ref.decl)
	assert.True(t, ref.decl.Pending())

	decl := &FuncDecl{Name: name}
	require.NoError(t, ctx.DeclareFunction(decl))
	assert.Same(t, decl, ref.decl)

	// a call into a namespace never imported fails immediately
	lib := intern.Expanded("f", "lib", "urn:lib")
	assertCode(t, ctx.BindFunction(&funcCall{name: lib}), CodeUndefinedFunction)
	require.NoError(t, ctx.importModule("urn:lib"))
	require.NoError(t, ctx.BindFunction(&funcCall{name: lib}))
}

func TestImportModule(t *testing.T) {
	ctx := NewStaticContext(nil)
	ctx.ModuleNamespace = "urn:self"

	assertCode(t, ctx.importModule(""), CodeEmptyModuleURI)
	assertCode(t, ctx.importModule("urn:self"), CodeSelfImport)
	require.NoError(t, ctx.importModule("urn:lib"))
	assertCode(t, ctx.importModule("urn:lib"), CodeDupModuleImport)
}

func TestImportSchema(t *testing.T) {
	ctx := NewStaticContext(nil)
	assertCode(t, ctx.importSchema("urn:s"), CodeSchemaImport)

	ctx.SchemaAware = true
	require.NoError(t, ctx.importSchema("urn:s"))
	assertCode(t, ctx.importSchema("urn:s"), CodeDupSchemaImport)
	assert.True(t, ctx.schemaImported("urn:s"))
}

func TestMarkSetter(t *testing.T) {
	ctx := NewStaticContext(nil)
	assert.False(t, ctx.markSetter("boundary-space"))
	assert.True(t, ctx.markSetter("boundary-space"))
	assert.False(t, ctx.markSetter("ordering"))
}

func TestCollations(t *testing.T) {
	ctx := NewStaticContext(nil)
	assert.True(t, ctx.knownCollation(DefaultCollationUri))
	assert.False(t, ctx.knownCollation("urn:coll"))
	ctx.DeclareCollation("urn:coll")
	assert.True(t, ctx.knownCollation("urn:coll"))
}

func TestCheckImportedType(t *testing.T) {
	ctx := NewStaticContext(nil)

	st := SequenceType{Item: atomicItem(intern.Expanded("integer", "xs", XsNamespaceUri))}
	require.NoError(t, ctx.CheckImportedType(st, "variable $x"))

	st = SequenceType{Item: atomicItem(intern.Expanded("part", "s", "urn:s"))}
	assertCode(t, ctx.CheckImportedType(st, "variable $x"), CodeTypeNotImported)

	ctx.SchemaAware = true
	require.NoError(t, ctx.importSchema("urn:s"))
	require.NoError(t, ctx.CheckImportedType(st, "variable $x"))
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, code, e.Code)
}
