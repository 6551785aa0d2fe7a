package xquery

import (
	"fmt"
	"maps"

	"github.com/midbel/xq/intern"
)

type ConstructionMode int8

const (
	ConstructionPreserve ConstructionMode = iota
	ConstructionStrip
)

type BoundaryPolicy int8

const (
	BoundaryStrip BoundaryPolicy = iota
	BoundaryPreserve
)

type OrderingMode int8

const (
	OrderingOrdered OrderingMode = iota
	OrderingUnordered
)

const DefaultCollationUri = "http://www.w3.org/2005/xpath-functions/collation/codepoint"

type nsDecl struct {
	uri      string
	explicit bool
}

type funcKey struct {
	sym   intern.Symbol
	arity int
}

// StaticContext is the per-module compile-time environment: namespace
// bindings, prolog defaults and the variable/function symbol tables.
// One instance exists per module; it is mutated while that module is
// being parsed and frozen afterwards. The top-level module additionally
// owns the merged cross-module tables.
type StaticContext struct {
	URI             string
	ModuleNamespace string
	ModulePrefix    string

	passive map[string]nsDecl
	active  []nsBinding

	DefaultElemNamespace string
	DefaultFuncNamespace string
	DefaultCollation     string
	BaseURI              string

	Construction  ConstructionMode
	BoundarySpace BoundaryPolicy
	Ordering      OrderingMode
	EmptyLeast    bool
	CopyPreserve  bool
	CopyInherit   bool

	SchemaAware   bool
	AllowExternal bool

	collations map[string]struct{}
	vars       map[intern.Symbol]*VarDecl
	funcs      map[funcKey]*FuncDecl

	importedModules map[string]struct{}
	importedSchemas map[string]struct{}

	names  *intern.Table
	top    *StaticContext // nil when this module is the top level
	merged *mergedTables  // owned by the top level only

	setters map[string]struct{}
	frozen  bool
}

// mergedTables holds the cross-module variable and function tables a
// top-level module accumulates while resolving imports.
type mergedTables struct {
	vars  map[intern.Symbol]*VarDecl
	funcs map[funcKey]*FuncDecl
}

func NewStaticContext(names *intern.Table) *StaticContext {
	if names == nil {
		names = intern.NewTable()
	}
	ctx := StaticContext{
		passive:              make(map[string]nsDecl),
		vars:                 make(map[intern.Symbol]*VarDecl),
		funcs:                make(map[funcKey]*FuncDecl),
		importedModules:      make(map[string]struct{}),
		importedSchemas:      make(map[string]struct{}),
		collations:           map[string]struct{}{DefaultCollationUri: {}},
		setters:              make(map[string]struct{}),
		names:                names,
		DefaultCollation:     DefaultCollationUri,
		DefaultFuncNamespace: FnNamespaceUri,
		EmptyLeast:           true,
		CopyPreserve:         true,
		CopyInherit:          true,
	}
	for prefix, uri := range predeclared {
		ctx.passive[prefix] = nsDecl{uri: uri}
	}
	return &ctx
}

var predeclared = map[string]string{
	"xml":   XmlNamespaceUri,
	"xs":    XsNamespaceUri,
	"xsi":   XsiNamespaceUri,
	"fn":    FnNamespaceUri,
	"local": LocalNamespaceUri,
	"xq":    OptionNamespaceUri,
}

// Clone deep-copies the context so a caller-supplied baseline can be
// reused across independent compiles without sharing mutable state.
func (c *StaticContext) Clone() *StaticContext {
	ctx := *c
	ctx.passive = maps.Clone(c.passive)
	ctx.active = append([]nsBinding(nil), c.active...)
	ctx.collations = maps.Clone(c.collations)
	ctx.vars = maps.Clone(c.vars)
	ctx.funcs = maps.Clone(c.funcs)
	ctx.importedModules = maps.Clone(c.importedModules)
	ctx.importedSchemas = maps.Clone(c.importedSchemas)
	ctx.setters = maps.Clone(c.setters)
	ctx.frozen = false
	return &ctx
}

// subContext creates the context of an imported module, inheriting the
// shared services of the importing one but none of its declarations.
func (c *StaticContext) subContext(uri string) *StaticContext {
	ctx := NewStaticContext(c.names)
	ctx.URI = uri
	ctx.SchemaAware = c.SchemaAware
	ctx.AllowExternal = c.AllowExternal
	ctx.collations = maps.Clone(c.collations)
	ctx.top = c.topLevel()
	return ctx
}

func (c *StaticContext) topLevel() *StaticContext {
	if c.top != nil {
		return c.top
	}
	return c
}

func (c *StaticContext) tables() *mergedTables {
	top := c.topLevel()
	if top.merged == nil {
		top.merged = &mergedTables{
			vars:  make(map[intern.Symbol]*VarDecl),
			funcs: make(map[funcKey]*FuncDecl),
		}
	}
	return top.merged
}

func (c *StaticContext) Names() *intern.Table {
	return c.names
}

func (c *StaticContext) freeze() {
	c.frozen = true
}

func (c *StaticContext) Frozen() bool {
	return c.frozen
}

// markSetter records a prolog setter declaration and reports whether it
// had been declared before in this module.
func (c *StaticContext) markSetter(kind string) bool {
	_, ok := c.setters[kind]
	c.setters[kind] = struct{}{}
	return ok
}

// DeclarePassiveNamespace registers a prolog or API namespace binding.
// Explicit prolog declarations may not repeat a prefix already
// explicitly declared, and the xml/xmlns prefixes are protected.
func (c *StaticContext) DeclarePassiveNamespace(prefix, uri string, explicit bool) error {
	if err := checkProtected(prefix, uri); err != nil {
		return err
	}
	if old, ok := c.passive[prefix]; ok && old.explicit && explicit {
		return staticError(CodeDupPrefix, fmt.Sprintf("namespace prefix %q already declared", prefix), Position{})
	}
	c.passive[prefix] = nsDecl{
		uri:      uri,
		explicit: explicit,
	}
	return nil
}

func checkProtected(prefix, uri string) error {
	if prefix == "xmlns" || uri == XmlnsNamespaceUri {
		return staticError(CodeProtectedPrefix, "the xmlns prefix can not be declared", Position{})
	}
	if prefix == "xml" && uri != XmlNamespaceUri {
		return staticError(CodeProtectedPrefix, "the xml prefix is bound to its fixed namespace", Position{})
	}
	if prefix != "xml" && uri == XmlNamespaceUri {
		return staticError(CodeProtectedPrefix, fmt.Sprintf("the xml namespace can not be bound to prefix %q", prefix), Position{})
	}
	return nil
}

// DeclareActiveNamespace pushes a constructor-scoped binding; it
// shadows passive bindings and is copied into constructed output.
func (c *StaticContext) DeclareActiveNamespace(prefix, uri string) error {
	if err := checkProtected(prefix, uri); err != nil {
		return err
	}
	c.active = append(c.active, nsBinding{prefix: prefix, uri: uri})
	return nil
}

// UndeclareNamespace pops the most recent active binding. Pushes and
// pops must nest exactly with element-constructor scope.
func (c *StaticContext) UndeclareNamespace() {
	if n := len(c.active); n > 0 {
		c.active = c.active[:n-1]
	}
}

func (c *StaticContext) activeDepth() int {
	return len(c.active)
}

// LookupPrefix resolves a prefix against the active stack first, then
// the passive table.
func (c *StaticContext) LookupPrefix(prefix string) (string, bool) {
	if uri, ok := c.lookupActive(prefix); ok {
		return uri, true
	}
	decl, ok := c.passive[prefix]
	return decl.uri, ok
}

func (c *StaticContext) lookupActive(prefix string) (string, bool) {
	for i := len(c.active) - 1; i >= 0; i-- {
		if c.active[i].prefix == prefix {
			return c.active[i].uri, true
		}
	}
	return "", false
}

// ResolveQName expands prefix:local into a QName. Unprefixed element
// names take the default element namespace; unprefixed function names
// take the default function namespace.
func (c *StaticContext) ResolveQName(prefix, local string, use nameUse) (QName, error) {
	if prefix == "" {
		switch use {
		case useElement:
			if uri, ok := c.lookupActive(""); ok {
				return intern.Expanded(local, "", uri), nil
			}
			return intern.Expanded(local, "", c.DefaultElemNamespace), nil
		case useFunction:
			return intern.Expanded(local, "", c.DefaultFuncNamespace), nil
		default:
			return intern.Local(local), nil
		}
	}
	uri, ok := c.LookupPrefix(prefix)
	if !ok {
		return QName{}, staticError(CodeUndeclaredPrefix, fmt.Sprintf("undeclared namespace prefix %q", prefix), Position{})
	}
	return intern.Expanded(local, prefix, uri), nil
}

type nameUse int8

const (
	useOther nameUse = iota
	useElement
	useFunction
)

// DeclareVariable registers a global variable declaration in this
// module and in the merged cross-module table. Re-registering the
// identical declaration object is a no-op so cyclic imports can be
// re-processed; a different object under the same name is a duplicate.
func (c *StaticContext) DeclareVariable(decl *VarDecl) error {
	sym := c.names.Intern(decl.Name)
	if old, ok := c.vars[sym]; ok && old != decl {
		return staticError(CodeDupVariable, fmt.Sprintf("global variable $%s already declared", decl.Name), decl.Position)
	}
	tables := c.tables()
	if old, ok := tables.vars[sym]; ok && old != decl {
		if !old.Pending() {
			return staticError(CodeDupVariable, fmt.Sprintf("global variable $%s already declared in another module", decl.Name), decl.Position)
		}
		old.resolve(decl)
	}
	c.vars[sym] = decl
	tables.vars[sym] = decl
	return nil
}

// DeclareFunction registers a function declaration; the merged table is
// keyed by name and arity.
func (c *StaticContext) DeclareFunction(decl *FuncDecl) error {
	if decl.Name.Space == "" {
		return staticError(CodeFunctionNoNS, fmt.Sprintf("function %s is in no namespace", decl.Name), decl.Position)
	}
	if isReservedFunctionNamespace(decl.Name.Space) {
		return staticError(CodeReservedFuncNS, fmt.Sprintf("function %s declared in a reserved namespace", decl.Name), decl.Position)
	}
	key := funcKey{
		sym:   c.names.Intern(decl.Name),
		arity: decl.Arity(),
	}
	if old, ok := c.funcs[key]; ok && old != decl {
		return staticError(CodeDupFunction, fmt.Sprintf("function %s/%d already declared", decl.Name, decl.Arity()), decl.Position)
	}
	tables := c.tables()
	if old, ok := tables.funcs[key]; ok && old != decl {
		if !old.Pending() {
			return staticError(CodeDupFunction, fmt.Sprintf("function %s/%d already declared in another module", decl.Name, decl.Arity()), decl.Position)
		}
		old.resolve(decl)
	}
	c.funcs[key] = decl
	tables.funcs[key] = decl
	return nil
}

func isReservedFunctionNamespace(uri string) bool {
	switch uri {
	case XmlNamespaceUri, XsNamespaceUri, XsiNamespaceUri, FnNamespaceUri:
		return true
	default:
		return false
	}
}

// BindVariable attaches a variable reference to its declaration. Local
// declarations win; otherwise the merged table is consulted. A name in
// an imported namespace whose module has not produced the declaration
// yet gets a placeholder that accumulates references until fixup. A
// name in a namespace that was never imported fails immediately.
func (c *StaticContext) BindVariable(ref *varRef) error {
	sym := c.names.Intern(ref.name)
	if decl, ok := c.vars[sym]; ok {
		decl.addRef(ref)
		return nil
	}
	tables := c.tables()
	if decl, ok := tables.vars[sym]; ok && c.namespaceInScope(ref.name.Space) {
		decl.addRef(ref)
		return nil
	}
	if c.imported(ref.name.Space) {
		decl := &VarDecl{
			Name:  ref.name,
			state: declPending,
		}
		decl.addRef(ref)
		tables.vars[sym] = decl
		return nil
	}
	return staticError(CodeUndefinedRef, fmt.Sprintf("variable $%s is not declared", ref.name), ref.Position)
}

// BindFunction resolves a call site. Builtins (fn: functions and xs:
// atomic type constructors) resolve without a declaration. Calls to user
// functions may precede the declaration: forward references and mutual
// recursion are legal within the module's own namespaces, so an unknown
// call gets a placeholder that fixup either resolves or reports. A call
// into a namespace this module never imported fails immediately.
func (c *StaticContext) BindFunction(ref *funcCall) error {
	if ref.name.Space == FnNamespaceUri || ref.name.Space == "" && c.DefaultFuncNamespace == FnNamespaceUri {
		return nil
	}
	if isBuiltinTypeNamespace(ref.name.Space) {
		if len(ref.args) == 1 && isAtomicConstructor(ref.name) {
			return nil
		}
		return staticError(CodeUndefinedFunction, fmt.Sprintf("%s is not an atomic type constructor", ref.name), ref.Position)
	}
	key := funcKey{
		sym:   c.names.Intern(ref.name),
		arity: len(ref.args),
	}
	if decl, ok := c.funcs[key]; ok {
		decl.addRef(ref)
		return nil
	}
	if !c.namespaceInScope(ref.name.Space) && ref.name.Space != LocalNamespaceUri {
		return staticError(CodeUndefinedFunction,
			fmt.Sprintf("function %s/%d is not declared", ref.name, len(ref.args)), ref.Position)
	}
	tables := c.tables()
	if decl, ok := tables.funcs[key]; ok {
		decl.addRef(ref)
		return nil
	}
	decl := &FuncDecl{
		Name:   ref.name,
		Params: make([]Param, len(ref.args)),
		state:  declPending,
	}
	decl.addRef(ref)
	tables.funcs[key] = decl
	return nil
}

func (c *StaticContext) imported(uri string) bool {
	_, ok := c.importedModules[uri]
	return ok
}

// namespaceInScope reports whether declarations in uri are visible to
// this module: its own namespace, or one it imported.
func (c *StaticContext) namespaceInScope(uri string) bool {
	return uri == c.ModuleNamespace || c.imported(uri)
}

func (c *StaticContext) importModule(uri string) error {
	if uri == "" {
		return staticError(CodeEmptyModuleURI, "module import with empty target namespace", Position{})
	}
	if uri == c.ModuleNamespace {
		return staticError(CodeSelfImport, fmt.Sprintf("module imports its own namespace %q", uri), Position{})
	}
	if c.imported(uri) {
		return staticError(CodeDupModuleImport, fmt.Sprintf("namespace %q imported twice", uri), Position{})
	}
	c.importedModules[uri] = struct{}{}
	return nil
}

func (c *StaticContext) importSchema(uri string) error {
	if !c.SchemaAware {
		return staticError(CodeSchemaImport, "schema import requires schema awareness", Position{})
	}
	if _, ok := c.importedSchemas[uri]; ok {
		return staticError(CodeDupSchemaImport, fmt.Sprintf("schema namespace %q imported twice", uri), Position{})
	}
	c.importedSchemas[uri] = struct{}{}
	return nil
}

func (c *StaticContext) schemaImported(uri string) bool {
	_, ok := c.importedSchemas[uri]
	return ok
}

// DeclareCollation registers a collation URI usable in order-by
// clauses and as default collation.
func (c *StaticContext) DeclareCollation(uri string) {
	c.collations[uri] = struct{}{}
}

func (c *StaticContext) knownCollation(uri string) bool {
	_, ok := c.collations[uri]
	return ok
}

// CheckImportedType walks a sequence type and verifies that every
// atomic or schema-annotated component lives in a namespace this module
// may use: a built-in namespace or an imported schema namespace. The
// declaring entity's name is quoted in the error.
func (c *StaticContext) CheckImportedType(t SequenceType, declaring string) error {
	check := func(name QName) error {
		if name.Zero() || isBuiltinTypeNamespace(name.Space) || c.schemaImported(name.Space) {
			return nil
		}
		return staticError(CodeTypeNotImported,
			fmt.Sprintf("type %s of %s: schema namespace %q not imported", name, declaring, name.Space), Position{})
	}
	if t.Item.Atomic {
		return check(t.Item.Name)
	}
	return check(t.Item.TypeName)
}

// Variables returns the module's own global variable declarations.
func (c *StaticContext) Variables() []*VarDecl {
	all := make([]*VarDecl, 0, len(c.vars))
	for _, decl := range c.vars {
		all = append(all, decl)
	}
	return all
}

// Functions returns the module's own function declarations.
func (c *StaticContext) Functions() []*FuncDecl {
	all := make([]*FuncDecl, 0, len(c.funcs))
	for _, decl := range c.funcs {
		all = append(all, decl)
	}
	return all
}
