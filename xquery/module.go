package xquery

import (
	"fmt"
	"io"
	"strings"
)

// Module is one compiled source unit: the main module or an imported
// library module. Declarations are kept in source order so globals can
// be initialized deterministically.
type Module struct {
	URI      string
	Location string
	Ctx      *StaticContext
	Body     Expr
	Library  bool

	imports []moduleImport
	vars    []*VarDecl
	funcs   []*FuncDecl
}

// Variables returns the module's global variables in declaration order.
func (m *Module) Variables() []*VarDecl {
	return m.vars
}

// Functions returns the module's functions in declaration order.
func (m *Module) Functions() []*FuncDecl {
	return m.funcs
}

type moduleImport struct {
	prefix    string
	uri       string
	locations []string
	Position
}

// Loader fetches the source of a library module by target namespace.
// The location hints come from the import's at clause and may be empty;
// the returned string tells where the module was actually found.
type Loader interface {
	LoadModule(uri string, locations []string) (io.ReadCloser, string, error)
}

// Query is the result of a successful compilation: the main module
// body, every module in the graph and the global variables in
// initialization order, each assigned its slot.
type Query struct {
	Body    Expr
	Main    *Module
	Modules map[string]*Module
	Globals []*VarDecl
}

// Slots reports how many global variable slots the query needs.
func (q *Query) Slots() int {
	return len(q.Globals)
}

// Compile parses and statically checks a main module and every library
// module it transitively imports. It returns either a usable query or
// the full list of static errors, never both.
func Compile(r io.Reader, opts ...Option) (*Query, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	sink := newErrorSink(cfg.reporter)
	ctx := NewStaticContext(cfg.names)
	ctx.SchemaAware = cfg.schemaAware
	ctx.AllowExternal = cfg.allowExternal
	ctx.BaseURI = cfg.baseURI
	for prefix, uri := range cfg.namespaces {
		if err := ctx.DeclarePassiveNamespace(prefix, uri, false); err != nil {
			sink.report(err)
		}
	}
	for _, uri := range cfg.collations {
		ctx.DeclareCollation(uri)
	}

	res := resolver{
		loader:  cfg.loader,
		tracer:  cfg.tracer,
		sink:    sink,
		main:    ctx,
		modules: make(map[string]*Module),
	}
	comp := newCompiler(r, ctx, sink, cfg.tracer)
	main := comp.compileUnit()
	if main.Library {
		sink.report(staticError(CodeSyntax, "can not execute a library module", Position{}))
	}
	res.resolveImports(main)
	res.fixup()

	globals := res.orderGlobals(main)
	if err := sink.err(); err != nil {
		return nil, err
	}
	return &Query{
		Body:    main.Body,
		Main:    main,
		Modules: res.modules,
		Globals: globals,
	}, nil
}

// CompileString is Compile over an in-memory query.
func CompileString(query string, opts ...Option) (*Query, error) {
	return Compile(strings.NewReader(query), opts...)
}

// resolver drives the import graph: it loads and parses each library
// module exactly once. Mutual imports are legal: a namespace that
// reappears while still being parsed is simply reused, its declarations
// bind through placeholders and genuine dependency cycles surface when
// the globals are ordered.
type resolver struct {
	loader  Loader
	tracer  Tracer
	sink    *errorSink
	main    *StaticContext
	modules map[string]*Module
}

func (r *resolver) resolveImports(mod *Module) {
	for _, imp := range mod.imports {
		r.load(imp)
	}
}

func (r *resolver) load(imp moduleImport) {
	if _, ok := r.modules[imp.uri]; ok {
		return
	}
	if r.loader == nil {
		r.sink.report(staticError(CodeModuleNotFound,
			fmt.Sprintf("no loader configured to resolve module %q", imp.uri), imp.Position))
		return
	}
	src, location, err := r.loader.LoadModule(imp.uri, imp.locations)
	if err != nil {
		r.sink.report(staticError(CodeModuleNotFound,
			fmt.Sprintf("module %q: %s", imp.uri, err), imp.Position))
		return
	}
	defer src.Close()

	mark := r.sink.count()
	ctx := r.main.subContext(imp.uri)
	comp := newCompiler(src, ctx, r.sink, r.tracer)

	mod := &Module{
		URI:      imp.uri,
		Location: location,
		Ctx:      ctx,
	}
	r.modules[imp.uri] = mod

	parsed := comp.compileUnit()
	mod.Library = parsed.Library
	mod.imports = parsed.imports
	mod.vars = parsed.vars
	mod.funcs = parsed.funcs

	for _, e := range r.sink.errors[mark:] {
		if e.URI == "" {
			e.URI = location
		}
	}
	switch {
	case !parsed.Library:
		r.sink.report(staticError(CodeModuleNotFound,
			fmt.Sprintf("%s is not a library module", location), imp.Position))
	case ctx.ModuleNamespace != imp.uri:
		r.sink.report(staticError(CodeModuleNotFound,
			fmt.Sprintf("module at %s declares namespace %q, not %q", location, ctx.ModuleNamespace, imp.uri), imp.Position))
	default:
		r.resolveImports(mod)
	}
}

// fixup runs once the whole graph is parsed: every placeholder still
// pending names a declaration that no module ever produced, and each of
// its call or reference sites is an error of its own.
func (r *resolver) fixup() {
	tables := r.main.tables()
	for _, decl := range tables.vars {
		if !decl.Pending() {
			continue
		}
		for _, ref := range decl.refs {
			r.sink.report(staticError(CodeUndefinedRef,
				fmt.Sprintf("variable $%s is not declared in any module", ref.name), ref.Position))
		}
	}
	for _, decl := range tables.funcs {
		if !decl.Pending() {
			continue
		}
		for _, ref := range decl.refs {
			r.sink.report(staticError(CodeUndefinedFunction,
				fmt.Sprintf("function %s/%d is not declared in any module", ref.name, len(ref.args)), ref.Position))
		}
	}
}

// orderGlobals checks the variable dependency graph for cycles and
// returns the declarations in an initialization order where every
// variable comes after the ones it depends on. Dependencies reach
// through function bodies: a variable initialized by a function that
// reads the variable is as circular as a direct self-reference. A cycle
// confined to one module names the variables in the chain; a cycle
// crossing module boundaries names the modules.
func (r *resolver) orderGlobals(main *Module) []*VarDecl {
	var all []*VarDecl
	for _, mod := range r.modules {
		all = append(all, mod.vars...)
	}
	all = append(all, main.vars...)

	const (
		white = iota
		grey
		black
	)
	var (
		order []*VarDecl
		color = make(map[*VarDecl]int)
		chain []*VarDecl
		visit func(decl *VarDecl)
	)
	visit = func(decl *VarDecl) {
		switch color[decl] {
		case grey:
			r.sink.report(cycleError(append(chainFrom(chain, decl), decl)))
			return
		case black:
			return
		}
		color[decl] = grey
		chain = append(chain, decl)
		for _, dep := range variableDeps(decl) {
			visit(dep)
		}
		chain = chain[:len(chain)-1]
		color[decl] = black
		if err := decl.compile(len(order)); err != nil {
			r.sink.report(err)
		}
		order = append(order, decl)
	}
	for _, decl := range all {
		visit(decl)
	}
	return order
}

// chainFrom trims the DFS chain to the part that forms the cycle.
func chainFrom(chain []*VarDecl, decl *VarDecl) []*VarDecl {
	for i, d := range chain {
		if d == decl {
			return chain[i:]
		}
	}
	return chain
}

func cycleError(cycle []*VarDecl) error {
	last := cycle[len(cycle)-1]
	if mods := moduleChain(cycle); len(mods) > 1 {
		return staticError(CodeModuleCycle,
			fmt.Sprintf("cyclic dependency between modules: %s", strings.Join(mods, " -> ")), last.Position)
	}
	names := make([]string, 0, len(cycle))
	for _, d := range cycle {
		names = append(names, d.Name.QualifiedName())
	}
	return staticError(CodeVariableCycle,
		fmt.Sprintf("circular variable initialization: %s", strings.Join(names, " -> ")), last.Position)
}

// moduleChain maps a dependency cycle to the modules it runs through,
// collapsing consecutive declarations of the same module.
func moduleChain(cycle []*VarDecl) []string {
	var uris []string
	for _, d := range cycle {
		uri := "main"
		if d.Module != nil && d.Module.Ctx != nil && d.Module.Ctx.ModuleNamespace != "" {
			uri = d.Module.Ctx.ModuleNamespace
		}
		if n := len(uris); n == 0 || uris[n-1] != uri {
			uris = append(uris, uri)
		}
	}
	return uris
}

// variableDeps collects the global variables a declaration's
// initializer reads, following calls into declared function bodies.
// Recursive functions are walked once.
func variableDeps(decl *VarDecl) []*VarDecl {
	var (
		deps []*VarDecl
		seen = make(map[*FuncDecl]struct{})
		scan func(e Expr)
	)
	scan = func(e Expr) {
		walk(e, func(e Expr) {
			switch e := e.(type) {
			case *varRef:
				if e.decl != nil {
					deps = append(deps, e.decl)
				}
			case *funcCall:
				if e.decl == nil || e.decl.Body == nil {
					return
				}
				if _, ok := seen[e.decl]; ok {
					return
				}
				seen[e.decl] = struct{}{}
				scan(e.decl.Body)
			}
		})
	}
	scan(decl.Expr)
	return deps
}

// walk visits e and every expression below it in preorder.
func walk(e Expr, fn func(Expr)) {
	if e == nil {
		return
	}
	fn(e)
	switch e := e.(type) {
	case sequence:
		for _, x := range e.all {
			walk(x, fn)
		}
	case rng:
		walk(e.left, fn)
		walk(e.right, fn)
	case binary:
		walk(e.left, fn)
		walk(e.right, fn)
	case unary:
		walk(e.expr, fn)
	case conditional:
		walk(e.test, fn)
		walk(e.csq, fn)
		walk(e.alt, fn)
	case forLoop:
		walk(e.bind.expr, fn)
		walk(e.body, fn)
	case letBinding:
		walk(e.bind.expr, fn)
		walk(e.body, fn)
	case tuple:
		walk(e.value, fn)
		for _, x := range e.keys {
			walk(x, fn)
		}
	case sortBy:
		walk(e.input, fn)
	case project:
		walk(e.input, fn)
	case quantified:
		for _, b := range e.binds {
			walk(b.expr, fn)
		}
		walk(e.test, fn)
	case typeswitchExpr:
		walk(e.input, fn)
		for _, cc := range e.cases {
			walk(cc.action, fn)
		}
		walk(e.deflt.action, fn)
	case validate:
		walk(e.expr, fn)
	case typeCheck:
		walk(e.expr, fn)
	case *funcCall:
		for _, x := range e.args {
			walk(x, fn)
		}
	case step:
		walk(e.curr, fn)
		walk(e.next, fn)
	case axis:
		walk(e.next, fn)
	case filter:
		walk(e.expr, fn)
		walk(e.check, fn)
	case elemConstructor:
		walk(e.nameExpr, fn)
		for _, a := range e.attrs {
			walk(a.nameExpr, fn)
			for _, x := range a.parts {
				walk(x, fn)
			}
		}
		for _, x := range e.content {
			walk(x, fn)
		}
	case attrConstructor:
		walk(e.nameExpr, fn)
		for _, x := range e.parts {
			walk(x, fn)
		}
	case textConstructor:
		walk(e.expr, fn)
	case commentConstructor:
		walk(e.expr, fn)
	case piConstructor:
		walk(e.targetExpr, fn)
		walk(e.expr, fn)
	case docConstructor:
		walk(e.body, fn)
	case orderedExpr:
		walk(e.expr, fn)
	}
}
