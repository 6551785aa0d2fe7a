package xquery

import (
	"fmt"
	"strings"

	"github.com/midbel/distance"
)

// OptionNamespaceUri is the namespace of the implementation-defined
// options recognized in declare option; options in foreign namespaces
// are ignored.
const OptionNamespaceUri = "https://midbel.org/xq"

var knownOptions = []string{
	"trace",
	"collation",
}

// compileUnit parses one whole source unit: optional version
// declaration, optional library module declaration, the prolog, and for
// a main module the query body. Prolog errors are recoverable: they are
// recorded and parsing resumes at the next separator. Body errors are
// fatal to the module.
func (c *compiler) compileUnit() *Module {
	mod := &Module{
		Ctx: c.ctx,
	}
	c.module = mod
	if err := c.compileVersionDecl(); err != nil {
		c.sink.report(err)
		c.skipDeclaration()
	}
	if c.isKeyword(kwModule) && c.peek.Type == Name && c.peek.Literal == kwNamespace {
		mod.Library = true
		if err := c.compileModuleDecl(); err != nil {
			c.sink.report(err)
			c.skipDeclaration()
		}
	}
	c.compileProlog()
	if mod.Library {
		if !c.done() {
			c.sink.report(syntaxError(c.curr.String(), "library module can not have a query body", c.curr.Position))
		}
	} else {
		body, err := c.compile()
		switch {
		case err != nil:
			c.sink.report(err)
		case !c.done():
			c.sink.report(syntaxError(c.curr.String(), "unexpected token after query body", c.curr.Position))
		default:
			mod.Body = body
		}
	}
	c.ctx.freeze()
	return mod
}

func (c *compiler) compileVersionDecl() error {
	if !c.isKeyword(kwXQuery) || c.peek.Type != Name || c.peek.Literal != kwVersion {
		return nil
	}
	c.next()
	c.next()
	version, err := c.stringLiteral()
	if err != nil {
		return err
	}
	pos := c.curr.Position
	if c.isKeyword(kwEncoding) {
		c.next()
		if _, err := c.stringLiteral(); err != nil {
			return err
		}
	}
	if !c.is(opSemi) {
		return syntaxError(c.curr.String(), "expected ; after version declaration", c.curr.Position)
	}
	c.next()
	if version != "1.0" {
		c.sink.report(staticError(CodeBadVersion,
			fmt.Sprintf("xquery version %q is not supported", version), pos))
	}
	return nil
}

func (c *compiler) compileModuleDecl() error {
	c.Enter("module-decl")
	defer c.Leave("module-decl")
	c.next()
	c.next()
	if !c.is(Name) {
		return syntaxError(c.curr.String(), "module prefix expected", c.curr.Position)
	}
	prefix := c.getCurrentLiteral()
	c.next()
	if !c.is(opEq) {
		return syntaxError(c.curr.String(), "expected = in module declaration", c.curr.Position)
	}
	c.next()
	pos := c.curr.Position
	uri, err := c.stringLiteral()
	if err != nil {
		return err
	}
	if uri == "" {
		c.sink.report(staticError(CodeEmptyModuleURI, "module declared with empty target namespace", pos))
	}
	c.ctx.ModuleNamespace = uri
	c.ctx.ModulePrefix = prefix
	c.module.URI = uri
	if err := c.ctx.DeclarePassiveNamespace(prefix, uri, true); err != nil {
		c.sink.report(withPos(err, pos))
	}
	if !c.is(opSemi) {
		return syntaxError(c.curr.String(), "expected ; after module declaration", c.curr.Position)
	}
	c.next()
	return nil
}

// compileProlog runs the declaration loop. Setters must all precede the
// first structural declaration: namespace, import, variable, function
// or option.
func (c *compiler) compileProlog() {
	structural := false
	for {
		var err error
		switch {
		case c.isKeyword(kwDeclare) && isDeclKeyword(c.peek.Literal):
			err = c.compileDeclaration(&structural)
		case c.isKeyword(kwImport) && (c.peek.Literal == kwModule || c.peek.Literal == kwSchema):
			err = c.compileImport(&structural)
		default:
			return
		}
		if err != nil {
			c.sink.report(err)
			c.skipDeclaration()
			continue
		}
		if !c.is(opSemi) {
			c.sink.report(syntaxError(c.curr.String(), "expected ; after declaration", c.curr.Position))
			c.skipDeclaration()
			continue
		}
		c.next()
	}
}

func isDeclKeyword(str string) bool {
	switch str {
	case kwNamespace, kwDefault, kwBoundary, kwBaseUri, kwConstruct:
	case kwOrdering, kwCopyNS, kwOption, kwVariable, kwFunction:
	default:
		return false
	}
	return true
}

// skipDeclaration resynchronizes after a recoverable prolog error: it
// drops tokens until past the next separator.
func (c *compiler) skipDeclaration() {
	for !c.done() && !c.is(opSemi) {
		c.next()
	}
	if c.is(opSemi) {
		c.next()
	}
}

func (c *compiler) compileDeclaration(structural *bool) error {
	c.Enter("declare")
	defer c.Leave("declare")

	pos := c.curr.Position
	c.next()
	kind := c.getCurrentLiteral()
	if *structural && kind != kwVariable && kind != kwFunction && kind != kwOption && kind != kwNamespace {
		return syntaxError(kind, "setter declared after the first structural declaration", c.curr.Position)
	}
	switch kind {
	case kwNamespace:
		*structural = true
		c.next()
		return c.compileNamespaceDecl()
	case kwDefault:
		c.next()
		return c.compileDefaultDecl(pos)
	case kwBoundary:
		c.next()
		mode, err := c.keywordChoice(kwPreserve, kwStrip)
		if err != nil {
			return err
		}
		if c.ctx.markSetter(kwBoundary) {
			return staticError(CodeDupBoundarySpace, "boundary-space declared twice", pos)
		}
		if mode == kwPreserve {
			c.ctx.BoundarySpace = BoundaryPreserve
		} else {
			c.ctx.BoundarySpace = BoundaryStrip
		}
	case kwBaseUri:
		c.next()
		uri, err := c.stringLiteral()
		if err != nil {
			return err
		}
		if c.ctx.markSetter(kwBaseUri) {
			return staticError(CodeDupBaseUri, "base-uri declared twice", pos)
		}
		c.ctx.BaseURI = uri
	case kwConstruct:
		c.next()
		mode, err := c.keywordChoice(kwPreserve, kwStrip)
		if err != nil {
			return err
		}
		if c.ctx.markSetter(kwConstruct) {
			return staticError(CodeDupConstruction, "construction declared twice", pos)
		}
		if mode == kwPreserve {
			c.ctx.Construction = ConstructionPreserve
		} else {
			c.ctx.Construction = ConstructionStrip
		}
	case kwOrdering:
		c.next()
		mode, err := c.keywordChoice(kwOrdered, kwUnordered)
		if err != nil {
			return err
		}
		if c.ctx.markSetter(kwOrdering) {
			return staticError(CodeDupOrdering, "ordering mode declared twice", pos)
		}
		if mode == kwOrdered {
			c.ctx.Ordering = OrderingOrdered
		} else {
			c.ctx.Ordering = OrderingUnordered
		}
	case kwCopyNS:
		c.next()
		preserve, err := c.keywordChoice(kwPreserve, kwNoPreserve)
		if err != nil {
			return err
		}
		if !c.is(opSeq) {
			return syntaxError(c.curr.String(), "expected , in copy-namespaces declaration", c.curr.Position)
		}
		c.next()
		inherit, err := c.keywordChoice(kwInherit, kwNoInherit)
		if err != nil {
			return err
		}
		if c.ctx.markSetter(kwCopyNS) {
			return staticError(CodeDupCopyNS, "copy-namespaces declared twice", pos)
		}
		c.ctx.CopyPreserve = preserve == kwPreserve
		c.ctx.CopyInherit = inherit == kwInherit
	case kwOption:
		*structural = true
		c.next()
		return c.compileOptionDecl()
	case kwVariable:
		*structural = true
		c.next()
		return c.compileVariableDecl()
	case kwFunction:
		*structural = true
		c.next()
		return c.compileFunctionDecl(pos)
	default:
		return syntaxError(kind, "unknown declaration", c.curr.Position)
	}
	return nil
}

func (c *compiler) compileNamespaceDecl() error {
	if !c.is(Name) {
		return syntaxError(c.curr.String(), "namespace prefix expected", c.curr.Position)
	}
	prefix := c.getCurrentLiteral()
	pos := c.curr.Position
	c.next()
	if !c.is(opEq) {
		return syntaxError(c.curr.String(), "expected = in namespace declaration", c.curr.Position)
	}
	c.next()
	uri, err := c.stringLiteral()
	if err != nil {
		return err
	}
	if err := c.ctx.DeclarePassiveNamespace(prefix, uri, true); err != nil {
		c.sink.report(withPos(err, pos))
	}
	return nil
}

func (c *compiler) compileDefaultDecl(pos Position) error {
	switch {
	case c.isKeyword(kwElement):
		c.next()
		if err := c.expectKeyword(kwNamespace); err != nil {
			return err
		}
		uri, err := c.stringLiteral()
		if err != nil {
			return err
		}
		if c.ctx.markSetter("default-element") {
			return staticError(CodeDupDefaultNS, "default element namespace declared twice", pos)
		}
		c.ctx.DefaultElemNamespace = uri
	case c.isKeyword(kwFunction):
		c.next()
		if err := c.expectKeyword(kwNamespace); err != nil {
			return err
		}
		uri, err := c.stringLiteral()
		if err != nil {
			return err
		}
		if c.ctx.markSetter("default-function") {
			return staticError(CodeDupDefaultNS, "default function namespace declared twice", pos)
		}
		c.ctx.DefaultFuncNamespace = uri
	case c.isKeyword(kwCollation):
		c.next()
		uri, err := c.stringLiteral()
		if err != nil {
			return err
		}
		if c.ctx.markSetter(kwCollation) {
			return staticError(CodeDupCollation, "default collation declared twice", pos)
		}
		if !c.ctx.knownCollation(uri) {
			return staticError(CodeDupCollation, fmt.Sprintf("unknown default collation %q", uri), pos)
		}
		c.ctx.DefaultCollation = uri
	case c.isKeyword(kwOrder):
		c.next()
		if err := c.expectKeyword(kwEmpty); err != nil {
			return err
		}
		mode, err := c.keywordChoice(kwGreatest, kwLeast)
		if err != nil {
			return err
		}
		if c.ctx.markSetter("default-order") {
			return staticError(CodeDupDefaultOrder, "default order declared twice", pos)
		}
		c.ctx.EmptyLeast = mode == kwLeast
	default:
		return syntaxError(c.curr.String(), "unknown default declaration", c.curr.Position)
	}
	return nil
}

// compileOptionDecl handles declare option. Options in the
// implementation namespace are dispatched; unknown ones get a warning
// with a suggestion when a known option is close. Options in foreign
// namespaces are ignored, as other processors own them.
func (c *compiler) compileOptionDecl() error {
	pos := c.curr.Position
	qn, err := c.compileQName(useOther)
	if err != nil {
		return err
	}
	if qn.Space == "" {
		return staticError(CodeUndeclaredPrefix,
			fmt.Sprintf("option %s has no namespace prefix", qn), pos)
	}
	value, err := c.stringLiteral()
	if err != nil {
		return err
	}
	if qn.Space != OptionNamespaceUri {
		return nil
	}
	switch qn.Local {
	case "trace":
		if value == "on" {
			c.Tracer = TraceStderr()
		}
	case "collation":
		c.ctx.DeclareCollation(value)
	default:
		msg := fmt.Sprintf("unknown option %s", qn)
		if others := distance.Levenshtein(qn.Local, knownOptions); len(others) > 0 {
			msg = fmt.Sprintf("%s (did you mean %s?)", msg, others[0])
		}
		c.sink.warn(msg)
	}
	return nil
}

func (c *compiler) compileVariableDecl() error {
	c.Enter("declare-variable")
	defer c.Leave("declare-variable")

	if !c.is(variable) {
		return syntaxError(c.curr.String(), "expected variable name", c.curr.Position)
	}
	name, err := c.variableName()
	if err != nil {
		return err
	}
	pos := c.curr.Position
	c.next()
	if c.module.Library && name.Space != c.ctx.ModuleNamespace {
		c.sink.report(staticError(CodeDeclOutsideModule,
			fmt.Sprintf("variable $%s is not in the module namespace", name), pos))
	}
	decl := &VarDecl{
		Name:     name,
		Module:   c.module,
		Position: pos,
	}
	if c.isKeyword(kwAs) {
		c.next()
		if decl.Type, err = c.compileSequenceType(); err != nil {
			return err
		}
		if err := c.ctx.CheckImportedType(decl.Type, fmt.Sprintf("variable $%s", name)); err != nil {
			c.sink.report(withPos(err, pos))
		}
	}
	switch {
	case c.is(opAssign):
		c.next()
		if decl.Expr, err = c.compileExpr(powLowest); err != nil {
			return err
		}
	case c.isKeyword(kwExternal):
		decl.External = true
		c.next()
	default:
		return syntaxError(c.curr.String(), "expected := or external", c.curr.Position)
	}
	if err := c.ctx.DeclareVariable(decl); err != nil {
		c.sink.report(err)
		return nil
	}
	c.module.vars = append(c.module.vars, decl)
	return nil
}

func (c *compiler) compileFunctionDecl(pos Position) error {
	c.Enter("declare-function")
	defer c.Leave("declare-function")

	name, err := c.compileQName(useFunction)
	if err != nil {
		return err
	}
	if c.module.Library && name.Space != c.ctx.ModuleNamespace {
		c.sink.report(staticError(CodeDeclOutsideModule,
			fmt.Sprintf("function %s is not in the module namespace", name), pos))
	}
	decl := &FuncDecl{
		Name:     name,
		Module:   c.module,
		Position: pos,
	}
	if !c.is(begGrp) {
		return syntaxError(c.curr.String(), "expected ( after function name", c.curr.Position)
	}
	c.next()
	seen := make(map[string]struct{})
	for !c.done() && !c.is(endGrp) {
		if !c.is(variable) {
			return syntaxError(c.curr.String(), "parameter name expected", c.curr.Position)
		}
		pname, err := c.variableName()
		if err != nil {
			return err
		}
		ppos := c.curr.Position
		c.next()
		if _, ok := seen[pname.ExpandedName()]; ok {
			c.sink.report(staticError(CodeDupParam,
				fmt.Sprintf("duplicate parameter $%s", pname), ppos))
		}
		seen[pname.ExpandedName()] = struct{}{}
		param := Param{
			Name: pname,
		}
		if c.isKeyword(kwAs) {
			c.next()
			if param.Type, err = c.compileSequenceType(); err != nil {
				return err
			}
			if err := c.ctx.CheckImportedType(param.Type, fmt.Sprintf("parameter $%s", pname)); err != nil {
				c.sink.report(withPos(err, ppos))
			}
		}
		decl.Params = append(decl.Params, param)
		switch {
		case c.is(opSeq):
			c.next()
			if c.is(endGrp) {
				return syntaxError(c.getCurrentLiteral(), "trailing comma in parameter list", c.curr.Position)
			}
		case c.is(endGrp):
		default:
			return syntaxError(c.curr.String(), "expected , or ) in parameter list", c.curr.Position)
		}
	}
	if !c.is(endGrp) {
		return syntaxError(c.getCurrentLiteral(), "missing ) after parameters", c.curr.Position)
	}
	c.next()
	if c.isKeyword(kwAs) {
		c.next()
		if decl.Result, err = c.compileSequenceType(); err != nil {
			return err
		}
		if err := c.ctx.CheckImportedType(decl.Result, fmt.Sprintf("function %s result", name)); err != nil {
			c.sink.report(withPos(err, pos))
		}
	}
	switch {
	case c.is(begCurl):
		c.enterScope()
		for i := range decl.Params {
			c.defineLocal(decl.Params[i].Name)
		}
		body, err := c.compileEnclosed()
		c.leaveScope()
		if err != nil {
			return err
		}
		decl.Body = body
	case c.isKeyword(kwExternal):
		decl.External = true
		c.next()
		if !c.ctx.AllowExternal {
			c.sink.report(staticError(CodeUndefinedFunction,
				fmt.Sprintf("external function %s is not enabled", name), pos))
		}
	default:
		return syntaxError(c.curr.String(), "expected function body or external", c.curr.Position)
	}
	if err := c.ctx.DeclareFunction(decl); err != nil {
		c.sink.report(err)
		return nil
	}
	c.module.funcs = append(c.module.funcs, decl)
	return nil
}

func (c *compiler) compileImport(structural *bool) error {
	c.Enter("import")
	defer c.Leave("import")

	pos := c.curr.Position
	c.next()
	*structural = true
	switch {
	case c.isKeyword(kwModule):
		c.next()
		return c.compileModuleImport(pos)
	case c.isKeyword(kwSchema):
		c.next()
		return c.compileSchemaImport(pos)
	default:
		return syntaxError(c.curr.String(), "expected module or schema after import", c.curr.Position)
	}
}

func (c *compiler) compileModuleImport(pos Position) error {
	var prefix string
	if c.isKeyword(kwNamespace) {
		c.next()
		if !c.is(Name) {
			return syntaxError(c.curr.String(), "namespace prefix expected", c.curr.Position)
		}
		prefix = c.getCurrentLiteral()
		c.next()
		if !c.is(opEq) {
			return syntaxError(c.curr.String(), "expected = in module import", c.curr.Position)
		}
		c.next()
	}
	uri, err := c.stringLiteral()
	if err != nil {
		return err
	}
	locations, err := c.compileLocations()
	if err != nil {
		return err
	}
	if err := c.ctx.importModule(uri); err != nil {
		c.sink.report(withPos(err, pos))
		return nil
	}
	if prefix != "" {
		if err := c.ctx.DeclarePassiveNamespace(prefix, uri, true); err != nil {
			c.sink.report(withPos(err, pos))
		}
	}
	c.module.imports = append(c.module.imports, moduleImport{
		prefix:    prefix,
		uri:       uri,
		locations: locations,
		Position:  pos,
	})
	return nil
}

// compileSchemaImport records the imported schema namespace; the schema
// itself is never fetched, the namespace only widens what
// CheckImportedType accepts.
func (c *compiler) compileSchemaImport(pos Position) error {
	var (
		prefix      string
		defaultElem bool
	)
	switch {
	case c.isKeyword(kwNamespace):
		c.next()
		if !c.is(Name) {
			return syntaxError(c.curr.String(), "namespace prefix expected", c.curr.Position)
		}
		prefix = c.getCurrentLiteral()
		c.next()
		if !c.is(opEq) {
			return syntaxError(c.curr.String(), "expected = in schema import", c.curr.Position)
		}
		c.next()
	case c.isKeyword(kwDefault):
		c.next()
		if err := c.expectKeyword(kwElement); err != nil {
			return err
		}
		if err := c.expectKeyword(kwNamespace); err != nil {
			return err
		}
		defaultElem = true
	}
	uri, err := c.stringLiteral()
	if err != nil {
		return err
	}
	if _, err := c.compileLocations(); err != nil {
		return err
	}
	if err := c.ctx.importSchema(uri); err != nil {
		c.sink.report(withPos(err, pos))
		return nil
	}
	if defaultElem {
		c.ctx.DefaultElemNamespace = uri
	}
	if prefix != "" {
		if err := c.ctx.DeclarePassiveNamespace(prefix, uri, true); err != nil {
			c.sink.report(withPos(err, pos))
		}
	}
	return nil
}

func (c *compiler) compileLocations() ([]string, error) {
	if !c.isKeyword(kwAt) {
		return nil, nil
	}
	c.next()
	var locations []string
	for {
		loc, err := c.stringLiteral()
		if err != nil {
			return nil, err
		}
		locations = append(locations, loc)
		if !c.is(opSeq) {
			break
		}
		c.next()
	}
	return locations, nil
}

func (c *compiler) keywordChoice(choices ...string) (string, error) {
	for _, kw := range choices {
		if c.isKeyword(kw) {
			c.next()
			return kw, nil
		}
	}
	return "", syntaxError(c.curr.String(),
		fmt.Sprintf("expected one of: %s", strings.Join(choices, ", ")), c.curr.Position)
}

func (c *compiler) stringLiteral() (string, error) {
	if !c.is(Literal) {
		return "", syntaxError(c.curr.String(), "string literal expected", c.curr.Position)
	}
	str := c.getCurrentLiteral()
	c.next()
	return str, nil
}
