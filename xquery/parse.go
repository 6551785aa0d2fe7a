package xquery

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/midbel/xq/environ"
	"github.com/midbel/xq/intern"
)

type compiler struct {
	scan *Scanner
	curr Token
	peek Token

	Tracer
	ctx    *StaticContext
	sink   *errorSink
	module *Module

	locals environ.Environ[QName]
	gensym int

	// type annotation of the last parsed element/attribute kind test,
	// picked up by the sequence-type parser
	lastTypeAnnotation QName

	infix  map[rune]func(Expr) (Expr, error)
	prefix map[rune]func() (Expr, error)
}

func newCompiler(r io.Reader, ctx *StaticContext, sink *errorSink, tracer Tracer) *compiler {
	if tracer == nil {
		tracer = discardTracer{}
	}
	cp := compiler{
		scan:   Scan(r),
		ctx:    ctx,
		sink:   sink,
		Tracer: tracer,
		locals: environ.Empty[QName](),
	}

	cp.infix = map[rune]func(Expr) (Expr, error){
		currLevel:    cp.compileStep,
		anyLevel:     cp.compileDescendantStep,
		begPred:      cp.compileFilter,
		opRange:      cp.compileRange,
		opConcat:     cp.compileBinary,
		opAdd:        cp.compileBinary,
		opSub:        cp.compileBinary,
		opMul:        cp.compileBinary,
		opDiv:        cp.compileBinary,
		opIdiv:       cp.compileBinary,
		opMod:        cp.compileBinary,
		opEq:         cp.compileBinary,
		opNe:         cp.compileBinary,
		opGt:         cp.compileBinary,
		opGe:         cp.compileBinary,
		opLt:         cp.compileBinary,
		opLe:         cp.compileBinary,
		opValEq:      cp.compileBinary,
		opValNe:      cp.compileBinary,
		opValGt:      cp.compileBinary,
		opValGe:      cp.compileBinary,
		opValLt:      cp.compileBinary,
		opValLe:      cp.compileBinary,
		opIs:         cp.compileBinary,
		opBefore:     cp.compileBinary,
		opAfter:      cp.compileBinary,
		opAnd:        cp.compileBinary,
		opOr:         cp.compileBinary,
		opUnion:      cp.compileBinary,
		opIntersect:  cp.compileBinary,
		opExcept:     cp.compileBinary,
		opInstanceOf: cp.compileTypeCheck,
		opTreatAs:    cp.compileTypeCheck,
		opCastAs:     cp.compileCast,
		opCastableAs: cp.compileCast,
	}
	cp.prefix = map[rune]func() (Expr, error){
		currLevel:  cp.compileRoot,
		anyLevel:   cp.compileDescendantRoot,
		Name:       cp.compileName,
		opMul:      cp.compileName,
		variable:   cp.compileVariable,
		currNode:   cp.compileCurrent,
		parentNode: cp.compileParent,
		attrNode:   cp.compileAttr,
		Literal:    cp.compileLiteral,
		Digit:      cp.compileNumber,
		opSub:      cp.compileUnary,
		opAdd:      cp.compileUnary,
		begGrp:     cp.compileSequence,
		reserved:   cp.compileReservedPrefix,
		opLt:       cp.compileDirectElem,
		CommentTag: cp.compileDirectComment,
		PITag:      cp.compileDirectInstruction,
	}

	cp.next()
	cp.next()
	return &cp
}

const (
	powLowest = iota
	powOr
	powAnd
	powCmp
	powConcat
	powRange
	powAdd
	powMul
	powUnion
	powIntersect
	powInstance
	powPrefix
	powStep
	powPred
	powHighest
)

var bindings = map[rune]int{
	currLevel:    powStep,
	anyLevel:     powStep,
	begPred:      powPred,
	opOr:         powOr,
	opAnd:        powAnd,
	opEq:         powCmp,
	opNe:         powCmp,
	opGt:         powCmp,
	opGe:         powCmp,
	opLt:         powCmp,
	opLe:         powCmp,
	opValEq:      powCmp,
	opValNe:      powCmp,
	opValGt:      powCmp,
	opValGe:      powCmp,
	opValLt:      powCmp,
	opValLe:      powCmp,
	opIs:         powCmp,
	opBefore:     powCmp,
	opAfter:      powCmp,
	opConcat:     powConcat,
	opRange:      powRange,
	opAdd:        powAdd,
	opSub:        powAdd,
	opMul:        powMul,
	opDiv:        powMul,
	opIdiv:       powMul,
	opMod:        powMul,
	opUnion:      powUnion,
	opIntersect:  powIntersect,
	opExcept:     powIntersect,
	opInstanceOf: powInstance,
	opTreatAs:    powInstance,
	opCastableAs: powInstance,
	opCastAs:     powInstance,
}

// compile parses a full expression: an expression single, possibly
// extended into a comma sequence.
func (c *compiler) compile() (Expr, error) {
	expr, err := c.compileExpr(powLowest)
	if err != nil {
		return nil, err
	}
	if c.is(opSeq) {
		return c.compileList(expr)
	}
	return expr, nil
}

func (c *compiler) compileList(left Expr) (Expr, error) {
	c.Enter("list")
	defer c.Leave("list")

	var seq sequence
	seq.all = append(seq.all, left)
	for c.is(opSeq) {
		c.next()
		expr, err := c.compileExpr(powLowest)
		if err != nil {
			return nil, err
		}
		seq.all = append(seq.all, expr)
	}
	return seq, nil
}

func (c *compiler) compileExpr(pow int) (Expr, error) {
	c.Enter("expr")
	defer c.Leave("expr")
	fn, ok := c.prefix[c.curr.Type]
	if !ok {
		return nil, syntaxError(c.curr.String(), "unexpected token in expression", c.curr.Position)
	}
	left, err := fn()
	if err != nil {
		return nil, err
	}
	for !c.done() && pow < c.power() {
		fn, ok := c.infix[c.curr.Type]
		if !ok {
			return nil, syntaxError(c.curr.String(), "token can not be used as operator", c.curr.Position)
		}
		left, err = fn(left)
		if err != nil {
			return nil, err
		}
	}
	return left, nil
}

func (c *compiler) compileReservedPrefix() (Expr, error) {
	switch c.getCurrentLiteral() {
	case kwFor, kwLet:
		return c.compileFLWOR()
	case kwIf:
		return c.compileIf()
	case kwSome, kwEvery:
		return c.compileQuantified(c.getCurrentLiteral() == kwEvery)
	case kwTypeswitch:
		return c.compileTypeswitch()
	case kwValidate:
		return c.compileValidate()
	case kwOrdered, kwUnordered:
		return c.compileOrdered(c.getCurrentLiteral() == kwOrdered)
	case kwElement, kwAttribute, kwText, kwComment, kwProcInst, kwDocument:
		return c.compileComputedConstructor()
	default:
		return nil, syntaxError(c.getCurrentLiteral(), "reserved word can not start an expression", c.curr.Position)
	}
}

// flworClause is one for or let binding before desugaring.
type flworClause struct {
	let  bool
	bind binding
	pos  QName
}

// compileFLWOR parses the for/let clauses, the optional where and
// order-by, and the return expression, then rewrites the whole thing
// into nested loop and let wrappers: where becomes a conditional
// yielding the empty sequence, order-by becomes a tuple projection
// around a stable sort node.
func (c *compiler) compileFLWOR() (Expr, error) {
	c.Enter("flwor")
	defer c.Leave("flwor")
	c.enterScope()
	defer c.leaveScope()

	var clauses []flworClause
	for c.is(reserved) && (c.getCurrentLiteral() == kwFor || c.getCurrentLiteral() == kwLet) {
		loop := c.getCurrentLiteral() == kwFor
		c.next()
		for {
			clause, err := c.compileClause(loop)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, clause)
			c.defineLocal(clause.bind.ident)
			c.defineLocal(clause.pos)
			if !c.is(opSeq) {
				break
			}
			c.next()
		}
	}
	if len(clauses) == 0 {
		return nil, syntaxError(c.getCurrentLiteral(), "flwor expression without any binding", c.curr.Position)
	}

	var (
		where Expr
		keys  []Expr
		specs []sortSpec
		err   error
	)
	if c.isKeyword(kwWhere) {
		c.next()
		if where, err = c.compileExpr(powLowest); err != nil {
			return nil, err
		}
	}
	if c.isKeyword(kwStable) {
		c.next()
		if !c.isKeyword(kwOrder) {
			return nil, syntaxError(c.getCurrentLiteral(), "expected order after stable", c.curr.Position)
		}
	}
	if c.isKeyword(kwOrder) {
		if keys, specs, err = c.compileOrderBy(); err != nil {
			return nil, err
		}
	}
	if err := c.expectKeyword(kwReturn); err != nil {
		return nil, err
	}
	body, err := c.compileExpr(powLowest)
	if err != nil {
		return nil, err
	}

	inner := body
	if len(keys) > 0 {
		inner = tuple{
			value: body,
			keys:  keys,
		}
	}
	if where != nil {
		inner = conditional{
			test: where,
			csq:  inner,
			alt:  emptySequence{},
		}
	}
	for i := len(clauses) - 1; i >= 0; i-- {
		if clauses[i].let {
			inner = letBinding{
				bind: clauses[i].bind,
				body: inner,
			}
		} else {
			inner = forLoop{
				bind: clauses[i].bind,
				pos:  clauses[i].pos,
				body: inner,
			}
		}
	}
	if len(keys) > 0 {
		inner = project{
			input: sortBy{
				input: inner,
				specs: specs,
			},
		}
	}
	return inner, nil
}

func (c *compiler) compileClause(loop bool) (flworClause, error) {
	clause := flworClause{
		let: !loop,
	}
	if !c.is(variable) {
		return clause, syntaxError(c.getCurrentLiteral(), "variable expected", c.curr.Position)
	}
	ident, err := c.variableName()
	if err != nil {
		return clause, err
	}
	clause.bind.ident = ident
	c.next()
	if c.isKeyword(kwAs) {
		c.next()
		if clause.bind.seqType, err = c.compileSequenceType(); err != nil {
			return clause, err
		}
	}
	if loop && c.isKeyword(kwAt) {
		c.next()
		if !c.is(variable) {
			return clause, syntaxError(c.getCurrentLiteral(), "positional variable expected after at", c.curr.Position)
		}
		if clause.pos, err = c.variableName(); err != nil {
			return clause, err
		}
		c.next()
	}
	if loop {
		if err := c.expectKeyword(kwIn); err != nil {
			return clause, err
		}
	} else {
		if !c.is(opAssign) {
			return clause, syntaxError(c.getCurrentLiteral(), "expected := in let clause", c.curr.Position)
		}
		c.next()
	}
	clause.bind.expr, err = c.compileExpr(powLowest)
	return clause, err
}

func (c *compiler) compileOrderBy() ([]Expr, []sortSpec, error) {
	c.Enter("order-by")
	defer c.Leave("order-by")

	c.next()
	if err := c.expectKeyword(kwBy); err != nil {
		return nil, nil, err
	}
	var (
		keys  []Expr
		specs []sortSpec
	)
	for {
		key, err := c.compileExpr(powLowest)
		if err != nil {
			return nil, nil, err
		}
		spec := sortSpec{
			emptyLeast: c.ctx.EmptyLeast,
			collation:  c.ctx.DefaultCollation,
		}
		switch {
		case c.isKeyword(kwAscending):
			c.next()
		case c.isKeyword(kwDescending):
			spec.descending = true
			c.next()
		}
		if c.isKeyword(kwEmpty) {
			c.next()
			switch {
			case c.isKeyword(kwGreatest):
				spec.emptyLeast = false
			case c.isKeyword(kwLeast):
				spec.emptyLeast = true
			default:
				return nil, nil, syntaxError(c.getCurrentLiteral(), "expected greatest or least", c.curr.Position)
			}
			c.next()
		}
		if c.isKeyword(kwCollation) {
			c.next()
			if !c.is(Literal) {
				return nil, nil, syntaxError(c.getCurrentLiteral(), "collation uri expected", c.curr.Position)
			}
			spec.collation = c.getCurrentLiteral()
			if !c.ctx.knownCollation(spec.collation) {
				c.sink.report(staticError(CodeUnknownCollation,
					fmt.Sprintf("unknown collation %q in order by", spec.collation), c.curr.Position))
			}
			c.next()
		}
		keys = append(keys, key)
		specs = append(specs, spec)
		if !c.is(opSeq) {
			break
		}
		c.next()
	}
	return keys, specs, nil
}

func (c *compiler) compileIf() (Expr, error) {
	c.Enter("if")
	defer c.Leave("if")
	c.next()
	var (
		cdt conditional
		err error
	)
	if cdt.test, err = c.compileGroup(); err != nil {
		return nil, err
	}
	if err := c.expectKeyword(kwThen); err != nil {
		return nil, err
	}
	if cdt.csq, err = c.compileExpr(powLowest); err != nil {
		return nil, err
	}
	if err := c.expectKeyword(kwElse); err != nil {
		return nil, err
	}
	if cdt.alt, err = c.compileExpr(powLowest); err != nil {
		return nil, err
	}
	return cdt, nil
}

// compileGroup parses a parenthesized full expression, as found after
// if and typeswitch.
func (c *compiler) compileGroup() (Expr, error) {
	if !c.is(begGrp) {
		return nil, syntaxError(c.getCurrentLiteral(), "expected (", c.curr.Position)
	}
	c.next()
	expr, err := c.compile()
	if err != nil {
		return nil, err
	}
	if !c.is(endGrp) {
		return nil, syntaxError(c.getCurrentLiteral(), "expected )", c.curr.Position)
	}
	c.next()
	return expr, nil
}

func (c *compiler) compileQuantified(every bool) (Expr, error) {
	c.Enter("quantified")
	defer c.Leave("quantified")
	c.next()
	c.enterScope()
	defer c.leaveScope()

	q := quantified{
		every: every,
	}
	for {
		clause, err := c.compileClause(true)
		if err != nil {
			return nil, err
		}
		q.binds = append(q.binds, clause.bind)
		c.defineLocal(clause.bind.ident)
		if !c.is(opSeq) {
			break
		}
		c.next()
	}
	if err := c.expectKeyword(kwSatisfies); err != nil {
		return nil, err
	}
	test, err := c.compileExpr(powLowest)
	if err != nil {
		return nil, err
	}
	q.test = test
	return q, nil
}

// compileTypeswitch binds the operand to a synthetic variable so
// downstream passes can evaluate it once; the generated name starts
// with # and can never collide with a user name.
func (c *compiler) compileTypeswitch() (Expr, error) {
	c.Enter("typeswitch")
	defer c.Leave("typeswitch")
	c.next()

	input, err := c.compileGroup()
	if err != nil {
		return nil, err
	}
	ts := typeswitchExpr{
		operand: intern.Local(c.nextSynthetic()),
		input:   input,
	}
	for c.isKeyword(kwCase) {
		c.next()
		clause, err := c.compileCase(true)
		if err != nil {
			return nil, err
		}
		ts.cases = append(ts.cases, clause)
	}
	if len(ts.cases) == 0 {
		return nil, syntaxError(c.getCurrentLiteral(), "typeswitch without any case clause", c.curr.Position)
	}
	if err := c.expectKeyword(kwDefault); err != nil {
		return nil, err
	}
	if ts.deflt, err = c.compileCase(false); err != nil {
		return nil, err
	}
	return ts, nil
}

// compileCase parses a case (or default) clause: optional binding
// variable, sequence type for real cases, return expression with the
// binding in scope.
func (c *compiler) compileCase(typed bool) (caseClause, error) {
	var (
		clause caseClause
		err    error
	)
	if c.is(variable) {
		if clause.binding, err = c.variableName(); err != nil {
			return clause, err
		}
		c.next()
		if typed {
			if err := c.expectKeyword(kwAs); err != nil {
				return clause, err
			}
		}
	}
	if typed {
		if clause.seqType, err = c.compileSequenceType(); err != nil {
			return clause, err
		}
	}
	if err := c.expectKeyword(kwReturn); err != nil {
		return clause, err
	}
	c.enterScope()
	defer c.leaveScope()
	c.defineLocal(clause.binding)
	clause.action, err = c.compileExpr(powLowest)
	return clause, err
}

func (c *compiler) nextSynthetic() string {
	name := fmt.Sprintf("#g%d", c.gensym)
	c.gensym++
	return name
}

func (c *compiler) compileValidate() (Expr, error) {
	c.Enter("validate")
	defer c.Leave("validate")
	if !c.ctx.SchemaAware {
		c.sink.report(staticError(CodeValidateNoSchema,
			"validate expression requires schema awareness", c.curr.Position))
	}
	c.next()
	var v validate
	switch {
	case c.isKeyword(kwLax):
		v.lax = true
		c.next()
	case c.isKeyword(kwStrict):
		c.next()
	}
	expr, err := c.compileEnclosed()
	if err != nil {
		return nil, err
	}
	v.expr = expr
	return v, nil
}

func (c *compiler) compileOrdered(ordered bool) (Expr, error) {
	c.Enter("ordered")
	defer c.Leave("ordered")
	c.next()
	expr, err := c.compileEnclosed()
	if err != nil {
		return nil, err
	}
	o := orderedExpr{
		expr:    expr,
		ordered: ordered,
	}
	return o, nil
}

// compileEnclosed parses { expr }.
func (c *compiler) compileEnclosed() (Expr, error) {
	if !c.is(begCurl) {
		return nil, syntaxError(c.getCurrentLiteral(), "expected {", c.curr.Position)
	}
	c.next()
	expr, err := c.compile()
	if err != nil {
		return nil, err
	}
	if !c.is(endCurl) {
		return nil, syntaxError(c.getCurrentLiteral(), "expected }", c.curr.Position)
	}
	c.next()
	return expr, nil
}

func (c *compiler) compileBinary(left Expr) (Expr, error) {
	c.Enter("binary")
	defer c.Leave("binary")
	var (
		op  = c.curr.Type
		pow = bindings[op]
	)
	c.next()
	next, err := c.compileExpr(pow)
	if err != nil {
		return nil, err
	}
	b := binary{
		left:  left,
		right: next,
		op:    op,
	}
	return b, nil
}

func (c *compiler) compileRange(left Expr) (Expr, error) {
	c.Enter("range")
	defer c.Leave("range")
	c.next()
	right, err := c.compileExpr(powRange)
	if err != nil {
		return nil, err
	}
	expr := rng{
		left:  left,
		right: right,
	}
	return expr, nil
}

func (c *compiler) compileTypeCheck(left Expr) (Expr, error) {
	c.Enter("type-check")
	defer c.Leave("type-check")
	op := c.curr.Type
	pos := c.curr.Position
	c.next()
	st, err := c.compileSequenceType()
	if err != nil {
		return nil, err
	}
	if err := c.ctx.CheckImportedType(st, "type operand"); err != nil {
		c.sink.report(withPos(err, pos))
	}
	expr := typeCheck{
		expr:    left,
		seqType: st,
		op:      op,
	}
	return expr, nil
}

// compileCast covers cast as and castable as: the target is a single
// atomic type with an optional ? indicator.
func (c *compiler) compileCast(left Expr) (Expr, error) {
	c.Enter("cast")
	defer c.Leave("cast")
	op := c.curr.Type
	pos := c.curr.Position
	c.next()
	qn, err := c.compileQName(useElement)
	if err != nil {
		return nil, err
	}
	st := SequenceType{
		Item: atomicItem(qn),
	}
	if c.is(opQuestion) {
		st.Occurrence = ZeroOrOne
		c.next()
	}
	if err := c.ctx.CheckImportedType(st, "cast target"); err != nil {
		c.sink.report(withPos(err, pos))
	}
	expr := typeCheck{
		expr:    left,
		seqType: st,
		op:      op,
	}
	return expr, nil
}

// compileSequenceType parses empty-sequence(), item(), a kind test or
// an atomic type name, followed by an occurrence indicator.
func (c *compiler) compileSequenceType() (SequenceType, error) {
	var st SequenceType
	if !c.is(Name) && !c.is(reserved) {
		return st, syntaxError(c.curr.String(), "sequence type expected", c.curr.Position)
	}
	lit := c.getCurrentLiteral()
	switch {
	case lit == kwEmptySeq && c.peek.Type == begGrp:
		c.next()
		if err := c.emptyParens(); err != nil {
			return st, err
		}
		st.Item.Empty = true
		return st, nil
	case lit == kwItem && c.peek.Type == begGrp:
		c.next()
		if err := c.emptyParens(); err != nil {
			return st, err
		}
		st.Item.AnyItem = true
	case isKindName(lit) && c.peek.Type == begGrp:
		test, err := c.compileKindTest()
		if err != nil {
			return st, err
		}
		st.Item.Kind = test.kind
		st.Item.Name = test.name
		st.Item.TypeName = c.lastTypeAnnotation
	default:
		qn, err := c.compileQName(useElement)
		if err != nil {
			return st, err
		}
		st.Item = atomicItem(qn)
	}
	switch c.curr.Type {
	case opQuestion:
		st.Occurrence = ZeroOrOne
		c.next()
	case opMul:
		st.Occurrence = ZeroOrMore
		c.next()
	case opAdd:
		st.Occurrence = OneOrMore
		c.next()
	}
	return st, nil
}

func (c *compiler) emptyParens() error {
	if !c.is(begGrp) {
		return syntaxError(c.getCurrentLiteral(), "expected (", c.curr.Position)
	}
	c.next()
	if !c.is(endGrp) {
		return syntaxError(c.getCurrentLiteral(), "expected )", c.curr.Position)
	}
	c.next()
	return nil
}

func isKindName(str string) bool {
	switch str {
	case kwNode, kwText, kwComment, kwProcInst, kwElement, kwAttribute, kwDocNode:
	default:
		return false
	}
	return true
}

// compileKindTest parses node()/text()/comment()/
// processing-instruction(name?)/element(name?, type?)/attribute(...)/
// document-node(element(...)?). A type annotation, when present, is
// kept aside for the sequence-type caller.
func (c *compiler) compileKindTest() (kindTest, error) {
	var test kindTest
	c.lastTypeAnnotation = QName{}
	switch c.getCurrentLiteral() {
	case kwNode:
		test.kind = KindNode
	case kwText:
		test.kind = KindText
	case kwComment:
		test.kind = KindComment
	case kwProcInst:
		test.kind = KindInstruction
	case kwElement:
		test.kind = KindElement
	case kwAttribute:
		test.kind = KindAttribute
	case kwDocNode:
		test.kind = KindDocument
	default:
		return test, syntaxError(c.getCurrentLiteral(), "unknown kind test", c.curr.Position)
	}
	c.next()
	if !c.is(begGrp) {
		return test, syntaxError(c.getCurrentLiteral(), "expected ( after kind test", c.curr.Position)
	}
	c.next()
	if !c.is(endGrp) {
		switch test.kind {
		case KindInstruction:
			if !c.is(Name) && !c.is(Literal) {
				return test, syntaxError(c.curr.String(), "target name expected", c.curr.Position)
			}
			test.name = intern.Local(c.getCurrentLiteral())
			c.next()
		case KindElement, KindAttribute:
			if c.is(opMul) {
				c.next()
			} else {
				qn, err := c.compileQName(useElement)
				if err != nil {
					return test, err
				}
				test.name = qn
			}
			if c.is(opSeq) {
				c.next()
				qn, err := c.compileQName(useElement)
				if err != nil {
					return test, err
				}
				c.lastTypeAnnotation = qn
				if c.is(opQuestion) {
					c.next()
				}
			}
		case KindDocument:
			inner, err := c.compileKindTest()
			if err != nil {
				return test, err
			}
			if inner.kind != KindElement {
				return test, syntaxError(c.getCurrentLiteral(), "document-node test takes an element test", c.curr.Position)
			}
			test.name = inner.name
		default:
			return test, syntaxError(c.getCurrentLiteral(), "kind test takes no argument", c.curr.Position)
		}
	}
	if !c.is(endGrp) {
		return test, syntaxError(c.getCurrentLiteral(), "expected ) after kind test", c.curr.Position)
	}
	c.next()
	return test, nil
}

func (c *compiler) compileName() (Expr, error) {
	c.Enter("name")
	defer c.Leave("name")

	if c.peek.Type == opAxis {
		return c.compileAxis()
	}
	if c.is(opMul) {
		c.next()
		test := nameTest{
			wild: true,
		}
		if c.is(Namespace) {
			c.next()
			if !c.is(Name) {
				return nil, syntaxError(c.getCurrentLiteral(), "name expected after *:", c.curr.Position)
			}
			test.name = intern.Local(c.getCurrentLiteral())
			c.next()
		}
		return axis{kind: childAxis, next: test}, nil
	}
	if isKindName(c.getCurrentLiteral()) && c.peek.Type == begGrp {
		test, err := c.compileKindTest()
		if err != nil {
			return nil, err
		}
		return axis{kind: childAxis, next: test}, nil
	}

	name := c.getCurrentLiteral()
	pos := c.curr.Position
	c.next()
	var prefix, local string
	if c.is(Namespace) {
		c.next()
		if c.is(opMul) {
			c.next()
			uri, ok := c.ctx.LookupPrefix(name)
			if !ok {
				return nil, staticError(CodeUndeclaredPrefix,
					fmt.Sprintf("undeclared namespace prefix %q", name), pos)
			}
			test := nameTest{
				wild: true,
				name: intern.Expanded("*", name, uri),
			}
			return axis{kind: childAxis, next: test}, nil
		}
		if !c.is(Name) && !c.is(reserved) {
			return nil, syntaxError(c.getCurrentLiteral(), "name expected after namespace prefix", c.curr.Position)
		}
		prefix, local = name, c.getCurrentLiteral()
		c.next()
	} else {
		local = name
	}
	if c.is(begGrp) {
		return c.compileCall(prefix, local, pos)
	}
	qn, err := c.ctx.ResolveQName(prefix, local, useElement)
	if err != nil {
		return nil, withPos(err, pos)
	}
	test := nameTest{
		name: qn,
	}
	return axis{kind: childAxis, next: test}, nil
}

func (c *compiler) compileCall(prefix, local string, pos Position) (Expr, error) {
	c.Enter("call")
	defer c.Leave("call")

	qn, err := c.ctx.ResolveQName(prefix, local, useFunction)
	if err != nil {
		return nil, withPos(err, pos)
	}
	fn := funcCall{
		name:     qn,
		Position: pos,
	}
	c.next()
	for !c.done() && !c.is(endGrp) {
		arg, err := c.compileExpr(powLowest)
		if err != nil {
			return nil, err
		}
		fn.args = append(fn.args, arg)
		switch {
		case c.is(opSeq):
			c.next()
			if c.is(endGrp) {
				return nil, syntaxError(c.getCurrentLiteral(), "trailing comma in argument list", c.curr.Position)
			}
		case c.is(endGrp):
		default:
			return nil, syntaxError(c.curr.String(), "expected , or ) in argument list", c.curr.Position)
		}
	}
	if !c.is(endGrp) {
		return nil, syntaxError(c.getCurrentLiteral(), "missing closing ) after arguments", c.curr.Position)
	}
	c.next()
	if err := c.ctx.BindFunction(&fn); err != nil {
		c.sink.report(err)
	}
	return &fn, nil
}

func (c *compiler) compileAxis() (Expr, error) {
	c.Enter("axis")
	defer c.Leave("axis")

	a := axis{
		kind: c.getCurrentLiteral(),
	}
	if !isAxis(a.kind) {
		return nil, syntaxError(a.kind, "unknown axis", c.curr.Position)
	}
	c.next()
	c.next()
	next, err := c.compileNameTest()
	if err != nil {
		return nil, err
	}
	a.next = next
	return a, nil
}

// compileNameTest parses the node test after an explicit axis.
func (c *compiler) compileNameTest() (Expr, error) {
	if c.is(opMul) {
		c.next()
		test := nameTest{
			wild: true,
		}
		if c.is(Namespace) {
			c.next()
			if !c.is(Name) {
				return nil, syntaxError(c.getCurrentLiteral(), "name expected after *:", c.curr.Position)
			}
			test.name = intern.Local(c.getCurrentLiteral())
			c.next()
		}
		return test, nil
	}
	if isKindName(c.getCurrentLiteral()) && c.peek.Type == begGrp {
		return c.compileKindTest()
	}
	qn, err := c.compileQName(useElement)
	if err != nil {
		return nil, err
	}
	return nameTest{name: qn}, nil
}

// compileVariable resolves a variable reference: lexical bindings win,
// then global declarations through the static context.
func (c *compiler) compileVariable() (Expr, error) {
	c.Enter("variable")
	defer c.Leave("variable")

	qn, err := c.variableName()
	if err != nil {
		return nil, err
	}
	ref := varRef{
		name:     qn,
		Position: c.curr.Position,
	}
	c.next()
	if c.isLocal(qn) {
		return &ref, nil
	}
	if err := c.ctx.BindVariable(&ref); err != nil {
		c.sink.report(err)
	}
	return &ref, nil
}

// variableName expands the prefixed or plain name carried by the
// current variable token. Unprefixed variables live in no namespace.
func (c *compiler) variableName() (QName, error) {
	lit := c.getCurrentLiteral()
	prefix, local, ok := strings.Cut(lit, ":")
	if !ok {
		return intern.Local(lit), nil
	}
	uri, found := c.ctx.LookupPrefix(prefix)
	if !found {
		return QName{}, staticError(CodeUndeclaredPrefix,
			fmt.Sprintf("undeclared namespace prefix %q", prefix), c.curr.Position)
	}
	return intern.Expanded(local, prefix, uri), nil
}

func (c *compiler) compileCurrent() (Expr, error) {
	c.Enter("current")
	defer c.Leave("current")
	c.next()
	return current{}, nil
}

func (c *compiler) compileParent() (Expr, error) {
	c.Enter("parent")
	defer c.Leave("parent")
	c.next()
	expr := axis{
		kind: parentAxis,
		next: kindTest{kind: KindNode},
	}
	return expr, nil
}

func (c *compiler) compileAttr() (Expr, error) {
	c.Enter("attribute")
	defer c.Leave("attribute")

	lit := c.getCurrentLiteral()
	pos := c.curr.Position
	c.next()
	var test nameTest
	if lit == "*" || lit == "" {
		test.wild = true
	} else {
		prefix, local, ok := strings.Cut(lit, ":")
		if !ok {
			prefix, local = "", lit
		}
		var err error
		// attribute names never take the default element namespace
		if test.name, err = c.ctx.ResolveQName(prefix, local, useOther); err != nil {
			return nil, withPos(err, pos)
		}
	}
	expr := axis{
		kind: attributeAxis,
		next: test,
	}
	return expr, nil
}

func (c *compiler) compileLiteral() (Expr, error) {
	c.Enter("literal")
	defer c.Leave("literal")
	defer c.next()
	i := literal{
		value: c.getCurrentLiteral(),
	}
	return i, nil
}

func (c *compiler) compileNumber() (Expr, error) {
	c.Enter("number")
	defer c.Leave("number")

	f, err := strconv.ParseFloat(c.getCurrentLiteral(), 64)
	if err != nil {
		return nil, syntaxError(c.getCurrentLiteral(), "malformed number literal", c.curr.Position)
	}
	c.next()
	n := number{
		value: f,
	}
	return n, nil
}

func (c *compiler) compileUnary() (Expr, error) {
	c.Enter("unary")
	defer c.Leave("unary")
	op := c.curr.Type
	c.next()
	expr, err := c.compileExpr(powPrefix)
	if err != nil {
		return nil, err
	}
	u := unary{
		expr: expr,
		op:   op,
	}
	return u, nil
}

// compileSequence parses a parenthesized expression: () is the empty
// sequence, a single expression stays itself, a comma list becomes a
// sequence node.
func (c *compiler) compileSequence() (Expr, error) {
	c.Enter("sequence")
	defer c.Leave("sequence")
	c.next()
	if c.is(endGrp) {
		c.next()
		return emptySequence{}, nil
	}
	expr, err := c.compile()
	if err != nil {
		return nil, err
	}
	if !c.is(endGrp) {
		return nil, syntaxError(c.getCurrentLiteral(), "missing ) at end of sequence", c.curr.Position)
	}
	c.next()
	return expr, nil
}

func (c *compiler) compileFilter(left Expr) (Expr, error) {
	c.Enter("filter")
	defer c.Leave("filter")
	c.next()
	check, err := c.compile()
	if err != nil {
		return nil, err
	}
	if !c.is(endPred) {
		return nil, syntaxError(c.getCurrentLiteral(), "missing ] after predicate", c.curr.Position)
	}
	c.next()
	f := filter{
		expr:  left,
		check: check,
	}
	return f, nil
}

func (c *compiler) compileStep(left Expr) (Expr, error) {
	c.Enter("step")
	defer c.Leave("step")

	c.next()
	next, err := c.compileExpr(powStep)
	if err != nil {
		return nil, err
	}
	expr := step{
		curr: left,
		next: next,
	}
	return expr, nil
}

func (c *compiler) compileDescendantStep(left Expr) (Expr, error) {
	c.Enter("descendant-step")
	defer c.Leave("descendant-step")

	c.next()
	next, err := c.compileExpr(powStep)
	if err != nil {
		return nil, err
	}
	expr := step{
		curr: left,
		next: step{
			curr: axis{
				kind: descendantSelfAxis,
				next: kindTest{kind: KindNode},
			},
			next: next,
		},
	}
	return expr, nil
}

func (c *compiler) compileRoot() (Expr, error) {
	c.Enter("root")
	defer c.Leave("root")

	c.next()
	if c.done() || c.power() == 0 && c.prefix[c.curr.Type] == nil {
		return root{}, nil
	}
	next, err := c.compileExpr(powStep)
	if err != nil {
		return nil, err
	}
	expr := step{
		curr: root{},
		next: next,
	}
	return expr, nil
}

func (c *compiler) compileDescendantRoot() (Expr, error) {
	c.Enter("descendant-root")
	defer c.Leave("descendant-root")

	c.next()
	next, err := c.compileExpr(powStep)
	if err != nil {
		return nil, err
	}
	expr := step{
		curr: root{},
		next: step{
			curr: axis{
				kind: descendantSelfAxis,
				next: kindTest{kind: KindNode},
			},
			next: next,
		},
	}
	return expr, nil
}

// compileQName reads a possibly prefixed name from the token stream and
// expands it against the static context. Reserved words are accepted:
// in name position they are ordinary names.
func (c *compiler) compileQName(use nameUse) (QName, error) {
	if !c.is(Name) && !c.is(reserved) {
		return QName{}, syntaxError(c.curr.String(), "name expected", c.curr.Position)
	}
	name := c.getCurrentLiteral()
	pos := c.curr.Position
	c.next()
	if !c.is(Namespace) {
		qn, err := c.ctx.ResolveQName("", name, use)
		return qn, withPos(err, pos)
	}
	c.next()
	if !c.is(Name) && !c.is(reserved) {
		return QName{}, syntaxError(c.curr.String(), "name expected after namespace prefix", c.curr.Position)
	}
	local := c.getCurrentLiteral()
	c.next()
	qn, err := c.ctx.ResolveQName(name, local, use)
	return qn, withPos(err, pos)
}

func (c *compiler) enterScope() {
	c.locals = environ.Enclosed(c.locals)
}

func (c *compiler) leaveScope() {
	if e, ok := c.locals.(*environ.Env[QName]); ok {
		c.locals = e.Unwrap()
	}
}

func (c *compiler) defineLocal(qn QName) {
	if !qn.Zero() {
		c.locals.Define(qn.ExpandedName(), qn)
	}
}

func (c *compiler) isLocal(qn QName) bool {
	_, err := c.locals.Resolve(qn.ExpandedName())
	return err == nil
}

func (c *compiler) power() int {
	return bindings[c.curr.Type]
}

func (c *compiler) getCurrentLiteral() string {
	return c.curr.Literal
}

func (c *compiler) is(kind rune) bool {
	return c.curr.Type == kind
}

// isKeyword reports whether the current token is the given clause
// keyword; clause keywords are plain names classified by position.
func (c *compiler) isKeyword(kw string) bool {
	return (c.is(Name) || c.is(reserved)) && c.curr.Literal == kw
}

func (c *compiler) expectKeyword(kw string) error {
	if !c.isKeyword(kw) {
		return syntaxError(c.curr.String(), fmt.Sprintf("expected %s keyword", kw), c.curr.Position)
	}
	c.next()
	return nil
}

func (c *compiler) done() bool {
	return c.is(EOF)
}

func (c *compiler) next() {
	c.curr = c.peek
	c.peek = c.scan.Scan()
}
