package xquery

import "fmt"

// Expr is the closed set of expression nodes the parser produces. The
// tree is handed to the downstream optimizer as-is; every variant
// carries exactly the fields its construct needs and consumers switch
// on the concrete type.
type Expr interface {
	exprNode()
}

type literal struct {
	value string
}

type number struct {
	value float64
}

type sequence struct {
	all []Expr
}

type emptySequence struct{}

type rng struct {
	left  Expr
	right Expr
}

type binary struct {
	left  Expr
	right Expr
	op    rune
}

type unary struct {
	expr Expr
	op   rune
}

type conditional struct {
	test Expr
	csq  Expr
	alt  Expr
}

type binding struct {
	ident   QName
	seqType SequenceType
	expr    Expr
}

// forLoop binds each item of the bound sequence in turn and evaluates
// the body; pos names the optional positional variable.
type forLoop struct {
	bind binding
	pos  QName
	body Expr
}

type letBinding struct {
	bind binding
	body Expr
}

// tuple pairs the return value of an order-by FLWOR with one slot per
// sort key, so the sort can run over materialized keys.
type tuple struct {
	value Expr
	keys  []Expr
}

type sortSpec struct {
	descending bool
	emptyLeast bool
	collation  string
}

// sortBy sorts the tuple stream produced by its input. The sort is
// unconditionally stable: items with equal keys keep their original
// relative order.
type sortBy struct {
	input Expr
	specs []sortSpec
}

// project extracts the value slot back out of a sorted tuple stream.
type project struct {
	input Expr
}

type quantified struct {
	every bool
	binds []binding
	test  Expr
}

type caseClause struct {
	seqType SequenceType
	binding QName
	action  Expr
}

// typeswitchExpr evaluates its input once, bound to the synthetic
// variable named operand, then runs the first case whose type matches.
type typeswitchExpr struct {
	operand QName
	input   Expr
	cases   []caseClause
	deflt   caseClause
}

type validate struct {
	lax  bool
	expr Expr
}

// typeCheck covers instance of, cast as, castable as and treat as;
// op is the operator token kind.
type typeCheck struct {
	expr    Expr
	seqType SequenceType
	op      rune
}

type varRef struct {
	name QName
	decl *VarDecl
	Position
}

type funcCall struct {
	name QName
	args []Expr
	decl *FuncDecl
	Position
}

// Path expressions (subset shared with XPath).

type root struct{}

type current struct{}

type step struct {
	curr Expr
	next Expr
}

type axis struct {
	kind string
	next Expr
}

type nameTest struct {
	name QName
	wild bool
}

type kindTest struct {
	kind NodeKind
	name QName
}

type filter struct {
	expr  Expr
	check Expr
}

const (
	childAxis          = "child"
	parentAxis         = "parent"
	selfAxis           = "self"
	attributeAxis      = "attribute"
	ancestorAxis       = "ancestor"
	ancestorSelfAxis   = "ancestor-or-self"
	descendantAxis     = "descendant"
	descendantSelfAxis = "descendant-or-self"
	prevSiblingAxis    = "preceding-sibling"
	nextSiblingAxis    = "following-sibling"
)

func isAxis(kind string) bool {
	switch kind {
	case childAxis, parentAxis, selfAxis, attributeAxis:
	case ancestorAxis, ancestorSelfAxis:
	case descendantAxis, descendantSelfAxis:
	case prevSiblingAxis, nextSiblingAxis:
	default:
		return false
	}
	return true
}

// Constructors.

type nsBinding struct {
	prefix string
	uri    string
}

type attrConstructor struct {
	name     QName
	nameExpr Expr // computed constructor with a name expression
	parts    []Expr
	direct   bool
}

type elemConstructor struct {
	name       QName
	nameExpr   Expr // computed constructor with a name expression
	namespaces []nsBinding
	attrs      []attrConstructor
	content    []Expr
	direct     bool
}

type textNode struct {
	content string
}

type textConstructor struct {
	expr Expr
}

type commentConstructor struct {
	content string
	expr    Expr
}

type piConstructor struct {
	target     string
	targetExpr Expr // computed constructor with a target expression
	data       string
	expr       Expr
}

type docConstructor struct {
	body Expr
}

type orderedExpr struct {
	expr    Expr
	ordered bool
}

func (literal) exprNode()            {}
func (number) exprNode()             {}
func (sequence) exprNode()           {}
func (emptySequence) exprNode()      {}
func (rng) exprNode()                {}
func (binary) exprNode()             {}
func (unary) exprNode()              {}
func (conditional) exprNode()        {}
func (forLoop) exprNode()            {}
func (letBinding) exprNode()         {}
func (tuple) exprNode()              {}
func (sortBy) exprNode()             {}
func (project) exprNode()            {}
func (quantified) exprNode()         {}
func (typeswitchExpr) exprNode()     {}
func (validate) exprNode()           {}
func (typeCheck) exprNode()          {}
func (*varRef) exprNode()            {}
func (*funcCall) exprNode()          {}
func (root) exprNode()               {}
func (current) exprNode()            {}
func (step) exprNode()               {}
func (axis) exprNode()               {}
func (nameTest) exprNode()           {}
func (kindTest) exprNode()           {}
func (filter) exprNode()             {}
func (elemConstructor) exprNode()    {}
func (attrConstructor) exprNode()    {}
func (textNode) exprNode()           {}
func (textConstructor) exprNode()    {}
func (commentConstructor) exprNode() {}
func (piConstructor) exprNode()      {}
func (docConstructor) exprNode()     {}
func (orderedExpr) exprNode()        {}

// declState is the placeholder variant for global declarations that are
// referenced before their defining module has been parsed.
type declState int8

const (
	declResolved declState = iota
	declPending
)

// VarDecl is a declared global variable: its declared type, defining
// expression (or external marker) and the expression nodes referencing
// it, collected for the fixup phase.
type VarDecl struct {
	Name     QName
	Type     SequenceType
	Expr     Expr
	External bool
	Module   *Module
	Position

	state    declState
	refs     []*varRef
	compiled bool
	Slot     int
}

func (d *VarDecl) Pending() bool {
	return d.state == declPending
}

func (d *VarDecl) addRef(ref *varRef) {
	ref.decl = d
	d.refs = append(d.refs, ref)
}

// resolve transfers the references accumulated by a placeholder onto
// the real declaration.
func (d *VarDecl) resolve(decl *VarDecl) {
	for _, ref := range d.refs {
		decl.addRef(ref)
	}
	d.refs = nil
	d.state = declResolved
}

// compile marks the declaration as turned into its runtime object;
// doing so twice is a bug in the fixup driver.
func (d *VarDecl) compile(slot int) error {
	if d.compiled {
		return staticError(CodeDupVariable, fmt.Sprintf("%s: variable compiled twice", d.Name), d.Position)
	}
	d.compiled = true
	d.Slot = slot
	return nil
}

type Param struct {
	Name QName
	Type SequenceType
}

// FuncDecl is a declared function; Body is nil when the function was
// declared external.
type FuncDecl struct {
	Name     QName
	Params   []Param
	Result   SequenceType
	Body     Expr
	External bool
	Module   *Module
	Position

	state declState
	refs  []*funcCall
}

func (d *FuncDecl) Arity() int {
	return len(d.Params)
}

func (d *FuncDecl) Pending() bool {
	return d.state == declPending
}

func (d *FuncDecl) addRef(ref *funcCall) {
	ref.decl = d
	d.refs = append(d.refs, ref)
}

func (d *FuncDecl) resolve(decl *FuncDecl) {
	for _, ref := range d.refs {
		decl.addRef(ref)
	}
	d.refs = nil
	d.state = declResolved
}
