package xquery

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Debug renders the expression tree in a compact functional notation,
// meant for tests and for the parse command.
func Debug(expr Expr) string {
	var str strings.Builder
	debugExpr(&str, expr)
	return str.String()
}

func debugExpr(w io.Writer, expr Expr) {
	switch v := expr.(type) {
	case nil:
		io.WriteString(w, "nil")
	case literal:
		io.WriteString(w, "literal")
		io.WriteString(w, "(")
		io.WriteString(w, strconv.Quote(v.value))
		io.WriteString(w, ")")
	case number:
		io.WriteString(w, "number")
		io.WriteString(w, "(")
		io.WriteString(w, strconv.FormatFloat(v.value, 'g', -1, 64))
		io.WriteString(w, ")")
	case emptySequence:
		io.WriteString(w, "empty")
	case sequence:
		io.WriteString(w, "sequence")
		debugList(w, v.all)
	case rng:
		io.WriteString(w, "range")
		debugList(w, []Expr{v.left, v.right})
	case binary:
		io.WriteString(w, opName(v.op))
		debugList(w, []Expr{v.left, v.right})
	case unary:
		if v.op == opSub {
			io.WriteString(w, "neg")
		} else {
			io.WriteString(w, "plus")
		}
		debugList(w, []Expr{v.expr})
	case conditional:
		io.WriteString(w, "if")
		debugList(w, []Expr{v.test, v.csq, v.alt})
	case forLoop:
		io.WriteString(w, "for")
		io.WriteString(w, "(")
		debugBinding(w, v.bind)
		if !v.pos.Zero() {
			fmt.Fprintf(w, " at $%s", v.pos)
		}
		io.WriteString(w, ", ")
		debugExpr(w, v.body)
		io.WriteString(w, ")")
	case letBinding:
		io.WriteString(w, "let")
		io.WriteString(w, "(")
		debugBinding(w, v.bind)
		io.WriteString(w, ", ")
		debugExpr(w, v.body)
		io.WriteString(w, ")")
	case tuple:
		io.WriteString(w, "tuple")
		debugList(w, append([]Expr{v.value}, v.keys...))
	case sortBy:
		io.WriteString(w, "sort")
		io.WriteString(w, "(")
		debugExpr(w, v.input)
		for _, spec := range v.specs {
			io.WriteString(w, ", ")
			if spec.descending {
				io.WriteString(w, "descending")
			} else {
				io.WriteString(w, "ascending")
			}
		}
		io.WriteString(w, ")")
	case project:
		io.WriteString(w, "project")
		debugList(w, []Expr{v.input})
	case quantified:
		if v.every {
			io.WriteString(w, "every")
		} else {
			io.WriteString(w, "some")
		}
		io.WriteString(w, "(")
		for _, b := range v.binds {
			debugBinding(w, b)
			io.WriteString(w, ", ")
		}
		debugExpr(w, v.test)
		io.WriteString(w, ")")
	case typeswitchExpr:
		io.WriteString(w, "typeswitch")
		io.WriteString(w, "(")
		debugExpr(w, v.input)
		for _, cc := range v.cases {
			fmt.Fprintf(w, ", case(%s, ", cc.seqType)
			debugExpr(w, cc.action)
			io.WriteString(w, ")")
		}
		io.WriteString(w, ", default(")
		debugExpr(w, v.deflt.action)
		io.WriteString(w, "))")
	case validate:
		if v.lax {
			io.WriteString(w, "validate-lax")
		} else {
			io.WriteString(w, "validate-strict")
		}
		debugList(w, []Expr{v.expr})
	case typeCheck:
		io.WriteString(w, opName(v.op))
		io.WriteString(w, "(")
		debugExpr(w, v.expr)
		fmt.Fprintf(w, ", %s)", v.seqType)
	case *varRef:
		fmt.Fprintf(w, "var($%s)", v.name)
	case *funcCall:
		fmt.Fprintf(w, "call(%s", v.name)
		for _, a := range v.args {
			io.WriteString(w, ", ")
			debugExpr(w, a)
		}
		io.WriteString(w, ")")
	case root:
		io.WriteString(w, "root")
	case current:
		io.WriteString(w, "current")
	case step:
		io.WriteString(w, "step")
		debugList(w, []Expr{v.curr, v.next})
	case axis:
		io.WriteString(w, "axis")
		io.WriteString(w, "(")
		io.WriteString(w, v.kind)
		io.WriteString(w, ", ")
		debugExpr(w, v.next)
		io.WriteString(w, ")")
	case nameTest:
		if v.wild {
			io.WriteString(w, "wildcard")
			if !v.name.Zero() {
				fmt.Fprintf(w, "(%s)", v.name)
			}
			return
		}
		fmt.Fprintf(w, "name(%s)", v.name)
	case kindTest:
		fmt.Fprintf(w, "kind(%s())", v.kind)
	case filter:
		io.WriteString(w, "filter")
		debugList(w, []Expr{v.expr, v.check})
	case elemConstructor:
		io.WriteString(w, "element")
		io.WriteString(w, "(")
		debugName(w, v.name, v.nameExpr)
		for _, a := range v.attrs {
			io.WriteString(w, ", ")
			debugExpr(w, a)
		}
		for _, x := range v.content {
			io.WriteString(w, ", ")
			debugExpr(w, x)
		}
		io.WriteString(w, ")")
	case attrConstructor:
		io.WriteString(w, "attribute")
		io.WriteString(w, "(")
		debugName(w, v.name, v.nameExpr)
		for _, x := range v.parts {
			io.WriteString(w, ", ")
			debugExpr(w, x)
		}
		io.WriteString(w, ")")
	case textNode:
		fmt.Fprintf(w, "text(%s)", strconv.Quote(v.content))
	case textConstructor:
		io.WriteString(w, "text")
		debugList(w, []Expr{v.expr})
	case commentConstructor:
		io.WriteString(w, "comment")
		if v.expr != nil {
			debugList(w, []Expr{v.expr})
			return
		}
		fmt.Fprintf(w, "(%s)", strconv.Quote(v.content))
	case piConstructor:
		io.WriteString(w, "pi")
		io.WriteString(w, "(")
		if v.targetExpr != nil {
			debugExpr(w, v.targetExpr)
		} else {
			io.WriteString(w, v.target)
		}
		if v.expr != nil {
			io.WriteString(w, ", ")
			debugExpr(w, v.expr)
		} else if v.data != "" {
			fmt.Fprintf(w, ", %s", strconv.Quote(v.data))
		}
		io.WriteString(w, ")")
	case docConstructor:
		io.WriteString(w, "document")
		debugList(w, []Expr{v.body})
	case orderedExpr:
		if v.ordered {
			io.WriteString(w, "ordered")
		} else {
			io.WriteString(w, "unordered")
		}
		debugList(w, []Expr{v.expr})
	default:
		fmt.Fprintf(w, "unknown(%T)", expr)
	}
}

func debugList(w io.Writer, all []Expr) {
	io.WriteString(w, "(")
	for i := range all {
		if i > 0 {
			io.WriteString(w, ", ")
		}
		debugExpr(w, all[i])
	}
	io.WriteString(w, ")")
}

func debugBinding(w io.Writer, b binding) {
	fmt.Fprintf(w, "$%s := ", b.ident)
	debugExpr(w, b.expr)
}

func debugName(w io.Writer, name QName, expr Expr) {
	if expr != nil {
		debugExpr(w, expr)
		return
	}
	fmt.Fprintf(w, "%s", name)
}

func opName(op rune) string {
	switch op {
	case opAdd:
		return "add"
	case opSub:
		return "subtract"
	case opMul:
		return "multiply"
	case opDiv:
		return "divide"
	case opIdiv:
		return "int-divide"
	case opMod:
		return "modulo"
	case opConcat:
		return "concat"
	case opAnd:
		return "and"
	case opOr:
		return "or"
	case opEq:
		return "eq"
	case opNe:
		return "ne"
	case opLt:
		return "lt"
	case opLe:
		return "le"
	case opGt:
		return "gt"
	case opGe:
		return "ge"
	case opValEq:
		return "value-eq"
	case opValNe:
		return "value-ne"
	case opValLt:
		return "value-lt"
	case opValLe:
		return "value-le"
	case opValGt:
		return "value-gt"
	case opValGe:
		return "value-ge"
	case opIs:
		return "identity"
	case opBefore:
		return "before"
	case opAfter:
		return "after"
	case opUnion:
		return "union"
	case opIntersect:
		return "intersect"
	case opExcept:
		return "except"
	case opInstanceOf:
		return "instance-of"
	case opCastAs:
		return "cast"
	case opCastableAs:
		return "castable"
	case opTreatAs:
		return "treat"
	default:
		return "op"
	}
}
