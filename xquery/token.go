package xquery

import "fmt"

type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

const (
	kwAnd        = "and"
	kwAs         = "as"
	kwAscending  = "ascending"
	kwAt         = "at"
	kwAttribute  = "attribute"
	kwBaseUri    = "base-uri"
	kwBoundary   = "boundary-space"
	kwBy         = "by"
	kwCase       = "case"
	kwCast       = "cast"
	kwCastable   = "castable"
	kwCollation  = "collation"
	kwComment    = "comment"
	kwConstruct  = "construction"
	kwCopyNS     = "copy-namespaces"
	kwDeclare    = "declare"
	kwDefault    = "default"
	kwDescending = "descending"
	kwDiv        = "div"
	kwDocNode    = "document-node"
	kwDocument   = "document"
	kwElement    = "element"
	kwElse       = "else"
	kwEq         = "eq"
	kwEmpty      = "empty"
	kwEmptySeq   = "empty-sequence"
	kwEncoding   = "encoding"
	kwEvery      = "every"
	kwExcept     = "except"
	kwExternal   = "external"
	kwFor        = "for"
	kwFunction   = "function"
	kwGe         = "ge"
	kwGreatest   = "greatest"
	kwGt         = "gt"
	kwIdiv       = "idiv"
	kwIf         = "if"
	kwImport     = "import"
	kwIn         = "in"
	kwInherit    = "inherit"
	kwIs         = "is"
	kwInstance   = "instance"
	kwIntersect  = "intersect"
	kwItem       = "item"
	kwLax        = "lax"
	kwLe         = "le"
	kwLeast      = "least"
	kwLet        = "let"
	kwLt         = "lt"
	kwMod        = "mod"
	kwModule     = "module"
	kwNamespace  = "namespace"
	kwNe         = "ne"
	kwNoInherit  = "no-inherit"
	kwNoPreserve = "no-preserve"
	kwNode       = "node"
	kwOf         = "of"
	kwOption     = "option"
	kwOr         = "or"
	kwOrder      = "order"
	kwOrdered    = "ordered"
	kwOrdering   = "ordering"
	kwPreserve   = "preserve"
	kwProcInst   = "processing-instruction"
	kwReturn     = "return"
	kwSatisfies  = "satisfies"
	kwSchema     = "schema"
	kwSome       = "some"
	kwStable     = "stable"
	kwStrict     = "strict"
	kwStrip      = "strip"
	kwText       = "text"
	kwThen       = "then"
	kwTo         = "to"
	kwTreat      = "treat"
	kwTypeswitch = "typeswitch"
	kwUnion      = "union"
	kwUnordered  = "unordered"
	kwValidate   = "validate"
	kwVariable   = "variable"
	kwVersion    = "version"
	kwWhere      = "where"
	kwXQuery     = "xquery"
)

// isReserved lists the keywords that start an expression of their own
// and are dispatched through the reserved prefix hook.
func isReserved(str string) bool {
	switch str {
	case kwLet:
	case kwIf:
	case kwFor:
	case kwSome:
	case kwEvery:
	case kwTypeswitch:
	case kwValidate:
	case kwOrdered:
	case kwUnordered:
	case kwElement:
	case kwAttribute:
	case kwDocument:
	case kwText:
	case kwComment:
	case kwProcInst:
	default:
		return false
	}
	return true
}

const (
	EOF rune = -(1 + iota)
	Name
	Literal
	Digit
	Text
	Invalid
)

const (
	variable = -(iota + 1000)
	reserved
	Namespace // qualified name separator
	currNode
	parentNode
	attrNode
	currLevel
	anyLevel
	begPred
	endPred
	begGrp
	endGrp
	begCurl
	endCurl
	opSeq
	opSemi
	opAssign
	opAxis
	opQuestion
	opRange
	opConcat
	opAdd
	opSub
	opMul
	opDiv
	opIdiv
	opMod
	opValEq
	opValNe
	opValGt
	opValGe
	opValLt
	opValLe
	opEq
	opNe
	opGt
	opGe
	opLt
	opLe
	opIs
	opBefore
	opAfter
	opUnion
	opExcept
	opIntersect
	opAnd
	opOr
	opInstanceOf
	opCastAs
	opCastableAs
	opTreatAs
	OpenTag      // <
	EndTag       // >
	CloseTag     // </
	EmptyElemTag // />
	CommentTag   // <!-- -->
	Cdata        // <![CDATA[ ]]>
	PITag        // <? ?>
)

type Token struct {
	Literal string
	Type    rune
	Position
}

func (t Token) String() string {
	switch t.Type {
	case EOF:
		return "<eof>"
	case Name:
		return fmt.Sprintf("name(%s)", t.Literal)
	case Literal:
		return fmt.Sprintf("literal(%s)", t.Literal)
	case Digit:
		return fmt.Sprintf("number(%s)", t.Literal)
	case Text:
		return fmt.Sprintf("text(%s)", t.Literal)
	case variable:
		return fmt.Sprintf("variable(%s)", t.Literal)
	case reserved:
		return fmt.Sprintf("reserved(%s)", t.Literal)
	case Namespace:
		return fmt.Sprintf("namespace(%s)", t.Literal)
	case currNode:
		return "<current-node>"
	case parentNode:
		return "<parent-node>"
	case attrNode:
		return fmt.Sprintf("attribute(%s)", t.Literal)
	case currLevel:
		return "<current-level>"
	case anyLevel:
		return "<any-level>"
	case begPred:
		return "<begin-predicate>"
	case endPred:
		return "<end-predicate>"
	case begGrp:
		return "<begin-group>"
	case endGrp:
		return "<end-group>"
	case begCurl:
		return "<begin-curly>"
	case endCurl:
		return "<end-curly>"
	case opSeq:
		return "<sequence>"
	case opSemi:
		return "<separator>"
	case opAssign:
		return "<assignment>"
	case opAxis:
		return "<axis>"
	case opQuestion:
		return "<question>"
	case opRange:
		return "<range>"
	case opConcat:
		return "<concat>"
	case opAdd:
		return "<add>"
	case opSub:
		return "<subtract>"
	case opMul:
		return "<multiply>"
	case opDiv:
		return "<divide>"
	case opIdiv:
		return "<integer-divide>"
	case opMod:
		return "<modulo>"
	case opValEq:
		return "<value-eq>"
	case opValNe:
		return "<value-ne>"
	case opValGt:
		return "<value-gt>"
	case opValGe:
		return "<value-ge>"
	case opValLt:
		return "<value-lt>"
	case opValLe:
		return "<value-le>"
	case opEq:
		return "<equal>"
	case opNe:
		return "<not-equal>"
	case opGt:
		return "<greater-than>"
	case opGe:
		return "<greater-eq>"
	case opLt:
		return "<lesser-than>"
	case opLe:
		return "<lesser-eq>"
	case opIs:
		return "<identity>"
	case opBefore:
		return "<before>"
	case opAfter:
		return "<after>"
	case opUnion:
		return "<union>"
	case opExcept:
		return "<except>"
	case opIntersect:
		return "<intersect>"
	case opAnd:
		return "<and>"
	case opOr:
		return "<or>"
	case opInstanceOf:
		return "<instance-of>"
	case opCastAs:
		return "<cast-as>"
	case opCastableAs:
		return "<castable-as>"
	case opTreatAs:
		return "<treat-as>"
	case OpenTag:
		return "<open-elem-tag>"
	case EndTag:
		return "<end-elem-tag>"
	case CloseTag:
		return "<close-elem-tag>"
	case EmptyElemTag:
		return "<empty-elem-tag>"
	case CommentTag:
		return fmt.Sprintf("comment(%s)", t.Literal)
	case Cdata:
		return fmt.Sprintf("chardata(%s)", t.Literal)
	case PITag:
		return fmt.Sprintf("processing-instruction(%s)", t.Literal)
	case Invalid:
		return fmt.Sprintf("<invalid(%s)>", t.Literal)
	default:
		return "<unknown>"
	}
}

const (
	langle     = '<'
	rangle     = '>'
	lsquare    = '['
	rsquare    = ']'
	lparen     = '('
	rparen     = ')'
	lcurly     = '{'
	rcurly     = '}'
	colon      = ':'
	semicolon  = ';'
	quote      = '"'
	apos       = '\''
	slash      = '/'
	question   = '?'
	bang       = '!'
	equal      = '='
	ampersand  = '&'
	dash       = '-'
	underscore = '_'
	dot        = '.'
	arobase    = '@'
	comma      = ','
	plus       = '+'
	star       = '*'
	pipe       = '|'
	dollar     = '$'
	pound      = '#'
)
