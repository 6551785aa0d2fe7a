package xquery

import (
	"bufio"
	"bytes"
	"io"
	"strconv"
	"unicode"
	"unicode/utf8"
)

// region tells the scanner which surface it is reading: ordinary
// expression tokens, the inside of a start/end tag, or raw element
// content. Regions nest; the stack replaces the manual save/restore
// pairs around raw-character scanning so a forgotten restore cannot
// happen.
type region int8

const (
	regionExpr region = iota
	regionTag
	regionContent
)

type frame struct {
	region  region
	curls   int  // open braces for an expression nested in content
	closing bool // the tag being scanned is a closing tag
}

type Scanner struct {
	input *bufio.Reader
	char  rune
	str   bytes.Buffer

	Position
	old Position

	prev   rune
	clause bool
	stack  []frame
}

func Scan(r io.Reader) *Scanner {
	scan := &Scanner{
		input: bufio.NewReader(r),
	}
	scan.Line = 1
	scan.read()
	return scan
}

// EnterTag switches the scanner into tag scanning. The parser calls it
// when a less-than token turns out to open a direct element
// constructor; from that point on the scanner manages the region stack
// itself until the constructor is complete.
func (s *Scanner) EnterTag() {
	s.push(frame{region: regionTag})
}

func (s *Scanner) push(f frame) {
	s.stack = append(s.stack, f)
}

func (s *Scanner) pop() {
	if n := len(s.stack); n > 0 {
		s.stack = s.stack[:n-1]
	}
}

func (s *Scanner) top() *frame {
	if n := len(s.stack); n > 0 {
		return &s.stack[n-1]
	}
	return nil
}

func (s *Scanner) Scan() Token {
	var tok Token
	if s.done() && s.top() == nil {
		tok.Position = s.Position
		tok.Type = EOF
		return tok
	}
	s.str.Reset()

	switch f := s.top(); {
	case f != nil && f.region == regionTag:
		s.scanTag(&tok)
	case f != nil && f.region == regionContent:
		s.scanContent(&tok)
	default:
		s.scanExpr(&tok)
	}
	s.prev = tok.Type
	if s.clause {
		s.prev = clauseWord
		s.clause = false
	}
	return tok
}

func (s *Scanner) scanExpr(tok *Token) {
	s.skipBlank()
	if s.done() {
		tok.Position = s.Position
		tok.Type = EOF
		return
	}
	tok.Position = s.Position
	switch {
	case s.char == lparen && s.peek() == colon:
		if !s.skipComment() {
			tok.Type = Invalid
			tok.Literal = "unterminated comment"
			return
		}
		s.scanExpr(tok)
	case s.char == langle && s.peek() == bang:
		s.read()
		s.read()
		if s.char == dash {
			s.scanComment(tok)
		} else {
			tok.Type = Invalid
			tok.Literal = "malformed markup declaration"
		}
	case s.char == langle && s.peek() == question:
		s.read()
		s.read()
		s.scanInstruction(tok)
	case isOperator(s.char):
		s.scanOperator(tok)
	case isDelimiter(s.char):
		s.scanDelimiter(tok)
	case s.char == arobase:
		s.scanAttrAxis(tok)
	case s.char == apos || s.char == quote:
		s.scanLiteral(tok)
	case s.char == dollar:
		s.scanVariable(tok)
	case unicode.IsLetter(s.char) || s.char == underscore:
		s.scanIdent(tok)
	case unicode.IsDigit(s.char):
		s.scanNumber(tok)
	default:
		tok.Type = Invalid
		tok.Literal = string(s.char)
		s.read()
	}
}

// skipComment discards an XQuery comment "(: ... :)". Comments nest.
// It reports false when the input ends before the comment does.
func (s *Scanner) skipComment() bool {
	s.read()
	s.read()
	depth := 1
	for !s.done() {
		switch {
		case s.char == lparen && s.peek() == colon:
			s.read()
			s.read()
			depth++
		case s.char == colon && s.peek() == rparen:
			s.read()
			s.read()
			depth--
			if depth == 0 {
				return true
			}
		default:
			s.read()
		}
	}
	return false
}

func (s *Scanner) scanOperator(tok *Token) {
	switch k := s.peek(); s.char {
	case question:
		tok.Type = opQuestion
	case plus:
		tok.Type = opAdd
	case dash:
		tok.Type = opSub
	case star:
		tok.Type = opMul
	case equal:
		tok.Type = opEq
	case bang:
		tok.Type = Invalid
		tok.Literal = string(s.char)
		if k == equal {
			s.read()
			tok.Type = opNe
			tok.Literal = ""
		}
	case langle:
		tok.Type = opLt
		if k == equal {
			s.read()
			tok.Type = opLe
		} else if k == langle {
			s.read()
			tok.Type = opBefore
		}
	case rangle:
		tok.Type = opGt
		if k == equal {
			s.read()
			tok.Type = opGe
		} else if k == rangle {
			s.read()
			tok.Type = opAfter
		}
	case lparen:
		tok.Type = begGrp
	case rparen:
		tok.Type = endGrp
	default:
		tok.Type = Invalid
		tok.Literal = string(s.char)
	}
	if tok.Type != Invalid {
		s.read()
	}
}

func (s *Scanner) scanDelimiter(tok *Token) {
	switch k := s.peek(); s.char {
	case colon:
		tok.Type = Namespace
		if k == colon {
			s.read()
			tok.Type = opAxis
		} else if k == equal {
			s.read()
			tok.Type = opAssign
		}
	case semicolon:
		tok.Type = opSemi
	case dot:
		tok.Type = currNode
		if k == dot {
			s.read()
			tok.Type = parentNode
		}
	case comma:
		tok.Type = opSeq
	case pipe:
		tok.Type = opUnion
		if k == pipe {
			s.read()
			tok.Type = opConcat
		}
	case lcurly:
		tok.Type = begCurl
		if f := s.top(); f != nil && f.region == regionExpr {
			f.curls++
		}
	case rcurly:
		tok.Type = endCurl
		if f := s.top(); f != nil && f.region == regionExpr {
			f.curls--
			if f.curls == 0 {
				s.pop()
			}
		}
	case lsquare:
		tok.Type = begPred
	case rsquare:
		tok.Type = endPred
	case slash:
		tok.Type = currLevel
		if k == slash {
			s.read()
			tok.Type = anyLevel
		}
	default:
		tok.Type = Invalid
		tok.Literal = string(s.char)
	}
	if tok.Type != Invalid {
		s.read()
	}
}

func (s *Scanner) scanLiteral(tok *Token) {
	delim := s.char
	s.read()
	for !s.done() {
		if s.char == delim {
			if s.peek() == delim {
				s.write()
				s.read()
				s.read()
				continue
			}
			break
		}
		if s.char == ampersand {
			s.scanEntity(tok)
			continue
		}
		s.write()
		s.read()
	}
	tok.Type = Literal
	tok.Literal = s.str.String()
	if s.char != delim {
		tok.Type = Invalid
		tok.Literal = "unterminated string literal"
		return
	}
	s.read()
}

func (s *Scanner) scanAttrAxis(tok *Token) {
	s.read()
	if s.char == star {
		s.read()
		tok.Type = attrNode
		tok.Literal = "*"
		return
	}
	s.scanName()
	tok.Type = attrNode
	tok.Literal = s.str.String()
	if s.char == colon && isNameStart(s.peek()) {
		s.write()
		s.read()
		s.scanName()
		tok.Literal = s.str.String()
	}
}

func (s *Scanner) scanVariable(tok *Token) {
	s.read()
	s.scanName()
	if s.char == colon && isNameStart(s.peek()) {
		s.write()
		s.read()
		s.scanName()
	}
	tok.Type = variable
	tok.Literal = s.str.String()
	if tok.Literal == "" {
		tok.Type = Invalid
		tok.Literal = "missing variable name"
	}
}

func (s *Scanner) scanName() {
	if !isNameStart(s.char) {
		return
	}
	for !s.done() && isNameChar(s.char) {
		s.write()
		s.read()
	}
}

// scanIdent classifies a word by the token that precedes it, the way
// the XPath lexical rules do. Right after a token that can end an
// operand, a word is an operator keyword; right after a step or
// namespace separator it is always a plain name; anywhere else it is in
// operand position and may be an expression-starting keyword.
func (s *Scanner) scanIdent(tok *Token) {
	s.scanName()
	tok.Literal = s.str.String()
	tok.Type = Name
	switch {
	case endsOperand(s.prev):
		s.scanKeywordOperator(tok)
		s.clause = tok.Type == Name && isClauseKeyword(tok.Literal)
	case expectsName(s.prev):
	default:
		if isReserved(tok.Literal) {
			tok.Type = reserved
		} else {
			s.clause = isClauseKeyword(tok.Literal)
		}
	}
}

func (s *Scanner) scanKeywordOperator(tok *Token) {
	switch tok.Literal {
	case kwAnd:
		tok.Type = opAnd
	case kwOr:
		tok.Type = opOr
	case kwDiv:
		tok.Type = opDiv
	case kwIdiv:
		tok.Type = opIdiv
	case kwMod:
		tok.Type = opMod
	case kwTo:
		tok.Type = opRange
	case kwUnion:
		tok.Type = opUnion
	case kwIntersect:
		tok.Type = opIntersect
	case kwExcept:
		tok.Type = opExcept
	case kwEq:
		tok.Type = opValEq
	case kwNe:
		tok.Type = opValNe
	case kwLt:
		tok.Type = opValLt
	case kwLe:
		tok.Type = opValLe
	case kwGt:
		tok.Type = opValGt
	case kwGe:
		tok.Type = opValGe
	case kwIs:
		tok.Type = opIs
	case kwInstance:
		if s.lookForward(kwOf) {
			tok.Type = opInstanceOf
		}
	case kwCast:
		if s.lookForward(kwAs) {
			tok.Type = opCastAs
		}
	case kwCastable:
		if s.lookForward(kwAs) {
			tok.Type = opCastableAs
		}
	case kwTreat:
		if s.lookForward(kwAs) {
			tok.Type = opTreatAs
		}
	}
}

// clauseWord stands in for a name token that was recognized as a clause
// keyword such as return or then. The expression that follows starts a
// fresh operand, so the next word keeps its keyword meaning.
const clauseWord rune = -2000

func isClauseKeyword(str string) bool {
	switch str {
	case kwIn, kwReturn, kwThen, kwElse, kwWhere, kwSatisfies, kwBy, kwCase:
		return true
	default:
		return false
	}
}

// endsOperand reports whether a token of the given kind can be the last
// token of an operand, putting the next word in operator position.
func endsOperand(kind rune) bool {
	switch kind {
	case Name, Literal, Digit, variable, currNode, parentNode, attrNode,
		endGrp, endPred, endCurl, opMul, opQuestion,
		EndTag, EmptyElemTag, CommentTag, PITag, Cdata:
		return true
	default:
		return false
	}
}

// expectsName reports whether the given kind forces the next word to be
// a plain name, with no keyword meaning at all.
func expectsName(kind rune) bool {
	switch kind {
	case currLevel, anyLevel, opAxis, Namespace, opLt:
		return true
	default:
		return false
	}
}

// lookForward checks whether the next word is the given keyword and, if
// so, consumes it. Two-word operators (instance of, cast as...) are
// collapsed into a single token this way.
func (s *Scanner) lookForward(want string) bool {
	peek, _ := s.input.Peek(64)
	// the current char has already been read off the buffered reader
	if !unicode.IsSpace(s.char) {
		return false
	}
	tmp := bytes.TrimLeft(peek, " \t\r\n")
	if !bytes.HasPrefix(tmp, []byte(want)) {
		return false
	}
	rest := tmp[len(want):]
	if len(rest) > 0 {
		r, _ := utf8.DecodeRune(rest)
		if isNameChar(r) {
			return false
		}
	}
	skip := bytes.Index(peek, []byte(want)) + len(want)
	s.input.Discard(skip)
	s.Position.Column += skip
	s.read()
	return true
}

func (s *Scanner) scanNumber(tok *Token) {
	for !s.done() && unicode.IsDigit(s.char) {
		s.write()
		s.read()
	}
	tok.Type = Digit
	if s.char == dot && unicode.IsDigit(s.peek()) {
		s.write()
		s.read()
		for !s.done() && unicode.IsDigit(s.char) {
			s.write()
			s.read()
		}
	}
	if s.char == 'e' || s.char == 'E' {
		s.write()
		s.read()
		if s.char == '-' || s.char == '+' {
			s.write()
			s.read()
		}
		if !unicode.IsDigit(s.char) {
			tok.Type = Invalid
			tok.Literal = "malformed number literal"
			return
		}
		for !s.done() && unicode.IsDigit(s.char) {
			s.write()
			s.read()
		}
	}
	tok.Literal = s.str.String()
	if isNameStart(s.char) {
		tok.Type = Invalid
		tok.Literal = "number followed by name character"
	}
}

// scanTag reads the tokens that make up a start or end tag: names,
// namespace separators, attribute assignment and values, and the three
// tag terminators.
func (s *Scanner) scanTag(tok *Token) {
	s.skipBlank()
	tok.Position = s.Position
	if s.done() {
		tok.Type = Invalid
		tok.Literal = "unterminated element constructor"
		return
	}
	switch {
	case s.char == rangle:
		s.read()
		tok.Type = EndTag
		if f := s.top(); f.closing {
			s.pop()
		} else {
			f.region = regionContent
		}
	case s.char == slash && s.peek() == rangle:
		s.read()
		s.read()
		tok.Type = EmptyElemTag
		s.pop()
	case s.char == colon:
		s.read()
		tok.Type = Namespace
	case s.char == equal:
		s.read()
		tok.Type = opEq
	case s.char == quote || s.char == apos:
		s.scanAttrValue(tok)
	case isNameStart(s.char):
		s.scanName()
		tok.Type = Name
		tok.Literal = s.str.String()
	default:
		tok.Type = Invalid
		tok.Literal = string(s.char)
		s.read()
	}
}

// scanAttrValue captures the raw text of an attribute value in a single
// pass, up to the matching quote. Enclosed expressions may contain the
// quote character, so the scan tracks brace depth and inner string
// delimiters; doubled quotes outside braces escape the delimiter. The
// captured text is parsed for real in a second pass by the parser.
func (s *Scanner) scanAttrValue(tok *Token) {
	delim := s.char
	s.read()
	var (
		depth int
		inner rune
	)
	for !s.done() {
		switch {
		case depth == 0 && s.char == delim:
			if s.peek() == delim {
				s.write()
				s.read()
				s.read()
				continue
			}
			s.read()
			tok.Type = Literal
			tok.Literal = s.str.String()
			return
		case s.char == lcurly && inner == 0:
			if s.peek() == lcurly && depth == 0 {
				s.write()
				s.write()
				s.read()
				s.read()
				continue
			}
			depth++
		case s.char == rcurly && inner == 0:
			if s.peek() == rcurly && depth == 0 {
				s.write()
				s.write()
				s.read()
				s.read()
				continue
			}
			if depth > 0 {
				depth--
			}
		case depth > 0 && (s.char == quote || s.char == apos):
			if inner == 0 {
				inner = s.char
			} else if inner == s.char {
				inner = 0
			}
		}
		s.write()
		s.read()
	}
	tok.Type = Invalid
	tok.Literal = "unterminated attribute value"
}

// scanContent reads element content: text chunks, nested tags, enclosed
// expressions, comments, CDATA sections and processing instructions.
func (s *Scanner) scanContent(tok *Token) {
	tok.Position = s.Position
	switch {
	case s.done():
		tok.Type = Invalid
		tok.Literal = "unterminated element constructor"
	case s.char == langle:
		s.scanMarkup(tok)
	case s.char == lcurly && s.peek() != lcurly:
		s.read()
		tok.Type = begCurl
		s.push(frame{region: regionExpr, curls: 1})
	case s.char == rcurly && s.peek() != rcurly:
		s.read()
		tok.Type = Invalid
		tok.Literal = "unescaped '}' in element content"
	default:
		s.scanText(tok)
	}
}

func (s *Scanner) scanText(tok *Token) {
	for !s.done() && s.char != langle {
		switch {
		case s.char == lcurly && s.peek() == lcurly:
			s.write()
			s.read()
			s.read()
		case s.char == rcurly && s.peek() == rcurly:
			s.write()
			s.read()
			s.read()
		case s.char == lcurly || s.char == rcurly:
			tok.Type = Text
			tok.Literal = s.str.String()
			return
		case s.char == ampersand:
			s.scanEntity(tok)
			if tok.Type == Invalid {
				return
			}
		default:
			s.write()
			s.read()
		}
	}
	tok.Type = Text
	tok.Literal = s.str.String()
}

func (s *Scanner) scanMarkup(tok *Token) {
	s.read()
	switch {
	case s.char == slash:
		s.read()
		tok.Type = CloseTag
		f := s.top()
		f.region = regionTag
		f.closing = true
	case s.char == bang:
		s.read()
		if s.char == dash {
			s.scanComment(tok)
			return
		}
		if s.char == lsquare {
			s.scanCharData(tok)
			return
		}
		tok.Type = Invalid
		tok.Literal = "malformed markup declaration"
	case s.char == question:
		s.read()
		s.scanInstruction(tok)
	default:
		tok.Type = OpenTag
		s.push(frame{region: regionTag})
	}
}

func (s *Scanner) scanComment(tok *Token) {
	s.read()
	if s.char != dash {
		tok.Type = Invalid
		tok.Literal = "malformed comment"
		return
	}
	s.read()
	var done bool
	for !s.done() {
		if s.char == dash && s.peek() == dash {
			s.read()
			s.read()
			if done = s.char == rangle; done {
				s.read()
				break
			}
			s.str.WriteRune(dash)
			s.str.WriteRune(dash)
			continue
		}
		s.write()
		s.read()
	}
	tok.Literal = s.str.String()
	tok.Type = CommentTag
	if !done {
		tok.Type = Invalid
		tok.Literal = "unterminated comment"
	}
}

func (s *Scanner) scanCharData(tok *Token) {
	s.read()
	for !s.done() && s.char != lsquare {
		s.write()
		s.read()
	}
	s.read()
	if s.str.String() != "CDATA" {
		tok.Type = Invalid
		tok.Literal = "malformed CDATA section"
		return
	}
	s.str.Reset()
	var done bool
	for !s.done() {
		if s.char == rsquare && s.peek() == rsquare {
			s.read()
			s.read()
			if done = s.char == rangle; done {
				s.read()
				break
			}
			s.str.WriteRune(rsquare)
			s.str.WriteRune(rsquare)
			continue
		}
		s.write()
		s.read()
	}
	tok.Literal = s.str.String()
	tok.Type = Cdata
	if !done {
		tok.Type = Invalid
		tok.Literal = "unterminated CDATA section"
	}
}

func (s *Scanner) scanInstruction(tok *Token) {
	var done bool
	for !s.done() {
		if s.char == question && s.peek() == rangle {
			s.read()
			s.read()
			done = true
			break
		}
		s.write()
		s.read()
	}
	tok.Literal = s.str.String()
	tok.Type = PITag
	if !done {
		tok.Type = Invalid
		tok.Literal = "unterminated processing instruction"
	}
}

func (s *Scanner) scanEntity(tok *Token) {
	s.read()
	var str bytes.Buffer
	for !s.done() && s.char != semicolon {
		str.WriteRune(s.char)
		s.read()
	}
	if s.char != semicolon {
		tok.Type = Invalid
		tok.Literal = "unterminated entity reference"
		return
	}
	s.read()
	r, ok := decodeEntity(str.String())
	if !ok {
		tok.Type = Invalid
		tok.Literal = "unknown entity reference: &" + str.String() + ";"
		return
	}
	s.str.WriteRune(r)
}

func decodeEntity(name string) (rune, bool) {
	switch name {
	case "lt":
		return langle, true
	case "gt":
		return rangle, true
	case "amp":
		return ampersand, true
	case "apos":
		return apos, true
	case "quot":
		return quote, true
	}
	if len(name) > 1 && name[0] == pound {
		var (
			n   int64
			err error
		)
		if name[1] == 'x' || name[1] == 'X' {
			n, err = strconv.ParseInt(name[2:], 16, 32)
		} else {
			n, err = strconv.ParseInt(name[1:], 10, 32)
		}
		if err == nil && utf8.ValidRune(rune(n)) {
			return rune(n), true
		}
	}
	return utf8.RuneError, false
}

func (s *Scanner) skipBlank() {
	for !s.done() && unicode.IsSpace(s.char) {
		s.read()
	}
}

func (s *Scanner) write() {
	s.str.WriteRune(s.char)
}

func (s *Scanner) read() {
	s.old = s.Position
	if s.char == '\n' {
		s.Column = 0
		s.Line++
	}
	s.Column++
	c, _, err := s.input.ReadRune()
	if err != nil {
		s.char = utf8.RuneError
	} else {
		s.char = c
	}
}

func (s *Scanner) peek() rune {
	defer s.input.UnreadRune()
	c, _, _ := s.input.ReadRune()
	return c
}

func (s *Scanner) done() bool {
	return s.char == utf8.RuneError
}

func isNameStart(c rune) bool {
	return unicode.IsLetter(c) || c == underscore
}

func isNameChar(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) ||
		c == dash || c == underscore || c == dot
}

func isDelimiter(c rune) bool {
	return c == comma || c == dot || c == pipe || c == slash ||
		c == lsquare || c == rsquare || c == colon || c == semicolon ||
		c == lcurly || c == rcurly
}

func isOperator(c rune) bool {
	return c == question || c == plus || c == dash || c == star ||
		c == equal || c == bang || c == langle || c == rangle ||
		c == lparen || c == rparen
}
