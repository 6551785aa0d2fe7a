package xquery

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// rawName is a tag or attribute name before namespace resolution.
// Resolution is deferred because the xmlns attributes of the same tag
// are in scope for it.
type rawName struct {
	prefix string
	local  string
	pos    Position
}

func (r rawName) String() string {
	if r.prefix == "" {
		return r.local
	}
	return r.prefix + ":" + r.local
}

func (r rawName) isNamespaceDecl() bool {
	return r.prefix == "xmlns" || (r.prefix == "" && r.local == "xmlns")
}

// nsPrefix gives the prefix being declared: the local part for
// xmlns:p, the empty string for a bare xmlns.
func (r rawName) nsPrefix() string {
	if r.prefix == "xmlns" {
		return r.local
	}
	return ""
}

type rawAttr struct {
	name  rawName
	value string
	pos   Position
}

func (c *compiler) compileDirectElem() (Expr, error) {
	c.Enter("direct-element")
	defer c.Leave("direct-element")

	c.scan.EnterTag()
	c.next()
	return c.compileDirectTag()
}

// compileDirectTag parses a direct element constructor starting at its
// tag name. Namespace attributes are applied before the element and
// attribute names are resolved, then popped once the constructor ends.
func (c *compiler) compileDirectTag() (Expr, error) {
	name, err := c.directName()
	if err != nil {
		return nil, err
	}
	attrs, err := c.directAttributes()
	if err != nil {
		return nil, err
	}
	elem := elemConstructor{
		direct: true,
	}
	pushed := 0
	defer func() {
		for ; pushed > 0; pushed-- {
			c.ctx.UndeclareNamespace()
		}
	}()

	seen := make(map[string]struct{})
	for _, a := range attrs {
		if !a.name.isNamespaceDecl() {
			continue
		}
		prefix := a.name.nsPrefix()
		if _, ok := seen[prefix]; ok {
			c.sink.report(staticError(CodeDupNamespaceAttr,
				fmt.Sprintf("namespace attribute %s declared twice on the same element", a.name), a.pos))
			continue
		}
		seen[prefix] = struct{}{}
		uri, err := c.namespaceAttrValue(a)
		if err != nil {
			return nil, err
		}
		if err := c.ctx.DeclareActiveNamespace(prefix, uri); err != nil {
			c.sink.report(withPos(err, a.pos))
			continue
		}
		pushed++
		elem.namespaces = append(elem.namespaces, nsBinding{prefix: prefix, uri: uri})
	}

	elem.name, err = c.ctx.ResolveQName(name.prefix, name.local, useElement)
	if err != nil {
		return nil, withPos(err, name.pos)
	}
	used := make(map[string]struct{})
	for _, a := range attrs {
		if a.name.isNamespaceDecl() {
			continue
		}
		qn, err := c.ctx.ResolveQName(a.name.prefix, a.name.local, useOther)
		if err != nil {
			return nil, withPos(err, a.pos)
		}
		if _, ok := used[qn.ExpandedName()]; ok {
			return nil, syntaxError(a.name.String(), "attribute declared twice on the same element", a.pos)
		}
		used[qn.ExpandedName()] = struct{}{}
		parts, err := c.parseAttrValue(a.value, a.pos)
		if err != nil {
			return nil, err
		}
		elem.attrs = append(elem.attrs, attrConstructor{
			name:   qn,
			parts:  parts,
			direct: true,
		})
	}

	if c.is(EmptyElemTag) {
		c.next()
		return elem, nil
	}
	if !c.is(EndTag) {
		return nil, syntaxError(c.curr.String(), "malformed start tag", c.curr.Position)
	}
	c.next()
	if err := c.compileElemContent(&elem, name); err != nil {
		return nil, err
	}
	return elem, nil
}

func (c *compiler) compileElemContent(elem *elemConstructor, open rawName) error {
	for {
		switch {
		case c.is(Text):
			text := c.getCurrentLiteral()
			keep := text != ""
			if c.ctx.BoundarySpace == BoundaryStrip && strings.TrimSpace(text) == "" {
				keep = false
			}
			if keep {
				elem.content = append(elem.content, textNode{content: text})
			}
			c.next()
		case c.is(begCurl):
			expr, err := c.compileEnclosed()
			if err != nil {
				return err
			}
			elem.content = append(elem.content, expr)
		case c.is(OpenTag):
			c.next()
			child, err := c.compileDirectTag()
			if err != nil {
				return err
			}
			elem.content = append(elem.content, child)
		case c.is(CommentTag):
			elem.content = append(elem.content, commentConstructor{content: c.getCurrentLiteral()})
			c.next()
		case c.is(Cdata):
			elem.content = append(elem.content, textNode{content: c.getCurrentLiteral()})
			c.next()
		case c.is(PITag):
			pi, err := directInstruction(c.getCurrentLiteral(), c.curr.Position)
			if err != nil {
				return err
			}
			elem.content = append(elem.content, pi)
			c.next()
		case c.is(CloseTag):
			c.next()
			close, err := c.directName()
			if err != nil {
				return err
			}
			if close.prefix != open.prefix || close.local != open.local {
				return syntaxError(close.String(),
					fmt.Sprintf("closing tag does not match <%s>", open), close.pos)
			}
			if !c.is(EndTag) {
				return syntaxError(c.curr.String(), "malformed closing tag", c.curr.Position)
			}
			c.next()
			return nil
		case c.is(Invalid):
			return syntaxError(c.getCurrentLiteral(), "invalid element content", c.curr.Position)
		default:
			return syntaxError(c.curr.String(), "unexpected token in element content", c.curr.Position)
		}
	}
}

func (c *compiler) directName() (rawName, error) {
	var name rawName
	if !c.is(Name) {
		return name, syntaxError(c.curr.String(), "tag name expected", c.curr.Position)
	}
	name.local = c.getCurrentLiteral()
	name.pos = c.curr.Position
	c.next()
	if !c.is(Namespace) {
		return name, nil
	}
	c.next()
	if !c.is(Name) {
		return name, syntaxError(c.curr.String(), "name expected after namespace prefix", c.curr.Position)
	}
	name.prefix = name.local
	name.local = c.getCurrentLiteral()
	c.next()
	return name, nil
}

func (c *compiler) directAttributes() ([]rawAttr, error) {
	var attrs []rawAttr
	for c.is(Name) {
		name, err := c.directName()
		if err != nil {
			return nil, err
		}
		if !c.is(opEq) {
			return nil, syntaxError(c.curr.String(), "expected = after attribute name", c.curr.Position)
		}
		c.next()
		if !c.is(Literal) {
			return nil, syntaxError(c.curr.String(), "attribute value expected", c.curr.Position)
		}
		attrs = append(attrs, rawAttr{
			name:  name,
			value: c.getCurrentLiteral(),
			pos:   c.curr.Position,
		})
		c.next()
	}
	return attrs, nil
}

// namespaceAttrValue decodes an xmlns attribute value. The value must
// be fixed text: a namespace can not be computed at runtime.
func (c *compiler) namespaceAttrValue(a rawAttr) (string, error) {
	parts, err := c.parseAttrValue(a.value, a.pos)
	if err != nil {
		return "", err
	}
	switch len(parts) {
	case 0:
		return "", nil
	case 1:
		if lit, ok := parts[0].(literal); ok {
			return lit.value, nil
		}
	}
	return "", syntaxError(a.name.String(), "namespace attribute value must be a string literal", a.pos)
}

// parseAttrValue splits the raw captured attribute text into literal
// runs and enclosed expressions. Doubled braces escape themselves and
// entity references are decoded here, since the first pass captured the
// text verbatim.
func (c *compiler) parseAttrValue(raw string, pos Position) ([]Expr, error) {
	var (
		parts []Expr
		buf   strings.Builder
	)
	flush := func() {
		if buf.Len() > 0 {
			parts = append(parts, literal{value: buf.String()})
			buf.Reset()
		}
	}
	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRuneInString(raw[i:])
		switch r {
		case '{':
			if strings.HasPrefix(raw[i:], "{{") {
				buf.WriteByte('{')
				i += 2
				continue
			}
			end, ok := matchBrace(raw, i)
			if !ok {
				return nil, syntaxError(raw, "unbalanced '{' in attribute value", pos)
			}
			flush()
			expr, err := c.parseEmbedded(raw[i+1 : end])
			if err != nil {
				return nil, withPos(err, pos)
			}
			parts = append(parts, expr)
			i = end + 1
		case '}':
			if strings.HasPrefix(raw[i:], "}}") {
				buf.WriteByte('}')
				i += 2
				continue
			}
			return nil, syntaxError(raw, "unescaped '}' in attribute value", pos)
		case '&':
			j := strings.IndexByte(raw[i:], ';')
			if j < 0 {
				return nil, syntaxError(raw, "unterminated entity reference", pos)
			}
			ch, ok := decodeEntity(raw[i+1 : i+j])
			if !ok {
				return nil, syntaxError(raw[i:i+j+1], "unknown entity reference", pos)
			}
			buf.WriteRune(ch)
			i += j + 1
		default:
			buf.WriteRune(r)
			i += size
		}
	}
	flush()
	return parts, nil
}

// matchBrace finds the brace closing the one at start, skipping braces
// inside nested string literals.
func matchBrace(raw string, start int) (int, bool) {
	var (
		depth int
		inner byte
	)
	for i := start; i < len(raw); i++ {
		switch ch := raw[i]; ch {
		case '"', '\'':
			if inner == 0 {
				inner = ch
			} else if inner == ch {
				inner = 0
			}
		case '{':
			if inner == 0 {
				depth++
			}
		case '}':
			if inner == 0 {
				depth--
				if depth == 0 {
					return i, true
				}
			}
		}
	}
	return 0, false
}

// parseEmbedded compiles an expression captured from an attribute
// value. The sub-compiler shares the static context, the error sink and
// the local scope so variables bound around the constructor stay
// visible.
func (c *compiler) parseEmbedded(src string) (Expr, error) {
	sub := newCompiler(strings.NewReader(src), c.ctx, c.sink, c.Tracer)
	sub.module = c.module
	sub.locals = c.locals
	expr, err := sub.compile()
	if err != nil {
		return nil, err
	}
	if !sub.done() {
		return nil, syntaxError(sub.curr.String(), "unexpected token in attribute expression", sub.curr.Position)
	}
	return expr, nil
}

func (c *compiler) compileDirectComment() (Expr, error) {
	node := commentConstructor{
		content: c.getCurrentLiteral(),
	}
	c.next()
	return node, nil
}

func (c *compiler) compileDirectInstruction() (Expr, error) {
	pi, err := directInstruction(c.getCurrentLiteral(), c.curr.Position)
	if err != nil {
		return nil, err
	}
	c.next()
	return pi, nil
}

// directInstruction splits the captured <?...?> text into target and
// data. The xml target is reserved for the prolog of real documents.
func directInstruction(raw string, pos Position) (Expr, error) {
	target := raw
	data := ""
	if i := strings.IndexAny(raw, " \t\r\n"); i >= 0 {
		target, data = raw[:i], strings.TrimLeft(raw[i+1:], " \t\r\n")
	}
	if target == "" {
		return nil, syntaxError(raw, "processing instruction without a target", pos)
	}
	if strings.EqualFold(target, "xml") {
		return nil, syntaxError(target, "xml is not a valid processing instruction target", pos)
	}
	return piConstructor{
		target: target,
		data:   data,
	}, nil
}

func (c *compiler) compileComputedConstructor() (Expr, error) {
	c.Enter("computed-constructor")
	defer c.Leave("computed-constructor")

	kind := c.getCurrentLiteral()
	pos := c.curr.Position
	c.next()
	switch kind {
	case kwElement:
		var (
			elem elemConstructor
			err  error
		)
		if c.is(begCurl) {
			if elem.nameExpr, err = c.compileEnclosed(); err != nil {
				return nil, err
			}
		} else if elem.name, err = c.compileQName(useElement); err != nil {
			return nil, err
		}
		body, err := c.computedBody()
		if err != nil {
			return nil, err
		}
		if body != nil {
			elem.content = append(elem.content, body)
		}
		return elem, nil
	case kwAttribute:
		var (
			attr attrConstructor
			err  error
		)
		if c.is(begCurl) {
			if attr.nameExpr, err = c.compileEnclosed(); err != nil {
				return nil, err
			}
		} else if attr.name, err = c.compileQName(useOther); err != nil {
			return nil, err
		}
		body, err := c.computedBody()
		if err != nil {
			return nil, err
		}
		if body != nil {
			attr.parts = append(attr.parts, body)
		}
		return attr, nil
	case kwText:
		body, err := c.computedBody()
		if err != nil {
			return nil, err
		}
		return textConstructor{expr: body}, nil
	case kwComment:
		body, err := c.computedBody()
		if err != nil {
			return nil, err
		}
		return commentConstructor{expr: body}, nil
	case kwProcInst:
		var pi piConstructor
		switch {
		case c.is(begCurl):
			expr, err := c.compileEnclosed()
			if err != nil {
				return nil, err
			}
			pi.targetExpr = expr
		case c.is(Name) || c.is(reserved):
			pi.target = c.getCurrentLiteral()
			c.next()
		default:
			return nil, syntaxError(c.curr.String(), "processing instruction target expected", c.curr.Position)
		}
		body, err := c.computedBody()
		if err != nil {
			return nil, err
		}
		pi.expr = body
		return pi, nil
	case kwDocument:
		body, err := c.computedBody()
		if err != nil {
			return nil, err
		}
		if body == nil {
			body = emptySequence{}
		}
		return docConstructor{body: body}, nil
	default:
		return nil, syntaxError(kind, "unknown constructor", pos)
	}
}

// computedBody parses the enclosed body of a computed constructor. An
// empty pair of braces is allowed and yields nil.
func (c *compiler) computedBody() (Expr, error) {
	if !c.is(begCurl) {
		return nil, syntaxError(c.curr.String(), "expected { after constructor name", c.curr.Position)
	}
	c.next()
	if c.is(endCurl) {
		c.next()
		return nil, nil
	}
	expr, err := c.compile()
	if err != nil {
		return nil, err
	}
	if !c.is(endCurl) {
		return nil, syntaxError(c.curr.String(), "expected } after constructor body", c.curr.Position)
	}
	c.next()
	return expr, nil
}
