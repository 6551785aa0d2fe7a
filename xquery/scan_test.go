package xquery

import (
	"strings"
	"testing"
)

func scanAll(t *testing.T, input string) []string {
	t.Helper()
	var (
		scan = Scan(strings.NewReader(input))
		all  []string
	)
	for {
		tok := scan.Scan()
		if tok.Type == EOF {
			return all
		}
		all = append(all, tok.String())
		if tok.Type == Invalid {
			return all
		}
	}
}

func compareTokens(t *testing.T, input string, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("%s: got %d tokens (%v), want %d (%v)", input, len(got), got, len(want), want)
		return
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%s: token %d: got %s, want %s", input, i, got[i], want[i])
		}
	}
}

func TestScan(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{
			input: "1 + 2 * 3",
			want:  []string{"number(1)", "<add>", "number(2)", "<multiply>", "number(3)"},
		},
		{
			input: "price * 2 div count",
			want:  []string{"name(price)", "<multiply>", "number(2)", "<divide>", "name(count)"},
		},
		{
			input: "a and b or c",
			want:  []string{"name(a)", "<and>", "name(b)", "<or>", "name(c)"},
		},
		{
			input: "x eq y ne z",
			want:  []string{"name(x)", "<value-eq>", "name(y)", "<value-ne>", "name(z)"},
		},
		{
			input: "1 to 5",
			want:  []string{"number(1)", "<range>", "number(5)"},
		},
		{
			input: "$a is $b",
			want:  []string{"variable(a)", "<identity>", "variable(b)"},
		},
		{
			input: "$a << $b >> $c",
			want:  []string{"variable(a)", "<before>", "variable(b)", "<after>", "variable(c)"},
		},
		{
			input: "a union b intersect c except d",
			want:  []string{"name(a)", "<union>", "name(b)", "<intersect>", "name(c)", "<except>", "name(d)"},
		},
		{
			input: "//div/span",
			want:  []string{"<any-level>", "name(div)", "<current-level>", "name(span)"},
		},
		{
			input: "for $x in //item return $x + 1",
			want: []string{
				"reserved(for)", "variable(x)", "name(in)", "<any-level>", "name(item)",
				"name(return)", "variable(x)", "<add>", "number(1)",
			},
		},
		{
			input: "let $n := 1 return $n",
			want:  []string{"reserved(let)", "variable(n)", "<assignment>", "number(1)", "name(return)", "variable(n)"},
		},
		{
			input: "for $x in y return element a {}",
			want: []string{
				"reserved(for)", "variable(x)", "name(in)", "name(y)",
				"name(return)", "reserved(element)", "name(a)", "<begin-curly>", "<end-curly>",
			},
		},
		{
			input: "if (x) then if (y) then 1 else 2 else 3",
			want: []string{
				"reserved(if)", "<begin-group>", "name(x)", "<end-group>", "name(then)",
				"reserved(if)", "<begin-group>", "name(y)", "<end-group>", "name(then)",
				"number(1)", "name(else)", "number(2)", "name(else)", "number(3)",
			},
		},
		{
			input: "1 instance of xs:integer",
			want:  []string{"number(1)", "<instance-of>", "name(xs)", "namespace()", "name(integer)"},
		},
		{
			input: "'2' cast as xs:double",
			want:  []string{"literal(2)", "<cast-as>", "name(xs)", "namespace()", "name(double)"},
		},
		{
			input: "$x castable as xs:date",
			want:  []string{"variable(x)", "<castable-as>", "name(xs)", "namespace()", "name(date)"},
		},
		{
			input: "$x treat as item()",
			want:  []string{"variable(x)", "<treat-as>", "name(item)", "<begin-group>", "<end-group>"},
		},
		{
			input: ". .. @id @*",
			want:  []string{"<current-node>", "<parent-node>", "attribute(id)", "attribute(*)"},
		},
		{
			input: "child::item/parent::node()",
			want: []string{
				"name(child)", "<axis>", "name(item)", "<current-level>",
				"name(parent)", "<axis>", "name(node)", "<begin-group>", "<end-group>",
			},
		},
		{
			input: "'it''s'",
			want:  []string{"literal(it's)"},
		},
		{
			input: `"a&lt;b"`,
			want:  []string{"literal(a<b)"},
		},
		{
			input: "3.14e2 mod 7",
			want:  []string{"number(3.14e2)", "<modulo>", "number(7)"},
		},
		{
			input: "(: skip (: nested :) me :) 42",
			want:  []string{"number(42)"},
		},
		{
			input: "if (a) then b else c",
			want: []string{
				"reserved(if)", "<begin-group>", "name(a)", "<end-group>",
				"name(then)", "name(b)", "name(else)", "name(c)",
			},
		},
		{
			input: "declare ordering ordered;",
			want:  []string{"name(declare)", "name(ordering)", "name(ordered)", "<separator>"},
		},
		{
			input: "a/div",
			want:  []string{"name(a)", "<current-level>", "name(div)"},
		},
		{
			input: "$seq ! ",
			want:  []string{"variable(seq)", "<invalid(!)>"},
		},
		{
			input: `"unterminated`,
			want:  []string{"<invalid(unterminated string literal)>"},
		},
	}
	for _, test := range tests {
		got := scanAll(t, test.input)
		compareTokens(t, test.input, got, test.want)
	}
}

// TestScanDirectElement drives the scanner the way the parser does: the
// first < switches into tag scanning, everything after that is managed
// by the scanner itself.
func TestScanDirectElement(t *testing.T) {
	input := `<a href="x{$u}y">text {1} <b/></a>`
	scan := Scan(strings.NewReader(input))

	first := scan.Scan()
	if first.Type != opLt {
		t.Fatalf("expected < first, got %s", first)
	}
	scan.EnterTag()

	want := []string{
		"name(a)",
		"name(href)",
		"<equal>",
		"literal(x{$u}y)",
		"<end-elem-tag>",
		"text(text )",
		"<begin-curly>",
		"number(1)",
		"<end-curly>",
		"text( )",
		"<open-elem-tag>",
		"name(b)",
		"<empty-elem-tag>",
		"<close-elem-tag>",
		"name(a)",
		"<end-elem-tag>",
	}
	var got []string
	for {
		tok := scan.Scan()
		if tok.Type == EOF {
			break
		}
		got = append(got, tok.String())
	}
	compareTokens(t, input, got, want)
}

func TestScanContentEscapes(t *testing.T) {
	input := `<a>left {{ right }}</a>`
	scan := Scan(strings.NewReader(input))

	if tok := scan.Scan(); tok.Type != opLt {
		t.Fatalf("expected < first, got %s", tok)
	}
	scan.EnterTag()

	want := []string{
		"name(a)",
		"<end-elem-tag>",
		"text(left { right })",
		"<close-elem-tag>",
		"name(a)",
		"<end-elem-tag>",
	}
	var got []string
	for {
		tok := scan.Scan()
		if tok.Type == EOF {
			break
		}
		got = append(got, tok.String())
	}
	compareTokens(t, input, got, want)
}

func TestScanPositions(t *testing.T) {
	scan := Scan(strings.NewReader("a\n  + b"))
	tok := scan.Scan()
	if tok.Line != 1 || tok.Column != 1 {
		t.Errorf("first token at %s, want 1:1", tok.Position)
	}
	tok = scan.Scan()
	if tok.Line != 2 || tok.Column != 3 {
		t.Errorf("operator at %s, want 2:3", tok.Position)
	}
	tok = scan.Scan()
	if tok.Line != 2 || tok.Column != 5 {
		t.Errorf("name at %s, want 2:5", tok.Position)
	}
}
