package xquery

import (
	"errors"
	"testing"
)

func TestCompile(t *testing.T) {
	queries := []string{
		"1 + 2 * 3",
		"/shop/item[@price > 10]/name",
		"//book[position() mod 2 eq 0]",
		"'a' || 'b'",
		"for $x in //item return $x + 1",
		"for $x at $i in //item where $x/@id return $x",
		"for $x in (1, 2), $y in (3, 4) order by $y descending empty greatest return $x + $y",
		"let $x := 1, $y := $x + 1 return $y",
		"for $x in //a let $n := $x/name stable order by $n return $n",
		"if (count(//a) gt 3) then 'many' else 'few'",
		"some $x in (1, 2, 3) satisfies $x eq 2",
		"every $x in //item, $y in //price satisfies $x lt $y",
		"typeswitch (//a) case $e as element() return $e case xs:string return 'str' default $d return $d",
		"typeswitch (1) case xs:integer return 'int' default return 'other'",
		"1 instance of xs:integer",
		"'2' cast as xs:integer?",
		"10 castable as xs:double",
		"(1, 2) treat as item()+",
		"declare variable $foo external; $foo except $foo union $foo intersect $foo",
		"declare variable $foo external; $foo",
		"declare namespace ex = 'urn:example'; <ex:root attr='{1+1}'>body &amp; soul</ex:root>",
		"declare boundary-space preserve; <a> {'x'} </a>",
		"declare default element namespace 'urn:d'; /root",
		"declare default function namespace 'http://www.w3.org/2005/xpath-functions'; string(1)",
		"declare base-uri 'http://example.com/'; 1",
		"declare construction strip; declare ordering unordered; 1",
		"declare copy-namespaces no-preserve, inherit; 1",
		"declare default order empty least; for $x in (1, ()) order by $x return $x",
		"declare variable $depth as xs:integer := 3; $depth * 2",
		"declare function local:twice($n as xs:integer) as xs:integer { $n * 2 }; local:twice(21)",
		"declare function local:odd($n) { if ($n eq 0) then false() else local:even($n - 1) }; " +
			"declare function local:even($n) { if ($n eq 0) then true() else local:odd($n - 1) }; local:even(4)",
		"element out { attribute id { 1 }, text { 'x' } }",
		"element { concat('a', 'b') } { 1 }",
		"attribute { 'dyn' } { 2 }",
		"document { <a/> }",
		"comment { 'c' }",
		"processing-instruction target { 'data' }",
		"processing-instruction { 'target' } { 'data' }",
		"ordered { //a }",
		"unordered { //a }",
		"<out>{ for $i in 1 to 3 return <n v='{$i}'/> }</out>",
		"<a><!-- note --><![CDATA[<raw>]]><?php echo?></a>",
		"<a xmlns='urn:d'><b/></a>",
		`<a xmlns:p="urn:x" p:b="{1+1}"/>`,
		"xquery version '1.0' encoding 'utf-8'; 42",
		"declare option xq:trace 'off'; 1",
		"declare namespace other = 'urn:other'; declare option other:setting 'x'; 1",
		"declare ordering ordered; declare namespace p = 'urn:p'; declare variable $x := 1; $x",
		"(: leading comment :) 1 (: trailing :)",
	}
	for _, q := range queries {
		if _, err := CompileString(q); err != nil {
			t.Errorf("%s: unexpected error: %s", q, err)
		}
	}
}

func TestCompileSchemaAware(t *testing.T) {
	queries := []string{
		"validate { <a/> }",
		"validate lax { <a/> }",
		"validate strict { //a }",
		"import schema 'urn:s'; 1",
		"import schema namespace s = 'urn:s' at 'lib/s.xsd'; 1 instance of s:part",
	}
	for _, q := range queries {
		if _, err := CompileString(q, WithSchemaAware()); err != nil {
			t.Errorf("%s: unexpected error: %s", q, err)
		}
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		input string
		code  string
	}{
		{"1 +", CodeSyntax},
		{"for $x return $x", CodeSyntax},
		{"$undeclared", CodeUndefinedRef},
		{"declare variable $x := $y; declare variable $y := 1; $x", CodeUndefinedRef},
		{"local:nope()", CodeUndefinedFunction},
		{"declare function local:ext() external; 1", CodeUndefinedFunction},
		{"unknown:prefix()", CodeUndeclaredPrefix},
		{"xquery version '3.0'; 1", CodeBadVersion},
		{"declare base-uri 'a'; declare base-uri 'b'; 1", CodeDupBaseUri},
		{"declare namespace a = 'u1'; declare namespace a = 'u2'; 1", CodeDupPrefix},
		{"declare function local:f() { 1 }; declare function local:f() { 2 }; 1", CodeDupFunction},
		{"declare namespace p = 'urn:p'; 1 instance of p:t", CodeTypeNotImported},
		{"declare default collation 'urn:nope'; 1", CodeDupCollation},
		{"declare function local:f($a, $a) { 1 }; 1", CodeDupParam},
		{"declare function fn:wrong() { 1 }; 1", CodeReservedFuncNS},
		{"declare variable $x := 1; declare variable $x := 2; $x", CodeDupVariable},
		{"declare variable $a := local:f(); declare function local:f() { $a }; $a", CodeVariableCycle},
		{"declare copy-namespaces preserve, inherit; declare copy-namespaces no-preserve, no-inherit; 1", CodeDupCopyNS},
		{"import schema 'urn:s'; 1", CodeSchemaImport},
		{"import module 'urn:m'; 1", CodeModuleNotFound},
		{"declare function wrong() { 1 }; 1", CodeReservedFuncNS},
		{"declare default function namespace ''; declare function wrong() { 1 }; 1", CodeFunctionNoNS},
		{"declare namespace p = 'urn:p'; declare boundary-space preserve; 1", CodeSyntax},
		{"declare option xq:trace 'on'; declare construction strip; 1", CodeSyntax},
		{"declare ordering ordered; declare ordering unordered; 1", CodeDupOrdering},
		{"declare default element namespace 'u1'; declare default element namespace 'u2'; 1", CodeDupDefaultNS},
		{"declare construction strip; declare construction preserve; 1", CodeDupConstruction},
		{"declare boundary-space strip; declare boundary-space preserve; 1", CodeDupBoundarySpace},
		{"declare default order empty least; declare default order empty greatest; 1", CodeDupDefaultOrder},
		{"declare namespace xml = 'urn:x'; 1", CodeProtectedPrefix},
		{"<a xmlns:p='u1' xmlns:p='u2'/>", CodeDupNamespaceAttr},
		{"validate { 1 }", CodeValidateNoSchema},
		{"for $x in (1) order by $x collation 'urn:nope' return $x", CodeUnknownCollation},
		{"module namespace m = 'urn:m'; declare variable $m:x := 1;", CodeSyntax},
	}
	for _, tt := range tests {
		_, err := CompileString(tt.input)
		if err == nil {
			t.Errorf("%s: compiled without error, want %s", tt.input, tt.code)
			continue
		}
		var list ErrorList
		if !errors.As(err, &list) {
			t.Errorf("%s: error is not an ErrorList: %s", tt.input, err)
			continue
		}
		if !hasCode(list, tt.code) {
			t.Errorf("%s: want %s, got %s", tt.input, tt.code, err)
		}
	}
}

func hasCode(list ErrorList, code string) bool {
	for _, e := range list {
		if e.Code == code {
			return true
		}
	}
	return false
}

func TestDebug(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{
			input: "1 + 2 * 3",
			want:  "add(number(1), multiply(number(2), number(3)))",
		},
		{
			input: "(1, 2)",
			want:  "sequence(number(1), number(2))",
		},
		{
			input: "()",
			want:  "empty",
		},
		{
			input: "-5",
			want:  "neg(number(5))",
		},
		{
			input: "/a/b",
			want:  "step(step(root, axis(child, name(a))), axis(child, name(b)))",
		},
		{
			input: "//x",
			want:  "step(root, step(axis(descendant-or-self, kind(node())), axis(child, name(x))))",
		},
		{
			input: "let $x := 1 return $x",
			want:  "let($x := number(1), var($x))",
		},
		{
			input: "for $i in 1 to 3 where $i gt 1 return $i",
			want:  "for($i := range(number(1), number(3)), if(value-gt(var($i), number(1)), var($i), empty))",
		},
		{
			input: "for $i in (2, 1) order by $i return $i",
			want:  "project(sort(for($i := sequence(number(2), number(1)), tuple(var($i), var($i))), ascending))",
		},
		{
			input: "if (1) then 2 else 3",
			want:  "if(number(1), number(2), number(3))",
		},
	}
	for _, tt := range tests {
		query, err := CompileString(tt.input)
		if err != nil {
			t.Errorf("%s: unexpected error: %s", tt.input, err)
			continue
		}
		got := Debug(query.Body)
		if got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.input, got, tt.want)
		}
	}
}
