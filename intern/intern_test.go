package intern_test

import (
	"testing"

	"github.com/midbel/xq/intern"
)

func TestQName(t *testing.T) {
	tests := []struct {
		name      intern.QName
		qualified string
		expanded  string
	}{
		{
			name:      intern.Local("item"),
			qualified: "item",
			expanded:  "item",
		},
		{
			name:      intern.Qualified("item", "ex"),
			qualified: "ex:item",
			expanded:  "item",
		},
		{
			name:      intern.Expanded("item", "ex", "urn:example"),
			qualified: "ex:item",
			expanded:  "{urn:example}item",
		},
	}
	for _, tt := range tests {
		if got := tt.name.QualifiedName(); got != tt.qualified {
			t.Errorf("qualified name: got %s, want %s", got, tt.qualified)
		}
		if got := tt.name.ExpandedName(); got != tt.expanded {
			t.Errorf("expanded name: got %s, want %s", got, tt.expanded)
		}
	}
	if !intern.Local("").Zero() {
		t.Errorf("empty name is zero")
	}
	if intern.Local("a").Zero() {
		t.Errorf("named QName is not zero")
	}
}

func TestEqual(t *testing.T) {
	a := intern.Expanded("item", "x", "urn:1")
	b := intern.Expanded("item", "y", "urn:1")
	c := intern.Expanded("item", "x", "urn:2")

	if !a.Equal(b) {
		t.Errorf("prefixes do not take part in name equality")
	}
	if a.Equal(c) {
		t.Errorf("names in different namespaces differ")
	}
}

func TestTable(t *testing.T) {
	table := intern.NewTable()

	a := table.Intern(intern.Expanded("item", "x", "urn:1"))
	b := table.Intern(intern.Expanded("item", "y", "urn:1"))
	c := table.Intern(intern.Expanded("item", "x", "urn:2"))

	if a != b {
		t.Errorf("same expanded name interns to the same symbol: %d != %d", a, b)
	}
	if a == c {
		t.Errorf("different namespaces intern to different symbols")
	}
	if table.Len() != 2 {
		t.Errorf("table has %d entries, want 2", table.Len())
	}

	got := table.Name(a)
	if got.Local != "item" || got.Space != "urn:1" {
		t.Errorf("lookup of %d returned %s", a, got)
	}
	if name := table.Name(intern.Invalid); !name.Zero() {
		t.Errorf("invalid symbol resolves to the zero name")
	}
}
