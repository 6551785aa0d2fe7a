package environ_test

import (
	"errors"
	"testing"

	"github.com/midbel/xq/environ"
)

func TestResolve(t *testing.T) {
	env := environ.Empty[int]()
	env.Define("a", 1)

	got, err := env.Resolve("a")
	if err != nil {
		t.Fatalf("resolve a: %s", err)
	}
	if got != 1 {
		t.Errorf("resolve a: got %d, want 1", got)
	}
	if _, err := env.Resolve("b"); !errors.Is(err, environ.ErrUndefined) {
		t.Errorf("resolve b: want ErrUndefined, got %v", err)
	}
}

func TestEnclosed(t *testing.T) {
	outer := environ.Empty[string]()
	outer.Define("x", "outer")
	outer.Define("y", "only")

	inner := environ.Enclosed(outer)
	inner.Define("x", "inner")

	if got, _ := inner.Resolve("x"); got != "inner" {
		t.Errorf("inner scope shadows: got %s", got)
	}
	if got, _ := inner.Resolve("y"); got != "only" {
		t.Errorf("fallthrough to parent: got %s", got)
	}
	if got, _ := outer.Resolve("x"); got != "outer" {
		t.Errorf("outer scope untouched: got %s", got)
	}
	if inner.Len() != 1 {
		t.Errorf("inner scope has %d bindings, want 1", inner.Len())
	}
}

func TestLocal(t *testing.T) {
	outer := environ.Empty[int]()
	outer.Define("x", 1)
	inner := environ.Enclosed(outer).(*environ.Env[int])

	if inner.Local("x") {
		t.Errorf("x is not local to the inner scope")
	}
	inner.Define("x", 2)
	if !inner.Local("x") {
		t.Errorf("x was defined in the inner scope")
	}
}

func TestUnwrap(t *testing.T) {
	outer := environ.Empty[int]()
	inner := environ.Enclosed(outer).(*environ.Env[int])

	if inner.Unwrap() != outer {
		t.Errorf("unwrap returns the parent scope")
	}
	top := outer.(*environ.Env[int])
	if top.Unwrap() != top {
		t.Errorf("unwrapping the top scope is a no-op")
	}
}

func TestClone(t *testing.T) {
	env := environ.Empty[int]().(*environ.Env[int])
	env.Define("a", 1)

	copied := env.Clone()
	copied.Define("b", 2)
	env.Define("a", 10)

	if got, _ := copied.Resolve("a"); got != 1 {
		t.Errorf("clone keeps the old value: got %d", got)
	}
	if _, err := env.Resolve("b"); err == nil {
		t.Errorf("original must not see bindings added to the clone")
	}
}
