package intern

import (
	"fmt"
	"sync"
)

// QName identifies an expanded name: a local part qualified by a
// namespace URI. Prefix is kept only for diagnostics and serialization,
// it never takes part in identity.
type QName struct {
	Space  string
	Prefix string
	Local  string
}

func Local(name string) QName {
	return QName{
		Local: name,
	}
}

func Qualified(name, prefix string) QName {
	return QName{
		Local:  name,
		Prefix: prefix,
	}
}

func Expanded(name, prefix, uri string) QName {
	return QName{
		Local:  name,
		Prefix: prefix,
		Space:  uri,
	}
}

func (q QName) Zero() bool {
	return q.Local == ""
}

func (q QName) Equal(other QName) bool {
	return q.Local == other.Local && q.Space == other.Space
}

func (q QName) LocalName() string {
	return q.Local
}

func (q QName) QualifiedName() string {
	if q.Prefix == "" {
		return q.Local
	}
	return fmt.Sprintf("%s:%s", q.Prefix, q.Local)
}

func (q QName) ExpandedName() string {
	if q.Space == "" {
		return q.Local
	}
	return fmt.Sprintf("{%s}%s", q.Space, q.Local)
}

func (q QName) String() string {
	return q.QualifiedName()
}

// Symbol is the compact identifier a Table hands out for an interned
// name. Two names compare equal iff their symbols do.
type Symbol int32

const Invalid Symbol = -1

// Table interns expanded names into dense symbols. Lookups are served
// under a read lock so independent compilations can share one table;
// inserting a previously unseen name upgrades to the write lock.
type Table struct {
	mu      sync.RWMutex
	symbols map[string]Symbol
	names   []QName
}

func NewTable() *Table {
	return &Table{
		symbols: make(map[string]Symbol),
	}
}

func (t *Table) Intern(name QName) Symbol {
	key := name.ExpandedName()
	t.mu.RLock()
	sym, ok := t.symbols[key]
	t.mu.RUnlock()
	if ok {
		return sym
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if sym, ok := t.symbols[key]; ok {
		return sym
	}
	sym = Symbol(len(t.names))
	t.symbols[key] = sym
	t.names = append(t.names, name)
	return sym
}

func (t *Table) Name(sym Symbol) QName {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if sym < 0 || int(sym) >= len(t.names) {
		return QName{}
	}
	return t.names[sym]
}

func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.names)
}
