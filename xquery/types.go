package xquery

import (
	"fmt"

	"github.com/midbel/xq/intern"
)

// QName is the expanded-name value used throughout the front end; it is
// interned into compact symbols by the shared name table.
type QName = intern.QName

const (
	XmlNamespaceUri   = "http://www.w3.org/XML/1998/namespace"
	XmlnsNamespaceUri = "http://www.w3.org/2000/xmlns/"
	XsNamespaceUri    = "http://www.w3.org/2001/XMLSchema"
	XsiNamespaceUri   = "http://www.w3.org/2001/XMLSchema-instance"
	FnNamespaceUri    = "http://www.w3.org/2005/xpath-functions"
	LocalNamespaceUri = "http://www.w3.org/2005/xquery-local-functions"
)

// Occurrence is the cardinality part of a sequence type.
type Occurrence int8

const (
	One Occurrence = iota
	ZeroOrOne
	ZeroOrMore
	OneOrMore
)

func (o Occurrence) String() string {
	switch o {
	case ZeroOrOne:
		return "?"
	case ZeroOrMore:
		return "*"
	case OneOrMore:
		return "+"
	default:
		return ""
	}
}

// NodeKind discriminates kind tests in sequence types.
type NodeKind int8

const (
	KindNode NodeKind = iota
	KindElement
	KindAttribute
	KindDocument
	KindText
	KindComment
	KindInstruction
)

func (k NodeKind) String() string {
	switch k {
	case KindElement:
		return "element"
	case KindAttribute:
		return "attribute"
	case KindDocument:
		return "document-node"
	case KindText:
		return "text"
	case KindComment:
		return "comment"
	case KindInstruction:
		return "processing-instruction"
	default:
		return "node"
	}
}

// ItemType is the item part of a sequence type: an atomic type, a kind
// test with optional name and type annotation, item() or
// empty-sequence().
type ItemType struct {
	Atomic   bool
	Empty    bool
	AnyItem  bool
	Kind     NodeKind
	Name     QName // atomic type name, or node name test
	TypeName QName // type annotation of element()/attribute() tests
}

func atomicItem(name QName) ItemType {
	return ItemType{
		Atomic: true,
		Name:   name,
	}
}

func (t ItemType) String() string {
	switch {
	case t.Empty:
		return "empty-sequence()"
	case t.AnyItem:
		return "item()"
	case t.Atomic:
		return t.Name.QualifiedName()
	default:
		if t.Name.Zero() {
			return fmt.Sprintf("%s()", t.Kind)
		}
		return fmt.Sprintf("%s(%s)", t.Kind, t.Name.QualifiedName())
	}
}

// SequenceType combines an item type with an occurrence indicator.
type SequenceType struct {
	Item ItemType
	Occurrence
}

func (t SequenceType) Zero() bool {
	return t == SequenceType{}
}

func (t SequenceType) String() string {
	return t.Item.String() + t.Occurrence.String()
}

// atomicTypes lists the built-in schema types whose names double as
// single-argument constructor functions.
var atomicTypes = map[string]struct{}{
	"anyAtomicType":      {},
	"anyURI":             {},
	"base64Binary":       {},
	"boolean":            {},
	"byte":               {},
	"date":               {},
	"dateTime":           {},
	"dayTimeDuration":    {},
	"decimal":            {},
	"double":             {},
	"duration":           {},
	"float":              {},
	"gDay":               {},
	"gMonth":             {},
	"gMonthDay":          {},
	"gYear":              {},
	"gYearMonth":         {},
	"hexBinary":          {},
	"int":                {},
	"integer":            {},
	"language":           {},
	"long":               {},
	"negativeInteger":    {},
	"nonNegativeInteger": {},
	"nonPositiveInteger": {},
	"normalizedString":   {},
	"positiveInteger":    {},
	"short":              {},
	"string":             {},
	"time":               {},
	"token":              {},
	"unsignedByte":       {},
	"unsignedInt":        {},
	"unsignedLong":       {},
	"unsignedShort":      {},
	"untypedAtomic":      {},
	"yearMonthDuration":  {},
}

func isAtomicConstructor(name QName) bool {
	if name.Space != XsNamespaceUri {
		return false
	}
	_, ok := atomicTypes[name.Local]
	return ok
}

// isBuiltinTypeNamespace reports whether a type in the given namespace
// is always in scope, without a schema import.
func isBuiltinTypeNamespace(uri string) bool {
	switch uri {
	case "", XsNamespaceUri, XsiNamespaceUri, XmlNamespaceUri, FnNamespaceUri:
		return true
	default:
		return false
	}
}
