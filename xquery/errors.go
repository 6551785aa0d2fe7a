package xquery

import (
	"errors"
	"fmt"
	"strings"
)

// Static error codes from the XQuery specification. The parser tags
// every error it raises with one of these.
const (
	CodeSyntax            = "XPST0003"
	CodeUndefinedRef      = "XPST0008"
	CodeUndefinedFunction = "XPST0017"
	CodeUndeclaredPrefix  = "XPST0081"
	CodeBadVersion        = "XQST0031"
	CodeDupBaseUri        = "XQST0032"
	CodeDupPrefix         = "XQST0033"
	CodeDupFunction       = "XQST0034"
	CodeTypeNotImported   = "XQST0036"
	CodeDupCollation      = "XQST0038"
	CodeDupParam          = "XQST0039"
	CodeReservedFuncNS    = "XQST0045"
	CodeDupModuleImport   = "XQST0047"
	CodeDeclOutsideModule = "XQST0048"
	CodeDupVariable       = "XQST0049"
	CodeVariableCycle     = "XQST0054"
	CodeDupCopyNS         = "XQST0055"
	CodeSchemaImport      = "XQST0057"
	CodeDupSchemaImport   = "XQST0058"
	CodeModuleNotFound    = "XQST0059"
	CodeFunctionNoNS      = "XQST0060"
	CodeDupOrdering       = "XQST0065"
	CodeDupDefaultNS      = "XQST0066"
	CodeDupConstruction   = "XQST0067"
	CodeDupBoundarySpace  = "XQST0068"
	CodeDupDefaultOrder   = "XQST0069"
	CodeProtectedPrefix   = "XQST0070"
	CodeDupNamespaceAttr  = "XQST0071"
	CodeModuleCycle       = "XQST0073"
	CodeValidateNoSchema  = "XQST0075"
	CodeUnknownCollation  = "XQST0076"
	CodeEmptyModuleURI    = "XQST0088"
	CodeSelfImport        = "XQST0093"
)

// Error is a static error: a specification code, a human readable
// cause, the offending source snippet and its location. The reported
// flag keeps the single reporting choke point from emitting the same
// error twice as it unwinds through nested parsing calls.
type Error struct {
	Code  string
	Cause string
	Expr  string
	URI   string
	Position

	reported bool
}

func (e *Error) Error() string {
	var str strings.Builder
	fmt.Fprintf(&str, "[%s]", e.Code)
	if e.Expr != "" {
		fmt.Fprintf(&str, " %s:", e.Expr)
	}
	fmt.Fprintf(&str, " %s", e.Cause)
	if e.Line > 0 {
		fmt.Fprintf(&str, " at %s", e.Position)
	}
	if e.URI != "" {
		fmt.Fprintf(&str, " (%s)", e.URI)
	}
	return str.String()
}

func (e *Error) Is(other error) bool {
	x, ok := other.(*Error)
	return ok && x.Code == e.Code
}

func staticError(code, cause string, pos Position) *Error {
	return &Error{
		Code:     code,
		Cause:    cause,
		Position: pos,
	}
}

func syntaxError(expr, cause string, pos Position) *Error {
	return &Error{
		Code:     CodeSyntax,
		Expr:     expr,
		Cause:    cause,
		Position: pos,
	}
}

// withPos attaches a location to a coded error raised by a component
// that had no position at hand.
func withPos(err error, pos Position) error {
	var e *Error
	if errors.As(err, &e) && e.Line == 0 {
		e.Position = pos
	}
	return err
}

// ErrorList collects every static error recorded while compiling a
// module graph. A compilation with a non-empty list never produces a
// usable expression tree.
type ErrorList []*Error

func (e ErrorList) Error() string {
	switch len(e) {
	case 0:
		return "no error"
	case 1:
		return e[0].Error()
	default:
		var str strings.Builder
		fmt.Fprintf(&str, "%d static errors", len(e))
		for i := range e {
			str.WriteString("\n\t")
			str.WriteString(e[i].Error())
		}
		return str.String()
	}
}

func (e ErrorList) Unwrap() []error {
	all := make([]error, len(e))
	for i := range e {
		all[i] = e[i]
	}
	return all
}

// Reporter receives errors and warnings as they are recorded. The
// default reporter discards everything; embedders install their own
// through WithReporter.
type Reporter interface {
	FatalError(error)
	Warning(string)
}

type discardReporter struct{}

func (discardReporter) FatalError(error) {}
func (discardReporter) Warning(string)   {}

// errorSink is the single choke point all errors funnel through. It
// marks errors as reported so nesting recursive-descent calls cannot
// report them again while unwinding.
type errorSink struct {
	errors   ErrorList
	reporter Reporter
}

func newErrorSink(rep Reporter) *errorSink {
	if rep == nil {
		rep = discardReporter{}
	}
	return &errorSink{
		reporter: rep,
	}
}

func (s *errorSink) report(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		e = &Error{
			Code:  CodeSyntax,
			Cause: err.Error(),
		}
	}
	if e.reported {
		return e
	}
	e.reported = true
	s.errors = append(s.errors, e)
	s.reporter.FatalError(e)
	return e
}

func (s *errorSink) warn(msg string) {
	s.reporter.Warning(msg)
}

func (s *errorSink) count() int {
	return len(s.errors)
}

func (s *errorSink) err() error {
	if len(s.errors) == 0 {
		return nil
	}
	return s.errors
}
