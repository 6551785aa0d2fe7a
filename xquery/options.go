package xquery

import (
	"github.com/midbel/xq/intern"
)

type config struct {
	namespaces    map[string]string
	collations    []string
	schemaAware   bool
	allowExternal bool
	baseURI       string
	loader        Loader
	reporter      Reporter
	tracer        Tracer
	names         *intern.Table
}

func defaultConfig() config {
	return config{
		namespaces: make(map[string]string),
	}
}

// Option customizes a compilation.
type Option func(*config)

// WithNamespace pre-binds a namespace prefix, as if the query prolog
// had declared it. A prolog declaration of the same prefix overrides
// it.
func WithNamespace(prefix, uri string) Option {
	return func(c *config) {
		c.namespaces[prefix] = uri
	}
}

// WithCollation registers an extra collation URI accepted by order-by
// clauses and the default collation declaration.
func WithCollation(uri string) Option {
	return func(c *config) {
		c.collations = append(c.collations, uri)
	}
}

// WithSchemaAware enables schema imports and validate expressions.
func WithSchemaAware() Option {
	return func(c *config) {
		c.schemaAware = true
	}
}

// WithExternalFunctions allows external function declarations; without
// it a declare function ... external is a static error.
func WithExternalFunctions() Option {
	return func(c *config) {
		c.allowExternal = true
	}
}

// WithBaseURI sets the static base URI used when the prolog does not
// declare one.
func WithBaseURI(uri string) Option {
	return func(c *config) {
		c.baseURI = uri
	}
}

// WithLoader installs the resolver used for module imports. Without a
// loader every import is a static error.
func WithLoader(loader Loader) Option {
	return func(c *config) {
		c.loader = loader
	}
}

// WithReporter streams errors and warnings as they are found, on top of
// the final error list.
func WithReporter(rep Reporter) Option {
	return func(c *config) {
		c.reporter = rep
	}
}

// WithTracer enables parser tracing.
func WithTracer(tracer Tracer) Option {
	return func(c *config) {
		c.tracer = tracer
	}
}

// WithNames shares a symbol table between compilations so queries
// compiled separately agree on interned names.
func WithNames(names *intern.Table) Option {
	return func(c *config) {
		c.names = names
	}
}
