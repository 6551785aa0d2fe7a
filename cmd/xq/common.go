package main

import (
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/midbel/xq/xquery"
)

// CompileOptions are the flags shared by every command that compiles a
// query before doing its real work.
type CompileOptions struct {
	Schema     bool
	External   bool
	BaseURI    string
	Namespaces map[string]string
}

func (o *CompileOptions) Register(set *flag.FlagSet) {
	set.BoolVar(&o.Schema, "schema", false, "enable schema awareness")
	set.BoolVar(&o.External, "external", false, "allow external function declarations")
	set.StringVar(&o.BaseURI, "base-uri", "", "static base uri")
	set.Func("ns", "prefix=uri namespace binding", func(v string) error {
		prefix, uri, ok := strings.Cut(v, "=")
		if !ok {
			return fmt.Errorf("invalid namespace binding %q", v)
		}
		if o.Namespaces == nil {
			o.Namespaces = make(map[string]string)
		}
		o.Namespaces[prefix] = uri
		return nil
	})
}

func (o CompileOptions) build(file string) []xquery.Option {
	options := []xquery.Option{
		xquery.WithLoader(fileLoader{base: filepath.Dir(file)}),
	}
	if o.Schema {
		options = append(options, xquery.WithSchemaAware())
	}
	if o.External {
		options = append(options, xquery.WithExternalFunctions())
	}
	if o.BaseURI != "" {
		options = append(options, xquery.WithBaseURI(o.BaseURI))
	}
	for prefix, uri := range o.Namespaces {
		options = append(options, xquery.WithNamespace(prefix, uri))
	}
	return options
}

// fileLoader resolves module imports against the filesystem: the at
// locations relative to the importing file first, then the import uri
// itself when it points to a local path.
type fileLoader struct {
	base string
}

func (l fileLoader) LoadModule(uri string, locations []string) (io.ReadCloser, string, error) {
	var candidates []string
	for _, loc := range locations {
		if !filepath.IsAbs(loc) {
			loc = filepath.Join(l.base, loc)
		}
		candidates = append(candidates, loc)
	}
	if len(candidates) == 0 {
		if u, err := url.Parse(uri); err == nil && (u.Scheme == "" || u.Scheme == "file") && u.Path != "" {
			path := u.Path
			if !filepath.IsAbs(path) {
				path = filepath.Join(l.base, path)
			}
			candidates = append(candidates, path)
		}
	}
	for _, c := range candidates {
		if f, err := os.Open(c); err == nil {
			return f, c, nil
		}
	}
	return nil, "", fmt.Errorf("no readable location for %s", uri)
}
