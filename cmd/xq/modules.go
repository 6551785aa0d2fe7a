package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/midbel/cli"
	"github.com/midbel/xq/xquery"
)

var modulesCmd = cli.Command{
	Name:    "modules",
	Summary: "list the modules a query imports",
	Handler: &ModulesCmd{},
}

type ModulesCmd struct {
	CompileOptions
}

func (m *ModulesCmd) Run(args []string) error {
	set := flag.NewFlagSet("modules", flag.ContinueOnError)
	m.Register(set)
	if err := set.Parse(args); err != nil {
		return err
	}
	if set.NArg() == 0 {
		return fmt.Errorf("no input file given")
	}
	file := set.Arg(0)
	src, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	query, err := xquery.CompileString(string(src), m.build(file)...)
	if err != nil {
		var list xquery.ErrorList
		if errors.As(err, &list) {
			printErrors(os.Stderr, file, string(src), list)
			return errFail
		}
		return err
	}
	fmt.Fprintf(os.Stdout, "main %s: %d variable(s), %d function(s)\n",
		file, len(query.Main.Variables()), len(query.Main.Functions()))

	uris := make([]string, 0, len(query.Modules))
	for uri := range query.Modules {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	for _, uri := range uris {
		mod := query.Modules[uri]
		fmt.Fprintf(os.Stdout, "module %s at %s: %d variable(s), %d function(s)\n",
			uri, mod.Location, len(mod.Variables()), len(mod.Functions()))
	}
	return nil
}
