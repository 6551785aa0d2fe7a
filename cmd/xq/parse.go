package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/midbel/cli"
	"github.com/midbel/xq/xquery"
)

var parseCmd = cli.Command{
	Name:    "parse",
	Summary: "compile a module and print its expression tree",
	Handler: &ParseCmd{},
}

type ParseCmd struct {
	Globals bool
	Trace   bool
	CompileOptions
}

func (p *ParseCmd) Run(args []string) error {
	set := flag.NewFlagSet("parse", flag.ContinueOnError)
	set.BoolVar(&p.Globals, "globals", false, "list global variables with their slots")
	set.BoolVar(&p.Trace, "trace", false, "trace parser rules to stderr")
	p.Register(set)
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
	options := p.build(file)
	if p.Trace {
		options = append(options, xquery.WithTracer(xquery.TraceStderr()))
	}
	query, err := xquery.CompileString(string(src), options...)
	if err != nil {
		var list xquery.ErrorList
		if errors.As(err, &list) {
			printErrors(os.Stderr, file, string(src), list)
			return errFail
		}
		return err
	}
	fmt.Fprintln(os.Stdout, xquery.Debug(query.Body))
	if p.Globals {
		for _, decl := range query.Globals {
			fmt.Fprintf(os.Stdout, "$%s slot=%d", decl.Name, decl.Slot)
			if decl.External {
				fmt.Fprint(os.Stdout, " external")
			}
			fmt.Fprintln(os.Stdout)
		}
	}
	return nil
}
