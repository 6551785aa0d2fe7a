package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/midbel/cli"
	"github.com/midbel/xq/xquery"
)

var checkCmd = cli.Command{
	Name:    "check",
	Summary: "compile modules and report static errors",
	Handler: &CheckCmd{},
}

type CheckCmd struct {
	Quiet bool
	CompileOptions
}

func (c *CheckCmd) Run(args []string) error {
	set := flag.NewFlagSet("check", flag.ContinueOnError)
	set.BoolVar(&c.Quiet, "quiet", false, "suppress error listing - exit status only")
	c.Register(set)
	if err := set.Parse(args); err != nil {
		return err
	}
	if set.NArg() == 0 {
		return fmt.Errorf("no input file given")
	}
	failed := false
	for _, file := range set.Args() {
		if err := c.checkFile(file); err != nil {
			failed = true
		}
	}
	if failed {
		return errFail
	}
	return nil
}

func (c *CheckCmd) checkFile(file string) error {
	src, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	_, err = xquery.CompileString(string(src), c.build(file)...)
	if err == nil {
		if !c.Quiet {
			fmt.Fprintf(os.Stdout, "%s: ok\n", file)
		}
		return nil
	}
	var list xquery.ErrorList
	if !errors.As(err, &list) {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	if !c.Quiet {
		printErrors(os.Stderr, file, string(src), list)
		fmt.Fprintf(os.Stderr, "%s: %d error(s)\n", file, len(list))
	}
	return err
}
