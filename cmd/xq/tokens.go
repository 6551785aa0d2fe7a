package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/midbel/cli"
	"github.com/midbel/xq/xquery"
)

var tokensCmd = cli.Command{
	Name:    "tokens",
	Summary: "print the token stream of a module",
	Handler: &TokensCmd{},
}

type TokensCmd struct {
	Positions bool
}

func (t *TokensCmd) Run(args []string) error {
	set := flag.NewFlagSet("tokens", flag.ContinueOnError)
	set.BoolVar(&t.Positions, "positions", false, "print token positions")
	if err := set.Parse(args); err != nil {
		return err
	}
	if set.NArg() == 0 {
		return fmt.Errorf("no input file given")
	}
	src, err := os.Open(set.Arg(0))
	if err != nil {
		return err
	}
	defer src.Close()

	scan := xquery.Scan(src)
	for {
		tok := scan.Scan()
		if tok.Type == xquery.EOF {
			break
		}
		if t.Positions {
			fmt.Fprintf(os.Stdout, "%s %s\n", tok.Position, tok)
		} else {
			fmt.Fprintln(os.Stdout, tok)
		}
		if tok.Type == xquery.Invalid {
			return errFail
		}
	}
	return nil
}
