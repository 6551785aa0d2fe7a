package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/midbel/xq/xquery"
)

var (
	errorStyle   = color.New(color.FgRed, color.Bold)
	codeStyle    = color.New(color.FgYellow, color.Bold)
	fileStyle    = color.New(color.FgCyan, color.Bold)
	lineStyle    = color.New(color.FgBlue, color.Bold)
	messageStyle = color.New(color.FgRed)
)

// printErrors renders each static error with the offending source line
// and a caret under the reported column. Errors from imported modules
// carry their own location and are printed without an excerpt.
func printErrors(w io.Writer, file, src string, list xquery.ErrorList) {
	lines := strings.Split(src, "\n")
	for _, e := range list {
		fmt.Fprintf(w, "%s %s\n", errorStyle.Sprint("error:"), codeStyle.Sprint(e.Code))
		where := file
		if e.URI != "" {
			where = e.URI
		}
		if e.Line > 0 {
			fmt.Fprintf(w, "%s %s:%d:%d\n", lineStyle.Sprint(" -->"), fileStyle.Sprint(where), e.Line, e.Column)
		} else {
			fmt.Fprintf(w, "%s %s\n", lineStyle.Sprint(" -->"), fileStyle.Sprint(where))
		}
		if e.URI == "" && e.Line > 0 && e.Line <= len(lines) {
			printExcerpt(w, lines[e.Line-1], e.Line, e.Column)
		}
		fmt.Fprintf(w, "%s\n\n", messageStyle.Sprint(e.Cause))
	}
}

func printExcerpt(w io.Writer, line string, num, col int) {
	prefix := fmt.Sprintf("%d | ", num)
	fmt.Fprintf(w, "%s%s\n", lineStyle.Sprint(prefix), strings.ReplaceAll(line, "\t", " "))
	if col < 1 || col > len(line)+1 {
		return
	}
	pad := strings.Repeat(" ", len(prefix)+col-1)
	fmt.Fprintf(w, "%s%s\n", pad, messageStyle.Sprint("^"))
}
