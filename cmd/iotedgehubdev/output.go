package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// printer writes user-facing messages. Color is dropped automatically when
// the output is not a terminal.
type printer struct {
	out io.Writer
	err io.Writer
}

var (
	successColor = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
	hintColor    = color.New(color.FgCyan)
)

func (p printer) success(format string, args ...any) {
	successColor.Fprintf(p.out, format+"\n", args...)
}

func (p printer) info(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p printer) hint(format string, args ...any) {
	hintColor.Fprintf(p.out, format+"\n", args...)
}

func (p printer) warning(format string, args ...any) {
	warningColor.Fprintf(p.err, "WARNING: "+format+"\n", args...)
}

func (p printer) error(err error) {
	errorColor.Fprintf(p.err, "ERROR: %v\n", err)
}
