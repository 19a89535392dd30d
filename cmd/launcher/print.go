package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// exitError ends the launcher with a specific exit code after its message was already printed.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func printSuccess(w io.Writer, format string, a ...any) {
	green.Fprintf(w, "✓ %s\n", fmt.Sprintf(format, a...))
}

func printWarning(w io.Writer, format string, a ...any) {
	yellow.Fprintf(w, "%s\n", fmt.Sprintf(format, a...))
}

func printStep(w io.Writer, format string, a ...any) {
	cyan.Fprintf(w, "→ %s\n", fmt.Sprintf(format, a...))
}

func printError(err error) {
	red.Fprintf(os.Stderr, "Error: ")
	fmt.Fprintln(os.Stderr, err)
}
