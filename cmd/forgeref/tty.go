package main

import (
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// statusColor renders doctor/status output in color on an interactive
// terminal and in plain text otherwise (e.g. piped into a file or CI log),
// mirroring the teacher's console-coloring convention in internal/obslog.
type statusColor struct {
	ok, warn, fail *color.Color
}

func newStatusColor(w io.Writer) statusColor {
	f, isFile := w.(*os.File)
	tty := isFile && term.IsTerminal(int(f.Fd()))
	c := statusColor{
		ok:   color.New(color.FgGreen),
		warn: color.New(color.FgYellow),
		fail: color.New(color.FgRed),
	}
	if !tty {
		c.ok.DisableColor()
		c.warn.DisableColor()
		c.fail.DisableColor()
	}
	return c
}

func (c statusColor) okf(w io.Writer, format string, a ...any)   { c.ok.Fprintf(w, format, a...) }
func (c statusColor) warnf(w io.Writer, format string, a ...any) { c.warn.Fprintf(w, format, a...) }
func (c statusColor) failf(w io.Writer, format string, a ...any) { c.fail.Fprintf(w, format, a...) }
