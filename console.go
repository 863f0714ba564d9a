package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/hypermedia-lab/labclient/stats"
)

// consolePrinter writes human-readable command output.
type consolePrinter struct {
	out     io.Writer
	header  *color.Color
	failure *color.Color
	note    *color.Color
}

func newConsolePrinter(out io.Writer, noColor bool) *consolePrinter {
	c := &consolePrinter{
		out:     out,
		header:  color.New(color.FgCyan, color.Bold),
		failure: color.New(color.FgRed),
		note:    color.New(color.FgYellow),
	}
	if noColor {
		c.header.DisableColor()
		c.failure.DisableColor()
		c.note.DisableColor()
	}
	return c
}

func (c *consolePrinter) Snapshot(s *stats.Snapshot, columns []string) {
	table := strings.SplitN(s.Table(columns...), "\n", 2)
	c.header.Fprintln(c.out, table[0])
	if len(table) > 1 {
		fmt.Fprint(c.out, table[1])
	}
}

func (c *consolePrinter) Error(err error) {
	for _, line := range strings.Split(err.Error(), "\n") {
		c.failure.Fprintf(c.out, "  %s\n", line)
	}
}

func (c *consolePrinter) Notifications(msgs []string) {
	if len(msgs) == 0 {
		return
	}
	c.note.Fprintln(c.out, "Error notifications:")
	for _, m := range msgs {
		c.note.Fprintf(c.out, "  %s\n", m)
	}
}

func (c *consolePrinter) FilterDescription(f columnFilter) {
	if !f.IsDefined() {
		return
	}
	fmt.Fprintln(c.out, "Some columns will be hidden based on the filter criteria:")
	if f.MustMatch.IsDefined() {
		fmt.Fprintf(c.out, "  hide any not matching %s\n", &f.MustMatch)
	}
	if f.MustNotMatch.IsDefined() {
		fmt.Fprintf(c.out, "  hide any matching %s\n", &f.MustNotMatch)
	}
	fmt.Fprintln(c.out)
}
