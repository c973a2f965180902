package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// terminal asks for confirmation on in and prints notices to out.
type terminal struct {
	in      *bufio.Reader
	out     io.Writer
	assumeY bool
}

func newTerminal(in io.Reader, out io.Writer, assumeYes bool) *terminal {
	return &terminal{in: bufio.NewReader(in), out: out, assumeY: assumeYes}
}

func (t *terminal) Confirm(_ context.Context, prompt string) bool {
	if t.assumeY {
		return true
	}
	fmt.Fprintf(t.out, "%s [y/N] ", prompt)
	line, err := t.in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "s", "si":
		return true
	}
	return false
}

func (t *terminal) Notify(msg string) {
	fmt.Fprintln(t.out, msg)
}
