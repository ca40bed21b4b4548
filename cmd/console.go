/*
 *
 * webdriver-launcher - configures and launches WebDriver sessions
 * Copyright (C) 2021 Load Impact
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as
 * published by the Free Software Foundation, either version 3 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// console syncs writes to stdout and stderr and, on a terminal,
// colours the output.
type console struct {
	isTTY          bool
	outMx          *sync.Mutex
	stdout, stderr *consoleWriter
	theme          *theme
}

type theme struct {
	foreground *color.Color
	success    *color.Color
	failure    *color.Color
}

func newConsole(stdout, stderr io.Writer, colorize bool, termType string) *console {
	outMx := &sync.Mutex{}
	outCW := newConsoleWriter(stdout, outMx, termType, colorize)
	errCW := newConsoleWriter(stderr, outMx, termType, colorize)

	c := &console{
		isTTY:  outCW.isTTY && errCW.isTTY,
		outMx:  outMx,
		stdout: outCW,
		stderr: errCW,
	}
	if outCW.isTTY && colorize {
		c.theme = &theme{
			foreground: newColor(color.FgCyan),
			success:    newColor(color.FgGreen),
			failure:    newColor(color.FgRed),
		}
	}

	return c
}

func (c *console) printf(format string, a ...any) {
	_, _ = fmt.Fprintf(c.stdout, format, a...)
}

// applyTheme colours s with the foreground colour when themes are on.
func (c *console) applyTheme(s string) string {
	if c.theme == nil {
		return s
	}
	return c.theme.foreground.Sprint(s)
}

func (c *console) success(s string) string {
	if c.theme == nil {
		return s
	}
	return c.theme.success.Sprint(s)
}

func (c *console) failure(s string) string {
	if c.theme == nil {
		return s
	}
	return c.theme.failure.Sprint(s)
}

// A writer that syncs writes with a mutex and, if the output is a TTY,
// clears before newlines.
type consoleWriter struct {
	io.Writer
	isTTY bool
	mutex *sync.Mutex
}

func newConsoleWriter(out io.Writer, mx *sync.Mutex, termType string, colorize bool) *consoleWriter {
	f, ok := out.(*os.File)
	isTTY := ok && termType != "dumb" && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))

	w := out
	switch {
	case !colorize:
		w = colorable.NewNonColorable(out)
	case ok:
		w = colorable.NewColorable(f)
	}

	return &consoleWriter{Writer: w, isTTY: isTTY, mutex: mx}
}

func (w *consoleWriter) Write(p []byte) (n int, err error) {
	origLen := len(p)
	if w.isTTY {
		// Erase till the end of line with each new line.
		p = bytes.ReplaceAll(p, []byte{'\n'}, []byte{'\x1b', '[', '0', 'K', '\n'})
	}

	w.mutex.Lock()
	n, err = w.Writer.Write(p)
	w.mutex.Unlock()

	if err != nil && n < origLen {
		return n, err
	}
	return origLen, err
}

func newColor(attributes ...color.Attribute) *color.Color {
	c := color.New(attributes...)
	c.EnableColor()
	return c
}
