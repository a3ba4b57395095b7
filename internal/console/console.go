// Package console is the terminal front end of a setup run.
package console

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

const barWidth = 30

// Console implements setup.Dialogs on a terminal.
type Console struct {
	title     string
	in        *bufio.Reader
	out       io.Writer
	assumeYes bool

	mu          sync.Mutex
	progressing bool
}

// New returns a Console reading answers from in and writing to out. With
// assumeYes the confirmation is answered yes without reading and the
// restart question is answered no.
func New(title string, in io.Reader, out io.Writer, assumeYes bool) *Console {
	return &Console{
		title:     title,
		in:        bufio.NewReader(in),
		out:       out,
		assumeYes: assumeYes,
	}
}

// Confirm prints message and waits for a yes/no answer. Anything but y or
// yes, including end of input, is no.
func (c *Console) Confirm(message string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endProgress()
	c.frame(message)
	if c.assumeYes {
		fmt.Fprintln(c.out, "Proceed? [y/N]: y (assumed)")
		return true
	}
	return c.ask("Proceed? [y/N]: ")
}

// AskRestart prints the summary and asks whether to restart now.
func (c *Console) AskRestart(summary string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endProgress()
	c.frame(summary)
	if c.assumeYes {
		return false
	}
	return c.ask("Restart now? [y/N]: ")
}

// Alert prints a framed message.
func (c *Console) Alert(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endProgress()
	c.frame(message)
}

// Notify prints a one-line message.
func (c *Console) Notify(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endProgress()
	fmt.Fprintf(c.out, "[%s] %s\n", c.title, message)
}

// Progress redraws the progress bar in place.
func (c *Console) Progress(percent int, label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * barWidth / 100
	fmt.Fprintf(c.out, "\r\033[K[%s%s] %3d%% %s",
		strings.Repeat("#", filled), strings.Repeat(" ", barWidth-filled), percent, label)
	c.progressing = true
	if percent == 100 {
		c.endProgress()
	}
}

// endProgress moves past an in-place progress line.
func (c *Console) endProgress() {
	if c.progressing {
		fmt.Fprintln(c.out)
		c.progressing = false
	}
}

func (c *Console) frame(message string) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(c.out, "%s\n%s\n%s\n%s\n%s\n", rule, c.title, rule, message, rule)
}

func (c *Console) ask(prompt string) bool {
	fmt.Fprint(c.out, prompt)
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(c.out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
