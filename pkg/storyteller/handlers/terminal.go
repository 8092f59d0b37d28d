package handlers

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Action tells the terminal display what an event means for it.
type Action int

// Display actions.
const (
	ActionSkip Action = iota
	ActionMessage
	ActionIncrement
	ActionReset
	ActionSuccess
	ActionFailure
)

// Step is the display form of one event.
type Step struct {
	Action Action
	Text   string
}

const barWidth = 20

// Terminal renders events as a progress display: messages are printed,
// increments advance a bar and resets rewind it. Output is colored only when
// out is a terminal.
type Terminal[E any] struct {
	mu     sync.Mutex
	out    io.Writer
	total  int
	count  int
	render func(E) Step

	info *color.Color
	good *color.Color
	bad  *color.Color
	bar  *color.Color
}

// NewTerminal returns a Terminal writing to out. total sizes the bar; zero
// or less prints a plain counter instead.
func NewTerminal[E any](out io.Writer, total int, render func(E) Step) *Terminal[E] {
	t := &Terminal[E]{
		out:    out,
		total:  total,
		render: render,
		info:   color.New(color.FgCyan),
		good:   color.New(color.FgGreen, color.Bold),
		bad:    color.New(color.FgRed, color.Bold),
		bar:    color.New(color.FgYellow),
	}
	colorize := isTerminal(out)
	for _, c := range []*color.Color{t.info, t.good, t.bad, t.bar} {
		if colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return t
}

// Handle renders evt.
func (t *Terminal[E]) Handle(evt E) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	step := t.render(evt)
	var err error
	switch step.Action {
	case ActionSkip:
		return nil
	case ActionMessage:
		_, err = t.info.Fprintln(t.out, step.Text)
	case ActionIncrement:
		t.count++
		_, err = t.bar.Fprintln(t.out, t.progressLine())
	case ActionReset:
		t.count = 0
		_, err = t.bar.Fprintln(t.out, t.progressLine())
	case ActionSuccess:
		_, err = t.good.Fprintln(t.out, step.Text)
	case ActionFailure:
		_, err = t.bad.Fprintln(t.out, step.Text)
	default:
		return fmt.Errorf("unknown terminal action %d", step.Action)
	}
	if err != nil {
		return fmt.Errorf("write terminal line: %w", err)
	}
	return nil
}

// Finish prints the final counter.
func (t *Terminal[E]) Finish() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.good.Fprintf(t.out, "done (%s)\n", t.progressLine()); err != nil {
		return fmt.Errorf("write terminal line: %w", err)
	}
	return nil
}

func (t *Terminal[E]) progressLine() string {
	if t.total <= 0 {
		return fmt.Sprintf("progress: %d", t.count)
	}
	filled := t.count * barWidth / t.total
	if filled > barWidth {
		filled = barWidth
	}
	return fmt.Sprintf("[%s%s] %d/%d",
		strings.Repeat("#", filled),
		strings.Repeat("-", barWidth-filled),
		t.count,
		t.total,
	)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
