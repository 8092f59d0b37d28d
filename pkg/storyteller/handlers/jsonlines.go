package handlers

import (
	"fmt"
	"io"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Finished is the trailer written (or published) when an event stream ends.
type Finished struct {
	Event   string `json:"event"`
	Success bool   `json:"success"`
	Events  int64  `json:"events"`
}

func finished(events int64) Finished {
	return Finished{Event: "program-finished", Success: true, Events: events}
}

// JSONLines writes one JSON object per event followed by a program-finished
// trailer on Finish.
type JSONLines[E any] struct {
	mu     sync.Mutex
	out    io.Writer
	events int64
}

// NewJSONLines returns a JSONLines handler writing to out.
func NewJSONLines[E any](out io.Writer) *JSONLines[E] {
	return &JSONLines[E]{out: out}
}

// Handle encodes evt on its own line.
func (h *JSONLines[E]) Handle(evt E) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.writeLine(evt); err != nil {
		return err
	}
	h.events++
	return nil
}

// Finish writes the trailer line.
func (h *JSONLines[E]) Finish() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.writeLine(finished(h.events))
}

func (h *JSONLines[E]) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode json line: %w", err)
	}
	data = append(data, '\n')
	if _, err := h.out.Write(data); err != nil {
		return fmt.Errorf("write json line: %w", err)
	}
	return nil
}
