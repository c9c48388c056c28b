// Package presentation renders registry query results for the
// terminal: lipgloss tables for humans, JSON for pipelines. Nothing in
// here feeds back into the core.
package presentation

import (
	"encoding/json"
	"io"
)

// Formatter handles output formatting.
type Formatter struct {
	writer io.Writer
}

// NewFormatter creates a new formatter.
func NewFormatter(writer io.Writer) *Formatter {
	return &Formatter{
		writer: writer,
	}
}

// JSON writes v as indented JSON.
func (f *Formatter) JSON(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// Text writes a plain string followed by a newline.
func (f *Formatter) Text(s string) error {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	_, err := io.WriteString(f.writer, s)
	return err
}
