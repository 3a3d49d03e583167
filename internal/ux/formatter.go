// Package ux renders blitz data for the terminal: machine formats (JSON,
// YAML) for scripting and lipgloss-styled views of steps, trees and passes.
package ux

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Formatter writes a value in one output format.
type Formatter interface {
	Format(data interface{}) error
}

// FormatterOptions contains configuration for formatters
type FormatterOptions struct {
	// Writer is where output is written (defaults to os.Stdout)
	Writer io.Writer
	// NoColor disables styling for the table formatter
	NoColor bool
	// Compact disables indentation for JSON and YAML
	Compact bool
}

// Formats lists the names NewFormatter accepts.
var Formats = []string{"table", "json", "yaml"}

// NewFormatter creates a formatter for format. "text" and "" mean table.
func NewFormatter(format string, opts *FormatterOptions) (Formatter, error) {
	if opts == nil {
		opts = &FormatterOptions{}
	}
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}

	switch format {
	case "json":
		return &JSONFormatter{opts: opts}, nil
	case "yaml":
		return &YAMLFormatter{opts: opts}, nil
	case "table", "text", "":
		return &TableFormatter{opts: opts, styles: NewStyles(!opts.NoColor)}, nil
	default:
		return nil, fmt.Errorf("unknown format: %s (supported: table, json, yaml)", format)
	}
}

// JSONFormatter formats output as JSON
type JSONFormatter struct {
	opts *FormatterOptions
}

// Format writes data as JSON
func (f *JSONFormatter) Format(data interface{}) error {
	encoder := json.NewEncoder(f.opts.Writer)
	if !f.opts.Compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// YAMLFormatter formats output as YAML
type YAMLFormatter struct {
	opts *FormatterOptions
}

// Format writes data as YAML
func (f *YAMLFormatter) Format(data interface{}) error {
	encoder := yaml.NewEncoder(f.opts.Writer)
	if !f.opts.Compact {
		encoder.SetIndent(2)
	}
	defer encoder.Close()
	return encoder.Encode(data)
}

// Renderer is implemented by values with a styled terminal view.
type Renderer interface {
	Render(s Styles) string
}

// TableFormatter writes the styled view of a Renderer, or the String of a
// fmt.Stringer.
type TableFormatter struct {
	opts   *FormatterOptions
	styles Styles
}

// Format writes data as styled text.
func (f *TableFormatter) Format(data interface{}) error {
	var out string
	switch v := data.(type) {
	case Renderer:
		out = v.Render(f.styles)
	case string:
		out = v
	case fmt.Stringer:
		out = v.String()
	default:
		return fmt.Errorf("table format is not available for %T; use --format json or yaml", data)
	}
	_, err := fmt.Fprintln(f.opts.Writer, out)
	return err
}

var (
	_ Formatter = (*JSONFormatter)(nil)
	_ Formatter = (*YAMLFormatter)(nil)
	_ Formatter = (*TableFormatter)(nil)
)
