// Package output renders CLI command results as tables, JSON or YAML.
package output

import (
	"fmt"
	"io"
	"strings"
)

// Format selects how a command result is rendered.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses the value of an --output flag.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "table", "":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid output format: %q (valid: table, json, yaml)", s)
	}
}

func (f Format) String() string {
	return string(f)
}

// Printer renders values to a writer in one configured format.
type Printer struct {
	out    io.Writer
	format Format
}

// NewPrinter creates a Printer writing to out in the given format.
func NewPrinter(out io.Writer, format Format) *Printer {
	return &Printer{out: out, format: format}
}

// Print renders v. Table format requires v to implement TableRenderer;
// values that do not are rendered as JSON instead.
func (p *Printer) Print(v any) error {
	switch p.format {
	case FormatTable:
		if renderer, ok := v.(TableRenderer); ok {
			return PrintTable(p.out, renderer)
		}
		return PrintJSON(p.out, v)
	case FormatJSON:
		return PrintJSON(p.out, v)
	case FormatYAML:
		return PrintYAML(p.out, v)
	default:
		return fmt.Errorf("unknown format: %s", p.format)
	}
}

// Printf prints a formatted message outside the structured result. It
// is suppressed for machine-readable formats so JSON and YAML output
// stay parseable.
func (p *Printer) Printf(format string, args ...any) {
	if p.format != FormatTable {
		return
	}
	_, _ = fmt.Fprintf(p.out, format, args...)
}
