// Package output renders machine status as a table, YAML, or JSON.
package output

import (
	"fmt"

	"github.com/jbweber/virtcompose/internal/status"
)

// Format names an output format for `ps`.
type Format string

const (
	FormatTable Format = "table" // Aligned columns
	FormatYAML  Format = "yaml"  // One document per machine
	FormatJSON  Format = "json"  // A single array
)

// Formatter renders a machine listing.
type Formatter interface {
	FormatMachines(machines []status.MachineStatus) (string, error)
}

// Options selects the format. NoHeaders only affects tables.
type Options struct {
	Format    Format
	NoHeaders bool
}

// NewFormatter returns the Formatter for opts.Format. An empty format
// means a table.
func NewFormatter(opts Options) (Formatter, error) {
	switch opts.Format {
	case FormatTable, "":
		return &TableFormatter{NoHeaders: opts.NoHeaders}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, yaml, json)", opts.Format)
	}
}

// ValidateFormat checks a --output flag value.
func ValidateFormat(format string) error {
	switch Format(format) {
	case FormatTable, FormatYAML, FormatJSON:
		return nil
	default:
		return fmt.Errorf("invalid format: %s (valid formats: table, yaml, json)", format)
	}
}
