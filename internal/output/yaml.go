package output

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/virtcompose/internal/status"
)

// YAMLFormatter formats machines as a YAML stream.
type YAMLFormatter struct{}

// FormatMachines formats machines as YAML documents separated by ---.
func (f *YAMLFormatter) FormatMachines(machines []status.MachineStatus) (string, error) {
	var buf bytes.Buffer

	for i, m := range machines {
		data, err := yaml.Marshal(m)
		if err != nil {
			return "", fmt.Errorf("failed to marshal machine %s to YAML: %w", m.Name, err)
		}

		// Add document separator between machines (but not before the first one)
		if i > 0 {
			buf.WriteString("---\n")
		}

		buf.Write(data)
	}

	return buf.String(), nil
}
