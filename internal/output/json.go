package output

import (
	"encoding/json"
	"fmt"

	"github.com/jbweber/virtcompose/internal/status"
)

// JSONFormatter formats machines as a JSON array.
type JSONFormatter struct{}

// FormatMachines formats machines as JSON.
func (f *JSONFormatter) FormatMachines(machines []status.MachineStatus) (string, error) {
	if machines == nil {
		machines = []status.MachineStatus{}
	}

	data, err := json.MarshalIndent(machines, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal machines to JSON: %w", err)
	}

	return string(data) + "\n", nil
}
