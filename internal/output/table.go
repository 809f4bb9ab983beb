package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	units "github.com/docker/go-units"

	"github.com/jbweber/virtcompose/internal/status"
)

// TableFormatter formats machines as a human-readable table.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// FormatMachines formats machines as a table.
func (f *TableFormatter) FormatMachines(machines []status.MachineStatus) (string, error) {
	if len(machines) == 0 {
		return "No machines found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tSTATE\tIMAGE\tOS\tVCPUS\tMEMORY\tADDRESS")
	}

	for _, m := range machines {
		state := string(m.State)
		if m.Detail != "" && m.Detail != state {
			state = fmt.Sprintf("%s (%s)", state, m.Detail)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			m.Name, state, orDash(m.Image), orDash(m.OS), m.VCPUs, formatMemory(m.MemoryMiB), orDash(m.Address))
	}

	_ = w.Flush()
	return buf.String(), nil
}

// formatMemory renders MiB as a binary size, e.g. "2GiB".
func formatMemory(mib int) string {
	if mib <= 0 {
		return "-"
	}
	return units.BytesSize(float64(mib) * units.MiB)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
