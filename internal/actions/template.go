package actions

import (
	"fmt"
	"sort"
	"strings"

	"github.com/compose-spec/compose-go/v2/template"
)

// Expand substitutes $NAME and ${NAME} in text. $$ yields a literal $.
// Referencing a name missing from vars is an error.
func Expand(text string, vars map[string]string) (string, error) {
	missing := map[string]struct{}{}
	mapping := func(name string) (string, bool) {
		v, ok := vars[name]
		if !ok {
			missing[name] = struct{}{}
		}
		return v, ok
	}

	out, err := template.SubstituteWithOptions(text, mapping, template.WithoutLogging)
	if err != nil {
		return "", fmt.Errorf("invalid template %q: %w", text, err)
	}
	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for name := range missing {
			names = append(names, name)
		}
		sort.Strings(names)
		return "", fmt.Errorf("undefined variable %s in %q", strings.Join(names, ", "), text)
	}
	return out, nil
}
