package actions

import (
	"fmt"
	"strings"
)

// UnsupportedCharactersError lists every character in a run's typed text
// that has no key encoding. No action runs when it is returned.
type UnsupportedCharactersError struct {
	Chars []rune
}

func (e *UnsupportedCharactersError) Error() string {
	quoted := make([]string, len(e.Chars))
	for i, r := range e.Chars {
		quoted[i] = fmt.Sprintf("%q", r)
	}
	return "cannot type unsupported characters: " + strings.Join(quoted, ", ")
}
