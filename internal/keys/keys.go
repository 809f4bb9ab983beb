// Package keys translates text into the key events a guest console expects.
//
// Codes are Linux input-event keycodes (linux/input-event-codes.h), which is
// the codeset libvirt's send-key uses for KeycodeSetLinux. The mapping assumes
// a US keyboard layout in the guest.
package keys

import (
	"fmt"
	"sort"
	"strings"
)

// Key is a Linux input-event keycode.
type Key uint32

// Keycodes used by the codec.
const (
	KeyEsc        Key = 1
	Key1          Key = 2
	Key2          Key = 3
	Key3          Key = 4
	Key4          Key = 5
	Key5          Key = 6
	Key6          Key = 7
	Key7          Key = 8
	Key8          Key = 9
	Key9          Key = 10
	Key0          Key = 11
	KeyMinus      Key = 12
	KeyEqual      Key = 13
	KeyBackspace  Key = 14
	KeyTab        Key = 15
	KeyQ          Key = 16
	KeyW          Key = 17
	KeyE          Key = 18
	KeyR          Key = 19
	KeyT          Key = 20
	KeyY          Key = 21
	KeyU          Key = 22
	KeyI          Key = 23
	KeyO          Key = 24
	KeyP          Key = 25
	KeyLeftBrace  Key = 26
	KeyRightBrace Key = 27
	KeyEnter      Key = 28
	KeyLeftCtrl   Key = 29
	KeyA          Key = 30
	KeyS          Key = 31
	KeyD          Key = 32
	KeyF          Key = 33
	KeyG          Key = 34
	KeyH          Key = 35
	KeyJ          Key = 36
	KeyK          Key = 37
	KeyL          Key = 38
	KeySemicolon  Key = 39
	KeyApostrophe Key = 40
	KeyGrave      Key = 41
	KeyLeftShift  Key = 42
	KeyBackslash  Key = 43
	KeyZ          Key = 44
	KeyX          Key = 45
	KeyC          Key = 46
	KeyV          Key = 47
	KeyB          Key = 48
	KeyN          Key = 49
	KeyM          Key = 50
	KeyComma      Key = 51
	KeyDot        Key = 52
	KeySlash      Key = 53
	KeyRightShift Key = 54
	KeyLeftAlt    Key = 56
	KeySpace      Key = 57
)

var letters = map[rune]Key{
	'a': KeyA, 'b': KeyB, 'c': KeyC, 'd': KeyD, 'e': KeyE, 'f': KeyF, 'g': KeyG,
	'h': KeyH, 'i': KeyI, 'j': KeyJ, 'k': KeyK, 'l': KeyL, 'm': KeyM, 'n': KeyN,
	'o': KeyO, 'p': KeyP, 'q': KeyQ, 'r': KeyR, 's': KeyS, 't': KeyT, 'u': KeyU,
	'v': KeyV, 'w': KeyW, 'x': KeyX, 'y': KeyY, 'z': KeyZ,
}

// unshifted maps characters typed with a single key.
var unshifted = map[rune]Key{
	'1': Key1, '2': Key2, '3': Key3, '4': Key4, '5': Key5,
	'6': Key6, '7': Key7, '8': Key8, '9': Key9, '0': Key0,
	'\n': KeyEnter, '\t': KeyTab, ' ': KeySpace,
	'-': KeyMinus, '=': KeyEqual, '[': KeyLeftBrace, ']': KeyRightBrace,
	';': KeySemicolon, '\'': KeyApostrophe, '`': KeyGrave, '\\': KeyBackslash,
	',': KeyComma, '.': KeyDot, '/': KeySlash,
}

// shifted maps characters typed with LEFTSHIFT held.
var shifted = map[rune]Key{
	'!': Key1, '@': Key2, '#': Key3, '$': Key4, '%': Key5,
	'^': Key6, '&': Key7, '*': Key8, '(': Key9, ')': Key0,
	'_': KeyMinus, '+': KeyEqual, '{': KeyLeftBrace, '}': KeyRightBrace,
	':': KeySemicolon, '"': KeyApostrophe, '~': KeyGrave, '|': KeyBackslash,
	'<': KeyComma, '>': KeyDot, '?': KeySlash,
}

// UnsupportedError reports characters that have no key sequence.
type UnsupportedError struct {
	Chars []rune
}

func (e *UnsupportedError) Error() string {
	quoted := make([]string, len(e.Chars))
	for i, r := range e.Chars {
		quoted[i] = fmt.Sprintf("%q", r)
	}
	return fmt.Sprintf("unsupported characters: %s", strings.Join(quoted, ", "))
}

// Encode returns the keys pressed together to type r.
func Encode(r rune) ([]Key, error) {
	if k, ok := letters[r]; ok {
		return []Key{k}, nil
	}
	if r >= 'A' && r <= 'Z' {
		return []Key{KeyLeftShift, letters[r+('a'-'A')]}, nil
	}
	if k, ok := unshifted[r]; ok {
		return []Key{k}, nil
	}
	if k, ok := shifted[r]; ok {
		return []Key{KeyLeftShift, k}, nil
	}
	return nil, &UnsupportedError{Chars: []rune{r}}
}

// Supported reports whether r can be encoded.
func Supported(r rune) bool {
	_, err := Encode(r)
	return err == nil
}

// Unsupported returns the distinct characters of s that cannot be encoded,
// sorted, or nil if every character is supported.
func Unsupported(s string) []rune {
	seen := make(map[rune]bool)
	var out []rune
	for _, r := range s {
		if seen[r] || Supported(r) {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// EncodeString encodes every character of s, in order.
func EncodeString(s string) ([][]Key, error) {
	if bad := Unsupported(s); len(bad) > 0 {
		return nil, &UnsupportedError{Chars: bad}
	}
	seqs := make([][]Key, 0, len(s))
	for _, r := range s {
		seq, _ := Encode(r)
		seqs = append(seqs, seq)
	}
	return seqs, nil
}

// Codes converts keys to the raw codes sent to the hypervisor.
func Codes(keys []Key) []uint32 {
	codes := make([]uint32, len(keys))
	for i, k := range keys {
		codes[i] = uint32(k)
	}
	return codes
}
