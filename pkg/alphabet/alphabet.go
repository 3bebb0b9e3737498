// Package alphabet defines the 64-symbol ordered alphabet that the
// coordinator and worker use to enumerate and compare identifier
// prefixes.
package alphabet

import "strings"

// Symbols is the ordered 64-symbol alphabet: lowercase, uppercase,
// digits, then '-' and '_'. Index order in this slice defines
// enumeration order for every prefix comparison in the system.
const Symbols = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_"

// Len is the alphabet size.
const Len = len(Symbols)

// IdentifierLength is the length of a full identifier.
const IdentifierLength = 11

// DefaultCoordinatorLength is L_c, the fixed length of a base prefix
// handed to workers as one unit of work. Invariant for a run. The
// persisted run state (pkg/store) does not record it, so a run resumed
// with a different length is not detected.
const DefaultCoordinatorLength = 8

var index [256]int8

func init() {
	for i := range index {
		index[i] = -1
	}
	for i := 0; i < Len; i++ {
		index[Symbols[i]] = int8(i)
	}
}

// Index returns the position of b in the alphabet, or -1 if b is not a
// valid symbol.
func Index(b byte) int {
	return int(index[b])
}

// At returns the symbol at position i. i must be in [0, Len).
func At(i int) byte {
	return Symbols[i]
}

// Valid reports whether every byte of s is a member of the alphabet.
func Valid(s string) bool {
	for i := 0; i < len(s); i++ {
		if Index(s[i]) < 0 {
			return false
		}
	}
	return true
}

// Compare returns -1, 0, or 1 depending on whether a sorts before,
// equal to, or after b in enumeration order. Enumeration order is
// lexicographic over alphabet index, position by position; a shorter
// string that is a prefix of a longer one sorts first.
func Compare(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		ia, ib := Index(a[i]), Index(b[i])
		if ia != ib {
			if ia < ib {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Less reports whether a sorts strictly before b in enumeration order.
func Less(a, b string) bool {
	return Compare(a, b) < 0
}

// HasPrefix reports whether s begins with prefix, using ordinary byte
// equality (prefix membership does not depend on alphabet ordering).
func HasPrefix(s, prefix string) bool {
	return strings.HasPrefix(s, prefix)
}

// Max returns whichever of a, b sorts later in enumeration order.
func Max(a, b string) string {
	if Less(a, b) {
		return b
	}
	return a
}

// Predecessor returns the string immediately before s in enumeration
// order, decrementing with borrow like subtracting one from a
// fixed-width base-64 number. ok is false if s is already minimal for
// its length (every symbol at index 0), since there is nothing before it.
func Predecessor(s string) (pred string, ok bool) {
	b := []byte(s)
	for i := len(b) - 1; i >= 0; i-- {
		idx := Index(b[i])
		if idx > 0 {
			b[i] = At(idx - 1)
			for j := i + 1; j < len(b); j++ {
				b[j] = At(Len - 1)
			}
			return string(b), true
		}
	}
	return "", false
}
