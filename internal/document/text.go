package document

import (
	"unicode"
	"unicode/utf8"
)

// IndexFold finds the first case-insensitive occurrence of term in text. The
// returned byte offsets [start, end) always fall on rune boundaries of text,
// whatever the case mapping does to encoded lengths. It returns -1, -1 when
// term does not occur; an empty term matches at 0.
func IndexFold(text, term string) (int, int) {
	if term == "" {
		return 0, 0
	}
	for i := 0; i < len(text); {
		if n, ok := prefixFold(text[i:], term); ok {
			return i, i + n
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	return -1, -1
}

// ContainsFold reports whether term occurs in text, ignoring case.
func ContainsFold(text, term string) bool {
	start, _ := IndexFold(text, term)
	return start >= 0
}

// prefixFold returns how many bytes of text match term rune by rune.
func prefixFold(text, term string) (int, bool) {
	n := 0
	for _, want := range term {
		if n >= len(text) {
			return 0, false
		}
		got, size := utf8.DecodeRuneInString(text[n:])
		if !equalFoldRune(got, want) {
			return 0, false
		}
		n += size
	}
	return n, true
}

func equalFoldRune(a, b rune) bool {
	if a == b {
		return true
	}
	for f := unicode.SimpleFold(a); f != a; f = unicode.SimpleFold(f) {
		if f == b {
			return true
		}
	}
	return false
}
