// Package alphabet holds the ordered character set used to grow candidate
// path segments one character at a time.
//
// Enumeration only ever tries characters from the alphabet, so a name that
// contains any other character can never be discovered. Unreachable reports
// which characters of a given name fall outside the set.
package alphabet

import (
	"errors"
	"fmt"
	"strings"
)

// Default is the character set used when none is configured
const Default = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-=_."

// Characters that a glob-backed search endpoint will interpret rather than match literally
const globChars = "*?[]"

var (
	ErrEmpty     = errors.New("alphabet is empty")
	ErrDuplicate = errors.New("duplicate character in alphabet")
	ErrForbidden = errors.New("character can never appear in a path segment")
)

// Alphabet is an ordered set of characters. The order is the order in which
// characters are tried at every probing level.
type Alphabet struct {
	chars []rune
	set   map[rune]struct{}
}

// New builds an alphabet from chars, keeping their order
func New(chars string) (Alphabet, error) {
	if chars == "" {
		return Alphabet{}, ErrEmpty
	}
	a := Alphabet{set: make(map[rune]struct{}, len(chars))}
	for _, c := range chars {
		if c == '/' || c == 0 {
			return Alphabet{}, fmt.Errorf("%w: %q", ErrForbidden, c)
		}
		if _, ok := a.set[c]; ok {
			return Alphabet{}, fmt.Errorf("%w: %q", ErrDuplicate, c)
		}
		a.set[c] = struct{}{}
		a.chars = append(a.chars, c)
	}
	return a, nil
}

// MustNew is New for compile-time constants; it panics on error
func MustNew(chars string) Alphabet {
	a, err := New(chars)
	if err != nil {
		panic(err)
	}
	return a
}

// Runes returns a copy of the characters in probing order
func (a Alphabet) Runes() []rune {
	return append([]rune(nil), a.chars...)
}

func (a Alphabet) Len() int {
	return len(a.chars)
}

func (a Alphabet) String() string {
	return string(a.chars)
}

// Contains reports whether r is part of the alphabet
func (a Alphabet) Contains(r rune) bool {
	_, ok := a.set[r]
	return ok
}

// Suspicious returns the glob-significant characters present in the alphabet.
// They are legal but a wildcard search may not treat them literally.
func (a Alphabet) Suspicious() []rune {
	var s []rune
	for _, c := range a.chars {
		if strings.ContainsRune(globChars, c) {
			s = append(s, c)
		}
	}
	return s
}

// Unreachable returns the distinct characters of name that are not in the
// alphabet, in order of first appearance. A non-empty result means the name
// cannot be found by enumeration.
func (a Alphabet) Unreachable(name string) []rune {
	var out []rune
	seen := make(map[rune]struct{})
	for _, c := range name {
		if a.Contains(c) {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
