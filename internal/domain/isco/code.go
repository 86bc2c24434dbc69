// Package isco derives hierarchical ISCO-08 group codes from ESCO notations.
package isco

import (
	"errors"
	"fmt"
	"strings"
)

// Digits is the length of a unit-group (most specific) ISCO code.
const Digits = 4

// ErrInvalidNotation signals a notation without a leading digit group.
var ErrInvalidNotation = errors.New("invalid isco notation")

// Code is a canonical 4-digit ISCO unit-group code.
// Major (1), sub-major (2) and minor (3) groups are left-truncations of it.
type Code struct {
	digits string
}

// Parse derives the canonical code from a raw notation such as "5244.1" or "2654.1.7".
// The integer part before the first '.' is left-padded with '0' up to four digits,
// so "110" (a notation that lost its leading zero) becomes "0110". Longer parts
// keep their leftmost four digits.
func Parse(notation string) (Code, error) {
	raw := strings.TrimSpace(notation)
	if raw == "" {
		return Code{}, fmt.Errorf("%w: empty notation", ErrInvalidNotation)
	}

	head, _, _ := strings.Cut(raw, ".")
	if head == "" {
		return Code{}, fmt.Errorf("%w: %q has no integer part", ErrInvalidNotation, notation)
	}
	for _, r := range head {
		if r < '0' || r > '9' {
			return Code{}, fmt.Errorf("%w: %q has non-digit %q", ErrInvalidNotation, notation, r)
		}
	}

	switch {
	case len(head) > Digits:
		head = head[:Digits]
	case len(head) < Digits:
		head = strings.Repeat("0", Digits-len(head)) + head
	}
	return Code{digits: head}, nil
}

// MustParse is Parse for constant notations; it panics on error.
func MustParse(notation string) Code {
	c, err := Parse(notation)
	if err != nil {
		panic(err)
	}
	return c
}

// String returns the 4-digit code, or "" for the zero Code.
func (c Code) String() string { return c.digits }

// IsZero reports whether c carries no code.
func (c Code) IsZero() bool { return c.digits == "" }

// Level returns the n-digit group code (1..4). Out-of-range n is clamped.
func (c Code) Level(n int) string {
	if c.digits == "" {
		return ""
	}
	if n < 1 {
		n = 1
	}
	if n > Digits {
		n = Digits
	}
	return c.digits[:n]
}

// Major returns the 1-digit major group.
func (c Code) Major() string { return c.Level(1) }

// HasPrefix reports whether the code belongs to the group identified by prefix.
func (c Code) HasPrefix(prefix string) bool {
	return c.digits != "" && prefix != "" && strings.HasPrefix(c.digits, prefix)
}

// Less orders codes numerically; more general groups (lower codes) sort first.
func (c Code) Less(other Code) bool { return c.digits < other.digits }

// SameUnitGroup compares two raw codes or notations by their 4-digit prefix.
// Unparseable inputs never match.
func SameUnitGroup(a, b string) bool {
	ca, err := Parse(a)
	if err != nil {
		return false
	}
	cb, err := Parse(b)
	if err != nil {
		return false
	}
	return ca == cb
}

// MarshalText implements encoding.TextMarshaler.
func (c Code) MarshalText() ([]byte, error) { return []byte(c.digits), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Code) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*c = Code{}
		return nil
	}
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
