// Package codec parses scanned or typed payloads into canonical person
// identifiers.  It is pure: the same function serves the camera path and the
// manual-search path.
package codec

import (
	"errors"
	"strings"
)

// ErrMalformed reports a payload that does not carry a valid identifier.
var ErrMalformed = errors.New("malformed payload")

// IdentifierLen is the exact number of digits in a valid identifier.
const IdentifierLen = 11

// Parse splits a payload of the form "IDENTIFIER|NAME" (split on the first
// separator only) or a bare "IDENTIFIER" into a normalized identifier and an
// optional display name.  The name is trimmed; the identifier is normalized
// and validated.  A bare payload yields an empty name — the caller resolves
// the name from the roster.
func Parse(raw string) (identifier, name string, err error) {
	if id, rest, found := strings.Cut(raw, "|"); found {
		identifier = Normalize(id)
		name = strings.TrimSpace(rest)
	} else {
		identifier = Normalize(raw)
	}

	if !Valid(identifier) {
		return "", "", ErrMalformed
	}
	return identifier, name, nil
}

// Normalize strips the accepted formatting characters (".", "-" and spaces)
// from an identifier.  Any other non-digit character is left in place and
// will fail validation.
func Normalize(id string) string {
	r := strings.NewReplacer(".", "", "-", "", " ", "")
	return strings.TrimSpace(r.Replace(id))
}

// Valid reports whether id is exactly IdentifierLen numeric characters.
func Valid(id string) bool {
	if len(id) != IdentifierLen {
		return false
	}
	for _, c := range id {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Numeric reports whether the term normalizes to digits only.  Used by the
// search path to decide whether a term should also be matched against
// identifiers.
func Numeric(term string) bool {
	n := Normalize(term)
	if n == "" {
		return false
	}
	for _, c := range n {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
