package aws

import (
	"strings"
	"unicode"
)

// containsGroup reports whether sgID is one of groups. Comparison is exact.
func containsGroup(groups []string, sgID string) bool {
	for _, g := range groups {
		if g == sgID {
			return true
		}
	}
	return false
}

// tokenMatch reports whether sgID is one of the comma- or space-separated
// tokens in value. A substring of a longer id never matches.
func tokenMatch(value, sgID string) bool {
	tokens := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	for _, tok := range tokens {
		if tok == sgID {
			return true
		}
	}
	return false
}

// equalsAny reports whether sgID equals any of the given optional fields.
func equalsAny(sgID string, fields ...*string) bool {
	for _, f := range fields {
		if f != nil && *f == sgID {
			return true
		}
	}
	return false
}
