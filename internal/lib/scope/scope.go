// Package scope manipulates space-delimited OAuth scope strings.
package scope

import (
	"slices"
	"strings"
)

// Split returns the individual scope values; empty input yields nil.
func Split(s string) []string {
	return strings.Fields(s)
}

// Subset reports whether every value of requested is present in granted.
// An empty requested scope is a subset of anything.
func Subset(requested, granted string) bool {
	grantedValues := Split(granted)
	for _, v := range Split(requested) {
		if !slices.Contains(grantedValues, v) {
			return false
		}
	}
	return true
}

// Contains reports whether the scope string carries the given value.
func Contains(s, value string) bool {
	return slices.Contains(Split(s), value)
}
