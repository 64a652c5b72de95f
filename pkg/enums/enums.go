// Package enums holds the string-backed status and type values stored in
// the database and accepted over the API.
package enums

import (
	"fmt"
	"slices"
)

func parseEnum[T ~string](kind, value string, known []T) (T, error) {
	if v := T(value); slices.Contains(known, v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, value)
}
