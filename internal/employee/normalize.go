// Package employee reconciles the textual forms an employee identifier takes
// when it is scanned from a badge or typed by hand.
package employee

import (
	"regexp"
	"strings"
)

// DefaultSuffix is appended when the input carries no letter suffix.
const DefaultSuffix = "A"

var badgePattern = regexp.MustCompile(`^0*(\d+)([A-Za-z])?$`)

// Normalize converts raw badge text into the canonical employee key.
//
//	"00179A" -> "179A"
//	"179"    -> "179A"
//	"0042"   -> "42A"
//	""       -> "A"
//
// Input that is not digits with an optional single letter has its leading
// zeros stripped and DefaultSuffix appended.
func Normalize(raw string) string {
	value := strings.TrimSpace(raw)

	if m := badgePattern.FindStringSubmatch(value); m != nil {
		digits := strings.TrimLeft(m[1], "0")
		suffix := m[2]
		if suffix == "" {
			suffix = DefaultSuffix
		}
		return digits + suffix
	}

	return strings.TrimLeft(value, "0") + DefaultSuffix
}
