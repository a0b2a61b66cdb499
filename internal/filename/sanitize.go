// Package filename turns untrusted strings into names safe to use as a single
// path segment on any common filesystem.
package filename

import (
	"strings"
	"unicode/utf8"
)

// Placeholder replaces names that are empty after sanitizing.
const Placeholder = "Unknown"

// MaxLength is the largest segment length, in bytes, Sanitize returns.
const MaxLength = 255

// Windows device names. Files copied to an SMB share with these names become
// unreachable, so they are escaped everywhere.
var reservedNames = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {},
	"COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {},
	"LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// Sanitize returns name with path separators, reserved and control
// characters replaced by '_', reserved device names escaped, and the result
// capped at MaxLength bytes. It never returns an empty string and
// Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(name string) string {
	if strings.TrimSpace(name) == "" {
		return Placeholder
	}

	sanitized := strings.Map(func(r rune) rune {
		if isInvalid(r) {
			return '_'
		}
		return r
	}, name)

	if _, reserved := reservedNames[strings.ToUpper(sanitized)]; reserved {
		sanitized = "_" + sanitized
	}

	sanitized = Truncate(sanitized, MaxLength)

	if strings.TrimSpace(sanitized) == "" || strings.Trim(sanitized, ".") == "" {
		return Placeholder
	}
	return sanitized
}

func isInvalid(r rune) bool {
	if r < 0x20 || r == 0x7f || r == utf8.RuneError {
		return true
	}
	return strings.ContainsRune(`<>:"/\|?*`, r)
}

// Truncate cuts s to at most n bytes without splitting a rune.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
