// Package language lists the spoken languages the voice flows accept.
package language

import "strings"

// Supported language codes.
const (
	French  = "fr"
	English = "en"
	Dioula  = "dyu"
	Baoule  = "bci"
)

// Default is used when a request or merchant record carries no language.
const Default = French

var supported = map[string]bool{French: true, English: true, Dioula: true, Baoule: true}

// All returns the supported codes in a stable order.
func All() []string {
	return []string{French, English, Dioula, Baoule}
}

// Parse lowercases s and drops a region suffix ("fr-CI" -> "fr"). ok is false when the
// result is not supported.
func Parse(s string) (code string, ok bool) {
	code = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	return code, supported[code]
}

// Supported reports whether code is accepted as-is.
func Supported(code string) bool {
	return supported[code]
}
