package models

import (
	"regexp"
	"strings"
)

var hexAddressRe = regexp.MustCompile(`^0x[0-9a-f]{40}$`)

// NormalizeAddress lowercases a hex address so lookups are
// case-insensitive across the whole pipeline.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// IsHexAddress reports whether addr is a normalized 42-character
// 0x-prefixed hex address.
func IsHexAddress(addr string) bool {
	return hexAddressRe.MatchString(addr)
}
