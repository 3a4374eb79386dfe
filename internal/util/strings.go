// Package util provides small shared helpers that don't belong to a
// domain-specific package.
package util

import "strings"

// SafeTruncate truncates a string to maxLen characters without
// panicking. Used when logging token prefixes, where only the first
// few characters should ever appear.
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// NormalizeURL normalizes a URL for comparison by trimming trailing
// slashes, so "https://ehr.example/" and "https://ehr.example" refer
// to the same issuer.
func NormalizeURL(url string) string {
	return strings.TrimRight(url, "/")
}
