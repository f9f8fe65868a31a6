// Package utils provides bespoke, one off utils that don't make sense to be
// their own package
package utils

import "fmt"

// Truncate cuts s to maxLen, annotating the cut with the original length so
// log lines stay readable when request fields carry large payloads.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return fmt.Sprintf("%s... (%d chars)", s[:maxLen], len(s))
}
