// Package utils provides small helpers shared across the engine: vector
// normalization, summary truncation for CLI output, and logger setup.
package utils

// Truncate shortens a summary or answer to maxLen characters for display,
// appending "..." when anything was cut. If maxLen is 0 or negative,
// returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
