// Package util provides common utility functions used across the codebase.
package util

import "strings"

// ShellQuote wraps a string in single quotes, escaping any existing single quotes.
// This is safe for use in shell commands where the string should be treated literally.
func ShellQuote(s string) string {
	// Replace ' with '\'' (end quote, escaped quote, start quote)
	escaped := strings.ReplaceAll(s, "'", "'\\''")
	return "'" + escaped + "'"
}

// forbiddenShellTokens are sequences that must never appear in values
// interpolated into a remote command line, even inside quotes, because a
// mistake elsewhere in quoting would turn them into shell syntax.
var forbiddenShellTokens = []string{
	";", "&&", "||", "|", "`", "$(", "${", ">", "<", "\n", "\r",
}

// ContainsShellMeta reports whether s contains shell metacharacters that
// could alter a command line if quoting were ever dropped.
func ContainsShellMeta(s string) bool {
	for _, tok := range forbiddenShellTokens {
		if strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

// ValidUnitName reports whether s is a safe systemd unit name: non-empty,
// at most 256 characters, built from letters, digits, and the separators
// systemd allows (. _ - @ \). Anything else is rejected before the name is
// interpolated into a journalctl or systemctl command.
func ValidUnitName(s string) bool {
	if s == "" || len(s) > 256 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-' || r == '@' || r == '\\':
		default:
			return false
		}
	}
	return true
}
