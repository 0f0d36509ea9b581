package export

import (
	"strings"
	"unicode"
)

// DefaultFilenameLength is the number of characters kept from a header.
const DefaultFilenameLength = 32

// Extension is appended to every exported post file.
const Extension = ".csv"

// FilenameBase derives a file name stem from a header: only letters and
// spaces are kept, spaces become underscores, and the result is cut to
// maxLen characters. It returns "" when nothing survives.
func FilenameBase(header string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultFilenameLength
	}

	var b strings.Builder
	n := 0
	for _, r := range header {
		if n == maxLen {
			break
		}
		switch {
		case r == ' ':
			b.WriteRune('_')
		case unicode.IsLetter(r):
			b.WriteRune(r)
		default:
			continue
		}
		n++
	}
	return b.String()
}

// Filename is FilenameBase plus Extension, or "" when the base is empty.
func Filename(header string, maxLen int) string {
	base := FilenameBase(header, maxLen)
	if base == "" {
		return ""
	}
	return base + Extension
}
