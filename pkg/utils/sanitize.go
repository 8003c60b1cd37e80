package utils

import (
	"regexp"
	"strings"
)

// Characters invalid in Windows/Unix filenames
var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F]`)
var consecutiveUnderscores = regexp.MustCompile(`_+`)

const maxFilenameLength = 64

// SanitizeFilename cleans a string (a username, usually) so it is safe as a path component
func SanitizeFilename(name string) string {
	sanitized := invalidFilenameChars.ReplaceAllString(name, "_")
	sanitized = consecutiveUnderscores.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, "_ ")

	if len(sanitized) > maxFilenameLength {
		sanitized = strings.Trim(sanitized[:maxFilenameLength], "_ ")
	}

	if sanitized == "" {
		sanitized = "unknown"
	}
	return sanitized
}
