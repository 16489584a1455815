package validation

import (
	"path/filepath"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var strictHTMLPolicy = bluemonday.StrictPolicy()

// SanitizeText removes all HTML tags and attributes from an input string
// before it is stored or echoed back.
func SanitizeText(s string) string {
	return strictHTMLPolicy.Sanitize(s)
}

// StripUnprintable removes non-printable characters, keeping tab, newline and
// carriage return.
func StripUnprintable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		return -1
	}, s)
}

// SanitizeFilename keeps the base name of an uploaded file, without markup or
// control characters, truncated to MaxFilenameLength runes.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" {
		return ""
	}
	name = strings.TrimSpace(StripUnprintable(SanitizeText(name)))
	if r := []rune(name); len(r) > MaxFilenameLength {
		name = string(r[:MaxFilenameLength])
	}
	return name
}
