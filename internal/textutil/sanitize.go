package textutil

import (
	"strings"
	"unicode"
)

// keySegmentReplacer drops characters that break object keys or the file
// names derived from them.
var keySegmentReplacer = strings.NewReplacer(
	"/", "",
	"\\", "",
	":", "",
	"*", "",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
	"#", "",
	"%", "",
)

// SanitizeKeySegment returns value with whitespace and key-unsafe characters
// removed, so it can be used as one path segment of an object key.
func SanitizeKeySegment(value string) string {
	value = keySegmentReplacer.Replace(strings.TrimSpace(value))
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
}
