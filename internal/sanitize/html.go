package sanitize

import (
	"github.com/microcosm-cc/bluemonday"
)

// StrictPolicy removes all HTML tags and attributes. Registrant names, phone
// numbers, and admin notes are plain text; anything tag-shaped in them is an
// injection attempt.
var StrictPolicy = bluemonday.StrictPolicy()

// Text strips all HTML and returns plain text.
// Use for: registrant names, admin decision notes, certificate filenames.
func Text(input string) string {
	return StrictPolicy.Sanitize(input)
}

// TextSlice sanitizes each string in a slice, removing all HTML.
func TextSlice(inputs []string) []string {
	if inputs == nil {
		return nil
	}
	sanitized := make([]string, len(inputs))
	for i, input := range inputs {
		sanitized[i] = Text(input)
	}
	return sanitized
}
