package sanitize

import (
	"errors"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// maxDepth bounds recursion over untrusted documents. Anything deeper is not a
// form submission, it is an attack or a bug, and we fail closed either way.
const maxDepth = 32

// ErrTooDeep is returned when an untrusted document nests past maxDepth.
// Callers map it to a 400-class response.
var ErrTooDeep = errors.New("document nesting too deep")

// KeyAllowed reports whether a caller-controlled key is safe to embed in a
// store lookup. Keys starting with '$' or containing '.' are treated as query
// operators by document stores and must never come from the caller.
func KeyAllowed(key string) bool {
	if strings.HasPrefix(key, "$") {
		return false
	}
	return !strings.Contains(key, ".")
}

// CleanDocument returns a copy of doc with every operator-shaped key removed,
// recursively through nested maps and through maps inside slices. The second
// return value lists the dotted paths of removed keys so callers can audit
// what was stripped. Primitive values pass through untouched.
func CleanDocument(doc map[string]any) (map[string]any, []string, error) {
	cleaned, removed, err := cleanMap(doc, "", 0)
	if err != nil {
		return nil, nil, err
	}
	return cleaned, removed, nil
}

func cleanMap(doc map[string]any, path string, depth int) (map[string]any, []string, error) {
	if depth > maxDepth {
		return nil, nil, ErrTooDeep
	}
	if doc == nil {
		return nil, nil, nil
	}

	cleaned := make(map[string]any, len(doc))
	var removed []string
	for key, value := range doc {
		keyPath := key
		if path != "" {
			keyPath = path + "/" + key
		}
		if !KeyAllowed(key) {
			removed = append(removed, keyPath)
			continue
		}

		cleanedValue, childRemoved, err := cleanValue(value, keyPath, depth+1)
		if err != nil {
			return nil, nil, err
		}
		cleaned[key] = cleanedValue
		removed = append(removed, childRemoved...)
	}
	return cleaned, removed, nil
}

func cleanValue(value any, path string, depth int) (any, []string, error) {
	if depth > maxDepth {
		return nil, nil, ErrTooDeep
	}

	switch typed := value.(type) {
	case map[string]any:
		return cleanMapAsAny(typed, path, depth)
	case []any:
		cleaned := make([]any, 0, len(typed))
		var removed []string
		for _, item := range typed {
			cleanedItem, itemRemoved, err := cleanValue(item, path, depth+1)
			if err != nil {
				return nil, nil, err
			}
			cleaned = append(cleaned, cleanedItem)
			removed = append(removed, itemRemoved...)
		}
		return cleaned, removed, nil
	default:
		return value, nil, nil
	}
}

func cleanMapAsAny(doc map[string]any, path string, depth int) (any, []string, error) {
	cleaned, removed, err := cleanMap(doc, path, depth)
	if err != nil {
		return nil, nil, err
	}
	return cleaned, removed, nil
}

// CleanValues strips operator-shaped keys from URL query or form values.
func CleanValues(values url.Values) (url.Values, []string) {
	cleaned := make(url.Values, len(values))
	var removed []string
	for key, items := range values {
		if !KeyAllowed(key) {
			removed = append(removed, key)
			continue
		}
		cleaned[key] = items
	}
	return cleaned, removed
}

// LogRemoved emits one warning per stripped key so injection attempts leave an
// audit trail.
func LogRemoved(logger *zerolog.Logger, removed []string) {
	for _, key := range removed {
		logger.Warn().Str("key", key).Msg("stripped unsafe key from request input")
	}
}
