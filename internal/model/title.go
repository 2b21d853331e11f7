package model

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultTiddlerType is the content type assumed for tiddlers that do not
// declare one.
const DefaultTiddlerType = "text/vnd.tiddlywiki"

// NormalizeTitle canonicalizes a tiddler title for identity purposes.
// Titles are NFC-normalized so that byte-distinct but canonically-equal
// strings address the same document. Surrounding whitespace is trimmed.
func NormalizeTitle(title string) string {
	return norm.NFC.String(strings.TrimSpace(title))
}

// ValidateFields checks a field map for the invariants every saved tiddler
// must satisfy. The map must carry a non-empty title (after normalization).
// Returns the normalized title on success.
func ValidateFields(fields Fields) (string, error) {
	if fields == nil {
		return "", NewValidationError("fields", "field map is required")
	}
	title := NormalizeTitle(fields["title"])
	if title == "" {
		return "", NewValidationError("title", "title must be non-empty")
	}
	return title, nil
}

// TiddlerType returns the tiddler's declared content type, or the default
// when the field is absent.
func TiddlerType(fields Fields) string {
	if t := strings.TrimSpace(fields["type"]); t != "" {
		return t
	}
	return DefaultTiddlerType
}
