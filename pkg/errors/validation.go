package errors

import (
	"strings"
	"unicode"
)

// maxElementIDLength bounds node and edge identifiers read from snapshot files.
const maxElementIDLength = 1024

// ValidateElementID validates a node or edge identifier.
//
// The rules are intentionally conservative:
//   - No empty identifiers
//   - No control characters or null bytes
//   - Maximum length of 1024 bytes
//
// Identifiers are otherwise opaque; path-like ids ("src/main.go") are fine.
func ValidateElementID(id string) error {
	if id == "" {
		return New(ErrCodeInvalidSnapshot, "element id cannot be empty")
	}

	if len(id) > maxElementIDLength {
		return New(ErrCodeInvalidSnapshot, "element id too long (max %d bytes)", maxElementIDLength)
	}

	for _, r := range id {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidSnapshot, "element id %q contains control characters", id)
		}
	}

	return nil
}

// ValidateRevisionIndex checks that index addresses a revision of a series
// with count revisions.
func ValidateRevisionIndex(index, count int) error {
	if count <= 0 {
		return New(ErrCodeInvalidSeries, "series is empty")
	}
	if index < 0 || index >= count {
		return New(ErrCodeOutOfRange, "revision %d is not in [0, %d]", index, count-1)
	}
	return nil
}

// ValidatePath validates a file path for safety.
// It prevents path traversal attacks and ensures reasonable path length.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
//   - No path traversal sequences (..)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
		}
	}

	return nil
}

// ValidateURL validates a backend URL string.
// It ensures the URL uses one of the given schemes.
func ValidateURL(rawURL string, schemes ...string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}

	for _, s := range schemes {
		if strings.HasPrefix(rawURL, s+"://") {
			return nil
		}
	}

	return New(ErrCodeInvalidInput, "URL must use one of the schemes %v", schemes)
}
