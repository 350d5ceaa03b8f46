// ABOUTME: Error taxonomy shared by both transports
// ABOUTME: ValidationError for bad input, plus content bounds checking

package conversation

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrNotAuthorized is returned when a connection acts before it is authenticated
// or a caller lacks the role an operation needs.
var ErrNotAuthorized = errors.New("not authorized")

// FieldIssue describes one invalid field of an inbound payload.
type FieldIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports malformed client input. It is safe to show to clients.
type ValidationError struct {
	Message string
	Issues  []FieldIssue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return e.Message
	}
	parts := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		parts[i] = is.Field + ": " + is.Message
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

// NewValidationError builds a ValidationError with a single field issue.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{
		Message: "Invalid message format",
		Issues:  []FieldIssue{{Field: field, Message: msg}},
	}
}

// NormalizeContent trims content and checks it is non-empty and at most
// maxRunes characters long.
func NormalizeContent(content string, maxRunes int) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", NewValidationError("content", "must not be empty")
	}
	if n := utf8.RuneCountInString(content); n > maxRunes {
		return "", NewValidationError("content", fmt.Sprintf("must be at most %d characters, got %d", maxRunes, n))
	}
	return content, nil
}
