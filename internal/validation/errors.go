// Package validation sends filing content to a language model for review and
// normalizes the model's JSON replies into validation entries.
package validation

import (
	"fmt"

	"github.com/jonathan/filing-validator/internal/types"
)

// Inline error markers written into the validated output
const (
	MsgInvalidJSON             = "Invalid JSON format from LLM"
	MsgInvalidTaxonomyResponse = "Invalid taxonomy response format from LLM"
	MsgInvalidPeriodResponse   = "Invalid period validation response format from LLM"
)

// Error represents a validation call that could not produce a usable reply
type Error struct {
	Kind    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s validation error: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s validation error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Marker builds the inline error entry {"error": msg}
func Marker(msg string) types.Row {
	return types.RowOf("error", msg)
}
