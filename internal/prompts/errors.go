package prompts

import (
	"fmt"
	"strings"
)

// TemplateError reports a template set that is missing required entries
type TemplateError struct {
	Missing []string
	Message string
	Cause   error
}

func (e *TemplateError) Error() string {
	msg := e.Message
	if len(e.Missing) > 0 {
		msg = fmt.Sprintf("%s: missing required prompt keys: %s", msg, strings.Join(e.Missing, ", "))
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *TemplateError) Unwrap() error {
	return e.Cause
}

// LoadError reports a failure to read templates from their source
type LoadError struct {
	Source  string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to load prompts from %s: %s: %v", e.Source, e.Message, e.Cause)
	}
	return fmt.Sprintf("failed to load prompts from %s: %s", e.Source, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}
