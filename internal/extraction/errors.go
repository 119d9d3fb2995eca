// Package extraction turns stored filing documents into uniform extraction results.
// Workbooks yield tagged rows, periods and filing information; HTML accounts yield
// the statement of compliance and optional page images.
package extraction

import (
	"fmt"
	"strings"
)

// WorkbookError represents a workbook that lacks an expected sheet or column
type WorkbookError struct {
	Sheet     string
	Missing   []string
	Available []string // sheets the workbook does have, set when Sheet is absent
	Message   string
	Cause     error
}

func (e *WorkbookError) Error() string {
	msg := e.Message
	if len(e.Missing) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, strings.Join(e.Missing, ", "))
	}
	if len(e.Available) > 0 {
		msg = fmt.Sprintf("%s (workbook has %s)", msg, strings.Join(e.Available, ", "))
	}
	if e.Cause != nil {
		return fmt.Sprintf("workbook error in sheet %q: %s: %v", e.Sheet, msg, e.Cause)
	}
	return fmt.Sprintf("workbook error in sheet %q: %s", e.Sheet, msg)
}

func (e *WorkbookError) Unwrap() error {
	return e.Cause
}

// HTMLError represents a document the HTML parser could not read
type HTMLError struct {
	Message string
	Cause   error
}

func (e *HTMLError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("html error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("html error: %s", e.Message)
}

func (e *HTMLError) Unwrap() error {
	return e.Cause
}
