// Package server exposes the validation pipeline and blob storage over HTTP.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/filing-validator/internal/pipeline"
	"github.com/jonathan/filing-validator/internal/storage"
)

// ErrValidation indicates a malformed request parameter or body
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the status code for an error raised while handling a request
func HTTPStatus(err error) int {
	var (
		validationErr *ErrValidation
		inputErr      *pipeline.InputError
		configErr     *pipeline.ConfigError
		serialErr     *pipeline.SerializationError
		outputErr     *pipeline.OutputError
	)
	switch {
	case errors.As(err, &validationErr), errors.As(err, &inputErr):
		return http.StatusBadRequest
	case errors.As(err, &configErr), errors.As(err, &serialErr), errors.As(err, &outputErr):
		return http.StatusInternalServerError
	case storage.IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage is the error text returned to callers. Input errors carry
// their bare message so a missing blob list reads "No blobs provided.".
func clientMessage(err error) string {
	var inputErr *pipeline.InputError
	if errors.As(err, &inputErr) {
		return inputErr.Message
	}
	return err.Error()
}
