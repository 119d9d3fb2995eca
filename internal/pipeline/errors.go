package pipeline

import "fmt"

// InputError represents a request that cannot be processed. Nothing is written.
type InputError struct {
	Message string
	Cause   error
}

func (e *InputError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid request: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("invalid request: %s", e.Message)
}

func (e *InputError) Unwrap() error {
	return e.Cause
}

// ConfigError represents missing or invalid prompt configuration
type ConfigError struct {
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// SerializationError represents validated output that could not be encoded
type SerializationError struct {
	Message string
	Cause   error
}

func (e *SerializationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("serialization error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("serialization error: %s", e.Message)
}

func (e *SerializationError) Unwrap() error {
	return e.Cause
}

// OutputError represents a failure to persist the validated output
type OutputError struct {
	Container string
	Name      string
	Cause     error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("failed to write %s/%s: %v", e.Container, e.Name, e.Cause)
}

func (e *OutputError) Unwrap() error {
	return e.Cause
}
