package llm

import (
	"fmt"
	"strings"
	"time"
)

// ProviderError is a backend failure carrying an HTTP-like status and an
// optional structured retry hint
type ProviderError struct {
	StatusCode int
	RetryDelay time.Duration
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("provider error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider error: %s", e.Message)
}

// MalformedOutputError is returned when a model response cannot be parsed
// into the requested shape
type MalformedOutputError struct {
	Model   string
	Message string
	Cause   error
}

func (e *MalformedOutputError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed output from %s: %s: %v", e.Model, e.Message, e.Cause)
	}
	return fmt.Sprintf("malformed output from %s: %s", e.Model, e.Message)
}

func (e *MalformedOutputError) Unwrap() error {
	return e.Cause
}

// GenerationError is returned when every model in the fallback chain failed.
// Last is the final error observed.
type GenerationError struct {
	Models []string
	Last   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("all models failed (tried %s): %v", strings.Join(e.Models, ", "), e.Last)
}

func (e *GenerationError) Unwrap() error {
	return e.Last
}
