// Package queue provides the durable analysis job queue and its serial worker.
package queue

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Payload is the body of an analysis job
type Payload struct {
	AnalysisID string `json:"analysisId" validate:"required,uuid"`
	UploadID   string `json:"uploadId" validate:"required"`
}

// PayloadError is returned for a job body that cannot be dispatched
type PayloadError struct {
	Message string
	Cause   error
}

func (e *PayloadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid job payload: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("invalid job payload: %s", e.Message)
}

func (e *PayloadError) Unwrap() error {
	return e.Cause
}

var validate = validator.New()

// Validate checks that both ids are present and analysisId is a UUID
func (p *Payload) Validate() error {
	if err := validate.Struct(p); err != nil {
		return &PayloadError{Message: describeValidation(err), Cause: err}
	}
	return nil
}

// DecodePayload decodes and validates a raw job body. A field of the wrong
// JSON type is rejected, not coerced.
func DecodePayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, &PayloadError{Message: "malformed body", Cause: err}
	}
	if err := p.Validate(); err != nil {
		return Payload{}, err
	}
	return p, nil
}

func describeValidation(err error) string {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	fields := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(fields, ", ")
}
