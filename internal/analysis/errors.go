package analysis

import (
	"errors"
	"fmt"
	"strings"
)

// QuotaExceededMessage replaces quota errors in the job record
const QuotaExceededMessage = "API Quota Exceeded. Please try again later. Progress has been saved!"

// Input errors
var (
	ErrAnalysisNotFound = errors.New("analysis not found")
	ErrUploadNotFound   = errors.New("upload not found")
	ErrParseTextMissing = errors.New("analysis data or parse text missing")
)

// InputError is a job that can never succeed, whatever the number of attempts
type InputError struct {
	Message string
	Cause   error
}

func (e *InputError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *InputError) Unwrap() error {
	return e.Cause
}

// FailureMessage is the user-facing error stored on a failed record.
// Quota errors (the message mentions quota or 429, in any case) become QuotaExceededMessage.
// Input errors are stored as they are; their messages carry ids, not provider text.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	var inputErr *InputError
	if errors.As(err, &inputErr) {
		return msg
	}
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "quota") || strings.Contains(lower, "429") {
		return QuotaExceededMessage
	}
	return msg
}
