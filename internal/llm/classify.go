package llm

import (
	"errors"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FailureKind is how the caller reacts to a failed model call
type FailureKind int

const (
	// FailureFatal stops the whole call
	FailureFatal FailureKind = iota
	// FailureRateLimited retries the same model after a delay, or moves on
	FailureRateLimited
	// FailureMalformed moves on to the next model at once
	FailureMalformed
)

func (k FailureKind) String() string {
	switch k {
	case FailureRateLimited:
		return "rate_limited"
	case FailureMalformed:
		return "malformed"
	default:
		return "fatal"
	}
}

// Failure is the classification of one failed model call
type Failure struct {
	Kind FailureKind
	// RetryDelay is the provider's retry hint, zero when none was given
	RetryDelay time.Duration
}

var rateLimitMarkers = []string{"quota", "rate limit", "429", "too many requests"}

var retryInPattern = regexp.MustCompile(`(?i)retry in ([0-9]+(?:\.[0-9]+)?)\s*s`)

// Classify decides how a model call error is handled
func Classify(err error) Failure {
	if err == nil {
		return Failure{Kind: FailureFatal}
	}

	var malformed *MalformedOutputError
	if errors.As(err, &malformed) {
		return Failure{Kind: FailureMalformed}
	}

	rateLimited := false
	var delay time.Duration

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		if providerErr.StatusCode == http.StatusTooManyRequests {
			rateLimited = true
		}
		delay = providerErr.RetryDelay
	}

	var googleErr *googleapi.Error
	if errors.As(err, &googleErr) && googleErr.Code == http.StatusTooManyRequests {
		rateLimited = true
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPCode() == http.StatusTooManyRequests {
			rateLimited = true
		}
		if info := apiErr.Details().RetryInfo; info != nil && info.GetRetryDelay() != nil && delay == 0 {
			delay = info.GetRetryDelay().AsDuration()
		}
	}

	if status.Code(err) == codes.ResourceExhausted {
		rateLimited = true
	}

	msg := strings.ToLower(err.Error())
	if !rateLimited {
		for _, marker := range rateLimitMarkers {
			if strings.Contains(msg, marker) {
				rateLimited = true
				break
			}
		}
	}
	if !rateLimited {
		return Failure{Kind: FailureFatal}
	}

	if delay == 0 {
		delay = parseRetryIn(err.Error())
	}
	return Failure{Kind: FailureRateLimited, RetryDelay: delay}
}

// parseRetryIn reads a "retry in 12.3s" hint, rounded up to the millisecond
func parseRetryIn(msg string) time.Duration {
	m := retryInPattern.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	seconds, err := strconv.ParseFloat(m[1], 64)
	if err != nil || seconds <= 0 {
		return 0
	}
	// the epsilon absorbs float error so 12.3s stays 12300ms
	return time.Duration(math.Ceil(seconds*1000-1e-6)) * time.Millisecond
}
