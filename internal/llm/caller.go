package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/royengg/homeworkai/internal/schemas"
)

// Validator is implemented by output types that check themselves after decoding
type Validator interface {
	Validate() error
}

// Caller turns a prompt into a parsed, validated value, walking the model
// fallback chain on throttling and malformed output.
type Caller struct {
	client Client
	config *Config
	logger *slog.Logger
	timer  retry.Timer
}

// CallerOption configures a Caller
type CallerOption func(*Caller)

// WithTimer replaces the clock used for every wait. Tests pass a fake.
func WithTimer(t retry.Timer) CallerOption {
	return func(c *Caller) {
		c.timer = t
	}
}

// NewCaller creates a Caller over client using config's fallback chain
func NewCaller(client Client, config *Config, logger *slog.Logger, opts ...CallerOption) *Caller {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Caller{
		client: client,
		config: config,
		logger: logger.With("component", "llm"),
		timer:  realTimer{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Models returns the fallback chain in order
func (c *Caller) Models() []string {
	return append([]string(nil), c.config.Models...)
}

// Call runs prompt against the fallback chain and decodes the first valid
// response into out.
//
// For each model: a rate-limited error that carries a retry hint is retried on the
// same model after hint + attemptIndex*BaseDelay, up to AttemptsPerModel calls.
// A rate limit without a hint, or one that outlasts the attempts, waits BaseDelay
// and moves on. Malformed output moves on without waiting. Any other error is
// returned at once. When the chain is exhausted the result is a *GenerationError.
func (c *Caller) Call(ctx context.Context, shape Shape, prompt string, out any) error {
	var lastErr error

	for _, model := range c.config.Models {
		raw, err := c.callModel(ctx, model, shape, prompt)
		if err == nil {
			err = c.decode(model, shape, raw, out)
			if err == nil {
				return nil
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		lastErr = err
		failure := Classify(err)
		switch failure.Kind {
		case FailureMalformed:
			c.logger.Warn("malformed model output, falling back",
				"model", model, "shape", shape.Name, "error", err)
		case FailureRateLimited:
			c.logger.Warn("model rate limited, falling back",
				"model", model, "shape", shape.Name, "error", err)
			if err := c.wait(ctx, c.config.BaseDelay); err != nil {
				return err
			}
		default:
			return fmt.Errorf("model %s failed: %w", model, err)
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no models configured")
	}
	return &GenerationError{Models: c.Models(), Last: lastErr}
}

// callModel calls one model, retrying rate limits that carry a retry hint
func (c *Caller) callModel(ctx context.Context, model string, shape Shape, prompt string) (string, error) {
	var raw string
	attempt := 0

	err := retry.Do(
		func() error {
			attempt++
			text, err := c.client.GenerateJSON(ctx, model, shape, prompt)
			if err != nil {
				return err
			}
			raw = text
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.config.AttemptsPerModel)),
		retry.LastErrorOnly(true),
		retry.WithTimer(c.timer),
		retry.RetryIf(func(err error) bool {
			f := Classify(err)
			return f.Kind == FailureRateLimited && f.RetryDelay > 0
		}),
		retry.DelayType(func(_ uint, err error, _ *retry.Config) time.Duration {
			return Classify(err).RetryDelay + time.Duration(attempt-1)*c.config.BaseDelay
		}),
		retry.OnRetry(func(_ uint, err error) {
			c.logger.Warn("model rate limited, retrying",
				"model", model,
				"attempt", attempt,
				"max_attempts", c.config.AttemptsPerModel,
				"retry_after", Classify(err).RetryDelay+time.Duration(attempt-1)*c.config.BaseDelay,
			)
		}),
	)
	return raw, err
}

// decode cleans, schema-checks and unmarshals a response. Every failure is malformed.
func (c *Caller) decode(model string, shape Shape, raw string, out any) error {
	cleaned := CleanResponse(raw)

	if shape.Schema != nil {
		if err := schemas.ValidateAgainst(shape.Name, shape.Schema.JSONSchema(), []byte(cleaned)); err != nil {
			return &MalformedOutputError{Model: model, Message: "response does not match schema", Cause: err}
		}
	}
	// decode into a fresh value so a rejected response never leaks into out
	target := reflect.ValueOf(out)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		return fmt.Errorf("decode target must be a non-nil pointer, got %T", out)
	}
	fresh := reflect.New(target.Elem().Type())
	if err := json.Unmarshal([]byte(cleaned), fresh.Interface()); err != nil {
		return &MalformedOutputError{Model: model, Message: "invalid JSON", Cause: err}
	}
	if v, ok := fresh.Interface().(Validator); ok {
		if err := v.Validate(); err != nil {
			return &MalformedOutputError{Model: model, Message: "invalid content", Cause: err}
		}
	}
	target.Elem().Set(fresh.Elem())
	return nil
}

func (c *Caller) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-c.timer.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type realTimer struct{}

func (realTimer) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
