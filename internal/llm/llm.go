// Package llm provides the text-generation capability used by the pipeline
// stages, with Gemini and OpenAI-compatible backends.
package llm

import (
	"context"
	"errors"
)

// Purpose identifies which pipeline stage a prompt belongs to.
type Purpose string

const (
	PurposeClassification Purpose = "classification"
	PurposeDraft          Purpose = "draft"
	PurposeReview         Purpose = "review"
)

// Prompt is a role-tagged generation request: a system instruction plus one user turn.
type Prompt struct {
	Purpose     Purpose
	System      string
	User        string
	Temperature float64
}

// Generator maps a prompt to a text completion.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, p Prompt) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, p Prompt) (string, error) {
	return f(ctx, p)
}

// Temperatures holds the sampling temperature per purpose.
type Temperatures struct {
	Classification float64 `yaml:"classification"`
	Draft          float64 `yaml:"draft"`
	Review         float64 `yaml:"review"`
}

// DefaultTemperatures returns the per-stage defaults.
func DefaultTemperatures() Temperatures {
	return Temperatures{
		Classification: 0.3,
		Draft:          0.5,
		Review:         0.2,
	}
}

// For returns the temperature configured for p.
func (t Temperatures) For(p Purpose) float64 {
	switch p {
	case PurposeClassification:
		return t.Classification
	case PurposeDraft:
		return t.Draft
	case PurposeReview:
		return t.Review
	default:
		return t.Draft
	}
}

// ErrEmptyCompletion is returned when a backend answers with no text.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// TransientError marks an error as retryable.
//
// Retrying generators back off and try again on transient failures rather than
// failing the stage immediately.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTransient reports whether err was marked retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
