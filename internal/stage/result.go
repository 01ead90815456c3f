// Package stage implements the classify, retrieve, draft and review steps of a
// resolution run. Every stage returns a Result that is either the produced value
// or a fixed safe fallback; stage failures never propagate as errors or panics.
package stage

import "fmt"

// Stage names as reported in logs, metrics and RunState.Degraded.
const (
	NameClassify = "classify"
	NameRetrieve = "retrieve"
	NameDraft    = "draft"
	NameReview   = "review"
)

// Result is the outcome of one stage invocation.
//
// When Degraded is true, Value holds the stage's fallback and Err the cause.
type Result[T any] struct {
	Value    T
	Degraded bool
	Err      error
}

// guard runs fn and converts an error or panic into the fallback value.
func guard[T any](fallback func(error) T, fn func() (T, error)) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			res = Result[T]{Value: fallback(err), Degraded: true, Err: err}
		}
	}()

	v, err := fn()
	if err != nil {
		return Result[T]{Value: fallback(err), Degraded: true, Err: err}
	}
	return Result[T]{Value: v}
}
