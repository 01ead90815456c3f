// Package escalation records tickets handed off to a human.
//
// Recorders are append-only and safe for concurrent use. Callers treat a failed
// Append as a diagnostic; it never changes the escalation decision.
package escalation

import (
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/ticket"
)

// Record field names, in CSV column order.
const (
	FieldTimestamp   = "timestamp"
	FieldRunID       = "run_id"
	FieldSubject     = "subject"
	FieldDescription = "description"
	FieldCategory    = "category"
	FieldAttempts    = "attempts"
	FieldDraft       = "draft"
	FieldFeedback    = "feedback"
	FieldReason      = "reason"
)

// Columns is the fixed field order used by tabular recorders.
var Columns = []string{
	FieldTimestamp,
	FieldRunID,
	FieldSubject,
	FieldDescription,
	FieldCategory,
	FieldAttempts,
	FieldDraft,
	FieldFeedback,
	FieldReason,
}

// Placeholders for snapshot fields the run never produced.
const (
	UnknownCategory = "Unknown"
	NoDraft         = "No draft generated"
	NoFeedback      = "No review feedback"
)

// Record is one escalation entry.
type Record map[string]string

// Values returns the record's fields in Columns order; missing fields are "".
func (r Record) Values() []string {
	out := make([]string, len(Columns))
	for i, c := range Columns {
		out[i] = r[c]
	}
	return out
}

// Snapshot builds the escalation record for a finished run.
func Snapshot(s ticket.RunState, at time.Time) Record {
	draft := NoDraft
	if s.Draft != nil && s.Draft.Content != "" {
		draft = s.Draft.Content
	}
	feedback := NoFeedback
	if s.Review != nil && s.Review.Feedback != "" {
		feedback = s.Review.Feedback
	}
	reason := s.Reason
	if s.Error != "" {
		reason = s.Error
	}
	return Record{
		FieldTimestamp:   at.UTC().Format(time.RFC3339),
		FieldRunID:       s.ID,
		FieldSubject:     s.Ticket.Subject,
		FieldDescription: s.Ticket.Description,
		FieldCategory:    s.CategoryOr(UnknownCategory),
		FieldAttempts:    strconv.Itoa(s.Attempt),
		FieldDraft:       draft,
		FieldFeedback:    feedback,
		FieldReason:      reason,
	}
}

// Recorder durably appends escalation records.
type Recorder interface {
	Append(ctx context.Context, rec Record) error
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(ctx context.Context, rec Record) error

func (f RecorderFunc) Append(ctx context.Context, rec Record) error {
	return f(ctx, rec)
}

// Nop discards records.
type Nop struct{}

func (Nop) Append(context.Context, Record) error { return nil }

// Multi appends to every recorder and joins their errors. A failing recorder
// does not stop the others.
type Multi []Recorder

func (m Multi) Append(ctx context.Context, rec Record) error {
	var errs []error
	for _, r := range m {
		if err := r.Append(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every recorder that implements io.Closer.
func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		if c, ok := r.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
