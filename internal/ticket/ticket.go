// Package ticket defines the support ticket data model threaded through a
// resolution run.
package ticket

import (
	"strings"
)

// Category is the coarse routing bucket assigned by the classifier.
type Category string

const (
	Billing   Category = "Billing"
	Technical Category = "Technical"
	Security  Category = "Security"
	General   Category = "General"
)

// Categories lists every known category in prompt order.
var Categories = []Category{Billing, Technical, Security, General}

// ParseCategory maps free-form model output to a known category.
//
// An exact (case-insensitive) match wins; otherwise the known name that appears
// earliest in the text is used. Text naming no category yields General, false.
func ParseCategory(raw string) (Category, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return General, false
	}
	for _, c := range Categories {
		if s == strings.ToLower(string(c)) {
			return c, true
		}
	}

	best := -1
	found := General
	for _, c := range Categories {
		i := strings.Index(s, strings.ToLower(string(c)))
		if i < 0 {
			continue
		}
		if best < 0 || i < best {
			best = i
			found = c
		}
	}
	return found, best >= 0
}

// Ticket is the customer request being resolved. It is immutable for a run.
type Ticket struct {
	Subject     string `json:"subject"`
	Description string `json:"description"`
}

// IsEmpty reports whether both subject and description are blank.
func (t Ticket) IsEmpty() bool {
	return strings.TrimSpace(t.Subject) == "" && strings.TrimSpace(t.Description) == ""
}

// Query is the free-text lookup query for context retrieval.
func (t Ticket) Query() string {
	return t.Subject + "\n" + t.Description
}

// Classification is the classifier verdict for a ticket.
//
// Confidence is 1.0 for any successful model call and 0.0 for a fallback; it is
// not a calibrated probability.
type Classification struct {
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
}

// Context holds the reference snippets retrieved for a category.
type Context struct {
	Category  string   `json:"category"`
	Documents []string `json:"documents"`
}

// Draft is a candidate reply to the customer.
type Draft struct {
	Content     string   `json:"content"`
	ContextUsed []string `json:"context_used"`
}

// Review is the policy verdict on a draft.
type Review struct {
	Approved   bool     `json:"approved"`
	Feedback   string   `json:"feedback,omitempty"`
	Violations []string `json:"violations"`

	// EscalationTrigger is set when a violated rule demands a human hand-off.
	EscalationTrigger bool `json:"escalation_trigger,omitempty"`
}

// RunState is the record threaded through one resolution run.
//
// Stage outputs stay nil until the stage has run at least once.
type RunState struct {
	ID             string          `json:"id"`
	Ticket         Ticket          `json:"ticket"`
	Classification *Classification `json:"classification"`
	Context        *Context        `json:"context"`
	Draft          *Draft          `json:"draft"`
	Review         *Review         `json:"review"`
	Attempt        int             `json:"attempt"`
	Escalated      bool            `json:"escalated"`
	Error          string          `json:"error,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	Degraded       []string        `json:"degraded_stages,omitempty"`
}

// Approved reports whether the last review approved the draft.
func (s RunState) Approved() bool {
	return s.Review != nil && s.Review.Approved
}

// Outcome summarizes the terminal state as "approved", "escalated" or "pending".
func (s RunState) Outcome() string {
	switch {
	case s.Escalated:
		return "escalated"
	case s.Approved():
		return "approved"
	default:
		return "pending"
	}
}

// CategoryOr returns the resolved category, or fallback when classification
// never completed.
func (s RunState) CategoryOr(fallback string) string {
	if s.Classification == nil || s.Classification.Category == "" {
		return fallback
	}
	return string(s.Classification.Category)
}
