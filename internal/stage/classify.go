package stage

import (
	"context"
	"errors"
	"strings"

	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/llm"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/ticket"
)

const classifySystemPrompt = `Classify this ticket into exactly one category:
Billing - Payments, subscriptions, invoices
Technical - App errors, bugs, technical issues
Security - Account security, phishing, 2FA
General - Other questions, feedback, non-urgent

Respond ONLY with the category name.`

// Classifier assigns a category to a ticket.
type Classifier struct {
	gen         llm.Generator
	temperature float64
}

// NewClassifier returns a Classifier backed by gen.
func NewClassifier(gen llm.Generator, temperature float64) *Classifier {
	return &Classifier{gen: gen, temperature: temperature}
}

func unclassified(error) ticket.Classification {
	return ticket.Classification{Category: ticket.General, Confidence: 0}
}

// Classify returns the ticket category. Empty tickets are General with zero
// confidence and never reach the generator; generation failures fall back to
// the same value.
func (c *Classifier) Classify(ctx context.Context, t ticket.Ticket) Result[ticket.Classification] {
	if t.IsEmpty() {
		return Result[ticket.Classification]{Value: unclassified(nil)}
	}
	return guard(unclassified, func() (ticket.Classification, error) {
		raw, err := c.gen.Generate(ctx, llm.Prompt{
			Purpose:     llm.PurposeClassification,
			System:      classifySystemPrompt,
			User:        "Subject: " + t.Subject + "\nDescription: " + t.Description,
			Temperature: c.temperature,
		})
		if err != nil {
			return ticket.Classification{}, err
		}
		if strings.TrimSpace(raw) == "" {
			return ticket.Classification{}, errors.New("classifier returned an empty category")
		}
		category, _ := ticket.ParseCategory(raw)
		return ticket.Classification{Category: category, Confidence: 1.0}, nil
	})
}
