package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/llm"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/ticket"
)

// FallbackDraft is the reply used when no draft could be generated.
const FallbackDraft = "We're sorry, we couldn't prepare a response to your request right now. " +
	"A member of our support team will follow up shortly. For urgent issues, call 1-800-COMPANY."

const draftSystemTemplate = `You are a support agent. Draft a response using:

Context:
%s

Guidelines:
- Be professional and empathetic
- Only use verified information
- Never promise unavailable solutions
- Keep responses under 300 words`

// Drafter writes a candidate reply grounded in retrieved documents.
type Drafter struct {
	gen         llm.Generator
	temperature float64
	budget      int
}

// NewDrafter returns a Drafter backed by gen. budget caps the joined context in
// characters; zero or negative means unlimited.
func NewDrafter(gen llm.Generator, temperature float64, budget int) *Drafter {
	return &Drafter{gen: gen, temperature: temperature, budget: budget}
}

func fallbackDraft(error) ticket.Draft {
	return ticket.Draft{Content: FallbackDraft, ContextUsed: []string{}}
}

// Draft generates a reply for t. feedback, when non-empty, is the reviewer's
// note on the previous attempt.
func (d *Drafter) Draft(ctx context.Context, t ticket.Ticket, docs ticket.Context, feedback string) Result[ticket.Draft] {
	return guard(fallbackDraft, func() (ticket.Draft, error) {
		used := fitContext(docs.Documents, d.budget)

		user := "Ticket Subject: " + t.Subject + "\nDescription: " + t.Description
		if feedback != "" {
			user += "\n\nReviewer feedback from previous attempt: " + feedback
		}

		content, err := d.gen.Generate(ctx, llm.Prompt{
			Purpose:     llm.PurposeDraft,
			System:      fmt.Sprintf(draftSystemTemplate, strings.Join(used, "\n")),
			User:        user,
			Temperature: d.temperature,
		})
		if err != nil {
			return ticket.Draft{}, err
		}
		if strings.TrimSpace(content) == "" {
			return ticket.Draft{}, llm.ErrEmptyCompletion
		}
		return ticket.Draft{Content: content, ContextUsed: used}, nil
	})
}

// fitContext keeps whole documents, in order, while the newline-joined text
// stays within budget characters.
func fitContext(docs []string, budget int) []string {
	out := make([]string, 0, len(docs))
	size := 0
	for _, doc := range docs {
		n := len(doc)
		if len(out) > 0 {
			n++
		}
		if budget > 0 && size+n > budget {
			break
		}
		size += n
		out = append(out, doc)
	}
	return out
}
