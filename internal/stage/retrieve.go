package stage

import (
	"context"

	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/knowledge"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/ticket"
)

// Retriever fetches reference documents for a category.
type Retriever struct {
	lookup knowledge.Lookup
}

// NewRetriever returns a Retriever backed by lookup.
func NewRetriever(lookup knowledge.Lookup) *Retriever {
	return &Retriever{lookup: lookup}
}

// Retrieve looks up documents for category. A failing lookup degrades to a
// Context with no documents.
func (r *Retriever) Retrieve(ctx context.Context, category, query string) Result[ticket.Context] {
	fallback := func(error) ticket.Context {
		return ticket.Context{Category: category, Documents: []string{}}
	}
	return guard(fallback, func() (ticket.Context, error) {
		docs, err := r.lookup.Lookup(ctx, category, query)
		if err != nil {
			return ticket.Context{}, err
		}
		if docs == nil {
			docs = []string{}
		}
		return ticket.Context{Category: category, Documents: docs}, nil
	})
}
