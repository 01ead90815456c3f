// Package knowledge provides the reference-material lookup used to ground drafts.
package knowledge

import (
	"context"
	"slices"
)

// NotFound is the single document returned for categories without reference material.
const NotFound = "No relevant documentation found"

// Lookup maps a category and free-text query to reference snippets.
type Lookup interface {
	Lookup(ctx context.Context, category, query string) ([]string, error)
}

// LookupFunc adapts a function to the Lookup interface.
type LookupFunc func(ctx context.Context, category, query string) ([]string, error)

func (f LookupFunc) Lookup(ctx context.Context, category, query string) ([]string, error) {
	return f(ctx, category, query)
}

// Static is a fixed category -> documents table. The query is ignored; results
// depend only on the category.
type Static map[string][]string

// Lookup returns a copy of the documents for category, or the NotFound sentinel.
func (s Static) Lookup(_ context.Context, category, _ string) ([]string, error) {
	docs, ok := s[category]
	if !ok || len(docs) == 0 {
		return []string{NotFound}, nil
	}
	return slices.Clone(docs), nil
}

// Default returns the built-in support knowledge base.
func Default() Static {
	return Static{
		"Billing": {
			"Refunds take 5-7 business days",
			"Upgrade plans in Account Settings",
			"Invoices available in Billing Portal",
		},
		"Technical": {
			"Clear cache/cookies for login issues",
			"API rate limit: 100 requests/minute",
			"Mobile app requires iOS 15+ or Android 10+",
		},
		"Security": {
			"We never ask for passwords via email",
			"Enable 2FA in Security Settings",
			"Report phishing to security@company.com",
		},
		"General": {
			"Support hours: 9AM-5PM EST Mon-Fri",
			"FAQ available at help.company.com",
			"Urgent issues: call 1-800-COMPANY",
		},
	}
}
