package llm

import (
	"context"
	"strings"
)

// Static is an offline generator with canned, deterministic replies. It backs
// the "static" provider used for demos and smoke tests without credentials.
type Static struct {
	// Replies overrides the built-in reply for a purpose.
	Replies map[Purpose]string
}

// NewStatic returns a Static generator with the built-in replies.
func NewStatic() *Static {
	return &Static{}
}

var staticKeywords = []struct {
	category string
	words    []string
}{
	{category: "Security", words: []string{"password", "phishing", "2fa", "hacked", "breach", "suspicious"}},
	{category: "Billing", words: []string{"refund", "invoice", "payment", "charge", "subscription", "billing"}},
	{category: "Technical", words: []string{"error", "bug", "crash", "api", "login", "500"}},
}

const staticApproval = `{"approved": true, "feedback": "Approved by the static reviewer", "violations": []}`

func (s *Static) Generate(ctx context.Context, p Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if r, ok := s.Replies[p.Purpose]; ok {
		return r, nil
	}
	switch p.Purpose {
	case PurposeClassification:
		return staticCategory(p.User), nil
	case PurposeReview:
		return staticApproval, nil
	default:
		return staticDraft(p.User), nil
	}
}

func staticCategory(text string) string {
	lower := strings.ToLower(text)
	for _, kw := range staticKeywords {
		for _, w := range kw.words {
			if strings.Contains(lower, w) {
				return kw.category
			}
		}
	}
	return "General"
}

func staticDraft(user string) string {
	subject := strings.TrimSpace(strings.SplitN(user, "\n", 2)[0])
	subject = strings.TrimSpace(strings.TrimPrefix(subject, "Ticket Subject:"))
	if subject == "" {
		subject = "your request"
	}
	return "Thank you for reaching out about \"" + subject + "\". " +
		"Our team has reviewed your request and will follow up with the next steps shortly."
}
