package stage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/llm"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/ticket"
)

const (
	// DefaultFeedback is used when a verdict carries no feedback.
	DefaultFeedback = "Policy check completed"
	// SystemFailure is the single violation reported when review itself fails.
	SystemFailure = "System failure"

	escalatePrefix = "escalate"
)

// PolicyRules lists the rules a draft is judged against, per category.
var PolicyRules = map[ticket.Category][]string{
	ticket.Billing: {
		"Do not promise refunds",
		"Do not modify payment terms",
		"Escalate credit requests",
	},
	ticket.Security: {
		"Do not share credentials",
		"Escalate account breaches",
		"Require 2FA verification",
	},
	ticket.Technical: {
		"Do not guarantee fixes",
		"Escalate data loss cases",
		"Provide troubleshooting steps",
	},
	ticket.General: {
		"Maintain professional tone",
		"Escalate legal inquiries",
		"Provide clear next steps",
	},
}

const reviewSystemTemplate = `As a support policy enforcer, evaluate the draft response against %s policies:
- %s

Requirements:
1. Check for policy violations
2. Assess professionalism
3. Verify context usage

Return ONLY a JSON object with:
- approved: boolean
- feedback: string (if rejected)
- violations: list of violated rules (if any)

Example:
{"approved": false, "feedback": "Violates policy rule 1", "violations": ["Do not promise refunds"]}`

// Reviewer judges drafts against the category policy table. It fails closed:
// any error yields an unapproved verdict.
type Reviewer struct {
	gen         llm.Generator
	temperature float64
}

// NewReviewer returns a Reviewer backed by gen.
func NewReviewer(gen llm.Generator, temperature float64) *Reviewer {
	return &Reviewer{gen: gen, temperature: temperature}
}

func reviewFailed(err error) ticket.Review {
	return ticket.Review{
		Approved:   false,
		Feedback:   "Review system error: " + err.Error(),
		Violations: []string{SystemFailure},
	}
}

// Review evaluates d for a ticket resolved to category.
func (r *Reviewer) Review(ctx context.Context, t ticket.Ticket, category ticket.Category, d ticket.Draft) Result[ticket.Review] {
	return guard(reviewFailed, func() (ticket.Review, error) {
		rules := rulesFor(category)
		raw, err := r.gen.Generate(ctx, llm.Prompt{
			Purpose: llm.PurposeReview,
			System:  fmt.Sprintf(reviewSystemTemplate, category, strings.Join(rules, "\n- ")),
			User: "Ticket:\nSubject: " + t.Subject + "\nDescription: " + t.Description +
				"\n\nDraft response:\n" + d.Content,
			Temperature: r.temperature,
		})
		if err != nil {
			return ticket.Review{}, err
		}
		v, err := parseVerdict(raw)
		if err != nil {
			return ticket.Review{}, err
		}
		v.EscalationTrigger = triggersEscalation(v.Violations, rules)
		return v, nil
	})
}

func rulesFor(category ticket.Category) []string {
	if rules, ok := PolicyRules[category]; ok {
		return rules
	}
	return PolicyRules[ticket.General]
}

// parseVerdict decodes a model verdict. Absent or mistyped keys read as
// false/empty; only a missing or undecodable object is an error.
func parseVerdict(raw string) (ticket.Review, error) {
	payload := extractJSONObject(raw)
	if payload == "" {
		return ticket.Review{}, errors.New("no JSON object in review response")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return ticket.Review{}, fmt.Errorf("decode review verdict: %w", err)
	}

	v := ticket.Review{
		Approved:   decodeBool(fields["approved"]),
		Feedback:   decodeString(fields["feedback"]),
		Violations: decodeStrings(fields["violations"]),
	}
	if v.Feedback == "" {
		v.Feedback = DefaultFeedback
	}
	if len(v.Violations) > 0 {
		v.Approved = false
	}
	return v, nil
}

func decodeBool(raw json.RawMessage) bool {
	var b bool
	if json.Unmarshal(raw, &b) == nil {
		return b
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.EqualFold(strings.TrimSpace(s), "true")
	}
	return false
}

func decodeString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var v any
	if json.Unmarshal(raw, &v) == nil && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

func decodeStrings(raw json.RawMessage) []string {
	out := []string{}
	if len(raw) == 0 {
		return out
	}
	var list []any
	if json.Unmarshal(raw, &list) == nil {
		for _, item := range list {
			if item == nil {
				continue
			}
			s, ok := item.(string)
			if !ok {
				s = fmt.Sprint(item)
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// triggersEscalation reports whether any violation names an "Escalate" rule.
func triggersEscalation(violations, rules []string) bool {
	for _, v := range violations {
		lv := strings.ToLower(v)
		if strings.HasPrefix(lv, escalatePrefix) {
			return true
		}
		for _, rule := range rules {
			lr := strings.ToLower(rule)
			if strings.HasPrefix(lr, escalatePrefix) && strings.Contains(lv, lr) {
				return true
			}
		}
	}
	return false
}
