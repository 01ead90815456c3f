package ticket

import (
	"encoding/json"
	"fmt"
	"strings"
)

// InvalidSubject marks a ticket coerced from input that was not ticket-shaped.
const InvalidSubject = "INVALID"

// Normalize coerces arbitrary input into a Ticket.
//
// Ticket values and string-keyed maps are read field-wise; JSON bytes are decoded
// first. Anything else becomes {Subject: "INVALID", Description: <input as text>}.
// Subject and description are always trimmed.
func Normalize(input any) Ticket {
	var t Ticket
	switch v := input.(type) {
	case Ticket:
		t = v
	case *Ticket:
		if v == nil {
			return invalid(input)
		}
		t = *v
	case map[string]string:
		t = Ticket{Subject: v["subject"], Description: v["description"]}
	case map[string]any:
		t = Ticket{Subject: field(v, "subject"), Description: field(v, "description")}
	case json.RawMessage:
		return ParseInput(v)
	case []byte:
		return ParseInput(v)
	default:
		return invalid(input)
	}
	return Ticket{
		Subject:     strings.TrimSpace(t.Subject),
		Description: strings.TrimSpace(t.Description),
	}
}

// ParseInput decodes a JSON document into a Ticket. Documents that are not JSON
// objects become INVALID tickets carrying the document text; a bare JSON string
// carries its decoded value.
func ParseInput(b []byte) Ticket {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return invalid(string(b))
	}
	switch v := raw.(type) {
	case map[string]any:
		return Normalize(v)
	case string:
		return invalid(v)
	default:
		return invalid(string(b))
	}
}

func field(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func invalid(input any) Ticket {
	return Ticket{
		Subject:     InvalidSubject,
		Description: strings.TrimSpace(fmt.Sprint(input)),
	}
}
