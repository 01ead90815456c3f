package batch

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/ticket"
)

// ReadTicketsCSV reads tickets from a CSV with "subject" and "description"
// columns. Header matching is case-insensitive; other columns are ignored.
func ReadTicketsCSV(r io.Reader) ([]ticket.Ticket, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	subjectIdx, descIdx := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "subject":
			subjectIdx = i
		case "description":
			descIdx = i
		}
	}
	if subjectIdx < 0 {
		return nil, fmt.Errorf("missing required column %q", "subject")
	}
	if descIdx < 0 {
		return nil, fmt.Errorf("missing required column %q", "description")
	}

	var out []ticket.Ticket
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		need := max(subjectIdx, descIdx) + 1
		if len(rec) < need {
			return nil, fmt.Errorf("row has %d columns, want at least %d", len(rec), need)
		}
		out = append(out, ticket.Normalize(ticket.Ticket{
			Subject:     rec[subjectIdx],
			Description: rec[descIdx],
		}))
	}
	return out, nil
}

// ReadTicketsJSON reads either a JSON array of ticket objects or JSON Lines.
// Entries that are not objects become invalid-ticket sentinels.
func ReadTicketsJSON(r io.Reader) ([]ticket.Ticket, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read tickets: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("decode ticket array: %w", err)
		}
		out := make([]ticket.Ticket, 0, len(raw))
		for _, item := range raw {
			out = append(out, ticket.ParseInput(item))
		}
		return out, nil
	}

	var out []ticket.Ticket
	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		out = append(out, ticket.ParseInput(bytes.Clone(line)))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ticket lines: %w", err)
	}
	return out, nil
}

// Writer streams finished runs to an output.
type Writer interface {
	Write(s ticket.RunState) error
	Flush() error
}

// JSONLWriter writes one RunState JSON object per line.
type JSONLWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLWriter returns a Writer producing JSON Lines on w.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{enc: json.NewEncoder(w)}
}

func (w *JSONLWriter) Write(s ticket.RunState) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(s)
}

func (w *JSONLWriter) Flush() error { return nil }

// SummaryColumns is the header written by CSVWriter.
var SummaryColumns = []string{
	"run_id", "subject", "description", "category", "confidence",
	"attempts", "outcome", "reason", "draft", "feedback",
}

// CSVWriter writes one summary row per run.
type CSVWriter struct {
	mu          sync.Mutex
	w           *csv.Writer
	wroteHeader bool
}

// NewCSVWriter returns a Writer producing summary CSV rows on w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

func (w *CSVWriter) Write(s ticket.RunState) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.wroteHeader {
		if err := w.w.Write(SummaryColumns); err != nil {
			return err
		}
		w.wroteHeader = true
	}

	var confidence, draft, feedback string
	if s.Classification != nil {
		confidence = strconv.FormatFloat(s.Classification.Confidence, 'f', -1, 64)
	}
	if s.Draft != nil {
		draft = s.Draft.Content
	}
	if s.Review != nil {
		feedback = s.Review.Feedback
	}
	reason := s.Reason
	if s.Error != "" {
		reason = s.Error
	}
	return w.w.Write([]string{
		s.ID,
		s.Ticket.Subject,
		s.Ticket.Description,
		s.CategoryOr(""),
		confidence,
		strconv.Itoa(s.Attempt),
		s.Outcome(),
		reason,
		draft,
		feedback,
	})
}

func (w *CSVWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.w.Flush()
	return w.w.Error()
}
