package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/escalation"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/llm"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/memory"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/metrics"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/stage"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/ticket"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/workflow"
)

var apiTicket = ticket.Ticket{Subject: "API not working", Description: "Getting 500 errors"}

const (
	approveVerdict = `{"approved": true, "feedback": "Looks good", "violations": []}`
	rejectVerdict  = `{"approved": false, "feedback": "Needs improvement"}`
)

// scripted answers each purpose with a fixed reply and counts calls.
type scripted struct {
	mu      sync.Mutex
	replies map[llm.Purpose]string
	err     error
	calls   map[llm.Purpose]int
	prompts []llm.Prompt
}

func newScripted(review string) *scripted {
	return &scripted{
		replies: map[llm.Purpose]string{
			llm.PurposeClassification: "Technical",
			llm.PurposeDraft:          "Please check the API status page and retry with backoff.",
			llm.PurposeReview:         review,
		},
		calls: map[llm.Purpose]int{},
	}
}

func (s *scripted) Generate(_ context.Context, p llm.Prompt) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[p.Purpose]++
	s.prompts = append(s.prompts, p)
	if s.err != nil {
		return "", s.err
	}
	return s.replies[p.Purpose], nil
}

func (s *scripted) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

type capture struct {
	mu      sync.Mutex
	records []escalation.Record
	err     error
}

func (c *capture) Append(_ context.Context, rec escalation.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
	return c.err
}

func (c *capture) all() []escalation.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]escalation.Record(nil), c.records...)
}

// requireTerminal asserts exactly one of escalated or approved holds.
func requireTerminal(t *testing.T, s ticket.RunState) {
	t.Helper()
	require.NotEqual(t, s.Escalated, s.Approved(), "exactly one of escalated/approved must hold: %+v", s)
}

func TestApprovedOnFirstPass(t *testing.T) {
	gen := newScripted(approveVerdict)
	rec := &capture{}
	e := workflow.New(gen, nil, rec)

	s := e.ProcessTicket(context.Background(), map[string]string{
		"subject":     "API not working",
		"description": "Getting 500 errors",
	})

	requireTerminal(t, s)
	assert.False(t, s.Escalated)
	require.NotNil(t, s.Review)
	assert.True(t, s.Review.Approved)
	assert.Equal(t, 1, s.Attempt)
	assert.Equal(t, "approved", s.Outcome())
	assert.Equal(t, ticket.Technical, s.Classification.Category)
	assert.Equal(t, 1.0, s.Classification.Confidence)
	assert.Equal(t, s.Context.Documents, s.Draft.ContextUsed)
	assert.Empty(t, s.Degraded)
	assert.Empty(t, rec.all())
	assert.NotEmpty(t, s.ID)
}

func TestRejectedUntilRetriesExhausted(t *testing.T) {
	gen := newScripted(rejectVerdict)
	rec := &capture{}
	e := workflow.New(gen, nil, rec, workflow.WithMaxRetries(1))

	s := e.ProcessTicket(context.Background(), apiTicket)

	requireTerminal(t, s)
	assert.True(t, s.Escalated)
	assert.Equal(t, 2, s.Attempt)
	assert.Equal(t, workflow.ReasonRetriesExceeded, s.Reason)
	assert.Equal(t, 1, gen.calls[llm.PurposeClassification], "classification is not redone on retry")
	assert.Equal(t, 2, gen.calls[llm.PurposeDraft])
	assert.Equal(t, 2, gen.calls[llm.PurposeReview])

	records := rec.all()
	require.Len(t, records, 1)
	assert.Equal(t, "2", records[0][escalation.FieldAttempts])
	assert.Equal(t, "Technical", records[0][escalation.FieldCategory])
	assert.Equal(t, "Needs improvement", records[0][escalation.FieldFeedback])
	assert.Equal(t, s.ID, records[0][escalation.FieldRunID])
}

func TestRetryDraftReceivesFeedback(t *testing.T) {
	gen := newScripted(rejectVerdict)
	e := workflow.New(gen, nil, nil, workflow.WithMaxRetries(1))
	e.ProcessTicket(context.Background(), apiTicket)

	var drafts []llm.Prompt
	for _, p := range gen.prompts {
		if p.Purpose == llm.PurposeDraft {
			drafts = append(drafts, p)
		}
	}
	require.Len(t, drafts, 2)
	assert.NotContains(t, drafts[0].User, "Needs improvement")
	assert.Contains(t, drafts[1].User, "Reviewer feedback from previous attempt: Needs improvement")
}

func TestAttemptBoundAndCallBudget(t *testing.T) {
	for maxRetries := 0; maxRetries <= 3; maxRetries++ {
		t.Run(fmt.Sprintf("max=%d", maxRetries), func(t *testing.T) {
			gen := newScripted(rejectVerdict)
			e := workflow.New(gen, nil, nil, workflow.WithMaxRetries(maxRetries))

			s := e.ProcessTicket(context.Background(), apiTicket)

			requireTerminal(t, s)
			assert.True(t, s.Escalated)
			assert.Equal(t, maxRetries+1, s.Attempt)
			assert.Equal(t, 1+(1+maxRetries)*2, gen.total())
		})
	}
}

func TestGenerationFailsEverywhere(t *testing.T) {
	gen := newScripted("")
	gen.err = errors.New("provider unavailable")
	rec := &capture{}
	e := workflow.New(gen, nil, rec, workflow.WithMaxRetries(1))

	var s ticket.RunState
	require.NotPanics(t, func() { s = e.ProcessTicket(context.Background(), apiTicket) })

	requireTerminal(t, s)
	assert.True(t, s.Escalated)
	assert.Equal(t, ticket.Classification{Category: ticket.General, Confidence: 0}, *s.Classification)
	assert.Equal(t, stage.FallbackDraft, s.Draft.Content)
	assert.Empty(t, s.Draft.ContextUsed)
	assert.False(t, s.Review.Approved)
	assert.True(t, strings.HasPrefix(s.Review.Feedback, "Review system error: "))
	assert.Equal(t, []string{stage.SystemFailure}, s.Review.Violations)
	assert.Contains(t, s.Degraded, stage.NameClassify)
	assert.Contains(t, s.Degraded, stage.NameDraft)
	assert.Contains(t, s.Degraded, stage.NameReview)
	assert.Len(t, rec.all(), 1)
}

func TestEmptyTicketShortCircuits(t *testing.T) {
	gen := newScripted(approveVerdict)
	rec := &capture{}
	e := workflow.New(gen, nil, rec)

	s := e.ProcessTicket(context.Background(), map[string]any{"subject": "   ", "description": "\t"})

	requireTerminal(t, s)
	assert.True(t, s.Escalated)
	assert.Equal(t, workflow.ReasonEmptyTicket, s.Reason)
	assert.Equal(t, 0, s.Attempt)
	assert.Equal(t, ticket.Classification{Category: ticket.General, Confidence: 0}, *s.Classification)
	assert.Nil(t, s.Draft)
	assert.Nil(t, s.Review)
	assert.Equal(t, 0, gen.total())

	records := rec.all()
	require.Len(t, records, 1)
	assert.Equal(t, workflow.ReasonEmptyTicket, records[0][escalation.FieldReason])
	assert.Equal(t, escalation.NoDraft, records[0][escalation.FieldDraft])
	assert.Equal(t, escalation.NoFeedback, records[0][escalation.FieldFeedback])
}

func TestNonObjectInputIsCoerced(t *testing.T) {
	e := workflow.New(newScripted(approveVerdict), nil, nil)
	s := e.ProcessTicket(context.Background(), "plain string")

	assert.Equal(t, ticket.Ticket{Subject: ticket.InvalidSubject, Description: "plain string"}, s.Ticket)
	requireTerminal(t, s)
}

func TestViolationsForceRejection(t *testing.T) {
	gen := newScripted(`{"approved": true, "violations": ["Do not guarantee fixes"]}`)
	e := workflow.New(gen, nil, nil, workflow.WithMaxRetries(0))

	s := e.ProcessTicket(context.Background(), apiTicket)

	requireTerminal(t, s)
	assert.False(t, s.Review.Approved)
	assert.True(t, s.Escalated)
	assert.Equal(t, 1, s.Attempt)
}

func TestEscalationTriggerSkipsRetries(t *testing.T) {
	gen := newScripted(`{"approved": false, "violations": ["Escalate data loss cases"]}`)
	rec := &capture{}
	e := workflow.New(gen, nil, rec, workflow.WithMaxRetries(3))

	s := e.ProcessTicket(context.Background(), apiTicket)

	assert.True(t, s.Escalated)
	assert.Equal(t, 1, s.Attempt)
	assert.Equal(t, workflow.ReasonPolicyTrigger, s.Reason)
	require.Len(t, rec.all(), 1)
	assert.Equal(t, workflow.ReasonPolicyTrigger, rec.all()[0][escalation.FieldReason])
}

func TestRecorderFailureKeepsEscalation(t *testing.T) {
	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	failing := &capture{err: errors.New("disk full")}
	e := workflow.New(newScripted(rejectVerdict), nil, failing,
		workflow.WithMaxRetries(0), workflow.WithMetrics(m))

	s := e.ProcessTicket(context.Background(), apiTicket)
	assert.True(t, s.Escalated)
	assert.Len(t, failing.all(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecorderFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("escalated")))
}

func TestRecorderPanicKeepsEscalation(t *testing.T) {
	panicky := escalation.RecorderFunc(func(context.Context, escalation.Record) error {
		panic("nil writer")
	})
	e := workflow.New(newScripted(rejectVerdict), nil, panicky, workflow.WithMaxRetries(0))

	var s ticket.RunState
	require.NotPanics(t, func() { s = e.ProcessTicket(context.Background(), apiTicket) })
	assert.True(t, s.Escalated)
	assert.Empty(t, s.Error)
}

func TestRecorderSurvivesCancelledContext(t *testing.T) {
	var gotErr error
	rec := escalation.RecorderFunc(func(ctx context.Context, _ escalation.Record) error {
		gotErr = ctx.Err()
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := workflow.New(newScripted(approveVerdict), nil, rec)
	s := e.ProcessTicket(ctx, ticket.Ticket{})

	assert.True(t, s.Escalated)
	assert.NoError(t, gotErr)
}

func TestPipelineFailureIsEscalated(t *testing.T) {
	var calls atomic.Int32
	clock := func() time.Time {
		if calls.Add(1) == 2 {
			panic("clock skew")
		}
		return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	rec := &capture{}
	e := workflow.New(newScripted(approveVerdict), nil, rec, workflow.WithClock(clock))

	var s ticket.RunState
	require.NotPanics(t, func() { s = e.ProcessTicket(context.Background(), apiTicket) })

	requireTerminal(t, s)
	assert.True(t, s.Escalated)
	assert.Equal(t, workflow.ReasonPipelineFailure, s.Reason)
	assert.Contains(t, s.Error, "clock skew")
	require.Len(t, rec.all(), 1)
	assert.Contains(t, rec.all()[0][escalation.FieldReason], "clock skew")
}

// failingClock panics on the given calls and returns a fixed time otherwise.
func failingClock(on ...int32) func() time.Time {
	var calls atomic.Int32
	return func() time.Time {
		n := calls.Add(1)
		for _, c := range on {
			if n == c {
				panic("clock skew")
			}
		}
		return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	}
}

func TestEmptyTicketEscalationPanicIsContained(t *testing.T) {
	rec := &capture{}
	// Call 2 is the escalation timestamp of the empty-ticket path.
	e := workflow.New(newScripted(approveVerdict), nil, rec, workflow.WithClock(failingClock(2)))

	var s ticket.RunState
	require.NotPanics(t, func() { s = e.ProcessTicket(context.Background(), ticket.Ticket{}) })

	requireTerminal(t, s)
	assert.True(t, s.Escalated)
	assert.Equal(t, workflow.ReasonPipelineFailure, s.Reason)
	assert.Contains(t, s.Error, "clock skew")
	require.Len(t, rec.all(), 1)
}

func TestSecondEscalationPanicIsContained(t *testing.T) {
	rec := &capture{}
	e := workflow.New(newScripted(approveVerdict), nil, rec, workflow.WithClock(failingClock(2, 3)))

	var s ticket.RunState
	require.NotPanics(t, func() { s = e.ProcessTicket(context.Background(), ticket.Ticket{}) })

	assert.True(t, s.Escalated)
	assert.False(t, s.Approved())
	assert.Contains(t, s.Error, "clock skew")
	assert.Empty(t, rec.all())
}

func TestMemoryRecordsInteractions(t *testing.T) {
	store := memory.NewStore(0)
	e := workflow.New(newScripted(rejectVerdict), nil, nil,
		workflow.WithMaxRetries(0), workflow.WithMemory(store),
		workflow.WithIDGenerator(func() string { return "run-fixed" }))

	s := e.ProcessTicket(context.Background(), apiTicket)
	require.Equal(t, "run-fixed", s.ID)

	conv, ok := store.Get("run-fixed")
	require.True(t, ok)
	roles := make([]string, 0, len(conv.History))
	for _, in := range conv.History {
		roles = append(roles, in.Role)
	}
	assert.Equal(t, []string{
		memory.RoleCustomer,
		memory.RoleClassifier,
		memory.RoleAgent,
		memory.RoleReviewer,
		memory.RoleSystem,
	}, roles)
	assert.Equal(t, "Escalated: "+workflow.ReasonRetriesExceeded, conv.History[4].Content)
}

func TestConcurrentRunsAreIndependent(t *testing.T) {
	rec := &capture{}
	e := workflow.New(llm.NewStatic(), nil, rec)

	const n = 25
	results := make([]ticket.RunState, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.ProcessTicket(context.Background(), ticket.Ticket{
				Subject:     fmt.Sprintf("Invoice %d", i),
				Description: "Where can I download my invoice?",
			})
		}(i)
	}
	wg.Wait()

	ids := map[string]bool{}
	for _, s := range results {
		requireTerminal(t, s)
		assert.True(t, s.Approved())
		assert.Equal(t, ticket.Billing, s.Classification.Category)
		ids[s.ID] = true
	}
	assert.Len(t, ids, n)
	assert.Empty(t, rec.all())
}

func TestNegativeRetriesClampToZero(t *testing.T) {
	e := workflow.New(newScripted(rejectVerdict), nil, nil, workflow.WithMaxRetries(-4))
	assert.Equal(t, 0, e.MaxRetries())
	s := e.ProcessTicket(context.Background(), apiTicket)
	assert.Equal(t, 1, s.Attempt)
}
