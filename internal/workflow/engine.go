// Package workflow drives a ticket through classify, retrieve, draft and review,
// then approves it, retries the draft loop, or escalates it to a human.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anggasct/fluo"
	"github.com/google/uuid"

	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/escalation"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/knowledge"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/llm"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/memory"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/metrics"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/redact"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/stage"
	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/ticket"
)

const (
	// DefaultMaxRetryAttempts is the number of draft retries after the first review.
	DefaultMaxRetryAttempts = 1
	// DefaultContextBudget caps the grounding context handed to the drafter, in characters.
	DefaultContextBudget = 28000 - 1000
	// DefaultRecordTimeout bounds a single escalation append.
	DefaultRecordTimeout = 10 * time.Second
)

// Escalation reasons stored on RunState.Reason.
const (
	ReasonEmptyTicket     = "Empty ticket content"
	ReasonPolicyTrigger   = "Policy violation requires human review"
	ReasonRetriesExceeded = "Max retry attempts exceeded"
	ReasonPipelineFailure = "Pipeline failure"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Every run logs under its run_id.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMaxRetries sets the number of retries allowed after the first review.
// Negative values are treated as zero.
func WithMaxRetries(n int) Option {
	return func(e *Engine) { e.maxRetries = max(n, 0) }
}

// WithTemperatures sets per-stage sampling temperatures.
func WithTemperatures(t llm.Temperatures) Option {
	return func(e *Engine) { e.temps = t }
}

// WithContextBudget caps the drafter's grounding context in characters.
func WithContextBudget(chars int) Option {
	return func(e *Engine) { e.budget = chars }
}

// WithMemory records each run's interactions in store.
func WithMemory(store *memory.Store) Option {
	return func(e *Engine) { e.memory = store }
}

// WithMetrics reports run and stage metrics to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the time source used for escalation timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// WithRecordTimeout bounds each escalation append.
func WithRecordTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.recordTimeout = d
		}
	}
}

// Engine runs tickets through the resolution state machine.
//
// An Engine holds no per-run state and is safe for concurrent ProcessTicket
// calls; each run drives its own instance of the machine definition.
type Engine struct {
	classifier *stage.Classifier
	retriever  *stage.Retriever
	drafter    *stage.Drafter
	reviewer   *stage.Reviewer
	recorder   escalation.Recorder
	machine    fluo.MachineDefinition

	logger        *slog.Logger
	maxRetries    int
	temps         llm.Temperatures
	budget        int
	memory        *memory.Store
	metrics       *metrics.Metrics
	now           func() time.Time
	newID         func() string
	recordTimeout time.Duration
}

// New builds an Engine. A nil lookup uses the built-in knowledge base and a nil
// recorder discards escalation records.
func New(gen llm.Generator, lookup knowledge.Lookup, recorder escalation.Recorder, opts ...Option) *Engine {
	e := &Engine{
		recorder:      recorder,
		logger:        slog.Default(),
		maxRetries:    DefaultMaxRetryAttempts,
		temps:         llm.DefaultTemperatures(),
		budget:        DefaultContextBudget,
		now:           time.Now,
		newID:         uuid.NewString,
		recordTimeout: DefaultRecordTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if lookup == nil {
		lookup = knowledge.Default()
	}
	if e.recorder == nil {
		e.recorder = escalation.Nop{}
	}

	e.classifier = stage.NewClassifier(gen, e.temps.Classification)
	e.retriever = stage.NewRetriever(lookup)
	e.drafter = stage.NewDrafter(gen, e.temps.Draft, e.budget)
	e.reviewer = stage.NewReviewer(gen, e.temps.Review)
	e.machine = Definition(e.maxRetries)
	return e
}

// MaxRetries returns the configured retry bound.
func (e *Engine) MaxRetries() int { return e.maxRetries }

// ProcessTicket resolves one ticket and returns its final state. It always
// reaches a terminal state: exactly one of Escalated or Review.Approved holds
// on return. Failures inside the run are reflected in the state, never raised.
//
// input may be a ticket.Ticket, a map, or raw JSON; other shapes become an
// invalid-ticket sentinel.
func (e *Engine) ProcessTicket(ctx context.Context, input any) (state ticket.RunState) {
	state = ticket.RunState{ID: e.newID(), Ticket: ticket.Normalize(input)}
	log := e.logger.With("run_id", state.ID)
	start := e.now()

	e.metrics.RunStarted()
	defer func() {
		e.metrics.RunFinished(state.Outcome(), state.Attempt)
		log.Info("ticket processed",
			"outcome", state.Outcome(),
			"category", state.CategoryOr(escalation.UnknownCategory),
			"attempts", state.Attempt,
			"elapsed", e.now().Sub(start))
	}()

	defer func() {
		if r := recover(); r != nil {
			e.fail(ctx, log, &state, r)
		}
	}()

	if e.memory != nil {
		e.memory.Open(state.ID, state.Ticket)
	}
	e.remember(state.ID, memory.RoleCustomer, state.Ticket.Query())

	if err := e.run(ctx, log, &state); err != nil {
		e.fail(ctx, log, &state, err)
	}
	return state
}

// fail escalates a run whose pipeline broke. A second failure while
// escalating leaves the run escalated without a record.
func (e *Engine) fail(ctx context.Context, log *slog.Logger, s *ticket.RunState, cause any) {
	s.Error = redact.Secrets(fmt.Sprintf("pipeline failure: %v", cause))
	s.Reason = ReasonPipelineFailure
	log.Error("pipeline failure", "error", s.Error)

	defer func() {
		if r := recover(); r != nil {
			s.Escalated = true
			log.Error("escalation after pipeline failure failed", "error", redact.Secrets(fmt.Sprint(r)))
		}
	}()
	e.escalate(ctx, log, s)
}

// run walks one machine instance from classify to a terminal state. The
// machine decides every move; run executes the stage owned by the current
// state and reports its completion as an event.
func (e *Engine) run(ctx context.Context, log *slog.Logger, s *ticket.RunState) error {
	m := e.machine.CreateInstance()
	rd := bindRun(m.Context(), s)
	m.AddObserver(&transitionLog{log: log})
	if err := m.Start(); err != nil {
		return fmt.Errorf("start state machine: %w", err)
	}
	defer func() { _ = m.Stop() }()

	for {
		current := State(m.CurrentState())
		var event string

		switch current {
		case StateClassify:
			if s.Ticket.IsEmpty() {
				s.Classification = &ticket.Classification{Category: ticket.General, Confidence: 0}
				s.Reason = ReasonEmptyTicket
				event = EventRejected
				break
			}
			res := timed(e, log, s, stage.NameClassify, func() stage.Result[ticket.Classification] {
				return e.classifier.Classify(ctx, s.Ticket)
			})
			s.Classification = &res.Value
			e.remember(s.ID, memory.RoleClassifier, string(res.Value.Category))
			event = EventClassified

		case StateRetrieve:
			category := s.CategoryOr(string(ticket.General))
			res := timed(e, log, s, stage.NameRetrieve, func() stage.Result[ticket.Context] {
				return e.retriever.Retrieve(ctx, category, s.Ticket.Query())
			})
			s.Context = &res.Value
			event = EventRetrieved

		case StateDraft:
			docs := ticket.Context{}
			if s.Context != nil {
				docs = *s.Context
			}
			res := timed(e, log, s, stage.NameDraft, func() stage.Result[ticket.Draft] {
				return e.drafter.Draft(ctx, s.Ticket, docs, rd.feedback)
			})
			s.Draft = &res.Value
			e.remember(s.ID, memory.RoleAgent, res.Value.Content)
			event = EventDrafted

		case StateReview:
			category := ticket.General
			if s.Classification != nil {
				category = s.Classification.Category
			}
			draft := ticket.Draft{}
			if s.Draft != nil {
				draft = *s.Draft
			}
			res := timed(e, log, s, stage.NameReview, func() stage.Result[ticket.Review] {
				return e.reviewer.Review(ctx, s.Ticket, category, draft)
			})
			s.Review = &res.Value
			s.Attempt++
			e.remember(s.ID, memory.RoleReviewer, res.Value.Feedback)
			log.Debug("review finished",
				"attempt", s.Attempt,
				"approved", res.Value.Approved,
				"violations", len(res.Value.Violations))
			event = EventReviewed

		case StateApproved:
			return nil

		case StateEscalated:
			e.escalate(ctx, log, s)
			return nil

		default:
			return fmt.Errorf("state machine entered unknown state %q", current)
		}

		if res := m.HandleEventWithContext(ctx, event, nil); !res.Success() {
			if res.Error != nil {
				return fmt.Errorf("%s in state %s: %w", event, current, res.Error)
			}
			return fmt.Errorf("%s in state %s: %s", event, current, res.RejectionReason)
		}
	}
}

// transitionLog reports machine moves at debug level.
type transitionLog struct {
	fluo.BaseObserver
	log *slog.Logger
}

func (o *transitionLog) OnTransition(from, to string, event fluo.Event, _ fluo.Context) {
	name := ""
	if event != nil {
		name = event.GetName()
	}
	o.log.Debug("state transition", "from", from, "to", to, "event", name)
}

// timed runs one stage, recording its latency and any degradation.
func timed[T any](e *Engine, log *slog.Logger, s *ticket.RunState, name string, fn func() stage.Result[T]) stage.Result[T] {
	start := e.now()
	res := fn()
	e.metrics.ObserveStage(name, e.now().Sub(start), res.Degraded)
	if res.Degraded {
		s.Degraded = append(s.Degraded, name)
		log.Warn("stage degraded", "stage", name, "attempt", s.Attempt, "error", redact.Error(res.Err))
	}
	return res
}

// escalate marks the run escalated and appends its record. A failing recorder
// is logged and counted; the run stays escalated.
func (e *Engine) escalate(ctx context.Context, log *slog.Logger, s *ticket.RunState) {
	s.Escalated = true
	if s.Review != nil && s.Review.Approved {
		r := *s.Review
		r.Approved = false
		s.Review = &r
	}

	reason := s.Reason
	if s.Error != "" {
		reason = s.Error
	}
	e.remember(s.ID, memory.RoleSystem, "Escalated: "+reason)

	rec := escalation.Snapshot(*s, e.now())
	if err := e.record(ctx, rec); err != nil {
		e.metrics.RecorderFailed()
		log.Error("escalation record failed", "error", redact.Error(err))
	}
	log.Warn("ticket escalated", "reason", reason, "attempts", s.Attempt)
}

func (e *Engine) record(ctx context.Context, rec escalation.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("escalation recorder panic: %v", r)
		}
	}()
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.recordTimeout)
	defer cancel()
	return e.recorder.Append(rctx, rec)
}

func (e *Engine) remember(id, role, content string) {
	if e.memory == nil {
		return
	}
	if err := e.memory.Add(id, role, content); err != nil {
		e.logger.Debug("memory append skipped", "run_id", id, "error", err)
	}
}
