package workflow

import (
	"errors"
	"fmt"

	"github.com/anggasct/fluo"

	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/ticket"
)

// State is a node of the resolution state machine.
type State string

const (
	// Entry state; runs once per ticket.
	StateClassify State = "classify"
	StateRetrieve State = "retrieve"
	StateDraft    State = "draft"
	StateReview   State = "review"
	// Terminal: the draft was approved.
	StateApproved State = "approved"
	// Terminal: the ticket is handed to a human.
	StateEscalated State = "escalated"
)

func (s State) String() string { return string(s) }

// Terminal reports whether no further stage runs from s.
func (s State) Terminal() bool {
	return s == StateApproved || s == StateEscalated
}

// Events fired by the engine when a stage completes.
const (
	EventClassified = "classified"
	// Input failure: the ticket cannot be worked on.
	EventRejected  = "rejected"
	EventRetrieved = "retrieved"
	EventDrafted   = "drafted"
	EventReviewed  = "reviewed"
)

// Transition is the branch taken after a review pass.
type Transition int

const (
	TransitionApprove Transition = iota
	TransitionRetry
	TransitionEscalate
)

func (t Transition) String() string {
	switch t {
	case TransitionApprove:
		return "approve"
	case TransitionRetry:
		return "retry"
	case TransitionEscalate:
		return "escalate"
	default:
		return fmt.Sprintf("Transition(%d)", int(t))
	}
}

// Next returns the state a transition leads to.
func (t Transition) Next() State {
	switch t {
	case TransitionApprove:
		return StateApproved
	case TransitionRetry:
		return StateRetrieve
	default:
		return StateEscalated
	}
}

// Decide picks the branch after a review pass. Rules apply in order:
//
//  1. an escalated run, or a review carrying an escalation trigger, escalates;
//  2. an approved review approves;
//  3. while Attempt <= maxRetries the run retries;
//  4. otherwise it escalates.
//
// Attempt counts completed reviews, so maxRetries is the number of retries
// allowed after the first pass.
func Decide(s ticket.RunState, maxRetries int) Transition {
	switch {
	case s.Escalated, s.Review != nil && s.Review.EscalationTrigger:
		return TransitionEscalate
	case s.Approved():
		return TransitionApprove
	case s.Attempt <= maxRetries:
		return TransitionRetry
	default:
		return TransitionEscalate
	}
}

var errMissingRun = errors.New("machine context carries no run")

// runKey holds the *runData of a machine instance in its fluo.Context.
const runKey = "run"

// runData is the per-run payload guards and transition actions operate on.
type runData struct {
	state *ticket.RunState
	// feedback is the last review's feedback, handed to the next draft.
	feedback string
}

// BindRun attaches s to a machine instance so the review guards and
// transition actions of Definition can act on it.
func BindRun(ctx fluo.Context, s *ticket.RunState) {
	bindRun(ctx, s)
}

func bindRun(ctx fluo.Context, s *ticket.RunState) *runData {
	rd := &runData{state: s}
	ctx.Set(runKey, rd)
	return rd
}

func runFrom(ctx fluo.Context) (*runData, bool) {
	v, ok := ctx.Get(runKey)
	if !ok {
		return nil, false
	}
	rd, ok := v.(*runData)
	return rd, ok && rd.state != nil
}

// Definition builds the resolution graph:
//
//	classify --classified--> retrieve --retrieved--> draft --drafted--> review
//	classify --rejected----> escalated
//	review   --reviewed----> approved | retrieve | escalated   (guarded by Decide)
//
// The definition is immutable; each run works on its own instance.
func Definition(maxRetries int) fluo.MachineDefinition {
	decides := func(t Transition) fluo.GuardFunc {
		return func(ctx fluo.Context) bool {
			rd, ok := runFrom(ctx)
			return ok && Decide(*rd.state, maxRetries) == t
		}
	}

	b := fluo.NewMachine()
	b.State(string(StateClassify)).Initial().
		To(string(StateRetrieve)).On(EventClassified).
		To(string(StateEscalated)).On(EventRejected)

	b.State(string(StateRetrieve)).
		To(string(StateDraft)).On(EventRetrieved)

	b.State(string(StateDraft)).
		To(string(StateReview)).On(EventDrafted)

	b.State(string(StateReview)).
		To(string(StateEscalated)).On(EventReviewed).When(decides(TransitionEscalate)).Do(markEscalationReason).
		To(string(StateApproved)).On(EventReviewed).When(decides(TransitionApprove)).
		To(string(StateRetrieve)).On(EventReviewed).When(decides(TransitionRetry)).Do(carryFeedback)

	b.State(string(StateApproved)).Final()
	b.State(string(StateEscalated)).Final()
	return b.Build()
}

// carryFeedback hands the rejected review's feedback to the next draft.
func carryFeedback(ctx fluo.Context) error {
	rd, ok := runFrom(ctx)
	if !ok {
		return errMissingRun
	}
	if rd.state.Review != nil {
		rd.feedback = rd.state.Review.Feedback
	}
	return nil
}

// markEscalationReason records why a reviewed run leaves for a human, unless
// a reason is already set.
func markEscalationReason(ctx fluo.Context) error {
	rd, ok := runFrom(ctx)
	if !ok {
		return errMissingRun
	}
	s := rd.state
	if s.Reason != "" {
		return nil
	}
	s.Reason = ReasonRetriesExceeded
	if s.Review != nil && s.Review.EscalationTrigger {
		s.Reason = ReasonPolicyTrigger
	}
	return nil
}
