package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/multitool-chat/assistant"
	"github.com/dshills/multitool-chat/graph"
	"github.com/dshills/multitool-chat/graph/model"
)

var (
	// ErrAwaitingReview is returned by Submit while an answer is pending.
	ErrAwaitingReview = errors.New("an answer is awaiting review")

	// ErrSubmitInProgress is returned by Submit while another Submit is
	// waiting on the orchestrator.
	ErrSubmitInProgress = errors.New("a submission is already in progress")

	// ErrEmptyQuery is returned by Submit for blank input.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrNothingPending is returned by Edit, Approve and Reject when idle.
	ErrNothingPending = errors.New("no answer is pending")

	// ErrEmptyAnswer is returned by Approve for blank text. The answer
	// stays pending.
	ErrEmptyAnswer = errors.New("answer is empty")
)

// State is the review workflow state.
type State int

const (
	Idle State = iota
	AwaitingReview
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingReview:
		return "awaiting-review"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Pending is the candidate answer held for review.
type Pending struct {
	Question string

	// Answer is the editable candidate text.
	Answer string

	RunID     string
	ToolCalls []string
}

// Answerer produces one candidate answer for a conversation.
// *assistant.Orchestrator implements it.
type Answerer interface {
	Answer(ctx context.Context, messages []model.Message) (assistant.Result, error)
}

// Session couples a transcript with the review workflow. At most one
// answer is pending at a time; nothing reaches the transcript until it is
// approved.
type Session struct {
	answerer Answerer
	logger   *zap.Logger
	metrics  *graph.PrometheusMetrics

	mu         sync.Mutex
	transcript *Transcript
	pending    *Pending
	submitting bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *zap.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records approve/reject decisions.
func WithMetrics(metrics *graph.PrometheusMetrics) SessionOption {
	return func(s *Session) { s.metrics = metrics }
}

// WithTranscript starts the session from an existing transcript.
func WithTranscript(t *Transcript) SessionOption {
	return func(s *Session) {
		if t != nil {
			s.transcript = t
		}
	}
}

// NewSession creates an idle session with an empty transcript.
func NewSession(answerer Answerer, opts ...SessionOption) *Session {
	s := &Session{
		answerer:   answerer,
		logger:     zap.NewNop(),
		transcript: NewTranscript(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("session")
	return s
}

// Submit asks the orchestrator to answer query given the committed
// transcript. On success the answer becomes pending. On failure the
// session is left exactly as it was.
//
// The session lock is not held while the orchestrator runs, so State and
// Pending stay readable; concurrent Submits get ErrSubmitInProgress.
func (s *Session) Submit(ctx context.Context, query string) (Pending, error) {
	if strings.TrimSpace(query) == "" {
		return Pending{}, ErrEmptyQuery
	}

	s.mu.Lock()
	if s.pending != nil {
		s.mu.Unlock()
		return Pending{}, ErrAwaitingReview
	}
	if s.submitting {
		s.mu.Unlock()
		return Pending{}, ErrSubmitInProgress
	}
	s.submitting = true
	messages := append(s.transcript.Messages(), model.Message{Role: model.RoleUser, Content: query})
	s.mu.Unlock()

	s.logger.Debug("submitting", zap.Int("history", len(messages)-1))

	res, err := s.answerer.Answer(ctx, messages)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false

	if err != nil {
		s.logger.Warn("answer failed", zap.String("run_id", res.RunID), zap.Error(err))
		return Pending{Question: query, RunID: res.RunID}, fmt.Errorf("answer: %w", err)
	}

	s.pending = &Pending{
		Question:  query,
		Answer:    res.Answer,
		RunID:     res.RunID,
		ToolCalls: append([]string(nil), res.ToolCalls...),
	}
	s.logger.Debug("answer pending",
		zap.String("run_id", res.RunID),
		zap.Strings("tools", res.ToolCalls),
	)
	return *s.pending, nil
}

// Edit replaces the candidate text.
func (s *Session) Edit(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return ErrNothingPending
	}
	s.pending.Answer = text
	return nil
}

// Approve commits the question and text as a user/assistant pair and
// returns to Idle. text is committed verbatim but must not be blank.
func (s *Session) Approve(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return ErrNothingPending
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyAnswer
	}

	err := s.transcript.appendAll(
		Turn{Role: RoleUser, Content: s.pending.Question},
		Turn{Role: RoleAssistant, Content: text},
	)
	if err != nil {
		return err
	}

	s.logger.Debug("approved", zap.String("run_id", s.pending.RunID), zap.Bool("edited", text != s.pending.Answer))
	s.metrics.IncrementReviewDecisions("approve")
	s.pending = nil
	return nil
}

// Reject discards the pending answer without touching the transcript and
// returns the question so it can be offered for another try.
func (s *Session) Reject() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return "", ErrNothingPending
	}

	question := s.pending.Question
	s.logger.Debug("rejected", zap.String("run_id", s.pending.RunID))
	s.metrics.IncrementReviewDecisions("reject")
	s.pending = nil
	return question, nil
}

// Pending returns a copy of the pending answer, if any.
func (s *Session) Pending() (Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return Pending{}, false
	}
	p := *s.pending
	p.ToolCalls = append([]string(nil), s.pending.ToolCalls...)
	return p, true
}

// State reports the review state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		return AwaitingReview
	}
	return Idle
}

// Busy reports whether a Submit is waiting on the orchestrator.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.submitting
}

// Transcript returns the session transcript.
func (s *Session) Transcript() *Transcript {
	return s.transcript
}
