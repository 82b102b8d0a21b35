// Package chat holds the conversation state of an interactive session:
// the committed transcript and the review workflow that gates every
// model answer behind a human decision.
package chat

import (
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/dshills/multitool-chat/graph/model"
)

// Role identifies who produced a Turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ErrInvalidRole is returned by Append for roles other than user/assistant.
var ErrInvalidRole = errors.New("invalid turn role")

// Turn is one committed message. Turns are never mutated after Append.
type Turn struct {
	Role    Role
	Content string
}

// DisplayPair groups a user turn with the assistant turn right after it.
// Assistant is empty when no answer has been committed yet.
type DisplayPair struct {
	User      string
	Assistant string
}

// Transcript is the append-only log of committed turns for one session.
// It is safe for concurrent use.
type Transcript struct {
	mu    sync.RWMutex
	turns []Turn
}

// NewTranscript returns an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// Append adds turn to the end of the transcript.
func (t *Transcript) Append(turn Turn) error {
	if err := validRole(turn.Role); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.turns = append(t.turns, turn)
	return nil
}

// appendAll adds turns as one unit: either all are appended or none.
func (t *Transcript) appendAll(turns ...Turn) error {
	for _, turn := range turns {
		if err := validRole(turn.Role); err != nil {
			return err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.turns = append(t.turns, turns...)
	return nil
}

func validRole(r Role) error {
	if r != RoleUser && r != RoleAssistant {
		return fmt.Errorf("%w: %q", ErrInvalidRole, r)
	}
	return nil
}

// Len returns the number of committed turns.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.turns)
}

// Turns returns a copy of the committed turns in order.
func (t *Transcript) Turns() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return append([]Turn(nil), t.turns...)
}

// Messages converts the transcript into model messages.
func (t *Transcript) Messages() []model.Message {
	turns := t.Turns()
	msgs := make([]model.Message, len(turns))
	for i, turn := range turns {
		msgs[i] = model.Message{Role: string(turn.Role), Content: turn.Content}
	}
	return msgs
}

// Pairs yields display pairs, most recent first.
//
// A user turn pairs with the next turn only when that turn is an assistant
// turn; otherwise it yields an empty assistant side. An assistant turn with
// no user turn directly before it is skipped. Each call works on a snapshot
// taken when iteration starts.
func (t *Transcript) Pairs() iter.Seq[DisplayPair] {
	return func(yield func(DisplayPair) bool) {
		turns := t.Turns()

		for j := len(turns) - 1; j >= 0; j-- {
			var pair DisplayPair
			switch turns[j].Role {
			case RoleAssistant:
				if j == 0 || turns[j-1].Role != RoleUser {
					continue
				}
				pair = DisplayPair{User: turns[j-1].Content, Assistant: turns[j].Content}
				j--
			case RoleUser:
				pair = DisplayPair{User: turns[j].Content}
			}
			if !yield(pair) {
				return
			}
		}
	}
}
