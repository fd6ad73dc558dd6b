// Package chat holds the state of one chat widget: the transcript shown to
// the visitor and the loading flag that blocks a second submission while a
// reply is outstanding.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"portfolio-copilot/internal/domain"
	"portfolio-copilot/internal/usecase"
)

const Greeting = "Hi, I'm the AI co-pilot for this portfolio. Ask me about projects, skills, or experience."

// ErrBusy is returned by Send while a previous message is still awaiting its
// reply.
var ErrBusy = errors.New("chat: a reply is still loading")

type Asker interface {
	Ask(ctx context.Context, in usecase.AskInput) (usecase.AskOutput, error)
}

type Session struct {
	asker   Asker
	loading atomic.Bool

	mu        sync.RWMutex
	sessionID string
	messages  []domain.ChatMessage
}

// NewSession starts a transcript containing only the greeting.
func NewSession(asker Asker) (*Session, error) {
	if asker == nil {
		return nil, errors.New("chat: asker must not be nil")
	}
	return &Session{
		asker:    asker,
		messages: []domain.ChatMessage{{Role: domain.RoleAssistant, Content: Greeting}},
	}, nil
}

// Send submits input and returns the assistant message appended for it.
// Blank input is ignored and returns ok=false. Any failure to get a reply is
// rendered as the apology message rather than returned.
func (s *Session) Send(ctx context.Context, input string) (domain.ChatMessage, bool, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return domain.ChatMessage{}, false, nil
	}
	if !s.loading.CompareAndSwap(false, true) {
		return domain.ChatMessage{}, false, ErrBusy
	}
	defer s.loading.Store(false)

	s.append(domain.ChatMessage{Role: domain.RoleUser, Content: trimmed})

	out, err := s.asker.Ask(ctx, usecase.AskInput{Message: trimmed, SessionID: s.SessionID()})
	reply := out.Reply
	switch {
	case err != nil:
		reply = usecase.ApologyReply
	case strings.TrimSpace(reply) == "":
		reply = usecase.PlaceholderReply
	}
	if out.SessionID != "" {
		s.mu.Lock()
		s.sessionID = out.SessionID
		s.mu.Unlock()
	}

	msg := domain.ChatMessage{Role: domain.RoleAssistant, Content: reply}
	s.append(msg)
	return msg, true, nil
}

// Loading reports whether a reply is outstanding.
func (s *Session) Loading() bool {
	return s.loading.Load()
}

// SessionID is empty until the first reply assigns one.
func (s *Session) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []domain.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ChatMessage(nil), s.messages...)
}

func (s *Session) append(m domain.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
}
