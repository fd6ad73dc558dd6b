package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	defaultMaxMessage = 1000

	// PlaceholderReply is shown when the agent answered but nothing
	// displayable could be extracted.
	PlaceholderReply = "Thanks! Ask me more."
	// ApologyReply is shown when the agent could not be reached or rejected
	// the request.
	ApologyReply = "There was an issue reaching the AI service. Please try again."
)

type AgentClient interface {
	Send(ctx context.Context, sessionID, message string) (string, error)
	AgentID() string
}

// Gate admits at most one outstanding request per session.
type Gate interface {
	Acquire(ctx context.Context, sessionID string) (bool, error)
	Release(ctx context.Context, sessionID string) error
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type AskService struct {
	agent         AgentClient
	gate          Gate
	maxMessageLen int
	logger        *slog.Logger
}

type AskInput struct {
	Message   string
	SessionID string
}

type AskOutput struct {
	Reply     string
	SessionID string
	// Degraded is set when Reply is the apology rather than an agent answer.
	Degraded bool
}

func NewAskService(agent AgentClient, gate Gate, maxMessageLen int, logger *slog.Logger) (*AskService, error) {
	if agent == nil {
		return nil, errors.New("usecase: agent client must not be nil")
	}
	if gate == nil {
		return nil, errors.New("usecase: gate must not be nil")
	}
	if maxMessageLen <= 0 {
		maxMessageLen = defaultMaxMessage
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AskService{
		agent:         agent,
		gate:          gate,
		maxMessageLen: maxMessageLen,
		logger:        logger,
	}, nil
}

// Ask forwards one visitor message to the agent. Upstream failures never
// surface as errors: they degrade to ApologyReply. Errors are returned only
// for bad input, a busy session or a broken gate.
func (s *AskService) Ask(ctx context.Context, in AskInput) (AskOutput, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return AskOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if utf8.RuneCountInString(message) > s.maxMessageLen {
		return AskOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = s.agent.AgentID() + "-" + newSessionSuffix()
	}

	acquired, err := s.gate.Acquire(ctx, sessionID)
	if err != nil {
		return AskOutput{}, newError(ErrorInternal, "gate_error", err)
	}
	if !acquired {
		return AskOutput{}, newError(ErrorBusy, "request_in_flight", nil)
	}
	defer func() {
		// Released even when ctx is already done; a stuck gate blocks the session.
		if err := s.gate.Release(context.WithoutCancel(ctx), sessionID); err != nil {
			s.logger.Warn("failed to release session gate", "session_id", sessionID, "err", err)
		}
	}()

	reply, err := s.agent.Send(ctx, sessionID, message)
	if err != nil {
		attrs := []any{"session_id", sessionID, "err", err}
		if status, ok := upstreamStatusCode(err); ok {
			attrs = append(attrs, "status", status)
		}
		s.logger.Error("agent request failed", attrs...)
		return AskOutput{Reply: ApologyReply, SessionID: sessionID, Degraded: true}, nil
	}
	if strings.TrimSpace(reply) == "" {
		s.logger.Info("agent reply had no displayable text", "session_id", sessionID)
		reply = PlaceholderReply
	}

	return AskOutput{
		Reply:     reply,
		SessionID: sessionID,
	}, nil
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

var newSessionSuffix = func() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
