package usecase

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"portfolio-copilot/internal/integrations/agent"
)

type mockAgent struct {
	reply     string
	err       error
	callCount int
	sessionID string
	message   string
	onSend    func()
}

func (m *mockAgent) Send(_ context.Context, sessionID, message string) (string, error) {
	m.callCount++
	m.sessionID = sessionID
	m.message = message
	if m.onSend != nil {
		m.onSend()
	}
	return m.reply, m.err
}

func (m *mockAgent) AgentID() string { return "agent-123" }

type mockGate struct {
	busy       bool
	acquireErr error
	releaseErr error
	acquired   []string
	released   []string
}

func (m *mockGate) Acquire(_ context.Context, sessionID string) (bool, error) {
	if m.acquireErr != nil {
		return false, m.acquireErr
	}
	if m.busy {
		return false, nil
	}
	m.acquired = append(m.acquired, sessionID)
	return true, nil
}

func (m *mockGate) Release(_ context.Context, sessionID string) error {
	m.released = append(m.released, sessionID)
	return m.releaseErr
}

func newTestService(t *testing.T, a AgentClient, g Gate) (*AskService, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	svc, err := NewAskService(a, g, 50, slog.New(slog.NewTextHandler(&logs, nil)))
	require.NoError(t, err)
	return svc, &logs
}

func expectAskError(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	var usecaseErr *Error
	require.ErrorAs(t, err, &usecaseErr)
	require.Equal(t, code, usecaseErr.Code)
	require.Equal(t, reason, usecaseErr.Reason)
}

func TestNewAskService_ValidatesDependencies(t *testing.T) {
	_, err := NewAskService(nil, &mockGate{}, 0, nil)
	require.Error(t, err)

	_, err = NewAskService(&mockAgent{}, nil, 0, nil)
	require.Error(t, err)

	svc, err := NewAskService(&mockAgent{}, &mockGate{}, 0, nil)
	require.NoError(t, err)
	require.Equal(t, defaultMaxMessage, svc.maxMessageLen)
}

func TestAsk_HappyPath(t *testing.T) {
	a := &mockAgent{reply: "I build backend systems in Go."}
	g := &mockGate{}
	svc, _ := newTestService(t, a, g)

	out, err := svc.Ask(context.Background(), AskInput{Message: "  What do you do?\n", SessionID: "sess-1"})
	require.NoError(t, err)
	require.Equal(t, AskOutput{Reply: "I build backend systems in Go.", SessionID: "sess-1"}, out)
	require.Equal(t, "What do you do?", a.message)
	require.Equal(t, "sess-1", a.sessionID)
	require.Equal(t, []string{"sess-1"}, g.acquired)
	require.Equal(t, []string{"sess-1"}, g.released)
}

func TestAsk_MissingSessionID_GeneratesAgentScopedID(t *testing.T) {
	orig := newSessionSuffix
	newSessionSuffix = func() string { return "m5xk84ybetp" }
	t.Cleanup(func() { newSessionSuffix = orig })

	a := &mockAgent{reply: "ok"}
	svc, _ := newTestService(t, a, &mockGate{})

	out, err := svc.Ask(context.Background(), AskInput{Message: "hi"})
	require.NoError(t, err)
	require.Equal(t, "agent-123-m5xk84ybetp", out.SessionID)
	require.Equal(t, out.SessionID, a.sessionID)
}

func TestAsk_GeneratedSuffixShape(t *testing.T) {
	s := newSessionSuffix()
	require.Len(t, s, 12)
	require.NotContains(t, s, "-")
}

func TestAsk_ValidationErrors(t *testing.T) {
	a := &mockAgent{reply: "ok"}
	g := &mockGate{}
	svc, _ := newTestService(t, a, g)

	_, err := svc.Ask(context.Background(), AskInput{Message: " \n\t "})
	expectAskError(t, err, ErrorInvalidInput, "empty_message")

	_, err = svc.Ask(context.Background(), AskInput{Message: strings.Repeat("a", 51)})
	expectAskError(t, err, ErrorInvalidInput, "message_too_long")

	_, err = svc.Ask(context.Background(), AskInput{Message: strings.Repeat("é", 50)})
	require.NoError(t, err)

	require.Equal(t, 1, a.callCount)
	require.Len(t, g.acquired, 1)
}

func TestAsk_EmptyExtractionUsesPlaceholder(t *testing.T) {
	for _, reply := range []string{"", "   \n"} {
		svc, logs := newTestService(t, &mockAgent{reply: reply}, &mockGate{})
		out, err := svc.Ask(context.Background(), AskInput{Message: "hi", SessionID: "s"})
		require.NoError(t, err)
		require.Equal(t, PlaceholderReply, out.Reply)
		require.False(t, out.Degraded)
		require.Contains(t, logs.String(), "no displayable text")
	}
}

func TestAsk_UpstreamFailuresDegradeToApology(t *testing.T) {
	cases := []struct {
		name string
		err  error
		logs string
	}{
		{name: "network", err: errors.New("agent: request failed: dial tcp: connection refused"), logs: "connection refused"},
		{name: "status", err: &agent.HTTPStatusError{StatusCode: http.StatusBadGateway, Body: "offline"}, logs: "status=502"},
		{name: "rate limited", err: &agent.HTTPStatusError{StatusCode: http.StatusTooManyRequests}, logs: "status=429"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := &mockGate{}
			a := &mockAgent{err: tc.err}
			svc, logs := newTestService(t, a, g)

			out, err := svc.Ask(context.Background(), AskInput{Message: "hi", SessionID: "s"})
			require.NoError(t, err)
			require.Equal(t, AskOutput{Reply: ApologyReply, SessionID: "s", Degraded: true}, out)
			require.Equal(t, 1, a.callCount, "no retry")
			require.Equal(t, []string{"s"}, g.released)
			require.Contains(t, logs.String(), tc.logs)
		})
	}
}

func TestAsk_BusySession(t *testing.T) {
	a := &mockAgent{reply: "ok"}
	g := &mockGate{busy: true}
	svc, _ := newTestService(t, a, g)

	_, err := svc.Ask(context.Background(), AskInput{Message: "hi", SessionID: "s"})
	expectAskError(t, err, ErrorBusy, "request_in_flight")
	require.Zero(t, a.callCount)
	require.Empty(t, g.released)
}

func TestAsk_GateErrors(t *testing.T) {
	a := &mockAgent{reply: "ok"}
	svc, _ := newTestService(t, a, &mockGate{acquireErr: errors.New("dynamodb down")})
	_, err := svc.Ask(context.Background(), AskInput{Message: "hi", SessionID: "s"})
	expectAskError(t, err, ErrorInternal, "gate_error")
	require.ErrorContains(t, err, "dynamodb down")
	require.Zero(t, a.callCount)

	svc, logs := newTestService(t, a, &mockGate{releaseErr: errors.New("delete failed")})
	out, err := svc.Ask(context.Background(), AskInput{Message: "hi", SessionID: "s"})
	require.NoError(t, err)
	require.Equal(t, "ok", out.Reply)
	require.Contains(t, logs.String(), "failed to release session gate")
}

func TestAsk_LocalGateRejectsConcurrentRequest(t *testing.T) {
	gate := NewLocalGate()
	a := &mockAgent{reply: "first"}
	svc, _ := newTestService(t, a, gate)

	var nested error
	a.onSend = func() {
		a.onSend = nil
		_, nested = svc.Ask(context.Background(), AskInput{Message: "second", SessionID: "s"})
	}

	out, err := svc.Ask(context.Background(), AskInput{Message: "first", SessionID: "s"})
	require.NoError(t, err)
	require.Equal(t, "first", out.Reply)
	expectAskError(t, nested, ErrorBusy, "request_in_flight")

	_, err = svc.Ask(context.Background(), AskInput{Message: "third", SessionID: "s"})
	require.NoError(t, err)
}

func TestLocalGate_IsPerSession(t *testing.T) {
	g := NewLocalGate()
	ctx := context.Background()

	ok, err := g.Acquire(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)

	ok, _ = g.Acquire(ctx, "a")
	require.False(t, ok)

	ok, _ = g.Acquire(ctx, "b")
	require.True(t, ok)

	require.NoError(t, g.Release(ctx, "a"))
	ok, _ = g.Acquire(ctx, "a")
	require.True(t, ok)
}

func TestError_Formatting(t *testing.T) {
	err := newError(ErrorInternal, "gate_error", errors.New("boom"))
	require.Equal(t, "usecase: INTERNAL_ERROR (gate_error): boom", err.Error())
	require.Equal(t, "usecase: BUSY (request_in_flight)", newError(ErrorBusy, "request_in_flight", nil).Error())

	var nilErr *Error
	require.Empty(t, nilErr.Error())
	require.NoError(t, nilErr.Unwrap())
}
