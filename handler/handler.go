package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"portfolio-copilot/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

type UseCase interface {
	Ask(ctx context.Context, in usecase.AskInput) (usecase.AskOutput, error)
}

type askRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

type askResponse struct {
	Reply     string `json:"reply"`
	SessionID string `json:"sessionId"`
	Degraded  bool   `json:"degraded"`
}

type errorResponse struct {
	Error         string `json:"error"`
	Reason        string `json:"reason,omitempty"`
	CorrelationID string `json:"correlationId"`
}

// Handler is the API Gateway proxy entry point the portfolio chat widget
// posts to.
type Handler struct {
	uc            UseCase
	allowedOrigin string
	logger        *slog.Logger
}

type Option func(*Handler)

// WithAllowedOrigin sets the CORS origin echoed on every response.
func WithAllowedOrigin(origin string) Option {
	return func(h *Handler) {
		if o := strings.TrimSpace(origin); o != "" {
			h.allowedOrigin = o
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func NewHandler(uc UseCase, opts ...Option) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	h := &Handler{
		uc:            uc,
		allowedOrigin: "*",
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = newCorrelationID()
	}
	logger := h.logger.With("correlation_id", correlationID)

	switch req.HTTPMethod {
	case http.MethodOptions:
		return h.respond(http.StatusNoContent, correlationID, nil), nil
	case http.MethodPost:
	default:
		return h.respondError(http.StatusMethodNotAllowed, correlationID, usecase.ErrorInvalidInput, "method_not_allowed"), nil
	}

	var body askRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		logger.Warn("invalid request body", "err", err)
		return h.respondError(http.StatusBadRequest, correlationID, usecase.ErrorInvalidInput, "invalid_body"), nil
	}

	out, err := h.uc.Ask(ctx, usecase.AskInput{
		Message:   body.Message,
		SessionID: body.SessionID,
	})
	if err != nil {
		status, code, reason := mapError(err)
		if status >= http.StatusInternalServerError {
			logger.Error("ask failed", "status", status, "err", err)
		} else {
			logger.Info("ask rejected", "status", status, "reason", reason)
		}
		return h.respondError(status, correlationID, code, reason), nil
	}

	logger.Info("ask completed", "session_id", out.SessionID, "degraded", out.Degraded)
	return h.respond(http.StatusOK, correlationID, askResponse{
		Reply:     out.Reply,
		SessionID: out.SessionID,
		Degraded:  out.Degraded,
	}), nil
}

func mapError(err error) (int, usecase.ErrorCode, string) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return http.StatusInternalServerError, usecase.ErrorInternal, ""
	}
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, ucErr.Code, ucErr.Reason
	case usecase.ErrorBusy:
		return http.StatusConflict, ucErr.Code, ucErr.Reason
	default:
		return http.StatusInternalServerError, usecase.ErrorInternal, ucErr.Reason
	}
}

func (h *Handler) respondError(status int, correlationID string, code usecase.ErrorCode, reason string) events.APIGatewayProxyResponse {
	return h.respond(status, correlationID, errorResponse{
		Error:         string(code),
		Reason:        reason,
		CorrelationID: correlationID,
	})
}

func (h *Handler) respond(status int, correlationID string, payload any) events.APIGatewayProxyResponse {
	headers := map[string]string{
		correlationHeader:               correlationID,
		"Access-Control-Allow-Origin":   h.allowedOrigin,
		"Access-Control-Allow-Methods":  "POST, OPTIONS",
		"Access-Control-Allow-Headers":  "Content-Type, " + correlationHeader,
		"Access-Control-Expose-Headers": correlationHeader,
	}
	if payload == nil {
		return events.APIGatewayProxyResponse{StatusCode: status, Headers: headers}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to encode response", "correlation_id", correlationID, "err", err)
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	headers["Content-Type"] = "application/json"
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    headers,
		Body:       string(body),
	}
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

var newCorrelationID = func() string {
	return uuid.NewString()
}
