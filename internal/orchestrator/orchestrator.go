package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/parley-ai/parley/internal/api"
	"github.com/parley-ai/parley/internal/auth"
	"github.com/parley-ai/parley/internal/chat"
	"github.com/parley-ai/parley/internal/config"
	"github.com/parley-ai/parley/internal/llm"
	"github.com/parley-ai/parley/internal/metrics"
	"github.com/parley-ai/parley/internal/middleware"
	"github.com/parley-ai/parley/internal/quota"
	"github.com/parley-ai/parley/internal/ratelimit"
	"github.com/parley-ai/parley/internal/tokens"
	"github.com/parley-ai/parley/internal/usage"
)

// Throttle rejection messages. Each trip point has its own wording so clients
// can tell the three apart.
const (
	msgIPLimited    = "too many requests from this address, please slow down"
	msgUserLimited  = "you are sending messages too quickly, please wait a moment"
	msgQuotaReached = "daily token limit reached, try again tomorrow"
)

// ChatRequest is the completion request body.
type ChatRequest struct {
	ID       string            `json:"id" validate:"required,uuid"`
	Messages []IncomingMessage `json:"messages" validate:"required,min=1,dive"`
	ModelID  string            `json:"model_id"`
}

// IncomingMessage mirrors the client message shape. Parts carry typed content
// blocks; only text parts contribute to the prompt.
type IncomingMessage struct {
	Role        string          `json:"role" validate:"required,oneof=user assistant system"`
	Parts       []MessagePart   `json:"parts" validate:"required,min=1"`
	Attachments json.RawMessage `json:"attachments,omitempty"`
}

type MessagePart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// PromptResolver supplies the per-user system prompt.
type PromptResolver interface {
	ResolveSystemPrompt(ctx context.Context, userID uuid.UUID) string
}

// Handler drives one chat completion end to end: admission checks,
// persistence, the provider stream, and post-stream accounting.
type Handler struct {
	limiter   ratelimit.Limiter
	guard     *quota.Guard
	chats     *chat.Service
	prompts   PromptResolver
	estimator *tokens.Estimator
	provider  llm.Provider
	ledger    *usage.Service
	validate  *validator.Validate

	ipWindow   time.Duration
	ipMax      int
	userWindow time.Duration
	userMax    int
}

func NewHandler(
	limiter ratelimit.Limiter,
	guard *quota.Guard,
	chats *chat.Service,
	prompts PromptResolver,
	estimator *tokens.Estimator,
	provider llm.Provider,
	ledger *usage.Service,
	cfg config.RateLimitConfig,
) *Handler {
	return &Handler{
		limiter:    limiter,
		guard:      guard,
		chats:      chats,
		prompts:    prompts,
		estimator:  estimator,
		provider:   provider,
		ledger:     ledger,
		validate:   validator.New(),
		ipWindow:   cfg.IPWindow,
		ipMax:      cfg.IPMaxRequests,
		userWindow: cfg.UserWindow,
		userMax:    cfg.UserMax,
	}
}

// Complete handles POST /api/v1/chat.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims := auth.GetUserClaims(ctx)
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	ip := middleware.ClientIP(r)
	if h.throttled(ctx, ratelimit.IPScope(ip), h.ipWindow, h.ipMax, "ip") {
		metrics.ChatRequestsTotal.WithLabelValues("rate_limited").Inc()
		api.HandleError(w, api.NewTooManyRequestsError(msgIPLimited))
		return
	}
	if h.throttled(ctx, ratelimit.UserScope(userID.String()), h.userWindow, h.userMax, "user") {
		metrics.ChatRequestsTotal.WithLabelValues("rate_limited").Inc()
		api.HandleError(w, api.NewTooManyRequestsError(msgUserLimited))
		return
	}
	if h.guard.HasExceededDailyLimit(ctx, userID) {
		metrics.ChatRequestsTotal.WithLabelValues("quota_exceeded").Inc()
		metrics.ThrottleRejectionsTotal.WithLabelValues("quota").Inc()
		api.HandleError(w, api.NewTooManyRequestsError(msgQuotaReached))
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	userMessage := req.Messages[len(req.Messages)-1]
	if userMessage.Role != "user" {
		api.HandleError(w, api.NewBadRequestError("last message must be from the user"))
		return
	}
	userText := flattenParts(userMessage.Parts)

	chatID := uuid.MustParse(req.ID)
	c, err := h.chats.GetOrCreate(ctx, chatID, userID, userText)
	if err != nil {
		if errors.Is(err, chat.ErrNotOwner) {
			api.HandleError(w, api.ErrUnauthorized)
			return
		}
		slog.Error("resolving chat", "error", err, "chat_id", chatID)
		api.HandleError(w, api.ErrNotFound)
		return
	}

	partsJSON, err := json.Marshal(userMessage.Parts)
	if err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if _, err := h.chats.AppendMessage(ctx, c.ID, "user", partsJSON, userMessage.Attachments); err != nil {
		slog.Error("persisting user message", "error", err, "chat_id", c.ID)
		api.HandleError(w, api.ErrNotFound)
		return
	}

	systemPrompt := h.prompts.ResolveSystemPrompt(ctx, userID)
	prompt := toPromptMessages(req.Messages)

	est, err := h.estimator.Estimate(prompt, req.ModelID, systemPrompt)
	if err != nil {
		slog.Error("estimating tokens", "error", err, "model_id", req.ModelID)
		api.HandleError(w, api.ErrNotFound)
		return
	}

	requestID := uuid.New()
	h.ledger.Record(ctx, usage.Entry{
		UserID:      userID,
		ModelID:     req.ModelID,
		ChatID:      &c.ID,
		RequestID:   &requestID,
		InputTokens: est.InputTokens,
	})

	h.stream(w, r, streamParams{
		userID:    userID,
		chatID:    c.ID,
		requestID: requestID,
		modelID:   req.ModelID,
		system:    systemPrompt,
		prompt:    prompt,
		estimate:  est,
	})
}

// throttled runs one admission check. Limiter infrastructure errors admit
// the request.
func (h *Handler) throttled(ctx context.Context, scope string, window time.Duration, max int, label string) bool {
	exceeded, err := h.limiter.Allow(ctx, scope, window, max)
	if err != nil {
		slog.Warn("rate limiter unavailable, admitting request", "error", err, "scope", scope)
		return false
	}
	if exceeded {
		metrics.ThrottleRejectionsTotal.WithLabelValues(label).Inc()
	}
	return exceeded
}

func flattenParts(parts []MessagePart) string {
	var b strings.Builder
	for _, p := range parts {
		if p.Type == "text" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func toPromptMessages(messages []IncomingMessage) []llm.PromptMessage {
	out := make([]llm.PromptMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, llm.PromptMessage{
			Role:    m.Role,
			Content: flattenParts(m.Parts),
		})
	}
	return out
}
