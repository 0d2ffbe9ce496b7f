package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/parley-ai/parley/internal/llm"
	"github.com/parley-ai/parley/internal/metrics"
	"github.com/parley-ai/parley/internal/tokens"
	"github.com/parley-ai/parley/internal/usage"
)

// finishTimeout bounds the post-stream persistence work, which runs on a
// context detached from the client connection.
const finishTimeout = 10 * time.Second

// completionTimeout bounds the provider stream itself. The stream is detached
// from the client connection, so this is the only thing that stops it.
const completionTimeout = 5 * time.Minute

type streamParams struct {
	userID    uuid.UUID
	chatID    uuid.UUID
	requestID uuid.UUID
	modelID   string
	system    string
	prompt    []llm.PromptMessage
	estimate  *tokens.Estimate
}

type sseEvent struct {
	Type  string     `json:"type"`
	Delta string     `json:"delta,omitempty"`
	Usage *llm.Usage `json:"usage,omitempty"`
	Error string     `json:"error,omitempty"`
}

// stream forwards the provider's completion to the client as server-sent
// events and runs the finish work once the provider is done. The provisional
// usage record is already written by the time stream is called, so every
// path from here must end in either a reconciliation record or a logged
// stream failure.
//
// The provider stream runs on a context detached from the client connection:
// a client that disconnects mid stream must not abort the completion, or the
// assistant message and the reconciliation record would be lost while the
// provider bills us for the full response. Writes to a gone client fail
// silently and the stream is drained to the end.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, p streamParams) {
	start := time.Now()

	streamCtx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), completionTimeout)
	defer cancel()

	events, err := h.provider.StreamCompletion(streamCtx, llm.CompletionRequest{
		Model:    p.modelID,
		System:   p.system,
		Messages: p.prompt,
	})
	if err != nil {
		slog.Error("starting completion stream", "error", err, "chat_id", p.chatID)
		metrics.ChatRequestsTotal.WithLabelValues("stream_error").Inc()
		writeSSEHeaders(w)
		writeSSE(w, sseEvent{Type: "error", Error: "the model is unavailable, please try again"})
		return
	}

	writeSSEHeaders(w)
	flusher, _ := w.(http.Flusher)

	var assistant strings.Builder
	var reported *llm.Usage
	var streamErr error

	for ev := range events {
		switch ev.Type {
		case llm.EventDelta:
			assistant.WriteString(ev.Delta)
			writeSSE(w, sseEvent{Type: "text-delta", Delta: ev.Delta})
			if flusher != nil {
				flusher.Flush()
			}
		case llm.EventDone:
			reported = ev.Usage
		case llm.EventError:
			streamErr = ev.Err
		}
	}

	metrics.CompletionStreamDuration.Observe(time.Since(start).Seconds())

	if streamErr != nil {
		slog.Error("completion stream failed", "error", streamErr, "chat_id", p.chatID)
		metrics.ChatRequestsTotal.WithLabelValues("stream_error").Inc()
		writeSSE(w, sseEvent{Type: "error", Error: "the model stream was interrupted"})
		return
	}

	text := assistant.String()
	if text == "" {
		slog.Error("completion produced no assistant text", "chat_id", p.chatID, "model_id", p.modelID)
		metrics.ChatRequestsTotal.WithLabelValues("empty_completion").Inc()
		writeSSE(w, sseEvent{Type: "error", Error: "the model returned an empty response"})
		return
	}

	h.finish(r.Context(), p, text, reported)
	metrics.ChatRequestsTotal.WithLabelValues("ok").Inc()

	writeSSE(w, sseEvent{Type: "finish", Usage: finalUsage(p.estimate, reported)})
	if flusher != nil {
		flusher.Flush()
	}
}

// finish persists the assistant message and the reconciliation usage record.
// It detaches from the request context so a client that disconnected mid
// stream still gets its completion stored and billed.
func (h *Handler) finish(ctx context.Context, p streamParams, text string, reported *llm.Usage) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	parts, _ := json.Marshal([]MessagePart{{Type: "text", Text: text}})
	if _, err := h.chats.AppendMessage(ctx, p.chatID, "assistant", parts, nil); err != nil {
		slog.Error("persisting assistant message", "error", err, "chat_id", p.chatID)
	}

	outputTokens := p.estimate.EstimatedOutputTokens
	if reported != nil && reported.CompletionTokens > 0 {
		outputTokens = reported.CompletionTokens
	}

	h.ledger.Record(ctx, usage.Entry{
		UserID:       p.userID,
		ModelID:      p.modelID,
		ChatID:       &p.chatID,
		RequestID:    &p.requestID,
		OutputTokens: outputTokens,
	})
}

// finalUsage reports what the client is told it consumed: provider numbers
// when available, the estimate otherwise.
func finalUsage(est *tokens.Estimate, reported *llm.Usage) *llm.Usage {
	if reported != nil && reported.TotalTokens > 0 {
		return reported
	}
	return &llm.Usage{
		PromptTokens:     est.InputTokens,
		CompletionTokens: est.EstimatedOutputTokens,
		TotalTokens:      est.TotalTokens,
	}
}

func writeSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
}

func writeSSE(w http.ResponseWriter, ev sseEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
}
