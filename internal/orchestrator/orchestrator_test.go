package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-ai/parley/internal/auth"
	"github.com/parley-ai/parley/internal/chat"
	"github.com/parley-ai/parley/internal/config"
	"github.com/parley-ai/parley/internal/llm"
	"github.com/parley-ai/parley/internal/quota"
	"github.com/parley-ai/parley/internal/tokens"
	"github.com/parley-ai/parley/internal/usage"
)

type fakeLimiter struct {
	exceeded map[string]bool
	err      error
	calls    []string
}

func (f *fakeLimiter) Allow(_ context.Context, scope string, _ time.Duration, _ int) (bool, error) {
	f.calls = append(f.calls, scope)
	if f.err != nil {
		return false, f.err
	}
	for prefix, hit := range f.exceeded {
		if strings.HasPrefix(scope, prefix) {
			return hit, nil
		}
	}
	return false, nil
}

type fakeChatRepo struct {
	chats    map[uuid.UUID]*chat.Chat
	messages []chat.Message
}

func newFakeChatRepo() *fakeChatRepo {
	return &fakeChatRepo{chats: make(map[uuid.UUID]*chat.Chat)}
}

func (f *fakeChatRepo) CreateChat(_ context.Context, c *chat.Chat) error {
	cp := *c
	f.chats[c.ID] = &cp
	return nil
}

func (f *fakeChatRepo) GetChat(_ context.Context, id uuid.UUID) (*chat.Chat, error) {
	c, ok := f.chats[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeChatRepo) ListByUser(_ context.Context, _ uuid.UUID, _ chat.ListChatsParams) ([]chat.Chat, int64, error) {
	return nil, 0, nil
}

func (f *fakeChatRepo) UpdateVisibility(_ context.Context, _ uuid.UUID, _ string) error {
	return nil
}

func (f *fakeChatRepo) DeleteChat(_ context.Context, _ uuid.UUID) error { return nil }

func (f *fakeChatRepo) InsertMessage(_ context.Context, m *chat.Message) error {
	f.messages = append(f.messages, *m)
	return nil
}

func (f *fakeChatRepo) ListMessages(_ context.Context, _ uuid.UUID) ([]chat.Message, error) {
	return f.messages, nil
}

type fakeUsageRepo struct {
	records []usage.Record
}

func (f *fakeUsageRepo) Insert(_ context.Context, rec *usage.Record) error {
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeUsageRepo) SumTotalForDay(_ context.Context, userID uuid.UUID, _ time.Time) (int, error) {
	var total int
	for _, r := range f.records {
		if r.UserID == userID {
			total += r.TotalTokens
		}
	}
	return total, nil
}

func (f *fakeUsageRepo) DailyStats(_ context.Context, _ usage.ReportParams) ([]usage.DailyStat, error) {
	return nil, nil
}

func (f *fakeUsageRepo) ModelStats(_ context.Context, _ usage.ReportParams) ([]usage.ModelStat, error) {
	return nil, nil
}

func (f *fakeUsageRepo) Totals(_ context.Context, _ usage.ReportParams) (*usage.Totals, error) {
	return &usage.Totals{}, nil
}

func (f *fakeUsageRepo) TopUsers(_ context.Context, _ usage.ReportParams, _ int) ([]usage.TopUser, error) {
	return nil, nil
}

type fakeLimits struct{}

func (fakeLimits) TokenLimit(context.Context, uuid.UUID) (*int, error) { return nil, nil }

type fakeProvider struct {
	events   []llm.Event
	startErr error
	lastReq  llm.CompletionRequest
}

func (f *fakeProvider) StreamCompletion(_ context.Context, req llm.CompletionRequest) (<-chan llm.Event, error) {
	f.lastReq = req
	if f.startErr != nil {
		return nil, f.startErr
	}
	ch := make(chan llm.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

// cancelAwareProvider stops streaming as soon as its context is cancelled,
// the way a real HTTP-backed provider would.
type cancelAwareProvider struct {
	events []llm.Event
}

func (f *cancelAwareProvider) StreamCompletion(ctx context.Context, _ llm.CompletionRequest) (<-chan llm.Event, error) {
	ch := make(chan llm.Event)
	go func() {
		defer close(ch)
		for _, ev := range f.events {
			if err := ctx.Err(); err != nil {
				ch <- llm.Event{Type: llm.EventError, Err: err}
				return
			}
			ch <- ev
		}
	}()
	return ch, nil
}

type staticPrompt string

func (s staticPrompt) ResolveSystemPrompt(context.Context, uuid.UUID) string { return string(s) }

type fixture struct {
	handler   *Handler
	limiter   *fakeLimiter
	chatRepo  *fakeChatRepo
	usageRepo *fakeUsageRepo
	provider  *fakeProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	limiter := &fakeLimiter{exceeded: map[string]bool{}}
	chatRepo := newFakeChatRepo()
	usageRepo := &fakeUsageRepo{}
	provider := &fakeProvider{events: []llm.Event{
		{Type: llm.EventDelta, Delta: "Hello"},
		{Type: llm.EventDelta, Delta: " there"},
		{Type: llm.EventDone, Usage: &llm.Usage{PromptTokens: 12, CompletionTokens: 7, TotalTokens: 19}},
	}}

	ledger := usage.NewService(usageRepo)
	guard := quota.NewGuard(ledger, fakeLimits{}, 10000)
	catalog := llm.NewCatalog(0, 0)

	h := NewHandler(
		limiter,
		guard,
		chat.NewService(chatRepo),
		staticPrompt("Keep it brief."),
		tokens.NewEstimator(catalog),
		provider,
		ledger,
		config.RateLimitConfig{
			IPWindow:      time.Minute,
			IPMaxRequests: 30,
			UserWindow:    time.Minute,
			UserMax:       20,
		},
	)
	return &fixture{handler: h, limiter: limiter, chatRepo: chatRepo, usageRepo: usageRepo, provider: provider}
}

func chatBody(t *testing.T, chatID uuid.UUID, text string) []byte {
	t.Helper()
	body, err := json.Marshal(ChatRequest{
		ID:      chatID.String(),
		ModelID: "chat-model-gpt-4o",
		Messages: []IncomingMessage{
			{Role: "user", Parts: []MessagePart{{Type: "text", Text: text}}},
		},
	})
	require.NoError(t, err)
	return body
}

func authedRequest(t *testing.T, userID uuid.UUID, body []byte) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader(body))
	r.RemoteAddr = "203.0.113.10:51234"
	claims := &auth.AccessClaims{UserID: userID.String(), Email: "u@example.com", Role: "user"}
	return r.WithContext(context.WithValue(r.Context(), auth.UserClaimsKey, claims))
}

func TestComplete_RequiresAuth(t *testing.T) {
	f := newFixture(t)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader(chatBody(t, uuid.New(), "hi")))
	w := httptest.NewRecorder()
	f.handler.Complete(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestComplete_HappyPathStreamsAndReconciles(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	chatID := uuid.New()

	w := httptest.NewRecorder()
	f.handler.Complete(w, authedRequest(t, userID, chatBody(t, chatID, "What is Go?")))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, `"type":"text-delta"`)
	assert.Contains(t, body, "Hello")
	assert.Contains(t, body, `"type":"finish"`)
	assert.Contains(t, body, `"completion_tokens":7`)

	// Chat created and titled from the first user message.
	c := f.chatRepo.chats[chatID]
	require.NotNil(t, c)
	assert.Equal(t, "What is Go?", c.Title)

	// User message then assistant message.
	require.Len(t, f.chatRepo.messages, 2)
	assert.Equal(t, "user", f.chatRepo.messages[0].Role)
	assert.Equal(t, "assistant", f.chatRepo.messages[1].Role)
	assert.Contains(t, string(f.chatRepo.messages[1].Parts), "Hello there")

	// Provisional input record plus reconciliation output record sharing
	// the request ID.
	require.Len(t, f.usageRepo.records, 2)
	provisional, reconciled := f.usageRepo.records[0], f.usageRepo.records[1]
	assert.Positive(t, provisional.InputTokens)
	assert.Zero(t, provisional.OutputTokens)
	assert.Zero(t, reconciled.InputTokens)
	assert.Equal(t, 7, reconciled.OutputTokens)
	require.NotNil(t, provisional.RequestID)
	require.NotNil(t, reconciled.RequestID)
	assert.Equal(t, *provisional.RequestID, *reconciled.RequestID)

	// System prompt forwarded to the provider.
	assert.Equal(t, "Keep it brief.", f.provider.lastReq.System)
}

func TestComplete_IPLimitCheckedBeforeUserLimit(t *testing.T) {
	f := newFixture(t)
	f.limiter.exceeded["ip:"] = true

	w := httptest.NewRecorder()
	f.handler.Complete(w, authedRequest(t, uuid.New(), chatBody(t, uuid.New(), "hi")))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "address")
	require.Len(t, f.limiter.calls, 1)
	assert.True(t, strings.HasPrefix(f.limiter.calls[0], "ip:"))
}

func TestComplete_UserLimitRejects(t *testing.T) {
	f := newFixture(t)
	f.limiter.exceeded["user:"] = true

	w := httptest.NewRecorder()
	f.handler.Complete(w, authedRequest(t, uuid.New(), chatBody(t, uuid.New(), "hi")))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "too quickly")
	require.Len(t, f.limiter.calls, 2)
}

func TestComplete_QuotaRejects(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	f.usageRepo.records = append(f.usageRepo.records, usage.Record{
		UserID: userID, TotalTokens: 10000,
	})

	w := httptest.NewRecorder()
	f.handler.Complete(w, authedRequest(t, userID, chatBody(t, uuid.New(), "hi")))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "daily token limit")
}

func TestComplete_LimiterErrorFailsOpen(t *testing.T) {
	f := newFixture(t)
	f.limiter.err = errors.New("redis down")

	w := httptest.NewRecorder()
	f.handler.Complete(w, authedRequest(t, uuid.New(), chatBody(t, uuid.New(), "hi")))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestComplete_MalformedBody(t *testing.T) {
	f := newFixture(t)

	w := httptest.NewRecorder()
	f.handler.Complete(w, authedRequest(t, uuid.New(), []byte("{not json")))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestComplete_LastMessageMustBeUser(t *testing.T) {
	f := newFixture(t)
	body, err := json.Marshal(ChatRequest{
		ID: uuid.New().String(),
		Messages: []IncomingMessage{
			{Role: "assistant", Parts: []MessagePart{{Type: "text", Text: "hi"}}},
		},
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	f.handler.Complete(w, authedRequest(t, uuid.New(), body))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestComplete_ForeignChatRejected(t *testing.T) {
	f := newFixture(t)
	chatID := uuid.New()
	f.chatRepo.chats[chatID] = &chat.Chat{ID: chatID, UserID: uuid.New()}

	w := httptest.NewRecorder()
	f.handler.Complete(w, authedRequest(t, uuid.New(), chatBody(t, chatID, "hi")))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestComplete_EmptyCompletionIsFatal(t *testing.T) {
	f := newFixture(t)
	f.provider.events = []llm.Event{{Type: llm.EventDone}}
	userID := uuid.New()

	w := httptest.NewRecorder()
	f.handler.Complete(w, authedRequest(t, userID, chatBody(t, uuid.New(), "hi")))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"type":"error"`)

	// User message stays persisted, but no assistant message exists.
	require.Len(t, f.chatRepo.messages, 1)
	assert.Equal(t, "user", f.chatRepo.messages[0].Role)

	// Provisional record written, no reconciliation record.
	require.Len(t, f.usageRepo.records, 1)
	assert.Positive(t, f.usageRepo.records[0].InputTokens)
}

// disconnectRecorder cancels the request context on the first body write,
// simulating a client that drops the connection once the stream starts.
type disconnectRecorder struct {
	*httptest.ResponseRecorder
	cancel context.CancelFunc
	writes int
}

func (w *disconnectRecorder) Write(b []byte) (int, error) {
	w.writes++
	if w.writes == 1 {
		w.cancel()
	}
	return w.ResponseRecorder.Write(b)
}

func TestComplete_ClientDisconnectStillPersistsAndReconciles(t *testing.T) {
	f := newFixture(t)
	f.handler.provider = &cancelAwareProvider{events: []llm.Event{
		{Type: llm.EventDelta, Delta: "Hello"},
		{Type: llm.EventDelta, Delta: " there"},
		{Type: llm.EventDone, Usage: &llm.Usage{PromptTokens: 12, CompletionTokens: 7, TotalTokens: 19}},
	}}
	userID := uuid.New()
	chatID := uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	claims := &auth.AccessClaims{UserID: userID.String(), Email: "u@example.com", Role: "user"}
	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader(chatBody(t, chatID, "hi")))
	r.RemoteAddr = "203.0.113.10:51234"
	r = r.WithContext(context.WithValue(ctx, auth.UserClaimsKey, claims))

	w := &disconnectRecorder{ResponseRecorder: httptest.NewRecorder(), cancel: cancel}
	f.handler.Complete(w, r)

	// The completion still gets stored and billed.
	require.Len(t, f.chatRepo.messages, 2)
	assert.Equal(t, "assistant", f.chatRepo.messages[1].Role)
	assert.Contains(t, string(f.chatRepo.messages[1].Parts), "Hello there")

	require.Len(t, f.usageRepo.records, 2)
	assert.Equal(t, 7, f.usageRepo.records[1].OutputTokens)
}

func TestComplete_StreamErrorReportedToClient(t *testing.T) {
	f := newFixture(t)
	f.provider.events = []llm.Event{
		{Type: llm.EventDelta, Delta: "partial"},
		{Type: llm.EventError, Err: fmt.Errorf("upstream reset")},
	}

	w := httptest.NewRecorder()
	f.handler.Complete(w, authedRequest(t, uuid.New(), chatBody(t, uuid.New(), "hi")))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "interrupted")
	// No assistant message on a failed stream.
	require.Len(t, f.chatRepo.messages, 1)
}

func TestComplete_ProviderStartErrorReported(t *testing.T) {
	f := newFixture(t)
	f.provider.startErr = errors.New("connect refused")

	w := httptest.NewRecorder()
	f.handler.Complete(w, authedRequest(t, uuid.New(), chatBody(t, uuid.New(), "hi")))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "unavailable")
}

func TestComplete_EstimateFallbackWhenNoProviderUsage(t *testing.T) {
	f := newFixture(t)
	f.provider.events = []llm.Event{
		{Type: llm.EventDelta, Delta: "answer"},
		{Type: llm.EventDone},
	}

	w := httptest.NewRecorder()
	f.handler.Complete(w, authedRequest(t, uuid.New(), chatBody(t, uuid.New(), "hi")))

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, f.usageRepo.records, 2)
	assert.Positive(t, f.usageRepo.records[1].OutputTokens)
}
