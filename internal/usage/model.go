package usage

import (
	"time"

	"github.com/google/uuid"
)

// Record is one append-only row of the token ledger. Reconciliation after a
// completed stream inserts a second record sharing the provisional record's
// RequestID; historical rows are never edited.
type Record struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	Date         time.Time  `json:"date"`
	InputTokens  int        `json:"input_tokens"`
	OutputTokens int        `json:"output_tokens"`
	TotalTokens  int        `json:"total_tokens"`
	ModelID      string     `json:"model_id,omitempty"`
	ChatID       *uuid.UUID `json:"chat_id,omitempty"`
	RequestID    *uuid.UUID `json:"request_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Entry is the caller-facing shape for recording usage. TotalTokens may be
// set to override the input+output sum; zero means derive it.
type Entry struct {
	UserID       uuid.UUID
	ModelID      string
	ChatID       *uuid.UUID
	RequestID    *uuid.UUID
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// ReportParams filters the admin aggregate report. A zero Start/End defaults
// to the trailing 30 days; UserID narrows the report to one user.
type ReportParams struct {
	Start  time.Time
	End    time.Time
	UserID *uuid.UUID
}

type DailyStat struct {
	Date              time.Time `json:"date"`
	TotalInputTokens  int64     `json:"total_input_tokens"`
	TotalOutputTokens int64     `json:"total_output_tokens"`
	TotalTokens       int64     `json:"total_tokens"`
	UniqueUsers       int64     `json:"unique_users"`
}

type ModelStat struct {
	ModelID           string `json:"model_id"`
	TotalInputTokens  int64  `json:"total_input_tokens"`
	TotalOutputTokens int64  `json:"total_output_tokens"`
	TotalTokens       int64  `json:"total_tokens"`
}

type Totals struct {
	TotalInputTokens  int64 `json:"total_input_tokens"`
	TotalOutputTokens int64 `json:"total_output_tokens"`
	TotalTokens       int64 `json:"total_tokens"`
	UniqueUsers       int64 `json:"unique_users"`
	ConversationCount int64 `json:"conversation_count"`
}

type TopUser struct {
	UserID      uuid.UUID `json:"user_id"`
	TotalTokens int64     `json:"total_tokens"`
}

type DateRange struct {
	Start time.Time `json:"start_date"`
	End   time.Time `json:"end_date"`
}

type Report struct {
	DailyStats []DailyStat `json:"daily_stats"`
	ModelStats []ModelStat `json:"model_stats"`
	Totals     Totals      `json:"totals"`
	TopUsers   []TopUser   `json:"top_users"`
	DateRange  DateRange   `json:"date_range"`
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
