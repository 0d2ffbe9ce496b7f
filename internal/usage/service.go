package usage

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/parley-ai/parley/internal/metrics"
)

const topUsersLimit = 10

// Service is the token ledger. Recording is best-effort: a transient
// persistence failure must never take down an in-progress chat stream, so
// Record reports success as a boolean instead of an error.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

// Record appends a ledger row. Returns false (after logging) on failure.
func (s *Service) Record(ctx context.Context, entry Entry) bool {
	total := entry.TotalTokens
	if total == 0 {
		total = entry.InputTokens + entry.OutputTokens
	}

	now := s.now()
	rec := &Record{
		ID:           uuid.New(),
		UserID:       entry.UserID,
		Date:         Day(now),
		InputTokens:  entry.InputTokens,
		OutputTokens: entry.OutputTokens,
		TotalTokens:  total,
		ModelID:      entry.ModelID,
		ChatID:       entry.ChatID,
		RequestID:    entry.RequestID,
		CreatedAt:    now,
	}

	if err := s.repo.Insert(ctx, rec); err != nil {
		slog.Error("recording token usage", "error", err, "user_id", entry.UserID)
		return false
	}

	metrics.TokensRecordedTotal.WithLabelValues("input").Add(float64(entry.InputTokens))
	metrics.TokensRecordedTotal.WithLabelValues("output").Add(float64(entry.OutputTokens))
	return true
}

// DailyTotal sums total_tokens over every record for the user on the given
// calendar day.
func (s *Service) DailyTotal(ctx context.Context, userID uuid.UUID, day time.Time) (int, error) {
	return s.repo.SumTotalForDay(ctx, userID, Day(day))
}

// Report builds the admin aggregate report. Top users are only computed for
// unfiltered reports; a single-user report would rank one entry.
func (s *Service) Report(ctx context.Context, params ReportParams) (*Report, error) {
	if params.End.IsZero() {
		params.End = Day(s.now())
	} else {
		params.End = Day(params.End)
	}
	if params.Start.IsZero() {
		params.Start = params.End.AddDate(0, 0, -30)
	} else {
		params.Start = Day(params.Start)
	}

	daily, err := s.repo.DailyStats(ctx, params)
	if err != nil {
		return nil, err
	}
	models, err := s.repo.ModelStats(ctx, params)
	if err != nil {
		return nil, err
	}
	totals, err := s.repo.Totals(ctx, params)
	if err != nil {
		return nil, err
	}

	var top []TopUser
	if params.UserID == nil {
		top, err = s.repo.TopUsers(ctx, params, topUsersLimit)
		if err != nil {
			return nil, err
		}
	}

	return &Report{
		DailyStats: daily,
		ModelStats: models,
		Totals:     *totals,
		TopUsers:   top,
		DateRange:  DateRange{Start: params.Start, End: params.End},
	}, nil
}
