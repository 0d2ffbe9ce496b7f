package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	records   []Record
	insertErr error
	sumErr    error
}

func (f *fakeRepo) Insert(_ context.Context, rec *Record) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeRepo) SumTotalForDay(_ context.Context, userID uuid.UUID, day time.Time) (int, error) {
	if f.sumErr != nil {
		return 0, f.sumErr
	}
	var total int
	for _, r := range f.records {
		if r.UserID == userID && r.Date.Equal(day) {
			total += r.TotalTokens
		}
	}
	return total, nil
}

func (f *fakeRepo) DailyStats(_ context.Context, _ ReportParams) ([]DailyStat, error) {
	return []DailyStat{{TotalTokens: 100, UniqueUsers: 2}}, nil
}

func (f *fakeRepo) ModelStats(_ context.Context, _ ReportParams) ([]ModelStat, error) {
	return []ModelStat{{ModelID: "chat-model-gpt-4o", TotalTokens: 100}}, nil
}

func (f *fakeRepo) Totals(_ context.Context, _ ReportParams) (*Totals, error) {
	return &Totals{TotalTokens: 100, UniqueUsers: 2, ConversationCount: 3}, nil
}

func (f *fakeRepo) TopUsers(_ context.Context, _ ReportParams, limit int) ([]TopUser, error) {
	return []TopUser{{UserID: uuid.New(), TotalTokens: 60}}, nil
}

func newTestService(repo *fakeRepo) *Service {
	svc := NewService(repo)
	svc.now = func() time.Time {
		return time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)
	}
	return svc
}

func TestRecord_DerivesTotal(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo)

	ok := svc.Record(context.Background(), Entry{
		UserID:      uuid.New(),
		InputTokens: 120,
	})
	require.True(t, ok)
	require.Len(t, repo.records, 1)
	assert.Equal(t, 120, repo.records[0].TotalTokens)
	assert.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), repo.records[0].Date)
}

func TestRecord_ExplicitTotalWins(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo)

	svc.Record(context.Background(), Entry{
		UserID:       uuid.New(),
		InputTokens:  10,
		OutputTokens: 20,
		TotalTokens:  99,
	})
	require.Len(t, repo.records, 1)
	assert.Equal(t, 99, repo.records[0].TotalTokens)
}

func TestRecord_FailureReturnsFalse(t *testing.T) {
	repo := &fakeRepo{insertErr: errors.New("connection refused")}
	svc := newTestService(repo)

	ok := svc.Record(context.Background(), Entry{UserID: uuid.New(), InputTokens: 10})
	assert.False(t, ok)
}

func TestDailyTotal_SumsAllRecords(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(repo)
	userID := uuid.New()
	ctx := context.Background()

	// Provisional input-only record plus reconciliation output record:
	// the ledger is additive, never overwritten.
	reqID := uuid.New()
	svc.Record(ctx, Entry{UserID: userID, RequestID: &reqID, InputTokens: 150})
	svc.Record(ctx, Entry{UserID: userID, RequestID: &reqID, OutputTokens: 80})
	svc.Record(ctx, Entry{UserID: uuid.New(), InputTokens: 999})

	total, err := svc.DailyTotal(ctx, userID, time.Date(2025, 6, 15, 23, 59, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 230, total)
}

func TestReport_DefaultsToTrailing30Days(t *testing.T) {
	svc := newTestService(&fakeRepo{})

	report, err := svc.Report(context.Background(), ReportParams{})
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), report.DateRange.End)
	assert.Equal(t, time.Date(2025, 5, 16, 0, 0, 0, 0, time.UTC), report.DateRange.Start)
	assert.Len(t, report.DailyStats, 1)
	assert.Len(t, report.ModelStats, 1)
	assert.Equal(t, int64(100), report.Totals.TotalTokens)
	assert.Len(t, report.TopUsers, 1)
}

func TestReport_UserFilterSkipsTopUsers(t *testing.T) {
	svc := newTestService(&fakeRepo{})
	userID := uuid.New()

	report, err := svc.Report(context.Background(), ReportParams{UserID: &userID})
	require.NoError(t, err)
	assert.Empty(t, report.TopUsers)
}

func TestDay_TruncatesToUTCMidnight(t *testing.T) {
	in := time.Date(2025, 6, 15, 23, 59, 59, 0, time.FixedZone("X", 3600))
	assert.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), Day(in))
}
