package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Insert(ctx context.Context, rec *Record) error
	SumTotalForDay(ctx context.Context, userID uuid.UUID, day time.Time) (int, error)
	DailyStats(ctx context.Context, params ReportParams) ([]DailyStat, error)
	ModelStats(ctx context.Context, params ReportParams) ([]ModelStat, error)
	Totals(ctx context.Context, params ReportParams) (*Totals, error)
	TopUsers(ctx context.Context, params ReportParams, limit int) ([]TopUser, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) Insert(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO token_usage
			(id, user_id, date, input_tokens, output_tokens, total_tokens,
			 model_id, chat_id, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.UserID, rec.Date, rec.InputTokens, rec.OutputTokens,
		rec.TotalTokens, nullIfEmpty(rec.ModelID), rec.ChatID, rec.RequestID, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting usage record: %w", err)
	}
	return nil
}

func (r *postgresRepository) SumTotalForDay(ctx context.Context, userID uuid.UUID, day time.Time) (int, error) {
	query := `SELECT COALESCE(SUM(total_tokens), 0) FROM token_usage
	          WHERE user_id = $1 AND date = $2`

	var total int
	if err := r.pool.QueryRow(ctx, query, userID, day).Scan(&total); err != nil {
		return 0, fmt.Errorf("summing daily usage: %w", err)
	}
	return total, nil
}

func (r *postgresRepository) DailyStats(ctx context.Context, params ReportParams) ([]DailyStat, error) {
	query := `
		SELECT date,
		       COALESCE(SUM(input_tokens), 0),
		       COALESCE(SUM(output_tokens), 0),
		       COALESCE(SUM(total_tokens), 0),
		       COUNT(DISTINCT user_id)
		FROM token_usage
		WHERE date BETWEEN $1 AND $2
		  AND ($3::uuid IS NULL OR user_id = $3)
		GROUP BY date
		ORDER BY date`

	rows, err := r.pool.Query(ctx, query, params.Start, params.End, params.UserID)
	if err != nil {
		return nil, fmt.Errorf("querying daily stats: %w", err)
	}
	defer rows.Close()

	var out []DailyStat
	for rows.Next() {
		var s DailyStat
		if err := rows.Scan(&s.Date, &s.TotalInputTokens, &s.TotalOutputTokens,
			&s.TotalTokens, &s.UniqueUsers); err != nil {
			return nil, fmt.Errorf("scanning daily stat: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating daily stats: %w", err)
	}
	return out, nil
}

func (r *postgresRepository) ModelStats(ctx context.Context, params ReportParams) ([]ModelStat, error) {
	query := `
		SELECT COALESCE(model_id, ''),
		       COALESCE(SUM(input_tokens), 0),
		       COALESCE(SUM(output_tokens), 0),
		       COALESCE(SUM(total_tokens), 0)
		FROM token_usage
		WHERE date BETWEEN $1 AND $2
		  AND ($3::uuid IS NULL OR user_id = $3)
		GROUP BY model_id
		ORDER BY SUM(total_tokens) DESC`

	rows, err := r.pool.Query(ctx, query, params.Start, params.End, params.UserID)
	if err != nil {
		return nil, fmt.Errorf("querying model stats: %w", err)
	}
	defer rows.Close()

	var out []ModelStat
	for rows.Next() {
		var s ModelStat
		if err := rows.Scan(&s.ModelID, &s.TotalInputTokens, &s.TotalOutputTokens, &s.TotalTokens); err != nil {
			return nil, fmt.Errorf("scanning model stat: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating model stats: %w", err)
	}
	return out, nil
}

func (r *postgresRepository) Totals(ctx context.Context, params ReportParams) (*Totals, error) {
	query := `
		SELECT COALESCE(SUM(input_tokens), 0),
		       COALESCE(SUM(output_tokens), 0),
		       COALESCE(SUM(total_tokens), 0),
		       COUNT(DISTINCT user_id),
		       COUNT(DISTINCT chat_id)
		FROM token_usage
		WHERE date BETWEEN $1 AND $2
		  AND ($3::uuid IS NULL OR user_id = $3)`

	t := &Totals{}
	err := r.pool.QueryRow(ctx, query, params.Start, params.End, params.UserID).Scan(
		&t.TotalInputTokens, &t.TotalOutputTokens, &t.TotalTokens,
		&t.UniqueUsers, &t.ConversationCount)
	if err != nil {
		return nil, fmt.Errorf("querying usage totals: %w", err)
	}
	return t, nil
}

func (r *postgresRepository) TopUsers(ctx context.Context, params ReportParams, limit int) ([]TopUser, error) {
	query := `
		SELECT user_id, COALESCE(SUM(total_tokens), 0)
		FROM token_usage
		WHERE date BETWEEN $1 AND $2
		GROUP BY user_id
		ORDER BY SUM(total_tokens) DESC
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, params.Start, params.End, limit)
	if err != nil {
		return nil, fmt.Errorf("querying top users: %w", err)
	}
	defer rows.Close()

	var out []TopUser
	for rows.Next() {
		var u TopUser
		if err := rows.Scan(&u.UserID, &u.TotalTokens); err != nil {
			return nil, fmt.Errorf("scanning top user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating top users: %w", err)
	}
	return out, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
