package store

import (
	"context"
	"fmt"

	"github.com/feedgate/feedgate/internal/domain"
)

// SaveActivity appends one entry to a user's activity log.
func (s *PostgresStore) SaveActivity(ctx context.Context, a *domain.Activity) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO activity_logs (id, user_id, action, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.UserID, a.Action, nullIfEmpty(a.ReferenceID), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// ListActivity returns a user's most recent activity entries, newest first.
func (s *PostgresStore) ListActivity(ctx context.Context, userID string, limit int) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, action, COALESCE(reference_id, ''), created_at
		FROM activity_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	out := []domain.Activity{}
	for rows.Next() {
		var a domain.Activity
		if err := rows.Scan(&a.ID, &a.UserID, &a.Action, &a.ReferenceID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveFeedInteraction records a user acting on a feed item.
func (s *PostgresStore) SaveFeedInteraction(ctx context.Context, fi *domain.FeedInteraction) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO feed_interactions (id, user_id, type, data, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		fi.ID, fi.UserID, fi.Type, fi.Data, fi.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert feed interaction: %w", err)
	}
	return nil
}

// ListFeedInteractions returns a page of a user's interactions, newest
// first, plus the total count for pagination.
func (s *PostgresStore) ListFeedInteractions(ctx context.Context, userID string, limit, offset int) ([]domain.FeedInteraction, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM feed_interactions WHERE user_id = $1`, userID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count feed interactions: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, type, data, created_at
		FROM feed_interactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list feed interactions: %w", err)
	}
	defer rows.Close()

	out := []domain.FeedInteraction{}
	for rows.Next() {
		var fi domain.FeedInteraction
		if err := rows.Scan(&fi.ID, &fi.UserID, &fi.Type, &fi.Data, &fi.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan feed interaction: %w", err)
		}
		out = append(out, fi)
	}
	return out, total, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
