package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/feedgate/feedgate/internal/domain"
)

var (
	// ErrUserNotFound is returned when no user matches the lookup.
	ErrUserNotFound = errors.New("store: user not found")
	// ErrDuplicateEmail is returned when an email is already registered.
	ErrDuplicateEmail = errors.New("store: email already registered")
)

const userColumns = `id, name, email, password_hash, role, status, credits,
	profile_completed, profile_bonus_given, last_login_at, profile, created_at, updated_at`

// CreateUser inserts a new user row. The caller fills ID, PasswordHash,
// and timestamps before calling.
func (s *PostgresStore) CreateUser(ctx context.Context, u *domain.User) error {
	profile, err := json.Marshal(u.Profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, status, credits,
			profile_completed, profile_bonus_given, last_login_at, profile, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.Status, u.Credits,
		u.ProfileCompleted, u.ProfileBonusGiven, u.LastLoginAt, profile, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByEmail loads a user by email, or ErrUserNotFound.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// GetUserByID loads a user by ID, or ErrUserNotFound.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// UpdateProfile applies non-nil fields of upd to the user's row and
// returns the updated user.
func (s *PostgresStore) UpdateProfile(ctx context.Context, id string, upd *domain.ProfileUpdate) (*domain.User, error) {
	u, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Profile != nil {
		u.Profile = *upd.Profile
	}
	if upd.ProfileCompleted != nil {
		u.ProfileCompleted = *upd.ProfileCompleted
	}
	u.UpdatedAt = time.Now().UTC()

	profile, err := json.Marshal(u.Profile)
	if err != nil {
		return nil, fmt.Errorf("marshal profile: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE users SET name = $2, profile = $3, profile_completed = $4, updated_at = $5
		WHERE id = $1`,
		u.ID, u.Name, profile, u.ProfileCompleted, u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return u, nil
}

// AddCredits atomically increments the user's credit balance and
// returns the new total.
func (s *PostgresStore) AddCredits(ctx context.Context, id string, delta int) (int, error) {
	var credits int
	err := s.pool.QueryRow(ctx, `
		UPDATE users SET credits = credits + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING credits`, id, delta).Scan(&credits)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("add credits: %w", err)
	}
	return credits, nil
}

// ApplyLoginCredits records a login: bumps last_login_at, adds delta
// credits, and optionally marks the profile bonus as spent.
func (s *PostgresStore) ApplyLoginCredits(ctx context.Context, id string, loginAt time.Time, delta int, markBonusGiven bool) (*domain.User, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE users SET
			last_login_at = $2,
			credits = credits + $3,
			profile_bonus_given = profile_bonus_given OR $4,
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns, id, loginAt, delta, markBonusGiven)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u       domain.User
		profile []byte
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Status,
		&u.Credits, &u.ProfileCompleted, &u.ProfileBonusGiven, &u.LastLoginAt,
		&profile, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &u.Profile); err != nil {
			return nil, fmt.Errorf("unmarshal profile: %w", err)
		}
	}
	return &u, nil
}
