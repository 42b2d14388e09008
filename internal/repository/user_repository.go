package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/savelov/reshalka/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	const query = `
SELECT telegram_id, username, first_name, is_pro, is_banned, requests_used, window_start, created_at
FROM users WHERE telegram_id = ?`
	row := r.db.QueryRowContext(ctx, query, telegramID)
	var (
		u           models.User
		isPro       int
		isBanned    int
		windowStart int64
		createdAt   int64
	)
	if err := row.Scan(&u.TelegramID, &u.Username, &u.FirstName, &isPro, &isBanned, &u.RequestsUsed, &windowStart, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.IsPro = isPro != 0
	u.IsBanned = isBanned != 0
	u.WindowStart = time.Unix(windowStart, 0).UTC()
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &u, nil
}

// Ensure returns the user for telegramID, creating the record on first
// contact. A fresh record starts its quota window at now. Non-empty profile
// fields refresh the stored ones.
func (r *UserRepository) Ensure(ctx context.Context, telegramID int64, username, firstName string) (*models.User, bool, error) {
	user, err := r.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, false, err
	}
	if user != nil {
		if (username != "" && username != user.Username) || (firstName != "" && firstName != user.FirstName) {
			if err := r.updateProfile(ctx, telegramID, username, firstName); err != nil {
				return nil, false, err
			}
			if username != "" {
				user.Username = username
			}
			if firstName != "" {
				user.FirstName = firstName
			}
		}
		return user, false, nil
	}

	now := time.Now().UTC()
	const query = `
INSERT INTO users (telegram_id, username, first_name, window_start, created_at)
VALUES (?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, telegramID, username, firstName, now.Unix(), now.Unix()); err != nil {
		return nil, false, fmt.Errorf("insert user: %w", err)
	}
	created, err := r.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func (r *UserRepository) updateProfile(ctx context.Context, telegramID int64, username, firstName string) error {
	const query = `
UPDATE users
SET username = CASE WHEN ? = '' THEN username ELSE ? END,
    first_name = CASE WHEN ? = '' THEN first_name ELSE ? END
WHERE telegram_id = ?`
	if _, err := r.db.ExecContext(ctx, query, username, username, firstName, firstName, telegramID); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// ResetExpiredWindow lazily starts a new quota window when the stored one is
// older than the cutoff. The WHERE guard makes concurrent resets harmless.
func (r *UserRepository) ResetExpiredWindow(ctx context.Context, telegramID int64, cutoff, now time.Time) error {
	const query = `
UPDATE users SET requests_used = 0, window_start = ?
WHERE telegram_id = ? AND window_start <= ?`
	if _, err := r.db.ExecContext(ctx, query, now.Unix(), telegramID, cutoff.Unix()); err != nil {
		return fmt.Errorf("reset window: %w", err)
	}
	return nil
}

// ConsumeRequest atomically takes one free-tier slot. The conditional UPDATE
// is the serialization point: of two concurrent calls fighting over the last
// slot exactly one sees rows affected.
func (r *UserRepository) ConsumeRequest(ctx context.Context, telegramID int64, limit int) (bool, error) {
	const query = `
UPDATE users SET requests_used = requests_used + 1
WHERE telegram_id = ? AND is_pro = 0 AND is_banned = 0 AND requests_used < ?`
	res, err := r.db.ExecContext(ctx, query, telegramID, limit)
	if err != nil {
		return false, fmt.Errorf("consume request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *UserRepository) SetPro(ctx context.Context, telegramID int64, isPro bool) error {
	value := 0
	if isPro {
		value = 1
	}
	const query = `UPDATE users SET is_pro = ? WHERE telegram_id = ?`
	if _, err := r.db.ExecContext(ctx, query, value, telegramID); err != nil {
		return fmt.Errorf("set pro: %w", err)
	}
	return nil
}

func (r *UserRepository) SetBanned(ctx context.Context, telegramID int64, isBanned bool) error {
	value := 0
	if isBanned {
		value = 1
	}
	const query = `UPDATE users SET is_banned = ? WHERE telegram_id = ?`
	if _, err := r.db.ExecContext(ctx, query, value, telegramID); err != nil {
		return fmt.Errorf("set banned: %w", err)
	}
	return nil
}

func (r *UserRepository) ResetRequests(ctx context.Context, telegramID int64, now time.Time) error {
	const query = `UPDATE users SET requests_used = 0, window_start = ? WHERE telegram_id = ?`
	if _, err := r.db.ExecContext(ctx, query, now.Unix(), telegramID); err != nil {
		return fmt.Errorf("reset requests: %w", err)
	}
	return nil
}

func (r *UserRepository) List(ctx context.Context) ([]*models.User, error) {
	const query = `
SELECT telegram_id, username, first_name, is_pro, is_banned, requests_used, window_start, created_at
FROM users ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var (
			u           models.User
			isPro       int
			isBanned    int
			windowStart int64
			createdAt   int64
		)
		if err := rows.Scan(&u.TelegramID, &u.Username, &u.FirstName, &isPro, &isBanned, &u.RequestsUsed, &windowStart, &createdAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.IsPro = isPro != 0
		u.IsBanned = isBanned != 0
		u.WindowStart = time.Unix(windowStart, 0).UTC()
		u.CreatedAt = time.Unix(createdAt, 0).UTC()
		users = append(users, &u)
	}
	return users, rows.Err()
}
