package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
)

type PreferenceStore struct {
	db *DB
}

func NewPreferenceStore(db *DB) *PreferenceStore {
	return &PreferenceStore{db: db}
}

func (s *PreferenceStore) Get(ctx context.Context, userID string) (*domain.Preferences, error) {
	var p domain.Preferences
	var channels, categories, quietHours []byte

	err := s.db.Pool.QueryRow(ctx, `
		SELECT user_id, COALESCE(email, ''), COALESCE(phone, ''), channels, categories, quiet_hours
		FROM user_preferences WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.Email, &p.Phone, &channels, &categories, &quietHours)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// No stored preferences: all channels and categories enabled.
			return &domain.Preferences{UserID: userID}, nil
		}
		return nil, fmt.Errorf("get preferences: %w", err)
	}

	if len(channels) > 0 {
		if err := json.Unmarshal(channels, &p.Channels); err != nil {
			return nil, fmt.Errorf("unmarshal channel preferences: %w", err)
		}
	}
	if len(categories) > 0 {
		if err := json.Unmarshal(categories, &p.Categories); err != nil {
			return nil, fmt.Errorf("unmarshal category preferences: %w", err)
		}
	}
	if len(quietHours) > 0 {
		if err := json.Unmarshal(quietHours, &p.QuietHours); err != nil {
			return nil, fmt.Errorf("unmarshal quiet hours: %w", err)
		}
	}
	return &p, nil
}

type DirectoryStore struct {
	db *DB
}

func NewDirectoryStore(db *DB) *DirectoryStore {
	return &DirectoryStore{db: db}
}

func (s *DirectoryStore) UsersByRole(ctx context.Context, roles []domain.Role) ([]*domain.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	roleNames := make([]string, len(roles))
	for i, r := range roles {
		roleNames[i] = string(r)
	}

	rows, err := s.db.Pool.Query(ctx, `
		SELECT id, role, COALESCE(email, ''), COALESCE(phone, '')
		FROM users WHERE role = ANY($1)
	`, roleNames)
	if err != nil {
		return nil, fmt.Errorf("query users by role: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Role, &u.Email, &u.Phone); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}
