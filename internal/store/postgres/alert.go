package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
)

type AlertStore struct {
	db *DB
}

func NewAlertStore(db *DB) *AlertStore {
	return &AlertStore{db: db}
}

func (s *AlertStore) SaveResolved(ctx context.Context, a *domain.Alert) error {
	payload, err := json.Marshal(a.Payload)
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}

	_, err = s.db.Pool.Exec(ctx, `
		INSERT INTO alert_history (id, type, severity, message, payload, occurrences, escalation_level, acknowledged, acknowledged_by, created_at, resolved_at, resolved_by, resolution)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`, a.ID, a.Type, a.Severity, a.Message, payload, a.Occurrences, a.EscalationLevel,
		a.Acknowledged, nullable(a.AcknowledgedBy), a.CreatedAt, a.ResolvedAt, a.ResolvedBy, nullable(a.Resolution))
	if err != nil {
		return fmt.Errorf("save resolved alert: %w", err)
	}
	return nil
}

func (s *AlertStore) History(ctx context.Context, limit int) ([]*domain.Alert, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT id, type, severity, message, payload, occurrences, escalation_level, acknowledged, COALESCE(acknowledged_by, ''), created_at, resolved_at, resolved_by, COALESCE(resolution, '')
		FROM alert_history
		ORDER BY resolved_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query alert history: %w", err)
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		var a domain.Alert
		var payload []byte
		var resolvedAt time.Time
		err := rows.Scan(&a.ID, &a.Type, &a.Severity, &a.Message, &payload, &a.Occurrences,
			&a.EscalationLevel, &a.Acknowledged, &a.AcknowledgedBy, &a.CreatedAt, &resolvedAt, &a.ResolvedBy, &a.Resolution)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &a.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal alert payload: %w", err)
			}
		}
		a.Resolved = true
		a.ResolvedAt = &resolvedAt
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

func (s *AlertStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM alert_history WHERE resolved_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge alert history: %w", err)
	}
	return tag.RowsAffected(), nil
}
