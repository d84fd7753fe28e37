package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/store"
)

// AnalyticsStore keeps hour-bucketed counters so windowed rates are one
// aggregate query instead of a scan over raw delivery rows.
type AnalyticsStore struct {
	db *DB
}

func NewAnalyticsStore(db *DB) *AnalyticsStore {
	return &AnalyticsStore{db: db}
}

func (s *AnalyticsStore) RecordOutcome(ctx context.Context, ch domain.Channel, role domain.Role, status string, latencyMs int64, at time.Time) error {
	bucket := at.Truncate(time.Hour)

	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO delivery_stats (bucket, channel, role, status, count, latency_sum_ms)
		VALUES ($1, $2, $3, $4, 1, $5)
		ON CONFLICT (bucket, channel, role, status)
		DO UPDATE SET count = delivery_stats.count + 1,
		              latency_sum_ms = delivery_stats.latency_sum_ms + $5
	`, bucket, ch, role, status, latencyMs)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

func (s *AnalyticsStore) RecordEngagement(ctx context.Context, kind string, at time.Time) error {
	bucket := at.Truncate(time.Hour)

	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO engagement_stats (bucket, kind, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (bucket, kind)
		DO UPDATE SET count = engagement_stats.count + 1
	`, bucket, kind)
	if err != nil {
		return fmt.Errorf("record engagement: %w", err)
	}
	return nil
}

func (s *AnalyticsStore) Window(ctx context.Context, from, to time.Time) (*store.WindowStats, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT channel, role, status, SUM(count), SUM(latency_sum_ms)
		FROM delivery_stats
		WHERE bucket >= $1 AND bucket < $2
		GROUP BY channel, role, status
	`, from.Truncate(time.Hour), to)
	if err != nil {
		return nil, fmt.Errorf("query window stats: %w", err)
	}
	defer rows.Close()

	ws := &store.WindowStats{
		From:       from,
		To:         to,
		PerChannel: make(map[domain.Channel]*store.ChannelStats),
		PerRole:    make(map[domain.Role]*store.ChannelStats),
	}

	for rows.Next() {
		var ch domain.Channel
		var role domain.Role
		var status string
		var count, latencySum int64
		if err := rows.Scan(&ch, &role, &status, &count, &latencySum); err != nil {
			return nil, fmt.Errorf("scan window stats: %w", err)
		}
		fold(ws, ch, role, status, count, latencySum)
	}
	return ws, rows.Err()
}

func fold(ws *store.WindowStats, ch domain.Channel, role domain.Role, status string, count, latencySum int64) {
	cs := ws.PerChannel[ch]
	if cs == nil {
		cs = &store.ChannelStats{}
		ws.PerChannel[ch] = cs
	}
	rs := ws.PerRole[role]
	if rs == nil {
		rs = &store.ChannelStats{}
		ws.PerRole[role] = rs
	}

	for _, dst := range []*store.ChannelStats{&ws.Overall, cs, rs} {
		switch status {
		case "delivered":
			dst.Sent += count
			dst.Delivered += count
			dst.LatencySumMs += latencySum
			dst.LatencyCount += count
		case "failed", "permanently_failed", "bounced":
			dst.Sent += count
			dst.Failed += count
		}
		// skipped is preference-blocked, not a send; it stays out of the rates.
	}
}

func (s *AnalyticsStore) Trend(ctx context.Context, from, to time.Time) ([]store.TrendPoint, error) {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT bucket,
		       SUM(count) FILTER (WHERE status = 'delivered'),
		       SUM(count) FILTER (WHERE status IN ('failed', 'permanently_failed', 'bounced'))
		FROM delivery_stats
		WHERE bucket >= $1 AND bucket < $2
		GROUP BY bucket
		ORDER BY bucket ASC
	`, from.Truncate(time.Hour), to)
	if err != nil {
		return nil, fmt.Errorf("query trend: %w", err)
	}
	defer rows.Close()

	var points []store.TrendPoint
	for rows.Next() {
		var p store.TrendPoint
		var delivered, failed *int64
		if err := rows.Scan(&p.Bucket, &delivered, &failed); err != nil {
			return nil, fmt.Errorf("scan trend point: %w", err)
		}
		if delivered != nil {
			p.Delivered = *delivered
		}
		if failed != nil {
			p.Failed = *failed
		}
		p.Sent = p.Delivered + p.Failed
		points = append(points, p)
	}
	return points, rows.Err()
}
