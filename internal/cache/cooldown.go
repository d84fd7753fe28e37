package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/clock"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
)

// CooldownStore records post-resolution suppression windows per alert type.
type CooldownStore interface {
	Set(ctx context.Context, alertType domain.AlertType, d time.Duration) error
	Active(ctx context.Context, alertType domain.AlertType) (bool, error)
}

// MemoryCooldowns keeps cooldown deadlines in process. Used when no Redis is
// configured, and by tests.
type MemoryCooldowns struct {
	clock clock.Clock

	mu     sync.Mutex
	expiry map[domain.AlertType]time.Time
}

func NewMemoryCooldowns(clk clock.Clock) *MemoryCooldowns {
	return &MemoryCooldowns{
		clock:  clk,
		expiry: make(map[domain.AlertType]time.Time),
	}
}

func (m *MemoryCooldowns) Set(ctx context.Context, alertType domain.AlertType, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiry[alertType] = m.clock.Now().Add(d)
	return nil
}

func (m *MemoryCooldowns) Active(ctx context.Context, alertType domain.AlertType) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deadline, ok := m.expiry[alertType]
	if !ok {
		return false, nil
	}
	if m.clock.Now().After(deadline) {
		delete(m.expiry, alertType)
		return false, nil
	}
	return true, nil
}

// RedisCooldowns persists cooldowns in Redis so a restart does not reopen the
// suppression window mid-storm. Keys expire on their own.
type RedisCooldowns struct {
	rdb *redis.Client
}

func NewRedisCooldowns(rdb *redis.Client) *RedisCooldowns {
	return &RedisCooldowns{rdb: rdb}
}

func cooldownKey(alertType domain.AlertType) string {
	return "alert:cooldown:" + string(alertType)
}

func (r *RedisCooldowns) Set(ctx context.Context, alertType domain.AlertType, d time.Duration) error {
	if err := r.rdb.Set(ctx, cooldownKey(alertType), 1, d).Err(); err != nil {
		return fmt.Errorf("set cooldown for %s: %w", alertType, err)
	}
	return nil
}

func (r *RedisCooldowns) Active(ctx context.Context, alertType domain.AlertType) (bool, error) {
	n, err := r.rdb.Exists(ctx, cooldownKey(alertType)).Result()
	if err != nil {
		return false, fmt.Errorf("check cooldown for %s: %w", alertType, err)
	}
	return n > 0, nil
}
