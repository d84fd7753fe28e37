package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/channel"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/logging"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/metrics"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/store"
)

// Poller is the background loop that drains the delivery queue into the
// channel manager.
type Poller struct {
	queue         *Queue
	manager       *channel.Manager
	notifications store.NotificationStore
	collector     *metrics.Collector
	interval      time.Duration
	batchSize     int
}

func NewPoller(q *Queue, manager *channel.Manager, notifications store.NotificationStore, collector *metrics.Collector, interval time.Duration, batchSize int) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize < 1 {
		batchSize = 25
	}
	return &Poller{
		queue:         q,
		manager:       manager,
		notifications: notifications,
		collector:     collector,
		interval:      interval,
		batchSize:     batchSize,
	}
}

func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	slog.Info("delivery queue poller started",
		slog.String("code", "SYS_STARTUP"),
		slog.Duration("interval", p.interval),
		slog.Int("batchSize", p.batchSize),
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("delivery queue poller shutting down", slog.String("code", "SYS_SHUTDOWN"))
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll leases one batch and processes every item. Exported so tests and the
// monitor's self-healing path can drive the queue without the ticker.
func (p *Poller) Poll(ctx context.Context) int {
	items, err := p.queue.DequeueBatch(ctx, p.batchSize)
	if err != nil {
		slog.Error("failed to dequeue batch", slog.String("code", "DB_ERROR"), slog.Any("error", err))
		return 0
	}

	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		go func(item *domain.QueueItem) {
			defer wg.Done()
			p.process(ctx, item)
		}(item)
	}
	wg.Wait()

	if p.collector != nil {
		if depth, err := p.queue.Depth(ctx); err == nil {
			p.collector.SetQueueDepth(depth)
		}
	}
	return len(items)
}

func (p *Poller) process(ctx context.Context, item *domain.QueueItem) {
	ctx = logging.WithNotification(ctx, item.NotificationID)
	ctx = logging.WithRecipient(ctx, item.RecipientID)
	l := logging.FromContext(ctx)

	n, err := p.notifications.GetByID(ctx, item.NotificationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			l.Warn("queue item for missing notification, dropping", slog.String("code", "DEL_ORPHAN"))
			p.queue.MarkProcessed(ctx, item)
			return
		}
		l.Error("failed to load notification", slog.String("code", "DB_ERROR"), slog.Any("error", err))
		return // lease expiry will surface the item again
	}

	results := p.manager.Deliver(ctx, n, item.RecipientID, item.Channels)

	retriable := ""
	for _, res := range results {
		if !res.Success && !res.Permanent {
			retriable = res.Error
			break
		}
	}

	if retriable != "" {
		if err := p.queue.MarkFailed(ctx, item, n, retriable); err != nil {
			l.Error("failed to mark item failed", slog.String("code", "DB_ERROR"), slog.Any("error", err))
		}
		return
	}

	if err := p.queue.MarkProcessed(ctx, item); err != nil {
		l.Error("failed to mark item processed", slog.String("code", "DB_ERROR"), slog.Any("error", err))
	}
}
