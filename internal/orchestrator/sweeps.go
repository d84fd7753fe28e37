package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/logging"
)

const sweepBatch = 200

// RunScheduledSweep periodically enqueues notifications whose scheduled time
// has arrived.
func (o *Orchestrator) RunScheduledSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("scheduled-notification sweep started",
		slog.String("code", "SYS_STARTUP"),
		slog.Duration("interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduled-notification sweep shutting down", slog.String("code", "SYS_SHUTDOWN"))
			return
		case <-ticker.C:
			o.SweepScheduled(ctx)
		}
	}
}

// SweepScheduled releases due notifications into the queue and clears their
// scheduled time so the next sweep does not pick them up again.
func (o *Orchestrator) SweepScheduled(ctx context.Context) int {
	due, err := o.notifications.FindDue(ctx, o.clock.Now(), sweepBatch)
	if err != nil {
		slog.Error("failed to find due notifications", slog.String("code", "DB_ERROR"), slog.Any("error", err))
		return 0
	}

	for _, n := range due {
		ctx := logging.WithNotification(ctx, n.ID)
		if err := o.notifications.ClearScheduled(ctx, n.ID); err != nil {
			logging.FromContext(ctx).Error("failed to clear schedule", slog.String("code", "DB_ERROR"), slog.Any("error", err))
			continue
		}
		n.ScheduledFor = nil
		o.enqueueRecipients(ctx, n)
		logging.FromContext(ctx).Info("scheduled notification released", slog.String("code", "NOTIF_DUE"))
	}
	return len(due)
}

// RunExpirySweep garbage-collects expired notifications: their queue items
// are dropped and any pair not yet terminal is closed out as skipped. Expiry
// never triggers further delivery attempts.
func (o *Orchestrator) RunExpirySweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.SweepExpired(ctx)
		}
	}
}

func (o *Orchestrator) SweepExpired(ctx context.Context) int {
	expired, err := o.notifications.FindExpired(ctx, o.clock.Now(), sweepBatch)
	if err != nil {
		slog.Error("failed to find expired notifications", slog.String("code", "DB_ERROR"), slog.Any("error", err))
		return 0
	}

	now := o.clock.Now()
	for _, n := range expired {
		ctx := logging.WithNotification(ctx, n.ID)
		l := logging.FromContext(ctx)

		if err := o.queue.DropNotification(ctx, n.ID); err != nil {
			l.Error("failed to drop expired queue items", slog.String("code", "DB_ERROR"), slog.Any("error", err))
			continue
		}

		for i := range n.Recipients {
			r := &n.Recipients[i]
			for _, ch := range r.Channels {
				cd := r.Delivery[ch]
				if cd == nil || cd.State.Terminal() {
					continue
				}
				cd.State = domain.StateSkipped
				cd.LastError = "expired"
				cd.UpdatedAt = now
				o.persistState(ctx, n.ID, r, ch)
			}
		}
		l.Info("expired notification collected", slog.String("code", "NOTIF_EXPIRED"))
	}
	return len(expired)
}
