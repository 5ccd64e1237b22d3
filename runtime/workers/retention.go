package workers

import (
	"context"
	"log/slog"
	"time"
)

type ChatLister interface {
	ListChatIDs(ctx context.Context) ([]string, error)
}

type MessagePurger interface {
	PurgeMessagesBefore(ctx context.Context, chatID string, before time.Time) (int, error)
}

// RetentionWorker periodically hard-deletes messages older than the retention period.
type RetentionWorker struct {
	log      *slog.Logger
	chats    ChatLister
	purger   MessagePurger
	period   time.Duration
	interval time.Duration
	now      func() time.Time
}

func NewRetentionWorker(log *slog.Logger, chats ChatLister, purger MessagePurger, period, interval time.Duration) *RetentionWorker {
	return &RetentionWorker{
		log:      log,
		chats:    chats,
		purger:   purger,
		period:   period,
		interval: interval,
		now:      time.Now,
	}
}

func (w *RetentionWorker) Run(ctx context.Context) error {
	w.log.Info("Starting retention worker", "period", w.period, "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			purged, err := w.Sweep(ctx)
			if err != nil {
				w.log.Error("Retention sweep failed", "error", err)
				continue
			}
			if purged > 0 {
				w.log.Info("Retention sweep done", "purged", purged)
			}
		}
	}
}

// Sweep purges every chat once. A failing chat is logged and skipped.
func (w *RetentionWorker) Sweep(ctx context.Context) (int, error) {
	ids, err := w.chats.ListChatIDs(ctx)
	if err != nil {
		return 0, err
	}
	before := w.now().Add(-w.period)
	total := 0
	for _, chatID := range ids {
		n, err := w.purger.PurgeMessagesBefore(ctx, chatID, before)
		if err != nil {
			w.log.Warn("Purge failed", "chat_id", chatID, "error", err)
			continue
		}
		total += n
	}
	return total, nil
}
