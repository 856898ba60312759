package workers

import (
	"context"
	"log"
	"time"

	"staywatch/services"
)

// PruneStore deletes check logs older than the cutoff.
type PruneStore interface {
	PruneCheckLogs(ctx context.Context, olderThan time.Duration) (int64, error)
}

// RetentionWorker trims aged check logs on a slow cadence so the
// append-only history does not grow without bound.
type RetentionWorker struct {
	store     PruneStore
	settings  *services.SettingsService
	triggerCh chan struct{}
}

func NewRetentionWorker(store PruneStore, settings *services.SettingsService) *RetentionWorker {
	return &RetentionWorker{
		store:     store,
		settings:  settings,
		triggerCh: make(chan struct{}, 1),
	}
}

// Trigger causes the worker to run immediately.
func (w *RetentionWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

func (w *RetentionWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Retention worker stopping")
			return
		case <-ticker.C:
			w.prune(ctx)
		case <-w.triggerCh:
			log.Println("Retention worker triggered manually")
			w.prune(ctx)
		}
	}
}

func (w *RetentionWorker) prune(ctx context.Context) {
	retention := w.settings.Runtime(ctx).LogRetention
	if retention <= 0 {
		return
	}
	deleted, err := w.store.PruneCheckLogs(ctx, retention)
	if err != nil {
		log.Printf("Retention: prune error: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("Retention: pruned %d check logs older than %s", deleted, retention)
	}
}
