// internal/app/system/workers/reconciler.go
package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PendingResolver resolves forum mappings whose user id is still unknown.
type PendingResolver interface {
	ReconcilePending(ctx context.Context, limit int) (resolved int, err error)
}

// Reconciler periodically retries pending forum identity mappings.
type Reconciler struct {
	resolver PendingResolver
	log      *zap.Logger
	interval time.Duration
	batch    int
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewReconciler creates a reconciler that handles up to batch mappings
// every interval.
func NewReconciler(resolver PendingResolver, logger *zap.Logger, interval time.Duration, batch int) *Reconciler {
	if batch < 1 {
		batch = 50
	}
	return &Reconciler{
		resolver: resolver,
		log:      logger,
		interval: interval,
		batch:    batch,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background loop.
func (w *Reconciler) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("forum reconciler started", zap.Duration("interval", w.interval))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *Reconciler) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("forum reconciler stopped")
}

func (w *Reconciler) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *Reconciler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := w.resolver.ReconcilePending(ctx, w.batch)
	if err != nil {
		w.log.Error("reconcile pending forum mappings", zap.Error(err))
		return
	}
	if n > 0 {
		w.log.Info("resolved pending forum mappings", zap.Int("count", n))
	}
}
