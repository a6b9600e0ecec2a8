// internal/app/system/workers/notifier.go
package workers

import (
	"sync"

	"github.com/dalemusser/commonshub/internal/app/system/mailer"
	"go.uber.org/zap"
)

// Sender delivers a single email.
type Sender interface {
	Send(mailer.Email) error
}

// Notifier delivers emails from a bounded queue on a fixed pool of
// goroutines so request handlers never wait on SMTP.
type Notifier struct {
	sender  Sender
	log     *zap.Logger
	workers int
	queue   chan mailer.Email
	onDrop  func()
	wg      sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// NewNotifier creates a notifier with the given pool and queue sizes.
// onDrop, if non-nil, is called for each message rejected by a full queue.
func NewNotifier(sender Sender, logger *zap.Logger, workers, queueSize int, onDrop func()) *Notifier {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 64
	}
	return &Notifier{
		sender:  sender,
		log:     logger,
		workers: workers,
		queue:   make(chan mailer.Email, queueSize),
		onDrop:  onDrop,
	}
}

// Start launches the worker goroutines.
func (n *Notifier) Start() {
	for i := 0; i < n.workers; i++ {
		n.wg.Add(1)
		go n.run()
	}
	n.log.Info("notifier started", zap.Int("workers", n.workers), zap.Int("queue", cap(n.queue)))
}

// Stop closes the queue and waits for queued mail to drain. Later calls
// to Enqueue report false.
func (n *Notifier) Stop() {
	n.mu.Lock()
	if !n.stopped {
		n.stopped = true
		close(n.queue)
	}
	n.mu.Unlock()
	n.wg.Wait()
	n.log.Info("notifier stopped")
}

// Enqueue schedules e without blocking. It reports false when the queue
// is full or the notifier has stopped.
func (n *Notifier) Enqueue(e mailer.Email) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		n.log.Warn("notifier stopped, dropping email",
			zap.String("to", e.To), zap.String("subject", e.Subject))
		return false
	}
	select {
	case n.queue <- e:
		return true
	default:
		n.log.Warn("notification queue full, dropping email",
			zap.String("to", e.To), zap.String("subject", e.Subject))
		if n.onDrop != nil {
			n.onDrop()
		}
		return false
	}
}

func (n *Notifier) run() {
	defer n.wg.Done()
	for e := range n.queue {
		if err := n.sender.Send(e); err != nil {
			n.log.Warn("send email failed",
				zap.String("to", e.To), zap.String("subject", e.Subject), zap.Error(err))
		}
	}
}
