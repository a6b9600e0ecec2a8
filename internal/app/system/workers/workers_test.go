package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dalemusser/commonshub/internal/app/system/mailer"
	"go.uber.org/zap"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
	fail bool
}

func (s *recordingSender) Send(e mailer.Email) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, e.To)
	if s.fail {
		return errors.New("smtp down")
	}
	return nil
}

func TestNotifier_DeliversQueuedOnStop(t *testing.T) {
	s := &recordingSender{}
	n := NewNotifier(s, zap.NewNop(), 2, 8, nil)
	n.Start()

	for _, to := range []string{"a@x", "b@x", "c@x"} {
		if !n.Enqueue(mailer.Email{To: to}) {
			t.Fatalf("Enqueue(%s) rejected", to)
		}
	}
	n.Stop()

	if len(s.sent) != 3 {
		t.Errorf("sent %d emails, want 3", len(s.sent))
	}
}

func TestNotifier_DropsWhenFull(t *testing.T) {
	var dropped int32
	n := NewNotifier(&recordingSender{}, zap.NewNop(), 1, 1, func() { atomic.AddInt32(&dropped, 1) })

	// Not started: the first message fills the queue.
	n.Enqueue(mailer.Email{To: "a@x"})
	if n.Enqueue(mailer.Email{To: "b@x"}) {
		t.Error("expected second Enqueue to be rejected")
	}
	if atomic.LoadInt32(&dropped) != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
}

func TestNotifier_SendFailureDoesNotStopWorker(t *testing.T) {
	s := &recordingSender{fail: true}
	n := NewNotifier(s, zap.NewNop(), 1, 4, nil)
	n.Start()
	n.Enqueue(mailer.Email{To: "a@x"})
	n.Enqueue(mailer.Email{To: "b@x"})
	n.Stop()

	if len(s.sent) != 2 {
		t.Errorf("attempted %d sends, want 2", len(s.sent))
	}
}

func TestNotifier_EnqueueAfterStop(t *testing.T) {
	s := &recordingSender{}
	n := NewNotifier(s, zap.NewNop(), 1, 4, nil)
	n.Start()
	n.Stop()
	n.Stop()

	if n.Enqueue(mailer.Email{To: "late@x"}) {
		t.Error("expected Enqueue after Stop to be rejected")
	}
	if len(s.sent) != 0 {
		t.Errorf("sent %d emails after Stop, want 0", len(s.sent))
	}
}

type countingResolver struct{ calls int32 }

func (c *countingResolver) ReconcilePending(ctx context.Context, limit int) (int, error) {
	atomic.AddInt32(&c.calls, 1)
	return 1, nil
}

func TestReconciler_Ticks(t *testing.T) {
	r := &countingResolver{}
	w := NewReconciler(r, zap.NewNop(), 10*time.Millisecond, 5)
	w.Start()
	time.Sleep(55 * time.Millisecond)
	w.Stop()

	if atomic.LoadInt32(&r.calls) < 2 {
		t.Errorf("calls = %d, want at least 2", r.calls)
	}
}
