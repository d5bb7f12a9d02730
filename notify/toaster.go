// notify/toaster.go

package notify

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/norun9/rocketshoes-cart/cart"
)

const defaultCapacity = 16

// Toaster queues toasts for one session until the UI drains them.
// Older toasts are dropped once capacity is reached.
type Toaster struct {
	mu       sync.Mutex
	pending  []cart.Toast
	capacity int
	log      logrus.FieldLogger
}

// NewToaster returns an empty queue. capacity <= 0 selects the default.
func NewToaster(capacity int, log logrus.FieldLogger) *Toaster {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Toaster{capacity: capacity, log: log}
}

// Notify implements cart.Notifier.
func (t *Toaster) Notify(ctx context.Context, toast cart.Toast) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.pending) == t.capacity {
		t.pending = t.pending[1:]
	}
	t.pending = append(t.pending, toast)
	if t.log != nil {
		t.log.WithField("kind", toast.Kind).Debug(toast.Message)
	}
}

// Drain returns and clears the pending toasts, oldest first.
func (t *Toaster) Drain() []cart.Toast {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := t.pending
	t.pending = nil
	if out == nil {
		return []cart.Toast{}
	}
	return out
}
