package bus

import (
	"context"
	"sync"
	"time"

	"github.com/mymmrac/telego"

	"tgrelay/pkg/logger"
)

const defaultPublishTimeout = 2 * time.Second

// UpdateBus decouples the webhook acknowledgment from update handling.
// Publishing never blocks longer than the publish timeout; an update that
// cannot be queued in time is dropped, since Telegram is already acked.
type UpdateBus struct {
	updates        chan telego.Update
	publishTimeout time.Duration
	mu             sync.RWMutex
	closed         bool
	closeOnce      sync.Once
}

func NewUpdateBus(size int) *UpdateBus {
	if size <= 0 {
		size = 100
	}
	return &UpdateBus{
		updates:        make(chan telego.Update, size),
		publishTimeout: defaultPublishTimeout,
	}
}

// Publish reports whether the update was queued.
func (b *UpdateBus) Publish(update telego.Update) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		logger.WarnCF("bus", "Publish on closed bus dropped", map[string]interface{}{
			logger.FieldUpdateID: update.UpdateID,
		})
		return false
	}

	timer := time.NewTimer(b.publishTimeout)
	defer timer.Stop()
	select {
	case b.updates <- update:
		return true
	case <-timer.C:
		logger.ErrorCF("bus", "Publish timeout (queue full), update dropped", map[string]interface{}{
			logger.FieldUpdateID: update.UpdateID,
		})
		return false
	}
}

// Consume blocks until an update is available, the bus is closed or ctx ends.
// Queued updates win over a cancelled ctx: they were already acknowledged to
// Telegram and will not be redelivered.
func (b *UpdateBus) Consume(ctx context.Context) (telego.Update, bool) {
	select {
	case update, ok := <-b.updates:
		return update, ok
	default:
	}
	select {
	case update, ok := <-b.updates:
		return update, ok
	case <-ctx.Done():
		return telego.Update{}, false
	}
}

func (b *UpdateBus) Len() int {
	return len(b.updates)
}

func (b *UpdateBus) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		close(b.updates)
		b.mu.Unlock()
	})
}
