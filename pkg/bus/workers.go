package bus

import (
	"context"

	"github.com/mymmrac/telego"

	"tgrelay/pkg/lifecycle"
	"tgrelay/pkg/logger"
)

type UpdateHandler func(ctx context.Context, update telego.Update)

// Workers drains an UpdateBus with a fixed number of goroutines. Updates are
// handled concurrently with no ordering between them.
type Workers struct {
	bus     *UpdateBus
	handler UpdateHandler
	size    int
	runner  *lifecycle.Runner
}

func NewWorkers(b *UpdateBus, size int, handler UpdateHandler) *Workers {
	if size <= 0 {
		size = 1
	}
	return &Workers{
		bus:     b,
		handler: handler,
		size:    size,
		runner:  lifecycle.NewRunner(),
	}
}

func (w *Workers) Start() {
	if !w.runner.Start(w.size, w.loop) {
		return
	}
	logger.InfoCF("bus", "Update workers started", map[string]interface{}{
		"workers": w.size,
	})
}

// Stop drains the queue, then waits for in-flight updates to finish. Close
// the bus first so publishers cannot keep the drain going.
func (w *Workers) Stop() {
	if !w.runner.Stop() {
		return
	}
	logger.InfoC("bus", "Update workers stopped")
}

func (w *Workers) loop(id int, stop <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		update, ok := w.bus.Consume(ctx)
		if !ok {
			return
		}
		w.handle(context.Background(), id, update)
	}
}

func (w *Workers) handle(ctx context.Context, id int, update telego.Update) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("bus", "Update handler panicked", map[string]interface{}{
				logger.FieldUpdateID: update.UpdateID,
				"worker":             id,
				"panic":              r,
			})
		}
	}()
	w.handler(ctx, update)
}
