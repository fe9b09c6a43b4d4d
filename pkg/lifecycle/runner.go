package lifecycle

import "sync"

// Runner provides a reusable start/stop lifecycle for a group of background
// loops. Start and Stop are idempotent and Stop waits for every loop to exit.
type Runner struct {
	mu      sync.RWMutex
	wg      sync.WaitGroup
	running bool
	stopCh  chan struct{}
}

func NewRunner() *Runner {
	return &Runner{}
}

// Start launches n copies of loop, each told its index.
func (r *Runner) Start(n int, loop func(id int, stop <-chan struct{})) bool {
	if loop == nil || n <= 0 {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}

	stopCh := make(chan struct{})
	r.stopCh = stopCh
	r.running = true
	for i := 0; i < n; i++ {
		r.wg.Add(1)
		go func(id int) {
			defer r.wg.Done()
			loop(id, stopCh)
		}(i)
	}
	return true
}

func (r *Runner) Stop() bool {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return false
	}
	stopCh := r.stopCh
	r.stopCh = nil
	r.running = false
	close(stopCh)
	r.mu.Unlock()

	r.wg.Wait()
	return true
}

func (r *Runner) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}
