package readcache

import (
	"sync"
	"time"
)

// DefaultSweepInterval is how often the background sweeper runs.
const DefaultSweepInterval = 5 * time.Minute

// Sweeper periodically sweeps a store. It is an explicit, stoppable task so
// services and tests can quiesce it deterministically instead of leaking a
// bare timer.
type Sweeper struct {
	store    *Store
	interval time.Duration

	mu       sync.Mutex
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
}

// NewSweeper creates a sweeper for store. A non-positive interval falls back
// to DefaultSweepInterval.
func NewSweeper(store *Store, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{store: store, interval: interval}
}

// Start launches the background sweep loop. Calling Start on a running
// sweeper is a no-op.
func (sw *Sweeper) Start() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.running {
		return
	}
	sw.running = true
	sw.stopChan = make(chan struct{})
	sw.wg.Add(1)
	go sw.run(sw.stopChan)
}

func (sw *Sweeper) run(stop <-chan struct{}) {
	defer sw.wg.Done()
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sw.store.Sweep()
		case <-stop:
			return
		}
	}
}

// Stop halts the sweep loop and waits for it to exit. Safe to call on a
// sweeper that was never started.
func (sw *Sweeper) Stop() {
	sw.mu.Lock()
	if !sw.running {
		sw.mu.Unlock()
		return
	}
	sw.running = false
	close(sw.stopChan)
	sw.mu.Unlock()
	sw.wg.Wait()
}
