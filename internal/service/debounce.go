package service

import (
	"sync"
	"time"
)

type debounceKey struct {
	taskID   uint
	workerID uint
}

// Debouncer swallows repeated (task, worker) assignment events fired within
// a short window. It smooths duplicate UI events and is not a lock.
type Debouncer struct {
	window time.Duration
	now    func() time.Time

	mu    sync.Mutex
	seen  map[debounceKey]time.Time
	sweep time.Time
}

func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window: window,
		now:    time.Now,
		seen:   make(map[debounceKey]time.Time),
	}
}

// Seen records the event and reports whether the same key already fired
// within the window.
func (d *Debouncer) Seen(taskID, workerID uint) bool {
	if d == nil || d.window <= 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if now.Sub(d.sweep) > d.window {
		for k, at := range d.seen {
			if now.Sub(at) >= d.window {
				delete(d.seen, k)
			}
		}
		d.sweep = now
	}

	key := debounceKey{taskID: taskID, workerID: workerID}
	if at, ok := d.seen[key]; ok && now.Sub(at) < d.window {
		return true
	}
	d.seen[key] = now
	return false
}

// Forget drops the key, e.g. after an attempt finished and a retry must go through.
func (d *Debouncer) Forget(taskID, workerID uint) {
	if d == nil {
		return
	}
	d.mu.Lock()
	delete(d.seen, debounceKey{taskID: taskID, workerID: workerID})
	d.mu.Unlock()
}

func (d *Debouncer) size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
