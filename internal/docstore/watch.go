package docstore

import (
	"context"
	"sync"
)

// Watcher drives one subscription: it loads the query result, hands it to
// the callback, then waits for Notify before loading again. Notifications
// that arrive while a snapshot is being delivered coalesce into one reload.
// Drivers feed Notify from their own change source, and call Fail when
// that source is gone.
type Watcher struct {
	cancel   context.CancelFunc
	dirty    chan struct{}
	fail     chan error
	done     chan struct{}
	once     sync.Once
	failOnce sync.Once
}

// Watch starts a watcher goroutine. Close must not be called from inside fn.
func Watch(ctx context.Context, load func(context.Context) ([]Document, error), fn func(Snapshot)) *Watcher {
	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		cancel: cancel,
		dirty:  make(chan struct{}, 1),
		fail:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go w.run(ctx, load, fn)
	return w
}

func (w *Watcher) run(ctx context.Context, load func(context.Context) ([]Document, error), fn func(Snapshot)) {
	defer close(w.done)
	defer w.cancel()
	for {
		docs, err := load(ctx)
		if ctx.Err() != nil {
			return
		}
		select {
		case ferr := <-w.fail:
			fn(Snapshot{Err: ferr})
			return
		default:
		}
		fn(Snapshot{Docs: docs, Err: err})
		select {
		case <-ctx.Done():
			return
		case ferr := <-w.fail:
			fn(Snapshot{Err: ferr})
			return
		case <-w.dirty:
		}
	}
}

// Notify schedules a reload. It never blocks.
func (w *Watcher) Notify() {
	select {
	case w.dirty <- struct{}{}:
	default:
	}
}

// Done is closed once the watcher goroutine has exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Fail ends the watcher with err: fn receives one last Snapshot carrying
// err, unless the watcher was already closed. Fail waits for the goroutine
// to exit and must not be called from inside fn.
func (w *Watcher) Fail(err error) {
	w.failOnce.Do(func() { w.fail <- err })
	<-w.done
}

// Close stops the watcher and waits for the goroutine to exit.
func (w *Watcher) Close() error {
	w.once.Do(w.cancel)
	<-w.done
	return nil
}

// WatcherSet tracks the live watchers of a driver so that closing the
// driver can end them. The zero value is ready to use.
type WatcherSet struct {
	mu     sync.Mutex
	ws     map[*Watcher]struct{}
	closed bool
}

// Add tracks w until its goroutine exits. It reports false when the set
// has already been failed; the caller then owns closing w.
func (s *WatcherSet) Add(w *Watcher) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.ws == nil {
		s.ws = make(map[*Watcher]struct{})
	}
	s.ws[w] = struct{}{}
	go func() {
		<-w.Done()
		s.mu.Lock()
		delete(s.ws, w)
		s.mu.Unlock()
	}()
	return true
}

// Len returns the number of tracked watchers.
func (s *WatcherSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ws)
}

// FailAll ends every tracked watcher with err and refuses later Adds.
func (s *WatcherSet) FailAll(err error) {
	s.mu.Lock()
	s.closed = true
	ws := make([]*Watcher, 0, len(s.ws))
	for w := range s.ws {
		ws = append(ws, w)
	}
	s.mu.Unlock()
	for _, w := range ws {
		w.Fail(err)
	}
}
