package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/event-feed/internal/docstore"
	"github.com/Shivanand-hulikatti/event-feed/internal/metrics"
	"github.com/Shivanand-hulikatti/event-feed/internal/model"
	"github.com/Shivanand-hulikatti/event-feed/internal/repository"
)

// Feed is the live list of upcoming events.
type Feed struct {
	events  *repository.EventRepository
	metrics *metrics.Metrics
	log     *zap.Logger
	opts    Options
}

// NewFeed constructs a Feed.
func NewFeed(events *repository.EventRepository, m *metrics.Metrics, log *zap.Logger, opts Options) *Feed {
	opts.defaults()
	return &Feed{events: events, metrics: m, log: log, opts: opts}
}

// Subscribe calls fn with the upcoming events now and after every change to
// the events collection, counter updates included. The subscription lasts
// until ctx ends, stop is called, or the store fails; a failure reaches fn
// as its last call, with a nil list. fn is never called after stop returns.
// stop must not be called from inside fn.
func (f *Feed) Subscribe(ctx context.Context, fn func([]model.Event, error)) (stop func(), err error) {
	var (
		ended atomic.Bool
		once  sync.Once
		sub   docstore.Subscription
	)
	stopped := make(chan struct{})
	ready := make(chan struct{})
	stop = func() {
		once.Do(func() {
			close(stopped)
			_ = sub.Close()
			f.metrics.FeedSubscriptions.Dec()
		})
	}

	sub, err = f.events.Watch(ctx, func(events []model.Event, err error) {
		if ended.Load() {
			return
		}
		if err != nil {
			ended.Store(true)
			f.log.Warn("event feed ended", zap.Error(err))
			fn(nil, storeErr(err))
			// stop waits for this callback to return
			go func() {
				<-ready
				stop()
			}()
			return
		}
		fn(FilterUpcoming(events, f.opts.Now(), f.opts.Location), nil)
	})
	if err != nil {
		return nil, storeErr(err)
	}
	f.metrics.FeedSubscriptions.Inc()
	close(ready)

	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-stopped:
		}
	}()
	return stop, nil
}

// FilterUpcoming keeps the events dated on or after the calendar day of now
// in loc. Events with an unreadable date are dropped. Order is preserved.
func FilterUpcoming(events []model.Event, now time.Time, loc *time.Location) []model.Event {
	now = now.In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		day, err := e.Day(loc)
		if err != nil {
			continue
		}
		if !day.Before(today) {
			out = append(out, e)
		}
	}
	return out
}
