package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/event-feed/internal/model"
)

func TestFilterUpcoming(t *testing.T) {
	now := time.Date(2026, 5, 1, 23, 59, 0, 0, time.UTC)
	events := []model.Event{
		{ID: "yesterday", Date: "2026-04-30"},
		{ID: "today", Date: "2026-05-01"},
		{ID: "tomorrow", Date: "2026-05-02"},
		{ID: "garbled", Date: "soon"},
	}
	got := FilterUpcoming(events, now, time.UTC)
	require.Len(t, got, 2)
	require.Equal(t, "today", got[0].ID, "an event dated today is included even late in the day")
	require.Equal(t, "tomorrow", got[1].ID)
}

func TestFilterUpcoming_UsesLocalCalendarDay(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	// 20:00 UTC on April 30 is already May 1 in Tokyo
	now := time.Date(2026, 4, 30, 20, 0, 0, 0, time.UTC)
	events := []model.Event{{ID: "apr30", Date: "2026-04-30"}, {ID: "may1", Date: "2026-05-01"}}

	require.Len(t, FilterUpcoming(events, now, time.UTC), 2)
	got := FilterUpcoming(events, now, tokyo)
	require.Len(t, got, 1)
	require.Equal(t, "may1", got[0].ID)
}

func TestListUpcoming(t *testing.T) {
	f := setup(t)
	f.createEvent(t, "Past", "2026-04-30")
	f.createEvent(t, "Later", "2026-06-01")
	f.createEvent(t, "Today", "2026-05-01")

	events, err := f.svc.ListUpcoming(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "Today", events[0].Title, "ordered by date")
	require.Equal(t, "Later", events[1].Title)
}

func TestFeed_LiveCounterUpdates(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	e := f.createEvent(t, "Tasting", "2026-05-01")
	f.createEvent(t, "Past", "2026-04-01")

	updates := make(chan []model.Event, 16)
	stop, err := f.feed.Subscribe(ctx, func(events []model.Event, err error) {
		if err == nil {
			updates <- events
		}
	})
	require.NoError(t, err)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FeedSubscriptions))

	first := next(t, updates)
	require.Len(t, first, 1)
	require.Equal(t, e.ID, first[0].ID)
	require.Zero(t, first[0].AttendeeCount)

	_, err = f.svc.Register(ctx, e.ID, model.RegisterRequest{Name: "Ann", Email: "ann@x.com"})
	require.NoError(t, err)

	// the increment is the last write of Register; wait until it shows
	deadline := time.After(time.Second)
	for {
		var list []model.Event
		select {
		case list = <-updates:
		case <-deadline:
			t.Fatal("counter change never reached the feed")
		}
		if len(list) == 1 && list[0].AttendeeCount == 1 {
			break
		}
	}

	stop()
	stop()
	require.Equal(t, 0.0, testutil.ToFloat64(f.metrics.FeedSubscriptions))

	f.createEvent(t, "After stop", "2026-07-01")
	select {
	case <-updates:
		t.Fatal("feed delivered after stop")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFeed_ReleasedWithContext(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	_, err := f.feed.Subscribe(ctx, func([]model.Event, error) {})
	require.NoError(t, err)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FeedSubscriptions))

	cancel()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.FeedSubscriptions) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestFeed_StoreClosedEndsSubscription(t *testing.T) {
	f := setup(t)
	f.createEvent(t, "Tasting", "2026-05-01")

	type result struct {
		events []model.Event
		err    error
	}
	results := make(chan result, 8)
	_, err := f.feed.Subscribe(context.Background(), func(events []model.Event, err error) {
		results <- result{events, err}
	})
	require.NoError(t, err)
	first := <-results
	require.NoError(t, first.err)
	require.Len(t, first.events, 1)

	require.NoError(t, f.store.Close())

	select {
	case last := <-results:
		require.ErrorIs(t, last.err, ErrStoreUnavailable)
		require.Nil(t, last.events)
	case <-time.After(time.Second):
		t.Fatal("subscriber was not told the feed ended")
	}
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.FeedSubscriptions) == 0
	}, time.Second, 5*time.Millisecond)
	select {
	case r := <-results:
		t.Fatalf("callback after the feed ended: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}
}

func next(t *testing.T, ch <-chan []model.Event) []model.Event {
	t.Helper()
	select {
	case events := <-ch:
		return events
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for feed update")
	}
	return nil
}
