package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPath(t *testing.T) {
	require.Equal(t, "apps/demo/events/42/registrations", Path("apps", "demo", "events", "42", "registrations"))
	require.Equal(t, "events/1", Doc("events", "1").String())
}

func TestFields_Int(t *testing.T) {
	cases := map[string]struct {
		in   any
		want int64
	}{
		"int":         {in: 3, want: 3},
		"int32":       {in: int32(4), want: 4},
		"int64":       {in: int64(5), want: 5},
		"float64":     {in: float64(6), want: 6},
		"json number": {in: json.Number("7"), want: 7},
		"string":      {in: "8", want: 0},
		"missing":     {in: nil, want: 0},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := Fields{}
			if tc.in != nil {
				f["n"] = tc.in
			}
			require.Equal(t, tc.want, f.Int("n"))
		})
	}
}

func TestSortDocuments_MissingFieldFirst(t *testing.T) {
	docs := []Document{
		{Ref: Doc("c", "b"), Fields: Fields{"date": "2026-01-02"}},
		{Ref: Doc("c", "a"), Fields: Fields{}},
		{Ref: Doc("c", "c"), Fields: Fields{"date": "2026-01-01"}},
	}
	SortDocuments(docs, Query{OrderBy: "date"})
	require.Equal(t, "a", docs[0].Ref.ID)
	require.Equal(t, "c", docs[1].Ref.ID)
	require.Equal(t, "b", docs[2].Ref.ID)
}

func TestWatcher_ReloadsOnNotify(t *testing.T) {
	var loads atomic.Int32
	snaps := make(chan Snapshot, 8)
	w := Watch(context.Background(), func(context.Context) ([]Document, error) {
		n := loads.Add(1)
		if n == 2 {
			return nil, errors.New("boom")
		}
		return make([]Document, n), nil
	}, func(s Snapshot) { snaps <- s })

	first := <-snaps
	require.NoError(t, first.Err)
	require.Len(t, first.Docs, 1)

	w.Notify()
	second := <-snaps
	require.EqualError(t, second.Err, "boom")

	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "close is idempotent")

	w.Notify()
	select {
	case <-snaps:
		t.Fatal("snapshot delivered after close")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestWatcher_FailDeliversLastSnapshot(t *testing.T) {
	snaps := make(chan Snapshot, 8)
	w := Watch(context.Background(), func(context.Context) ([]Document, error) {
		return nil, nil
	}, func(s Snapshot) { snaps <- s })
	require.NoError(t, (<-snaps).Err)

	gone := errors.New("source gone")
	w.Fail(gone)
	select {
	case <-w.Done():
	default:
		t.Fatal("Fail returned before the watcher exited")
	}
	last := <-snaps
	require.ErrorIs(t, last.Err, gone)

	w.Fail(errors.New("again"))
	w.Notify()
	require.NoError(t, w.Close())
	select {
	case <-snaps:
		t.Fatal("snapshot delivered after Fail")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestWatcher_FailAfterCloseIsSilent(t *testing.T) {
	snaps := make(chan Snapshot, 8)
	w := Watch(context.Background(), func(context.Context) ([]Document, error) {
		return nil, nil
	}, func(s Snapshot) { snaps <- s })
	<-snaps
	require.NoError(t, w.Close())
	w.Fail(errors.New("late"))
	require.Empty(t, snaps)
}

func TestWatcherSet_FailAll(t *testing.T) {
	var set WatcherSet
	snaps := make(chan Snapshot, 8)
	load := func(context.Context) ([]Document, error) { return nil, nil }
	a := Watch(context.Background(), load, func(s Snapshot) { snaps <- s })
	b := Watch(context.Background(), load, func(s Snapshot) { snaps <- s })
	require.True(t, set.Add(a))
	require.True(t, set.Add(b))
	<-snaps
	<-snaps

	set.FailAll(ErrUnavailable)
	require.ErrorIs(t, (<-snaps).Err, ErrUnavailable)
	require.ErrorIs(t, (<-snaps).Err, ErrUnavailable)
	require.Eventually(t, func() bool { return set.Len() == 0 }, time.Second, time.Millisecond)

	c := Watch(context.Background(), load, func(Snapshot) {})
	require.False(t, set.Add(c), "a failed set takes no new watchers")
	require.NoError(t, c.Close())
}
