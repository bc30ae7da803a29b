package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/event-feed/internal/docstore"
)

func TestStore_GetMissing(t *testing.T) {
	s := New()
	_, err := s.Get(context.Background(), docstore.Doc("events", "nope"))
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestStore_CreateIsConditional(t *testing.T) {
	ctx := context.Background()
	s := New()
	ref := docstore.Doc("regs", "ann@x.com")

	require.NoError(t, s.Create(ctx, ref, docstore.Fields{"name": "Ann"}))
	err := s.Create(ctx, ref, docstore.Fields{"name": "Bob"})
	require.ErrorIs(t, err, docstore.ErrAlreadyExists)

	doc, err := s.Get(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, "Ann", doc.Fields.String("name"), "losing create must not overwrite")
}

func TestStore_SetUpdateAdd(t *testing.T) {
	ctx := context.Background()
	s := New()

	id, err := s.Add(ctx, "events", docstore.Fields{"title": "a"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	ref := docstore.Doc("events", id)
	require.NoError(t, s.Update(ctx, ref, docstore.Fields{"time": "18:00"}))
	doc, err := s.Get(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, "a", doc.Fields.String("title"))
	require.Equal(t, "18:00", doc.Fields.String("time"))

	require.NoError(t, s.Set(ctx, ref, docstore.Fields{"title": "b"}))
	doc, err = s.Get(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, docstore.Fields{"title": "b"}, doc.Fields)

	err = s.Update(ctx, docstore.Doc("events", "missing"), docstore.Fields{"x": 1})
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestStore_ReturnedFieldsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	ref := docstore.Doc("events", "1")
	require.NoError(t, s.Set(ctx, ref, docstore.Fields{"title": "a"}))

	doc, err := s.Get(ctx, ref)
	require.NoError(t, err)
	doc.Fields["title"] = "mutated"

	doc, err = s.Get(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, "a", doc.Fields.String("title"))
}

func TestStore_IncrementConcurrent(t *testing.T) {
	ctx := context.Background()
	s := New()
	ref := docstore.Doc("events", "1")
	require.NoError(t, s.Set(ctx, ref, docstore.Fields{}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Increment(ctx, ref, "attendeeCount", 1)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	doc, err := s.Get(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, int64(50), doc.Fields.Int("attendeeCount"))
}

func TestStore_QueryOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.Set(ctx, docstore.Doc("events", "a"), docstore.Fields{"date": "2026-05-03"}))
	require.NoError(t, s.Set(ctx, docstore.Doc("events", "b"), docstore.Fields{"date": "2026-05-01"}))
	require.NoError(t, s.Set(ctx, docstore.Doc("events", "c"), docstore.Fields{"date": "2026-05-02"}))

	docs, err := s.Query(ctx, docstore.Query{Collection: "events", OrderBy: "date"})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	require.Equal(t, []string{"b", "c", "a"}, []string{docs[0].Ref.ID, docs[1].Ref.ID, docs[2].Ref.ID})

	docs, err = s.Query(ctx, docstore.Query{Collection: "events", OrderBy: "date", Desc: true})
	require.NoError(t, err)
	require.Equal(t, "a", docs[0].Ref.ID)
}

func TestStore_Subscribe(t *testing.T) {
	ctx := context.Background()
	s := New()
	snaps := make(chan docstore.Snapshot, 16)
	sub, err := s.Subscribe(ctx, docstore.Query{Collection: "events"}, func(snap docstore.Snapshot) {
		snaps <- snap
	})
	require.NoError(t, err)

	first := receive(t, snaps)
	require.Empty(t, first.Docs)

	require.NoError(t, s.Set(ctx, docstore.Doc("events", "1"), docstore.Fields{"title": "a"}))
	next := receive(t, snaps)
	require.Len(t, next.Docs, 1)
	require.Equal(t, "a", next.Docs[0].Fields.String("title"))

	// writes to other collections do not wake the subscription
	require.NoError(t, s.Set(ctx, docstore.Doc("other", "1"), docstore.Fields{}))
	require.NoError(t, sub.Close())

	require.NoError(t, s.Set(ctx, docstore.Doc("events", "2"), docstore.Fields{"title": "b"}))
	select {
	case snap := <-snaps:
		require.Len(t, snap.Docs, 1, "no snapshot may follow Close")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStore_SubscribeReleasedByContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New()
	sub, err := s.Subscribe(ctx, docstore.Query{Collection: "events"}, func(docstore.Snapshot) {})
	require.NoError(t, err)

	cancel()
	w := sub.(*docstore.Watcher)
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription not released after context cancel")
	}
	require.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return len(s.watchers["events"]) == 0
	}, time.Second, time.Millisecond)
}

func TestStore_CloseEndsSubscriptionsWithError(t *testing.T) {
	s := New()
	snaps := make(chan docstore.Snapshot, 4)
	sub, err := s.Subscribe(context.Background(), docstore.Query{Collection: "events"}, func(snap docstore.Snapshot) {
		snaps <- snap
	})
	require.NoError(t, err)
	receive(t, snaps)

	require.NoError(t, s.Close())
	select {
	case last := <-snaps:
		require.ErrorIs(t, last.Err, docstore.ErrUnavailable)
	default:
		t.Fatal("subscriber was not told the store closed")
	}
	select {
	case <-sub.(*docstore.Watcher).Done():
	default:
		t.Fatal("subscription still running after Close")
	}

	_, err = s.Subscribe(context.Background(), docstore.Query{Collection: "events"}, func(docstore.Snapshot) {})
	require.ErrorIs(t, err, docstore.ErrUnavailable)
}

func TestStore_Closed(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())
	_, err := s.Get(context.Background(), docstore.Doc("events", "1"))
	require.ErrorIs(t, err, docstore.ErrUnavailable)
	require.True(t, docstore.IsUnavailable(err))
}

func receive(t *testing.T, ch <-chan docstore.Snapshot) docstore.Snapshot {
	t.Helper()
	select {
	case snap := <-ch:
		require.NoError(t, snap.Err)
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return docstore.Snapshot{}
}
