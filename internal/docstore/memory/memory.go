// Package memory is an in-process docstore driver. It backs tests and local
// runs without a database.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/event-feed/internal/docstore"
)

// Store keeps every collection in maps guarded by one mutex.
type Store struct {
	mu       sync.RWMutex
	colls    map[string]map[string]docstore.Fields
	watchers map[string]map[*docstore.Watcher]struct{}
	closed   bool
}

var _ docstore.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		colls:    make(map[string]map[string]docstore.Fields),
		watchers: make(map[string]map[*docstore.Watcher]struct{}),
	}
}

func (s *Store) Get(ctx context.Context, ref docstore.Ref) (*docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	f, ok := s.colls[ref.Collection][ref.ID]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return &docstore.Document{Ref: ref, Fields: f.Clone()}, nil
}

func (s *Store) Set(ctx context.Context, ref docstore.Ref, fields docstore.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	s.put(ref, fields.Clone())
	return nil
}

func (s *Store) Create(ctx context.Context, ref docstore.Ref, fields docstore.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if _, ok := s.colls[ref.Collection][ref.ID]; ok {
		return docstore.ErrAlreadyExists
	}
	s.put(ref, fields.Clone())
	return nil
}

func (s *Store) Add(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	id := uuid.New().String()
	if err := s.Create(ctx, docstore.Doc(collection, id), fields); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Update(ctx context.Context, ref docstore.Ref, fields docstore.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	cur, ok := s.colls[ref.Collection][ref.ID]
	if !ok {
		return docstore.ErrNotFound
	}
	next := cur.Clone()
	for k, v := range fields {
		next[k] = v
	}
	s.put(ref, next)
	return nil
}

func (s *Store) Increment(ctx context.Context, ref docstore.Ref, field string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	cur, ok := s.colls[ref.Collection][ref.ID]
	if !ok {
		return 0, docstore.ErrNotFound
	}
	next := cur.Clone()
	n := cur.Int(field) + delta
	next[field] = n
	s.put(ref, next)
	return n, nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	coll := s.colls[q.Collection]
	docs := make([]docstore.Document, 0, len(coll))
	for id, f := range coll {
		docs = append(docs, docstore.Document{Ref: docstore.Doc(q.Collection, id), Fields: f.Clone()})
	}
	docstore.SortDocuments(docs, q)
	return docs, nil
}

func (s *Store) Subscribe(ctx context.Context, q docstore.Query, fn func(docstore.Snapshot)) (docstore.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	w := docstore.Watch(ctx, func(ctx context.Context) ([]docstore.Document, error) {
		return s.Query(ctx, q)
	}, fn)
	set := s.watchers[q.Collection]
	if set == nil {
		set = make(map[*docstore.Watcher]struct{})
		s.watchers[q.Collection] = set
	}
	set[w] = struct{}{}
	go func() {
		<-w.Done()
		s.mu.Lock()
		delete(s.watchers[q.Collection], w)
		s.mu.Unlock()
	}()
	return w, nil
}

// Close marks the store closed; later calls fail with ErrUnavailable and
// live subscriptions end with an ErrUnavailable snapshot.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	var ws []*docstore.Watcher
	for _, set := range s.watchers {
		for w := range set {
			ws = append(ws, w)
		}
	}
	s.mu.Unlock()
	for _, w := range ws {
		w.Fail(fmt.Errorf("memory store closed: %w", docstore.ErrUnavailable))
	}
	return nil
}

// put stores fields and wakes the collection's watchers. Callers hold mu.
func (s *Store) put(ref docstore.Ref, fields docstore.Fields) {
	coll := s.colls[ref.Collection]
	if coll == nil {
		coll = make(map[string]docstore.Fields)
		s.colls[ref.Collection] = coll
	}
	coll[ref.ID] = fields
	for w := range s.watchers[ref.Collection] {
		w.Notify()
	}
}

func (s *Store) check(ctx context.Context) error {
	if s.closed {
		return fmt.Errorf("memory store closed: %w", docstore.ErrUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", docstore.ErrUnavailable, err)
	}
	return nil
}
