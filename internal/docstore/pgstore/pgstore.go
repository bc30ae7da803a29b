// Package pgstore is a docstore driver on PostgreSQL. Every document lives in
// the documents table keyed by (collection, id) with its fields as JSONB.
// Change notifications come from a trigger that calls pg_notify with the
// collection path.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/event-feed/internal/docstore"
)

// Channel is the LISTEN/NOTIFY channel the documents trigger publishes to.
const Channel = "documents_changed"

// Store implements docstore.Store on a pgx pool.
type Store struct {
	db       *pgxpool.Pool
	log      *zap.Logger
	watchers docstore.WatcherSet
}

var _ docstore.Store = (*Store)(nil)

// New wraps an open pool. Close closes the pool.
func New(db *pgxpool.Pool, log *zap.Logger) *Store {
	return &Store{db: db, log: log}
}

func (s *Store) Get(ctx context.Context, ref docstore.Ref) (*docstore.Document, error) {
	var raw []byte
	err := s.db.QueryRow(ctx,
		`SELECT fields FROM documents WHERE collection = $1 AND id = $2`,
		ref.Collection, ref.ID,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, docstore.ErrNotFound
		}
		return nil, wrap("get document", err)
	}
	fields, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", ref, err)
	}
	return &docstore.Document{Ref: ref, Fields: fields}, nil
}

func (s *Store) Set(ctx context.Context, ref docstore.Ref, fields docstore.Fields) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ref, err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO documents (collection, id, fields)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (collection, id)
		 DO UPDATE SET fields = EXCLUDED.fields, updated_at = now()`,
		ref.Collection, ref.ID, raw,
	)
	return wrap("set document", err)
}

// Create relies on the primary key: a second insert for the same key
// affects no rows, which is reported as ErrAlreadyExists.
func (s *Store) Create(ctx context.Context, ref docstore.Ref, fields docstore.Fields) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ref, err)
	}
	tag, err := s.db.Exec(ctx,
		`INSERT INTO documents (collection, id, fields)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (collection, id) DO NOTHING`,
		ref.Collection, ref.ID, raw,
	)
	if err != nil {
		return wrap("create document", err)
	}
	if tag.RowsAffected() == 0 {
		return docstore.ErrAlreadyExists
	}
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
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ref, err)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE documents SET fields = fields || $3::jsonb, updated_at = now()
		 WHERE collection = $1 AND id = $2`,
		ref.Collection, ref.ID, raw,
	)
	if err != nil {
		return wrap("update document", err)
	}
	if tag.RowsAffected() == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

// Increment is a single UPDATE, so the row lock Postgres takes for it
// serialises concurrent increments of the same document.
func (s *Store) Increment(ctx context.Context, ref docstore.Ref, field string, delta int64) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx,
		`UPDATE documents
		 SET fields = jsonb_set(fields, ARRAY[$3::text],
		                        to_jsonb(COALESCE((fields->>$3)::bigint, 0) + $4::bigint)),
		     updated_at = now()
		 WHERE collection = $1 AND id = $2
		 RETURNING (fields->>$3)::bigint`,
		ref.Collection, ref.ID, field, delta,
	).Scan(&n)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, docstore.ErrNotFound
		}
		return 0, wrap("increment field", err)
	}
	return n, nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	sql := `SELECT id, fields FROM documents WHERE collection = $1 ORDER BY fields->$2 ASC NULLS FIRST, id ASC`
	if q.Desc {
		sql = `SELECT id, fields FROM documents WHERE collection = $1 ORDER BY fields->$2 DESC NULLS LAST, id DESC`
	}
	rows, err := s.db.Query(ctx, sql, q.Collection, q.OrderBy)
	if err != nil {
		return nil, wrap("query documents", err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		fields, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", q.Collection, id, err)
		}
		docs = append(docs, docstore.Document{Ref: docstore.Doc(q.Collection, id), Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("query documents", err)
	}
	return docs, nil
}

// Subscribe holds one pooled connection in LISTEN mode for the lifetime of
// the subscription.
func (s *Store) Subscribe(ctx context.Context, q docstore.Query, fn func(docstore.Snapshot)) (docstore.Subscription, error) {
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return nil, wrap("acquire listen connection", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		conn.Release()
		return nil, wrap("listen", err)
	}

	w := docstore.Watch(ctx, func(ctx context.Context) ([]docstore.Document, error) {
		return s.Query(ctx, q)
	}, fn)
	if !s.watchers.Add(w) {
		_ = w.Close()
		conn.Release()
		return nil, fmt.Errorf("postgres store closed: %w", docstore.ErrUnavailable)
	}

	go func() {
		lctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-w.Done():
				cancel()
			case <-lctx.Done():
			}
		}()
		defer func() {
			// an interrupted wait leaves the connection unusable
			_ = conn.Conn().Close(context.Background())
			conn.Release()
		}()
		for {
			n, err := conn.Conn().WaitForNotification(lctx)
			if err != nil {
				if lctx.Err() == nil {
					s.log.Warn("document subscription lost", zap.String("collection", q.Collection), zap.Error(err))
					w.Fail(fmt.Errorf("listen for changes: %w: %w", docstore.ErrUnavailable, err))
				}
				return
			}
			if n.Payload == q.Collection {
				w.Notify()
			}
		}
	}()
	return w, nil
}

// Close ends live subscriptions, which hand their LISTEN connections back,
// and then closes the pool.
func (s *Store) Close() error {
	s.watchers.FailAll(fmt.Errorf("postgres store closed: %w", docstore.ErrUnavailable))
	s.db.Close()
	return nil
}

func decode(raw []byte) (docstore.Fields, error) {
	fields := docstore.Fields{}
	if len(raw) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// wrap annotates err and marks connectivity faults with ErrUnavailable.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if isConnErr(err) {
		return fmt.Errorf("%s: %w: %w", op, docstore.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isConnErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return pgconn.Timeout(err)
}
