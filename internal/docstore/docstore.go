// Package docstore defines the document store adapter used by the rest of the
// service: schemaless documents grouped into collections addressed by path,
// with point reads and writes, conditional creation, atomic increments and
// live query subscriptions.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrAlreadyExists is returned by Create when the key is already taken.
var ErrAlreadyExists = errors.New("document already exists")

// ErrUnavailable wraps connectivity faults reported by a driver.
var ErrUnavailable = errors.New("document store unavailable")

// Path joins collection and document segments into a collection path,
// e.g. Path("events", id, "registrations").
func Path(segments ...string) string {
	return strings.Join(segments, "/")
}

// Ref addresses a single document.
type Ref struct {
	Collection string
	ID         string
}

// Doc returns a reference to the document id inside collection.
func Doc(collection, id string) Ref {
	return Ref{Collection: collection, ID: id}
}

func (r Ref) String() string {
	return r.Collection + "/" + r.ID
}

// Fields is the content of a document.
type Fields map[string]any

// String returns the string value of key, or "" when absent.
func (f Fields) String(key string) string {
	s, _ := f[key].(string)
	return s
}

// Int returns the integer value of key, or 0 when absent or not numeric.
// Drivers decode numbers differently (JSON float64, BSON int32/int64), so
// every representation is accepted.
func (f Fields) Int(key string) int64 {
	switch v := f[key].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(math.Round(v))
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			fl, _ := v.Float64()
			return int64(math.Round(fl))
		}
		return n
	}
	return 0
}

// Clone returns a shallow copy of f.
func (f Fields) Clone() Fields {
	c := make(Fields, len(f))
	for k, v := range f {
		c[k] = v
	}
	return c
}

// Document is a stored document and its fields.
type Document struct {
	Ref    Ref
	Fields Fields
}

// Query selects every document in a collection ordered by one field.
type Query struct {
	Collection string
	OrderBy    string
	Desc       bool
}

// Snapshot is the result of a subscribed query at one point in time.
type Snapshot struct {
	Docs []Document
	Err  error
}

// Subscription is a live query. Close releases it; no callbacks run after
// Close returns. When the driver loses its change source or the store is
// closed, the subscription ends on its own after one last Snapshot whose
// Err wraps the cause.
type Subscription interface {
	Close() error
}

// Store is implemented by every driver.
type Store interface {
	// Get reads one document or returns ErrNotFound.
	Get(ctx context.Context, ref Ref) (*Document, error)
	// Set writes the document, replacing any existing fields.
	Set(ctx context.Context, ref Ref, fields Fields) error
	// Create writes the document only when ref does not exist yet,
	// otherwise it returns ErrAlreadyExists and writes nothing.
	Create(ctx context.Context, ref Ref, fields Fields) error
	// Add creates a document with a generated id in collection.
	Add(ctx context.Context, collection string, fields Fields) (string, error)
	// Update merges fields into an existing document or returns ErrNotFound.
	Update(ctx context.Context, ref Ref, fields Fields) error
	// Increment atomically adds delta to a numeric field, treating a
	// missing field as 0, and returns the new value.
	Increment(ctx context.Context, ref Ref, field string, delta int64) (int64, error)
	// Query returns the documents matched by q.
	Query(ctx context.Context, q Query) ([]Document, error)
	// Subscribe calls fn with the current result of q and again after
	// every change to q.Collection, until the subscription is closed or
	// ctx ends.
	Subscribe(ctx context.Context, q Query, fn func(Snapshot)) (Subscription, error)
	Close() error
}

// IsUnavailable reports whether err is a connectivity fault.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
