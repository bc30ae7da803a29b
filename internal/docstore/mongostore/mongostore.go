// Package mongostore is a docstore driver on MongoDB. All documents share one
// "documents" collection; the _id is the full document path so the unique
// _id index gives conditional creation for free. Subscriptions use change
// streams, which need a replica set.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/event-feed/internal/docstore"
)

// Config holds MongoDB connection settings.
type Config struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

const (
	collectionName    = "documents"
	disconnectTimeout = 10 * time.Second
)

type record struct {
	Key        string `bson:"_id"`
	Collection string `bson:"collection"`
	ID         string `bson:"docId"`
	Fields     bson.M `bson:"fields"`
}

// Store implements docstore.Store on a mongo database.
type Store struct {
	client   *mongo.Client
	coll     *mongo.Collection
	log      *zap.Logger
	watchers docstore.WatcherSet
}

var _ docstore.Store = (*Store)(nil)

// Open connects, pings the primary and ensures the collection index.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx,
		options.Client().ApplyURI(cfg.URI),
		options.Client().SetConnectTimeout(10*time.Second),
		options.Client().SetServerSelectionTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}
	coll := client.Database(cfg.Database).Collection(collectionName)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "collection", Value: 1}, {Key: "docId", Value: 1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb index: %w", err)
	}
	return &Store{client: client, coll: coll, log: log}, nil
}

func key(ref docstore.Ref) string {
	return ref.Collection + "/" + ref.ID
}

func (s *Store) Get(ctx context.Context, ref docstore.Ref) (*docstore.Document, error) {
	var r record
	err := s.coll.FindOne(ctx, bson.M{"_id": key(ref)}).Decode(&r)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, docstore.ErrNotFound
		}
		return nil, wrap("get document", err)
	}
	return toDocument(r), nil
}

func (s *Store) Set(ctx context.Context, ref docstore.Ref, fields docstore.Fields) error {
	_, err := s.coll.ReplaceOne(ctx,
		bson.M{"_id": key(ref)},
		toRecord(ref, fields),
		options.Replace().SetUpsert(true),
	)
	return wrap("set document", err)
}

func (s *Store) Create(ctx context.Context, ref docstore.Ref, fields docstore.Fields) error {
	_, err := s.coll.InsertOne(ctx, toRecord(ref, fields))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return docstore.ErrAlreadyExists
		}
		return wrap("create document", err)
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
	set := bson.M{}
	for k, v := range fields {
		set["fields."+k] = v
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": key(ref)}, bson.M{"$set": set})
	if err != nil {
		return wrap("update document", err)
	}
	if res.MatchedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

// Increment uses $inc, which is atomic on a single document and treats a
// missing field as 0.
func (s *Store) Increment(ctx context.Context, ref docstore.Ref, field string, delta int64) (int64, error) {
	var r record
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": key(ref)},
		bson.M{"$inc": bson.M{"fields." + field: delta}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&r)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, docstore.ErrNotFound
		}
		return 0, wrap("increment field", err)
	}
	return docstore.Fields(r.Fields).Int(field), nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	dir := 1
	if q.Desc {
		dir = -1
	}
	sort := bson.D{{Key: "docId", Value: dir}}
	if q.OrderBy != "" {
		sort = append(bson.D{{Key: "fields." + q.OrderBy, Value: dir}}, sort...)
	}
	cur, err := s.coll.Find(ctx, bson.M{"collection": q.Collection}, options.Find().SetSort(sort))
	if err != nil {
		return nil, wrap("query documents", err)
	}
	defer cur.Close(ctx)

	var docs []docstore.Document
	for cur.Next(ctx) {
		var r record
		if err := cur.Decode(&r); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		docs = append(docs, *toDocument(r))
	}
	if err := cur.Err(); err != nil {
		return nil, wrap("query documents", err)
	}
	return docs, nil
}

func (s *Store) Subscribe(ctx context.Context, q docstore.Query, fn func(docstore.Snapshot)) (docstore.Subscription, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"fullDocument.collection": q.Collection}}},
	}
	cs, err := s.coll.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, wrap("watch documents", err)
	}

	w := docstore.Watch(ctx, func(ctx context.Context) ([]docstore.Document, error) {
		return s.Query(ctx, q)
	}, fn)
	if !s.watchers.Add(w) {
		_ = w.Close()
		_ = cs.Close(context.Background())
		return nil, fmt.Errorf("mongodb store closed: %w", docstore.ErrUnavailable)
	}

	go func() {
		sctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-w.Done():
				cancel()
			case <-sctx.Done():
			}
		}()
		defer cs.Close(context.Background())
		for cs.Next(sctx) {
			w.Notify()
		}
		if sctx.Err() != nil {
			return
		}
		err := cs.Err()
		if err == nil {
			err = errors.New("change stream ended")
		}
		s.log.Warn("document subscription lost", zap.String("collection", q.Collection), zap.Error(err))
		w.Fail(fmt.Errorf("watch documents: %w: %w", docstore.ErrUnavailable, err))
	}()
	return w, nil
}

// Close ends live subscriptions and disconnects, waiting at most
// disconnectTimeout for in-flight operations.
func (s *Store) Close() error {
	s.watchers.FailAll(fmt.Errorf("mongodb store closed: %w", docstore.ErrUnavailable))
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func toRecord(ref docstore.Ref, fields docstore.Fields) record {
	return record{
		Key:        key(ref),
		Collection: ref.Collection,
		ID:         ref.ID,
		Fields:     bson.M(fields.Clone()),
	}
}

func toDocument(r record) *docstore.Document {
	fields := docstore.Fields(r.Fields)
	if fields == nil {
		fields = docstore.Fields{}
	}
	return &docstore.Document{Ref: docstore.Doc(r.Collection, r.ID), Fields: fields}
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, mongo.ErrClientDisconnected) {
		return fmt.Errorf("%s: %w: %w", op, docstore.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
