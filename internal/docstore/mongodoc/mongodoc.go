// Package mongodoc stores documents in a single MongoDB collection keyed by
// their full path.
package mongodoc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/vbonduro/fgsamples/internal/docstore"
)

const collectionName = "documents"

var _ docstore.Store = (*Store)(nil)

type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	clock  *docstore.Clock
}

type Option func(*Store)

// WithClock replaces the clock used for ServerTimestamp fields.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.clock = docstore.NewClockWithStep(now, time.Millisecond) }
}

// Connect dials uri, verifies the connection and ensures indexes exist.
func Connect(ctx context.Context, uri, database string, opts ...Option) (*Store, error) {
	clientOptions := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(20 * time.Second).
		SetServerSelectionTimeout(15 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	s := New(client, database, opts...)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// New wraps an already connected client.
func New(client *mongo.Client, database string, opts ...Option) *Store {
	s := &Store{
		client: client,
		coll:   client.Database(database).Collection(collectionName),
		clock:  docstore.NewClockWithStep(nil, time.Millisecond),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "parent", Value: 1}, {Key: "docId", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

type record struct {
	Path   string `bson:"_id"`
	Parent string `bson:"parent"`
	DocID  string `bson:"docId"`
	Fields bson.M `bson:"fields"`
}

func (s *Store) Get(ctx context.Context, path string) (*docstore.Document, error) {
	if _, _, err := docstore.Split(path); err != nil {
		return nil, err
	}
	var r record
	err := s.coll.FindOne(ctx, bson.M{"_id": path}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return r.document(), nil
}

func (s *Store) Set(ctx context.Context, path string, fields docstore.Fields, opts ...docstore.SetOption) error {
	parent, id, err := docstore.Split(path)
	if err != nil {
		return err
	}
	resolved, err := docstore.Resolve(fields, s.clock.Next())
	if err != nil {
		return err
	}

	if docstore.ApplySetOptions(opts).Merge {
		_, err = s.coll.UpdateOne(ctx, bson.M{"_id": path}, mergeUpdate(parent, id, resolved),
			options.Update().SetUpsert(true))
	} else {
		_, err = s.coll.ReplaceOne(ctx, bson.M{"_id": path}, record{
			Path:   path,
			Parent: parent,
			DocID:  id,
			Fields: bson.M(resolved),
		}, options.Replace().SetUpsert(true))
	}
	if err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, path string, fields docstore.Fields) error {
	parent, id, err := docstore.Split(path)
	if err != nil {
		return err
	}
	resolved, err := docstore.Resolve(fields, s.clock.Next())
	if err != nil {
		return err
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": path}, mergeUpdate(parent, id, resolved))
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if res.MatchedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context, collection string) ([]*docstore.Document, error) {
	return s.Query(ctx, collection)
}

func (s *Store) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]*docstore.Document, error) {
	filter, err := queryFilter(collection, filters)
	if err != nil {
		return nil, err
	}
	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "docId", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	var records []record
	if err := cur.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}

	docs := make([]*docstore.Document, 0, len(records))
	for _, r := range records {
		docs = append(docs, r.document())
	}
	return docs, nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func mergeUpdate(parent, id string, fields docstore.Fields) bson.M {
	set := bson.M{"parent": parent, "docId": id}
	for k, v := range fields {
		set["fields."+k] = v
	}
	return bson.M{"$set": set}
}

func queryFilter(collection string, filters []docstore.Filter) (bson.D, error) {
	if err := docstore.CheckCollection(collection); err != nil {
		return nil, err
	}
	filter := bson.D{{Key: "parent", Value: collection}}
	for _, f := range filters {
		if err := docstore.CheckField(f.Field); err != nil {
			return nil, err
		}
		key := "fields." + f.Field
		switch f.Op {
		case docstore.OpEqual:
			filter = append(filter, bson.E{Key: key, Value: f.Value})
		case docstore.OpRange:
			filter = append(filter, bson.E{Key: key, Value: bson.M{"$gte": f.Value, "$lte": f.Upper}})
		default:
			return nil, fmt.Errorf("unsupported filter op %d", f.Op)
		}
	}
	return filter, nil
}

func (r record) document() *docstore.Document {
	return &docstore.Document{Path: r.Path, ID: r.DocID, Fields: fromBSON(r.Fields)}
}

func fromBSON(m bson.M) docstore.Fields {
	fields := make(docstore.Fields, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case primitive.DateTime:
			fields[k] = val.Time().UTC()
		case time.Time:
			fields[k] = val.UTC()
		default:
			fields[k] = val
		}
	}
	return fields
}
