// Package mongofeed is a change-feed transport over MongoDB change streams.
//
// Each table is a collection of the same name in one database. Open starts
// a single database-level change stream matched to the channel's bound
// collections and filter values. Updates are delivered with the full
// post-image (update lookup); deletes carry only the document key.
package mongofeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/kinship/pkg/feed"
)

// Transport implements feed.Transport on a MongoDB database.
type Transport struct {
	db *mongo.Database
}

var _ feed.Transport = (*Transport)(nil)

// New watches collections in db. The caller owns the client.
func New(db *mongo.Database) *Transport {
	return &Transport{db: db}
}

// Name implements feed.Transport.
func (t *Transport) Name() string { return "mongo" }

// Open starts a change stream for ch.
func (t *Transport) Open(ctx context.Context, ch feed.Channel) (feed.Stream, error) {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	cs, err := t.db.Watch(ctx, Pipeline(ch), opts)
	if err != nil {
		return nil, fmt.Errorf("mongofeed: watch %s: %w", ch.Name, err)
	}
	return &stream{cs: cs}, nil
}

// Pipeline returns the aggregation pipeline for ch: one $match stage that
// keeps inserts, updates and replaces whose document has the bound value,
// and every delete on a bound collection.
func Pipeline(ch feed.Channel) mongo.Pipeline {
	or := bson.A{}
	for _, b := range ch.Bindings {
		doc := bson.D{{Key: "ns.coll", Value: b.Table}}
		if b.Column != "" {
			doc = append(doc, bson.E{Key: "fullDocument." + b.Column, Value: b.Value})
		}
		or = append(or, doc)
		or = append(or, bson.D{
			{Key: "ns.coll", Value: b.Table},
			{Key: "operationType", Value: "delete"},
		})
	}
	return mongo.Pipeline{{{Key: "$match", Value: bson.D{{Key: "$or", Value: or}}}}}
}

// change is the subset of a change event document we read.
type change struct {
	OperationType string `bson:"operationType"`
	NS            struct {
		Coll string `bson:"coll"`
	} `bson:"ns"`
	FullDocument bson.M              `bson:"fullDocument"`
	DocumentKey  bson.M              `bson:"documentKey"`
	ClusterTime  primitive.Timestamp `bson:"clusterTime"`
}

// toEvent maps a change document onto a feed event. Operations other than
// insert, update, replace and delete are skipped.
func toEvent(c change) (feed.Event, bool) {
	ev := feed.Event{Table: c.NS.Coll}
	if c.ClusterTime.T != 0 {
		ev.CommitTime = time.Unix(int64(c.ClusterTime.T), 0).UTC()
	}
	switch c.OperationType {
	case "insert":
		ev.Type = feed.Insert
		ev.New = toRow(c.FullDocument)
	case "update", "replace":
		ev.Type = feed.Update
		ev.New = toRow(c.FullDocument)
		ev.Old = toRow(c.DocumentKey)
	case "delete":
		ev.Type = feed.Delete
		ev.Old = toRow(c.DocumentKey)
	default:
		return feed.Event{}, false
	}
	return ev, true
}

// toRow converts BSON values to the plain types feed.Row understands and
// exposes _id as id when the document has no id field of its own.
func toRow(m bson.M) feed.Row {
	if len(m) == 0 {
		return nil
	}
	row := make(feed.Row, len(m))
	for k, v := range m {
		row[k] = plain(v)
	}
	if _, ok := row["id"]; !ok {
		if id, ok := row["_id"]; ok {
			row["id"] = id
		}
	}
	return row
}

func plain(v any) any {
	switch x := v.(type) {
	case primitive.ObjectID:
		return x.Hex()
	case primitive.DateTime:
		return x.Time().UTC()
	case primitive.Decimal128:
		return x.String()
	default:
		return v
	}
}

type stream struct {
	cs     *mongo.ChangeStream
	mu     sync.Mutex
	closed bool
}

func (s *stream) Recv(ctx context.Context) (feed.Event, error) {
	for {
		if s.isClosed() {
			return feed.Event{}, feed.ErrStreamClosed
		}
		if !s.cs.Next(ctx) {
			if err := ctx.Err(); err != nil {
				return feed.Event{}, err
			}
			if s.isClosed() {
				return feed.Event{}, feed.ErrStreamClosed
			}
			return feed.Event{}, fmt.Errorf("%w: %v", feed.ErrDisconnected, s.cs.Err())
		}
		var c change
		if err := s.cs.Decode(&c); err != nil {
			continue
		}
		if ev, ok := toEvent(c); ok {
			return ev, nil
		}
	}
}

func (s *stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.cs.Close(context.Background())
}
