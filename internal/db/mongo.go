package db

import (
	"context"
	"fmt"
	"time"

	"site_watcher/internal/config"
	"site_watcher/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoDB struct {
	client    *mongo.Client
	database  *mongo.Database
	snapshots *mongo.Collection
	key       string
}

type snapshotDocument struct {
	ID        string `bson:"_id"`
	Sections  bson.D `bson:"sections"`
	UpdatedAt int64  `bson:"updated_at"`
}

func NewMongoDB(cfg config.MongoConfig) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Connection))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("can't ping MongoDB: %w", err)
	}

	database := client.Database(cfg.Database)

	return &MongoDB{
		client:    client,
		database:  database,
		snapshots: database.Collection(cfg.Collection),
		key:       cfg.Key,
	}, nil
}

// Load reads the snapshot document for the configured key; the value shapes
// follow the same null / string / array convention as the JSON file.
func (d *MongoDB) Load(ctx context.Context) (*models.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var doc snapshotDocument
	err := d.snapshots.FindOne(ctx, bson.M{"_id": d.key}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "mongo find", Path: d.key, Err: err}
	}

	snap, err := sectionsToSnapshot(doc.Sections)
	if err != nil {
		return nil, &CorruptError{Path: d.key, Err: err}
	}
	return snap, nil
}

// Save replaces the whole document in one upsert, which MongoDB applies atomically.
func (d *MongoDB) Save(ctx context.Context, snap *models.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Update().SetUpsert(true)
	filter := bson.M{"_id": d.key}
	update := bson.M{
		"$set": bson.M{
			"sections":   snapshotToSections(snap.Canonical()),
			"updated_at": time.Now().Unix(),
		},
	}

	if _, err := d.snapshots.UpdateOne(ctx, filter, update, opts); err != nil {
		return &PersistenceError{Op: "mongo upsert", Path: d.key, Err: err}
	}
	return nil
}

func (d *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return d.client.Disconnect(ctx)
}

func snapshotToSections(snap *models.Snapshot) bson.D {
	sections := bson.D{}
	for _, label := range snap.Labels() {
		fp, _ := snap.Get(label)
		var value interface{}
		switch {
		case fp.IsList():
			items := bson.A{}
			for _, id := range fp.Items {
				items = append(items, id)
			}
			value = items
		case fp.Hash != nil:
			value = *fp.Hash
		}
		sections = append(sections, bson.E{Key: label, Value: value})
	}
	return sections
}

func sectionsToSnapshot(sections bson.D) (*models.Snapshot, error) {
	snap := models.NewSnapshot()
	for _, e := range sections {
		switch v := e.Value.(type) {
		case nil:
			snap.Put(e.Key, models.HashFingerprint(nil))
		case string:
			h := v
			snap.Put(e.Key, models.HashFingerprint(&h))
		case bson.A:
			items := make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("section %q: non-string identifier %v", e.Key, item)
				}
				items = append(items, s)
			}
			snap.Put(e.Key, models.ItemsFingerprint(items))
		default:
			return nil, fmt.Errorf("section %q: unexpected value type %T", e.Key, e.Value)
		}
	}
	return snap, nil
}
