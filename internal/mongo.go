package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MagicHoovy/Steve/internal/config"
	"github.com/MagicHoovy/Steve/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	collectionLog  = "sys_log"
	defaultTimeout = 10 * time.Second
)

// StoreError wraps any failure of the document store
type StoreError struct {
	Collection string
	Key        string
	Err        error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("mongodb %s: %v", e.Collection, e.Err)
	}
	return fmt.Sprintf("mongodb %s[%s]: %v", e.Collection, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// MongoDB keeps one pooled client for the whole process lifetime
type MongoDB struct {
	client   *mongo.Client
	database string
	timeout  time.Duration
}

// NewMongoClient connects and pings the server, so an unreachable store is
// reported at startup
func NewMongoClient(ctx context.Context, conf *config.Config) (*MongoDB, error) {
	connectionUri := conf.Mongo.Uri
	if connectionUri == "" {
		connectionUri = fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	}
	timeout := conf.Mongo.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	clientOptions := options.Client().
		ApplyURI(connectionUri).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err = client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}
	return NewMongoDB(client, conf.Mongo.Database, timeout), nil
}

func NewMongoDB(client *mongo.Client, database string, timeout time.Duration) *MongoDB {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &MongoDB{
		client:   client,
		database: database,
		timeout:  timeout,
	}
}

func (m *MongoDB) collection(name string) *mongo.Collection {
	return m.client.Database(m.database).Collection(name)
}

func (m *MongoDB) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the kind relies on, including the unique
// key index that keeps one document per identifier
func (m *MongoDB) EnsureIndexes(ctx context.Context, kind models.EntityKind) error {
	if len(kind.Indexes) == 0 {
		return nil
	}
	indexes := make([]mongo.IndexModel, 0, len(kind.Indexes))
	for _, index := range kind.Indexes {
		keys := bson.D{}
		for _, field := range index.Fields {
			keys = append(keys, bson.E{Key: field.Name, Value: field.Direction})
		}
		model := mongo.IndexModel{Keys: keys}
		if index.Unique {
			model.Options = options.Index().SetUnique(true)
		}
		indexes = append(indexes, model)
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if _, err := m.collection(kind.Collection).Indexes().CreateMany(ctx, indexes); err != nil {
		return &StoreError{Collection: kind.Collection, Err: fmt.Errorf("create indexes: %w", err)}
	}
	return nil
}

// Upsert replaces the document stored under the kind's key, inserting it when absent.
// The prior version comes back from the same findAndModify call, one round trip.
func (m *MongoDB) Upsert(ctx context.Context, kind models.EntityKind, doc models.Document) (*UpsertResult, error) {
	key := kind.KeyValue(doc)
	if key == nil {
		return nil, &StoreError{Collection: kind.Collection, Err: fmt.Errorf("document has no %s", kind.KeyField)}
	}
	record := doc.Clone()
	record[models.UpdatedAtField] = time.Now().UTC()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	filter := bson.D{{Key: kind.KeyField, Value: key}}
	opts := options.FindOneAndReplace().
		SetUpsert(true).
		SetReturnDocument(options.Before)
	var previous bson.M
	err := m.collection(kind.Collection).FindOneAndReplace(ctx, filter, record, opts).Decode(&previous)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &UpsertResult{Outcome: Created}, nil
	}
	if err != nil {
		return nil, &StoreError{Collection: kind.Collection, Key: kind.Key(doc), Err: err}
	}

	prior := plainDocument(previous)
	result := &UpsertResult{Outcome: Modified, Previous: prior}
	if prior.SameContent(doc) {
		result.Outcome = Unchanged
	}
	return result, nil
}

func (m *MongoDB) WriteLogMessage(data Data) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	_, err := m.collection(collectionLog).InsertOne(ctx, data)
	if err != nil {
		return &StoreError{Collection: collectionLog, Err: err}
	}
	return nil
}

// plainDocument turns driver containers into the plain maps and slices a
// decoded JSON body consists of
func plainDocument(m bson.M) models.Document {
	if m == nil {
		return nil
	}
	doc := make(models.Document, len(m))
	for k, v := range m {
		doc[k] = plainValue(v)
	}
	return doc
}

func plainValue(v interface{}) interface{} {
	switch t := v.(type) {
	case primitive.M:
		return map[string]interface{}(plainDocument(bson.M(t)))
	case map[string]interface{}:
		return map[string]interface{}(plainDocument(t))
	case primitive.D:
		m := make(map[string]interface{}, len(t))
		for _, e := range t {
			m[e.Key] = plainValue(e.Value)
		}
		return m
	case primitive.A:
		a := make([]interface{}, len(t))
		for i, item := range t {
			a[i] = plainValue(item)
		}
		return a
	case []interface{}:
		a := make([]interface{}, len(t))
		for i, item := range t {
			a[i] = plainValue(item)
		}
		return a
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	}
	return v
}
