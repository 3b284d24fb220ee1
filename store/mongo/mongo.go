package mongo

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
	"go.mongodb.org/mongo-driver/x/bsonx"
	"go.uber.org/zap"
	"student-records-backend/entity"
	"student-records-backend/log"
	"student-records-backend/store"
)

const collection = "students"

type Store struct {
	client *mongo.Client
	c      *mongo.Collection
}

var _ store.Students = (*Store)(nil)

// Indexer derives the email_index of a stored, possibly encrypted, email.
type Indexer func(storedEmail string) string

func Connect(ctx context.Context, uri, database string, index Indexer) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}

	s, err := New(ctx, client, database, index)
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// New backfills email_index on documents written without one, then ensures
// its unique index. A nil index skips the backfill.
func New(ctx context.Context, client *mongo.Client, database string, index Indexer) (*Store, error) {
	c := client.Database(database).Collection(collection)
	if index != nil {
		if err := backfill(ctx, c, index); err != nil {
			return nil, err
		}
	}

	_, err := c.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bsonx.Doc{{Key: entity.FieldEmailIndex, Value: bsonx.Int32(1)}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return nil, fmt.Errorf("mongo: create index: %w", err)
	}

	return &Store{client: client, c: c}, nil
}

func backfill(ctx context.Context, c *mongo.Collection, index Indexer) error {
	// Matches both a missing and a null email_index.
	missing := bson.M{entity.FieldEmailIndex: nil}
	cursor, err := c.Find(ctx, missing, options.Find().SetProjection(bson.M{entity.FieldEmail: 1}))
	if err != nil {
		return fmt.Errorf("mongo: backfill: %w", err)
	}
	defer cursor.Close(context.Background())

	n := 0
	for cursor.Next(ctx) {
		var doc struct {
			ID    primitive.ObjectID `bson:"_id"`
			Email string             `bson:"email"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return fmt.Errorf("mongo: backfill: %w", err)
		}

		_, err := c.UpdateByID(ctx, doc.ID, bson.M{"$set": bson.M{entity.FieldEmailIndex: index(doc.Email)}})
		if err != nil {
			return fmt.Errorf("mongo: backfill %s: %w", doc.ID.Hex(), err)
		}
		n++
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("mongo: backfill: %w", err)
	}

	if n > 0 {
		log.Logger.Info("backfilled email index", zap.Int("documents", n))
	}
	return nil
}

func (s *Store) Create(ctx context.Context, st *entity.Student) error {
	_, err := s.c.InsertOne(ctx, st)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id primitive.ObjectID) (*entity.Student, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *Store) FindByEmailIndex(ctx context.Context, index string) (*entity.Student, error) {
	return s.findOne(ctx, bson.M{entity.FieldEmailIndex: index})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*entity.Student, error) {
	st := &entity.Student{}
	err := s.c.FindOne(ctx, filter).Decode(st)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return st, nil
}

func (s *Store) List(ctx context.Context) ([]*entity.Student, error) {
	cursor, err := s.c.Find(ctx, bson.M{}, options.Find().SetSort(bson.M{"created_at": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(context.Background())

	students := make([]*entity.Student, 0)
	if err := cursor.All(ctx, &students); err != nil {
		return nil, err
	}
	return students, nil
}

func (s *Store) Update(ctx context.Context, id primitive.ObjectID, fields store.Fields) (*entity.Student, error) {
	if len(fields) == 0 {
		return s.Get(ctx, id)
	}

	set := bson.M{}
	for k, v := range fields {
		if !store.Updatable[k] {
			return nil, fmt.Errorf("mongo: field %q is not updatable", k)
		}
		set[k] = v
	}

	st := &entity.Student{}
	err := s.c.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(st)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return st, nil
}

func (s *Store) SetPassword(ctx context.Context, id primitive.ObjectID, hash string) error {
	res, err := s.c.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		entity.FieldPassword:  hash,
		entity.FieldUpdatedAt: time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
