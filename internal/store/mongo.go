package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tg_movie_gate_bot/internal/domain"
	"tg_movie_gate_bot/internal/logging"
	"tg_movie_gate_bot/internal/metrics"
)

type recordCollection interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
	DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

// MongoStore keeps one document per user in the pending users collection.
// Updates from this process are serialized; the unique user_id index guards
// against duplicate documents.
type MongoStore struct {
	mu      sync.Mutex
	records recordCollection
	logger  *logrus.Entry
}

// NewMongoStore constructs a MongoStore backed by the provided collection.
func NewMongoStore(records recordCollection, logger *logrus.Entry) *MongoStore {
	if logger == nil {
		logger = logging.Logger()
	}

	return &MongoStore{
		records: records,
		logger:  logger.WithField("store", "mongo"),
	}
}

// Load reads every document. Query or decode failures yield an empty snapshot.
func (s *MongoStore) Load(ctx context.Context) Records {
	if err := s.validate(ctx); err != nil {
		s.logFailure("load", err)
		return Records{}
	}

	cursor, err := s.records.Find(ctx, bson.D{})
	if err != nil {
		s.logFailure("load", fmt.Errorf("find pending users: %w", err))
		return Records{}
	}

	var docs []domain.UserRecord
	if err := cursor.All(ctx, &docs); err != nil {
		s.logFailure("load", fmt.Errorf("decode pending users: %w", err))
		return Records{}
	}

	records := make(Records, len(docs))
	for _, doc := range docs {
		if doc.UserID == 0 {
			continue
		}
		if doc.JoinedChannels == nil {
			doc.JoinedChannels = []int64{}
		}
		records[doc.UserID] = doc
	}

	return records
}

// Save makes the collection match the snapshot: every record is upserted and
// documents for users absent from it are deleted.
func (s *MongoStore) Save(ctx context.Context, records Records) error {
	if err := s.validate(ctx); err != nil {
		s.logFailure("save", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	keep := make([]int64, 0, len(records))
	for userID, record := range records {
		keep = append(keep, userID)
		record.UserID = userID
		if err := s.replace(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := s.records.DeleteMany(ctx, bson.M{"user_id": bson.M{"$nin": keep}}); err != nil {
		errs = append(errs, fmt.Errorf("delete stale pending users: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		s.logFailure("save", err)
		return err
	}

	return nil
}

// Get returns the stored record for userID, if any.
func (s *MongoStore) Get(ctx context.Context, userID int64) (domain.UserRecord, bool) {
	if err := s.validate(ctx); err != nil {
		s.logFailure("load", err)
		return domain.UserRecord{}, false
	}

	record, found, err := s.find(ctx, userID)
	if err != nil {
		s.logFailure("load", err)
		return domain.UserRecord{}, false
	}

	return record, found
}

// Update performs find-mutate-replace for one user. The mutated record is
// returned even when the write fails; in that case the change is not
// persisted.
func (s *MongoStore) Update(ctx context.Context, userID int64, fn Mutator) (domain.UserRecord, error) {
	if err := s.validate(ctx); err != nil {
		s.logFailure("update", err)
		record, _ := applyMutator(userID, domain.UserRecord{}, false, fn)
		return record, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists, err := s.find(ctx, userID)
	if err != nil {
		// Writing now could clobber a document we failed to read.
		s.logFailure("load", err)
		record, _ := applyMutator(userID, domain.UserRecord{}, false, fn)
		return record, err
	}

	record, changed := applyMutator(userID, current, exists, fn)
	if !changed {
		return record, nil
	}

	if err := s.replace(ctx, record); err != nil {
		s.logFailure("save", err)
		return record, err
	}

	return record, nil
}

func (s *MongoStore) find(ctx context.Context, userID int64) (domain.UserRecord, bool, error) {
	result := s.records.FindOne(ctx, bson.M{"user_id": userID})
	if result == nil {
		return domain.UserRecord{}, false, errors.New("find pending user returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.UserRecord{}, false, nil
		}
		return domain.UserRecord{}, false, fmt.Errorf("find pending user: %w", err)
	}

	var record domain.UserRecord
	if err := result.Decode(&record); err != nil {
		return domain.UserRecord{}, false, fmt.Errorf("decode pending user: %w", err)
	}
	if record.JoinedChannels == nil {
		record.JoinedChannels = []int64{}
	}

	return record, true, nil
}

func (s *MongoStore) replace(ctx context.Context, record domain.UserRecord) error {
	if record.JoinedChannels == nil {
		record.JoinedChannels = []int64{}
	}

	_, err := s.records.ReplaceOne(ctx,
		bson.M{"user_id": record.UserID},
		record,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("replace pending user %d: %w", record.UserID, err)
	}

	return nil
}

func (s *MongoStore) validate(ctx context.Context) error {
	if s == nil || s.records == nil {
		return errors.New("mongo store is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return nil
}

func (s *MongoStore) logFailure(op string, err error) {
	metrics.IncStoreError(op)

	logger := logging.Logger()
	if s != nil && s.logger != nil {
		logger = s.logger
	}
	logger.WithField("event", "store_"+op+"_error").WithError(err).Error("pending state store failure")
}
