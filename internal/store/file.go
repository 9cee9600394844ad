package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"

	"tg_movie_gate_bot/internal/domain"
	"tg_movie_gate_bot/internal/logging"
	"tg_movie_gate_bot/internal/metrics"
)

const (
	lockRetryDelay = 25 * time.Millisecond

	// legacyConfirmed is the bare string value written by the first bot
	// revision instead of a record object.
	legacyConfirmed = "confirmed"
)

// renameFile is overridable for tests.
var renameFile = os.Rename

// fileRecord is the on-disk shape of a single user entry.
type fileRecord struct {
	Confirmed      bool    `json:"confirmed"`
	JoinedChannels []int64 `json:"joined_channels"`
}

func (r *fileRecord) UnmarshalJSON(data []byte) error {
	var legacy string
	if err := json.Unmarshal(data, &legacy); err == nil {
		*r = fileRecord{Confirmed: legacy == legacyConfirmed}
		return nil
	}

	type plain fileRecord
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}

	*r = fileRecord(decoded)
	return nil
}

// FileStore keeps every record in a single JSON file that is read in full and
// rewritten in full. Mutations are serialized in-process by a mutex and across
// processes by an advisory lock on a sibling .lock file.
type FileStore struct {
	mu     sync.Mutex
	path   string
	lock   *flock.Flock
	logger *logrus.Entry
}

// NewFileStore prepares a store at path, creating the parent directory.
// A missing file is not an error; it reads as an empty store.
func NewFileStore(path string, logger *logrus.Entry) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("state file path is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}

	return &FileStore{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logger.WithField("store", "file"),
	}, nil
}

// Path returns the state file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the whole store. Missing, unreadable or corrupt content yields an
// empty snapshot.
func (s *FileStore) Load(ctx context.Context) Records {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.acquire(ctx, false)
	if err != nil {
		s.logFailure("load", err)
		return Records{}
	}
	defer unlock()

	records, _ := s.read()
	return records
}

// Save overwrites the whole store with records.
func (s *FileStore) Save(ctx context.Context, records Records) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.acquire(ctx, true)
	if err != nil {
		s.logFailure("save", err)
		return err
	}
	defer unlock()

	return s.write(records)
}

// Get returns the stored record for userID, if any.
func (s *FileStore) Get(ctx context.Context, userID int64) (domain.UserRecord, bool) {
	records := s.Load(ctx)
	record, ok := records[userID]
	if !ok {
		return domain.UserRecord{}, false
	}
	return record, true
}

// Update performs load-mutate-save for one user while holding the store lock.
// The mutated record is returned even when saving fails; in that case the
// change is not persisted. When the file exists but cannot be read nothing is
// written, so other users' records survive.
func (s *FileStore) Update(ctx context.Context, userID int64, fn Mutator) (domain.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.acquire(ctx, true)
	if err != nil {
		s.logFailure("update", err)
		record, _ := applyMutator(userID, domain.UserRecord{}, false, fn)
		return record, err
	}
	defer unlock()

	records, err := s.read()
	if err != nil {
		record, _ := applyMutator(userID, domain.UserRecord{}, false, fn)
		return record, err
	}
	current, exists := records[userID]

	record, changed := applyMutator(userID, current, exists, fn)
	if !changed {
		return record, nil
	}

	records[userID] = record
	return record, s.write(records)
}

func (s *FileStore) acquire(ctx context.Context, exclusive bool) (func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		locked bool
		err    error
	)
	if exclusive {
		locked, err = s.lock.TryLockContext(ctx, lockRetryDelay)
	} else {
		locked, err = s.lock.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return nil, fmt.Errorf("lock state file: %w", err)
	}
	if !locked {
		return nil, errors.New("lock state file: not acquired")
	}

	return func() {
		if unlockErr := s.lock.Unlock(); unlockErr != nil {
			s.logger.WithField("event", "store_unlock_error").WithError(unlockErr).Warn("failed to release state file lock")
		}
	}, nil
}

// read returns an error only when the file exists and could not be read;
// missing and corrupt files both yield an empty snapshot.
func (s *FileStore) read() (Records, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Records{}, nil
		}
		err = fmt.Errorf("read state file: %w", err)
		s.logFailure("load", err)
		return Records{}, err
	}

	var raw map[string]fileRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logFailure("load", fmt.Errorf("parse state file: %w", err))
		return Records{}, nil
	}

	records := make(Records, len(raw))
	for key, entry := range raw {
		userID, parseErr := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
		if parseErr != nil {
			s.logger.WithFields(logging.Fields{
				"event": "store_bad_key",
				"key":   key,
			}).Warn("skipping state entry with non-numeric user id")
			continue
		}

		joined := entry.JoinedChannels
		if joined == nil {
			joined = []int64{}
		}
		records[userID] = domain.UserRecord{
			UserID:         userID,
			Confirmed:      entry.Confirmed,
			JoinedChannels: joined,
		}
	}

	return records, nil
}

func (s *FileStore) write(records Records) error {
	raw := make(map[string]fileRecord, len(records))
	for userID, record := range records {
		joined := make([]int64, len(record.JoinedChannels))
		copy(joined, record.JoinedChannels)
		sort.Slice(joined, func(i, j int) bool { return joined[i] < joined[j] })

		raw[strconv.FormatInt(userID, 10)] = fileRecord{
			Confirmed:      record.Confirmed,
			JoinedChannels: joined,
		}
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		err = fmt.Errorf("marshal state: %w", err)
		s.logFailure("save", err)
		return err
	}

	if err := writeAtomic(s.path, data); err != nil {
		s.logFailure("save", err)
		return err
	}

	return nil
}

// writeAtomic writes data to a temp file next to path and renames it over path.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := renameFile(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

func (s *FileStore) logFailure(op string, err error) {
	metrics.IncStoreError(op)
	s.logger.WithFields(logging.Fields{
		"event": "store_" + op + "_error",
		"path":  s.path,
	}).WithError(err).Error("pending state store failure")
}
