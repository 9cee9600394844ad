package store

import "tg_movie_gate_bot/internal/domain"

// Records is the full pending-state snapshot keyed by Telegram user id.
type Records map[int64]domain.UserRecord

// Mutator changes a record in place and reports whether anything changed.
type Mutator func(record *domain.UserRecord) bool

// applyMutator runs fn against a copy of the stored record (or a fresh one)
// and reports whether the result must be written back.
func applyMutator(userID int64, current domain.UserRecord, exists bool, fn Mutator) (domain.UserRecord, bool) {
	record := domain.NewUserRecord(userID)
	if exists {
		record = current.Clone()
		record.UserID = userID
	}

	changed := !exists
	if fn != nil && fn(&record) {
		changed = true
	}

	return record, changed
}
