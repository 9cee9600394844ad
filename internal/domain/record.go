// Package domain defines the gating records, channels, catalog and states
// shared by the store, the workflow and the transport adapter.
package domain

// UserRecord captures one user's progress through subscription gating.
// JoinedChannels only grows; Confirmed is never re-verified once set.
type UserRecord struct {
	UserID         int64   `bson:"user_id"`
	Confirmed      bool    `bson:"confirmed"`
	JoinedChannels []int64 `bson:"joined_channels"`
}

// NewUserRecord returns an unconfirmed record with no joins.
func NewUserRecord(userID int64) UserRecord {
	return UserRecord{
		UserID:         userID,
		JoinedChannels: []int64{},
	}
}

// HasJoined reports whether a join request was observed for the channel.
func (r UserRecord) HasJoined(channelID int64) bool {
	for _, id := range r.JoinedChannels {
		if id == channelID {
			return true
		}
	}
	return false
}

// RecordJoin adds the channel to the joined set and reports whether it was new.
func (r *UserRecord) RecordJoin(channelID int64) bool {
	if r.HasJoined(channelID) {
		return false
	}

	r.JoinedChannels = append(r.JoinedChannels, channelID)
	return true
}

// MissingChannels lists the required channels without an observed join, in
// the order they are required.
func (r UserRecord) MissingChannels(required []Channel) []Channel {
	missing := make([]Channel, 0)
	for _, ch := range required {
		if !r.HasJoined(ch.ID) {
			missing = append(missing, ch)
		}
	}
	return missing
}

// SatisfiesRequirement reports whether every required channel has an observed
// join.
func (r UserRecord) SatisfiesRequirement(required []Channel) bool {
	return len(r.MissingChannels(required)) == 0
}

// Clone returns a deep copy so callers can mutate without aliasing the store.
func (r UserRecord) Clone() UserRecord {
	joined := make([]int64, len(r.JoinedChannels))
	copy(joined, r.JoinedChannels)
	r.JoinedChannels = joined
	return r
}
