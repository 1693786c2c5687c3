// Package devstore holds the in-memory last-known state of every device
// that has published at least one message. It is the authoritative source
// for online status and latest readings.
package devstore

import (
	"errors"
	"sync"
	"time"

	"github.com/ksaver/powermon/internal/telemetry"
)

// ErrNotFound is returned when a device key has never been seen.
var ErrNotFound = errors.New("device not found")

// DefaultOnlineWindow is the age threshold below which a device counts as
// online.
const DefaultOnlineWindow = 60 * time.Second

// Record is the per-device metadata, overwritten wholesale on every
// inbound message. Records are never deleted; "offline" is derived from
// LastSeen age, not stored.
type Record struct {
	Country   string
	SiteID    string
	Model     string
	DeviceID  string
	LastSeen  time.Time
	LastType  string
	LastTopic string
}

// Entry is one device's state as captured by List.
type Entry struct {
	Key     string
	Record  Record
	Payload telemetry.RawPayload
}

// Store maps device keys to their record and last raw payload. The two
// are replaced together under one lock, so readers never observe a new
// record paired with an old payload.
type Store struct {
	mu           sync.RWMutex
	records      map[string]Record
	payloads     map[string]telemetry.RawPayload
	onlineWindow time.Duration
}

// New creates a Store. A non-positive onlineWindow falls back to
// DefaultOnlineWindow.
func New(onlineWindow time.Duration) *Store {
	if onlineWindow <= 0 {
		onlineWindow = DefaultOnlineWindow
	}
	return &Store{
		records:      make(map[string]Record),
		payloads:     make(map[string]telemetry.RawPayload),
		onlineWindow: onlineWindow,
	}
}

// Upsert atomically replaces both the record and the payload for key.
func (s *Store) Upsert(key string, rec Record, payload telemetry.RawPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = rec
	s.payloads[key] = payload
}

// Get returns the record/payload pair for key, or ErrNotFound.
func (s *Store) Get(key string) (Record, telemetry.RawPayload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return Record{}, nil, ErrNotFound
	}
	return rec, s.payloads[key], nil
}

// List returns a point-in-time snapshot of every device. Callers can
// normalize and format the entries without holding any lock.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.records))
	for key, rec := range s.records {
		out = append(out, Entry{Key: key, Record: rec, Payload: s.payloads[key]})
	}
	return out
}

// Len reports the number of known devices.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Age is the clamped time since lastSeen. Future timestamps (clock skew)
// yield zero rather than a negative duration.
func Age(lastSeen, now time.Time) time.Duration {
	age := now.Sub(lastSeen)
	if age < 0 {
		return 0
	}
	return age
}

// Online reports whether a device last seen at lastSeen counts as online
// at now.
func (s *Store) Online(lastSeen, now time.Time) bool {
	return Age(lastSeen, now) < s.onlineWindow
}
