package devstore

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksaver/powermon/internal/telemetry"
)

func record(key string, lastSeen time.Time) Record {
	return Record{
		Country:   "th",
		SiteID:    "site001",
		Model:     "pg46",
		DeviceID:  key,
		LastSeen:  lastSeen,
		LastType:  "meter",
		LastTopic: "th/site001/pg46/" + key + "/meter",
	}
}

func TestUpsertAndGet(t *testing.T) {
	s := New(0)
	now := time.Now()

	rec := record("001", now)
	payload := telemetry.RawPayload{"v": 220.0}
	s.Upsert("th/site001/pg46/001", rec, payload)

	got, gotPayload, err := s.Get("th/site001/pg46/001")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
	assert.Equal(t, payload, gotPayload)
}

func TestGetUnknownKey(t *testing.T) {
	s := New(0)
	_, _, err := s.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertOverwritesWholesale(t *testing.T) {
	s := New(0)
	now := time.Now()

	s.Upsert("k", record("001", now.Add(-time.Minute)), telemetry.RawPayload{"v": 100.0})
	s.Upsert("k", record("001", now), telemetry.RawPayload{"a": 5.0})

	rec, payload, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, now, rec.LastSeen)
	assert.Equal(t, telemetry.RawPayload{"a": 5.0}, payload)
	_, hasOld := payload["v"]
	assert.False(t, hasOld)
}

func TestListSnapshot(t *testing.T) {
	s := New(0)
	now := time.Now()
	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("k%d", i)
		s.Upsert(key, record(key, now), telemetry.RawPayload{"v": float64(i)})
	}

	entries := s.List()
	assert.Len(t, entries, 3)

	// Mutating the store must not affect the snapshot already taken.
	s.Upsert("k0", record("k0", now.Add(time.Second)), telemetry.RawPayload{"v": 99.0})
	for _, e := range entries {
		if e.Key == "k0" {
			assert.Equal(t, telemetry.RawPayload{"v": 0.0}, e.Payload)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := New(0)
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", i%4)
				s.Upsert(key, record(key, now), telemetry.RawPayload{"v": float64(j)})
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.List()
				s.Get(fmt.Sprintf("k%d", i%4))
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, s.Len(), 4)
}

func TestOnline(t *testing.T) {
	s := New(60 * time.Second)
	now := time.Now()

	assert.True(t, s.Online(now.Add(-30*time.Second), now))
	assert.False(t, s.Online(now.Add(-90*time.Second), now))
	assert.False(t, s.Online(now.Add(-60*time.Second), now))
}

func TestOnlineClampsFutureTimestamps(t *testing.T) {
	s := New(60 * time.Second)
	now := time.Now()

	// A lastSeen in the future must clamp to zero age, never go negative.
	assert.True(t, s.Online(now.Add(1000*time.Second), now))
	assert.Equal(t, time.Duration(0), Age(now.Add(time.Hour), now))
}

func TestDefaultOnlineWindow(t *testing.T) {
	s := New(0)
	now := time.Now()
	assert.True(t, s.Online(now.Add(-59*time.Second), now))
	assert.False(t, s.Online(now.Add(-61*time.Second), now))
}
