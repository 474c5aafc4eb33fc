package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRetrieveRoundTrip(t *testing.T) {
	s := New(Config{MaintenanceEvery: time.Hour})
	defer s.Close()

	_, err := s.Store(StoreRequest{Key: "k1", Value: "v1", Category: CategoryContext})
	require.NoError(t, err)

	e, err := s.Retrieve("k1", nil)
	require.NoError(t, err)
	assert.Equal(t, "v1", e.Value)
	assert.Equal(t, 1, e.AccessCount)
}

func TestPinnedEntryExemptFromDemotion(t *testing.T) {
	s := New(Config{MaintenanceEvery: time.Hour})
	defer s.Close()

	_, err := s.Store(StoreRequest{Key: "pinned", Value: "v", Pinned: true, Tier: Working})
	require.NoError(t, err)

	s.runMaintenance()

	e, err := s.Retrieve("pinned", nil)
	require.NoError(t, err)
	assert.True(t, e.Pinned)
}

func TestPromoteBoostsImportanceAndMovesTier(t *testing.T) {
	s := New(Config{MaintenanceEvery: time.Hour})
	defer s.Close()

	imp := 0.5
	_, err := s.Store(StoreRequest{Key: "k", Value: "v", Tier: Working, Importance: &imp})
	require.NoError(t, err)

	ok, err := s.Promote("k", Working)
	require.NoError(t, err)
	assert.True(t, ok)

	e, err := s.Retrieve("k", nil)
	require.NoError(t, err)
	assert.Equal(t, Episodic, e.Tier)
	assert.InDelta(t, 0.6, e.Importance, 1e-9)
}

func TestPromoteFromPersistentFails(t *testing.T) {
	s := New(Config{MaintenanceEvery: time.Hour})
	defer s.Close()

	_, err := s.Store(StoreRequest{Key: "k", Value: "v", Tier: Persistent})
	require.NoError(t, err)

	_, err = s.Promote("k", Persistent)
	require.Error(t, err)
}

func TestDemoteFromWorkingDeletesEntry(t *testing.T) {
	s := New(Config{MaintenanceEvery: time.Hour})
	defer s.Close()

	_, err := s.Store(StoreRequest{Key: "k", Value: "v", Tier: Working})
	require.NoError(t, err)

	ok, err := s.Demote("k", Working)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.Retrieve("k", nil)
	assert.Error(t, err)
}

func TestDemotePinnedRejected(t *testing.T) {
	s := New(Config{MaintenanceEvery: time.Hour})
	defer s.Close()

	_, err := s.Store(StoreRequest{Key: "k", Value: "v", Tier: Episodic, Pinned: true})
	require.NoError(t, err)

	_, err = s.Demote("k", Episodic)
	assert.Error(t, err)
}

func TestWorkingTierEvictsLowestScoreWhenFull(t *testing.T) {
	cfg := DefaultTierConfigs()
	wc := cfg[Working]
	wc.MaxEntries = 2
	cfg[Working] = wc
	s := New(Config{TierConfigs: cfg, MaintenanceEvery: time.Hour})
	defer s.Close()

	low := 0.1
	high := 0.9
	_, err := s.Store(StoreRequest{Key: "low", Value: "v", Tier: Working, Importance: &low})
	require.NoError(t, err)
	_, err = s.Store(StoreRequest{Key: "high", Value: "v", Tier: Working, Importance: &high})
	require.NoError(t, err)
	_, err = s.Store(StoreRequest{Key: "newest", Value: "v", Tier: Working, Importance: &high})
	require.NoError(t, err)

	_, err = s.Retrieve("low", nil)
	assert.Error(t, err, "lowest-scored entry should have been evicted")

	_, err = s.Retrieve("high", nil)
	assert.NoError(t, err)
}

func TestExpiredEntryNotReturned(t *testing.T) {
	s := New(Config{MaintenanceEvery: time.Hour})
	defer s.Close()

	ttl := time.Millisecond
	_, err := s.Store(StoreRequest{Key: "k", Value: "v", Tier: Working, TTL: &ttl})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, err = s.Retrieve("k", nil)
	assert.Error(t, err)
}

func TestSearchOrdersByRankDescending(t *testing.T) {
	s := New(Config{MaintenanceEvery: time.Hour})
	defer s.Close()

	low, high := 0.2, 0.9
	_, _ = s.Store(StoreRequest{Key: "a", Value: "v", Tier: Working, Importance: &low})
	_, _ = s.Store(StoreRequest{Key: "b", Value: "v", Tier: Working, Importance: &high})

	results := s.Search(SearchFilter{})
	require.Len(t, results, 2)
	assert.Equal(t, "b", results[0].Key)
	assert.Equal(t, "a", results[1].Key)
}

func TestClearRemovesEntriesInTier(t *testing.T) {
	s := New(Config{MaintenanceEvery: time.Hour})
	defer s.Close()

	_, _ = s.Store(StoreRequest{Key: "k", Value: "v", Tier: Working})
	working := Working
	s.Clear(&working)

	_, err := s.Retrieve("k", &working)
	assert.Error(t, err)
}

func TestStatsReportsCountsPerTier(t *testing.T) {
	s := New(Config{MaintenanceEvery: time.Hour})
	defer s.Close()

	_, _ = s.Store(StoreRequest{Key: "a", Value: "v", Tier: Working})
	_, _ = s.Store(StoreRequest{Key: "b", Value: "v", Tier: Episodic})

	stats := s.Stats()
	assert.Equal(t, 1, stats.ByTier[Working].Count)
	assert.Equal(t, 1, stats.ByTier[Episodic].Count)
	assert.Equal(t, 2, stats.Total.Count)
}
