// Package memory implements the tiered working/episodic/persistent cache:
// entries migrate between tiers by a promotion/demotion score computed at
// maintenance time, with pinned entries exempt from all eviction paths.
package memory

import "time"

// Tier is one of the three cache levels.
type Tier string

const (
	Working    Tier = "working"
	Episodic   Tier = "episodic"
	Persistent Tier = "persistent"
)

// Category classifies what an entry holds.
type Category string

const (
	CategoryTask     Category = "task"
	CategoryContext  Category = "context"
	CategoryLearning Category = "learning"
	CategoryKnowledge Category = "knowledge"
	CategoryOther    Category = "other"
)

// TierConfig is the per-tier contract: capacity, default TTL, and the
// promotion/demotion thresholds. The defaults below are load-bearing —
// callers and tests assume them.
type TierConfig struct {
	MaxEntries          int // 0 means unbounded (persistent)
	DefaultTTL          time.Duration
	PromotionThreshold  float64
	DemotionThreshold   float64
}

// DefaultTierConfigs returns the contractual defaults for every tier.
func DefaultTierConfigs() map[Tier]TierConfig {
	return map[Tier]TierConfig{
		Working: {
			MaxEntries:         100,
			DefaultTTL:         5 * time.Minute,
			PromotionThreshold: 0.7,
			DemotionThreshold:  0.1,
		},
		Episodic: {
			MaxEntries:         1000,
			DefaultTTL:         24 * time.Hour,
			PromotionThreshold: 0.85,
			DemotionThreshold:  0.2,
		},
		Persistent: {
			MaxEntries:         0,
			DefaultTTL:         0, // no expiration
			PromotionThreshold: 0, // n/a, never promoted further
			DemotionThreshold:  0.1,
		},
	}
}

// Entry is one memory record, unique by key within its tier.
type Entry struct {
	ID         string
	Key        string
	Value      any
	Tier       Tier
	Category   Category
	Importance float64 // [0,1]
	Decay      float64 // [0,1]
	AccessCount int
	CreatedAt  time.Time
	LastAccessed time.Time
	Expiration *time.Time
	Pinned     bool
	AgentID    string
	Tags       map[string]struct{}
	Metadata   map[string]any

	PromotionScore float64
	DemotionScore  float64
}

// Expired reports whether the entry has passed its expiration.
func (e *Entry) Expired(now time.Time) bool {
	return e.Expiration != nil && now.After(*e.Expiration)
}

// StoreRequest carries the optional fields accepted by Store.
type StoreRequest struct {
	Key        string
	Value      any
	Tier       Tier
	Category   Category
	Importance *float64
	TTL        *time.Duration
	Tags       []string
	AgentID    string
	Metadata   map[string]any
	Pinned     bool
}

// SearchFilter narrows Search results.
type SearchFilter struct {
	Tier          *Tier
	Category      *Category
	AgentID       string
	Tags          []string
	MinImportance float64
	Limit         int
	// Embedding is carried on the filter but not read by Search: ranking
	// uses importance and access count only, with no similarity term.
	Embedding []float32
}

// TierStats is one tier's row in Stats().
type TierStats struct {
	Count           int
	Size            int // same as Count; kept distinct for future byte-size accounting
	AvgImportance   float64
	AvgAccessCount  float64
	Oldest          *time.Time
	Newest          *time.Time
}

// AllStats is the full Stats() result: one row per tier plus a total.
type AllStats struct {
	ByTier map[Tier]TierStats
	Total  TierStats
}
