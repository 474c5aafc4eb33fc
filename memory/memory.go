package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	coordinator "github.com/agentmesh/coordinator"
)

// Config configures a Store at construction.
type Config struct {
	TierConfigs     map[Tier]TierConfig // defaults to DefaultTierConfigs() per missing entry
	Backend         PersistentBackend   // optional; persistent tier is in-memory-only without one
	MaintenanceEvery time.Duration      // defaults to 5 minutes
}

// Store is the tiered memory cache: working, episodic and persistent
// entries guarded by one mutex, with a cooperative maintenance loop that
// applies expiration and promotion/demotion.
//
// Grounded on the teacher's team.SharedState pattern: callers only ever
// see copies, never the live maps.
type Store struct {
	mu sync.RWMutex

	tiers   map[Tier]TierConfig
	entries map[Tier]map[string]*Entry // tier -> key -> entry
	backend PersistentBackend

	maintEvery time.Duration
	stopCh     chan struct{}
	stopped    bool
}

// New constructs a Store. Call Close to stop its maintenance loop.
func New(cfg Config) *Store {
	tiers := DefaultTierConfigs()
	for t, tc := range cfg.TierConfigs {
		tiers[t] = tc
	}
	s := &Store{
		tiers:      tiers,
		entries:    map[Tier]map[string]*Entry{Working: {}, Episodic: {}, Persistent: {}},
		backend:    cfg.Backend,
		maintEvery: cfg.MaintenanceEvery,
		stopCh:     make(chan struct{}),
	}
	if s.maintEvery <= 0 {
		s.maintEvery = 5 * time.Minute
	}
	if s.backend != nil {
		s.hydrateFromBackend()
	}
	go s.maintenanceLoop()
	return s
}

func (s *Store) hydrateFromBackend() {
	docs, err := s.backend.List(context.Background())
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, raw := range docs {
		var e Entry
		if json.Unmarshal(raw, &e) == nil {
			s.entries[Persistent][e.Key] = &e
			_ = id
		}
	}
}

// Store writes an entry into the requested tier (default Working),
// evicting the lowest-scored non-pinned entry if the tier is full.
func (s *Store) Store(req StoreRequest) (*Entry, error) {
	tier := req.Tier
	if tier == "" {
		tier = Working
	}
	cfg, ok := s.tiers[tier]
	if !ok {
		return nil, coordinator.NewError("memory", "Store", coordinator.ErrInvalidConfig, "unknown tier", nil)
	}

	now := time.Now()
	importance := 0.5
	if req.Importance != nil {
		importance = *req.Importance
	}
	ttl := cfg.DefaultTTL
	if req.TTL != nil {
		ttl = *req.TTL
	}
	var expiration *time.Time
	if ttl > 0 {
		t := now.Add(ttl)
		expiration = &t
	}

	tags := make(map[string]struct{}, len(req.Tags))
	for _, t := range req.Tags {
		tags[t] = struct{}{}
	}

	e := &Entry{
		ID:           uuid.NewString(),
		Key:          req.Key,
		Value:        req.Value,
		Tier:         tier,
		Category:     req.Category,
		Importance:   importance,
		Decay:        1,
		AccessCount:  0,
		CreatedAt:    now,
		LastAccessed: now,
		Expiration:   expiration,
		Pinned:       req.Pinned,
		AgentID:      req.AgentID,
		Tags:         tags,
		Metadata:     req.Metadata,
	}
	refreshScores(e, now)

	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.MaxEntries > 0 {
		bucket := s.entries[tier]
		if _, exists := bucket[e.Key]; !exists && len(bucket) >= cfg.MaxEntries {
			s.evictLowestLocked(tier)
		}
	}
	s.entries[tier][e.Key] = e

	if tier == Persistent && s.backend != nil {
		s.persistLocked(e)
	}
	return e, nil
}

// evictLowestLocked removes the lowest promotion-scored non-pinned entry
// in tier, if one exists.
func (s *Store) evictLowestLocked(tier Tier) {
	now := time.Now()
	var worstKey string
	worstScore := 0.0
	found := false
	for k, e := range s.entries[tier] {
		if e.Pinned {
			continue
		}
		refreshScores(e, now)
		if !found || e.PromotionScore < worstScore {
			worstKey, worstScore, found = k, e.PromotionScore, true
		}
	}
	if found {
		delete(s.entries[tier], worstKey)
	}
}

// Retrieve looks up a key. If tier is nil, working, episodic and
// persistent are searched in that order. A hit bumps AccessCount and
// LastAccessed and auto-promotes the entry if its score now clears the
// tier's promotion threshold.
func (s *Store) Retrieve(key string, tier *Tier) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order := []Tier{Working, Episodic, Persistent}
	if tier != nil {
		order = []Tier{*tier}
	}

	now := time.Now()
	for _, t := range order {
		e, ok := s.entries[t][key]
		if !ok {
			continue
		}
		if e.Expired(now) {
			delete(s.entries[t], key)
			continue
		}
		e.AccessCount++
		e.LastAccessed = now
		refreshScores(e, now)
		if cfg, ok := s.tiers[t]; ok && cfg.PromotionThreshold > 0 && e.PromotionScore >= cfg.PromotionThreshold {
			s.promoteLocked(t, e)
		}
		return e, nil
	}
	return nil, coordinator.NewError("memory", "Retrieve", coordinator.ErrNotFound, "key not found", nil)
}

// Search returns entries matching filter, ordered by searchRank
// descending, most-relevant first.
func (s *Store) Search(filter SearchFilter) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tiers := []Tier{Working, Episodic, Persistent}
	if filter.Tier != nil {
		tiers = []Tier{*filter.Tier}
	}

	now := time.Now()
	var out []*Entry
	for _, t := range tiers {
		for _, e := range s.entries[t] {
			if e.Expired(now) {
				continue
			}
			if filter.Category != nil && e.Category != *filter.Category {
				continue
			}
			if filter.AgentID != "" && e.AgentID != filter.AgentID {
				continue
			}
			if e.Importance < filter.MinImportance {
				continue
			}
			if !hasAllTags(e.Tags, filter.Tags) {
				continue
			}
			cp := *e
			out = append(out, &cp)
		}
	}

	sortByRankDesc(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func hasAllTags(have map[string]struct{}, want []string) bool {
	for _, t := range want {
		if _, ok := have[t]; !ok {
			return false
		}
	}
	return true
}

func sortByRankDesc(entries []*Entry) {
	for i := 1; i < len(entries); i++ {
		j := i
		for j > 0 && searchRank(entries[j-1]) < searchRank(entries[j]) {
			entries[j-1], entries[j] = entries[j], entries[j-1]
			j--
		}
	}
}

// Delete removes key from tier (or from whichever tier holds it, if nil).
func (s *Store) Delete(key string, tier *Tier) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	tiers := []Tier{Working, Episodic, Persistent}
	if tier != nil {
		tiers = []Tier{*tier}
	}
	found := false
	for _, t := range tiers {
		if e, ok := s.entries[t][key]; ok {
			delete(s.entries[t], key)
			if t == Persistent && s.backend != nil {
				_ = s.backend.Delete(context.Background(), e.ID)
			}
			found = true
		}
	}
	return found
}

// Promote moves key from fromTier to the next tier up (working->episodic,
// episodic->persistent), boosting importance by 20%. Persistent entries
// cannot be promoted further.
func (s *Store) Promote(key string, fromTier Tier) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[fromTier][key]
	if !ok {
		return false, coordinator.NewError("memory", "Promote", coordinator.ErrNotFound, "key not found in tier", nil)
	}
	if fromTier == Persistent {
		return false, coordinator.NewError("memory", "Promote", coordinator.ErrInvalidConfig, "persistent entries cannot be promoted", nil)
	}
	s.promoteLocked(fromTier, e)
	return true, nil
}

func (s *Store) promoteLocked(fromTier Tier, e *Entry) {
	next := Episodic
	if fromTier == Episodic {
		next = Persistent
	}
	delete(s.entries[fromTier], e.Key)
	e.Importance *= 1.2
	if e.Importance > 1 {
		e.Importance = 1
	}
	e.Tier = next
	if cfg, ok := s.tiers[next]; ok && cfg.DefaultTTL > 0 && e.Expiration == nil {
		t := time.Now().Add(cfg.DefaultTTL)
		e.Expiration = &t
	}
	if next == Persistent {
		e.Expiration = nil
	}
	s.entries[next][e.Key] = e
	if next == Persistent && s.backend != nil {
		s.persistLocked(e)
	}
}

// Demote moves key from fromTier to the next tier down, reducing
// importance by 20%. Demoting from Working deletes the entry outright.
// Pinned entries are never demoted.
func (s *Store) Demote(key string, fromTier Tier) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[fromTier][key]
	if !ok {
		return false, coordinator.NewError("memory", "Demote", coordinator.ErrNotFound, "key not found in tier", nil)
	}
	if e.Pinned {
		return false, coordinator.NewError("memory", "Demote", coordinator.ErrInvalidConfig, "entry is pinned", nil)
	}

	e.Importance *= 0.8
	delete(s.entries[fromTier], key)

	if fromTier == Working {
		return true, nil
	}

	prev := Working
	if fromTier == Persistent {
		prev = Episodic
	}
	e.Tier = prev
	if s.entries[prev] == nil {
		s.entries[prev] = map[string]*Entry{}
	}
	s.entries[prev][key] = e
	if fromTier == Persistent && s.backend != nil {
		_ = s.backend.Delete(context.Background(), e.ID)
	}
	return true, nil
}

// Clear empties tier (or every tier, if nil).
func (s *Store) Clear(tier *Tier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tiers := []Tier{Working, Episodic, Persistent}
	if tier != nil {
		tiers = []Tier{*tier}
	}
	for _, t := range tiers {
		s.entries[t] = map[string]*Entry{}
		if t == Persistent && s.backend != nil {
			_ = s.backend.Clear(context.Background())
		}
	}
}

// Stats reports per-tier and total running statistics.
func (s *Store) Stats() AllStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := AllStats{ByTier: make(map[Tier]TierStats, 3)}
	for _, t := range []Tier{Working, Episodic, Persistent} {
		ts := tierStats(s.entries[t])
		out.ByTier[t] = ts
		out.Total.Count += ts.Count
		out.Total.Size += ts.Size
	}
	if out.Total.Count > 0 {
		var sumImp, sumAcc float64
		for _, t := range []Tier{Working, Episodic, Persistent} {
			ts := out.ByTier[t]
			sumImp += ts.AvgImportance * float64(ts.Count)
			sumAcc += ts.AvgAccessCount * float64(ts.Count)
		}
		out.Total.AvgImportance = sumImp / float64(out.Total.Count)
		out.Total.AvgAccessCount = sumAcc / float64(out.Total.Count)
	}
	return out
}

func tierStats(bucket map[string]*Entry) TierStats {
	ts := TierStats{Count: len(bucket), Size: len(bucket)}
	if len(bucket) == 0 {
		return ts
	}
	var sumImp float64
	var sumAcc int
	for _, e := range bucket {
		sumImp += e.Importance
		sumAcc += e.AccessCount
		if ts.Oldest == nil || e.CreatedAt.Before(*ts.Oldest) {
			t := e.CreatedAt
			ts.Oldest = &t
		}
		if ts.Newest == nil || e.CreatedAt.After(*ts.Newest) {
			t := e.CreatedAt
			ts.Newest = &t
		}
	}
	ts.AvgImportance = sumImp / float64(len(bucket))
	ts.AvgAccessCount = float64(sumAcc) / float64(len(bucket))
	return ts
}

func (s *Store) persistLocked(e *Entry) {
	raw, err := json.Marshal(e)
	if err != nil {
		return
	}
	_ = s.backend.Put(context.Background(), e.ID, raw, nil)
}

// maintenanceLoop runs expiration and auto promotion/demotion on a
// cooperative timer, rescheduling itself rather than using a ticker so a
// slow sweep never overlaps the next one.
func (s *Store) maintenanceLoop() {
	timer := time.NewTimer(s.maintEvery)
	defer timer.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-timer.C:
			s.runMaintenance()
			timer.Reset(s.maintEvery)
		}
	}
}

func (s *Store) runMaintenance() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, t := range []Tier{Working, Episodic, Persistent} {
		for key, e := range s.entries[t] {
			if e.Pinned {
				continue
			}
			if e.Expired(now) {
				delete(s.entries[t], key)
				continue
			}
			refreshScores(e, now)
			cfg := s.tiers[t]
			if cfg.PromotionThreshold > 0 && e.PromotionScore >= cfg.PromotionThreshold && t != Persistent {
				s.promoteLocked(t, e)
				continue
			}
			if e.DemotionScore >= cfg.DemotionThreshold && cfg.DemotionThreshold > 0 {
				delete(s.entries[t], key)
				if t == Working {
					continue
				}
				prev := Episodic
				if t == Episodic {
					prev = Working
				}
				e.Tier = prev
				e.Importance *= 0.8
				s.entries[prev][key] = e
			}
		}
	}
}

// Close stops the maintenance loop and closes the persistent backend.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stopCh)
	if s.backend != nil {
		return s.backend.Close()
	}
	return nil
}
