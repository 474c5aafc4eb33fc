package memory

import "time"

// normalize caps accessCount/10 at 1, per the promotion-score formula.
func normalize(accessCount int) float64 {
	v := float64(accessCount) / 10
	if v > 1 {
		return 1
	}
	return v
}

// recencyBoost decays linearly from 1 at now to 0 after 24h since last
// access.
func recencyBoost(lastAccessed, now time.Time) float64 {
	elapsed := now.Sub(lastAccessed)
	if elapsed <= 0 {
		return 1
	}
	const window = 24 * time.Hour
	if elapsed >= window {
		return 0
	}
	return 1 - float64(elapsed)/float64(window)
}

// promotionScore = 0.5*importance + 0.3*normalize(accessCount) + 0.2*recencyBoost
func promotionScore(e *Entry, now time.Time) float64 {
	return 0.5*e.Importance + 0.3*normalize(e.AccessCount) + 0.2*recencyBoost(e.LastAccessed, now)
}

// stalenessPenalty grows with time since last access, scaled by the
// entry's decay coefficient; at decay=1 it reaches 1 after 24h idle.
func stalenessPenalty(e *Entry, now time.Time) float64 {
	elapsed := now.Sub(e.LastAccessed)
	if elapsed <= 0 {
		return 0
	}
	const window = 24 * time.Hour
	frac := float64(elapsed) / float64(window)
	if frac > 1 {
		frac = 1
	}
	return frac * e.Decay
}

// demotionScore = 1 - promotionScore - stalenessPenalty, floored at 0.
func demotionScore(e *Entry, now time.Time) float64 {
	s := 1 - promotionScore(e, now) - stalenessPenalty(e, now)
	if s < 0 {
		return 0
	}
	return s
}

// refreshScores recomputes both derived scalars in place.
func refreshScores(e *Entry, now time.Time) {
	e.PromotionScore = promotionScore(e, now)
	e.DemotionScore = demotionScore(e, now)
}

// searchRank is the ordering key Search() uses: 0.7*importance +
// 0.3*normalize(accessCount), descending.
func searchRank(e *Entry) float64 {
	return 0.7*e.Importance + 0.3*normalize(e.AccessCount)
}
