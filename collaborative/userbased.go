package collaborative

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/syeo66/cadence/features"
	"github.com/syeo66/cadence/models"
	"github.com/syeo66/cadence/topk"
)

// ProfileVector is the interaction-weighted mean of the normalized feature
// vectors of the songs behind a user's signals.
func ProfileVector(p models.UserProfile, byID map[string]models.Song) features.Vector {
	var acc features.Accumulator
	for _, sig := range Signals(p) {
		if song, ok := byID[sig.SongID]; ok {
			acc.AddVector(song.Features.Normalize(), sig.Strength)
		}
	}
	return acc.MeanVector()
}

type neighbour struct {
	profile    models.UserProfile
	similarity float64
}

// UserBased finds users whose profile vectors are close to the target's and
// surfaces the songs they endorsed that the target has not seen. A song
// scores Σ sim×strength / Σ sim over the neighbours that endorsed it.
func (f *Filter) UserBased(p models.UserProfile, others []models.UserProfile, catalogue []models.Song, limit int) []models.ScoredSong {
	if p.IsColdStart() || limit <= 0 {
		return nil
	}
	byID := lo.KeyBy(catalogue, func(s models.Song) string { return s.ID })
	target := ProfileVector(p, byID)
	if target.Len() == 0 {
		return nil
	}

	filter := topk.New[neighbour](f.config.UserNeighbors)
	for _, other := range others {
		if other.UserID == p.UserID {
			continue
		}
		sim := target.Cosine(ProfileVector(other, byID))
		if sim < f.config.MinUserSimilarity || sim <= 0 {
			continue
		}
		filter.Push(neighbour{profile: other, similarity: sim}, other.UserID, sim)
	}
	neighbours := filter.PopAllValues()

	seen := p.SeenSongs()
	weighted := make(map[string]float64)
	sims := make(map[string]float64)
	endorsers := make(map[string]int)
	for _, n := range neighbours {
		strongest := make(map[string]float64)
		for _, sig := range Signals(n.profile) {
			if sig.Strength > strongest[sig.SongID] {
				strongest[sig.SongID] = sig.Strength
			}
		}
		for songID, strength := range strongest {
			if seen.Contains(songID) {
				continue
			}
			if _, ok := byID[songID]; !ok {
				continue
			}
			weighted[songID] += n.similarity * strength
			sims[songID] += n.similarity
			endorsers[songID]++
		}
	}

	scored := make(map[string]models.ScoredSong, len(weighted))
	for songID, w := range weighted {
		reason := "Enjoyed by a listener with similar taste"
		if endorsers[songID] > 1 {
			reason = fmt.Sprintf("Enjoyed by %d listeners with similar taste", endorsers[songID])
		}
		scored[songID] = models.ScoredSong{Song: byID[songID], Score: w / sims[songID], Reason: reason}
	}

	f.logger.WithFields(logrus.Fields{
		"userId":     p.UserID,
		"neighbours": len(neighbours),
		"candidates": len(scored),
	}).Debug("User-based collaborative filtering")

	return rank(scored, limit)
}
