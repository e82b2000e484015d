package collaborative

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/syeo66/cadence/models"
)

// ItemBased scores unseen songs by their similarity to the songs the user
// rated, liked or played. A candidate keeps its best weight×similarity over
// all anchors: being unlike a tangential anchor costs nothing.
func (f *Filter) ItemBased(p models.UserProfile, catalogue []models.Song, limit int) []models.ScoredSong {
	signals := Signals(p)
	if len(signals) == 0 || limit <= 0 {
		return nil
	}

	byID := lo.KeyBy(catalogue, func(s models.Song) string { return s.ID })
	seen := p.SeenSongs()
	candidates := lo.Filter(catalogue, func(s models.Song, _ int) bool { return !seen.Contains(s.ID) })

	best := make(map[string]models.ScoredSong)
	anchors := 0
	for _, sig := range signals {
		anchor, ok := byID[sig.SongID]
		if !ok {
			continue
		}
		anchors++
		for _, n := range f.engine.Nearest(anchor, candidates, f.config.Neighbors) {
			score := sig.Strength * n.Score
			if current, ok := best[n.Song.ID]; ok && current.Score >= score {
				continue
			}
			best[n.Song.ID] = models.ScoredSong{
				Song:   n.Song,
				Score:  score,
				Reason: fmt.Sprintf("Similar to %q, which you %s", anchor.Title, verb(sig.Type)),
			}
		}
	}

	f.logger.WithFields(logrus.Fields{
		"userId":     p.UserID,
		"signals":    len(signals),
		"anchors":    anchors,
		"candidates": len(best),
	}).Debug("Item-based collaborative filtering")

	return rank(best, limit)
}
