package collaborative

import (
	"math"
	"sort"

	"github.com/syeo66/cadence/models"
)

const (
	playSignalCap = 5
	mfPlayCap     = 10
)

// Signal is one positive anchor of a user on a song. A song can carry
// several signals, one per event type.
type Signal struct {
	SongID   string
	Type     models.EventType
	Strength float64
}

// Signals derives the anchors of a profile: rating value/5, like 1 and
// min(plays, 5)/5. Skips never anchor. Every rating anchors, a low one just
// weakly; the content filter keeps only ratings of 4 and up.
func Signals(p models.UserProfile) []Signal {
	var out []Signal
	for _, r := range p.Ratings {
		if r.Value <= 0 {
			continue
		}
		out = append(out, Signal{SongID: r.SongID, Type: models.EventRating, Strength: math.Min(r.Value/5, 1)})
	}
	likes := make(map[string]bool)
	for _, l := range p.Likes {
		if !likes[l.SongID] {
			likes[l.SongID] = true
			out = append(out, Signal{SongID: l.SongID, Type: models.EventLike, Strength: 1})
		}
	}
	for songID, n := range playCounts(p.Interactions) {
		out = append(out, Signal{
			SongID:   songID,
			Type:     models.EventPlay,
			Strength: math.Min(float64(n), playSignalCap) / playSignalCap,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SongID != out[j].SongID {
			return out[i].SongID < out[j].SongID
		}
		return out[i].Type < out[j].Type
	})
	return out
}

func playCounts(events []models.PreferenceEvent) map[string]int {
	counts := make(map[string]int)
	for _, e := range events {
		if e.Type == models.EventPlay {
			counts[e.SongID]++
		}
	}
	return counts
}

// ExplicitSignals counts likes and ratings, the signals that make item- and
// user-based neighbourhoods meaningful.
func ExplicitSignals(p models.UserProfile) int {
	return len(p.Likes) + len(p.Ratings)
}

func verb(t models.EventType) string {
	switch t {
	case models.EventRating:
		return "rated"
	case models.EventLike:
		return "liked"
	default:
		return "played"
	}
}
