package models

import (
	"sort"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/syeo66/cadence/errors"
	"github.com/syeo66/cadence/features"
)

type Song struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Artist        string       `json:"artist"`
	Album         string       `json:"album"`
	Year          int          `json:"year,omitempty"`
	Features      features.Set `json:"features"`
	Genres        []string     `json:"genres,omitempty"`
	Moods         []string     `json:"moods,omitempty"`
	PlayCount     int          `json:"playCount"`
	SkipCount     int          `json:"skipCount"`
	LikeCount     int          `json:"likeCount"`
	AverageRating float64      `json:"averageRating"`
	RatingCount   int          `json:"ratingCount"`
	LastPlayed    time.Time    `json:"lastPlayed"`
}

// IsFeatureComplete reports whether the song may be used as training data.
func (s Song) IsFeatureComplete() bool {
	return s.Features.IsComplete()
}

// HasEngagement reports whether any aggregate counter carries data.
func (s Song) HasEngagement() bool {
	return s.PlayCount > 0 || s.SkipCount > 0 || s.LikeCount > 0 || s.RatingCount > 0
}

// Decade returns the release decade (1987 -> 1980), or 0 when unknown.
func (s Song) Decade() int {
	if s.Year <= 0 {
		return 0
	}
	return s.Year - s.Year%10
}

// SongFilter narrows a catalogue query. The zero value selects every song.
// Results are ordered by song ID so Limit/Offset paging is stable.
type SongFilter struct {
	IDs    []string
	Artist string
	Limit  int
	Offset int
}

type EventType string

const (
	EventLike   EventType = "like"
	EventRating EventType = "rating"
	EventPlay   EventType = "play"
	EventSkip   EventType = "skip"
)

// ParseEventType rejects anything but the four known event types.
func ParseEventType(s string) (EventType, error) {
	switch t := EventType(strings.ToLower(strings.TrimSpace(s))); t {
	case EventLike, EventRating, EventPlay, EventSkip:
		return t, nil
	default:
		return "", errors.ErrUnknownEventType.WithContext("eventType", s)
	}
}

// PreferenceEvent is one like, rating or play/skip interaction. Several events
// may exist for the same user and song; each is an independent signal.
type PreferenceEvent struct {
	ID        int64     `json:"id,omitempty"`
	UserID    string    `json:"userId"`
	SongID    string    `json:"songId"`
	Type      EventType `json:"type"`
	Value     float64   `json:"value,omitempty"` // rating 1-5, or play duration in seconds
	Timestamp time.Time `json:"timestamp"`
}

// Validate fails fast on malformed events.
func (e PreferenceEvent) Validate() error {
	if e.UserID == "" {
		return errors.ErrMissingParameter.WithContext("parameter", "userId")
	}
	if e.SongID == "" {
		return errors.ErrMissingParameter.WithContext("parameter", "songId")
	}
	if _, err := ParseEventType(string(e.Type)); err != nil {
		return err
	}
	if e.Type == EventRating && (e.Value < 1 || e.Value > 5) {
		return errors.ErrInvalidRating.WithContext("rating", e.Value)
	}
	if e.Value < 0 {
		return errors.ErrInvalidInput.WithContext("field", "value").WithContext("value", e.Value)
	}
	return nil
}

// Source tags attached to recommendation results.
const (
	SourceCollaborative = "collaborative"
	SourceContent       = "content-based"
	SourceEnhanced      = "ai-enhanced"
	SourcePopularity    = "popularity"
	SourceColdStart     = "cold-start"
	SourceSimilar       = "similar"
)

type RecommendationResult struct {
	Song      Song     `json:"song"`
	Score     float64  `json:"score"`
	Sources   []string `json:"sources"`
	Rationale string   `json:"rationale"`
}

// ScoredSong is the output of a single strategy before merging.
type ScoredSong struct {
	Song   Song    `json:"song"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason,omitempty"`
}

// UserProfile is the read-only event snapshot of one user that the scoring
// strategies work on.
type UserProfile struct {
	UserID       string            `json:"userId"`
	Interactions []PreferenceEvent `json:"interactions"` // plays and skips
	Likes        []PreferenceEvent `json:"likes"`
	Ratings      []PreferenceEvent `json:"ratings"`
}

// ProfileFromEvents sorts a user's events into a profile. Events of other
// users are ignored.
func ProfileFromEvents(userID string, events []PreferenceEvent) UserProfile {
	p := UserProfile{UserID: userID}
	for _, e := range events {
		if e.UserID != userID {
			continue
		}
		switch e.Type {
		case EventPlay, EventSkip:
			p.Interactions = append(p.Interactions, e)
		case EventLike:
			p.Likes = append(p.Likes, e)
		case EventRating:
			p.Ratings = append(p.Ratings, e)
		}
	}
	return p
}

// GroupProfiles builds one profile per user, ordered by user ID.
func GroupProfiles(events []PreferenceEvent) []UserProfile {
	byUser := make(map[string][]PreferenceEvent)
	var order []string
	for _, e := range events {
		if _, ok := byUser[e.UserID]; !ok {
			order = append(order, e.UserID)
		}
		byUser[e.UserID] = append(byUser[e.UserID], e)
	}
	sort.Strings(order)
	out := make([]UserProfile, 0, len(order))
	for _, id := range order {
		out = append(out, ProfileFromEvents(id, byUser[id]))
	}
	return out
}

// IsColdStart reports a user without any interaction, like or rating.
func (p UserProfile) IsColdStart() bool {
	return len(p.Interactions) == 0 && len(p.Likes) == 0 && len(p.Ratings) == 0
}

// Events returns every event of the profile.
func (p UserProfile) Events() []PreferenceEvent {
	out := make([]PreferenceEvent, 0, len(p.Interactions)+len(p.Likes)+len(p.Ratings))
	out = append(out, p.Interactions...)
	out = append(out, p.Likes...)
	return append(out, p.Ratings...)
}

// SeenSongs returns the IDs of every song the user has an event for.
func (p UserProfile) SeenSongs() mapset.Set[string] {
	seen := mapset.NewThreadUnsafeSet[string]()
	for _, e := range p.Events() {
		seen.Add(e.SongID)
	}
	return seen
}
