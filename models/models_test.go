package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/syeo66/cadence/errors"
	"github.com/syeo66/cadence/features"
)

func TestSongFeatureComplete(t *testing.T) {
	song := Song{
		ID:     "123",
		Title:  "Test Song",
		Artist: "Test Artist",
		Features: features.NewSet(map[features.Feature]float64{
			features.Energy:       0.8,
			features.Danceability: 0.7,
			features.Valence:      0.3,
		}),
	}

	if song.IsFeatureComplete() {
		t.Error("Song without tempo should not be feature-complete")
	}

	song.Features = song.Features.With(features.Tempo, 128)
	if !song.IsFeatureComplete() {
		t.Error("Song with all core features should be feature-complete")
	}
}

func TestSongDecade(t *testing.T) {
	tests := []struct {
		year     int
		expected int
	}{
		{1987, 1980},
		{2000, 2000},
		{2019, 2010},
		{0, 0},
		{-5, 0},
	}

	for _, tt := range tests {
		if got := (Song{Year: tt.year}).Decade(); got != tt.expected {
			t.Errorf("Decade(%d) = %d, want %d", tt.year, got, tt.expected)
		}
	}
}

func TestSongJSONSerialization(t *testing.T) {
	song := Song{
		ID:         "123",
		Title:      "Test Song",
		Artist:     "Test Artist",
		Album:      "Test Album",
		Year:       2001,
		Features:   features.NewSet(map[features.Feature]float64{features.Energy: 0.5, features.Key: 0}),
		Genres:     []string{"Rock"},
		LastPlayed: time.Now().UTC().Truncate(time.Second),
		PlayCount:  5,
		SkipCount:  2,
	}

	jsonData, err := json.Marshal(song)
	if err != nil {
		t.Fatalf("Failed to marshal song to JSON: %v", err)
	}

	var unmarshaled Song
	if err := json.Unmarshal(jsonData, &unmarshaled); err != nil {
		t.Fatalf("Failed to unmarshal song from JSON: %v", err)
	}

	if unmarshaled.ID != song.ID {
		t.Errorf("Unmarshaled ID = %s, want %s", unmarshaled.ID, song.ID)
	}
	if !unmarshaled.Features.Equal(song.Features) {
		t.Errorf("Unmarshaled features = %v, want %v", unmarshaled.Features.Map(), song.Features.Map())
	}
	if unmarshaled.PlayCount != song.PlayCount {
		t.Errorf("Unmarshaled PlayCount = %d, want %d", unmarshaled.PlayCount, song.PlayCount)
	}
}

func TestParseEventType(t *testing.T) {
	valid := []string{"like", "rating", "play", "skip", " PLAY "}
	for _, v := range valid {
		if _, err := ParseEventType(v); err != nil {
			t.Errorf("ParseEventType(%q) returned error: %v", v, err)
		}
	}

	if _, err := ParseEventType("share"); !errors.Is(err, errors.ErrUnknownEventType) {
		t.Errorf("Expected ErrUnknownEventType, got %v", err)
	}
}

func TestPreferenceEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   PreferenceEvent
		wantErr *errors.CadenceError
	}{
		{"valid like", PreferenceEvent{UserID: "u", SongID: "s", Type: EventLike}, nil},
		{"valid rating", PreferenceEvent{UserID: "u", SongID: "s", Type: EventRating, Value: 4}, nil},
		{"valid play with duration", PreferenceEvent{UserID: "u", SongID: "s", Type: EventPlay, Value: 180}, nil},
		{"rating too high", PreferenceEvent{UserID: "u", SongID: "s", Type: EventRating, Value: 6}, errors.ErrInvalidRating},
		{"rating zero", PreferenceEvent{UserID: "u", SongID: "s", Type: EventRating}, errors.ErrInvalidRating},
		{"unknown type", PreferenceEvent{UserID: "u", SongID: "s", Type: "share"}, errors.ErrUnknownEventType},
		{"missing user", PreferenceEvent{SongID: "s", Type: EventLike}, errors.ErrMissingParameter},
		{"missing song", PreferenceEvent{UserID: "u", Type: EventLike}, errors.ErrMissingParameter},
		{"negative duration", PreferenceEvent{UserID: "u", SongID: "s", Type: EventPlay, Value: -1}, errors.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
			if !errors.IsMalformedInput(err) {
				t.Errorf("Expected malformed input error, got %v", err)
			}
		})
	}
}

func TestProfiles(t *testing.T) {
	events := []PreferenceEvent{
		{UserID: "u2", SongID: "a", Type: EventLike},
		{UserID: "u1", SongID: "a", Type: EventPlay},
		{UserID: "u1", SongID: "a", Type: EventRating, Value: 5},
		{UserID: "u1", SongID: "b", Type: EventSkip},
		{UserID: "u1", SongID: "c", Type: EventLike},
	}

	p := ProfileFromEvents("u1", events)
	if len(p.Interactions) != 2 || len(p.Likes) != 1 || len(p.Ratings) != 1 {
		t.Errorf("Unexpected profile buckets: %+v", p)
	}
	if p.IsColdStart() {
		t.Error("User with events should not be cold start")
	}
	if seen := p.SeenSongs(); seen.Cardinality() != 3 || !seen.Contains("b") {
		t.Errorf("Unexpected seen songs: %v", seen)
	}

	profiles := GroupProfiles(events)
	if len(profiles) != 2 || profiles[0].UserID != "u1" || profiles[1].UserID != "u2" {
		t.Errorf("Profiles should be grouped and ordered by user: %+v", profiles)
	}

	if !ProfileFromEvents("nobody", events).IsColdStart() {
		t.Error("User without events should be cold start")
	}
}
