package recommend

import (
	"context"
	"sort"
	"sync"

	"github.com/syeo66/cadence/errors"
	"github.com/syeo66/cadence/features"
	"github.com/syeo66/cadence/models"
)

// memoryStore is an in-memory Store with call counters and error injection.
type memoryStore struct {
	mu       sync.Mutex
	songs    map[string]models.Song
	events   []models.PreferenceEvent
	calls    map[string]int
	failRead error
	failSong string
}

func newMemoryStore(songs ...models.Song) *memoryStore {
	s := &memoryStore{songs: make(map[string]models.Song), calls: make(map[string]int)}
	for _, song := range songs {
		s.songs[song.ID] = song
	}
	return s
}

func (s *memoryStore) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *memoryStore) hit(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[name]++
	return s.failRead
}

func (s *memoryStore) sorted() []models.Song {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Song, 0, len(s.songs))
	for _, song := range s.songs {
		out = append(out, song)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memoryStore) GetSongs(_ context.Context, filter models.SongFilter) ([]models.Song, error) {
	if err := s.hit("GetSongs"); err != nil {
		return nil, err
	}
	all := s.sorted()
	if filter.Offset >= len(all) {
		return nil, nil
	}
	all = all[filter.Offset:]
	if filter.Limit > 0 && len(all) > filter.Limit {
		all = all[:filter.Limit]
	}
	return all, nil
}

func (s *memoryStore) GetFeatureCompleteSongs(context.Context) ([]models.Song, error) {
	if err := s.hit("GetFeatureCompleteSongs"); err != nil {
		return nil, err
	}
	var out []models.Song
	for _, song := range s.sorted() {
		if song.IsFeatureComplete() {
			out = append(out, song)
		}
	}
	return out, nil
}

func (s *memoryStore) GetSongByID(_ context.Context, id string) (models.Song, error) {
	if err := s.hit("GetSongByID"); err != nil {
		return models.Song{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	song, ok := s.songs[id]
	if !ok {
		return models.Song{}, errors.ErrSongNotFound.WithContext("songId", id)
	}
	return song, nil
}

func (s *memoryStore) eventsOf(userID string, types ...models.EventType) []models.PreferenceEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PreferenceEvent
	for _, e := range s.events {
		if e.UserID != userID {
			continue
		}
		for _, t := range types {
			if e.Type == t {
				out = append(out, e)
			}
		}
	}
	return out
}

func (s *memoryStore) GetInteractions(_ context.Context, userID string) ([]models.PreferenceEvent, error) {
	if err := s.hit("GetInteractions"); err != nil {
		return nil, err
	}
	return s.eventsOf(userID, models.EventPlay, models.EventSkip), nil
}

func (s *memoryStore) GetLikes(_ context.Context, userID string) ([]models.PreferenceEvent, error) {
	if err := s.hit("GetLikes"); err != nil {
		return nil, err
	}
	return s.eventsOf(userID, models.EventLike), nil
}

func (s *memoryStore) GetRatings(_ context.Context, userID string) ([]models.PreferenceEvent, error) {
	if err := s.hit("GetRatings"); err != nil {
		return nil, err
	}
	return s.eventsOf(userID, models.EventRating), nil
}

func (s *memoryStore) GetAllEvents(context.Context) ([]models.PreferenceEvent, error) {
	if err := s.hit("GetAllEvents"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PreferenceEvent(nil), s.events...), nil
}

func (s *memoryStore) update(id string, fn func(*models.Song)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["write"]++
	if id == s.failSong {
		return errors.ErrDatabaseQuery.WithContext("songId", id)
	}
	song, ok := s.songs[id]
	if !ok {
		return errors.ErrSongNotFound.WithContext("songId", id)
	}
	fn(&song)
	s.songs[id] = song
	return nil
}

func (s *memoryStore) UpdateSongFeatures(_ context.Context, id string, partial features.Set) error {
	return s.update(id, func(song *models.Song) { song.Features = song.Features.Merge(partial) })
}

func (s *memoryStore) SetSongGenres(_ context.Context, id string, genres []string) error {
	return s.update(id, func(song *models.Song) { song.Genres = genres })
}

func (s *memoryStore) SetSongMoods(_ context.Context, id string, moods []string) error {
	return s.update(id, func(song *models.Song) { song.Moods = moods })
}

func (s *memoryStore) RecordEvent(_ context.Context, e models.PreferenceEvent) (models.PreferenceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = int64(len(s.events) + 1)
	s.events = append(s.events, e)
	return e, nil
}

func (s *memoryStore) StoreSongs(_ context.Context, songs []models.Song) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["StoreSongs"]++
	for _, song := range songs {
		s.songs[song.ID] = song
	}
	return nil
}
