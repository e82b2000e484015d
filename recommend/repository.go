package recommend

import (
	"context"

	"github.com/syeo66/cadence/features"
	"github.com/syeo66/cadence/models"
)

type SongRepository interface {
	GetSongs(ctx context.Context, filter models.SongFilter) ([]models.Song, error)
	GetFeatureCompleteSongs(ctx context.Context) ([]models.Song, error)
	// GetSongByID returns errors.ErrSongNotFound for unknown IDs.
	GetSongByID(ctx context.Context, id string) (models.Song, error)
}

type EventRepository interface {
	GetInteractions(ctx context.Context, userID string) ([]models.PreferenceEvent, error)
	GetLikes(ctx context.Context, userID string) ([]models.PreferenceEvent, error)
	GetRatings(ctx context.Context, userID string) ([]models.PreferenceEvent, error)
	GetAllEvents(ctx context.Context) ([]models.PreferenceEvent, error)
}

// SongWriter persists completion results. UpdateSongFeatures only touches
// the features present in the given set.
type SongWriter interface {
	UpdateSongFeatures(ctx context.Context, songID string, partial features.Set) error
	SetSongGenres(ctx context.Context, songID string, genres []string) error
	SetSongMoods(ctx context.Context, songID string, moods []string) error
}

// EventRecorder stores a validated preference event and keeps the song's
// aggregate counters in step.
type EventRecorder interface {
	RecordEvent(ctx context.Context, event models.PreferenceEvent) (models.PreferenceEvent, error)
}

// SongImporter upserts catalogue entries, keeping aggregate counters of
// songs that already exist.
type SongImporter interface {
	StoreSongs(ctx context.Context, songs []models.Song) error
}

// Store is everything the service needs from persistence.
type Store interface {
	SongRepository
	SongImporter
	EventRepository
	SongWriter
	EventRecorder
}
