package database

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/syeo66/cadence/errors"
	"github.com/syeo66/cadence/models"
)

const selectEvents = `SELECT id, user_id, song_id, event_type, value, timestamp FROM preference_events`

// RecordEvent stores a preference event and updates the song's aggregate
// counters in the same transaction.
func (db *DB) RecordEvent(ctx context.Context, event models.PreferenceEvent) (models.PreferenceEvent, error) {
	if err := event.Validate(); err != nil {
		return models.PreferenceEvent{}, err
	}
	event.Type, _ = models.ParseEventType(string(event.Type))
	event.Timestamp = event.Timestamp.UTC()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return models.PreferenceEvent{}, errors.Wrap(err, errors.CategoryDatabase, "TRANSACTION_FAILED", "failed to begin transaction")
	}
	defer tx.Rollback()

	var update string
	args := []interface{}{}
	switch event.Type {
	case models.EventPlay:
		update = `play_count = play_count + 1, last_played = ?`
		args = append(args, event.Timestamp)
	case models.EventSkip:
		update = `skip_count = skip_count + 1`
	case models.EventLike:
		update = `like_count = like_count + 1`
	case models.EventRating:
		update = `rating_sum = rating_sum + ?, rating_count = rating_count + 1`
		args = append(args, event.Value)
	}
	args = append(args, event.SongID)

	result, err := tx.ExecContext(ctx, `UPDATE songs SET `+update+` WHERE id = ?`, args...)
	if err != nil {
		return models.PreferenceEvent{}, errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "failed to update song counters").
			WithContext("song_id", event.SongID)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return models.PreferenceEvent{}, errors.ErrSongNotFound.WithContext("songId", event.SongID)
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO preference_events (user_id, song_id, event_type, value, timestamp) VALUES (?, ?, ?, ?, ?)`,
		event.UserID, event.SongID, string(event.Type), event.Value, event.Timestamp)
	if err != nil {
		return models.PreferenceEvent{}, errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "failed to record preference event").
			WithContext("user_id", event.UserID).
			WithContext("song_id", event.SongID).
			WithContext("event_type", event.Type)
	}
	event.ID, _ = res.LastInsertId()

	if err := tx.Commit(); err != nil {
		return models.PreferenceEvent{}, errors.Wrap(err, errors.CategoryDatabase, "TRANSACTION_FAILED", "failed to commit transaction")
	}

	db.logger.WithFields(logrus.Fields{
		"userId":    event.UserID,
		"songId":    event.SongID,
		"eventType": event.Type,
	}).Debug("Recorded preference event")
	return event, nil
}

// GetInteractions returns the user's plays and skips, oldest first.
func (db *DB) GetInteractions(ctx context.Context, userID string) ([]models.PreferenceEvent, error) {
	return db.userEvents(ctx, userID, models.EventPlay, models.EventSkip)
}

func (db *DB) GetLikes(ctx context.Context, userID string) ([]models.PreferenceEvent, error) {
	return db.userEvents(ctx, userID, models.EventLike)
}

func (db *DB) GetRatings(ctx context.Context, userID string) ([]models.PreferenceEvent, error) {
	return db.userEvents(ctx, userID, models.EventRating)
}

// GetAllEvents returns every event of every user.
func (db *DB) GetAllEvents(ctx context.Context) ([]models.PreferenceEvent, error) {
	return db.queryEvents(ctx, ` ORDER BY id`)
}

func (db *DB) userEvents(ctx context.Context, userID string, types ...models.EventType) ([]models.PreferenceEvent, error) {
	if userID == "" {
		return nil, errors.ErrMissingParameter.WithContext("parameter", "userId")
	}
	placeholders := make([]string, len(types))
	args := []interface{}{userID}
	for i, t := range types {
		placeholders[i] = "?"
		args = append(args, string(t))
	}
	return db.queryEvents(ctx, ` WHERE user_id = ? AND event_type IN (`+strings.Join(placeholders, ",")+`) ORDER BY timestamp, id`, args...)
}

func (db *DB) queryEvents(ctx context.Context, clause string, args ...interface{}) ([]models.PreferenceEvent, error) {
	rows, err := db.conn.QueryContext(ctx, selectEvents+clause, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "failed to query preference events")
	}
	defer rows.Close()

	events := []models.PreferenceEvent{}
	for rows.Next() {
		var e models.PreferenceEvent
		var eventType string
		if err := rows.Scan(&e.ID, &e.UserID, &e.SongID, &eventType, &e.Value, &e.Timestamp); err != nil {
			return nil, errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "failed to scan preference event")
		}
		e.Type = models.EventType(eventType)
		e.Timestamp = e.Timestamp.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "error occurred during event iteration")
	}
	return events, nil
}
