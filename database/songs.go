package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/syeo66/cadence/errors"
	"github.com/syeo66/cadence/features"
	"github.com/syeo66/cadence/models"
)

const songColumns = `id, title, artist, album, year`

const counterColumns = `play_count, skip_count, like_count, rating_sum, rating_count, last_played`

func selectSongs() string {
	return `SELECT ` + songColumns + `, ` + strings.Join(featureColumns(), ", ") + `, ` + counterColumns + ` FROM songs`
}

// StoreSongs inserts or updates catalogue entries. Aggregate counters of
// existing songs are preserved; genres and moods are replaced when given.
func (db *DB) StoreSongs(ctx context.Context, songs []models.Song) error {
	for _, song := range songs {
		if song.ID == "" {
			return errors.ErrMissingParameter.WithContext("parameter", "id")
		}
		if err := song.Features.Validate(); err != nil {
			return err
		}
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.CategoryDatabase, "TRANSACTION_FAILED", "failed to begin transaction")
	}
	defer tx.Rollback()

	cols := featureColumns()
	updates := make([]string, len(cols))
	for i, col := range cols {
		updates[i] = fmt.Sprintf("%s = excluded.%s", col, col)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO songs (`+songColumns+`, `+strings.Join(cols, ", ")+`)
		VALUES (?, ?, ?, ?, ?`+strings.Repeat(", ?", len(cols))+`)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, artist = excluded.artist, album = excluded.album,
		year = excluded.year, `+strings.Join(updates, ", "))
	if err != nil {
		return errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "failed to prepare song insert statement")
	}
	defer stmt.Close()

	for _, song := range songs {
		args := []interface{}{song.ID, song.Title, song.Artist, song.Album, song.Year}
		args = append(args, featureArgs(song.Features)...)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "failed to store song").
				WithContext("songId", song.ID)
		}
		if len(song.Genres) > 0 {
			if err := replaceTags(ctx, tx, "song_genres", "genre", song.ID, song.Genres); err != nil {
				return err
			}
		}
		if len(song.Moods) > 0 {
			if err := replaceTags(ctx, tx, "song_moods", "mood", song.ID, song.Moods); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.CategoryDatabase, "TRANSACTION_FAILED", "failed to commit transaction").
			WithContext("songs", len(songs))
	}

	db.logger.WithField("songs", len(songs)).Debug("Stored songs")
	return nil
}

// featureArgs returns one argument per feature column, nil for missing ones.
func featureArgs(s features.Set) []interface{} {
	all := features.All()
	out := make([]interface{}, len(all))
	for i, f := range all {
		if v, ok := s.Get(f); ok {
			out[i] = v
		}
	}
	return out
}

// GetSongs returns the songs matching filter ordered by ID, with genres and
// moods attached.
func (db *DB) GetSongs(ctx context.Context, filter models.SongFilter) ([]models.Song, error) {
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, errors.ErrInvalidInput.
			WithContext("limit", filter.Limit).
			WithContext("offset", filter.Offset)
	}

	var where []string
	var args []interface{}
	if len(filter.IDs) > 0 {
		placeholders := make([]string, len(filter.IDs))
		for i, id := range filter.IDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		where = append(where, "id IN ("+strings.Join(placeholders, ",")+")")
	}
	if filter.Artist != "" {
		where = append(where, "artist = ? COLLATE NOCASE")
		args = append(args, filter.Artist)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	limit := -1
	if filter.Limit > 0 {
		limit = filter.Limit
	}

	return db.querySongs(ctx, clause+" ORDER BY id LIMIT ? OFFSET ?", append(args, limit, filter.Offset)...)
}

// GetFeatureCompleteSongs returns every song whose core features are all
// present and non-zero.
func (db *DB) GetFeatureCompleteSongs(ctx context.Context) ([]models.Song, error) {
	conds := make([]string, len(features.Core))
	for i, f := range features.Core {
		conds[i] = fmt.Sprintf("(%[1]s IS NOT NULL AND %[1]s != 0)", f.String())
	}
	return db.querySongs(ctx, " WHERE "+strings.Join(conds, " AND ")+" ORDER BY id")
}

func (db *DB) GetSongByID(ctx context.Context, id string) (models.Song, error) {
	if id == "" {
		return models.Song{}, errors.ErrMissingParameter.WithContext("parameter", "songId")
	}
	songs, err := db.querySongs(ctx, " WHERE id = ?", id)
	if err != nil {
		return models.Song{}, err
	}
	if len(songs) == 0 {
		return models.Song{}, errors.ErrSongNotFound.WithContext("songId", id)
	}
	return songs[0], nil
}

// GetSongCount returns the size of the catalogue.
func (db *DB) GetSongCount(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM songs`).Scan(&count); err != nil {
		return 0, errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "failed to get song count")
	}
	return count, nil
}

// querySongs runs selectSongs with the given clause and loads the tags of
// the matched songs in one query per tag table.
func (db *DB) querySongs(ctx context.Context, clause string, args ...interface{}) ([]models.Song, error) {
	rows, err := db.conn.QueryContext(ctx, selectSongs()+clause, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "failed to query songs")
	}
	defer rows.Close()

	songs := []models.Song{}
	index := make(map[string]int)
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "failed to scan song")
		}
		index[song.ID] = len(songs)
		songs = append(songs, song)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "error occurred during song iteration")
	}
	if len(songs) == 0 {
		return songs, nil
	}

	subquery := `SELECT id FROM songs` + clause
	if err := db.attachTags(ctx, "song_genres", "genre", subquery, args, func(i int, tag string) {
		songs[i].Genres = append(songs[i].Genres, tag)
	}, index); err != nil {
		return nil, err
	}
	if err := db.attachTags(ctx, "song_moods", "mood", subquery, args, func(i int, tag string) {
		songs[i].Moods = append(songs[i].Moods, tag)
	}, index); err != nil {
		return nil, err
	}
	return songs, nil
}

func (db *DB) attachTags(ctx context.Context, table, column, subquery string, args []interface{}, add func(int, string), index map[string]int) error {
	query := fmt.Sprintf(`SELECT song_id, %s FROM %s WHERE song_id IN (%s) ORDER BY song_id, %s`, column, table, subquery, column)
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "failed to query song tags").
			WithContext("table", table)
	}
	defer rows.Close()

	for rows.Next() {
		var songID, tag string
		if err := rows.Scan(&songID, &tag); err != nil {
			db.logger.WithError(err).WithField("table", table).Error("Failed to scan song tag")
			continue
		}
		if i, ok := index[songID]; ok {
			add(i, tag)
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "error occurred during tag iteration").
			WithContext("table", table)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSong(row scanner) (models.Song, error) {
	var song models.Song
	values := make([]sql.NullFloat64, features.Count)
	var ratingSum float64
	var lastPlayed sql.NullTime

	dest := []interface{}{&song.ID, &song.Title, &song.Artist, &song.Album, &song.Year}
	for i := range values {
		dest = append(dest, &values[i])
	}
	dest = append(dest, &song.PlayCount, &song.SkipCount, &song.LikeCount, &ratingSum, &song.RatingCount, &lastPlayed)
	if err := row.Scan(dest...); err != nil {
		return models.Song{}, err
	}

	present := make(map[features.Feature]float64)
	for i, f := range features.All() {
		if values[i].Valid {
			present[f] = values[i].Float64
		}
	}
	song.Features = features.NewSet(present)
	if song.RatingCount > 0 {
		song.AverageRating = ratingSum / float64(song.RatingCount)
	}
	if lastPlayed.Valid {
		song.LastPlayed = lastPlayed.Time.UTC()
	}
	return song, nil
}

// UpdateSongFeatures writes the features present in partial and leaves the
// other columns untouched. Out-of-bounds values are rejected.
func (db *DB) UpdateSongFeatures(ctx context.Context, songID string, partial features.Set) error {
	if songID == "" {
		return errors.ErrMissingParameter.WithContext("parameter", "songId")
	}
	if err := partial.Validate(); err != nil {
		return err
	}
	present := partial.Present()
	if len(present) == 0 {
		return nil
	}

	sets := make([]string, len(present))
	args := make([]interface{}, 0, len(present)+1)
	for i, f := range present {
		v, _ := partial.Get(f)
		sets[i] = f.String() + " = ?"
		args = append(args, v)
	}
	args = append(args, songID)

	res, err := db.conn.ExecContext(ctx, `UPDATE songs SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "failed to update song features").
			WithContext("songId", songID)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.ErrSongNotFound.WithContext("songId", songID)
	}

	db.logger.WithFields(logrus.Fields{
		"songId":   songID,
		"features": features.Names(present),
	}).Debug("Updated song features")
	return nil
}

func (db *DB) SetSongGenres(ctx context.Context, songID string, genres []string) error {
	return db.setTags(ctx, "song_genres", "genre", songID, genres)
}

func (db *DB) SetSongMoods(ctx context.Context, songID string, moods []string) error {
	return db.setTags(ctx, "song_moods", "mood", songID, moods)
}

func (db *DB) setTags(ctx context.Context, table, column, songID string, tags []string) error {
	if songID == "" {
		return errors.ErrMissingParameter.WithContext("parameter", "songId")
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.CategoryDatabase, "TRANSACTION_FAILED", "failed to begin transaction")
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM songs WHERE id = ?`, songID).Scan(&exists); err != nil {
		return errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "failed to look up song").
			WithContext("songId", songID)
	}
	if exists == 0 {
		return errors.ErrSongNotFound.WithContext("songId", songID)
	}

	if err := replaceTags(ctx, tx, table, column, songID, tags); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.CategoryDatabase, "TRANSACTION_FAILED", "failed to commit transaction").
			WithContext("songId", songID)
	}
	return nil
}

func replaceTags(ctx context.Context, tx *sql.Tx, table, column, songID string, tags []string) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE song_id = ?`, table), songID); err != nil {
		return errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "failed to clear song tags").
			WithContext("table", table).
			WithContext("songId", songID)
	}
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT OR IGNORE INTO %s (song_id, %s) VALUES (?, ?)`, table, column), songID, tag)
		if err != nil {
			return errors.Wrap(err, errors.CategoryDatabase, "QUERY_FAILED", "failed to insert song tag").
				WithContext("table", table).
				WithContext("songId", songID)
		}
	}
	return nil
}
