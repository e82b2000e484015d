package database

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/syeo66/cadence/errors"
	"github.com/syeo66/cadence/features"
)

// Database connection pool constants
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 30 * time.Minute
	DefaultConnMaxIdleTime = 5 * time.Minute
	DefaultHealthCheck     = true
	HealthCheckInterval    = 30 * time.Second
)

type DB struct {
	conn         *sql.DB
	logger       *logrus.Logger
	mu           sync.RWMutex
	pool         *ConnectionPool
	shutdownChan chan struct{}
}

// ConnectionPool manages database connection pool settings
type ConnectionPool struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	HealthCheck     bool
	mu              sync.RWMutex
	stats           ConnectionStats
}

// ConnectionStats tracks connection pool statistics
type ConnectionStats struct {
	OpenConnections   int       `json:"openConnections"`
	IdleConnections   int       `json:"idleConnections"`
	ConnectionsInUse  int       `json:"connectionsInUse"`
	TotalConnections  int       `json:"totalConnections"`
	FailedConnections int       `json:"failedConnections"`
	HealthChecks      int       `json:"healthChecks"`
	LastHealthCheck   time.Time `json:"lastHealthCheck"`
}

func New(dbPath string, logger *logrus.Logger) (*DB, error) {
	return NewWithPool(dbPath, logger, DefaultPoolConfig())
}

// NewWithPool opens the store with a custom pool configuration and creates
// the schema when missing.
func NewWithPool(dbPath string, logger *logrus.Logger, poolConfig *ConnectionPool) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryDatabase, "CONNECTION_FAILED", "failed to open database").
			WithContext("path", dbPath)
	}

	conn.SetMaxOpenConns(poolConfig.MaxOpenConns)
	conn.SetMaxIdleConns(poolConfig.MaxIdleConns)
	conn.SetConnMaxLifetime(poolConfig.ConnMaxLifetime)
	conn.SetConnMaxIdleTime(poolConfig.ConnMaxIdleTime)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, errors.CategoryDatabase, "CONNECTION_FAILED", "failed to ping database").
			WithContext("path", dbPath)
	}

	db := &DB{
		conn:         conn,
		logger:       logger,
		pool:         poolConfig,
		shutdownChan: make(chan struct{}),
	}

	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, errors.CategoryDatabase, "MIGRATION_FAILED", "failed to create database tables").
			WithContext("path", dbPath)
	}

	if poolConfig.HealthCheck {
		go db.healthCheckLoop()
	}

	return db, nil
}

// DefaultPoolConfig returns default connection pool configuration
func DefaultPoolConfig() *ConnectionPool {
	return &ConnectionPool{
		MaxOpenConns:    DefaultMaxOpenConns,
		MaxIdleConns:    DefaultMaxIdleConns,
		ConnMaxLifetime: DefaultConnMaxLifetime,
		ConnMaxIdleTime: DefaultConnMaxIdleTime,
		HealthCheck:     DefaultHealthCheck,
	}
}

func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	select {
	case <-db.shutdownChan:
	default:
		close(db.shutdownChan)
	}

	if err := db.conn.Close(); err != nil {
		return errors.Wrap(err, errors.CategoryDatabase, "CLOSE_FAILED", "failed to close database connection")
	}
	return nil
}

// featureColumns are the nullable songs columns, one per audio feature, in
// declaration order. A NULL column is a missing feature.
func featureColumns() []string {
	all := features.All()
	cols := make([]string, len(all))
	for i, f := range all {
		cols[i] = f.String()
	}
	return cols
}

func (db *DB) createTables() error {
	featureDefs := make([]string, 0, features.Count)
	for _, col := range featureColumns() {
		featureDefs = append(featureDefs, fmt.Sprintf("%s REAL", col))
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS songs (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			artist TEXT NOT NULL,
			album TEXT NOT NULL DEFAULT '',
			year INTEGER NOT NULL DEFAULT 0,
			` + strings.Join(featureDefs, ",\n\t\t\t") + `,
			play_count INTEGER NOT NULL DEFAULT 0,
			skip_count INTEGER NOT NULL DEFAULT 0,
			like_count INTEGER NOT NULL DEFAULT 0,
			rating_sum REAL NOT NULL DEFAULT 0,
			rating_count INTEGER NOT NULL DEFAULT 0,
			last_played DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS song_genres (
			song_id TEXT NOT NULL,
			genre TEXT NOT NULL,
			PRIMARY KEY (song_id, genre),
			FOREIGN KEY (song_id) REFERENCES songs(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS song_moods (
			song_id TEXT NOT NULL,
			mood TEXT NOT NULL,
			PRIMARY KEY (song_id, mood),
			FOREIGN KEY (song_id) REFERENCES songs(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS preference_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			song_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			value REAL NOT NULL DEFAULT 0,
			timestamp DATETIME NOT NULL,
			FOREIGN KEY (song_id) REFERENCES songs(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_songs_artist ON songs(artist COLLATE NOCASE)`,
		`CREATE INDEX IF NOT EXISTS idx_preference_events_user_id ON preference_events(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_preference_events_song_id ON preference_events(song_id)`,
		`CREATE INDEX IF NOT EXISTS idx_preference_events_user_type ON preference_events(user_id, event_type)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return errors.Wrap(err, errors.CategoryDatabase, "MIGRATION_FAILED", "failed to execute table creation query").
				WithContext("query", query)
		}
	}

	return db.addMissingFeatureColumns()
}

// addMissingFeatureColumns adds feature columns introduced after a store was
// first created.
func (db *DB) addMissingFeatureColumns() error {
	for _, col := range featureColumns() {
		var count int
		err := db.conn.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('songs') WHERE name = ?`, col).Scan(&count)
		if err != nil {
			return errors.Wrap(err, errors.CategoryDatabase, "MIGRATION_CHECK_FAILED", "failed to check for feature column").
				WithContext("column", col)
		}
		if count > 0 {
			continue
		}
		if _, err := db.conn.Exec(fmt.Sprintf(`ALTER TABLE songs ADD COLUMN %s REAL`, col)); err != nil {
			return errors.Wrap(err, errors.CategoryDatabase, "MIGRATION_FAILED", "failed to add feature column").
				WithContext("column", col)
		}
		db.logger.WithField("column", col).Info("Added feature column to songs table")
	}
	return nil
}

// healthCheckLoop runs periodic health checks on the database connection
func (db *DB) healthCheckLoop() {
	ticker := time.NewTicker(HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			db.performHealthCheck()
		case <-db.shutdownChan:
			db.logger.Debug("Database health check loop shutting down")
			return
		}
	}
}

func (db *DB) performHealthCheck() {
	db.pool.mu.Lock()
	defer db.pool.mu.Unlock()

	db.pool.stats.HealthChecks++
	db.pool.stats.LastHealthCheck = time.Now()

	if err := db.conn.Ping(); err != nil {
		db.pool.stats.FailedConnections++
		db.logger.WithError(err).Error("Database health check failed")
		return
	}

	stats := db.conn.Stats()
	db.pool.stats.OpenConnections = stats.OpenConnections
	db.pool.stats.IdleConnections = stats.Idle
	db.pool.stats.ConnectionsInUse = stats.InUse
	db.pool.stats.TotalConnections = stats.MaxOpenConnections

	db.logger.WithFields(logrus.Fields{
		"open_connections":     stats.OpenConnections,
		"idle_connections":     stats.Idle,
		"connections_in_use":   stats.InUse,
		"max_open_connections": stats.MaxOpenConnections,
	}).Debug("Database health check completed")
}

// Ping reports whether the store is reachable.
func (db *DB) Ping() error {
	if err := db.conn.Ping(); err != nil {
		return errors.ErrDatabaseConnection.WithContext("cause", err.Error())
	}
	return nil
}

// GetConnectionStats returns current connection pool statistics
func (db *DB) GetConnectionStats() ConnectionStats {
	db.pool.mu.Lock()
	defer db.pool.mu.Unlock()

	stats := db.conn.Stats()
	db.pool.stats.OpenConnections = stats.OpenConnections
	db.pool.stats.IdleConnections = stats.Idle
	db.pool.stats.ConnectionsInUse = stats.InUse

	return db.pool.stats
}

// UpdatePoolConfig updates connection pool configuration
func (db *DB) UpdatePoolConfig(config *ConnectionPool) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if config.MaxOpenConns < 1 {
		return errors.New(errors.CategoryDatabase, "INVALID_POOL_CONFIG", "max open connections must be at least 1").
			WithContext("max_open_conns", config.MaxOpenConns)
	}
	if config.MaxIdleConns < 0 {
		return errors.New(errors.CategoryDatabase, "INVALID_POOL_CONFIG", "max idle connections cannot be negative").
			WithContext("max_idle_conns", config.MaxIdleConns)
	}
	if config.MaxIdleConns > config.MaxOpenConns {
		return errors.New(errors.CategoryDatabase, "INVALID_POOL_CONFIG", "max idle connections cannot exceed max open connections").
			WithContext("max_idle_conns", config.MaxIdleConns).
			WithContext("max_open_conns", config.MaxOpenConns)
	}

	db.conn.SetMaxOpenConns(config.MaxOpenConns)
	db.conn.SetMaxIdleConns(config.MaxIdleConns)
	db.conn.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.conn.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	db.pool.mu.Lock()
	db.pool.MaxOpenConns = config.MaxOpenConns
	db.pool.MaxIdleConns = config.MaxIdleConns
	db.pool.ConnMaxLifetime = config.ConnMaxLifetime
	db.pool.ConnMaxIdleTime = config.ConnMaxIdleTime
	db.pool.HealthCheck = config.HealthCheck
	db.pool.mu.Unlock()

	db.logger.WithFields(logrus.Fields{
		"max_open_conns":     config.MaxOpenConns,
		"max_idle_conns":     config.MaxIdleConns,
		"conn_max_lifetime":  config.ConnMaxLifetime,
		"conn_max_idle_time": config.ConnMaxIdleTime,
		"health_check":       config.HealthCheck,
	}).Info("Database connection pool configuration updated")

	return nil
}
