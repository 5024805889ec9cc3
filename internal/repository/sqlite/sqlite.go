// Package sqlite implements the repository interfaces on an embedded SQLite
// database via the pure-Go modernc.org/sqlite driver: no CGo, no external
// database server, and ":memory:" databases for tests.
package sqlite

import (
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps the sql.DB connection pool and hands out the per-table
// repositories. The server owns exactly one DB and closes it on shutdown.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath (":memory:" for tests), verifies the
// connection, and runs migrations.
//
// WAL journaling lets reads proceed while a write is in flight, which keeps
// the HTTP CRUD surface responsive while the coordinator persists moves.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool. Always defer this next to New.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Users returns the account store.
func (db *DB) Users() *UserRepo {
	return &UserRepo{conn: db.conn}
}

// Friendships returns the social-graph store.
func (db *DB) Friendships() *FriendshipRepo {
	return &FriendshipRepo{conn: db.conn}
}

// Games returns the game-session store.
func (db *DB) Games() *GameRepo {
	return &GameRepo{conn: db.conn}
}

// migrate creates the schema. CREATE TABLE IF NOT EXISTS keeps this safe to
// run on every startup.
//
// The games player columns deliberately have no foreign keys: an empty
// string means "seat not taken yet" and must not trip referential checks.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			wins          INTEGER NOT NULL DEFAULT 0,
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS friendships (
			id           TEXT PRIMARY KEY,
			requester_id TEXT NOT NULL REFERENCES users(id),
			addressee_id TEXT NOT NULL REFERENCES users(id),
			status       TEXT NOT NULL DEFAULT 'pending',
			created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (requester_id, addressee_id)
		);
		CREATE INDEX IF NOT EXISTS idx_friendships_addressee ON friendships(addressee_id);
	`)
	if err != nil {
		return fmt.Errorf("creating friendships table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS games (
			id          TEXT PRIMARY KEY,
			room_id     TEXT NOT NULL UNIQUE,
			player_x_id TEXT NOT NULL DEFAULT '',
			player_o_id TEXT NOT NULL DEFAULT '',
			board       TEXT NOT NULL DEFAULT '         ',
			turn_id     TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL DEFAULT 'pending',
			public      INTEGER NOT NULL DEFAULT 1,
			winner_id   TEXT NOT NULL DEFAULT '',
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_games_status ON games(status);
		CREATE INDEX IF NOT EXISTS idx_games_players ON games(player_x_id, player_o_id);
	`)
	if err != nil {
		return fmt.Errorf("creating games table: %w", err)
	}

	return nil
}
