package postgres

import (
	"context"
	"database/sql"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/mindgate/intake/internal/profile"
	"github.com/mindgate/intake/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", profile.DSN)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(2 * time.Hour)
	db.SetConnMaxIdleTime(15 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	driver := &DB{
		db:      db,
		profile: profile,
	}

	if err := driver.migrate(context.Background()); err != nil {
		return nil, errors.Wrap(err, "failed to migrate schema")
	}

	return driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS session (
	id TEXT PRIMARY KEY,
	owner_id TEXT,
	current_instrument TEXT NOT NULL DEFAULT '',
	completed_instruments TEXT NOT NULL DEFAULT '[]',
	collected_answers TEXT NOT NULL DEFAULT '{}',
	structured_answers TEXT NOT NULL DEFAULT '{}',
	presented_instruments TEXT NOT NULL DEFAULT '[]',
	insights TEXT NOT NULL DEFAULT '',
	is_complete BOOLEAN NOT NULL DEFAULT FALSE,
	started_ts BIGINT NOT NULL,
	last_activity_ts BIGINT NOT NULL,
	completed_ts BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_session_owner_id ON session (owner_id);
CREATE INDEX IF NOT EXISTS idx_session_last_activity ON session (is_complete, last_activity_ts);

CREATE TABLE IF NOT EXISTS message (
	id SERIAL PRIMARY KEY,
	uid TEXT NOT NULL UNIQUE,
	session_id TEXT NOT NULL REFERENCES session (id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	kind TEXT NOT NULL DEFAULT 'CHAT',
	content TEXT NOT NULL,
	instrument TEXT NOT NULL DEFAULT '',
	created_ts BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_message_session_id ON message (session_id, id);
`

func (d *DB) migrate(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, schema)
	return err
}
