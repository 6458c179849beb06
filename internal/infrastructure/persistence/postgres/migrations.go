package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrMigrationFailed wraps any failure while applying a migration.
var ErrMigrationFailed = errors.New("postgres: migration failed")

// Migration is one versioned schema change.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: ANALYSES
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Computed AI analyses. One row per student and data fingerprint: the same
-- student with changed marks gets a new row, old rows remain as history.
CREATE TABLE IF NOT EXISTS analyses (
    id BIGSERIAL PRIMARY KEY,
    student_id VARCHAR(32) NOT NULL,
    fingerprint CHAR(32) NOT NULL,
    model VARCHAR(100) NOT NULL DEFAULT '',
    success TEXT NOT NULL,
    decline TEXT NOT NULL,
    weak_subjects TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    UNIQUE(student_id, fingerprint)
);

CREATE INDEX IF NOT EXISTS idx_analyses_student_created ON analyses(student_id, created_at DESC);
`

const migration001Down = `
DROP TABLE IF EXISTS analyses;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CHAT TRANSCRIPTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Mentor chat transcripts. Active sessions live in Redis; every completed
-- exchange is appended here.
CREATE TABLE IF NOT EXISTS chat_messages (
    id BIGSERIAL PRIMARY KEY,
    session_id UUID NOT NULL,
    student_id VARCHAR(32) NOT NULL,
    role VARCHAR(10) NOT NULL,
    text TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_role CHECK (role IN ('user', 'model'))
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, id);
CREATE INDEX IF NOT EXISTS idx_chat_messages_student ON chat_messages(student_id, created_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS chat_messages;
`

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations in version order.
func GetMigrations() []Migration {
	migs := []Migration{
		{
			Version: 1,
			Name:    "create_analyses",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_chat_messages",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].Version < migs[j].Version })
	return migs
}

// Pending returns the migrations missing from applied, in version order.
func Pending(migrations []Migration, applied map[int]time.Time) []Migration {
	var out []Migration
	for _, mig := range migrations {
		if _, ok := applied[mig.Version]; !ok {
			out = append(out, mig)
		}
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

const migrationsTable = "schema_migrations"

// migrationLockKey serialises migrators of several replicas starting at once.
const migrationLockKey = 0x72637068 // "rcph"

// Migrator applies the embedded migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

// NewMigrator creates a migrator over the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: GetMigrations()}
}

// Migrate applies pending migrations, each in its own transaction, and
// returns how many ran.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	create := `CREATE TABLE IF NOT EXISTS ` + migrationsTable + ` (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	)`
	if _, err := m.conn.Exec(ctx, create); err != nil {
		return 0, fmt.Errorf("%w: create %s: %v", ErrMigrationFailed, migrationsTable, err)
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, mig := range Pending(m.migrations, applied) {
		if err := m.apply(ctx, mig); err != nil {
			return n, fmt.Errorf("%w: version %d (%s): %v", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
		n++
	}
	return n, nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	return m.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
			return err
		}

		// Другая реплика могла применить миграцию, пока мы ждали блокировку.
		var done bool
		err := tx.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM "+migrationsTable+" WHERE version = $1)", mig.Version).Scan(&done)
		if err != nil || done {
			return err
		}

		if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, "INSERT INTO "+migrationsTable+" (version, name) VALUES ($1, $2)", mig.Version, mig.Name)
		return err
	})
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, "SELECT version, applied_at FROM "+migrationsTable)
	if err != nil {
		return nil, fmt.Errorf("%w: read applied versions: %v", ErrMigrationFailed, err)
	}
	defer rows.Close()

	out := make(map[int]time.Time)
	for rows.Next() {
		var (
			version int
			at      time.Time
		)
		if err := rows.Scan(&version, &at); err != nil {
			return nil, err
		}
		out[version] = at
	}
	return out, rows.Err()
}
