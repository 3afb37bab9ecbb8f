package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	migrationsGlob    = "sql/migrations/*.sql"
	migrationLockWait = 5 * time.Second

	// Ключ advisory lock: байты строки "vfoody".
	migrationLockKey = int64(0x76666f6f6479)
)

const migrationTableDDL = `
CREATE TABLE IF NOT EXISTS vfoody_schema_migrations (
    version    BIGINT PRIMARY KEY,
    name       TEXT NOT NULL,
    checksum   TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

var (
	//go:embed sql/migrations/*.sql
	migrationsFS embed.FS

	migrationFileRe = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.(up|down)\.sql$`)

	// ErrMigrationDrift: применённая миграция отличается от встроенной в бинарник.
	ErrMigrationDrift = errors.New("applied migration differs from embedded one")
)

type migration struct {
	Version  int64
	Name     string
	UpSQL    string
	DownSQL  string
	Checksum string
}

func (m migration) id() string {
	return fmt.Sprintf("%04d_%s", m.Version, m.Name)
}

type appliedMigration struct {
	version  int64
	checksum string
}

// MigrationState описывает схему заказов: последнюю версию и ещё не применённые миграции.
type MigrationState struct {
	Version int64
	Applied int
	Pending []string
}

// Migrator применяет встроенные миграции под advisory lock.
type Migrator struct {
	db     *sql.DB
	source fs.FS
	logger *log.Entry
}

// Migrator возвращает мигратор схемы; logger может быть nil.
func (s *Store) Migrator(logger *log.Entry) *Migrator {
	if logger == nil {
		logger = log.New().WithField("component", "postgres-migrator")
	}
	m := &Migrator{source: migrationsFS, logger: logger}
	if s != nil {
		m.db = s.db
	}
	return m
}

// Up применяет steps новых миграций, 0 означает все. Возвращает применённые миграции.
func (m *Migrator) Up(ctx context.Context, steps int) ([]string, error) {
	migrations, err := loadMigrations(m.source)
	if err != nil {
		return nil, err
	}

	var done []string
	err = m.withLock(ctx, func(conn *sql.Conn) error {
		applied, err := appliedMigrations(ctx, conn)
		if err != nil {
			return err
		}
		if err := verifyChecksums(migrations, applied); err != nil {
			return err
		}
		for _, mig := range migrations {
			if _, ok := applied[mig.Version]; ok {
				continue
			}
			if steps > 0 && len(done) >= steps {
				break
			}
			if err := m.apply(ctx, conn, mig.UpSQL, func(tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, `
					INSERT INTO vfoody_schema_migrations (version, name, checksum)
					VALUES ($1, $2, $3)
				`, mig.Version, mig.Name, mig.Checksum)
				return err
			}); err != nil {
				return fmt.Errorf("migrate up %s: %w", mig.id(), err)
			}
			done = append(done, mig.id())
			m.logger.WithField("migration", mig.id()).Info("migration applied")
		}
		return nil
	})
	return done, err
}

// Down откатывает steps последних миграций; steps <= 0 означает одну.
func (m *Migrator) Down(ctx context.Context, steps int) ([]string, error) {
	if steps <= 0 {
		steps = 1
	}
	migrations, err := loadMigrations(m.source)
	if err != nil {
		return nil, err
	}
	byVersion := make(map[int64]migration, len(migrations))
	for _, mig := range migrations {
		byVersion[mig.Version] = mig
	}

	var done []string
	err = m.withLock(ctx, func(conn *sql.Conn) error {
		applied, err := appliedMigrations(ctx, conn)
		if err != nil {
			return err
		}
		versions := make([]int64, 0, len(applied))
		for version := range applied {
			versions = append(versions, version)
		}
		slices.Sort(versions)
		slices.Reverse(versions)

		for _, version := range versions[:min(steps, len(versions))] {
			mig, ok := byVersion[version]
			if !ok {
				return fmt.Errorf("cannot roll back unknown migration version %d", version)
			}
			if err := m.apply(ctx, conn, mig.DownSQL, func(tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, `DELETE FROM vfoody_schema_migrations WHERE version = $1`, version)
				return err
			}); err != nil {
				return fmt.Errorf("migrate down %s: %w", mig.id(), err)
			}
			done = append(done, mig.id())
			m.logger.WithField("migration", mig.id()).Warn("migration rolled back")
		}
		return nil
	})
	return done, err
}

// Status читает состояние схемы без блокировки.
func (m *Migrator) Status(ctx context.Context) (MigrationState, error) {
	if m.db == nil {
		return MigrationState{}, errors.New("postgres store is not initialized")
	}
	migrations, err := loadMigrations(m.source)
	if err != nil {
		return MigrationState{}, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, migrationLockWait)
	defer cancel()
	conn, err := m.db.Conn(queryCtx)
	if err != nil {
		return MigrationState{}, fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(queryCtx, migrationTableDDL); err != nil {
		return MigrationState{}, fmt.Errorf("ensure migration table: %w", err)
	}
	applied, err := appliedMigrations(queryCtx, conn)
	if err != nil {
		return MigrationState{}, err
	}
	return buildState(migrations, applied), nil
}

func buildState(migrations []migration, applied map[int64]appliedMigration) MigrationState {
	state := MigrationState{Applied: len(applied)}
	for version := range applied {
		state.Version = max(state.Version, version)
	}
	for _, mig := range migrations {
		if _, ok := applied[mig.Version]; !ok {
			state.Pending = append(state.Pending, mig.id())
		}
	}
	return state
}

// withLock выполняет fn на выделенном соединении под pg_advisory_lock.
func (m *Migrator) withLock(ctx context.Context, fn func(conn *sql.Conn) error) error {
	if m.db == nil {
		return errors.New("postgres store is not initialized")
	}
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, migrationLockWait)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrationLockKey); err != nil {
			m.logger.WithError(err).Warn("failed to release migration lock")
		}
	}()

	if _, err := conn.ExecContext(ctx, migrationTableDDL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	return fn(conn)
}

// apply выполняет тело миграции и запись в журнал одной транзакцией.
func (m *Migrator) apply(ctx context.Context, conn *sql.Conn, body string, record func(tx *sql.Tx) error) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, body); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("execute: %w", err)
	}
	if err := record(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record: %w", err)
	}
	return tx.Commit()
}

func appliedMigrations(ctx context.Context, conn *sql.Conn) (map[int64]appliedMigration, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version, checksum FROM vfoody_schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]appliedMigration)
	for rows.Next() {
		var a appliedMigration
		if err := rows.Scan(&a.version, &a.checksum); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		result[a.version] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return result, nil
}

func verifyChecksums(migrations []migration, applied map[int64]appliedMigration) error {
	for _, mig := range migrations {
		a, ok := applied[mig.Version]
		if ok && a.checksum != mig.Checksum {
			return fmt.Errorf("%w: %s", ErrMigrationDrift, mig.id())
		}
	}
	return nil
}

// loadMigrations читает пары NNNN_name.up.sql / NNNN_name.down.sql по возрастанию версии.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	files, err := fs.Glob(fsys, migrationsGlob)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no migration files found")
	}

	byVersion := make(map[int64]*migration)
	for _, file := range files {
		base := path.Base(file)
		parts := migrationFileRe.FindStringSubmatch(base)
		if parts == nil {
			return nil, fmt.Errorf("invalid migration file name: %s", base)
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version from %s: %w", base, err)
		}

		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", file, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", base)
		}

		mig, ok := byVersion[version]
		if !ok {
			mig = &migration{Version: version, Name: parts[2]}
			byVersion[version] = mig
		}
		if mig.Name != parts[2] {
			return nil, fmt.Errorf("migration %d has different names: %s and %s", version, mig.Name, parts[2])
		}

		target := &mig.UpSQL
		if parts[3] == "down" {
			target = &mig.DownSQL
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %d", parts[3], version)
		}
		*target = body
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, mig := range byVersion {
		if mig.UpSQL == "" || mig.DownSQL == "" {
			return nil, fmt.Errorf("migration %s must have both up and down files", mig.id())
		}
		sum := sha256.Sum256([]byte(mig.UpSQL))
		mig.Checksum = hex.EncodeToString(sum[:])
		migrations = append(migrations, *mig)
	}
	slices.SortFunc(migrations, func(a, b migration) int {
		switch {
		case a.Version < b.Version:
			return -1
		case a.Version > b.Version:
			return 1
		default:
			return 0
		}
	})
	return migrations, nil
}
