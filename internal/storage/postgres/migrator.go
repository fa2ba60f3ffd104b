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
	"sort"
	"strconv"
	"strings"
)

// migrationLockKey — ключ pg_advisory_lock: реплики сервиса и cmd/migrate не мигрируют одновременно.
const migrationLockKey = int64(0x636b6f7574)

const migrationsDDL = `
CREATE TABLE IF NOT EXISTS checkout_schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    checksum TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// ErrMigrationDrift возвращается, когда применённая миграция не совпадает со встроенной.
var ErrMigrationDrift = errors.New("applied migrations differ from embedded ones")

var (
	//go:embed sql/migrations/*.sql
	embeddedMigrations embed.FS

	migrationFileRe = regexp.MustCompile(`^(\d{4})_([a-z0-9_]+)\.(up|down)\.sql$`)
)

type migration struct {
	version int64
	name    string
	up      string
	down    string
}

func (m migration) id() string {
	return fmt.Sprintf("%04d_%s", m.version, m.name)
}

// checksum фиксирует содержимое up-скрипта на момент применения.
func (m migration) checksum() string {
	sum := sha256.Sum256([]byte(m.up))
	return hex.EncodeToString(sum[:])
}

// appliedMigration — строка checkout_schema_migrations.
type appliedMigration struct {
	version  int64
	checksum string
}

// MigrationState описывает состояние схемы.
type MigrationState struct {
	Version int64
	Applied int
	Pending []string
	Drifted []string
}

// parseMigrations читает пары up/down из fsys и сортирует их по версии.
func parseMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, "sql/migrations")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := make(map[int64]*migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		parts := migrationFileRe.FindStringSubmatch(entry.Name())
		if parts == nil {
			return nil, fmt.Errorf("invalid migration file name: %s", entry.Name())
		}
		version, _ := strconv.ParseInt(parts[1], 10, 64)

		raw, err := fs.ReadFile(fsys, path.Join("sql/migrations", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", entry.Name())
		}

		m, ok := byVersion[version]
		if !ok {
			m = &migration{version: version, name: parts[2]}
			byVersion[version] = m
		}
		if m.name != parts[2] {
			return nil, fmt.Errorf("version %d has two names: %s and %s", version, m.name, parts[2])
		}

		target := &m.up
		if parts[3] == "down" {
			target = &m.down
		}
		if *target != "" {
			return nil, fmt.Errorf("duplicate %s script for version %d", parts[3], version)
		}
		*target = body
	}
	if len(byVersion) == 0 {
		return nil, errors.New("no migration files found")
	}

	out := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.up == "" || m.down == "" {
			return nil, fmt.Errorf("migration %s must have both up and down files", m.id())
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// describeState сопоставляет встроенные миграции с применёнными.
func describeState(all []migration, applied []appliedMigration) MigrationState {
	known := make(map[int64]migration, len(all))
	for _, m := range all {
		known[m.version] = m
	}

	state := MigrationState{Applied: len(applied), Pending: []string{}}
	done := make(map[int64]bool, len(applied))
	for _, a := range applied {
		done[a.version] = true
		if a.version > state.Version {
			state.Version = a.version
		}
		m, ok := known[a.version]
		switch {
		case !ok:
			state.Drifted = append(state.Drifted, fmt.Sprintf("%04d_<unknown>", a.version))
		case m.checksum() != a.checksum:
			state.Drifted = append(state.Drifted, m.id())
		}
	}
	for _, m := range all {
		if !done[m.version] {
			state.Pending = append(state.Pending, m.id())
		}
	}
	return state
}

// planUp выбирает неприменённые миграции по возрастанию; steps<=0 означает все.
func planUp(all []migration, applied []appliedMigration, steps int) []migration {
	done := make(map[int64]bool, len(applied))
	for _, a := range applied {
		done[a.version] = true
	}
	var plan []migration
	for _, m := range all {
		if done[m.version] {
			continue
		}
		plan = append(plan, m)
		if steps > 0 && len(plan) == steps {
			break
		}
	}
	return plan
}

// planDown выбирает последние steps применённых миграций по убыванию.
func planDown(all []migration, applied []appliedMigration, steps int) ([]migration, error) {
	known := make(map[int64]migration, len(all))
	for _, m := range all {
		known[m.version] = m
	}
	versions := make([]int64, 0, len(applied))
	for _, a := range applied {
		versions = append(versions, a.version)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })
	if steps < len(versions) {
		versions = versions[:steps]
	}

	plan := make([]migration, 0, len(versions))
	for _, v := range versions {
		m, ok := known[v]
		if !ok {
			return nil, fmt.Errorf("cannot roll back unknown migration version %d", v)
		}
		plan = append(plan, m)
	}
	return plan, nil
}

// MigrateUp применяет steps миграций (0 — все). Отказывает при расхождении схемы.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.withMigrationLock(ctx, func(conn *sql.Conn, all []migration, applied []appliedMigration) error {
		if drifted := describeState(all, applied).Drifted; len(drifted) > 0 {
			return fmt.Errorf("%w: %s", ErrMigrationDrift, strings.Join(drifted, ", "))
		}
		for _, m := range planUp(all, applied, steps) {
			if err := runMigration(ctx, conn, m, true); err != nil {
				return err
			}
		}
		return nil
	})
}

// MigrateDown откатывает steps миграций; steps<=0 означает один шаг.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.withMigrationLock(ctx, func(conn *sql.Conn, all []migration, applied []appliedMigration) error {
		plan, err := planDown(all, applied, steps)
		if err != nil {
			return err
		}
		for _, m := range plan {
			if err := runMigration(ctx, conn, m, false); err != nil {
				return err
			}
		}
		return nil
	})
}

// EnsureSchema применяет все миграции; вызывается при старте с CHECKOUT_POSTGRES_AUTO_MIGRATE.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// MigrationStatus возвращает текущую версию, применённые, ожидающие и расходящиеся миграции.
func (s *Store) MigrationStatus(ctx context.Context) (MigrationState, error) {
	var state MigrationState
	err := s.withMigrationLock(ctx, func(_ *sql.Conn, all []migration, applied []appliedMigration) error {
		state = describeState(all, applied)
		return nil
	})
	return state, err
}

// PendingMigrations возвращает имена неприменённых миграций в порядке применения.
func (s *Store) PendingMigrations(ctx context.Context) ([]string, error) {
	state, err := s.MigrationStatus(ctx)
	if err != nil {
		return nil, err
	}
	return state.Pending, nil
}

func (s *Store) withMigrationLock(ctx context.Context, fn func(*sql.Conn, []migration, []appliedMigration) error) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store is not initialized")
	}
	all, err := parseMigrations(embeddedMigrations)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := withOpTimeout(ctx)
	_, err = conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockKey)
	cancel()
	if err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrationLockKey)
	}()

	if _, err := conn.ExecContext(ctx, migrationsDDL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	applied, err := loadApplied(ctx, conn)
	if err != nil {
		return err
	}
	return fn(conn, all, applied)
}

func loadApplied(ctx context.Context, conn *sql.Conn) ([]appliedMigration, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version, checksum FROM checkout_schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var applied []appliedMigration
	for rows.Next() {
		var a appliedMigration
		if err := rows.Scan(&a.version, &a.checksum); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied = append(applied, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return applied, nil
}

// runMigration выполняет скрипт и запись в checkout_schema_migrations в одной транзакции.
func runMigration(ctx context.Context, conn *sql.Conn, m migration, up bool) (err error) {
	direction, script := "up", m.up
	if !up {
		direction, script = "down", m.down
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s %s: %w", direction, m.id(), err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("execute %s %s: %w", direction, m.id(), err)
	}
	if up {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO checkout_schema_migrations (version, name, checksum) VALUES ($1, $2, $3)`,
			m.version, m.name, m.checksum())
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM checkout_schema_migrations WHERE version = $1`, m.version)
	}
	if err != nil {
		return fmt.Errorf("record %s %s: %w", direction, m.id(), err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s %s: %w", direction, m.id(), err)
	}
	return nil
}
