package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// SnapshotManager implements Store over a SQL database. The schema is
// created lazily on first use; the once-token makes concurrent first-use
// from parallel suite entries safe.
type SnapshotManager struct {
	db *sql.DB

	// Direct DB writes only take effect on logged-out characters; the
	// server overwrites rows from its in-memory state on logout.
	offlineRestore bool

	schemaOnce sync.Once
	schemaErr  error
}

// SnapshotManagerOption customizes a SnapshotManager.
type SnapshotManagerOption func(*SnapshotManager)

// WithOnlineRestore marks the backing server as applying restored rows to
// live characters, skipping the coordinator's logout/login cycle.
func WithOnlineRestore() SnapshotManagerOption {
	return func(m *SnapshotManager) { m.offlineRestore = false }
}

// NewSnapshotManager creates a manager over an open database handle.
func NewSnapshotManager(db *sql.DB, opts ...SnapshotManagerOption) *SnapshotManager {
	m := &SnapshotManager{db: db, offlineRestore: true}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RequiresOfflineForRestore reports the backing server's restore
// capability.
func (m *SnapshotManager) RequiresOfflineForRestore() bool {
	return m.offlineRestore
}

// ensureSchema runs the embedded migrations exactly once per manager.
func (m *SnapshotManager) ensureSchema() error {
	m.schemaOnce.Do(func() {
		source, err := iofs.New(migrationsFS, "migrations")
		if err != nil {
			m.schemaErr = fmt.Errorf("loading migrations: %w", err)
			return
		}
		driver, err := postgres.WithInstance(m.db, &postgres.Config{
			MigrationsTable: "bot_harness_migrations",
		})
		if err != nil {
			m.schemaErr = fmt.Errorf("creating migration driver: %w", err)
			return
		}
		migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
		if err != nil {
			m.schemaErr = fmt.Errorf("creating migrator: %w", err)
			return
		}
		if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			m.schemaErr = fmt.Errorf("running migrations: %w", err)
			return
		}
		slog.Debug("Snapshot store schema verified")
	})
	return m.schemaErr
}

// Exists reports whether a snapshot with the name exists.
func (m *SnapshotManager) Exists(ctx context.Context, name string) (bool, error) {
	if err := m.ensureSchema(); err != nil {
		return false, err
	}
	var exists bool
	err := m.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM bot_snapshots WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking snapshot %q: %w", name, err)
	}
	return exists, nil
}

// Save captures the character's current state under the name. Any prior
// snapshot of the same name and its quest rows are deleted first, in the
// same transaction.
func (m *SnapshotManager) Save(ctx context.Context, name, characterName string) error {
	if err := m.ensureSchema(); err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting snapshot save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var snap Snapshot
	snap.Name = name
	err = tx.QueryRowContext(ctx,
		`SELECT guid, level, xp, money, map_id, position_x, position_y, position_z, orientation
		 FROM characters WHERE name = $1`, characterName).
		Scan(&snap.CharacterGUID, &snap.Level, &snap.XP, &snap.Money,
			&snap.MapID, &snap.X, &snap.Y, &snap.Z, &snap.O)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("saving snapshot %q: %w: %s", name, ErrCharacterNotFound, characterName)
	}
	if err != nil {
		return fmt.Errorf("reading character %q: %w", characterName, err)
	}

	// Last-writer-wins: drop the previous snapshot of this name.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM bot_snapshots WHERE name = $1`, name); err != nil {
		return fmt.Errorf("deleting prior snapshot %q: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO bot_snapshots
		 (name, character_guid, level, xp, money, map_id, position_x, position_y, position_z, orientation)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		snap.Name, snap.CharacterGUID, snap.Level, snap.XP, snap.Money,
		snap.MapID, snap.X, snap.Y, snap.Z, snap.O); err != nil {
		return fmt.Errorf("inserting snapshot %q: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO bot_snapshot_quests (snapshot_name, quest_id)
		 SELECT $1, quest_id FROM character_completed_quests WHERE guid = $2`,
		name, snap.CharacterGUID); err != nil {
		return fmt.Errorf("copying quest state into snapshot %q: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing snapshot %q: %w", name, err)
	}
	slog.Info("Snapshot saved", "snapshot", name, "character", characterName)
	return nil
}

// Restore applies the named snapshot to the character: scalar state plus
// the completed quest set.
func (m *SnapshotManager) Restore(ctx context.Context, name, characterName string) error {
	if err := m.ensureSchema(); err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting snapshot restore: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var snap Snapshot
	err = tx.QueryRowContext(ctx,
		`SELECT level, xp, money, map_id, position_x, position_y, position_z, orientation
		 FROM bot_snapshots WHERE name = $1`, name).
		Scan(&snap.Level, &snap.XP, &snap.Money, &snap.MapID, &snap.X, &snap.Y, &snap.Z, &snap.O)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("restoring %q: %w", name, ErrSnapshotNotFound)
	}
	if err != nil {
		return fmt.Errorf("reading snapshot %q: %w", name, err)
	}

	var guid int64
	err = tx.QueryRowContext(ctx,
		`UPDATE characters
		 SET level = $1, xp = $2, money = $3, map_id = $4,
		     position_x = $5, position_y = $6, position_z = $7, orientation = $8
		 WHERE name = $9
		 RETURNING guid`,
		snap.Level, snap.XP, snap.Money, snap.MapID, snap.X, snap.Y, snap.Z, snap.O,
		characterName).Scan(&guid)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("restoring %q: %w: %s", name, ErrCharacterNotFound, characterName)
	}
	if err != nil {
		return fmt.Errorf("updating character %q: %w", characterName, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM character_completed_quests WHERE guid = $1`, guid); err != nil {
		return fmt.Errorf("clearing quest state for %q: %w", characterName, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO character_completed_quests (guid, quest_id)
		 SELECT $1, quest_id FROM bot_snapshot_quests WHERE snapshot_name = $2`,
		guid, name); err != nil {
		return fmt.Errorf("restoring quest state for %q: %w", characterName, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing restore of %q: %w", name, err)
	}
	slog.Info("Snapshot restored", "snapshot", name, "character", characterName)
	return nil
}

// Delete removes the named snapshot; missing snapshots are a no-op.
func (m *SnapshotManager) Delete(ctx context.Context, name string) error {
	if err := m.ensureSchema(); err != nil {
		return err
	}
	if _, err := m.db.ExecContext(ctx,
		`DELETE FROM bot_snapshots WHERE name = $1`, name); err != nil {
		return fmt.Errorf("deleting snapshot %q: %w", name, err)
	}
	return nil
}

// MarkQuestsCompleted upserts completed-quest rows for the character.
// Duplicates are no-ops.
func (m *SnapshotManager) MarkQuestsCompleted(ctx context.Context, characterName string, questIDs []int) error {
	if len(questIDs) == 0 {
		return nil
	}
	if err := m.ensureSchema(); err != nil {
		return err
	}

	var guid int64
	err := m.db.QueryRowContext(ctx,
		`SELECT guid FROM characters WHERE name = $1`, characterName).Scan(&guid)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("marking quests: %w: %s", ErrCharacterNotFound, characterName)
	}
	if err != nil {
		return fmt.Errorf("looking up character %q: %w", characterName, err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting quest upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, questID := range questIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO character_completed_quests (guid, quest_id)
			 VALUES ($1, $2) ON CONFLICT DO NOTHING`, guid, questID); err != nil {
			return fmt.Errorf("marking quest %d for %q: %w", questID, characterName, err)
		}
	}
	return tx.Commit()
}
