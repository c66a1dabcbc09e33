package migrations

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"text/template"
	"time"

	"github.com/curaious/xm/internal/config"
	"github.com/curaious/xm/internal/db"

	"github.com/jmoiron/sqlx"
)

type migration struct {
	version string
	done    bool
	up      func(*sqlx.Tx) error
	down    func(*sqlx.Tx) error
}

// Migrator applies the migrations registered by the files in this package, in
// version order, recording progress in metadata.schema_migrations.
type Migrator struct {
	db         *sqlx.DB
	versions   []string
	migrations map[string]*migration
}

var m = &Migrator{
	versions:   []string{},
	migrations: map[string]*migration{},
}

// NewMigrator connects with the environment's database settings
func NewMigrator() (*Migrator, error) {
	return newMigrator(db.NewConn(config.ReadConfig()))
}

func newMigrator(conn *sqlx.DB) (*Migrator, error) {
	m.db = conn

	_, err := m.db.Exec(`CREATE SCHEMA IF NOT EXISTS metadata`)
	if err != nil {
		slog.Error("Unable to create metadata schema", slog.Any("error", err))
		return nil, err
	}

	_, err = m.db.Exec(`CREATE TABLE IF NOT EXISTS metadata.schema_migrations (
		version varchar(255)
	);`)
	if err != nil {
		slog.Error("Unable to create `schema_migrations` table", slog.Any("error", err))
		return nil, err
	}

	var done []string
	if err := m.db.Select(&done, "SELECT version FROM metadata.schema_migrations;"); err != nil {
		slog.Error("Unable to fetch completed migrations", slog.Any("error", err))
		return nil, err
	}

	for _, mg := range m.migrations {
		mg.done = false
	}
	for _, version := range done {
		if m.migrations[version] != nil {
			m.migrations[version].done = true
		}
	}

	return m, nil
}

func (m *Migrator) addMigration(mg *migration) {
	m.migrations[mg.version] = mg

	index, _ := slices.BinarySearch(m.versions, mg.version)
	m.versions = slices.Insert(m.versions, index, mg.version)
}

func (m *Migrator) MigrationStatus() error {
	for _, v := range m.versions {
		if m.migrations[v].done {
			slog.Info(fmt.Sprintf("Migration %s... completed", v))
		} else {
			slog.Info(fmt.Sprintf("Migration %s... pending", v))
		}
	}

	return nil
}

// CreateMigration writes an empty migration named title from template.txt
func (m *Migrator) CreateMigration(title string) error {
	if title == "" {
		return fmt.Errorf("migration name is required")
	}

	var out bytes.Buffer

	version := time.Now().Format("20060102150405")

	in := struct {
		Version string
		Title   string
	}{
		Version: version,
		Title:   title,
	}

	t := template.Must(template.ParseFiles("./internal/migrations/template.txt"))
	if err := t.Execute(&out, in); err != nil {
		slog.Error("Unable to execute migration template", slog.Any("error", err))
		return err
	}

	f, err := os.Create(fmt.Sprintf("./internal/migrations/%s_%s.go", version, title))
	if err != nil {
		slog.Error("Unable to create the migration file", slog.Any("error", err))
		return err
	}
	defer f.Close()

	if _, err := f.WriteString(out.String()); err != nil {
		slog.Error("Unable to write to the migration file", slog.Any("error", err))
		return err
	}

	slog.Info("Generated new migration file...", slog.String("filename", f.Name()))
	return nil
}

// Up runs pending migrations in a single transaction. A positive step limits how
// many run.
func (m *Migrator) Up(step int) error {
	return m.run(step, m.versions, false)
}

// Down reverts completed migrations newest first. A positive step limits how many
// are reverted.
func (m *Migrator) Down(step int) error {
	versions := slices.Clone(m.versions)
	slices.Reverse(versions)
	return m.run(step, versions, true)
}

func (m *Migrator) run(step int, versions []string, down bool) (err error) {
	tx, err := m.db.BeginTxx(context.TODO(), &sql.TxOptions{})
	if err != nil {
		slog.Error("Unable to start transaction to run migrations", slog.Any("error", err))
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic", slog.Any("details", r))
			_ = tx.Rollback()
			err = fmt.Errorf("migration panicked: %v", r)
		}
	}()

	direction := "up"
	if down {
		direction = "down"
	}

	var applied []*migration
	for _, v := range versions {
		if step > 0 && len(applied) == step {
			break
		}

		mg := m.migrations[v]
		if mg.done != down {
			continue
		}

		l := slog.With(slog.String("version", mg.version), slog.String("direction", direction))
		l.Info("Running migration...")

		fn, bookkeeping := mg.up, "INSERT INTO metadata.schema_migrations VALUES($1);"
		if down {
			fn, bookkeeping = mg.down, "DELETE FROM metadata.schema_migrations WHERE version = $1;"
		}

		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			l.Error("Error occurred while running migration", slog.Any("error", err))
			return err
		}

		if _, err := tx.Exec(bookkeeping, mg.version); err != nil {
			_ = tx.Rollback()
			l.Error("Failed to record migration in `metadata.schema_migrations`", slog.Any("error", err))
			return err
		}

		applied = append(applied, mg)
		l.Info("Finished migration...")
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	for _, mg := range applied {
		mg.done = !down
	}

	return nil
}
