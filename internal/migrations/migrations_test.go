package migrations

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newTestMigrator(t *testing.T, done ...string) (*Migrator, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS metadata").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS metadata.schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	rows := sqlmock.NewRows([]string{"version"})
	for _, v := range done {
		rows.AddRow(v)
	}
	mock.ExpectQuery("SELECT version FROM metadata.schema_migrations").WillReturnRows(rows)

	mg, err := newMigrator(sqlx.NewDb(mockDB, "postgres"))
	require.NoError(t, err)
	return mg, mock
}

func TestVersionsSorted(t *testing.T) {
	mg := &Migrator{migrations: map[string]*migration{}}
	for _, v := range []string{"3", "1", "2"} {
		mg.addMigration(&migration{version: v})
	}
	require.Equal(t, []string{"1", "2", "3"}, mg.versions)

	require.IsIncreasing(t, m.versions)
}

func TestUpNothingPending(t *testing.T) {
	mg, mock := newTestMigrator(t, m.versions...)
	mock.ExpectBegin()
	mock.ExpectCommit()

	require.NoError(t, mg.Up(0))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDownOneStep(t *testing.T) {
	mg, mock := newTestMigrator(t, m.versions...)
	last := m.versions[len(m.versions)-1]

	mock.ExpectBegin()
	mock.ExpectExec("DROP TRIGGER IF EXISTS user_entity_roles_notify").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DROP FUNCTION IF EXISTS notify_role_change").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM metadata.schema_migrations").WithArgs(last).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, mg.Down(1))
	require.False(t, m.migrations[last].done)
	require.NoError(t, mock.ExpectationsWereMet())
}
