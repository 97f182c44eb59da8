package sql

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/pgbulk/dialect"
)

func mockDriver(t *testing.T) (*Driver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return OpenDB(dialect.Postgres, db), mock
}

func TestDriverExec(t *testing.T) {
	t.Parallel()
	drv, mock := mockDriver(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE users").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	var res Result
	require.NoError(t, drv.Exec(ctx, "UPDATE users SET n = n + 1 WHERE id = $1", []any{int64(1)}, &res))
	affected, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(3), affected)

	// A nil receiver discards the result.
	mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, drv.Exec(ctx, "UPDATE users SET n = 0", []any{}, nil))

	err = drv.Exec(ctx, "UPDATE users SET n = 0", []any{}, "not a result")
	assert.Error(t, err)
	err = drv.Exec(ctx, "UPDATE users SET n = 0", "not args", nil)
	assert.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverQuery(t *testing.T) {
	t.Parallel()
	drv, mock := mockDriver(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT id, name FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(1, "a").
			AddRow(2, "b"))
	var rows Rows
	require.NoError(t, drv.Query(ctx, "SELECT id, name FROM users", []any{}, &rows))
	maps, err := ScanMaps(&rows)
	require.NoError(t, err)
	require.Len(t, maps, 2)
	assert.Equal(t, int64(1), maps[0]["id"])
	assert.Equal(t, "a", maps[0]["name"])
	assert.Equal(t, int64(2), maps[1]["id"])

	err = drv.Query(ctx, "SELECT 1", []any{}, "not rows")
	assert.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverTx(t *testing.T) {
	t.Parallel()
	drv, mock := mockDriver(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	tx, err := drv.Tx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Exec(ctx, "INSERT INTO users (id) VALUES ($1)", []any{1}, nil))
	require.NoError(t, tx.Commit())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").WillReturnError(assert.AnError)
	mock.ExpectRollback()
	tx, err = drv.Tx(ctx)
	require.NoError(t, err)
	require.Error(t, tx.Exec(ctx, "INSERT INTO users (id) VALUES ($1)", []any{1}, nil))
	require.NoError(t, tx.Rollback())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverDialect(t *testing.T) {
	t.Parallel()
	drv, _ := mockDriver(t)
	assert.Equal(t, dialect.Postgres, drv.Dialect())
}
