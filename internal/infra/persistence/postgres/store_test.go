package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"estatecore/internal/infra/persistence/memory"
	"estatecore/pkg/domain"
)

func openMock(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(func() {
		restore()
		_ = db.Close()
	})
	return mock
}

func TestNewStoreLoadsSnapshot(t *testing.T) {
	mock := openMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS state").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT bucket, payload FROM state").WillReturnRows(
		sqlmock.NewRows([]string{"bucket", "payload"}).
			AddRow("owners", []byte(`[{"id":"o1","name":"Ana"}]`)).
			AddRow("unknown", []byte(`{}`)),
	)

	store, err := NewStore(context.Background(), "", domain.NewRulesEngine())
	require.NoError(t, err)
	require.NoError(t, store.View(context.Background(), func(v domain.TransactionView) error {
		owner, ok := v.FindOwner("o1")
		require.True(t, ok)
		require.Equal(t, "Ana", owner.Name)
		return nil
	}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransactionPersistsEveryBucket(t *testing.T) {
	mock := openMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS state").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT bucket, payload FROM state").WillReturnRows(sqlmock.NewRows([]string{"bucket", "payload"}))

	store, err := NewStore(context.Background(), "ignored", domain.NewRulesEngine())
	require.NoError(t, err)

	mock.ExpectBegin()
	for _, bucket := range memory.Buckets {
		mock.ExpectExec("INSERT INTO state").WithArgs(bucket, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateOwner(domain.Owner{Name: "Ana"})
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransactionSurfacesPersistFailure(t *testing.T) {
	mock := openMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS state").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT bucket, payload FROM state").WillReturnRows(sqlmock.NewRows([]string{"bucket", "payload"}))

	store, err := NewStore(context.Background(), "", nil)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO state").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateTenant(domain.Tenant{Name: "Bia"})
		return err
	})
	require.ErrorContains(t, err, "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewStoreFailsWhenTableCannotBeCreated(t *testing.T) {
	mock := openMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS state").WillReturnError(errors.New("denied"))

	_, err := NewStore(context.Background(), "", nil)
	require.ErrorContains(t, err, "ensure state table")
}
