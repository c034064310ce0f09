package store_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conatus-oss/dana-archive/internal/archive"
	"github.com/conatus-oss/dana-archive/internal/config"
	"github.com/conatus-oss/dana-archive/internal/entity"
	"github.com/conatus-oss/dana-archive/internal/store"
)

func openTestArchive(t *testing.T) *archive.Archive {
	t.Helper()
	a, err := archive.Open(context.Background(), t.TempDir(), config.WithLogLevel("error"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestPaginateAssemblesPageFromCountAndList(t *testing.T) {
	pr := entity.PageRange{Offset: 10, Limit: 5}

	page, err := store.Paginate(pr, func() (int, error) {
		return 42, nil
	}, func(got entity.PageRange) ([]string, error) {
		require.Equal(t, pr, got)
		return []string{"a", "b"}, nil
	})

	require.NoError(t, err)
	require.Equal(t, 42, page.Total)
	require.Equal(t, []string{"a", "b"}, page.Items)
	require.Equal(t, pr, page.Range)
}

func TestPaginatePropagatesCountError(t *testing.T) {
	wantErr := errors.New("count failed")

	_, err := store.Paginate(entity.AllRange, func() (int, error) {
		return 0, wantErr
	}, func(entity.PageRange) ([]string, error) {
		t.Fatal("list must not run when count fails")
		return nil, nil
	})

	require.ErrorIs(t, err, wantErr)
}

func TestWithUnitOfWorkCommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	a := openTestArchive(t)

	err := a.WithUnitOfWork(ctx, func(ctx context.Context) error {
		_, err := a.Store().ExecContext(ctx, `INSERT INTO collections (id, title, parent_id, schema_json) VALUES (?, ?, NULL, ?)`, "col-committed", "Committed", "[]")
		return err
	})
	require.NoError(t, err)

	var title string
	row := a.Store().QueryRowContext(ctx, `SELECT title FROM collections WHERE id = ?`, "col-committed")
	require.NoError(t, row.Scan(&title))
	require.Equal(t, "Committed", title)
}

func TestWithUnitOfWorkRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	a := openTestArchive(t)
	wantErr := errors.New("boom")

	err := a.WithUnitOfWork(ctx, func(ctx context.Context) error {
		_, execErr := a.Store().ExecContext(ctx, `INSERT INTO collections (id, title, parent_id, schema_json) VALUES (?, ?, NULL, ?)`, "col-rolled-back", "Rolled back", "[]")
		require.NoError(t, execErr)
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)

	row := a.Store().QueryRowContext(ctx, `SELECT title FROM collections WHERE id = ?`, "col-rolled-back")
	require.ErrorIs(t, row.Scan(new(string)), sql.ErrNoRows)
}

func TestNestedWithUnitOfWorkSharesOuterTransaction(t *testing.T) {
	ctx := context.Background()
	a := openTestArchive(t)

	err := a.WithUnitOfWork(ctx, func(ctx context.Context) error {
		return a.WithUnitOfWork(ctx, func(ctx context.Context) error {
			_, err := a.Store().ExecContext(ctx, `INSERT INTO collections (id, title, parent_id, schema_json) VALUES (?, ?, NULL, ?)`, "col-nested", "Nested", "[]")
			return err
		})
	})
	require.NoError(t, err)

	row := a.Store().QueryRowContext(ctx, `SELECT title FROM collections WHERE id = ?`, "col-nested")
	var title string
	require.NoError(t, row.Scan(&title))
	require.Equal(t, "Nested", title)
}
