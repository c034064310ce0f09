package store_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conatus-oss/dana-archive/internal/entity"
	"github.com/conatus-oss/dana-archive/internal/store"
)

func TestSelectUsesQuestionPlaceholders(t *testing.T) {
	sql, args, err := store.Select("id", "title").From("collections").Where("parent_id = ?", "root").ToSql()
	require.NoError(t, err)
	require.Equal(t, "SELECT id, title FROM collections WHERE parent_id = ?", sql)
	require.Equal(t, []any{"root"}, args)
}

func TestApplyPageAddsLimitAndOffsetOnlyWhenPositive(t *testing.T) {
	base := store.Select("id").From("assets")

	withOffset := store.ApplyPage(base, entity.PageRange{Offset: 20, Limit: 10}, 10)
	sql, args, err := withOffset.ToSql()
	require.NoError(t, err)
	require.Equal(t, "SELECT id FROM assets LIMIT 10 OFFSET 20", sql)
	require.Empty(t, args)

	withoutOffset := store.ApplyPage(base, entity.PageRange{Offset: 0, Limit: 5}, 5)
	sql, _, err = withoutOffset.ToSql()
	require.NoError(t, err)
	require.Equal(t, "SELECT id FROM assets LIMIT 5", sql)
}
