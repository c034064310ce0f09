package collection_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conatus-oss/dana-archive/internal/archive"
	"github.com/conatus-oss/dana-archive/internal/collection"
	"github.com/conatus-oss/dana-archive/internal/config"
	"github.com/conatus-oss/dana-archive/internal/entity"
)

func openTestArchive(t *testing.T) *archive.Archive {
	t.Helper()
	a, err := archive.Open(context.Background(), t.TempDir(), config.WithLogLevel("error"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestCreateCollectionInheritsMergedSchema(t *testing.T) {
	ctx := context.Background()
	a := openTestArchive(t)

	root, err := a.Collections.GetRootAssetCollection(ctx)
	require.NoError(t, err)

	parent, err := a.Collections.CreateCollection(ctx, root.ID, collection.CreateCollectionParams{
		Title: "Expeditions",
		Schema: []entity.SchemaProperty{
			{ID: "title", Label: "Title", Visible: true, Variant: entity.VariantFreeText},
		},
	})
	require.NoError(t, err)

	child, err := a.Collections.CreateCollection(ctx, parent.ID, collection.CreateCollectionParams{
		Title: "1987 Survey",
		Schema: []entity.SchemaProperty{
			{ID: "notes", Label: "Notes", Visible: true, Variant: entity.VariantFreeText},
		},
	})
	require.NoError(t, err)

	merged, err := a.Collections.MergedSchema(ctx, child.ID)
	require.NoError(t, err)
	require.Len(t, merged, 2)
	ids := []string{merged[0].ID, merged[1].ID}
	require.ElementsMatch(t, []string{"title", "notes"}, ids)
}

func TestChildPropertyOverridesAncestorWithSameID(t *testing.T) {
	ctx := context.Background()
	a := openTestArchive(t)

	root, err := a.Collections.GetRootAssetCollection(ctx)
	require.NoError(t, err)

	parent, err := a.Collections.CreateCollection(ctx, root.ID, collection.CreateCollectionParams{
		Title: "Parent",
		Schema: []entity.SchemaProperty{
			{ID: "title", Label: "Ancestor Title", Visible: true, Variant: entity.VariantFreeText},
		},
	})
	require.NoError(t, err)

	child, err := a.Collections.CreateCollection(ctx, parent.ID, collection.CreateCollectionParams{
		Title: "Child",
		Schema: []entity.SchemaProperty{
			{ID: "title", Label: "Child Title", Visible: true, Variant: entity.VariantFreeText},
		},
	})
	require.NoError(t, err)

	merged, err := a.Collections.MergedSchema(ctx, child.ID)
	require.NoError(t, err)
	require.Len(t, merged, 1)
	require.Equal(t, "Child Title", merged[0].Label)
}

func TestValidateMetadataRejectsMissingRequiredProperty(t *testing.T) {
	ctx := context.Background()
	a := openTestArchive(t)

	root, err := a.Collections.GetRootAssetCollection(ctx)
	require.NoError(t, err)

	col, err := a.Collections.CreateCollection(ctx, root.ID, collection.CreateCollectionParams{
		Title: "Required Field Test",
		Schema: []entity.SchemaProperty{
			{ID: "title", Label: "Title", Visible: true, Required: true, Variant: entity.VariantFreeText},
		},
	})
	require.NoError(t, err)

	_, errs, err := a.Collections.ValidateMetadata(ctx, col.ID, entity.Metadata{})
	require.NoError(t, err)
	require.NotEmpty(t, errs)
}
