package asset_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conatus-oss/dana-archive/internal/archive"
	"github.com/conatus-oss/dana-archive/internal/asset"
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

func setupCollection(t *testing.T, a *archive.Archive) entity.Collection {
	t.Helper()
	ctx := context.Background()
	root, err := a.Collections.GetRootAssetCollection(ctx)
	require.NoError(t, err)

	col, err := a.Collections.CreateCollection(ctx, root.ID, collection.CreateCollectionParams{
		Title: "Survey Photos",
		Schema: []entity.SchemaProperty{
			{ID: "title", Label: "Title", Visible: true, Variant: entity.VariantFreeText},
			{ID: "secret", Label: "Secret", Visible: true, Variant: entity.VariantFreeText},
		},
	})
	require.NoError(t, err)
	return col
}

func TestCreateAssetAndGet(t *testing.T) {
	ctx := context.Background()
	a := openTestArchive(t)
	col := setupCollection(t, a)

	created, err := a.Assets.CreateAsset(ctx, col.ID, asset.CreateAssetParams{
		AccessLevel: entity.AccessPublic,
		Metadata:    entity.Metadata{"title": {"Base Camp"}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	fetched, err := a.Assets.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, entity.AccessPublic, fetched.AccessLevel)
	require.Equal(t, []string{"Base Camp"}, fetched.Metadata["title"])
}

func TestVisibleMetadataHidesRedactedProperties(t *testing.T) {
	ctx := context.Background()
	a := openTestArchive(t)
	col := setupCollection(t, a)

	created, err := a.Assets.CreateAsset(ctx, col.ID, asset.CreateAssetParams{
		AccessLevel: entity.AccessPublic,
		Metadata: entity.Metadata{
			"title":  {"Base Camp"},
			"secret": {"classified site coordinates"},
		},
		RedactedProperties: []string{"secret"},
	})
	require.NoError(t, err)

	schema, err := a.Collections.MergedSchema(ctx, col.ID)
	require.NoError(t, err)

	visible := created.VisibleMetadata(schema)
	require.Equal(t, []string{"Base Camp"}, visible["title"])
	require.NotContains(t, visible, "secret")
}

func TestCreateAssetDropsUnknownProperty(t *testing.T) {
	ctx := context.Background()
	a := openTestArchive(t)
	col := setupCollection(t, a)

	created, err := a.Assets.CreateAsset(ctx, col.ID, asset.CreateAssetParams{
		AccessLevel: entity.AccessPublic,
		Metadata:    entity.Metadata{"does-not-exist": {"x"}},
	})
	require.NoError(t, err)
	require.NotContains(t, created.Metadata, "does-not-exist")
}

func TestMoveAssetsRevalidatesAgainstDestinationSchema(t *testing.T) {
	ctx := context.Background()
	a := openTestArchive(t)
	root, err := a.Collections.GetRootAssetCollection(ctx)
	require.NoError(t, err)

	source, err := a.Collections.CreateCollection(ctx, root.ID, collection.CreateCollectionParams{
		Title:  "Source",
		Schema: []entity.SchemaProperty{{ID: "title", Label: "Title", Visible: true, Variant: entity.VariantFreeText}},
	})
	require.NoError(t, err)

	destination, err := a.Collections.CreateCollection(ctx, root.ID, collection.CreateCollectionParams{
		Title: "Destination",
		Schema: []entity.SchemaProperty{
			{ID: "title", Label: "Title", Visible: true, Required: true, Variant: entity.VariantFreeText},
			{ID: "extra", Label: "Extra", Visible: true, Required: true, Variant: entity.VariantFreeText},
		},
	})
	require.NoError(t, err)

	created, err := a.Assets.CreateAsset(ctx, source.ID, asset.CreateAssetParams{
		AccessLevel: entity.AccessPublic,
		Metadata:    entity.Metadata{"title": {"Base Camp"}},
	})
	require.NoError(t, err)

	err = a.Assets.MoveAssets(ctx, []string{created.ID}, destination.ID)
	require.Error(t, err, "destination requires 'extra', which the asset lacks")
}
