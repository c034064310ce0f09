package ingest_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conatus-oss/dana-archive/internal/asset"
	"github.com/conatus-oss/dana-archive/internal/blob"
	"github.com/conatus-oss/dana-archive/internal/bundle"
	"github.com/conatus-oss/dana-archive/internal/collection"
	"github.com/conatus-oss/dana-archive/internal/entity"
	"github.com/conatus-oss/dana-archive/internal/ingest"
)

func TestBootstrapRecreatesCollectionAndAssetsFromExportedBundle(t *testing.T) {
	ctx := context.Background()
	src := openTestArchive(t)

	srcRoot, err := src.Collections.GetRootAssetCollection(ctx)
	require.NoError(t, err)
	srcCol, err := src.Collections.CreateCollection(ctx, srcRoot.ID, collection.CreateCollectionParams{
		Title:  "Expeditions",
		Schema: []entity.SchemaProperty{{ID: "title", Label: "Title", Visible: true, Variant: entity.VariantFreeText}},
	})
	require.NoError(t, err)

	mediaPath := filepath.Join(t.TempDir(), "photo.pdf")
	require.NoError(t, os.WriteFile(mediaPath, []byte("not really a pdf"), 0o644))
	mf, err := src.Media.Put(ctx, blob.SourceFromPath(mediaPath))
	require.NoError(t, err)

	created, err := src.Assets.CreateAsset(ctx, srcCol.ID, asset.CreateAssetParams{
		AccessLevel: entity.AccessPublic,
		Metadata:    entity.Metadata{"title": {"Base Camp"}},
		MediaIDs:    []string{mf.ID},
	})
	require.NoError(t, err)

	bundlePath := filepath.Join(t.TempDir(), "archive.danapack")
	out, err := os.Create(bundlePath)
	require.NoError(t, err)
	require.NoError(t, bundle.Export(ctx, src, srcCol.ID, out))
	require.NoError(t, out.Close())

	dst := openTestArchive(t)
	repo := ingest.NewRepository(dst.Store())
	svc := ingest.NewService(repo, dst)

	require.NoError(t, svc.Bootstrap(ctx, bundlePath))

	gotCol, err := dst.Collections.Get(ctx, srcCol.ID)
	require.NoError(t, err)
	require.Equal(t, srcCol.Title, gotCol.Title)

	gotAsset, err := dst.Assets.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"Base Camp"}, gotAsset.Metadata["title"])
	require.Len(t, gotAsset.MediaIDs, 1)
}
