package peersync_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conatus-oss/dana-archive/internal/archive"
	"github.com/conatus-oss/dana-archive/internal/asset"
	"github.com/conatus-oss/dana-archive/internal/blob"
	"github.com/conatus-oss/dana-archive/internal/collection"
	"github.com/conatus-oss/dana-archive/internal/config"
	"github.com/conatus-oss/dana-archive/internal/entity"
	"github.com/conatus-oss/dana-archive/internal/peersync"
)

func openTestArchive(t *testing.T) *archive.Archive {
	t.Helper()
	a, err := archive.Open(context.Background(), t.TempDir(), config.WithLogLevel("error"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestSyncPushesAssetAndMediaIntoDestination(t *testing.T) {
	ctx := context.Background()
	src := openTestArchive(t)
	dst := openTestArchive(t)

	srcRoot, err := src.Collections.GetRootAssetCollection(ctx)
	require.NoError(t, err)
	srcCol, err := src.Collections.CreateCollection(ctx, srcRoot.ID, collection.CreateCollectionParams{
		Title:  "Expedition Photos",
		Schema: []entity.SchemaProperty{{ID: "title", Label: "Title", Visible: true, Variant: entity.VariantFreeText}},
	})
	require.NoError(t, err)

	// Destination must already have a collection with the matching id for
	// Commit's CreateAsset(collectionID, ...) to succeed, mirroring how a
	// real peer sync runs after collections have already been mirrored
	// (e.g. via bootstrap).
	dstRoot, err := dst.Collections.GetRootAssetCollection(ctx)
	require.NoError(t, err)
	_, err = dst.Collections.CreateCollection(ctx, dstRoot.ID, collection.CreateCollectionParams{
		Title:   "Expedition Photos",
		Schema:  srcCol.Schema,
		ForceID: &srcCol.ID,
	})
	require.NoError(t, err)

	mediaPath := filepath.Join(t.TempDir(), "photo.pdf")
	require.NoError(t, os.WriteFile(mediaPath, []byte("pretend media bytes"), 0o644))
	mf, err := src.Media.Put(ctx, blob.SourceFromPath(mediaPath))
	require.NoError(t, err)

	created, err := src.Assets.CreateAsset(ctx, srcCol.ID, asset.CreateAssetParams{
		AccessLevel: entity.AccessPublic,
		Metadata:    entity.Metadata{"title": {"Summit Day"}},
		MediaIDs:    []string{mf.ID},
	})
	require.NoError(t, err)

	srcSync := peersync.NewService(src, nil)
	dstSync := peersync.NewService(dst, nil)

	candidates, err := srcSync.PullCandidates(ctx, []string{srcCol.ID})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, created.ID, candidates[0].ID)
	require.Len(t, candidates[0].Media, 1)

	want, err := dstSync.Begin(ctx, []string{srcCol.ID}, candidates)
	require.NoError(t, err)
	require.Equal(t, []string{created.ID}, want.WantAssets, "a never-before-seen asset must be wanted")
	require.Equal(t, []string{mf.SHA256}, want.WantMedia, "a never-before-seen media hash must be wanted")

	for _, m := range candidates[0].Media {
		have, err := dstSync.HasMedia(ctx, m.SHA256)
		require.NoError(t, err)
		require.False(t, have)

		content, err := src.Media.Content(ctx, mf)()
		require.NoError(t, err)
		deduped, err := dstSync.PushMedia(ctx, want.TransactionID, m.SHA256, mf.MimeType, mf.Extension, content)
		require.NoError(t, err)
		require.False(t, deduped)
	}

	require.NoError(t, dstSync.PushAsset(ctx, want.TransactionID, candidates[0]))
	require.NoError(t, dstSync.Commit(ctx, want.TransactionID))

	mirrored, err := dst.Assets.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"Summit Day"}, mirrored.Metadata["title"])

	// A second begin with the same candidates must want nothing: sync is
	// idempotent when nothing changed on the source (spec.md §8).
	want2, err := dstSync.Begin(ctx, []string{srcCol.ID}, candidates)
	require.NoError(t, err)
	require.Empty(t, want2.WantAssets)
	require.Empty(t, want2.WantMedia)
	require.NoError(t, dstSync.Cancel(ctx, want2.TransactionID))
}

func TestSyncDeletesAssetsAbsentFromSource(t *testing.T) {
	ctx := context.Background()
	src := openTestArchive(t)
	dst := openTestArchive(t)

	srcRoot, err := src.Collections.GetRootAssetCollection(ctx)
	require.NoError(t, err)
	srcCol, err := src.Collections.CreateCollection(ctx, srcRoot.ID, collection.CreateCollectionParams{
		Title:  "Expedition Photos",
		Schema: []entity.SchemaProperty{{ID: "title", Label: "Title", Visible: true, Variant: entity.VariantFreeText}},
	})
	require.NoError(t, err)

	dstRoot, err := dst.Collections.GetRootAssetCollection(ctx)
	require.NoError(t, err)
	_, err = dst.Collections.CreateCollection(ctx, dstRoot.ID, collection.CreateCollectionParams{
		Title:   "Expedition Photos",
		Schema:  srcCol.Schema,
		ForceID: &srcCol.ID,
	})
	require.NoError(t, err)

	t1, err := src.Assets.CreateAsset(ctx, srcCol.ID, asset.CreateAssetParams{
		AccessLevel: entity.AccessPublic,
		Metadata:    entity.Metadata{"title": {"Tent One"}},
	})
	require.NoError(t, err)

	srcSync := peersync.NewService(src, nil)
	dstSync := peersync.NewService(dst, nil)

	// First run mirrors t1 into the destination.
	candidates, err := srcSync.PullCandidates(ctx, []string{srcCol.ID})
	require.NoError(t, err)
	want, err := dstSync.Begin(ctx, []string{srcCol.ID}, candidates)
	require.NoError(t, err)
	for _, rec := range candidates {
		require.NoError(t, dstSync.PushAsset(ctx, want.TransactionID, rec))
	}
	require.NoError(t, dstSync.Commit(ctx, want.TransactionID))

	_, err = dst.Assets.Get(ctx, t1.ID)
	require.NoError(t, err)

	// t1 is deleted on the source before the second run.
	require.NoError(t, src.Assets.DeleteAssets(ctx, []string{t1.ID}))

	candidates, err = srcSync.PullCandidates(ctx, []string{srcCol.ID})
	require.NoError(t, err)
	require.Empty(t, candidates)

	want, err = dstSync.Begin(ctx, []string{srcCol.ID}, candidates)
	require.NoError(t, err)
	require.Empty(t, want.WantAssets)
	require.NoError(t, dstSync.Commit(ctx, want.TransactionID))

	_, err = dst.Assets.Get(ctx, t1.ID)
	require.Error(t, err, "an asset deleted on the source must be deleted on the destination")
}

func TestCancelDiscardsStagedTransaction(t *testing.T) {
	ctx := context.Background()
	dst := openTestArchive(t)
	dstSync := peersync.NewService(dst, nil)

	want, err := dstSync.Begin(ctx, nil, nil)
	require.NoError(t, err)
	require.NoError(t, dstSync.Cancel(ctx, want.TransactionID))

	// A second push against the now-discarded transaction must fail.
	err = dstSync.PushAsset(ctx, want.TransactionID, peersync.AssetRecord{ID: "whatever"})
	require.Error(t, err)
}

func TestBeginPolicyCanRejectTransaction(t *testing.T) {
	ctx := context.Background()
	dst := openTestArchive(t)

	denied := peersync.NewService(dst, func(ctx context.Context, collectionIDs []string) error {
		return errors.New("sync denied by policy")
	})

	_, err := denied.Begin(ctx, []string{"col-1"}, nil)
	require.Error(t, err)
}
