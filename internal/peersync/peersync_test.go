package peersync_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conatus-oss/dana-archive/internal/entity"
	"github.com/conatus-oss/dana-archive/internal/peersync"
)

func TestAssetContentHashIgnoresID(t *testing.T) {
	a := peersync.AssetRecord{
		ID:            "asset-a",
		CollectionID:  "col-1",
		AccessControl: entity.AccessPublic,
		Metadata:      entity.Metadata{"title": {"Base Camp"}},
	}
	b := a
	b.ID = "asset-b"

	hashA, err := peersync.AssetContentHash(a)
	require.NoError(t, err)
	hashB, err := peersync.AssetContentHash(b)
	require.NoError(t, err)
	require.Equal(t, hashA, hashB, "two equivalent asset contents under different ids must hash the same")
}

func TestAssetContentHashChangesWithMetadata(t *testing.T) {
	base := peersync.AssetRecord{
		CollectionID:  "col-1",
		AccessControl: entity.AccessPublic,
		Metadata:      entity.Metadata{"title": {"Base Camp"}},
	}
	changed := base
	changed.Metadata = entity.Metadata{"title": {"Different Title"}}

	hashBase, err := peersync.AssetContentHash(base)
	require.NoError(t, err)
	hashChanged, err := peersync.AssetContentHash(changed)
	require.NoError(t, err)
	require.NotEqual(t, hashBase, hashChanged)
}

func TestMediaContentHashDeterministic(t *testing.T) {
	h1, err := peersync.MediaContentHash("asset-1", "image/jpeg", "deadbeef")
	require.NoError(t, err)
	h2, err := peersync.MediaContentHash("asset-1", "image/jpeg", "deadbeef")
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	h3, err := peersync.MediaContentHash("asset-1", "image/jpeg", "feedface")
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)
}
