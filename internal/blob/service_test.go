package blob_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conatus-oss/dana-archive/internal/archive"
	"github.com/conatus-oss/dana-archive/internal/blob"
	"github.com/conatus-oss/dana-archive/internal/config"
)

func openTestArchive(t *testing.T) *archive.Archive {
	t.Helper()
	a, err := archive.Open(context.Background(), t.TempDir(), config.WithLogLevel("error"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func writeTestPNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 10, A: 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestPutHashesStoresAndReadsBackContent(t *testing.T) {
	ctx := context.Background()
	a := openTestArchive(t)

	pngPath := filepath.Join(t.TempDir(), "photo.png")
	writeTestPNG(t, pngPath)

	mf, err := a.Media.Put(ctx, blob.SourceFromPath(pngPath))
	require.NoError(t, err)
	require.Equal(t, "image/png", mf.MimeType)
	require.NotEmpty(t, mf.SHA256)

	r, err := a.Media.Content(ctx, mf)()
	require.NoError(t, err)
	gotBytes, err := io.ReadAll(r)
	require.NoError(t, err)

	wantBytes, err := os.ReadFile(pngPath)
	require.NoError(t, err)
	require.True(t, bytes.Equal(wantBytes, gotBytes))
}

func TestPutRejectsUnsupportedExtension(t *testing.T) {
	ctx := context.Background()
	a := openTestArchive(t)

	path := filepath.Join(t.TempDir(), "notes.exe")
	require.NoError(t, os.WriteFile(path, []byte("binary"), 0o644))

	_, err := a.Media.Put(ctx, blob.SourceFromPath(path))
	require.Error(t, err)
}

func TestFindBySHA256LocatesExistingMedia(t *testing.T) {
	ctx := context.Background()
	a := openTestArchive(t)

	pngPath := filepath.Join(t.TempDir(), "photo.png")
	writeTestPNG(t, pngPath)

	mf, err := a.Media.Put(ctx, blob.SourceFromPath(pngPath))
	require.NoError(t, err)

	found, ok, err := a.Media.FindBySHA256(ctx, mf.SHA256)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, mf.ID, found.ID)

	_, ok, err = a.Media.FindBySHA256(ctx, "does-not-exist")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteRemovesRecordAndUnderlyingFiles(t *testing.T) {
	ctx := context.Background()
	a := openTestArchive(t)

	pngPath := filepath.Join(t.TempDir(), "photo.png")
	writeTestPNG(t, pngPath)

	mf, err := a.Media.Put(ctx, blob.SourceFromPath(pngPath))
	require.NoError(t, err)

	results := a.Media.Delete(ctx, []string{mf.ID})
	require.Len(t, results, 1)
	require.NoError(t, results[0].Error)

	_, err = a.Media.Get(ctx, mf.ID)
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(a.Store().BlobDir(), mf.OriginalPath()))
	require.True(t, os.IsNotExist(statErr), "original must be unlinked")
	_, statErr = os.Stat(filepath.Join(a.Store().BlobDir(), mf.RenditionPath()))
	require.True(t, os.IsNotExist(statErr), "rendition must be unlinked")
}

func TestSourceFromExtractorWritesToDestination(t *testing.T) {
	ctx := context.Background()
	a := openTestArchive(t)

	pngPath := filepath.Join(t.TempDir(), "photo.png")
	writeTestPNG(t, pngPath)
	original, err := os.ReadFile(pngPath)
	require.NoError(t, err)

	src := blob.SourceFromExtractor("png", func(destination string) error {
		return os.WriteFile(destination, original, 0o644)
	})

	mf, err := a.Media.Put(ctx, src)
	require.NoError(t, err)
	require.Equal(t, "image/png", mf.MimeType)
}
