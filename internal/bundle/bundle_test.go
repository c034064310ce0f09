package bundle_test

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conatus-oss/dana-archive/internal/bundle"
	"github.com/conatus-oss/dana-archive/internal/entity"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := bundle.NewWriter(&buf)

	parentID := "col-1"
	manifest := bundle.Manifest{
		Collections: []bundle.ManifestCollection{
			{ID: "col-1", Title: "Expeditions"},
			{ID: "col-2", Title: "1987 Survey", ParentID: &parentID},
		},
	}
	require.NoError(t, w.WriteManifest(manifest))

	mf := bundle.MetadataFile{
		Assets: map[string]bundle.MetadataRecord{
			"photo-001": {
				Metadata: entity.Metadata{"title": {"Base Camp"}},
				Files:    []string{"photo-001.jpg"},
			},
		},
	}
	require.NoError(t, w.WriteMetadataFile("col-2", mf))
	require.NoError(t, w.WriteMedia("photo-001.jpg", strings.NewReader("fake jpeg bytes")))
	require.NoError(t, w.Close())

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	r := bundle.NewReader(zr)

	gotManifest, ok, err := r.Manifest()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, gotManifest.Collections, 2)
	require.Equal(t, "1987 Survey", gotManifest.Collections[1].Title)
	require.Equal(t, parentID, *gotManifest.Collections[1].ParentID)

	names := r.MetadataFileNames()
	require.Len(t, names, 1)

	gotMF, err := r.ReadMetadataFile(names[0])
	require.NoError(t, err)
	rec, ok := gotMF.Assets["photo-001"]
	require.True(t, ok)
	require.Equal(t, []string{"Base Camp"}, rec.Metadata["title"])

	require.True(t, r.HasMedia("photo-001.jpg"))
	require.False(t, r.HasMedia("does-not-exist.jpg"))

	var extracted bytes.Buffer
	require.NoError(t, r.ExtractMedia("photo-001.jpg", &extracted))
	require.Equal(t, "fake jpeg bytes", extracted.String())
}

func TestManifestAbsentOnPlainMetadataBundle(t *testing.T) {
	var buf bytes.Buffer
	w := bundle.NewWriter(&buf)
	require.NoError(t, w.WriteMetadataFile("col-1", bundle.MetadataFile{Assets: map[string]bundle.MetadataRecord{}}))
	require.NoError(t, w.Close())

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	r := bundle.NewReader(zr)

	_, ok, err := r.Manifest()
	require.NoError(t, err)
	require.False(t, ok)
}
