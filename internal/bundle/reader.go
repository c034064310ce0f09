package bundle

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Reader opens a bundle zip for lazy, on-demand access: the manifest and
// metadata files are only parsed when asked for, and media is only ever
// streamed straight to a destination writer, never loaded whole into
// memory — the ingest engine's PROCESS_FILES phase extracts one media
// entry at a time as it walks staged_media_imports.
type Reader struct {
	zr *zip.Reader
}

func NewReader(zr *zip.Reader) *Reader {
	return &Reader{zr: zr}
}

func (r *Reader) find(name string) *zip.File {
	for _, f := range r.zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Manifest parses manifest.json if the bundle carries one; ok is false for
// bundles that only carry metadata and media (the common ingest case).
func (r *Reader) Manifest() (m Manifest, ok bool, err error) {
	f := r.find(manifestEntryName)
	if f == nil {
		return Manifest{}, false, nil
	}
	if err := readJSON(f, &m); err != nil {
		return Manifest{}, false, err
	}
	return m, true, nil
}

// MetadataFileNames lists the metadata/*.json entries present, in archive
// order.
func (r *Reader) MetadataFileNames() []string {
	var names []string
	for _, f := range r.zr.File {
		if strings.HasPrefix(f.Name, metadataDirName+"/") && strings.HasSuffix(f.Name, ".json") {
			names = append(names, f.Name)
		}
	}
	return names
}

// ReadMetadataFile parses one metadata/*.json entry by its full archive
// name (as returned by MetadataFileNames).
func (r *Reader) ReadMetadataFile(name string) (MetadataFile, error) {
	f := r.find(name)
	if f == nil {
		return MetadataFile{}, fmt.Errorf("bundle: metadata entry %q not found", name)
	}
	var mf MetadataFile
	if err := readJSON(f, &mf); err != nil {
		return MetadataFile{}, err
	}
	return mf, nil
}

// HasMedia reports whether media/<relativePath> is present in the bundle,
// used by the ingest engine's READ_FILES phase to confirm every file a
// metadata entry references actually exists before processing it.
func (r *Reader) HasMedia(relativePath string) bool {
	return r.find(mediaDirName+"/"+relativePath) != nil
}

// ExtractMedia streams media/<relativePath> into destination; the bundle
// ingest source wraps it in a blob.Source.ExtractTo callback that creates the
// destination file and passes it in (spec.md §4.5 staged media imports
// reference bundle-relative paths, not filesystem paths).
func (r *Reader) ExtractMedia(relativePath string, destination io.Writer) error {
	f := r.find(mediaDirName + "/" + relativePath)
	if f == nil {
		return fmt.Errorf("bundle: media entry %q not found", relativePath)
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	_, err = io.Copy(destination, rc)
	return err
}

func readJSON(f *zip.File, v any) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return json.NewDecoder(rc).Decode(v)
}
