package bundle

import (
	"archive/zip"
	"encoding/json"
	"io"
)

// Writer streams a bundle's three sections (manifest, metadata files, media
// files) into an underlying zip archive in a single pass, mirroring how
// internal/datastore/fs.Datastore.Write takes ownership of one io.Reader at
// a time rather than buffering a whole tree in memory.
type Writer struct {
	zw *zip.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{zw: zip.NewWriter(w)}
}

// WriteManifest serialises manifest.json, the optional index of collections
// a bootstrap needs to recreate before any asset in the bundle.
func (w *Writer) WriteManifest(m Manifest) error {
	return w.writeJSON(manifestEntryName, m)
}

// WriteMetadataFile serialises one metadata/<name>.json payload.
func (w *Writer) WriteMetadataFile(name string, mf MetadataFile) error {
	return w.writeJSON(metadataDirName+"/"+name+".json", mf)
}

func (w *Writer) writeJSON(entryName string, v any) error {
	out, err := w.zw.Create(entryName)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	return enc.Encode(v)
}

// WriteMedia copies r into media/<name>, the basename that a MetadataRecord's
// Files entries must match.
func (w *Writer) WriteMedia(name string, r io.Reader) error {
	out, err := w.zw.Create(mediaDirName + "/" + name)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, r)
	return err
}

// Close flushes the zip's central directory. Callers remain responsible for
// closing the underlying io.Writer (usually an *os.File).
func (w *Writer) Close() error {
	return w.zw.Close()
}
