// Package blob implements the Media Store (spec.md C2): copying source
// files into the blob area under generated ids, hashing and recording mime
// type, generating a PNG rendition, and tearing both down on delete.
// Grounded on the teacher's internal/datastore/fs.Datastore for the raw
// file operations and pkg/encoder for rendition rendering.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/conatus-oss/dana-archive/internal/archerr"
	"github.com/conatus-oss/dana-archive/internal/datastore/fs"
	"github.com/conatus-oss/dana-archive/internal/entity"
	"github.com/conatus-oss/dana-archive/internal/events"
	"github.com/conatus-oss/dana-archive/pkg/encoder"
	"github.com/conatus-oss/dana-archive/pkg/logger"
)

// Source is either a filesystem path to copy from, or a pair of an
// extension and an extractTo callback that writes the bytes to a
// destination path (spec.md §4.2).
type Source struct {
	Path      string
	Extension string
	ExtractTo func(destination string) error
}

func SourceFromPath(path string) Source {
	return Source{Path: path, Extension: extensionForPath(path)}
}

func SourceFromExtractor(extension string, extractTo func(destination string) error) Source {
	return Source{Extension: extension, ExtractTo: extractTo}
}

// Service implements the Media Store.
type Service struct {
	repo           *Repository
	datastore      *fs.Datastore
	blobDir        string
	renditionWidth int
	bus            *events.Bus
	log            *logger.StructuredLogger
	exif           *exifReader
}

func NewService(repo *Repository, blobDir string, renditionWidth int, bus *events.Bus, log *logger.StructuredLogger) *Service {
	return &Service{
		repo:           repo,
		datastore:      fs.NewFsDatastore(blobDir),
		blobDir:        blobDir,
		renditionWidth: renditionWidth,
		bus:            bus,
		log:            log,
		exif:           newExifReader(log),
	}
}

// DeleteResult is the per-id outcome of a Delete call.
type DeleteResult struct {
	ID    string
	Error error
}

// Put copies source into the blob area under a newly generated id,
// hashes it, generates a rendition, and persists the media record. Unsupported
// types never touch disk; on any later failure the partial bytes are
// cleaned up before the error is returned (spec.md §4.2).
func (s *Service) Put(ctx context.Context, source Source) (entity.MediaFile, error) {
	mime, ok := mimeForExtension(source.Extension)
	if !ok {
		return entity.MediaFile{}, archerr.NewUnsupportedMediaTypeError(ctx, source.Extension)
	}

	id := uuid.NewString()
	originalRel := id + "." + source.Extension

	if err := s.writeOriginal(ctx, source, originalRel); err != nil {
		s.cleanup(ctx, originalRel, "")
		return entity.MediaFile{}, archerr.NewIOError(ctx, "put_media", originalRel, err)
	}

	sha, err := s.hashFile(ctx, originalRel)
	if err != nil {
		s.cleanup(ctx, originalRel, "")
		return entity.MediaFile{}, archerr.NewIOError(ctx, "put_media", originalRel, err)
	}

	renditionRel := id + ".rendition.png"
	if isImageMime(mime) {
		if err := s.generateRendition(ctx, originalRel, renditionRel); err != nil {
			s.cleanup(ctx, originalRel, renditionRel)
			return entity.MediaFile{}, archerr.NewInternalError(ctx, "put_media", err).WithCondition("rendition_failed")
		}
	}

	capturedAt := s.exif.capturedAt(ctx, filepath.Join(s.blobDir, originalRel))

	mf := entity.MediaFile{
		ID:         id,
		MimeType:   mime,
		SHA256:     sha,
		Extension:  source.Extension,
		CapturedAt: capturedAt,
		CreatedAt:  time.Now(),
	}

	if err := s.repo.Insert(ctx, mf); err != nil {
		s.cleanup(ctx, originalRel, renditionRel)
		return entity.MediaFile{}, err
	}

	s.bus.Publish(entity.ChangeEvent{Created: []entity.Ref{{ID: mf.ID}}})
	s.log.Infow("media put", "media_id", mf.ID, "mime_type", mf.MimeType)

	return mf, nil
}

func (s *Service) writeOriginal(ctx context.Context, source Source, destRel string) error {
	if source.ExtractTo != nil {
		return source.ExtractTo(filepath.Join(s.blobDir, destRel))
	}

	f, err := os.Open(source.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	return s.datastore.Write(ctx, destRel, f)
}

func (s *Service) hashFile(ctx context.Context, rel string) (string, error) {
	r, err := s.datastore.Read(ctx, rel)()
	if err != nil {
		return "", err
	}
	if closer, ok := r.(io.Closer); ok {
		defer closer.Close()
	}

	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (s *Service) generateRendition(ctx context.Context, originalRel, renditionRel string) error {
	r, err := s.datastore.Read(ctx, originalRel)()
	if err != nil {
		return err
	}
	if closer, ok := r.(io.Closer); ok {
		defer closer.Close()
	}

	rendition, err := encoder.EncodeRendition(r, s.renditionWidth)
	if err != nil {
		return err
	}

	return s.datastore.Write(ctx, renditionRel, rendition)
}

func (s *Service) cleanup(ctx context.Context, originalRel, renditionRel string) {
	_ = s.datastore.DeleteMedia(ctx, originalRel)
	if renditionRel != "" {
		_ = s.datastore.DeleteMedia(ctx, renditionRel)
	}
}

// Delete unlinks each media file's original and rendition and removes its
// record, returning a per-id result list; it never cascades to assets
// (spec.md §4.2 — the Asset Service clears its own references first).
func (s *Service) Delete(ctx context.Context, ids []string) []DeleteResult {
	results := make([]DeleteResult, 0, len(ids))

	for _, id := range ids {
		mf, err := s.repo.Get(ctx, id)
		if err != nil {
			results = append(results, DeleteResult{ID: id, Error: err})
			continue
		}

		s.cleanup(ctx, mf.OriginalPath(), mf.RenditionPath())

		if err := s.repo.Delete(ctx, id); err != nil {
			results = append(results, DeleteResult{ID: id, Error: err})
			continue
		}

		results = append(results, DeleteResult{ID: id})
	}

	s.bus.Publish(entity.ChangeEvent{Deleted: deletedRefs(results)})
	return results
}

func deletedRefs(results []DeleteResult) []entity.Ref {
	var refs []entity.Ref
	for _, r := range results {
		if r.Error == nil {
			refs = append(refs, entity.Ref{ID: r.ID})
		}
	}
	return refs
}

// Get returns one media record by id.
func (s *Service) Get(ctx context.Context, id string) (entity.MediaFile, error) {
	return s.repo.Get(ctx, id)
}

// Content opens the original bytes of a media file.
func (s *Service) Content(ctx context.Context, mf entity.MediaFile) entity.MediaContentFn {
	return s.datastore.Read(ctx, mf.OriginalPath())
}

// SetAssetID records which asset owns a previously-put media file, called by
// the Asset Service once the owning asset's id is known (spec.md §4.4).
func (s *Service) SetAssetID(ctx context.Context, mediaID, assetID string) error {
	return s.repo.SetAssetID(ctx, mediaID, assetID)
}

// FindBySHA256 looks up an existing media record by content hash, the
// dedup check the sync protocol's push step runs before accepting bytes
// for a media file a peer may already hold (spec.md §4.7).
func (s *Service) FindBySHA256(ctx context.Context, sha string) (entity.MediaFile, bool, error) {
	return s.repo.FindBySHA256(ctx, sha)
}
