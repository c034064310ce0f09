package ingest

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conatus-oss/dana-archive/internal/archive"
	"github.com/conatus-oss/dana-archive/internal/asset"
	"github.com/conatus-oss/dana-archive/internal/entity"
	"github.com/conatus-oss/dana-archive/pkg/logger"
	"github.com/conatus-oss/dana-archive/pkg/processing"
)

// Service implements the Ingest Engine's session state machine (spec.md
// C5): Begin opens a session, Run advances it one phase at a time and is
// safe to call repeatedly (each call re-checks the session's persisted
// phase rather than assuming it picks up where an in-memory caller left
// off — the same re-entrancy guard the teacher's SyncAlbumJob.Start applies
// before each task), Commit turns a COMPLETED, valid session into real
// assets, and Cancel discards one.
type Service struct {
	repo *Repository
	arch *archive.Archive
	log  *logger.StructuredLogger
}

func NewService(repo *Repository, arch *archive.Archive) *Service {
	return &Service{repo: repo, arch: arch, log: arch.Logger()}
}

// Begin creates a new ingest session rooted at collectionID, reading from
// sourcePath as sourceKind. When convert is true, read_metadata_object
// treats every raw metadata key as a human label rather than a schema
// property id, resolving it via a case-insensitive lookup against
// collectionID's merged schema (spec.md §4.5 read_metadata_object
// {convert}). The session starts in READ_METADATA; call Run to advance it.
func (s *Service) Begin(ctx context.Context, sourceKind entity.SourceKind, sourcePath, collectionID string, convert bool) (entity.IngestSession, error) {
	if _, err := s.arch.Collections.Get(ctx, collectionID); err != nil {
		return entity.IngestSession{}, err
	}

	session := entity.IngestSession{
		ID:           uuid.NewString(),
		SourcePath:   sourcePath,
		SourceKind:   sourceKind,
		CollectionID: collectionID,
		Phase:        entity.PhaseReadMetadata,
		Convert:      convert,
		CreatedAt:    time.Now(),
	}
	if err := s.repo.InsertSession(ctx, session); err != nil {
		return entity.IngestSession{}, err
	}
	s.log.Infow("ingest session started", "session_id", session.ID, "source_kind", sourceKind, "collection_id", collectionID)
	return session, nil
}

// Run advances session one phase and persists the result. COMPLETED and
// ERROR are terminal: calling Run again on either is a no-op that just
// returns the session as-is (spec.md §4.5 "run is idempotent and
// re-entrant").
func (s *Service) Run(ctx context.Context, sessionID string) (entity.IngestSession, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return entity.IngestSession{}, err
	}

	switch session.Phase {
	case entity.PhaseCompleted, entity.PhaseError:
		return session, nil
	case entity.PhaseReadMetadata:
		return s.runReadMetadata(ctx, session)
	case entity.PhaseReadFiles:
		return s.runReadFiles(ctx, session)
	case entity.PhaseProcessFiles:
		return s.runProcessFiles(ctx, session)
	default:
		return entity.IngestSession{}, fmt.Errorf("ingest: unknown session phase %q", session.Phase)
	}
}

func (s *Service) runReadMetadata(ctx context.Context, session entity.IngestSession) (entity.IngestSession, error) {
	src, err := OpenSource(session.SourceKind, session.SourcePath, session.CollectionID)
	if err != nil {
		return entity.IngestSession{}, err
	}
	defer src.Close()

	entries, err := src.ReadMetadata(ctx)
	if err != nil {
		return entity.IngestSession{}, err
	}

	if session.Convert {
		labels, err := s.labelToPropertyID(ctx, session.CollectionID)
		if err != nil {
			return entity.IngestSession{}, err
		}
		for i := range entries {
			entries[i].Metadata, err = s.convertMetadata(ctx, session.CollectionID, labels, entries[i].Metadata)
			if err != nil {
				return entity.IngestSession{}, err
			}
		}
	}

	for _, e := range entries {
		staged := entity.StagedAssetImport{
			SessionID:          session.ID,
			Locator:            e.Locator,
			AccessLevel:        e.AccessLevel,
			RedactedProperties: e.RedactedProperties,
			Metadata:           e.Metadata,
			Phase:              entity.PhaseReadMetadata,
			ForceID:            e.ForceID,
		}
		if err := s.repo.UpsertAssetImport(ctx, staged); err != nil {
			return entity.IngestSession{}, err
		}

		for _, f := range e.Files {
			m := entity.StagedMediaImport{SessionID: session.ID, Locator: e.Locator, RelativePath: f}
			if err := s.repo.UpsertMediaImport(ctx, m); err != nil {
				return entity.IngestSession{}, err
			}
		}
	}

	session.Phase = entity.PhaseReadFiles
	if err := s.repo.SetPhase(ctx, session.ID, session.Phase, false); err != nil {
		return entity.IngestSession{}, err
	}
	s.log.Debugw("ingest session read metadata", "session_id", session.ID, "assets", len(entries))
	return session, nil
}

// labelToPropertyID builds the case-insensitive label -> property id lookup
// a convert=true session resolves raw metadata keys against (spec.md §4.5).
// A property whose label collides case-insensitively with another keeps
// whichever one the merged schema lists last, the same "deeper wins" rule
// MergedSchema already applies to id collisions.
func (s *Service) labelToPropertyID(ctx context.Context, collectionID string) (map[string]string, error) {
	schema, err := s.arch.Collections.MergedSchema(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(schema))
	for _, p := range schema {
		out[strings.ToLower(p.Label)] = p.ID
	}
	return out, nil
}

// convertMetadata maps raw's keys from human labels to property ids via
// labels, then coerces each value through CastOrCreatePropertyValue so a
// spreadsheet column like "Date Taken" lands on the right schema property
// with its variant-appropriate representation. A key with no matching label
// is kept as-is and coerced as free text, mirroring the "else" branch
// CastOrCreatePropertyValue itself takes for an unknown property id.
func (s *Service) convertMetadata(ctx context.Context, collectionID string, labels map[string]string, raw entity.Metadata) (entity.Metadata, error) {
	out := make(entity.Metadata, len(raw))
	for key, values := range raw {
		propertyID, ok := labels[strings.ToLower(key)]
		if !ok {
			propertyID = key
		}
		coerced, err := s.arch.Collections.CastOrCreatePropertyValue(ctx, collectionID, propertyID, values)
		if err != nil {
			return nil, err
		}
		out[propertyID] = coerced
	}
	return out, nil
}

func (s *Service) runReadFiles(ctx context.Context, session entity.IngestSession) (entity.IngestSession, error) {
	src, err := OpenSource(session.SourceKind, session.SourcePath, session.CollectionID)
	if err != nil {
		return entity.IngestSession{}, err
	}
	defer src.Close()

	imports, err := s.repo.ListAssetImports(ctx, session.ID)
	if err != nil {
		return entity.IngestSession{}, err
	}

	for _, a := range imports {
		media, err := s.repo.ListMediaImports(ctx, session.ID, a.Locator)
		if err != nil {
			return entity.IngestSession{}, err
		}
		for _, m := range media {
			if !src.MediaExists(m.RelativePath) {
				m.Error = fmt.Sprintf("file %q not found in source", m.RelativePath)
				if err := s.repo.UpsertMediaImport(ctx, m); err != nil {
					return entity.IngestSession{}, err
				}
			}
		}
	}

	session.Phase = entity.PhaseProcessFiles
	if err := s.repo.SetPhase(ctx, session.ID, session.Phase, false); err != nil {
		return entity.IngestSession{}, err
	}
	return session, nil
}

func (s *Service) runProcessFiles(ctx context.Context, session entity.IngestSession) (entity.IngestSession, error) {
	src, err := OpenSource(session.SourceKind, session.SourcePath, session.CollectionID)
	if err != nil {
		return entity.IngestSession{}, err
	}
	defer src.Close()

	imports, err := s.repo.ListAssetImports(ctx, session.ID)
	if err != nil {
		return entity.IngestSession{}, err
	}

	sessionValid := true

	for _, a := range imports {
		media, err := s.repo.ListMediaImports(ctx, session.ID, a.Locator)
		if err != nil {
			return entity.IngestSession{}, err
		}

		processed, err := s.processMediaImports(ctx, src, media)
		if err != nil {
			return entity.IngestSession{}, err
		}

		assetValid := true
		for _, m := range processed {
			if m.Error != "" {
				assetValid = false
			}
			if err := s.repo.UpsertMediaImport(ctx, m); err != nil {
				return entity.IngestSession{}, err
			}
		}

		_, validationErrs, err := s.arch.Collections.ValidateMetadata(ctx, session.CollectionID, a.Metadata)
		if err != nil {
			return entity.IngestSession{}, err
		}
		if len(validationErrs) > 0 {
			assetValid = false
		}

		a.ValidationErrors = validationErrs
		a.Phase = entity.PhaseProcessFiles
		if err := s.repo.UpsertAssetImport(ctx, a); err != nil {
			return entity.IngestSession{}, err
		}

		if !assetValid {
			sessionValid = false
		}
	}

	if sessionValid {
		session.Phase = entity.PhaseCompleted
	} else {
		session.Phase = entity.PhaseError
	}
	session.Valid = sessionValid

	if err := s.repo.SetPhase(ctx, session.ID, session.Phase, session.Valid); err != nil {
		return entity.IngestSession{}, err
	}
	s.log.Infow("ingest session processed", "session_id", session.ID, "phase", session.Phase, "valid", session.Valid)
	return session, nil
}

// processMediaImports drives each not-yet-processed media import of one
// staged asset through the Media Store via a processing.Worker, the same
// pull-based worker the teacher used for its sync jobs, generalized here to
// PROCESS_FILES (spec.md §4.5): one item's failure never aborts the rest,
// it is just recorded on that item's Error field.
func (s *Service) processMediaImports(ctx context.Context, src Source, media []entity.StagedMediaImport) ([]entity.StagedMediaImport, error) {
	pending := make([]entity.StagedMediaImport, 0, len(media))
	done := make(map[string]entity.StagedMediaImport, len(media))
	for _, m := range media {
		if m.Error != "" || m.MediaID != nil {
			done[m.RelativePath] = m
			continue
		}
		pending = append(pending, m)
	}

	seq := func(yield func(entity.StagedMediaImport) bool) {
		for _, m := range pending {
			if !yield(m) {
				return
			}
		}
	}

	w := processing.NewWorker("process_media", iter.Seq[entity.StagedMediaImport](seq), func(ctx context.Context, m entity.StagedMediaImport) (entity.StagedMediaImport, error) {
		blobSrc, err := src.OpenMedia(m.RelativePath)
		if err != nil {
			m.Error = err.Error()
			return m, nil
		}
		mf, err := s.arch.Media.Put(ctx, blobSrc)
		if err != nil {
			m.Error = err.Error()
			return m, nil
		}
		m.MediaID = &mf.ID
		return m, nil
	})

	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(ctx) }()

	for r := range w.Output() {
		done[r.Data.RelativePath] = r.Data
	}
	if err := <-runErr; err != nil {
		return nil, err
	}

	out := make([]entity.StagedMediaImport, 0, len(media))
	for _, m := range media {
		out = append(out, done[m.RelativePath])
	}
	return out, nil
}

// CommitOptions controls how Commit resolves an asset id already present in
// the archive. AllowUpdateOnCollision is only ever set by the bootstrap
// flow: a bootstrap session replays a remote archive's own ids with
// ForceID, and spec.md §9's open question on force_id collisions resolves
// that case as "update in place" but leaves any other session whose ForceID
// collides with an existing asset to fail. An import without ForceID always
// creates a new asset.
type CommitOptions struct {
	AllowUpdateOnCollision bool
}

// Commit turns every staged asset import of a COMPLETED, valid session
// into a real asset, then deletes the session's staging rows. Commit
// refuses a session that is not COMPLETED and valid — caller must re-run
// it to find out why (spec.md §4.5 commit).
func (s *Service) Commit(ctx context.Context, sessionID string, opts CommitOptions) error {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Phase != entity.PhaseCompleted || !session.Valid {
		return fmt.Errorf("ingest: session %s is not ready to commit (phase=%s valid=%v)", sessionID, session.Phase, session.Valid)
	}

	imports, err := s.repo.ListAssetImports(ctx, session.ID)
	if err != nil {
		return err
	}

	return s.arch.WithUnitOfWork(ctx, func(ctx context.Context) error {
		for _, a := range imports {
			media, err := s.repo.ListMediaImports(ctx, session.ID, a.Locator)
			if err != nil {
				return err
			}
			var mediaIDs []string
			for _, m := range media {
				if m.MediaID != nil {
					mediaIDs = append(mediaIDs, *m.MediaID)
				}
			}

			params := asset.CreateAssetParams{
				AccessLevel:        a.AccessLevel,
				Metadata:           a.Metadata,
				RedactedProperties: a.RedactedProperties,
				MediaIDs:           mediaIDs,
				ForceID:            a.ForceID,
			}

			if a.ForceID != nil {
				existing, err := s.arch.Assets.Get(ctx, *a.ForceID)
				if err == nil {
					if !opts.AllowUpdateOnCollision {
						return fmt.Errorf("ingest: asset %s already exists", existing.ID)
					}
					_, err := s.arch.Assets.UpdateAsset(ctx, existing.ID, asset.UpdateAssetParams{
						Metadata:           a.Metadata,
						AccessLevel:        &a.AccessLevel,
						RedactedProperties: a.RedactedProperties,
					})
					if err != nil {
						return err
					}
					continue
				}
			}

			if _, err := s.arch.Assets.CreateAsset(ctx, session.CollectionID, params); err != nil {
				return err
			}
		}

		return s.repo.DeleteSession(ctx, session.ID)
	})
}

// Cancel discards a session: any media already put into the blob store
// during PROCESS_FILES is deleted, then the session and its staging rows
// are removed (cascading via the staged_asset_imports/staged_media_imports
// foreign keys).
func (s *Service) Cancel(ctx context.Context, sessionID string) error {
	imports, err := s.repo.ListAssetImports(ctx, sessionID)
	if err != nil {
		return err
	}

	var mediaIDs []string
	for _, a := range imports {
		media, err := s.repo.ListMediaImports(ctx, sessionID, a.Locator)
		if err != nil {
			return err
		}
		for _, m := range media {
			if m.MediaID != nil {
				mediaIDs = append(mediaIDs, *m.MediaID)
			}
		}
	}

	if len(mediaIDs) > 0 {
		s.arch.Media.Delete(ctx, mediaIDs)
	}

	return s.repo.DeleteSession(ctx, sessionID)
}
