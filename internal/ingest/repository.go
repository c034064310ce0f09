// Package ingest implements the Ingest Engine (spec.md C5): a resumable
// staging workspace that reads a bundle, spreadsheet or directory tree of
// media into staged asset/media rows, validates them against a collection's
// merged schema, and commits the valid ones as real assets. Grounded on the
// teacher's pkg/job.SyncAlbumJob task/run-loop: a single-threaded state
// machine re-entered by Run rather than a goroutine that blocks a caller.
package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/conatus-oss/dana-archive/internal/archerr"
	"github.com/conatus-oss/dana-archive/internal/entity"
	"github.com/conatus-oss/dana-archive/internal/store"
)

const (
	sessionsTable     = "ingest_sessions"
	stagedAssetsTable = "staged_asset_imports"
	stagedMediaTable  = "staged_media_imports"
)

type Repository struct {
	st *store.Store
}

func NewRepository(st *store.Store) *Repository {
	return &Repository{st: st}
}

type sessionRow struct {
	ID           string
	SourcePath   string
	SourceKind   string
	CollectionID string
	Phase        string
	Valid        bool
	Convert      bool
	CreatedAt    time.Time
}

func (r sessionRow) toEntity() entity.IngestSession {
	return entity.IngestSession{
		ID:           r.ID,
		SourcePath:   r.SourcePath,
		SourceKind:   entity.SourceKind(r.SourceKind),
		CollectionID: r.CollectionID,
		Phase:        entity.IngestPhase(r.Phase),
		Valid:        r.Valid,
		Convert:      r.Convert,
		CreatedAt:    r.CreatedAt,
	}
}

func (repo *Repository) InsertSession(ctx context.Context, s entity.IngestSession) error {
	q, args, err := store.Insert(sessionsTable).
		Columns("id", "source_path", "source_kind", "collection_id", "phase", "valid", "convert", "created_at").
		Values(s.ID, s.SourcePath, string(s.SourceKind), s.CollectionID, string(s.Phase), s.Valid, s.Convert, s.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := repo.st.ExecContext(ctx, q, args...); err != nil {
		return archerr.NewDatabaseInconsistencyError(ctx, "create_ingest_session", err)
	}
	return nil
}

func (repo *Repository) GetSession(ctx context.Context, id string) (entity.IngestSession, error) {
	q, args, err := store.Select("id", "source_path", "source_kind", "collection_id", "phase", "valid", "convert", "created_at").
		From(sessionsTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return entity.IngestSession{}, err
	}

	var r sessionRow
	err = repo.st.QueryRowContext(ctx, q, args...).
		Scan(&r.ID, &r.SourcePath, &r.SourceKind, &r.CollectionID, &r.Phase, &r.Valid, &r.Convert, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		nf := archerr.NewNotFoundError(ctx, "get_ingest_session", "ingest_session_not_found")
		nf.WithContext("session_id", id)
		return entity.IngestSession{}, nf
	}
	if err != nil {
		return entity.IngestSession{}, archerr.NewDatabaseInconsistencyError(ctx, "get_ingest_session", err)
	}
	return r.toEntity(), nil
}

func (repo *Repository) SetPhase(ctx context.Context, id string, phase entity.IngestPhase, valid bool) error {
	q, args, err := store.Update(sessionsTable).
		Set("phase", string(phase)).
		Set("valid", valid).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := repo.st.ExecContext(ctx, q, args...); err != nil {
		return archerr.NewDatabaseInconsistencyError(ctx, "update_ingest_session", err)
	}
	return nil
}

func (repo *Repository) DeleteSession(ctx context.Context, id string) error {
	q, args, err := store.Delete(sessionsTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	if _, err := repo.st.ExecContext(ctx, q, args...); err != nil {
		return archerr.NewDatabaseInconsistencyError(ctx, "delete_ingest_session", err)
	}
	return nil
}

type assetImportRow struct {
	Locator            string
	AccessLevel        string
	RedactedJSON       string
	MetadataJSON       string
	ValidationJSON     string
	Phase              string
	ForceID            sql.NullString
}

func (r assetImportRow) toEntity(sessionID string) (entity.StagedAssetImport, error) {
	var metadata entity.Metadata
	if err := json.Unmarshal([]byte(r.MetadataJSON), &metadata); err != nil {
		return entity.StagedAssetImport{}, err
	}
	var redacted []string
	if err := json.Unmarshal([]byte(r.RedactedJSON), &redacted); err != nil {
		return entity.StagedAssetImport{}, err
	}
	var verrs entity.ValidationErrors
	if err := json.Unmarshal([]byte(r.ValidationJSON), &verrs); err != nil {
		return entity.StagedAssetImport{}, err
	}

	out := entity.StagedAssetImport{
		SessionID:          sessionID,
		Locator:            r.Locator,
		AccessLevel:        entity.AccessLevel(r.AccessLevel),
		RedactedProperties: redacted,
		Metadata:           metadata,
		ValidationErrors:   verrs,
		Phase:              entity.IngestPhase(r.Phase),
	}
	if r.ForceID.Valid {
		id := r.ForceID.String
		out.ForceID = &id
	}
	return out, nil
}

// UpsertAssetImport inserts or replaces the staged asset import keyed on
// (session, locator) — spec.md §4.5 read_metadata_object is idempotent on
// repeated reads of the same locator, so re-ingesting a source overwrites
// rather than duplicates.
func (repo *Repository) UpsertAssetImport(ctx context.Context, s entity.StagedAssetImport) error {
	metadataJSON, err := json.Marshal(s.Metadata)
	if err != nil {
		return err
	}
	redactedJSON, err := json.Marshal(nonNilStrings(s.RedactedProperties))
	if err != nil {
		return err
	}
	verrsJSON, err := json.Marshal(s.ValidationErrors)
	if err != nil {
		return err
	}

	del, args, err := store.Delete(stagedAssetsTable).
		Where(sq.Eq{"session_id": s.SessionID, "locator": s.Locator}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := repo.st.ExecContext(ctx, del, args...); err != nil {
		return archerr.NewDatabaseInconsistencyError(ctx, "stage_asset_import", err)
	}

	q, args, err := store.Insert(stagedAssetsTable).
		Columns("session_id", "locator", "access_level", "redacted_properties_json", "metadata_json", "validation_errors_json", "phase", "force_id").
		Values(s.SessionID, s.Locator, string(s.AccessLevel), string(redactedJSON), string(metadataJSON), string(verrsJSON), string(s.Phase), s.ForceID).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := repo.st.ExecContext(ctx, q, args...); err != nil {
		return archerr.NewDatabaseInconsistencyError(ctx, "stage_asset_import", err)
	}
	return nil
}

func (repo *Repository) ListAssetImports(ctx context.Context, sessionID string) ([]entity.StagedAssetImport, error) {
	q, args, err := store.Select("locator", "access_level", "redacted_properties_json", "metadata_json", "validation_errors_json", "phase", "force_id").
		From(stagedAssetsTable).
		Where(sq.Eq{"session_id": sessionID}).
		OrderBy("locator").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := repo.st.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, archerr.NewDatabaseInconsistencyError(ctx, "list_staged_asset_imports", err)
	}
	defer rows.Close()

	var out []entity.StagedAssetImport
	for rows.Next() {
		var r assetImportRow
		if err := rows.Scan(&r.Locator, &r.AccessLevel, &r.RedactedJSON, &r.MetadataJSON, &r.ValidationJSON, &r.Phase, &r.ForceID); err != nil {
			return nil, archerr.NewDatabaseInconsistencyError(ctx, "list_staged_asset_imports", err)
		}
		a, err := r.toEntity(sessionID)
		if err != nil {
			return nil, archerr.NewDatabaseInconsistencyError(ctx, "list_staged_asset_imports", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type mediaImportRow struct {
	Locator      string
	RelativePath string
	Error        string
	MediaID      sql.NullString
}

func (r mediaImportRow) toEntity(sessionID string) entity.StagedMediaImport {
	out := entity.StagedMediaImport{
		SessionID:    sessionID,
		Locator:      r.Locator,
		RelativePath: r.RelativePath,
		Error:        r.Error,
	}
	if r.MediaID.Valid {
		id := r.MediaID.String
		out.MediaID = &id
	}
	return out
}

func (repo *Repository) UpsertMediaImport(ctx context.Context, m entity.StagedMediaImport) error {
	del, args, err := store.Delete(stagedMediaTable).
		Where(sq.Eq{"session_id": m.SessionID, "locator": m.Locator, "relative_path": m.RelativePath}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := repo.st.ExecContext(ctx, del, args...); err != nil {
		return archerr.NewDatabaseInconsistencyError(ctx, "stage_media_import", err)
	}

	q, args, err := store.Insert(stagedMediaTable).
		Columns("session_id", "locator", "relative_path", "error", "media_id").
		Values(m.SessionID, m.Locator, m.RelativePath, m.Error, m.MediaID).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := repo.st.ExecContext(ctx, q, args...); err != nil {
		return archerr.NewDatabaseInconsistencyError(ctx, "stage_media_import", err)
	}
	return nil
}

func (repo *Repository) ListMediaImports(ctx context.Context, sessionID, locator string) ([]entity.StagedMediaImport, error) {
	q, args, err := store.Select("locator", "relative_path", "error", "media_id").
		From(stagedMediaTable).
		Where(sq.Eq{"session_id": sessionID, "locator": locator}).
		OrderBy("relative_path").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := repo.st.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, archerr.NewDatabaseInconsistencyError(ctx, "list_staged_media_imports", err)
	}
	defer rows.Close()

	var out []entity.StagedMediaImport
	for rows.Next() {
		var r mediaImportRow
		if err := rows.Scan(&r.Locator, &r.RelativePath, &r.Error, &r.MediaID); err != nil {
			return nil, archerr.NewDatabaseInconsistencyError(ctx, "list_staged_media_imports", err)
		}
		out = append(out, r.toEntity(sessionID))
	}
	return out, rows.Err()
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
