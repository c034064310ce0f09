package blob

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/conatus-oss/dana-archive/internal/archerr"
	"github.com/conatus-oss/dana-archive/internal/entity"
	"github.com/conatus-oss/dana-archive/internal/store"
)

const mediaFilesTable = "media_files"

type Repository struct {
	st *store.Store
}

func NewRepository(st *store.Store) *Repository {
	return &Repository{st: st}
}

type row struct {
	ID         string
	AssetID    sql.NullString
	MimeType   string
	SHA256     string
	Extension  string
	CapturedAt sql.NullTime
	CreatedAt  time.Time
}

func (r row) toEntity() entity.MediaFile {
	mf := entity.MediaFile{
		ID:        r.ID,
		MimeType:  r.MimeType,
		SHA256:    r.SHA256,
		Extension: r.Extension,
		CreatedAt: r.CreatedAt,
	}
	if r.AssetID.Valid {
		id := r.AssetID.String
		mf.AssetID = &id
	}
	if r.CapturedAt.Valid {
		t := r.CapturedAt.Time
		mf.CapturedAt = &t
	}
	return mf
}

func (repo *Repository) Get(ctx context.Context, id string) (entity.MediaFile, error) {
	q, args, err := store.Select("id", "asset_id", "mime_type", "sha256", "extension", "captured_at", "created_at").
		From(mediaFilesTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return entity.MediaFile{}, err
	}

	var r row
	err = repo.st.QueryRowContext(ctx, q, args...).
		Scan(&r.ID, &r.AssetID, &r.MimeType, &r.SHA256, &r.Extension, &r.CapturedAt, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.MediaFile{}, archerr.NewMediaNotFoundError(ctx, id)
	}
	if err != nil {
		return entity.MediaFile{}, archerr.NewDatabaseInconsistencyError(ctx, "get_media", err)
	}

	return r.toEntity(), nil
}

func (repo *Repository) Insert(ctx context.Context, mf entity.MediaFile) error {
	q, args, err := store.Insert(mediaFilesTable).
		Columns("id", "asset_id", "mime_type", "sha256", "extension", "captured_at", "created_at").
		Values(mf.ID, mf.AssetID, mf.MimeType, mf.SHA256, mf.Extension, mf.CapturedAt, mf.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := repo.st.ExecContext(ctx, q, args...); err != nil {
		return archerr.NewDatabaseInconsistencyError(ctx, "put_media", err)
	}
	return nil
}

func (repo *Repository) SetAssetID(ctx context.Context, mediaID, assetID string) error {
	q, args, err := store.Update(mediaFilesTable).
		Set("asset_id", assetID).
		Where(sq.Eq{"id": mediaID}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := repo.st.ExecContext(ctx, q, args...); err != nil {
		return archerr.NewDatabaseInconsistencyError(ctx, "update_media", err)
	}
	return nil
}

func (repo *Repository) Delete(ctx context.Context, id string) error {
	q, args, err := store.Delete(mediaFilesTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	if _, err := repo.st.ExecContext(ctx, q, args...); err != nil {
		return archerr.NewDatabaseInconsistencyError(ctx, "delete_media", err)
	}
	return nil
}

// FindBySHA256 looks up an existing media record by content hash, used by
// the sync protocol's dedup step.
func (repo *Repository) FindBySHA256(ctx context.Context, sha string) (entity.MediaFile, bool, error) {
	q, args, err := store.Select("id", "asset_id", "mime_type", "sha256", "extension", "captured_at", "created_at").
		From(mediaFilesTable).
		Where(sq.Eq{"sha256": sha}).
		Limit(1).
		ToSql()
	if err != nil {
		return entity.MediaFile{}, false, err
	}

	var r row
	err = repo.st.QueryRowContext(ctx, q, args...).
		Scan(&r.ID, &r.AssetID, &r.MimeType, &r.SHA256, &r.Extension, &r.CapturedAt, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.MediaFile{}, false, nil
	}
	if err != nil {
		return entity.MediaFile{}, false, archerr.NewDatabaseInconsistencyError(ctx, "find_media_by_hash", err)
	}
	return r.toEntity(), true, nil
}
