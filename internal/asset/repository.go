// Package asset implements the Asset Service (spec.md C4): creating,
// updating, moving and deleting assets inside a collection, coercing
// incoming metadata to schema-typed values, and enforcing referential
// integrity on delete. Grounded on the teacher's internal/datastore/pg
// writer/query split, reworked onto the embedded store.
package asset

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
	assetsTable      = "assets"
	assetMediaTable  = "asset_media"
)

type Repository struct {
	st *store.Store
}

func NewRepository(st *store.Store) *Repository {
	return &Repository{st: st}
}

// WithUnitOfWork runs fn inside the store's unit of work, letting the
// service wrap a multi-step operation (e.g. deleting several assets) in one
// scope without exposing the underlying *store.Store itself.
func (r *Repository) WithUnitOfWork(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.st.WithUnitOfWork(ctx, fn)
}

type row struct {
	ID                 string
	CollectionID       string
	AccessLevel        string
	MetadataJSON       string
	RedactedJSON       string
	CreatedAt          time.Time
}

func (r row) toEntity() (entity.Asset, error) {
	var metadata entity.Metadata
	if err := json.Unmarshal([]byte(r.MetadataJSON), &metadata); err != nil {
		return entity.Asset{}, err
	}
	var redacted []string
	if err := json.Unmarshal([]byte(r.RedactedJSON), &redacted); err != nil {
		return entity.Asset{}, err
	}

	return entity.Asset{
		ID:                 r.ID,
		CollectionID:       r.CollectionID,
		AccessLevel:        entity.AccessLevel(r.AccessLevel),
		Metadata:           metadata,
		RedactedProperties: redacted,
		CreatedAt:          r.CreatedAt,
	}, nil
}

func (repo *Repository) Get(ctx context.Context, id string) (entity.Asset, error) {
	q, args, err := store.Select("id", "collection_id", "access_level", "metadata_json", "redacted_properties_json", "created_at").
		From(assetsTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return entity.Asset{}, err
	}

	var r row
	err = repo.st.QueryRowContext(ctx, q, args...).
		Scan(&r.ID, &r.CollectionID, &r.AccessLevel, &r.MetadataJSON, &r.RedactedJSON, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Asset{}, archerr.NewAssetNotFoundError(ctx, id)
	}
	if err != nil {
		return entity.Asset{}, archerr.NewDatabaseInconsistencyError(ctx, "get_asset", err)
	}

	a, err := r.toEntity()
	if err != nil {
		return entity.Asset{}, archerr.NewDatabaseInconsistencyError(ctx, "get_asset", err)
	}

	a.MediaIDs, err = repo.mediaIDs(ctx, id)
	if err != nil {
		return entity.Asset{}, err
	}
	return a, nil
}

func (repo *Repository) Exists(ctx context.Context, id string) (bool, error) {
	_, err := repo.Get(ctx, id)
	if err != nil {
		var nf *archerr.NotFoundError
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (repo *Repository) mediaIDs(ctx context.Context, assetID string) ([]string, error) {
	q, args, err := store.Select("media_id").From(assetMediaTable).Where(sq.Eq{"asset_id": assetID}).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := repo.st.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, archerr.NewDatabaseInconsistencyError(ctx, "get_asset_media", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// List applies opts (filters, pagination) over the assets table.
func (repo *Repository) List(ctx context.Context, opts ...store.QueryOption) ([]entity.Asset, error) {
	query := store.Select("id", "collection_id", "access_level", "metadata_json", "redacted_properties_json", "created_at").
		From(assetsTable).
		OrderBy("id")
	for _, opt := range opts {
		query = opt(query)
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := repo.st.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, archerr.NewDatabaseInconsistencyError(ctx, "list_assets", err)
	}
	defer rows.Close()

	var out []entity.Asset
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.ID, &r.CollectionID, &r.AccessLevel, &r.MetadataJSON, &r.RedactedJSON, &r.CreatedAt); err != nil {
			return nil, archerr.NewDatabaseInconsistencyError(ctx, "list_assets", err)
		}
		a, err := r.toEntity()
		if err != nil {
			return nil, archerr.NewDatabaseInconsistencyError(ctx, "list_assets", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		ids, err := repo.mediaIDs(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].MediaIDs = ids
	}
	return out, nil
}

func (repo *Repository) Count(ctx context.Context, opts ...store.QueryOption) (int, error) {
	query := store.Select("COUNT(*)").From(assetsTable)
	for _, opt := range opts {
		query = opt(query)
	}
	q, args, err := query.ToSql()
	if err != nil {
		return 0, err
	}
	var total int
	if err := repo.st.QueryRowContext(ctx, q, args...).Scan(&total); err != nil {
		return 0, archerr.NewDatabaseInconsistencyError(ctx, "count_assets", err)
	}
	return total, nil
}

func FilterByCollectionIDs(ids []string) store.QueryOption {
	return func(q sq.SelectBuilder) sq.SelectBuilder {
		if len(ids) == 0 {
			return q
		}
		return q.Where(sq.Eq{"collection_id": ids})
	}
}

// PageOption appends a LIMIT/OFFSET window directly, for callers (like
// ForEachAssetInCollections) that page through results rather than asking
// for a total count.
func PageOption(offset, limit int) store.QueryOption {
	return func(q sq.SelectBuilder) sq.SelectBuilder {
		q = q.Limit(uint64(limit))
		if offset > 0 {
			q = q.Offset(uint64(offset))
		}
		return q
	}
}

func (repo *Repository) Insert(ctx context.Context, a entity.Asset) error {
	metadataJSON, err := json.Marshal(a.Metadata)
	if err != nil {
		return err
	}
	redactedJSON, err := json.Marshal(nonNilStrings(a.RedactedProperties))
	if err != nil {
		return err
	}

	q, args, err := store.Insert(assetsTable).
		Columns("id", "collection_id", "access_level", "metadata_json", "redacted_properties_json", "created_at").
		Values(a.ID, a.CollectionID, string(a.AccessLevel), string(metadataJSON), string(redactedJSON), a.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := repo.st.ExecContext(ctx, q, args...); err != nil {
		return archerr.NewDatabaseInconsistencyError(ctx, "create_asset", err)
	}

	return repo.setMedia(ctx, a.ID, a.MediaIDs)
}

func (repo *Repository) Update(ctx context.Context, a entity.Asset) error {
	metadataJSON, err := json.Marshal(a.Metadata)
	if err != nil {
		return err
	}
	redactedJSON, err := json.Marshal(nonNilStrings(a.RedactedProperties))
	if err != nil {
		return err
	}

	q, args, err := store.Update(assetsTable).
		Set("collection_id", a.CollectionID).
		Set("access_level", string(a.AccessLevel)).
		Set("metadata_json", string(metadataJSON)).
		Set("redacted_properties_json", string(redactedJSON)).
		Where(sq.Eq{"id": a.ID}).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := repo.st.ExecContext(ctx, q, args...); err != nil {
		return archerr.NewDatabaseInconsistencyError(ctx, "update_asset", err)
	}

	return repo.setMedia(ctx, a.ID, a.MediaIDs)
}

func (repo *Repository) setMedia(ctx context.Context, assetID string, mediaIDs []string) error {
	del, args, err := store.Delete(assetMediaTable).Where(sq.Eq{"asset_id": assetID}).ToSql()
	if err != nil {
		return err
	}
	if _, err := repo.st.ExecContext(ctx, del, args...); err != nil {
		return archerr.NewDatabaseInconsistencyError(ctx, "update_asset_media", err)
	}

	for _, mediaID := range mediaIDs {
		ins, args, err := store.Insert(assetMediaTable).Columns("asset_id", "media_id").Values(assetID, mediaID).ToSql()
		if err != nil {
			return err
		}
		if _, err := repo.st.ExecContext(ctx, ins, args...); err != nil {
			return archerr.NewDatabaseInconsistencyError(ctx, "update_asset_media", err)
		}
	}
	return nil
}

func (repo *Repository) Delete(ctx context.Context, id string) error {
	delMedia, args, err := store.Delete(assetMediaTable).Where(sq.Eq{"asset_id": id}).ToSql()
	if err != nil {
		return err
	}
	if _, err := repo.st.ExecContext(ctx, delMedia, args...); err != nil {
		return archerr.NewDatabaseInconsistencyError(ctx, "delete_asset", err)
	}

	q, args, err := store.Delete(assetsTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	if _, err := repo.st.ExecContext(ctx, q, args...); err != nil {
		return archerr.NewDatabaseInconsistencyError(ctx, "delete_asset", err)
	}
	return nil
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
