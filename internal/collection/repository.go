// Package collection implements the Collection Service (spec.md C3):
// CRUD over collections, merged-schema computation by walking to a
// reserved root, record validation, reverse-reference lookup, and the
// label-record conveniences controlled databases support. Grounded on the
// teacher's internal/datastore/pg query/writer split, reworked onto the
// embedded store.
package collection

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	sq "github.com/Masterminds/squirrel"

	"github.com/conatus-oss/dana-archive/internal/archerr"
	"github.com/conatus-oss/dana-archive/internal/entity"
	"github.com/conatus-oss/dana-archive/internal/store"
)

const collectionsTable = "collections"

// Repository is the raw SQL layer for collections; Service builds the
// domain rules (merged schema, validation, label records) on top of it.
type Repository struct {
	st *store.Store
}

func NewRepository(st *store.Store) *Repository {
	return &Repository{st: st}
}

type row struct {
	ID         string
	Title      string
	ParentID   sql.NullString
	SchemaJSON string
}

func (r row) toEntity() (entity.Collection, error) {
	var schema []entity.SchemaProperty
	if err := json.Unmarshal([]byte(r.SchemaJSON), &schema); err != nil {
		return entity.Collection{}, err
	}

	c := entity.Collection{ID: r.ID, Title: r.Title, Schema: schema}
	if r.ParentID.Valid {
		pid := r.ParentID.String
		c.ParentID = &pid
	}
	return c, nil
}

func (repo *Repository) Get(ctx context.Context, id string) (entity.Collection, error) {
	q, args, err := store.Select("id", "title", "parent_id", "schema_json").
		From(collectionsTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return entity.Collection{}, err
	}

	var r row
	err = repo.st.QueryRowContext(ctx, q, args...).Scan(&r.ID, &r.Title, &r.ParentID, &r.SchemaJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.Collection{}, archerr.NewCollectionNotFoundError(ctx, id)
	}
	if err != nil {
		return entity.Collection{}, archerr.NewDatabaseInconsistencyError(ctx, "get_collection", err)
	}

	return r.toEntity()
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

func (repo *Repository) List(ctx context.Context, opts ...store.QueryOption) ([]entity.Collection, error) {
	query := store.Select("id", "title", "parent_id", "schema_json").From(collectionsTable).OrderBy("id")
	for _, opt := range opts {
		query = opt(query)
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := repo.st.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, archerr.NewDatabaseInconsistencyError(ctx, "list_collections", err)
	}
	defer rows.Close()

	var out []entity.Collection
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.ID, &r.Title, &r.ParentID, &r.SchemaJSON); err != nil {
			return nil, archerr.NewDatabaseInconsistencyError(ctx, "list_collections", err)
		}
		c, err := r.toEntity()
		if err != nil {
			return nil, archerr.NewDatabaseInconsistencyError(ctx, "list_collections", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Children returns the direct children of parentID, or the roots (parent_id
// IS NULL) when parentID is empty.
func (repo *Repository) Children(ctx context.Context, parentID string) ([]entity.Collection, error) {
	return repo.List(ctx, FilterByParentID(parentID))
}

// Count applies the same filter options as List but returns only the row
// count, for pagination's Page.Total.
func (repo *Repository) Count(ctx context.Context, opts ...store.QueryOption) (int, error) {
	query := store.Select("COUNT(*)").From(collectionsTable)
	for _, opt := range opts {
		query = opt(query)
	}
	q, args, err := query.ToSql()
	if err != nil {
		return 0, err
	}
	var total int
	if err := repo.st.QueryRowContext(ctx, q, args...).Scan(&total); err != nil {
		return 0, archerr.NewDatabaseInconsistencyError(ctx, "count_collections", err)
	}
	return total, nil
}

// PageOption appends a LIMIT/OFFSET window to a query built with List.
func PageOption(offset, limit int) store.QueryOption {
	return func(q sq.SelectBuilder) sq.SelectBuilder {
		q = q.Limit(uint64(limit))
		if offset > 0 {
			q = q.Offset(uint64(offset))
		}
		return q
	}
}

func FilterByParentID(parentID string) store.QueryOption {
	return func(q sq.SelectBuilder) sq.SelectBuilder {
		if parentID == "" {
			return q.Where("parent_id IS NULL")
		}
		return q.Where(sq.Eq{"parent_id": parentID})
	}
}

func (repo *Repository) Insert(ctx context.Context, c entity.Collection) error {
	schemaJSON, err := json.Marshal(c.Schema)
	if err != nil {
		return err
	}

	q, args, err := store.Insert(collectionsTable).
		Columns("id", "title", "parent_id", "schema_json").
		Values(c.ID, c.Title, c.ParentID, string(schemaJSON)).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := repo.st.ExecContext(ctx, q, args...); err != nil {
		return archerr.NewDatabaseInconsistencyError(ctx, "create_collection", err)
	}
	return nil
}

func (repo *Repository) UpdateTitle(ctx context.Context, id, title string) error {
	q, args, err := store.Update(collectionsTable).
		Set("title", title).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := repo.st.ExecContext(ctx, q, args...); err != nil {
		return archerr.NewDatabaseInconsistencyError(ctx, "update_collection", err)
	}
	return nil
}

func (repo *Repository) UpdateSchema(ctx context.Context, id string, schema []entity.SchemaProperty) error {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return err
	}

	q, args, err := store.Update(collectionsTable).
		Set("schema_json", string(schemaJSON)).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := repo.st.ExecContext(ctx, q, args...); err != nil {
		return archerr.NewDatabaseInconsistencyError(ctx, "update_collection_schema", err)
	}
	return nil
}

func (repo *Repository) Delete(ctx context.Context, id string) error {
	q, args, err := store.Delete(collectionsTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	if _, err := repo.st.ExecContext(ctx, q, args...); err != nil {
		return archerr.NewDatabaseInconsistencyError(ctx, "delete_collection", err)
	}
	return nil
}
