package store

import (
	sq "github.com/Masterminds/squirrel"

	"github.com/conatus-oss/dana-archive/internal/entity"
)

// psql is the squirrel statement builder configured for sqlite3's "?"
// placeholders (the teacher's pg package uses sq.Dollar for Postgres; the
// placeholder style is the only thing that changes).
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Select, Insert, Update and Delete expose the shared statement builder to
// repository packages so every query in the module uses one consistent
// placeholder configuration.
func Select(columns ...string) sq.SelectBuilder { return psql.Select(columns...) }
func Insert(table string) sq.InsertBuilder      { return psql.Insert(table) }
func Update(table string) sq.UpdateBuilder      { return psql.Update(table) }
func Delete(table string) sq.DeleteBuilder      { return psql.Delete(table) }

// QueryOption composes onto a SELECT statement, following the teacher's
// internal/datastore/pg.QueryOption pattern.
type QueryOption func(sq.SelectBuilder) sq.SelectBuilder

// ApplyPage appends LIMIT limit to query, plus OFFSET pr.Offset when it is
// positive. It does no clamping and ignores pr.Limit: callers pass the
// already-clamped limit, and run their COUNT(*) query separately.
func ApplyPage(query sq.SelectBuilder, pr entity.PageRange, limit int) sq.SelectBuilder {
	query = query.Limit(uint64(limit))
	if pr.Offset > 0 {
		query = query.Offset(uint64(pr.Offset))
	}
	return query
}

