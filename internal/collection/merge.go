package collection

import (
	"context"

	"github.com/conatus-oss/dana-archive/internal/archerr"
	"github.com/conatus-oss/dana-archive/internal/entity"
)

const maxAncestorDepth = 1000

// MergedSchema computes id's effective schema by walking to a reserved
// root, prepending ancestor properties and skipping any whose id was
// already seen at a deeper (more specific) level — so a child's own
// property definition always wins a same-id conflict with an ancestor's,
// while the merged order stays root-first with the child's own additions
// last (spec.md §3 "Merged schema").
func (s *Service) MergedSchema(ctx context.Context, id string) ([]entity.SchemaProperty, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.mergedSchemaFor(ctx, id, c.Schema)
}

// mergedSchemaFor computes the merged schema id would have if its own
// schema were ownSchema, without persisting anything — used by
// UpdateCollectionSchema to validate a proposed schema before committing it.
func (s *Service) mergedSchemaFor(ctx context.Context, id string, ownSchema []entity.SchemaProperty) ([]entity.SchemaProperty, error) {
	result := append([]entity.SchemaProperty{}, ownSchema...)
	seen := make(map[string]bool, len(result))
	for _, p := range result {
		seen[p.ID] = true
	}

	visited := map[string]bool{id: true}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	depth := 0
	for current.ParentID != nil {
		depth++
		if depth > maxAncestorDepth {
			return nil, archerr.NewSchemaCycleError(ctx, id)
		}

		parentID := *current.ParentID
		if visited[parentID] {
			return nil, archerr.NewSchemaCycleError(ctx, id)
		}
		visited[parentID] = true

		parent, err := s.repo.Get(ctx, parentID)
		if err != nil {
			return nil, err
		}

		var unseen []entity.SchemaProperty
		for _, p := range parent.Schema {
			if !seen[p.ID] {
				seen[p.ID] = true
				unseen = append(unseen, p)
			}
		}
		result = append(unseen, result...)

		current = parent
	}

	return result, nil
}

// ValidateMetadata computes id's merged schema and validates raw against
// it, implementing the asset package's SchemaResolver interface.
func (s *Service) ValidateMetadata(ctx context.Context, collectionID string, raw entity.Metadata) (entity.Metadata, entity.ValidationErrors, error) {
	schema, err := s.MergedSchema(ctx, collectionID)
	if err != nil {
		return nil, nil, err
	}
	return s.validate(ctx, schema, raw)
}

// CastOrCreatePropertyValue is the single entry point for coercing one
// property's raw values, per spec.md §4.4. It returns an error only if the
// raw value is structurally impossible; blank values resolve to "" rather
// than an error, which callers treat as "no value".
func (s *Service) CastOrCreatePropertyValue(ctx context.Context, collectionID, propertyID string, raw []string) ([]string, error) {
	schema, err := s.MergedSchema(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	for _, p := range schema {
		if p.ID == propertyID {
			coerced, _, err := s.coerceValues(ctx, p, raw)
			return coerced, err
		}
	}
	return coerceFreeText(raw), nil
}

// CollectionType reports whether id descends from the Assets root or the
// Controlled-Databases root (spec.md §3 invariant 1).
func (s *Service) CollectionType(ctx context.Context, id string) (entity.CollectionType, error) {
	visited := map[string]bool{}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}

	depth := 0
	for {
		switch current.ID {
		case entity.RootAssetCollectionID:
			return entity.AssetCollection, nil
		case entity.RootDatabaseCollectionID:
			return entity.ControlledDatabase, nil
		}

		if current.ParentID == nil {
			return "", archerr.NewDatabaseInconsistencyError(ctx, "collection_type",
				errCollectionMissingRoot(current.ID))
		}

		depth++
		if depth > maxAncestorDepth || visited[current.ID] {
			return "", archerr.NewSchemaCycleError(ctx, id)
		}
		visited[current.ID] = true

		current, err = s.repo.Get(ctx, *current.ParentID)
		if err != nil {
			return "", err
		}
	}
}

type collectionMissingRootError struct{ id string }

func (e collectionMissingRootError) Error() string {
	return "collection " + e.id + " has no path to a reserved root"
}

func errCollectionMissingRoot(id string) error {
	return collectionMissingRootError{id: id}
}
