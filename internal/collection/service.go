package collection

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/conatus-oss/dana-archive/internal/archerr"
	"github.com/conatus-oss/dana-archive/internal/entity"
	"github.com/conatus-oss/dana-archive/internal/events"
	"github.com/conatus-oss/dana-archive/internal/store"
	"github.com/conatus-oss/dana-archive/pkg/logger"
)

func newCollectionID() string {
	return uuid.NewString()
}

// AssetResolver is the narrow view of the Asset Service the Collection
// Service needs: resolving a controlled-database-reference raw value
// (either an existing asset id, or — for label-record collections — a
// label to look up or create on the fly) and walking every asset in a set
// of collections so a schema update can revalidate the whole subtree.
// Defined here rather than imported from package asset to avoid an import
// cycle: the Asset Service depends on this service for merged-schema
// resolution through its own asset.SchemaResolver, so the dependency the
// other direction is expressed as an interface and wired up by the caller
// (internal/archive).
type AssetResolver interface {
	AssetExists(ctx context.Context, collectionID, assetID string) (bool, error)
	FindOrCreateLabelRecord(ctx context.Context, collectionID, label string) (string, error)
	ForEachAssetInCollections(ctx context.Context, collectionIDs []string, chunkSize int, fn func(entity.Asset) error) error
}

// Service implements the Collection Service (spec.md C3).
type Service struct {
	repo    *Repository
	assets  AssetResolver
	bus     *events.Bus
	log     *logger.StructuredLogger
}

func NewService(repo *Repository, assets AssetResolver, bus *events.Bus, log *logger.StructuredLogger) *Service {
	return &Service{repo: repo, assets: assets, bus: bus, log: log}
}

// GetRootAssetCollection returns the reserved Assets root, creating it with
// an empty schema on first call.
func (s *Service) GetRootAssetCollection(ctx context.Context) (entity.Collection, error) {
	return s.getOrCreateRoot(ctx, entity.RootAssetCollectionID, "Assets")
}

// GetRootDatabaseCollection returns the reserved Controlled-Databases root,
// creating it with an empty schema on first call.
func (s *Service) GetRootDatabaseCollection(ctx context.Context) (entity.Collection, error) {
	return s.getOrCreateRoot(ctx, entity.RootDatabaseCollectionID, "Controlled Databases")
}

func (s *Service) getOrCreateRoot(ctx context.Context, id, title string) (entity.Collection, error) {
	existing, err := s.repo.Get(ctx, id)
	if err == nil {
		return existing, nil
	}
	if !isNotFound(err) {
		return entity.Collection{}, err
	}

	c := entity.Collection{ID: id, Title: title, Schema: []entity.SchemaProperty{}}
	if err := s.repo.Insert(ctx, c); err != nil {
		return entity.Collection{}, err
	}
	return c, nil
}

func isNotFound(err error) bool {
	var nf *archerr.NotFoundError
	return errors.As(err, &nf)
}

// Get returns one collection by id.
func (s *Service) Get(ctx context.Context, id string) (entity.Collection, error) {
	return s.repo.Get(ctx, id)
}

// ListChildren paginates the direct children of parentID (spec.md §4.1
// generic list operation), pr.Limit assumed already clamped by the caller.
func (s *Service) ListChildren(ctx context.Context, parentID string, pr entity.PageRange) (entity.Page[entity.Collection], error) {
	filter := FilterByParentID(parentID)
	return store.Paginate(pr,
		func() (int, error) { return s.repo.Count(ctx, filter) },
		func(pr entity.PageRange) ([]entity.Collection, error) {
			return s.repo.List(ctx, filter, PageOption(pr.Offset, pr.Limit))
		})
}

// CreateCollectionParams is the input to CreateCollection.
type CreateCollectionParams struct {
	Title   string
	Schema  []entity.SchemaProperty
	ForceID *string
}

// CreateCollection inserts a new collection under parentID, emitting a
// `created` change event with the new id. ForceID (used by bootstrap to
// recreate a remote archive with matching ids) overrides the generated id.
func (s *Service) CreateCollection(ctx context.Context, parentID string, params CreateCollectionParams) (entity.Collection, error) {
	if _, err := s.repo.Get(ctx, parentID); err != nil {
		return entity.Collection{}, err
	}

	id := params.ForceID
	var newID string
	if id != nil {
		newID = *id
	} else {
		newID = newCollectionID()
	}

	pid := parentID
	c := entity.Collection{ID: newID, Title: params.Title, ParentID: &pid, Schema: params.Schema}
	if c.Schema == nil {
		c.Schema = []entity.SchemaProperty{}
	}

	if err := s.repo.Insert(ctx, c); err != nil {
		return entity.Collection{}, err
	}

	s.bus.Publish(entity.ChangeEvent{Created: []entity.Ref{{ID: c.ID, CollectionID: parentID}}})
	s.log.Infow("collection created", "collection_id", c.ID, "parent_id", parentID)

	return c, nil
}

// UpdateCollection renames a collection.
func (s *Service) UpdateCollection(ctx context.Context, id, title string) (entity.Collection, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return entity.Collection{}, err
	}
	if err := s.repo.UpdateTitle(ctx, id, title); err != nil {
		return entity.Collection{}, err
	}
	c.Title = title

	parent := ""
	if c.ParentID != nil {
		parent = *c.ParentID
	}
	s.bus.Publish(entity.ChangeEvent{Updated: []entity.Ref{{ID: id, CollectionID: parent}}})

	return c, nil
}

// SchemaUpdateError is the aggregate per-property error mapping
// update_collection_schema returns when the proposed schema rejects
// existing assets (spec.md §4.3).
type SchemaUpdateError struct {
	Errors map[string][]PropertyErrorCount
}

type PropertyErrorCount struct {
	Message string
	Count   int
}

func (e *SchemaUpdateError) Error() string {
	return "schema update rejected by existing assets"
}

const subtreeValidationChunkSize = 200

// UpdateCollectionSchema validates the entire subtree against newSchema
// before persisting it: every asset in id and its descendants must pass the
// new schema's validator, or the whole operation is rejected with an
// aggregate error and nothing changes (spec.md §8 invariant 5).
func (s *Service) UpdateCollectionSchema(ctx context.Context, id string, newSchema []entity.SchemaProperty) error {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return err
	}

	descendantIDs, err := s.descendantIDs(ctx, id)
	if err != nil {
		return err
	}
	subtree := append([]string{id}, descendantIDs...)

	merged, err := s.mergedSchemaFor(ctx, id, newSchema)
	if err != nil {
		return err
	}

	errCounts := make(map[string]map[string]int)

	err = s.assets.ForEachAssetInCollections(ctx, subtree, subtreeValidationChunkSize, func(a entity.Asset) error {
		_, validationErrs, verr := s.validate(ctx, merged, a.Metadata)
		if verr != nil {
			return verr
		}
		for prop, messages := range validationErrs {
			if errCounts[prop] == nil {
				errCounts[prop] = make(map[string]int)
			}
			for _, m := range messages {
				errCounts[prop][m]++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(errCounts) > 0 {
		out := make(map[string][]PropertyErrorCount, len(errCounts))
		for prop, counts := range errCounts {
			for msg, n := range counts {
				out[prop] = append(out[prop], PropertyErrorCount{Message: msg, Count: n})
			}
		}
		return &SchemaUpdateError{Errors: out}
	}

	if err := s.repo.UpdateSchema(ctx, id, newSchema); err != nil {
		return err
	}

	s.bus.Publish(entity.ChangeEvent{Updated: []entity.Ref{{ID: id}}})
	return nil
}

// descendantIDs returns every collection id transitively parented under id.
func (s *Service) descendantIDs(ctx context.Context, id string) ([]string, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	childrenOf := make(map[string][]string)
	for _, c := range all {
		if c.ParentID != nil {
			childrenOf[*c.ParentID] = append(childrenOf[*c.ParentID], c.ID)
		}
	}

	var out []string
	queue := []string{id}
	seen := map[string]bool{id: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range childrenOf[cur] {
			if seen[child] {
				continue
			}
			seen[child] = true
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	return out, nil
}

// ValidateItemsForCollection validates each item's raw metadata against
// id's merged schema, returning a per-item success/error result.
type ValidationResult struct {
	Success  bool
	Metadata entity.Metadata
	Errors   entity.ValidationErrors
}

func (s *Service) ValidateItemsForCollection(ctx context.Context, id string, items []entity.Metadata) ([]ValidationResult, error) {
	schema, err := s.MergedSchema(ctx, id)
	if err != nil {
		return nil, err
	}

	out := make([]ValidationResult, 0, len(items))
	for _, raw := range items {
		cleaned, errs, err := s.validate(ctx, schema, raw)
		if err != nil {
			return nil, err
		}
		if len(errs) > 0 {
			out = append(out, ValidationResult{Success: false, Errors: errs})
		} else {
			out = append(out, ValidationResult{Success: true, Metadata: cleaned})
		}
	}
	return out, nil
}

// FindPropertiesReferencingCollection returns every property across the
// archive whose controlled-database-reference variant points at targetID.
func (s *Service) FindPropertiesReferencingCollection(ctx context.Context, targetID string) ([]entity.ReferencingProperty, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	var out []entity.ReferencingProperty
	for _, c := range all {
		for _, p := range c.Schema {
			if p.Variant == entity.VariantControlledDatabaseRef && p.TargetCollectionID == targetID {
				out = append(out, entity.ReferencingProperty{Property: p, OwnerCollection: c.ID})
			}
		}
	}
	return out, nil
}

// GetTitleProperty returns the first free-text property in id's merged
// schema, if any.
func (s *Service) GetTitleProperty(ctx context.Context, id string) (*entity.SchemaProperty, error) {
	schema, err := s.MergedSchema(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, p := range schema {
		if p.Variant == entity.VariantFreeText {
			return &p, nil
		}
	}
	return nil, nil
}

// IsLabelRecordCollection reports whether id's merged schema requires
// nothing but (optionally) its title property — so an asset in it can be
// created from just a label string.
func (s *Service) IsLabelRecordCollection(ctx context.Context, id string) (bool, error) {
	schema, err := s.MergedSchema(ctx, id)
	if err != nil {
		return false, err
	}
	title, err := s.GetTitleProperty(ctx, id)
	if err != nil {
		return false, err
	}

	for _, p := range schema {
		if !p.Required {
			continue
		}
		if title != nil && p.ID == title.ID {
			continue
		}
		return false, nil
	}
	return true, nil
}

// GetLabelRecordMetadata builds the metadata a label-record asset should be
// created with, given just a label string.
func (s *Service) GetLabelRecordMetadata(ctx context.Context, id, label string) (entity.Metadata, error) {
	title, err := s.GetTitleProperty(ctx, id)
	if err != nil {
		return nil, err
	}
	if title == nil {
		return entity.Metadata{}, nil
	}
	return entity.Metadata{title.ID: {strings.TrimSpace(label)}}, nil
}

// Delete removes a collection row. Callers (internal/archive) are
// responsible for ensuring no remaining assets or referencing properties
// block the delete.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.bus.Publish(entity.ChangeEvent{Deleted: []entity.Ref{{ID: id}}})
	return nil
}
