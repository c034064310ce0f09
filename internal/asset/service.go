package asset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conatus-oss/dana-archive/internal/archerr"
	"github.com/conatus-oss/dana-archive/internal/blob"
	"github.com/conatus-oss/dana-archive/internal/entity"
	"github.com/conatus-oss/dana-archive/internal/events"
	"github.com/conatus-oss/dana-archive/internal/store"
	"github.com/conatus-oss/dana-archive/pkg/logger"
)

// SchemaResolver is the narrow view of the Collection Service the Asset
// Service needs: merged-schema computation, metadata validation, collection
// typing and reverse-reference lookup. Defined here rather than imported
// from package collection to avoid an import cycle: collection.Service
// depends on the Asset Service through its own collection.AssetResolver,
// so this direction is expressed as an interface too and both are wired up by the caller (internal/archive).
type SchemaResolver interface {
	MergedSchema(ctx context.Context, collectionID string) ([]entity.SchemaProperty, error)
	ValidateMetadata(ctx context.Context, collectionID string, raw entity.Metadata) (entity.Metadata, entity.ValidationErrors, error)
	CastOrCreatePropertyValue(ctx context.Context, collectionID, propertyID string, raw []string) ([]string, error)
	CollectionType(ctx context.Context, collectionID string) (entity.CollectionType, error)
	FindPropertiesReferencingCollection(ctx context.Context, targetID string) ([]entity.ReferencingProperty, error)
	GetTitleProperty(ctx context.Context, collectionID string) (*entity.SchemaProperty, error)
}

// Service implements the Asset Service (spec.md C4).
type Service struct {
	repo        *Repository
	collections SchemaResolver
	blobs       *blob.Service
	bus         *events.Bus
	log         *logger.StructuredLogger
}

func NewService(repo *Repository, collections SchemaResolver, blobs *blob.Service, bus *events.Bus, log *logger.StructuredLogger) *Service {
	return &Service{repo: repo, collections: collections, blobs: blobs, bus: bus, log: log}
}

func newAssetID() string {
	return uuid.NewString()
}

// Get returns one asset by id.
func (s *Service) Get(ctx context.Context, id string) (entity.Asset, error) {
	return s.repo.Get(ctx, id)
}

// ListByCollections paginates the assets across collectionIDs (spec.md §4.1
// generic list operation), pr.Limit assumed already clamped by the caller.
func (s *Service) ListByCollections(ctx context.Context, collectionIDs []string, pr entity.PageRange) (entity.Page[entity.Asset], error) {
	filter := FilterByCollectionIDs(collectionIDs)
	return store.Paginate(pr,
		func() (int, error) { return s.repo.Count(ctx, filter) },
		func(pr entity.PageRange) ([]entity.Asset, error) {
			return s.repo.List(ctx, filter, PageOption(pr.Offset, pr.Limit))
		})
}

// AssetExists implements collection.AssetResolver: reports whether assetID
// exists inside collectionID specifically (a controlled-database reference
// must resolve within its declared target collection, spec.md §4.3).
func (s *Service) AssetExists(ctx context.Context, collectionID, assetID string) (bool, error) {
	a, err := s.repo.Get(ctx, assetID)
	if err != nil {
		var nf *archerr.NotFoundError
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, err
	}
	return a.CollectionID == collectionID, nil
}

// ForEachAssetInCollections implements collection.AssetResolver: walks every
// asset across collectionIDs in pages of chunkSize, used to revalidate a
// subtree against a proposed schema change without loading it all at once.
func (s *Service) ForEachAssetInCollections(ctx context.Context, collectionIDs []string, chunkSize int, fn func(entity.Asset) error) error {
	if len(collectionIDs) == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = 200
	}

	offset := 0
	for {
		page, err := s.repo.List(ctx, FilterByCollectionIDs(collectionIDs), PageOption(offset, chunkSize))
		if err != nil {
			return err
		}
		for _, a := range page {
			if err := fn(a); err != nil {
				return err
			}
		}
		if len(page) < chunkSize {
			return nil
		}
		offset += chunkSize
	}
}

// FindOrCreateLabelRecord implements collection.AssetResolver: looks up an
// existing label-record asset by its title value inside collectionID, or
// creates one on the fly when the collection accepts bare labels (spec.md
// §4.3 "label record" convenience).
func (s *Service) FindOrCreateLabelRecord(ctx context.Context, collectionID, label string) (string, error) {
	titleProp, err := s.collections.GetTitleProperty(ctx, collectionID)
	if err != nil {
		return "", err
	}

	assets, err := s.repo.List(ctx, FilterByCollectionIDs([]string{collectionID}))
	if err != nil {
		return "", err
	}
	if titleProp != nil {
		for _, a := range assets {
			values := a.Metadata[titleProp.ID]
			for _, v := range values {
				if v == label {
					return a.ID, nil
				}
			}
		}
	}

	metadata := entity.Metadata{}
	if titleProp != nil {
		metadata[titleProp.ID] = []string{label}
	}

	created, err := s.CreateAsset(ctx, collectionID, CreateAssetParams{
		AccessLevel: entity.AccessPublic,
		Metadata:    metadata,
	})
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// CreateAssetParams is the input to CreateAsset.
type CreateAssetParams struct {
	AccessLevel        entity.AccessLevel
	Metadata           entity.Metadata
	RedactedProperties []string
	MediaIDs           []string
	ForceID            *string
}

// CreateAsset validates raw metadata against collectionID's merged schema
// and inserts a new asset, emitting a `created` change event (spec.md §4.4).
func (s *Service) CreateAsset(ctx context.Context, collectionID string, params CreateAssetParams) (entity.Asset, error) {
	cleaned, errs, err := s.collections.ValidateMetadata(ctx, collectionID, params.Metadata)
	if err != nil {
		return entity.Asset{}, err
	}
	if len(errs) > 0 {
		return entity.Asset{}, validationErrorFor(ctx, collectionID, errs)
	}

	id := newAssetID()
	if params.ForceID != nil {
		id = *params.ForceID
	}

	accessLevel := params.AccessLevel
	if accessLevel == "" {
		accessLevel = entity.AccessPublic
	}

	a := entity.Asset{
		ID:                 id,
		CollectionID:       collectionID,
		AccessLevel:        accessLevel,
		Metadata:           cleaned,
		RedactedProperties: params.RedactedProperties,
		MediaIDs:           params.MediaIDs,
		CreatedAt:          time.Now(),
	}

	if err := s.repo.Insert(ctx, a); err != nil {
		return entity.Asset{}, err
	}

	for _, mediaID := range a.MediaIDs {
		if err := s.blobs.SetAssetID(ctx, mediaID, a.ID); err != nil {
			return entity.Asset{}, err
		}
	}

	s.bus.Publish(entity.ChangeEvent{Created: []entity.Ref{{ID: a.ID, CollectionID: collectionID}}})
	s.log.Infow("asset created", "asset_id", a.ID, "collection_id", collectionID)

	return a, nil
}

// UpdateAssetParams is the input to UpdateAsset; nil fields leave the
// current value unchanged.
type UpdateAssetParams struct {
	Metadata           entity.Metadata
	AccessLevel        *entity.AccessLevel
	RedactedProperties []string
}

// UpdateAsset re-validates and replaces an asset's metadata, optionally
// changing its access level and redacted-property list.
func (s *Service) UpdateAsset(ctx context.Context, id string, params UpdateAssetParams) (entity.Asset, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return entity.Asset{}, err
	}

	if params.Metadata != nil {
		cleaned, errs, err := s.collections.ValidateMetadata(ctx, a.CollectionID, params.Metadata)
		if err != nil {
			return entity.Asset{}, err
		}
		if len(errs) > 0 {
			return entity.Asset{}, validationErrorFor(ctx, a.CollectionID, errs)
		}
		a.Metadata = cleaned
	}
	if params.AccessLevel != nil {
		a.AccessLevel = *params.AccessLevel
	}
	if params.RedactedProperties != nil {
		a.RedactedProperties = params.RedactedProperties
	}

	if err := s.repo.Update(ctx, a); err != nil {
		return entity.Asset{}, err
	}

	s.bus.Publish(entity.ChangeEvent{Updated: []entity.Ref{{ID: a.ID, CollectionID: a.CollectionID}}})
	return a, nil
}

// CastOrCreatePropertyValue coerces raw against one property of an asset's
// collection schema — the asset-facing entry point onto the shared
// coercion logic living in the Collection Service (spec.md §4.4).
func (s *Service) CastOrCreatePropertyValue(ctx context.Context, collectionID, propertyID string, raw []string) ([]string, error) {
	return s.collections.CastOrCreatePropertyValue(ctx, collectionID, propertyID, raw)
}

// MoveAssets reassigns each asset to destinationCollectionID after
// confirming the destination is the same collection type (asset vs
// controlled-database) and accepts the asset's metadata under its own
// schema (spec.md §4.4 invariant 3).
func (s *Service) MoveAssets(ctx context.Context, assetIDs []string, destinationCollectionID string) error {
	destType, err := s.collections.CollectionType(ctx, destinationCollectionID)
	if err != nil {
		return err
	}

	for _, id := range assetIDs {
		a, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}

		srcType, err := s.collections.CollectionType(ctx, a.CollectionID)
		if err != nil {
			return err
		}
		if srcType != destType {
			verr := archerr.NewValidationError(ctx, "move_assets", "collection_type_mismatch")
			verr.WithAssetID(id)
			return verr
		}

		cleaned, errs, err := s.collections.ValidateMetadata(ctx, destinationCollectionID, a.Metadata)
		if err != nil {
			return err
		}
		if len(errs) > 0 {
			verr := validationErrorFor(ctx, destinationCollectionID, errs)
			verr.WithAssetID(id)
			return verr
		}

		oldCollectionID := a.CollectionID
		a.CollectionID = destinationCollectionID
		a.Metadata = cleaned

		if err := s.repo.Update(ctx, a); err != nil {
			return err
		}

		s.bus.Publish(entity.ChangeEvent{Updated: []entity.Ref{
			{ID: a.ID, CollectionID: oldCollectionID},
			{ID: a.ID, CollectionID: destinationCollectionID},
		}})
	}

	return nil
}

// DeleteAssets removes each asset after enforcing referential integrity
// against every property elsewhere in the archive that references it
// (spec.md §4.4 invariant 4 / §8 scenarios 2-3):
//   - a required, non-repeated reference blocks the delete outright;
//   - a required, repeated reference is allowed only if at least one other
//     value remains in that property after the reference is stripped;
//   - any other reference just has the id stripped out of its values.
func (s *Service) DeleteAssets(ctx context.Context, assetIDs []string) error {
	return s.repo.WithUnitOfWork(ctx, func(ctx context.Context) error {
		for _, id := range assetIDs {
			if err := s.deleteOne(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) deleteOne(ctx context.Context, id string) error {
	target, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	referencing, err := s.collections.FindPropertiesReferencingCollection(ctx, target.CollectionID)
	if err != nil {
		return err
	}

	type pendingUpdate struct {
		asset    entity.Asset
		property string
		values   []string
	}
	var updates []pendingUpdate

	for _, ref := range referencing {
		holders, err := s.repo.List(ctx, FilterByCollectionIDs([]string{ref.OwnerCollection}))
		if err != nil {
			return err
		}

		for _, holder := range holders {
			values, ok := holder.Metadata[ref.Property.ID]
			if !ok {
				continue
			}

			idx := -1
			remaining := 0
			for i, v := range values {
				if v == id {
					idx = i
					continue
				}
				if v != "" {
					remaining++
				}
			}
			if idx == -1 {
				continue
			}

			if (ref.Property.Required && !ref.Property.Repeated) ||
				(ref.Property.Required && ref.Property.Repeated && remaining == 0) {
				verr := archerr.NewValidationError(ctx, "delete_assets", "referenced_by_required_property")
				verr.WithAssetID(id)
				verr.WithContext("property_id", ref.Property.ID)
				verr.WithContext("holder_asset_id", holder.ID)
				return verr
			}

			trimmed := make([]string, 0, len(values)-1)
			trimmed = append(trimmed, values[:idx]...)
			trimmed = append(trimmed, values[idx+1:]...)
			updates = append(updates, pendingUpdate{asset: holder, property: ref.Property.ID, values: trimmed})
		}
	}

	for _, u := range updates {
		u.asset.Metadata = u.asset.Metadata.Clone()
		u.asset.Metadata[u.property] = u.values
		if err := s.repo.Update(ctx, u.asset); err != nil {
			return err
		}
	}

	if len(target.MediaIDs) > 0 {
		s.blobs.Delete(ctx, target.MediaIDs)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.bus.Publish(entity.ChangeEvent{Deleted: []entity.Ref{{ID: id, CollectionID: target.CollectionID}}})
	s.log.Infow("asset deleted", "asset_id", id)
	return nil
}

func validationErrorFor(ctx context.Context, collectionID string, errs entity.ValidationErrors) *archerr.ValidationError {
	msg := fmt.Sprintf("%d properties failed validation", len(errs))
	verr := archerr.NewValidationError(ctx, "validate_asset_metadata", msg)
	verr.WithCollectionID(collectionID)
	verr.WithContext("errors", errs)
	return verr
}
