// Package archive implements the Archive Package (spec.md C1): a directory
// holding an embedded database plus content-addressed media, opened once per
// process and wired into the Collection, Asset and Media Store services that
// do the actual work. Grounded on the teacher's cmd/photosd bootstrap, which
// wires internal/datastore/pg.Datastore into every downstream service the
// same way.
package archive

import (
	"context"

	"github.com/conatus-oss/dana-archive/internal/asset"
	"github.com/conatus-oss/dana-archive/internal/blob"
	"github.com/conatus-oss/dana-archive/internal/collection"
	"github.com/conatus-oss/dana-archive/internal/config"
	"github.com/conatus-oss/dana-archive/internal/entity"
	"github.com/conatus-oss/dana-archive/internal/events"
	"github.com/conatus-oss/dana-archive/internal/store"
	"github.com/conatus-oss/dana-archive/pkg/logger"
)

// Archive is the top-level handle a caller opens once and passes to every
// operation: the database/blob layout plus the three domain services built
// on top of it.
type Archive struct {
	store       *store.Store
	Collections *collection.Service
	Assets      *asset.Service
	Media       *blob.Service
	Events      *events.Bus
	cfg         *config.Config
	log         *logger.StructuredLogger
}

// Open opens (creating if absent) the archive directory at rootDir, running
// migrations and wiring the domain services together. The Collection and
// Asset services depend on each other through narrow interfaces
// (collection.AssetResolver, asset.SchemaResolver) satisfied by the other's
// concrete service, so neither package imports the other directly.
func Open(ctx context.Context, rootDir string, opts ...config.Option) (*Archive, error) {
	cfg := config.NewConfig(opts...)
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	st, err := store.Open(ctx, rootDir, cfg, log)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus()

	collectionRepo := collection.NewRepository(st)
	assetRepo := asset.NewRepository(st)
	blobRepo := blob.NewRepository(st)

	blobSvc := blob.NewService(blobRepo, st.BlobDir(), cfg.RenditionWidth, bus, log)

	// collectionSvc and assetSvc reference each other through interfaces;
	// both concrete values must exist before either is constructed, so we
	// allocate collectionSvc first with a forwarding resolver that is
	// rebound to the real asset service once it exists.
	resolver := &assetResolverBox{}
	collectionSvc := collection.NewService(collectionRepo, resolver, bus, log)
	assetSvc := asset.NewService(assetRepo, collectionSvc, blobSvc, bus, log)
	resolver.svc = assetSvc

	return &Archive{
		store:       st,
		Collections: collectionSvc,
		Assets:      assetSvc,
		Media:       blobSvc,
		Events:      bus,
		cfg:         cfg,
		log:         log,
	}, nil
}

// assetResolverBox satisfies collection.AssetResolver by forwarding to a
// *asset.Service assigned after construction, breaking the initialization
// cycle between the two services without either package importing the
// other's concrete type.
type assetResolverBox struct {
	svc *asset.Service
}

func (b *assetResolverBox) AssetExists(ctx context.Context, collectionID, assetID string) (bool, error) {
	return b.svc.AssetExists(ctx, collectionID, assetID)
}

func (b *assetResolverBox) FindOrCreateLabelRecord(ctx context.Context, collectionID, label string) (string, error) {
	return b.svc.FindOrCreateLabelRecord(ctx, collectionID, label)
}

func (b *assetResolverBox) ForEachAssetInCollections(ctx context.Context, collectionIDs []string, chunkSize int, fn func(entity.Asset) error) error {
	return b.svc.ForEachAssetInCollections(ctx, collectionIDs, chunkSize, fn)
}

// Close tears down the underlying database connection.
func (a *Archive) Close() error {
	return a.store.Close()
}

// RootDir is the archive's directory on disk.
func (a *Archive) RootDir() string { return a.store.RootDir() }

// SyncDir is the archive's transient sync-staging directory.
func (a *Archive) SyncDir() string { return a.store.SyncDir() }

// Config returns the archive's runtime configuration.
func (a *Archive) Config() *config.Config { return a.cfg }

// Store exposes the underlying database handle to components (ingest,
// bundle, peersync) that need their own tables and unit-of-work scope.
func (a *Archive) Store() *store.Store { return a.store }

// Logger returns the archive's structured logger, shared by every component
// wired through Open so log lines carry consistent fields.
func (a *Archive) Logger() *logger.StructuredLogger { return a.log }

// WithUnitOfWork runs fn inside a database unit of work, per spec.md §4.1.
func (a *Archive) WithUnitOfWork(ctx context.Context, fn func(ctx context.Context) error) error {
	return a.store.WithUnitOfWork(ctx, fn)
}

// ListChildren paginates parentID's direct children, clamping limit per
// spec.md §4.1's generic list operation ({offset, limit} -> {total, items,
// range}).
func (a *Archive) ListChildren(ctx context.Context, parentID string, pr entity.PageRange) (entity.Page[entity.Collection], error) {
	pr.Limit = a.cfg.ClampLimit(pr.Limit)
	return a.Collections.ListChildren(ctx, parentID, pr)
}

// ListAssets paginates the assets across collectionIDs, clamping limit per
// spec.md §4.1.
func (a *Archive) ListAssets(ctx context.Context, collectionIDs []string, pr entity.PageRange) (entity.Page[entity.Asset], error) {
	pr.Limit = a.cfg.ClampLimit(pr.Limit)
	return a.Assets.ListByCollections(ctx, collectionIDs, pr)
}
