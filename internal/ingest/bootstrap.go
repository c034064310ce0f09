package ingest

import (
	"archive/zip"
	"context"
	"fmt"

	"github.com/conatus-oss/dana-archive/internal/bundle"
	"github.com/conatus-oss/dana-archive/internal/collection"
	"github.com/conatus-oss/dana-archive/internal/entity"
)

// Bootstrap recreates a whole remote archive from a bundle carrying a
// manifest: the collection tree is rebuilt parent-first with force_id so
// every collection keeps its original id, then one ingest session per
// collection replays that collection's own metadata/*.json file, committing
// on success and cancelling on failure (spec.md §4.5 "bootstrap from
// bundle"). Unlike an ordinary ingest session, a bootstrap commit is
// allowed to update an asset id that already exists, since replaying the
// same bundle twice should converge rather than conflict.
func (s *Service) Bootstrap(ctx context.Context, bundlePath string) error {
	zrc, err := zip.OpenReader(bundlePath)
	if err != nil {
		return err
	}
	defer zrc.Close()

	br := bundle.NewReader(&zrc.Reader)
	manifest, ok, err := br.Manifest()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("ingest: bundle %s carries no manifest to bootstrap from", bundlePath)
	}

	// The reserved roots are created on first use; making sure of them here
	// lets recreateCollection find them already present in a fresh archive.
	if _, err := s.arch.Collections.GetRootAssetCollection(ctx); err != nil {
		return err
	}
	if _, err := s.arch.Collections.GetRootDatabaseCollection(ctx); err != nil {
		return err
	}

	ordered, err := parentFirst(manifest.Collections)
	if err != nil {
		return err
	}

	for _, c := range ordered {
		if err := s.recreateCollection(ctx, c); err != nil {
			return err
		}
	}

	for _, c := range ordered {
		if err := s.bootstrapCollectionAssets(ctx, bundlePath, c.ID); err != nil {
			return err
		}
	}

	return nil
}

func (s *Service) recreateCollection(ctx context.Context, c bundle.ManifestCollection) error {
	if _, err := s.arch.Collections.Get(ctx, c.ID); err == nil {
		return nil // already present, e.g. a reserved root
	}

	parentID := entity.RootAssetCollectionID
	if c.ParentID != nil {
		parentID = *c.ParentID
	}

	id := c.ID
	_, err := s.arch.Collections.CreateCollection(ctx, parentID, collection.CreateCollectionParams{
		Title:   c.Title,
		Schema:  c.Schema,
		ForceID: &id,
	})
	return err
}

func (s *Service) bootstrapCollectionAssets(ctx context.Context, bundlePath, collectionID string) error {
	session, err := s.Begin(ctx, entity.SourceBundle, bundlePath, collectionID, false)
	if err != nil {
		return err
	}

	for {
		session, err = s.Run(ctx, session.ID)
		if err != nil {
			_ = s.Cancel(ctx, session.ID)
			return err
		}
		if session.Phase == entity.PhaseCompleted || session.Phase == entity.PhaseError {
			break
		}
	}

	if session.Phase == entity.PhaseCompleted && session.Valid {
		return s.Commit(ctx, session.ID, CommitOptions{AllowUpdateOnCollision: true})
	}

	return s.Cancel(ctx, session.ID)
}

// parentFirst orders collections so every parent appears before its
// children, detecting cycles the same way merged-schema resolution does.
func parentFirst(collections []bundle.ManifestCollection) ([]bundle.ManifestCollection, error) {
	byID := make(map[string]bundle.ManifestCollection, len(collections))
	for _, c := range collections {
		byID[c.ID] = c
	}

	var out []bundle.ManifestCollection
	visited := make(map[string]bool, len(collections))
	visiting := make(map[string]bool, len(collections))

	var visit func(id string) error
	visit = func(id string) error {
		if visited[id] {
			return nil
		}
		if visiting[id] {
			return fmt.Errorf("ingest: manifest collection cycle at %s", id)
		}
		c, ok := byID[id]
		if !ok {
			return nil // parent outside the bundle (a reserved root)
		}
		visiting[id] = true
		if c.ParentID != nil {
			if err := visit(*c.ParentID); err != nil {
				return err
			}
		}
		visiting[id] = false
		visited[id] = true
		out = append(out, c)
		return nil
	}

	for _, c := range collections {
		if err := visit(c.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}
