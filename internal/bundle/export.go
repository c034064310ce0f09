package bundle

import (
	"context"
	"io"

	"github.com/conatus-oss/dana-archive/internal/archive"
	"github.com/conatus-oss/dana-archive/internal/entity"
)

// Export walks rootCollectionID and every descendant, writing a manifest
// (so bootstrap can recreate the collection tree with matching ids), one
// metadata file per collection, and every asset's media into w. Restricted
// assets are skipped outright; metadata-only assets are included without
// their media, mirroring the access-level filtering the sync protocol
// applies to its push step (spec.md §4.7 step 1).
func Export(ctx context.Context, a *archive.Archive, rootCollectionID string, w io.Writer) error {
	collections, err := collectSubtree(ctx, a, rootCollectionID)
	if err != nil {
		return err
	}

	bw := NewWriter(w)

	manifest := Manifest{}
	for _, c := range collections {
		manifest.Collections = append(manifest.Collections, ManifestCollection{
			ID: c.ID, Title: c.Title, ParentID: c.ParentID, Schema: c.Schema,
		})
	}
	if err := bw.WriteManifest(manifest); err != nil {
		return err
	}

	for _, c := range collections {
		schema, err := a.Collections.MergedSchema(ctx, c.ID)
		if err != nil {
			return err
		}

		mf := MetadataFile{Collection: strPtr(c.ID), Assets: map[string]MetadataRecord{}}

		assets, err := listAllAssets(ctx, a, c.ID)
		if err != nil {
			return err
		}

		for _, asset := range assets {
			if asset.AccessLevel == entity.AccessRestricted {
				continue
			}

			var files []string
			if asset.AccessLevel != entity.AccessMetadataOnly {
				for _, mediaID := range asset.MediaIDs {
					name, err := writeAssetMedia(ctx, a, bw, mediaID)
					if err != nil {
						return err
					}
					files = append(files, name)
				}
			}

			access := string(asset.AccessLevel)
			mf.Assets[asset.ID] = MetadataRecord{
				Metadata:           asset.VisibleMetadata(schema),
				Files:              files,
				RedactedProperties: asset.RedactedProperties,
				AccessControl:      &access,
			}
		}

		if err := bw.WriteMetadataFile(c.ID, mf); err != nil {
			return err
		}
	}

	return bw.Close()
}

func writeAssetMedia(ctx context.Context, a *archive.Archive, bw *Writer, mediaID string) (string, error) {
	mf, err := a.Media.Get(ctx, mediaID)
	if err != nil {
		return "", err
	}
	name := mf.OriginalPath()

	content, err := a.Media.Content(ctx, mf)()
	if err != nil {
		return "", err
	}
	if closer, ok := content.(io.Closer); ok {
		defer closer.Close()
	}

	if err := bw.WriteMedia(name, content); err != nil {
		return "", err
	}
	return name, nil
}

func collectSubtree(ctx context.Context, a *archive.Archive, rootID string) ([]entity.Collection, error) {
	root, err := a.Collections.Get(ctx, rootID)
	if err != nil {
		return nil, err
	}

	out := []entity.Collection{root}
	page, err := a.ListChildren(ctx, rootID, entity.AllRange)
	if err != nil {
		return nil, err
	}
	for _, child := range page.Items {
		sub, err := collectSubtree(ctx, a, child.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

func listAllAssets(ctx context.Context, a *archive.Archive, collectionID string) ([]entity.Asset, error) {
	var out []entity.Asset
	offset := 0
	for {
		pr := entity.PageRange{Offset: offset, Limit: 200}
		page, err := a.ListAssets(ctx, []string{collectionID}, pr)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
		if len(page.Items) < pr.Limit {
			return out, nil
		}
		offset += pr.Limit
	}
}

func strPtr(s string) *string { return &s }
