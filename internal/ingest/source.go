package ingest

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/conatus-oss/dana-archive/internal/blob"
	"github.com/conatus-oss/dana-archive/internal/bundle"
	"github.com/conatus-oss/dana-archive/internal/datastore/fs"
	"github.com/conatus-oss/dana-archive/internal/entity"
)

// MetadataEntry is one asset read from a source, before it becomes a
// StagedAssetImport row (spec.md §4.5 read_metadata_object).
type MetadataEntry struct {
	Locator            string
	AccessLevel        entity.AccessLevel
	Metadata           entity.Metadata
	RedactedProperties []string
	Files              []string
	ForceID            *string
}

// Source abstracts the three shapes an ingest session can read from: a
// bundle zip, a spreadsheet of dicts, or a (possibly nested) directory of
// media files.
// Grounded on blob.Source's two-shaped constructors (SourceFromPath /
// SourceFromExtractor) — OpenMedia returns exactly one of those for the
// Media Store to consume during PROCESS_FILES.
type Source interface {
	ReadMetadata(ctx context.Context) ([]MetadataEntry, error)
	MediaExists(relativePath string) bool
	OpenMedia(relativePath string) (blob.Source, error)
	Close() error
}

// OpenSource builds the Source matching kind, against path. targetCollectionID
// is the ingest session's target collection; a bundle source uses it to skip
// metadata files scoped to a different collection (spec.md §4.5 step 1) —
// irrelevant to the other two source kinds.
func OpenSource(kind entity.SourceKind, path, targetCollectionID string) (Source, error) {
	switch kind {
	case entity.SourceBundle:
		return openBundleSource(path, targetCollectionID)
	case entity.SourceSpreadsheet:
		return &spreadsheetSource{path: path}, nil
	case entity.SourceDirectory:
		return &directorySource{root: path, ds: fs.NewFsDatastore(path)}, nil
	default:
		return nil, &unsupportedSourceKindError{kind: kind}
	}
}

type unsupportedSourceKindError struct{ kind entity.SourceKind }

func (e *unsupportedSourceKindError) Error() string {
	return "ingest: unsupported source kind " + string(e.kind)
}

// --- bundle ---

type bundleSource struct {
	zrc                *zip.ReadCloser
	br                 *bundle.Reader
	targetCollectionID string
}

func openBundleSource(path, targetCollectionID string) (Source, error) {
	zrc, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	return &bundleSource{zrc: zrc, br: bundle.NewReader(&zrc.Reader), targetCollectionID: targetCollectionID}, nil
}

func (s *bundleSource) ReadMetadata(ctx context.Context) ([]MetadataEntry, error) {
	// A bundle carrying a manifest keys its assets by their original ids, so
	// each entry keeps its locator as ForceID.
	_, hasManifest, err := s.br.Manifest()
	if err != nil {
		return nil, err
	}

	var out []MetadataEntry
	for _, name := range s.br.MetadataFileNames() {
		mf, err := s.br.ReadMetadataFile(name)
		if err != nil {
			return nil, err
		}
		if mf.Collection != nil && *mf.Collection != s.targetCollectionID {
			continue
		}
		for locator, rec := range mf.Assets {
			access := entity.AccessPublic
			if rec.AccessControl != nil {
				access = entity.AccessLevel(*rec.AccessControl)
			}
			entry := MetadataEntry{
				Locator:            locator,
				AccessLevel:        access,
				Metadata:           rec.Metadata,
				RedactedProperties: rec.RedactedProperties,
				Files:              rec.Files,
			}
			if hasManifest {
				id := locator
				entry.ForceID = &id
			}
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *bundleSource) MediaExists(relativePath string) bool {
	return s.br.HasMedia(relativePath)
}

func (s *bundleSource) OpenMedia(relativePath string) (blob.Source, error) {
	ext := strings.TrimPrefix(filepath.Ext(relativePath), ".")
	return blob.SourceFromExtractor(ext, func(destination string) error {
		f, err := os.Create(destination)
		if err != nil {
			return err
		}
		defer f.Close()
		return s.br.ExtractMedia(relativePath, f)
	}), nil
}

func (s *bundleSource) Close() error { return s.zrc.Close() }

// --- directory ---

// directorySource treats root as a folder of media, optionally nested: no
// metadata/*.json sidecar is expected — this is the "just point it at a
// folder of photos" path spec.md §4.5 names as the simplest ingest source.
// It walks root once into an entity.FolderNode tree (fs.Datastore.WalkTree)
// and turns every folder that holds media directly into one asset with empty
// metadata, the locator derived from the folder's path (or the filename
// itself for loose files sitting directly under root), so a source tree like
// `root/2023/summer/*.jpg` stages one asset per leaf folder rather than
// requiring every photo to sit flat under root.
type directorySource struct {
	root string
	ds   *fs.Datastore
}

func (s *directorySource) ReadMetadata(ctx context.Context) ([]MetadataEntry, error) {
	tree, err := s.ds.WalkTree(ctx, "")
	if err != nil {
		return nil, err
	}

	var out []MetadataEntry
	for _, name := range tree.MediaFiles {
		out = append(out, MetadataEntry{
			Locator:     name,
			AccessLevel: entity.AccessPublic,
			Metadata:    entity.Metadata{},
			Files:       []string{name},
		})
	}
	for _, child := range tree.Children {
		out = append(out, directoryEntriesForNode(child)...)
	}
	return out, nil
}

// directoryEntriesForNode recurses a WalkTree result, turning every folder
// that directly holds media into one asset (locator = the folder's
// root-relative path) regardless of depth.
func directoryEntriesForNode(node *entity.FolderNode) []MetadataEntry {
	var out []MetadataEntry
	if len(node.MediaFiles) > 0 {
		out = append(out, MetadataEntry{
			Locator:     node.Path,
			AccessLevel: entity.AccessPublic,
			Metadata:    entity.Metadata{},
			Files:       append([]string(nil), node.MediaFiles...),
		})
	}
	for _, child := range node.Children {
		out = append(out, directoryEntriesForNode(child)...)
	}
	return out
}

func (s *directorySource) MediaExists(relativePath string) bool {
	_, err := os.Stat(filepath.Join(s.root, relativePath))
	return err == nil
}

func (s *directorySource) OpenMedia(relativePath string) (blob.Source, error) {
	return blob.SourceFromPath(filepath.Join(s.root, relativePath)), nil
}

func (s *directorySource) Close() error { return nil }

// --- spreadsheet ---

// spreadsheetSource reads a CSV sheet-of-dicts: the header row names schema
// property ids plus the reserved columns "locator", "access_level" and
// "files" (semicolon-separated paths, resolved relative to the directory
// beside the sheet named after it without its extension, e.g. sheet.csv ->
// sheet/). No third-party spreadsheet library appears in any example
// repo in the pack, so this uses the standard library's encoding/csv — see
// DESIGN.md.
type spreadsheetSource struct {
	path string
}

const (
	colLocator     = "locator"
	colAccessLevel = "access_level"
	colFiles       = "files"
)

// sheetName is the spreadsheet's identity for locator derivation: the file
// basename without its extension, since a CSV has exactly one sheet
// (spec.md §4.5 Locator = "{sheet-name},{row-index}").
func (s *spreadsheetSource) sheetName() string {
	base := filepath.Base(s.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (s *spreadsheetSource) ReadMetadata(ctx context.Context) ([]MetadataEntry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, err
	}

	var out []MetadataEntry
	sheet := s.sheetName()
	rowIndex := 0
	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		rowIndex++

		entry := MetadataEntry{AccessLevel: entity.AccessPublic, Metadata: entity.Metadata{}}
		for i, col := range header {
			if i >= len(record) {
				continue
			}
			value := record[i]
			switch col {
			case colLocator:
				entry.Locator = value
			case colAccessLevel:
				if value != "" {
					entry.AccessLevel = entity.AccessLevel(value)
				}
			case colFiles:
				if value != "" {
					entry.Files = strings.Split(value, ";")
				}
			default:
				if value != "" {
					entry.Metadata[col] = []string{value}
				}
			}
		}
		if entry.Locator == "" {
			entry.Locator = fmt.Sprintf("%s,%d", sheet, rowIndex)
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *spreadsheetSource) mediaDir() string {
	return strings.TrimSuffix(s.path, filepath.Ext(s.path))
}

func (s *spreadsheetSource) MediaExists(relativePath string) bool {
	_, err := os.Stat(filepath.Join(s.mediaDir(), relativePath))
	return err == nil
}

func (s *spreadsheetSource) OpenMedia(relativePath string) (blob.Source, error) {
	return blob.SourceFromPath(filepath.Join(s.mediaDir(), relativePath)), nil
}

func (s *spreadsheetSource) Close() error { return nil }
