// Package entity holds the domain types shared across every archive
// component: collections, schema properties, assets, media files and
// ingest sessions.
package entity

import (
	"io"
	"time"
)

// MediaContentFn lazily opens a media file's bytes; the filesystem datastore
// returns one of these rather than eagerly reading into memory.
type MediaContentFn func() (io.Reader, error)

// Reserved collection ids created on first archive open.
const (
	RootAssetCollectionID    = "root:assets"
	RootDatabaseCollectionID = "root:databases"
)

// CollectionType derives from which reserved root a collection descends from.
type CollectionType string

const (
	AssetCollection      CollectionType = "ASSET_COLLECTION"
	ControlledDatabase   CollectionType = "CONTROLLED_DATABASE"
)

// Collection is a named container for assets, with an attached metadata
// schema inherited from its ancestors.
type Collection struct {
	ID       string
	Title    string
	ParentID *string
	Schema   []SchemaProperty
}

// PropertyVariantKind tags which SchemaProperty payload is populated.
type PropertyVariantKind string

const (
	VariantFreeText                 PropertyVariantKind = "FREE_TEXT"
	VariantControlledDatabaseRef    PropertyVariantKind = "CONTROLLED_DATABASE_REFERENCE"
)

// SchemaProperty is one named, typed slot in a collection's merged schema.
type SchemaProperty struct {
	ID         string
	Label      string
	Visible    bool
	Required   bool
	Repeated   bool
	Variant    PropertyVariantKind
	// TargetCollectionID is populated only when Variant is
	// VariantControlledDatabaseRef.
	TargetCollectionID string
}

// AccessLevel is the three-value per-asset access control the spec allows.
type AccessLevel string

const (
	AccessPublic        AccessLevel = "PUBLIC"
	AccessRestricted    AccessLevel = "RESTRICTED"
	AccessMetadataOnly  AccessLevel = "METADATA_ONLY"
)

// Metadata maps a schema property id to its ordered raw values. A value is
// always a list, even for non-repeated properties (length 0 or 1).
type Metadata map[string][]string

// Clone returns a deep copy of m.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		cp := make([]string, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// Asset is one record in a collection.
type Asset struct {
	ID                 string
	CollectionID       string
	AccessLevel        AccessLevel
	Metadata           Metadata
	RedactedProperties []string
	MediaIDs           []string
	CreatedAt          time.Time
}

// VisibleMetadata returns m filtered to the properties visible in schema and
// not present in a.RedactedProperties, per spec.md §4.7 step 1a.
func (a Asset) VisibleMetadata(schema []SchemaProperty) Metadata {
	redacted := make(map[string]bool, len(a.RedactedProperties))
	for _, id := range a.RedactedProperties {
		redacted[id] = true
	}
	visible := make(map[string]bool, len(schema))
	for _, p := range schema {
		if p.Visible {
			visible[p.ID] = true
		}
	}

	out := make(Metadata)
	for id, values := range a.Metadata {
		if !visible[id] || redacted[id] {
			continue
		}
		cp := make([]string, len(values))
		copy(cp, values)
		out[id] = cp
	}
	return out
}

// MediaFile is a blob stored in the archive, optionally owned by an asset.
type MediaFile struct {
	ID         string
	AssetID    *string
	MimeType   string
	SHA256     string
	Extension  string
	// CapturedAt is populated from EXIF tags when the source file carries
	// them, falling back to nil (ingest time is used for ordering instead).
	CapturedAt *time.Time
	CreatedAt  time.Time
}

// OriginalPath is the blob-relative path to the stored original bytes.
func (m MediaFile) OriginalPath() string {
	return m.ID + "." + m.Extension
}

// RenditionPath is the blob-relative path to the generated rendition.
func (m MediaFile) RenditionPath() string {
	return m.ID + ".rendition.png"
}

// RenditionURI builds the opaque media:// URI the spec names in §4.2.
func (m MediaFile) RenditionURI() string {
	return "media://" + m.ID + ".rendition.png"
}

// IngestPhase is one state of the ingest session state machine.
type IngestPhase string

const (
	PhaseReadMetadata IngestPhase = "READ_METADATA"
	PhaseReadFiles    IngestPhase = "READ_FILES"
	PhaseProcessFiles IngestPhase = "PROCESS_FILES"
	PhaseCompleted    IngestPhase = "COMPLETED"
	PhaseError        IngestPhase = "ERROR"
)

// SourceKind distinguishes the ingest session's input format.
type SourceKind string

const (
	SourceBundle      SourceKind = "BUNDLE"
	SourceSpreadsheet SourceKind = "SPREADSHEET"
	SourceDirectory   SourceKind = "DIRECTORY"
)

// IngestSession is a resumable staging workspace converting a bundle,
// spreadsheet, or directory tree into assets and media.
type IngestSession struct {
	ID           string
	SourcePath   string
	SourceKind   SourceKind
	CollectionID string
	Phase        IngestPhase
	Valid        bool
	// Convert marks raw metadata keys as human labels rather than schema
	// property ids: read_metadata_object must resolve each via a
	// case-insensitive label lookup against the target collection's merged
	// schema before staging it.
	Convert   bool
	CreatedAt time.Time
}

// ValidationErrors maps a property id to the human-readable messages
// collected while validating it.
type ValidationErrors map[string][]string

// StagedAssetImport is one record read from a bundle/spreadsheet/directory
// before it becomes a real asset.
type StagedAssetImport struct {
	SessionID          string
	Locator            string
	AccessLevel        AccessLevel
	RedactedProperties []string
	Metadata           Metadata
	ValidationErrors   ValidationErrors
	Phase              IngestPhase
	ForceID            *string
}

// StagedMediaImport is one media reference attached to a StagedAssetImport,
// pending extraction from the bundle into the media store.
type StagedMediaImport struct {
	SessionID    string
	Locator      string
	RelativePath string
	Error        string
	MediaID      *string
}

// PageRange is an offset/limit pagination window; the archive's list
// operations clamp Limit via config.Config.ClampLimit (MaxPageLimit, 1000
// by default) before it reaches the store layer.
type PageRange struct {
	Offset int
	Limit  int
}

// AllRange is the canonical "all" range used by full scans.
var AllRange = PageRange{Offset: 0, Limit: 1000}

// Page is the result of a paginated list operation.
type Page[T any] struct {
	Total int
	Items []T
	Range PageRange
}

// ReferencingProperty is one (property, owner collection) pair whose
// variant is a controlled-database reference pointing at some target
// collection — the result of find_properties_referencing_collection
// (spec.md §4.3), shared between the collection and asset packages so
// neither has to import the other's types.
type ReferencingProperty struct {
	Property        SchemaProperty
	OwnerCollection string
}

// Ref identifies one entity by id and its owning collection, used in change
// event payloads.
type Ref struct {
	ID           string
	CollectionID string
}

// ChangeEvent is the broadcast payload emitted after any committed mutation.
type ChangeEvent struct {
	Created []Ref
	Updated []Ref
	Deleted []Ref
}

// Empty reports whether the event carries no refs at all.
func (c ChangeEvent) Empty() bool {
	return len(c.Created) == 0 && len(c.Updated) == 0 && len(c.Deleted) == 0
}
