// Package bundle implements the Export/Bundle Codec (spec.md C6): reading
// and writing the `.danapack` zip format a bundle ingest session or a
// bootstrap consumes, and an archive export produces. Grounded on the
// teacher's entity package for the shapes being serialised and
// internal/datastore/fs for the file-extraction idiom; the zip container
// itself uses the standard library's archive/zip — no example repo in the
// pack carries a third-party zip library, so there is nothing to wire here
// (see DESIGN.md).
package bundle

import "github.com/conatus-oss/dana-archive/internal/entity"

// ManifestCollection is one collection entry in manifest.json, carrying
// enough of entity.Collection to recreate it with force_id during bootstrap.
type ManifestCollection struct {
	ID       string                  `json:"id"`
	Title    string                  `json:"title"`
	ParentID *string                 `json:"parent_id,omitempty"`
	Schema   []entity.SchemaProperty `json:"schema"`
}

// Manifest is the optional manifest.json object (spec.md §4.6).
type Manifest struct {
	ArchiveID   *string              `json:"archive_id,omitempty"`
	Collections []ManifestCollection `json:"collections"`
}

// MetadataRecord is one asset entry inside a metadata/*.json file.
type MetadataRecord struct {
	Metadata           entity.Metadata `json:"metadata"`
	Files              []string        `json:"files,omitempty"`
	RedactedProperties []string        `json:"redacted_properties,omitempty"`
	AccessControl      *string         `json:"access_control,omitempty"`
}

// MetadataFile is one metadata/*.json payload: a target collection (if the
// bundle scopes the file to one) and a locator-keyed set of records.
type MetadataFile struct {
	Collection *string                   `json:"collection,omitempty"`
	Assets     map[string]MetadataRecord `json:"assets"`
}

const (
	manifestEntryName = "manifest.json"
	metadataDirName   = "metadata"
	mediaDirName      = "media"
)
