// Package peersync implements the Sync Protocol (spec.md C7): a three-step
// begin/push/commit transfer that mirrors one archive's assets into
// another, deduping media by content hash and respecting each asset's
// access level. Grounded on internal/archive for the domain operations a
// commit ultimately performs and internal/store's unit-of-work scope for
// making that commit atomic.
package peersync

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/conatus-oss/dana-archive/internal/entity"
)

// MediaRef identifies one piece of media an asset references: its raw
// content hash (the Media Store's content-addressed identity, used for
// dedup and transfer) plus the mime type needed to compute the
// association's canonical hash for want-set diffing.
type MediaRef struct {
	SHA256   string `json:"sha256"`
	MimeType string `json:"mime_type"`
}

// AssetRecord is the wire shape pushed for one asset (spec.md §4.7 step 1a):
// access_control, collection and visible metadata plus the content hashes of
// its media, together with the source asset's id, which Commit reuses as the
// mirrored asset's id on the receiving archive.
type AssetRecord struct {
	ID            string             `json:"id"`
	CollectionID  string             `json:"collection_id"`
	AccessControl entity.AccessLevel `json:"access_control"`
	Metadata      entity.Metadata    `json:"metadata"`
	Media         []MediaRef         `json:"media"`
}

// canonicalAssetPayload is the subset of AssetRecord the content hash is
// computed over (spec.md §9 design note): access control, collection and
// visible metadata, deliberately excluding the id so two archives that
// independently produced the same asset content hash the same way.
type canonicalAssetPayload struct {
	AccessControl entity.AccessLevel `json:"access_control"`
	CollectionID  string             `json:"collection_id"`
	Metadata      entity.Metadata    `json:"metadata"`
}

// AssetContentHash computes the canonical content hash of an asset record.
// Begin compares this across the source's candidates and the destination's
// own local candidates to decide want_assets/delete_assets (spec.md §4.7
// step 1).
func AssetContentHash(rec AssetRecord) (string, error) {
	return contentHash(canonicalAssetPayload{
		AccessControl: rec.AccessControl,
		CollectionID:  rec.CollectionID,
		Metadata:      rec.Metadata,
	})
}

// canonicalMediaPayload is the subset of a media file the sync protocol
// hashes to decide dedup (spec.md §9): asset id, mime type and content hash.
type canonicalMediaPayload struct {
	AssetID  string `json:"asset_id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
}

// MediaContentHash computes the canonical content hash for a media
// reference. Begin compares this across candidate sets the same way
// AssetContentHash does, to decide want_media/delete_media.
func MediaContentHash(assetID, mimeType, sha256Hex string) (string, error) {
	return contentHash(canonicalMediaPayload{AssetID: assetID, MimeType: mimeType, SHA256: sha256Hex})
}

func contentHash(v any) (string, error) {
	// encoding/json sorts map keys when marshaling, which is what makes this
	// serialization canonical across two independently-constructed values.
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:]), nil
}
