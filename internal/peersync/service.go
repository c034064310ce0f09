package peersync

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conatus-oss/dana-archive/internal/archive"
	"github.com/conatus-oss/dana-archive/internal/asset"
	"github.com/conatus-oss/dana-archive/internal/blob"
	"github.com/conatus-oss/dana-archive/internal/datastore/fs"
	"github.com/conatus-oss/dana-archive/internal/entity"
)

// BeginPolicy lets a server reject a sync transaction before any data is
// staged — an authorization or quota check the caller supplies, since the
// protocol itself has no opinion on who may sync what (spec.md §4.7
// "server-side policy hook").
type BeginPolicy func(ctx context.Context, collectionIDs []string) error

// WantSet is what Begin returns: the transaction a client must push against,
// plus the subset of its candidates the destination actually wants (spec.md
// §4.7 step 1). delete_assets/delete_media are computed at the same time but
// not handed back to the client — they are applied server-side at Commit.
type WantSet struct {
	TransactionID string   `json:"transaction_id"`
	WantAssets    []string `json:"want_assets"`
	WantMedia     []string `json:"want_media"`
}

// transaction is one in-flight begin/push/commit exchange, staged under
// {archive}/sync/{id}/ until it commits, is cancelled, or times out.
type transaction struct {
	id             string
	collectionIDs  []string
	dir            string
	lastActivity   time.Time
	assets         map[string]AssetRecord // keyed by AssetRecord.ID
	mediaByHash    map[string]string      // content hash -> local media id
	deleteAssetIDs []string               // local assets absent from the source's candidates
	deleteMediaIDs []string               // local media absent from the source's candidates
}

// Service implements the Sync Protocol's server side: one archive accepting
// pushes from a peer.
type Service struct {
	arch    *archive.Archive
	fs      *fs.Datastore
	timeout time.Duration
	policy  BeginPolicy

	mu  sync.Mutex
	txs map[string]*transaction
}

func NewService(arch *archive.Archive, policy BeginPolicy) *Service {
	cfg := arch.Config()
	return &Service{
		arch:    arch,
		fs:      fs.NewFsDatastore(arch.SyncDir()),
		timeout: time.Duration(cfg.SyncTransactionTimeoutSeconds) * time.Second,
		policy:  policy,
		txs:     make(map[string]*transaction),
	}
}

// Begin opens a staging transaction scoped to collectionIDs, running the
// configured policy hook first and reaping any transaction that has gone
// quiet past the sliding timeout (spec.md §4.7 step 1 / §5 "suspension
// points" — every entry point gets a chance to notice expired state).
//
// candidates is the source's view of what it would push (its own
// PullCandidates result). Begin diffs it against this archive's own
// candidates over the same collections, using AssetContentHash/
// MediaContentHash to tell an unchanged record from a new or modified one,
// and returns which of the source's assets/media the destination actually
// wants. Assets and media present locally but absent from candidates are
// recorded on the transaction for Commit to delete.
func (s *Service) Begin(ctx context.Context, collectionIDs []string, candidates []AssetRecord) (WantSet, error) {
	if s.policy != nil {
		if err := s.policy(ctx, collectionIDs); err != nil {
			return WantSet{}, err
		}
	}

	local, err := s.PullCandidates(ctx, collectionIDs)
	if err != nil {
		return WantSet{}, err
	}

	localAssetHash := make(map[string]string, len(local))
	localMediaAssoc := make(map[string]bool)
	localMediaIDByHash := make(map[string]string)
	for _, rec := range local {
		h, err := AssetContentHash(rec)
		if err != nil {
			return WantSet{}, err
		}
		localAssetHash[rec.ID] = h

		for _, m := range rec.Media {
			assoc, err := MediaContentHash(rec.ID, m.MimeType, m.SHA256)
			if err != nil {
				return WantSet{}, err
			}
			localMediaAssoc[assoc] = true

			if mf, found, err := s.arch.Media.FindBySHA256(ctx, m.SHA256); err != nil {
				return WantSet{}, err
			} else if found {
				localMediaIDByHash[m.SHA256] = mf.ID
			}
		}
	}

	var want WantSet
	incomingAssetIDs := make(map[string]bool, len(candidates))
	incomingMediaHashes := make(map[string]bool)
	seenWantMedia := make(map[string]bool)
	for _, rec := range candidates {
		incomingAssetIDs[rec.ID] = true

		h, err := AssetContentHash(rec)
		if err != nil {
			return WantSet{}, err
		}
		if existing, ok := localAssetHash[rec.ID]; !ok || existing != h {
			want.WantAssets = append(want.WantAssets, rec.ID)
		}

		for _, m := range rec.Media {
			incomingMediaHashes[m.SHA256] = true

			assoc, err := MediaContentHash(rec.ID, m.MimeType, m.SHA256)
			if err != nil {
				return WantSet{}, err
			}
			if !localMediaAssoc[assoc] && !seenWantMedia[m.SHA256] {
				seenWantMedia[m.SHA256] = true
				want.WantMedia = append(want.WantMedia, m.SHA256)
			}
		}
	}

	var deleteAssetIDs []string
	for id := range localAssetHash {
		if !incomingAssetIDs[id] {
			deleteAssetIDs = append(deleteAssetIDs, id)
		}
	}
	var deleteMediaIDs []string
	for hash, mediaID := range localMediaIDByHash {
		if !incomingMediaHashes[hash] {
			deleteMediaIDs = append(deleteMediaIDs, mediaID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapExpiredLocked(ctx)

	id := uuid.NewString()
	dir := id
	if err := s.fs.CreateFolder(ctx, dir); err != nil {
		return WantSet{}, err
	}

	s.txs[id] = &transaction{
		id:             id,
		collectionIDs:  collectionIDs,
		dir:            dir,
		lastActivity:   time.Now(),
		assets:         make(map[string]AssetRecord),
		mediaByHash:    make(map[string]string),
		deleteAssetIDs: deleteAssetIDs,
		deleteMediaIDs: deleteMediaIDs,
	}

	want.TransactionID = id
	return want, nil
}

func (s *Service) touch(ctx context.Context, txID string) (*transaction, error) {
	s.reapExpiredLocked(ctx)
	tx, ok := s.txs[txID]
	if !ok {
		return nil, fmt.Errorf("peersync: transaction %s not found or expired", txID)
	}
	tx.lastActivity = time.Now()
	return tx, nil
}

// reapExpiredLocked deletes every transaction whose staging directory has
// been idle longer than the configured timeout. Callers must hold s.mu.
func (s *Service) reapExpiredLocked(ctx context.Context) {
	now := time.Now()
	for id, tx := range s.txs {
		if now.Sub(tx.lastActivity) > s.timeout {
			_ = s.fs.DeleteFolder(ctx, tx.dir)
			delete(s.txs, id)
		}
	}
}

// PushAsset stages one asset record for a later commit. The asset's media
// must already have been pushed (or found deduped) via PushMedia with
// matching hashes, or Commit will reject it.
func (s *Service) PushAsset(ctx context.Context, txID string, rec AssetRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.touch(ctx, txID)
	if err != nil {
		return err
	}
	tx.assets[rec.ID] = rec
	return nil
}

// HasMedia reports whether the receiving archive already holds media with
// the given content hash, so a peer can skip transferring bytes it knows
// are already present (spec.md §4.7 step 1b content-hash dedup).
func (s *Service) HasMedia(ctx context.Context, sha256Hex string) (bool, error) {
	_, found, err := s.arch.Media.FindBySHA256(ctx, sha256Hex)
	return found, err
}

// PushMedia registers one media file's content hash against txID. When the
// receiving archive already holds matching content, content may be nil and
// the existing local media is reused (deduped=true); otherwise content must
// be the media's bytes, which are staged and put through the Media Store
// under extension.
func (s *Service) PushMedia(ctx context.Context, txID, sha256Hex, mimeType, extension string, content io.Reader) (deduped bool, err error) {
	s.mu.Lock()
	tx, err := s.touch(ctx, txID)
	s.mu.Unlock()
	if err != nil {
		return false, err
	}

	if existing, found, err := s.arch.Media.FindBySHA256(ctx, sha256Hex); err != nil {
		return false, err
	} else if found {
		s.mu.Lock()
		tx.mediaByHash[sha256Hex] = existing.ID
		s.mu.Unlock()
		return true, nil
	}

	if content == nil {
		return false, fmt.Errorf("peersync: media with hash %s not found locally and no content was sent", sha256Hex)
	}

	stagedName := sha256Hex + "." + extension
	stagedRel := filepath.Join(tx.dir, stagedName)
	if err := s.fs.Write(ctx, stagedRel, content); err != nil {
		return false, err
	}

	mf, err := s.arch.Media.Put(ctx, blob.SourceFromPath(filepath.Join(s.arch.SyncDir(), stagedRel)))
	_ = s.fs.DeleteMedia(ctx, stagedRel)
	if err != nil {
		return false, err
	}

	if mf.SHA256 != sha256Hex {
		s.arch.Media.Delete(ctx, []string{mf.ID})
		return false, fmt.Errorf("peersync: pushed content hash %s does not match advertised %s", mf.SHA256, sha256Hex)
	}

	s.mu.Lock()
	tx.mediaByHash[sha256Hex] = mf.ID
	s.mu.Unlock()
	return false, nil
}

// Commit replays the staged transaction in one unit of work (spec.md §4.7
// step 3): delete assets the source no longer has, resolve every staged
// asset's media hashes to local media ids and create-or-update each asset,
// then delete media the source no longer references. It tears down the
// staging transaction afterward regardless of outcome.
func (s *Service) Commit(ctx context.Context, txID string) error {
	s.mu.Lock()
	tx, err := s.touch(ctx, txID)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	err = s.arch.WithUnitOfWork(ctx, func(ctx context.Context) error {
		if len(tx.deleteAssetIDs) > 0 {
			if err := s.arch.Assets.DeleteAssets(ctx, tx.deleteAssetIDs); err != nil {
				return fmt.Errorf("peersync: deleting assets absent from source: %w", err)
			}
		}

		for _, rec := range tx.assets {
			mediaIDs := make([]string, 0, len(rec.Media))
			for _, m := range rec.Media {
				localID, ok := tx.mediaByHash[m.SHA256]
				if !ok {
					return fmt.Errorf("peersync: asset %s references media hash %s that was never pushed", rec.ID, m.SHA256)
				}
				mediaIDs = append(mediaIDs, localID)
			}

			params := asset.CreateAssetParams{
				AccessLevel: rec.AccessControl,
				Metadata:    rec.Metadata,
				MediaIDs:    mediaIDs,
				ForceID:     &rec.ID,
			}

			if existing, err := s.arch.Assets.Get(ctx, rec.ID); err == nil {
				_, err := s.arch.Assets.UpdateAsset(ctx, existing.ID, asset.UpdateAssetParams{
					Metadata:    rec.Metadata,
					AccessLevel: &rec.AccessControl,
				})
				if err != nil {
					return err
				}
				continue
			}

			if _, err := s.arch.Assets.CreateAsset(ctx, rec.CollectionID, params); err != nil {
				return err
			}
		}

		if len(tx.deleteMediaIDs) > 0 {
			for _, res := range s.arch.Media.Delete(ctx, tx.deleteMediaIDs) {
				if res.Error != nil {
					return fmt.Errorf("peersync: deleting media absent from source: %w", res.Error)
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.fs.DeleteFolder(ctx, tx.dir)
	delete(s.txs, txID)
	return nil
}

// Cancel discards a staging transaction without committing anything.
func (s *Service) Cancel(ctx context.Context, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[txID]
	if !ok {
		return nil
	}
	_ = s.fs.DeleteFolder(ctx, tx.dir)
	delete(s.txs, txID)
	return nil
}

// PullCandidates lists the visible asset/media records a peer pulling from
// this archive would push in the opposite direction, applying the same
// access-level filtering a push must respect: RESTRICTED assets never
// leave, METADATA_ONLY assets leave their metadata but not their media
// (spec.md §4.7 step 1a).
func (s *Service) PullCandidates(ctx context.Context, collectionIDs []string) ([]AssetRecord, error) {
	var out []AssetRecord

	offset := 0
	const pageSize = 200
	for {
		page, err := s.arch.ListAssets(ctx, collectionIDs, entity.PageRange{Offset: offset, Limit: pageSize})
		if err != nil {
			return nil, err
		}

		for _, a := range page.Items {
			if a.AccessLevel == entity.AccessRestricted {
				continue
			}

			schema, err := s.arch.Collections.MergedSchema(ctx, a.CollectionID)
			if err != nil {
				return nil, err
			}

			rec := AssetRecord{
				ID:            a.ID,
				CollectionID:  a.CollectionID,
				AccessControl: a.AccessLevel,
				Metadata:      a.VisibleMetadata(schema),
			}

			if a.AccessLevel != entity.AccessMetadataOnly {
				for _, mediaID := range a.MediaIDs {
					mf, err := s.arch.Media.Get(ctx, mediaID)
					if err != nil {
						return nil, err
					}
					rec.Media = append(rec.Media, MediaRef{SHA256: mf.SHA256, MimeType: mf.MimeType})
				}
			}

			out = append(out, rec)
		}

		if len(page.Items) < pageSize {
			return out, nil
		}
		offset += pageSize
	}
}
