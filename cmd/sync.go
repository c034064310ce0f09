package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/jzelinskie/cobrautil/v2"
	"github.com/spf13/cobra"

	"github.com/conatus-oss/dana-archive/internal/archive"
	"github.com/conatus-oss/dana-archive/internal/config"
	"github.com/conatus-oss/dana-archive/internal/peersync"
)

// NewSyncCommand mirrors asset state from a source archive into a
// destination archive, one collection subtree at a time. The protocol
// itself (spec.md §4.7) is transport-agnostic; this command drives both
// sides as in-process library calls rather than over a network, since no
// wire transport is in scope here.
func NewSyncCommand() *cobra.Command {
	var sourceDir, destDir, collectionsCSV, logLevel, logFormat string

	cmd := &cobra.Command{
		Use:          "sync",
		Short:        "Mirror asset state from a source archive into a destination archive",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			src, err := archive.Open(ctx, sourceDir, config.WithLogLevel(logLevel), config.WithLogFormat(logFormat))
			if err != nil {
				return fmt.Errorf("opening source archive: %w", err)
			}
			defer src.Close()

			dst, err := archive.Open(ctx, destDir, config.WithLogLevel(logLevel), config.WithLogFormat(logFormat))
			if err != nil {
				return fmt.Errorf("opening destination archive: %w", err)
			}
			defer dst.Close()

			collectionIDs := splitCollections(collectionsCSV)

			srcSync := peersync.NewService(src, nil)
			dstSync := peersync.NewService(dst, nil)

			candidates, err := srcSync.PullCandidates(ctx, collectionIDs)
			if err != nil {
				return fmt.Errorf("listing source assets: %w", err)
			}

			want, err := dstSync.Begin(ctx, collectionIDs, candidates)
			if err != nil {
				return fmt.Errorf("beginning sync transaction: %w", err)
			}

			byID := make(map[string]peersync.AssetRecord, len(candidates))
			for _, rec := range candidates {
				byID[rec.ID] = rec
			}
			wantMedia := make(map[string]bool, len(want.WantMedia))
			for _, hash := range want.WantMedia {
				wantMedia[hash] = true
			}

			pushed := 0
			for _, id := range want.WantAssets {
				rec, ok := byID[id]
				if !ok {
					continue
				}

				for _, m := range rec.Media {
					if !wantMedia[m.SHA256] {
						continue
					}
					if err := pushOneMedia(ctx, src, dstSync, want.TransactionID, m.SHA256); err != nil {
						_ = dstSync.Cancel(ctx, want.TransactionID)
						return fmt.Errorf("pushing media for asset %s: %w", rec.ID, err)
					}
				}

				if err := dstSync.PushAsset(ctx, want.TransactionID, rec); err != nil {
					_ = dstSync.Cancel(ctx, want.TransactionID)
					return fmt.Errorf("pushing asset %s: %w", rec.ID, err)
				}
				pushed++
			}

			if err := dstSync.Commit(ctx, want.TransactionID); err != nil {
				return fmt.Errorf("committing sync transaction: %w", err)
			}

			fmt.Printf("synced %d asset(s) (%d unchanged) from %s to %s\n", pushed, len(candidates)-pushed, src.RootDir(), dst.RootDir())
			return nil
		},
	}

	registerSyncFlags(cmd, &sourceDir, &destDir, &collectionsCSV, &logLevel, &logFormat)
	return cmd
}

// pushOneMedia resolves a content hash back to its media record in the
// source archive and streams its bytes to the destination, skipping the
// transfer when the destination already holds that content (the dedup
// check HasMedia runs inside PushMedia itself).
func pushOneMedia(ctx context.Context, src *archive.Archive, dstSync *peersync.Service, txID, hash string) error {
	have, err := dstSync.HasMedia(ctx, hash)
	if err != nil {
		return err
	}
	if have {
		_, err := dstSync.PushMedia(ctx, txID, hash, "", "", nil)
		return err
	}

	mf, found, err := src.Media.FindBySHA256(ctx, hash)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("source archive no longer holds media with hash %s", hash)
	}

	r, err := src.Media.Content(ctx, mf)()
	if err != nil {
		return err
	}
	if closer, ok := r.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	_, err = dstSync.PushMedia(ctx, txID, hash, mf.MimeType, mf.Extension, r)
	return err
}

func splitCollections(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

func registerSyncFlags(cmd *cobra.Command, sourceDir, destDir, collectionsCSV, logLevel, logFormat *string) {
	nfs := cobrautil.NewNamedFlagSets(cmd)

	syncFlagSet := nfs.FlagSet(color.New(color.FgGreen, color.Bold).Sprint("sync"))
	syncFlagSet.StringVar(sourceDir, "source", "", "path to the source archive directory (required)")
	syncFlagSet.StringVar(destDir, "destination", "", "path to the destination archive directory (required)")
	syncFlagSet.StringVar(collectionsCSV, "collections", "", "comma-separated collection ids to sync (all if empty)")

	logFlagSet := nfs.FlagSet(color.New(color.FgCyan, color.Bold).Sprint("logging"))
	logFlagSet.StringVar(logLevel, "log-level", "info", "log level")
	logFlagSet.StringVar(logFormat, "log-format", "console", "format of the logs: console or json")

	nfs.AddFlagSets(cmd)
	cmd.MarkFlagRequired("source")
	cmd.MarkFlagRequired("destination")
}
