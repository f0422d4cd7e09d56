package services

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/config"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/models"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/repositories"
	"github.com/spf13/afero"
)

// StorageReindexer repairs drift between "metadata says downloaded" and
// what is actually on disk, so the download manager's pending set stays
// truthful across runs where files were deleted or moved externally.
type StorageReindexer struct {
	store       repositories.MetadataStore
	fs          afero.Fs
	binariesDir string
}

func NewStorageReindexer(store repositories.MetadataStore, fs afero.Fs, cfg config.Settings) *StorageReindexer {
	return &StorageReindexer{
		store:       store,
		fs:          fs,
		binariesDir: cfg.BinariesDir,
	}
}

type clearTarget struct {
	addonKey  string
	versionID string
}

// Reindex scans every version flagged downloaded, verifies its file, and
// clears stale records in a second batched pass so the scan itself sees a
// stable view. Missing files are a reconciliation condition, not an error.
func (r *StorageReindexer) Reindex(ctx context.Context) (models.ReindexStats, error) {
	var stats models.ReindexStats

	downloadedCount, err := r.store.GetDownloadedVersionsCount(ctx)
	if err != nil {
		return stats, fmt.Errorf("count downloaded versions: %w", err)
	}
	if downloadedCount == 0 {
		log.Printf("[reindex] no downloaded versions, nothing to reindex")
		return stats, nil
	}

	log.Printf("[reindex] verifying %d versions marked as downloaded", downloadedCount)

	apps, err := r.store.GetAllApps(ctx, repositories.AppFilter{}, 0, 0)
	if err != nil {
		return stats, fmt.Errorf("load apps: %w", err)
	}

	var toClear []clearTarget
	for _, app := range apps {
		versions, err := r.store.GetAppVersions(ctx, app.AddonKey)
		if err != nil {
			return stats, fmt.Errorf("load versions for %s: %w", app.AddonKey, err)
		}
		for _, version := range versions {
			stats.TotalVersions++
			if !version.Downloaded {
				continue
			}
			stats.MarkedDownloaded++

			if version.FilePath != nil {
				if exists, _ := afero.Exists(r.fs, *version.FilePath); exists {
					stats.FilesVerified++
					continue
				}
			}

			log.Printf("[reindex] missing file for %s v%s", app.AddonKey, version.VersionName)
			toClear = append(toClear, clearTarget{addonKey: app.AddonKey, versionID: version.VersionID})
			stats.FilesMissing++
		}
	}

	if len(toClear) > 0 {
		log.Printf("[reindex] clearing %d download records", len(toClear))
		for _, target := range toClear {
			if err := r.store.UpdateVersionDownloadStatus(ctx, target.addonKey, target.versionID, false, nil); err != nil {
				return stats, fmt.Errorf("clear download status for %s %s: %w", target.addonKey, target.versionID, err)
			}
			stats.MetadataCleared++
		}
	}

	log.Printf("[reindex] complete: total=%d marked=%d verified=%d missing=%d cleared=%d",
		stats.TotalVersions, stats.MarkedDownloaded, stats.FilesVerified,
		stats.FilesMissing, stats.MetadataCleared)
	return stats, nil
}

// VerifyFileExists probes the expected directory of a version and reports
// the first file found there.
func (r *StorageReindexer) VerifyFileExists(addonKey, versionID, product string) (bool, string) {
	versionDir := filepath.Join(r.binariesDir, product, addonKey, versionID)

	entries, err := afero.ReadDir(r.fs, versionDir)
	if err != nil {
		return false, ""
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			return true, filepath.Join(versionDir, entry.Name())
		}
	}
	return false, ""
}

// GetOrphanedFiles walks the binaries tree and reports app and version
// directories that have no metadata record, keyed by product.
func (r *StorageReindexer) GetOrphanedFiles(ctx context.Context) (map[string][]string, error) {
	orphaned := make(map[string][]string)

	products, err := afero.ReadDir(r.fs, r.binariesDir)
	if err != nil {
		// No binaries directory yet means nothing can be orphaned.
		return orphaned, nil
	}

	for _, productEntry := range products {
		if !productEntry.IsDir() {
			continue
		}
		productName := productEntry.Name()
		productDir := filepath.Join(r.binariesDir, productName)

		appEntries, err := afero.ReadDir(r.fs, productDir)
		if err != nil {
			return nil, err
		}
		for _, appEntry := range appEntries {
			if !appEntry.IsDir() {
				continue
			}
			addonKey := appEntry.Name()
			appDir := filepath.Join(productDir, addonKey)

			app, err := r.store.GetAppByKey(ctx, addonKey)
			if err != nil {
				return nil, err
			}
			if app == nil {
				orphaned[productName] = append(orphaned[productName], appDir)
				continue
			}

			versions, err := r.store.GetAppVersions(ctx, addonKey)
			if err != nil {
				return nil, err
			}
			known := make(map[string]struct{}, len(versions))
			for _, version := range versions {
				known[version.VersionID] = struct{}{}
			}

			versionEntries, err := afero.ReadDir(r.fs, appDir)
			if err != nil {
				return nil, err
			}
			for _, versionEntry := range versionEntries {
				if !versionEntry.IsDir() {
					continue
				}
				if _, ok := known[versionEntry.Name()]; !ok {
					orphaned[productName] = append(orphaned[productName], filepath.Join(appDir, versionEntry.Name()))
				}
			}
		}
	}

	return orphaned, nil
}

// CleanOrphanedFiles deletes previously reported orphan directories. It is
// destructive and only ever runs on explicit request, never as part of
// Reindex.
func (r *StorageReindexer) CleanOrphanedFiles(orphaned map[string][]string) int {
	removed := 0
	for _, paths := range orphaned {
		for _, path := range paths {
			if err := r.fs.RemoveAll(path); err != nil {
				log.Printf("[reindex] failed to remove %s: %v", path, err)
				continue
			}
			log.Printf("[reindex] removed orphaned directory %s", path)
			removed++
		}
	}
	return removed
}
