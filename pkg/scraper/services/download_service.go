package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/marketplace"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/config"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/models"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/repositories"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// BinaryFetcher is the slice of the marketplace client the download manager
// needs: URL construction and one-shot streamed downloads.
type BinaryFetcher interface {
	GetDownloadURL(addonKey, versionID, buildNumber string) string
	DownloadBinary(ctx context.Context, downloadURL, savePath string, progress marketplace.ProgressFunc) (marketplace.BinaryResult, error)
}

// DownloadManager drives binary downloads for every version the store does
// not yet mark as downloaded, with bounded concurrency and per-item
// retries. Item failures never abort the batch.
type DownloadManager struct {
	api         BinaryFetcher
	store       repositories.MetadataStore
	fs          afero.Fs
	binariesDir string
	maxWorkers  int
	maxRetries  int
}

type downloadItem struct {
	app     models.App
	version models.Version
	product string
}

func NewDownloadManager(api BinaryFetcher, store repositories.MetadataStore, fs afero.Fs, cfg config.Settings) *DownloadManager {
	workers := cfg.MaxConcurrentDownloads
	if workers < 1 {
		workers = 1
	}
	retries := cfg.MaxRetryAttempts
	if retries < 1 {
		retries = 1
	}
	return &DownloadManager{
		api:         api,
		store:       store,
		fs:          fs,
		binariesDir: cfg.BinariesDir,
		maxWorkers:  workers,
		maxRetries:  retries,
	}
}

// DownloadAllVersions computes the pending work queue and executes it with
// the configured worker pool. An optional product key restricts the run to
// apps supporting that product. Cancelling ctx stops new items from being
// issued; in-flight transfers finish or fail on their own.
func (m *DownloadManager) DownloadAllVersions(ctx context.Context, product string) (models.DownloadReport, error) {
	var report models.DownloadReport

	apps, err := m.store.GetAllApps(ctx, repositories.AppFilter{}, 0, 0)
	if err != nil {
		return report, fmt.Errorf("load apps: %w", err)
	}

	var queue []downloadItem
	for _, app := range apps {
		if product != "" && !app.Products.Contains(product) {
			continue
		}
		versions, err := m.store.GetAppVersions(ctx, app.AddonKey)
		if err != nil {
			return report, fmt.Errorf("load versions for %s: %w", app.AddonKey, err)
		}
		for _, version := range versions {
			if version.Downloaded {
				continue
			}
			queue = append(queue, downloadItem{
				app:     app,
				version: version,
				product: app.PrimaryProduct(),
			})
		}
	}
	report.Queued = len(queue)

	if len(queue) == 0 {
		log.Printf("[download] all versions already downloaded")
		return report, nil
	}

	log.Printf("[download] %d versions to download, %d concurrent workers", len(queue), m.maxWorkers)

	var completed, failed atomic.Int64
	sem := semaphore.NewWeighted(int64(m.maxWorkers))
	g, runCtx := errgroup.WithContext(ctx)

	issued := 0
	for _, item := range queue {
		item := item

		// Stop issuing new downloads once cancelled.
		if err := sem.Acquire(runCtx, 1); err != nil {
			break
		}
		issued++
		g.Go(func() error {
			defer sem.Release(1)
			if m.downloadSingleVersion(runCtx, item) {
				completed.Add(1)
			} else {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Completed = int(completed.Load())
	// Items never issued to the pool count as failed for this run; they
	// stay pending in the store and a later run picks them up.
	report.Failed = int(failed.Load()) + (len(queue) - issued)
	log.Printf("[download] run finished: %d completed, %d failed", report.Completed, report.Failed)
	return report, nil
}

// DownloadSpecificVersion downloads one version on demand.
func (m *DownloadManager) DownloadSpecificVersion(ctx context.Context, addonKey, versionID string) error {
	app, err := m.store.GetAppByKey(ctx, addonKey)
	if err != nil {
		return err
	}
	if app == nil {
		return fmt.Errorf("app not found: %s", addonKey)
	}

	versions, err := m.store.GetAppVersions(ctx, addonKey)
	if err != nil {
		return err
	}
	for _, version := range versions {
		if version.VersionID == versionID {
			item := downloadItem{app: *app, version: version, product: app.PrimaryProduct()}
			if !m.downloadSingleVersion(ctx, item) {
				return fmt.Errorf("download failed for %s v%s", addonKey, version.VersionName)
			}
			return nil
		}
	}
	return fmt.Errorf("version not found: %s %s", addonKey, versionID)
}

// downloadSingleVersion runs the full per-item state machine:
// queued → downloading → completed/failed, with up to maxRetries attempts.
// An existing destination file short-circuits as already downloaded, which
// keeps repeated runs idempotent.
func (m *DownloadManager) downloadSingleVersion(ctx context.Context, item downloadItem) bool {
	addonKey := item.app.AddonKey
	version := item.version
	status := models.NewDownloadStatus(addonKey, version.VersionID)

	downloadURL := ""
	if version.DownloadURL != nil {
		downloadURL = *version.DownloadURL
	}
	if downloadURL == "" {
		downloadURL = m.api.GetDownloadURL(addonKey, version.VersionID, "")
	}
	if downloadURL == "" {
		log.Printf("[download] no download URL for %s v%s", addonKey, version.VersionName)
		return false
	}

	saveDir := filepath.Join(m.binariesDir, item.product, addonKey, version.VersionID)
	if err := m.fs.MkdirAll(saveDir, 0o755); err != nil {
		log.Printf("[download] create dir %s: %v", saveDir, err)
		return false
	}

	fileName := version.FileName
	if fileName == "" {
		fileName = fmt.Sprintf("%s-%s.jar", addonKey, version.VersionID)
	}
	filePath := filepath.Join(saveDir, fileName)

	if exists, _ := afero.Exists(m.fs, filePath); exists {
		log.Printf("[download] file already exists: %s", filePath)
		if err := m.store.UpdateVersionDownloadStatus(ctx, addonKey, version.VersionID, true, &filePath); err != nil {
			log.Printf("[download] update status for %s v%s: %v", addonKey, version.VersionID, err)
			return false
		}
		return true
	}

	var lastErr error
	for attempt := 1; attempt <= m.maxRetries; attempt++ {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		status.MarkStarted()
		result, err := m.api.DownloadBinary(ctx, downloadURL, filePath, func(downloaded, total int64) {
			status.DownloadedBytes = downloaded
			if total > 0 {
				status.TotalBytes = total
			}
		})

		if err == nil && result.ContentLength > 0 && result.BytesWritten != result.ContentLength {
			err = fmt.Errorf("file size mismatch: expected %d, got %d", result.ContentLength, result.BytesWritten)
		}

		if err == nil {
			status.TotalBytes = result.BytesWritten
			status.MarkCompleted()
			if err := m.store.UpdateVersionDownloadStatus(ctx, addonKey, version.VersionID, true, &filePath); err != nil {
				log.Printf("[download] update status for %s v%s: %v", addonKey, version.VersionID, err)
				return false
			}
			log.Printf("[download] downloaded %s v%s (%d bytes)", addonKey, version.VersionName, result.BytesWritten)
			return true
		}

		lastErr = err
		status.MarkFailed(err.Error())
		// A truncated file must never satisfy the already-exists check.
		_ = m.fs.Remove(filePath)

		if attempt < m.maxRetries {
			log.Printf("[download] attempt %d/%d failed for %s v%s: %v",
				attempt, m.maxRetries, addonKey, version.VersionName, err)
		}
	}

	log.Printf("[download] failed %s v%s: %v", addonKey, version.VersionName, lastErr)
	return false
}

// GetStorageStats walks the binaries root and recomputes the on-disk
// footprint. Always consistent with disk at the price of O(files) per call.
func (m *DownloadManager) GetStorageStats() models.StorageStats {
	var stats models.StorageStats

	_ = afero.Walk(m.fs, m.binariesDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		stats.TotalBytes += info.Size()
		stats.FileCount++
		return nil
	})

	stats.TotalMB = math.Round(float64(stats.TotalBytes)/(1<<20)*100) / 100
	stats.TotalGB = math.Round(float64(stats.TotalBytes)/(1<<30)*100) / 100
	return stats
}
