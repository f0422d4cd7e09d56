package services

import (
	"context"
	"log"
	"sync/atomic"

	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/marketplace"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/config"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/filters"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/models"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/repositories"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// CatalogFetcher is the slice of the marketplace client discovery needs.
type CatalogFetcher interface {
	SearchApps(ctx context.Context, hosting, application string, offset, limit int, cost string) *marketplace.AddonPage
	GetAllAppVersions(ctx context.Context, addonKey string) []marketplace.VersionInfo
}

// ScrapeService discovers apps and their version histories and persists
// them into the metadata store, feeding the download manager's work queue.
type ScrapeService struct {
	api   CatalogFetcher
	store repositories.MetadataStore

	expandServerHosting bool
	versionAgeLimitDays int
	maxWorkers          int
}

func NewScrapeService(api CatalogFetcher, store repositories.MetadataStore, cfg config.Settings) *ScrapeService {
	workers := cfg.MaxVersionScrapeWorkers
	if workers < 1 {
		workers = 1
	}
	return &ScrapeService{
		api:                 api,
		store:               store,
		expandServerHosting: cfg.ExpandServerHosting,
		versionAgeLimitDays: cfg.VersionAgeLimitDays,
		maxWorkers:          workers,
	}
}

// ScrapeApps sweeps the paginated search results for every given product
// and upserts the discovered apps. Returns the number of apps saved.
func (s *ScrapeService) ScrapeApps(ctx context.Context, products []string) (int, error) {
	if len(products) == 0 {
		products = config.ProductList
	}

	saved := 0
	for _, product := range products {
		offset := 0
		for {
			if err := ctx.Err(); err != nil {
				return saved, err
			}

			page := s.api.SearchApps(ctx, config.HostingServer, product, offset, 100, "")
			addons := page.Addons()
			if len(addons) == 0 {
				break
			}

			for _, addon := range addons {
				app := models.AppFromAddon(addon, product, config.HostingServer, s.expandServerHosting)
				if app.AddonKey == "" {
					continue
				}
				if err := s.store.SaveApp(ctx, &app); err != nil {
					return saved, err
				}
				saved++
			}

			if page.Links.Next == nil {
				break
			}
			offset += len(addons)
		}
		log.Printf("[scrape] finished app sweep for product=%s", product)
	}
	return saved, nil
}

// ScrapeAllVersions harvests the full version history of every stored app
// (optionally restricted to one product), filters it to recent
// server/datacenter releases, and persists the result. One broken app must
// not block the rest, so per-app failures are logged and counted only.
func (s *ScrapeService) ScrapeAllVersions(ctx context.Context, productFilter string) (int, error) {
	apps, err := s.store.GetAllApps(ctx, repositories.AppFilter{Product: productFilter}, 0, 0)
	if err != nil {
		return 0, err
	}

	var saved atomic.Int64
	sem := semaphore.NewWeighted(int64(s.maxWorkers))
	g, runCtx := errgroup.WithContext(ctx)

	for _, app := range apps {
		app := app

		if err := sem.Acquire(runCtx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)

			infos := s.api.GetAllAppVersions(runCtx, app.AddonKey)
			if len(infos) == 0 {
				return nil
			}

			versions := make([]models.Version, 0, len(infos))
			for _, info := range infos {
				version := models.VersionFromInfo(app.AddonKey, info)
				if version.VersionID == "" {
					continue
				}
				versions = append(versions, version)
			}
			versions = filters.ByReleaseDate(versions, s.versionAgeLimitDays)
			versions = filters.ByHosting(versions, nil)
			if len(versions) == 0 {
				return nil
			}

			if err := s.store.SaveVersions(runCtx, versions); err != nil {
				log.Printf("[scrape] save versions for %s: %v", app.AddonKey, err)
				return nil
			}
			if err := s.store.UpdateAppVersionCount(runCtx, app.AddonKey, len(versions)); err != nil {
				log.Printf("[scrape] update version count for %s: %v", app.AddonKey, err)
			}
			saved.Add(int64(len(versions)))
			return nil
		})
	}
	_ = g.Wait()

	log.Printf("[scrape] version sweep finished: %d versions saved", saved.Load())
	return int(saved.Load()), nil
}
