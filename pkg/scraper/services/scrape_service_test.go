package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/marketplace"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/config"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/models"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/repositories"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCatalog implements services.CatalogFetcher for testing
type stubCatalog struct {
	searchApps  func(ctx context.Context, hosting, application string, offset, limit int, cost string) *marketplace.AddonPage
	allVersions func(ctx context.Context, addonKey string) []marketplace.VersionInfo
}

func (s *stubCatalog) SearchApps(ctx context.Context, hosting, application string, offset, limit int, cost string) *marketplace.AddonPage {
	return s.searchApps(ctx, hosting, application, offset, limit, cost)
}

func (s *stubCatalog) GetAllAppVersions(ctx context.Context, addonKey string) []marketplace.VersionInfo {
	if s.allVersions != nil {
		return s.allVersions(ctx, addonKey)
	}
	return nil
}

func scrapeConfig() config.Settings {
	return config.Settings{
		ExpandServerHosting:     true,
		VersionAgeLimitDays:     365,
		MaxVersionScrapeWorkers: 2,
	}
}

func addonPage(next bool, keys ...string) *marketplace.AddonPage {
	page := &marketplace.AddonPage{}
	for _, key := range keys {
		page.Embedded.Addons = append(page.Embedded.Addons, marketplace.Addon{Key: key, Name: key})
	}
	if next {
		page.Links.Next = &marketplace.Link{Href: "/next"}
	}
	return page
}

func TestScrapeApps_SweepsAllPages(t *testing.T) {
	store := newStubStore()
	catalog := &stubCatalog{
		searchApps: func(ctx context.Context, hosting, application string, offset, limit int, cost string) *marketplace.AddonPage {
			switch offset {
			case 0:
				return addonPage(true, "app-a", "app-b")
			case 2:
				return addonPage(false, "app-c")
			default:
				return addonPage(false)
			}
		},
	}

	service := services.NewScrapeService(catalog, store, scrapeConfig())
	saved, err := service.ScrapeApps(context.Background(), []string{"jira"})

	require.NoError(t, err)
	assert.Equal(t, 3, saved)

	apps, _ := store.GetAllApps(context.Background(), repositories.AppFilter{}, 0, 0)
	require.Len(t, apps, 3)
	assert.Equal(t, models.StringList{"jira"}, apps[0].Products)
	assert.Equal(t, models.StringList{"server", "datacenter"}, apps[0].Hosting)
}

func TestScrapeApps_EmptyFirstPage(t *testing.T) {
	store := newStubStore()
	catalog := &stubCatalog{
		searchApps: func(ctx context.Context, hosting, application string, offset, limit int, cost string) *marketplace.AddonPage {
			return addonPage(false)
		},
	}

	service := services.NewScrapeService(catalog, store, scrapeConfig())
	saved, err := service.ScrapeApps(context.Background(), []string{"jira"})

	require.NoError(t, err)
	assert.Zero(t, saved)
}

func TestScrapeAllVersions_FiltersAndSaves(t *testing.T) {
	store := newStubStore()
	ctx := context.Background()
	_ = store.SaveApp(ctx, &models.App{AddonKey: "some-app", Products: models.StringList{"jira"}})

	recent := time.Now().AddDate(0, 0, -30).Format("2006-01-02")
	ancient := time.Now().AddDate(-5, 0, 0).Format("2006-01-02")

	catalog := &stubCatalog{
		allVersions: func(ctx context.Context, addonKey string) []marketplace.VersionInfo {
			return []marketplace.VersionInfo{
				{ID: 100, Name: "2.0", Release: &marketplace.VersionRelease{Date: recent},
					Deployment: &marketplace.VersionDeployment{Server: true}},
				{ID: 99, Name: "1.0", Release: &marketplace.VersionRelease{Date: ancient},
					Deployment: &marketplace.VersionDeployment{Server: true}},
				{ID: 98, Name: "2.0-cloud", Release: &marketplace.VersionRelease{Date: recent},
					Deployment: &marketplace.VersionDeployment{Cloud: true}},
			}
		},
	}

	service := services.NewScrapeService(catalog, store, scrapeConfig())
	saved, err := service.ScrapeAllVersions(ctx, "")

	require.NoError(t, err)
	assert.Equal(t, 1, saved)

	versions, _ := store.GetAppVersions(ctx, "some-app")
	require.Len(t, versions, 1)
	assert.Equal(t, "100", versions[0].VersionID)
}

func TestScrapeAllVersions_AppWithoutVersions(t *testing.T) {
	store := newStubStore()
	ctx := context.Background()
	_ = store.SaveApp(ctx, &models.App{AddonKey: "empty-app", Products: models.StringList{"jira"}})

	catalog := &stubCatalog{}
	service := services.NewScrapeService(catalog, store, scrapeConfig())

	saved, err := service.ScrapeAllVersions(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, saved)
}
