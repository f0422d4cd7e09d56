package models_test

import (
	"testing"

	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/marketplace"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppFromAddon_UsesSearchContextFallbacks(t *testing.T) {
	addon := marketplace.Addon{Key: "some-app", Name: "Some App"}

	app := models.AppFromAddon(addon, "jira", "server", true)

	assert.Equal(t, models.StringList{"jira"}, app.Products)
	assert.Equal(t, models.StringList{"server", "datacenter"}, app.Hosting)
	assert.False(t, app.ScrapedAt.IsZero())
}

func TestAppFromAddon_ServerExpansionCanBeDisabled(t *testing.T) {
	addon := marketplace.Addon{Key: "some-app"}

	app := models.AppFromAddon(addon, "jira", "server", false)

	assert.Equal(t, models.StringList{"server"}, app.Hosting)
}

func TestAppFromAddon_PrefersResponseFields(t *testing.T) {
	addon := marketplace.Addon{
		Key:         "some-app",
		Name:        "Some App",
		Summary:     "Does things",
		LogoURL:     "https://cdn.example/logo.png",
		Application: []string{"confluence"},
		Hosting:     []string{"cloud"},
		Embedded: &marketplace.AddonEmbedded{
			Vendor:     &marketplace.Vendor{Name: "Some Vendor"},
			Categories: []marketplace.Category{{Name: "Reports"}, {Name: ""}},
		},
	}

	app := models.AppFromAddon(addon, "jira", "server", true)

	assert.Equal(t, models.StringList{"confluence"}, app.Products)
	assert.Equal(t, models.StringList{"cloud"}, app.Hosting)
	assert.Equal(t, "Some Vendor", app.Vendor)
	assert.Equal(t, models.StringList{"Reports"}, app.Categories)
	assert.Equal(t, "https://cdn.example/logo.png", app.LogoURL)
}

func TestAppFromAddon_RelativeMarketplaceURLGetsAbsolute(t *testing.T) {
	addon := marketplace.Addon{
		Key:   "some-app",
		Links: marketplace.Links{Alternate: &marketplace.Link{Href: "/apps/123/some-app"}},
	}

	app := models.AppFromAddon(addon, "jira", "server", true)

	assert.Equal(t, "https://marketplace.atlassian.com/apps/123/some-app", app.MarketplaceURL)
}

func TestAppFromAddon_LogoObjectFallback(t *testing.T) {
	addon := marketplace.Addon{
		Key:  "some-app",
		Logo: &marketplace.Logo{URL: "https://cdn.example/alt.png"},
	}

	app := models.AppFromAddon(addon, "jira", "server", true)
	assert.Equal(t, "https://cdn.example/alt.png", app.LogoURL)
}

func TestVersionFromInfo_IdentifierPreference(t *testing.T) {
	// Explicit id wins.
	v := models.VersionFromInfo("some-app", marketplace.VersionInfo{
		ID:          100,
		BuildNumber: 42,
		Links:       marketplace.Links{Self: &marketplace.Link{Href: "/addons/some-app/versions/999"}},
	})
	assert.Equal(t, "100", v.VersionID)

	// Then the self link.
	v = models.VersionFromInfo("some-app", marketplace.VersionInfo{
		BuildNumber: 42,
		Links:       marketplace.Links{Self: &marketplace.Link{Href: "/addons/some-app/versions/999"}},
	})
	assert.Equal(t, "999", v.VersionID)

	// Then the build number.
	v = models.VersionFromInfo("some-app", marketplace.VersionInfo{BuildNumber: 42})
	assert.Equal(t, "42", v.VersionID)

	// Nothing at all means no usable identifier.
	v = models.VersionFromInfo("some-app", marketplace.VersionInfo{})
	assert.Empty(t, v.VersionID)
}

func TestVersionFromInfo_FullRecord(t *testing.T) {
	info := marketplace.VersionInfo{
		ID:         100,
		Name:       "2.1.0",
		Release:    &marketplace.VersionRelease{Date: "2026-01-15"},
		Deployment: &marketplace.VersionDeployment{Server: true, DataCenter: true},
		Embedded: &struct {
			Artifact *marketplace.VersionArtifact `json:"artifact,omitempty"`
		}{
			Artifact: &marketplace.VersionArtifact{
				FileName: "plugin-2.1.0.jar",
				Links:    marketplace.Links{Binary: &marketplace.Link{Href: "https://example.test/plugin.jar"}},
			},
		},
	}

	v := models.VersionFromInfo("some-app", info)

	assert.Equal(t, "some-app", v.AddonKey)
	assert.Equal(t, "2.1.0", v.VersionName)
	assert.Equal(t, "2026-01-15", v.ReleaseDate)
	assert.Equal(t, "datacenter", v.HostingType)
	assert.Equal(t, "plugin-2.1.0.jar", v.FileName)
	require.NotNil(t, v.DownloadURL)
	assert.Equal(t, "https://example.test/plugin.jar", *v.DownloadURL)
	assert.False(t, v.Downloaded)
}

func TestVersionFromInfo_NameFallsBackToID(t *testing.T) {
	v := models.VersionFromInfo("some-app", marketplace.VersionInfo{ID: 100})
	assert.Equal(t, "100", v.VersionName)
}

func TestPrimaryProduct(t *testing.T) {
	app := models.App{Products: models.StringList{"jira", "confluence"}}
	assert.Equal(t, "jira", app.PrimaryProduct())

	empty := models.App{}
	assert.Equal(t, "unknown", empty.PrimaryProduct())
}

func TestStringList_RoundTrip(t *testing.T) {
	value, err := models.StringList{"jira", "confluence"}.Value()
	require.NoError(t, err)

	var scanned models.StringList
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, models.StringList{"jira", "confluence"}, scanned)
	assert.True(t, scanned.Contains("jira"))
	assert.False(t, scanned.Contains("bamboo"))
}
