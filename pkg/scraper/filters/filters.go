// Package filters narrows scraped apps and versions to the slice of the
// marketplace this tool archives: recent releases of server/datacenter
// distributions.
package filters

import (
	"strings"
	"time"

	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/config"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/models"
)

// The marketplace is not consistent about release date formats.
var releaseDateFormats = []string{
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ByReleaseDate keeps versions released within the last days. Versions
// without a release date are dropped; versions whose date cannot be parsed
// are kept, erring on the side of archiving too much.
func ByReleaseDate(versions []models.Version, days int) []models.Version {
	cutoff := time.Now().AddDate(0, 0, -days)

	var filtered []models.Version
	for _, version := range versions {
		if version.ReleaseDate == "" {
			continue
		}
		released, ok := parseReleaseDate(version.ReleaseDate)
		if !ok {
			filtered = append(filtered, version)
			continue
		}
		if !released.Before(cutoff) {
			filtered = append(filtered, version)
		}
	}
	return filtered
}

func parseReleaseDate(s string) (time.Time, bool) {
	for _, format := range releaseDateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ByHosting keeps versions whose hosting type is in allowed. Versions with
// no hosting type recorded are kept; they may well be server builds.
func ByHosting(versions []models.Version, allowed []string) []models.Version {
	if allowed == nil {
		allowed = config.AllowedHosting
	}

	var filtered []models.Version
	for _, version := range versions {
		hosting := strings.ToLower(version.HostingType)
		if hosting == "" || contains(allowed, hosting) {
			filtered = append(filtered, version)
		}
	}
	return filtered
}

// ByProduct keeps apps supporting the given product.
func ByProduct(apps []models.App, product string) []models.App {
	var filtered []models.App
	for _, app := range apps {
		if app.Products.Contains(product) {
			filtered = append(filtered, app)
		}
	}
	return filtered
}

// ServerDataCenterApps keeps apps with at least one installable hosting
// type.
func ServerDataCenterApps(apps []models.App) []models.App {
	var filtered []models.App
	for _, app := range apps {
		for _, hosting := range app.Hosting {
			if contains(config.AllowedHosting, hosting) {
				filtered = append(filtered, app)
				break
			}
		}
	}
	return filtered
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
