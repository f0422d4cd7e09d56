package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/marketplace"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/config"
)

// StringList stores a string slice as JSON text so the same schema works on
// sqlite and postgres.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(value any) error {
	if value == nil {
		*l = StringList{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("cannot scan %T into StringList", value)
	}
}

func (l StringList) Contains(s string) bool {
	for _, item := range l {
		if item == s {
			return true
		}
	}
	return false
}

// App is one marketplace listing as persisted in the metadata store.
// Created when first discovered via search, updated on rescrape, never
// deleted automatically.
type App struct {
	AddonKey       string     `gorm:"column:addon_key;primaryKey" json:"addonKey"`
	Name           string     `gorm:"column:name" json:"name"`
	Vendor         string     `gorm:"column:vendor" json:"vendor"`
	Description    string     `gorm:"column:description" json:"description"`
	LogoURL        string     `gorm:"column:logo_url" json:"logoUrl,omitempty"`
	MarketplaceURL string     `gorm:"column:marketplace_url" json:"marketplaceUrl,omitempty"`
	Products       StringList `gorm:"column:products;type:text" json:"products"`
	Hosting        StringList `gorm:"column:hosting;type:text" json:"hosting"`
	Categories     StringList `gorm:"column:categories;type:text" json:"categories"`
	LastUpdated    string     `gorm:"column:last_updated" json:"lastUpdated,omitempty"`
	TotalVersions  int        `gorm:"column:total_versions" json:"totalVersions"`
	ScrapedAt      time.Time  `gorm:"column:scraped_at" json:"scrapedAt"`
}

func (App) TableName() string { return "apps" }

// PrimaryProduct is the product used for directory layout: the first entry
// of the product list, "unknown" when the list is empty.
func (a *App) PrimaryProduct() string {
	if len(a.Products) == 0 {
		return "unknown"
	}
	return a.Products[0]
}

// Version is one (app, version) pair in the metadata store. The download
// manager sets Downloaded/FilePath on success; the reindexer clears them
// when the file has gone missing.
type Version struct {
	AddonKey      string  `gorm:"column:addon_key;primaryKey" json:"addonKey"`
	VersionID     string  `gorm:"column:version_id;primaryKey" json:"versionId"`
	VersionName   string  `gorm:"column:version_name" json:"versionName"`
	ReleaseDate   string  `gorm:"column:release_date" json:"releaseDate,omitempty"`
	HostingType   string  `gorm:"column:hosting_type" json:"hostingType,omitempty"`
	DownloadURL   *string `gorm:"column:download_url" json:"downloadUrl,omitempty"`
	FileName      string  `gorm:"column:file_name" json:"fileName,omitempty"`
	Downloaded    bool    `gorm:"column:downloaded" json:"downloaded"`
	FilePath      *string `gorm:"column:file_path" json:"filePath,omitempty"`
	Compatibility *string `gorm:"column:compatibility" json:"compatibility,omitempty"`
}

func (Version) TableName() string { return "versions" }

// AppFromAddon converts a wire addon into a store row, falling back to the
// search context for fields the API response omits. expandServer applies
// the historical "server hosting implies datacenter" rule.
func AppFromAddon(addon marketplace.Addon, product, hostingType string, expandServer bool) App {
	products := addon.Application
	if len(products) == 0 && product != "" {
		products = []string{product}
	}

	hosting := addon.Hosting
	if len(hosting) == 0 && hostingType != "" {
		if hostingType == config.HostingServer && expandServer {
			hosting = []string{config.HostingServer, config.HostingDataCenter}
		} else {
			hosting = []string{hostingType}
		}
	}

	var vendor string
	if addon.Embedded != nil && addon.Embedded.Vendor != nil {
		vendor = addon.Embedded.Vendor.Name
	}

	var categories []string
	if addon.Embedded != nil {
		for _, cat := range addon.Embedded.Categories {
			if cat.Name != "" {
				categories = append(categories, cat.Name)
			}
		}
	}

	logoURL := addon.LogoURL
	if logoURL == "" && addon.Logo != nil {
		logoURL = addon.Logo.URL
	}

	var marketplaceURL string
	if addon.Links.Alternate != nil {
		marketplaceURL = addon.Links.Alternate.Href
		if strings.HasPrefix(marketplaceURL, "/") {
			marketplaceURL = "https://marketplace.atlassian.com" + marketplaceURL
		}
	}

	return App{
		AddonKey:       addon.Key,
		Name:           addon.Name,
		Vendor:         vendor,
		Description:    addon.Summary,
		LogoURL:        logoURL,
		MarketplaceURL: marketplaceURL,
		Products:       products,
		Hosting:        hosting,
		Categories:     categories,
		LastUpdated:    addon.LastUpdated,
		ScrapedAt:      time.Now(),
	}
}

// VersionFromInfo converts a wire version into a store row for addonKey.
func VersionFromInfo(addonKey string, info marketplace.VersionInfo) Version {
	v := Version{
		AddonKey:    addonKey,
		VersionID:   versionIdentifier(info),
		VersionName: info.Name,
		HostingType: hostingTypeOf(info.Deployment),
	}
	if v.VersionName == "" {
		v.VersionName = v.VersionID
	}
	if info.Release != nil {
		v.ReleaseDate = info.Release.Date
	}
	if info.Embedded != nil && info.Embedded.Artifact != nil {
		v.FileName = info.Embedded.Artifact.FileName
		if info.Embedded.Artifact.Links.Binary != nil {
			href := info.Embedded.Artifact.Links.Binary.Href
			v.DownloadURL = &href
		}
	}
	if compat := compatibilitySummary(info.Compatibilities); compat != "" {
		v.Compatibility = &compat
	}
	return v
}

// versionIdentifier prefers the explicit version id, then the id encoded in
// the self link, then the build number.
func versionIdentifier(info marketplace.VersionInfo) string {
	if info.ID != 0 {
		return strconv.FormatInt(info.ID, 10)
	}
	if info.Links.Self != nil {
		parts := strings.Split(strings.TrimRight(info.Links.Self.Href, "/"), "/")
		if len(parts) > 0 {
			if id := parts[len(parts)-1]; id != "" && id != "versions" {
				return id
			}
		}
	}
	if info.BuildNumber != 0 {
		return strconv.FormatInt(info.BuildNumber, 10)
	}
	return ""
}

func hostingTypeOf(d *marketplace.VersionDeployment) string {
	if d == nil {
		return ""
	}
	switch {
	case d.DataCenter:
		return config.HostingDataCenter
	case d.Server:
		return config.HostingServer
	case d.Cloud:
		return config.HostingCloud
	default:
		return ""
	}
}

func compatibilitySummary(compats []marketplace.Compatibility) string {
	parts := make([]string, 0, len(compats))
	for _, c := range compats {
		if c.Hosting.Server != nil {
			parts = append(parts, fmt.Sprintf("%s %s-%s",
				c.Application, c.Hosting.Server.Min.Version, c.Hosting.Server.Max.Version))
		} else if c.Application != "" {
			parts = append(parts, c.Application)
		}
	}
	return strings.Join(parts, ", ")
}
