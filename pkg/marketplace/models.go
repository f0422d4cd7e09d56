package marketplace

// Wire models for the marketplace REST API v2. Every field observed in
// responses gets an explicit home; absent fields stay zero and the
// conversion layer applies its fallback rules.

// Link is one hypermedia link.
type Link struct {
	Href string `json:"href"`
}

// Links holds the HAL-style links the API attaches to pages and resources.
type Links struct {
	Self      *Link `json:"self,omitempty"`
	Next      *Link `json:"next,omitempty"`
	Prev      *Link `json:"prev,omitempty"`
	Alternate *Link `json:"alternate,omitempty"`
	Binary    *Link `json:"binary,omitempty"`
}

// Vendor is the embedded vendor record of an addon.
type Vendor struct {
	Name string `json:"name"`
}

// Category is one embedded category tag.
type Category struct {
	Name string `json:"name"`
}

// Logo carries the addon logo reference.
type Logo struct {
	URL string `json:"url,omitempty"`
}

// AddonEmbedded groups the _embedded sub-objects of an addon.
type AddonEmbedded struct {
	Vendor     *Vendor    `json:"vendor,omitempty"`
	Categories []Category `json:"categories,omitempty"`
}

// Addon is a marketplace listing as returned by search and detail calls.
type Addon struct {
	Key         string         `json:"key"`
	Name        string         `json:"name"`
	Summary     string         `json:"summary,omitempty"`
	LogoURL     string         `json:"logoUrl,omitempty"`
	Logo        *Logo          `json:"logo,omitempty"`
	Application []string       `json:"application,omitempty"`
	Hosting     []string       `json:"hosting,omitempty"`
	LastUpdated string         `json:"lastUpdated,omitempty"`
	Links       Links          `json:"_links"`
	Embedded    *AddonEmbedded `json:"_embedded,omitempty"`
}

// AddonPage is one page of addon search results.
type AddonPage struct {
	Links    Links `json:"_links"`
	Embedded struct {
		Addons []Addon `json:"addons"`
	} `json:"_embedded"`
}

// Addons is a nil-safe accessor for the embedded addon list.
func (p *AddonPage) Addons() []Addon {
	if p == nil {
		return nil
	}
	return p.Embedded.Addons
}

// VersionRelease holds release metadata of one version.
type VersionRelease struct {
	Date string `json:"date,omitempty"`
}

// VersionDeployment flags the hosting models a version supports.
type VersionDeployment struct {
	Server     bool `json:"server"`
	DataCenter bool `json:"dataCenter"`
	Cloud      bool `json:"cloud"`
}

// Compatibility names one product/version range a version is compatible with.
type Compatibility struct {
	Application string `json:"application"`
	Hosting     struct {
		Server *struct {
			Min struct {
				Version string `json:"version"`
			} `json:"min"`
			Max struct {
				Version string `json:"version"`
			} `json:"max"`
		} `json:"server,omitempty"`
	} `json:"hosting"`
}

// VersionArtifact is the embedded downloadable artifact of a version.
type VersionArtifact struct {
	FileName string `json:"fileName,omitempty"`
	Links    Links  `json:"_links"`
}

// VersionInfo is one addon version as returned by the versions listing.
type VersionInfo struct {
	ID              int64              `json:"id,omitempty"`
	Name            string             `json:"name,omitempty"`
	BuildNumber     int64              `json:"buildNumber,omitempty"`
	Status          string             `json:"status,omitempty"`
	Release         *VersionRelease    `json:"release,omitempty"`
	Deployment      *VersionDeployment `json:"deployment,omitempty"`
	Compatibilities []Compatibility    `json:"compatibilities,omitempty"`
	Links           Links              `json:"_links"`
	Embedded        *struct {
		Artifact *VersionArtifact `json:"artifact,omitempty"`
	} `json:"_embedded,omitempty"`
}

// VersionPage is one page of the versions listing.
type VersionPage struct {
	Links    Links `json:"_links"`
	Embedded struct {
		Versions []VersionInfo `json:"versions"`
	} `json:"_embedded"`
}

// Versions is a nil-safe accessor for the embedded version list.
func (p *VersionPage) Versions() []VersionInfo {
	if p == nil {
		return nil
	}
	return p.Embedded.Versions
}
