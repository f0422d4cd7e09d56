package config

// Product describes one Atlassian product that the marketplace can be
// searched for.
type Product struct {
	APIKey   string
	Name     string
	FullName string
}

var Products = map[string]Product{
	"jira":       {APIKey: "jira", Name: "Jira", FullName: "Jira Software / Service Management / Core"},
	"confluence": {APIKey: "confluence", Name: "Confluence", FullName: "Confluence Server / Data Center"},
	"bitbucket":  {APIKey: "bitbucket", Name: "Bitbucket", FullName: "Bitbucket Server / Data Center"},
	"bamboo":     {APIKey: "bamboo", Name: "Bamboo", FullName: "Bamboo Server / Data Center"},
	"crowd":      {APIKey: "crowd", Name: "Crowd", FullName: "Crowd Server / Data Center"},
}

// ProductList is the stable ordering used for CLI help and search sweeps.
var ProductList = []string{"jira", "confluence", "bitbucket", "bamboo", "crowd"}

const (
	HostingServer     = "server"
	HostingDataCenter = "datacenter"
	HostingCloud      = "cloud"
)

// AllowedHosting restricts scraping to installable distributions; cloud
// versions have no downloadable binary.
var AllowedHosting = []string{HostingServer, HostingDataCenter}

// IsKnownProduct reports whether key names a product we scrape.
func IsKnownProduct(key string) bool {
	_, ok := Products[key]
	return ok
}
