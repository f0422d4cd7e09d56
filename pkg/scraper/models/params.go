package models

// ListAppsParams are the query parameters of the app listing endpoint.
type ListAppsParams struct {
	Page    int     `query:"page"`
	PerPage int     `query:"perPage"`
	Product *string `query:"product"`
	Search  *string `query:"search"`
}

// AppParams addresses a single app by its marketplace key.
type AppParams struct {
	AddonKey string `path:"addonKey"`
}

// Pagination describes the page window of a list response; rendered as
// response headers by the handler.
type Pagination struct {
	Next           *int `json:"next,omitempty"`
	Previous       *int `json:"previous,omitempty"`
	CurrentPage    int  `json:"currentPage"`
	RecordsPerPage int  `json:"recordsPerPage"`
	TotalPages     int  `json:"totalPages"`
	TotalRecords   int  `json:"totalRecords"`
}

// AppDetail is an app plus its known version history.
type AppDetail struct {
	App
	Versions []Version `json:"versions"`
}

// StorageStats reports the on-disk footprint of the binaries root,
// recomputed from the filesystem on every call.
type StorageStats struct {
	TotalBytes int64   `json:"total_bytes"`
	TotalMB    float64 `json:"total_mb"`
	TotalGB    float64 `json:"total_gb"`
	FileCount  int     `json:"file_count"`
}

// ReindexStats summarizes one reconciliation pass of the storage reindexer.
type ReindexStats struct {
	TotalVersions    int `json:"total_versions"`
	MarkedDownloaded int `json:"marked_downloaded"`
	FilesVerified    int `json:"files_verified"`
	FilesMissing     int `json:"files_missing"`
	MetadataCleared  int `json:"metadata_cleared"`
}

// DownloadReport aggregates one download manager run.
type DownloadReport struct {
	Queued    int `json:"queued"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
