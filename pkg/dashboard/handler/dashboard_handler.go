package handler

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/dashboard/problem"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/config"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/models"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/repositories"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/services"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/tasks"
	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
)

// StatsResponse is the dashboard's combined counters view.
type StatsResponse struct {
	TotalApps          int64               `json:"totalApps"`
	TotalVersions      int64               `json:"totalVersions"`
	DownloadedVersions int64               `json:"downloadedVersions"`
	Storage            models.StorageStats `json:"storage"`
}

// ProductInfo is one scrapeable product for the dashboard's product picker.
type ProductInfo struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	FullName string `json:"fullName"`
}

// TaskRef points a caller at a started background task.
type TaskRef struct {
	TaskID string `json:"taskId"`
}

// TaskParams addresses one task.
type TaskParams struct {
	ID string `path:"id"`
}

// VersionParams addresses one version of an app.
type VersionParams struct {
	AddonKey  string `path:"addonKey"`
	VersionID string `path:"versionId"`
}

// DownloadRequest optionally narrows a download run to one product.
type DownloadRequest struct {
	Product string `json:"product,omitempty"`
}

// CleanOrphansResult reports an orphan cleanup.
type CleanOrphansResult struct {
	Removed int `json:"removed"`
}

// DashboardController binds HTTP requests to the scraper services.
type DashboardController struct {
	Store      repositories.MetadataStore
	Downloader *services.DownloadManager
	Reindexer  *services.StorageReindexer
	Scraper    *services.ScrapeService
	Tasks      *tasks.Manager
	FS         afero.Fs
	Settings   config.Settings
}

func NewDashboardController(
	store repositories.MetadataStore,
	downloader *services.DownloadManager,
	reindexer *services.StorageReindexer,
	scraper *services.ScrapeService,
	taskManager *tasks.Manager,
	fs afero.Fs,
	settings config.Settings,
) *DashboardController {
	return &DashboardController{
		Store:      store,
		Downloader: downloader,
		Reindexer:  reindexer,
		Scraper:    scraper,
		Tasks:      taskManager,
		FS:         fs,
		Settings:   settings,
	}
}

// ListApps handles GET /apps
func (c *DashboardController) ListApps(ctx *gin.Context, p *models.ListAppsParams) ([]models.App, error) {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = 20
	}

	filter := repositories.AppFilter{}
	if p.Product != nil {
		filter.Product = *p.Product
	}
	if p.Search != nil {
		filter.Search = *p.Search
	}

	apps, pagination, err := c.Store.GetAppsPage(ctx.Request.Context(), filter, p.Page, p.PerPage)
	if err != nil {
		return nil, err
	}

	ctx.Header("X-Total-Count", fmt.Sprintf("%d", pagination.TotalRecords))
	ctx.Header("X-Total-Pages", fmt.Sprintf("%d", pagination.TotalPages))
	ctx.Header("X-Current-Page", fmt.Sprintf("%d", pagination.CurrentPage))
	return apps, nil
}

// RetrieveApp handles GET /apps/:addonKey
func (c *DashboardController) RetrieveApp(ctx *gin.Context, params *models.AppParams) (*models.AppDetail, error) {
	app, err := c.Store.GetAppByKey(ctx.Request.Context(), params.AddonKey)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, problem.NewNotFound(params.AddonKey, "App not found")
	}

	versions, err := c.Store.GetAppVersions(ctx.Request.Context(), params.AddonKey)
	if err != nil {
		return nil, err
	}
	return &models.AppDetail{App: *app, Versions: versions}, nil
}

// GetStats handles GET /stats
func (c *DashboardController) GetStats(ctx *gin.Context) (*StatsResponse, error) {
	reqCtx := ctx.Request.Context()

	totalApps, err := c.Store.GetAppsCount(reqCtx, repositories.AppFilter{})
	if err != nil {
		return nil, err
	}
	totalVersions, err := c.Store.GetTotalVersionsCount(reqCtx)
	if err != nil {
		return nil, err
	}
	downloaded, err := c.Store.GetDownloadedVersionsCount(reqCtx)
	if err != nil {
		return nil, err
	}

	return &StatsResponse{
		TotalApps:          totalApps,
		TotalVersions:      totalVersions,
		DownloadedVersions: downloaded,
		Storage:            c.Downloader.GetStorageStats(),
	}, nil
}

// ListProducts handles GET /products
func (c *DashboardController) ListProducts(ctx *gin.Context) ([]ProductInfo, error) {
	out := make([]ProductInfo, 0, len(config.ProductList))
	for _, key := range config.ProductList {
		product := config.Products[key]
		out = append(out, ProductInfo{Key: key, Name: product.Name, FullName: product.FullName})
	}
	return out, nil
}

// StartScrapeApps handles POST /tasks/scrape
func (c *DashboardController) StartScrapeApps(ctx *gin.Context) (*TaskRef, error) {
	id, err := c.Tasks.Start("scrape_apps", func(taskCtx context.Context) error {
		_, err := c.Scraper.ScrapeApps(taskCtx, nil)
		return err
	})
	if err != nil {
		return nil, problem.NewInternalServerError(err.Error())
	}
	return &TaskRef{TaskID: id}, nil
}

// StartScrapeVersions handles POST /tasks/versions
func (c *DashboardController) StartScrapeVersions(ctx *gin.Context, body *DownloadRequest) (*TaskRef, error) {
	if body.Product != "" && !config.IsKnownProduct(body.Product) {
		return nil, problem.NewBadRequest("product", "unknown product: "+body.Product)
	}
	id, err := c.Tasks.Start("scrape_versions", func(taskCtx context.Context) error {
		_, err := c.Scraper.ScrapeAllVersions(taskCtx, body.Product)
		return err
	})
	if err != nil {
		return nil, problem.NewInternalServerError(err.Error())
	}
	return &TaskRef{TaskID: id}, nil
}

// StartDownload handles POST /tasks/download
func (c *DashboardController) StartDownload(ctx *gin.Context, body *DownloadRequest) (*TaskRef, error) {
	if body.Product != "" && !config.IsKnownProduct(body.Product) {
		return nil, problem.NewBadRequest("product", "unknown product: "+body.Product)
	}
	id, err := c.Tasks.Start("download", func(taskCtx context.Context) error {
		_, err := c.Downloader.DownloadAllVersions(taskCtx, body.Product)
		return err
	})
	if err != nil {
		return nil, problem.NewInternalServerError(err.Error())
	}
	return &TaskRef{TaskID: id}, nil
}

// DownloadVersion handles POST /apps/:addonKey/versions/:versionId/download
func (c *DashboardController) DownloadVersion(ctx *gin.Context, params *VersionParams) (*TaskRef, error) {
	app, err := c.Store.GetAppByKey(ctx.Request.Context(), params.AddonKey)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, problem.NewNotFound(params.AddonKey, "App not found")
	}

	id, err := c.Tasks.Start("download_version", func(taskCtx context.Context) error {
		return c.Downloader.DownloadSpecificVersion(taskCtx, params.AddonKey, params.VersionID)
	})
	if err != nil {
		return nil, problem.NewInternalServerError(err.Error())
	}
	return &TaskRef{TaskID: id}, nil
}

// ListTasks handles GET /tasks
func (c *DashboardController) ListTasks(ctx *gin.Context) ([]tasks.Task, error) {
	return c.Tasks.All(), nil
}

// GetTask handles GET /tasks/:id
func (c *DashboardController) GetTask(ctx *gin.Context, params *TaskParams) (*tasks.Task, error) {
	task := c.Tasks.Get(params.ID)
	if task == nil {
		return nil, problem.NewNotFound(params.ID, "Task not found")
	}
	return task, nil
}

// TriggerReindex handles POST /reindex. The reindex runs synchronously;
// it is a metadata-only pass and the dashboard wants the stats back.
func (c *DashboardController) TriggerReindex(ctx *gin.Context) (*models.ReindexStats, error) {
	stats, err := c.Reindexer.Reindex(ctx.Request.Context())
	if err != nil {
		return nil, problem.NewInternalServerError(err.Error())
	}
	return &stats, nil
}

// ListOrphans handles GET /orphans
func (c *DashboardController) ListOrphans(ctx *gin.Context) (map[string][]string, error) {
	orphaned, err := c.Reindexer.GetOrphanedFiles(ctx.Request.Context())
	if err != nil {
		return nil, err
	}
	return orphaned, nil
}

// CleanOrphans handles DELETE /orphans. Destructive; only reachable with
// write scope and never triggered by a reindex.
func (c *DashboardController) CleanOrphans(ctx *gin.Context) (*CleanOrphansResult, error) {
	orphaned, err := c.Reindexer.GetOrphanedFiles(ctx.Request.Context())
	if err != nil {
		return nil, err
	}
	return &CleanOrphansResult{Removed: c.Reindexer.CleanOrphanedFiles(orphaned)}, nil
}

// ServeBinary handles GET /binaries/:product/:addonKey/:versionId and
// streams the stored artifact of a version.
func (c *DashboardController) ServeBinary(ctx *gin.Context) {
	versionDir := filepath.Join(
		c.Settings.BinariesDir,
		ctx.Param("product"),
		ctx.Param("addonKey"),
		ctx.Param("versionId"),
	)

	entries, err := afero.ReadDir(c.FS, versionDir)
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "binary not found"})
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(versionDir, entry.Name())
		f, err := c.FS.Open(path)
		if err != nil {
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		defer f.Close()

		ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", entry.Name()))
		http.ServeContent(ctx.Writer, ctx.Request, entry.Name(), entry.ModTime(), f)
		return
	}
	ctx.JSON(http.StatusNotFound, gin.H{"error": "binary not found"})
}
