package dashboard_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/dashboard"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/dashboard/handler"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/marketplace"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/config"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/database"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/models"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/repositories"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/services"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/tasks"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFetcher implements services.BinaryFetcher for testing
type stubFetcher struct {
	fs afero.Fs
}

func (f *stubFetcher) GetDownloadURL(addonKey, versionID, buildNumber string) string {
	return "https://example.test/download/apps/" + addonKey + "/version/" + versionID
}

func (f *stubFetcher) DownloadBinary(ctx context.Context, url, savePath string, progress marketplace.ProgressFunc) (marketplace.BinaryResult, error) {
	payload := []byte("jar")
	if err := afero.WriteFile(f.fs, savePath, payload, 0o644); err != nil {
		return marketplace.BinaryResult{}, err
	}
	return marketplace.BinaryResult{BytesWritten: int64(len(payload)), ContentLength: int64(len(payload))}, nil
}

// stubCatalog implements services.CatalogFetcher for testing
type stubCatalog struct{}

func (s *stubCatalog) SearchApps(ctx context.Context, hosting, application string, offset, limit int, cost string) *marketplace.AddonPage {
	return &marketplace.AddonPage{}
}

func (s *stubCatalog) GetAllAppVersions(ctx context.Context, addonKey string) []marketplace.VersionInfo {
	return nil
}

func setupRouter(t *testing.T) (http.Handler, repositories.MetadataStore, afero.Fs) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Connect(":memory:")
	require.NoError(t, err)
	store := repositories.NewMetadataStore(db)

	fs := afero.NewMemMapFs()
	cfg := config.Settings{
		BinariesDir:            "/data/binaries",
		MaxConcurrentDownloads: 2,
		MaxRetryAttempts:       3,
		TaskStatusPath:         "/data/metadata/task_status.json",
	}

	downloader := services.NewDownloadManager(&stubFetcher{fs: fs}, store, fs, cfg)
	reindexer := services.NewStorageReindexer(store, fs, cfg)
	scraper := services.NewScrapeService(&stubCatalog{}, store, cfg)
	taskManager := tasks.NewManager(fs, cfg.TaskStatusPath)

	controller := handler.NewDashboardController(store, downloader, reindexer, scraper, taskManager, fs, cfg)
	return dashboard.NewRouter("1.0.0", controller), store, fs
}

func writeToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"scope": "apps:write",
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestRouter_DownloadVersionEndpoint(t *testing.T) {
	router, store, fs := setupRouter(t)
	ctx := context.Background()

	require.NoError(t, store.SaveApp(ctx, &models.App{
		AddonKey: "some-app", Products: models.StringList{"jira"},
	}))
	require.NoError(t, store.SaveVersions(ctx, []models.Version{
		{AddonKey: "some-app", VersionID: "100", FileName: "plugin.jar"},
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/apps/some-app/versions/100/download", nil)
	req.Header.Set("Authorization", "Bearer "+writeToken(t))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var ref struct {
		TaskID string `json:"taskId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ref))
	assert.Contains(t, ref.TaskID, "download_version_")

	// The download runs in the background; wait for the store to flip.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		versions, err := store.GetAppVersions(ctx, "some-app")
		require.NoError(t, err)
		if len(versions) == 1 && versions[0].Downloaded {
			exists, _ := afero.Exists(fs, "/data/binaries/jira/some-app/100/plugin.jar")
			assert.True(t, exists)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("version was not downloaded in time")
}

func TestRouter_DownloadVersionUnknownApp(t *testing.T) {
	router, _, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/apps/ghost-app/versions/1/download", nil)
	req.Header.Set("Authorization", "Bearer "+writeToken(t))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_WriteEndpointRejectsApiKey(t *testing.T) {
	router, _, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/apps/some-app/versions/1/download", nil)
	req.Header.Set("x-api-key", "reader-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
