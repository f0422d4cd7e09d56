package repositories_test

import (
	"context"
	"testing"

	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/database"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/models"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) repositories.MetadataStore {
	db, err := database.Connect(":memory:")
	require.NoError(t, err)
	return repositories.NewMetadataStore(db)
}

func TestMetadataStore_SaveAppUpsert(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	app := &models.App{AddonKey: "some-app", Name: "Some App", Products: models.StringList{"jira"}}
	require.NoError(t, store.SaveApp(ctx, app))
	require.NoError(t, store.UpdateAppVersionCount(ctx, "some-app", 7))

	// Rescrape with a new name; the version count must survive.
	updated := &models.App{AddonKey: "some-app", Name: "Some App Pro", Products: models.StringList{"jira"}}
	require.NoError(t, store.SaveApp(ctx, updated))

	got, err := store.GetAppByKey(ctx, "some-app")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Some App Pro", got.Name)
	assert.Equal(t, 7, got.TotalVersions)
}

func TestMetadataStore_GetAppByKeyMissing(t *testing.T) {
	store := setupStore(t)

	got, err := store.GetAppByKey(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMetadataStore_SaveVersionsPreservesDownloadState(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	versions := []models.Version{{AddonKey: "some-app", VersionID: "100", VersionName: "1.0"}}
	require.NoError(t, store.SaveVersions(ctx, versions))

	path := "/data/binaries/jira/some-app/100/plugin.jar"
	require.NoError(t, store.UpdateVersionDownloadStatus(ctx, "some-app", "100", true, &path))

	// Rescrape the same version with a corrected name.
	versions[0].VersionName = "1.0.0"
	require.NoError(t, store.SaveVersions(ctx, versions))

	got, err := store.GetAppVersions(ctx, "some-app")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1.0.0", got[0].VersionName)
	assert.True(t, got[0].Downloaded)
	require.NotNil(t, got[0].FilePath)
	assert.Equal(t, path, *got[0].FilePath)
}

func TestMetadataStore_UpdateVersionDownloadStatusClears(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveVersions(ctx, []models.Version{
		{AddonKey: "some-app", VersionID: "100", VersionName: "1.0"},
	}))
	path := "/somewhere/plugin.jar"
	require.NoError(t, store.UpdateVersionDownloadStatus(ctx, "some-app", "100", true, &path))
	require.NoError(t, store.UpdateVersionDownloadStatus(ctx, "some-app", "100", false, nil))

	got, err := store.GetAppVersions(ctx, "some-app")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].Downloaded)
	assert.Nil(t, got[0].FilePath)
}

func TestMetadataStore_Counts(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveVersions(ctx, []models.Version{
		{AddonKey: "some-app", VersionID: "100"},
		{AddonKey: "some-app", VersionID: "101"},
		{AddonKey: "other-app", VersionID: "200"},
	}))
	path := "/p"
	require.NoError(t, store.UpdateVersionDownloadStatus(ctx, "some-app", "100", true, &path))

	total, err := store.GetTotalVersionsCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	downloaded, err := store.GetDownloadedVersionsCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), downloaded)
}

func TestMetadataStore_Filters(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveApp(ctx, &models.App{
		AddonKey: "jira-tool", Name: "Issue Helper", Description: "workflow automation",
		Products: models.StringList{"jira"},
	}))
	require.NoError(t, store.SaveApp(ctx, &models.App{
		AddonKey: "conf-tool", Name: "Page Helper", Description: "diagrams",
		Products: models.StringList{"confluence"},
	}))

	byProduct, err := store.GetAllApps(ctx, repositories.AppFilter{Product: "jira"}, 0, 0)
	require.NoError(t, err)
	require.Len(t, byProduct, 1)
	assert.Equal(t, "jira-tool", byProduct[0].AddonKey)

	bySearch, err := store.GetAllApps(ctx, repositories.AppFilter{Search: "diagrams"}, 0, 0)
	require.NoError(t, err)
	require.Len(t, bySearch, 1)
	assert.Equal(t, "conf-tool", bySearch[0].AddonKey)

	count, err := store.GetAppsCount(ctx, repositories.AppFilter{Product: "confluence"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMetadataStore_GetAppsPage(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for _, key := range []string{"app-a", "app-b", "app-c"} {
		require.NoError(t, store.SaveApp(ctx, &models.App{AddonKey: key, Name: key}))
	}

	apps, pagination, err := store.GetAppsPage(ctx, repositories.AppFilter{}, 1, 2)
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, 3, pagination.TotalRecords)
	assert.Equal(t, 2, pagination.TotalPages)
	require.NotNil(t, pagination.Next)
	assert.Equal(t, 2, *pagination.Next)
	assert.Nil(t, pagination.Previous)

	apps, pagination, err = store.GetAppsPage(ctx, repositories.AppFilter{}, 2, 2)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "app-c", apps[0].AddonKey)
	assert.Nil(t, pagination.Next)
	require.NotNil(t, pagination.Previous)
	assert.Equal(t, 1, *pagination.Previous)
}
