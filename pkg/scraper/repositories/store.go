package repositories

import (
	"context"
	"errors"
	"math"

	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AppFilter narrows app queries.
type AppFilter struct {
	// Product keeps only apps whose product list contains this key.
	Product string
	// Search keeps apps whose name or description contains the term.
	Search string
}

// MetadataStore is the persistence contract every other component consults.
// Reads return detached copies; writes touch single rows atomically.
type MetadataStore interface {
	SaveApp(ctx context.Context, app *models.App) error
	SaveVersions(ctx context.Context, versions []models.Version) error
	GetAppByKey(ctx context.Context, addonKey string) (*models.App, error)
	GetAllApps(ctx context.Context, filter AppFilter, limit, offset int) ([]models.App, error)
	GetAppsCount(ctx context.Context, filter AppFilter) (int64, error)
	GetAppsPage(ctx context.Context, filter AppFilter, page, perPage int) ([]models.App, models.Pagination, error)
	GetAppVersions(ctx context.Context, addonKey string) ([]models.Version, error)
	GetTotalVersionsCount(ctx context.Context) (int64, error)
	GetDownloadedVersionsCount(ctx context.Context) (int64, error)
	UpdateVersionDownloadStatus(ctx context.Context, addonKey, versionID string, downloaded bool, filePath *string) error
	UpdateAppVersionCount(ctx context.Context, addonKey string, total int) error
}

type metadataStore struct {
	db *gorm.DB
}

func NewMetadataStore(db *gorm.DB) MetadataStore {
	return &metadataStore{db: db}
}

// SaveApp upserts an app row keyed by addon_key; rescrapes refresh the
// descriptive columns in place.
func (s *metadataStore) SaveApp(ctx context.Context, app *models.App) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "addon_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "vendor", "description", "logo_url", "marketplace_url",
			"products", "hosting", "categories", "last_updated", "scraped_at",
		}),
	}).Create(app).Error
}

// SaveVersions upserts version rows without touching the downloaded /
// file_path pair, so rescraping never loses download state.
func (s *metadataStore) SaveVersions(ctx context.Context, versions []models.Version) error {
	if len(versions) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "addon_key"}, {Name: "version_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"version_name", "release_date", "hosting_type",
			"download_url", "file_name", "compatibility",
		}),
	}).Create(&versions).Error
}

func (s *metadataStore) GetAppByKey(ctx context.Context, addonKey string) (*models.App, error) {
	var app models.App
	err := s.db.WithContext(ctx).First(&app, "addon_key = ?", addonKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (s *metadataStore) applyFilter(db *gorm.DB, filter AppFilter) *gorm.DB {
	if filter.Product != "" {
		// Products are stored as a JSON-encoded list.
		db = db.Where("products LIKE ?", `%"`+filter.Product+`"%`)
	}
	if filter.Search != "" {
		term := "%" + filter.Search + "%"
		db = db.Where("name LIKE ? OR description LIKE ?", term, term)
	}
	return db
}

func (s *metadataStore) GetAllApps(ctx context.Context, filter AppFilter, limit, offset int) ([]models.App, error) {
	var apps []models.App
	q := s.applyFilter(s.db.WithContext(ctx).Model(&models.App{}), filter).Order("addon_key")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&apps).Error; err != nil {
		return nil, err
	}
	return apps, nil
}

func (s *metadataStore) GetAppsCount(ctx context.Context, filter AppFilter) (int64, error) {
	var count int64
	err := s.applyFilter(s.db.WithContext(ctx).Model(&models.App{}), filter).Count(&count).Error
	return count, err
}

// GetAppsPage combines GetAllApps and GetAppsCount into a dashboard page.
func (s *metadataStore) GetAppsPage(ctx context.Context, filter AppFilter, page, perPage int) ([]models.App, models.Pagination, error) {
	total, err := s.GetAppsCount(ctx, filter)
	if err != nil {
		return nil, models.Pagination{}, err
	}

	offset := (page - 1) * perPage
	apps, err := s.GetAllApps(ctx, filter, perPage, offset)
	if err != nil {
		return nil, models.Pagination{}, err
	}

	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	pagination := models.Pagination{
		CurrentPage:    page,
		RecordsPerPage: perPage,
		TotalPages:     totalPages,
		TotalRecords:   int(total),
	}
	if page < totalPages {
		next := page + 1
		pagination.Next = &next
	}
	if page > 1 {
		prev := page - 1
		pagination.Previous = &prev
	}

	return apps, pagination, nil
}

func (s *metadataStore) GetAppVersions(ctx context.Context, addonKey string) ([]models.Version, error) {
	var versions []models.Version
	err := s.db.WithContext(ctx).
		Where("addon_key = ?", addonKey).
		Order("version_id").
		Find(&versions).Error
	if err != nil {
		return nil, err
	}
	return versions, nil
}

func (s *metadataStore) GetTotalVersionsCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Version{}).Count(&count).Error
	return count, err
}

func (s *metadataStore) GetDownloadedVersionsCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Version{}).
		Where("downloaded = ?", true).Count(&count).Error
	return count, err
}

// UpdateVersionDownloadStatus flips the downloaded/file_path pair in one
// UPDATE so concurrent workers never observe a partial write.
func (s *metadataStore) UpdateVersionDownloadStatus(ctx context.Context, addonKey, versionID string, downloaded bool, filePath *string) error {
	return s.db.WithContext(ctx).Model(&models.Version{}).
		Where("addon_key = ? AND version_id = ?", addonKey, versionID).
		Updates(map[string]any{
			"downloaded": downloaded,
			"file_path":  filePath,
		}).Error
}

func (s *metadataStore) UpdateAppVersionCount(ctx context.Context, addonKey string, total int) error {
	return s.db.WithContext(ctx).Model(&models.App{}).
		Where("addon_key = ?", addonKey).
		Update("total_versions", total).Error
}
