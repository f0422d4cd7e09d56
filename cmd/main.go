package main

import (
	"context"
	"log"
	"net/http"

	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/dashboard"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/dashboard/handler"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/jobs"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/marketplace"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/config"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/database"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/repositories"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/services"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/tasks"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
)

const apiVersion = "1.0.0"

func main() {
	_ = godotenv.Load()

	settings := config.Load()

	db, err := database.Connect(settings.DatabaseDSN)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	fs := afero.NewOsFs()
	store := repositories.NewMetadataStore(db)
	client := marketplace.NewClient(settings, fs)

	scrapeService := services.NewScrapeService(client, store, settings)
	downloadManager := services.NewDownloadManager(client, store, fs, settings)
	reindexer := services.NewStorageReindexer(store, fs, settings)
	taskManager := tasks.NewManager(fs, settings.TaskStatusPath)

	jobs.ScheduleDailyReindex(context.Background(), reindexer)

	controller := handler.NewDashboardController(
		store, downloadManager, reindexer, scrapeService, taskManager, fs, settings,
	)
	router := dashboard.NewRouter(apiVersion, controller)

	log.Printf("Dashboard is running on %s", settings.ListenAddr)
	log.Fatal(http.ListenAndServe(settings.ListenAddr, router))
}
