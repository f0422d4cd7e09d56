package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/marketplace"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/config"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/database"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/repositories"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/services"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: downloader [flags] [product]

Downloads every binary the metadata store does not yet mark as downloaded.
Runs a storage reindex first so deleted files are re-queued.

Products: %s (no argument downloads everything)

Flags:
`, strings.Join(config.ProductList, ", "))
	flag.PrintDefaults()
}

func main() {
	_ = godotenv.Load()

	cleanOrphans := flag.Bool("clean-orphans", false, "remove stored binaries that have no metadata record, then exit")
	flag.Usage = usage
	flag.Parse()

	product := flag.Arg(0)
	if product != "" && !config.IsKnownProduct(product) {
		fmt.Fprintf(os.Stderr, "unknown product %q, expected one of: %s\n",
			product, strings.Join(config.ProductList, ", "))
		os.Exit(2)
	}

	settings := config.Load()

	db, err := database.Connect(settings.DatabaseDSN)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	fs := afero.NewOsFs()
	store := repositories.NewMetadataStore(db)
	client := marketplace.NewClient(settings, fs)
	downloadManager := services.NewDownloadManager(client, store, fs, settings)
	reindexer := services.NewStorageReindexer(store, fs, settings)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *cleanOrphans {
		orphaned, err := reindexer.GetOrphanedFiles(ctx)
		if err != nil {
			log.Fatalf("orphan scan failed: %v", err)
		}
		removed := reindexer.CleanOrphanedFiles(orphaned)
		fmt.Printf("removed %d orphaned directories\n", removed)
		return
	}

	total, err := store.GetTotalVersionsCount(ctx)
	if err != nil {
		log.Fatalf("metadata store unavailable: %v", err)
	}
	if total == 0 {
		fmt.Fprintln(os.Stderr, "metadata store is empty; run a scrape first (POST /v1/tasks/scrape on the dashboard)")
		os.Exit(1)
	}

	if _, err := reindexer.Reindex(ctx); err != nil {
		log.Fatalf("reindex failed: %v", err)
	}

	report, err := downloadManager.DownloadAllVersions(ctx, product)
	if err != nil {
		log.Fatalf("download run failed: %v", err)
	}

	stats := downloadManager.GetStorageStats()
	fmt.Printf("queued=%d completed=%d failed=%d\n", report.Queued, report.Completed, report.Failed)
	fmt.Printf("storage: %d files, %.2f GB\n", stats.FileCount, stats.TotalGB)

	if report.Failed > 0 {
		os.Exit(1)
	}
}
