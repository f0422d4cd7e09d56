package jobs

import (
	"context"
	"log"

	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/scraper/services"
	"github.com/Udjin79/atlassian-marketplace-scraper/pkg/tools"
	"github.com/robfig/cron/v3"
)

// ScheduleDailyReindex sets up a cron job that reconciles download metadata
// against the binaries on disk every day.
func ScheduleDailyReindex(ctx context.Context, reindexer *services.StorageReindexer) *cron.Cron {
	c := cron.New()
	_, _ = c.AddFunc("@daily", func() {
		tools.Dispatch(context.Background(), "reindex", func(ctx context.Context) error {
			stats, err := reindexer.Reindex(ctx)
			if err != nil {
				return err
			}
			log.Printf("[reindex] daily run: %d versions checked, %d verified, %d missing, %d cleared",
				stats.TotalVersions, stats.FilesVerified, stats.FilesMissing, stats.MetadataCleared)
			return nil
		})
	})
	c.Start()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	return c
}
