package internal

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tambongslade/pos-whatsapp-gateway/pkg/env"
	"github.com/tambongslade/pos-whatsapp-gateway/pkg/log"
	"github.com/tambongslade/pos-whatsapp-gateway/pkg/whatsapp"
)

// Routines schedules the background jobs: periodic credential flush, the
// hourly follow-up escalation tick, message cache cleanup and the daily
// low-stock report.
func Routines(c *cron.Cron) {
	log.Print(nil).Info("Running Routine Tasks")

	// Credential flush every minute so an abrupt kill loses at most a
	// minute of session key updates.
	_, err := c.AddFunc("0 * * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		gateway.FlushCredentials(ctx)
	})
	if err != nil {
		log.Print(nil).WithError(err).Error("Failed to add credential flush cron job")
	}

	// Follow-up escalation tick, hourly on the hour.
	_, err = c.AddFunc("0 0 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		gateway.TickFollowUps(ctx)
	})
	if err != nil {
		log.Print(nil).WithError(err).Error("Failed to add follow-up cron job")
	}

	// Drop expired cached messages every 6 hours.
	_, err = c.AddFunc("0 0 */6 * * *", func() {
		removed := gateway.MessageCacheCleanup()
		if removed > 0 {
			log.Print(nil).WithField("removed", removed).Info("Pruned expired cached messages")
		}
	})
	if err != nil {
		log.Print(nil).WithError(err).Error("Failed to add cache cleanup cron job")
	}

	// Daily low-stock report to the admin phone, when both the catalog and
	// a recipient are configured.
	adminPhone := env.GetEnvStringOrDefault("WHATSAPP_ADMIN_PHONE", "")
	if catalogStore != nil && adminPhone != "" {
		spec := env.GetEnvStringOrDefault("LOW_STOCK_REPORT_CRON_SPEC", "0 0 8 * * *")
		_, err = c.AddFunc(spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			lowStock, err := catalogStore.LowStock(ctx)
			if err != nil {
				log.Print(nil).WithError(err).Error("Failed to query low stock products for daily report")
				return
			}
			if len(lowStock) == 0 {
				log.Print(nil).Info("Daily low stock report skipped: nothing below threshold")
				return
			}

			products := make([]whatsapp.LowStockProduct, 0, len(lowStock))
			for _, p := range lowStock {
				products = append(products, whatsapp.LowStockProduct{
					ID:        p.ID,
					Name:      p.Name,
					StoreName: p.StoreName,
					Stock:     p.Stock,
					Threshold: p.LowStockThreshold,
				})
			}
			if _, err := gateway.SendLowStockReport(ctx, adminPhone, products); err != nil {
				log.Print(nil).WithError(err).Error("Failed to send daily low stock report")
			}
		})
		if err != nil {
			log.Print(nil).WithError(err).Error("Failed to add low stock report cron job")
		} else {
			log.Print(nil).WithField("spec", spec).Info("Daily low stock report enabled")
		}
	} else {
		log.Print(nil).Info("Daily low stock report disabled; requires POS catalog and WHATSAPP_ADMIN_PHONE")
	}

	c.Start()
}
