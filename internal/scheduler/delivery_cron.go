package cron

import (
	"context"

	"github.com/elevenetc/hris/internal/config"
	"github.com/elevenetc/hris/internal/jobs"
	"github.com/elevenetc/hris/internal/services"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// StartDeliveryCronJobs wires the periodic sweeps backing the delivery
// pipeline: the due-PENDING poll is the correctness backstop for the
// in-memory queue, the reaper requeues deliveries stuck in PROCESSING
// after a crash, and the reminder job nags about stale review drafts.
func StartDeliveryCronJobs(notificationService *services.NotificationService, reminder *jobs.ReviewReminder, cfg *config.Config) {
	c := cron.New()

	c.AddFunc(cfg.PendingPollSpec, func() {
		if err := notificationService.RequeueDuePending(context.Background()); err != nil {
			logrus.WithError(err).Error("Pending delivery poll failed")
		}
	})

	c.AddFunc(cfg.ReaperSpec, func() {
		if err := notificationService.ReapStuckDeliveries(context.Background()); err != nil {
			logrus.WithError(err).Error("Stuck delivery reaper failed")
		}
	})

	c.AddFunc("@daily", func() {
		if err := reminder.RunScan(context.Background()); err != nil {
			logrus.WithError(err).Error("Draft review reminder scan failed")
		}
	})

	c.Start()
}
