package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/elevenetc/hris/internal/config"
	"github.com/elevenetc/hris/internal/models"
	"github.com/elevenetc/hris/internal/repository"
	"github.com/elevenetc/hris/internal/services"
	"github.com/sirupsen/logrus"
)

// ReviewReminder nudges reviewers about drafts they started but never
// submitted. Reminders flow through the regular delivery pipeline.
type ReviewReminder struct {
	ReviewRepo          *repository.ReviewRepository
	NotificationRepo    *repository.NotificationRepository
	NotificationService *services.NotificationService
	Cfg                 *config.Config
}

func NewReviewReminder(reviewRepo *repository.ReviewRepository, notifRepo *repository.NotificationRepository, notifService *services.NotificationService, cfg *config.Config) *ReviewReminder {
	return &ReviewReminder{
		ReviewRepo:          reviewRepo,
		NotificationRepo:    notifRepo,
		NotificationService: notifService,
		Cfg:                 cfg,
	}
}

// RunScan finds drafts older than the configured age and reminds each
// reviewer at most once per day.
func (j *ReviewReminder) RunScan(ctx context.Context) error {
	cutoff := time.Now().Add(-j.Cfg.DraftReminderAge)
	drafts, err := j.ReviewRepo.GetStaleDrafts(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to fetch stale drafts: %v", err)
	}

	now := time.Now()
	for _, review := range drafts {
		existing, err := j.NotificationRepo.GetLatestNotificationForEntity(ctx, review.ReviewerID, models.NotificationReviewDraftReminder, review.ID)
		if err == nil && existing != nil && now.Sub(existing.CreatedAt) < 24*time.Hour {
			continue // reminded recently
		}

		related := review.ID
		notif := &models.Notification{
			UserID:            review.ReviewerID,
			Type:              models.NotificationReviewDraftReminder,
			Title:             "Review Draft Pending",
			Message:           fmt.Sprintf("Your %s review draft has been waiting since %s.", review.Period, review.CreatedAt.Format("Jan 2")),
			RelatedEntityType: "review",
			RelatedEntityID:   &related,
		}
		if err := j.NotificationService.Notify(ctx, notif, nil); err != nil {
			logrus.WithError(err).WithField("review_id", review.ID.Hex()).Warn("Failed to send draft reminder")
		}
	}

	logrus.WithField("drafts", len(drafts)).Info("Draft review reminder scan completed")
	return nil
}
