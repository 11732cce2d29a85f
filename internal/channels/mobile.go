package channels

import (
	"context"

	"github.com/elevenetc/hris/internal/models"
	"github.com/sirupsen/logrus"
)

// MobileSender is a boundary stub for a mobile push provider integration.
type MobileSender struct{}

func NewMobileSender() *MobileSender { return &MobileSender{} }

func (s *MobileSender) Channel() models.Channel { return models.ChannelMobile }

func (s *MobileSender) Send(ctx context.Context, notif *models.Notification, delivery *models.Delivery) error {
	logrus.WithFields(logrus.Fields{
		"delivery_id": delivery.ID.Hex(),
		"user_id":     notif.UserID.Hex(),
		"title":       notif.Title,
	}).Info("Mobile push delivery (stub)")
	return nil
}
