package channels

import (
	"context"

	"github.com/elevenetc/hris/internal/models"
	"github.com/sirupsen/logrus"
)

// SlackSender is a boundary stub for a chat webhook integration.
type SlackSender struct{}

func NewSlackSender() *SlackSender { return &SlackSender{} }

func (s *SlackSender) Channel() models.Channel { return models.ChannelSlack }

func (s *SlackSender) Send(ctx context.Context, notif *models.Notification, delivery *models.Delivery) error {
	logrus.WithFields(logrus.Fields{
		"delivery_id": delivery.ID.Hex(),
		"user_id":     notif.UserID.Hex(),
		"title":       notif.Title,
	}).Info("Slack delivery (stub)")
	return nil
}
