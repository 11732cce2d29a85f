package channels

import (
	"context"

	"github.com/elevenetc/hris/internal/models"
	"github.com/elevenetc/hris/internal/ws"
	"github.com/sirupsen/logrus"
)

// BrowserSender pushes notifications to connected websocket clients. An
// employee without a live connection still counts as delivered: browser
// push is ephemeral and the inbox API remains the durable view.
type BrowserSender struct {
	hub *ws.Hub
}

func NewBrowserSender(hub *ws.Hub) *BrowserSender {
	return &BrowserSender{hub: hub}
}

func (s *BrowserSender) Channel() models.Channel { return models.ChannelBrowser }

func (s *BrowserSender) Send(ctx context.Context, notif *models.Notification, delivery *models.Delivery) error {
	pushed := s.hub.Push(notif.UserID.Hex(), map[string]interface{}{
		"type":    "notification",
		"id":      notif.ID.Hex(),
		"title":   notif.Title,
		"message": notif.Message,
	})

	logrus.WithFields(logrus.Fields{
		"delivery_id": delivery.ID.Hex(),
		"user_id":     notif.UserID.Hex(),
		"connected":   pushed,
	}).Info("Browser delivery")
	return nil
}
