package channels

import (
	"context"

	"github.com/elevenetc/hris/internal/models"
)

// Sender transmits one delivery over one specific channel. A nil return
// means the transmission succeeded; ordinary transport failures come back
// as errors, never panics. Implementations must be safe for concurrent use
// across different deliveries.
type Sender interface {
	Channel() models.Channel
	Send(ctx context.Context, notif *models.Notification, delivery *models.Delivery) error
}

// SenderMap builds the channel -> sender lookup the pipeline resolves from.
func SenderMap(senders ...Sender) map[models.Channel]Sender {
	m := make(map[models.Channel]Sender, len(senders))
	for _, s := range senders {
		m[s.Channel()] = s
	}
	return m
}
