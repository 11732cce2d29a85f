package channels

import (
	"context"
	"testing"

	"github.com/elevenetc/hris/internal/models"
	"github.com/elevenetc/hris/internal/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestSenderMapKeysByChannel(t *testing.T) {
	browser := NewBrowserSender(ws.NewHub())
	mobile := NewMobileSender()
	slack := NewSlackSender()

	m := SenderMap(browser, mobile, slack)

	require.Len(t, m, 3)
	assert.Same(t, browser, m[models.ChannelBrowser])
	assert.Same(t, mobile, m[models.ChannelMobile])
	assert.Same(t, slack, m[models.ChannelSlack])
}

func TestBrowserSenderSucceedsWithoutConnectedClient(t *testing.T) {
	sender := NewBrowserSender(ws.NewHub())

	notif := &models.Notification{
		ID:      primitive.NewObjectID(),
		UserID:  primitive.NewObjectID(),
		Title:   "Manager Changed",
		Message: "You now report to Grace Field.",
	}
	delivery := &models.Delivery{ID: primitive.NewObjectID()}

	// An offline user is not a transport failure: the inbox stays the
	// durable view and the push is best effort.
	assert.NoError(t, sender.Send(context.Background(), notif, delivery))
}

func TestStubSendersReportTheirChannel(t *testing.T) {
	assert.Equal(t, models.ChannelMobile, NewMobileSender().Channel())
	assert.Equal(t, models.ChannelSlack, NewSlackSender().Channel())

	notif := &models.Notification{ID: primitive.NewObjectID(), UserID: primitive.NewObjectID()}
	delivery := &models.Delivery{ID: primitive.NewObjectID()}
	assert.NoError(t, NewMobileSender().Send(context.Background(), notif, delivery))
	assert.NoError(t, NewSlackSender().Send(context.Background(), notif, delivery))
}
