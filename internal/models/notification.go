package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NotificationType identifies the domain occurrence a notification describes.
type NotificationType string

const (
	NotificationReviewSubmitted NotificationType = "REVIEW_SUBMITTED"
	NotificationReviewReceived  NotificationType = "REVIEW_RECEIVED"
	NotificationManagerChanged  NotificationType = "MANAGER_CHANGED"
	NotificationNewDirectReport NotificationType = "NEW_DIRECT_REPORT"

	// NotificationReviewDraftReminder is produced by the reminder job, not
	// by a bus event.
	NotificationReviewDraftReminder NotificationType = "REVIEW_DRAFT_REMINDER"
)

// Channel is a transmission medium for a delivery.
type Channel string

const (
	ChannelEmail   Channel = "EMAIL"
	ChannelBrowser Channel = "BROWSER"
	ChannelMobile  Channel = "MOBILE"
	ChannelSlack   Channel = "SLACK"
)

// AllChannels is the default channel set applied when a notification is
// created without an explicit subset.
func AllChannels() []Channel {
	return []Channel{ChannelEmail, ChannelBrowser, ChannelMobile, ChannelSlack}
}

// DeliveryStatus is the per-channel delivery state machine:
// PENDING -> PROCESSING -> {SENT | PENDING (retry) | FAILED}.
type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "PENDING"
	DeliveryProcessing DeliveryStatus = "PROCESSING"
	DeliverySent       DeliveryStatus = "SENT"
	DeliveryFailed     DeliveryStatus = "FAILED"
)

// Notification is a user-facing message. ReadAt is set at most once and
// never cleared.
type Notification struct {
	ID                primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID            primitive.ObjectID  `bson:"user_id" json:"user_id"`
	Type              NotificationType    `bson:"type" json:"type"`
	Title             string              `bson:"title" json:"title"`
	Message           string              `bson:"message" json:"message"`
	RelatedEntityType string              `bson:"related_entity_type,omitempty" json:"related_entity_type,omitempty"`
	RelatedEntityID   *primitive.ObjectID `bson:"related_entity_id,omitempty" json:"related_entity_id,omitempty"`
	CreatedAt         time.Time           `bson:"created_at" json:"created_at"`
	ReadAt            *time.Time          `bson:"read_at,omitempty" json:"read_at,omitempty"`
}

// Delivery records transmission attempts of one notification over one channel.
type Delivery struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	NotificationID primitive.ObjectID `bson:"notification_id" json:"notification_id"`
	Channel        Channel            `bson:"channel" json:"channel"`
	Status         DeliveryStatus     `bson:"status" json:"status"`
	Attempts       int                `bson:"attempts" json:"attempts"`
	LastAttemptAt  *time.Time         `bson:"last_attempt_at,omitempty" json:"last_attempt_at,omitempty"`
	SentAt         *time.Time         `bson:"sent_at,omitempty" json:"sent_at,omitempty"`
	Error          string             `bson:"error,omitempty" json:"error,omitempty"`
	NextRetryAt    *time.Time         `bson:"next_retry_at,omitempty" json:"next_retry_at,omitempty"`
}

// BackoffDelay returns the wait before the next attempt after the given
// failure count: 1s, 2s, 4s, 8s, 16s for attempts 1..5.
func BackoffDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return time.Duration(1<<(attempts-1)) * time.Second
}
