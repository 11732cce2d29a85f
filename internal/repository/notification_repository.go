package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/elevenetc/hris/internal/models"
	"github.com/elevenetc/hris/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// NotificationRepository is the sole owner of persisted notification and
// delivery state. All delivery status transitions go through it.
type NotificationRepository struct {
	client        *mongo.Client
	notifications *mongo.Collection
	deliveries    *mongo.Collection
}

func NewNotificationRepository(db *mongo.Database) *NotificationRepository {
	return &NotificationRepository{
		client:        db.Client(),
		notifications: db.Collection("notifications"),
		deliveries:    db.Collection("deliveries"),
	}
}

// EnsureIndexes creates the two access paths the pipeline depends on:
// (status, next_retry_at) for the pending scan and notification_id for the
// cascade, plus (user_id, created_at) for the inbox listing.
func (r *NotificationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.deliveries.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "next_retry_at", Value: 1}}},
		{Keys: bson.D{{Key: "notification_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create delivery indexes: %v", err)
	}

	_, err = r.notifications.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create notification indexes: %v", err)
	}
	return nil
}

// CreateNotification inserts the notification and one PENDING delivery per
// requested channel in a single transaction: either all rows exist or none
// do. An empty channel list means all channels.
func (r *NotificationRepository) CreateNotification(ctx context.Context, notif *models.Notification, channels []models.Channel) ([]models.Delivery, error) {
	if len(channels) == 0 {
		channels = models.AllChannels()
	}

	now := time.Now()
	notif.ID = primitive.NewObjectID()
	notif.CreatedAt = now
	notif.ReadAt = nil

	deliveries := make([]models.Delivery, 0, len(channels))
	docs := make([]interface{}, 0, len(channels))
	for _, ch := range channels {
		d := models.Delivery{
			ID:             primitive.NewObjectID(),
			NotificationID: notif.ID,
			Channel:        ch,
			Status:         models.DeliveryPending,
			Attempts:       0,
			NextRetryAt:    &now,
		}
		deliveries = append(deliveries, d)
		docs = append(docs, d)
	}

	session, err := r.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %v", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if _, err := r.notifications.InsertOne(sc, notif); err != nil {
			return nil, err
		}
		if _, err := r.deliveries.InsertMany(sc, docs); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		logger.Log.WithError(err).Error("Failed to create notification with deliveries")
		return nil, fmt.Errorf("failed to create notification: %v", err)
	}

	logger.Log.WithFields(map[string]interface{}{
		"notification_id": notif.ID.Hex(),
		"channels":        len(deliveries),
	}).Info("Notification created")
	return deliveries, nil
}

// GetUserNotifications returns a user's notifications newest first.
func (r *NotificationRepository) GetUserNotifications(ctx context.Context, userID primitive.ObjectID, unreadOnly bool, limit, offset int64) ([]models.Notification, error) {
	filter := bson.M{"user_id": userID}
	if unreadOnly {
		filter["read_at"] = nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(offset)
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := r.notifications.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notifications: %v", err)
	}
	defer cursor.Close(ctx)

	var notifications []models.Notification
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %v", err)
	}
	return notifications, nil
}

// CountUnreadNotifications returns the number of unread notifications.
func (r *NotificationRepository) CountUnreadNotifications(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	count, err := r.notifications.CountDocuments(ctx, bson.M{"user_id": userID, "read_at": nil})
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %v", err)
	}
	return count, nil
}

// MarkAsRead stamps read_at once, only for the owning user. Returns whether
// a row changed; a second call is a no-op.
func (r *NotificationRepository) MarkAsRead(ctx context.Context, notifID, userID primitive.ObjectID) (bool, error) {
	res, err := r.notifications.UpdateOne(ctx,
		bson.M{"_id": notifID, "user_id": userID, "read_at": nil},
		bson.M{"$set": bson.M{"read_at": time.Now()}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark notification as read: %v", err)
	}
	return res.ModifiedCount > 0, nil
}

// MarkAllAsRead stamps read_at on every unread notification of the user.
func (r *NotificationRepository) MarkAllAsRead(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	res, err := r.notifications.UpdateMany(ctx,
		bson.M{"user_id": userID, "read_at": nil},
		bson.M{"$set": bson.M{"read_at": time.Now()}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications as read: %v", err)
	}
	return res.ModifiedCount, nil
}

// DeleteNotification removes the notification and cascades to its
// deliveries, only if it belongs to the given user.
func (r *NotificationRepository) DeleteNotification(ctx context.Context, notifID, userID primitive.ObjectID) (bool, error) {
	session, err := r.client.StartSession()
	if err != nil {
		return false, fmt.Errorf("failed to start session: %v", err)
	}
	defer session.EndSession(ctx)

	deleted, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		res, err := r.notifications.DeleteOne(sc, bson.M{"_id": notifID, "user_id": userID})
		if err != nil {
			return false, err
		}
		if res.DeletedCount == 0 {
			return false, nil
		}
		if _, err := r.deliveries.DeleteMany(sc, bson.M{"notification_id": notifID}); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		logger.Log.WithError(err).WithField("notification_id", notifID.Hex()).Error("Failed to delete notification")
		return false, fmt.Errorf("failed to delete notification: %v", err)
	}
	return deleted.(bool), nil
}

// GetPendingDeliveries returns up to limit deliveries that are PENDING and
// due, oldest due first. Used by startup recovery and the periodic poll.
func (r *NotificationRepository) GetPendingDeliveries(ctx context.Context, limit int64) ([]models.Delivery, error) {
	filter := bson.M{
		"status":        models.DeliveryPending,
		"next_retry_at": bson.M{"$lte": time.Now()},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "next_retry_at", Value: 1}}).
		SetLimit(limit)

	cursor, err := r.deliveries.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending deliveries: %v", err)
	}
	defer cursor.Close(ctx)

	var deliveries []models.Delivery
	if err := cursor.All(ctx, &deliveries); err != nil {
		return nil, fmt.Errorf("failed to decode pending deliveries: %v", err)
	}
	return deliveries, nil
}

// MarkDeliveryAsProcessing performs the conditional PENDING -> PROCESSING
// transition. It is the single chokepoint preventing two workers from
// double-sending the same delivery: the update matches only a PENDING row,
// so exactly one concurrent caller wins.
func (r *NotificationRepository) MarkDeliveryAsProcessing(ctx context.Context, id primitive.ObjectID) (bool, error) {
	res, err := r.deliveries.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.DeliveryPending},
		bson.M{"$set": bson.M{
			"status":          models.DeliveryProcessing,
			"last_attempt_at": time.Now(),
			"next_retry_at":   nil,
		}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark delivery as processing: %v", err)
	}
	return res.ModifiedCount > 0, nil
}

// MarkDeliveryAsSent records terminal success.
func (r *NotificationRepository) MarkDeliveryAsSent(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.deliveries.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"status":        models.DeliverySent,
			"sent_at":       time.Now(),
			"next_retry_at": nil,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark delivery as sent: %v", err)
	}
	return nil
}

// MarkDeliveryAsFailed increments the attempt count and either schedules a
// retry with exponential backoff or, once maxRetries is reached, parks the
// delivery in FAILED. Returns whether a retry was scheduled and its delay.
// The caller owns the row (it claimed PROCESSING), so the read-modify-write
// is not contended.
func (r *NotificationRepository) MarkDeliveryAsFailed(ctx context.Context, id primitive.ObjectID, errMsg string, maxRetries int) (bool, time.Duration, error) {
	var delivery models.Delivery
	if err := r.deliveries.FindOne(ctx, bson.M{"_id": id}).Decode(&delivery); err != nil {
		return false, 0, fmt.Errorf("failed to load delivery: %v", err)
	}

	attempts := delivery.Attempts + 1
	update := bson.M{
		"attempts": attempts,
		"error":    errMsg,
	}

	retry := attempts < maxRetries
	var delay time.Duration
	if retry {
		delay = models.BackoffDelay(attempts)
		update["status"] = models.DeliveryPending
		update["next_retry_at"] = time.Now().Add(delay)
	} else {
		update["status"] = models.DeliveryFailed
		update["next_retry_at"] = nil
	}

	if _, err := r.deliveries.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": update}); err != nil {
		return false, 0, fmt.Errorf("failed to mark delivery as failed: %v", err)
	}

	logger.Log.WithFields(map[string]interface{}{
		"delivery_id": id.Hex(),
		"attempts":    attempts,
		"retry":       retry,
	}).Warn("Delivery attempt failed")
	return retry, delay, nil
}

// ReapStuckDeliveries requeues PROCESSING rows whose last attempt is older
// than the staleness threshold, e.g. after a crash mid-send. The periodic
// pending poll picks them up through the normal claim path.
func (r *NotificationRepository) ReapStuckDeliveries(ctx context.Context, staleness time.Duration) (int64, error) {
	now := time.Now()
	res, err := r.deliveries.UpdateMany(ctx,
		bson.M{
			"status":          models.DeliveryProcessing,
			"last_attempt_at": bson.M{"$lt": now.Add(-staleness)},
		},
		bson.M{"$set": bson.M{
			"status":        models.DeliveryPending,
			"next_retry_at": now,
		}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reap stuck deliveries: %v", err)
	}
	if res.ModifiedCount > 0 {
		logger.Log.WithField("count", res.ModifiedCount).Warn("Requeued stuck deliveries")
	}
	return res.ModifiedCount, nil
}

// GetDeliveriesForNotification returns all deliveries of one notification.
func (r *NotificationRepository) GetDeliveriesForNotification(ctx context.Context, notifID primitive.ObjectID) ([]models.Delivery, error) {
	cursor, err := r.deliveries.Find(ctx, bson.M{"notification_id": notifID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch deliveries: %v", err)
	}
	defer cursor.Close(ctx)

	var deliveries []models.Delivery
	if err := cursor.All(ctx, &deliveries); err != nil {
		return nil, fmt.Errorf("failed to decode deliveries: %v", err)
	}
	return deliveries, nil
}

// GetDeliveryByID fetches a single delivery.
func (r *NotificationRepository) GetDeliveryByID(ctx context.Context, id primitive.ObjectID) (*models.Delivery, error) {
	var delivery models.Delivery
	if err := r.deliveries.FindOne(ctx, bson.M{"_id": id}).Decode(&delivery); err != nil {
		return nil, err
	}
	return &delivery, nil
}

// GetLatestNotificationForEntity returns the newest notification of the
// given type that references the entity, or mongo.ErrNoDocuments. Used by
// reminder jobs to avoid re-notifying.
func (r *NotificationRepository) GetLatestNotificationForEntity(ctx context.Context, userID primitive.ObjectID, ntype models.NotificationType, relatedID primitive.ObjectID) (*models.Notification, error) {
	filter := bson.M{
		"user_id":           userID,
		"type":              ntype,
		"related_entity_id": relatedID,
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var notif models.Notification
	if err := r.notifications.FindOne(ctx, filter, opts).Decode(&notif); err != nil {
		return nil, err
	}
	return &notif, nil
}

// GetNotificationByID fetches a single notification.
func (r *NotificationRepository) GetNotificationByID(ctx context.Context, id primitive.ObjectID) (*models.Notification, error) {
	var notif models.Notification
	if err := r.notifications.FindOne(ctx, bson.M{"_id": id}).Decode(&notif); err != nil {
		return nil, err
	}
	return &notif, nil
}
