package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/elevenetc/hris/internal/channels"
	"github.com/elevenetc/hris/internal/config"
	"github.com/elevenetc/hris/internal/events"
	"github.com/elevenetc/hris/internal/models"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// DeliveryStore is the persistence contract the pipeline runs against. The
// Mongo implementation lives in internal/repository; tests substitute an
// in-memory one.
type DeliveryStore interface {
	CreateNotification(ctx context.Context, notif *models.Notification, chans []models.Channel) ([]models.Delivery, error)
	GetUserNotifications(ctx context.Context, userID primitive.ObjectID, unreadOnly bool, limit, offset int64) ([]models.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID primitive.ObjectID) (int64, error)
	MarkAsRead(ctx context.Context, notifID, userID primitive.ObjectID) (bool, error)
	MarkAllAsRead(ctx context.Context, userID primitive.ObjectID) (int64, error)
	DeleteNotification(ctx context.Context, notifID, userID primitive.ObjectID) (bool, error)

	GetPendingDeliveries(ctx context.Context, limit int64) ([]models.Delivery, error)
	MarkDeliveryAsProcessing(ctx context.Context, id primitive.ObjectID) (bool, error)
	MarkDeliveryAsSent(ctx context.Context, id primitive.ObjectID) error
	MarkDeliveryAsFailed(ctx context.Context, id primitive.ObjectID, errMsg string, maxRetries int) (bool, time.Duration, error)
	ReapStuckDeliveries(ctx context.Context, staleness time.Duration) (int64, error)

	GetDeliveriesForNotification(ctx context.Context, notifID primitive.ObjectID) ([]models.Delivery, error)
	GetDeliveryByID(ctx context.Context, id primitive.ObjectID) (*models.Delivery, error)
	GetNotificationByID(ctx context.Context, id primitive.ObjectID) (*models.Notification, error)
}

// NotificationService bridges domain events to durable multi-channel
// deliveries. It subscribes to the event bus, persists a notification plus
// one PENDING delivery per channel, and drains an internal queue with a
// fixed pool of workers. Failed sends retry with exponential backoff; on
// startup every due PENDING delivery is requeued, which is the crash
// recovery path.
type NotificationService struct {
	store   DeliveryStore
	bus     *events.Bus
	senders map[models.Channel]channels.Sender
	cfg     *config.Config

	mu         sync.Mutex
	running    bool
	registered bool
	ctx        context.Context
	cancel     context.CancelFunc
	queue      chan primitive.ObjectID
	wg         sync.WaitGroup
}

func NewNotificationService(store DeliveryStore, bus *events.Bus, senders map[models.Channel]channels.Sender, cfg *config.Config) *NotificationService {
	return &NotificationService{
		store:   store,
		bus:     bus,
		senders: senders,
		cfg:     cfg,
	}
}

// Start registers the event handler, spins up the delivery workers and
// kicks off the recovery scan. Calling it twice is a no-op.
func (s *NotificationService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.queue = make(chan primitive.ObjectID, s.cfg.QueueSize)

	// The bus has no unregister, so a stop/start cycle must not add the
	// handler a second time.
	if !s.registered {
		s.bus.RegisterHandler(s.handleEvent)
		s.registered = true
	}

	for i := 0; i < s.cfg.WorkerCount; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.recoverPending()
	}()

	logrus.WithField("workers", s.cfg.WorkerCount).Info("Notification pipeline started")
}

// Stop cancels the pipeline and waits for the workers to drain. In-flight
// sends are abandoned through context cancellation. Idempotent.
func (s *NotificationService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false

	s.cancel()
	s.wg.Wait()
	logrus.Info("Notification pipeline stopped")
}

// handleEvent maps a domain event to a notification, persists it together
// with its deliveries and queues the delivery ids. Failures are logged and
// swallowed: the pipeline is fire-and-forget from the publisher's side.
func (s *NotificationService) handleEvent(ev events.Event) {
	notif, chans := s.buildNotification(ev)
	if notif == nil {
		return
	}

	deliveries, err := s.store.CreateNotification(s.ctx, notif, chans)
	if err != nil {
		logrus.WithError(err).WithField("event", ev.Name()).Error("Failed to create notification for event")
		return
	}

	for _, d := range deliveries {
		s.enqueue(d.ID)
	}
}

func (s *NotificationService) buildNotification(ev events.Event) (*models.Notification, []models.Channel) {
	switch e := ev.(type) {
	case events.ReviewSubmittedEvent:
		related := e.ReviewID
		return &models.Notification{
			UserID:            e.EmployeeID,
			Type:              models.NotificationReviewSubmitted,
			Title:             "Review Submitted",
			Message:           fmt.Sprintf("%s submitted your %s performance review.", e.ReviewerName, e.Period),
			RelatedEntityType: "review",
			RelatedEntityID:   &related,
		}, nil
	case events.ReviewReceivedEvent:
		related := e.ReviewID
		return &models.Notification{
			UserID:            e.ReviewerID,
			Type:              models.NotificationReviewReceived,
			Title:             "Review Received",
			Message:           fmt.Sprintf("Your %s review of %s was recorded.", e.Period, e.EmployeeName),
			RelatedEntityType: "review",
			RelatedEntityID:   &related,
		}, nil
	case events.ManagerChangedEvent:
		related := e.EmployeeID
		message := "Your manager has been changed."
		if e.ManagerName != "" {
			message = fmt.Sprintf("You now report to %s.", e.ManagerName)
		}
		return &models.Notification{
			UserID:            e.EmployeeID,
			Type:              models.NotificationManagerChanged,
			Title:             "Manager Changed",
			Message:           message,
			RelatedEntityType: "employee",
			RelatedEntityID:   &related,
		}, nil
	case events.NewDirectReportEvent:
		related := e.EmployeeID
		return &models.Notification{
			UserID:            e.ManagerID,
			Type:              models.NotificationNewDirectReport,
			Title:             "New Direct Report",
			Message:           fmt.Sprintf("%s now reports to you.", e.EmployeeName),
			RelatedEntityType: "employee",
			RelatedEntityID:   &related,
		}, nil
	default:
		logrus.WithField("event", ev.Name()).Debug("Ignoring event without notification mapping")
		return nil, nil
	}
}

// enqueue hands a delivery id to the workers. When the pipeline is stopping
// or the queue is full the id is dropped: the periodic pending poll is the
// correctness backstop, the queue only an accelerator.
func (s *NotificationService) enqueue(id primitive.ObjectID) {
	if s.ctx == nil {
		return
	}
	select {
	case <-s.ctx.Done():
	case s.queue <- id:
	default:
		logrus.WithField("delivery_id", id.Hex()).Warn("Delivery queue full, leaving to pending poll")
	}
}

func (s *NotificationService) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case id := <-s.queue:
			s.processDelivery(id)
		}
	}
}

// processDelivery runs one delivery attempt end to end: claim, load, send,
// record. The conditional claim is the duplicate-suppression point; losing
// it means another worker (or process) already has the row.
func (s *NotificationService) processDelivery(id primitive.ObjectID) {
	claimed, err := s.store.MarkDeliveryAsProcessing(s.ctx, id)
	if err != nil {
		logrus.WithError(err).WithField("delivery_id", id.Hex()).Error("Failed to claim delivery")
		return
	}
	if !claimed {
		return
	}

	delivery, err := s.store.GetDeliveryByID(s.ctx, id)
	if err != nil {
		logrus.WithError(err).WithField("delivery_id", id.Hex()).Error("Claimed delivery not loadable")
		return
	}

	notif, err := s.store.GetNotificationByID(s.ctx, delivery.NotificationID)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"delivery_id":     id.Hex(),
			"notification_id": delivery.NotificationID.Hex(),
		}).Error("Notification missing for delivery")
		return
	}

	sender, ok := s.senders[delivery.Channel]
	if !ok {
		// Misconfiguration, not a transient failure: record and stop.
		msg := fmt.Sprintf("no sender registered for channel %s", delivery.Channel)
		if _, _, err := s.store.MarkDeliveryAsFailed(s.ctx, id, msg, s.cfg.MaxRetries); err != nil {
			logrus.WithError(err).WithField("delivery_id", id.Hex()).Error("Failed to record unroutable delivery")
		}
		return
	}

	if sendErr := s.send(sender, notif, delivery); sendErr != nil {
		retry, delay, err := s.store.MarkDeliveryAsFailed(s.ctx, id, sendErr.Error(), s.cfg.MaxRetries)
		if err != nil {
			logrus.WithError(err).WithField("delivery_id", id.Hex()).Error("Failed to record delivery failure")
			return
		}
		if retry {
			s.scheduleRetry(id, delay)
		}
		return
	}

	if err := s.store.MarkDeliveryAsSent(s.ctx, id); err != nil {
		logrus.WithError(err).WithField("delivery_id", id.Hex()).Error("Failed to record delivery success")
		return
	}

	logrus.WithFields(logrus.Fields{
		"delivery_id": id.Hex(),
		"channel":     delivery.Channel,
	}).Info("Delivery sent")
}

// send invokes the sender, converting a panic into an ordinary failure.
func (s *NotificationService) send(sender channels.Sender, notif *models.Notification, delivery *models.Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panicked: %v", r)
		}
	}()
	return sender.Send(s.ctx, notif, delivery)
}

// scheduleRetry re-enqueues the delivery after the backoff the store
// computed. The timer dies with the pipeline; crash recovery then converges
// on the same processDelivery path through the pending scan.
func (s *NotificationService) scheduleRetry(id primitive.ObjectID, delay time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
		case <-timer.C:
			s.enqueue(id)
		}
	}()
}

// recoverPending requeues every due PENDING delivery left over from a prior
// run, up to the recovery batch size.
func (s *NotificationService) recoverPending() {
	deliveries, err := s.store.GetPendingDeliveries(s.ctx, s.cfg.RecoveryBatch)
	if err != nil {
		logrus.WithError(err).Error("Recovery scan failed")
		return
	}
	for _, d := range deliveries {
		s.enqueue(d.ID)
	}
	if len(deliveries) > 0 {
		logrus.WithField("count", len(deliveries)).Info("Requeued pending deliveries")
	}
}

// RequeueDuePending is the periodic poll entry point used by the scheduler;
// it shares the recovery scan's semantics.
func (s *NotificationService) RequeueDuePending(ctx context.Context) error {
	deliveries, err := s.store.GetPendingDeliveries(ctx, s.cfg.RecoveryBatch)
	if err != nil {
		return err
	}
	for _, d := range deliveries {
		s.enqueue(d.ID)
	}
	return nil
}

// ReapStuckDeliveries flips PROCESSING rows older than the configured
// staleness back to PENDING so the poll can requeue them.
func (s *NotificationService) ReapStuckDeliveries(ctx context.Context) error {
	_, err := s.store.ReapStuckDeliveries(ctx, s.cfg.ReaperStaleness)
	return err
}

// Notify persists and queues a notification outside the event flow, for
// callers like the draft-review reminder job.
func (s *NotificationService) Notify(ctx context.Context, notif *models.Notification, chans []models.Channel) error {
	deliveries, err := s.store.CreateNotification(ctx, notif, chans)
	if err != nil {
		return err
	}
	for _, d := range deliveries {
		s.enqueue(d.ID)
	}
	return nil
}

// --- user-facing retrieval API, exposed upward to the HTTP layer ---

func (s *NotificationService) GetUserNotifications(ctx context.Context, userID primitive.ObjectID, unreadOnly bool, limit, offset int64) ([]models.Notification, error) {
	return s.store.GetUserNotifications(ctx, userID, unreadOnly, limit, offset)
}

func (s *NotificationService) CountUnreadNotifications(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return s.store.CountUnreadNotifications(ctx, userID)
}

func (s *NotificationService) MarkNotificationAsRead(ctx context.Context, notifID, userID primitive.ObjectID) (bool, error) {
	return s.store.MarkAsRead(ctx, notifID, userID)
}

func (s *NotificationService) MarkAllNotificationsAsRead(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return s.store.MarkAllAsRead(ctx, userID)
}

func (s *NotificationService) DeleteNotification(ctx context.Context, notifID, userID primitive.ObjectID) (bool, error) {
	return s.store.DeleteNotification(ctx, notifID, userID)
}

// GetDeliveriesForNotification returns the delivery records of a
// notification, but only when it belongs to the given user; delivery rows
// carry error messages that must not leak across users. The bool reports
// whether an owned notification was found.
func (s *NotificationService) GetDeliveriesForNotification(ctx context.Context, notifID, userID primitive.ObjectID) ([]models.Delivery, bool, error) {
	notif, err := s.store.GetNotificationByID(ctx, notifID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if notif.UserID != userID {
		return nil, false, nil
	}

	deliveries, err := s.store.GetDeliveriesForNotification(ctx, notifID)
	if err != nil {
		return nil, false, err
	}
	return deliveries, true, nil
}
