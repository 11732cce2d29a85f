package channels

import (
	"context"
	"fmt"

	"github.com/elevenetc/hris/internal/models"
	"github.com/elevenetc/hris/internal/repository"
	"github.com/elevenetc/hris/pkg/email"
	"github.com/sirupsen/logrus"
)

// EmailSender delivers notifications over SMTP. Without SMTP configuration
// it degrades to a log-only boundary stub that reports success.
type EmailSender struct {
	employees *repository.EmployeeRepository
}

func NewEmailSender(employees *repository.EmployeeRepository) *EmailSender {
	return &EmailSender{employees: employees}
}

func (s *EmailSender) Channel() models.Channel { return models.ChannelEmail }

func (s *EmailSender) Send(ctx context.Context, notif *models.Notification, delivery *models.Delivery) error {
	if !email.Configured() {
		logrus.WithFields(logrus.Fields{
			"delivery_id": delivery.ID.Hex(),
			"user_id":     notif.UserID.Hex(),
			"title":       notif.Title,
		}).Info("Email delivery (stub)")
		return nil
	}

	emp, err := s.employees.GetEmployeeByID(ctx, notif.UserID)
	if err != nil {
		return fmt.Errorf("failed to resolve recipient: %v", err)
	}

	if err := email.SendEmail(emp.Email, notif.Title, notif.Message); err != nil {
		return err
	}

	logrus.WithField("delivery_id", delivery.ID.Hex()).Info("Email delivery sent")
	return nil
}
