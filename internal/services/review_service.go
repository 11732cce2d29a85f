package services

import (
	"context"
	"fmt"

	"github.com/elevenetc/hris/internal/events"
	"github.com/elevenetc/hris/internal/models"
	"github.com/elevenetc/hris/internal/repository"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReviewService encapsulates the performance-review lifecycle. Submitting a
// review is the only transition; it publishes the review events that feed
// the notification pipeline.
type ReviewService struct {
	repo         *repository.ReviewRepository
	employeeRepo *repository.EmployeeRepository
	bus          *events.Bus
}

func NewReviewService(repo *repository.ReviewRepository, employeeRepo *repository.EmployeeRepository, bus *events.Bus) *ReviewService {
	return &ReviewService{
		repo:         repo,
		employeeRepo: employeeRepo,
		bus:          bus,
	}
}

// CreateDraft starts a review in DRAFT.
func (s *ReviewService) CreateDraft(ctx context.Context, review *models.Review) (*models.Review, error) {
	if review.EmployeeID.IsZero() || review.ReviewerID.IsZero() || review.Period == "" {
		return nil, fmt.Errorf("missing required review fields")
	}
	if review.EmployeeID == review.ReviewerID {
		return nil, fmt.Errorf("employees cannot review themselves")
	}
	if review.Rating != 0 && (review.Rating < 1 || review.Rating > 5) {
		return nil, fmt.Errorf("rating must be between 1 and 5")
	}

	if _, err := s.employeeRepo.GetEmployeeByID(ctx, review.EmployeeID); err != nil {
		return nil, fmt.Errorf("employee not found")
	}

	return s.repo.CreateReview(ctx, review)
}

// UpdateDraft patches rating/summary while the review is still a draft.
func (s *ReviewService) UpdateDraft(ctx context.Context, id, reviewerID primitive.ObjectID, patch map[string]interface{}) error {
	review, err := s.repo.GetReviewByID(ctx, id)
	if err != nil {
		return fmt.Errorf("review not found")
	}
	if review.ReviewerID != reviewerID {
		return fmt.Errorf("only the reviewer can edit a draft")
	}

	allowed := map[string]bool{"rating": true, "summary": true, "period": true}
	filtered := map[string]interface{}{}
	for k, v := range patch {
		if allowed[k] {
			filtered[k] = v
		}
	}
	if len(filtered) == 0 {
		return nil
	}

	changed, err := s.repo.UpdateDraft(ctx, id, filtered)
	if err != nil {
		return err
	}
	if !changed {
		return fmt.Errorf("review is not a draft")
	}
	return nil
}

// SubmitReview performs DRAFT -> SUBMITTED and publishes the events that
// notify the reviewed employee and the reviewer. Submitting twice fails.
func (s *ReviewService) SubmitReview(ctx context.Context, id, reviewerID primitive.ObjectID) error {
	review, err := s.repo.GetReviewByID(ctx, id)
	if err != nil {
		return fmt.Errorf("review not found")
	}
	if review.ReviewerID != reviewerID {
		return fmt.Errorf("only the reviewer can submit")
	}
	if review.Rating < 1 || review.Rating > 5 {
		return fmt.Errorf("rating must be set before submitting")
	}

	submitted, err := s.repo.SubmitReview(ctx, id)
	if err != nil {
		return err
	}
	if !submitted {
		return fmt.Errorf("review already submitted")
	}

	reviewerName := s.employeeName(ctx, review.ReviewerID)
	employeeName := s.employeeName(ctx, review.EmployeeID)

	s.bus.Publish(events.ReviewSubmittedEvent{
		ReviewID:     review.ID,
		EmployeeID:   review.EmployeeID,
		ReviewerID:   review.ReviewerID,
		ReviewerName: reviewerName,
		Period:       review.Period,
	})
	s.bus.Publish(events.ReviewReceivedEvent{
		ReviewID:     review.ID,
		ReviewerID:   review.ReviewerID,
		EmployeeID:   review.EmployeeID,
		EmployeeName: employeeName,
		Period:       review.Period,
	})

	logrus.WithField("review_id", review.ID.Hex()).Info("Review submitted")
	return nil
}

// GetReview fetches one review.
func (s *ReviewService) GetReview(ctx context.Context, id primitive.ObjectID) (*models.Review, error) {
	return s.repo.GetReviewByID(ctx, id)
}

// GetReviewsForEmployee lists reviews about an employee.
func (s *ReviewService) GetReviewsForEmployee(ctx context.Context, employeeID primitive.ObjectID) ([]models.Review, error) {
	return s.repo.GetReviewsForEmployee(ctx, employeeID)
}

// GetReviewsByReviewer lists reviews authored by a reviewer.
func (s *ReviewService) GetReviewsByReviewer(ctx context.Context, reviewerID primitive.ObjectID) ([]models.Review, error) {
	return s.repo.GetReviewsByReviewer(ctx, reviewerID)
}

func (s *ReviewService) employeeName(ctx context.Context, id primitive.ObjectID) string {
	emp, err := s.employeeRepo.GetEmployeeByID(ctx, id)
	if err != nil {
		logrus.WithError(err).WithField("employee_id", id.Hex()).Warn("Failed to resolve employee name")
		return "A colleague"
	}
	return emp.Name
}
