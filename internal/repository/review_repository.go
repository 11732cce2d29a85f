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

// ReviewRepository handles database operations for performance reviews.
type ReviewRepository struct {
	collection *mongo.Collection
}

func NewReviewRepository(db *mongo.Database) *ReviewRepository {
	return &ReviewRepository{
		collection: db.Collection("reviews"),
	}
}

// CreateReview inserts a new draft review.
func (r *ReviewRepository) CreateReview(ctx context.Context, review *models.Review) (*models.Review, error) {
	review.ID = primitive.NewObjectID()
	review.Status = models.ReviewDraft
	review.CreatedAt = time.Now()
	review.UpdatedAt = review.CreatedAt

	if _, err := r.collection.InsertOne(ctx, review); err != nil {
		logger.Log.WithError(err).Error("Failed to insert review")
		return nil, fmt.Errorf("failed to create review: %v", err)
	}
	return review, nil
}

// GetReviewByID fetches a review by id.
func (r *ReviewRepository) GetReviewByID(ctx context.Context, id primitive.ObjectID) (*models.Review, error) {
	var review models.Review
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&review); err != nil {
		return nil, err
	}
	return &review, nil
}

// UpdateDraft applies a partial update, only while the review is a draft.
// Returns whether a row changed.
func (r *ReviewRepository) UpdateDraft(ctx context.Context, id primitive.ObjectID, update map[string]interface{}) (bool, error) {
	update["updated_at"] = time.Now()
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.ReviewDraft},
		bson.M{"$set": update},
	)
	if err != nil {
		return false, fmt.Errorf("failed to update review: %v", err)
	}
	return res.ModifiedCount > 0, nil
}

// SubmitReview performs the conditional DRAFT -> SUBMITTED transition.
// Returns false if the review was not in DRAFT.
func (r *ReviewRepository) SubmitReview(ctx context.Context, id primitive.ObjectID) (bool, error) {
	now := time.Now()
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.ReviewDraft},
		bson.M{"$set": bson.M{
			"status":       models.ReviewSubmitted,
			"submitted_at": now,
			"updated_at":   now,
		}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to submit review: %v", err)
	}
	return res.ModifiedCount > 0, nil
}

// GetReviewsForEmployee returns reviews about an employee, newest first.
func (r *ReviewRepository) GetReviewsForEmployee(ctx context.Context, employeeID primitive.ObjectID) ([]models.Review, error) {
	return r.find(ctx, bson.M{"employee_id": employeeID})
}

// GetReviewsByReviewer returns reviews authored by a reviewer, newest first.
func (r *ReviewRepository) GetReviewsByReviewer(ctx context.Context, reviewerID primitive.ObjectID) ([]models.Review, error) {
	return r.find(ctx, bson.M{"reviewer_id": reviewerID})
}

// GetStaleDrafts returns drafts created before the cutoff, for reminders.
func (r *ReviewRepository) GetStaleDrafts(ctx context.Context, cutoff time.Time) ([]models.Review, error) {
	return r.find(ctx, bson.M{
		"status":     models.ReviewDraft,
		"created_at": bson.M{"$lt": cutoff},
	})
}

func (r *ReviewRepository) find(ctx context.Context, filter bson.M) ([]models.Review, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reviews: %v", err)
	}
	defer cursor.Close(ctx)

	var reviews []models.Review
	if err := cursor.All(ctx, &reviews); err != nil {
		return nil, fmt.Errorf("failed to decode reviews: %v", err)
	}
	return reviews, nil
}
