package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReviewStatus is the review lifecycle: DRAFT -> SUBMITTED.
type ReviewStatus string

const (
	ReviewDraft     ReviewStatus = "DRAFT"
	ReviewSubmitted ReviewStatus = "SUBMITTED"
)

// Review is a performance review authored by a reviewer about an employee.
type Review struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	EmployeeID  primitive.ObjectID `bson:"employee_id" json:"employee_id"`
	ReviewerID  primitive.ObjectID `bson:"reviewer_id" json:"reviewer_id"`
	Period      string             `bson:"period" json:"period"` // e.g. "2026-H1"
	Rating      int                `bson:"rating" json:"rating"` // 1..5
	Summary     string             `bson:"summary" json:"summary"`
	Status      ReviewStatus       `bson:"status" json:"status"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
	SubmittedAt *time.Time         `bson:"submitted_at,omitempty" json:"submitted_at,omitempty"`
}
