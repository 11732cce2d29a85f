package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/elevenetc/hris/internal/models"
	"github.com/elevenetc/hris/internal/services"
	"github.com/elevenetc/hris/pkg/logger"
	"github.com/elevenetc/hris/pkg/middleware"
	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ReviewHandler struct {
	Service *services.ReviewService
}

func NewReviewHandler(service *services.ReviewService) *ReviewHandler {
	return &ReviewHandler{Service: service}
}

// POST /reviews
func (h *ReviewHandler) CreateReviewHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	reviewerID, _ := primitive.ObjectIDFromHex(claims.UserID)

	var req struct {
		EmployeeID string `json:"employee_id"`
		Period     string `json:"period"`
		Rating     int    `json:"rating"`
		Summary    string `json:"summary"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	employeeID, err := primitive.ObjectIDFromHex(req.EmployeeID)
	if err != nil {
		http.Error(w, "Invalid employee ID", http.StatusBadRequest)
		return
	}

	review, err := h.Service.CreateDraft(r.Context(), &models.Review{
		EmployeeID: employeeID,
		ReviewerID: reviewerID,
		Period:     req.Period,
		Rating:     req.Rating,
		Summary:    req.Summary,
	})
	if err != nil {
		logger.Log.Errorf("Failed to create review: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(review)
}

// PATCH /reviews/{id}
func (h *ReviewHandler) UpdateReviewHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	reviewerID, _ := primitive.ObjectIDFromHex(claims.UserID)

	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid review ID", http.StatusBadRequest)
		return
	}

	var patch map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.Service.UpdateDraft(r.Context(), id, reviewerID, patch); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"message": "Review updated"})
}

// POST /reviews/{id}/submit
func (h *ReviewHandler) SubmitReviewHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	reviewerID, _ := primitive.ObjectIDFromHex(claims.UserID)

	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid review ID", http.StatusBadRequest)
		return
	}

	if err := h.Service.SubmitReview(r.Context(), id, reviewerID); err != nil {
		logger.Log.Errorf("Failed to submit review: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"message": "Review submitted"})
}

// GET /reviews/{id}
func (h *ReviewHandler) GetReviewHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid review ID", http.StatusBadRequest)
		return
	}

	review, err := h.Service.GetReview(r.Context(), id)
	if err != nil {
		http.Error(w, "Review not found", http.StatusNotFound)
		return
	}

	// Reviews are visible to their subject, their author and HR.
	if claims.UserID != review.EmployeeID.Hex() && claims.UserID != review.ReviewerID.Hex() && claims.Role != "hr" {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	json.NewEncoder(w).Encode(review)
}

// GET /reviews?authored=true
func (h *ReviewHandler) GetMyReviewsHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	userID, _ := primitive.ObjectIDFromHex(claims.UserID)

	var (
		reviews []models.Review
		err     error
	)
	if r.URL.Query().Get("authored") == "true" {
		reviews, err = h.Service.GetReviewsByReviewer(r.Context(), userID)
	} else {
		reviews, err = h.Service.GetReviewsForEmployee(r.Context(), userID)
	}
	if err != nil {
		logger.Log.Errorf("Failed to fetch reviews: %v", err)
		http.Error(w, "Failed to fetch reviews", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(reviews)
}
