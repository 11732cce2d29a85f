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

type EmployeeHandler struct {
	Service *services.EmployeeService
}

func NewEmployeeHandler(service *services.EmployeeService) *EmployeeHandler {
	return &EmployeeHandler{Service: service}
}

type registerRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Title     string `json:"title"`
	Role      string `json:"role"`
	ManagerID string `json:"manager_id"`
}

// POST /employees/register
func (h *EmployeeHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	emp := &models.Employee{
		Name:  req.Name,
		Email: req.Email,
		Title: req.Title,
		Role:  req.Role,
	}
	if req.ManagerID != "" {
		managerID, err := primitive.ObjectIDFromHex(req.ManagerID)
		if err != nil {
			http.Error(w, "Invalid manager ID", http.StatusBadRequest)
			return
		}
		emp.ManagerID = &managerID
	}

	created, err := h.Service.RegisterEmployee(r.Context(), emp, req.Password)
	if err != nil {
		logger.Log.Errorf("Failed to register employee: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

// POST /employees/login
func (h *EmployeeHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	token, emp, err := h.Service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"token":    token,
		"employee": emp,
	})
}

// GET /employees/{id}
func (h *EmployeeHandler) GetEmployeeHandler(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid employee ID", http.StatusBadRequest)
		return
	}

	emp, err := h.Service.GetEmployee(r.Context(), id)
	if err != nil {
		http.Error(w, "Employee not found", http.StatusNotFound)
		return
	}

	json.NewEncoder(w).Encode(emp)
}

// PATCH /employees/{id}
func (h *EmployeeHandler) UpdateEmployeeHandler(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid employee ID", http.StatusBadRequest)
		return
	}

	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil || (claims.UserID != id.Hex() && claims.Role != "hr") {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var patch map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.Service.UpdateEmployee(r.Context(), id, patch); err != nil {
		logger.Log.Errorf("Failed to update employee: %v", err)
		http.Error(w, "Failed to update employee", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"message": "Employee updated"})
}

// DELETE /employees/{id}
func (h *EmployeeHandler) DeleteEmployeeHandler(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid employee ID", http.StatusBadRequest)
		return
	}

	if err := h.Service.DeleteEmployee(r.Context(), id); err != nil {
		logger.Log.Errorf("Failed to delete employee: %v", err)
		http.Error(w, "Failed to delete employee", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"message": "Employee deleted"})
}

// GET /employees/{id}/reports
func (h *EmployeeHandler) GetDirectReportsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid employee ID", http.StatusBadRequest)
		return
	}

	reports, err := h.Service.GetDirectReports(r.Context(), id)
	if err != nil {
		logger.Log.Errorf("Failed to fetch direct reports: %v", err)
		http.Error(w, "Failed to fetch direct reports", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(reports)
}

// GET /employees/{id}/subtree
func (h *EmployeeHandler) GetSubtreeHandler(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid employee ID", http.StatusBadRequest)
		return
	}

	subtree, err := h.Service.GetSubtree(r.Context(), id)
	if err != nil {
		logger.Log.Errorf("Failed to fetch subtree: %v", err)
		http.Error(w, "Failed to fetch subtree", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(subtree)
}

// PUT /employees/{id}/manager
func (h *EmployeeHandler) ChangeManagerHandler(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid employee ID", http.StatusBadRequest)
		return
	}

	var req struct {
		ManagerID string `json:"manager_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	managerID, err := primitive.ObjectIDFromHex(req.ManagerID)
	if err != nil {
		http.Error(w, "Invalid manager ID", http.StatusBadRequest)
		return
	}

	if err := h.Service.ChangeManager(r.Context(), id, managerID); err != nil {
		logger.Log.Errorf("Failed to change manager: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"message": "Manager changed"})
}
