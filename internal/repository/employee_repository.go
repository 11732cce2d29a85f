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
)

// EmployeeRepository handles database operations for the employee directory
// and the materialized-path organization tree.
type EmployeeRepository struct {
	collection *mongo.Collection
}

func NewEmployeeRepository(db *mongo.Database) *EmployeeRepository {
	return &EmployeeRepository{
		collection: db.Collection("employees"),
	}
}

// CreateEmployee inserts a new employee. A pre-assigned id is preserved:
// the caller derives the materialized path from the id before insert, so
// overwriting it here would detach the path from the stored document.
func (r *EmployeeRepository) CreateEmployee(ctx context.Context, emp *models.Employee) (*models.Employee, error) {
	if emp.ID.IsZero() {
		emp.ID = primitive.NewObjectID()
	}
	emp.CreatedAt = time.Now()
	emp.UpdatedAt = emp.CreatedAt

	if _, err := r.collection.InsertOne(ctx, emp); err != nil {
		logger.Log.WithError(err).Error("Failed to insert employee")
		return nil, fmt.Errorf("failed to create employee: %v", err)
	}

	logger.Log.WithField("employee_id", emp.ID.Hex()).Info("Employee created")
	return emp, nil
}

// GetEmployeeByID fetches an employee by id.
func (r *EmployeeRepository) GetEmployeeByID(ctx context.Context, id primitive.ObjectID) (*models.Employee, error) {
	var emp models.Employee
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&emp); err != nil {
		return nil, err
	}
	return &emp, nil
}

// GetEmployeeByEmail fetches an employee by email.
func (r *EmployeeRepository) GetEmployeeByEmail(ctx context.Context, email string) (*models.Employee, error) {
	var emp models.Employee
	if err := r.collection.FindOne(ctx, bson.M{"email": email}).Decode(&emp); err != nil {
		return nil, err
	}
	return &emp, nil
}

// UpdateEmployee applies a partial update to an employee document.
func (r *EmployeeRepository) UpdateEmployee(ctx context.Context, id primitive.ObjectID, update map[string]interface{}) error {
	update["updated_at"] = time.Now()
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": update})
	if err != nil {
		logger.Log.WithError(err).WithField("employee_id", id.Hex()).Error("Failed to update employee")
		return fmt.Errorf("failed to update employee: %v", err)
	}
	return nil
}

// DeleteEmployee removes an employee.
func (r *EmployeeRepository) DeleteEmployee(ctx context.Context, id primitive.ObjectID) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete employee: %v", err)
	}
	return nil
}

// GetDirectReports returns employees directly managed by the given manager.
func (r *EmployeeRepository) GetDirectReports(ctx context.Context, managerID primitive.ObjectID) ([]models.Employee, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"manager_id": managerID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch direct reports: %v", err)
	}
	defer cursor.Close(ctx)

	var reports []models.Employee
	if err := cursor.All(ctx, &reports); err != nil {
		return nil, fmt.Errorf("failed to decode direct reports: %v", err)
	}
	return reports, nil
}

// GetSubtree returns the employee and all transitive reports via a path
// prefix match on the materialized path.
func (r *EmployeeRepository) GetSubtree(ctx context.Context, path string) ([]models.Employee, error) {
	filter := bson.M{"$or": []bson.M{
		{"path": path},
		{"path": bson.M{"$regex": "^" + path + "\\."}},
	}}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch subtree: %v", err)
	}
	defer cursor.Close(ctx)

	var employees []models.Employee
	if err := cursor.All(ctx, &employees); err != nil {
		return nil, fmt.Errorf("failed to decode subtree: %v", err)
	}
	return employees, nil
}

// UpdatePath rewrites an employee's manager and path in one update.
func (r *EmployeeRepository) UpdatePath(ctx context.Context, id primitive.ObjectID, managerID *primitive.ObjectID, path string) error {
	update := bson.M{"path": path, "updated_at": time.Now()}
	if managerID != nil {
		update["manager_id"] = *managerID
	}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": update})
	if err != nil {
		return fmt.Errorf("failed to update employee path: %v", err)
	}
	return nil
}
