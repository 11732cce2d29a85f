package services

import (
	"context"
	"fmt"
	"regexp"

	"golang.org/x/crypto/bcrypt"

	"github.com/elevenetc/hris/internal/config"
	"github.com/elevenetc/hris/internal/events"
	"github.com/elevenetc/hris/internal/models"
	jwtutil "github.com/elevenetc/hris/pkg/jwt"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// EmployeeStore is the persistence contract the directory runs against. The
// Mongo implementation lives in internal/repository; tests substitute an
// in-memory one. CreateEmployee must preserve a pre-assigned id, since the
// materialized path is derived from it before insert.
type EmployeeStore interface {
	CreateEmployee(ctx context.Context, emp *models.Employee) (*models.Employee, error)
	GetEmployeeByID(ctx context.Context, id primitive.ObjectID) (*models.Employee, error)
	GetEmployeeByEmail(ctx context.Context, email string) (*models.Employee, error)
	UpdateEmployee(ctx context.Context, id primitive.ObjectID, update map[string]interface{}) error
	DeleteEmployee(ctx context.Context, id primitive.ObjectID) error
	GetDirectReports(ctx context.Context, managerID primitive.ObjectID) ([]models.Employee, error)
	GetSubtree(ctx context.Context, path string) ([]models.Employee, error)
	UpdatePath(ctx context.Context, id primitive.ObjectID, managerID *primitive.ObjectID, path string) error
}

// EmployeeService encapsulates the business logic for the employee
// directory and the reporting hierarchy.
type EmployeeService struct {
	repo EmployeeStore
	bus  *events.Bus
	cfg  *config.Config
}

func NewEmployeeService(repo EmployeeStore, bus *events.Bus, cfg *config.Config) *EmployeeService {
	return &EmployeeService{
		repo: repo,
		bus:  bus,
		cfg:  cfg,
	}
}

// RegisterEmployee creates a new employee account after hashing the
// password. A manager id places the employee in the org tree.
func (s *EmployeeService) RegisterEmployee(ctx context.Context, emp *models.Employee, password string) (*models.Employee, error) {
	if emp.Email == "" || emp.Name == "" || password == "" {
		return nil, fmt.Errorf("missing required employee fields")
	}
	if !emailRegex.MatchString(emp.Email) {
		return nil, fmt.Errorf("invalid email format")
	}

	existing, _ := s.repo.GetEmployeeByEmail(ctx, emp.Email)
	if existing != nil {
		return nil, fmt.Errorf("email already in use")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logrus.WithError(err).Error("Password hashing failed")
		return nil, fmt.Errorf("failed to hash password: %v", err)
	}
	emp.HashedPassword = string(hashed)

	if emp.Role == "" {
		emp.Role = "employee"
	}

	parentPath := ""
	if emp.ManagerID != nil {
		manager, err := s.repo.GetEmployeeByID(ctx, *emp.ManagerID)
		if err != nil {
			return nil, fmt.Errorf("manager not found")
		}
		parentPath = manager.Path
	}

	// The path needs the new id, so assign it before insert.
	emp.ID = primitive.NewObjectID()
	emp.Path = models.ChildPath(parentPath, emp.ID)

	created, err := s.repo.CreateEmployee(ctx, emp)
	if err != nil {
		return nil, fmt.Errorf("failed to register employee: %v", err)
	}

	if created.ManagerID != nil {
		s.bus.Publish(events.NewDirectReportEvent{
			ManagerID:    *created.ManagerID,
			EmployeeID:   created.ID,
			EmployeeName: created.Name,
		})
	}

	logrus.WithField("employee_id", created.ID.Hex()).Info("Employee registered")
	return created, nil
}

// Login verifies credentials and issues a JWT.
func (s *EmployeeService) Login(ctx context.Context, email, password string) (string, *models.Employee, error) {
	emp, err := s.repo.GetEmployeeByEmail(ctx, email)
	if err != nil {
		return "", nil, fmt.Errorf("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(emp.HashedPassword), []byte(password)); err != nil {
		return "", nil, fmt.Errorf("invalid credentials")
	}

	token, err := jwtutil.GenerateToken(emp.ID.Hex(), emp.Email, emp.Role, s.cfg.JWTSecret, s.cfg.JWTTTL)
	if err != nil {
		logrus.WithError(err).Error("Token generation failed")
		return "", nil, fmt.Errorf("failed to generate token: %v", err)
	}
	return token, emp, nil
}

// GetEmployee fetches one employee.
func (s *EmployeeService) GetEmployee(ctx context.Context, id primitive.ObjectID) (*models.Employee, error) {
	return s.repo.GetEmployeeByID(ctx, id)
}

// UpdateEmployee applies a partial update limited to mutable profile fields.
func (s *EmployeeService) UpdateEmployee(ctx context.Context, id primitive.ObjectID, patch map[string]interface{}) error {
	allowed := map[string]bool{"name": true, "title": true}
	filtered := map[string]interface{}{}
	for k, v := range patch {
		if allowed[k] {
			filtered[k] = v
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return s.repo.UpdateEmployee(ctx, id, filtered)
}

// DeleteEmployee removes an employee from the directory.
func (s *EmployeeService) DeleteEmployee(ctx context.Context, id primitive.ObjectID) error {
	return s.repo.DeleteEmployee(ctx, id)
}

// GetDirectReports lists the employees managed by the given manager.
func (s *EmployeeService) GetDirectReports(ctx context.Context, managerID primitive.ObjectID) ([]models.Employee, error) {
	return s.repo.GetDirectReports(ctx, managerID)
}

// GetSubtree lists the employee and every transitive report.
func (s *EmployeeService) GetSubtree(ctx context.Context, id primitive.ObjectID) ([]models.Employee, error) {
	emp, err := s.repo.GetEmployeeByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.repo.GetSubtree(ctx, emp.Path)
}

// ChangeManager moves an employee under a new manager, rewrites the
// materialized paths of the whole subtree and publishes the manager-change
// events. The new manager must not be inside the employee's own subtree.
func (s *EmployeeService) ChangeManager(ctx context.Context, employeeID, newManagerID primitive.ObjectID) error {
	if employeeID == newManagerID {
		return fmt.Errorf("employee cannot manage themselves")
	}

	emp, err := s.repo.GetEmployeeByID(ctx, employeeID)
	if err != nil {
		return fmt.Errorf("employee not found")
	}

	manager, err := s.repo.GetEmployeeByID(ctx, newManagerID)
	if err != nil {
		return fmt.Errorf("manager not found")
	}

	if models.PathContains(manager.Path, employeeID) {
		return fmt.Errorf("cannot move employee under their own report")
	}

	subtree, err := s.repo.GetSubtree(ctx, emp.Path)
	if err != nil {
		return fmt.Errorf("failed to load subtree: %v", err)
	}

	oldPath := emp.Path
	newPath := models.ChildPath(manager.Path, emp.ID)

	mgrID := manager.ID
	if err := s.repo.UpdatePath(ctx, emp.ID, &mgrID, newPath); err != nil {
		return err
	}

	// Rewrite descendant paths by swapping the prefix.
	for _, member := range subtree {
		if member.ID == emp.ID {
			continue
		}
		rewritten := newPath + member.Path[len(oldPath):]
		if err := s.repo.UpdatePath(ctx, member.ID, nil, rewritten); err != nil {
			logrus.WithError(err).WithField("employee_id", member.ID.Hex()).Error("Failed to rewrite subtree path")
		}
	}

	oldManagerID := emp.ManagerID
	s.bus.Publish(events.ManagerChangedEvent{
		EmployeeID:   emp.ID,
		OldManagerID: oldManagerID,
		NewManagerID: manager.ID,
		EmployeeName: emp.Name,
		ManagerName:  manager.Name,
	})
	s.bus.Publish(events.NewDirectReportEvent{
		ManagerID:    manager.ID,
		EmployeeID:   emp.ID,
		EmployeeName: emp.Name,
	})

	logrus.WithFields(logrus.Fields{
		"employee_id": emp.ID.Hex(),
		"manager_id":  manager.ID.Hex(),
	}).Info("Manager changed")
	return nil
}
