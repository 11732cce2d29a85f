package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Employee is a member of the organization. Path is the dot-separated list
// of ancestor ids ending with the employee's own id; it materializes the
// reporting chain so subtree queries are a single prefix match.
type Employee struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Name           string              `bson:"name" json:"name"`
	Email          string              `bson:"email" json:"email"`
	HashedPassword string              `bson:"hashed_password" json:"-"`
	Title          string              `bson:"title" json:"title"`
	Role           string              `bson:"role" json:"role"` // "employee" or "hr"
	ManagerID      *primitive.ObjectID `bson:"manager_id,omitempty" json:"manager_id,omitempty"`
	Path           string              `bson:"path" json:"path"`
	CreatedAt      time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time           `bson:"updated_at" json:"updated_at"`
}

// ChildPath appends an employee id to a parent path.
func ChildPath(parentPath string, id primitive.ObjectID) string {
	if parentPath == "" {
		return id.Hex()
	}
	return parentPath + "." + id.Hex()
}

// PathContains reports whether the given id appears in the path, i.e. the
// id is the employee itself or one of its ancestors.
func PathContains(path string, id primitive.ObjectID) bool {
	for _, part := range strings.Split(path, ".") {
		if part == id.Hex() {
			return true
		}
	}
	return false
}
