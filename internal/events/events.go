package events

import "go.mongodb.org/mongo-driver/bson/primitive"

// Event is a domain occurrence published on the bus. Events are transient:
// they are never persisted, only translated into notifications.
type Event interface {
	Name() string
}

// ReviewSubmittedEvent fires when a reviewer submits a review; the reviewed
// employee is notified.
type ReviewSubmittedEvent struct {
	ReviewID     primitive.ObjectID
	EmployeeID   primitive.ObjectID
	ReviewerID   primitive.ObjectID
	ReviewerName string
	Period       string
}

func (ReviewSubmittedEvent) Name() string { return "review.submitted" }

// ReviewReceivedEvent fires alongside submission; the reviewer is notified
// that their review was recorded.
type ReviewReceivedEvent struct {
	ReviewID     primitive.ObjectID
	ReviewerID   primitive.ObjectID
	EmployeeID   primitive.ObjectID
	EmployeeName string
	Period       string
}

func (ReviewReceivedEvent) Name() string { return "review.received" }

// ManagerChangedEvent fires when an employee is moved under a new manager.
type ManagerChangedEvent struct {
	EmployeeID   primitive.ObjectID
	OldManagerID *primitive.ObjectID
	NewManagerID primitive.ObjectID
	EmployeeName string
	ManagerName  string
}

func (ManagerChangedEvent) Name() string { return "manager.changed" }

// NewDirectReportEvent fires for the manager gaining the report.
type NewDirectReportEvent struct {
	ManagerID    primitive.ObjectID
	EmployeeID   primitive.ObjectID
	EmployeeName string
}

func (NewDirectReportEvent) Name() string { return "manager.new_direct_report" }
