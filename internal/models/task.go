// internal/models/task.go
package models

import "time"

// TaskStatus defines the possible statuses for a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusAssigned   TaskStatus = "assigned"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusCancelled  TaskStatus = "cancelled"
)

// IsValid reports whether s is one of the known task statuses.
func (s TaskStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed from s.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type TaskType string

const (
	TypeDelivery    TaskType = "delivery"
	TypeSetup       TaskType = "setup"
	TypePickup      TaskType = "pickup"
	TypeMaintenance TaskType = "maintenance"
)

// TaskTypes lists every known task type, used when mapping contractor
// skills onto the set of task types they may work.
var TaskTypes = []TaskType{TypeDelivery, TypeSetup, TypePickup, TypeMaintenance}

// MaxCompletionPhotos bounds the photo references accepted on completion.
const MaxCompletionPhotos = 5

// Task represents a unit of field work dispatched to contractors.
type Task struct {
	ID       int64    `json:"id"`
	OrderRef string   `json:"order_ref"`
	Type     TaskType `json:"type"`
	Priority int      `json:"priority"`

	Status TaskStatus `json:"status"`

	// AssigneeIDs is the full assignment set; AssignedTo mirrors the first
	// assignee for older clients that only understand a single field.
	AssigneeIDs []int64 `json:"assignee_ids"`
	AssignedTo  *int64  `json:"assigned_to,omitempty"`

	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
	Address string   `json:"address,omitempty"`

	ScheduledAt time.Time `json:"scheduled_at"`

	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CompletionNotes string     `json:"completion_notes,omitempty"`
	Photos          []string   `json:"photos,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasAssignee reports whether contractorID is in the assignment set or the
// legacy single-assignee field.
func (t *Task) HasAssignee(contractorID int64) bool {
	for _, id := range t.AssigneeIDs {
		if id == contractorID {
			return true
		}
	}
	return t.AssignedTo != nil && *t.AssignedTo == contractorID
}

// AvailableFilter defines the parameters for listing claimable tasks.
type AvailableFilter struct {
	Lat      *float64
	Lng      *float64
	RadiusKm float64
	Types    []TaskType
	Page     int
	Limit    int
}

// AssignedFilter defines the parameters for listing a contractor's tasks.
type AssignedFilter struct {
	ContractorID int64
	Status       *TaskStatus
	Page         int
	Limit        int
}
