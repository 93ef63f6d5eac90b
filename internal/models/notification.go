// internal/models/notification.go
package models

import "time"

type NotificationType string

const (
	NotificationTask     NotificationType = "task"
	NotificationSystem   NotificationType = "system"
	NotificationPersonal NotificationType = "personal"
)

func (t NotificationType) IsValid() bool {
	switch t {
	case NotificationTask, NotificationSystem, NotificationPersonal:
		return true
	}
	return false
}

type NotificationPriority string

const (
	PriorityCritical NotificationPriority = "critical"
	PriorityHigh     NotificationPriority = "high"
	PriorityNormal   NotificationPriority = "normal"
	PriorityLow      NotificationPriority = "low"
)

func (p NotificationPriority) IsValid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// Content bounds enforced on create.
const (
	NotificationTitleMaxLen   = 200
	NotificationMessageMaxLen = 1000
)

// Notification is a durable per-recipient record of an event, backing up
// realtime delivery for contractors who were offline when it fired.
type Notification struct {
	ID          string               `json:"id"`
	RecipientID int64                `json:"recipient_id"`
	Type        NotificationType     `json:"type"`
	Priority    NotificationPriority `json:"priority"`

	Title   string         `json:"title"`
	Message string         `json:"message"`
	Payload map[string]any `json:"payload,omitempty"`

	Delivered   bool       `json:"delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	Read        bool       `json:"read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// NotificationFilter defines the available parameters for listing notifications.
type NotificationFilter struct {
	RecipientID *int64
	Type        *NotificationType
	Priority    *NotificationPriority
	Read        *bool
	Delivered   *bool
	Page        int
	Limit       int
}

// NotificationStats is the read-only aggregate exposed per recipient.
type NotificationStats struct {
	Total       int            `json:"total"`
	Unread      int            `json:"unread"`
	Undelivered int            `json:"undelivered"`
	ByType      map[string]int `json:"by_type"`
	ByPriority  map[string]int `json:"by_priority"`
}
