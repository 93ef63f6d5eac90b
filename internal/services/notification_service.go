package services

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"fielddispatch/internal/models"
	"fielddispatch/internal/repositories"
)

// undeliveredReplayCap bounds the backlog replayed to a reconnecting client.
const undeliveredReplayCap = 50

// NotificationInput is the content of a notification before it is addressed.
type NotificationInput struct {
	Type           models.NotificationType
	Priority       models.NotificationPriority
	Title          string
	Message        string
	Payload        map[string]any
	ExpiresInHours int
}

// NotificationService is the durable notification ledger: every write goes
// straight to persistence, delivery/read acks are idempotent, and old read
// records are swept out by Cleanup.
type NotificationService interface {
	Create(ctx context.Context, recipientID int64, in NotificationInput) (*models.Notification, error)
	CreateBulk(ctx context.Context, recipientIDs []int64, in NotificationInput) ([]*models.Notification, error)
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	ListUndelivered(ctx context.Context, recipientID int64, limit int) ([]models.Notification, error)
	MarkDelivered(ctx context.Context, id string, recipientID *int64) (bool, error)
	MarkRead(ctx context.Context, id string, recipientID int64) (bool, error)
	MarkManyRead(ctx context.Context, ids []string, recipientID int64) (int64, error)
	Stats(ctx context.Context, recipientID int64) (*models.NotificationStats, error)
	Cleanup(ctx context.Context, olderThanDays int) (int64, error)
	DeleteExpired(ctx context.Context) (int64, error)

	// CreateForEvent persists one copy per recipient for a broadcast event.
	CreateForEvent(ctx context.Context, recipientIDs []int64, typ models.NotificationType,
		priority models.NotificationPriority, title, message string, payload map[string]any) error
}

type notificationService struct {
	repo repositories.NotificationRepository
}

// NewNotificationService creates a new instance of NotificationService.
func NewNotificationService(repo repositories.NotificationRepository) NotificationService {
	return &notificationService{repo: repo}
}

func validateInput(in *NotificationInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Message = strings.TrimSpace(in.Message)
	if in.Title == "" {
		return Invalid("title is required")
	}
	if len(in.Title) > models.NotificationTitleMaxLen {
		return Invalid("title exceeds 200 characters")
	}
	if in.Message == "" {
		return Invalid("message is required")
	}
	if len(in.Message) > models.NotificationMessageMaxLen {
		return Invalid("message exceeds 1000 characters")
	}
	if !in.Type.IsValid() {
		return Invalid("invalid notification type")
	}
	if !in.Priority.IsValid() {
		return Invalid("invalid notification priority")
	}
	return nil
}

func buildNotification(recipientID int64, in NotificationInput, now time.Time) *models.Notification {
	n := &models.Notification{
		ID:          uuid.NewString(),
		RecipientID: recipientID,
		Type:        in.Type,
		Priority:    in.Priority,
		Title:       in.Title,
		Message:     in.Message,
		Payload:     in.Payload,
		CreatedAt:   now,
	}
	if in.ExpiresInHours > 0 {
		exp := now.Add(time.Duration(in.ExpiresInHours) * time.Hour)
		n.ExpiresAt = &exp
	}
	return n
}

func (s *notificationService) Create(ctx context.Context, recipientID int64, in NotificationInput) (*models.Notification, error) {
	if err := validateInput(&in); err != nil {
		return nil, err
	}
	n := buildNotification(recipientID, in, time.Now())
	if err := s.repo.Store(ctx, n); err != nil {
		log.Printf("[notification][create][err] recipient=%d: %v", recipientID, err)
		return nil, Internal(err)
	}
	return n, nil
}

func (s *notificationService) CreateBulk(ctx context.Context, recipientIDs []int64, in NotificationInput) ([]*models.Notification, error) {
	if err := validateInput(&in); err != nil {
		return nil, err
	}
	if len(recipientIDs) == 0 {
		return nil, nil
	}
	now := time.Now()
	ns := make([]*models.Notification, 0, len(recipientIDs))
	for _, id := range recipientIDs {
		ns = append(ns, buildNotification(id, in, now))
	}
	if err := s.repo.StoreBatch(ctx, ns); err != nil {
		log.Printf("[notification][bulk][err] recipients=%d: %v", len(recipientIDs), err)
		return nil, Internal(err)
	}
	return ns, nil
}

func (s *notificationService) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = 20
	}
	ns, total, err := s.repo.Find(ctx, filter)
	if err != nil {
		log.Printf("[notification][list][err] %v", err)
		return nil, 0, Internal(err)
	}
	return ns, total, nil
}

func (s *notificationService) ListUndelivered(ctx context.Context, recipientID int64, limit int) ([]models.Notification, error) {
	if limit < 1 || limit > undeliveredReplayCap {
		limit = undeliveredReplayCap
	}
	ns, err := s.repo.FindUndelivered(ctx, recipientID, limit)
	if err != nil {
		log.Printf("[notification][undelivered][err] recipient=%d: %v", recipientID, err)
		return nil, Internal(err)
	}
	return ns, nil
}

func (s *notificationService) MarkDelivered(ctx context.Context, id string, recipientID *int64) (bool, error) {
	ok, err := s.repo.MarkDelivered(ctx, id, recipientID)
	if err != nil {
		log.Printf("[notification][delivered][err] id=%s: %v", id, err)
		return false, Internal(err)
	}
	return ok, nil
}

func (s *notificationService) MarkRead(ctx context.Context, id string, recipientID int64) (bool, error) {
	ok, err := s.repo.MarkRead(ctx, id, recipientID)
	if err != nil {
		log.Printf("[notification][read][err] id=%s: %v", id, err)
		return false, Internal(err)
	}
	return ok, nil
}

func (s *notificationService) MarkManyRead(ctx context.Context, ids []string, recipientID int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	count, err := s.repo.MarkManyRead(ctx, ids, recipientID)
	if err != nil {
		log.Printf("[notification][read-many][err] recipient=%d: %v", recipientID, err)
		return 0, Internal(err)
	}
	return count, nil
}

func (s *notificationService) Stats(ctx context.Context, recipientID int64) (*models.NotificationStats, error) {
	stats, err := s.repo.Stats(ctx, recipientID)
	if err != nil {
		log.Printf("[notification][stats][err] recipient=%d: %v", recipientID, err)
		return nil, Internal(err)
	}
	return stats, nil
}

// Cleanup removes read notifications older than the retention window. Unread
// notifications are never removed here regardless of age.
func (s *notificationService) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays < 1 {
		return 0, Invalid("retention window must be at least one day")
	}
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	deleted, err := s.repo.DeleteReadBefore(ctx, cutoff)
	if err != nil {
		log.Printf("[notification][cleanup][err] %v", err)
		return 0, Internal(err)
	}
	return deleted, nil
}

func (s *notificationService) DeleteExpired(ctx context.Context) (int64, error) {
	deleted, err := s.repo.DeleteExpired(ctx, time.Now())
	if err != nil {
		log.Printf("[notification][expire][err] %v", err)
		return 0, Internal(err)
	}
	return deleted, nil
}

func (s *notificationService) CreateForEvent(ctx context.Context, recipientIDs []int64, typ models.NotificationType,
	priority models.NotificationPriority, title, message string, payload map[string]any) error {
	in := NotificationInput{
		Type:     typ,
		Priority: priority,
		Title:    title,
		Message:  message,
		Payload:  payload,
	}
	if len(recipientIDs) == 1 {
		_, err := s.Create(ctx, recipientIDs[0], in)
		return err
	}
	_, err := s.CreateBulk(ctx, recipientIDs, in)
	return err
}
