package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"fielddispatch/internal/models"
	"fielddispatch/internal/repositories"
)

// defaultRadiusKm is the fallback search radius when neither config nor the
// caller give one.
const defaultRadiusKm = 50

// Allowed forward transitions. Completed and cancelled are terminal; nothing
// ever moves backward.
var taskTransitions = map[models.TaskStatus]map[models.TaskStatus]bool{
	models.StatusPending:    {models.StatusAssigned: true},
	models.StatusAssigned:   {models.StatusInProgress: true, models.StatusCancelled: true},
	models.StatusInProgress: {models.StatusCompleted: true, models.StatusCancelled: true},
	models.StatusCompleted:  {},
	models.StatusCancelled:  {},
}

func canTransition(from, to models.TaskStatus) bool {
	nexts, ok := taskTransitions[from]
	if !ok {
		return false
	}
	return nexts[to]
}

// TaskEvents is the broadcast surface the engine fires after each committed
// transition; the realtime broadcaster implements it. Calls are best-effort
// and must never fail the transition that has already been persisted.
type TaskEvents interface {
	TaskCreated(ctx context.Context, t *models.Task, radiusKm float64)
	TaskClaimed(ctx context.Context, t *models.Task, claimantID int64)
	TaskStatusChanged(ctx context.Context, t *models.Task, actorID int64)
	TaskCompleted(ctx context.Context, t *models.Task, actorID int64)
	TaskCancelled(ctx context.Context, t *models.Task, reason string)
}

// TaskService owns the task lifecycle state machine and the atomic claim.
type TaskService interface {
	Create(ctx context.Context, task *models.Task) (*models.Task, error)
	GetByID(ctx context.Context, id, contractorID int64) (*models.Task, error)
	ListAvailable(ctx context.Context, contractorID int64, filter AvailableQuery) ([]models.Task, int, error)
	ListMine(ctx context.Context, contractorID int64, status *models.TaskStatus, page, limit int) ([]models.Task, int, error)
	Claim(ctx context.Context, taskID, contractorID int64) (*models.Task, error)
	UpdateStatus(ctx context.Context, taskID, contractorID int64, to models.TaskStatus) (*models.Task, error)
	Complete(ctx context.Context, taskID, contractorID int64, notes string, photos []string) (*models.Task, error)
	Cancel(ctx context.Context, taskID int64, reason string) (*models.Task, error)
}

// AvailableQuery are the caller-facing filters for listing claimable tasks.
type AvailableQuery struct {
	Lat      *float64
	Lng      *float64
	RadiusKm float64
	Skills   []string
	Page     int
	Limit    int
}

type taskService struct {
	tasks       repositories.TaskRepository
	contractors repositories.ContractorRepository
	events      TaskEvents
	radiusKm    float64
}

// NewTaskService creates a new instance of TaskService. radiusKm is the
// search radius used when a caller gives none; zero falls back to the
// built-in default.
func NewTaskService(tasks repositories.TaskRepository, contractors repositories.ContractorRepository, events TaskEvents, radiusKm float64) TaskService {
	if radiusKm <= 0 {
		radiusKm = defaultRadiusKm
	}
	return &taskService{tasks: tasks, contractors: contractors, events: events, radiusKm: radiusKm}
}

// Create is the intake hook: it stores a pending task and announces it to
// nearby contractors with a matching skill.
func (s *taskService) Create(ctx context.Context, task *models.Task) (*models.Task, error) {
	if task.OrderRef == "" {
		return nil, Invalid("order_ref is required")
	}
	if task.Type == "" {
		return nil, Invalid("task type is required")
	}
	task.Status = models.StatusPending
	if task.AssigneeIDs == nil {
		task.AssigneeIDs = []int64{}
	}
	if task.ScheduledAt.IsZero() {
		task.ScheduledAt = time.Now()
	}
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now

	if err := s.tasks.Store(ctx, task); err != nil {
		log.Printf("[task][create][err] order_ref=%s: %v", task.OrderRef, err)
		return nil, Internal(err)
	}
	log.Printf("[task][create][ok] id=%d order_ref=%s type=%s", task.ID, task.OrderRef, task.Type)

	s.events.TaskCreated(ctx, task, s.radiusKm)
	return task, nil
}

// GetByID returns a task when the contractor may see it: any pending task is
// visible, an assigned one only to its assignees.
func (s *taskService) GetByID(ctx context.Context, id, contractorID int64) (*models.Task, error) {
	task, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		log.Printf("[task][get][err] id=%d: %v", id, err)
		return nil, Internal(err)
	}
	if task == nil {
		return nil, NotFound("task not found")
	}
	if task.Status != models.StatusPending && !task.HasAssignee(contractorID) {
		return nil, Forbidden("task is assigned to another contractor")
	}
	return task, nil
}

func (s *taskService) ListAvailable(ctx context.Context, contractorID int64, q AvailableQuery) ([]models.Task, int, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.RadiusKm <= 0 {
		q.RadiusKm = s.radiusKm
	}

	skills := q.Skills
	if len(skills) == 0 {
		// Fall back to the requesting contractor's own profile skills.
		contractor, err := s.contractors.FindByID(ctx, contractorID)
		if err != nil {
			log.Printf("[task][available][err] contractor=%d: %v", contractorID, err)
			return nil, 0, Internal(err)
		}
		if contractor != nil {
			skills = contractor.Skills
		}
	}

	types := MatchingTaskTypes(skills)
	if len(skills) > 0 && len(types) == 0 {
		// Declared skills that match no task type: nothing to offer.
		return []models.Task{}, 0, nil
	}

	filter := models.AvailableFilter{
		Lat:      q.Lat,
		Lng:      q.Lng,
		RadiusKm: q.RadiusKm,
		Types:    types,
		Page:     q.Page,
		Limit:    q.Limit,
	}
	tasks, total, err := s.tasks.FindAvailable(ctx, filter)
	if err != nil {
		log.Printf("[task][available][err] contractor=%d: %v", contractorID, err)
		return nil, 0, Internal(err)
	}
	return tasks, total, nil
}

func (s *taskService) ListMine(ctx context.Context, contractorID int64, status *models.TaskStatus, page, limit int) ([]models.Task, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	tasks, total, err := s.tasks.FindAssigned(ctx, models.AssignedFilter{
		ContractorID: contractorID,
		Status:       status,
		Page:         page,
		Limit:        limit,
	})
	if err != nil {
		log.Printf("[task][mine][err] contractor=%d: %v", contractorID, err)
		return nil, 0, Internal(err)
	}
	return tasks, total, nil
}

// Claim assigns a pending task to the contractor. All pre-checks are cheap
// fail-fast reads; the only thing that prevents double assignment is the
// single conditional update in ClaimPending.
func (s *taskService) Claim(ctx context.Context, taskID, contractorID int64) (*models.Task, error) {
	contractor, err := s.contractors.FindByID(ctx, contractorID)
	if err != nil {
		log.Printf("[task][claim][err] contractor=%d: %v", contractorID, err)
		return nil, Internal(err)
	}
	if contractor == nil {
		return nil, NotFound("contractor not found")
	}
	if !contractor.IsActive {
		return nil, Forbidden("contractor account is inactive")
	}
	if !contractor.IsVerified {
		return nil, Forbidden("contractor account is not verified")
	}

	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		log.Printf("[task][claim][err] id=%d: %v", taskID, err)
		return nil, Internal(err)
	}
	if task == nil {
		return nil, NotFound("task not found")
	}
	if task.Status != models.StatusPending {
		return nil, Conflict("task is no longer available")
	}
	if task.HasAssignee(contractorID) {
		return nil, Conflict("task already claimed by this contractor")
	}
	if !SkillsMatchType(contractor.Skills, task.Type) {
		return nil, Forbidden(fmt.Sprintf("skills do not match task type %q", task.Type))
	}

	claimed, err := s.tasks.ClaimPending(ctx, taskID, contractorID)
	if err != nil {
		log.Printf("[task][claim][err] id=%d contractor=%d: %v", taskID, contractorID, err)
		return nil, Internal(err)
	}
	if !claimed {
		// A concurrent claim won the race between our read and the update.
		log.Printf("[task][claim][lost] id=%d contractor=%d", taskID, contractorID)
		return nil, Conflict("task already assigned or no longer available")
	}

	updated, err := s.tasks.FindByID(ctx, taskID)
	if err != nil || updated == nil {
		// The claim itself committed; reading it back is best-effort.
		log.Printf("[task][claim][warn] reload id=%d: %v", taskID, err)
		updated = task
		updated.Status = models.StatusAssigned
		updated.AssigneeIDs = append(updated.AssigneeIDs, contractorID)
		updated.AssignedTo = &contractorID
	}
	log.Printf("[task][claim][ok] id=%d contractor=%d", taskID, contractorID)

	s.events.TaskClaimed(ctx, updated, contractorID)
	return updated, nil
}

func (s *taskService) UpdateStatus(ctx context.Context, taskID, contractorID int64, to models.TaskStatus) (*models.Task, error) {
	if !to.IsValid() || to == models.StatusPending {
		return nil, Invalid("invalid status value")
	}

	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		log.Printf("[task][status][err] id=%d: %v", taskID, err)
		return nil, Internal(err)
	}
	if task == nil {
		return nil, NotFound("task not found")
	}
	if !task.HasAssignee(contractorID) {
		return nil, Forbidden("contractor is not assigned to this task")
	}
	if !canTransition(task.Status, to) {
		return nil, Conflict(fmt.Sprintf("cannot move task from %q to %q", task.Status, to))
	}

	if err := s.tasks.UpdateStatus(ctx, taskID, to); err != nil {
		log.Printf("[task][status][err] save id=%d: %v", taskID, err)
		return nil, Internal(err)
	}
	task.Status = to
	task.UpdatedAt = time.Now()
	log.Printf("[task][status][ok] id=%d to=%q by=%d", taskID, to, contractorID)

	s.events.TaskStatusChanged(ctx, task, contractorID)
	return task, nil
}

// Complete closes out a task that is exactly in progress; completion may not
// skip the in-progress step.
func (s *taskService) Complete(ctx context.Context, taskID, contractorID int64, notes string, photos []string) (*models.Task, error) {
	if len(photos) > models.MaxCompletionPhotos {
		return nil, Invalid("maximum 5 photos allowed")
	}

	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		log.Printf("[task][complete][err] id=%d: %v", taskID, err)
		return nil, Internal(err)
	}
	if task == nil {
		return nil, NotFound("task not found")
	}
	if !task.HasAssignee(contractorID) {
		return nil, Forbidden("contractor is not assigned to this task")
	}
	if task.Status != models.StatusInProgress {
		return nil, Conflict("task must be in progress to complete")
	}

	completedAt := time.Now()
	if err := s.tasks.Complete(ctx, taskID, notes, photos, completedAt); err != nil {
		log.Printf("[task][complete][err] save id=%d: %v", taskID, err)
		return nil, Internal(err)
	}
	task.Status = models.StatusCompleted
	task.CompletedAt = &completedAt
	task.CompletionNotes = notes
	task.Photos = photos
	task.UpdatedAt = completedAt
	log.Printf("[task][complete][ok] id=%d by=%d photos=%d", taskID, contractorID, len(photos))

	s.events.TaskCompleted(ctx, task, contractorID)
	return task, nil
}

// Cancel is driven by admin workflows outside this core; every affected
// contractor gets an individually phrased event and durable record.
func (s *taskService) Cancel(ctx context.Context, taskID int64, reason string) (*models.Task, error) {
	if reason == "" {
		return nil, Invalid("cancellation reason is required")
	}

	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		log.Printf("[task][cancel][err] id=%d: %v", taskID, err)
		return nil, Internal(err)
	}
	if task == nil {
		return nil, NotFound("task not found")
	}
	if !canTransition(task.Status, models.StatusCancelled) {
		return nil, Conflict(fmt.Sprintf("cannot cancel task in status %q", task.Status))
	}

	if err := s.tasks.UpdateStatus(ctx, taskID, models.StatusCancelled); err != nil {
		log.Printf("[task][cancel][err] save id=%d: %v", taskID, err)
		return nil, Internal(err)
	}
	task.Status = models.StatusCancelled
	task.UpdatedAt = time.Now()
	log.Printf("[task][cancel][ok] id=%d reason=%q", taskID, reason)

	s.events.TaskCancelled(ctx, task, reason)
	return task, nil
}
