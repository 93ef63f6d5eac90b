package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fielddispatch/internal/models"
)

// fakeTaskRepo mimics the persistence semantics the engine relies on,
// including the atomic conditional update behind ClaimPending.
type fakeTaskRepo struct {
	mu    sync.Mutex
	tasks map[int64]*models.Task
}

func newFakeTaskRepo(tasks ...*models.Task) *fakeTaskRepo {
	r := &fakeTaskRepo{tasks: make(map[int64]*models.Task)}
	for _, t := range tasks {
		r.tasks[t.ID] = t
	}
	return r
}

func (r *fakeTaskRepo) Store(ctx context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if task.ID == 0 {
		task.ID = int64(len(r.tasks) + 1)
	}
	r.tasks[task.ID] = task
	return nil
}

func (r *fakeTaskRepo) FindByID(ctx context.Context, id int64) (*models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	cp.AssigneeIDs = append([]int64(nil), t.AssigneeIDs...)
	return &cp, nil
}

func (r *fakeTaskRepo) FindAvailable(ctx context.Context, filter models.AvailableFilter) ([]models.Task, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Task
	for _, t := range r.tasks {
		if t.Status != models.StatusPending || len(t.AssigneeIDs) > 0 {
			continue
		}
		if len(filter.Types) > 0 && !containsType(filter.Types, t.Type) {
			continue
		}
		out = append(out, *t)
	}
	return out, len(out), nil
}

func (r *fakeTaskRepo) FindAssigned(ctx context.Context, filter models.AssignedFilter) ([]models.Task, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Task
	for _, t := range r.tasks {
		if t.HasAssignee(filter.ContractorID) {
			out = append(out, *t)
		}
	}
	return out, len(out), nil
}

func (r *fakeTaskRepo) ClaimPending(ctx context.Context, id, contractorID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.Status != models.StatusPending {
		return false, nil
	}
	for _, a := range t.AssigneeIDs {
		if a == contractorID {
			return false, nil
		}
	}
	t.Status = models.StatusAssigned
	t.AssigneeIDs = append(t.AssigneeIDs, contractorID)
	t.AssignedTo = &contractorID
	return true, nil
}

func (r *fakeTaskRepo) UpdateStatus(ctx context.Context, id int64, to models.TaskStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok {
		t.Status = to
	}
	return nil
}

func (r *fakeTaskRepo) Complete(ctx context.Context, id int64, notes string, photos []string, completedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tasks[id]; ok {
		t.Status = models.StatusCompleted
		t.CompletedAt = &completedAt
		t.CompletionNotes = notes
		t.Photos = photos
	}
	return nil
}

func containsType(types []models.TaskType, t models.TaskType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

type fakeContractorRepo struct {
	contractors map[int64]*models.Contractor
}

func (r *fakeContractorRepo) FindByID(ctx context.Context, id int64) (*models.Contractor, error) {
	return r.contractors[id], nil
}

// recordingEvents captures broadcaster invocations for assertions.
type recordingEvents struct {
	mu        sync.Mutex
	created   []int64
	radii     []float64
	claimed   []int64
	updated   []models.TaskStatus
	completed []int64
	cancelled []string
}

func (e *recordingEvents) TaskCreated(ctx context.Context, t *models.Task, radiusKm float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.created = append(e.created, t.ID)
	e.radii = append(e.radii, radiusKm)
}

func (e *recordingEvents) TaskClaimed(ctx context.Context, t *models.Task, claimantID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.claimed = append(e.claimed, claimantID)
}

func (e *recordingEvents) TaskStatusChanged(ctx context.Context, t *models.Task, actorID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updated = append(e.updated, t.Status)
}

func (e *recordingEvents) TaskCompleted(ctx context.Context, t *models.Task, actorID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completed = append(e.completed, actorID)
}

func (e *recordingEvents) TaskCancelled(ctx context.Context, t *models.Task, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelled = append(e.cancelled, reason)
}

func activeContractor(id int64, skills ...string) *models.Contractor {
	return &models.Contractor{ID: id, Skills: skills, IsActive: true, IsVerified: true}
}

func pendingTask(id int64, typ models.TaskType) *models.Task {
	return &models.Task{
		ID:          id,
		OrderRef:    "BH-2025-0001",
		Type:        typ,
		Status:      models.StatusPending,
		AssigneeIDs: []int64{},
		ScheduledAt: time.Now(),
	}
}

func newEngine(tasks *fakeTaskRepo, contractors map[int64]*models.Contractor) (TaskService, *recordingEvents) {
	events := &recordingEvents{}
	svc := NewTaskService(tasks, &fakeContractorRepo{contractors: contractors}, events, 0)
	return svc, events
}

func TestClaimSuccess(t *testing.T) {
	repo := newFakeTaskRepo(pendingTask(1, models.TypeDelivery))
	svc, events := newEngine(repo, map[int64]*models.Contractor{
		10: activeContractor(10, "delivery"),
	})

	task, err := svc.Claim(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, task.Status)
	assert.Equal(t, []int64{10}, task.AssigneeIDs)
	require.NotNil(t, task.AssignedTo)
	assert.Equal(t, int64(10), *task.AssignedTo)
	assert.Equal(t, []int64{10}, events.claimed)
}

func TestClaimSecondContractorLosesRace(t *testing.T) {
	repo := newFakeTaskRepo(pendingTask(1, models.TypeDelivery))
	svc, _ := newEngine(repo, map[int64]*models.Contractor{
		10: activeContractor(10, "delivery"),
		11: activeContractor(11, "delivery"),
	})

	_, err := svc.Claim(context.Background(), 1, 10)
	require.NoError(t, err)

	_, err = svc.Claim(context.Background(), 1, 11)
	require.Error(t, err)
	assert.Equal(t, CodeConflict, CodeOf(err))

	stored, _ := repo.FindByID(context.Background(), 1)
	assert.Equal(t, []int64{10}, stored.AssigneeIDs)
}

func TestClaimConcurrentSingleWinner(t *testing.T) {
	repo := newFakeTaskRepo(pendingTask(1, models.TypeDelivery))
	contractors := map[int64]*models.Contractor{}
	const n = 16
	for i := int64(1); i <= n; i++ {
		contractors[i] = activeContractor(i, "delivery")
	}
	svc, events := newEngine(repo, contractors)

	var wg sync.WaitGroup
	results := make([]error, n)
	for i := int64(0); i < n; i++ {
		wg.Add(1)
		go func(i int64) {
			defer wg.Done()
			_, results[i] = svc.Claim(context.Background(), 1, i+1)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		} else {
			assert.Equal(t, CodeConflict, CodeOf(err))
		}
	}
	assert.Equal(t, 1, wins)

	stored, _ := repo.FindByID(context.Background(), 1)
	assert.Len(t, stored.AssigneeIDs, 1)
	assert.Len(t, events.claimed, 1)
}

func TestClaimRejectsIneligibleContractor(t *testing.T) {
	inactive := activeContractor(20, "delivery")
	inactive.IsActive = false
	unverified := activeContractor(21, "delivery")
	unverified.IsVerified = false

	repo := newFakeTaskRepo(pendingTask(1, models.TypeDelivery))
	svc, _ := newEngine(repo, map[int64]*models.Contractor{
		20: inactive,
		21: unverified,
	})

	_, err := svc.Claim(context.Background(), 1, 99)
	assert.Equal(t, CodeNotFound, CodeOf(err))

	_, err = svc.Claim(context.Background(), 1, 20)
	assert.Equal(t, CodeForbidden, CodeOf(err))

	_, err = svc.Claim(context.Background(), 1, 21)
	assert.Equal(t, CodeForbidden, CodeOf(err))
}

func TestClaimSkillMismatch(t *testing.T) {
	repo := newFakeTaskRepo(pendingTask(1, models.TypeDelivery))
	svc, _ := newEngine(repo, map[int64]*models.Contractor{
		10: activeContractor(10, "plumbing"),
	})

	_, err := svc.Claim(context.Background(), 1, 10)
	require.Error(t, err)
	assert.Equal(t, CodeForbidden, CodeOf(err))
}

func TestClaimNoSkillsDeclaredBypass(t *testing.T) {
	repo := newFakeTaskRepo(pendingTask(1, models.TypeMaintenance))
	svc, _ := newEngine(repo, map[int64]*models.Contractor{
		10: activeContractor(10),
	})

	task, err := svc.Claim(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAssigned, task.Status)
}

func TestClaimNonPendingTask(t *testing.T) {
	task := pendingTask(1, models.TypeDelivery)
	task.Status = models.StatusAssigned
	task.AssigneeIDs = []int64{5}

	repo := newFakeTaskRepo(task)
	svc, _ := newEngine(repo, map[int64]*models.Contractor{
		10: activeContractor(10, "delivery"),
	})

	_, err := svc.Claim(context.Background(), 1, 10)
	assert.Equal(t, CodeConflict, CodeOf(err))
}

func TestUpdateStatusForwardOnly(t *testing.T) {
	task := pendingTask(1, models.TypeDelivery)
	task.Status = models.StatusAssigned
	task.AssigneeIDs = []int64{10}

	repo := newFakeTaskRepo(task)
	svc, events := newEngine(repo, map[int64]*models.Contractor{
		10: activeContractor(10, "delivery"),
	})
	ctx := context.Background()

	updated, err := svc.UpdateStatus(ctx, 1, 10, models.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, updated.Status)

	// Backward move rejected.
	_, err = svc.UpdateStatus(ctx, 1, 10, models.StatusAssigned)
	assert.Equal(t, CodeConflict, CodeOf(err))

	updated, err = svc.UpdateStatus(ctx, 1, 10, models.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, updated.Status)

	// Terminal state admits nothing.
	_, err = svc.UpdateStatus(ctx, 1, 10, models.StatusCancelled)
	assert.Equal(t, CodeConflict, CodeOf(err))

	assert.Equal(t, []models.TaskStatus{models.StatusInProgress, models.StatusCompleted}, events.updated)
}

func TestUpdateStatusRejectsNonAssignee(t *testing.T) {
	task := pendingTask(1, models.TypeDelivery)
	task.Status = models.StatusAssigned
	task.AssigneeIDs = []int64{10}

	repo := newFakeTaskRepo(task)
	svc, _ := newEngine(repo, map[int64]*models.Contractor{
		11: activeContractor(11, "delivery"),
	})

	_, err := svc.UpdateStatus(context.Background(), 1, 11, models.StatusInProgress)
	assert.Equal(t, CodeForbidden, CodeOf(err))
}

func TestUpdateStatusLegacyAssignedToField(t *testing.T) {
	ten := int64(10)
	task := pendingTask(1, models.TypeDelivery)
	task.Status = models.StatusAssigned
	task.AssignedTo = &ten

	repo := newFakeTaskRepo(task)
	svc, _ := newEngine(repo, map[int64]*models.Contractor{
		10: activeContractor(10, "delivery"),
	})

	_, err := svc.UpdateStatus(context.Background(), 1, 10, models.StatusInProgress)
	assert.NoError(t, err)
}

func TestUpdateStatusInvalidValue(t *testing.T) {
	repo := newFakeTaskRepo(pendingTask(1, models.TypeDelivery))
	svc, _ := newEngine(repo, nil)

	_, err := svc.UpdateStatus(context.Background(), 1, 10, models.TaskStatus("bogus"))
	assert.Equal(t, CodeInvalid, CodeOf(err))

	_, err = svc.UpdateStatus(context.Background(), 1, 10, models.StatusPending)
	assert.Equal(t, CodeInvalid, CodeOf(err))
}

func TestCompleteRequiresInProgress(t *testing.T) {
	task := pendingTask(1, models.TypeDelivery)
	task.Status = models.StatusAssigned
	task.AssigneeIDs = []int64{10}

	repo := newFakeTaskRepo(task)
	svc, _ := newEngine(repo, map[int64]*models.Contractor{
		10: activeContractor(10, "delivery"),
	})

	_, err := svc.Complete(context.Background(), 1, 10, "done", nil)
	assert.Equal(t, CodeConflict, CodeOf(err))
}

func TestCompleteTooManyPhotos(t *testing.T) {
	task := pendingTask(1, models.TypeDelivery)
	task.Status = models.StatusInProgress
	task.AssigneeIDs = []int64{10}

	repo := newFakeTaskRepo(task)
	svc, _ := newEngine(repo, map[int64]*models.Contractor{
		10: activeContractor(10, "delivery"),
	})

	photos := []string{"p1", "p2", "p3", "p4", "p5", "p6"}
	_, err := svc.Complete(context.Background(), 1, 10, "done", photos)
	require.Error(t, err)
	assert.Equal(t, CodeInvalid, CodeOf(err))

	stored, _ := repo.FindByID(context.Background(), 1)
	assert.Equal(t, models.StatusInProgress, stored.Status)
	assert.Empty(t, stored.Photos)
}

func TestCompleteSuccess(t *testing.T) {
	task := pendingTask(1, models.TypeDelivery)
	task.Status = models.StatusInProgress
	task.AssigneeIDs = []int64{10}

	repo := newFakeTaskRepo(task)
	svc, events := newEngine(repo, map[int64]*models.Contractor{
		10: activeContractor(10, "delivery"),
	})

	done, err := svc.Complete(context.Background(), 1, 10, "all set", []string{"p1", "p2"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, "all set", done.CompletionNotes)
	assert.Len(t, done.Photos, 2)
	assert.Equal(t, []int64{10}, events.completed)
}

func TestCancelNotifiesEachAssignee(t *testing.T) {
	task := pendingTask(1, models.TypeDelivery)
	task.Status = models.StatusAssigned
	task.AssigneeIDs = []int64{10, 11}

	repo := newFakeTaskRepo(task)
	svc, events := newEngine(repo, nil)

	cancelled, err := svc.Cancel(context.Background(), 1, "customer no-show")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Equal(t, []string{"customer no-show"}, events.cancelled)

	// Terminal: a second cancel is rejected.
	_, err = svc.Cancel(context.Background(), 1, "again")
	assert.Equal(t, CodeConflict, CodeOf(err))
}

func TestCancelRequiresReason(t *testing.T) {
	repo := newFakeTaskRepo(pendingTask(1, models.TypeDelivery))
	svc, _ := newEngine(repo, nil)

	_, err := svc.Cancel(context.Background(), 1, "")
	assert.Equal(t, CodeInvalid, CodeOf(err))
}

func TestGetByIDAccessCheck(t *testing.T) {
	assigned := pendingTask(2, models.TypeSetup)
	assigned.Status = models.StatusAssigned
	assigned.AssigneeIDs = []int64{10}

	repo := newFakeTaskRepo(pendingTask(1, models.TypeDelivery), assigned)
	svc, _ := newEngine(repo, nil)
	ctx := context.Background()

	// Pending tasks are visible to anyone.
	_, err := svc.GetByID(ctx, 1, 99)
	assert.NoError(t, err)

	// Assigned tasks only to their assignees.
	_, err = svc.GetByID(ctx, 2, 10)
	assert.NoError(t, err)
	_, err = svc.GetByID(ctx, 2, 99)
	assert.Equal(t, CodeForbidden, CodeOf(err))

	_, err = svc.GetByID(ctx, 42, 10)
	assert.Equal(t, CodeNotFound, CodeOf(err))
}

func TestCreateAnnouncesTask(t *testing.T) {
	repo := newFakeTaskRepo()
	svc, events := newEngine(repo, nil)

	task, err := svc.Create(context.Background(), &models.Task{
		OrderRef: "BH-2025-0042",
		Type:     models.TypeSetup,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, task.Status)
	assert.Equal(t, []int64{task.ID}, events.created)

	_, err = svc.Create(context.Background(), &models.Task{Type: models.TypeSetup})
	assert.Equal(t, CodeInvalid, CodeOf(err))
}

func TestCreateUsesConfiguredRadius(t *testing.T) {
	repo := newFakeTaskRepo()
	events := &recordingEvents{}
	svc := NewTaskService(repo, &fakeContractorRepo{}, events, 10)

	_, err := svc.Create(context.Background(), &models.Task{
		OrderRef: "BH-2025-0043",
		Type:     models.TypeDelivery,
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{10}, events.radii)
}

func TestCreateRadiusFallback(t *testing.T) {
	repo := newFakeTaskRepo()
	svc, events := newEngine(repo, nil)

	_, err := svc.Create(context.Background(), &models.Task{
		OrderRef: "BH-2025-0044",
		Type:     models.TypeDelivery,
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{defaultRadiusKm}, events.radii)
}
