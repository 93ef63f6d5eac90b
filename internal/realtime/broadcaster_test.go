package realtime

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fielddispatch/internal/models"
	"fielddispatch/internal/services"
)

type ledgerWrite struct {
	recipients []int64
	typ        models.NotificationType
	priority   models.NotificationPriority
	title      string
	message    string
}

type fakeLedger struct {
	mu     sync.Mutex
	writes []ledgerWrite
}

func (l *fakeLedger) CreateForEvent(ctx context.Context, recipientIDs []int64, typ models.NotificationType,
	priority models.NotificationPriority, title, message string, payload map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writes = append(l.writes, ledgerWrite{
		recipients: append([]int64(nil), recipientIDs...),
		typ:        typ,
		priority:   priority,
		title:      title,
		message:    message,
	})
	return nil
}

func newTestBroadcaster() (*Broadcaster, *Hub, *fakeLedger) {
	hub := NewHub()
	ledger := &fakeLedger{}
	b := NewBroadcaster(hub, ledger, services.SkillsMatchTaskTypes)
	return b, hub, ledger
}

func deliveryTask(id int64, assignees ...int64) *models.Task {
	if assignees == nil {
		assignees = []int64{}
	}
	return &models.Task{
		ID:          id,
		OrderRef:    "BH-2025-0007",
		Type:        models.TypeDelivery,
		Status:      models.StatusPending,
		AssigneeIDs: assignees,
	}
}

func TestBroadcastToTargetPersists(t *testing.T) {
	b, hub, ledger := newTestBroadcaster()
	conn := &fakeConn{}
	hub.Register(1, conn, nil)

	target := int64(1)
	b.BroadcastEvent(context.Background(), EventTaskUpdated, map[string]any{"task_id": int64(7)},
		Targeting{TargetContractor: &target},
		&Notice{Type: models.NotificationTask, Priority: models.PriorityNormal, Title: "Task updated", Message: "status changed"})

	assert.Equal(t, []string{EventTaskUpdated}, conn.eventNames())
	require.Len(t, ledger.writes, 1)
	assert.Equal(t, []int64{1}, ledger.writes[0].recipients)
}

func TestBroadcastToOfflineTargetStillPersists(t *testing.T) {
	b, _, ledger := newTestBroadcaster()

	target := int64(42) // not connected
	b.BroadcastEvent(context.Background(), EventTaskAssigned, map[string]any{"task_id": int64(7)},
		Targeting{TargetContractor: &target},
		&Notice{Type: models.NotificationTask, Priority: models.PriorityHigh, Title: "Task assigned", Message: "yours"})

	// The ledger write is exactly what lets the offline contractor catch up.
	require.Len(t, ledger.writes, 1)
	assert.Equal(t, []int64{42}, ledger.writes[0].recipients)
}

func TestGlobalBroadcastSkipsPersistence(t *testing.T) {
	b, hub, ledger := newTestBroadcaster()
	a, c := &fakeConn{}, &fakeConn{}
	hub.Register(1, a, nil)
	hub.Register(2, c, nil)

	b.SendSystem(context.Background(), "Maintenance window", "back at 02:00", nil)

	assert.Equal(t, []string{EventSystem}, a.eventNames())
	assert.Equal(t, []string{EventSystem}, c.eventNames())
	assert.Empty(t, ledger.writes)
}

func TestTaskClaimedDualEmission(t *testing.T) {
	b, hub, ledger := newTestBroadcaster()
	claimant, rival, bystander := &fakeConn{}, &fakeConn{}, &fakeConn{}
	hub.Register(1, claimant, nil)
	hub.Register(2, rival, nil)
	hub.Register(3, bystander, nil)

	task := deliveryTask(7, 1)
	b.TaskClaimed(context.Background(), task, 1)

	// Claimant sees task:assigned only; everyone else sees task:claimed.
	assert.Equal(t, []string{EventTaskAssigned}, claimant.eventNames())
	assert.Equal(t, []string{EventTaskClaimed}, rival.eventNames())
	assert.Equal(t, []string{EventTaskClaimed}, bystander.eventNames())

	// Only the claimant's confirmation is persisted; the exclude broadcast
	// has no resolvable recipient list.
	require.Len(t, ledger.writes, 1)
	assert.Equal(t, []int64{1}, ledger.writes[0].recipients)
	assert.Equal(t, "Task claimed successfully", ledger.writes[0].title)
}

func TestTaskCreatedTargetsLocationAndSkills(t *testing.T) {
	b, hub, ledger := newTestBroadcaster()
	nearMatch, nearNoSkill, farMatch := &fakeConn{}, &fakeConn{}, &fakeConn{}
	hub.Register(1, nearMatch, []string{"delivery"})
	hub.Register(2, nearNoSkill, []string{"plumbing"})
	hub.Register(3, farMatch, []string{"delivery"})
	hub.UpdatePosition(1, 40.01, -74.00)
	hub.UpdatePosition(2, 40.01, -74.00)
	hub.UpdatePosition(3, 45.00, -74.00)

	lat, lng := 40.00, -74.00
	task := deliveryTask(7)
	task.Lat = &lat
	task.Lng = &lng
	b.TaskCreated(context.Background(), task, 50)

	assert.Equal(t, []string{EventTaskNew}, nearMatch.eventNames())
	assert.Empty(t, nearNoSkill.eventNames())
	assert.Empty(t, farMatch.eventNames())

	require.Len(t, ledger.writes, 1)
	assert.Equal(t, []int64{1}, ledger.writes[0].recipients)
}

func TestTaskCreatedWithoutCoordinatesTargetsSkills(t *testing.T) {
	b, hub, ledger := newTestBroadcaster()
	match, noMatch := &fakeConn{}, &fakeConn{}
	hub.Register(1, match, []string{"delivery"})
	hub.Register(2, noMatch, []string{"plumbing"})

	b.TaskCreated(context.Background(), deliveryTask(7), 50)

	assert.Equal(t, []string{EventTaskNew}, match.eventNames())
	assert.Empty(t, noMatch.eventNames())
	require.Len(t, ledger.writes, 1)
}

func TestTaskCreatedReachesGeneralist(t *testing.T) {
	// A maintenance generalist may claim a delivery task, so targeting must
	// tell them it exists and leave a durable record.
	b, hub, ledger := newTestBroadcaster()
	generalist := &fakeConn{}
	hub.Register(1, generalist, []string{"maintenance"})

	b.TaskCreated(context.Background(), deliveryTask(7), 50)

	assert.Equal(t, []string{EventTaskNew}, generalist.eventNames())
	require.Len(t, ledger.writes, 1)
	assert.Equal(t, []int64{1}, ledger.writes[0].recipients)
}

func TestTaskCreatedReachesCrossTypeSkills(t *testing.T) {
	// Setup crews may claim delivery tasks under the cross-type allowances.
	b, hub, ledger := newTestBroadcaster()
	conn := &fakeConn{}
	hub.Register(1, conn, []string{"setup"})

	b.TaskCreated(context.Background(), deliveryTask(7), 50)

	assert.Equal(t, []string{EventTaskNew}, conn.eventNames())
	require.Len(t, ledger.writes, 1)
}

func TestTaskCancelledNotifiesEachContractorIndividually(t *testing.T) {
	b, hub, ledger := newTestBroadcaster()
	first, second := &fakeConn{}, &fakeConn{}
	hub.Register(10, first, nil)
	hub.Register(11, second, nil)

	task := deliveryTask(7, 10, 11)
	task.Status = models.StatusCancelled
	b.TaskCancelled(context.Background(), task, "customer no-show")

	assert.Equal(t, []string{EventTaskCancelled}, first.eventNames())
	assert.Equal(t, []string{EventTaskCancelled}, second.eventNames())

	// One ledger write per affected contractor, each carrying the reason.
	require.Len(t, ledger.writes, 2)
	for _, w := range ledger.writes {
		assert.Len(t, w.recipients, 1)
		assert.Equal(t, models.PriorityHigh, w.priority)
		assert.Contains(t, w.message, "customer no-show")
	}
}

func TestStatusChangedPriorities(t *testing.T) {
	b, _, ledger := newTestBroadcaster()
	ctx := context.Background()

	task := deliveryTask(7, 1)
	task.Status = models.StatusInProgress
	b.TaskStatusChanged(ctx, task, 1)

	task.Status = models.StatusCompleted
	b.TaskStatusChanged(ctx, task, 1)

	require.Len(t, ledger.writes, 2)
	assert.Equal(t, models.PriorityNormal, ledger.writes[0].priority)
	assert.Equal(t, "Task started", ledger.writes[0].title)
	assert.Equal(t, models.PriorityHigh, ledger.writes[1].priority)
	assert.Equal(t, "Task completed", ledger.writes[1].title)
}

func TestSendPersonal(t *testing.T) {
	b, hub, ledger := newTestBroadcaster()
	conn := &fakeConn{}
	hub.Register(5, conn, nil)

	b.SendPersonal(context.Background(), 5, models.PriorityLow, "Welcome", "Profile approved", nil)

	assert.Equal(t, []string{EventPersonal}, conn.eventNames())
	require.Len(t, ledger.writes, 1)
	assert.Equal(t, models.NotificationPersonal, ledger.writes[0].typ)
}
