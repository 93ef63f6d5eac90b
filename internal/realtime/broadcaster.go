package realtime

import (
	"context"
	"fmt"
	"log"
	"time"

	"fielddispatch/internal/models"
)

// Event names pushed over the live channel.
const (
	EventTaskNew       = "task:new"
	EventTaskAssigned  = "task:assigned"
	EventTaskClaimed   = "task:claimed"
	EventTaskUpdated   = "task:updated"
	EventTaskCompleted = "task:completed"
	EventTaskCancelled = "task:cancelled"
	EventPersonal      = "notification:personal"
	EventSystem        = "notification:system"
)

// Targeting selects the recipients of a broadcast. Resolution order:
// TargetContractor, then Location (optionally narrowed by Skills), then
// Skills, else everyone except ExcludeContractor.
type Targeting struct {
	TargetContractor  *int64
	ExcludeContractor *int64
	Location          *LocationTarget
	Skills            []string
}

type LocationTarget struct {
	Lat      float64
	Lng      float64
	RadiusKm float64
}

// Notice is the durable record persisted alongside a targeted broadcast so
// offline contractors can catch up through the ledger.
type Notice struct {
	Type     models.NotificationType
	Priority models.NotificationPriority
	Title    string
	Message  string
}

// NotificationLedger is the slice of the ledger the broadcaster writes
// through; the notification service satisfies it.
type NotificationLedger interface {
	CreateForEvent(ctx context.Context, recipientIDs []int64, typ models.NotificationType,
		priority models.NotificationPriority, title, message string, payload map[string]any) error
}

// Broadcaster fans task lifecycle events out to live connections and backs
// each targeted delivery with a ledger write. Realtime delivery is a
// best-effort side channel: send and persist failures are logged, never
// propagated, and never roll back the state transition that triggered them.
type Broadcaster struct {
	hub        *Hub
	ledger     NotificationLedger
	skillMatch func(have, want []string) bool
}

func NewBroadcaster(hub *Hub, ledger NotificationLedger, skillMatch func(have, want []string) bool) *Broadcaster {
	return &Broadcaster{hub: hub, ledger: ledger, skillMatch: skillMatch}
}

// BroadcastEvent resolves recipients from targeting, pushes the event, and,
// when a concrete recipient list was resolved and a notice is given,
// persists one notification per recipient. Global broadcasts (including
// exclude-one) have no resolvable recipient list and stay realtime-only.
func (b *Broadcaster) BroadcastEvent(ctx context.Context, event string, payload map[string]any, targeting Targeting, notice *Notice) {
	ev := Event{Event: event, Data: payload, Timestamp: time.Now()}

	var recipients []int64
	switch {
	case targeting.TargetContractor != nil:
		recipients = []int64{*targeting.TargetContractor}
	case targeting.Location != nil:
		recipients = b.hub.ContractorsInLocation(
			targeting.Location.Lat, targeting.Location.Lng, targeting.Location.RadiusKm)
		if len(targeting.Skills) > 0 {
			recipients = b.filterBySkills(recipients, targeting.Skills)
		}
	case len(targeting.Skills) > 0:
		recipients = b.hub.ContractorsWithSkills(targeting.Skills, b.skillMatch)
	default:
		for _, err := range b.hub.BroadcastAll(ev, targeting.ExcludeContractor) {
			log.Printf("[broadcast][%s][send][err] %v", event, err)
		}
		return
	}

	for _, id := range recipients {
		if _, err := b.hub.Send(id, ev); err != nil {
			log.Printf("[broadcast][%s][send][err] contractor=%d: %v", event, id, err)
		}
	}

	if notice == nil || len(recipients) == 0 {
		return
	}
	if err := b.ledger.CreateForEvent(ctx, recipients, notice.Type, notice.Priority,
		notice.Title, notice.Message, payload); err != nil {
		log.Printf("[broadcast][%s][persist][err] recipients=%d: %v", event, len(recipients), err)
	}
}

func (b *Broadcaster) filterBySkills(ids []int64, want []string) []int64 {
	var out []int64
	for _, id := range ids {
		have, ok := b.hub.Skills(id)
		if ok && b.skillMatch(have, want) {
			out = append(out, id)
		}
	}
	return out
}

func taskPayload(t *models.Task) map[string]any {
	p := map[string]any{
		"task_id":      t.ID,
		"order_ref":    t.OrderRef,
		"type":         t.Type,
		"priority":     t.Priority,
		"status":       t.Status,
		"scheduled_at": t.ScheduledAt,
	}
	if t.Address != "" {
		p["address"] = t.Address
	}
	if t.Lat != nil && t.Lng != nil {
		p["lat"] = *t.Lat
		p["lng"] = *t.Lng
	}
	return p
}

// TaskCreated announces a fresh pending task to contractors near it holding a
// matching skill; each of them also gets a ledger record.
func (b *Broadcaster) TaskCreated(ctx context.Context, t *models.Task, radiusKm float64) {
	targeting := Targeting{Skills: []string{string(t.Type)}}
	if t.Lat != nil && t.Lng != nil {
		targeting.Location = &LocationTarget{Lat: *t.Lat, Lng: *t.Lng, RadiusKm: radiusKm}
	}
	b.BroadcastEvent(ctx, EventTaskNew, taskPayload(t), targeting, &Notice{
		Type:     models.NotificationTask,
		Priority: models.PriorityNormal,
		Title:    "New task available",
		Message:  fmt.Sprintf("A new %s task (%s) is available near you", t.Type, t.OrderRef),
	})
}

// TaskClaimed does the dual emission for a successful claim: the claimant
// gets task:assigned with a persisted confirmation, everyone else sees
// task:claimed so they can drop the task from their feeds.
func (b *Broadcaster) TaskClaimed(ctx context.Context, t *models.Task, claimantID int64) {
	payload := taskPayload(t)
	b.BroadcastEvent(ctx, EventTaskAssigned, payload, Targeting{TargetContractor: &claimantID}, &Notice{
		Type:     models.NotificationTask,
		Priority: models.PriorityHigh,
		Title:    "Task claimed successfully",
		Message:  fmt.Sprintf("You claimed task %s", t.OrderRef),
	})
	b.BroadcastEvent(ctx, EventTaskClaimed, payload, Targeting{ExcludeContractor: &claimantID}, nil)
}

// TaskStatusChanged notifies the acting contractor about the transition with
// a status-specific phrasing and priority.
func (b *Broadcaster) TaskStatusChanged(ctx context.Context, t *models.Task, actorID int64) {
	title := "Task updated"
	priority := models.PriorityNormal
	message := fmt.Sprintf("Task %s is now %s", t.OrderRef, t.Status)
	switch t.Status {
	case models.StatusInProgress:
		title = "Task started"
	case models.StatusCompleted:
		title = "Task completed"
		priority = models.PriorityHigh
	case models.StatusCancelled:
		title = "Task cancelled"
		priority = models.PriorityHigh
	}
	b.BroadcastEvent(ctx, EventTaskUpdated, taskPayload(t), Targeting{TargetContractor: &actorID}, &Notice{
		Type:     models.NotificationTask,
		Priority: priority,
		Title:    title,
		Message:  message,
	})
}

// TaskCompleted confirms completion to the contractor who finished the work.
func (b *Broadcaster) TaskCompleted(ctx context.Context, t *models.Task, actorID int64) {
	b.BroadcastEvent(ctx, EventTaskCompleted, taskPayload(t), Targeting{TargetContractor: &actorID}, &Notice{
		Type:     models.NotificationTask,
		Priority: models.PriorityHigh,
		Title:    "Task completed",
		Message:  fmt.Sprintf("Task %s marked as completed", t.OrderRef),
	})
}

// TaskCancelled notifies each affected contractor individually: the phrasing
// carries the reason and every recipient needs their own durable record.
func (b *Broadcaster) TaskCancelled(ctx context.Context, t *models.Task, reason string) {
	payload := taskPayload(t)
	payload["reason"] = reason
	for _, id := range t.AssigneeIDs {
		contractorID := id
		b.BroadcastEvent(ctx, EventTaskCancelled, payload, Targeting{TargetContractor: &contractorID}, &Notice{
			Type:     models.NotificationTask,
			Priority: models.PriorityHigh,
			Title:    "Task cancelled",
			Message:  fmt.Sprintf("Task %s was cancelled: %s", t.OrderRef, reason),
		})
	}
}

// SendPersonal pushes and persists a personal notification for one contractor.
func (b *Broadcaster) SendPersonal(ctx context.Context, recipientID int64, priority models.NotificationPriority, title, message string, payload map[string]any) {
	b.BroadcastEvent(ctx, EventPersonal, payload, Targeting{TargetContractor: &recipientID}, &Notice{
		Type:     models.NotificationPersonal,
		Priority: priority,
		Title:    title,
		Message:  message,
	})
}

// SendSystem announces a system message to every live connection. There is no
// resolvable recipient list, so nothing is persisted.
func (b *Broadcaster) SendSystem(ctx context.Context, title, message string, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["title"] = title
	payload["message"] = message
	b.BroadcastEvent(ctx, EventSystem, payload, Targeting{}, nil)
}
