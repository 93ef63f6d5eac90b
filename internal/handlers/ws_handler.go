package handlers

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"fielddispatch/internal/realtime"
	"fielddispatch/internal/repositories"
	"fielddispatch/internal/services"
)

// WSHandler owns the live-channel lifecycle: register the contractor in the
// hub, replay missed notifications, then serve client messages until the
// connection drops.
type WSHandler struct {
	hub           *realtime.Hub
	contractors   repositories.ContractorRepository
	notifications services.NotificationService
}

func NewWSHandler(hub *realtime.Hub, contractors repositories.ContractorRepository, notifications services.NotificationService) *WSHandler {
	return &WSHandler{hub: hub, contractors: contractors, notifications: notifications}
}

type clientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// GET /ws
func (h *WSHandler) Handle(c *gin.Context) {
	contractorID := getContractorID(c)

	contractor, err := h.contractors.FindByID(c.Request.Context(), contractorID)
	if err != nil || contractor == nil {
		log.Printf("[ws][connect][err] contractor=%d: %v", contractorID, err)
		c.AbortWithStatus(401)
		return
	}

	conn, err := realtime.Upgrade(c.Writer, c.Request)
	if err != nil {
		log.Printf("[ws][upgrade][err] contractor=%d: %v", contractorID, err)
		return
	}

	h.hub.Register(contractorID, conn, contractor.Skills)
	log.Printf("[ws][connect][ok] contractor=%d connected=%d", contractorID, h.hub.Connected())

	h.replayUndelivered(c, contractorID, conn)

	// Read loop. Any read error (including client close) tears the session
	// down; the hub entry is removed and the connection closed.
	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		h.dispatch(c, contractorID, msg)
	}

	h.hub.Unregister(contractorID)
	log.Printf("[ws][disconnect] contractor=%d connected=%d", contractorID, h.hub.Connected())
}

// replayUndelivered pushes everything the contractor missed while offline and
// marks each record delivered once it has gone out on the wire.
func (h *WSHandler) replayUndelivered(c *gin.Context, contractorID int64, conn *realtime.Conn) {
	missed, err := h.notifications.ListUndelivered(c.Request.Context(), contractorID, 0)
	if err != nil {
		log.Printf("[ws][replay][err] contractor=%d: %v", contractorID, err)
		return
	}
	for i := range missed {
		n := &missed[i]
		ev := realtime.Event{
			Event: "notification:replay",
			Data: map[string]any{
				"id":       n.ID,
				"type":     n.Type,
				"priority": n.Priority,
				"title":    n.Title,
				"message":  n.Message,
				"payload":  n.Payload,
			},
			Timestamp: time.Now(),
		}
		if err := conn.WriteJSON(ev); err != nil {
			log.Printf("[ws][replay][send][err] contractor=%d id=%s: %v", contractorID, n.ID, err)
			return
		}
		if _, err := h.notifications.MarkDelivered(c.Request.Context(), n.ID, &contractorID); err != nil {
			log.Printf("[ws][replay][mark][err] contractor=%d id=%s: %v", contractorID, n.ID, err)
		}
	}
	if len(missed) > 0 {
		log.Printf("[ws][replay][ok] contractor=%d count=%d", contractorID, len(missed))
	}
}

func (h *WSHandler) dispatch(c *gin.Context, contractorID int64, msg clientMessage) {
	switch msg.Event {
	case "position:update":
		var body struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		}
		if err := json.Unmarshal(msg.Data, &body); err != nil {
			log.Printf("[ws][position][err] contractor=%d: %v", contractorID, err)
			return
		}
		h.hub.UpdatePosition(contractorID, body.Lat, body.Lng)

	case "skills:update":
		var body struct {
			Skills []string `json:"skills"`
		}
		if err := json.Unmarshal(msg.Data, &body); err != nil {
			log.Printf("[ws][skills][err] contractor=%d: %v", contractorID, err)
			return
		}
		h.hub.UpdateSkills(contractorID, body.Skills)

	case "notification:ack":
		var body struct {
			ID   string `json:"id"`
			Read bool   `json:"read"`
		}
		if err := json.Unmarshal(msg.Data, &body); err != nil {
			log.Printf("[ws][ack][err] contractor=%d: %v", contractorID, err)
			return
		}
		if body.Read {
			if _, err := h.notifications.MarkRead(c.Request.Context(), body.ID, contractorID); err != nil {
				log.Printf("[ws][ack][read][err] contractor=%d id=%s: %v", contractorID, body.ID, err)
			}
			return
		}
		if _, err := h.notifications.MarkDelivered(c.Request.Context(), body.ID, &contractorID); err != nil {
			log.Printf("[ws][ack][delivered][err] contractor=%d id=%s: %v", contractorID, body.ID, err)
		}

	default:
		log.Printf("[ws][msg][warn] contractor=%d unknown event %q", contractorID, msg.Event)
	}
}
