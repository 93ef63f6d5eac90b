package handlers

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fielddispatch/internal/models"
	"fielddispatch/internal/services"
)

type TaskHandler struct {
	service services.TaskService
}

func NewTaskHandler(service services.TaskService) *TaskHandler {
	return &TaskHandler{service: service}
}

// POST /tasks is the intake hook for the (external) job-intake process.
func (h *TaskHandler) Create(c *gin.Context) {
	var req struct {
		OrderRef    string          `json:"order_ref" binding:"required"`
		Type        models.TaskType `json:"type" binding:"required"`
		Priority    int             `json:"priority"`
		Lat         *float64        `json:"lat"`
		Lng         *float64        `json:"lng"`
		Address     string          `json:"address"`
		ScheduledAt string          `json:"scheduled_at"` // RFC3339
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("[task][create][bind][err] %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var scheduledAt time.Time
	if req.ScheduledAt != "" {
		t, err := time.Parse(time.RFC3339, req.ScheduledAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid scheduled_at (RFC3339)"})
			return
		}
		scheduledAt = t
	}

	task := &models.Task{
		OrderRef:    req.OrderRef,
		Type:        req.Type,
		Priority:    req.Priority,
		Lat:         req.Lat,
		Lng:         req.Lng,
		Address:     req.Address,
		ScheduledAt: scheduledAt,
	}
	created, err := h.service.Create(c.Request.Context(), task)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// GET /tasks/available
func (h *TaskHandler) Available(c *gin.Context) {
	contractorID := getContractorID(c)
	page, limit := pageParams(c)

	q := services.AvailableQuery{Page: page, Limit: limit}
	if v, ok := c.GetQuery("lat"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			q.Lat = &f
		}
	}
	if v, ok := c.GetQuery("lng"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			q.Lng = &f
		}
	}
	if v, ok := c.GetQuery("radius_km"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			q.RadiusKm = f
		}
	}
	if skills, ok := c.GetQueryArray("skills"); ok {
		q.Skills = skills
	}

	tasks, total, err := h.service.ListAvailable(c.Request.Context(), contractorID, q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "total": total, "page": page, "limit": limit})
}

// GET /tasks/mine
func (h *TaskHandler) Mine(c *gin.Context) {
	contractorID := getContractorID(c)
	page, limit := pageParams(c)

	var status *models.TaskStatus
	if v, ok := c.GetQuery("status"); ok {
		st := models.TaskStatus(v)
		if !st.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		status = &st
	}

	tasks, total, err := h.service.ListMine(c.Request.Context(), contractorID, status, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "total": total, "page": page, "limit": limit})
}

// GET /tasks/:id
func (h *TaskHandler) GetByID(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	task, err := h.service.GetByID(c.Request.Context(), id, getContractorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// POST /tasks/:id/claim
func (h *TaskHandler) Claim(c *gin.Context) {
	contractorID := getContractorID(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	log.Printf("[task][claim] call by contractor=%d id=%d", contractorID, id)

	task, err := h.service.Claim(c.Request.Context(), id, contractorID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// PUT /tasks/:id/status { "status": "in_progress" }
func (h *TaskHandler) UpdateStatus(c *gin.Context) {
	contractorID := getContractorID(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var body struct {
		Status models.TaskStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.service.UpdateStatus(c.Request.Context(), id, contractorID, body.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// POST /tasks/:id/complete { "notes": "...", "photos": [...] }
func (h *TaskHandler) Complete(c *gin.Context) {
	contractorID := getContractorID(c)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var body struct {
		Notes  string   `json:"notes"`
		Photos []string `json:"photos"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.service.Complete(c.Request.Context(), id, contractorID, body.Notes, body.Photos)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// POST /tasks/:id/cancel { "reason": "..." }, called by admin workflows.
func (h *TaskHandler) Cancel(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var body struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.service.Cancel(c.Request.Context(), id, body.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}
