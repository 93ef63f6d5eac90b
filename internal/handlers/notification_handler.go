package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fielddispatch/internal/models"
	"fielddispatch/internal/services"
)

type NotificationHandler struct {
	service       services.NotificationService
	retentionDays int
}

func NewNotificationHandler(service services.NotificationService, retentionDays int) *NotificationHandler {
	return &NotificationHandler{service: service, retentionDays: retentionDays}
}

// GET /notifications, always scoped to the calling contractor.
func (h *NotificationHandler) List(c *gin.Context) {
	contractorID := getContractorID(c)
	page, limit := pageParams(c)

	filter := models.NotificationFilter{
		RecipientID: &contractorID,
		Page:        page,
		Limit:       limit,
	}
	if v, ok := c.GetQuery("type"); ok {
		t := models.NotificationType(v)
		if !t.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid type"})
			return
		}
		filter.Type = &t
	}
	if v, ok := c.GetQuery("priority"); ok {
		p := models.NotificationPriority(v)
		if !p.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid priority"})
			return
		}
		filter.Priority = &p
	}
	if v, ok := c.GetQuery("read"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid read flag"})
			return
		}
		filter.Read = &b
	}
	if v, ok := c.GetQuery("delivered"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delivered flag"})
			return
		}
		filter.Delivered = &b
	}

	ns, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": ns, "total": total, "page": page, "limit": limit})
}

// GET /notifications/stats
func (h *NotificationHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context(), getContractorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// PUT /notifications/:id/delivered
func (h *NotificationHandler) MarkDelivered(c *gin.Context) {
	contractorID := getContractorID(c)
	ok, err := h.service.MarkDelivered(c.Request.Context(), c.Param("id"), &contractorID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"delivered": true})
}

// PUT /notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	ok, err := h.service.MarkRead(c.Request.Context(), c.Param("id"), getContractorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"read": true})
}

// PUT /notifications/read { "ids": [...] }
func (h *NotificationHandler) MarkManyRead(c *gin.Context) {
	var body struct {
		IDs []string `json:"ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	count, err := h.service.MarkManyRead(c.Request.Context(), body.IDs, getContractorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": count})
}

// DELETE /notifications/cleanup?older_than_days=30 is a maintenance hook; the
// background sweep calls the same service path on a timer.
func (h *NotificationHandler) Cleanup(c *gin.Context) {
	days := h.retentionDays
	if v, ok := c.GetQuery("older_than_days"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid older_than_days"})
			return
		}
		days = n
	}
	deleted, err := h.service.Cleanup(c.Request.Context(), days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
