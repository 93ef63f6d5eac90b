package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fielddispatch/internal/services"
)

// tolerant to value types left in context (int / int64 / float64 / string)
func getInt64FromCtx(c *gin.Context, key string) (int64, bool) {
	v, ok := c.Get(key)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func getContractorID(c *gin.Context) int64 {
	id, _ := getInt64FromCtx(c, "contractor_id")
	return id
}

func pageParams(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	return page, limit
}

// respondError maps service error codes onto HTTP statuses; the reason string
// is the client-facing message, internals stay in the logs.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch services.CodeOf(err) {
	case services.CodeInvalid:
		status = http.StatusBadRequest
	case services.CodeNotFound:
		status = http.StatusNotFound
	case services.CodeConflict:
		status = http.StatusConflict
	case services.CodeForbidden:
		status = http.StatusForbidden
	}
	c.JSON(status, gin.H{"error": services.ReasonOf(err)})
}
