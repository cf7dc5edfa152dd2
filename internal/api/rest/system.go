package rest

import (
	"net/http"
	"strconv"

	"github.com/Wideyedwonderer/buscuit-maker/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GET /api/v1/system/status
func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.GetCurrentStatus())
}

// GET /api/v1/journal?limit=N
func (s *Server) getJournal(c *gin.Context) {
	journal := s.lm.Journal()
	if journal == nil {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse(types.CodeUnavailable, "Event journal disabled", nil))
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, "Invalid limit", raw))
			return
		}
		limit = n
	}

	entries, err := journal.Recent(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to read journal", zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.CodeJournalFailed, "Failed to read journal", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": entries,
		"count":  len(entries),
	})
}
