package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Wideyedwonderer/buscuit-maker/internal/auth"
	"github.com/Wideyedwonderer/buscuit-maker/internal/machine"
	"github.com/Wideyedwonderer/buscuit-maker/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// POST / and POST /api/v1/machine
func (s *Server) switchMachineState(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, "Invalid request body", err.Error()))
		return
	}

	if err := s.validator.ValidateStateRequest(body); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, "Invalid request body", err.Error()))
		return
	}

	var req struct {
		NewState machine.State `json:"newState"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, "Invalid request body", err.Error()))
		return
	}

	cmd, err := machine.CommandForState(req.NewState)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, "Invalid state", err.Error()))
		return
	}

	if !s.dispatch(c, cmd) {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "State change requested",
		"newState": req.NewState,
	})
}

// POST /api/v1/machine/command
func (s *Server) executeMachineCommand(c *gin.Context) {
	var req struct {
		Command string `json:"command" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, "Invalid request body", err.Error()))
		return
	}

	cmd, err := machine.ParseCommand(req.Command)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, "Unknown command", err.Error()))
		return
	}

	if !s.dispatch(c, cmd) {
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Command accepted",
		"command": req.Command,
	})
}

// dispatch hands cmd to the controller. Rejections by the machine itself
// arrive later as ERROR events; only dispatch failures are answered here.
func (s *Server) dispatch(c *gin.Context, cmd machine.Command) bool {
	err := s.lm.MachineController().ExecuteCommand(c.Request.Context(), cmd)
	if err == nil {
		s.logger.Info("Machine command dispatched",
			zap.String("command", string(cmd)),
			zap.String("subject", auth.SubjectFromContext(c)))
		return true
	}

	s.logger.Error("Machine command failed",
		zap.String("command", string(cmd)),
		zap.Error(err))

	if errors.Is(err, machine.ErrClosed) {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse(types.CodeUnavailable, "Machine unavailable", err.Error()))
	} else {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeBadRequest, "Command execution failed", err.Error()))
	}
	return false
}

// GET /api/v1/machine/status
func (s *Server) getMachineStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.MachineController().GetStatus())
}

// GET /api/v1/machine/config
func (s *Server) getMachineConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.MachineController().InitialConfig())
}
