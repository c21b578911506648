package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/scenetrack/internal/models"
	"github.com/your-org/scenetrack/pkg/dto"
)

// ControlHandler forwards user commands to the tracker over NATS. Commands
// are fire-and-forget: 202 means published, not applied.
type ControlHandler struct {
	pub ControlPublisher
}

func NewControlHandler(pub ControlPublisher) *ControlHandler {
	return &ControlHandler{pub: pub}
}

func (h *ControlHandler) Select(c *gin.Context) {
	var req dto.SelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.publish(c, models.ControlCommand{
		Action:    models.ControlSelect,
		SessionID: c.Param("id"),
		TrackID:   *req.TrackID,
	})
}

func (h *ControlHandler) Scan(c *gin.Context) {
	trackID, err := strconv.Atoi(c.Param("trackId"))
	if err != nil || trackID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid track id"})
		return
	}
	var req dto.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.publish(c, models.ControlCommand{
		Action:    models.ControlScan,
		SessionID: c.Param("id"),
		TrackID:   trackID,
		Progress:  req.Progress,
	})
}

func (h *ControlHandler) Conditions(c *gin.Context) {
	var req dto.ConditionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cond := req.Conditions()
	h.publish(c, models.ControlCommand{
		Action:     models.ControlConditions,
		SessionID:  c.Param("id"),
		Conditions: &cond,
	})
}

func (h *ControlHandler) publish(c *gin.Context, cmd models.ControlCommand) {
	if err := h.pub.PublishControl(cmd); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send command"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "action": cmd.Action})
}
