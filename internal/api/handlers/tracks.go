package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/scenetrack/pkg/dto"
)

type TrackHandler struct {
	db SceneStore
}

func NewTrackHandler(db SceneStore) *TrackHandler {
	return &TrackHandler{db: db}
}

// History lists evicted tracks of a session, optionally filtered by class.
func (h *TrackHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	records, err := h.db.ListTrackHistory(c.Request.Context(), c.Param("id"), c.Query("class"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := dto.TrackListResponse{Tracks: make([]dto.TrackResponse, 0, len(records))}
	for _, rec := range records {
		resp.Tracks = append(resp.Tracks, dto.NewTrackResponse(rec))
	}
	c.JSON(http.StatusOK, resp)
}
