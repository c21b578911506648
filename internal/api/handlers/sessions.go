package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/scenetrack/pkg/dto"
)

type SessionHandler struct {
	frames FrameSource
	db     SceneStore
}

func NewSessionHandler(frames FrameSource, db SceneStore) *SessionHandler {
	return &SessionHandler{frames: frames, db: db}
}

// List returns live sessions first, then sessions known only from history.
func (h *SessionHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	seen := map[string]bool{}
	resp := dto.SessionListResponse{Sessions: []dto.SessionResponse{}}
	for _, f := range h.frames.Frames() {
		seen[f.SessionID] = true
		resp.Sessions = append(resp.Sessions, dto.SessionResponse{
			SessionID:  f.SessionID,
			Live:       true,
			Objects:    len(f.Objects),
			LastUpdate: f.Timestamp.UTC().Format(time.RFC3339Nano),
		})
	}

	ids, err := h.db.ListSessions(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	for _, id := range ids {
		if !seen[id] {
			resp.Sessions = append(resp.Sessions, dto.SessionResponse{SessionID: id})
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Objects returns the latest live object list of a session.
func (h *SessionHandler) Objects(c *gin.Context) {
	frame, ok := h.frames.Latest(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not live"})
		return
	}
	c.JSON(http.StatusOK, frame)
}
