package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/scenetrack/internal/storage"
	"github.com/your-org/scenetrack/pkg/dto"
)

type SceneHandler struct {
	db    SceneStore
	blobs BlobStore
}

func NewSceneHandler(db SceneStore, blobs BlobStore) *SceneHandler {
	return &SceneHandler{db: db, blobs: blobs}
}

func parseTime(c *gin.Context, key string) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (h *SceneHandler) List(c *gin.Context) {
	from, err := parseTime(c, "from")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
		return
	}
	to, err := parseTime(c, "to")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	events, total, err := h.db.QuerySceneEvents(c.Request.Context(), storage.SceneQuery{
		SessionID: c.Param("id"),
		From:      from,
		To:        to,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := dto.SceneListResponse{Scenes: make([]dto.SceneResponse, 0, len(events)), Total: total}
	for _, ev := range events {
		resp.Scenes = append(resp.Scenes, dto.NewSceneResponse(ev))
	}
	c.JSON(http.StatusOK, resp)
}

// Snapshot serves the archived object list taken at a scene change.
func (h *SceneHandler) Snapshot(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid scene id"})
		return
	}

	ev, err := h.db.GetSceneEvent(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "scene not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if ev.SnapshotKey == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot"})
		return
	}

	data, err := h.blobs.GetObject(c.Request.Context(), ev.SnapshotKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "snapshot expired"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}
