package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/your-org/scenetrack/internal/models"
	"github.com/your-org/scenetrack/internal/storage"
)

// SceneStore is the history the handlers read.
type SceneStore interface {
	QuerySceneEvents(ctx context.Context, q storage.SceneQuery) ([]models.SceneEvent, int, error)
	GetSceneEvent(ctx context.Context, id uuid.UUID) (*models.SceneEvent, error)
	ListTrackHistory(ctx context.Context, sessionID, class string, limit int) ([]models.TrackRecord, error)
	ListSessions(ctx context.Context, limit int) ([]string, error)
}

type BlobStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
}

type ControlPublisher interface {
	PublishControl(cmd models.ControlCommand) error
}

// FrameSource serves the latest live frame of each session.
type FrameSource interface {
	Latest(sessionID string) (models.ObjectFrame, bool)
	Frames() []models.ObjectFrame
}
