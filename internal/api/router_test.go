package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/scenetrack/internal/api/handlers"
	"github.com/your-org/scenetrack/internal/api/ws"
	"github.com/your-org/scenetrack/internal/models"
	"github.com/your-org/scenetrack/internal/storage"
	"github.com/your-org/scenetrack/pkg/dto"
)

type fakeStore struct {
	scenes   []models.SceneEvent
	tracks   []models.TrackRecord
	sessions []string
	query    storage.SceneQuery
	class    string
}

func (s *fakeStore) QuerySceneEvents(_ context.Context, q storage.SceneQuery) ([]models.SceneEvent, int, error) {
	s.query = q
	return s.scenes, len(s.scenes), nil
}

func (s *fakeStore) GetSceneEvent(_ context.Context, id uuid.UUID) (*models.SceneEvent, error) {
	for _, ev := range s.scenes {
		if ev.ID == id {
			return &ev, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *fakeStore) ListTrackHistory(_ context.Context, _ string, class string, _ int) ([]models.TrackRecord, error) {
	s.class = class
	return s.tracks, nil
}

func (s *fakeStore) ListSessions(context.Context, int) ([]string, error) {
	return s.sessions, nil
}

type fakeBlobs map[string][]byte

func (b fakeBlobs) GetObject(_ context.Context, key string) ([]byte, error) {
	data, ok := b[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

type fakeControl struct {
	mu   sync.Mutex
	cmds []models.ControlCommand
}

func (f *fakeControl) PublishControl(cmd models.ControlCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
	return nil
}

type fixture struct {
	store   *fakeStore
	control *fakeControl
	hub     *ws.Hub
	handler http.Handler
}

func newFixture(apiKey string) *fixture {
	f := &fixture{
		store:   &fakeStore{},
		control: &fakeControl{},
		hub:     ws.NewHub(),
	}
	f.handler = NewRouter(RouterConfig{
		APIKey:  apiKey,
		Scenes:  f.store,
		Blobs:   fakeBlobs{"scenes/cam1/1.json": []byte(`{"objects":[]}`)},
		Control: f.control,
		Hub:     f.hub,
		Checks: map[string]handlers.Check{
			"postgres": func(context.Context) error { return nil },
			"nats":     func(context.Context) error { return errors.New("nats not connected") },
		},
	})
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func TestSystemEndpoints(t *testing.T) {
	f := newFixture("secret")

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "").Code)

	w := f.do(http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "nats not connected")

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/metrics", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/v1/sessions", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/v1/sessions?api_key=secret", "").Code)
}

func TestSessionsAndObjects(t *testing.T) {
	f := newFixture("")
	f.store.sessions = []string{"cam1", "old"}
	f.hub.PublishFrame(models.ObjectFrame{
		SessionID: "cam1",
		Timestamp: time.Unix(1000, 0),
		Objects:   []models.TrackedObject{{ID: 3, Class: "cup", Label: "cup 1.2m"}},
	})

	w := f.do(http.MethodGet, "/v1/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list dto.SessionListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Sessions, 2)
	assert.Equal(t, dto.SessionResponse{SessionID: "cam1", Live: true, Objects: 1, LastUpdate: "1970-01-01T00:16:40Z"}, list.Sessions[0])
	assert.Equal(t, dto.SessionResponse{SessionID: "old"}, list.Sessions[1])

	w = f.do(http.MethodGet, "/v1/sessions/cam1/objects", "")
	require.Equal(t, http.StatusOK, w.Code)
	var frame models.ObjectFrame
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &frame))
	require.Len(t, frame.Objects, 1)
	assert.Equal(t, "cup 1.2m", frame.Objects[0].Label)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/v1/sessions/nope/objects", "").Code)
}

func TestScenes(t *testing.T) {
	f := newFixture("")
	withSnap := models.SceneEvent{ID: uuid.New(), SessionID: "cam1", Summary: "1 cup", SnapshotKey: "scenes/cam1/1.json", OccurredAt: time.Unix(1, 0)}
	noSnap := models.SceneEvent{ID: uuid.New(), SessionID: "cam1", Summary: "no objects"}
	expired := models.SceneEvent{ID: uuid.New(), SessionID: "cam1", SnapshotKey: "scenes/cam1/0.json"}
	f.store.scenes = []models.SceneEvent{withSnap, noSnap, expired}

	w := f.do(http.MethodGet, "/v1/sessions/cam1/scenes?from=2024-01-01T00:00:00Z&limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list dto.SceneListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 3, list.Total)
	assert.Equal(t, "/v1/scenes/"+withSnap.ID.String()+"/snapshot", list.Scenes[0].SnapshotURL)
	assert.Empty(t, list.Scenes[1].SnapshotURL)
	assert.Equal(t, "cam1", f.store.query.SessionID)
	assert.Equal(t, 10, f.store.query.Limit)
	require.NotNil(t, f.store.query.From)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/v1/sessions/cam1/scenes?to=yesterday", "").Code)

	w = f.do(http.MethodGet, "/v1/scenes/"+withSnap.ID.String()+"/snapshot", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"objects":[]}`, w.Body.String())

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/v1/scenes/"+noSnap.ID.String()+"/snapshot", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/v1/scenes/"+expired.ID.String()+"/snapshot", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/v1/scenes/"+uuid.NewString()+"/snapshot", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/v1/scenes/not-a-uuid/snapshot", "").Code)
}

func TestTrackHistory(t *testing.T) {
	f := newFixture("")
	first := time.Unix(100, 0)
	f.store.tracks = []models.TrackRecord{{
		SessionID: "cam1", TrackID: 7, Class: "cup", Hits: 12,
		FirstSeen: first, LastSeen: first.Add(1500 * time.Millisecond), EvictedAt: first.Add(2760 * time.Millisecond),
	}}

	w := f.do(http.MethodGet, "/v1/sessions/cam1/tracks?class=cup", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list dto.TrackListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Tracks, 1)
	assert.Equal(t, 7, list.Tracks[0].TrackID)
	assert.Equal(t, "1.5s", list.Tracks[0].Lifetime)
	assert.Equal(t, "cup", f.store.class)
}

func TestControlCommands(t *testing.T) {
	f := newFixture("")

	assert.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/v1/sessions/cam1/select", `{"track_id":4}`).Code)
	assert.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/v1/sessions/cam1/select", `{"track_id":0}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/v1/sessions/cam1/select", `{}`).Code)
	assert.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/v1/sessions/cam1/tracks/4/scan", `{"progress":0.5}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/v1/sessions/cam1/tracks/4/scan", `{"progress":2}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/v1/sessions/cam1/tracks/x/scan", `{"progress":0.5}`).Code)
	assert.Equal(t, http.StatusAccepted, f.do(http.MethodPost, "/v1/sessions/cam1/conditions", `{"downlink_mbps":12,"rtt_ms":40,"save_data":true}`).Code)

	require.Len(t, f.control.cmds, 4)
	assert.Equal(t, models.ControlCommand{Action: models.ControlSelect, SessionID: "cam1", TrackID: 4}, f.control.cmds[0])
	assert.Equal(t, 0, f.control.cmds[1].TrackID)
	require.NotNil(t, f.control.cmds[2].Progress)
	assert.Equal(t, 0.5, *f.control.cmds[2].Progress)
	require.NotNil(t, f.control.cmds[3].Conditions)
	assert.Equal(t, models.Conditions{DownlinkMbps: 12, RTTMillis: 40, SaveData: true}, *f.control.cmds[3].Conditions)
}
