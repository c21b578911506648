package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/your-org/scenetrack/internal/models"
)

const (
	DetectionsStreamName  = "DETECTIONS"
	DetectionsSubjectBase = "detections"
	EventsStreamName      = "EVENTS"
	EventsSubjectBase     = "events"

	// Core NATS subjects; these are fire-and-forget and never persisted.
	ObjectsSubjectBase  = "objects"
	RequestsSubjectBase = "detect.request"
	ControlSubject      = "tracker.control"
)

var ErrMissingSession = errors.New("message has no session id")

// DetectionsSubject is where detection batches for a session are published.
func DetectionsSubject(sessionID string) string {
	return DetectionsSubjectBase + "." + token(sessionID)
}

func EventsSubject(sessionID string, kind models.EventType) string {
	return fmt.Sprintf("%s.%s.%s", EventsSubjectBase, token(sessionID), kind)
}

func ObjectsSubject(sessionID string) string {
	return ObjectsSubjectBase + "." + token(sessionID)
}

func RequestsSubject(sessionID string) string {
	return RequestsSubjectBase + "." + token(sessionID)
}

// token makes s safe to use as a single NATS subject token.
func token(s string) string {
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}

// DecodeBatch parses a detection batch message. The session id falls back to
// the last subject token when the payload leaves it empty.
func DecodeBatch(subject string, data []byte) (models.DetectionBatch, error) {
	var b models.DetectionBatch
	if err := json.Unmarshal(data, &b); err != nil {
		return b, fmt.Errorf("decode detection batch: %w", err)
	}
	if b.SessionID == "" {
		if i := strings.LastIndexByte(subject, '.'); i >= 0 && i < len(subject)-1 {
			b.SessionID = subject[i+1:]
		}
	}
	if b.SessionID == "" {
		return b, ErrMissingSession
	}
	return b, nil
}

func DecodeEvent(data []byte) (models.Event, error) {
	var e models.Event
	if err := json.Unmarshal(data, &e); err != nil {
		return e, fmt.Errorf("decode event: %w", err)
	}
	return e, nil
}

func DecodeControl(data []byte) (models.ControlCommand, error) {
	var c models.ControlCommand
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("decode control command: %w", err)
	}
	if c.SessionID == "" {
		return c, ErrMissingSession
	}
	return c, nil
}
