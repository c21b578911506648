package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotKey(t *testing.T) {
	t.Parallel()
	at := time.UnixMilli(1700000000123)

	assert.Equal(t, "scenes/cam1/1700000000123.json", SnapshotKey("cam1", at))
	assert.Equal(t, "scenes/a_b/1700000000123.json", SnapshotKey("a/b", at))
}

func TestSceneQueryWhere(t *testing.T) {
	t.Parallel()
	from := time.Unix(100, 0)
	to := time.Unix(200, 0)

	t.Run("session only", func(t *testing.T) {
		clause, args := SceneQuery{SessionID: "cam1"}.where()
		assert.Equal(t, "WHERE session_id = $1", clause)
		assert.Equal(t, []any{"cam1"}, args)
	})

	t.Run("time range", func(t *testing.T) {
		clause, args := SceneQuery{SessionID: "cam1", From: &from, To: &to}.where()
		assert.Equal(t, "WHERE session_id = $1 AND occurred_at >= $2 AND occurred_at <= $3", clause)
		assert.Equal(t, []any{"cam1", from, to}, args)
	})

	t.Run("upper bound only", func(t *testing.T) {
		clause, args := SceneQuery{SessionID: "cam1", To: &to}.where()
		assert.Equal(t, "WHERE session_id = $1 AND occurred_at <= $2", clause)
		assert.Len(t, args, 2)
	})
}

func TestClampLimit(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 50, clampLimit(0))
	assert.Equal(t, 50, clampLimit(-3))
	assert.Equal(t, 10, clampLimit(10))
	assert.Equal(t, 500, clampLimit(10000))
}
