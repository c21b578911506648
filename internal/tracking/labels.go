package tracking

import (
	"fmt"
	"math"
)

// labelRefresh is how far the displayed distance must move before a cached
// label is re-rendered.
const labelRefresh = 0.05

type cachedLabel struct {
	text     string
	distance float64
	gesture  string
}

// LabelCache holds the rendered overlay label of each live track. Entries are
// dropped by the registry when their track is evicted.
type LabelCache struct {
	labels map[int]cachedLabel
}

func NewLabelCache() *LabelCache {
	return &LabelCache{labels: make(map[int]cachedLabel)}
}

// Label returns the label for t, re-rendering it only when the displayed
// distance or gesture changed noticeably.
func (c *LabelCache) Label(t *Track) string {
	if l, ok := c.labels[t.ID]; ok &&
		l.gesture == t.Gesture &&
		math.Abs(l.distance-t.DisplayDistance) < labelRefresh {
		return l.text
	}

	text := fmt.Sprintf("%s %.1fm", t.Class, t.DisplayDistance)
	if t.Gesture != "" {
		text = fmt.Sprintf("%s (%s) %.1fm", t.Class, t.Gesture, t.DisplayDistance)
	}
	c.labels[t.ID] = cachedLabel{text: text, distance: t.DisplayDistance, gesture: t.Gesture}
	return text
}

func (c *LabelCache) Release(trackID int) {
	delete(c.labels, trackID)
}

func (c *LabelCache) Len() int {
	return len(c.labels)
}
