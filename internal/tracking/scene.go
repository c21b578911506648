package tracking

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SceneChange is emitted when the class multiset of active tracks changes.
type SceneChange struct {
	Signature string
	Summary   string
	Counts    map[string]int
	At        time.Time
}

// Signature is the sorted, comma-joined class multiset.
func Signature(classes []string) string {
	sorted := make([]string, len(classes))
	copy(sorted, classes)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

func CountClasses(classes []string) map[string]int {
	counts := make(map[string]int, len(classes))
	for _, c := range classes {
		counts[c]++
	}
	return counts
}

// Summary renders counts as "1 cup, 2 person", ordered by class name.
func Summary(counts map[string]int) string {
	if len(counts) == 0 {
		return "no objects"
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%d %s", counts[name], name))
	}
	return strings.Join(parts, ", ")
}

// SceneDetector reports debounced signature changes. A change that arrives
// inside the debounce window is suppressed and not remembered, so it is
// reported by the first evaluation after the window if it still holds.
type SceneDetector struct {
	Debounce time.Duration

	lastSignature string
	lastReportAt  time.Time
}

func NewSceneDetector(debounce time.Duration) *SceneDetector {
	return &SceneDetector{Debounce: debounce}
}

// Evaluate compares the current active classes with the last report.
func (d *SceneDetector) Evaluate(classes []string, now time.Time) (SceneChange, bool) {
	sig := Signature(classes)
	if sig == d.lastSignature {
		return SceneChange{}, false
	}
	if !d.lastReportAt.IsZero() && now.Sub(d.lastReportAt) < d.Debounce {
		return SceneChange{}, false
	}

	d.lastSignature = sig
	d.lastReportAt = now

	counts := CountClasses(classes)
	return SceneChange{
		Signature: sig,
		Summary:   Summary(counts),
		Counts:    counts,
		At:        now,
	}, true
}

// LastSignature is the most recently reported signature.
func (d *SceneDetector) LastSignature() string {
	return d.lastSignature
}
