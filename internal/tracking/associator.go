package tracking

import (
	"math"
	"strings"
	"time"

	"github.com/your-org/scenetrack/internal/models"
)

// DropReason explains why a detection never reached association.
type DropReason string

const (
	DropLowConfidence DropReason = "low_confidence"
	DropMalformedBox  DropReason = "malformed_box"
	DropEmptyClass    DropReason = "empty_class"
)

// Detection is a validated detection with its box already scaled to source-video pixels.
type Detection struct {
	Class   string
	Score   float64
	Box     Box
	Gesture string
}

type Match struct {
	Track     *Track
	Detection Detection
}

// Partition is the result of one association pass.
type Partition struct {
	Matches         []Match
	Unmatched       []Detection
	UnmatchedTracks []*Track
}

// Associator performs greedy nearest-neighbour matching under a class and
// distance gate. Greedy assignment can swap identities inside dense clusters
// of the same class; the gate makes that rare in practice.
type Associator struct {
	ConfidenceFloor float64
	Gate            float64
}

// Filter validates and scales the detections of a batch. Rejected detections
// are counted by reason and never touch existing tracks.
func (a Associator) Filter(batch models.DetectionBatch) ([]Detection, map[DropReason]int) {
	dropped := make(map[DropReason]int)
	out := make([]Detection, 0, len(batch.Detections))

	for _, d := range batch.Detections {
		class := strings.TrimSpace(d.Class)
		switch {
		case !(d.Score >= a.ConfidenceFloor):
			dropped[DropLowConfidence]++
			continue
		case class == "":
			dropped[DropEmptyClass]++
			continue
		}

		factor := d.ScaleFactor
		if !validScale(factor) {
			factor = batch.ScaleFactor
		}
		if !validScale(factor) {
			factor = 1
		}

		box := BoxFromSlice(d.BBox).Scale(factor)
		if !box.Valid() {
			dropped[DropMalformedBox]++
			continue
		}

		out = append(out, Detection{
			Class:   class,
			Score:   d.Score,
			Box:     box,
			Gesture: d.Gesture,
		})
	}
	return out, dropped
}

// Associate partitions dets against tracks. tracks must be in a stable order
// (ascending id); ties go to the first candidate found.
func (a Associator) Associate(tracks []*Track, dets []Detection) Partition {
	var p Partition
	claimed := make(map[int]bool, len(tracks))

	for _, det := range dets {
		var best *Track
		bestDist := math.Inf(1)

		for _, tr := range tracks {
			if claimed[tr.ID] || tr.Class != det.Class {
				continue
			}
			d := tr.BBox.CornerDistance(det.Box)
			if d < a.Gate && d < bestDist {
				best = tr
				bestDist = d
			}
		}

		if best == nil {
			p.Unmatched = append(p.Unmatched, det)
			continue
		}
		claimed[best.ID] = true
		p.Matches = append(p.Matches, Match{Track: best, Detection: det})
	}

	for _, tr := range tracks {
		if !claimed[tr.ID] {
			p.UnmatchedTracks = append(p.UnmatchedTracks, tr)
		}
	}
	return p
}

// ApplyMatch folds a matched detection into its track and re-activates it.
func ApplyMatch(t *Track, det Detection, alpha float64, hand bool, now time.Time) {
	t.BBox = t.BBox.Toward(det.Box, alpha)
	t.ConsecutiveMisses = 0
	t.Hits++
	t.Opacity = 1.0
	t.LastSeenAt = now
	t.LostAt = time.Time{}
	t.State = StateActive
	t.Confidence = det.Score
	if hand {
		t.Gesture = det.Gesture
	}
}

func validScale(f float64) bool {
	return f > 0 && !math.IsInf(f, 0)
}
