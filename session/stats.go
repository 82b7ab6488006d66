package session

import (
	"sync/atomic"

	"github.com/nvr-ai/facematch/classifier"
)

// Stats counts what the loop has seen.
type Stats struct {
	Frames    atomic.Uint64
	Faces     atomic.Uint64
	Matches   atomic.Uint64
	NoMatches atomic.Uint64
	Failures  atomic.Uint64
	Swaps     atomic.Uint64
}

func (s *Stats) record(r classifier.Result) {
	s.Frames.Add(1)
	s.Faces.Add(uint64(len(r.Regions)))
	switch {
	case r.Err != nil:
		s.Failures.Add(1)
	case r.Decision != nil && r.Decision.Matched:
		s.Matches.Add(1)
	case r.Decision != nil:
		s.NoMatches.Add(1)
	}
}

// CollectMetrics reports the counters to the runtime profiler.
func (s *Stats) CollectMetrics() map[string]float64 {
	return map[string]float64{
		"frames_total":    float64(s.Frames.Load()),
		"faces_total":     float64(s.Faces.Load()),
		"matches_total":   float64(s.Matches.Load()),
		"nomatches_total": float64(s.NoMatches.Load()),
		"failures_total":  float64(s.Failures.Load()),
		"swaps_total":     float64(s.Swaps.Load()),
	}
}
