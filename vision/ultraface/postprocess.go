package ultraface

import (
	"image"
	"sort"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/facematch/images"
)

// Candidate is a face proposal scaled to image pixels.
type Candidate struct {
	Box   images.Rect
	Score float32
}

// Decode turns raw model outputs into candidates above threshold.
//
// Arguments:
//   - scores: [N, 2] background/face probabilities.
//   - boxes: [N, 4] normalized x1, y1, x2, y2 corners.
//   - threshold: Minimum face probability.
//   - size: The original image dimensions the boxes are scaled to.
//
// Returns:
//   - []Candidate: Candidates sorted by descending score.
func Decode(scores, boxes []float32, threshold float32, size image.Point) []Candidate {
	n := min(len(scores)/2, len(boxes)/4)
	w, h := float32(size.X), float32(size.Y)

	out := make([]Candidate, 0, 16)
	for i := 0; i < n; i++ {
		score := scores[i*2+1]
		if score < threshold {
			continue
		}
		b := boxes[i*4 : i*4+4]
		r := images.Rect{
			X1: int(clamp(b[0], 0, 1) * w),
			Y1: int(clamp(b[1], 0, 1) * h),
			X2: int(math32.Ceil(clamp(b[2], 0, 1) * w)),
			Y2: int(math32.Ceil(clamp(b[3], 0, 1) * h)),
		}
		if r.Area() == 0 {
			continue
		}
		out = append(out, Candidate{Box: r, Score: score})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// SuppressOverlaps performs greedy Non-Maximum Suppression on candidates
// sorted by descending score.
func SuppressOverlaps(candidates []Candidate, iouThreshold float32) []Candidate {
	if len(candidates) == 0 {
		return nil
	}

	kept := make([]Candidate, 0, len(candidates))
	used := make([]bool, len(candidates))
	for i := range candidates {
		if used[i] {
			continue
		}
		anchor := candidates[i]
		kept = append(kept, anchor)
		used[i] = true

		for j := i + 1; j < len(candidates); j++ {
			if !used[j] && images.CalculateIoU(anchor.Box, candidates[j].Box) > iouThreshold {
				used[j] = true
			}
		}
	}
	return kept
}

func clamp(v, lo, hi float32) float32 {
	return math32.Max(lo, math32.Min(hi, v))
}
