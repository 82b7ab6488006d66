// Package images provides the capture resolutions a camera can be asked for.
package images

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// AspectRatio represents an aspect ratio by name (e.g., "16:9").
type AspectRatio string

// Defines the aspect ratios reported by common webcams and phone sensors.
const (
	AspectRatio169 AspectRatio = "16:9"
	AspectRatio43  AspectRatio = "4:3"
)

// ResolutionType represents a common name for a capture resolution.
type ResolutionType string

// Supported capture resolutions.
const (
	ResolutionTypeQVGA     ResolutionType = "QVGA"
	ResolutionTypeVGA      ResolutionType = "VGA"
	ResolutionTypeNHD      ResolutionType = "nHD"
	ResolutionTypeSVGA     ResolutionType = "SVGA"
	ResolutionTypeHD720p   ResolutionType = "HD 720p"
	ResolutionTypeFHD1080p ResolutionType = "Full HD 1080p"
)

// ResolutionPixels describes the exact dimensions of a resolution.
type ResolutionPixels struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Resolution describes a capture resolution standard.
type Resolution struct {
	Name        ResolutionType   `json:"name"`
	AspectRatio AspectRatio      `json:"aspectRatio"`
	Pixels      ResolutionPixels `json:"pixels"`
}

// GetMegaPixels returns the megapixel value rounded to two decimal places.
func (r Resolution) GetMegaPixels() float64 {
	if r.Pixels.Width <= 0 || r.Pixels.Height <= 0 {
		return 0.0
	}
	mp := float64(r.Pixels.Width*r.Pixels.Height) / 1_000_000.0
	return math.Round(mp*100) / 100
}

// String returns a human-readable summary of the resolution.
func (r Resolution) String() string {
	return fmt.Sprintf("%s (%dx%d, %.2fMP)", r.Name, r.Pixels.Width, r.Pixels.Height, r.GetMegaPixels())
}

var resolutions = map[ResolutionType]Resolution{
	ResolutionTypeQVGA: {
		Name:        ResolutionTypeQVGA,
		AspectRatio: AspectRatio43,
		Pixels:      ResolutionPixels{Width: 320, Height: 240},
	},
	ResolutionTypeVGA: {
		Name:        ResolutionTypeVGA,
		AspectRatio: AspectRatio43,
		Pixels:      ResolutionPixels{Width: 640, Height: 480},
	},
	ResolutionTypeNHD: {
		Name:        ResolutionTypeNHD,
		AspectRatio: AspectRatio169,
		Pixels:      ResolutionPixels{Width: 640, Height: 360},
	},
	ResolutionTypeSVGA: {
		Name:        ResolutionTypeSVGA,
		AspectRatio: AspectRatio43,
		Pixels:      ResolutionPixels{Width: 800, Height: 600},
	},
	ResolutionTypeHD720p: {
		Name:        ResolutionTypeHD720p,
		AspectRatio: AspectRatio169,
		Pixels:      ResolutionPixels{Width: 1280, Height: 720},
	},
	ResolutionTypeFHD1080p: {
		Name:        ResolutionTypeFHD1080p,
		AspectRatio: AspectRatio169,
		Pixels:      ResolutionPixels{Width: 1920, Height: 1080},
	},
}

// GetAllResolutions returns every resolution ordered by pixel count.
func GetAllResolutions() []Resolution {
	all := make([]Resolution, 0, len(resolutions))
	for _, res := range resolutions {
		all = append(all, res)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Pixels.Width*all[i].Pixels.Height < all[j].Pixels.Width*all[j].Pixels.Height
	})
	return all
}

// GetResolutionByType retrieves a specific resolution by its type.
// It returns the Resolution and true if found, otherwise an empty Resolution and false.
func GetResolutionByType(t ResolutionType) (Resolution, bool) {
	res, ok := resolutions[t]
	return res, ok
}

// ParseResolution resolves a configured resolution by name (case-insensitive)
// or as an explicit "WIDTHxHEIGHT" pair.
//
// Arguments:
//   - s: The configured value, e.g. "VGA", "hd 720p" or "1024x768".
//
// Returns:
//   - Resolution: The matching resolution.
//   - error: An error if s names no resolution and is not a valid pair.
func ParseResolution(s string) (Resolution, error) {
	for t, res := range resolutions {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return res, nil
		}
	}

	var w, h int
	if _, err := fmt.Sscanf(strings.ToLower(s), "%dx%d", &w, &h); err != nil || w <= 0 || h <= 0 {
		return Resolution{}, fmt.Errorf("unknown resolution %q", s)
	}
	return Resolution{
		Name:   ResolutionType(fmt.Sprintf("%dx%d", w, h)),
		Pixels: ResolutionPixels{Width: w, Height: h},
	}, nil
}
