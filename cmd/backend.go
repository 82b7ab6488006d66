package cmd

import (
	"io"
	"os"

	"github.com/nvr-ai/facematch/assets"
	"github.com/nvr-ai/facematch/config"
	"github.com/nvr-ai/facematch/logging"
	"github.com/nvr-ai/facematch/reference"
	"github.com/nvr-ai/facematch/vision"
	"github.com/nvr-ai/facematch/vision/opencv"
	"github.com/nvr-ai/facematch/vision/pigo"
	"github.com/nvr-ai/facematch/vision/ultraface"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

func newBundle(c *config.Config, log zerolog.Logger) *assets.Bundle {
	return &assets.Bundle{
		Source:    assets.Layered{os.DirFS(c.Assets.Dir), assets.Embedded()},
		Model:     detectorModel(c.Vision),
		Reference: c.Assets.Reference,
		Logger:    logging.Component(log, "assets"),
	}
}

func detectorModel(v config.VisionConfig) string {
	switch v.Detector {
	case config.DetectorPigo:
		return v.Pigo.Model
	case config.DetectorUltraFace:
		return v.UltraFace.Model
	default:
		return v.Cascade.Model
	}
}

// buildBackend assembles the configured detector and comparator. A detector
// that cannot be set up is replaced by a no-op detector so frames still flow.
func buildBackend(c *config.Config, bundle *assets.Bundle, log zerolog.Logger) vision.Backend {
	log = logging.Component(log, "vision")

	detector, err := buildDetector(c, bundle)
	if err != nil {
		log.Warn().Err(err).Str("detector", c.Vision.Detector).Msg("face detector unavailable, frames pass through unannotated")
		detector = vision.NopDetector{Reason: err}
	}

	return vision.Compose(c.Vision.Detector+"+"+c.Vision.Comparator, detector, buildComparator(c.Vision.Comparator))
}

func buildDetector(c *config.Config, bundle *assets.Bundle) (vision.Detector, error) {
	switch c.Vision.Detector {
	case config.DetectorCascade:
		path, err := bundle.Extract(bundle.Model, c.Assets.CacheDir)
		if err != nil {
			return nil, err
		}
		return opencv.NewCascadeDetector(opencv.CascadeConfig{
			ModelPath:    path,
			MinSize:      c.Vision.Cascade.MinSize,
			ScaleFactor:  c.Vision.Cascade.ScaleFactor,
			MinNeighbors: c.Vision.Cascade.MinNeighbors,
		})

	case config.DetectorPigo:
		rc, err := bundle.Open(bundle.Model)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, errors.Wrap(err, "read pigo cascade")
		}
		pc := pigo.DefaultConfig()
		if c.Vision.Pigo.MinSize > 0 {
			pc.MinSize = c.Vision.Pigo.MinSize
		}
		if c.Vision.Pigo.MinQuality > 0 {
			pc.MinQuality = c.Vision.Pigo.MinQuality
		}
		return pigo.New(data, pc)

	case config.DetectorUltraFace:
		path, err := bundle.Extract(bundle.Model, c.Assets.CacheDir)
		if err != nil {
			return nil, err
		}
		uc := ultraface.DefaultConfig()
		uc.ModelPath = path
		uc.LibraryPath = c.Vision.UltraFace.LibraryPath
		if c.Vision.UltraFace.ConfidenceThreshold > 0 {
			uc.ConfidenceThreshold = c.Vision.UltraFace.ConfidenceThreshold
		}
		if c.Vision.UltraFace.NMSThreshold > 0 {
			uc.NMSThreshold = c.Vision.UltraFace.NMSThreshold
		}
		return ultraface.New(uc)
	}
	return nil, errors.Errorf("unknown detector %q", c.Vision.Detector)
}

func buildComparator(name string) vision.Comparator {
	if name == config.ComparatorNative {
		return vision.Correlation{}
	}
	return opencv.HistogramComparator{}
}

// referenceLoader returns nil when no reference is configured.
func referenceLoader(bundle *assets.Bundle, log zerolog.Logger) *reference.Loader {
	if bundle.Reference == "" {
		return nil
	}
	return &reference.Loader{
		Name:   bundle.Reference,
		Open:   func() (io.ReadCloser, error) { return bundle.Open(bundle.Reference) },
		Logger: logging.Component(log, "reference"),
	}
}
