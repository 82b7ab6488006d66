// Package config - Application configuration from YAML, environment and .env files.
package config

import (
	"bytes"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nvr-ai/facematch/camera"
	"github.com/nvr-ai/facematch/images"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FACEMATCH_"

// Detector backends.
const (
	DetectorCascade   = "cascade"
	DetectorPigo      = "pigo"
	DetectorUltraFace = "ultraface"
)

// Comparator backends.
const (
	ComparatorOpenCV = "opencv"
	ComparatorNative = "native"
)

// Config is the complete application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Camera   CameraConfig   `yaml:"camera"`
	Vision   VisionConfig   `yaml:"vision"`
	Assets   AssetsConfig   `yaml:"assets"`
	Display  DisplayConfig  `yaml:"display"`
	Server   ServerConfig   `yaml:"server"`
	Notify   NotifyConfig   `yaml:"notify"`
	Profiler ProfilerConfig `yaml:"profiler"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// Format is "console", "json" or "auto" (console on a terminal).
	Format string `yaml:"format"`
}

type CameraConfig struct {
	// Index is the initial camera, 0 or 1.
	Index int `yaml:"index"`
	// Devices replace cameras 0 and 1 with video files or stream URLs. A
	// single device leaves camera swapping without a second source.
	Devices []string `yaml:"devices"`
	// FrameDirs replays recorded frames instead of opening a camera; the
	// first directory is camera 0, the second camera 1.
	FrameDirs  []string `yaml:"frameDirs"`
	Resolution string   `yaml:"resolution"`
}

type VisionConfig struct {
	Detector   string          `yaml:"detector"`
	Comparator string          `yaml:"comparator"`
	Cascade    CascadeConfig   `yaml:"cascade"`
	Pigo       PigoConfig      `yaml:"pigo"`
	UltraFace  UltraFaceConfig `yaml:"ultraface"`
}

type CascadeConfig struct {
	// Model is the cascade XML asset name; empty uses the bundled LBP cascade.
	Model        string  `yaml:"model"`
	MinSize      int     `yaml:"minSize"`
	ScaleFactor  float64 `yaml:"scaleFactor"`
	MinNeighbors int     `yaml:"minNeighbors"`
}

type PigoConfig struct {
	Model      string  `yaml:"model"`
	MinSize    int     `yaml:"minSize"`
	MinQuality float32 `yaml:"minQuality"`
}

type UltraFaceConfig struct {
	Model               string  `yaml:"model"`
	LibraryPath         string  `yaml:"libraryPath"`
	ConfidenceThreshold float32 `yaml:"confidenceThreshold"`
	NMSThreshold        float32 `yaml:"nmsThreshold"`
}

type AssetsConfig struct {
	// Dir holds the bundled models and the reference image.
	Dir string `yaml:"dir"`
	// CacheDir receives extracted copies for libraries that load from a path.
	CacheDir string `yaml:"cacheDir"`
	// Reference is the reference image name inside Dir; empty disables matching.
	Reference string `yaml:"reference"`
}

type DisplayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Title   string `yaml:"title"`
}

type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type NotifyConfig struct {
	QueueSize int `yaml:"queueSize"`
}

type ProfilerConfig struct {
	Enabled        bool          `yaml:"enabled"`
	ReportInterval time.Duration `yaml:"reportInterval"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "auto"},
		Camera: CameraConfig{
			Index:      0,
			Resolution: string(images.ResolutionTypeVGA),
		},
		Vision: VisionConfig{
			Detector:   DetectorCascade,
			Comparator: ComparatorOpenCV,
			Cascade: CascadeConfig{
				Model:        "lbpcascade_frontalface.xml",
				ScaleFactor:  1.1,
				MinNeighbors: 3,
			},
			Pigo: PigoConfig{
				Model:      "facefinder",
				MinSize:    20,
				MinQuality: 5,
			},
			UltraFace: UltraFaceConfig{
				Model:               "version-RFB-320.onnx",
				ConfidenceThreshold: 0.7,
				NMSThreshold:        0.3,
			},
		},
		Assets: AssetsConfig{
			Dir:       "assets",
			CacheDir:  defaultCacheDir(),
			Reference: "reference.jpg",
		},
		Display:  DisplayConfig{Enabled: true, Title: "facematch"},
		Server:   ServerConfig{Addr: "127.0.0.1:8080"},
		Notify:   NotifyConfig{QueueSize: 16},
		Profiler: ProfilerConfig{ReportInterval: 10 * time.Second},
	}
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir + string(os.PathSeparator) + "facematch"
	}
	return ".facematch"
}

// Load builds the configuration: defaults, then the YAML file at path when
// path is not empty, then FACEMATCH_* environment overrides.
//
// Arguments:
//   - path: Optional YAML file.
//
// Returns:
//   - *Config: The validated configuration.
//   - error: An error if the file cannot be read or the result is invalid.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrap(err, "open config")
		}
		defer f.Close()

		if err := cfg.decode(f); err != nil {
			return nil, errors.Wrapf(err, "config %s", path)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "read config")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return errors.Wrap(err, "parse config")
	}
	return nil
}

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides fields from FACEMATCH_* variables.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return errors.Wrapf(err, "%s%s", EnvPrefix, key)
			}
			*dst = b
		}
		return nil
	}

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("CAMERA_RESOLUTION", &c.Camera.Resolution)
	str("DETECTOR", &c.Vision.Detector)
	str("COMPARATOR", &c.Vision.Comparator)
	str("ORT_LIBRARY", &c.Vision.UltraFace.LibraryPath)
	str("ASSETS_DIR", &c.Assets.Dir)
	str("CACHE_DIR", &c.Assets.CacheDir)
	str("REFERENCE", &c.Assets.Reference)
	str("SERVER_ADDR", &c.Server.Addr)

	if v, ok := lookup(EnvPrefix + "CAMERA_DEVICES"); ok && v != "" {
		c.Camera.Devices = strings.Split(v, ",")
	}
	if v, ok := lookup(EnvPrefix + "FRAME_DIRS"); ok && v != "" {
		c.Camera.FrameDirs = strings.Split(v, string(os.PathListSeparator))
	}
	if v, ok := lookup(EnvPrefix + "CAMERA_INDEX"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "%sCAMERA_INDEX", EnvPrefix)
		}
		c.Camera.Index = n
	}
	if err := boolean("DISPLAY", &c.Display.Enabled); err != nil {
		return err
	}
	if err := boolean("SERVER", &c.Server.Enabled); err != nil {
		return err
	}
	return boolean("PROFILER", &c.Profiler.Enabled)
}

// Validate checks the values that cannot be corrected at runtime.
func (c *Config) Validate() error {
	if c.Camera.Index != 0 && c.Camera.Index != 1 {
		return errors.Errorf("camera.index must be 0 or 1, got %d", c.Camera.Index)
	}
	if len(c.Camera.Devices) > 2 {
		return errors.Errorf("camera.devices holds at most 2 entries, got %d", len(c.Camera.Devices))
	}
	if _, _, err := camera.Devices(c.Camera.Devices).Resolve(c.Camera.Index); err != nil {
		return errors.Wrap(err, "camera.devices")
	}
	if c.Camera.Resolution != "" {
		if _, err := images.ParseResolution(c.Camera.Resolution); err != nil {
			return errors.Wrap(err, "camera.resolution")
		}
	}
	switch c.Vision.Detector {
	case DetectorCascade, DetectorPigo, DetectorUltraFace:
	default:
		return errors.Errorf("vision.detector %q is not one of %s, %s, %s",
			c.Vision.Detector, DetectorCascade, DetectorPigo, DetectorUltraFace)
	}
	switch c.Vision.Comparator {
	case ComparatorOpenCV, ComparatorNative:
	default:
		return errors.Errorf("vision.comparator %q is not one of %s, %s",
			c.Vision.Comparator, ComparatorOpenCV, ComparatorNative)
	}
	if c.Notify.QueueSize <= 0 {
		return errors.New("notify.queueSize must be positive")
	}
	if c.Server.Enabled && c.Server.Addr == "" {
		return errors.New("server.addr is required when the server is enabled")
	}
	return nil
}

// Resolution returns the parsed capture resolution, zero when unset.
func (c *Config) Resolution() images.Resolution {
	res, err := images.ParseResolution(c.Camera.Resolution)
	if err != nil {
		return images.Resolution{}
	}
	return res
}
