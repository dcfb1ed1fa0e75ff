package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v2"
)

// ErrInvalid is wrapped by every validation failure. A configuration that
// fails validation must abort the run before any trial executes.
var ErrInvalid = errors.New("invalid configuration")

// Config holds every recognized simulation option. All lengths share the
// unit of the input dataset after rescaling (millimetres for Garfield++
// output), and charges are fractions of the total cloud charge.
//
// Values are layered: Defaults, then an optional YAML file, then
// environment variables named after the original constants
// (STRIP_WIDTH, PITCH, ...), then CLI flags applied by the caller.
type Config struct {
	// Grid geometry.
	StripWidth         float64 `yaml:"strip_width" json:"strip_width" env:"STRIP_WIDTH"`
	Pitch              float64 `yaml:"pitch" json:"pitch" env:"PITCH"`
	FirstStripPosition float64 `yaml:"first_strip_position" json:"first_strip_position" env:"FIRST_STRIP_POSITION"`
	LastStripPosition  float64 `yaml:"last_strip_position" json:"last_strip_position" env:"LAST_STRIP_POSITION"`

	// Sweep of true cloud centres, spaced at Pitch/10.
	FirstCloudPosition float64 `yaml:"first_cloud_position" json:"first_cloud_position" env:"FIRST_CLOUD_POSITION"`
	LastCloudPosition  float64 `yaml:"last_cloud_position" json:"last_cloud_position" env:"LAST_CLOUD_POSITION"`

	// Seed for every per-trial generator.
	Seed uint64 `yaml:"seed" json:"seed" env:"SEED"`

	// Detection sensitivity and noise magnitude.
	Threshold              float64 `yaml:"threshold" json:"threshold" env:"THRESHOLD"`
	StdDeviationOfTheNoise float64 `yaml:"std_deviation_of_the_noise" json:"std_deviation_of_the_noise" env:"STD_DEVIATION_OF_THE_NOISE"`
	NumberOfElectronClouds int     `yaml:"number_of_electron_clouds" json:"number_of_electron_clouds" env:"NUMBER_OF_ELECTRON_CLOUDS"`

	// ClusterSelection picks among several above-threshold runs:
	// "charge", "width" or "peak".
	ClusterSelection string `yaml:"cluster_selection" json:"cluster_selection" env:"CLUSTER_SELECTION"`

	// LogReferenceFraction scales the logarithmic estimator's reference
	// charge relative to the cluster maximum.
	LogReferenceFraction float64 `yaml:"log_reference_fraction" json:"log_reference_fraction" env:"LOG_REFERENCE_FRACTION"`

	// SamplesPerStrip is the number of sub-samples used when a profile has
	// to be integrated numerically over a strip.
	SamplesPerStrip int `yaml:"samples_per_strip" json:"samples_per_strip" env:"SAMPLES_PER_STRIP"`

	// Profile selects the charge profile source: "spline" (interpolated
	// measured projection) or "gaussian" (fitted width).
	Profile string `yaml:"profile" json:"profile" env:"PROFILE"`

	// Workers bounds the trial worker pool; 0 means runtime.NumCPU().
	Workers int `yaml:"workers" json:"workers" env:"WORKERS"`
}

// Recognized values for Profile.
const (
	ProfileSpline   = "spline"
	ProfileGaussian = "gaussian"
)

// Recognized values for ClusterSelection.
var clusterSelections = []string{"charge", "width", "peak"}

// Defaults returns the configuration used when nothing else is provided.
func Defaults() *Config {
	return &Config{
		StripWidth:             0.35,
		Pitch:                  0.4,
		FirstStripPosition:     -2.0,
		LastStripPosition:      2.0,
		FirstCloudPosition:     0.0,
		LastCloudPosition:      0.4,
		Seed:                   42,
		Threshold:              0.02,
		StdDeviationOfTheNoise: 0.01,
		NumberOfElectronClouds: 1000,
		ClusterSelection:       "charge",
		LogReferenceFraction:   0.05,
		SamplesPerStrip:        64,
		Profile:                ProfileSpline,
		Workers:                0,
	}
}

// Load builds a configuration from Defaults, the YAML file at path (skipped
// when path is empty) and the process environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile overlays the keys present in a YAML file onto c. Keys absent
// from the file keep their current values.
func (c *Config) mergeFile(path string) error {
	cleanPath := filepath.Clean(path)
	switch ext := strings.ToLower(filepath.Ext(cleanPath)); ext {
	case ".yaml", ".yml":
	default:
		return fmt.Errorf("config file must have .yaml or .yml extension, got %q", ext)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return fmt.Errorf("unmarshal config %s: %w", cleanPath, err)
	}
	return nil
}

// ApplyEnv overrides fields from environment variables that are set.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// CloudStep is the spacing of the swept cloud centres.
func (c *Config) CloudStep() float64 {
	return c.Pitch / 10
}

// Validate reports the first configuration problem found, wrapped in
// ErrInvalid.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalid)
	}
	finite := []struct {
		name string
		v    float64
	}{
		{"strip_width", c.StripWidth},
		{"pitch", c.Pitch},
		{"first_strip_position", c.FirstStripPosition},
		{"last_strip_position", c.LastStripPosition},
		{"first_cloud_position", c.FirstCloudPosition},
		{"last_cloud_position", c.LastCloudPosition},
		{"threshold", c.Threshold},
		{"std_deviation_of_the_noise", c.StdDeviationOfTheNoise},
		{"log_reference_fraction", c.LogReferenceFraction},
	}
	for _, f := range finite {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s must be finite, got %v", ErrInvalid, f.name, f.v)
		}
	}
	if c.Pitch <= 0 {
		return fmt.Errorf("%w: pitch must be > 0, got %v", ErrInvalid, c.Pitch)
	}
	if c.StripWidth <= 0 {
		return fmt.Errorf("%w: strip_width must be > 0, got %v", ErrInvalid, c.StripWidth)
	}
	if c.LastStripPosition <= c.FirstStripPosition {
		return fmt.Errorf("%w: last_strip_position (%v) must be greater than first_strip_position (%v)",
			ErrInvalid, c.LastStripPosition, c.FirstStripPosition)
	}
	if c.LastCloudPosition <= c.FirstCloudPosition {
		return fmt.Errorf("%w: last_cloud_position (%v) must be greater than first_cloud_position (%v)",
			ErrInvalid, c.LastCloudPosition, c.FirstCloudPosition)
	}
	if c.Threshold < 0 {
		return fmt.Errorf("%w: threshold must be >= 0, got %v", ErrInvalid, c.Threshold)
	}
	if c.StdDeviationOfTheNoise < 0 {
		return fmt.Errorf("%w: std_deviation_of_the_noise must be >= 0, got %v", ErrInvalid, c.StdDeviationOfTheNoise)
	}
	if c.NumberOfElectronClouds < 1 {
		return fmt.Errorf("%w: number_of_electron_clouds must be >= 1, got %d", ErrInvalid, c.NumberOfElectronClouds)
	}
	if c.LogReferenceFraction <= 0 || c.LogReferenceFraction >= 1 {
		return fmt.Errorf("%w: log_reference_fraction must be in (0, 1), got %v", ErrInvalid, c.LogReferenceFraction)
	}
	if c.SamplesPerStrip < 2 {
		return fmt.Errorf("%w: samples_per_strip must be >= 2, got %d", ErrInvalid, c.SamplesPerStrip)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", ErrInvalid, c.Workers)
	}
	switch strings.ToLower(c.Profile) {
	case ProfileSpline, ProfileGaussian:
	default:
		return fmt.Errorf("%w: profile must be %q or %q, got %q", ErrInvalid, ProfileSpline, ProfileGaussian, c.Profile)
	}
	known := false
	for _, s := range clusterSelections {
		if strings.EqualFold(c.ClusterSelection, s) {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("%w: cluster_selection must be one of %v, got %q", ErrInvalid, clusterSelections, c.ClusterSelection)
	}
	return nil
}
