package monte

import (
	"fmt"

	"github.com/Noofbiz/stripCloud/config"
	"github.com/Noofbiz/stripCloud/detector"
	"github.com/Noofbiz/stripCloud/estimate"
)

// FromConfig validates cfg and assembles a Runner for it: the strip grid,
// a sampler over profile, the clusterizer, the three estimators and the
// sweep of cloud centres spaced at cfg.CloudStep().
func FromConfig(cfg *config.Config, profile detector.Profile) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	grid, err := detector.NewGrid(cfg.FirstStripPosition, cfg.LastStripPosition, cfg.Pitch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	sampler, err := detector.NewSampler(grid, profile, cfg.StripWidth, cfg.SamplesPerStrip)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	selection, err := detector.ParseSelection(cfg.ClusterSelection)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	centers, err := detector.Arange(cfg.FirstCloudPosition, cfg.LastCloudPosition, cfg.CloudStep())
	if err != nil {
		return nil, fmt.Errorf("%w: cloud sweep: %v", config.ErrInvalid, err)
	}
	return NewRunner(grid, sampler,
		detector.Clusterizer{Threshold: cfg.Threshold, Selection: selection},
		estimate.Default(cfg.LogReferenceFraction),
		centers,
		Options{
			Repetitions: cfg.NumberOfElectronClouds,
			NoiseSigma:  cfg.StdDeviationOfTheNoise,
			Seed:        cfg.Seed,
			Workers:     cfg.Workers,
		})
}
