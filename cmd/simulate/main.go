package main

import (
	"encoding/gob"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Noofbiz/stripCloud/config"
	"github.com/Noofbiz/stripCloud/datasets"
	"github.com/Noofbiz/stripCloud/detector"
	"github.com/Noofbiz/stripCloud/monte"
	"github.com/Noofbiz/stripCloud/report"
)

// options are the CLI-only settings; everything else lives in config.Config.
type options struct {
	ConfigPath    string
	DataPath      string
	OutDir        string
	TensorOut     string
	NoPlots       bool
	PrintConfig   bool
	ProgressEvery time.Duration
}

// manifest is written next to the CSV so a run can be traced back to its
// inputs.
type manifest struct {
	RunID      string                  `json:"run_id"`
	StartedAt  time.Time               `json:"started_at"`
	Duration   string                  `json:"duration"`
	DataFile   string                  `json:"data_file"`
	Deposits   int                     `json:"deposits"`
	Config     *config.Config          `json:"config"`
	Fit        fitSummary              `json:"gaussian_fit"`
	Strips     int                     `json:"strips"`
	Centers    int                     `json:"centers"`
	Trials     int                     `json:"trials"`
	Unresolved int                     `json:"unresolved"`
	Summary    []summaryJSON           `json:"summary"`
	ByCenter   map[string][]centerJSON `json:"by_center"`
	Outputs    map[string]string       `json:"outputs"`
}

// jsonFloat writes NaN and ±Inf as null, which encoding/json rejects.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

type fitSummary struct {
	Mean     jsonFloat `json:"mean"`
	MeanErr  jsonFloat `json:"mean_err"`
	Sigma    jsonFloat `json:"sigma"`
	SigmaErr jsonFloat `json:"sigma_err"`
}

type summaryJSON struct {
	Method  string    `json:"method"`
	Count   int       `json:"count"`
	Missing int       `json:"missing"`
	Mean    jsonFloat `json:"mean"`
	StdDev  jsonFloat `json:"std_dev"`
	RMS     jsonFloat `json:"rms"`
}

type centerJSON struct {
	TruePosition float64   `json:"true_position"`
	Count        int       `json:"count"`
	Mean         jsonFloat `json:"mean"`
	StdDev       jsonFloat `json:"std_dev"`
}

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file (optional)")
	dataPath := flag.String("data", "", "electron cloud file (x y E, micrometres); searched under data/ when empty")
	outDir := flag.String("out", "output", "output directory for the result table, manifest and plots")
	tensorOut := flag.String("tensor-out", "", "if set, gob-serialize the result table as a gomlx tensor to this path")
	noPlots := flag.Bool("no-plots", false, "skip PNG and HTML outputs")
	printConfig := flag.Bool("print-config", false, "print the effective (defaults+YAML+env+CLI) configuration and exit")
	progress := flag.Duration("progress-interval", 3*time.Second, "progress logging interval (0 disables)")

	// Flags overriding configuration values; applied only when set.
	seed := flag.Uint64("seed", 0, "seed for the per-trial generators (overrides config)")
	workers := flag.Int("workers", 0, "number of trial workers, 0 = NumCPU (overrides config)")
	profile := flag.String("profile", "", "charge profile: spline or gaussian (overrides config)")
	trials := flag.Int("n", 0, "number of electron clouds per position (overrides config)")
	noise := flag.Float64("noise", 0, "standard deviation of the noise (overrides config)")
	threshold := flag.Float64("threshold", 0, "strip threshold (overrides config)")
	selection := flag.String("cluster-selection", "", "cluster selection: charge, width or peak (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "seed":
			cfg.Seed = *seed
		case "workers":
			cfg.Workers = *workers
		case "profile":
			cfg.Profile = strings.ToLower(*profile)
		case "n":
			cfg.NumberOfElectronClouds = *trials
		case "noise":
			cfg.StdDeviationOfTheNoise = *noise
		case "threshold":
			cfg.Threshold = *threshold
		case "cluster-selection":
			cfg.ClusterSelection = *selection
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	opts := options{
		ConfigPath:    *configPath,
		DataPath:      *dataPath,
		OutDir:        *outDir,
		TensorOut:     *tensorOut,
		NoPlots:       *noPlots,
		PrintConfig:   *printConfig,
		ProgressEvery: *progress,
	}

	if opts.PrintConfig {
		b, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			log.Fatalf("failed to marshal configuration: %v", err)
		}
		fmt.Println(string(b))
		return
	}

	if err := run(cfg, opts); err != nil {
		log.Fatalf("simulation failed: %v", err)
	}
}

// run executes one full simulation: load the cloud, build the profile, run
// every trial and write the outputs into opts.OutDir.
func run(cfg *config.Config, opts options) error {
	started := time.Now()
	runID := uuid.New().String()
	log.Printf("Run %s starting (seed=%d, profile=%s)", runID, cfg.Seed, cfg.Profile)

	path, err := datasets.FindCloudFile(opts.DataPath)
	if err != nil {
		return err
	}
	cloud, err := datasets.LoadCloud(path)
	if err != nil {
		return err
	}
	log.Printf("Loaded electron cloud %s: deposits=%d distinct x=%d", path, cloud.Len(), cloud.DistinctX())

	proj, err := cloud.XProjection()
	if err != nil {
		return err
	}
	fit, err := datasets.FitGaussian(proj)
	if err != nil {
		return err
	}
	log.Printf("Gaussian fit: mean=%.5f±%.5f sigma=%.5f±%.5f", fit.Mean, fit.MeanErr(), fit.Sigma, fit.SigmaErr())

	spline, err := datasets.NewSplineProfile(proj)
	if err != nil {
		return fmt.Errorf("build spline profile: %w", err)
	}
	log.Printf("Spline profile: %d knots, centroid=%.5f", proj.Len(), spline.Centroid())

	var prof detector.Profile = spline
	if strings.ToLower(cfg.Profile) == config.ProfileGaussian {
		if prof, err = datasets.NewGaussianProfile(fit.Sigma); err != nil {
			return fmt.Errorf("build gaussian profile: %w", err)
		}
	}

	runner, err := monte.FromConfig(cfg, prof)
	if err != nil {
		return err
	}
	runner.ProgressInterval = opts.ProgressEvery
	log.Printf("Running %d trials: %d strips, %d cloud positions x %d clouds, %d workers requested",
		runner.Trials(), runner.Grid.Len(), len(runner.Centers), runner.Repetitions, cfg.Workers)

	table, err := runner.Run()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return err
	}
	outputs := map[string]string{}

	csvPath := filepath.Join(opts.OutDir, "results.csv")
	if err := writeCSV(csvPath, table); err != nil {
		return err
	}
	outputs["csv"] = csvPath
	log.Printf("Wrote %d rows to %s", table.Len(), csvPath)

	if opts.TensorOut != "" {
		if err := writeTensor(opts.TensorOut, table); err != nil {
			return err
		}
		outputs["tensor"] = opts.TensorOut
		log.Printf("Saved result tensor to %s", opts.TensorOut)
	}

	if !opts.NoPlots {
		plots := []struct {
			key, file string
			draw      func(string) error
		}{
			{"projection", "projection.png", func(p string) error {
				return report.ProjectionPlot(p, proj, spline.Resample(), fit, runner.Grid.Positions())
			}},
			{"cloud", "cloud.png", func(p string) error { return report.CloudHistogram(p, cloud, 0) }},
			{"error_histograms", "errors.png", func(p string) error { return report.ErrorHistograms(p, table, 0) }},
			{"error_vs_position", "error_vs_position.png", func(p string) error { return report.ErrorVsPosition(p, table) }},
			{"html", "errors.html", func(p string) error {
				return report.SaveHTML(p, table, fmt.Sprintf("run %s, seed %d, %d trials", runID, cfg.Seed, table.Len()))
			}},
		}
		for _, pl := range plots {
			p := filepath.Join(opts.OutDir, pl.file)
			if err := pl.draw(p); err != nil {
				// A missing figure should not throw away a finished run.
				log.Printf("warning: %s: %v", pl.key, err)
				continue
			}
			outputs[pl.key] = p
		}
	}

	for _, s := range table.Summary() {
		log.Printf("%-12s count=%d missing=%d mean=%+.5f std=%.5f rms=%.5f", s.Method, s.Count, s.Missing, s.Mean, s.StdDev, s.RMS)
	}

	m := manifest{
		RunID:      runID,
		StartedAt:  started,
		Duration:   time.Since(started).String(),
		DataFile:   path,
		Deposits:   cloud.Len(),
		Config:     cfg,
		Strips:     runner.Grid.Len(),
		Centers:    len(runner.Centers),
		Trials:     table.Len(),
		Unresolved: table.Unresolved(),
		ByCenter:   map[string][]centerJSON{},
		Outputs:    outputs,
		Fit: fitSummary{
			Mean:     jsonFloat(fit.Mean),
			MeanErr:  jsonFloat(fit.MeanErr()),
			Sigma:    jsonFloat(fit.Sigma),
			SigmaErr: jsonFloat(fit.SigmaErr()),
		},
	}
	for _, s := range table.Summary() {
		m.Summary = append(m.Summary, summaryJSON{
			Method:  s.Method,
			Count:   s.Count,
			Missing: s.Missing,
			Mean:    jsonFloat(s.Mean),
			StdDev:  jsonFloat(s.StdDev),
			RMS:     jsonFloat(s.RMS),
		})
	}
	for _, meth := range table.Methods() {
		for _, c := range table.ByCenter(meth) {
			m.ByCenter[meth.String()] = append(m.ByCenter[meth.String()], centerJSON{
				TruePosition: c.TruePosition,
				Count:        c.Count,
				Mean:         jsonFloat(c.Mean),
				StdDev:       jsonFloat(c.StdDev),
			})
		}
	}
	manifestPath := filepath.Join(opts.OutDir, "manifest.json")
	if err := writeManifest(manifestPath, m); err != nil {
		return err
	}
	log.Printf("Run %s finished in %s; manifest at %s", runID, m.Duration, manifestPath)
	return nil
}

func writeCSV(path string, table *monte.ResultTable) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := table.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeTensor(path string, table *monte.ResultTable) error {
	t, err := table.ToGomlxTensor()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := t.GobSerialize(gob.NewEncoder(f)); err != nil {
		f.Close()
		return fmt.Errorf("serialize tensor: %w", err)
	}
	return f.Close()
}

func writeManifest(path string, m manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}
