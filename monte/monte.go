package monte

import (
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Noofbiz/stripCloud/detector"
	"github.com/Noofbiz/stripCloud/estimate"
)

// Logf is the package-level progress logger. It defaults to log.Printf;
// tests or callers can replace it (nil-safe via SetLogger).
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil mutes it.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Sampler is the part of detector.Sampler the runner needs: nominal strip
// charges for a cloud centre.
type Sampler interface {
	Sample(center float64) []float64
}

// Runner is the Monte Carlo driver. For every true cloud centre in Centers
// it runs Repetitions noisy trials through
//
//	SAMPLE -> NOISE -> CLUSTER -> ESTIMATE (one per estimator) -> RECORD
//
// and appends one Row per trial to the result table.
//
// Every trial owns its generator, seeded from (Seed, trial index), so the
// table is bit-identical for a given seed whatever the worker count.
type Runner struct {
	Grid        *detector.Grid
	Sampler     Sampler
	Clusterizer detector.Clusterizer
	Estimators  []estimate.Estimator

	// Centers are the true cloud centres swept by the run.
	Centers []float64

	// Repetitions is the number of noise realizations per centre.
	Repetitions int

	// NoiseSigma is the standard deviation of the electronic noise.
	NoiseSigma float64

	Seed uint64

	// Workers bounds the worker pool; 0 means runtime.NumCPU().
	Workers int

	// ProgressInterval controls how often Run logs progress. Zero disables
	// progress logging.
	ProgressInterval time.Duration
}

// Options groups the scalar settings of NewRunner.
type Options struct {
	Repetitions int
	NoiseSigma  float64
	Seed        uint64
	Workers     int
}

// NewRunner validates the configuration and returns a runner. Any error
// here is a configuration error: no trial has been run.
func NewRunner(grid *detector.Grid, sampler Sampler, clusterizer detector.Clusterizer,
	estimators []estimate.Estimator, centers []float64, opts Options) (*Runner, error) {
	if grid == nil || grid.Len() == 0 {
		return nil, fmt.Errorf("%w: runner needs a non-empty strip grid", detector.ErrInvalidGeometry)
	}
	if sampler == nil {
		return nil, errors.New("runner needs a strip sampler")
	}
	if len(estimators) == 0 {
		return nil, errors.New("runner needs at least one estimator")
	}
	if len(centers) == 0 {
		return nil, errors.New("runner needs at least one cloud centre")
	}
	for i := 1; i < len(centers); i++ {
		if centers[i] <= centers[i-1] {
			return nil, fmt.Errorf("cloud centres must be strictly increasing (index %d)", i)
		}
	}
	if opts.Repetitions < 1 {
		return nil, fmt.Errorf("repetitions must be >= 1, got %d", opts.Repetitions)
	}
	if opts.NoiseSigma < 0 || math.IsNaN(opts.NoiseSigma) {
		return nil, fmt.Errorf("noise sigma must be >= 0, got %v", opts.NoiseSigma)
	}
	if opts.Workers < 0 {
		return nil, fmt.Errorf("workers must be >= 0, got %d", opts.Workers)
	}
	cp := make([]float64, len(centers))
	copy(cp, centers)
	return &Runner{
		Grid:             grid,
		Sampler:          sampler,
		Clusterizer:      clusterizer,
		Estimators:       estimators,
		Centers:          cp,
		Repetitions:      opts.Repetitions,
		NoiseSigma:       opts.NoiseSigma,
		Seed:             opts.Seed,
		Workers:          opts.Workers,
		ProgressInterval: 3 * time.Second,
	}, nil
}

// Trials returns the total number of trials Run will execute.
func (r *Runner) Trials() int {
	return len(r.Centers) * r.Repetitions
}

// TrialSource returns the generator owned by trial idx.
func (r *Runner) TrialSource(idx int) rand.Source {
	return rand.NewPCG(r.Seed, uint64(idx))
}

// Run executes every trial and returns the filled table.
func (r *Runner) Run() (*ResultTable, error) {
	if r == nil {
		return nil, errors.New("runner is nil")
	}
	n := r.Trials()
	if n == 0 {
		return nil, errors.New("runner has no trials to run")
	}

	// Nominal charges depend only on the centre; compute them once.
	nominal := make([][]float64, len(r.Centers))
	for i, c := range r.Centers {
		nominal[i] = r.Sampler.Sample(c)
		if len(nominal[i]) != r.Grid.Len() {
			return nil, fmt.Errorf("sampler returned %d strips for a %d-strip grid", len(nominal[i]), r.Grid.Len())
		}
	}

	// Preallocate rows so workers can safely write distinct indices.
	rows := make([]Row, n)

	workers := r.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}

	jobs := make(chan int, n)
	errCh := make(chan error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)

	var done int64
	stopProgress := r.startProgress(&done, n)

	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				ci := idx / r.Repetitions
				row, err := r.runTrial(idx, ci, nominal[ci])
				if err != nil {
					errCh <- err
					return
				}
				rows[idx] = row
				atomic.AddInt64(&done, 1)
			}
		}()
	}

	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	stopProgress()
	close(errCh)

	if err := <-errCh; err != nil {
		return nil, err
	}

	table := NewResultTable(r.methods())
	for _, row := range rows {
		table.Append(row)
	}
	return table, nil
}

// startProgress logs periodic progress until the returned func is called.
func (r *Runner) startProgress(done *int64, n int) func() {
	if r.ProgressInterval <= 0 {
		return func() {}
	}
	ticker := time.NewTicker(r.ProgressInterval)
	stop := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d := atomic.LoadInt64(done)
				Logf("[monte] progress: %d/%d trials (%.1f%%)", d, n, float64(d)/float64(n)*100)
			case <-stop:
				Logf("[monte] completed: %d/%d trials", atomic.LoadInt64(done), n)
				return
			}
		}
	}()
	return func() {
		close(stop)
		<-finished
	}
}

func (r *Runner) methods() []estimate.Method {
	ms := make([]estimate.Method, len(r.Estimators))
	for i, e := range r.Estimators {
		ms[i] = e.Method()
	}
	return ms
}

// runTrial pushes one noise realization through the pipeline. Numerical
// degeneracies (empty cluster, undefined centroid) are recorded as NaN in
// the row; only unexpected failures are returned.
func (r *Runner) runTrial(idx, centerIdx int, nominal []float64) (Row, error) {
	truth := r.Centers[centerIdx]
	row := Row{
		Trial:        idx,
		CenterIndex:  centerIdx,
		Repetition:   idx % r.Repetitions,
		TruePosition: truth,
		ClusterStart: -1,
	}

	// NOISE
	inj, err := detector.NewNoiseInjector(r.NoiseSigma, r.TrialSource(idx))
	if err != nil {
		return Row{}, err
	}
	reading := inj.Inject(nominal)

	// CLUSTER
	cluster := r.Clusterizer.Find(reading)
	row.Reconstructions = make([]Reconstruction, len(r.Estimators))
	if cluster.Empty() {
		for i := range row.Reconstructions {
			row.Reconstructions[i] = missing()
		}
		return row, nil
	}
	row.ClusterStart = cluster.Start
	row.ClusterSize = cluster.Len()
	row.ClusterCharge = cluster.Total()
	positions := r.Grid.Span(cluster.Start, cluster.Len())

	// ESTIMATE
	for i, est := range r.Estimators {
		pos, err := est.Estimate(positions, cluster.Charges)
		if err != nil {
			if errors.Is(err, estimate.ErrUndefinedPosition) {
				row.Reconstructions[i] = missing()
				continue
			}
			return Row{}, fmt.Errorf("trial %d: %v estimator: %w", idx, est.Method(), err)
		}
		row.Reconstructions[i] = Reconstruction{Position: pos, Error: pos - truth}
	}
	row.Resolved = true
	return row, nil
}
