// Package evolve searches for segment-shape adjustments that minimize total
// completion time. Control-point positions are the genome; fitness is the
// simulated total time, with any constraint violation making a candidate
// infeasible outright (hard-constraint policy: infeasible genomes never
// propagate).
//
// An optimization run owns its population for the run's duration and is
// discarded on completion or cancellation; the caller's segment list is never
// touched.
package evolve

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"
	"sync"

	"github.com/npillmayer/schuko/tracing"
	"gonum.org/v1/gonum/stat"

	"github.com/mecanumlab/fieldpath"
	"github.com/mecanumlab/fieldpath/motion"
	"github.com/mecanumlab/fieldpath/plan"
	"github.com/mecanumlab/fieldpath/zone"
)

// tracer writes to trace with key 'fieldpath.evolve'
func tracer() tracing.Trace {
	return tracing.Select("fieldpath.evolve")
}

var (
	// ErrInvalidConfig indicates optimizer parameters rejected before any
	// generation runs.
	ErrInvalidConfig = errors.New("invalid optimizer configuration")
	// ErrInfeasible is the terminal failure outcome: no genome satisfied the
	// constraints within the configured generations. Distinct from a successful
	// but unimproved result.
	ErrInfeasible = errors.New("optimization failed: no feasible path found")
)

// Config are the optimizer parameters. Defaults are an editor concern;
// DefaultConfig ships neutral values.
type Config struct {
	Population  int
	Generations int

	// MutationRate is the per-control-point mutation probability in [0,1].
	MutationRate float64
	// MutationStrength bounds the displacement vector length, in inches.
	MutationStrength float64

	// Elite is the number of best genomes copied unchanged into the next
	// generation; values below 1 mean 1 (the best always survives).
	Elite int

	// Parallelism bounds concurrent fitness evaluations; 0 means GOMAXPROCS.
	// Results are reduced in fixed index order, so the outcome does not
	// depend on this.
	Parallelism int

	// Seed for the mutation source; 0 draws fresh entropy. A fixed seed
	// reproduces a run exactly.
	Seed uint64
}

// DefaultConfig returns a small but usable configuration.
func DefaultConfig() Config {
	return Config{
		Population:       32,
		Generations:      64,
		MutationRate:     0.2,
		MutationStrength: 6,
		Elite:            1,
	}
}

func (c Config) validate() error {
	if c.Population < 2 {
		return fmt.Errorf("%w: population %d below usable minimum 2", ErrInvalidConfig, c.Population)
	}
	if c.Generations < 1 {
		return fmt.Errorf("%w: generations %d", ErrInvalidConfig, c.Generations)
	}
	if c.MutationRate < 0 || c.MutationRate > 1 || math.IsNaN(c.MutationRate) {
		return fmt.Errorf("%w: mutation rate %g outside [0,1]", ErrInvalidConfig, c.MutationRate)
	}
	if c.MutationStrength < 0 || math.IsNaN(c.MutationStrength) || math.IsInf(c.MutationStrength, 0) {
		return fmt.Errorf("%w: mutation strength %g", ErrInvalidConfig, c.MutationStrength)
	}
	return nil
}

// Progress is invoked once per generation with the best fitness seen so far
// (+Inf until a feasible genome appears).
type Progress func(generation int, bestTime float64)

// Result is a successful optimization outcome.
type Result struct {
	// Segments is the best genome's materialized segment list, independent
	// of the input (safe to apply or discard).
	Segments []plan.Segment
	// Time is the simulated total time of Segments.
	Time float64
	// Generations is the number of generations actually run (shorter than
	// configured when cancelled).
	Generations int
}

type genome struct {
	segments []plan.Segment
	fitness  float64
}

// Optimize evolves snap.Segments toward lower completion time under the
// snapshot's limits and the given zones.
//
// The call is cooperatively cancellable: ctx is checked once per generation
// boundary, and cancellation returns the best genome found so far rather
// than an error (before the first evaluation, that is the input itself).
// Only a run that evaluated at least one generation without finding a
// feasible genome fails, with ErrInfeasible.
func Optimize(ctx context.Context, snap motion.Snapshot, zones []plan.Zone, field plan.Field, cfg Config, progress Progress) (*Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := snap.Limits.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	run := &run{
		snap:   snap,
		seed:   plan.CopySegments(snap.Segments),
		zones:  plan.CopyZones(zones),
		field:  field,
		cfg:    cfg,
		par:    cfg.Parallelism,
		elite:  cfg.Elite,
		rng:    newRNG(cfg.Seed),
		bestFi: math.Inf(1),
	}
	if run.par <= 0 {
		run.par = runtime.GOMAXPROCS(0)
	}
	if run.elite < 1 {
		run.elite = 1
	}
	return run.evolve(ctx, progress)
}

func newRNG(seed uint64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(seed, seed))
}

type run struct {
	snap  motion.Snapshot
	seed  []plan.Segment
	zones []plan.Zone
	field plan.Field
	cfg   Config
	par   int
	elite int
	rng   *rand.Rand

	pop    []genome
	best   []plan.Segment
	bestFi float64
}

func (r *run) evolve(ctx context.Context, progress Progress) (*Result, error) {
	r.pop = r.initialPopulation()

	gens := 0
	for g := 0; g < r.cfg.Generations; g++ {
		select {
		case <-ctx.Done():
			tracer().Infof("optimization cancelled after %d generations", gens)
			return r.finish(gens)
		default:
		}

		r.evaluate()
		r.trackBest()
		gens = g + 1

		if progress != nil {
			progress(g, r.bestFi)
		}

		if g < r.cfg.Generations-1 {
			r.pop = r.nextGeneration()
		}
	}
	return r.finish(gens)
}

func (r *run) finish(gens int) (*Result, error) {
	if math.IsInf(r.bestFi, 1) {
		if gens == 0 {
			// Cancelled before the first evaluation. The input is still the
			// best known genome, so hand it back unchanged instead of
			// declaring the search infeasible.
			snap := r.snap
			snap.Segments = r.seed
			return &Result{
				Segments:    plan.CopySegments(r.seed),
				Time:        motion.Simulate(snap).Total,
				Generations: 0,
			}, nil
		}
		return nil, ErrInfeasible
	}
	return &Result{
		Segments:    plan.CopySegments(r.best),
		Time:        r.bestFi,
		Generations: gens,
	}, nil
}

// initialPopulation keeps genome 0 as the pristine seed and fills the rest
// with independent mutation passes over it. With a zero mutation rate the
// whole population equals the seed, which makes runs without mutation exact
// no-ops beyond evaluation.
func (r *run) initialPopulation() []genome {
	pop := make([]genome, r.cfg.Population)
	pop[0] = genome{segments: plan.CopySegments(r.seed)}
	for i := 1; i < len(pop); i++ {
		segs := plan.CopySegments(r.seed)
		r.mutate(segs)
		pop[i] = genome{segments: segs}
	}
	return pop
}

// evaluate computes every genome's fitness. Evaluations are pure and
// independent, so they run concurrently under a semaphore; results land in
// fixed slots, keeping the reduction deterministic.
func (r *run) evaluate() {
	var wg sync.WaitGroup
	sem := make(chan struct{}, r.par)
	for i := range r.pop {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			r.pop[idx].fitness = r.fitness(r.pop[idx].segments)
		}(i)
	}
	wg.Wait()

	times := make([]float64, 0, len(r.pop))
	for _, g := range r.pop {
		if !math.IsInf(g.fitness, 1) {
			times = append(times, g.fitness)
		}
	}
	if len(times) > 0 {
		tracer().Debugf("generation: %d/%d feasible, mean time %.3fs",
			len(times), len(r.pop), stat.Mean(times, nil))
	}
}

func (r *run) fitness(segs []plan.Segment) float64 {
	snap := r.snap
	snap.Segments = segs
	traj := motion.Simulate(snap)
	if markers := zone.Check(traj, r.field, r.zones, r.snap.Limits.ValidateBoundary); len(markers) > 0 {
		return math.Inf(1)
	}
	return traj.Total
}

// trackBest updates the best-so-far genome. Equal fitness keeps the earlier
// find, so repeated runs with the same seed report identical histories.
func (r *run) trackBest() {
	for i := range r.pop {
		if r.pop[i].fitness < r.bestFi {
			r.bestFi = r.pop[i].fitness
			r.best = plan.CopySegments(r.pop[i].segments)
		}
	}
}

// nextGeneration applies elitist selection: feasible genomes ranked by
// fitness (index as tie-break) survive, the top Elite unchanged, and the
// rest of the pool refills with mutated copies of survivors. When the whole
// generation is infeasible the pool reseeds from the pristine input.
func (r *run) nextGeneration() []genome {
	order := make([]int, len(r.pop))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return r.pop[order[a]].fitness < r.pop[order[b]].fitness
	})

	survivors := make([]genome, 0, len(r.pop)/2)
	for _, idx := range order {
		if math.IsInf(r.pop[idx].fitness, 1) {
			break // order is sorted, the rest are infeasible too
		}
		survivors = append(survivors, r.pop[idx])
		if len(survivors) >= len(r.pop)/2 {
			break
		}
	}

	next := make([]genome, 0, len(r.pop))
	if len(survivors) == 0 {
		tracer().Infof("generation fully infeasible, reseeding from input")
		next = append(next, genome{segments: plan.CopySegments(r.seed)})
		for len(next) < len(r.pop) {
			segs := plan.CopySegments(r.seed)
			r.mutate(segs)
			next = append(next, genome{segments: segs})
		}
		return next
	}

	for i := 0; i < r.elite && i < len(survivors); i++ {
		next = append(next, genome{segments: plan.CopySegments(survivors[i].segments)})
	}
	for i := 0; len(next) < len(r.pop); i++ {
		parent := survivors[i%len(survivors)]
		segs := plan.CopySegments(parent.segments)
		r.mutate(segs)
		next = append(next, genome{segments: segs})
	}
	return next
}

// mutate displaces unlocked endpoints and control points, each with the
// configured probability, by a uniformly random vector no longer than the
// mutation strength, then re-clamps into the field interior when field
// restriction is enabled. Locked segments never change.
func (r *run) mutate(segs []plan.Segment) {
	for si := range segs {
		if segs[si].Locked {
			continue
		}
		if !segs[si].End.Locked {
			segs[si].End.Pos = r.displace(segs[si].End.Pos)
		}
		for ci := range segs[si].Controls {
			if segs[si].Controls[ci].Locked {
				continue
			}
			segs[si].Controls[ci].Pos = r.displace(segs[si].Controls[ci].Pos)
		}
	}
}

func (r *run) displace(p fieldpath.Pair) fieldpath.Pair {
	if r.rng.Float64() >= r.cfg.MutationRate {
		return p
	}
	radius := r.rng.Float64() * r.cfg.MutationStrength
	theta := r.rng.Float64() * 2 * math.Pi
	p = p.Shifted(fieldpath.P(radius*math.Cos(theta), radius*math.Sin(theta)))
	if r.snap.Limits.RestrictToField {
		p = r.field.ClampInterior(p, r.snap.Limits.Inset())
	}
	return p
}
