// Package orchestrator drives the stages in canonical order and owns the
// failure policy: transport retries with backoff, a single boosted retry on
// silent token exhaustion, and an artifact dump of whatever the run produced
// whether it finished or aborted.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/YenAle-FT-Gmail/yensense/pipeline/contract"
	llmx "github.com/YenAle-FT-Gmail/yensense/pipeline/llm"
	stagesx "github.com/YenAle-FT-Gmail/yensense/pipeline/stages"
	statex "github.com/YenAle-FT-Gmail/yensense/pipeline/state"
)

type Config struct {
	MaxRetries     int           `envconfig:"MAX_RETRIES" split_words:"true" default:"3"`
	BaseBackoff    time.Duration `envconfig:"BASE_BACKOFF" split_words:"true" default:"500ms"`
	BudgetGrowth   float64       `envconfig:"BUDGET_GROWTH" split_words:"true" default:"2.0"`
	ArtifactDir    string        `envconfig:"ARTIFACT_DIR" split_words:"true" default:"logs/pipeline_contexts"`
	MaxFetchRounds int           `envconfig:"MAX_FETCH_ROUNDS" split_words:"true" default:"1"`
}

func (c Config) Validate() error {
	if c.MaxRetries < 1 {
		return fmt.Errorf("%w: max retries must be at least 1", contractx.ErrValidation)
	}
	if c.BudgetGrowth <= 1 {
		return fmt.Errorf("%w: budget growth must exceed 1", contractx.ErrValidation)
	}
	return nil
}

// Orchestrator runs a fixed stage list against one context per run.
type Orchestrator struct {
	cfg    Config
	stages []stagesx.Stage

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// New validates the stage list up front: names must be unique and no two
// stages may claim the same output key, otherwise the write-once context
// would guarantee a mid-run conflict.
func New(cfg Config, stages []stagesx.Stage) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("%w: no stages", contractx.ErrValidation)
	}
	names := make(map[string]bool, len(stages))
	owners := make(map[string]string)
	for _, st := range stages {
		name := st.Name()
		if name == "" {
			return nil, fmt.Errorf("%w: stage with empty name", contractx.ErrValidation)
		}
		if names[name] {
			return nil, fmt.Errorf("%w: duplicate stage name %q", contractx.ErrValidation, name)
		}
		names[name] = true
		for _, key := range st.Outputs() {
			if owner, taken := owners[key]; taken {
				return nil, fmt.Errorf("%w: output key %q claimed by both %s and %s", contractx.ErrKeyConflict, key, owner, name)
			}
			owners[key] = name
		}
	}
	return &Orchestrator{cfg: cfg, stages: stages, sleep: sleepCtx}, nil
}

// RunFull executes every stage against a fresh context seeded with the
// market snapshot. The returned context is always non-nil and holds whatever
// was produced before any failure.
func (o *Orchestrator) RunFull(ctx context.Context, runDate time.Time, snapshot any) (*statex.Context, error) {
	pc := statex.New(runDate)
	if err := pc.Set(contractx.KeySnapshot, snapshot); err != nil {
		return pc, err
	}
	return pc, o.run(ctx, pc, o.stages)
}

// RunPartial executes only the named stages, in canonical order, against a
// caller-provided context. Before anything runs, every selected stage must
// have its inputs either already in the context or produced by an earlier
// selected stage; partial runs never backfill missing work.
func (o *Orchestrator) RunPartial(ctx context.Context, pc *statex.Context, names []string) error {
	selected, err := o.resolve(names)
	if err != nil {
		return err
	}
	pending := make(map[string]bool)
	for _, st := range selected {
		for _, key := range st.Inputs() {
			if !pc.Has(key) && !pending[key] {
				return fmt.Errorf("%w: stage %s requires key %q", contractx.ErrMissingDependency, st.Name(), key)
			}
		}
		for _, key := range st.Outputs() {
			pending[key] = true
		}
	}
	return o.run(ctx, pc, selected)
}

func (o *Orchestrator) resolve(names []string) ([]stagesx.Stage, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no stages selected", contractx.ErrValidation)
	}
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		found := false
		for _, st := range o.stages {
			if st.Name() == name {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: unknown stage %q", contractx.ErrValidation, name)
		}
		wanted[name] = true
	}
	var selected []stagesx.Stage
	for _, st := range o.stages {
		if wanted[st.Name()] {
			selected = append(selected, st)
		}
	}
	return selected, nil
}

func (o *Orchestrator) run(ctx context.Context, pc *statex.Context, selected []stagesx.Stage) error {
	for _, st := range selected {
		if err := ctx.Err(); err != nil {
			pc.Record(st.Name(), contractx.StatusFailed, err)
			o.persist(pc)
			return err
		}
		log.Info().Str("run_id", pc.RunID).Str("stage", st.Name()).Msg("stage starting")
		if err := o.runStage(ctx, pc, st); err != nil {
			o.persist(pc)
			return fmt.Errorf("stage %s: %w", st.Name(), err)
		}
	}
	o.persist(pc)
	return nil
}

// runStage applies the per-attempt policy. Transport failures back off and
// retry up to the limit; a silent exhaustion gets exactly one retry with the
// token budget scaled up; everything else fails the stage immediately.
func (o *Orchestrator) runStage(ctx context.Context, pc *statex.Context, st stagesx.Stage) error {
	boosted := false
	transportTries := 0
	for {
		attemptCtx := ctx
		if boosted {
			attemptCtx = llmx.WithBudgetScale(ctx, o.cfg.BudgetGrowth)
		}
		err := st.Run(attemptCtx, pc)
		if err == nil {
			// A nil return without the declared outputs is a failed attempt,
			// not a success.
			for _, key := range st.Outputs() {
				if !pc.Has(key) {
					err := fmt.Errorf("%w: stage %s finished without writing %q", contractx.ErrValidation, st.Name(), key)
					pc.Record(st.Name(), contractx.StatusFailed, err)
					return err
				}
			}
			pc.Record(st.Name(), contractx.StatusSucceeded, nil)
			return nil
		}

		switch {
		case errors.Is(err, contractx.ErrTransport):
			transportTries++
			if transportTries >= o.cfg.MaxRetries {
				pc.Record(st.Name(), contractx.StatusFailed, err)
				return err
			}
			pc.Record(st.Name(), contractx.StatusRetried, err)
			backoff := o.cfg.BaseBackoff << (transportTries - 1)
			log.Warn().Err(err).Str("stage", st.Name()).Dur("backoff", backoff).Msg("transport failure, retrying")
			if serr := o.sleep(ctx, backoff); serr != nil {
				pc.Record(st.Name(), contractx.StatusFailed, serr)
				return serr
			}
		case errors.Is(err, contractx.ErrSilentExhaustion):
			if boosted {
				pc.Record(st.Name(), contractx.StatusFailed, err)
				return err
			}
			boosted = true
			pc.Record(st.Name(), contractx.StatusRetried, err)
			log.Warn().Err(err).Str("stage", st.Name()).Float64("budget_growth", o.cfg.BudgetGrowth).Msg("silent token exhaustion, retrying with larger budget")
		default:
			pc.Record(st.Name(), contractx.StatusFailed, err)
			return err
		}
	}
}

// persist writes the context artifact. Runs and aborts both dump; a failed
// dump is logged, never surfaced, so it cannot mask the run's own outcome.
func (o *Orchestrator) persist(pc *statex.Context) {
	path, err := statex.WriteArtifact(o.cfg.ArtifactDir, pc)
	if err != nil {
		log.Error().Err(err).Str("run_id", pc.RunID).Msg("context artifact write failed")
		return
	}
	log.Info().Str("run_id", pc.RunID).Str("path", path).Msg("context artifact written")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
