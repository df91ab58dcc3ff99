// Package sim drives an engine through scripted or randomized operations.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"becoin/internal/config"
	"becoin/internal/domain"
	"becoin/internal/engine"
)

// ManualClock is a settable clock for deterministic runs.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start.UTC()}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Report summarizes a run.
type Report struct {
	Steps             int            `json:"steps"`
	Applied           int            `json:"applied"`
	InsufficientFunds int            `json:"insufficient_funds"`
	Errors            []string       `json:"errors,omitempty"`
	Ops               map[string]int `json:"ops"`
	FinalBalance      float64        `json:"final_balance"`
	MinBalance        float64        `json:"min_balance"`
}

func newReport(e *engine.Engine) *Report {
	b := e.Balance()
	return &Report{Ops: map[string]int{}, FinalBalance: b, MinBalance: b}
}

func (r *Report) record(e *engine.Engine, op string, err error) {
	r.Steps++
	r.Ops[op]++
	switch {
	case err == nil:
		r.Applied++
	case errors.Is(err, engine.ErrInsufficientFunds):
		r.InsufficientFunds++
	default:
		r.Errors = append(r.Errors, err.Error())
	}
	r.FinalBalance = e.Balance()
	r.MinBalance = min(r.MinBalance, r.FinalBalance)
}

// RunScript applies steps in order. When clock is set, advance steps also
// move it forward so ledger timestamps follow simulated time. Insufficient
// funds is recorded and the run continues; any other error stops it.
func RunScript(ctx context.Context, e *engine.Engine, steps []config.Step, clock *ManualClock, logger *slog.Logger) (*Report, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rep := newReport(e)
	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		err := applyStep(e, s, clock)
		rep.record(e, s.Op, err)
		if err != nil {
			if errors.Is(err, engine.ErrInsufficientFunds) {
				logger.Warn("step skipped", "index", i, "op", s.Op, "err", err)
				continue
			}
			return rep, fmt.Errorf("script[%d] %s: %w", i, s.Op, err)
		}
		logger.Debug("step applied", "index", i, "op", s.Op, "balance", rep.FinalBalance)
	}
	return rep, nil
}

func applyStep(e *engine.Engine, s config.Step, clock *ManualClock) error {
	switch s.Op {
	case "start":
		return e.StartProject(s.Project)
	case "complete":
		return e.CompleteProject(s.Project)
	case "pay":
		reason := s.Reason
		if reason == "" {
			reason = "Scripted payout"
		}
		return e.PayAgent(s.Agent, s.Amount, reason)
	case "advance":
		if clock != nil {
			clock.Advance(time.Duration(s.Hours * float64(time.Hour)))
		}
		return e.AdvanceTime(s.Hours)
	default:
		return fmt.Errorf("%w: unknown op %q", engine.ErrInvalidArgument, s.Op)
	}
}

// RandomOptions tunes RunRandom.
type RandomOptions struct {
	Steps     int
	Seed      uint64
	MinPay    int
	MaxPay    int
	HourSteps []float64
}

func (o RandomOptions) withDefaults() RandomOptions {
	if o.Steps <= 0 {
		o.Steps = 200
	}
	if o.MinPay <= 0 {
		o.MinPay = 50
	}
	if o.MaxPay < o.MinPay {
		o.MaxPay = 400
	}
	if len(o.HourSteps) == 0 {
		o.HourSteps = []float64{6, 12, 24}
	}
	return o
}

var randomOps = []string{"start", "complete", "pay", "advance"}

// RunRandom applies a seeded random mix of operations. Starting and
// completing pick among projects in the matching stage; steps with no
// candidate count as applied no-ops.
func RunRandom(ctx context.Context, e *engine.Engine, opts RandomOptions, clock *ManualClock, logger *slog.Logger) (*Report, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))
	rep := newReport(e)
	for i := 0; i < opts.Steps; i++ {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		step := config.Step{Op: randomOps[rng.IntN(len(randomOps))]}
		switch step.Op {
		case "start":
			step.Project = pick(rng, e.ProjectsInStage(domain.StagePipeline))
		case "complete":
			step.Project = pick(rng, e.ProjectsInStage(domain.StageActive))
		case "pay":
			step.Agent = pick(rng, e.AgentIDs())
			step.Amount = float64(opts.MinPay + rng.IntN(opts.MaxPay-opts.MinPay+1))
			step.Reason = "Stress stipend"
		case "advance":
			step.Hours = opts.HourSteps[rng.IntN(len(opts.HourSteps))]
		}
		if (step.Op != "advance" && step.Op != "pay" && step.Project == "") || (step.Op == "pay" && step.Agent == "") {
			rep.record(e, step.Op, nil)
			continue
		}
		err := applyStep(e, step, clock)
		rep.record(e, step.Op, err)
		if err != nil && !errors.Is(err, engine.ErrInsufficientFunds) {
			return rep, fmt.Errorf("step %d %s: %w", i, step.Op, err)
		}
	}
	logger.Info("random run finished", "steps", rep.Steps, "insufficient_funds", rep.InsufficientFunds, "balance", rep.FinalBalance)
	return rep, nil
}

func pick(rng *rand.Rand, ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[rng.IntN(len(ids))]
}
