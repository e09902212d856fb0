// Package executor holds the worker pools every asynchronous hub operation
// is scheduled on. A Runtime is created once by the assembly and passed
// explicitly to whatever needs it.
package executor

import (
	"context"
	"errors"
)

type Config struct {
	ComputeWorkers int
	TimerWorkers   int
}

func DefaultConfig() Config {
	return Config{ComputeWorkers: 8, TimerWorkers: 4}
}

type Runtime struct {
	// Compute is bounded and only runs work that never blocks on other topics.
	Compute *Pool
	// IO grows with demand.
	IO     *Elastic
	Timers *Scheduler
}

func NewRuntime(cfg Config) *Runtime {
	return &Runtime{
		Compute: NewPool("compute", cfg.ComputeWorkers),
		IO:      NewElastic("io"),
		Timers:  NewScheduler(cfg.TimerWorkers),
	}
}

// Shutdown stops timers first so they stop feeding work, then the elastic
// executor, then the compute pool.
func (r *Runtime) Shutdown(ctx context.Context) error {
	return errors.Join(
		r.Timers.Stop(ctx),
		r.IO.Stop(ctx),
		r.Compute.Stop(ctx),
	)
}
