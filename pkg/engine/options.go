package engine

import (
	"fmt"
	"runtime"
	"time"
)

type Options struct {
	// Wall-clock budget of a run; zero or negative means unlimited
	TimeBudget time.Duration `koanf:"time_budget"`
	// Search node budget shared by every component; zero means unlimited
	MaxNodes int64 `koanf:"max_nodes"`
	// Moves attempted by each local-search chain; zero disables local search
	LocalSearchIterations int `koanf:"local_search_iterations"`
	// Non-improving moves tolerated before only strict improvements are accepted
	PlateauLimit int `koanf:"plateau_limit"`
	// Independent local-search chains
	Chains int   `koanf:"chains"`
	Seed   int64 `koanf:"seed"`
	// Components solved in parallel
	Workers int `koanf:"workers"`
}

func DefaultOptions() Options {
	return Options{
		TimeBudget:            30 * time.Second,
		LocalSearchIterations: 2000,
		PlateauLimit:          200,
		Chains:                4,
		Seed:                  1,
		Workers:               runtime.GOMAXPROCS(0),
	}
}

func (options Options) Validate() error {
	if options.MaxNodes < 0 {
		return fmt.Errorf("max nodes must not be negative: %d", options.MaxNodes)
	} else if options.LocalSearchIterations < 0 {
		return fmt.Errorf("local search iterations must not be negative: %d", options.LocalSearchIterations)
	} else if options.PlateauLimit < 0 {
		return fmt.Errorf("plateau limit must not be negative: %d", options.PlateauLimit)
	} else if options.Chains < 0 || options.Workers < 0 {
		return fmt.Errorf("chains and workers must not be negative: %d, %d", options.Chains, options.Workers)
	}
	return nil
}

func (options Options) normalized() Options {
	if options.Chains == 0 {
		options.Chains = 1
	}
	if options.Workers == 0 {
		options.Workers = 1
	}
	return options
}
