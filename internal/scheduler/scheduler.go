// Package scheduler runs recurring collection and sync jobs on fixed
// intervals. Job definitions load from an optional YAML file so operators can
// retune cadence without a rebuild.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// JobFunc executes one pass of a job type.
type JobFunc func(ctx context.Context) error

// Job is one recurring job definition.
type Job struct {
	Name     string        `yaml:"name"`
	Type     string        `yaml:"type"` // collect, catalog_sync, video_sync, merch_sync
	Interval time.Duration `yaml:"interval"`
	Enabled  bool          `yaml:"enabled"`
}

// Config holds the job table.
type Config struct {
	Jobs []Job `yaml:"jobs"`
}

// DefaultConfig returns the stock cadence: trends twice a day, catalogue and
// video daily, merch weekly.
func DefaultConfig() Config {
	return Config{
		Jobs: []Job{
			{Name: "trend-collect", Type: "collect", Interval: 12 * time.Hour, Enabled: true},
			{Name: "catalog-sync", Type: "catalog_sync", Interval: 24 * time.Hour, Enabled: true},
			{Name: "video-sync", Type: "video_sync", Interval: 24 * time.Hour, Enabled: true},
			{Name: "merch-sync", Type: "merch_sync", Interval: 7 * 24 * time.Hour, Enabled: true},
		},
	}
}

// LoadConfig reads the job table from a YAML file. An empty path returns the
// defaults.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read jobs config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse jobs config: %w", err)
	}
	for _, job := range cfg.Jobs {
		if job.Interval <= 0 {
			return Config{}, fmt.Errorf("job %q has non-positive interval", job.Name)
		}
	}
	return cfg, nil
}

// JobResult is the outcome of one job execution.
type JobResult struct {
	Name     string        `json:"name"`
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
}

// Status is a snapshot of the scheduler.
type Status struct {
	Running  bool                 `json:"running"`
	Enabled  int                  `json:"enabled_jobs"`
	Disabled int                  `json:"disabled_jobs"`
	LastRuns map[string]JobResult `json:"last_runs"`
	Uptime   time.Duration        `json:"uptime"`
}

// Scheduler drives the registered job functions on their configured
// intervals. Job types with no registered executor are skipped with a warning
// so a partial deployment still runs the rest.
type Scheduler struct {
	cfg   Config
	funcs map[string]JobFunc
	log   zerolog.Logger

	mu       sync.Mutex
	running  bool
	started  time.Time
	lastRuns map[string]JobResult
}

// New creates a scheduler for the given job table.
func New(cfg Config, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		funcs:    make(map[string]JobFunc),
		log:      log.With().Str("component", "scheduler").Logger(),
		lastRuns: make(map[string]JobResult),
	}
}

// Register binds a job type to its executor.
func (s *Scheduler) Register(jobType string, fn JobFunc) {
	s.funcs[jobType] = fn
}

// Status reports the scheduler snapshot.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:  s.running,
		LastRuns: make(map[string]JobResult, len(s.lastRuns)),
	}
	for _, job := range s.cfg.Jobs {
		if job.Enabled {
			st.Enabled++
		} else {
			st.Disabled++
		}
	}
	for name, result := range s.lastRuns {
		st.LastRuns[name] = result
	}
	if s.running {
		st.Uptime = time.Since(s.started)
	}
	return st
}

// RunJob executes one named job immediately, outside its schedule.
func (s *Scheduler) RunJob(ctx context.Context, name string) (*JobResult, error) {
	for _, job := range s.cfg.Jobs {
		if job.Name == name {
			result := s.execute(ctx, job)
			return &result, nil
		}
	}
	return nil, fmt.Errorf("job not found: %s", name)
}

// Start runs every enabled job on its interval until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.started = time.Now()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	var wg sync.WaitGroup
	active := 0
	for _, job := range s.cfg.Jobs {
		if !job.Enabled {
			continue
		}
		if _, ok := s.funcs[job.Type]; !ok {
			s.log.Warn().Str("job", job.Name).Str("type", job.Type).Msg("no executor registered, skipping")
			continue
		}
		active++
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.loop(ctx, job)
		}(job)
	}
	if active == 0 {
		return fmt.Errorf("no runnable jobs configured")
	}

	s.log.Info().Int("jobs", active).Msg("scheduler started")
	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.execute(ctx, job)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, job Job) JobResult {
	result := JobResult{Name: job.Name, Start: time.Now(), Success: true}

	fn, ok := s.funcs[job.Type]
	if !ok {
		result.Success = false
		result.Error = fmt.Sprintf("unknown job type: %s", job.Type)
	} else if err := fn(ctx); err != nil {
		result.Success = false
		result.Error = err.Error()
	}
	result.Duration = time.Since(result.Start)

	s.mu.Lock()
	s.lastRuns[job.Name] = result
	s.mu.Unlock()

	evt := s.log.Info()
	if !result.Success {
		evt = s.log.Error().Str("error", result.Error)
	}
	evt.Str("job", job.Name).Dur("duration", result.Duration).Bool("success", result.Success).Msg("job finished")
	return result
}
