// Package scheduler runs periodic maintenance against the ticket store.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/ownlytics/mcptix-sub000/internal/persistence"
)

// Renormalizer respaces crowded status columns.
type Renormalizer interface {
	RenormalizeCrowded(ctx context.Context) (map[persistence.Status]int, error)
}

// Scheduler triggers column renormalization on a cron schedule.
type Scheduler struct {
	spec     string
	schedule cron.Schedule
	target   Renormalizer
	logger   *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// New parses spec as a standard cron expression. An empty spec yields a
// disabled scheduler whose Start and Stop do nothing.
func New(spec string, target Renormalizer, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{spec: strings.TrimSpace(spec), target: target, logger: logger.With("job", "renormalize")}
	if s.spec == "" {
		return s, nil
	}

	schedule, err := cron.ParseStandard(s.spec)
	if err != nil {
		return nil, fmt.Errorf("invalid renormalize schedule %q: %w", s.spec, err)
	}
	s.schedule = schedule
	return s, nil
}

// Enabled reports whether a schedule was configured.
func (s *Scheduler) Enabled() bool {
	return s != nil && s.schedule != nil && s.target != nil
}

// Start begins running the job in the background until Stop is called or ctx
// is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.Enabled() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(s.schedule, cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		_ = s.RunOnce(ctx)
	}))
	c.Start()

	s.cron = c
	s.running = true
	s.logger.InfoContext(ctx, "renormalize schedule started", "schedule", s.spec)
}

// Stop halts the schedule and waits for a running job to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}

	s.mu.Lock()
	c := s.cron
	wasRunning := s.running
	s.cron = nil
	s.running = false
	s.mu.Unlock()
	if !wasRunning || c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce renormalizes every crowded column immediately.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if s == nil || s.target == nil {
		return nil
	}

	rewritten, err := s.target.RenormalizeCrowded(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "renormalize run failed", "error", err)
		return err
	}

	total := 0
	for _, n := range rewritten {
		total += n
	}
	s.logger.DebugContext(ctx, "renormalize run finished", "columns", len(rewritten), "tickets", total)
	return nil
}
