// Package scheduler triggers unattended broadcast batches on a cron
// spec. It only fires the trigger; the engine decides whether a batch
// can actually start (an overlapping tick is rejected there).
package scheduler

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/robfig/cron/v3"

	logx "groupcast/pkg/logx"
)

// Runner executes one scheduled batch for the configured message tag.
type Runner func(ctx context.Context, tag string)

type Service struct {
	spec string
	tag  string
	run  Runner
	log  logx.Logger

	mu sync.Mutex
	c  *cron.Cron

	runCtx    context.Context
	runCancel context.CancelFunc
}

// New validates spec (standard 5-field cron plus @descriptors) and
// builds the service without starting it.
func New(spec, tag string, run Runner, log logx.Logger) (*Service, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{spec: spec, tag: tag, run: run, log: log}, nil
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}

	s.runCtx, s.runCancel = context.WithCancel(ctx)
	c := cron.New()
	_, err := c.AddFunc(s.spec, func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in scheduled batch", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		s.log.Info("scheduled broadcast tick", logx.String("tag", s.tag))
		s.run(s.runCtx, s.tag)
	})
	if err != nil {
		s.runCancel()
		s.runCtx, s.runCancel = nil, nil
		return err
	}
	c.Start()
	s.c = c
	s.log.Info("schedule armed", logx.String("spec", s.spec), logx.String("tag", s.tag))
	return nil
}

// Stop disarms the schedule and waits for a running tick's cron slot to
// be released. The batch itself is cancelled via the run context.
func (s *Service) Stop() {
	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	s.c = nil
	s.runCtx, s.runCancel = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		<-c.Stop().Done()
	}
}
