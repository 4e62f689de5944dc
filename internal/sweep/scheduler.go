package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const DefaultSchedule = "0 0 * * *"

// Scheduler runs the sweeper on a cron schedule evaluated in UTC.
type Scheduler struct {
	sweeper  *Sweeper
	schedule cron.Schedule
	onStart  bool
	log      *zap.Logger
}

func NewScheduler(sw *Sweeper, spec string, onStart bool, log *zap.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("sweep schedule %q: %w", spec, err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{sweeper: sw, schedule: sched, onStart: onStart, log: log.Named("sweep")}, nil
}

// Run blocks until ctx is done, then waits for a sweep in flight.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.onStart {
		s.sweep(ctx)
	}

	cl := cronLogger{s.log.Sugar()}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() { s.sweep(ctx) }))
	c.Start()
	s.log.Info("sweep scheduler started", zap.Time("next_run", s.schedule.Next(time.Now().UTC())))

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (s *Scheduler) sweep(ctx context.Context) {
	if _, err := s.sweeper.RunOnce(ctx); err != nil {
		s.log.Error("expiry sweep failed", zap.Error(err))
	}
}

// cronLogger sends cron's own messages (panics, skipped runs) to zap.
type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
