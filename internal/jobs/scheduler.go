package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"contactbook/internal/queue"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, task queue.Task) (string, error)
}

// Scheduler enqueues periodic outbox tasks. Specs use the six-field cron
// format with seconds.
type Scheduler struct {
	cron  *cron.Cron
	queue Enqueuer
	spec  string
	log   zerolog.Logger
}

func NewScheduler(queue Enqueuer, digestSpec string, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:  c,
		queue: queue,
		spec:  digestSpec,
		log:   log.With().Str("component", "scheduler").Logger(),
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil {
		return nil
	}

	if _, err := s.cron.AddFunc(s.spec, s.enqueueBirthdayDigest); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron loop and waits up to five seconds for a running job.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) enqueueBirthdayDigest() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := s.queue.Enqueue(ctx, queue.NewTask(queue.TaskBirthdayDigest, "", ""))
	if err != nil {
		s.log.Error().Err(err).Msg("enqueue birthday digest failed")
		return
	}
	s.log.Info().Str("message_id", id).Msg("birthday digest enqueued")
}
