package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"studylock-backend/internal/logging"
)

// Scheduler runs the reminder round on a cron schedule (seconds field
// included, e.g. "0 */5 * * * *").
type Scheduler struct {
	cron     *cron.Cron
	reminder *Reminder
	log      logging.Logger
	timeout  time.Duration
	jobID    cron.EntryID
}

func NewScheduler(r *Reminder, log logging.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		reminder: r,
		log:      log,
		timeout:  2 * time.Minute,
	}
}

// Start schedules the job and starts the cron loop.
func (s *Scheduler) Start(schedule string) error {
	var err error
	s.jobID, err = s.cron.AddFunc(schedule, s.RunOnce)
	if err != nil {
		return fmt.Errorf("error scheduling reminder job: %w", err)
	}

	s.cron.Start()
	s.log.Info("reminder scheduler started", "schedule", schedule)
	return nil
}

// Stop stops scheduling and waits for a running round to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("reminder scheduler stopped")
}

func (s *Scheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.reminder.Run(ctx)
	if err != nil {
		s.log.Error("reminder round failed", "error", err)
		return
	}
	s.log.Info("reminder round finished", "reminders", n)
}
