package reminder

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	reminderSpec = "0 9 * * *"
	overdueSpec  = "0 10 * * *"

	sweepTimeout = 5 * time.Minute
)

// Scheduler runs the sweeps on a daily cron timetable: reminders at
// 09:00, the overdue check at 10:00.
type Scheduler struct {
	cron    *cron.Cron
	sweeper *Sweeper
}

func NewScheduler(sweeper *Sweeper) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(),
		sweeper: sweeper,
	}

	if _, err := s.cron.AddFunc(reminderSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		sent, err := sweeper.RunReminders(ctx)
		if err != nil {
			log.Printf("reminder: sweep failed: %v", err)
			return
		}
		log.Printf("reminder: sweep sent %d reminders", sent)
	}); err != nil {
		return nil, err
	}

	if _, err := s.cron.AddFunc(overdueSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		moved, err := sweeper.RunOverdue(ctx)
		if err != nil {
			log.Printf("reminder: overdue sweep failed: %v", err)
			return
		}
		log.Printf("reminder: overdue sweep moved %d agreements", moved)
	}); err != nil {
		return nil, err
	}

	return s, nil
}

// Start begins the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
