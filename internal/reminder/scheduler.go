// Package reminder finds due to-do reminders and sends them as push
// notifications.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"keepsake-go/internal/metrics"
	"keepsake-go/internal/models"
	"keepsake-go/internal/push"
)

var (
	ErrPushDisabled   = errors.New("push notifications are not configured")
	ErrTickInProgress = errors.New("reminder check already in progress")
)

const (
	reminderTitle = "Task Reminder"
	reminderIcon  = "/icons/icon-192.png"
	reminderURL   = "/todo"
)

// TaskStore is the part of the to-do store the scheduler reads and writes.
type TaskStore interface {
	GetReminderCandidates(ctx context.Context) ([]models.ReminderCandidate, error)
	MarkReminderSent(ctx context.Context, todoID int) error
}

// Notifier fans a payload out to a user's subscriptions.
type Notifier interface {
	SendToUser(ctx context.Context, userID int, payload push.Payload) push.Result
}

// Locker guards a tick across processes. Acquire returns ok=false when
// another holder has the slot.
type Locker interface {
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

// TickResult describes one check cycle.
type TickResult struct {
	Checked     bool   `json:"checked"`
	Reminders   int    `json:"reminders"`
	Unparseable int    `json:"unparseable"`
	Err         error  `json:"-"`
	Error       string `json:"error,omitempty"`
}

func failed(err error) TickResult {
	return TickResult{Err: err, Error: err.Error()}
}

type Option func(*Scheduler)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithInterval sets the tick interval. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLocker adds a cross-process lock around every tick.
func WithLocker(l Locker) Option {
	return func(s *Scheduler) { s.locker = l }
}

// WithNotifier replaces the fan-out sender built from the gate.
func WithNotifier(n Notifier) Option {
	return func(s *Scheduler) { s.notifier = n }
}

type Scheduler struct {
	tasks    TaskStore
	notifier Notifier
	locker   Locker
	interval time.Duration
	now      func() time.Time
	running  sync.Mutex
	log      *logrus.Entry
}

// NewScheduler builds a scheduler for an enabled gate. A disabled gate
// yields ErrPushDisabled, so nothing can tick without credentials.
func NewScheduler(gate push.Gate, tasks TaskStore, subs push.SubscriptionStore, opts ...Option) (*Scheduler, error) {
	if !gate.Enabled || gate.Dispatcher == nil {
		return nil, ErrPushDisabled
	}

	s := &Scheduler{
		tasks:    tasks,
		notifier: push.NewSender(subs, gate.Dispatcher),
		interval: time.Minute,
		now:      time.Now,
		log:      logrus.WithField("component", "reminder_scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Interval returns the tick interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start ticks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Infof("Reminder scheduler started (interval %s)", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Reminder scheduler stopped")
			return
		case <-ticker.C:
			res := s.RunOnce(ctx)
			switch {
			case errors.Is(res.Err, ErrTickInProgress):
				s.log.Debug("Previous reminder check still running, skipping tick")
			case res.Err != nil:
				s.log.Errorf("Reminder check failed: %v", res.Err)
			case res.Reminders > 0:
				s.log.Infof("Reminder check sent %d reminders", res.Reminders)
			}
		}
	}
}

// RunOnce performs a single check cycle. Ticks never overlap: a call made
// while another is running returns ErrTickInProgress.
func (s *Scheduler) RunOnce(ctx context.Context) (res TickResult) {
	if !s.running.TryLock() {
		metrics.ReminderTicks.WithLabelValues("skipped").Inc()
		return failed(ErrTickInProgress)
	}
	defer s.running.Unlock()

	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx)
		if err != nil {
			metrics.ReminderTicks.WithLabelValues("error").Inc()
			return failed(fmt.Errorf("acquire reminder lock: %w", err))
		}
		if !ok {
			metrics.ReminderTicks.WithLabelValues("skipped").Inc()
			return failed(ErrTickInProgress)
		}
		defer release()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("Reminder check panicked: %v", r)
			res = failed(fmt.Errorf("reminder check panicked: %v", r))
		}
		metrics.TickDuration.Observe(time.Since(start).Seconds())
		if res.Err != nil {
			metrics.ReminderTicks.WithLabelValues("error").Inc()
		} else {
			metrics.ReminderTicks.WithLabelValues("ok").Inc()
		}
	}()

	return s.tick(ctx)
}

func (s *Scheduler) tick(ctx context.Context) TickResult {
	candidates, err := s.tasks.GetReminderCandidates(ctx)
	if err != nil {
		s.log.Errorf("Failed to get reminder candidates: %v", err)
		return failed(fmt.Errorf("load reminder candidates: %w", err))
	}

	if len(candidates) == 0 {
		return TickResult{Checked: true}
	}

	now := s.now()
	due, unparseable := s.dueCandidates(candidates, now)

	res := TickResult{Checked: true, Reminders: len(due), Unparseable: unparseable}
	if len(due) == 0 {
		return res
	}

	s.log.Infof("Found %d reminders to send", len(due))

	for _, c := range due {
		out := s.notifier.SendToUser(ctx, c.UserID, Payload(c))
		if out.Err != nil {
			s.log.Warnf("Reminder %d: fan-out to user %d failed: %v", c.ID, c.UserID, out.Err)
		} else {
			s.log.Debugf("Reminder %d: sent %d, failed %d", c.ID, out.Sent, out.Failed)
		}

		// At most once: the reminder is marked sent even when every
		// delivery failed.
		if err := s.tasks.MarkReminderSent(ctx, c.ID); err != nil {
			s.log.Errorf("Failed to mark reminder %d as sent: %v", c.ID, err)
		}
		metrics.RemindersDispatched.Inc()
	}

	return res
}

func (s *Scheduler) dueCandidates(candidates []models.ReminderCandidate, now time.Time) ([]models.ReminderCandidate, int) {
	var due []models.ReminderCandidate
	unparseable := 0

	for _, c := range candidates {
		at, err := ParseLocalTime(c.ReminderTime)
		if err != nil {
			unparseable++
			metrics.RemindersUnparseable.Inc()
			s.log.Debugf("Skipping reminder %d: %v", c.ID, err)
			continue
		}

		r := Reminder{At: at, OffsetMinutes: c.TimezoneOffset}
		if r.IsDue(now) {
			due = append(due, c)
		}
	}

	return due, unparseable
}

// Payload builds the notification for a due reminder. The tag lets the
// client collapse repeats for the same to-do.
func Payload(c models.ReminderCandidate) push.Payload {
	return push.Payload{
		Title: reminderTitle,
		Body:  c.Title,
		Icon:  reminderIcon,
		Badge: reminderIcon,
		Tag:   "todo-" + strconv.Itoa(c.ID),
		Data: map[string]any{
			"todoId": c.ID,
			"url":    reminderURL,
		},
	}
}
