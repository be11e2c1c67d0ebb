package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gopkg.in/robfig/cron.v2"
)

// MinInterval is the shortest accepted poll interval.
const MinInterval = 10 * time.Second

var (
	// ErrUpdateInFlight is returned by Trigger when the device is already updating.
	ErrUpdateInFlight = errors.New("scheduler: update already in flight")

	// ErrStopped is returned once Stop has been called.
	ErrStopped = errors.New("scheduler: stopped")
)

// Updater runs one refresh. poll.Cycle satisfies it.
//
// UpdateSelected fetches every device in one request and applies only those
// include accepts.
type Updater interface {
	Update(ctx context.Context, deviceID int64) error
	UpdateSelected(ctx context.Context, include func(deviceID int64) bool) (int, error)
}

// Logger defines the logging interface used by the Scheduler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Scheduler.
type Options struct {
	// Interval between updates of one device. Values below MinInterval are raised.
	Interval time.Duration

	// FullRefreshInterval schedules a refresh of every device in one request.
	// Zero disables it.
	FullRefreshInterval time.Duration

	// Timeout bounds a single update. Zero means no bound beyond the transport's.
	Timeout time.Duration

	// Logger is optional.
	Logger Logger
}

// Scheduler drives periodic device updates on a cron.
//
// At most one update per device is in flight: a tick that finds the previous
// update still running is skipped and logged. The full refresh claims every
// scheduled device it applies, so it never overlaps a per-device update.
// Different devices update independently.
type Scheduler struct {
	cron    *cron.Cron
	updater Updater
	opts    Options
	logger  Logger

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	jobs     map[int64]cron.EntryID
	inflight map[int64]bool
	fullJob  cron.EntryID
	fullBusy bool
	stopped  bool
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a Scheduler. Devices may be added before or after Start.
func New(updater Updater, opts Options) *Scheduler {
	if opts.Interval < MinInterval {
		opts.Interval = MinInterval
	}

	var logger Logger = noopLogger{}
	if opts.Logger != nil {
		logger = opts.Logger
	}

	return &Scheduler{
		cron:     cron.New(),
		updater:  updater,
		opts:     opts,
		logger:   logger,
		jobs:     make(map[int64]cron.EntryID),
		inflight: make(map[int64]bool),
	}
}

// Start begins running scheduled jobs. Updates are cancelled through ctx or Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.ctx != nil {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	if s.opts.FullRefreshInterval > 0 {
		id, err := s.cron.AddFunc(every(s.opts.FullRefreshInterval), s.runFull)
		if err != nil {
			return fmt.Errorf("scheduling full refresh: %w", err)
		}
		s.fullJob = id
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		"interval", s.opts.Interval.String(),
		"full_refresh_interval", s.opts.FullRefreshInterval.String(),
	)
	return nil
}

// Add schedules periodic updates for a device. Jobs added before Start first
// run after it. Adding a device twice is a no-op.
func (s *Scheduler) Add(deviceID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if _, ok := s.jobs[deviceID]; ok {
		return nil
	}

	id, err := s.cron.AddFunc(every(s.opts.Interval), func() { s.run(deviceID) })
	if err != nil {
		return fmt.Errorf("scheduling device %d: %w", deviceID, err)
	}
	s.jobs[deviceID] = id

	s.logger.Debug("device scheduled", "device_id", deviceID, "interval", s.opts.Interval.String())
	return nil
}

// Remove stops scheduling a device. An update already running completes.
func (s *Scheduler) Remove(deviceID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.jobs[deviceID]; ok {
		s.cron.Remove(id)
		delete(s.jobs, deviceID)
	}
}

// Scheduled returns the number of devices with a job.
func (s *Scheduler) Scheduled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Trigger runs one update for a device now, on the caller's goroutine.
// It fails with ErrUpdateInFlight when a scheduled update is running and with
// ErrStopped after Stop.
func (s *Scheduler) Trigger(ctx context.Context, deviceID int64) error {
	if err := s.acquire(deviceID); err != nil {
		return fmt.Errorf("%w: device %d", err, deviceID)
	}
	defer s.release(deviceID)

	return s.update(ctx, deviceID)
}

// Stop halts the cron and waits for running updates to return. No new update
// starts once Stop has been called.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		cancel := s.cancel
		s.mu.Unlock()

		s.cron.Stop()
		if cancel != nil {
			cancel()
		}

		s.wg.Wait()
		s.logger.Info("scheduler stopped")
	})
}

// run is the cron job body for one device.
func (s *Scheduler) run(deviceID int64) {
	if err := s.acquire(deviceID); err != nil {
		if errors.Is(err, ErrUpdateInFlight) {
			s.logger.Warn("skipping tick, previous update still running", "device_id", deviceID)
		}
		return
	}
	defer s.release(deviceID)

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if err := s.update(ctx, deviceID); err != nil {
		s.logger.Error("device update failed", "device_id", deviceID, "error", err)
	}
}

// runFull is the cron job body for the full refresh. It claims every
// scheduled device that is idle and applies only those.
func (s *Scheduler) runFull() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if s.fullBusy {
		s.mu.Unlock()
		s.logger.Warn("skipping full refresh, previous one still running")
		return
	}

	claimed := make(map[int64]bool, len(s.jobs))
	var busy []int64
	for id := range s.jobs {
		if s.inflight[id] {
			busy = append(busy, id)
			continue
		}
		s.inflight[id] = true
		claimed[id] = true
	}
	s.fullBusy = true
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		for id := range claimed {
			delete(s.inflight, id)
		}
		s.fullBusy = false
		s.mu.Unlock()
		s.wg.Done()
	}()

	if len(busy) > 0 {
		s.logger.Debug("full refresh leaving devices to their running update", "device_ids", busy)
	}
	if len(claimed) == 0 {
		return
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	n, err := s.updater.UpdateSelected(ctx, func(id int64) bool { return claimed[id] })
	if err != nil {
		s.logger.Error("full refresh failed", "error", err)
		return
	}
	s.logger.Debug("full refresh complete", "devices", n)
}

func (s *Scheduler) update(ctx context.Context, deviceID int64) error {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := s.updater.Update(ctx, deviceID)
	s.logger.Debug("device update finished",
		"device_id", deviceID,
		"duration_ms", time.Since(start).Milliseconds(),
		"ok", err == nil,
	)
	return err
}

// acquire marks a device in flight. The WaitGroup is only grown under mu
// while not stopped, so Stop's Wait never races an Add.
func (s *Scheduler) acquire(deviceID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.inflight[deviceID] {
		return ErrUpdateInFlight
	}
	s.inflight[deviceID] = true
	s.wg.Add(1)
	return nil
}

func (s *Scheduler) release(deviceID int64) {
	s.mu.Lock()
	delete(s.inflight, deviceID)
	s.mu.Unlock()
	s.wg.Done()
}

// every renders a cron spec for a fixed interval in whole seconds.
func every(d time.Duration) string {
	secs := int(d / time.Second)
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("@every %ds", secs)
}
