package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nvandessel/orgsim/internal/constants"
	"github.com/nvandessel/orgsim/internal/logging"
)

// ErrNotRunning is returned by Driver calls made while Run is not active.
var ErrNotRunning = errors.New("simulation driver is not running")

// Factory builds a fresh session. It is called once at start and again on
// every reset, so each reset is a full reconstruction.
type Factory func() (*Session, error)

// TickSource delivers tick boundaries. time.Ticker satisfies it through
// NewTimeTicker; tests substitute a manual channel.
type TickSource interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker returns a wall-clock TickSource.
func NewTimeTicker(d time.Duration) TickSource {
	return timeTicker{t: time.NewTicker(d)}
}

// DriverOptions configure a Driver.
type DriverOptions struct {
	// Interval between ticks. Defaults to constants.DefaultTickInterval.
	Interval time.Duration

	// ExitOnStop makes Run return once the session stops. Otherwise Run
	// keeps serving resets until its context is cancelled.
	ExitOnStop bool

	// NewTicker overrides the tick source; nil uses NewTimeTicker.
	NewTicker func(time.Duration) TickSource

	Logger *slog.Logger
}

// command is executed on the driver goroutine between ticks.
type command struct {
	reset bool
	fn    func(*Session)
	done  chan error
}

// Driver is the single-threaded scheduler for one session at a time.
// Ticks, resets and Do callbacks all run on the goroutine executing Run,
// so the session never sees concurrent access.
type Driver struct {
	factory   Factory
	interval  time.Duration
	exitOn    bool
	newTicker func(time.Duration) TickSource
	logger    *slog.Logger

	cmds chan command

	mu      sync.Mutex
	running bool
	exited  chan struct{}
}

// NewDriver creates a driver; nothing runs until Run is called.
func NewDriver(factory Factory, opts DriverOptions) *Driver {
	interval := opts.Interval
	if interval <= 0 {
		interval = constants.DefaultTickInterval
	}
	newTicker := opts.NewTicker
	if newTicker == nil {
		newTicker = NewTimeTicker
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Driver{
		factory:   factory,
		interval:  interval,
		exitOn:    opts.ExitOnStop,
		newTicker: newTicker,
		logger:    logger,
		cmds:      make(chan command),
	}
}

// Run builds the first session and ticks it until ctx is cancelled, or
// until the session stops when ExitOnStop is set. It returns nil on a
// normal exit and ctx.Err() on cancellation.
func (d *Driver) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("simulation driver already running")
	}
	d.running = true
	d.exited = make(chan struct{})
	exited := d.exited
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.running = false
		close(exited)
		d.mu.Unlock()
	}()

	session, err := d.factory()
	if err != nil {
		return fmt.Errorf("building session: %w", err)
	}
	session.clearSinks()
	d.logger.Info("simulation started", "max_ticks", session.MaxTicks(), "interval", d.interval)

	ticker := d.newTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("simulation cancelled", "tick", session.Ticks())
			return ctx.Err()

		case <-ticker.C():
			if _, ok := session.Tick(ctx); !ok {
				continue
			}
			if session.Phase() == Stopped && d.exitOn {
				return nil
			}

		case cmd := <-d.cmds:
			if cmd.reset {
				next, err := d.factory()
				if err != nil {
					cmd.done <- fmt.Errorf("rebuilding session: %w", err)
					continue
				}
				session = next
				session.clearSinks()
				d.logger.Info("simulation reset")
			}
			if cmd.fn != nil {
				cmd.fn(session)
			}
			cmd.done <- nil
		}
	}
}

// Reset discards the current session and replaces it with a fresh one from
// the factory. It takes effect between ticks.
func (d *Driver) Reset(ctx context.Context) error {
	return d.send(ctx, command{reset: true})
}

// ResetStatus resets like Reset and returns the status of the fresh
// session, read before any tick can run on it.
func (d *Driver) ResetStatus(ctx context.Context) (Status, error) {
	var st Status
	err := d.send(ctx, command{reset: true, fn: func(s *Session) { st = s.Status() }})
	return st, err
}

// Do runs fn against the current session between ticks and waits for it.
// fn must not retain the session.
func (d *Driver) Do(ctx context.Context, fn func(*Session)) error {
	return d.send(ctx, command{fn: fn})
}

// Status is a convenience wrapper around Do.
func (d *Driver) Status(ctx context.Context) (Status, error) {
	var st Status
	err := d.Do(ctx, func(s *Session) { st = s.Status() })
	return st, err
}

func (d *Driver) send(ctx context.Context, cmd command) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return ErrNotRunning
	}
	exited := d.exited
	d.mu.Unlock()

	cmd.done = make(chan error, 1)
	select {
	case d.cmds <- cmd:
	case <-exited:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunToCompletion builds a session and ticks it back to back until it
// stops, without a timer. ctx is checked between ticks.
func RunToCompletion(ctx context.Context, factory Factory) (*Session, error) {
	session, err := factory()
	if err != nil {
		return nil, fmt.Errorf("building session: %w", err)
	}
	for session.Phase() == Running {
		if err := ctx.Err(); err != nil {
			return session, err
		}
		session.Tick(ctx)
	}
	return session, nil
}
