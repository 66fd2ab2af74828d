// Package poller keeps an agent's call-to-action in sync with the attendance
// window. It re-evaluates the last fetched window on a fixed interval and
// defers to the server on whether the agent has already marked today.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/example/field-attendance/internal/client"
	"github.com/example/field-attendance/internal/window"
)

// DefaultInterval is the re-evaluation period.
const DefaultInterval = 60 * time.Second

// StateUnknown is rendered while no window could be fetched.
const StateUnknown window.State = "unknown"

var (
	// ErrMarkInFlight rejects a submission while another one is pending.
	ErrMarkInFlight = errors.New("poller: a marking is already in flight")
	// ErrAlreadyStarted is returned by Start on a running poller.
	ErrAlreadyStarted = errors.New("poller: already started")
)

// Source is the server the poller reconciles with.
type Source interface {
	Status(ctx context.Context) (client.Status, error)
	Mark(ctx context.Context, input client.MarkInput) (client.Record, error)
}

// Snapshot is what the UI renders.
type Snapshot struct {
	State     window.State
	HasMarked bool
	Record    *client.Record
	Window    *client.WindowConfig
	// Marking is set while a submission is pending; the action stays disabled.
	Marking bool
	// FetchError is the last status fetch failure, cleared by the next success.
	FetchError  error
	EvaluatedAt time.Time
}

// Poller owns the periodic loop for one signed-in session.
type Poller struct {
	source   Source
	interval time.Duration
	now      func() time.Time
	location *time.Location
	logger   *slog.Logger
	onChange func(Snapshot)

	// deliver serialises evaluation and onChange so snapshots arrive in order.
	deliver sync.Mutex

	mu          sync.Mutex
	fetchedDate string
	hasMarked   bool
	record    *client.Record
	window    *client.WindowConfig
	fetchErr  error
	marking   bool
	current   Snapshot
	cancel    context.CancelFunc
	done      chan struct{}
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithClock replaces the local clock.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLocation sets the timezone the window is evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(p *Poller) {
		if loc != nil {
			p.location = loc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// OnChange registers a callback invoked with every snapshot that differs from
// the previous one. It runs on whichever goroutine triggered the evaluation
// (the loop, Refresh or Mark), one call at a time and in evaluation order. It
// must not block and must not call back into the poller other than Snapshot.
func OnChange(fn func(Snapshot)) Option {
	return func(p *Poller) { p.onChange = fn }
}

// New constructs a Poller. It does nothing until Start or Run.
func New(source Source, opts ...Option) *Poller {
	p := &Poller{
		source:   source,
		interval: DefaultInterval,
		now:      time.Now,
		location: time.Local,
		logger:   slog.Default(),
		current:  Snapshot{State: StateUnknown},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start fetches status once and runs the loop in the background until ctx is
// cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	go func() {
		defer close(done)
		p.Run(loopCtx)
	}()
	return nil
}

// Run fetches status once and then ticks every interval. It blocks until ctx
// is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.Refresh(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("attendance poller stopped")
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Stop tears the loop down and waits for it to exit. Pending markings are
// not cancelled.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Tick re-evaluates the window against the local clock. After a failed fetch,
// or once the local date has moved past the last successful fetch, it
// refetches instead.
func (p *Poller) Tick(ctx context.Context) Snapshot {
	today := p.dateOf(p.now())

	p.mu.Lock()
	stale := p.fetchErr != nil || p.fetchedDate != today
	p.mu.Unlock()

	if stale {
		return p.Refresh(ctx)
	}
	return p.evaluate()
}

// Refresh re-reads the marked flag and the window from the server. A failed
// fetch fails open: not marked, window unknown.
func (p *Poller) Refresh(ctx context.Context) Snapshot {
	fetchedAt := p.now()
	status, err := p.source.Status(ctx)

	p.mu.Lock()
	if err != nil {
		p.hasMarked = false
		p.record = nil
		p.window = nil
		p.fetchErr = err
		p.fetchedDate = ""
	} else {
		p.fetchedDate = p.dateOf(fetchedAt)
		p.hasMarked = status.HasMarkedToday
		p.record = status.Record
		cfg := status.Window
		p.window = &cfg
		p.fetchErr = nil
	}
	p.mu.Unlock()

	if err != nil {
		p.logger.WarnContext(ctx, "attendance status fetch failed", "error", err, "network", client.IsNetworkError(err))
	}
	return p.evaluate()
}

// Mark submits a marking. Only one submission may be pending at a time; the
// submission outlives ctx cancellation. Whatever the outcome, the rendered
// state is rebuilt from a fresh server read rather than from the response.
func (p *Poller) Mark(ctx context.Context, input client.MarkInput) (client.Record, error) {
	p.mu.Lock()
	if p.marking {
		p.mu.Unlock()
		return client.Record{}, ErrMarkInFlight
	}
	p.marking = true
	p.mu.Unlock()
	p.evaluate()

	submitCtx := context.WithoutCancel(ctx)
	if input.ClientTime.IsZero() {
		input.ClientTime = p.now()
	}
	record, err := p.source.Mark(submitCtx, input)
	if err != nil {
		p.logger.WarnContext(ctx, "attendance marking failed", "error", err)
	} else {
		p.logger.InfoContext(ctx, "attendance marked", "record_id", record.ID, "classification", string(record.Classification))
	}

	p.mu.Lock()
	p.marking = false
	p.mu.Unlock()
	p.Refresh(submitCtx)

	return record, err
}

// Snapshot returns the last rendered state.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Poller) evaluate() Snapshot {
	p.deliver.Lock()
	defer p.deliver.Unlock()

	now := p.now()

	p.mu.Lock()
	next := Snapshot{
		HasMarked:   p.hasMarked,
		Record:      p.record,
		Window:      p.window,
		Marking:     p.marking,
		FetchError:  p.fetchErr,
		EvaluatedAt: now,
	}
	switch {
	case p.hasMarked:
		next.State = window.StateAlreadyMarked
	case p.window == nil:
		next.State = StateUnknown
	default:
		next.State = window.Evaluate(p.window.Window, now, p.location)
	}
	changed := differs(p.current, next)
	p.current = next
	onChange := p.onChange
	p.mu.Unlock()

	if changed && onChange != nil {
		onChange(next)
	}
	return next
}

func (p *Poller) dateOf(t time.Time) string {
	return t.In(p.location).Format("2006-01-02")
}

func differs(a, b Snapshot) bool {
	if a.State != b.State || a.HasMarked != b.HasMarked || a.Marking != b.Marking {
		return true
	}
	if (a.FetchError == nil) != (b.FetchError == nil) {
		return true
	}
	if (a.Window == nil) != (b.Window == nil) {
		return true
	}
	if a.Window != nil && (a.Window.Window != b.Window.Window || a.Window.GraceMinutes != b.Window.GraceMinutes) {
		return true
	}
	return false
}
