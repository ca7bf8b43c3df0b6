package session

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/chimera/go/internal/models"
)

// DefaultPublicGameTTL applies until the server configuration has loaded.
const DefaultPublicGameTTL = 300 * time.Second

const tickInterval = time.Second

// Countdown is the derived remaining-time state of a session.
type Countdown struct {
	// RemainingSeconds counts down the planning deadline of a live round.
	RemainingSeconds *int `json:"remaining_seconds,omitempty"`
	// RemainingMillis counts down the start window of a public waiting room.
	RemainingMillis *int64 `json:"remaining_ms,omitempty"`
}

// RemainingSeconds is max(0, ceil((deadline-now)/1s)) while the game is in
// the planning phase with a deadline, and absent otherwise.
func RemainingSeconds(snap *models.GameSnapshot, now time.Time) (int, bool) {
	if snap == nil || !snap.IsPlanning() || snap.ActionDeadline == nil {
		return 0, false
	}
	diff := snap.ActionDeadline.Sub(now)
	if diff <= 0 {
		return 0, true
	}
	return int((diff + time.Second - 1) / time.Second), true
}

// RemainingMillis is max(0, createdAt+ttl-now) in milliseconds.
func RemainingMillis(createdAt time.Time, ttl time.Duration, now time.Time) int64 {
	left := createdAt.Add(ttl).Sub(now).Milliseconds()
	if left < 0 {
		return 0
	}
	return left
}

// expiryFor returns the implicit start deadline of a public session that is
// still waiting for players.
func expiryFor(snap *models.GameSnapshot, ttl time.Duration) (time.Time, bool) {
	if snap == nil || snap.Status != models.GameStatusWaitingForPlayers || snap.Private || snap.CreatedAt.IsZero() {
		return time.Time{}, false
	}
	return snap.CreatedAt.Add(ttl), true
}

// DeadlineClock recomputes the countdown once per second against the local
// clock. The deadline itself only changes on poll; when it does, the clock
// recomputes at once and restarts its one-second phase.
type DeadlineClock struct {
	clock  clockwork.Clock
	onTick func(Countdown)

	mu       sync.Mutex
	snapshot *models.GameSnapshot
	ttl      time.Duration
	deadline time.Time
	expiry   time.Time
	current  Countdown
	ticker   clockwork.Ticker
	cancel   context.CancelFunc
}

func NewDeadlineClock(clock clockwork.Clock, onTick func(Countdown)) *DeadlineClock {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &DeadlineClock{
		clock:  clock,
		onTick: onTick,
		ttl:    DefaultPublicGameTTL,
	}
}

// Start begins ticking. Calling Start on a running clock is a no-op.
func (d *DeadlineClock) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ticker != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.ticker = d.clock.NewTicker(tickInterval)
	go d.loop(runCtx, d.ticker)
}

// Stop releases the ticker.
func (d *DeadlineClock) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ticker == nil {
		return
	}
	d.ticker.Stop()
	d.ticker = nil
	d.cancel()
}

// Update feeds a fresh snapshot.
func (d *DeadlineClock) Update(snap *models.GameSnapshot) {
	d.mu.Lock()
	d.snapshot = snap
	cd := d.recomputeLocked()
	d.mu.Unlock()
	d.notify(cd)
}

// SetTTL installs the server-configured public game time-to-live.
func (d *DeadlineClock) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	d.mu.Lock()
	d.ttl = ttl
	cd := d.recomputeLocked()
	d.mu.Unlock()
	d.notify(cd)
}

// Remaining returns the last computed countdown.
func (d *DeadlineClock) Remaining() Countdown {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

func (d *DeadlineClock) loop(ctx context.Context, ticker clockwork.Ticker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			d.mu.Lock()
			if d.ticker != ticker {
				d.mu.Unlock()
				return
			}
			cd := d.recomputeLocked()
			d.mu.Unlock()
			d.notify(cd)
		}
	}
}

// recomputeLocked refreshes d.current and re-phases the ticker when the
// input deadline moved.
func (d *DeadlineClock) recomputeLocked() Countdown {
	now := d.clock.Now()

	var deadline time.Time
	if d.snapshot != nil && d.snapshot.ActionDeadline != nil {
		deadline = *d.snapshot.ActionDeadline
	}
	expiry, _ := expiryFor(d.snapshot, d.ttl)

	if (!deadline.Equal(d.deadline) || !expiry.Equal(d.expiry)) && d.ticker != nil {
		d.ticker.Reset(tickInterval)
	}
	d.deadline = deadline
	d.expiry = expiry

	var cd Countdown
	if secs, ok := RemainingSeconds(d.snapshot, now); ok {
		cd.RemainingSeconds = &secs
	}
	if !expiry.IsZero() {
		ms := RemainingMillis(d.snapshot.CreatedAt, d.ttl, now)
		cd.RemainingMillis = &ms
	}
	d.current = cd
	return cd
}

func (d *DeadlineClock) notify(cd Countdown) {
	if d.onTick != nil {
		d.onTick(cd)
	}
}
