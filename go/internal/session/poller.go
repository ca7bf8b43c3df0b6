package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/chimera/go/internal/models"
)

// DefaultPollInterval matches the server-side expectation of a 3s refresh.
const DefaultPollInterval = 3 * time.Second

var ErrPollerRunning = errors.New("poller already running")

// SnapshotFetcher is what the poller drives on every tick.
type SnapshotFetcher interface {
	Fetch(ctx context.Context, gameID string) (*models.GameSnapshot, error)
}

// Update is the poller's read-only {snapshot, error} pair after an applied
// fetch. Snapshot is the last successful one and survives later failures.
type Update struct {
	Snapshot *models.GameSnapshot
	Err      error
	Seq      uint64
}

// Poller keeps a local mirror of a server-owned game record fresh. Ticks do
// not wait for an outstanding fetch; a response older than the last applied
// one is dropped.
type Poller struct {
	fetcher  SnapshotFetcher
	clock    clockwork.Clock
	interval time.Duration
	onUpdate func(Update)

	mu         sync.Mutex
	gameID     string
	snapshot   *models.GameSnapshot
	err        error
	nextSeq    uint64
	appliedSeq uint64
	live       bool
	cancel     context.CancelFunc
	ticker     clockwork.Ticker

	deliverMu    sync.Mutex
	deliveredSeq uint64
}

// NewPoller creates a poller. A non-positive interval falls back to
// DefaultPollInterval.
func NewPoller(fetcher SnapshotFetcher, clock clockwork.Clock, interval time.Duration, onUpdate func(Update)) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Poller{
		fetcher:  fetcher,
		clock:    clock,
		interval: interval,
		onUpdate: onUpdate,
	}
}

// Start fetches immediately and then once per interval until Stop is called
// or ctx is cancelled.
func (p *Poller) Start(ctx context.Context, gameID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.live {
		return ErrPollerRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.gameID = gameID
	p.live = true
	p.cancel = cancel
	p.ticker = p.clock.NewTicker(p.interval)

	log.Debug().
		Str("game_id", gameID).
		Dur("interval", p.interval).
		Msg("poller started")

	go p.poll(runCtx)
	go p.loop(runCtx, p.ticker)
	return nil
}

// Stop halts all future fetches. It is safe to call more than once.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Poller) stopLocked() {
	if !p.live {
		return
	}
	p.live = false
	p.ticker.Stop()
	p.cancel()
	log.Debug().Str("game_id", p.gameID).Msg("poller stopped")
}

// Refresh forces an out-of-band fetch and waits for it.
func (p *Poller) Refresh(ctx context.Context) {
	p.poll(ctx)
}

// Snapshot returns the most recent successful snapshot, or nil.
func (p *Poller) Snapshot() *models.GameSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot
}

// Err returns the sticky error of the last applied fetch, or nil.
func (p *Poller) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Running reports whether the poller has been started and not stopped.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}

func (p *Poller) loop(ctx context.Context, ticker clockwork.Ticker) {
	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			if p.ticker == ticker {
				p.stopLocked()
			}
			p.mu.Unlock()
			return
		case <-ticker.Chan():
			go p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	p.mu.Lock()
	if !p.live {
		p.mu.Unlock()
		return
	}
	p.nextSeq++
	seq := p.nextSeq
	gameID := p.gameID
	p.mu.Unlock()

	snap, err := p.fetcher.Fetch(ctx, gameID)

	p.mu.Lock()
	if !p.live {
		p.mu.Unlock()
		return
	}
	if seq < p.appliedSeq {
		p.mu.Unlock()
		log.Debug().
			Str("game_id", gameID).
			Uint64("seq", seq).
			Msg("dropping stale poll response")
		return
	}
	p.appliedSeq = seq
	if err != nil {
		p.err = err
	} else {
		p.snapshot = snap
		p.err = nil
	}
	u := Update{Snapshot: p.snapshot, Err: p.err, Seq: seq}
	p.mu.Unlock()

	if err != nil {
		log.Warn().Err(err).Str("game_id", gameID).Msg("poll failed")
	}
	p.deliver(u)
}

func (p *Poller) deliver(u Update) {
	if p.onUpdate == nil {
		return
	}
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()
	if u.Seq <= p.deliveredSeq || !p.Running() {
		return
	}
	p.deliveredSeq = u.Seq
	p.onUpdate(u)
}
