package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/chimera/go/clients/game_client"
	"github.com/mcdev12/chimera/go/internal/models"
)

var (
	ErrAlreadyMounted = errors.New("session already mounted")
	ErrUnmounted      = errors.New("session unmounted")
	ErrStartInFlight  = errors.New("start request already in flight")
	ErrCannotStart    = errors.New("game cannot be started from this session")
	ErrEndInFlight    = errors.New("end request already in flight")
)

// API is the server surface a mounted session talks to.
type API interface {
	GameReader
	ActionSubmitter
	Leave(ctx context.Context, gameID string, req game_client.LeaveRequest) error
	EndGame(ctx context.Context, gameID string, req game_client.EndRequest) error
	StartGame(ctx context.Context, gameID string) error
	GetConfig(ctx context.Context) (*models.ServerConfig, error)
}

type Config struct {
	GameID       string
	PlayerID     string
	PollInterval time.Duration
}

type Deps struct {
	API      API
	Primary  LeaveDispatcher
	Fallback LeaveDispatcher
	Clock    clockwork.Clock
	// Alert surfaces one-off user-visible failures.
	Alert Alerter
	// OnUnauthorized runs once when a read comes back unauthorized.
	OnUnauthorized func()
}

// View is the read-only state a UI renders.
type View struct {
	GameID           string               `json:"game_id"`
	Snapshot         *models.GameSnapshot `json:"snapshot"`
	Error            string               `json:"error,omitempty"`
	RemainingSeconds *int                 `json:"remaining_seconds,omitempty"`
	RemainingMillis  *int64               `json:"remaining_ms,omitempty"`
	ActionsEnabled   bool                 `json:"actions_enabled"`
	LockedRound      *int                 `json:"locked_round,omitempty"`
	TeardownEligible bool                 `json:"teardown_eligible"`
	CanStart         bool                 `json:"can_start"`
	Starting         bool                 `json:"starting"`
}

// Session is one mounted game view: it owns the poller, the deadline clock,
// the submission guard and the teardown notifier for a single game.
type Session struct {
	cfg            Config
	api            API
	alert          Alerter
	onUnauthorized func()

	poller   *Poller
	deadline *DeadlineClock
	guard    *SubmissionGuard
	notifier *TeardownNotifier

	unauthorized sync.Once
	unmountOnce  sync.Once

	mu          sync.Mutex
	mounted     bool
	unmounted   bool
	cancel      context.CancelFunc
	starting    bool
	startStatus models.GameStatus
	ending      bool

	subMu   sync.Mutex
	subs    map[int]chan View
	nextSub int
}

func New(cfg Config, deps Deps) *Session {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	s := &Session{
		cfg:            cfg,
		api:            deps.API,
		alert:          deps.Alert,
		onUnauthorized: deps.OnUnauthorized,
		subs:           make(map[int]chan View),
	}
	s.guard = NewSubmissionGuard(cfg.GameID, cfg.PlayerID, deps.API, deps.Alert)
	s.notifier = NewTeardownNotifier(cfg.GameID, cfg.PlayerID, deps.Primary, deps.Fallback)
	s.deadline = NewDeadlineClock(clock, func(Countdown) { s.publish() })
	s.poller = NewPoller(NewFetcher(deps.API), clock, cfg.PollInterval, s.handleUpdate)
	return s
}

// Mount starts polling, the countdown and the one-shot config load.
func (s *Session) Mount(ctx context.Context) error {
	s.mu.Lock()
	if s.unmounted {
		s.mu.Unlock()
		return ErrUnmounted
	}
	if s.mounted {
		s.mu.Unlock()
		return ErrAlreadyMounted
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.mounted = true
	s.cancel = cancel
	s.mu.Unlock()

	log.Info().
		Str("game_id", s.cfg.GameID).
		Str("player_id", s.cfg.PlayerID).
		Msg("mounting session")

	s.deadline.Start(runCtx)
	if err := s.poller.Start(runCtx, s.cfg.GameID); err != nil {
		s.deadline.Stop()
		cancel()
		return fmt.Errorf("start poller: %w", err)
	}
	go s.loadConfig(runCtx)
	return nil
}

func (s *Session) loadConfig(ctx context.Context) {
	cfg, err := s.api.GetConfig(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load server config; keeping default public game ttl")
		return
	}
	if cfg.PublicGamesTTLSeconds != nil {
		s.deadline.SetTTL(time.Duration(*cfg.PublicGamesTTLSeconds) * time.Second)
	}
}

func (s *Session) handleUpdate(u Update) {
	if IsUnauthorized(u.Err) {
		s.unauthorized.Do(func() {
			log.Warn().Str("game_id", s.cfg.GameID).Msg("session unauthorized; stopping poller")
			s.poller.Stop()
			if s.onUnauthorized != nil {
				s.onUnauthorized()
			}
		})
	}

	s.guard.Observe(u.Snapshot)
	s.notifier.Observe(u.Snapshot)
	if u.Snapshot != nil {
		s.mu.Lock()
		if s.starting && u.Snapshot.Status != s.startStatus {
			s.starting = false
		}
		s.mu.Unlock()
	}
	// Publishes through the tick callback.
	s.deadline.Update(u.Snapshot)
}

// Refresh forces an immediate poll.
func (s *Session) Refresh(ctx context.Context) {
	s.poller.Refresh(ctx)
}

// View assembles the current read-only state.
func (s *Session) View() View {
	v := View{
		GameID:           s.cfg.GameID,
		Snapshot:         s.poller.Snapshot(),
		ActionsEnabled:   s.guard.ActionsEnabled(),
		TeardownEligible: s.notifier.Eligible() && !s.notifier.Sent(),
	}
	if err := s.poller.Err(); err != nil {
		v.Error = err.Error()
	}
	cd := s.deadline.Remaining()
	v.RemainingSeconds = cd.RemainingSeconds
	v.RemainingMillis = cd.RemainingMillis
	if lock := s.guard.Lock(); lock != nil {
		round := lock.RoundNumber
		v.LockedRound = &round
	}

	s.mu.Lock()
	v.Starting = s.starting
	s.mu.Unlock()
	v.CanStart = !v.Starting && canStart(v.Snapshot, s.cfg.PlayerID, cd.RemainingMillis)
	return v
}

// canStart mirrors the host start rules: the creator, two ready players,
// still waiting and, for public games, inside the start window.
func canStart(snap *models.GameSnapshot, playerID string, remainingMs *int64) bool {
	if snap == nil || snap.Status != models.GameStatusWaitingForPlayers {
		return false
	}
	if len(snap.Players) != 2 || snap.Players[0].PlayerID != playerID {
		return false
	}
	for _, p := range snap.Players {
		if !p.HasCreated {
			return false
		}
	}
	return remainingMs == nil || *remainingMs > 0
}

// Subscribe returns a channel that always holds the latest view. Slow
// readers skip intermediate views.
func (s *Session) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 1)
	ch <- s.View()

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			close(ch)
			s.subMu.Unlock()
		})
	}
}

func (s *Session) publish() {
	v := s.View()

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

// SubmitAction sends the player's action for the current round.
func (s *Session) SubmitAction(ctx context.Context, action models.ActionType, entityID *uint) error {
	defer s.publish()
	return s.guard.Submit(ctx, action, entityID)
}

// Abandon forwards an abandonment signal to the teardown notifier.
func (s *Session) Abandon(reason AbandonReason) bool {
	sent := s.notifier.Signal(reason)
	if sent {
		s.publish()
	}
	return sent
}

// Leave is the explicit "back to lobby" path. Failures are logged and the
// session is unmounted regardless.
func (s *Session) Leave(ctx context.Context) {
	eligible := s.notifier.Eligible() && !s.notifier.Sent()
	s.notifier.MarkLeft()

	if eligible {
		err := s.api.Leave(ctx, s.cfg.GameID, game_client.LeaveRequest{PlayerID: s.cfg.PlayerID})
		if err != nil {
			log.Warn().Err(err).Str("game_id", s.cfg.GameID).Msg("leave failed; continuing")
		} else {
			log.Info().Str("game_id", s.cfg.GameID).Str("player_id", s.cfg.PlayerID).Msg("left game")
		}
	}
	s.Unmount()
}

// EndMatch forfeits the match. Only one request may be in flight.
func (s *Session) EndMatch(ctx context.Context) error {
	s.mu.Lock()
	if s.ending {
		s.mu.Unlock()
		return ErrEndInFlight
	}
	s.ending = true
	s.mu.Unlock()

	err := s.api.EndGame(ctx, s.cfg.GameID, game_client.EndRequest{PlayerID: s.cfg.PlayerID})

	s.mu.Lock()
	s.ending = false
	s.mu.Unlock()

	if err != nil {
		log.Error().Err(err).Str("game_id", s.cfg.GameID).Msg("end match failed")
	} else {
		log.Info().Str("game_id", s.cfg.GameID).Msg("match ended")
	}
	s.Unmount()
	return err
}

// StartGame asks the server to start the game. On success the start stays
// pending until a poll shows the status has moved.
func (s *Session) StartGame(ctx context.Context) error {
	s.mu.Lock()
	if s.starting {
		s.mu.Unlock()
		return ErrStartInFlight
	}
	snap := s.poller.Snapshot()
	if !canStart(snap, s.cfg.PlayerID, s.deadline.Remaining().RemainingMillis) {
		s.mu.Unlock()
		return ErrCannotStart
	}
	s.starting = true
	s.startStatus = snap.Status
	s.mu.Unlock()
	s.publish()

	if err := s.api.StartGame(ctx, s.cfg.GameID); err != nil {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()

		log.Error().Err(err).Str("game_id", s.cfg.GameID).Msg("start game failed")
		startErr := fmt.Errorf("start game: %w", err)
		if s.alert != nil {
			s.alert(startErr)
		}
		s.publish()
		return startErr
	}
	log.Info().Str("game_id", s.cfg.GameID).Msg("start requested")
	return nil
}

// Unmount stops polling and the countdown and runs the teardown check.
// It is safe to call more than once.
func (s *Session) Unmount() {
	s.unmountOnce.Do(func() {
		s.mu.Lock()
		s.unmounted = true
		cancel := s.cancel
		s.mu.Unlock()

		s.poller.Stop()
		s.deadline.Stop()
		s.notifier.Signal(ReasonUnmount)
		if cancel != nil {
			cancel()
		}
		log.Info().Str("game_id", s.cfg.GameID).Msg("session unmounted")
	})
}
