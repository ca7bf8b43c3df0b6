package session

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/chimera/go/clients/game_client"
	"github.com/mcdev12/chimera/go/internal/models"
)

// AbandonReason names the signal that the player is leaving the session.
type AbandonReason string

const (
	ReasonPageHide     AbandonReason = "page_hide"
	ReasonUnload       AbandonReason = "unload"
	ReasonNavigateAway AbandonReason = "navigate_away"
	ReasonUnmount      AbandonReason = "unmount"
)

// LeaveDispatcher hands a leave notification to a transport without waiting
// for delivery. An error means the attempt did not even start.
type LeaveDispatcher interface {
	Dispatch(gameID string, req game_client.LeaveRequest) error
}

// TeardownNotifier sends at most one leave notification per mounted session.
type TeardownNotifier struct {
	gameID   string
	playerID string
	primary  LeaveDispatcher
	fallback LeaveDispatcher

	mu          sync.Mutex
	status      models.GameStatus
	participant bool
	onBoard     bool

	sent atomic.Bool
}

func NewTeardownNotifier(gameID, playerID string, primary, fallback LeaveDispatcher) *TeardownNotifier {
	return &TeardownNotifier{
		gameID:   gameID,
		playerID: playerID,
		primary:  primary,
		fallback: fallback,
	}
}

// Observe updates the eligibility inputs from a fresh snapshot. Seeing the
// game in progress means the session moved to the board, which is sticky.
func (n *TeardownNotifier) Observe(snap *models.GameSnapshot) {
	if snap == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status = snap.Status
	n.participant = snap.Player(n.playerID) != nil
	if snap.Status == models.GameStatusInProgress {
		n.onBoard = true
	}
}

// MarkOnBoard records that the session has moved to the active game board.
func (n *TeardownNotifier) MarkOnBoard() {
	n.mu.Lock()
	n.onBoard = true
	n.mu.Unlock()
}

// MarkLeft records an explicit leave so later signals stay silent.
func (n *TeardownNotifier) MarkLeft() {
	n.sent.Store(true)
}

// Eligible reports whether leaving is still meaningful.
func (n *TeardownNotifier) Eligible() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status == models.GameStatusWaitingForPlayers && n.participant && !n.onBoard
}

// Sent reports whether a leave notification was already dispatched.
func (n *TeardownNotifier) Sent() bool {
	return n.sent.Load()
}

// Signal handles an abandonment signal. It returns true only for the call
// that dispatched the notification.
func (n *TeardownNotifier) Signal(reason AbandonReason) bool {
	if !n.Eligible() {
		return false
	}
	if !n.sent.CompareAndSwap(false, true) {
		return false
	}

	req := game_client.LeaveRequest{PlayerID: n.playerID}
	logger := log.With().
		Str("game_id", n.gameID).
		Str("player_id", n.playerID).
		Str("reason", string(reason)).
		Logger()

	err := safeDispatch(n.primary, n.gameID, req)
	if err == nil {
		logger.Info().Msg("leave notification dispatched")
		return true
	}
	logger.Debug().Err(err).Msg("primary leave dispatch failed to start")

	if err := safeDispatch(n.fallback, n.gameID, req); err != nil {
		logger.Debug().Err(err).Msg("fallback leave dispatch failed")
		return true
	}
	logger.Info().Msg("leave notification handed to fallback transport")
	return true
}

func safeDispatch(d LeaveDispatcher, gameID string, req game_client.LeaveRequest) (err error) {
	if d == nil {
		return fmt.Errorf("no dispatcher configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch panicked: %v", r)
		}
	}()
	return d.Dispatch(gameID, req)
}
