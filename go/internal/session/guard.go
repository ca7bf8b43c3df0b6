package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/chimera/go/clients/game_client"
	"github.com/mcdev12/chimera/go/internal/models"
)

var (
	ErrSubmissionLocked = errors.New("action already submitted for this round")
	ErrAlreadySubmitted = errors.New("server already holds an action for this round")
	ErrNoSnapshot       = errors.New("no game snapshot observed yet")
	ErrNotPlanning      = errors.New("game is not accepting actions")
	ErrNotParticipant   = errors.New("player is not part of this game")
)

// IsSuppressed reports whether err means Submit was a no-op that sent
// nothing over the network.
func IsSuppressed(err error) bool {
	return errors.Is(err, ErrSubmissionLocked) ||
		errors.Is(err, ErrAlreadySubmitted) ||
		errors.Is(err, ErrNoSnapshot) ||
		errors.Is(err, ErrNotPlanning) ||
		errors.Is(err, ErrNotParticipant)
}

// SubmissionError is a rejected or failed action write. The lock it was
// issued under stays in place.
type SubmissionError struct {
	Round int
	Err   error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("Action error: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ActionSubmitter is the write side used by the guard.
type ActionSubmitter interface {
	SubmitAction(ctx context.Context, gameID string, req game_client.ActionRequest) error
}

// Alerter surfaces a one-off user-visible message.
type Alerter func(err error)

// SubmissionLock is held from the moment an action is triggered until a
// poll shows the round has advanced.
type SubmissionLock struct {
	RoundNumber int  `json:"round_number"`
	InFlight    bool `json:"in_flight"`
}

// SubmissionGuard lets exactly one action request out per round per player.
// A failed write does not unlock: the server may have registered the action
// anyway, so the only unlock path is observing round_count move past the
// locked round.
type SubmissionGuard struct {
	gameID   string
	playerID string
	client   ActionSubmitter
	alert    Alerter

	mu       sync.Mutex
	lock     *SubmissionLock
	snapshot *models.GameSnapshot
}

func NewSubmissionGuard(gameID, playerID string, client ActionSubmitter, alert Alerter) *SubmissionGuard {
	return &SubmissionGuard{
		gameID:   gameID,
		playerID: playerID,
		client:   client,
		alert:    alert,
	}
}

// Submit sends the action for the current round, or returns a suppression
// error without touching the network.
func (g *SubmissionGuard) Submit(ctx context.Context, action models.ActionType, entityID *uint) error {
	if err := action.Validate(entityID); err != nil {
		return err
	}

	g.mu.Lock()
	if g.lock != nil {
		g.mu.Unlock()
		return ErrSubmissionLocked
	}
	snap := g.snapshot
	if snap == nil {
		g.mu.Unlock()
		return ErrNoSnapshot
	}
	me := snap.Player(g.playerID)
	if me == nil {
		g.mu.Unlock()
		return ErrNotParticipant
	}
	if me.HasSubmittedAction {
		g.mu.Unlock()
		return ErrAlreadySubmitted
	}
	if !snap.IsPlanning() {
		g.mu.Unlock()
		return ErrNotPlanning
	}
	round := snap.RoundCount
	lock := &SubmissionLock{RoundNumber: round, InFlight: true}
	g.lock = lock
	g.mu.Unlock()

	log.Info().
		Str("game_id", g.gameID).
		Str("player_id", g.playerID).
		Str("action_type", string(action)).
		Int("round", round).
		Msg("submitting action")

	err := g.client.SubmitAction(ctx, g.gameID, game_client.ActionRequest{
		PlayerID:   g.playerID,
		ActionType: action,
		EntityID:   entityID,
	})

	g.mu.Lock()
	if g.lock == lock {
		lock.InFlight = false
	}
	g.mu.Unlock()

	if err != nil {
		subErr := &SubmissionError{Round: round, Err: err}
		log.Error().
			Err(err).
			Str("game_id", g.gameID).
			Int("round", round).
			Msg("action submission failed; staying locked until the round advances")
		if g.alert != nil {
			g.alert(subErr)
		}
		return subErr
	}
	return nil
}

// Observe feeds a fresh snapshot and releases the lock once the round it
// was taken for is over.
func (g *SubmissionGuard) Observe(snap *models.GameSnapshot) {
	if snap == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.snapshot = snap
	if g.lock != nil && snap.RoundCount > g.lock.RoundNumber {
		log.Debug().
			Str("game_id", g.gameID).
			Int("locked_round", g.lock.RoundNumber).
			Int("round", snap.RoundCount).
			Msg("round advanced; submission unlocked")
		g.lock = nil
	}
}

// Lock returns a copy of the current lock, or nil when idle.
func (g *SubmissionGuard) Lock() *SubmissionLock {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lock == nil {
		return nil
	}
	l := *g.lock
	return &l
}

// ActionsEnabled reports whether action controls should be enabled.
func (g *SubmissionGuard) ActionsEnabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lock != nil || g.snapshot == nil || !g.snapshot.IsPlanning() {
		return false
	}
	me := g.snapshot.Player(g.playerID)
	return me != nil && !me.HasSubmittedAction
}
