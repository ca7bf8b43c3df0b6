package models

import (
	"errors"
	"fmt"
	"time"
)

// GameStatus defines the lifecycle status of a game.
type GameStatus string

const (
	GameStatusWaitingForPlayers GameStatus = "waiting_for_players"
	GameStatusStarting          GameStatus = "starting"
	GameStatusInProgress        GameStatus = "in_progress"
	GameStatusFinished          GameStatus = "finished"
	GameStatusError             GameStatus = "error"
)

// Valid reports whether s is one of the known statuses.
func (s GameStatus) Valid() bool {
	switch s {
	case GameStatusWaitingForPlayers, GameStatusStarting, GameStatusInProgress, GameStatusFinished, GameStatusError:
		return true
	}
	return false
}

// GamePhase is only meaningful while the game is in progress.
type GamePhase string

const (
	GamePhasePlanning  GamePhase = "planning"
	GamePhaseResolving GamePhase = "resolving"
	GamePhaseResolved  GamePhase = "resolved"
)

// ActionType is the action a player commits to for a round.
type ActionType string

const (
	ActionBasicAttack ActionType = "basic_attack"
	ActionDefend      ActionType = "defend"
	ActionAbility     ActionType = "ability"
	ActionRest        ActionType = "rest"
)

var (
	ErrUnknownAction      = errors.New("unknown action type")
	ErrAbilityNeedsEntity = errors.New("ability action requires an entity")
)

// Validate checks the action type and its entity requirement.
func (a ActionType) Validate(entityID *uint) error {
	switch a {
	case ActionBasicAttack, ActionDefend, ActionRest:
		return nil
	case ActionAbility:
		if entityID == nil {
			return ErrAbilityNeedsEntity
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, string(a))
}

// Entity is one of the base entities a unit is assembled from. On the wire
// these are the unit's base animals.
type Entity struct {
	ID               uint   `json:"ID"`
	Name             string `json:"name"`
	HitPoints        int    `json:"pv"`
	Attack           int    `json:"atq"`
	Defense          int    `json:"def"`
	Agility          int    `json:"agi"`
	Energy           int    `json:"ene"`
	VigorCost        int    `json:"vigor_cost,omitempty"`
	SkillName        string `json:"skill_name"`
	SkillCost        int    `json:"skill_cost"`
	SkillDescription string `json:"skill_description"`
}

// Unit is a composite unit owned by a player (a hybrid on the wire). All
// combat attributes are server-owned and only displayed.
type Unit struct {
	ID                      uint     `json:"ID"`
	Name                    string   `json:"name"`
	GeneratedName           string   `json:"generated_name,omitempty"`
	BaseEntities            []Entity `json:"base_animals"`
	SelectedAbilityEntityID *uint    `json:"selected_ability_animal_id,omitempty"`
	BaseHitPoints           int      `json:"base_pv"`
	CurrentHitPoints        int      `json:"current_pv"`
	BaseAttack              int      `json:"base_atq"`
	CurrentAttack           int      `json:"current_atq"`
	BaseDefense             int      `json:"base_def"`
	CurrentDefense          int      `json:"current_def"`
	BaseAgility             int      `json:"base_agi"`
	CurrentAgility          int      `json:"current_agi"`
	BaseEnergy              int      `json:"base_ene"`
	CurrentEnergy           int      `json:"current_ene"`
	BaseVigor               int      `json:"base_vig"`
	CurrentVigor            int      `json:"current_vig"`
	IsActive                bool     `json:"is_active"`
	IsDefeated              bool     `json:"is_defeated"`
	StunnedUntilRound       int      `json:"stunned_until_round,omitempty"`
	LastAction              string   `json:"last_action,omitempty"`
}

// PlayerView is the per-player projection of a game snapshot.
type PlayerView struct {
	PlayerID              string     `json:"player_uuid"`
	PlayerName            string     `json:"player_name"`
	HasCreated            bool       `json:"has_created"`
	HasSubmittedAction    bool       `json:"has_submitted_action"`
	PendingActionType     ActionType `json:"pending_action_type,omitempty"`
	PendingActionEntityID *uint      `json:"pending_action_animal_id,omitempty"`
	Units                 []Unit     `json:"hybrids"`
}

// ActiveUnit returns the player's active, undefeated unit.
func (p *PlayerView) ActiveUnit() *Unit {
	for i := range p.Units {
		if p.Units[i].IsActive && !p.Units[i].IsDefeated {
			return &p.Units[i]
		}
	}
	return nil
}

// GameSnapshot is a server-produced point-in-time copy of a game record.
// It is never mutated after decoding; each poll replaces it wholesale.
type GameSnapshot struct {
	ID               int64        `json:"ID"`
	Name             string       `json:"name"`
	Description      string       `json:"description"`
	JoinCode         string       `json:"join_code"`
	Status           GameStatus   `json:"status"`
	Phase            GamePhase    `json:"phase,omitempty"`
	RoundCount       int          `json:"round_count"`
	ActionDeadline   *time.Time   `json:"action_deadline,omitempty"`
	Private          bool         `json:"private"`
	CreatedAt        time.Time    `json:"created_at"`
	Winner           string       `json:"winner,omitempty"`
	Message          string       `json:"message,omitempty"`
	LastRoundSummary string       `json:"last_round_summary,omitempty"`
	Players          []PlayerView `json:"players"`
}

var (
	ErrMissingStatus = errors.New("snapshot has no status")
	ErrNegativeRound = errors.New("snapshot round_count is negative")
	ErrUnknownStatus = errors.New("snapshot status is unknown")
)

// Validate checks the fields the session engine depends on.
func (g *GameSnapshot) Validate() error {
	if g.Status == "" {
		return ErrMissingStatus
	}
	if !g.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, string(g.Status))
	}
	if g.RoundCount < 0 {
		return ErrNegativeRound
	}
	return nil
}

// Player returns the view for playerID, or nil when not a participant.
func (g *GameSnapshot) Player(playerID string) *PlayerView {
	if playerID == "" {
		return nil
	}
	for i := range g.Players {
		if g.Players[i].PlayerID == playerID {
			return &g.Players[i]
		}
	}
	return nil
}

// Opponent returns the first player that is not playerID.
func (g *GameSnapshot) Opponent(playerID string) *PlayerView {
	for i := range g.Players {
		if g.Players[i].PlayerID != playerID {
			return &g.Players[i]
		}
	}
	return nil
}

// IsPlanning reports whether players may currently submit actions.
func (g *GameSnapshot) IsPlanning() bool {
	return g.Status == GameStatusInProgress && g.Phase == GamePhasePlanning
}

// ServerConfig is the public configuration served at /api/config.
type ServerConfig struct {
	PublicGamesTTLSeconds *int `json:"public_games_ttl_seconds"`
}
