package game_client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/mcdev12/chimera/go/clients"
	"github.com/mcdev12/chimera/go/internal/models"
)

// Credentials are attached to every request, mirroring a browser sending its
// session cookie with credentials included.
type Credentials struct {
	SessionCookie string
	BearerToken   string
}

type GameClient struct {
	*clients.BaseClient
}

func NewGameClient(baseURL string, creds Credentials) *GameClient {
	client := &GameClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}

	if creds.SessionCookie != "" {
		client.AddCookie(&http.Cookie{Name: SessionCookieName, Value: creds.SessionCookie})
	}
	if creds.BearerToken != "" {
		client.SetHeader(AuthorizationHeader, "Bearer "+creds.BearerToken)
	}

	return client
}

// ActionRequest is the body of POST /api/games/{id}/action.
type ActionRequest struct {
	PlayerID   string            `json:"player_uuid"`
	ActionType models.ActionType `json:"action_type"`
	EntityID   *uint             `json:"entity_id,omitempty"`
}

// LeaveRequest is the body of POST /api/games/{id}/leave.
type LeaveRequest struct {
	PlayerID string `json:"player_uuid"`
}

// EndRequest is the body of POST /api/games/{id}/end.
type EndRequest struct {
	PlayerID string `json:"player_uuid"`
}

func gamePath(gameID, sub string) string {
	return GamesEndpoint + "/" + url.PathEscape(gameID) + sub
}

// GetGame reads the current game record.
func (c *GameClient) GetGame(ctx context.Context, gameID string) (*models.GameSnapshot, error) {
	body, err := c.Get(ctx, gamePath(gameID, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	var snap models.GameSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("%w: game: %w", clients.ErrMalformedResponse, err)
	}
	return &snap, nil
}

// SubmitAction posts the player's action for the current round. A non-2xx
// answer is returned as a *clients.StatusError carrying the server's text.
func (c *GameClient) SubmitAction(ctx context.Context, gameID string, req ActionRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal action: %w", err)
	}
	if _, err := c.Post(ctx, gamePath(gameID, ActionPath), bytes.NewReader(payload)); err != nil {
		return fmt.Errorf("failed to submit action: %w", err)
	}
	return nil
}

// NewLeaveRequest prepares the leave notification without sending it, so
// callers can hand it to a transport that outlives the caller.
func (c *GameClient) NewLeaveRequest(ctx context.Context, gameID string, req LeaveRequest) (*http.Request, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal leave: %w", err)
	}
	return c.NewRequest(ctx, http.MethodPost, gamePath(gameID, LeavePath), bytes.NewReader(payload))
}

// Leave sends the leave notification and waits for the answer.
func (c *GameClient) Leave(ctx context.Context, gameID string, req LeaveRequest) error {
	httpReq, err := c.NewLeaveRequest(ctx, gameID, req)
	if err != nil {
		return err
	}
	if _, err := c.Do(httpReq); err != nil {
		return fmt.Errorf("failed to leave game: %w", err)
	}
	return nil
}

// EndGame forfeits the match.
func (c *GameClient) EndGame(ctx context.Context, gameID string, req EndRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal end: %w", err)
	}
	if _, err := c.Post(ctx, gamePath(gameID, EndPath), bytes.NewReader(payload)); err != nil {
		return fmt.Errorf("failed to end game: %w", err)
	}
	return nil
}

// StartGame asks the server to start a waiting game. Only the host may.
func (c *GameClient) StartGame(ctx context.Context, gameID string) error {
	if _, err := c.Post(ctx, gamePath(gameID, StartPath), nil); err != nil {
		return fmt.Errorf("failed to start game: %w", err)
	}
	return nil
}

// GetConfig reads the public server configuration.
func (c *GameClient) GetConfig(ctx context.Context) (*models.ServerConfig, error) {
	body, err := c.Get(ctx, ConfigEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	var cfg models.ServerConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, fmt.Errorf("%w: config: %w, raw response: %s", clients.ErrMalformedResponse, err, string(body))
	}
	return &cfg, nil
}
