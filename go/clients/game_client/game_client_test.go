package game_client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/chimera/go/clients"
	"github.com/mcdev12/chimera/go/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *GameClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGameClient(srv.URL, Credentials{SessionCookie: "s3cr3t", BearerToken: "tok"})
}

func TestGetGame_DecodesSnapshotWithCredentials(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/games/ABC123", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		cookie, err := r.Cookie(SessionCookieName)
		if assert.NoError(t, err) {
			assert.Equal(t, "s3cr3t", cookie.Value)
		}
		_, _ = io.WriteString(w, `{"ID":7,"status":"in_progress","phase":"planning","round_count":3,
			"action_deadline":"2026-01-02T03:04:05Z","players":[{"player_uuid":"p1","has_submitted_action":true,"hybrids":[]}]}`)
	})

	snap, err := c.GetGame(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.Equal(t, int64(7), snap.ID)
	assert.Equal(t, models.GameStatusInProgress, snap.Status)
	assert.Equal(t, 3, snap.RoundCount)
	require.NotNil(t, snap.ActionDeadline)
	assert.True(t, snap.Player("p1").HasSubmittedAction)
}

func TestGetGame_MalformedBodyIsMarked(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"ID":7,"status":"in_progress","action_deadline":"not-a-time"}`)
	})

	_, err := c.GetGame(context.Background(), "g1")
	require.Error(t, err)
	assert.ErrorIs(t, err, clients.ErrMalformedResponse)
	assert.Zero(t, clients.StatusCode(err))
}

func TestGetGame_UnauthorizedIsClassifiable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})

	_, err := c.GetGame(context.Background(), "g1")
	require.Error(t, err)
	assert.True(t, clients.IsUnauthorized(err))
}

func TestSubmitAction_SendsBodyAndSurfacesServerText(t *testing.T) {
	var got ActionRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/games/g1/action", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		http.Error(w, "actions locked while resolving round", http.StatusConflict)
	})

	entity := uint(4)
	err := c.SubmitAction(context.Background(), "g1", ActionRequest{PlayerID: "p1", ActionType: models.ActionAbility, EntityID: &entity})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, clients.StatusCode(err))
	assert.Contains(t, err.Error(), "actions locked while resolving round")
	assert.Equal(t, "p1", got.PlayerID)
	assert.Equal(t, models.ActionAbility, got.ActionType)
	require.NotNil(t, got.EntityID)
	assert.Equal(t, uint(4), *got.EntityID)
}

func TestSubmitAction_OmitsEntityForPlainActions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"player_uuid":"p1","action_type":"rest"}`, string(raw))
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, c.SubmitAction(context.Background(), "g1", ActionRequest{PlayerID: "p1", ActionType: models.ActionRest}))
}

func TestLeaveEndStartAndConfig(t *testing.T) {
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		if r.URL.Path == ConfigEndpoint {
			_, _ = io.WriteString(w, `{"public_games_ttl_seconds":120}`)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	ctx := context.Background()

	require.NoError(t, c.Leave(ctx, "g1", LeaveRequest{PlayerID: "p1"}))
	require.NoError(t, c.EndGame(ctx, "g1", EndRequest{PlayerID: "p1"}))
	require.NoError(t, c.StartGame(ctx, "g1"))
	cfg, err := c.GetConfig(ctx)
	require.NoError(t, err)
	require.NotNil(t, cfg.PublicGamesTTLSeconds)
	assert.Equal(t, 120, *cfg.PublicGamesTTLSeconds)

	assert.Equal(t, []string{
		"POST /api/games/g1/leave",
		"POST /api/games/g1/end",
		"POST /api/games/g1/start",
		"GET /api/config",
	}, paths)
}
