package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/chimera/go/clients/game_client"
)

func fetchFrom(t *testing.T, handler http.HandlerFunc) error {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	f := NewFetcher(game_client.NewGameClient(srv.URL, game_client.Credentials{}))
	_, err := f.Fetch(context.Background(), testGameID)
	return err
}

func requireKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	var fe *FetchError
	require.True(t, errors.As(err, &fe), "expected *FetchError, got %T", err)
	assert.Equal(t, kind, fe.Kind)
}

func TestFetch_Success(t *testing.T) {
	err := fetchFrom(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"ID":1,"status":"waiting_for_players","round_count":0,"players":[]}`)
	})
	assert.NoError(t, err)
}

func TestFetch_ClassifiesFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		kind    ErrorKind
		message string
	}{
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "no session", http.StatusUnauthorized)
			},
			kind:    KindUnauthorized,
			message: "Unauthorized",
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			kind:    KindNotFoundOrError,
			message: "Game not found or an error occurred",
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			kind: KindNotFoundOrError,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"status":`)
			},
			kind: KindNotFoundOrError,
		},
		{
			name: "bad timestamp",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"ID":1,"status":"in_progress","round_count":1,"action_deadline":"soon"}`)
			},
			kind: KindNotFoundOrError,
		},
		{
			name: "missing status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"ID":1,"round_count":2}`)
			},
			kind: KindNotFoundOrError,
		},
		{
			name: "negative round",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"ID":1,"status":"in_progress","round_count":-1}`)
			},
			kind: KindNotFoundOrError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fetchFrom(t, tt.handler)
			requireKind(t, err, tt.kind)
			if tt.message != "" {
				assert.Equal(t, tt.message, err.Error())
			}
		})
	}
}

func TestFetch_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	f := NewFetcher(game_client.NewGameClient(url, game_client.Credentials{}))
	_, err := f.Fetch(context.Background(), testGameID)
	requireKind(t, err, KindNetworkFailure)
	assert.Equal(t, "Could not load game data.", err.Error())
	assert.False(t, IsUnauthorized(err))
}
