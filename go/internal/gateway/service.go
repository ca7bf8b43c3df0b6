package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/chimera/go/internal/models"
	"github.com/mcdev12/chimera/go/internal/session"
)

// Controller is the part of a mounted session the gateway drives.
type Controller interface {
	View() session.View
	Subscribe() (<-chan session.View, func())
	SubmitAction(ctx context.Context, action models.ActionType, entityID *uint) error
	Leave(ctx context.Context)
	EndMatch(ctx context.Context) error
	StartGame(ctx context.Context) error
	Abandon(reason session.AbandonReason) bool
}

// Service is the local view gateway: it streams session views to attached
// UIs and forwards their intents.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	session           Controller
	allowedOrigins    []string
}

// Config holds configuration for the view gateway
type Config struct {
	ConnectionConfig ConnectionConfig
	IntentTimeout    time.Duration
	AllowedOrigins   []string
}

func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		IntentTimeout:    15 * time.Second,
		AllowedOrigins:   []string{"*"},
	}
}

func NewService(config Config, sess Controller) *Service {
	if config.IntentTimeout <= 0 {
		config.IntentTimeout = DefaultConfig().IntentTimeout
	}
	cm := NewConnectionManager(config.ConnectionConfig)
	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm, sess, config.IntentTimeout),
		stateHandler:      NewStateHandler(sess),
		session:           sess,
		allowedOrigins:    config.AllowedOrigins,
	}
}

// Start streams session views to connections until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting view gateway service")

	go s.connectionManager.Start(ctx)

	views, unsubscribe := s.session.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			s.connectionManager.CloseAll()
			log.Info().Msg("view gateway service stopped")
			return nil
		case v, ok := <-views:
			if !ok {
				return nil
			}
			data, err := json.Marshal(Message{Type: MessageView, View: &v})
			if err != nil {
				log.Error().Err(err).Msg("failed to marshal session view")
				continue
			}
			s.connectionManager.Broadcast(data)
		}
	}
}

// RegisterRoutes registers the gateway HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}

// Connections returns the number of attached UIs.
func (s *Service) Connections() int {
	return s.connectionManager.Count()
}

// NewHandler wires the routes behind CORS and h2c.
func NewHandler(s *Service) http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: s.allowedOrigins,
		AllowedHeaders: []string{"*"},
	})

	return h2c.NewHandler(c.Handler(mux), &http2.Server{})
}
