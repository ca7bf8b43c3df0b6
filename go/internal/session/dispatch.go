package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/chimera/go/clients/game_client"
)

var (
	ErrDispatcherClosed = errors.New("dispatcher closed")
	ErrBeaconQueueFull  = errors.New("beacon queue full")
)

// DefaultLeaveTimeout bounds a detached leave request.
const DefaultLeaveTimeout = 5 * time.Second

// LeaveRequester prepares and sends leave requests.
type LeaveRequester interface {
	NewLeaveRequest(ctx context.Context, gameID string, req game_client.LeaveRequest) (*http.Request, error)
	Do(req *http.Request) ([]byte, error)
}

// KeepaliveDispatcher is the primary leave transport. The request is built
// synchronously and sent on a context that is detached from the session, so
// it keeps going after the session is torn down. Wait lets the process hold
// its exit until outstanding requests finish.
type KeepaliveDispatcher struct {
	client  LeaveRequester
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewKeepaliveDispatcher(client LeaveRequester, timeout time.Duration) *KeepaliveDispatcher {
	if timeout <= 0 {
		timeout = DefaultLeaveTimeout
	}
	return &KeepaliveDispatcher{client: client, timeout: timeout}
}

func (d *KeepaliveDispatcher) Dispatch(gameID string, req game_client.LeaveRequest) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	httpReq, err := d.client.NewLeaveRequest(ctx, gameID, req)
	if err != nil {
		cancel()
		d.wg.Done()
		return err
	}

	go func() {
		defer d.wg.Done()
		defer cancel()
		if _, err := d.client.Do(httpReq); err != nil {
			log.Debug().Err(err).Str("game_id", gameID).Msg("keepalive leave request failed")
		}
	}()
	return nil
}

// Close refuses new dispatches and waits for outstanding ones until ctx ends.
func (d *KeepaliveDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return waitGroupContext(ctx, &d.wg)
}

type beaconMessage struct {
	gameID string
	req    game_client.LeaveRequest
}

// HTTPBeacon is a fallback leave transport: the payload is queued and a
// background sender posts it, independent of whoever enqueued it.
type HTTPBeacon struct {
	client  LeaveRequester
	timeout time.Duration
	queue   chan beaconMessage

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func NewHTTPBeacon(client LeaveRequester, timeout time.Duration) *HTTPBeacon {
	if timeout <= 0 {
		timeout = DefaultLeaveTimeout
	}
	b := &HTTPBeacon{
		client:  client,
		timeout: timeout,
		queue:   make(chan beaconMessage, 16),
		done:    make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *HTTPBeacon) Dispatch(gameID string, req game_client.LeaveRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrDispatcherClosed
	}
	select {
	case b.queue <- beaconMessage{gameID: gameID, req: req}:
		return nil
	default:
		return ErrBeaconQueueFull
	}
}

func (b *HTTPBeacon) run() {
	defer close(b.done)
	for msg := range b.queue {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		httpReq, err := b.client.NewLeaveRequest(ctx, msg.gameID, msg.req)
		if err == nil {
			_, err = b.client.Do(httpReq)
		}
		cancel()
		if err != nil {
			log.Debug().Err(err).Str("game_id", msg.gameID).Msg("beacon leave delivery failed")
		}
	}
}

// Close stops accepting payloads and drains the queue until ctx ends.
func (b *HTTPBeacon) Close(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NATSBeaconConfig configures the NATS fallback leave transport. The game
// server does not read NATS: a relay subscribed to <SubjectPrefix>.leave.*
// must forward each envelope as POST /api/games/{game_id}/leave with body
// {"player_uuid": ...}, otherwise the leave never reaches the server.
type NATSBeaconConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	FlushTimeout  time.Duration
}

func DefaultNATSBeaconConfig() NATSBeaconConfig {
	return NATSBeaconConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "chimera.session",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		FlushTimeout:  2 * time.Second,
	}
}

// NATSBeacon is a fallback leave transport that publishes the payload on a
// NATS subject. Publish only buffers; the connection flushes it in the
// background and on Close.
type NATSBeacon struct {
	nc     *nats.Conn
	config NATSBeaconConfig
}

type leaveEnvelope struct {
	GameID   string    `json:"game_id"`
	PlayerID string    `json:"player_uuid"`
	SentAt   time.Time `json:"sent_at"`
}

func NewNATSBeacon(cfg NATSBeaconConfig) (*NATSBeacon, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSBeacon{nc: nc, config: cfg}, nil
}

// Subject returns the subject leave notifications for gameID are sent on.
func (b *NATSBeacon) Subject(gameID string) string {
	return fmt.Sprintf("%s.leave.%s", b.config.SubjectPrefix, gameID)
}

func (b *NATSBeacon) Dispatch(gameID string, req game_client.LeaveRequest) error {
	data, err := json.Marshal(leaveEnvelope{GameID: gameID, PlayerID: req.PlayerID, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal leave: %w", err)
	}
	return b.nc.PublishMsg(&nats.Msg{
		Subject: b.Subject(gameID),
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{"PlayerLeft"},
			"Game-ID":    []string{gameID},
		},
	})
}

// Close flushes buffered payloads and closes the connection.
func (b *NATSBeacon) Close(ctx context.Context) error {
	if b.nc == nil {
		return nil
	}
	defer b.nc.Close()
	timeout := b.config.FlushTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}
	return b.nc.FlushTimeout(timeout)
}

func waitGroupContext(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
