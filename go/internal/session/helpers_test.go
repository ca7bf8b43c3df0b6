package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/chimera/go/clients/game_client"
	"github.com/mcdev12/chimera/go/internal/models"
)

const (
	testGameID   = "g1"
	testPlayerID = "p1"
	waitFor      = 2 * time.Second
	tick         = 5 * time.Millisecond
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newFakeClock() *clockwork.FakeClock {
	return clockwork.NewFakeClockAt(testEpoch)
}

func planningSnapshot(round int, deadline time.Time, submitted bool) *models.GameSnapshot {
	return &models.GameSnapshot{
		ID:             1,
		Status:         models.GameStatusInProgress,
		Phase:          models.GamePhasePlanning,
		RoundCount:     round,
		ActionDeadline: &deadline,
		CreatedAt:      testEpoch.Add(-time.Hour),
		Players: []models.PlayerView{
			{PlayerID: testPlayerID, HasCreated: true, HasSubmittedAction: submitted},
			{PlayerID: "p2", HasCreated: true},
		},
	}
}

func waitingSnapshot(players ...models.PlayerView) *models.GameSnapshot {
	return &models.GameSnapshot{
		ID:        1,
		Status:    models.GameStatusWaitingForPlayers,
		CreatedAt: testEpoch,
		Players:   players,
	}
}

// fakeAPI is an in-memory game server.
type fakeAPI struct {
	mu sync.Mutex

	snap   *models.GameSnapshot
	getErr error
	gets   int

	actions   []game_client.ActionRequest
	actionErr error

	leaves   []game_client.LeaveRequest
	leaveErr error

	ends   int
	endErr error

	starts   int
	startErr error

	config    *models.ServerConfig
	configErr error
}

func (f *fakeAPI) setSnapshot(snap *models.GameSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = snap
	f.getErr = nil
}

func (f *fakeAPI) setGetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

func (f *fakeAPI) GetGame(ctx context.Context, gameID string) (*models.GameSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.snap, nil
}

func (f *fakeAPI) SubmitAction(ctx context.Context, gameID string, req game_client.ActionRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, req)
	return f.actionErr
}

func (f *fakeAPI) Leave(ctx context.Context, gameID string, req game_client.LeaveRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves = append(f.leaves, req)
	return f.leaveErr
}

func (f *fakeAPI) EndGame(ctx context.Context, gameID string, req game_client.EndRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ends++
	return f.endErr
}

func (f *fakeAPI) StartGame(ctx context.Context, gameID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return f.startErr
}

func (f *fakeAPI) GetConfig(ctx context.Context) (*models.ServerConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.configErr != nil {
		return nil, f.configErr
	}
	if f.config == nil {
		return &models.ServerConfig{}, nil
	}
	return f.config, nil
}

func (f *fakeAPI) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

func (f *fakeAPI) actionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.actions)
}

func (f *fakeAPI) leaveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.leaves)
}

// recordingDispatcher counts dispatches and can be made to fail or panic.
type recordingDispatcher struct {
	mu    sync.Mutex
	calls []game_client.LeaveRequest
	err   error
	panic bool
}

func (d *recordingDispatcher) Dispatch(gameID string, req game_client.LeaveRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, req)
	if d.panic {
		panic("boom")
	}
	return d.err
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

// alertRecorder collects user-visible alerts.
type alertRecorder struct {
	mu     sync.Mutex
	alerts []error
}

func (a *alertRecorder) alert(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, err)
}

func (a *alertRecorder) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.alerts)
}

func uintPtr(v uint) *uint { return &v }

func ctxWithTimeout(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	t.Cleanup(cancel)
	return ctx
}
