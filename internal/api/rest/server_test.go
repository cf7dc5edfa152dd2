package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Wideyedwonderer/buscuit-maker/internal/api/websocket"
	"github.com/Wideyedwonderer/buscuit-maker/internal/auth"
	"github.com/Wideyedwonderer/buscuit-maker/internal/config"
	"github.com/Wideyedwonderer/buscuit-maker/internal/events"
	"github.com/Wideyedwonderer/buscuit-maker/internal/interfaces"
	"github.com/Wideyedwonderer/buscuit-maker/internal/machine"
	"github.com/Wideyedwonderer/buscuit-maker/internal/storage"
	"github.com/Wideyedwonderer/buscuit-maker/internal/types"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeMachine struct {
	mu       sync.Mutex
	commands []machine.Command
	err      error
}

func (f *fakeMachine) ExecuteCommand(_ context.Context, cmd machine.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.commands = append(f.commands, cmd)
	return nil
}

func (f *fakeMachine) GetStatus() machine.MachineStatus {
	return machine.MachineStatus{State: machine.StatePaused, Motor: machine.MotorOff, OvenTemperature: 225}
}

func (f *fakeMachine) InitialConfig() events.InitialConfig {
	return events.InitialConfig{OvenLength: 2, ConveyorLength: 6, OvenPosition: 4, MotorPulseDurationSeconds: 1}
}

func (f *fakeMachine) received() []machine.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]machine.Command(nil), f.commands...)
}

type fakeJournal struct {
	entries []storage.Entry
	err     error
	limit   int
}

func (f *fakeJournal) Recent(_ context.Context, limit int) ([]storage.Entry, error) {
	f.limit = limit
	return f.entries, f.err
}

type fakeLifecycle struct {
	machine *fakeMachine
	journal interfaces.Journal
}

func (f *fakeLifecycle) Config() *config.Config               { return &config.Config{} }
func (f *fakeLifecycle) MachineController() interfaces.Machine { return f.machine }
func (f *fakeLifecycle) Journal() interfaces.Journal          { return f.journal }
func (f *fakeLifecycle) Shutdown(context.Context) error       { return nil }
func (f *fakeLifecycle) GetCurrentStatus() interfaces.SystemStatus {
	return interfaces.SystemStatus{State: "RUNNING", MachineState: "PAUSED"}
}

type fixture struct {
	server  *Server
	machine *fakeMachine
	life    *fakeLifecycle
}

func newFixture(t *testing.T, issuer *auth.TokenIssuer) *fixture {
	t.Helper()

	m := &fakeMachine{}
	life := &fakeLifecycle{machine: m}
	b := events.NewBroadcaster(zap.NewNop())
	hub := websocket.NewHub(zap.NewNop(), b, m)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	s, err := NewServer(&config.Config{}, life, zap.NewNop(), hub, issuer)
	require.NoError(t, err)

	return &fixture{server: s, machine: m, life: life}
}

func (f *fixture) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body types.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

func TestHealth(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"ok"`)
	require.Equal(t, "http://dashboard.local", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSwitchMachineState(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/", `{"newState":"ON"}`, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/api/v1/machine", `{"newState":"PAUSED"}`, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/api/v1/machine", `{"newState":"OFF"}`, "")
	require.Equal(t, http.StatusOK, w.Code)

	require.Equal(t, []machine.Command{
		machine.CommandTurnOn, machine.CommandPause, machine.CommandTurnOff,
	}, f.machine.received())

	for _, body := range []string{
		`{"newState":"BAKING"}`,
		`{"newState":"ON","speed":3}`,
		`{}`,
		`not json`,
	} {
		w := f.do(http.MethodPost, "/", body, "")
		require.Equal(t, http.StatusBadRequest, w.Code, body)
		require.Equal(t, types.CodeBadRequest, errorCode(t, w))
	}
	require.Len(t, f.machine.received(), 3)
}

func TestExecuteMachineCommand(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/v1/machine/command", `{"command":"TURN_ON_MACHINE"}`, "")
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, []machine.Command{machine.CommandTurnOn}, f.machine.received())

	w = f.do(http.MethodPost, "/api/v1/machine/command", `{"command":"BAKE"}`, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "unknown command: BAKE")

	w = f.do(http.MethodPost, "/api/v1/machine/command", `{}`, "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	f.machine.mu.Lock()
	f.machine.err = machine.ErrClosed
	f.machine.mu.Unlock()

	w = f.do(http.MethodPost, "/api/v1/machine/command", `{"command":"PAUSE_MACHINE"}`, "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, types.CodeUnavailable, errorCode(t, w))
}

func TestMachineStatusAndConfig(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/api/v1/machine/status", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"state":"PAUSED"`)
	require.Contains(t, w.Body.String(), `"oven_temperature":225`)

	w = f.do(http.MethodGet, "/api/v1/machine/config", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"ovenLength":2,"conveyorLength":6,"ovenPosition":4,"motorPulseDurationSeconds":1}`, w.Body.String())

	w = f.do(http.MethodGet, "/api/v1/system/status", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"state":"RUNNING"`)
}

func TestJournal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/api/v1/journal", "", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, types.CodeUnavailable, errorCode(t, w))

	entry, err := storage.NewEntry(events.New(events.OvenHeated, true))
	require.NoError(t, err)
	j := &fakeJournal{entries: []storage.Entry{entry}}
	f.life.journal = j

	w = f.do(http.MethodGet, "/api/v1/journal?limit=5", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 5, j.limit)

	var body struct {
		Events []storage.Entry `json:"events"`
		Count  int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	require.Equal(t, "OVEN_HEATED", body.Events[0].Event)
	require.JSONEq(t, "true", string(body.Events[0].Payload))

	w = f.do(http.MethodGet, "/api/v1/journal?limit=zero", "", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	j.err = errors.New("disk full")
	w = f.do(http.MethodGet, "/api/v1/journal", "", "")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, types.CodeJournalFailed, errorCode(t, w))
	require.Equal(t, 0, j.limit)
}

func TestAuthentication(t *testing.T) {
	t.Parallel()

	issuer := auth.NewTokenIssuer("test-secret", time.Hour, "biscuit-maker")
	f := newFixture(t, issuer)

	viewer, err := issuer.Generate("dashboard", auth.RoleViewer)
	require.NoError(t, err)
	operator, err := issuer.Generate("line-lead", auth.RoleOperator)
	require.NoError(t, err)

	w := f.do(http.MethodGet, "/api/v1/machine/status", "", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, types.CodeUnauthorized, errorCode(t, w))

	w = f.do(http.MethodGet, "/api/v1/machine/status", "", viewer)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/api/v1/machine/command", `{"command":"TURN_ON_MACHINE"}`, viewer)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, types.CodeForbidden, errorCode(t, w))

	w = f.do(http.MethodPost, "/", `{"newState":"ON"}`, viewer)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodPost, "/api/v1/machine/command", `{"command":"TURN_ON_MACHINE"}`, operator)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, []machine.Command{machine.CommandTurnOn}, f.machine.received())

	// Health stays public
	w = f.do(http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestWebSocketLive(t *testing.T) {
	t.Parallel()

	issuer := auth.NewTokenIssuer("test-secret", time.Hour, "biscuit-maker")
	f := newFixture(t, issuer)

	srv := httptest.NewServer(f.server.Handler())
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws/live"

	_, resp, err := gws.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, gws.ErrBadHandshake)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	viewer, err := issuer.Generate("dashboard", auth.RoleViewer)
	require.NoError(t, err)

	conn, _, err := gws.DefaultDialer.Dial(url+"?token="+viewer, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var first struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, "INITIAL_CONFIG", first.Event)
	require.JSONEq(t, `{"ovenLength":2,"conveyorLength":6,"ovenPosition":4,"motorPulseDurationSeconds":1}`, string(first.Data))

	// Viewers may watch but not command
	require.NoError(t, conn.WriteJSON(map[string]string{"event": "TURN_ON_MACHINE"}))
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, "ERROR", first.Event)
	require.Empty(t, f.machine.received())

	require.Eventually(t, func() bool {
		w := f.do(http.MethodGet, "/api/v1/ws/status?token="+viewer, "", "")
		return w.Code == http.StatusOK && strings.Contains(w.Body.String(), `"clients":1`)
	}, time.Second, 10*time.Millisecond)
}
