package system

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/Wideyedwonderer/buscuit-maker/internal/api/rpc"
	"github.com/Wideyedwonderer/buscuit-maker/internal/config"
	"github.com/Wideyedwonderer/buscuit-maker/internal/machine"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		Server: config.ServerConfig{ShutdownTimeout: 5 * time.Second},
		Machine: config.MachineConfig{
			ConveyorLength:                6,
			OvenLength:                    2,
			OvenPosition:                  4,
			OvenWarmupDegreesPerPeriod:    100,
			OvenCoolDownDegreesPerPeriod:  120,
			DesiredMinimumOvenTemperature: 220,
			DesiredMaximumOvenTemperature: 240,
			MotorPulseDurationSeconds:     0.1,
			OvenSpeedPeriodSeconds:        0.001,
		},
		Journal: config.JournalConfig{
			Driver:     config.JournalDriverSQLite,
			SQLitePath: filepath.Join(t.TempDir(), "journal.db"),
		},
	}
}

func port(addr net.Addr) int {
	return addr.(*net.TCPAddr).Port
}

func TestValidateTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to SystemState
		ok       bool
	}{
		{StateInitializing, StateRunning, true},
		{StateInitializing, StateStopping, true},
		{StateRunning, StateStopping, true},
		{StateStopping, StateStopped, true},
		{StateError, StateStopping, true},
		{StateRunning, StateInitializing, false},
		{StateStopped, StateRunning, false},
		{StateStopping, StateRunning, false},
		{SystemState(42), StateRunning, false},
	}

	for _, tt := range tests {
		err := ValidateTransition(tt.from, tt.to)
		if tt.ok {
			require.NoError(t, err, "%s -> %s", tt.from, tt.to)
		} else {
			require.Error(t, err, "%s -> %s", tt.from, tt.to)
		}
	}

	require.Equal(t, "UNKNOWN", SystemState(42).String())
}

func TestLifecycleStartAndShutdown(t *testing.T) {
	lm, err := NewLifecycleManager(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, lm.Start(context.Background()))
	require.Equal(t, StateRunning, lm.State())

	status := lm.GetCurrentStatus()
	require.Equal(t, "RUNNING", status.State)
	require.Equal(t, "OFF", status.MachineState)
	require.True(t, status.Journal)
	require.False(t, status.MQTT)
	require.False(t, status.Telemetry)

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port(lm.RESTAddr())))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	conn, err := grpc.NewClient(fmt.Sprintf("127.0.0.1:%d", port(lm.GRPCAddr())),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, rpc.NewClient(conn).SendCommand(ctx, "TURN_ON_MACHINE"))

	require.Eventually(t, func() bool {
		return lm.MachineController().GetStatus().State == machine.StateOn
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		entries, err := lm.Journal().Recent(context.Background(), 0)
		if err != nil {
			return false
		}
		for _, e := range entries {
			if e.Event == "MACHINE_ON" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	require.NoError(t, lm.Shutdown(shutdownCtx))
	require.Equal(t, StateStopped, lm.State())
	require.NoError(t, lm.Shutdown(shutdownCtx))

	select {
	case <-lm.Done():
	default:
		t.Fatal("Done not closed after shutdown")
	}

	require.ErrorIs(t, lm.MachineController().ExecuteCommand(context.Background(), machine.CommandTurnOff), machine.ErrClosed)
}

func TestLifecycleStartFailsOnBusyPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := testConfig(t)
	cfg.Journal = config.JournalConfig{}
	cfg.Server.HTTPPort = port(busy.Addr())

	lm, err := NewLifecycleManager(cfg, zap.NewNop())
	require.NoError(t, err)

	err = lm.Start(context.Background())
	require.Error(t, err)
	require.Equal(t, StateError, lm.State())
	require.NotEmpty(t, lm.GetCurrentStatus().Error)
	require.Nil(t, lm.Journal())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, lm.Shutdown(ctx))
	require.Equal(t, StateStopped, lm.State())
}

func TestNewLifecycleManagerNeedsSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth = config.AuthConfig{Enabled: true, JWTSecretEnv: "BISCUIT_TEST_UNSET_SECRET", TokenTTL: time.Hour}

	_, err := NewLifecycleManager(cfg, zap.NewNop())
	require.Error(t, err)
}
