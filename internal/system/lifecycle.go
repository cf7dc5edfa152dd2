package system

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/Wideyedwonderer/buscuit-maker/internal/api/rest"
	"github.com/Wideyedwonderer/buscuit-maker/internal/api/rpc"
	"github.com/Wideyedwonderer/buscuit-maker/internal/api/websocket"
	"github.com/Wideyedwonderer/buscuit-maker/internal/auth"
	"github.com/Wideyedwonderer/buscuit-maker/internal/config"
	"github.com/Wideyedwonderer/buscuit-maker/internal/events"
	"github.com/Wideyedwonderer/buscuit-maker/internal/interfaces"
	"github.com/Wideyedwonderer/buscuit-maker/internal/machine"
	"github.com/Wideyedwonderer/buscuit-maker/internal/mqtt"
	"github.com/Wideyedwonderer/buscuit-maker/internal/storage"
	"github.com/Wideyedwonderer/buscuit-maker/internal/telemetry"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

const telemetryConnectTimeout = 10 * time.Second

type LifecycleManager struct {
	config            *config.Config
	logger            *zap.Logger
	events            *events.Broadcaster
	machineController *machine.Controller
	wsHub             *websocket.Hub
	issuer            *auth.TokenIssuer

	journal   *storage.Journal
	bridge    *mqtt.Bridge
	telemetry *telemetry.Writer

	restServer *rest.Server
	grpcServer *grpc.Server
	grpcAddr   net.Addr

	stateMu      sync.RWMutex
	currentState SystemState
	lastError    string
	startedAt    time.Time

	cancelRun context.CancelFunc
	workers   sync.WaitGroup

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

func NewLifecycleManager(cfg *config.Config, logger *zap.Logger) (*LifecycleManager, error) {
	var issuer *auth.TokenIssuer
	if cfg.Auth.Enabled {
		secret, err := cfg.Auth.GetJWTSecret()
		if err != nil {
			return nil, err
		}
		issuer = auth.NewTokenIssuer(secret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	}

	broadcaster := events.NewBroadcaster(logger)
	controller := machine.NewController(logger, machine.NewParams(cfg.Machine), broadcaster)

	return &LifecycleManager{
		config:            cfg,
		logger:            logger,
		events:            broadcaster,
		machineController: controller,
		wsHub:             websocket.NewHub(logger, broadcaster, controller),
		issuer:            issuer,
		currentState:      StateInitializing,
		shutdownChan:      make(chan struct{}),
	}, nil
}

// Start brings up the optional sinks, the websocket hub and both servers.
// Optional sinks that cannot reach their backend are skipped with a warning;
// a misconfigured journal or an unavailable port fails the start.
func (lm *LifecycleManager) Start(ctx context.Context) error {
	lm.logger.Info("Starting biscuit machine",
		zap.Int("conveyor_length", lm.config.Machine.ConveyorLength),
		zap.Int("oven_position", lm.config.Machine.OvenPosition),
		zap.Int("oven_length", lm.config.Machine.OvenLength))

	runCtx, cancel := context.WithCancel(context.Background())
	lm.cancelRun = cancel

	if err := lm.startJournal(ctx, runCtx); err != nil {
		return lm.fail(fmt.Errorf("failed to start journal: %w", err))
	}
	lm.startMQTT(runCtx)
	lm.startTelemetry(ctx, runCtx)

	lm.goWorker(func() { lm.wsHub.Run(runCtx) })

	if err := lm.startGRPCServer(); err != nil {
		return lm.fail(fmt.Errorf("failed to start gRPC: %w", err))
	}

	if err := lm.startRESTServer(); err != nil {
		return lm.fail(fmt.Errorf("failed to start REST API: %w", err))
	}

	if err := lm.setState(StateRunning); err != nil {
		return err
	}

	lm.stateMu.Lock()
	lm.startedAt = time.Now()
	lm.stateMu.Unlock()

	lm.logger.Info("System started successfully",
		zap.Int("grpc_port", lm.config.Server.GRPCPort),
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.Bool("auth", lm.issuer != nil),
		zap.Bool("journal", lm.journal != nil),
		zap.Bool("mqtt", lm.bridge != nil),
		zap.Bool("telemetry", lm.telemetry != nil))

	return nil
}

func (lm *LifecycleManager) goWorker(fn func()) {
	lm.workers.Add(1)
	go func() {
		defer lm.workers.Done()
		fn()
	}()
}

func (lm *LifecycleManager) startJournal(ctx, runCtx context.Context) error {
	store, err := storage.Open(ctx, lm.config)
	if errors.Is(err, storage.ErrJournalDisabled) {
		return nil
	}
	if err != nil {
		return err
	}

	lm.journal = storage.NewJournal(store, lm.logger)
	_, feed, _ := lm.events.Subscribe()
	lm.goWorker(func() { lm.journal.Run(runCtx, feed) })
	return nil
}

func (lm *LifecycleManager) startMQTT(runCtx context.Context) {
	if !lm.config.MQTT.Enabled {
		return
	}

	lm.bridge = mqtt.NewBridge(lm.config.MQTT, lm.machineController, lm.logger)
	if err := lm.bridge.Connect(); err != nil {
		// The client keeps retrying in the background
		lm.logger.Warn("MQTT broker not reachable yet", zap.Error(err))
	}

	_, feed, replay := lm.events.Subscribe()
	lm.goWorker(func() {
		for _, e := range replay {
			_ = lm.bridge.Publish(e)
		}
		lm.bridge.Run(runCtx, feed)
	})
}

func (lm *LifecycleManager) startTelemetry(ctx, runCtx context.Context) {
	if !lm.config.InfluxDB.Enabled {
		return
	}

	connectCtx, cancel := context.WithTimeout(ctx, telemetryConnectTimeout)
	defer cancel()

	writer, err := telemetry.Connect(connectCtx, lm.config.InfluxDB, lm.logger)
	if err != nil {
		lm.logger.Warn("InfluxDB telemetry disabled", zap.Error(err))
		return
	}

	lm.telemetry = writer
	_, feed, _ := lm.events.Subscribe()
	lm.goWorker(func() { writer.Run(runCtx, feed) })
}

func (lm *LifecycleManager) startGRPCServer() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", lm.config.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	lm.grpcServer = grpc.NewServer()
	rpc.RegisterMachineControlServer(lm.grpcServer, rpc.NewServer(lm.machineController, lm.events, lm.logger))
	lm.grpcAddr = lis.Addr()

	go func() {
		lm.logger.Info("gRPC server listening",
			zap.String("address", lis.Addr().String()),
			zap.String("services", rpc.ServiceName))
		if err := lm.grpcServer.Serve(lis); err != nil {
			lm.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return nil
}

func (lm *LifecycleManager) startRESTServer() error {
	server, err := rest.NewServer(lm.config, lm, lm.logger, lm.wsHub, lm.issuer)
	if err != nil {
		return err
	}
	lm.restServer = server
	return lm.restServer.Start()
}

// Shutdown stops the machine and every surface. Only the first call does
// any work.
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")
		_ = lm.setState(StateStopping)

		shutdownErr = lm.gracefulShutdown(ctx)

		_ = lm.setState(StateStopped)
		close(lm.shutdownChan)
	})

	return shutdownErr
}

// Done is closed once Shutdown has finished.
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	// Machine first so its last events still reach the sinks, then the
	// broadcaster, which ends every subscription and open event stream.
	lm.machineController.Close()
	lm.events.Close()

	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	if lm.grpcServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lm.logger.Info("Stopping gRPC server")
			lm.grpcServer.GracefulStop()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		if lm.cancelRun != nil {
			lm.cancelRun()
		}
		lm.workers.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		lm.logger.Info("Graceful shutdown completed")
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		if lm.grpcServer != nil {
			lm.grpcServer.Stop()
		}
		err = fmt.Errorf("shutdown timeout exceeded")
	}

	select {
	case serverErr := <-errChan:
		err = errors.Join(err, serverErr)
	default:
	}

	lm.closeSinks()
	return err
}

func (lm *LifecycleManager) closeSinks() {
	if lm.bridge != nil {
		lm.bridge.Close()
	}
	if lm.telemetry != nil {
		lm.telemetry.Close()
	}
	if lm.journal != nil {
		if err := lm.journal.Close(); err != nil {
			lm.logger.Warn("Failed to close journal", zap.Error(err))
		}
	}
}

func (lm *LifecycleManager) setState(state SystemState) error {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()

	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Rejected system state change", zap.Error(err))
		return err
	}
	lm.currentState = state
	return nil
}

func (lm *LifecycleManager) fail(err error) error {
	lm.logger.Error("System start failed", zap.Error(err))

	lm.stateMu.Lock()
	lm.currentState = StateError
	lm.lastError = err.Error()
	lm.stateMu.Unlock()

	return err
}

func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()

	status := interfaces.SystemStatus{
		State:            lm.currentState.String(),
		MachineState:     string(lm.machineController.GetStatus().State),
		ConnectedClients: lm.wsHub.GetClientCount(),
		Journal:          lm.journal != nil,
		MQTT:             lm.bridge != nil,
		Telemetry:        lm.telemetry != nil,
		Error:            lm.lastError,
	}
	if !lm.startedAt.IsZero() {
		status.StartedAt = lm.startedAt.Unix()
	}
	return status
}

// MachineController returns the machine controller
func (lm *LifecycleManager) MachineController() interfaces.Machine {
	return lm.machineController
}

// Journal returns the event journal, or nil when it is disabled.
func (lm *LifecycleManager) Journal() interfaces.Journal {
	if lm.journal == nil {
		return nil
	}
	return lm.journal
}

// Config returns the configuration
func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}

// GRPCAddr is the bound gRPC address, useful when the port was 0.
func (lm *LifecycleManager) GRPCAddr() net.Addr {
	return lm.grpcAddr
}

// RESTAddr is the bound HTTP address, useful when the port was 0.
func (lm *LifecycleManager) RESTAddr() net.Addr {
	if lm.restServer == nil {
		return nil
	}
	return lm.restServer.Addr()
}
