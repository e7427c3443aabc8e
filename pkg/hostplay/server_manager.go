package hostplay

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/hollowtick/skirmish/pkg/arena"
	"github.com/hollowtick/skirmish/pkg/engine"
	"github.com/hollowtick/skirmish/pkg/netcode"
)

// ServerConfig contains configuration for the embedded server.
type ServerConfig struct {
	// Port is the starting port to attempt binding to (default 8080).
	// If this port is in use, ports 8081-8089 will be tried as fallbacks.
	Port int

	// MaxPlayers is the maximum number of concurrent players (default 4).
	MaxPlayers int

	// BindLAN controls whether to bind to all interfaces (0.0.0.0) or just localhost (127.0.0.1).
	// Default is false (localhost only) for security.
	BindLAN bool

	// WorldSeed is the seed for the deterministic arena spawn layout.
	WorldSeed int64

	// GenreID is a cosmetic label carried through session logs; the
	// arena layout itself is genre-independent.
	GenreID string

	// Difficulty is the difficulty level (0.0 to 1.0).
	Difficulty float64

	// TickRate is the server update rate in Hz (default 20).
	TickRate int
}

// ServerManager manages the lifecycle of an in-process skirmish server: the
// same netcode.GameServer + engine.RegisterSkirmishSystems wiring as
// cmd/server, started and stopped from within the client process for
// --host-and-play mode instead of a standalone binary.
type ServerManager struct {
	config *ServerConfig
	logger *logrus.Logger

	world      *engine.World
	registry   *engine.SystemRegistry
	driver     *engine.FullWorldDriver
	gameServer *netcode.GameServer
	telemetry  *netcode.MultiplayerTelemetry
	lagComp    *netcode.LagCompensator
	lobby      *lobby

	address string
	port    int
	epoch   time.Time

	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
}

// NewServerManager creates a new ServerManager with the given configuration.
func NewServerManager(config *ServerConfig, logger *logrus.Logger) (*ServerManager, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	// Set defaults
	if config.Port == 0 {
		config.Port = 8080
	}
	if config.MaxPlayers == 0 {
		config.MaxPlayers = 4
	}
	if config.GenreID == "" {
		config.GenreID = "fantasy"
	}
	if config.TickRate == 0 {
		config.TickRate = 20
	}

	return &ServerManager{
		config: config,
		logger: logger,
	}, nil
}

// Start starts the server in a background goroutine and waits until it's listening.
// Returns an error if the server fails to start or bind to any port in the fallback range.
func (sm *ServerManager) Start() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.running {
		return fmt.Errorf("server is already running")
	}

	log := sm.logger.WithField("component", "embedded-server")

	bindAddr := "127.0.0.1"
	if sm.config.BindLAN {
		bindAddr = "0.0.0.0"
		log.Warn("server will bind to all interfaces (0.0.0.0) - accessible from LAN")
	}

	layout := generateArenaLayout(sm.config.WorldSeed, sm.config.MaxPlayers, sm.logger, log)

	sm.world = engine.NewWorldWithLogger(sm.logger)
	sm.registry = engine.NewSystemRegistry()
	events := &droppingEventSink{logger: log}
	engine.RegisterSkirmishSystems(sm.registry, events, engine.SpawnSkirmishBullet)
	sm.driver = engine.NewFullWorldDriver(sm.registry, 1.0/float64(sm.config.TickRate))

	reg := prometheus.NewRegistry()
	sm.telemetry = netcode.NewMultiplayerTelemetry(reg, log)
	sm.lagComp = netcode.NewLagCompensator(netcode.DefaultLagCompensationConfig())

	sm.epoch = time.Now()

	maxPort := sm.config.Port + 9 // Try up to 10 ports
	var lastErr error
	for port := sm.config.Port; port <= maxPort; port++ {
		addr := fmt.Sprintf("%s:%d", bindAddr, port)
		serverConfig := netcode.DefaultGameServerConfig()
		serverConfig.Address = addr
		serverConfig.MaxPlayers = sm.config.MaxPlayers
		// Pong replies and snapshot stamps must share one epoch or
		// clients' clock sync would skew interpolation.
		serverConfig.ServerTimeMs = func() int64 { return time.Since(sm.epoch).Milliseconds() }
		serverConfig.WorldSeed = sm.config.WorldSeed

		candidate := netcode.NewGameServer(serverConfig, log, sm.telemetry)
		if err := candidate.Start(); err == nil {
			sm.gameServer = candidate
			sm.port = port
			break
		} else {
			lastErr = err
			log.WithFields(logrus.Fields{"port": port, "error": err}).Debug("port in use, trying next")
		}
	}

	if sm.gameServer == nil {
		return fmt.Errorf("failed to bind to any port in range %d-%d: %w", sm.config.Port, maxPort, lastErr)
	}

	sm.address = fmt.Sprintf("localhost:%d", sm.port)
	sm.lobby = newLobby(sm.world, layout)

	sm.done = make(chan struct{})
	sm.wg.Add(1)
	go sm.serverLoop(log)

	sm.running = true

	// Wait a moment to ensure server is fully initialized
	time.Sleep(100 * time.Millisecond)

	log.WithFields(logrus.Fields{
		"address":    sm.address,
		"maxPlayers": sm.config.MaxPlayers,
		"worldSeed":  sm.config.WorldSeed,
		"genre":      sm.config.GenreID,
	}).Info("host-and-play server started")

	return nil
}

// serverLoop runs the authoritative tick loop until Stop signals done,
// draining the embedded GameServer's join/leave/input channels between
// ticks exactly as cmd/server's main loop does.
func (sm *ServerManager) serverLoop(log *logrus.Entry) {
	defer sm.wg.Done()

	tickDuration := time.Second / time.Duration(sm.config.TickRate)
	ticker := time.NewTicker(tickDuration)
	defer ticker.Stop()

	for {
		select {
		case <-sm.done:
			sm.gameServer.Stop()
			return

		case eid := <-sm.gameServer.ReceiveJoin():
			sm.lobby.onJoin(eid, sm.gameServer.CharacterOf(eid), log)

		case eid := <-sm.gameServer.ReceiveLeave():
			sm.lobby.onLeave(eid, log)

		case pi := <-sm.gameServer.ReceiveInput():
			sm.lobby.onInput(pi)

		case ctrl := <-sm.gameServer.ReceiveControl():
			if ctrl.Type == "select-node" {
				sm.gameServer.SendSelectNodeResult(ctrl.Eid, ctrl.NodeID, sm.lobby.onControl(ctrl))
			} else {
				sm.lobby.onControl(ctrl)
			}

		case err := <-sm.gameServer.ReceiveError():
			log.WithError(err).Warn("connection error")

		case <-ticker.C:
			sm.driver.StepMany(sm.world, sm.lobby.drainInputs())
			sm.world.Update(0)

			nowMs := time.Since(sm.epoch).Milliseconds()
			snapshot := netcode.BuildWorldSnapshot(sm.world, nowMs, sm.lobby.snapshotContext())
			sm.lagComp.RecordSnapshot(snapshot)
			sm.gameServer.BroadcastSnapshot(snapshot)
			for _, eid := range sm.gameServer.ConnectedEids() {
				if hud, ok := sm.lobby.hudFor(eid); ok {
					sm.gameServer.SendHUD(eid, hud)
				}
			}
			sm.telemetry.Tick(0, sm.lobby.pendingCount())
		}
	}
}

// droppingEventSink discards prediction-only presentation events (fire,
// reload, dry-fire, showdown) on the authoritative embedded server, which
// has no local player to present them to; it only logs at debug level for
// diagnostics, mirroring cmd/server's own sink.
type droppingEventSink struct {
	logger *logrus.Entry
}

func (d *droppingEventSink) Push(event engine.GameEvent) {
	if d.logger.Logger.GetLevel() >= logrus.DebugLevel {
		d.logger.WithFields(logrus.Fields{"kind": event.Kind, "entity": event.EntityID}).Debug("gameplay event")
	}
}

// generateArenaLayout places the seed-deterministic spawn points, sized
// to the lobby's player capacity, mirroring cmd/server. A failed layout
// falls back to origin spawns rather than refusing to host.
func generateArenaLayout(seed int64, maxPlayers int, logger *logrus.Logger, log *logrus.Entry) *arena.Layout {
	cfg := arena.DefaultConfig()
	if maxPlayers > cfg.SpawnCount {
		cfg.SpawnCount = maxPlayers
	}

	layout, err := arena.GenerateWithLogger(seed, cfg, logger)
	if err != nil {
		log.WithError(err).Warn("failed to generate arena layout, falling back to origin spawn")
		return nil
	}
	log.WithFields(logrus.Fields{"seed": seed, "spawns": len(layout.Spawns)}).Info("arena layout generated")
	return layout
}

// Stop gracefully stops the server and waits for the goroutine to exit.
func (sm *ServerManager) Stop() error {
	sm.mu.Lock()
	if !sm.running {
		sm.mu.Unlock()
		return nil
	}

	sm.logger.Info("stopping host-and-play server")

	close(sm.done)
	sm.running = false
	sm.mu.Unlock()

	// Wait for server goroutine to exit (with timeout)
	done := make(chan struct{})
	go func() {
		sm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		sm.logger.Info("host-and-play server stopped cleanly")
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("server shutdown timeout after 5 seconds")
	}
}

// Address returns the address the server is listening on (e.g., "localhost:8080").
func (sm *ServerManager) Address() string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.address
}

// Port returns the port the server is listening on.
func (sm *ServerManager) Port() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.port
}

// IsRunning returns whether the server is currently running.
func (sm *ServerManager) IsRunning() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.running
}

// GetLANAddress attempts to determine the LAN IP address for clients on other machines.
// Returns empty string if not bound to LAN or if IP cannot be determined.
func (sm *ServerManager) GetLANAddress() string {
	sm.mu.RLock()
	bindLAN := sm.config.BindLAN
	port := sm.port
	sm.mu.RUnlock()

	if !bindLAN {
		return ""
	}

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		sm.logger.WithError(err).Warn("failed to get interface addresses")
		return ""
	}

	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return fmt.Sprintf("%s:%d", ipnet.IP.String(), port)
			}
		}
	}

	return ""
}
