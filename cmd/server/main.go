package main

import (
	"flag"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/hollowtick/skirmish/pkg/arena"
	"github.com/hollowtick/skirmish/pkg/engine"
	"github.com/hollowtick/skirmish/pkg/netcode"
)

var (
	port        = flag.String("port", "8080", "Server port")
	metricsPort = flag.String("metrics-port", "9090", "Prometheus metrics port")
	maxPlayers  = flag.Int("max-players", 8, "Maximum number of players")
	seed        = flag.Int64("seed", 12345, "World seed, used for the arena spawn layout")
	tickRate    = flag.Int("tick-rate", 20, "Server authoritative tick rate (updates per second)")
	verbose     = flag.Bool("verbose", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	log := logger.WithField("component", "server")

	log.WithFields(logrus.Fields{
		"port": *port, "maxPlayers": *maxPlayers, "tickRate": *tickRate, "seed": *seed,
	}).Info("starting skirmish server")

	layout := generateArenaLayout(*seed, *maxPlayers, logger, log)

	world := engine.NewWorld()
	registry := engine.NewSystemRegistry()
	events := &droppingEventSink{logger: log}
	engine.RegisterSkirmishSystems(registry, events, spawnServerBullet)
	driver := engine.NewFullWorldDriver(registry, 1.0/float64(*tickRate))

	reg := prometheus.NewRegistry()
	telemetry := netcode.NewMultiplayerTelemetry(reg, log)
	go serveMetrics(*metricsPort, reg, log)

	startTime := time.Now()

	serverConfig := netcode.DefaultGameServerConfig()
	serverConfig.Address = ":" + *port
	serverConfig.MaxPlayers = *maxPlayers
	// Pong replies and snapshot stamps must share one epoch or clients'
	// clock sync would bracket interpolation against a skewed timeline.
	serverConfig.ServerTimeMs = func() int64 { return time.Since(startTime).Milliseconds() }
	serverConfig.WorldSeed = *seed

	gameServer := netcode.NewGameServer(serverConfig, log, telemetry)
	if err := gameServer.Start(); err != nil {
		log.WithError(err).Fatal("failed to start game server")
	}
	defer gameServer.Stop()

	log.Info("game server listening")

	lobby := newLobby(world, layout)

	// Rewind history for hit validation; the validation policy itself is
	// up to the gameplay rules consuming it.
	lagComp := netcode.NewLagCompensator(netcode.DefaultLagCompensationConfig())

	go func() {
		for err := range gameServer.ReceiveError() {
			log.WithError(err).Warn("connection error")
		}
	}()

	tickDuration := time.Second / time.Duration(*tickRate)
	ticker := time.NewTicker(tickDuration)
	defer ticker.Stop()

	for {
		select {
		case eid := <-gameServer.ReceiveJoin():
			lobby.onJoin(eid, gameServer.CharacterOf(eid), log)

		case eid := <-gameServer.ReceiveLeave():
			lobby.onLeave(eid, log)

		case pi := <-gameServer.ReceiveInput():
			lobby.onInput(pi)

		case ctrl := <-gameServer.ReceiveControl():
			if ctrl.Type == "select-node" {
				gameServer.SendSelectNodeResult(ctrl.Eid, ctrl.NodeID, lobby.onControl(ctrl))
			} else {
				lobby.onControl(ctrl)
			}

		case <-ticker.C:
			driver.StepMany(world, lobby.drainInputs())
			world.Update(0)

			nowMs := time.Since(startTime).Milliseconds()
			snapshot := netcode.BuildWorldSnapshot(world, nowMs, lobby.snapshotContext())
			lagComp.RecordSnapshot(snapshot)
			gameServer.BroadcastSnapshot(snapshot)
			for _, eid := range gameServer.ConnectedEids() {
				if hud, ok := lobby.hudFor(eid); ok {
					gameServer.SendHUD(eid, hud)
				}
			}
			telemetry.Tick(0, lobby.pendingCount())
		}
	}
}

// generateArenaLayout places the seed-deterministic spawn points, sized
// to the server's player capacity.
func generateArenaLayout(seed int64, maxPlayers int, logger *logrus.Logger, log *logrus.Entry) *arena.Layout {
	cfg := arena.DefaultConfig()
	if maxPlayers > cfg.SpawnCount {
		cfg.SpawnCount = maxPlayers
	}

	layout, err := arena.GenerateWithLogger(seed, cfg, logger)
	if err != nil {
		log.WithError(err).Fatal("failed to generate arena layout")
	}
	log.WithFields(logrus.Fields{"seed": seed, "spawns": len(layout.Spawns)}).Info("arena layout generated")
	return layout
}

func serveMetrics(port string, reg *prometheus.Registry, log *logrus.Entry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.WithField("port", port).Info("serving prometheus metrics")
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.WithError(err).Warn("metrics server stopped")
	}
}

// droppingEventSink discards prediction-only presentation events (fire,
// reload, dry-fire, showdown) on the authoritative server, which has no
// local player to present them to; it only logs at debug level for
// diagnostics.
type droppingEventSink struct {
	logger *logrus.Entry
}

func (d *droppingEventSink) Push(event engine.GameEvent) {
	if d.logger.Logger.GetLevel() >= logrus.DebugLevel {
		d.logger.WithFields(logrus.Fields{"kind": event.Kind, "entity": event.EntityID}).Debug("gameplay event")
	}
}
