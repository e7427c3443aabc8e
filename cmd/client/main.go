//go:build !android && !ios
// +build !android,!ios

// Package main provides the desktop client application.
// For mobile platforms (Android/iOS), use cmd/mobile with ebitenmobile build tool.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/sirupsen/logrus"

	"github.com/hollowtick/skirmish/pkg/clientgame"
	"github.com/hollowtick/skirmish/pkg/hostplay"
	"github.com/hollowtick/skirmish/pkg/logging"
	"github.com/hollowtick/skirmish/pkg/netcode"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	width         = flag.Int("width", 800, "Screen width")
	height        = flag.Int("height", 600, "Screen height")
	seed          = flag.Int64("seed", seededRandom(), "World generation seed")
	genreID       = flag.String("genre", randomGenre(), "Genre label carried through embedded-server session logs")
	verbose       = flag.Bool("verbose", false, "Enable verbose logging")
	multiplayer   = flag.Bool("multiplayer", false, "Enable multiplayer mode (connect to server)")
	characterID   = flag.Int("character", 0, "Character id to join multiplayer with")
	server        = flag.String("server", "localhost:8080", "Server address (host:port) for multiplayer")
	hostAndPlay   = flag.Bool("host-and-play", false, "Host server and auto-connect (single command LAN party mode)")
	hostLAN       = flag.Bool("host-lan", false, "Bind server to 0.0.0.0 for LAN access (use with --host-and-play, default is localhost only)")
	serverPort    = flag.Int("port", 8080, "Server port for --host-and-play mode (will try next 9 ports if occupied)")
	serverPlayers = flag.Int("max-players", 4, "Maximum players for --host-and-play mode")
	serverTick    = flag.Int("tick-rate", 20, "Server tick rate for --host-and-play mode (updates per second)")
)

// return a random seed
func seededRandom() int64 {
	time := time.Now().UnixNano()
	rand := rand.New(rand.NewSource(time))
	return rand.Int63()
}

// return a random genre
func randomGenre() string {
	genres := []string{"fantasy", "scifi", "horror", "cyberpunk", "postapoc"}
	time := time.Now().UnixNano()
	rand := rand.New(rand.NewSource(time))
	return genres[rand.Intn(len(genres))]
}

// startEmbeddedServer starts a server in a background goroutine for
// host-and-play mode, using pkg/hostplay's ServerManager for lifecycle
// management so the embedded server and the standalone cmd/server binary
// share one implementation.
func startEmbeddedServer(logger *logrus.Logger, seed int64, genreID string) (string, func(), error) {
	serverLogger := logger.WithFields(logrus.Fields{
		"component": "embedded-server",
		"seed":      seed,
		"genre":     genreID,
	})

	serverLogger.Info("starting server in background")

	serverConfig := &hostplay.ServerConfig{
		Port:       *serverPort,
		MaxPlayers: *serverPlayers,
		BindLAN:    *hostLAN,
		WorldSeed:  seed,
		GenreID:    genreID,
		Difficulty: 0.5,
		TickRate:   *serverTick,
	}

	manager, err := hostplay.NewServerManager(serverConfig, logger)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create server manager: %w", err)
	}

	if err := manager.Start(); err != nil {
		return "", nil, fmt.Errorf("failed to start server: %w", err)
	}

	serverAddr := manager.Address()
	port := manager.Port()

	if *hostLAN {
		serverLogger.WithField("bindAddr", "0.0.0.0").Warn("server accessible on LAN - firewall may block connections")
		if lanAddr := manager.GetLANAddress(); lanAddr != "" {
			serverLogger.WithField("lanAddress", lanAddr).Info("LAN players can connect to this address")
		}
	} else {
		serverLogger.WithField("bindAddr", "127.0.0.1").Info("server bound to localhost only")
	}

	serverLogger.WithFields(logrus.Fields{
		"address":    serverAddr,
		"port":       port,
		"maxPlayers": *serverPlayers,
		"tickRate":   *serverTick,
	}).Info("server ready for connections")

	cleanup := func() {
		serverLogger.Info("initiating graceful shutdown")
		if err := manager.Stop(); err != nil {
			serverLogger.WithError(err).Error("shutdown error")
		}
	}

	return serverAddr, cleanup, nil
}

func main() {
	flag.Parse()

	logConfig := logging.DefaultConfig()

	if logFormat := os.Getenv("LOG_FORMAT"); logFormat == "json" {
		logConfig.Format = logging.JSONFormat
	} else {
		logConfig.Format = logging.TextFormat
		logConfig.EnableColor = true
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		logConfig.Level = logging.LogLevel(logLevel)
	} else if *verbose {
		logConfig.Level = logging.DebugLevel
	} else {
		logConfig.Level = logging.InfoLevel
	}

	logger := logging.NewLogger(logConfig)
	clientLogger := logger.WithFields(logrus.Fields{
		"component": "client",
		"genre":     *genreID,
		"seed":      *seed,
	})

	clientLogger.Info("Starting skirmish client")
	clientLogger.WithFields(logrus.Fields{
		"width":  *width,
		"height": *height,
		"seed":   *seed,
		"genre":  *genreID,
	}).Info("client configuration")

	if *hostAndPlay {
		clientLogger.Info("host-and-play mode enabled - starting embedded server")

		serverAddr, cleanup, err := startEmbeddedServer(logger, *seed, *genreID)
		if err != nil {
			clientLogger.WithError(err).Fatal("failed to start embedded server")
		}
		defer cleanup()

		*server = serverAddr
		*multiplayer = true

		clientLogger.WithField("serverAddr", serverAddr).Info("embedded server started, connecting client")
	}

	ebiten.SetWindowSize(*width, *height)
	ebiten.SetWindowTitle("Skirmish")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	if !*multiplayer {
		clientLogger.Info("single-player mode (use -multiplayer flag to connect to server)")
		game := clientgame.NewSinglePlayer(clientLogger, *width, *height, clientgame.GatherKeyboardInput)
		if err := ebiten.RunGame(game); err != nil {
			clientLogger.WithError(err).Fatal("game loop exited with error")
		}
		return
	}

	clientLogger.WithField("server", *server).Info("multiplayer mode enabled - connecting to server")

	reg := prometheus.NewRegistry()
	netLogger := logger.WithField("component", "netcode")
	telemetry := netcode.NewMultiplayerTelemetry(reg, netLogger)

	sessionConfig := netcode.DefaultSessionConfig("ws://" + *server + "/")
	sessionConfig.CharacterID = uint8(*characterID)
	tokens := netcode.NewFileTokenStore()
	client := netcode.NewNetworkClient(sessionConfig, tokens, netLogger, telemetry)

	if err := client.Join(); err != nil {
		clientLogger.WithError(err).Fatal("failed to connect to server")
	}
	defer client.Close()

	clientLogger.WithField("localEid", client.LocalEid()).Info("connected to server successfully")

	game := clientgame.NewMultiplayer(clientLogger, *width, *height, client, telemetry, clientgame.GatherKeyboardInput)
	if err := ebiten.RunGame(game); err != nil {
		clientLogger.WithError(err).Fatal("game loop exited with error")
	}
}
