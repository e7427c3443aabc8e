package netcode

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// GameServerConfig configures the authoritative server's WebSocket listener.
type GameServerConfig struct {
	Address      string
	MaxPlayers   int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int

	// ServerTimeMs supplies the server-time stamp echoed in pong replies.
	// It must share an epoch with the ServerTimeMs written into snapshots,
	// or the clients' clock sync will bracket interpolation against the
	// wrong timeline. Nil falls back to an epoch captured at Start.
	ServerTimeMs func() int64

	// WorldSeed is echoed in game-config so clients regenerate the same
	// arena layout the server simulates.
	WorldSeed int64
}

// DefaultGameServerConfig mirrors the engine's old TCP server defaults,
// carried over to the WebSocket transport.
func DefaultGameServerConfig() GameServerConfig {
	return GameServerConfig{
		Address:      ":8080",
		MaxPlayers:   32,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   256,
	}
}

// PlayerInput pairs a decoded NetworkInput with the player entity it came
// from, as delivered over GameServer.ReceiveInput.
type PlayerInput struct {
	Eid   uint64
	Input NetworkInput
}

// handshakeMessage is the small JSON envelope a client sends immediately
// after the WebSocket upgrade; join and resume requests share this shape,
// distinguished server-side only by whether Token is already registered.
type handshakeMessage struct {
	Token       string `json:"token"`
	CharacterID uint8  `json:"characterId"`
}

// gameConfigMessage is the server's JSON reply to a successful handshake:
// which eid the rest of the session's binary traffic refers to as "the
// local player", the world seed (so the client regenerates the same
// arena), and a session id for diagnostics. Sent after the handshake and
// again on request-game-config.
type gameConfigMessage struct {
	Type        string `json:"type"`
	Eid         uint64 `json:"playerEid"`
	Seed        int64  `json:"seed"`
	SessionID   string `json:"sessionId"`
	CharacterID uint8  `json:"characterId"`
}

// RosterEntry pairs a player eid with its chosen character for the
// player-roster broadcast.
type RosterEntry struct {
	Eid         uint64 `json:"eid"`
	CharacterID uint8  `json:"characterId"`
}

// HUDState carries the server-computed HUD fields pushed to one client.
type HUDState struct {
	Level          int     `json:"level"`
	PendingPoints  int     `json:"pendingPoints"`
	XP             int     `json:"xp"`
	StageNumber    int     `json:"stageNumber"`
	WaveNumber     int     `json:"waveNumber"`
	CylinderRounds int     `json:"cylinderRounds"`
	CylinderMax    int     `json:"cylinderMax"`
	IsReloading    bool    `json:"isReloading"`
	ReloadProgress float64 `json:"reloadProgress"`
	AbilityReady   bool    `json:"abilityReady"`
	AbilityCharge  float64 `json:"abilityCharge"`
}

// controlEnvelope is the shared JSON shape of every non-handshake text
// frame; Type selects which optional fields are meaningful.
type controlEnvelope struct {
	Type string `json:"type"`

	ClientTimeMs int64 `json:"clientTime,omitempty"`
	ServerTimeMs int64 `json:"serverTime,omitempty"`

	NodeID  string `json:"nodeId,omitempty"`
	Success bool   `json:"success,omitempty"`
	Ready   bool   `json:"ready,omitempty"`

	Roster []RosterEntry `json:"roster,omitempty"`
	HUD    *HUDState     `json:"hud,omitempty"`

	Reason string `json:"reason,omitempty"`
}

// PlayerControl is an inbound non-input control message from one player
// (select-node, camp-ready), surfaced to the game loop the same way
// inputs are.
type PlayerControl struct {
	Eid    uint64
	Type   string
	NodeID string
	Ready  bool
}

// wsFrame pairs queued outbound payload bytes with the WebSocket message
// kind they must be written as (binary for snapshots, text for control).
type wsFrame struct {
	kind int
	data []byte
}

// playerSession tracks one connected player's socket and outbound queue.
type playerSession struct {
	eid   uint64
	token string
	conn  *websocket.Conn

	mu        sync.RWMutex
	connected bool
	outbound  chan wsFrame
}

// GameServer is the authoritative-side counterpart to NetworkClient: it
// accepts WebSocket connections, assigns or resumes a player eid per
// reconnect token, and exposes channel-based hooks for join/leave/input
// events so the game loop never touches socket plumbing directly.
type GameServer struct {
	config    GameServerConfig
	upgrader  websocket.Upgrader
	logger    *logrus.Entry
	telemetry *MultiplayerTelemetry

	httpServer *http.Server
	listener   net.Listener

	mu         sync.RWMutex
	sessions   map[uint64]*playerSession
	tokenToEid map[string]uint64
	characters map[uint64]uint8
	nextEid    uint64
	running    bool

	inputs   chan PlayerInput
	controls chan PlayerControl
	joins    chan uint64
	leaves   chan uint64
	errors   chan error
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewGameServer creates a server ready to Start.
func NewGameServer(config GameServerConfig, logger *logrus.Entry, telemetry *MultiplayerTelemetry) *GameServer {
	if config.BufferSize <= 0 {
		config.BufferSize = 256
	}
	if config.MaxPlayers <= 0 {
		config.MaxPlayers = 32
	}
	return &GameServer{
		config:     config,
		upgrader:   websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		logger:     logger,
		telemetry:  telemetry,
		sessions:   make(map[uint64]*playerSession),
		tokenToEid: make(map[string]uint64),
		characters: make(map[uint64]uint8),
		nextEid:    1,
		inputs:     make(chan PlayerInput, config.BufferSize*config.MaxPlayers),
		controls:   make(chan PlayerControl, config.MaxPlayers*4),
		joins:      make(chan uint64, config.MaxPlayers),
		leaves:     make(chan uint64, config.MaxPlayers),
		errors:     make(chan error, 64),
		done:       make(chan struct{}),
	}
}

// Start begins listening for WebSocket connections in the background.
func (s *GameServer) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("netcode: server already running")
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("netcode: listen on %s: %w", s.config.Address, err)
	}
	s.listener = listener
	s.running = true
	if s.config.ServerTimeMs == nil {
		epoch := time.Now()
		s.config.ServerTimeMs = func() int64 { return time.Since(epoch).Milliseconds() }
	}
	s.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)
	s.httpServer = &http.Server{Handler: mux}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.errors <- fmt.Errorf("netcode: serve: %w", err)
		}
	}()

	return nil
}

// Stop closes the listener, every connected session, and waits for the
// server's goroutines to exit.
func (s *GameServer) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.done)
	for _, sess := range s.sessions {
		sess.close()
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.httpServer != nil {
		s.httpServer.Shutdown(ctx)
	}
	s.wg.Wait()
	return nil
}

// PlayerCount returns the number of connected players.
func (s *GameServer) PlayerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// BroadcastSnapshot encodes snapshot once and queues it for delivery to
// every connected session, dropping the send for a session whose outbound
// queue is already full rather than blocking the tick loop.
func (s *GameServer) BroadcastSnapshot(snapshot WorldSnapshot) {
	data := EncodeWorldSnapshot(snapshot)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		sess.send(data)
	}
}

// ConnectedEids returns the eids of every currently connected session.
func (s *GameServer) ConnectedEids() []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	eids := make([]uint64, 0, len(s.sessions))
	for eid := range s.sessions {
		eids = append(eids, eid)
	}
	return eids
}

// SendSnapshot encodes and queues snapshot for delivery to a single
// session, for payloads that only concern one recipient.
func (s *GameServer) SendSnapshot(eid uint64, snapshot WorldSnapshot) {
	s.mu.RLock()
	sess, ok := s.sessions[eid]
	s.mu.RUnlock()
	if !ok {
		return
	}
	sess.send(EncodeWorldSnapshot(snapshot))
}

// ReceiveInput returns the channel of decoded per-player inputs.
func (s *GameServer) ReceiveInput() <-chan PlayerInput { return s.inputs }

// ReceiveJoin returns the channel of newly assigned player eids.
func (s *GameServer) ReceiveJoin() <-chan uint64 { return s.joins }

// ReceiveLeave returns the channel of player eids that disconnected.
func (s *GameServer) ReceiveLeave() <-chan uint64 { return s.leaves }

// ReceiveError returns the channel of connection-level errors.
func (s *GameServer) ReceiveError() <-chan error { return s.errors }

func (s *GameServer) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.errors <- fmt.Errorf("netcode: upgrade: %w", err)
		return
	}

	var msg handshakeMessage
	if err := conn.ReadJSON(&msg); err != nil {
		conn.Close()
		s.errors <- fmt.Errorf("netcode: read handshake: %w", err)
		return
	}

	eid, err := s.assignPlayer(msg.Token)
	if err != nil {
		conn.WriteJSON(map[string]string{"error": err.Error()})
		conn.Close()
		s.errors <- err
		return
	}
	s.SetPlayerCharacter(eid, msg.CharacterID)

	if err := conn.WriteJSON(s.gameConfigFor(eid, msg.Token)); err != nil {
		conn.Close()
		s.errors <- fmt.Errorf("netcode: send game-config to player %d: %w", eid, err)
		return
	}

	sess := &playerSession{
		eid:       eid,
		token:     msg.Token,
		conn:      conn,
		connected: true,
		outbound:  make(chan wsFrame, s.config.BufferSize),
	}

	s.mu.Lock()
	s.sessions[eid] = sess
	s.mu.Unlock()

	select {
	case s.joins <- eid:
	case <-s.done:
		return
	default:
		s.errors <- fmt.Errorf("netcode: join channel full, dropped event for player %d", eid)
	}

	s.wg.Add(2)
	go s.readPump(sess)
	go s.writePump(sess)

	s.BroadcastRoster()
}

// assignPlayer resolves a handshake token to a player eid: an unknown token
// mints a fresh one (new join), a known token resumes the session it was
// bound to (reconnect), and an empty token is rejected only by capacity.
func (s *GameServer) assignPlayer(token string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if eid, ok := s.tokenToEid[token]; ok && token != "" {
		return eid, nil
	}

	if len(s.sessions) >= s.config.MaxPlayers {
		return 0, ErrServerFull
	}

	if token == "" {
		token = uuid.NewString()
	}
	eid := s.nextEid
	s.nextEid++
	s.tokenToEid[token] = eid
	return eid, nil
}

func (s *GameServer) readPump(sess *playerSession) {
	defer s.wg.Done()
	defer s.disconnect(sess)

	sess.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	for {
		kind, data, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		sess.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		if kind == websocket.TextMessage {
			s.handleControl(sess, data)
			continue
		}

		input, err := DecodeNetworkInput(data)
		if err != nil {
			s.errors <- fmt.Errorf("netcode: player %d decode input: %w", sess.eid, err)
			continue
		}

		select {
		case s.inputs <- PlayerInput{Eid: sess.eid, Input: input}:
		case <-s.done:
			return
		default:
			// Drop under load; a stale input is worse to apply than to skip.
		}
	}
}

// handleControl routes inbound JSON control frames: ping and
// request-game-config are answered in place, select-node and camp-ready
// are forwarded to the game loop.
func (s *GameServer) handleControl(sess *playerSession, data []byte) {
	var msg controlEnvelope
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	switch msg.Type {
	case "ping":
		sess.sendControl(controlEnvelope{
			Type:         "pong",
			ClientTimeMs: msg.ClientTimeMs,
			ServerTimeMs: s.config.ServerTimeMs(),
		})

	case "request-game-config":
		cfg, err := json.Marshal(s.gameConfigFor(sess.eid, sess.token))
		if err != nil {
			return
		}
		sess.sendFrame(wsFrame{kind: websocket.TextMessage, data: cfg})

	case "select-node", "camp-ready":
		select {
		case s.controls <- PlayerControl{Eid: sess.eid, Type: msg.Type, NodeID: msg.NodeID, Ready: msg.Ready}:
		default:
			// Control backlog means the game loop is stalled; dropping a
			// menu action is safer than blocking the read pump.
		}
	}
}

func (s *GameServer) gameConfigFor(eid uint64, token string) gameConfigMessage {
	s.mu.RLock()
	characterID := s.characters[eid]
	s.mu.RUnlock()
	return gameConfigMessage{
		Type:        "game-config",
		Eid:         eid,
		Seed:        s.config.WorldSeed,
		SessionID:   token,
		CharacterID: characterID,
	}
}

// SetPlayerCharacter records a player's character choice for game-config
// and roster broadcasts.
func (s *GameServer) SetPlayerCharacter(eid uint64, characterID uint8) {
	s.mu.Lock()
	s.characters[eid] = characterID
	s.mu.Unlock()
}

// CharacterOf returns the character id recorded for eid at handshake.
func (s *GameServer) CharacterOf(eid uint64) uint8 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.characters[eid]
}

// BroadcastRoster pushes the current eid→character roster to every
// connected session.
func (s *GameServer) BroadcastRoster() {
	s.mu.RLock()
	roster := make([]RosterEntry, 0, len(s.sessions))
	for eid := range s.sessions {
		roster = append(roster, RosterEntry{Eid: eid, CharacterID: s.characters[eid]})
	}
	sessions := make([]*playerSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	for _, sess := range sessions {
		sess.sendControl(controlEnvelope{Type: "player-roster", Roster: roster})
	}
}

// SendHUD pushes a HUD update to one player.
func (s *GameServer) SendHUD(eid uint64, hud HUDState) {
	s.mu.RLock()
	sess, ok := s.sessions[eid]
	s.mu.RUnlock()
	if !ok {
		return
	}
	sess.sendControl(controlEnvelope{Type: "hud", HUD: &hud})
}

// SendSelectNodeResult answers one player's select-node request.
func (s *GameServer) SendSelectNodeResult(eid uint64, nodeID string, success bool) {
	s.mu.RLock()
	sess, ok := s.sessions[eid]
	s.mu.RUnlock()
	if !ok {
		return
	}
	sess.sendControl(controlEnvelope{Type: "select-node-result", NodeID: nodeID, Success: success})
}

// ReceiveControl returns the channel of inbound select-node/camp-ready
// control messages.
func (s *GameServer) ReceiveControl() <-chan PlayerControl { return s.controls }

func (s *GameServer) writePump(sess *playerSession) {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case frame, ok := <-sess.outbound:
			if !ok {
				return
			}
			sess.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
			if err := sess.conn.WriteMessage(frame.kind, frame.data); err != nil {
				return
			}
		}
	}
}

func (s *GameServer) disconnect(sess *playerSession) {
	s.mu.Lock()
	if _, ok := s.sessions[sess.eid]; ok {
		delete(s.sessions, sess.eid)
	}
	s.mu.Unlock()

	sess.close()

	select {
	case s.leaves <- sess.eid:
	case <-s.done:
	default:
		s.errors <- fmt.Errorf("netcode: leave channel full, dropped event for player %d", sess.eid)
	}

	s.BroadcastRoster()
}

func (sess *playerSession) send(data []byte) {
	sess.sendFrame(wsFrame{kind: websocket.BinaryMessage, data: data})
}

func (sess *playerSession) sendControl(msg controlEnvelope) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	sess.sendFrame(wsFrame{kind: websocket.TextMessage, data: data})
}

func (sess *playerSession) sendFrame(frame wsFrame) {
	sess.mu.RLock()
	defer sess.mu.RUnlock()
	if !sess.connected {
		return
	}
	select {
	case sess.outbound <- frame:
	default:
		// Backpressure: skip this tick's snapshot for a slow session
		// rather than blocking the broadcast loop.
	}
}

func (sess *playerSession) close() {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !sess.connected {
		return
	}
	sess.connected = false
	sess.conn.Close()
	close(sess.outbound)
}
