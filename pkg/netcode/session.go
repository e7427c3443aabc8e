// Package netcode: session management over WebSocket transport.
package netcode

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/hollowtick/skirmish/pkg/engine"
)

// SessionConfig configures a NetworkClient's connection and reconnect
// behavior.
type SessionConfig struct {
	ServerURL         string
	ConnectionTimeout time.Duration

	// MaxReconnectAttempts bounds automatic reconnection after an
	// unexpected disconnect.
	MaxReconnectAttempts int

	// InboundQueueCapacity is the backpressure cap on buffered but
	// not-yet-applied snapshots.
	InboundQueueCapacity int

	// MaxApplyPerTick caps how many buffered snapshots Session.DrainInbound
	// applies in a single call, spreading a backlog over several ticks
	// instead of stalling the render loop to catch up in one frame.
	MaxApplyPerTick int

	// CharacterID is the local player's character choice, sent with the
	// join handshake and echoed to every client via the roster.
	CharacterID uint8
}

// DefaultSessionConfig matches the spec's defaults: reconnect backoff
// starts at 500ms and doubles up to 8000ms, capped at 5 attempts; inbound
// backpressure allows 6 queued snapshots with up to 4 applied per tick.
func DefaultSessionConfig(serverURL string) SessionConfig {
	return SessionConfig{
		ServerURL:            serverURL,
		ConnectionTimeout:    10 * time.Second,
		MaxReconnectAttempts: 5,
		InboundQueueCapacity: 6,
		MaxApplyPerTick:      4,
	}
}

// TokenStore persists a session's reconnect token across client restarts.
// Production uses a file-backed implementation; tests use an in-memory one.
type TokenStore interface {
	Load() (token string, ok bool)
	Save(token string) error
	Clear() error
}

// MemoryTokenStore is an in-memory TokenStore, used by tests and by
// environments (browser WASM builds) with no writable filesystem.
type MemoryTokenStore struct {
	mu    sync.Mutex
	token string
	set   bool
}

func (m *MemoryTokenStore) Load() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.set
}

func (m *MemoryTokenStore) Save(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.set = token, true
	return nil
}

func (m *MemoryTokenStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.set = "", false
	return nil
}

// FileTokenStore persists the reconnect token as JSON under
// ~/.skirmish/reconnect-token.json. Used by the interactive client; the
// headless server and tests use MemoryTokenStore instead.
type FileTokenStore struct {
	mu   sync.Mutex
	path string
}

type reconnectTokenFile struct {
	Token string `json:"token"`
}

// NewFileTokenStore returns a TokenStore backed by a file in the user's
// home directory. If the home directory can't be resolved, it falls back to
// a relative path in the current directory rather than erroring, since a
// lost reconnect token is only a minor inconvenience (a fresh join).
func NewFileTokenStore() *FileTokenStore {
	path := "reconnect-token.json"
	if home, err := os.UserHomeDir(); err == nil {
		path = filepath.Join(home, ".skirmish", "reconnect-token.json")
	}
	return &FileTokenStore{path: path}
}

func (f *FileTokenStore) Load() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", false
	}
	var tf reconnectTokenFile
	if err := json.Unmarshal(data, &tf); err != nil || tf.Token == "" {
		return "", false
	}
	return tf.Token, true
}

func (f *FileTokenStore) Save(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("netcode: create token store dir: %w", err)
	}
	data, err := json.Marshal(reconnectTokenFile{Token: token})
	if err != nil {
		return fmt.Errorf("netcode: marshal reconnect token: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0o644); err != nil {
		return fmt.Errorf("netcode: write reconnect token: %w", err)
	}
	return nil
}

func (f *FileTokenStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("netcode: clear reconnect token: %w", err)
	}
	return nil
}

// SessionState enumerates a NetworkClient's connection lifecycle.
type SessionState int

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateJoined
	StateReconnecting
	StateFailed
)

// NetworkClient manages one player's WebSocket session to the server:
// joining or resuming, sending inputs, receiving and queueing inbound
// snapshots under backpressure, and automatically reconnecting with
// exponential backoff on an unexpected drop.
type NetworkClient struct {
	config SessionConfig
	tokens TokenStore
	logger *logrus.Entry

	mu           sync.RWMutex
	conn         *websocket.Conn
	state        SessionState
	sessionToken string
	reconnectN   int
	localEid     uint64
	worldSeed    int64
	sessionID    string
	characterID  uint8

	// Events receives incompatible-protocol and disconnect events for the
	// presentation layer. Optional.
	Events engine.GameplayEventSink

	// OnRoster, OnHUD, and OnSelectNodeResult are invoked from the receive
	// goroutine for the corresponding server messages. Set before Join.
	OnRoster           func([]RosterEntry)
	OnHUD              func(HUDState)
	OnSelectNodeResult func(nodeID string, success bool)

	inbound chan WorldSnapshot
	pongs   chan PongMessage
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup

	telemetry *MultiplayerTelemetry
}

// NewNetworkClient creates a client using tokens to persist/restore its
// reconnect token across restarts, and logger for structured connection
// logging.
func NewNetworkClient(config SessionConfig, tokens TokenStore, logger *logrus.Entry, telemetry *MultiplayerTelemetry) *NetworkClient {
	if config.MaxReconnectAttempts <= 0 {
		config.MaxReconnectAttempts = 5
	}
	if config.InboundQueueCapacity <= 0 {
		config.InboundQueueCapacity = 6
	}
	if config.MaxApplyPerTick <= 0 {
		config.MaxApplyPerTick = 4
	}
	return &NetworkClient{
		config:    config,
		tokens:    tokens,
		logger:    logger,
		inbound:   make(chan WorldSnapshot, config.InboundQueueCapacity),
		pongs:     make(chan PongMessage, 8),
		errors:    make(chan error, 16),
		done:      make(chan struct{}),
		telemetry: telemetry,
	}
}

// PongMessage is one clock-sync reply from the server, surfaced for the
// caller's ClockSync estimator.
type PongMessage struct {
	ClientTimeMs int64
	ServerTimeMs int64
}

// SendPing sends a clock-sync probe stamped with the caller's local clock;
// the matching pong arrives on Pongs.
func (c *NetworkClient) SendPing(clientTimeMs int64) error {
	return c.sendControl(controlEnvelope{Type: "ping", ClientTimeMs: clientTimeMs})
}

// SendSelectNode asks the server to take the given progression node.
// The answer arrives via OnSelectNodeResult.
func (c *NetworkClient) SendSelectNode(nodeID string) error {
	return c.sendControl(controlEnvelope{Type: "select-node", NodeID: nodeID})
}

// SendCampReady reports the player's ready state between stages.
func (c *NetworkClient) SendCampReady(ready bool) error {
	return c.sendControl(controlEnvelope{Type: "camp-ready", Ready: ready})
}

// RequestGameConfig asks the server to resend the game-config message,
// used after an automatic reconnect.
func (c *NetworkClient) RequestGameConfig() error {
	return c.sendControl(controlEnvelope{Type: "request-game-config"})
}

func (c *NetworkClient) sendControl(msg controlEnvelope) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.state == StateJoined
	c.mu.RUnlock()

	if !connected || conn == nil {
		return fmt.Errorf("netcode: not connected")
	}
	return conn.WriteJSON(msg)
}

// Pongs returns the channel of clock-sync replies.
func (c *NetworkClient) Pongs() <-chan PongMessage {
	return c.pongs
}

// reconnectBackoff returns the delay before reconnect attempt n (0-based),
// per the spec's min(500*2^n, 8000)ms schedule.
func reconnectBackoff(attempt int) time.Duration {
	ms := 500 * (1 << uint(attempt))
	if ms > 8000 {
		ms = 8000
	}
	return time.Duration(ms) * time.Millisecond
}

// Join opens a fresh session, or resumes one using a token persisted by
// tokens, if present.
func (c *NetworkClient) Join() error {
	c.mu.Lock()
	c.state = StateConnecting
	token, hasToken := c.tokens.Load()
	c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: c.config.ConnectionTimeout}
	conn, _, err := dialer.Dial(c.config.ServerURL, nil)
	if err != nil {
		c.mu.Lock()
		c.state = StateFailed
		c.mu.Unlock()
		return fmt.Errorf("netcode: dial %s: %w", c.config.ServerURL, err)
	}

	if !hasToken {
		// Fresh join mints the token the server will recognize on resume.
		token = uuid.NewString()
	}
	if err := conn.WriteJSON(handshakeMessage{Token: token, CharacterID: c.config.CharacterID}); err != nil {
		conn.Close()
		return fmt.Errorf("netcode: send join request: %w", err)
	}
	if !hasToken {
		if err := c.tokens.Save(token); err != nil && c.logger != nil {
			c.logger.WithError(err).Warn("failed to persist reconnect token")
		}
	}

	var cfg gameConfigMessage
	if err := conn.ReadJSON(&cfg); err != nil {
		conn.Close()
		return fmt.Errorf("netcode: read game-config: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.sessionToken = token
	c.localEid = cfg.Eid
	c.worldSeed = cfg.Seed
	c.sessionID = cfg.SessionID
	c.characterID = cfg.CharacterID
	c.state = StateJoined
	c.reconnectN = 0
	c.mu.Unlock()

	c.wg.Add(1)
	go c.receiveLoop()

	return nil
}

// LocalEid returns the player eid the server assigned this client in its
// game-config reply. Zero until Join has completed successfully.
func (c *NetworkClient) LocalEid() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.localEid
}

// WorldSeed returns the arena seed from the game-config reply.
func (c *NetworkClient) WorldSeed() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.worldSeed
}

// CharacterID returns the local character id from the game-config reply.
func (c *NetworkClient) CharacterID() uint8 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.characterID
}

// State returns the client's current connection state.
func (c *NetworkClient) State() SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SendInput encodes and sends one input to the server over the active
// connection.
func (c *NetworkClient) SendInput(input NetworkInput) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.state == StateJoined
	c.mu.RUnlock()

	if !connected || conn == nil {
		return fmt.Errorf("netcode: not connected")
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, encodeNetworkInput(input)); err != nil {
		return fmt.Errorf("netcode: send input: %w", err)
	}
	if c.telemetry != nil {
		c.telemetry.RecordInputSent()
	}
	return nil
}

// receiveLoop reads inbound binary WorldSnapshot frames and queues them,
// dropping the oldest queued snapshot under backpressure rather than
// blocking the websocket read loop. An unexpected close triggers automatic
// reconnection with exponential backoff.
func (c *NetworkClient) receiveLoop() {
	defer c.wg.Done()

	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		kind, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.errors <- fmt.Errorf("netcode: read snapshot: %w", err)
			c.attemptReconnect()
			return
		}

		if kind == websocket.TextMessage {
			c.handleControl(data)
			continue
		}

		snapshot, err := DecodeWorldSnapshot(data)
		if err != nil {
			if errors.Is(err, ErrProtocolVersionMismatch) {
				// Terminal: this build cannot speak the server's protocol,
				// so reconnecting would only fail the same way.
				c.errors <- err
				c.pushEvent("incompatible-protocol", map[string]any{"reason": "snapshot version mismatch"})
				c.terminate()
				return
			}
			// Any other decode failure: log upstream, drop the snapshot,
			// keep the session alive.
			c.errors <- err
			continue
		}

		if c.telemetry != nil {
			c.telemetry.RecordSnapshotReceived()
		}

		select {
		case c.inbound <- snapshot:
		default:
			// Backpressure: drop the oldest buffered snapshot to make room
			// for the freshest one, since stale world state is worse than
			// a gap.
			select {
			case <-c.inbound:
			default:
			}
			c.inbound <- snapshot
			if c.telemetry != nil {
				c.telemetry.RecordDroppedSnapshot()
			}
		}
	}
}

// handleControl dispatches one inbound JSON control frame.
func (c *NetworkClient) handleControl(data []byte) {
	var msg controlEnvelope
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	switch msg.Type {
	case "pong":
		select {
		case c.pongs <- PongMessage{ClientTimeMs: msg.ClientTimeMs, ServerTimeMs: msg.ServerTimeMs}:
		default:
			// A stale pong is worthless; drop it.
		}
	case "player-roster":
		if c.OnRoster != nil {
			c.OnRoster(msg.Roster)
		}
	case "hud":
		if c.OnHUD != nil && msg.HUD != nil {
			c.OnHUD(*msg.HUD)
		}
	case "select-node-result":
		if c.OnSelectNodeResult != nil {
			c.OnSelectNodeResult(msg.NodeID, msg.Success)
		}
	}
}

func (c *NetworkClient) pushEvent(kind string, data map[string]any) {
	if c.Events != nil {
		c.Events.Push(engine.GameEvent{Kind: kind, Data: data})
	}
}

// terminate performs an intentional, non-recoverable leave from inside the
// receive goroutine: the reconnect token is cleared (a fresh join is the
// only way forward) and a disconnect event is emitted. Unlike Close it
// must not wait on the receive goroutine, since it is the receive
// goroutine.
func (c *NetworkClient) terminate() {
	c.mu.Lock()
	alreadyDone := c.state == StateDisconnected
	c.state = StateDisconnected
	conn := c.conn
	c.mu.Unlock()
	if alreadyDone {
		return
	}

	if err := c.tokens.Clear(); err != nil && c.logger != nil {
		c.logger.WithError(err).Warn("failed to clear reconnect token")
	}
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	if conn != nil {
		conn.Close()
	}
	c.pushEvent("disconnect", nil)
}

func (c *NetworkClient) attemptReconnect() {
	c.mu.Lock()
	c.state = StateReconnecting
	c.mu.Unlock()

	for attempt := 0; attempt < c.config.MaxReconnectAttempts; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(reconnectBackoff(attempt)):
		}

		if c.telemetry != nil {
			c.telemetry.RecordReconnect()
		}

		if err := c.Join(); err == nil {
			// Refresh the config in case the server assigned new state
			// while we were away.
			if err := c.RequestGameConfig(); err != nil && c.logger != nil {
				c.logger.WithError(err).Debug("request-game-config after reconnect failed")
			}
			return
		}
	}

	c.mu.Lock()
	c.state = StateFailed
	c.mu.Unlock()
	c.errors <- ErrReconnectLimitExceeded
	if err := c.tokens.Clear(); err != nil && c.logger != nil {
		c.logger.WithError(err).Warn("failed to clear reconnect token")
	}
	c.pushEvent("disconnect", nil)
}

// DrainInbound returns up to MaxApplyPerTick buffered snapshots in arrival
// order, for the caller to feed through a SnapshotIngestor. Spreading
// application across ticks keeps a backlog from stalling a single frame.
func (c *NetworkClient) DrainInbound() []WorldSnapshot {
	out := make([]WorldSnapshot, 0, c.config.MaxApplyPerTick)
	for len(out) < c.config.MaxApplyPerTick {
		select {
		case s := <-c.inbound:
			out = append(out, s)
		default:
			return out
		}
	}
	return out
}

// Errors returns the channel carrying connection/decode errors.
func (c *NetworkClient) Errors() <-chan error {
	return c.errors
}

// Close shuts down the session intentionally: the reconnect token is
// cleared (this player is leaving, not dropping), the receive goroutine is
// stopped, and the connection closed.
func (c *NetworkClient) Close() error {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateDisconnected
	close(c.done)
	conn := c.conn
	c.mu.Unlock()

	if err := c.tokens.Clear(); err != nil && c.logger != nil {
		c.logger.WithError(err).Warn("failed to clear reconnect token")
	}
	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()
	return nil
}

func encodeNetworkInput(input NetworkInput) []byte {
	w := &byteWriter{buf: make([]byte, 0, 64)}
	w.u8(ProtocolVersion)
	w.u16(input.Buttons)
	w.f64(input.AimAngle)
	w.f64(input.MoveX)
	w.f64(input.MoveY)
	w.f64(input.CursorWorldX)
	w.f64(input.CursorWorldY)
	w.u32(input.Seq)
	w.u32(input.ClientTick)
	w.u64(uint64(input.ClientTimeMs))
	w.u64(uint64(input.EstimatedServerTimeMs))
	w.u64(uint64(input.ViewInterpDelayMs))
	w.u32(input.ShootSeq)
	return w.buf
}

// DecodeNetworkInput parses the binary frame produced by
// encodeNetworkInput, used by the server to decode inbound player input.
func DecodeNetworkInput(data []byte) (NetworkInput, error) {
	r := &byteReader{buf: data}
	version, err := r.u8()
	if err != nil {
		return NetworkInput{}, wrapMalformed(err)
	}
	if version != ProtocolVersion {
		return NetworkInput{}, fmt.Errorf("%w: got %d, want %d", ErrProtocolVersionMismatch, version, ProtocolVersion)
	}

	var in NetworkInput
	if in.Buttons, err = r.u16(); err != nil {
		return NetworkInput{}, wrapMalformed(err)
	}
	if in.AimAngle, err = r.f64(); err != nil {
		return NetworkInput{}, wrapMalformed(err)
	}
	if in.MoveX, err = r.f64(); err != nil {
		return NetworkInput{}, wrapMalformed(err)
	}
	if in.MoveY, err = r.f64(); err != nil {
		return NetworkInput{}, wrapMalformed(err)
	}
	if in.CursorWorldX, err = r.f64(); err != nil {
		return NetworkInput{}, wrapMalformed(err)
	}
	if in.CursorWorldY, err = r.f64(); err != nil {
		return NetworkInput{}, wrapMalformed(err)
	}
	if in.Seq, err = r.u32(); err != nil {
		return NetworkInput{}, wrapMalformed(err)
	}
	if in.ClientTick, err = r.u32(); err != nil {
		return NetworkInput{}, wrapMalformed(err)
	}
	clientTimeMs, err := r.u64()
	if err != nil {
		return NetworkInput{}, wrapMalformed(err)
	}
	in.ClientTimeMs = int64(clientTimeMs)
	estServerMs, err := r.u64()
	if err != nil {
		return NetworkInput{}, wrapMalformed(err)
	}
	in.EstimatedServerTimeMs = int64(estServerMs)
	viewDelayMs, err := r.u64()
	if err != nil {
		return NetworkInput{}, wrapMalformed(err)
	}
	in.ViewInterpDelayMs = int64(viewDelayMs)
	if in.ShootSeq, err = r.u32(); err != nil {
		return NetworkInput{}, wrapMalformed(err)
	}

	return in, nil
}
