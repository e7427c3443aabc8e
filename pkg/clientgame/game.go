package clientgame

import (
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/sirupsen/logrus"

	"github.com/hollowtick/skirmish/pkg/engine"
	"github.com/hollowtick/skirmish/pkg/netcode"
)

const tickSeconds = 1.0 / 60.0

// InputFunc reads the current frame's control state (keyboard/mouse on
// desktop, virtual joysticks on mobile) into one engine.TickInput.
type InputFunc func() engine.TickInput

// Game is the ebiten.Game implementation driving the predicted local player
// and rendering the authoritative/interpolated world. In multiplayer mode it
// owns the full netcode client stack; in single-player mode (no server
// connection) it steps the same skirmish systems directly with no network
// round trip at all, reusing FullWorldDriver the way the embedded server
// does. cmd/client and cmd/mobile share this type, differing only in how
// they gather input and present chrome around it.
type Game struct {
	logger       *logrus.Entry
	world        *engine.World
	width        int
	height       int
	gatherInput  InputFunc
	drawOverlay  func(screen *ebiten.Image)

	networked bool

	// Multiplayer fields, populated only when networked.
	client        *netcode.NetworkClient
	maps          *netcode.EidMaps
	tracker       *netcode.PredictedEntityTracker
	ingestor      *netcode.SnapshotIngestor
	reconciler    *netcode.Reconciler
	snapshotBuf   *netcode.SnapshotBuffer
	interpApplier *netcode.RemoteInterpolationApplier
	inputBuf      *netcode.InputBuffer
	clock         *netcode.ClockSync
	spatial       *engine.SpatialHash
	predictionReg *engine.SystemRegistry
	predictionDrv *engine.LocalPlayerDriver
	telemetry     *netcode.MultiplayerTelemetry

	localServerEid uint64
	localEntityID  uint64
	seq            uint32
	pingCountdown  int
	startTime      time.Time
	offsetX        float64
	offsetY        float64

	// Single-player fields.
	fullReg    *engine.SystemRegistry
	fullDrv    *engine.FullWorldDriver
	localPlr   *engine.Entity
	localEvent *droppingEventSink
}

// droppingEventSink discards presentation events (fire, reload, roll) for
// now; neither client surface has a VFX/SFX layer yet, so there is nowhere
// to route them. Logged at debug level so a developer can still see the
// gameplay event stream while working on that layer.
type droppingEventSink struct {
	logger *logrus.Entry
}

func (d *droppingEventSink) Push(event engine.GameEvent) {
	if d.logger.Logger.GetLevel() >= logrus.DebugLevel {
		d.logger.WithFields(logrus.Fields{"kind": event.Kind, "entity": event.EntityID}).Debug("gameplay event")
	}
}

// NewSinglePlayer builds a game that drives the skirmish systems locally,
// authoritatively, with no network client at all.
func NewSinglePlayer(logger *logrus.Entry, width, height int, gatherInput InputFunc) *Game {
	world := engine.NewWorldWithLogger(logger.Logger)
	registry := engine.NewSystemRegistry()
	sink := &droppingEventSink{logger: logger}
	engine.RegisterSkirmishSystems(registry, sink, engine.SpawnSkirmishBullet)

	player := engine.NewSkirmishPlayerEntity(world, 1, engine.CharacterGunslinger, 0, 0)
	world.Update(0)

	return &Game{
		logger:      logger,
		world:       world,
		width:       width,
		height:      height,
		gatherInput: gatherInput,
		fullReg:     registry,
		fullDrv:     engine.NewFullWorldDriver(registry, tickSeconds),
		localPlr:    player,
		localEvent:  sink,
	}
}

// NewMultiplayer builds a game driven by the netcode client stack:
// prediction on the local player, reconciliation against authoritative
// snapshots, and interpolation for every remote entity.
func NewMultiplayer(logger *logrus.Entry, width, height int, client *netcode.NetworkClient, telemetry *netcode.MultiplayerTelemetry, gatherInput InputFunc) *Game {
	world := engine.NewWorldWithLogger(logger.Logger)
	maps := netcode.NewEidMaps()
	tracker := netcode.NewPredictedEntityTracker(world)
	factory := EntityFactory{}
	ingestor := netcode.NewSnapshotIngestor(maps, factory, tracker)

	clock := netcode.NewClockSync()
	ingestor.RTT = clock.GetRTT
	ingestor.Telemetry = telemetry

	localServerEid := client.LocalEid()
	ingestor.SetLocalPlayer(localServerEid)
	ingestor.LocalCharacterID = client.CharacterID()

	// Roster updates arrive on the receive goroutine; the ingestor reads
	// from the game loop, so the lookup goes through a locked map.
	roster := &rosterStore{characters: make(map[uint64]uint8)}
	client.OnRoster = roster.replace
	ingestor.ResolveCharacter = roster.lookup

	localPlayer := engine.NewSkirmishPlayerEntity(world, localServerEid, client.CharacterID(), 0, 0)
	world.Update(0)
	maps.Players.Bind(localServerEid, localPlayer.ID)

	predictionReg := engine.NewSystemRegistry()
	sink := &droppingEventSink{logger: logger}
	client.Events = sink

	// The server owns XP; a HUD level increase is the level-up signal.
	// The first HUD message only seeds the baseline.
	var lastLevel int32
	client.OnHUD = func(hud netcode.HUDState) {
		prev := atomic.SwapInt32(&lastLevel, int32(hud.Level))
		if prev > 0 && int32(hud.Level) > prev {
			sink.Push(engine.GameEvent{Kind: "level-up", Data: map[string]any{"level": hud.Level}})
		}
	}
	spawnPredicted := func(w *engine.World, owner *engine.Entity, angle float64) {
		bullet := engine.NewSkirmishBulletEntity(w, owner, angle)
		if bullet != nil {
			tracker.TrackNewBullet(bullet, localServerEid, w.Tick(), 0)
		}
	}
	engine.RegisterSkirmishSystems(predictionReg, sink, spawnPredicted)
	predictionDrv := engine.NewLocalPlayerDriver(predictionReg, tickSeconds)

	inputBuf := netcode.NewInputBuffer(netcode.DefaultInputBufferCapacity)
	reconciler := netcode.NewReconciler(predictionDrv, inputBuf)
	reconciler.Events = sink

	interpApplier := netcode.NewRemoteInterpolationApplier(maps, localPlayer.ID)
	interpApplier.Tracker = tracker

	return &Game{
		logger:         logger,
		world:          world,
		width:          width,
		height:         height,
		gatherInput:    gatherInput,
		networked:      true,
		client:         client,
		maps:           maps,
		tracker:        tracker,
		ingestor:       ingestor,
		reconciler:     reconciler,
		snapshotBuf:    netcode.NewSnapshotBuffer(netcode.DefaultSnapshotBufferSize, netcode.DefaultInterpolationDelayMs),
		interpApplier:  interpApplier,
		inputBuf:       inputBuf,
		clock:          clock,
		spatial:        engine.NewSpatialHash(4096, 4096),
		predictionReg:  predictionReg,
		predictionDrv:  predictionDrv,
		telemetry:      telemetry,
		localServerEid: localServerEid,
		localEntityID:  localPlayer.ID,
		startTime:      time.Now(),
	}
}

// SetOverlay installs a chrome-drawing hook run after the world is drawn
// (e.g. cmd/mobile's virtual joystick layout). Desktop leaves this unset.
func (g *Game) SetOverlay(draw func(screen *ebiten.Image)) {
	g.drawOverlay = draw
}

func (g *Game) Update() error {
	input := g.gatherInput()

	if !g.networked {
		g.fullDrv.Step(g.world, g.localPlr.ID, input)
		g.world.Update(tickSeconds)
		return nil
	}

	nowMs := time.Since(g.startTime).Milliseconds()

	g.syncClock(nowMs)

	// Fold in whatever authoritative state arrived since the last tick
	// before predicting past it, reconciling the local player against each
	// snapshot's own record (its LastProcessedSeq acknowledges inputs).
	for _, snapshot := range g.client.DrainInbound() {
		g.snapshotBuf.Push(snapshot, nowMs)
		g.ingestor.Apply(g.world, snapshot)
		g.world.Update(0)
		// The proximity index is rebuilt exactly once per applied snapshot;
		// prediction ticks between snapshots reuse it as-is.
		g.spatial.Rebuild(g.world.GetEntitiesWith("position", "circle_collider"))
		for _, ps := range snapshot.Players {
			if ps.Eid == g.localServerEid {
				sample := g.reconciler.Reconcile(g.world, g.localEntityID, ps)
				if g.telemetry != nil {
					g.telemetry.RecordReconciliation()
					if sample.Snapped {
						g.telemetry.RecordSnap()
					}
				}
				break
			}
		}
	}

	g.seq++
	netInput := netcode.NetworkInput{
		Buttons:               input.Buttons,
		AimAngle:              input.AimAngle,
		MoveX:                 input.MoveX,
		MoveY:                 input.MoveY,
		CursorWorldX:          input.CursorWorldX,
		CursorWorldY:          input.CursorWorldY,
		Seq:                   g.seq,
		ClientTick:            g.world.Tick(),
		ClientTimeMs:          nowMs,
		EstimatedServerTimeMs: g.clock.GetServerTime(nowMs),
		ViewInterpDelayMs:     netcode.DefaultInterpolationDelayMs,
	}
	g.inputBuf.Push(netInput)
	if err := g.client.SendInput(netInput); err != nil && g.logger.Logger.GetLevel() >= logrus.DebugLevel {
		g.logger.WithError(err).Debug("send input failed")
	}

	g.predictionDrv.Step(g.world, g.localEntityID, input)
	g.world.Update(tickSeconds)

	// Interpolate remote entities in the server-time domain once clock
	// sync has converged; until then fall back to local receive time.
	var state netcode.InterpolationState
	var ok bool
	if g.clock.IsConverged() {
		state, ok = g.snapshotBuf.GetInterpolationStateAtServerTime(g.clock.GetServerTime(nowMs))
	} else {
		state, ok = g.snapshotBuf.GetInterpolationState(nowMs)
	}
	if ok {
		g.interpApplier.Apply(g.world, state)
	}

	g.offsetX, g.offsetY = g.reconciler.DecayError(tickSeconds)

	if g.telemetry != nil {
		g.telemetry.SetRTT(g.clock.GetRTT())
		g.telemetry.SetPendingInputs(g.inputBuf.Len())
		g.telemetry.Tick(g.clock.GetRTT(), g.inputBuf.Len())
	}

	select {
	case err := <-g.client.Errors():
		g.logger.WithError(err).Warn("network error")
	default:
	}

	return nil
}

// pingIntervalTicks spaces clock-sync probes half a second apart at 60Hz.
const pingIntervalTicks = 30

// syncClock drains any pong replies into the clock estimator and sends the
// next probe on its cadence.
func (g *Game) syncClock(nowMs int64) {
	for {
		select {
		case pong := <-g.client.Pongs():
			g.clock.RecordPong(pong.ClientTimeMs, nowMs, pong.ServerTimeMs)
		default:
			g.pingCountdown--
			if g.pingCountdown <= 0 {
				g.pingCountdown = pingIntervalTicks
				if err := g.client.SendPing(nowMs); err != nil && g.logger.Logger.GetLevel() >= logrus.DebugLevel {
					g.logger.WithError(err).Debug("send ping failed")
				}
			}
			return
		}
	}
}

func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(color.RGBA{20, 20, 28, 255})

	camX, camY := g.cameraCenter()

	for _, entity := range g.world.GetEntitiesWith("position", "player") {
		pos := entity.GetPosition()
		if pos == nil {
			continue
		}
		x, y := pos.X, pos.Y
		if g.networked && entity.ID == g.localEntityID {
			x += g.offsetX
			y += g.offsetY
		}
		clr := color.RGBA{80, 180, 255, 255}
		if g.networked && entity.ID == g.localEntityID {
			clr = color.RGBA{255, 220, 80, 255}
		}
		vector.DrawFilledCircle(screen, float32(x-camX)+float32(g.width)/2, float32(y-camY)+float32(g.height)/2, 16, clr, true)
	}

	for _, entity := range g.world.GetEntitiesWith("position", "bullet") {
		pos := entity.GetPosition()
		if pos == nil {
			continue
		}
		vector.DrawFilledCircle(screen, float32(pos.X-camX)+float32(g.width)/2, float32(pos.Y-camY)+float32(g.height)/2, 4, color.RGBA{255, 240, 180, 255}, true)
	}

	for _, entity := range g.world.GetEntitiesWith("position", "enemy") {
		pos := entity.GetPosition()
		if pos == nil {
			continue
		}
		vector.DrawFilledCircle(screen, float32(pos.X-camX)+float32(g.width)/2, float32(pos.Y-camY)+float32(g.height)/2, 14, color.RGBA{220, 70, 70, 255}, true)
	}

	mode := "single-player"
	if g.networked {
		mode = "multiplayer"
	}
	ebitenutil.DebugPrint(screen, mode+" | tick "+itoa(uint64(g.world.Tick())))

	if g.drawOverlay != nil {
		g.drawOverlay(screen)
	}
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.width, g.height
}

func (g *Game) cameraCenter() (float64, float64) {
	if g.networked {
		if entity, ok := g.world.GetEntity(g.localEntityID); ok {
			if pos := entity.GetPosition(); pos != nil {
				return pos.X + g.offsetX, pos.Y + g.offsetY
			}
		}
		return 0, 0
	}
	if pos := g.localPlr.GetPosition(); pos != nil {
		return pos.X, pos.Y
	}
	return 0, 0
}

// rosterStore is the locked eid→character map bridging the network
// receive goroutine (writes) and the ingestor (reads).
type rosterStore struct {
	mu         sync.RWMutex
	characters map[uint64]uint8
}

func (r *rosterStore) replace(entries []netcode.RosterEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.characters {
		delete(r.characters, k)
	}
	for _, entry := range entries {
		r.characters[entry.Eid] = entry.CharacterID
	}
}

func (r *rosterStore) lookup(serverEid uint64) (uint8, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.characters[serverEid]
	return id, ok
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
