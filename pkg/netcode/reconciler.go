package netcode

import (
	"math"

	"github.com/hollowtick/skirmish/pkg/engine"
)

// Default reconciliation tuning, matching the spec's defaults.
const (
	DefaultReconcileEpsilon = 0.5
	DefaultSnapThreshold    = 96.0
	DefaultCorrectionSpeed  = 15.0
)

// ReconcileSample reports what one reconciliation did, for telemetry.
type ReconcileSample struct {
	HadCorrection       bool
	CorrectionMagnitude float64
	Snapped             bool
}

// replayExcludedState is the weapon/ability state saved before replay and
// restored after. Replay reruns only the movement systems, but the rewind
// itself must not clobber state that prediction already advanced past the
// snapshot's tick: fire cooldowns, button edges, and showdown timers were
// all correct at present time, and re-reconciling them to a 100ms-old
// value would re-trigger fire edges and double-count cooldown decay.
type replayExcludedState struct {
	fireCooldown   float64
	shootWasDown   bool
	abilityWasDown bool

	hadShowdown      bool
	showdownActive   bool
	showdownTarget   uint64
	showdownDuration float64
	showdownCooldown float64
}

func saveReplayExcluded(entity *engine.Entity) replayExcludedState {
	var saved replayExcludedState
	if cc, ok := entity.GetComponent("cylinder"); ok {
		saved.fireCooldown = cc.(*engine.CylinderComponent).FireCooldown
	}
	if pc, ok := entity.GetComponent("player"); ok {
		p := pc.(*engine.PlayerComponent)
		saved.shootWasDown = p.ShootWasDown
		saved.abilityWasDown = p.AbilityWasDown
	}
	if sc, ok := entity.GetComponent("showdown"); ok {
		sd := sc.(*engine.ShowdownComponent)
		saved.hadShowdown = true
		saved.showdownActive = sd.Active
		saved.showdownTarget = sd.TargetEid
		saved.showdownDuration = sd.Duration
		saved.showdownCooldown = sd.Cooldown
	}
	return saved
}

func restoreReplayExcluded(entity *engine.Entity, saved replayExcludedState) {
	if cc, ok := entity.GetComponent("cylinder"); ok {
		cc.(*engine.CylinderComponent).FireCooldown = saved.fireCooldown
	}
	if pc, ok := entity.GetComponent("player"); ok {
		p := pc.(*engine.PlayerComponent)
		p.ShootWasDown = saved.shootWasDown
		p.AbilityWasDown = saved.abilityWasDown
	}
	if saved.hadShowdown {
		if sc, ok := entity.GetComponent("showdown"); ok {
			sd := sc.(*engine.ShowdownComponent)
			sd.Active = saved.showdownActive
			sd.TargetEid = saved.showdownTarget
			sd.Duration = saved.showdownDuration
			sd.Cooldown = saved.showdownCooldown
		}
	}
}

// Reconciler folds an authoritative player snapshot back into the client's
// predicted local player: it rewinds position, locomotion state, and
// roll/jump components to the authoritative values (velocity is zeroed),
// replays every input
// the server has not yet acknowledged, and then either accepts a negligible
// correction silently, snaps a large one instantly, or folds a medium one
// into the residual error vector smoothed out by DecayError. Weapon and
// showdown state is saved around the replay; see replayExcludedState.
type Reconciler struct {
	Driver *engine.LocalPlayerDriver
	Inputs *InputBuffer

	// Events receives the player-hit event pushed when the authoritative
	// HP dropped since the previous reconciliation. Optional.
	Events engine.GameplayEventSink

	Epsilon         float64
	SnapThreshold   float64
	CorrectionSpeed float64

	errorX, errorY float64

	prevHP    float64
	hasPrevHP bool
}

// NewReconciler creates a reconciler with the spec's default tuning.
func NewReconciler(driver *engine.LocalPlayerDriver, inputs *InputBuffer) *Reconciler {
	return &Reconciler{
		Driver:          driver,
		Inputs:          inputs,
		Epsilon:         DefaultReconcileEpsilon,
		SnapThreshold:   DefaultSnapThreshold,
		CorrectionSpeed: DefaultCorrectionSpeed,
	}
}

// Reconcile rewinds localEid to the authoritative snapshot, acknowledges
// every input up to the snapshot's LastProcessedSeq, and replays everything
// still pending. It then compares the replayed result against the position
// the client was already rendering before this call and classifies the
// divergence: negligible (do nothing), large (snap, residual discarded), or
// in between (accumulate into the smoothed error vector).
func (r *Reconciler) Reconcile(world *engine.World, localEid uint64, authoritative PlayerSnapshot) ReconcileSample {
	entity, ok := world.GetEntity(localEid)
	if !ok {
		return ReconcileSample{}
	}
	pos := entity.GetPosition()
	if pos == nil {
		return ReconcileSample{}
	}

	r.observeHP(entity, authoritative)

	preReconcileX, preReconcileY := pos.X, pos.Y

	r.Inputs.AcknowledgeUpTo(authoritative.LastProcessedSeq)

	r.rewind(entity, authoritative)

	saved := saveReplayExcluded(entity)
	pending := r.Inputs.GetPending()
	tickInputs := make([]engine.TickInput, len(pending))
	for i, in := range pending {
		tickInputs[i] = engine.TickInput{
			Buttons:      in.Buttons,
			AimAngle:     in.AimAngle,
			MoveX:        in.MoveX,
			MoveY:        in.MoveY,
			CursorWorldX: in.CursorWorldX,
			CursorWorldY: in.CursorWorldY,
		}
	}
	r.Driver.Replay(world, localEid, tickInputs)
	restoreReplayExcluded(entity, saved)

	dx := preReconcileX - pos.X
	dy := preReconcileY - pos.Y
	dist := math.Hypot(dx, dy)

	sample := ReconcileSample{HadCorrection: dist > r.Epsilon, CorrectionMagnitude: dist}
	if !sample.HadCorrection {
		return sample
	}

	// Accumulate into any error still decaying from earlier corrections;
	// a combined error past the snap threshold is too large to hide, so
	// it is discarded entirely and the player teleports to truth.
	ex := r.errorX + dx
	ey := r.errorY + dy
	if math.Hypot(ex, ey) > r.SnapThreshold {
		r.errorX, r.errorY = 0, 0
		sample.Snapped = true
	} else {
		r.errorX, r.errorY = ex, ey
	}
	return sample
}

// observeHP pushes a player-hit event and refreshes iframes when the
// authoritative HP dropped since the previous snapshot's value.
func (r *Reconciler) observeHP(entity *engine.Entity, authoritative PlayerSnapshot) {
	hc := entity.GetHealth()
	if hc == nil {
		return
	}
	dropped := r.hasPrevHP && authoritative.HP < r.prevHP
	r.prevHP, r.hasPrevHP = authoritative.HP, true

	hc.Current = authoritative.HP
	hc.Max = authoritative.MaxHP
	if !dropped {
		return
	}
	hc.Iframes = hc.IframeDuration
	if r.Events != nil {
		r.Events.Push(engine.GameEvent{Kind: "player-hit", EntityID: entity.ID})
	}
}

// rewind overwrites the predicted entity's movement-relevant state with the
// authoritative snapshot: position (prev included, so interpolated render
// doesn't smear across the rewind), velocity (zeroed rather than taken
// from the snapshot), locomotion state kind, the
// jump arc's z-axis, roll/jump component presence, and the roll/jump button
// edge bits the replayed inputs will be compared against.
func (r *Reconciler) rewind(entity *engine.Entity, s PlayerSnapshot) {
	pos := entity.GetPosition()
	pos.X, pos.Y = s.X, s.Y
	pos.PrevX, pos.PrevY = s.X, s.Y

	if vel := entity.GetVelocity(); vel != nil {
		vel.VX, vel.VY = 0, 0
	}
	if zc, ok := entity.GetComponent("zposition"); ok {
		z := zc.(*engine.ZPositionComponent)
		z.Z, z.ZVelocity = s.Z, s.ZVelocity
	}

	var state *engine.PlayerStateComponent
	if sc, ok := entity.GetComponent("player_state"); ok {
		state = sc.(*engine.PlayerStateComponent)
		state.Kind = engine.PlayerStateKind(s.State)
	}

	if pc, ok := entity.GetComponent("player"); ok {
		p := pc.(*engine.PlayerComponent)
		p.RollButtonWasDown = s.Flags&FlagRollEdge != 0
		p.JumpButtonWasDown = s.Flags&FlagJumpEdge != 0
	}

	r.rewindRoll(entity, s, state)
	r.rewindJump(entity, s, state)
}

func (r *Reconciler) rewindRoll(entity *engine.Entity, s PlayerSnapshot, state *engine.PlayerStateComponent) {
	rolling := state != nil && state.Kind == engine.PlayerRolling
	if !rolling {
		entity.RemoveComponent("roll")
		return
	}

	dirX, dirY := s.RollDirX, s.RollDirY
	if dirX == 0 && dirY == 0 {
		// The snapshot carried no direction; derive one from aim so the
		// replayed roll still moves somewhere sensible.
		dirX, dirY = math.Cos(s.AimAngle), math.Sin(s.AimAngle)
	}
	norm := math.Hypot(dirX, dirY)
	if norm > 0 {
		dirX, dirY = dirX/norm, dirY/norm
	}

	var roll *engine.RollComponent
	if rc, ok := entity.GetComponent("roll"); ok {
		roll = rc.(*engine.RollComponent)
	} else {
		roll = &engine.RollComponent{}
		entity.AddComponent(roll)
	}
	roll.Elapsed = float64(s.RollElapsedMs) / 1000
	roll.Duration = float64(s.RollDurationMs) / 1000
	roll.DirX, roll.DirY = dirX, dirY
}

func (r *Reconciler) rewindJump(entity *engine.Entity, s PlayerSnapshot, state *engine.PlayerStateComponent) {
	kind := engine.PlayerIdle
	if state != nil {
		kind = state.Kind
	}

	switch kind {
	case engine.PlayerJumping:
		if _, ok := entity.GetComponent("jump"); !ok {
			entity.AddComponent(&engine.JumpComponent{})
		}
	case engine.PlayerLanding:
		if jc, ok := entity.GetComponent("jump"); ok {
			j := jc.(*engine.JumpComponent)
			if !j.Landed {
				j.Landed = true
				j.LandingTimer = engine.JumpLandingDuration
			}
			// An already-running landing timer is preserved: the local
			// landing started first and restarting it would freeze the
			// player in the recovery pose.
		} else {
			entity.AddComponent(&engine.JumpComponent{Landed: true, LandingTimer: engine.JumpLandingDuration})
		}
	default:
		entity.RemoveComponent("jump")
		if zc, ok := entity.GetComponent("zposition"); ok {
			z := zc.(*engine.ZPositionComponent)
			z.Z, z.ZVelocity = 0, 0
		}
	}
}

// DecayError consumes the residual reconciliation error exponentially at
// CorrectionSpeed and returns the render-time offset that should be added
// to the entity's authoritative position this frame. Called once per render
// frame regardless of whether a reconciliation just happened.
func (r *Reconciler) DecayError(dt float64) (offsetX, offsetY float64) {
	if r.errorX == 0 && r.errorY == 0 {
		return 0, 0
	}

	if dt > 0.1 {
		dt = 0.1
	}
	factor := 1 - math.Exp(-r.CorrectionSpeed*dt)
	r.errorX -= r.errorX * factor
	r.errorY -= r.errorY * factor

	if math.Abs(r.errorX) < 0.1 {
		r.errorX = 0
	}
	if math.Abs(r.errorY) < 0.1 {
		r.errorY = 0
	}
	return r.errorX, r.errorY
}

// PendingError reports the current unresolved smoothing offset without
// consuming it, useful for diagnostics/telemetry.
func (r *Reconciler) PendingError() (x, y float64) {
	return r.errorX, r.errorY
}
