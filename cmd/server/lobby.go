package main

import (
	"github.com/sirupsen/logrus"

	"github.com/hollowtick/skirmish/pkg/arena"
	"github.com/hollowtick/skirmish/pkg/engine"
	"github.com/hollowtick/skirmish/pkg/netcode"
)

// lobby tracks connected players' entities and latest input against the
// authoritative world. It is only ever touched from the server's single
// select loop, so it needs no locking of its own.
type lobby struct {
	world     *engine.World
	layout    *arena.Layout
	nextSpawn int

	players    map[uint64]*engine.Entity
	pending    map[uint64]engine.TickInput
	lastAcked  map[uint64]uint32
	nodesTaken map[string]uint64
	campReady  map[uint64]bool
}

func newLobby(world *engine.World, layout *arena.Layout) *lobby {
	return &lobby{
		world:      world,
		layout:     layout,
		players:    make(map[uint64]*engine.Entity),
		pending:    make(map[uint64]engine.TickInput),
		lastAcked:  make(map[uint64]uint32),
		nodesTaken: make(map[string]uint64),
		campReady:  make(map[uint64]bool),
	}
}

// onControl resolves a non-input control message. select-node is
// first-come-first-served per node id; camp-ready toggles the between-stage
// ready flag.
func (l *lobby) onControl(ctrl netcode.PlayerControl) (nodeTaken bool) {
	switch ctrl.Type {
	case "select-node":
		if _, taken := l.nodesTaken[ctrl.NodeID]; taken {
			return false
		}
		l.nodesTaken[ctrl.NodeID] = ctrl.Eid
		return true
	case "camp-ready":
		l.campReady[ctrl.Eid] = ctrl.Ready
	}
	return false
}

// hudFor projects one player's entity into the HUD fields pushed alongside
// snapshots.
func (l *lobby) hudFor(eid uint64) (netcode.HUDState, bool) {
	entity, ok := l.players[eid]
	if !ok {
		return netcode.HUDState{}, false
	}
	var hud netcode.HUDState
	if cc, ok := entity.GetComponent("cylinder"); ok {
		cyl := cc.(*engine.CylinderComponent)
		hud.CylinderRounds = cyl.Rounds
		hud.CylinderMax = cyl.MaxRounds
		hud.IsReloading = cyl.Reloading
		if cyl.Reloading && cyl.ReloadTime > 0 {
			hud.ReloadProgress = 1 - cyl.ReloadTimer/cyl.ReloadTime
		}
	}
	if sc, ok := entity.GetComponent("showdown"); ok {
		sd := sc.(*engine.ShowdownComponent)
		hud.AbilityReady = !sd.Active && sd.Cooldown <= 0
		if sd.Cooldown > 0 {
			hud.AbilityCharge = 1 - sd.Cooldown/5
		} else {
			hud.AbilityCharge = 1
		}
	}
	return hud, true
}

func (l *lobby) onJoin(eid uint64, characterID uint8, log *logrus.Entry) {
	if _, exists := l.players[eid]; exists {
		return
	}
	x, y := l.nextSpawnPoint()
	entity := createPlayerEntity(l.world, eid, characterID, x, y)
	l.players[eid] = entity
	log.WithFields(logrus.Fields{"eid": eid, "entityID": entity.ID, "character": characterID, "x": x, "y": y}).Info("player joined")
}

func (l *lobby) onLeave(eid uint64, log *logrus.Entry) {
	entity, exists := l.players[eid]
	if !exists {
		return
	}
	l.world.RemoveEntity(entity.ID)
	delete(l.players, eid)
	delete(l.pending, eid)
	delete(l.lastAcked, eid)
	delete(l.campReady, eid)
	log.WithField("eid", eid).Info("player left")
}

func (l *lobby) onInput(pi netcode.PlayerInput) {
	if _, exists := l.players[pi.Eid]; !exists {
		return
	}
	l.pending[pi.Eid] = engine.TickInput{
		Buttons:      pi.Input.Buttons,
		AimAngle:     pi.Input.AimAngle,
		MoveX:        pi.Input.MoveX,
		MoveY:        pi.Input.MoveY,
		CursorWorldX: pi.Input.CursorWorldX,
		CursorWorldY: pi.Input.CursorWorldY,
	}
	if pi.Input.Seq > l.lastAcked[pi.Eid] {
		l.lastAcked[pi.Eid] = pi.Input.Seq
	}
}

// drainInputs returns each connected player's most recently received input.
// Inputs are not cleared between ticks: a player who holds a direction
// without sending a fresh packet every tick should keep moving rather than
// stall the instant the queue runs dry.
func (l *lobby) drainInputs() map[uint64]engine.TickInput {
	out := make(map[uint64]engine.TickInput, len(l.pending))
	for eid, entity := range l.players {
		if input, ok := l.pending[eid]; ok {
			out[entity.ID] = input
		}
	}
	return out
}

// snapshotContext assembles the per-player bookkeeping BuildWorldSnapshot
// needs: each player entity's last processed input seq, and the entity-id
// to session-eid translation so snapshots speak the same player ids the
// game-config handshake handed each client.
func (l *lobby) snapshotContext() netcode.SnapshotBuildContext {
	ctx := netcode.SnapshotBuildContext{
		LastProcessedSeq: make(map[uint64]uint32, len(l.players)),
		PlayerWireEid:    make(map[uint64]uint64, len(l.players)),
	}
	for sessionEid, entity := range l.players {
		ctx.LastProcessedSeq[entity.ID] = l.lastAcked[sessionEid]
		ctx.PlayerWireEid[entity.ID] = sessionEid
	}
	return ctx
}

func (l *lobby) pendingCount() int { return len(l.pending) }

// nextSpawnPoint cycles through the arena layout's spawn points so
// players don't all appear on top of each other; falls back to the origin
// if no layout was generated.
func (l *lobby) nextSpawnPoint() (float64, float64) {
	if l.layout == nil || len(l.layout.Spawns) == 0 {
		return 0, 0
	}
	spawn := l.layout.SpawnFor(l.nextSpawn)
	l.nextSpawn++
	return spawn.X, spawn.Y
}
