package netcode

import (
	"testing"

	"github.com/hollowtick/skirmish/pkg/engine"
)

func TestRemoteInterpolationApplierLerpsRemotePlayer(t *testing.T) {
	world := engine.NewWorld()
	maps := NewEidMaps()

	local := world.CreateEntity()
	local.AddComponent(&engine.PositionComponent{})
	world.Update(0)
	maps.Players.Bind(1, local.ID)

	remote := world.CreateEntity()
	remote.AddComponent(&engine.PositionComponent{})
	world.Update(0)
	maps.Players.Bind(2, remote.ID)

	applier := NewRemoteInterpolationApplier(maps, local.ID)

	state := InterpolationState{
		From:  WorldSnapshot{Players: []PlayerSnapshot{{Eid: 1, X: 0, Y: 0}, {Eid: 2, X: 0, Y: 0}}},
		To:    WorldSnapshot{Players: []PlayerSnapshot{{Eid: 1, X: 100, Y: 100}, {Eid: 2, X: 100, Y: 0}}},
		Alpha: 0.5,
	}
	applier.Apply(world, state)

	if remote.GetPosition().X != 50 {
		t.Errorf("remote X = %f, want 50", remote.GetPosition().X)
	}
	if local.GetPosition().X != 0 {
		t.Errorf("local player must not be interpolated, X = %f, want 0", local.GetPosition().X)
	}
}

func TestRemoteInterpolationApplierRecordsPrevAndInterpolatedTick(t *testing.T) {
	world := engine.NewWorld()
	maps := NewEidMaps()

	remote := world.CreateEntity()
	remote.AddComponent(&engine.PositionComponent{})
	world.Update(0)
	maps.Players.Bind(2, remote.ID)

	// Entity ids start at 0, so the remote entity is id 0; name an id no
	// entity in this world has as the local player.
	applier := NewRemoteInterpolationApplier(maps, remote.ID+1)
	state := InterpolationState{
		From:  WorldSnapshot{Tick: 10, Players: []PlayerSnapshot{{Eid: 2, X: 0, Y: 0}}},
		To:    WorldSnapshot{Tick: 12, Players: []PlayerSnapshot{{Eid: 2, X: 100, Y: 0}}},
		Alpha: 0.5,
	}
	if alpha := applier.Apply(world, state); alpha != 0.5 {
		t.Errorf("Apply returned alpha %f, want 0.5", alpha)
	}

	pos := remote.GetPosition()
	if pos.PrevX != 0 || pos.X != 50 {
		t.Errorf("prev/current = (%f, %f), want (0, 50)", pos.PrevX, pos.X)
	}
	if world.Tick() != 11 {
		t.Errorf("world tick = %d, want interpolated 11", world.Tick())
	}
}

func TestRemoteInterpolationApplierSkipsLocalTimelineBullets(t *testing.T) {
	world := engine.NewWorld()
	maps := NewEidMaps()
	tracker := NewPredictedEntityTracker(world)

	mine := world.CreateEntity()
	mine.AddComponent(&engine.PositionComponent{X: 500, Y: 500})
	theirs := world.CreateEntity()
	theirs.AddComponent(&engine.PositionComponent{})
	world.Update(0)
	maps.Bullets.Bind(100, mine.ID)
	maps.Bullets.Bind(101, theirs.ID)
	tracker.MarkLocalTimeline(mine.ID)

	applier := NewRemoteInterpolationApplier(maps, 0)
	applier.Tracker = tracker

	state := InterpolationState{
		From:  WorldSnapshot{Bullets: []BulletSnapshot{{Eid: 100, X: 0}, {Eid: 101, X: 0}}},
		To:    WorldSnapshot{Bullets: []BulletSnapshot{{Eid: 100, X: 10}, {Eid: 101, X: 10}}},
		Alpha: 0.5,
	}
	applier.Apply(world, state)

	if mine.GetPosition().X != 500 {
		t.Errorf("local-timeline bullet moved to %f, must stay at its predicted 500", mine.GetPosition().X)
	}
	if theirs.GetPosition().X != 5 {
		t.Errorf("remote bullet X = %f, want 5", theirs.GetPosition().X)
	}
}

func TestRemoteInterpolationApplierSnapsNewlySpawnedEntity(t *testing.T) {
	world := engine.NewWorld()
	maps := NewEidMaps()

	enemy := world.CreateEntity()
	enemy.AddComponent(&engine.PositionComponent{})
	world.Update(0)
	maps.Enemies.Bind(9, enemy.ID)

	applier := NewRemoteInterpolationApplier(maps, 0)
	state := InterpolationState{
		From:  WorldSnapshot{},
		To:    WorldSnapshot{Enemies: []EnemySnapshot{{Eid: 9, X: 42, Y: 7}}},
		Alpha: 0.5,
	}
	applier.Apply(world, state)

	if enemy.GetPosition().X != 42 || enemy.GetPosition().Y != 7 {
		t.Errorf("newly spawned enemy should snap to To position, got (%f, %f)", enemy.GetPosition().X, enemy.GetPosition().Y)
	}
}
