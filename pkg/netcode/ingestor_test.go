package netcode

import (
	"testing"

	"github.com/hollowtick/skirmish/pkg/engine"
)

// stubFactory is a LocalEntityFactory for tests: it builds the minimal
// component set the ingestor needs to exercise (position/velocity/health
// for all kinds, plus the player/enemy-identifying components), mirroring
// what cmd/server/player_factory.go wires up for real entities.
type stubFactory struct{}

func (stubFactory) CreatePlayer(world *engine.World, serverEid uint64, characterID uint8) *engine.Entity {
	e := world.CreateEntity()
	e.AddComponent(&engine.PositionComponent{})
	e.AddComponent(&engine.VelocityComponent{})
	e.AddComponent(&engine.PlayerComponent{})
	e.AddComponent(&engine.PlayerStateComponent{})
	e.AddComponent(&engine.ZPositionComponent{})
	e.AddComponent(&engine.ShowdownComponent{})
	e.AddComponent(&engine.HealthComponent{Current: 100, Max: 100, IframeDuration: 0.5})
	e.AddComponent(&engine.CylinderComponent{Rounds: 6, MaxRounds: 6})
	world.Update(0)
	return e
}

func (stubFactory) CreateBullet(world *engine.World, serverEid, ownerLocalEid uint64, layer uint8) *engine.Entity {
	e := world.CreateEntity()
	e.AddComponent(&engine.PositionComponent{})
	e.AddComponent(&engine.VelocityComponent{})
	e.AddComponent(&engine.BulletComponent{OwnerID: ownerLocalEid})
	e.AddComponent(&engine.CircleColliderComponent{Radius: 4, Layer: layer})
	world.Update(0)
	return e
}

func (stubFactory) CreateEnemy(world *engine.World, serverEid uint64, enemyType, tier uint8) *engine.Entity {
	e := world.CreateEntity()
	e.AddComponent(&engine.PositionComponent{})
	e.AddComponent(&engine.VelocityComponent{})
	e.AddComponent(&engine.EnemyComponent{EnemyType: enemyType, Tier: engine.EnemyTier(tier)})
	e.AddComponent(&engine.EnemyAIComponent{})
	e.AddComponent(&engine.HealthComponent{Current: 30, Max: 30})
	world.Update(0)
	return e
}

func newIngestorTestSetup() (*engine.World, *EidMaps, *PredictedEntityTracker, *SnapshotIngestor) {
	world := engine.NewWorld()
	maps := NewEidMaps()
	tracker := NewPredictedEntityTracker(world)
	ing := NewSnapshotIngestor(maps, stubFactory{}, tracker)
	return world, maps, tracker, ing
}

func TestIngestorCreatesPlayerOnFirstSight(t *testing.T) {
	world, maps, _, ing := newIngestorTestSetup()

	ing.Apply(world, WorldSnapshot{
		Tick:    1,
		Players: []PlayerSnapshot{{Eid: 7, X: 10, Y: 20, HP: 100, MaxHP: 100}},
	})

	local, ok := maps.Players.LocalFor(7)
	if !ok {
		t.Fatal("expected server player 7 to be bound to a local entity")
	}
	entity, ok := world.GetEntity(local)
	if !ok {
		t.Fatal("expected the bound local entity to exist")
	}
	pos := entity.GetPosition()
	if pos.X != 10 || pos.Y != 20 {
		t.Errorf("expected position (10,20), got (%f,%f)", pos.X, pos.Y)
	}
}

func TestIngestorDestroysPlayerAbsentFromSnapshot(t *testing.T) {
	world, maps, _, ing := newIngestorTestSetup()

	ing.Apply(world, WorldSnapshot{Tick: 1, Players: []PlayerSnapshot{{Eid: 7}}})
	local, _ := maps.Players.LocalFor(7)

	ing.Apply(world, WorldSnapshot{Tick: 2, Players: nil})
	world.Update(0)

	if _, ok := world.GetEntity(local); ok {
		t.Error("expected player entity to be destroyed once absent from a snapshot")
	}
	if _, ok := maps.Players.LocalFor(7); ok {
		t.Error("expected the eid mapping to be removed alongside the entity")
	}
}

func TestIngestorClearsLocalIdentityWhenLocalPlayerVanishes(t *testing.T) {
	world, _, tracker, ing := newIngestorTestSetup()

	ing.Apply(world, WorldSnapshot{Tick: 1, Players: []PlayerSnapshot{{Eid: 7}}})
	ing.SetLocalPlayer(7)

	predicted := world.CreateEntity()
	predicted.AddComponent(&engine.PositionComponent{})
	world.Update(0)
	tracker.TrackNewBullet(predicted, 7, 1, 1)

	ing.Apply(world, WorldSnapshot{Tick: 2, Players: nil})
	world.Update(0)

	if ing.LocalPlayerServerEid != 0 {
		t.Error("losing the local player should clear the local identity")
	}
	if tracker.Pending() != 0 {
		t.Error("losing the local player should tear down predicted bullets")
	}
	if _, ok := world.GetEntity(predicted.ID); ok {
		t.Error("predicted bullet entity should be destroyed with the local player")
	}
}

func TestIngestorAdoptsPredictedBulletInsteadOfDuplicating(t *testing.T) {
	world, maps, tracker, ing := newIngestorTestSetup()

	ing.Apply(world, WorldSnapshot{Tick: 1, Players: []PlayerSnapshot{{Eid: 1, X: 100, Y: 100}}})
	ing.SetLocalPlayer(1)

	predicted := world.CreateEntity()
	predicted.AddComponent(&engine.PositionComponent{X: 100, Y: 100})
	predicted.AddComponent(&engine.VelocityComponent{})
	world.Update(0)
	tracker.TrackNewBullet(predicted, 1, 0, 1)

	ing.Apply(world, WorldSnapshot{
		Tick:    2,
		Players: []PlayerSnapshot{{Eid: 1, X: 100, Y: 100}},
		Bullets: []BulletSnapshot{{Eid: 500, OwnerEid: 1, X: 104, Y: 98, Layer: engine.LayerPlayerBullet}},
	})

	local, ok := maps.Bullets.LocalFor(500)
	if !ok {
		t.Fatal("expected the server bullet to be bound to a local entity")
	}
	if local != predicted.ID {
		t.Errorf("expected adoption to reuse the predicted entity %d, got %d", predicted.ID, local)
	}
	if tracker.Pending() != 0 {
		t.Error("adopted bullet should no longer be pending")
	}
	if !tracker.IsLocalTimeline(predicted.ID) {
		t.Error("adopted bullet should stay on the local timeline")
	}

	count := 0
	for _, e := range world.GetEntities() {
		if e.GetPosition() != nil && e.HasComponent("velocity") && !e.HasComponent("player") {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one bullet entity after adoption, found %d", count)
	}
}

func TestIngestorMarksLocalPlayersServerBulletsLocalTimeline(t *testing.T) {
	world, maps, tracker, ing := newIngestorTestSetup()

	ing.Apply(world, WorldSnapshot{Tick: 1, Players: []PlayerSnapshot{{Eid: 1}, {Eid: 2}}})
	ing.SetLocalPlayer(1)

	ing.Apply(world, WorldSnapshot{
		Tick:    2,
		Players: []PlayerSnapshot{{Eid: 1}, {Eid: 2}},
		Bullets: []BulletSnapshot{
			{Eid: 500, OwnerEid: 1, X: 999, Y: 999, Layer: engine.LayerPlayerBullet},
			{Eid: 501, OwnerEid: 2, X: 0, Y: 0, Layer: engine.LayerPlayerBullet},
		},
	})

	mine, _ := maps.Bullets.LocalFor(500)
	theirs, _ := maps.Bullets.LocalFor(501)
	if !tracker.IsLocalTimeline(mine) {
		t.Error("a server bullet owned by the local player should be local-timeline")
	}
	if tracker.IsLocalTimeline(theirs) {
		t.Error("a remote player's bullet must ride the interpolation delay")
	}
}

func TestIngestorRemapsBulletOwnerToLocalEid(t *testing.T) {
	world, maps, _, ing := newIngestorTestSetup()

	ing.Apply(world, WorldSnapshot{Tick: 1, Players: []PlayerSnapshot{{Eid: 9}}})
	ownerLocal, _ := maps.Players.LocalFor(9)

	ing.Apply(world, WorldSnapshot{
		Tick:    2,
		Players: []PlayerSnapshot{{Eid: 9}},
		Bullets: []BulletSnapshot{{Eid: 500, OwnerEid: 9, Layer: engine.LayerPlayerBullet}},
	})

	bulletLocal, _ := maps.Bullets.LocalFor(500)
	entity, _ := world.GetEntity(bulletLocal)
	bc, _ := entity.GetComponent("bullet")
	if got := bc.(*engine.BulletComponent).OwnerID; got != ownerLocal {
		t.Errorf("bullet OwnerID = %d, want remapped local eid %d", got, ownerLocal)
	}
}

func TestIngestorCreatesEnemyWithConservativeDefaultsForUnknownType(t *testing.T) {
	world, maps, _, ing := newIngestorTestSetup()

	ing.Apply(world, WorldSnapshot{
		Tick:    1,
		Enemies: []EnemySnapshot{{Eid: 9, X: 1, Y: 2, HP: 30, MaxHP: 30, EnemyType: 255, Tier: 0}},
	})

	local, ok := maps.Enemies.LocalFor(9)
	if !ok {
		t.Fatal("expected enemy to be created even for an unrecognised type")
	}
	entity, _ := world.GetEntity(local)
	hc := entity.GetHealth()
	if hc == nil || hc.Current != 30 {
		t.Errorf("expected enemy health to be seeded from the snapshot, got %+v", hc)
	}
}

func TestIngestorRemapsEnemyAITarget(t *testing.T) {
	world, maps, _, ing := newIngestorTestSetup()

	ing.Apply(world, WorldSnapshot{Tick: 1, Players: []PlayerSnapshot{{Eid: 7}}})
	playerLocal, _ := maps.Players.LocalFor(7)

	ing.Apply(world, WorldSnapshot{
		Tick:    2,
		Players: []PlayerSnapshot{{Eid: 7}},
		Enemies: []EnemySnapshot{{Eid: 9, HP: 30, MaxHP: 30, AiState: 2, TargetEid: 7}},
	})

	local, _ := maps.Enemies.LocalFor(9)
	entity, _ := world.GetEntity(local)
	ac, _ := entity.GetComponent("enemy_ai")
	ai := ac.(*engine.EnemyAIComponent)
	if ai.State != 2 {
		t.Errorf("AI state = %d, want 2", ai.State)
	}
	if ai.TargetEid != playerLocal {
		t.Errorf("AI target = %d, want remapped local eid %d", ai.TargetEid, playerLocal)
	}
}

func TestIngestorEstimatesEnemyVelocityFromSnapshots(t *testing.T) {
	world, maps, _, ing := newIngestorTestSetup()

	ing.Apply(world, WorldSnapshot{
		Tick: 1, ServerTimeMs: 1000,
		Enemies: []EnemySnapshot{{Eid: 9, X: 0, Y: 0, HP: 30, MaxHP: 30}},
	})
	ing.Apply(world, WorldSnapshot{
		Tick: 2, ServerTimeMs: 1050,
		Enemies: []EnemySnapshot{{Eid: 9, X: 5, Y: -5, HP: 30, MaxHP: 30}},
	})

	local, _ := maps.Enemies.LocalFor(9)
	entity, _ := world.GetEntity(local)
	vel := entity.GetVelocity()
	// 5 units over 50ms = 100 units/s.
	if vel.VX != 100 || vel.VY != -100 {
		t.Errorf("estimated velocity = (%f, %f), want (100, -100)", vel.VX, vel.VY)
	}
}

func TestIngestorKeepsLowerOptimisticEnemyHPWhenServerHPUnchanged(t *testing.T) {
	world, maps, _, ing := newIngestorTestSetup()

	ing.Apply(world, WorldSnapshot{
		Tick:    1,
		Enemies: []EnemySnapshot{{Eid: 9, HP: 30, MaxHP: 30}},
	})
	local, _ := maps.Enemies.LocalFor(9)
	entity, _ := world.GetEntity(local)

	// Client predicts a hit the server hasn't registered yet.
	entity.GetHealth().Current = 15

	ing.Apply(world, WorldSnapshot{
		Tick:    2,
		Enemies: []EnemySnapshot{{Eid: 9, HP: 30, MaxHP: 30}},
	})

	if got := entity.GetHealth().Current; got != 15 {
		t.Errorf("expected optimistic local HP 15 to be preserved, got %f", got)
	}
}

func TestIngestorOverwritesEnemyHPWhenServerValueChanges(t *testing.T) {
	world, maps, _, ing := newIngestorTestSetup()

	ing.Apply(world, WorldSnapshot{
		Tick:    1,
		Enemies: []EnemySnapshot{{Eid: 9, HP: 30, MaxHP: 30}},
	})
	local, _ := maps.Enemies.LocalFor(9)
	entity, _ := world.GetEntity(local)
	entity.GetHealth().Current = 15

	ing.Apply(world, WorldSnapshot{
		Tick:    2,
		Enemies: []EnemySnapshot{{Eid: 9, HP: 12, MaxHP: 30}},
	})

	if got := entity.GetHealth().Current; got != 12 {
		t.Errorf("expected server-registered HP 12 to overwrite, got %f", got)
	}
}

func TestIngestorSyncsDeadAndInvincibleFromFlags(t *testing.T) {
	world, maps, _, ing := newIngestorTestSetup()

	ing.Apply(world, WorldSnapshot{
		Tick:    1,
		Players: []PlayerSnapshot{{Eid: 7, HP: 0, MaxHP: 100, Flags: FlagDead | FlagInvincible}},
	})

	local, _ := maps.Players.LocalFor(7)
	entity, _ := world.GetEntity(local)
	if !entity.HasComponent("dead") || !entity.HasComponent("invincible") {
		t.Error("expected dead+invincible tags from the snapshot flags")
	}

	ing.Apply(world, WorldSnapshot{
		Tick:    2,
		Players: []PlayerSnapshot{{Eid: 7, HP: 100, MaxHP: 100}},
	})
	if entity.HasComponent("dead") || entity.HasComponent("invincible") {
		t.Error("expected cleared flags to remove the tags again")
	}
}

func TestIngestorAppliesRemoteLocomotionState(t *testing.T) {
	world, maps, _, ing := newIngestorTestSetup()

	ing.Apply(world, WorldSnapshot{
		Tick: 1,
		Players: []PlayerSnapshot{{
			Eid: 7, State: uint8(engine.PlayerJumping), Z: 10, ZVelocity: 50,
			ShowdownActive: true, ShowdownTargetEid: 7,
		}},
	})

	local, _ := maps.Players.LocalFor(7)
	entity, _ := world.GetEntity(local)
	sc, _ := entity.GetComponent("player_state")
	if sc.(*engine.PlayerStateComponent).Kind != engine.PlayerJumping {
		t.Error("remote player state kind should come from the snapshot")
	}
	zc, _ := entity.GetComponent("zposition")
	z := zc.(*engine.ZPositionComponent)
	if z.Z != 10 || z.ZVelocity != 50 {
		t.Errorf("remote z state = (%f, %f), want (10, 50)", z.Z, z.ZVelocity)
	}
	sd, _ := entity.GetComponent("showdown")
	showdown := sd.(*engine.ShowdownComponent)
	if !showdown.Active || showdown.TargetEid != local {
		t.Errorf("showdown = %+v, want active with remapped target %d", *showdown, local)
	}
}

func TestIngestorResolvesRemoteCharacterWithFallback(t *testing.T) {
	world, _, _, ing := newIngestorTestSetup()

	roster := map[uint64]uint8{}
	ing.ResolveCharacter = func(serverEid uint64) (uint8, bool) {
		id, ok := roster[serverEid]
		return id, ok
	}

	// Before any roster arrives the placeholder id is used.
	if got := ing.characterFor(7); got != DefaultCharacterID {
		t.Errorf("characterFor before roster = %d, want default %d", got, DefaultCharacterID)
	}

	roster[7] = 3
	if got := ing.characterFor(7); got != 3 {
		t.Errorf("characterFor with roster = %d, want 3", got)
	}

	// The roster losing the entry falls back to the last-known id.
	delete(roster, 7)
	if got := ing.characterFor(7); got != 3 {
		t.Errorf("characterFor after roster loss = %d, want last-known 3", got)
	}

	_ = world
}

func TestIngestorLeavesLocalPlayerPositionToReconciler(t *testing.T) {
	world, maps, _, ing := newIngestorTestSetup()

	ing.Apply(world, WorldSnapshot{
		Tick:    1,
		Players: []PlayerSnapshot{{Eid: 7, X: 10, Y: 20, AimAngle: 1.0, HP: 100, MaxHP: 100}},
	})
	ing.SetLocalPlayer(7)

	local, _ := maps.Players.LocalFor(7)
	entity, _ := world.GetEntity(local)
	entity.GetPosition().X, entity.GetPosition().Y = 500, 500
	pc, _ := entity.GetComponent("player")
	pc.(*engine.PlayerComponent).AimAngle = 2.5

	ing.Apply(world, WorldSnapshot{
		Tick:    2,
		Players: []PlayerSnapshot{{Eid: 7, X: 10, Y: 20, AimAngle: 1.0, HP: 100, MaxHP: 100}},
	})

	pos := entity.GetPosition()
	if pos.X != 500 || pos.Y != 500 {
		t.Errorf("expected local player position to be left untouched at (500,500), got (%f,%f)", pos.X, pos.Y)
	}
	if pc.(*engine.PlayerComponent).AimAngle != 2.5 {
		t.Errorf("expected local player aim angle to be left untouched, got %f", pc.(*engine.PlayerComponent).AimAngle)
	}
}

func TestIngestorKeepsDerivedCollectionsWithRemappedOwners(t *testing.T) {
	world, maps, _, ing := newIngestorTestSetup()

	ing.Apply(world, WorldSnapshot{Tick: 1, Players: []PlayerSnapshot{{Eid: 7}}})
	playerLocal, _ := maps.Players.LocalFor(7)

	ing.Apply(world, WorldSnapshot{
		Tick:     2,
		Players:  []PlayerSnapshot{{Eid: 7}},
		Zones:    []LastRitesZoneSnapshot{{Eid: 40, OwnerEid: 7, X: 1, Y: 2, Radius: 50, Duration: 3}},
		Dynamite: []DynamiteSnapshot{{Eid: 41, OwnerEid: 7, X: 3, Y: 4, FuseTime: 1.5}},
	})

	if len(ing.Zones) != 1 || ing.Zones[0].OwnerEid != playerLocal {
		t.Errorf("zones = %+v, want one zone owned by local eid %d", ing.Zones, playerLocal)
	}
	if len(ing.Dynamite) != 1 || ing.Dynamite[0].OwnerEid != playerLocal {
		t.Errorf("dynamite = %+v, want one stick owned by local eid %d", ing.Dynamite, playerLocal)
	}
}

func TestIngestorCleansUpExpiredPredictedBulletsEveryApply(t *testing.T) {
	world, _, tracker, ing := newIngestorTestSetup()

	predicted := world.CreateEntity()
	predicted.AddComponent(&engine.PositionComponent{})
	predicted.AddComponent(&engine.VelocityComponent{})
	world.Update(0)
	tracker.TrackNewBullet(predicted, 1, 0, 1)

	ing.Apply(world, WorldSnapshot{Tick: PredictedBulletTimeoutTicks + 2})
	world.Update(0)

	if tracker.Pending() != 0 {
		t.Error("expected the stale predicted bullet to be cleaned up by Apply")
	}
	if _, ok := world.GetEntity(predicted.ID); ok {
		t.Error("expected the stale predicted bullet entity to be removed")
	}
}
