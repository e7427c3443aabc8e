package netcode

import (
	"testing"

	"github.com/hollowtick/skirmish/pkg/engine"
)

func newBulletEntity(world *engine.World, x, y float64) *engine.Entity {
	e := world.CreateEntity()
	e.AddComponent(&engine.PositionComponent{X: x, Y: y})
	e.AddComponent(&engine.VelocityComponent{})
	world.Update(0)
	return e
}

func playerBulletSnapshot(owner uint64, x, y float64) BulletSnapshot {
	return BulletSnapshot{OwnerEid: owner, X: x, Y: y, Layer: engine.LayerPlayerBullet}
}

func TestPredictedEntityTrackerAdoptsWithinTolerance(t *testing.T) {
	world := engine.NewWorld()
	tracker := NewPredictedEntityTracker(world)

	bullet := newBulletEntity(world, 100, 100)
	tracker.TrackNewBullet(bullet, 1, 0, 1)

	// dist ≈ 4.47, rtt 100ms → tolerance 40 + 24 = 64.
	adopted := tracker.TryAdopt(playerBulletSnapshot(1, 104, 98), 100)
	if adopted == nil {
		t.Fatal("expected adoption within tolerance")
	}
	if adopted.ID != bullet.ID {
		t.Error("adopted wrong entity")
	}
	if tracker.Pending() != 0 {
		t.Error("adopted bullet should be removed from pending")
	}
	if !tracker.IsLocalTimeline(bullet.ID) {
		t.Error("adopted bullet should stay local-timeline")
	}
}

func TestPredictedEntityTrackerToleranceScalesWithRTT(t *testing.T) {
	// At rtt 0 the primary radius is the 40px base; a 100px miss only
	// lands inside the 180px fallback, which still adopts. Past the
	// fallback nothing matches no matter the rtt.
	world := engine.NewWorld()
	tracker := NewPredictedEntityTracker(world)
	bullet := newBulletEntity(world, 0, 0)
	tracker.TrackNewBullet(bullet, 1, 0, 1)

	if got := adoptionTolerance(0); got != adoptionBaseTolerance {
		t.Errorf("adoptionTolerance(0) = %v, want %v", got, adoptionBaseTolerance)
	}
	if got := adoptionTolerance(100); got != 64 {
		t.Errorf("adoptionTolerance(100) = %v, want 64", got)
	}
	// 2s round trip saturates the cap.
	if got := adoptionTolerance(2000); got != adoptionBaseTolerance+adoptionRTTToleranceCap {
		t.Errorf("adoptionTolerance(2000) = %v, want %v", got, adoptionBaseTolerance+adoptionRTTToleranceCap)
	}

	if adopted := tracker.TryAdopt(playerBulletSnapshot(1, 100, 0), 0); adopted == nil {
		t.Error("100px miss should adopt via the fallback radius")
	}
}

func TestPredictedEntityTrackerRejectsOutsideFallback(t *testing.T) {
	world := engine.NewWorld()
	tracker := NewPredictedEntityTracker(world)

	bullet := newBulletEntity(world, 100, 100)
	tracker.TrackNewBullet(bullet, 1, 0, 1)

	adopted := tracker.TryAdopt(playerBulletSnapshot(1, 1000, 1000), 100)
	if adopted != nil {
		t.Fatal("expected no adoption outside the fallback radius")
	}
	if tracker.Pending() != 1 {
		t.Error("unmatched bullet should remain pending")
	}
}

func TestPredictedEntityTrackerRejectsWrongOwner(t *testing.T) {
	world := engine.NewWorld()
	tracker := NewPredictedEntityTracker(world)

	bullet := newBulletEntity(world, 100, 100)
	tracker.TrackNewBullet(bullet, 1, 0, 1)

	adopted := tracker.TryAdopt(playerBulletSnapshot(2, 100, 100), 100)
	if adopted != nil {
		t.Fatal("expected no adoption for a different owner")
	}
}

func TestPredictedEntityTrackerRejectsNonPlayerBulletLayer(t *testing.T) {
	world := engine.NewWorld()
	tracker := NewPredictedEntityTracker(world)

	bullet := newBulletEntity(world, 100, 100)
	tracker.TrackNewBullet(bullet, 1, 0, 1)

	snapshot := BulletSnapshot{OwnerEid: 1, X: 100, Y: 100, Layer: engine.LayerEnemyBullet}
	if adopted := tracker.TryAdopt(snapshot, 100); adopted != nil {
		t.Fatal("enemy bullets must never adopt a predicted player bullet")
	}
}

func TestPredictedEntityTrackerPicksNearestCandidate(t *testing.T) {
	world := engine.NewWorld()
	tracker := NewPredictedEntityTracker(world)

	far := newBulletEntity(world, 130, 100)
	near := newBulletEntity(world, 105, 100)
	tracker.TrackNewBullet(far, 1, 0, 1)
	tracker.TrackNewBullet(near, 1, 0, 2)

	adopted := tracker.TryAdopt(playerBulletSnapshot(1, 100, 100), 100)
	if adopted == nil || adopted.ID != near.ID {
		t.Fatal("expected the nearest pending bullet to win adoption")
	}
	if tracker.Pending() != 1 {
		t.Error("only the adopted bullet should leave the pending list")
	}
}

func TestPredictedEntityTrackerCleanupExpiresAfterTimeout(t *testing.T) {
	world := engine.NewWorld()
	tracker := NewPredictedEntityTracker(world)

	bullet := newBulletEntity(world, 0, 0)
	tracker.TrackNewBullet(bullet, 1, 0, 1)

	if removed := tracker.CleanupExpired(PredictedBulletTimeoutTicks); removed != 0 {
		t.Error("bullet should not expire exactly at the timeout boundary")
	}

	if removed := tracker.CleanupExpired(PredictedBulletTimeoutTicks + 1); removed != 1 {
		t.Error("bullet should expire once past the timeout")
	}
	if tracker.Pending() != 0 {
		t.Error("expired bullet should leave the pending list")
	}
	if tracker.IsLocalTimeline(bullet.ID) {
		t.Error("expired bullet should leave the local-timeline set")
	}
	world.Update(0)
	if _, ok := world.GetEntity(bullet.ID); ok {
		t.Error("expired bullet entity should be removed from the world")
	}
}

func TestPredictedEntityTrackerClearDestroysPending(t *testing.T) {
	world := engine.NewWorld()
	tracker := NewPredictedEntityTracker(world)

	bullet := newBulletEntity(world, 0, 0)
	tracker.TrackNewBullet(bullet, 1, 0, 1)

	tracker.Clear()
	if tracker.Pending() != 0 {
		t.Error("clear should empty the pending list")
	}
	world.Update(0)
	if _, ok := world.GetEntity(bullet.ID); ok {
		t.Error("clear should destroy still-predicted entities")
	}
}
