package netcode

import (
	"testing"
	"time"
)

func TestLagCompensatorValidatesHitWithinRadius(t *testing.T) {
	lc := NewLagCompensator(DefaultLagCompensationConfig())
	lc.RecordSnapshot(WorldSnapshot{ServerTimeMs: 1000, Enemies: []EnemySnapshot{{Eid: 5, X: 100, Y: 100}}})
	lc.RecordSnapshot(WorldSnapshot{ServerTimeMs: 1100, Enemies: []EnemySnapshot{{Eid: 5, X: 200, Y: 100}}})

	ok, err := lc.ValidateHit(1100, 5, 100, 100, 80*time.Millisecond, 20)
	if err != nil {
		t.Fatalf("ValidateHit: %v", err)
	}
	if !ok {
		t.Error("expected hit validated against the enemy's historical position")
	}
}

func TestLagCompensatorRejectsHitOutsideRadius(t *testing.T) {
	lc := NewLagCompensator(DefaultLagCompensationConfig())
	lc.RecordSnapshot(WorldSnapshot{ServerTimeMs: 1000, Enemies: []EnemySnapshot{{Eid: 5, X: 100, Y: 100}}})

	ok, err := lc.ValidateHit(1000, 5, 500, 500, 10*time.Millisecond, 20)
	if err != nil {
		t.Fatalf("ValidateHit: %v", err)
	}
	if ok {
		t.Error("expected hit rejected, target was far from the claimed hit point")
	}
}

func TestLagCompensatorUnknownTargetErrors(t *testing.T) {
	lc := NewLagCompensator(DefaultLagCompensationConfig())
	lc.RecordSnapshot(WorldSnapshot{ServerTimeMs: 1000})

	_, err := lc.ValidateHit(1000, 999, 0, 0, 10*time.Millisecond, 20)
	if err == nil {
		t.Error("expected an error for a target absent from the rewound snapshot")
	}
}

func TestLagCompensatorClampsLatency(t *testing.T) {
	cfg := LagCompensationConfig{MaxCompensation: 100 * time.Millisecond, MinCompensation: 10 * time.Millisecond, HistorySize: 10}
	lc := NewLagCompensator(cfg)
	lc.RecordSnapshot(WorldSnapshot{ServerTimeMs: 1000})

	result := lc.RewindToTime(2000, 5*time.Second)
	if !result.WasClamped {
		t.Error("expected latency above MaxCompensation to be clamped")
	}
	if result.ActualLatencyMs != 100 {
		t.Errorf("ActualLatencyMs = %d, want 100", result.ActualLatencyMs)
	}
}

func TestLagCompensatorHistoryEviction(t *testing.T) {
	lc := NewLagCompensator(LagCompensationConfig{HistorySize: 2, MaxCompensation: time.Second, MinCompensation: time.Millisecond})
	lc.RecordSnapshot(WorldSnapshot{ServerTimeMs: 1})
	lc.RecordSnapshot(WorldSnapshot{ServerTimeMs: 2})
	lc.RecordSnapshot(WorldSnapshot{ServerTimeMs: 3})

	if lc.Len() != 2 {
		t.Errorf("Len() = %d, want 2", lc.Len())
	}
}
