package netcode

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// LagCompensationConfig configures the server-side rewind window.
type LagCompensationConfig struct {
	// MaxCompensation is the maximum latency the server will rewind for.
	MaxCompensation time.Duration
	// MinCompensation is the minimum latency worth compensating; latencies
	// below this are treated as negligible.
	MinCompensation time.Duration
	// HistorySize is how many authoritative snapshots to retain.
	HistorySize int
}

// DefaultLagCompensationConfig matches typical internet play latency.
func DefaultLagCompensationConfig() LagCompensationConfig {
	return LagCompensationConfig{
		MaxCompensation: 500 * time.Millisecond,
		MinCompensation: 10 * time.Millisecond,
		HistorySize:     100,
	}
}

// LagCompensator rewinds the server's authoritative history to the time a
// shooting player actually saw the world, so hit validation is judged
// against what that player saw rather than the server's current state.
// Adapted from the engine's inherited lag-compensation design: it keeps a
// ring of WorldSnapshot rather than per-entity component blobs, since the
// twin-stick domain's hit validation only needs player/enemy positions.
type LagCompensator struct {
	mu sync.RWMutex

	history         []WorldSnapshot
	maxCompensation time.Duration
	minCompensation time.Duration
	historySize     int
}

// NewLagCompensator creates a compensator with the given configuration.
func NewLagCompensator(config LagCompensationConfig) *LagCompensator {
	if config.HistorySize <= 0 {
		config.HistorySize = 100
	}
	return &LagCompensator{
		history:         make([]WorldSnapshot, 0, config.HistorySize),
		maxCompensation: config.MaxCompensation,
		minCompensation: config.MinCompensation,
		historySize:     config.HistorySize,
	}
}

// RecordSnapshot appends the server's latest authoritative snapshot to the
// rewind history, evicting the oldest entry once full. Snapshots must be
// recorded in ascending ServerTimeMs order.
func (lc *LagCompensator) RecordSnapshot(snapshot WorldSnapshot) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if len(lc.history) >= lc.historySize {
		copy(lc.history, lc.history[1:])
		lc.history = lc.history[:len(lc.history)-1]
	}
	lc.history = append(lc.history, snapshot)
}

// RewindResult is the outcome of rewinding history to a compensated time.
type RewindResult struct {
	Snapshot        WorldSnapshot
	Found           bool
	CompensatedMs   int64
	ActualLatencyMs int64
	WasClamped      bool
}

// RewindToTime finds the snapshot closest to nowMs-playerLatency, clamping
// playerLatency to [MinCompensation, MaxCompensation] first.
func (lc *LagCompensator) RewindToTime(nowMs int64, playerLatency time.Duration) RewindResult {
	lc.mu.RLock()
	defer lc.mu.RUnlock()

	clamped := false
	latency := playerLatency
	if latency > lc.maxCompensation {
		latency = lc.maxCompensation
		clamped = true
	}
	if latency < lc.minCompensation {
		latency = lc.minCompensation
		clamped = true
	}

	compensatedMs := nowMs - latency.Milliseconds()

	if len(lc.history) == 0 {
		return RewindResult{CompensatedMs: compensatedMs, ActualLatencyMs: latency.Milliseconds(), WasClamped: clamped}
	}

	best := lc.history[0]
	bestDiff := absInt64(best.ServerTimeMs - compensatedMs)
	for _, snap := range lc.history[1:] {
		diff := absInt64(snap.ServerTimeMs - compensatedMs)
		if diff < bestDiff {
			best, bestDiff = snap, diff
		}
	}

	return RewindResult{
		Snapshot:        best,
		Found:           true,
		CompensatedMs:   compensatedMs,
		ActualLatencyMs: latency.Milliseconds(),
		WasClamped:      clamped,
	}
}

// ValidateHit reports whether a claimed hit at hitX/hitY against targetEid
// is plausible given attackerLatency: it rewinds history to the time the
// attacker saw the world and checks the target's historical position was
// within hitRadius of the claimed hit point.
func (lc *LagCompensator) ValidateHit(nowMs int64, targetEid uint64, hitX, hitY float64, attackerLatency time.Duration, hitRadius float64) (bool, error) {
	rewind := lc.RewindToTime(nowMs, attackerLatency)
	if !rewind.Found {
		return false, fmt.Errorf("netcode: no snapshot history available to validate hit")
	}

	for _, p := range rewind.Snapshot.Players {
		if p.Eid != targetEid {
			continue
		}
		return withinRadius(hitX, hitY, p.X, p.Y, hitRadius), nil
	}
	for _, e := range rewind.Snapshot.Enemies {
		if e.Eid != targetEid {
			continue
		}
		return withinRadius(hitX, hitY, e.X, e.Y, hitRadius), nil
	}

	return false, fmt.Errorf("netcode: target entity %d did not exist at compensated time", targetEid)
}

func withinRadius(ax, ay, bx, by, radius float64) bool {
	dx := ax - bx
	dy := ay - by
	return math.Hypot(dx, dy) <= radius
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// Len reports how many snapshots are currently retained.
func (lc *LagCompensator) Len() int {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return len(lc.history)
}

// Clear discards all retained history.
func (lc *LagCompensator) Clear() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.history = lc.history[:0]
}
