package netcode

// DefaultSnapshotBufferSize is the bounded FIFO depth for buffered
// snapshots, matching the spec's default of 5.
const DefaultSnapshotBufferSize = 5

// DefaultInterpolationDelayMs is the default render delay behind the query
// time, giving the buffer room to smooth over jitter.
const DefaultInterpolationDelayMs = 100

// bufferedSnapshot pairs a WorldSnapshot with the local receive time it
// arrived at, since interpolation must walk both the server's tick-time
// domain (for picking bracketing snapshots) and local receive-time domain
// (for detecting stalls when the network stops delivering).
type bufferedSnapshot struct {
	snapshot     WorldSnapshot
	receivedAtMs int64
}

// SnapshotBuffer holds the last few authoritative snapshots received from
// the server and produces an interpolated view of the world for rendering,
// its configured delay behind the query time.
type SnapshotBuffer struct {
	capacity int
	delayMs  int64
	buffer   []bufferedSnapshot
}

// NewSnapshotBuffer creates a buffer with the given capacity and
// interpolation delay (milliseconds). A negative delay selects
// DefaultInterpolationDelayMs; a zero delay renders at the query time itself.
func NewSnapshotBuffer(capacity int, delayMs int64) *SnapshotBuffer {
	if capacity <= 0 {
		capacity = DefaultSnapshotBufferSize
	}
	if delayMs < 0 {
		delayMs = DefaultInterpolationDelayMs
	}
	return &SnapshotBuffer{capacity: capacity, delayMs: delayMs, buffer: make([]bufferedSnapshot, 0, capacity)}
}

// Push appends a newly received snapshot, evicting the oldest if the
// buffer is at capacity. Snapshots must be pushed in ascending ServerTimeMs
// order; out-of-order arrivals are dropped rather than breaking the
// bracketing invariant InterpolationState relies on.
func (b *SnapshotBuffer) Push(snapshot WorldSnapshot, receivedAtMs int64) {
	if len(b.buffer) > 0 && snapshot.ServerTimeMs <= b.buffer[len(b.buffer)-1].snapshot.ServerTimeMs {
		return
	}
	if len(b.buffer) >= b.capacity {
		copy(b.buffer, b.buffer[1:])
		b.buffer = b.buffer[:len(b.buffer)-1]
	}
	b.buffer = append(b.buffer, bufferedSnapshot{snapshot: snapshot, receivedAtMs: receivedAtMs})
}

// Len reports how many snapshots are currently buffered.
func (b *SnapshotBuffer) Len() int {
	return len(b.buffer)
}

// Latest returns the most recently buffered snapshot, if any.
func (b *SnapshotBuffer) Latest() (WorldSnapshot, bool) {
	if len(b.buffer) == 0 {
		return WorldSnapshot{}, false
	}
	return b.buffer[len(b.buffer)-1].snapshot, true
}

// InterpolationState is the pair of snapshots to interpolate between, and
// the fraction (0..1) of the way from From to To the render time falls.
type InterpolationState struct {
	From, To WorldSnapshot
	Alpha    float64
	// Stale reports whether the buffer had to clamp to its newest snapshot
	// because the render time has outrun delivery (a stall).
	Stale bool
}

// GetInterpolationState computes the render-time bracket for nowMs in the
// local receive-time domain, rendering b.delayMs behind nowMs.
// This is the fallback domain used until clock sync converges; its
// timestamps carry network jitter the server-time domain doesn't. Returns
// false if fewer than two snapshots have been buffered yet.
func (b *SnapshotBuffer) GetInterpolationState(nowMs int64) (InterpolationState, bool) {
	return b.bracket(nowMs-b.delayMs, func(e bufferedSnapshot) int64 { return e.receivedAtMs })
}

// GetInterpolationStateAtServerTime computes the bracket for the estimated
// server time serverNowMs, using each snapshot's authoritative ServerTimeMs
// stamp instead of local receive time. Used once clock sync has converged;
// a bracket never mixes the two time domains.
func (b *SnapshotBuffer) GetInterpolationStateAtServerTime(serverNowMs int64) (InterpolationState, bool) {
	return b.bracket(serverNowMs-b.delayMs, func(e bufferedSnapshot) int64 { return e.snapshot.ServerTimeMs })
}

func (b *SnapshotBuffer) bracket(renderTime int64, timeOf func(bufferedSnapshot) int64) (InterpolationState, bool) {
	if len(b.buffer) < 2 {
		return InterpolationState{}, false
	}

	// Clamp to the oldest pair if we're behind everything buffered.
	if renderTime <= timeOf(b.buffer[0]) {
		return InterpolationState{From: b.buffer[0].snapshot, To: b.buffer[1].snapshot, Alpha: 0}, true
	}

	last := len(b.buffer) - 1
	if renderTime >= timeOf(b.buffer[last]) {
		return InterpolationState{
			From:  b.buffer[last-1].snapshot,
			To:    b.buffer[last].snapshot,
			Alpha: 1,
			Stale: true,
		}, true
	}

	for i := 0; i < last; i++ {
		from := b.buffer[i]
		to := b.buffer[i+1]
		if renderTime >= timeOf(from) && renderTime <= timeOf(to) {
			span := timeOf(to) - timeOf(from)
			// A zero-width bracket resolves to its newer side.
			alpha := 1.0
			if span > 0 {
				alpha = float64(renderTime-timeOf(from)) / float64(span)
			}
			return InterpolationState{From: from.snapshot, To: to.snapshot, Alpha: alpha}, true
		}
	}

	// Unreachable given the clamps above, but keep a safe fallback.
	return InterpolationState{From: b.buffer[last-1].snapshot, To: b.buffer[last].snapshot, Alpha: 1}, true
}

// Clear empties the buffer, used on session resume/reset.
func (b *SnapshotBuffer) Clear() {
	b.buffer = b.buffer[:0]
}
