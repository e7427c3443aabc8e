// Package netcode: input buffering and acknowledgement.
package netcode

import "sort"

// Button bitmask values. These mirror pkg/engine's Button* constants but
// are redefined here because the wire format (NetworkInput) must be
// decodable without importing pkg/engine.
const (
	ButtonMoveUp uint16 = 1 << iota
	ButtonMoveDown
	ButtonMoveLeft
	ButtonMoveRight
	ButtonShoot
	ButtonRoll
	ButtonReload
	ButtonAbility
	ButtonJump
	ButtonDebugSpawn
)

// NetworkInput is one tick's player input, extended with the bookkeeping
// fields the client attaches before sending and the server echoes back in
// acknowledgements.
type NetworkInput struct {
	Buttons      uint16
	AimAngle     float64
	MoveX        float64
	MoveY        float64
	CursorWorldX float64
	CursorWorldY float64

	Seq                   uint32
	ClientTick            uint32
	ClientTimeMs          int64
	EstimatedServerTimeMs int64
	ViewInterpDelayMs     int64
	ShootSeq              uint32
}

// DefaultInputBufferCapacity is the minimum buffer size the spec requires
// (enough to cover a player at 60 ticks/s with over 2 seconds of latency).
const DefaultInputBufferCapacity = 128

// InputBuffer holds unacknowledged inputs in ascending sequence order, used
// by the client to replay inputs the server has not yet confirmed.
type InputBuffer struct {
	capacity int
	inputs   []NetworkInput
}

// NewInputBuffer creates a buffer with the given capacity. Capacities below
// DefaultInputBufferCapacity are raised to it.
func NewInputBuffer(capacity int) *InputBuffer {
	if capacity < DefaultInputBufferCapacity {
		capacity = DefaultInputBufferCapacity
	}
	return &InputBuffer{capacity: capacity, inputs: make([]NetworkInput, 0, capacity)}
}

// Push appends an input, evicting the oldest entry (FIFO) if the buffer is
// at capacity. Inputs must be pushed in ascending Seq order.
func (b *InputBuffer) Push(input NetworkInput) {
	if len(b.inputs) >= b.capacity {
		copy(b.inputs, b.inputs[1:])
		b.inputs = b.inputs[:len(b.inputs)-1]
	}
	b.inputs = append(b.inputs, input)
}

// AcknowledgeUpTo discards every buffered input with Seq <= ackedSeq. It
// uses binary search since inputs are kept in ascending Seq order.
func (b *InputBuffer) AcknowledgeUpTo(ackedSeq uint32) {
	idx := sort.Search(len(b.inputs), func(i int) bool {
		return b.inputs[i].Seq > ackedSeq
	})
	b.inputs = b.inputs[idx:]
}

// GetPending returns every input still buffered (i.e. not yet acknowledged),
// in ascending Seq order. The slice is a copy; callers can hold or mutate
// it without corrupting the buffer.
func (b *InputBuffer) GetPending() []NetworkInput {
	pending := make([]NetworkInput, len(b.inputs))
	copy(pending, b.inputs)
	return pending
}

// Len reports how many inputs are currently buffered.
func (b *InputBuffer) Len() int {
	return len(b.inputs)
}

// Clear empties the buffer, used when a session is dropped or resumed from
// a fresh join rather than a resume.
func (b *InputBuffer) Clear() {
	b.inputs = b.inputs[:0]
}
