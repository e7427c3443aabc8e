package netcode

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// ProtocolVersion is the current wire protocol version byte. Bumped
// whenever WorldSnapshot's binary layout changes incompatibly.
const ProtocolVersion uint8 = 1

// PlayerSnapshot flag bits. Dead/invincible mirror component presence;
// the roll/jump edge bits carry the server's view of the *WasDown input
// edges so the reconciler can restore them after a rewind instead of
// re-triggering a roll or jump the player already performed.
const (
	FlagDead uint16 = 1 << iota
	FlagInvincible
	FlagRollEdge
	FlagJumpEdge
)

// PlayerSnapshot is one player's authoritative state as of a tick.
// LastProcessedSeq is the newest input sequence number the server had
// applied for this player when the snapshot was built; every recipient
// reads its own player record's value, so the snapshot itself can be
// broadcast unmodified.
type PlayerSnapshot struct {
	Eid          uint64
	X, Y         float64
	Z, ZVelocity float64
	VX, VY       float64
	AimAngle     float64
	State        uint8
	HP           float64
	MaxHP        float64
	Rounds       int32
	Slot         int32
	Flags        uint16

	LastProcessedSeq uint32

	RollElapsedMs  uint16
	RollDurationMs uint16
	RollDirX       float64
	RollDirY       float64

	ShowdownActive    bool
	ShowdownTargetEid uint64
}

// BulletSnapshot is one projectile's authoritative state. Layer carries the
// collision layer (engine.LayerPlayerBullet etc.) so the client can gate
// predicted-bullet adoption to player bullets only.
type BulletSnapshot struct {
	Eid      uint64
	OwnerEid uint64
	X, Y     float64
	VX, VY   float64
	Layer    uint8
}

// EnemySnapshot is one enemy's authoritative state. TargetEid is a server
// player eid; the ingestor remaps it to the local player entity id before
// writing it into the enemy's AI component.
type EnemySnapshot struct {
	Eid       uint64
	X, Y      float64
	HP        float64
	MaxHP     float64
	EnemyType uint8
	Tier      uint8
	AiState   uint8
	TargetEid uint64
}

// LastRitesZoneSnapshot describes an active showdown/ability zone.
type LastRitesZoneSnapshot struct {
	Eid      uint64
	OwnerEid uint64
	X, Y     float64
	Radius   float64
	Duration float64
}

// DynamiteSnapshot describes an in-flight or armed thrown explosive.
type DynamiteSnapshot struct {
	Eid      uint64
	OwnerEid uint64
	X, Y     float64
	FuseTime float64
	Armed    bool
}

// WorldSnapshot is the full authoritative world state sent from server to
// client on each broadcast tick.
type WorldSnapshot struct {
	ServerTimeMs int64
	Tick         uint32

	Players  []PlayerSnapshot
	Bullets  []BulletSnapshot
	Enemies  []EnemySnapshot
	Zones    []LastRitesZoneSnapshot
	Dynamite []DynamiteSnapshot
}

// EncodeWorldSnapshot serializes s into the binary wire format, prefixed
// with ProtocolVersion so a receiver on a different build can reject it
// cleanly instead of misparsing it.
func EncodeWorldSnapshot(s WorldSnapshot) []byte {
	buf := make([]byte, 0, 256+len(s.Players)*128+len(s.Bullets)*48+len(s.Enemies)*64)
	w := &byteWriter{buf: buf}

	w.u8(ProtocolVersion)
	w.u64(uint64(s.ServerTimeMs))
	w.u32(s.Tick)

	w.u32(uint32(len(s.Players)))
	for _, p := range s.Players {
		w.u64(p.Eid)
		w.f64(p.X)
		w.f64(p.Y)
		w.f64(p.Z)
		w.f64(p.ZVelocity)
		w.f64(p.VX)
		w.f64(p.VY)
		w.f64(p.AimAngle)
		w.u8(p.State)
		w.f64(p.HP)
		w.f64(p.MaxHP)
		w.i32(p.Rounds)
		w.i32(p.Slot)
		w.u16(p.Flags)
		w.u32(p.LastProcessedSeq)
		w.u16(p.RollElapsedMs)
		w.u16(p.RollDurationMs)
		w.f64(p.RollDirX)
		w.f64(p.RollDirY)
		w.bool(p.ShowdownActive)
		w.u64(p.ShowdownTargetEid)
	}

	w.u32(uint32(len(s.Bullets)))
	for _, b := range s.Bullets {
		w.u64(b.Eid)
		w.u64(b.OwnerEid)
		w.f64(b.X)
		w.f64(b.Y)
		w.f64(b.VX)
		w.f64(b.VY)
		w.u8(b.Layer)
	}

	w.u32(uint32(len(s.Enemies)))
	for _, e := range s.Enemies {
		w.u64(e.Eid)
		w.f64(e.X)
		w.f64(e.Y)
		w.f64(e.HP)
		w.f64(e.MaxHP)
		w.u8(e.EnemyType)
		w.u8(e.Tier)
		w.u8(e.AiState)
		w.u64(e.TargetEid)
	}

	w.u32(uint32(len(s.Zones)))
	for _, z := range s.Zones {
		w.u64(z.Eid)
		w.u64(z.OwnerEid)
		w.f64(z.X)
		w.f64(z.Y)
		w.f64(z.Radius)
		w.f64(z.Duration)
	}

	w.u32(uint32(len(s.Dynamite)))
	for _, d := range s.Dynamite {
		w.u64(d.Eid)
		w.u64(d.OwnerEid)
		w.f64(d.X)
		w.f64(d.Y)
		w.f64(d.FuseTime)
		w.bool(d.Armed)
	}

	return w.buf
}

// DecodeWorldSnapshot parses the binary wire format produced by
// EncodeWorldSnapshot. Returns ErrProtocolVersionMismatch if the payload's
// version byte does not match ProtocolVersion, and ErrMalformedSnapshot if
// the payload is truncated.
func DecodeWorldSnapshot(data []byte) (WorldSnapshot, error) {
	r := &byteReader{buf: data}

	version, err := r.u8()
	if err != nil {
		return WorldSnapshot{}, fmt.Errorf("netcode: decode version: %w", ErrMalformedSnapshot)
	}
	if version != ProtocolVersion {
		return WorldSnapshot{}, fmt.Errorf("%w: got %d, want %d", ErrProtocolVersionMismatch, version, ProtocolVersion)
	}

	var s WorldSnapshot
	serverTime, err := r.u64()
	if err != nil {
		return WorldSnapshot{}, wrapMalformed(err)
	}
	s.ServerTimeMs = int64(serverTime)

	if s.Tick, err = r.u32(); err != nil {
		return WorldSnapshot{}, wrapMalformed(err)
	}

	playerCount, err := r.u32()
	if err != nil {
		return WorldSnapshot{}, wrapMalformed(err)
	}
	s.Players = make([]PlayerSnapshot, playerCount)
	for i := range s.Players {
		p := &s.Players[i]
		if p.Eid, err = r.u64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if p.X, err = r.f64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if p.Y, err = r.f64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if p.Z, err = r.f64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if p.ZVelocity, err = r.f64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if p.VX, err = r.f64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if p.VY, err = r.f64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if p.AimAngle, err = r.f64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if p.State, err = r.u8(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if p.HP, err = r.f64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if p.MaxHP, err = r.f64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if p.Rounds, err = r.i32(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if p.Slot, err = r.i32(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if p.Flags, err = r.u16(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if p.LastProcessedSeq, err = r.u32(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if p.RollElapsedMs, err = r.u16(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if p.RollDurationMs, err = r.u16(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if p.RollDirX, err = r.f64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if p.RollDirY, err = r.f64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if p.ShowdownActive, err = r.boolean(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if p.ShowdownTargetEid, err = r.u64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
	}

	bulletCount, err := r.u32()
	if err != nil {
		return WorldSnapshot{}, wrapMalformed(err)
	}
	s.Bullets = make([]BulletSnapshot, bulletCount)
	for i := range s.Bullets {
		b := &s.Bullets[i]
		if b.Eid, err = r.u64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if b.OwnerEid, err = r.u64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if b.X, err = r.f64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if b.Y, err = r.f64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if b.VX, err = r.f64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if b.VY, err = r.f64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if b.Layer, err = r.u8(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
	}

	enemyCount, err := r.u32()
	if err != nil {
		return WorldSnapshot{}, wrapMalformed(err)
	}
	s.Enemies = make([]EnemySnapshot, enemyCount)
	for i := range s.Enemies {
		e := &s.Enemies[i]
		if e.Eid, err = r.u64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if e.X, err = r.f64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if e.Y, err = r.f64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if e.HP, err = r.f64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if e.MaxHP, err = r.f64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if e.EnemyType, err = r.u8(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if e.Tier, err = r.u8(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if e.AiState, err = r.u8(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if e.TargetEid, err = r.u64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
	}

	zoneCount, err := r.u32()
	if err != nil {
		return WorldSnapshot{}, wrapMalformed(err)
	}
	s.Zones = make([]LastRitesZoneSnapshot, zoneCount)
	for i := range s.Zones {
		z := &s.Zones[i]
		if z.Eid, err = r.u64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if z.OwnerEid, err = r.u64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if z.X, err = r.f64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if z.Y, err = r.f64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if z.Radius, err = r.f64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if z.Duration, err = r.f64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
	}

	dynamiteCount, err := r.u32()
	if err != nil {
		return WorldSnapshot{}, wrapMalformed(err)
	}
	s.Dynamite = make([]DynamiteSnapshot, dynamiteCount)
	for i := range s.Dynamite {
		d := &s.Dynamite[i]
		if d.Eid, err = r.u64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if d.OwnerEid, err = r.u64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if d.X, err = r.f64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if d.Y, err = r.f64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if d.FuseTime, err = r.f64(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
		if d.Armed, err = r.boolean(); err != nil {
			return WorldSnapshot{}, wrapMalformed(err)
		}
	}

	return s, nil
}

func wrapMalformed(err error) error {
	return fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
}

// byteWriter accumulates a big-endian encoded payload. Grounded in the
// engine's existing preference for encoding/binary over reflection-based
// codecs for hot-path wire data.
type byteWriter struct {
	buf []byte
}

func (w *byteWriter) u8(v uint8) { w.buf = append(w.buf, v) }

func (w *byteWriter) bool(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *byteWriter) u16(v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *byteWriter) u32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *byteWriter) i32(v int32) { w.u32(uint32(v)) }

func (w *byteWriter) u64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *byteWriter) f64(v float64) {
	w.u64(math.Float64bits(v))
}

// byteReader consumes a big-endian encoded payload produced by byteWriter.
type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) u8() (uint8, error) {
	if r.pos+1 > len(r.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *byteReader) boolean() (bool, error) {
	v, err := r.u8()
	return v != 0, err
}

func (r *byteReader) u16() (uint16, error) {
	if r.pos+2 > len(r.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *byteReader) u32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *byteReader) i32() (int32, error) {
	v, err := r.u32()
	return int32(v), err
}

func (r *byteReader) u64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *byteReader) f64() (float64, error) {
	bits, err := r.u64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}
