package netcode

// ClockSyncSampleCount is how many ping/pong round trips ClockSync keeps
// to smooth its RTT and offset estimates.
const ClockSyncSampleCount = 8

// ClockSyncConvergenceThresholdMs is the maximum allowed spread (largest
// minus smallest offset) across all kept samples for the estimate to be considered
// converged and safe to rely on for interpolation delay tuning.
const ClockSyncConvergenceThresholdMs = 40

type clockSample struct {
	rttMs    int64
	offsetMs int64
}

// ClockSync estimates the one-way offset between client and server clocks
// and the round-trip time, from a rolling window of ping/pong exchanges.
type ClockSync struct {
	samples []clockSample
}

// NewClockSync creates an empty estimator.
func NewClockSync() *ClockSync {
	return &ClockSync{samples: make([]clockSample, 0, ClockSyncSampleCount)}
}

// RecordPong records one ping/pong round trip: clientSendMs and
// clientRecvMs are the client's local clock readings when the ping was
// sent and the pong arrived; serverTimeMs is the server time the pong
// reported. The offset is estimated assuming the network delay is
// symmetric (half the round trip each way), the standard NTP-style
// approximation.
func (c *ClockSync) RecordPong(clientSendMs, clientRecvMs, serverTimeMs int64) {
	rtt := clientRecvMs - clientSendMs
	if rtt < 0 {
		rtt = 0
	}
	estimatedServerAtSend := serverTimeMs - rtt/2
	offset := estimatedServerAtSend - clientSendMs

	c.samples = append(c.samples, clockSample{rttMs: rtt, offsetMs: offset})
	if len(c.samples) > ClockSyncSampleCount {
		c.samples = c.samples[len(c.samples)-ClockSyncSampleCount:]
	}
}

// GetServerTime converts a local client timestamp to its estimated server
// time, using the median offset of the kept samples (median resists a
// single abnormally slow/fast round trip better than a mean would).
func (c *ClockSync) GetServerTime(clientTimeMs int64) int64 {
	return clientTimeMs + c.medianOffset()
}

// GetRTT returns the median round-trip time of the kept samples.
func (c *ClockSync) GetRTT() int64 {
	if len(c.samples) == 0 {
		return 0
	}
	rtts := make([]int64, len(c.samples))
	for i, s := range c.samples {
		rtts[i] = s.rttMs
	}
	return medianInt64(rtts)
}

// IsConverged reports whether enough samples have been collected and their
// offsets agree closely enough to be trusted.
func (c *ClockSync) IsConverged() bool {
	if len(c.samples) < ClockSyncSampleCount {
		return false
	}
	min, max := c.samples[0].offsetMs, c.samples[0].offsetMs
	for _, s := range c.samples {
		if s.offsetMs < min {
			min = s.offsetMs
		}
		if s.offsetMs > max {
			max = s.offsetMs
		}
	}
	return max-min <= ClockSyncConvergenceThresholdMs
}

func (c *ClockSync) medianOffset() int64 {
	if len(c.samples) == 0 {
		return 0
	}
	offsets := make([]int64, len(c.samples))
	for i, s := range c.samples {
		offsets[i] = s.offsetMs
	}
	return medianInt64(offsets)
}

func medianInt64(values []int64) int64 {
	sorted := append([]int64(nil), values...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	return sorted[len(sorted)/2]
}
