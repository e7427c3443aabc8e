package netcode

import "testing"

func TestClockSyncNotConvergedBeforeEnoughSamples(t *testing.T) {
	c := NewClockSync()
	c.RecordPong(1000, 1100, 1050)
	if c.IsConverged() {
		t.Error("should not be converged with a single sample")
	}
}

func TestClockSyncConvergesWithStableSamples(t *testing.T) {
	c := NewClockSync()
	for i := 0; i < ClockSyncSampleCount; i++ {
		base := int64(1000 + i*16)
		c.RecordPong(base, base+40, base+20+500) // stable rtt=40, offset~500
	}
	if !c.IsConverged() {
		t.Error("expected convergence with stable round trips")
	}
	if rtt := c.GetRTT(); rtt != 40 {
		t.Errorf("GetRTT = %d, want 40", rtt)
	}
}

func TestClockSyncGetServerTimeAppliesOffset(t *testing.T) {
	c := NewClockSync()
	for i := 0; i < ClockSyncSampleCount; i++ {
		base := int64(2000 + i*16)
		c.RecordPong(base, base+20, base+10+1000)
	}
	serverTime := c.GetServerTime(5000)
	if serverTime != 6000 {
		t.Errorf("GetServerTime(5000) = %d, want 6000", serverTime)
	}
}

func TestClockSyncRollingWindowDropsOldSamples(t *testing.T) {
	c := NewClockSync()
	for i := 0; i < ClockSyncSampleCount*3; i++ {
		base := int64(i * 100)
		c.RecordPong(base, base+40, base+20+500)
	}
	if len(c.samples) != ClockSyncSampleCount {
		t.Errorf("len(samples) = %d, want %d", len(c.samples), ClockSyncSampleCount)
	}
}
