package engine

import (
	"testing"
	"time"
)

func TestEffectiveIntervalFloor(t *testing.T) {
	cfg := volumeConfig(false)
	cfg.Volume.IntervalSec = 0
	if got := effectiveInterval(cfg); got != minVolumeIntervalSec {
		t.Errorf("effectiveInterval(0) = %d, want %d", got, minVolumeIntervalSec)
	}
	cfg.Volume.IntervalSec = 1
	if got := effectiveInterval(cfg); got != minVolumeIntervalSec {
		t.Errorf("effectiveInterval(1) = %d, want %d", got, minVolumeIntervalSec)
	}
	cfg.Volume.IntervalSec = 30
	if got := effectiveInterval(cfg); got != 30 {
		t.Errorf("effectiveInterval(30) = %d, want 30", got)
	}
}

func TestVolumeLoopArmsWhenDue(t *testing.T) {
	e := newTestEngine(t, Options{})
	_, s, epoch := startedSession(e, ClusterMainnet, "owner-1", volumeConfig(false))
	cfg, _, _ := s.snapshot()

	e.startVolumeTimer(s, cfg, epoch)
	defer e.stopVolumeTimer(s)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if pa := s.pendingAction(); pa != nil {
			if pa.Source != SourceVolumeTimer {
				t.Fatalf("pending source = %q, want volumeTimer", pa.Source)
			}
			if pa.TargetMint != testMint {
				t.Errorf("pending mint = %q, want %q", pa.TargetMint, testMint)
			}
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("volume timer never armed an action")
}

func TestVolumeLoopRespectsPendingBackpressure(t *testing.T) {
	e := newTestEngine(t, Options{})
	_, s, epoch := startedSession(e, ClusterMainnet, "owner-1", volumeConfig(false))
	cfg, _, _ := s.snapshot()

	// Occupy the single action slot before the timer starts.
	blocker := &PendingAction{Kind: KindSignAndBundle, TriggerSignature: "blocker", NeedsUnsignedTxs: true}
	if !s.trySetPending(blocker, cfg, epoch) {
		t.Fatal("arm failed")
	}

	e.startVolumeTimer(s, cfg, epoch)
	defer e.stopVolumeTimer(s)

	time.Sleep(1500 * time.Millisecond)
	if pa := s.pendingAction(); pa != blocker {
		t.Fatal("volume timer must not replace an existing pending action")
	}
}

func TestStopVolumeTimerHalts(t *testing.T) {
	e := newTestEngine(t, Options{})
	_, s, epoch := startedSession(e, ClusterMainnet, "owner-1", volumeConfig(false))
	cfg, _, _ := s.snapshot()

	e.startVolumeTimer(s, cfg, epoch)
	e.stopVolumeTimer(s)

	time.Sleep(1500 * time.Millisecond)
	if s.pendingAction() != nil {
		t.Fatal("cancelled timer must not arm actions")
	}
}

func TestRestartCancelsOldVolumeLoop(t *testing.T) {
	e := newTestEngine(t, Options{})
	rt := e.runtime(ClusterMainnet)
	s := rt.sessionFor("owner-1")

	cfg := volumeConfig(false)
	epoch := s.start(cfg)
	e.startVolumeTimer(s, cfg, epoch)

	// Restart to disabled volume: the old loop's guard pair is stale and it
	// must exit without arming.
	e.stopVolumeTimer(s)
	newCfg := volumeConfig(false)
	newCfg.Volume.Enabled = false
	newEpoch := s.start(newCfg)
	e.startVolumeTimer(s, newCfg, newEpoch)
	defer e.stopVolumeTimer(s)

	time.Sleep(1500 * time.Millisecond)
	if s.pendingAction() != nil {
		t.Fatal("no action expected after restart to a disabled config")
	}
}
