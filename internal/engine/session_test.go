package engine

import "testing"

func baseSnipeConfig() *BotConfig {
	return &BotConfig{
		Cluster:         ClusterMainnet,
		Mode:            ModeSnipe,
		PumpFunPhase:    PhasePre,
		SnipeTargetMode: TargetAuto,
		BuyAmountSol:    0.1,
		AutoSnipe: AutoSnipeConfig{
			WindowSec:                  60,
			MinSignalsInWindow:         2,
			MinUniqueFeePayersInWindow: 2,
			MaxTxAgeSec:                60,
			MaxTop1HolderPct:           30,
			MaxTop10HolderPct:          70,
		},
	}
}

func TestAtMostOnePendingAction(t *testing.T) {
	s := newSession("owner-1", ClusterMainnet)
	cfg := baseSnipeConfig()
	epoch := s.start(cfg)

	first := &PendingAction{Kind: KindSignAndBundle, TriggerSignature: "sig-a", NeedsUnsignedTxs: true}
	if !s.trySetPending(first, cfg, epoch) {
		t.Fatal("first arm should succeed")
	}
	second := &PendingAction{Kind: KindSignAndBundle, TriggerSignature: "sig-b", NeedsUnsignedTxs: true}
	if s.trySetPending(second, cfg, epoch) {
		t.Fatal("second arm must be refused while one is pending")
	}
	if got := s.pendingAction(); got != first {
		t.Fatalf("pending action replaced: got trigger %q", got.TriggerSignature)
	}

	s.clearPending()
	if !s.trySetPending(second, cfg, epoch) {
		t.Fatal("arm should succeed after the slot clears")
	}
}

func TestEpochGuardInvalidatesStaleArms(t *testing.T) {
	s := newSession("owner-1", ClusterMainnet)
	cfg := baseSnipeConfig()
	epoch := s.start(cfg)

	// Restart with a fresh config mid-flight.
	newCfg := baseSnipeConfig()
	s.start(newCfg)

	stale := &PendingAction{Kind: KindSignAndBundle, TriggerSignature: "sig-stale", NeedsUnsignedTxs: true}
	if s.trySetPending(stale, cfg, epoch) {
		t.Fatal("arm keyed to a replaced (config, epoch) must be refused")
	}
	if s.pendingAction() != nil {
		t.Fatal("stale arm must leave no observable state")
	}
	if s.stillValid(cfg, epoch) {
		t.Fatal("old guard pair should no longer validate")
	}
}

func TestStopInvalidatesAndClears(t *testing.T) {
	s := newSession("owner-1", ClusterMainnet)
	cfg := baseSnipeConfig()
	epoch := s.start(cfg)

	pa := &PendingAction{Kind: KindSignAndBundle, NeedsUnsignedTxs: true}
	if !s.trySetPending(pa, cfg, epoch) {
		t.Fatal("arm should succeed")
	}
	s.stop()

	if s.pendingAction() != nil {
		t.Fatal("stop must clear the pending action")
	}
	if s.stillValid(cfg, epoch) {
		t.Fatal("stop must invalidate the epoch guard")
	}
	if s.trySetPending(pa, cfg, epoch) {
		t.Fatal("arm against a stopped session must be refused")
	}
}

func TestRestartResetsTransientState(t *testing.T) {
	s := newSession("owner-1", ClusterMainnet)
	cfg := baseSnipeConfig()
	s.start(cfg)

	s.mu.Lock()
	s.stats.Signals = 7
	s.stats.Rejects["noMint"] = 3
	s.autoMint["mint-x"] = &momentumEntry{count: 2}
	s.lastVolumeRoute = "jupiter"
	s.mu.Unlock()

	s.start(baseSnipeConfig())

	st := s.statsSnapshot()
	if st.Signals != 0 || len(st.Rejects) != 0 {
		t.Fatalf("restart must reset counters, got %+v", st)
	}
	s.mu.Lock()
	tracked := len(s.autoMint)
	route := s.lastVolumeRoute
	s.mu.Unlock()
	if tracked != 0 {
		t.Error("restart must drop momentum tracking")
	}
	if route != "" {
		t.Error("restart must clear lastVolumeRoute")
	}
}
