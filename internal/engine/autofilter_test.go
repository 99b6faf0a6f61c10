package engine

import (
	"fmt"
	"testing"

	"github.com/rawblock/snipe-engine/internal/solana"
)

const testMint = "MintAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// healthyRPC scripts a mint that passes every safety gate: authorities
// disabled, initialized, nonzero supply, too few holders for concentration
// caps to apply.
func healthyRPC(payerBySig map[string]string) *fakeRPC {
	return &fakeRPC{
		transactionFn: func(signature, commitment string) (*solana.TransactionResult, error) {
			payer, ok := payerBySig[signature]
			if !ok {
				return nil, nil
			}
			return tradeTx(payer, testMint, false), nil
		},
		accountInfoFn: func(pubkey string) (*solana.AccountInfo, error) {
			return &solana.AccountInfo{
				Owner: solana.TokenProgram,
				Data:  mintAccountData(0, 0, 1_000_000, true),
			}, nil
		},
		supplyFn: func(mint string) (uint64, int, error) {
			return 1_000_000, 9, nil
		},
		largestAccountsFn: func(mint string) ([]solana.LargestAccount, error) {
			return []solana.LargestAccount{
				{Address: "holder-1", Amount: "400000"},
				{Address: "holder-2", Amount: "300000"},
			}, nil
		},
	}
}

func TestAutoFilterArmsOnMomentum(t *testing.T) {
	rpc := healthyRPC(map[string]string{
		"sig-1": "payer-1",
		"sig-2": "payer-2",
	})
	e := newTestEngine(t, Options{RPC: map[Cluster]RPCClient{ClusterMainnet: rpc, ClusterDevnet: &fakeRPC{}}})
	rt, s, epoch := startedSession(e, ClusterMainnet, "owner-1", baseSnipeConfig())
	cfg, _, _ := s.snapshot()

	e.runAutoFilter(rt, s, cfg, epoch, notification{source: SourcePumpFun, signature: "sig-1", logs: []string{"Program log: Instruction: Buy"}})

	if s.pendingAction() != nil {
		t.Fatal("one signal must not clear the momentum threshold")
	}
	st := s.statsSnapshot()
	if st.Signals != 1 || st.TxOk != 1 || st.MintInferred != 1 || st.SafetyOk != 1 || st.Triggered != 0 {
		t.Fatalf("unexpected counters after first signal: %+v", st)
	}
	if st.Rejects[rejectMomentum] != 1 {
		t.Fatalf("expected one momentum reject, got %v", st.Rejects)
	}

	e.runAutoFilter(rt, s, cfg, epoch, notification{source: SourcePumpFun, signature: "sig-2", logs: []string{"Program log: Instruction: Buy"}})

	pa := s.pendingAction()
	if pa == nil {
		t.Fatal("second distinct-payer signal must arm the pending action")
	}
	if pa.TargetMint != testMint {
		t.Errorf("pending action mint = %q, want %q", pa.TargetMint, testMint)
	}
	if pa.TriggerSignature != "sig-2" {
		t.Errorf("pending action trigger = %q, want sig-2", pa.TriggerSignature)
	}
	if !pa.NeedsUnsignedTxs {
		t.Error("freshly armed action must still need materialization")
	}
	st = s.statsSnapshot()
	if st.Triggered != 1 {
		t.Errorf("Triggered = %d, want 1", st.Triggered)
	}
	// Counter chain stays monotone: triggered <= safetyOk <= mintInferred <= txOk <= signals.
	if st.Triggered > st.SafetyOk || st.SafetyOk > st.MintInferred || st.MintInferred > st.TxOk || st.TxOk > st.Signals {
		t.Errorf("counter chain violated: %+v", st)
	}
}

func TestAutoFilterRejectsMintNotSeenBorn(t *testing.T) {
	rpc := healthyRPC(nil)
	rpc.transactionFn = func(signature, commitment string) (*solana.TransactionResult, error) {
		// Mint present in pre balances: this is an old token trading, not a birth.
		return tradeTx("payer-1", testMint, true), nil
	}
	e := newTestEngine(t, Options{RPC: map[Cluster]RPCClient{ClusterMainnet: rpc, ClusterDevnet: &fakeRPC{}}})
	rt, s, epoch := startedSession(e, ClusterMainnet, "owner-1", baseSnipeConfig())
	cfg, _, _ := s.snapshot()

	e.runAutoFilter(rt, s, cfg, epoch, notification{source: SourcePumpFun, signature: "sig-1", logs: []string{"Program log: Instruction: Buy"}})

	if s.pendingAction() != nil {
		t.Fatal("non-create signal on an untracked mint must not arm")
	}
	st := s.statsSnapshot()
	if st.Rejects[rejectNotNew] != 1 {
		t.Fatalf("expected notNew reject, got %v", st.Rejects)
	}
	s.mu.Lock()
	tracked := len(s.autoMint)
	s.mu.Unlock()
	if tracked != 0 {
		t.Error("rejected mint must not start a momentum window")
	}
}

func TestAutoFilterSafetyRejectsLiveMintAuthority(t *testing.T) {
	rpc := healthyRPC(map[string]string{"sig-1": "payer-1"})
	rpc.accountInfoFn = func(pubkey string) (*solana.AccountInfo, error) {
		return &solana.AccountInfo{
			Owner: solana.TokenProgram,
			Data:  mintAccountData(1, 0, 1_000_000, true),
		}, nil
	}
	cfg := baseSnipeConfig()
	cfg.AutoSnipe.RequireMintAuthorityDisabled = true

	e := newTestEngine(t, Options{RPC: map[Cluster]RPCClient{ClusterMainnet: rpc, ClusterDevnet: &fakeRPC{}}})
	rt, s, epoch := startedSession(e, ClusterMainnet, "owner-1", cfg)

	e.runAutoFilter(rt, s, cfg, epoch, notification{source: SourcePumpFun, signature: "sig-1", logs: nil})

	if s.pendingAction() != nil {
		t.Fatal("safety-rejected mint must not arm")
	}
	st := s.statsSnapshot()
	if st.SafetyOk != 0 {
		t.Errorf("SafetyOk = %d, want 0", st.SafetyOk)
	}
	if st.Rejects["mint authority still enabled"] != 1 {
		t.Fatalf("expected mint-authority reject, got %v", st.Rejects)
	}
}

func TestAutoFilterSafetyMemoizedPerWindow(t *testing.T) {
	safetyCalls := 0
	rpc := healthyRPC(map[string]string{
		"sig-1": "payer-1",
		"sig-2": "payer-1",
	})
	inner := rpc.accountInfoFn
	rpc.accountInfoFn = func(pubkey string) (*solana.AccountInfo, error) {
		safetyCalls++
		return inner(pubkey)
	}
	cfg := baseSnipeConfig()
	cfg.AutoSnipe.MinSignalsInWindow = 10 // keep the filter from triggering

	e := newTestEngine(t, Options{RPC: map[Cluster]RPCClient{ClusterMainnet: rpc, ClusterDevnet: &fakeRPC{}}})
	rt, s, epoch := startedSession(e, ClusterMainnet, "owner-1", cfg)

	e.runAutoFilter(rt, s, cfg, epoch, notification{source: SourcePumpFun, signature: "sig-1", logs: nil})
	e.runAutoFilter(rt, s, cfg, epoch, notification{source: SourcePumpFun, signature: "sig-2", logs: nil})

	if safetyCalls != 1 {
		t.Fatalf("safety check ran %d times, want 1 (memoized per window)", safetyCalls)
	}
}

func TestAutoFilterAbortsOnStaleEpoch(t *testing.T) {
	rpc := healthyRPC(map[string]string{"sig-1": "payer-1"})
	e := newTestEngine(t, Options{RPC: map[Cluster]RPCClient{ClusterMainnet: rpc, ClusterDevnet: &fakeRPC{}}})
	rt, s, epoch := startedSession(e, ClusterMainnet, "owner-1", baseSnipeConfig())
	cfg, _, _ := s.snapshot()

	// Restart invalidates the captured guard before the filter runs.
	s.start(baseSnipeConfig())

	e.runAutoFilter(rt, s, cfg, epoch, notification{source: SourcePumpFun, signature: "sig-1", logs: nil})

	if s.pendingAction() != nil {
		t.Fatal("stale-epoch filter run must have no observable effect")
	}
	if st := s.statsSnapshot(); st.Triggered != 0 || st.TxOk != 0 {
		t.Fatalf("stale run leaked counters: %+v", st)
	}
}

func TestFetchTransactionFallsBackToFinalized(t *testing.T) {
	calls := []string{}
	rpc := &fakeRPC{
		transactionFn: func(signature, commitment string) (*solana.TransactionResult, error) {
			calls = append(calls, commitment)
			if commitment == "confirmed" {
				return nil, nil // node has not confirmed it yet
			}
			return tradeTx("payer-1", testMint, false), nil
		},
	}
	e := newTestEngine(t, Options{RPC: map[Cluster]RPCClient{ClusterMainnet: rpc, ClusterDevnet: &fakeRPC{}}})

	tx, err := e.fetchTransactionWithRetry(ClusterMainnet, "sig-1")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if tx == nil {
		t.Fatal("expected a transaction from the finalized fallback")
	}
	confirmed, finalized := 0, 0
	for _, c := range calls {
		switch c {
		case "confirmed":
			confirmed++
		case "finalized":
			finalized++
		}
	}
	if confirmed != 3 {
		t.Errorf("confirmed attempts = %d, want 3", confirmed)
	}
	if finalized != 1 {
		t.Errorf("finalized attempts = %d, want 1", finalized)
	}
}

func TestProbeMintFromKeysBounded(t *testing.T) {
	var probed []string
	rpc := &fakeRPC{
		multipleFn: func(pubkeys []string) ([]*solana.AccountInfo, error) {
			probed = pubkeys
			out := make([]*solana.AccountInfo, len(pubkeys))
			// Last probed key is an initialized mint, everything before is noise.
			out[len(pubkeys)-1] = &solana.AccountInfo{
				Owner: solana.TokenProgram,
				Data:  mintAccountData(0, 0, 1, true),
			}
			return out, nil
		},
	}
	e := newTestEngine(t, Options{RPC: map[Cluster]RPCClient{ClusterMainnet: rpc, ClusterDevnet: &fakeRPC{}}})

	keys := make([]string, 40)
	for i := range keys {
		keys[i] = fmt.Sprintf("key-%d", i)
	}
	mint := e.probeMintFromKeys(ClusterMainnet, keys)

	if len(probed) != mintProbeLimit {
		t.Fatalf("probed %d keys, want %d", len(probed), mintProbeLimit)
	}
	if mint != fmt.Sprintf("key-%d", mintProbeLimit-1) {
		t.Errorf("probe returned %q", mint)
	}
}
