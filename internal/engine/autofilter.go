package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/rawblock/snipe-engine/internal/solana"
)

// Typed reject reasons. These are counter keys, not error types: inside the
// filter a miss is a policy decision, not a failure.
const (
	rejectNoMint        = "noMint"
	rejectNotNew        = "notNew"
	rejectWindowExpired = "windowExpired"
	rejectTooOld        = "tooOld"
	rejectMomentum      = "momentum"
	rejectUniquePayers  = "uniquePayers"
)

var createLogRe = regexp.MustCompile(`(?i)instruction:\s*create`)

var errTxNotFound = errors.New("transaction not found")

// mintProbeLimit bounds how many static account keys are probed when token
// balances carry no mint.
const mintProbeLimit = 25

func (e *Engine) baseCtx() context.Context {
	if e.ctx != nil {
		return e.ctx
	}
	return context.Background()
}

// rpcRetry runs fn up to attempts times with exponential backoff from
// baseDelay, each attempt holding a slot on the cluster RPC semaphore.
func (e *Engine) rpcRetry(cluster Cluster, attempts int, baseDelay time.Duration, fn func(ctx context.Context) error) error {
	ctx := e.baseCtx()
	var lastErr error
	for i := 0; i < attempts; i++ {
		release, err := e.acquireRPC(ctx, cluster)
		if err != nil {
			return err
		}
		err = fn(ctx)
		release()
		if err == nil {
			return nil
		}
		lastErr = err
		if i < attempts-1 {
			select {
			case <-time.After(baseDelay << i):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

// fetchTransactionWithRetry tries confirmed commitment first (3 attempts,
// 200 ms base), then finalized (2 attempts, 250 ms base). A nil result with
// nil error means the node never produced the transaction.
func (e *Engine) fetchTransactionWithRetry(cluster Cluster, signature string) (*solana.TransactionResult, error) {
	rpc := e.rpc[cluster]
	if rpc == nil {
		return nil, fmt.Errorf("no rpc client for cluster %s", cluster)
	}

	var tx *solana.TransactionResult
	fetch := func(commitment string) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			res, err := rpc.GetTransaction(ctx, signature, commitment)
			if err != nil {
				return err
			}
			if res == nil {
				return errTxNotFound
			}
			tx = res
			return nil
		}
	}
	if err := e.rpcRetry(cluster, 3, 200*time.Millisecond, fetch("confirmed")); err == nil {
		return tx, nil
	}
	if err := e.rpcRetry(cluster, 2, 250*time.Millisecond, fetch("finalized")); err != nil {
		return nil, err
	}
	return tx, nil
}

// runAutoFilter decides whether one pump.fun signal arms the session.
// Caller holds the session proc lock and has verified the (config, epoch)
// guard; every network round-trip below re-verifies it before any write.
func (e *Engine) runAutoFilter(rt *ClusterRuntime, s *Session, cfg *BotConfig, epoch uint64, n notification) {
	auto := cfg.AutoSnipe

	s.mu.Lock()
	s.stats.Signals++
	s.mu.Unlock()

	isCreateFromLogs := false
	for _, line := range n.logs {
		if createLogRe.MatchString(line) {
			isCreateFromLogs = true
			break
		}
	}

	tx, err := e.fetchTransactionWithRetry(rt.cluster, n.signature)
	if err != nil || tx == nil {
		s.bumpReject(rejectNoMint)
		return
	}
	if !s.stillValid(cfg, epoch) {
		return
	}
	s.mu.Lock()
	s.stats.TxOk++
	s.mu.Unlock()

	mint, newInTx := e.inferMint(rt.cluster, tx)
	if mint == "" {
		s.bumpReject(rejectNoMint)
		return
	}
	if !s.stillValid(cfg, epoch) {
		return
	}
	s.mu.Lock()
	s.stats.MintInferred++
	s.mu.Unlock()

	isCreate := isCreateFromLogs || newInTx
	nowMs := e.now().UnixMilli()

	s.mu.Lock()
	entry, tracked := s.autoMint[mint]
	if !tracked {
		if !isCreate {
			// Never start tracking a mint we did not see born; this is what
			// keeps the filter off restart-era old mints.
			s.stats.Rejects[rejectNotNew]++
			s.mu.Unlock()
			return
		}
		entry = &momentumEntry{firstSeenMs: nowMs, createdAtMs: nowMs, payers: make(map[string]struct{})}
		s.autoMint[mint] = entry
	} else if nowMs-entry.firstSeenMs > int64(auto.WindowSec)*1000 {
		if !isCreate {
			s.stats.Rejects[rejectWindowExpired]++
			s.mu.Unlock()
			return
		}
		entry.firstSeenMs = nowMs
		entry.createdAtMs = nowMs
		entry.count = 0
		entry.payers = make(map[string]struct{})
		entry.safety = nil
	}
	if (nowMs-entry.createdAtMs)/1000 > int64(auto.MaxTxAgeSec) {
		s.stats.Rejects[rejectTooOld]++
		s.mu.Unlock()
		return
	}
	entry.count++
	if payer := tx.FeePayer(); payer != "" {
		entry.payers[payer] = struct{}{}
	}
	safety := entry.safety
	s.mu.Unlock()

	if safety == nil {
		safety = e.safetyCheck(rt.cluster, mint, auto)
		if !s.stillValid(cfg, epoch) {
			return
		}
		s.mu.Lock()
		if cur, ok := s.autoMint[mint]; ok && cur.safety == nil {
			cur.safety = safety
		}
		s.mu.Unlock()
	}
	if !safety.OK {
		s.bumpReject(safety.Reason)
		e.sessionLogf(s, "warn", "safety reject mint=%s: %s", mint, safety.Reason)
		return
	}
	s.mu.Lock()
	s.stats.SafetyOk++
	count := entry.count
	payers := len(entry.payers)
	s.mu.Unlock()

	if count < auto.MinSignalsInWindow {
		s.bumpReject(rejectMomentum)
		return
	}
	if payers < auto.MinUniqueFeePayersInWindow {
		s.bumpReject(rejectUniquePayers)
		return
	}

	s.mu.Lock()
	s.stats.Triggered++
	s.mu.Unlock()
	e.armPending(s, cfg, epoch, n.source, n.signature, mint,
		fmt.Sprintf("auto-snipe momentum on %s (signals=%d payers=%d top1=%.1f%% top10=%.1f%%) via %s",
			mint, count, payers, safety.Top1Pct, safety.Top10Pct, n.signature))
}

// inferMint resolves the relevant token mint of a fetched transaction and
// whether it first appeared in this transaction.
//
// Trades normally involve a single relevant token, so more than one mint in
// the balances resolves permissively to the first.
func (e *Engine) inferMint(cluster Cluster, tx *solana.TransactionResult) (string, bool) {
	pre := make(map[string]struct{})
	post := make(map[string]struct{})
	var ordered []string
	seen := make(map[string]struct{})
	if tx.Meta != nil {
		for _, tb := range tx.Meta.PostTokenBalances {
			post[tb.Mint] = struct{}{}
			if _, ok := seen[tb.Mint]; !ok {
				seen[tb.Mint] = struct{}{}
				ordered = append(ordered, tb.Mint)
			}
		}
		for _, tb := range tx.Meta.PreTokenBalances {
			pre[tb.Mint] = struct{}{}
			if _, ok := seen[tb.Mint]; !ok {
				seen[tb.Mint] = struct{}{}
				ordered = append(ordered, tb.Mint)
			}
		}
	}

	mint := ""
	if len(ordered) > 0 {
		mint = ordered[0]
	} else {
		mint = e.probeMintFromKeys(cluster, tx.StaticAccountKeys())
	}
	if mint == "" {
		return "", false
	}
	_, inPost := post[mint]
	_, inPre := pre[mint]
	return mint, inPost && !inPre
}

// probeMintFromKeys inspects up to the first 25 static account keys and
// returns the first initialized mint owned by a token program.
func (e *Engine) probeMintFromKeys(cluster Cluster, keys []string) string {
	if len(keys) == 0 {
		return ""
	}
	if len(keys) > mintProbeLimit {
		keys = keys[:mintProbeLimit]
	}
	rpc := e.rpc[cluster]
	var accounts []*solana.AccountInfo
	err := e.rpcRetry(cluster, 3, 200*time.Millisecond, func(ctx context.Context) error {
		res, err := rpc.GetMultipleAccounts(ctx, keys)
		if err != nil {
			return err
		}
		accounts = res
		return nil
	})
	if err != nil {
		return ""
	}
	for i, acct := range accounts {
		if acct == nil {
			continue
		}
		if acct.Owner != solana.TokenProgram && acct.Owner != solana.Token2022Program {
			continue
		}
		mintAcc, err := solana.ParseMint(acct.Data)
		if err != nil || !mintAcc.IsInitialized {
			continue
		}
		return keys[i]
	}
	return ""
}

// minHoldersForConcentration is the holder count below which top-k caps are
// not enforced: immediately post-launch distribution is trivially
// concentrated and caps would reject every candidate at t~=0.
const minHoldersForConcentration = 5

// safetyCheck runs the authority, extension, supply, and holder-concentration
// gates for a mint. Result is memoized per mint per session window by the
// caller.
func (e *Engine) safetyCheck(cluster Cluster, mint string, auto AutoSnipeConfig) *safetyResult {
	fail := func(reason string) *safetyResult { return &safetyResult{OK: false, Reason: reason} }
	rpc := e.rpc[cluster]

	var acct *solana.AccountInfo
	err := e.rpcRetry(cluster, 3, 200*time.Millisecond, func(ctx context.Context) error {
		res, err := rpc.GetAccountInfo(ctx, mint, "confirmed")
		if err != nil {
			return err
		}
		acct = res
		return nil
	})
	if err != nil || acct == nil {
		return fail("mint account not found")
	}
	isToken2022 := acct.Owner == solana.Token2022Program
	if !isToken2022 && acct.Owner != solana.TokenProgram {
		return fail("mint account not found")
	}
	if isToken2022 {
		if !auto.AllowToken2022 {
			return fail("token-2022 not allowed")
		}
		if name := solana.BlockedExtension(acct.Data); name != "" {
			return fail("blocked token-2022 extension: " + name)
		}
	}

	mintAcc, err := solana.ParseMint(acct.Data)
	if err != nil {
		return fail("mint account not found")
	}
	if !mintAcc.IsInitialized {
		return fail("mint not initialized")
	}
	if auto.RequireMintAuthorityDisabled && mintAcc.MintAuthorityOption != 0 {
		return fail("mint authority still enabled")
	}
	if auto.RequireFreezeAuthorityDisabled && mintAcc.FreezeAuthorityOption != 0 {
		return fail("freeze authority still enabled")
	}

	var supply uint64
	err = e.rpcRetry(cluster, 3, 200*time.Millisecond, func(ctx context.Context) error {
		amount, _, err := rpc.GetTokenSupply(ctx, mint)
		if err != nil {
			return err
		}
		supply = amount
		return nil
	})
	if err != nil {
		return fail("supply unavailable")
	}
	if supply == 0 {
		return fail("zero supply")
	}

	var holders []solana.LargestAccount
	err = e.rpcRetry(cluster, 3, 200*time.Millisecond, func(ctx context.Context) error {
		res, err := rpc.GetTokenLargestAccounts(ctx, mint)
		if err != nil {
			return err
		}
		holders = res
		return nil
	})
	if err != nil {
		return fail("holder lookup failed")
	}

	var top1, top10 uint64
	nonZero := 0
	for i, h := range holders {
		amount := parseUintLoose(h.Amount)
		if amount > 0 {
			nonZero++
		}
		if i == 0 {
			top1 = amount
		}
		if i < 10 {
			top10 += amount
		}
	}
	top1Pct := float64(top1) * 100 / float64(supply)
	top10Pct := float64(top10) * 100 / float64(supply)

	if nonZero >= minHoldersForConcentration {
		if top1Pct > auto.MaxTop1HolderPct {
			return fail("top1 too high")
		}
		if top10Pct > auto.MaxTop10HolderPct {
			return fail("top10 too high")
		}
	}
	return &safetyResult{OK: true, Top1Pct: top1Pct, Top10Pct: top10Pct}
}

func parseUintLoose(s string) uint64 {
	var v uint64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		v = v*10 + uint64(c-'0')
	}
	return v
}
