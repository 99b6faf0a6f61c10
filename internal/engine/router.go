package engine

import (
	"time"
)

// heartbeatInterval throttles per-(session, source) liveness log lines.
const heartbeatInterval = 15 * time.Second

// emptyListWarnInterval throttles the "snipe list is empty" warning.
const emptyListWarnInterval = time.Minute

// sourceAccepted is the topic-to-mode routing table.
func sourceAccepted(cfg *BotConfig, source SignalSource) bool {
	switch cfg.Mode {
	case ModeSnipe:
		if cfg.PumpFunPhase == PhasePre {
			return source == SourcePumpFun
		}
		return source == SourceRaydium
	case ModeVolume:
		return source == SourceRaydium
	}
	return false
}

// routeSignal fans one deduped signal out to every qualifying session. The
// per-session pipeline runs on its own goroutine serialized by the session
// proc lock, so the dispatcher never blocks on RPC.
func (e *Engine) routeSignal(rt *ClusterRuntime, n notification) {
	for _, s := range rt.sessionList() {
		cfg, epoch, running := s.snapshot()
		if !running || cfg == nil || s.hasPending() {
			continue
		}
		if !sourceAccepted(cfg, n.source) {
			continue
		}
		s, cfg, epoch := s, cfg, epoch
		go e.processSignal(rt, s, cfg, epoch, n)
	}
}

// processSignal runs the router and auto filter for one (session, signal)
// pair under the session proc lock. The captured (config, epoch) pair is
// re-checked before every observable write.
func (e *Engine) processSignal(rt *ClusterRuntime, s *Session, cfg *BotConfig, epoch uint64, n notification) {
	s.proc.Lock()
	defer s.proc.Unlock()

	if !s.stillValid(cfg, epoch) || s.hasPending() {
		return
	}
	e.maybeHeartbeat(s, n.source)

	switch {
	case cfg.Mode == ModeSnipe && cfg.SnipeTargetMode == TargetList:
		e.runListFilter(rt, s, cfg, epoch, n)
	case cfg.Mode == ModeSnipe && cfg.SnipeTargetMode == TargetAuto && cfg.PumpFunPhase == PhasePre && n.source == SourcePumpFun:
		e.runAutoFilter(rt, s, cfg, epoch, n)
	case cfg.Mode == ModeSnipe && cfg.SnipeTargetMode == TargetAuto && n.source == SourceRaydium:
		// Post-migration auto: a fresh pool-init signal is itself the
		// opportunity; there is no momentum filter on this path.
		e.armPending(s, cfg, epoch, n.source, n.signature, "",
			"pool initialization detected in "+n.signature)
	default:
		// Volume mode reaches here: the router never arms volume actions,
		// the timer does. The heartbeat above is the only side effect.
	}
}

// maybeHeartbeat emits a liveness summary at most once per interval per
// (session, source), so UIs can tell a quiet filter from a dead one.
func (e *Engine) maybeHeartbeat(s *Session, source SignalSource) {
	now := e.now()
	s.mu.Lock()
	last := s.lastHeartbeat[source]
	fire := now.Sub(last) >= heartbeatInterval
	if fire {
		s.lastHeartbeat[source] = now
	}
	s.mu.Unlock()
	if !fire {
		return
	}
	st := s.statsSnapshot()
	e.sessionLogf(s, "info",
		"filter alive src=%s signals=%d txOk=%d mintInferred=%d safetyOk=%d triggered=%d rejects=%d",
		source, st.Signals, st.TxOk, st.MintInferred, st.SafetyOk, st.Triggered, rejectTotal(st.Rejects))
}

func rejectTotal(rejects map[string]uint64) uint64 {
	var total uint64
	for _, v := range rejects {
		total += v
	}
	return total
}

// runListFilter implements the snipe list target mode: the triggering
// transaction must mention one of the configured mints.
func (e *Engine) runListFilter(rt *ClusterRuntime, s *Session, cfg *BotConfig, epoch uint64, n notification) {
	if len(cfg.SnipeList) == 0 {
		now := e.now()
		s.mu.Lock()
		warn := now.Sub(s.lastEmptyListWarn) >= emptyListWarnInterval
		if warn {
			s.lastEmptyListWarn = now
		}
		s.mu.Unlock()
		if warn {
			e.sessionLogf(s, "warn", "snipe list is empty, dropping signals")
		}
		return
	}

	tx, err := e.fetchTransactionWithRetry(rt.cluster, n.signature)
	if err != nil || tx == nil {
		return
	}
	if !s.stillValid(cfg, epoch) {
		return
	}

	listed := make(map[string]struct{}, len(cfg.SnipeList))
	for _, mint := range cfg.SnipeList {
		listed[mint] = struct{}{}
	}
	for _, key := range tx.StaticAccountKeys() {
		if _, ok := listed[key]; ok {
			e.armPending(s, cfg, epoch, n.source, n.signature, key,
				"snipe list match "+key+" in "+n.signature)
			return
		}
	}
}

// armPending sets the at-most-one pending action under the epoch guard.
func (e *Engine) armPending(s *Session, cfg *BotConfig, epoch uint64, source SignalSource, sig, mint, reason string) bool {
	pa := &PendingAction{
		Kind:              KindSignAndBundle,
		Reason:            reason,
		UnsignedTxsBase64: []string{},
		TriggerSignature:  sig,
		Source:            source,
		TargetMint:        mint,
		NeedsUnsignedTxs:  true,
	}
	if !s.trySetPending(pa, cfg, epoch) {
		return false
	}
	e.sessionLogf(s, "info", "pending action armed source=%s trigger=%s mint=%s", source, sig, mint)
	return true
}
