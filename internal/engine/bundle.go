package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/rawblock/snipe-engine/pkg/models"
)

// maxBundleTxs is the block-engine bundle size limit.
const maxBundleTxs = 5

var errMainnetOnly = fmt.Errorf("bundles are mainnet-only")

// PrepareResult is returned to the edge after a successful Prepare.
type PrepareResult struct {
	LocalID    string      `json:"localId"`
	Simulation interface{} `json:"simulation,omitempty"`
}

// SubmitResult is returned to the edge after a successful Submit.
type SubmitResult struct {
	LocalID    string      `json:"localId"`
	SendResult interface{} `json:"sendResult,omitempty"`
}

// PrepareBundle validates and simulates a client-signed transaction sequence,
// records it under a fresh local id, and clears the session's pending action
// so the signer is not prompted twice for the same opportunity.
func (e *Engine) PrepareBundle(ctx context.Context, cluster Cluster, owner string, signedTxsBase64 []string) (*PrepareResult, error) {
	if cluster == ClusterDevnet {
		return nil, errMainnetOnly
	}
	if !cluster.Valid() {
		return nil, fmt.Errorf("unknown cluster %q", cluster)
	}
	if len(signedTxsBase64) == 0 || len(signedTxsBase64) > maxBundleTxs {
		return nil, fmt.Errorf("bundle must contain 1..%d transactions, got %d", maxBundleTxs, len(signedTxsBase64))
	}
	rt := e.runtime(cluster)
	s, ok := rt.findSession(owner)
	if !ok {
		return nil, fmt.Errorf("no session for owner %s", shortOwner(owner))
	}

	s.proc.Lock()
	defer s.proc.Unlock()

	txsBase58 := make([]string, len(signedTxsBase64))
	firstSigs := make([]string, len(signedTxsBase64))
	for i, txBase64 := range signedTxsBase64 {
		sig, err := e.inspector.FirstSignatureBase58(txBase64)
		if err != nil {
			return nil, fmt.Errorf("decode signed tx %d: %v", i, err)
		}
		wire, err := e.inspector.ToBase58(txBase64)
		if err != nil {
			return nil, fmt.Errorf("encode signed tx %d: %v", i, err)
		}
		firstSigs[i] = sig
		txsBase58[i] = wire
	}

	e.checkTipLast(ctx, cluster, s, signedTxsBase64[len(signedTxsBase64)-1])

	var simulation interface{}
	if sim, err := e.blockEngine.SimulateBundle(ctx, cluster, txsBase58); err != nil {
		e.sessionLogf(s, "warn", "bundle simulation unavailable: %v", err)
	} else {
		simulation = json.RawMessage(sim)
	}

	localID := uuid.NewString()
	nowMs := e.now().UnixMilli()
	status := &BundleStatus{
		LocalID:      localID,
		State:        BundlePrepared,
		CreatedAtMs:  nowMs,
		LastUpdateMs: nowMs,
		TxSignatures: firstSigs,
		Simulation:   simulation,
	}

	s.mu.Lock()
	s.prepared[localID] = &PreparedBundle{LocalID: localID, TxsBase58: txsBase58, CreatedAtMs: nowMs}
	s.bundles[localID] = status
	s.pending = nil
	s.mu.Unlock()

	e.sessionLogf(s, "info", "bundle prepared localId=%s txs=%d", localID, len(txsBase58))
	e.auditBundle(ctx, s, status)
	return &PrepareResult{LocalID: localID, Simulation: simulation}, nil
}

// checkTipLast warns when the bundle's last transaction is not a native
// transfer to a known tip account. Non-fatal: under congestion the block
// engine may still accept a tipless bundle.
func (e *Engine) checkTipLast(ctx context.Context, cluster Cluster, s *Session, lastTxBase64 string) {
	accounts, err := e.blockEngine.GetTipAccounts(ctx, cluster)
	if err != nil {
		e.sessionLogf(s, "warn", "tip account lookup failed during prepare: %v", err)
		return
	}
	tipSet := make(map[string]struct{}, len(accounts))
	for _, a := range accounts {
		tipSet[a] = struct{}{}
	}
	dest, err := e.inspector.TipTransferDest(lastTxBase64)
	if err != nil || dest == "" {
		e.sessionLogf(s, "warn", "no tip detected: last bundle tx is not a native transfer")
		return
	}
	if _, ok := tipSet[dest]; !ok {
		e.sessionLogf(s, "warn", "no tip detected: transfer destination %s is not a known tip account", shortOwner(dest))
	}
}

// SubmitBundle sends a prepared bundle to the block engine and records the
// remote id. One best-effort status poll follows; polling errors are
// swallowed.
func (e *Engine) SubmitBundle(ctx context.Context, cluster Cluster, owner, localID string) (*SubmitResult, error) {
	if cluster == ClusterDevnet {
		return nil, errMainnetOnly
	}
	if !cluster.Valid() {
		return nil, fmt.Errorf("unknown cluster %q", cluster)
	}
	rt := e.runtime(cluster)
	s, ok := rt.findSession(owner)
	if !ok {
		return nil, fmt.Errorf("no session for owner %s", shortOwner(owner))
	}

	s.proc.Lock()
	defer s.proc.Unlock()

	s.mu.Lock()
	pb := s.prepared[localID]
	status := s.bundles[localID]
	s.mu.Unlock()
	if pb == nil || status == nil {
		return nil, fmt.Errorf("no prepared bundle %s", localID)
	}

	res, err := e.blockEngine.SendBundle(ctx, cluster, pb.TxsBase58)
	nowMs := e.now().UnixMilli()
	if err != nil {
		s.mu.Lock()
		status.State = BundleError
		status.Error = err.Error()
		status.LastUpdateMs = nowMs
		s.mu.Unlock()
		e.sessionLogf(s, "error", "bundle send failed localId=%s: %v", localID, err)
		e.auditBundle(ctx, s, status)
		return nil, fmt.Errorf("send bundle: %w", err)
	}

	remoteID := ""
	var asString string
	if jsonErr := json.Unmarshal(res, &asString); jsonErr == nil {
		remoteID = asString
	}

	s.mu.Lock()
	status.State = BundleSubmitted
	status.RemoteID = remoteID
	status.LastUpdateMs = nowMs
	s.mu.Unlock()
	e.sessionLogf(s, "info", "bundle submitted localId=%s remoteId=%s", localID, remoteID)

	pollID := remoteID
	if pollID == "" {
		pollID = localID
	}
	if statuses, pollErr := e.blockEngine.GetBundleStatuses(ctx, cluster, []string{pollID}); pollErr == nil {
		s.mu.Lock()
		status.JitoStatus = json.RawMessage(statuses)
		status.LastUpdateMs = e.now().UnixMilli()
		s.mu.Unlock()
	}

	e.auditBundle(ctx, s, status)
	return &SubmitResult{LocalID: localID, SendResult: json.RawMessage(res)}, nil
}

// auditBundle records a lifecycle event on the optional sink. Failures are
// logged, never propagated: audit is write-only forensics, not state.
func (e *Engine) auditBundle(ctx context.Context, s *Session, status *BundleStatus) {
	if e.audit == nil {
		return
	}
	s.mu.Lock()
	ev := models.BundleEvent{
		Cluster:   string(s.cluster),
		Owner:     s.owner,
		LocalID:   status.LocalID,
		RemoteID:  status.RemoteID,
		State:     string(status.State),
		Error:     status.Error,
		CreatedAt: status.LastUpdateMs,
	}
	s.mu.Unlock()
	if err := e.audit.SaveBundleEvent(ctx, ev); err != nil {
		e.sessionLogf(s, "warn", "audit sink write failed: %v", err)
	}
}
