package engine

import (
	"sync"
	"time"
)

// ActionKind tags the pending-action variant. SIGN_AND_BUNDLE is the only
// kind the engine produces today; the tag keeps the record extensible without
// ad-hoc fields.
type ActionKind string

const KindSignAndBundle ActionKind = "SIGN_AND_BUNDLE"

// PendingAction is the at-most-one per-session bundle request awaiting the
// signing client. UnsignedTxsBase64 is empty until the materializer runs.
type PendingAction struct {
	Kind              ActionKind   `json:"kind"`
	Reason            string       `json:"reason"`
	UnsignedTxsBase64 []string     `json:"unsignedTxsBase64"`
	TriggerSignature  string       `json:"triggerSignature"`
	Source            SignalSource `json:"source"`
	TargetMint        string       `json:"targetMint,omitempty"`
	NeedsUnsignedTxs  bool         `json:"needsUnsignedTxs"`
}

// BundleState is the lifecycle state of a bundle record.
type BundleState string

const (
	BundlePrepared  BundleState = "prepared"
	BundleSubmitted BundleState = "submitted"
	BundleConfirmed BundleState = "confirmed"
	BundleDropped   BundleState = "dropped"
	BundleError     BundleState = "error"
)

// BundleStatus is the per-bundle record visible to the edge.
type BundleStatus struct {
	LocalID      string      `json:"localId"`
	RemoteID     string      `json:"remoteId,omitempty"`
	State        BundleState `json:"state"`
	CreatedAtMs  int64       `json:"createdAtMs"`
	LastUpdateMs int64       `json:"lastUpdateMs"`
	JitoStatus   interface{} `json:"jitoStatus,omitempty"`
	Error        string      `json:"error,omitempty"`
	TxSignatures []string    `json:"txSignatures"` // first signature per tx, base58
	Simulation   interface{} `json:"simulation,omitempty"`
}

// PreparedBundle holds the wire-ready signed transactions for a local id.
type PreparedBundle struct {
	LocalID     string
	TxsBase58   []string
	CreatedAtMs int64
}

// AutoStats are the monotone auto-discovery counters for a session run.
type AutoStats struct {
	Signals      uint64            `json:"signals"`
	TxOk         uint64            `json:"txOk"`
	MintInferred uint64            `json:"mintInferred"`
	SafetyOk     uint64            `json:"safetyOk"`
	Triggered    uint64            `json:"triggered"`
	Rejects      map[string]uint64 `json:"rejects"`
}

func newAutoStats() AutoStats {
	return AutoStats{Rejects: make(map[string]uint64)}
}

// safetyResult memoizes one safety-check outcome per mint per window.
type safetyResult struct {
	OK       bool
	Reason   string
	Top1Pct  float64
	Top10Pct float64
}

// momentumEntry tracks the per-mint rolling window of the auto filter.
type momentumEntry struct {
	firstSeenMs int64
	createdAtMs int64
	count       int
	payers      map[string]struct{}
	safety      *safetyResult
}

// Session is the per-wallet state machine. Sessions are created lazily and
// never destroyed; Stop flips running and resets transient state.
//
// Two locks: mu guards state, proc serializes the whole signal pipeline
// (router, auto filter, materializer, bundle ops, volume timer) so that the
// pending-action check-then-set is totally ordered without holding mu across
// network round-trips.
type Session struct {
	owner   string
	cluster Cluster

	proc sync.Mutex

	mu       sync.Mutex
	running  bool
	config   *BotConfig
	epoch    uint64
	pending  *PendingAction
	logs     *LogRing
	bundles  map[string]*BundleStatus
	prepared map[string]*PreparedBundle
	autoMint map[string]*momentumEntry
	stats    AutoStats

	lastVolumeActionMs int64
	lastVolumeRoute    string
	lastHeartbeat      map[SignalSource]time.Time
	lastEmptyListWarn  time.Time
	volumeCancel       func()
}

func newSession(owner string, cluster Cluster) *Session {
	return &Session{
		owner:         owner,
		cluster:       cluster,
		logs:          NewLogRing(),
		bundles:       make(map[string]*BundleStatus),
		prepared:      make(map[string]*PreparedBundle),
		autoMint:      make(map[string]*momentumEntry),
		stats:         newAutoStats(),
		lastHeartbeat: make(map[SignalSource]time.Time),
	}
}

func (s *Session) Owner() string { return s.owner }

// snapshot captures the guard triple for asynchronous continuations.
func (s *Session) snapshot() (cfg *BotConfig, epoch uint64, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config, s.epoch, s.running
}

// stillValid re-checks a captured (config, epoch) pair. A mismatch means a
// Stop or restart happened mid-flight and the continuation must abort without
// observable effect.
func (s *Session) stillValid(cfg *BotConfig, epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && s.config == cfg && s.epoch == epoch
}

// start installs a fresh config and resets transient state. Caller drives
// subscription/timer side effects.
func (s *Session) start(cfg *BotConfig) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.config = cfg
	s.epoch++
	s.pending = nil
	s.autoMint = make(map[string]*momentumEntry)
	s.stats = newAutoStats()
	s.lastVolumeActionMs = 0
	s.lastVolumeRoute = ""
	s.lastHeartbeat = make(map[SignalSource]time.Time)
	return s.epoch
}

// stop flips the session off and invalidates in-flight work via the epoch.
func (s *Session) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.config = nil
	s.epoch++
	s.pending = nil
	s.autoMint = make(map[string]*momentumEntry)
}

// hasPending reports whether an action is already armed.
func (s *Session) hasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// trySetPending arms the action iff the session is still on the captured
// (config, epoch) and no action is armed. Idempotent under the same epoch in
// the sense that a second identical arm attempt is a no-op.
func (s *Session) trySetPending(pa *PendingAction, cfg *BotConfig, epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.config != cfg || s.epoch != epoch {
		return false
	}
	if s.pending != nil {
		return false
	}
	s.pending = pa
	return true
}

// pendingAction returns the current pending action pointer (shared, treat as
// read-only outside the materializer).
func (s *Session) pendingAction() *PendingAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func (s *Session) clearPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

func (s *Session) bumpReject(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Rejects[reason]++
}

// statsSnapshot copies the counters for heartbeat logs and the session view.
func (s *Session) statsSnapshot() AutoStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.stats
	out.Rejects = make(map[string]uint64, len(s.stats.Rejects))
	for k, v := range s.stats.Rejects {
		out.Rejects[k] = v
	}
	return out
}
