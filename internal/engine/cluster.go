package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rawblock/snipe-engine/pkg/models"
)

// notification is one deduped, heuristically interesting program-log event
// handed from the stream reader to the cluster dispatcher.
type notification struct {
	source    SignalSource
	signature string
	logs      []string
}

// ClusterRuntime is the flat per-cluster container: the WebSocket (when
// open), its subscription maps, the dedup set, the cluster log ring, and the
// session index. Sessions hold only the cluster tag, never a pointer back.
type ClusterRuntime struct {
	cluster Cluster

	mu           sync.Mutex
	conn         StreamConn
	topicToSubID map[SignalSource]int64
	subIDToTopic map[int64]SignalSource
	pendingReq   map[int64]SignalSource
	sessions     map[string]*Session

	seen *sigDedup // dispatcher-owned, see stream.go
	logs *LogRing

	notifications chan notification
}

func newClusterRuntime(cluster Cluster) *ClusterRuntime {
	return &ClusterRuntime{
		cluster:       cluster,
		topicToSubID:  make(map[SignalSource]int64),
		subIDToTopic:  make(map[int64]SignalSource),
		pendingReq:    make(map[int64]SignalSource),
		sessions:      make(map[string]*Session),
		seen:          newSigDedup(),
		logs:          NewLogRing(),
		notifications: make(chan notification, 256),
	}
}

// sessionFor looks up or lazily creates the session for an owner.
func (rt *ClusterRuntime) sessionFor(owner string) *Session {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if s, ok := rt.sessions[owner]; ok {
		return s
	}
	s := newSession(owner, rt.cluster)
	rt.sessions[owner] = s
	return s
}

func (rt *ClusterRuntime) findSession(owner string) (*Session, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	s, ok := rt.sessions[owner]
	return s, ok
}

// sessionList snapshots the session set for iteration outside the lock.
func (rt *ClusterRuntime) sessionList() []*Session {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make([]*Session, 0, len(rt.sessions))
	for _, s := range rt.sessions {
		out = append(out, s)
	}
	return out
}

// anyRunning reports whether any session in the cluster is running.
func (rt *ClusterRuntime) anyRunning() bool {
	for _, s := range rt.sessionList() {
		if _, _, running := s.snapshot(); running {
			return true
		}
	}
	return false
}

// Options wires the engine to its external collaborators.
type Options struct {
	RPC         map[Cluster]RPCClient
	WSURL       map[Cluster]string
	BlockEngine BlockEngineClient
	Swap        SwapAdapter
	Aggregator  DexAggregatorAdapter
	TradeLocal  TradeLocalAdapter
	Inspector   TxInspector
	Audit       AuditSink // optional
	Viz         VizFunc   // optional
	Dial        DialFunc  // optional, defaults to gorilla dialer
}

// Engine is the process-wide core: one ClusterRuntime per cluster plus the
// adapter set. Construct with NewEngine, then Init before use and Shutdown on
// the way out.
type Engine struct {
	runtimes map[Cluster]*ClusterRuntime
	rpc      map[Cluster]RPCClient
	wsURL    map[Cluster]string
	rpcSem   map[Cluster]chan struct{}

	blockEngine BlockEngineClient
	swap        SwapAdapter
	aggregator  DexAggregatorAdapter
	tradeLocal  TradeLocalAdapter
	inspector   TxInspector
	audit       AuditSink
	viz         VizFunc
	dial        DialFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	nowFn func() time.Time
}

// rpcSemCapacity bounds in-flight blockchain RPCs per cluster during
// firehose bursts.
const rpcSemCapacity = 2

func NewEngine(opts Options) *Engine {
	e := &Engine{
		runtimes:    make(map[Cluster]*ClusterRuntime),
		rpc:         opts.RPC,
		wsURL:       opts.WSURL,
		rpcSem:      make(map[Cluster]chan struct{}),
		blockEngine: opts.BlockEngine,
		swap:        opts.Swap,
		aggregator:  opts.Aggregator,
		tradeLocal:  opts.TradeLocal,
		inspector:   opts.Inspector,
		audit:       opts.Audit,
		viz:         opts.Viz,
		dial:        opts.Dial,
		nowFn:       time.Now,
	}
	if e.dial == nil {
		e.dial = gorillaDial
	}
	for _, cluster := range []Cluster{ClusterMainnet, ClusterDevnet} {
		e.runtimes[cluster] = newClusterRuntime(cluster)
		e.rpcSem[cluster] = make(chan struct{}, rpcSemCapacity)
	}
	return e
}

// Init starts the per-cluster dispatchers. Idempotent shutdown pairing:
// every Init must be matched by one Shutdown.
func (e *Engine) Init(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)
	for _, rt := range e.runtimes {
		rt := rt
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.dispatchLoop(rt)
		}()
	}
	log.Println("[Engine] Dispatchers started for mainnet and devnet")
}

// Shutdown tears down connections and waits for dispatchers to drain.
func (e *Engine) Shutdown(ctx context.Context) {
	if e.cancel != nil {
		e.cancel()
	}
	for _, rt := range e.runtimes {
		e.closeStream(rt)
	}
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	log.Println("[Engine] Shutdown complete")
}

func (e *Engine) runtime(cluster Cluster) *ClusterRuntime {
	return e.runtimes[cluster]
}

// acquireRPC takes a slot on the per-cluster RPC semaphore.
func (e *Engine) acquireRPC(ctx context.Context, cluster Cluster) (func(), error) {
	sem := e.rpcSem[cluster]
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// now is indirected for deterministic tests.
func (e *Engine) now() time.Time {
	return e.nowFn()
}

// ─── Logging ────────────────────────────────────────────────────────────────

func (e *Engine) emitViz(level, msg string, cluster Cluster, owner string) {
	if e.viz != nil {
		e.viz(level, msg, cluster, owner)
	}
}

func (e *Engine) clusterLogf(rt *ClusterRuntime, level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	rt.logs.Append(level, msg)
	log.Printf("[Engine:%s] %s", rt.cluster, msg)
	e.emitViz(level, msg, rt.cluster, "")
}

func (e *Engine) sessionLogf(s *Session, level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	s.logs.Append(level, msg)
	log.Printf("[Engine:%s:%s] %s", s.cluster, shortOwner(s.owner), msg)
	e.emitViz(level, msg, s.cluster, s.owner)
}

func shortOwner(owner string) string {
	if len(owner) <= 8 {
		return owner
	}
	return owner[:4] + ".." + owner[len(owner)-4:]
}

// ─── Session lifecycle entry points ────────────────────────────────────────

// StartSession installs a config and flips the session to running. Calling
// Start on a running session is a restart: the config pointer is replaced and
// the epoch increments, silently invalidating in-flight work.
func (e *Engine) StartSession(ctx context.Context, owner string, cfg *BotConfig) error {
	if owner == "" {
		return fmt.Errorf("owner is required")
	}
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if !cfg.Cluster.Valid() {
		return fmt.Errorf("unknown cluster %q", cfg.Cluster)
	}
	if cfg.Mode != ModeSnipe && cfg.Mode != ModeVolume {
		return fmt.Errorf("unknown mode %q", cfg.Mode)
	}
	if cfg.Mode == ModeVolume && cfg.Volume.TokenMint == "" {
		return fmt.Errorf("volume mode requires volume.tokenMint")
	}

	rt := e.runtime(cfg.Cluster)
	s := rt.sessionFor(owner)

	e.stopVolumeTimer(s)
	epoch := s.start(cfg)
	e.sessionLogf(s, "info", "session started mode=%s phase=%s targetMode=%s mev=%v epoch=%d",
		cfg.Mode, cfg.PumpFunPhase, cfg.SnipeTargetMode, cfg.MevEnabled, epoch)

	switch cfg.Mode {
	case ModeSnipe:
		if err := e.EnsureSubscription(ctx, cfg.Cluster); err != nil {
			// Stream errors never kill a session; the next Start retries.
			e.sessionLogf(s, "error", "log subscription failed: %v", err)
		}
	case ModeVolume:
		e.startVolumeTimer(s, cfg, epoch)
	}
	return nil
}

// StopSession flips the session off and closes the cluster stream when it
// was the last one running.
func (e *Engine) StopSession(ctx context.Context, cluster Cluster, owner string) error {
	if !cluster.Valid() {
		return fmt.Errorf("unknown cluster %q", cluster)
	}
	rt := e.runtime(cluster)
	s, ok := rt.findSession(owner)
	if !ok {
		return fmt.Errorf("no session for owner %s", shortOwner(owner))
	}
	e.stopVolumeTimer(s)
	s.stop()
	e.sessionLogf(s, "info", "session stopped")
	e.TeardownIfIdle(cluster)
	return nil
}

// SessionView is the edge-facing read model of a session.
type SessionView struct {
	Owner           string           `json:"owner"`
	Cluster         Cluster          `json:"cluster"`
	Running         bool             `json:"running"`
	PendingAction   *PendingAction   `json:"pendingAction,omitempty"`
	Bundles         []*BundleStatus  `json:"bundles"`
	AutoStats       AutoStats        `json:"autoStats"`
	LastVolumeRoute string           `json:"lastVolumeRoute,omitempty"`
	SessionLogs     []models.LogLine `json:"sessionLogs"`
	ClusterLogs     []models.LogLine `json:"clusterLogs"`
}

// GetSessionView snapshots a session for the edge. The pending action is
// copied so the caller never aliases engine-owned state.
func (e *Engine) GetSessionView(cluster Cluster, owner string) (*SessionView, error) {
	if !cluster.Valid() {
		return nil, fmt.Errorf("unknown cluster %q", cluster)
	}
	rt := e.runtime(cluster)
	s := rt.sessionFor(owner)

	s.mu.Lock()
	running := s.running
	var pending *PendingAction
	if s.pending != nil {
		cp := *s.pending
		cp.UnsignedTxsBase64 = append([]string(nil), s.pending.UnsignedTxsBase64...)
		pending = &cp
	}
	bundles := make([]*BundleStatus, 0, len(s.bundles))
	for _, b := range s.bundles {
		cp := *b
		bundles = append(bundles, &cp)
	}
	lastRoute := s.lastVolumeRoute
	s.mu.Unlock()

	return &SessionView{
		Owner:           owner,
		Cluster:         cluster,
		Running:         running,
		PendingAction:   pending,
		Bundles:         bundles,
		AutoStats:       s.statsSnapshot(),
		LastVolumeRoute: lastRoute,
		SessionLogs:     s.logs.Snapshot(),
		ClusterLogs:     rt.logs.Snapshot(),
	}, nil
}
