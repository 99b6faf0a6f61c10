package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"regexp"

	"github.com/gorilla/websocket"

	"github.com/rawblock/snipe-engine/internal/solana"
)

// StreamConn is the duplex WebSocket surface the log stream needs.
// *websocket.Conn satisfies it directly; tests inject scripted conns.
type StreamConn interface {
	WriteJSON(v interface{}) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// DialFunc opens a StreamConn to a node's WebSocket endpoint.
type DialFunc func(url string) (StreamConn, error)

func gorillaDial(url string) (StreamConn, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Cheap log-text predicates, applied before any RPC is spent on a signal.
// These are pre-filters, not correctness requirements.
var (
	raydiumInitRe  = regexp.MustCompile(`(?i)initialize2|initialize`)
	pumpFunTradeRe = regexp.MustCompile(`(?i)buy|sell|create|initialize`)
)

func passesLogHeuristic(source SignalSource, logs []string) bool {
	var re *regexp.Regexp
	switch source {
	case SourceRaydium:
		re = raydiumInitRe
	case SourcePumpFun:
		re = pumpFunTradeRe
	default:
		return false
	}
	for _, line := range logs {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// streamTopics maps subscription topics to the program IDs they mention.
var streamTopics = map[SignalSource]string{
	SourceRaydium: solana.RaydiumAMMProgram,
	SourcePumpFun: solana.PumpFunProgram,
}

type logsSubscribeRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// streamMessage covers both subscription confirmations and notifications.
type streamMessage struct {
	ID     *int64          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Method string          `json:"method,omitempty"`
	Params *struct {
		Subscription int64 `json:"subscription"`
		Result       struct {
			Value struct {
				Signature string   `json:"signature"`
				Logs      []string `json:"logs"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params,omitempty"`
}

// EnsureSubscription idempotently opens the cluster's WebSocket and registers
// one logsSubscribe per topic at processed commitment. Reconnection is not
// automatic; the next session start re-establishes a dropped connection.
// TODO: production deployments want exponential-backoff reconnect with atomic
// subscription-map replacement on re-open.
func (e *Engine) EnsureSubscription(ctx context.Context, cluster Cluster) error {
	rt := e.runtime(cluster)

	rt.mu.Lock()
	if rt.conn != nil {
		rt.mu.Unlock()
		return nil
	}
	url := e.wsURL[cluster]
	if url == "" {
		rt.mu.Unlock()
		return fmt.Errorf("no websocket url configured for cluster %s", cluster)
	}
	conn, err := e.dial(url)
	if err != nil {
		rt.mu.Unlock()
		return fmt.Errorf("dial %s stream: %v", cluster, err)
	}
	rt.conn = conn
	for topic, programID := range streamTopics {
		reqID := rand.Int63n(1 << 31)
		rt.pendingReq[reqID] = topic
		req := logsSubscribeRequest{
			JSONRPC: "2.0",
			ID:      reqID,
			Method:  "logsSubscribe",
			Params: []interface{}{
				map[string][]string{"mentions": {programID}},
				map[string]string{"commitment": "processed"},
			},
		}
		if err := conn.WriteJSON(req); err != nil {
			delete(rt.pendingReq, reqID)
			e.clusterLogf(rt, "error", "logsSubscribe %s write failed: %v", topic, err)
		}
	}
	rt.mu.Unlock()

	e.clusterLogf(rt, "info", "log stream connected, subscriptions requested")
	go e.readLoop(rt, conn)
	return nil
}

// TeardownIfIdle closes the stream when no session in the cluster remains
// running. Called after every session stop.
func (e *Engine) TeardownIfIdle(cluster Cluster) {
	rt := e.runtime(cluster)
	if rt.anyRunning() {
		return
	}
	if e.closeStream(rt) {
		e.clusterLogf(rt, "info", "no running sessions, log stream closed")
	}
}

// closeStream tears down the connection and clears all WS runtime state.
// Returns true when a live connection was actually closed.
func (e *Engine) closeStream(rt *ClusterRuntime) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.conn == nil {
		return false
	}
	_ = rt.conn.Close()
	rt.conn = nil
	rt.topicToSubID = make(map[SignalSource]int64)
	rt.subIDToTopic = make(map[int64]SignalSource)
	rt.pendingReq = make(map[int64]SignalSource)
	return true
}

// readLoop consumes the WebSocket until error or replacement. It never
// blocks on per-session work: notifications are handed off on a bounded
// channel and dropped when the dispatcher lags.
func (e *Engine) readLoop(rt *ClusterRuntime, conn StreamConn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			rt.mu.Lock()
			mine := rt.conn == conn
			rt.mu.Unlock()
			if mine {
				e.clusterLogf(rt, "warn", "log stream read error: %v", err)
				e.closeStream(rt)
			}
			return
		}
		e.handleStreamMessage(rt, raw)
	}
}

// handleStreamMessage processes one raw frame. Malformed frames, unknown
// subscription ids, and value-less notifications are dropped silently.
func (e *Engine) handleStreamMessage(rt *ClusterRuntime, raw []byte) {
	var msg streamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}

	// Subscription confirmation: numeric id with an integer result.
	if msg.ID != nil && len(msg.Result) > 0 {
		var subID int64
		if err := json.Unmarshal(msg.Result, &subID); err != nil {
			return
		}
		rt.mu.Lock()
		topic, ok := rt.pendingReq[*msg.ID]
		if ok {
			delete(rt.pendingReq, *msg.ID)
			rt.topicToSubID[topic] = subID
			rt.subIDToTopic[subID] = topic
		}
		rt.mu.Unlock()
		if ok {
			e.clusterLogf(rt, "info", "subscribed topic=%s subscription=%d", topic, subID)
		}
		return
	}

	if msg.Method != "logsNotification" || msg.Params == nil {
		return
	}
	rt.mu.Lock()
	topic, ok := rt.subIDToTopic[msg.Params.Subscription]
	rt.mu.Unlock()
	if !ok {
		return
	}
	value := msg.Params.Result.Value
	if value.Signature == "" || len(value.Logs) == 0 {
		return
	}

	select {
	case rt.notifications <- notification{source: topic, signature: value.Signature, logs: value.Logs}:
	default:
		// Firehose outpaced the dispatcher; shedding here keeps the reader hot.
	}
}

// dispatchLoop drains the notification channel for one cluster: dedup,
// cheap heuristic, backpressure pre-check, then the signal router.
func (e *Engine) dispatchLoop(rt *ClusterRuntime) {
	for {
		select {
		case <-e.ctx.Done():
			return
		case n := <-rt.notifications:
			if !rt.seen.Observe(n.signature) {
				continue
			}
			if !passesLogHeuristic(n.source, n.logs) {
				continue
			}
			if !e.anySessionWouldAccept(rt, n.source) {
				continue
			}
			e.routeSignal(rt, n)
		}
	}
}

// anySessionWouldAccept is the cheap pre-check that lets the dispatcher shed
// signals nobody cares about before the per-session filter runs.
func (e *Engine) anySessionWouldAccept(rt *ClusterRuntime, source SignalSource) bool {
	for _, s := range rt.sessionList() {
		cfg, _, running := s.snapshot()
		if !running || cfg == nil || s.hasPending() {
			continue
		}
		if sourceAccepted(cfg, source) {
			return true
		}
	}
	return false
}
