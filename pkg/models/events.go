package models

// VizEvent is a single classified log line pushed to dashboard clients over
// the viz WebSocket stream. Component is a heuristic tag (see api.ClassifyLogLine),
// never a routing key.
type VizEvent struct {
	Component string `json:"component"`
	Level     string `json:"level"` // info | warn | error
	Message   string `json:"message"`
	Cluster   string `json:"cluster,omitempty"`
	Owner     string `json:"owner,omitempty"`
	Timestamp int64  `json:"timestamp"` // unix ms
}

// BundleEvent is the write-only audit record persisted for every bundle
// lifecycle transition. It is never read back into engine state.
type BundleEvent struct {
	Cluster   string `json:"cluster"`
	Owner     string `json:"owner"`
	LocalID   string `json:"localId"`
	RemoteID  string `json:"remoteId,omitempty"`
	State     string `json:"state"`
	Error     string `json:"error,omitempty"`
	CreatedAt int64  `json:"createdAt"` // unix ms
}

// LogLine is one entry of a bounded session or cluster log ring.
type LogLine struct {
	Timestamp int64  `json:"timestamp"` // unix ms
	Level     string `json:"level"`
	Message   string `json:"message"`
}
