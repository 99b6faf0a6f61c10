package engine

import (
	"sync"
	"time"

	"github.com/rawblock/snipe-engine/pkg/models"
)

const logRingCap = 500

// LogRing is a bounded append-only log buffer. Writers trim oldest-first;
// readers get a snapshot copy.
type LogRing struct {
	mu    sync.Mutex
	lines []models.LogLine
}

func NewLogRing() *LogRing {
	return &LogRing{}
}

func (r *LogRing) Append(level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, models.LogLine{
		Timestamp: time.Now().UnixMilli(),
		Level:     level,
		Message:   message,
	})
	if len(r.lines) > logRingCap {
		r.lines = r.lines[len(r.lines)-logRingCap:]
	}
}

// Snapshot returns a copy of the current lines, oldest first.
func (r *LogRing) Snapshot() []models.LogLine {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.LogLine, len(r.lines))
	copy(out, r.lines)
	return out
}
