package engine

import (
	"context"
	"fmt"
	"time"
)

// minVolumeIntervalSec is the cadence floor for the volume loop.
const minVolumeIntervalSec = 2

// startVolumeTimer launches the per-session volume loop for the captured
// (config, epoch). Restarting a session cancels the old loop before the new
// one starts, so there is never more than one timer per session.
func (e *Engine) startVolumeTimer(s *Session, cfg *BotConfig, epoch uint64) {
	ctx, cancel := context.WithCancel(e.baseCtx())
	s.mu.Lock()
	s.volumeCancel = cancel
	s.mu.Unlock()
	go e.volumeLoop(ctx, s, cfg, epoch)
	e.sessionLogf(s, "info", "volume timer started interval=%ds roundtrip=%v mint=%s",
		effectiveInterval(cfg), cfg.Volume.Roundtrip, cfg.Volume.TokenMint)
}

func (e *Engine) stopVolumeTimer(s *Session) {
	s.mu.Lock()
	cancel := s.volumeCancel
	s.volumeCancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func effectiveInterval(cfg *BotConfig) int {
	if cfg.Volume.IntervalSec < minVolumeIntervalSec {
		return minVolumeIntervalSec
	}
	return cfg.Volume.IntervalSec
}

// volumeLoop ticks at 1 Hz for responsiveness; the configured interval gates
// how often an action is actually armed.
func (e *Engine) volumeLoop(ctx context.Context, s *Session, cfg *BotConfig, epoch uint64) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	intervalMs := int64(effectiveInterval(cfg)) * 1000

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !s.stillValid(cfg, epoch) {
			return
		}
		if cfg.Mode != ModeVolume || !cfg.Volume.Enabled {
			continue
		}
		if s.hasPending() {
			continue
		}
		nowMs := e.now().UnixMilli()
		s.mu.Lock()
		due := nowMs-s.lastVolumeActionMs >= intervalMs
		s.mu.Unlock()
		if !due {
			continue
		}

		// Contend for the same serialization point as the signal pipeline so
		// the check-then-arm stays totally ordered per session.
		s.proc.Lock()
		if s.stillValid(cfg, epoch) && !s.hasPending() {
			reason := "volume one-leg buy"
			if cfg.Volume.Roundtrip {
				reason = "volume roundtrip buy+sell"
			}
			trigger := fmt.Sprintf("volumeTimer:%d", nowMs)
			if e.armPending(s, cfg, epoch, SourceVolumeTimer, trigger, cfg.Volume.TokenMint, reason) {
				s.mu.Lock()
				s.lastVolumeActionMs = nowMs
				s.mu.Unlock()
			}
		}
		s.proc.Unlock()
	}
}
