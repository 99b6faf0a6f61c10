package engine

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rawblock/snipe-engine/internal/solana"
)

const (
	swapComputeUnitLimit = 1_000_000
	swapComputeUnitPrice = 20_000 // microlamports

	// Tip randomization defeats amount fingerprinting of our bundles.
	tipBaseLamports   = 1_000
	tipJitterLamports = 50_000

	// fallbackRouteTimeout bounds each trade-local fallback call.
	fallbackRouteTimeout = 5 * time.Second
)

// Materialize builds the unsigned transactions for the session's pending
// action just-in-time. Idempotent: a pending action whose transactions are
// already populated is returned as-is.
func (e *Engine) Materialize(ctx context.Context, cluster Cluster, owner string) error {
	if !cluster.Valid() {
		return fmt.Errorf("unknown cluster %q", cluster)
	}
	rt := e.runtime(cluster)
	s, ok := rt.findSession(owner)
	if !ok {
		return fmt.Errorf("no session for owner %s", shortOwner(owner))
	}

	s.proc.Lock()
	defer s.proc.Unlock()

	cfg, epoch, running := s.snapshot()
	if !running || cfg == nil {
		return fmt.Errorf("session is not running")
	}
	pa := s.pendingAction()
	if pa == nil {
		return fmt.Errorf("no pending action")
	}
	if !pa.NeedsUnsignedTxs {
		return nil
	}

	txs, route, err := e.buildUnsignedTxs(ctx, cluster, s, cfg, pa)
	if err != nil {
		e.sessionLogf(s, "error", "materialization failed: %v", err)
		s.clearPending()
		if cfg.Mode == ModeVolume {
			// Throttle the timer so a broken route does not spin at 1 Hz.
			s.mu.Lock()
			s.lastVolumeActionMs = e.now().UnixMilli()
			s.mu.Unlock()
		}
		return err
	}
	if !s.stillValid(cfg, epoch) {
		// Restarted mid-build: discard the result without observable effect.
		return nil
	}

	s.mu.Lock()
	if s.pending == pa {
		pa.UnsignedTxsBase64 = txs
		pa.NeedsUnsignedTxs = false
		if route != "" {
			s.lastVolumeRoute = route
		}
	}
	s.mu.Unlock()
	e.sessionLogf(s, "info", "materialized %d unsigned tx(s) route=%s trigger=%s", len(txs), route, pa.TriggerSignature)
	return nil
}

func (e *Engine) buildUnsignedTxs(ctx context.Context, cluster Cluster, s *Session, cfg *BotConfig, pa *PendingAction) ([]string, string, error) {
	var txs []string
	route := ""

	switch cfg.Mode {
	case ModeSnipe:
		built, err := e.buildSnipeTxs(ctx, cluster, s, cfg, pa)
		if err != nil {
			return nil, "", err
		}
		txs = built
	case ModeVolume:
		built, r, err := e.buildVolumeTxs(ctx, s, cfg)
		if err != nil {
			return nil, "", err
		}
		txs = built
		route = r
	default:
		return nil, "", fmt.Errorf("unknown mode %q", cfg.Mode)
	}

	if cfg.MevEnabled {
		tip := e.buildTipTx(ctx, cluster, s, pa)
		if tip != "" {
			// Tip must be the last element; Prepare validates this ordering.
			txs = append(txs, tip)
		}
	}
	return txs, route, nil
}

// buildSnipeTxs builds the placeholder swap-intent transaction with a fresh
// blockhash at processed commitment.
func (e *Engine) buildSnipeTxs(ctx context.Context, cluster Cluster, s *Session, cfg *BotConfig, pa *PendingAction) ([]string, error) {
	blockhash, err := e.freshBlockhash(cluster)
	if err != nil {
		return nil, fmt.Errorf("blockhash: %v", err)
	}
	memo := fmt.Sprintf("snipe mode=%s phase=%s src=%s sig=%s mint=%s",
		cfg.Mode, cfg.PumpFunPhase, pa.Source, pa.TriggerSignature, pa.TargetMint)
	tx, err := e.swap.BuildUnsignedBuyTxBase64(ctx, SwapBuildParams{
		Cluster:          cluster,
		Owner:            s.owner,
		AmountSol:        cfg.BuyAmountSol,
		Blockhash:        blockhash,
		Memo:             memo,
		ComputeUnitLimit: swapComputeUnitLimit,
		ComputeUnitPrice: swapComputeUnitPrice,
	})
	if err != nil {
		return nil, fmt.Errorf("build swap tx: %v", err)
	}
	return []string{tx}, nil
}

func (e *Engine) freshBlockhash(cluster Cluster) (string, error) {
	rpc := e.rpc[cluster]
	if rpc == nil {
		return "", fmt.Errorf("no rpc client for cluster %s", cluster)
	}
	var blockhash string
	err := e.rpcRetry(cluster, 3, 200*time.Millisecond, func(ctx context.Context) error {
		bh, err := rpc.GetLatestBlockhash(ctx, "processed")
		if err != nil {
			return err
		}
		blockhash = bh
		return nil
	})
	return blockhash, err
}

// buildTipTx builds the validator tip transfer, or returns "" when the tip is
// skipped (devnet, tip-account lookup failure, or build failure). A missing
// tip degrades the bundle, it never fails the action.
func (e *Engine) buildTipTx(ctx context.Context, cluster Cluster, s *Session, pa *PendingAction) string {
	if cluster == ClusterDevnet {
		e.sessionLogf(s, "warn", "mev enabled on devnet, skipping tip (bundles are mainnet-only)")
		return ""
	}
	accounts, err := e.blockEngine.GetTipAccounts(ctx, cluster)
	if err != nil || len(accounts) == 0 {
		e.sessionLogf(s, "warn", "tip accounts unavailable (%v), proceeding without tip", err)
		return ""
	}
	blockhash, err := e.freshBlockhash(cluster)
	if err != nil {
		e.sessionLogf(s, "warn", "tip blockhash unavailable (%v), proceeding without tip", err)
		return ""
	}
	tipAccount := accounts[rand.Intn(len(accounts))]
	tipLamports := uint64(tipBaseLamports + rand.Int63n(tipJitterLamports))
	tip, err := e.swap.BuildUnsignedTipTxBase64(ctx, TipBuildParams{
		Cluster:     cluster,
		Owner:       s.owner,
		TipAccount:  tipAccount,
		TipLamports: tipLamports,
		Blockhash:   blockhash,
		Memo:        "tip " + pa.TriggerSignature,
	})
	if err != nil {
		e.sessionLogf(s, "warn", "tip build failed (%v), proceeding without tip", err)
		return ""
	}
	return tip
}

// buildVolumeTxs attempts the volume routes strictly in order: aggregator,
// pre-migration launchpad, post-migration AMM. Each later route runs only
// when the prior one raised.
func (e *Engine) buildVolumeTxs(ctx context.Context, s *Session, cfg *BotConfig) ([]string, string, error) {
	mint := cfg.Volume.TokenMint
	lamports := uint64(cfg.BuyAmountSol * solana.LamportsPerSOL)

	txs, aggErr := e.tryAggregatorRoute(ctx, s.owner, cfg, mint, lamports)
	if aggErr == nil {
		return txs, "jupiter", nil
	}
	e.sessionLogf(s, "warn", "aggregator route failed: %v", aggErr)
	if cfg.Volume.Roundtrip {
		// Fallback routes cannot size the sell leg: the received token
		// balance is unknown before the first buy lands.
		e.sessionLogf(s, "warn", "roundtrip not supported on fallback routes, degrading to buy-only")
	}

	slippagePercent := (cfg.Volume.SlippageBps + 99) / 100
	if slippagePercent < 1 {
		slippagePercent = 1
	}
	trade := TradeLocalParams{
		Owner:            s.owner,
		Mint:             mint,
		Action:           "buy",
		Amount:           cfg.BuyAmountSol,
		DenominatedInSol: true,
		SlippagePercent:  slippagePercent,
	}

	trade.Pool = "pump"
	pumpCtx, cancel := context.WithTimeout(ctx, fallbackRouteTimeout)
	tx, pumpErr := e.tradeLocal.TradeTxBase64(pumpCtx, trade)
	cancel()
	if pumpErr == nil {
		return []string{tx}, "pumpfun", nil
	}
	e.sessionLogf(s, "warn", "launchpad fallback failed: %v", pumpErr)

	trade.Pool = "raydium"
	rayCtx, cancel := context.WithTimeout(ctx, fallbackRouteTimeout)
	tx, rayErr := e.tradeLocal.TradeTxBase64(rayCtx, trade)
	cancel()
	if rayErr == nil {
		return []string{tx}, "raydium", nil
	}

	return nil, "", fmt.Errorf("all volume routes failed: aggregator: %v; pump: %v; raydium: %v", aggErr, pumpErr, rayErr)
}

func (e *Engine) tryAggregatorRoute(ctx context.Context, owner string, cfg *BotConfig, mint string, lamports uint64) ([]string, error) {
	quote, err := e.aggregator.Quote(ctx, QuoteParams{
		InputMint:   solana.WrappedSOLMint,
		OutputMint:  mint,
		Amount:      lamports,
		SlippageBps: cfg.Volume.SlippageBps,
	})
	if err != nil {
		return nil, fmt.Errorf("quote: %v", err)
	}
	buyTx, err := e.aggregator.SwapTxBase64(ctx, quote, owner, true)
	if err != nil {
		return nil, fmt.Errorf("swap build: %v", err)
	}
	txs := []string{buyTx}

	if cfg.Volume.Roundtrip {
		sellQuote, err := e.aggregator.Quote(ctx, QuoteParams{
			InputMint:   mint,
			OutputMint:  solana.WrappedSOLMint,
			Amount:      quote.OutAmount,
			SlippageBps: cfg.Volume.SlippageBps,
		})
		if err != nil {
			return nil, fmt.Errorf("roundtrip quote: %v", err)
		}
		sellTx, err := e.aggregator.SwapTxBase64(ctx, sellQuote, owner, true)
		if err != nil {
			return nil, fmt.Errorf("roundtrip swap build: %v", err)
		}
		txs = append(txs, sellTx)
	}
	return txs, nil
}
