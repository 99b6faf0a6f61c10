package engine

import (
	"context"
	"encoding/json"

	"github.com/rawblock/snipe-engine/internal/solana"
	"github.com/rawblock/snipe-engine/pkg/models"
)

// RPCClient is the per-cluster Solana RPC surface the engine consumes.
// internal/solana.Client satisfies it; tests use fakes.
type RPCClient interface {
	GetLatestBlockhash(ctx context.Context, commitment string) (string, error)
	GetTransaction(ctx context.Context, signature, commitment string) (*solana.TransactionResult, error)
	GetAccountInfo(ctx context.Context, pubkey, commitment string) (*solana.AccountInfo, error)
	GetMultipleAccounts(ctx context.Context, pubkeys []string) ([]*solana.AccountInfo, error)
	GetTokenSupply(ctx context.Context, mint string) (uint64, int, error)
	GetTokenLargestAccounts(ctx context.Context, mint string) ([]solana.LargestAccount, error)
}

// SwapBuildParams describe a placeholder swap-intent transaction.
type SwapBuildParams struct {
	Cluster          Cluster
	Owner            string
	AmountSol        float64
	Blockhash        string
	Memo             string
	ComputeUnitLimit uint32
	ComputeUnitPrice uint64 // microlamports
}

// TipBuildParams describe a validator tip transaction (native transfer plus
// memo, owner as payer).
type TipBuildParams struct {
	Cluster     Cluster
	Owner       string
	TipAccount  string
	TipLamports uint64
	Blockhash   string
	Memo        string
}

// SwapAdapter builds unsigned transactions for the snipe path. The concrete
// venue-specific swap instruction is out of the engine's hands.
type SwapAdapter interface {
	BuildUnsignedBuyTxBase64(ctx context.Context, p SwapBuildParams) (string, error)
	BuildUnsignedSellTxBase64(ctx context.Context, p SwapBuildParams) (string, error)
	BuildUnsignedTipTxBase64(ctx context.Context, p TipBuildParams) (string, error)
}

// QuoteParams is a DEX-aggregator quote request.
type QuoteParams struct {
	InputMint   string
	OutputMint  string
	Amount      uint64
	SlippageBps int
}

// AggQuote is an aggregator quote. Raw is passed back verbatim on swap build
// so the aggregator can apply its own routing payload.
type AggQuote struct {
	InputMint  string
	OutputMint string
	InAmount   uint64
	OutAmount  uint64
	Raw        json.RawMessage
}

// DexAggregatorAdapter is the primary volume route (Jupiter-style quote+swap).
type DexAggregatorAdapter interface {
	Quote(ctx context.Context, p QuoteParams) (*AggQuote, error)
	SwapTxBase64(ctx context.Context, quote *AggQuote, userPublicKey string, wrapAndUnwrapSol bool) (string, error)
}

// TradeLocalParams is a request to the trade-local fallback builder.
type TradeLocalParams struct {
	Owner            string
	Mint             string
	Action           string // buy | sell
	Pool             string // pump | raydium
	Amount           float64
	DenominatedInSol bool
	SlippagePercent  int
	PriorityFeeSol   float64
}

// TradeLocalAdapter is the volume fallback route (PumpPortal-style). The
// adapter normalizes whatever encoding the upstream returns to base64.
type TradeLocalAdapter interface {
	TradeTxBase64(ctx context.Context, p TradeLocalParams) (string, error)
}

// BlockEngineClient is the MEV block-engine surface. Tip accounts should be
// cached by the implementation (30 min, stale-on-error).
type BlockEngineClient interface {
	GetTipAccounts(ctx context.Context, cluster Cluster) ([]string, error)
	SimulateBundle(ctx context.Context, cluster Cluster, txsBase58 []string) (json.RawMessage, error)
	SendBundle(ctx context.Context, cluster Cluster, txsBase58 []string) (json.RawMessage, error)
	GetBundleStatuses(ctx context.Context, cluster Cluster, ids []string) (json.RawMessage, error)
}

// TxInspector decodes client-signed transactions for bundle preparation.
type TxInspector interface {
	// FirstSignatureBase58 returns the transaction's first signature.
	FirstSignatureBase58(txBase64 string) (string, error)
	// ToBase58 re-encodes the signed transaction bytes as base58 for the
	// block-engine wire format.
	ToBase58(txBase64 string) (string, error)
	// TipTransferDest returns the destination of a plain native transfer, or
	// "" when the transaction is not one.
	TipTransferDest(txBase64 string) (string, error)
}

// AuditSink records bundle lifecycle events. Nil-safe at every call site:
// the engine runs without persistence when no sink is configured.
type AuditSink interface {
	SaveBundleEvent(ctx context.Context, ev models.BundleEvent) error
}

// VizFunc receives every engine log line for dashboard streaming.
type VizFunc func(level, message string, cluster Cluster, owner string)
