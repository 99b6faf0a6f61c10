package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rawblock/snipe-engine/internal/solana"
	"github.com/rawblock/snipe-engine/pkg/models"
)

// fakeRPC scripts the Solana RPC surface with function fields. Unset fields
// fail loudly so a test never silently exercises an unscripted path.
type fakeRPC struct {
	blockhashFn       func(commitment string) (string, error)
	transactionFn     func(signature, commitment string) (*solana.TransactionResult, error)
	accountInfoFn     func(pubkey string) (*solana.AccountInfo, error)
	multipleFn        func(pubkeys []string) ([]*solana.AccountInfo, error)
	supplyFn          func(mint string) (uint64, int, error)
	largestAccountsFn func(mint string) ([]solana.LargestAccount, error)
}

func (f *fakeRPC) GetLatestBlockhash(ctx context.Context, commitment string) (string, error) {
	if f.blockhashFn == nil {
		return "", fmt.Errorf("unscripted GetLatestBlockhash")
	}
	return f.blockhashFn(commitment)
}

func (f *fakeRPC) GetTransaction(ctx context.Context, signature, commitment string) (*solana.TransactionResult, error) {
	if f.transactionFn == nil {
		return nil, fmt.Errorf("unscripted GetTransaction")
	}
	return f.transactionFn(signature, commitment)
}

func (f *fakeRPC) GetAccountInfo(ctx context.Context, pubkey, commitment string) (*solana.AccountInfo, error) {
	if f.accountInfoFn == nil {
		return nil, fmt.Errorf("unscripted GetAccountInfo")
	}
	return f.accountInfoFn(pubkey)
}

func (f *fakeRPC) GetMultipleAccounts(ctx context.Context, pubkeys []string) ([]*solana.AccountInfo, error) {
	if f.multipleFn == nil {
		return nil, fmt.Errorf("unscripted GetMultipleAccounts")
	}
	return f.multipleFn(pubkeys)
}

func (f *fakeRPC) GetTokenSupply(ctx context.Context, mint string) (uint64, int, error) {
	if f.supplyFn == nil {
		return 0, 0, fmt.Errorf("unscripted GetTokenSupply")
	}
	return f.supplyFn(mint)
}

func (f *fakeRPC) GetTokenLargestAccounts(ctx context.Context, mint string) ([]solana.LargestAccount, error) {
	if f.largestAccountsFn == nil {
		return nil, fmt.Errorf("unscripted GetTokenLargestAccounts")
	}
	return f.largestAccountsFn(mint)
}

// fakeBlockEngine scripts the Jito surface.
type fakeBlockEngine struct {
	tipAccounts []string
	tipErr      error
	simResult   json.RawMessage
	simErr      error
	sendResult  json.RawMessage
	sendErr     error
	statuses    json.RawMessage
	statusErr   error
}

func (f *fakeBlockEngine) GetTipAccounts(ctx context.Context, cluster Cluster) ([]string, error) {
	return f.tipAccounts, f.tipErr
}

func (f *fakeBlockEngine) SimulateBundle(ctx context.Context, cluster Cluster, txsBase58 []string) (json.RawMessage, error) {
	return f.simResult, f.simErr
}

func (f *fakeBlockEngine) SendBundle(ctx context.Context, cluster Cluster, txsBase58 []string) (json.RawMessage, error) {
	return f.sendResult, f.sendErr
}

func (f *fakeBlockEngine) GetBundleStatuses(ctx context.Context, cluster Cluster, ids []string) (json.RawMessage, error) {
	return f.statuses, f.statusErr
}

// fakeSwap returns marker strings instead of real transactions so tests can
// assert ordering without decoding anything.
type fakeSwap struct {
	buyErr error
	tipErr error
}

func (f *fakeSwap) BuildUnsignedBuyTxBase64(ctx context.Context, p SwapBuildParams) (string, error) {
	if f.buyErr != nil {
		return "", f.buyErr
	}
	return "buy-tx:" + p.Owner, nil
}

func (f *fakeSwap) BuildUnsignedSellTxBase64(ctx context.Context, p SwapBuildParams) (string, error) {
	return "sell-tx:" + p.Owner, nil
}

func (f *fakeSwap) BuildUnsignedTipTxBase64(ctx context.Context, p TipBuildParams) (string, error) {
	if f.tipErr != nil {
		return "", f.tipErr
	}
	return "tip-tx:" + p.TipAccount, nil
}

// fakeAggregator scripts the Jupiter route.
type fakeAggregator struct {
	quoteErr error
	swapErr  error
	calls    int
}

func (f *fakeAggregator) Quote(ctx context.Context, p QuoteParams) (*AggQuote, error) {
	f.calls++
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return &AggQuote{
		InputMint:  p.InputMint,
		OutputMint: p.OutputMint,
		InAmount:   p.Amount,
		OutAmount:  p.Amount * 2,
		Raw:        json.RawMessage(`{}`),
	}, nil
}

func (f *fakeAggregator) SwapTxBase64(ctx context.Context, quote *AggQuote, userPublicKey string, wrapAndUnwrapSol bool) (string, error) {
	if f.swapErr != nil {
		return "", f.swapErr
	}
	return fmt.Sprintf("agg-tx:%s->%s", quote.InputMint, quote.OutputMint), nil
}

// fakeTradeLocal scripts the trade-local fallback with a per-pool error map.
type fakeTradeLocal struct {
	poolErr map[string]error
}

func (f *fakeTradeLocal) TradeTxBase64(ctx context.Context, p TradeLocalParams) (string, error) {
	if err := f.poolErr[p.Pool]; err != nil {
		return "", err
	}
	return "local-tx:" + p.Pool, nil
}

// fakeInspector treats the "tx" payload as a colon-separated marker:
// "<sig>:<tipDest>" where tipDest may be empty.
type fakeInspector struct{}

func (fakeInspector) FirstSignatureBase58(txBase64 string) (string, error) {
	parts := strings.SplitN(txBase64, ":", 2)
	if parts[0] == "" {
		return "", fmt.Errorf("malformed test tx %q", txBase64)
	}
	return parts[0], nil
}

func (fakeInspector) ToBase58(txBase64 string) (string, error) {
	return "b58(" + txBase64 + ")", nil
}

func (fakeInspector) TipTransferDest(txBase64 string) (string, error) {
	parts := strings.SplitN(txBase64, ":", 2)
	if len(parts) < 2 {
		return "", nil
	}
	return parts[1], nil
}

// fakeAudit records every bundle event.
type fakeAudit struct {
	mu     sync.Mutex
	events []models.BundleEvent
	err    error
}

func (f *fakeAudit) SaveBundleEvent(ctx context.Context, ev models.BundleEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakeAudit) recorded() []models.BundleEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.BundleEvent, len(f.events))
	copy(out, f.events)
	return out
}

// newTestEngine builds an engine with fakes on both clusters and no started
// dispatchers. Tests drive the pipeline synchronously.
func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	if opts.RPC == nil {
		opts.RPC = map[Cluster]RPCClient{
			ClusterMainnet: &fakeRPC{},
			ClusterDevnet:  &fakeRPC{},
		}
	}
	if opts.BlockEngine == nil {
		opts.BlockEngine = &fakeBlockEngine{}
	}
	if opts.Swap == nil {
		opts.Swap = &fakeSwap{}
	}
	if opts.Aggregator == nil {
		opts.Aggregator = &fakeAggregator{}
	}
	if opts.TradeLocal == nil {
		opts.TradeLocal = &fakeTradeLocal{}
	}
	if opts.Inspector == nil {
		opts.Inspector = fakeInspector{}
	}
	return NewEngine(opts)
}

// startedSession installs and starts a session directly, bypassing the edge.
func startedSession(e *Engine, cluster Cluster, owner string, cfg *BotConfig) (*ClusterRuntime, *Session, uint64) {
	rt := e.runtime(cluster)
	s := rt.sessionFor(owner)
	epoch := s.start(cfg)
	return rt, s, epoch
}

// mintAccountData builds an 82-byte token mint account image.
func mintAccountData(mintAuthOpt, freezeAuthOpt uint32, supply uint64, initialized bool) []byte {
	data := make([]byte, 82)
	putUint32LE(data[0:], mintAuthOpt)
	putUint64LE(data[36:], supply)
	data[44] = 9
	if initialized {
		data[45] = 1
	}
	putUint32LE(data[46:], freezeAuthOpt)
	return data
}

func putUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putUint64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// tradeTx builds a TransactionResult carrying one post-only token balance for
// mint, paid for by payer.
func tradeTx(payer, mint string, alsoInPre bool) *solana.TransactionResult {
	meta := &solana.TransactionMeta{
		PostTokenBalances: []solana.TokenBalance{{AccountIndex: 1, Mint: mint}},
	}
	if alsoInPre {
		meta.PreTokenBalances = []solana.TokenBalance{{AccountIndex: 1, Mint: mint}}
	}
	return &solana.TransactionResult{
		Meta: meta,
		Transaction: solana.TransactionEnvelope{
			Message:    solana.TransactionMessage{AccountKeys: []string{payer, mint}},
			Signatures: []string{"sig"},
		},
	}
}
