package solana

// Well-known program and mint addresses. Devnet and mainnet share the same
// program deployments for everything the engine touches.
const (
	RaydiumAMMProgram  = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	PumpFunProgram     = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
	TokenProgram       = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022Program   = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
	WrappedSOLMint     = "So11111111111111111111111111111111111111112"
	LamportsPerSOL     = 1_000_000_000
)

// AccountInfo is the decoded value of getAccountInfo / getMultipleAccounts.
// Data is the raw account bytes (the RPC layer decodes the base64 envelope).
type AccountInfo struct {
	Owner    string
	Data     []byte
	Lamports uint64
}

// TokenBalance is one entry of pre/postTokenBalances in transaction meta.
type TokenBalance struct {
	AccountIndex int    `json:"accountIndex"`
	Mint         string `json:"mint"`
	Owner        string `json:"owner,omitempty"`
}

// TransactionMeta carries the subset of getTransaction meta the engine reads.
type TransactionMeta struct {
	Err               interface{}    `json:"err"`
	PreTokenBalances  []TokenBalance `json:"preTokenBalances"`
	PostTokenBalances []TokenBalance `json:"postTokenBalances"`
}

// TransactionMessage is the json-encoded message of a fetched transaction.
// Only the static account keys matter to the engine; address-table lookups
// are not resolved (maxSupportedTransactionVersion=0 requests keep this flat).
type TransactionMessage struct {
	AccountKeys []string `json:"accountKeys"`
}

// TransactionEnvelope is the transaction part of a getTransaction result.
type TransactionEnvelope struct {
	Message    TransactionMessage `json:"message"`
	Signatures []string           `json:"signatures"`
}

// TransactionResult is a fetched confirmed/finalized transaction.
type TransactionResult struct {
	BlockTime   *int64              `json:"blockTime"`
	Meta        *TransactionMeta    `json:"meta"`
	Transaction TransactionEnvelope `json:"transaction"`
}

// StaticAccountKeys returns the message's static account keys, never nil.
func (t *TransactionResult) StaticAccountKeys() []string {
	if t == nil {
		return nil
	}
	return t.Transaction.Message.AccountKeys
}

// FeePayer returns the first static account key (the fee payer by convention),
// or "" when the message is empty.
func (t *TransactionResult) FeePayer() string {
	keys := t.StaticAccountKeys()
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

// TokenAmount is the RPC string-amount shape used by getTokenSupply and
// getTokenLargestAccounts.
type TokenAmount struct {
	Amount   string `json:"amount"`
	Decimals int    `json:"decimals"`
}

// LargestAccount is one holder entry from getTokenLargestAccounts.
type LargestAccount struct {
	Address  string `json:"address"`
	Amount   string `json:"amount"`
	Decimals int    `json:"decimals"`
}

// SignatureInfo is one entry from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string `json:"signature"`
	BlockTime *int64 `json:"blockTime,omitempty"`
}
