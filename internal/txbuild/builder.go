// Package txbuild builds the engine's unsigned transactions (placeholder
// swap intent, validator tip) and inspects client-signed transactions for
// bundle preparation.
package txbuild

import (
	"context"
	"encoding/base64"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/rawblock/snipe-engine/internal/engine"
)

// Memo program v2. Tagging every engine-built transaction with a memo makes
// them attributable in explorers without any off-chain lookup.
var memoProgramID = solanago.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

// Builder implements engine.SwapAdapter and engine.TxInspector.
type Builder struct{}

func NewBuilder() *Builder {
	return &Builder{}
}

// BuildUnsignedBuyTxBase64 builds the swap-intent placeholder: compute-budget
// instructions plus a tagging memo, owner as payer. A production deployment
// swaps the memo for a venue-specific swap instruction; nothing downstream
// depends on which.
func (b *Builder) BuildUnsignedBuyTxBase64(ctx context.Context, p engine.SwapBuildParams) (string, error) {
	return b.buildIntentTx(p, "buy")
}

// BuildUnsignedSellTxBase64 is the sell-side counterpart of the buy builder.
func (b *Builder) BuildUnsignedSellTxBase64(ctx context.Context, p engine.SwapBuildParams) (string, error) {
	return b.buildIntentTx(p, "sell")
}

func (b *Builder) buildIntentTx(p engine.SwapBuildParams, side string) (string, error) {
	owner, err := solanago.PublicKeyFromBase58(p.Owner)
	if err != nil {
		return "", fmt.Errorf("owner pubkey: %v", err)
	}
	blockhash, err := solanago.HashFromBase58(p.Blockhash)
	if err != nil {
		return "", fmt.Errorf("blockhash: %v", err)
	}

	instrs := []solanago.Instruction{
		computebudget.NewSetComputeUnitLimitInstruction(p.ComputeUnitLimit).Build(),
		computebudget.NewSetComputeUnitPriceInstruction(p.ComputeUnitPrice).Build(),
		memoInstruction(fmt.Sprintf("%s amountSol=%.9f %s", side, p.AmountSol, p.Memo), owner),
	}
	tx, err := solanago.NewTransaction(instrs, blockhash, solanago.TransactionPayer(owner))
	if err != nil {
		return "", fmt.Errorf("assemble %s tx: %v", side, err)
	}
	return encodeTx(tx)
}

// BuildUnsignedTipTxBase64 builds the validator tip transaction: a plain
// native transfer from owner to the tip account, followed by a memo.
func (b *Builder) BuildUnsignedTipTxBase64(ctx context.Context, p engine.TipBuildParams) (string, error) {
	owner, err := solanago.PublicKeyFromBase58(p.Owner)
	if err != nil {
		return "", fmt.Errorf("owner pubkey: %v", err)
	}
	tipAccount, err := solanago.PublicKeyFromBase58(p.TipAccount)
	if err != nil {
		return "", fmt.Errorf("tip account pubkey: %v", err)
	}
	blockhash, err := solanago.HashFromBase58(p.Blockhash)
	if err != nil {
		return "", fmt.Errorf("blockhash: %v", err)
	}

	instrs := []solanago.Instruction{
		system.NewTransferInstruction(p.TipLamports, owner, tipAccount).Build(),
	}
	if p.Memo != "" {
		instrs = append(instrs, memoInstruction(p.Memo, owner))
	}
	tx, err := solanago.NewTransaction(instrs, blockhash, solanago.TransactionPayer(owner))
	if err != nil {
		return "", fmt.Errorf("assemble tip tx: %v", err)
	}
	return encodeTx(tx)
}

func memoInstruction(text string, signer solanago.PublicKey) solanago.Instruction {
	return solanago.NewInstruction(
		memoProgramID,
		solanago.AccountMetaSlice{solanago.Meta(signer).SIGNER()},
		[]byte(text),
	)
}

func encodeTx(tx *solanago.Transaction) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("serialize tx: %v", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
