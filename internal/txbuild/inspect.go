package txbuild

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
)

// systemTransferIndex is the SystemProgram instruction discriminator for
// Transfer (little-endian u32 at the head of the instruction data).
const systemTransferIndex = 2

func decodeTx(txBase64 string) (*solanago.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %v", err)
	}
	tx, err := solanago.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("deserialize tx: %v", err)
	}
	return tx, nil
}

// FirstSignatureBase58 returns the transaction's first signature, the
// per-transaction identifier the rest of the pipeline keys on.
func (b *Builder) FirstSignatureBase58(txBase64 string) (string, error) {
	tx, err := decodeTx(txBase64)
	if err != nil {
		return "", err
	}
	if len(tx.Signatures) == 0 {
		return "", fmt.Errorf("transaction carries no signatures")
	}
	return tx.Signatures[0].String(), nil
}

// ToBase58 re-encodes signed transaction bytes in the block-engine wire
// format.
func (b *Builder) ToBase58(txBase64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %v", err)
	}
	return base58.Encode(raw), nil
}

// TipTransferDest returns the destination of the first native transfer in the
// transaction, or "" when it contains none. Used by the tip-last heuristic
// during bundle preparation.
func (b *Builder) TipTransferDest(txBase64 string) (string, error) {
	tx, err := decodeTx(txBase64)
	if err != nil {
		return "", err
	}
	msg := &tx.Message
	keys := msg.AccountKeys
	for _, ci := range msg.Instructions {
		if int(ci.ProgramIDIndex) >= len(keys) {
			continue
		}
		if !keys[ci.ProgramIDIndex].Equals(system.ProgramID) {
			continue
		}
		data := []byte(ci.Data)
		if len(data) < 12 || binary.LittleEndian.Uint32(data[0:4]) != systemTransferIndex {
			continue
		}
		if len(ci.Accounts) < 2 || int(ci.Accounts[1]) >= len(keys) {
			continue
		}
		return keys[ci.Accounts[1]].String(), nil
	}
	return "", nil
}
