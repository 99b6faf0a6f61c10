package solana

import (
	"encoding/binary"
	"fmt"
)

// mintLayoutSize is the fixed SPL mint account prefix. Token-2022 mints carry
// a TLV extension suffix after this prefix.
const mintLayoutSize = 82

// MintAccount is the parsed fixed-layout portion of an SPL mint account.
// The option tags are COption discriminators: 0 = authority absent/revoked.
type MintAccount struct {
	MintAuthorityOption   uint32
	Supply                uint64
	Decimals              uint8
	IsInitialized         bool
	FreezeAuthorityOption uint32
}

// ParseMint decodes the 82-byte SPL mint layout. Extension bytes past the
// fixed prefix are ignored here; see ParseExtensionTypes.
func ParseMint(data []byte) (*MintAccount, error) {
	if len(data) < mintLayoutSize {
		return nil, fmt.Errorf("mint account too short: %d bytes", len(data))
	}
	return &MintAccount{
		MintAuthorityOption:   binary.LittleEndian.Uint32(data[0:4]),
		Supply:                binary.LittleEndian.Uint64(data[36:44]),
		Decimals:              data[44],
		IsInitialized:         data[45] != 0,
		FreezeAuthorityOption: binary.LittleEndian.Uint32(data[46:50]),
	}, nil
}

// ExtensionType identifiers carried in the token-2022 TLV suffix.
const (
	ExtTransferFeeConfig       uint16 = 1
	ExtConfidentialTransfer    uint16 = 4
	ExtInterestBearing         uint16 = 10
	ExtPermanentDelegate       uint16 = 12
	ExtTransferHook            uint16 = 14
	ExtConfidentialTransferFee uint16 = 16
)

// BlockedExtensions are token-2022 extensions that make a mint unsafe to
// snipe: they let the issuer tax, freeze, reclaim, or intercept transfers.
var BlockedExtensions = map[uint16]string{
	ExtTransferFeeConfig:       "transfer fee",
	ExtConfidentialTransfer:    "confidential transfer",
	ExtInterestBearing:         "interest bearing",
	ExtPermanentDelegate:       "permanent delegate",
	ExtTransferHook:            "transfer hook",
	ExtConfidentialTransferFee: "confidential transfer fee",
}

// ParseExtensionTypes walks the [u16 type][u16 len][len bytes] TLV records
// after the fixed mint prefix. Truncated or malformed suffixes yield the
// records parsed so far; a bad TLV never fails the caller.
func ParseExtensionTypes(data []byte) []uint16 {
	var types []uint16
	if len(data) <= mintLayoutSize {
		return types
	}
	buf := data[mintLayoutSize:]
	for len(buf) >= 4 {
		extType := binary.LittleEndian.Uint16(buf[0:2])
		extLen := int(binary.LittleEndian.Uint16(buf[2:4]))
		if len(buf) < 4+extLen {
			break
		}
		types = append(types, extType)
		buf = buf[4+extLen:]
	}
	return types
}

// BlockedExtension returns the human name of the first blocklisted extension
// found in the mint data, or "" when none is present.
func BlockedExtension(data []byte) string {
	for _, extType := range ParseExtensionTypes(data) {
		if name, blocked := BlockedExtensions[extType]; blocked {
			return name
		}
	}
	return ""
}
