package solana

import (
	"encoding/binary"
	"testing"
)

// buildMint synthesizes an 82-byte SPL mint layout.
func buildMint(mintAuthOpt uint32, supply uint64, decimals uint8, initialized bool, freezeAuthOpt uint32) []byte {
	data := make([]byte, 82)
	binary.LittleEndian.PutUint32(data[0:4], mintAuthOpt)
	binary.LittleEndian.PutUint64(data[36:44], supply)
	data[44] = decimals
	if initialized {
		data[45] = 1
	}
	binary.LittleEndian.PutUint32(data[46:50], freezeAuthOpt)
	return data
}

func TestParseMint_RoundTrip(t *testing.T) {
	cases := []struct {
		mintAuthOpt   uint32
		supply        uint64
		decimals      uint8
		initialized   bool
		freezeAuthOpt uint32
	}{
		{0, 0, 0, false, 0},
		{1, 1, 9, true, 0},
		{0, 1, 9, true, 1},
		{1, ^uint64(0), 0, true, 1},
		{0, 1_000_000_000, 9, true, 0},
	}

	for _, tc := range cases {
		mint, err := ParseMint(buildMint(tc.mintAuthOpt, tc.supply, tc.decimals, tc.initialized, tc.freezeAuthOpt))
		if err != nil {
			t.Fatalf("ParseMint failed: %v", err)
		}
		if mint.MintAuthorityOption != tc.mintAuthOpt {
			t.Errorf("MintAuthorityOption = %d, want %d", mint.MintAuthorityOption, tc.mintAuthOpt)
		}
		if mint.Supply != tc.supply {
			t.Errorf("Supply = %d, want %d", mint.Supply, tc.supply)
		}
		if mint.Decimals != tc.decimals {
			t.Errorf("Decimals = %d, want %d", mint.Decimals, tc.decimals)
		}
		if mint.IsInitialized != tc.initialized {
			t.Errorf("IsInitialized = %v, want %v", mint.IsInitialized, tc.initialized)
		}
		if mint.FreezeAuthorityOption != tc.freezeAuthOpt {
			t.Errorf("FreezeAuthorityOption = %d, want %d", mint.FreezeAuthorityOption, tc.freezeAuthOpt)
		}
	}
}

func TestParseMint_TooShort(t *testing.T) {
	if _, err := ParseMint(make([]byte, 81)); err == nil {
		t.Error("expected error for 81-byte account")
	}
}

func TestParseExtensionTypes_WellFormed(t *testing.T) {
	data := buildMint(0, 1, 9, true, 0)
	// Two TLV records: type=12 (permanent delegate, 4 payload bytes) and type=3 (2 bytes).
	tlv := make([]byte, 0, 14)
	rec1 := make([]byte, 8)
	binary.LittleEndian.PutUint16(rec1[0:2], 12)
	binary.LittleEndian.PutUint16(rec1[2:4], 4)
	rec2 := make([]byte, 6)
	binary.LittleEndian.PutUint16(rec2[0:2], 3)
	binary.LittleEndian.PutUint16(rec2[2:4], 2)
	tlv = append(tlv, rec1...)
	tlv = append(tlv, rec2...)
	data = append(data, tlv...)

	types := ParseExtensionTypes(data)
	if len(types) != 2 || types[0] != 12 || types[1] != 3 {
		t.Errorf("ParseExtensionTypes = %v, want [12 3]", types)
	}
	if got := BlockedExtension(data); got != "permanent delegate" {
		t.Errorf("BlockedExtension = %q, want %q", got, "permanent delegate")
	}
}

func TestParseExtensionTypes_Truncated(t *testing.T) {
	data := buildMint(0, 1, 9, true, 0)
	// Record claims 100 payload bytes but only 2 follow.
	rec := make([]byte, 6)
	binary.LittleEndian.PutUint16(rec[0:2], 1)
	binary.LittleEndian.PutUint16(rec[2:4], 100)
	data = append(data, rec...)

	if types := ParseExtensionTypes(data); len(types) != 0 {
		t.Errorf("expected no records from truncated TLV, got %v", types)
	}
	if got := BlockedExtension(data); got != "" {
		t.Errorf("BlockedExtension on truncated TLV = %q, want empty", got)
	}
}

func TestParseExtensionTypes_NoSuffix(t *testing.T) {
	if types := ParseExtensionTypes(buildMint(0, 1, 9, true, 0)); len(types) != 0 {
		t.Errorf("expected no records for bare 82-byte mint, got %v", types)
	}
}
