package utils

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// SplitSignature decomposes a 65-byte combined signature into its canonical
// {v, r, s} components. The decomposition must match what the contract's
// permit/executeMetaTransaction entrypoints expect bit-for-bit: r = bytes
// 0..31, s = bytes 32..63, v = byte 64, with legacy 0/1 recovery ids
// normalized to 27/28.
func SplitSignature(signature string) (v uint8, r [32]byte, s [32]byte, err error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "0x"))
	if err != nil {
		return 0, r, s, fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(raw) != 65 {
		return 0, r, s, fmt.Errorf("invalid signature length: expected 65 bytes, got %d", len(raw))
	}

	copy(r[:], raw[0:32])
	copy(s[:], raw[32:64])
	v = raw[64]
	if v < 27 {
		v += 27
	}
	return v, r, s, nil
}

// IntentFingerprint computes a stable keccak-256 fingerprint of a transaction
// intent's content. The queue does not deduplicate by payload, but the
// fingerprint is recorded so operators can spot duplicate submissions caused
// by upstream retries.
func IntentFingerprint(chainID uint64, wallet, to string, data []byte) string {
	hasher := sha3.NewLegacyKeccak256()
	fmt.Fprintf(hasher, "%d|%s|%s|", chainID, NormalizeAddress(wallet), NormalizeAddress(to))
	hasher.Write(data)
	return "0x" + hex.EncodeToString(hasher.Sum(nil))
}
