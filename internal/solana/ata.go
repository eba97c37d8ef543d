package solana

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Well-known SPL program IDs.
const (
	TokenProgramID           = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	AssociatedTokenProgramID = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
)

// FindAssociatedTokenAddress derives the associated token account for a
// wallet and mint. The seeds are [wallet, token program, mint] under the
// associated token program.
func FindAssociatedTokenAddress(wallet, mint string) (string, error) {
	walletKey, err := decodePubkey(wallet)
	if err != nil {
		return "", fmt.Errorf("wallet address: %w", err)
	}
	mintKey, err := decodePubkey(mint)
	if err != nil {
		return "", fmt.Errorf("mint address: %w", err)
	}
	tokenProgram, err := decodePubkey(TokenProgramID)
	if err != nil {
		return "", err
	}
	ataProgram, err := decodePubkey(AssociatedTokenProgramID)
	if err != nil {
		return "", err
	}

	addr := derivePDA([][]byte{walletKey, tokenProgram, mintKey}, ataProgram)
	if addr == "" {
		return "", fmt.Errorf("no valid bump seed for %s", wallet)
	}
	return addr, nil
}

func decodePubkey(s string) ([]byte, error) {
	key, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode base58 %q: %w", s, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("pubkey %q: expected 32 bytes, got %d", s, len(key))
	}
	return key, nil
}

// derivePDA derives a Program Derived Address using the Solana algorithm.
func derivePDA(seeds [][]byte, programID []byte) string {
	// PDA derivation algorithm:
	// 1. Concatenate all seeds with bump
	// 2. Append program ID and "ProgramDerivedAddress" marker
	// 3. SHA256 hash
	// 4. Find bump seed that results in off-curve point

	for bump := byte(255); bump > 0; bump-- {
		data := make([]byte, 0)
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, programID...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)

		// Check if point is off the ed25519 curve
		if !isOnCurve(hash[:]) {
			return base58.Encode(hash[:])
		}
	}

	return ""
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
