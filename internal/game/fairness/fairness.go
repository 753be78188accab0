// Package fairness provides the provably fair roll engine: seed generation,
// deterministic roll derivation and weighted outcome resolution.
//
// Every function in this package is pure apart from seed generation, which
// reads from a Source. Nothing here holds state; callers own seeds and nonces.
package fairness

import "fmt"

// RollResult holds the audit trail for a single roll derivation.
//
// The server seed is deliberately absent so a RollResult can be logged or
// returned to a player before the seed is revealed.
//
// Postcondition: Value == float64(Slice) / MaxSlice.
type RollResult struct {
	ClientSeed string  // client seed used in the message
	Nonce      uint64  // nonce used in the message
	Digest     string  // lowercase hex SHA-256 of the message
	Slice      uint32  // first 8 hex characters of Digest as an integer
	Value      float64 // normalised roll in [0, 1]
}

// String returns a human-readable audit string in the format:
//
//	"client456#0 → 6fe65ba8 = 0.43710873"
//
// Precondition: r.Digest has at least 8 characters.
func (r RollResult) String() string {
	if len(r.Digest) < 8 {
		panic("fairness: RollResult.String() precondition violated: Digest must hold at least 8 hex characters")
	}
	return fmt.Sprintf("%s#%d → %s = %.8f", r.ClientSeed, r.Nonce, r.Digest[:8], r.Value)
}

// Source is the randomness provider for seed generation.
//
// Implementations MUST be safe for concurrent use.
type Source interface {
	// Fill overwrites p with random bytes.
	//
	// Postcondition: all len(p) bytes are written. Implementations panic
	// instead of returning a short read.
	Fill(p []byte)
}
