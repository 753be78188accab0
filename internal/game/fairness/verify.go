package fairness

import (
	"errors"
	"fmt"
)

var (
	// ErrCommitmentMismatch is returned when a revealed server seed does not
	// hash to the published commitment.
	ErrCommitmentMismatch = errors.New("server seed does not match commitment")
	// ErrRollMismatch is returned when a recomputed roll differs from the claim.
	ErrRollMismatch = errors.New("roll does not match")
	// ErrOutcomeMismatch is returned when a recomputed outcome differs from the claim.
	ErrOutcomeMismatch = errors.New("outcome does not match")
)

// Proof is everything a third party needs to re-derive a roll once the
// server seed has been revealed.
type Proof struct {
	ServerSeed string
	Commitment string
	ClientSeed string
	Nonce      uint64
	Roll       float64 // claimed roll value
	Item       string  // claimed item; checked only when a table is supplied
}

// Verification is the recomputed view of a Proof.
type Verification struct {
	Result  RollResult
	Outcome *Outcome // nil when no table was supplied
}

// Verify recomputes p against its commitment and, when table is non-nil,
// against the table.
//
// Postcondition: Returns the recomputed Verification. The error is nil iff
// the commitment, the roll and (when checked) the item all match; otherwise
// it wraps the sentinel for the first mismatch found in that order.
func Verify(p Proof, table *Table) (Verification, error) {
	result := Evaluate(p.ServerSeed, p.ClientSeed, p.Nonce)
	v := Verification{Result: result}

	if !VerifyCommitment(p.ServerSeed, p.Commitment) {
		return v, fmt.Errorf("%w: commitment %q", ErrCommitmentMismatch, p.Commitment)
	}
	if result.Value != p.Roll {
		return v, fmt.Errorf("%w: claimed %v, recomputed %v", ErrRollMismatch, p.Roll, result.Value)
	}
	if table == nil {
		return v, nil
	}

	outcome, err := table.Resolve(result.Value)
	if err != nil {
		return v, fmt.Errorf("resolving recomputed roll: %w", err)
	}
	v.Outcome = &outcome
	if outcome.Item != p.Item {
		return v, fmt.Errorf("%w: claimed %q, recomputed %q", ErrOutcomeMismatch, p.Item, outcome.Item)
	}
	return v, nil
}
