package fairness

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strconv"
)

// MaxSlice is the divisor used to normalise the 32-bit digest slice.
//
// Dividing by 0xFFFFFFFF rather than 2^32 admits a roll of exactly 1.0 when
// the slice is all ones. Tables close their last bucket at 1.0 to match.
const MaxSlice = 0xFFFFFFFF

// Message returns the hashed message "serverSeed-clientSeed-nonce".
func Message(serverSeed, clientSeed string, nonce uint64) string {
	return serverSeed + "-" + clientSeed + "-" + strconv.FormatUint(nonce, 10)
}

// Evaluate derives the roll for the given seed pair and nonce and returns the
// full audit trail.
//
// Postcondition: the result depends only on the inputs; 0 <= Value <= 1.
func Evaluate(serverSeed, clientSeed string, nonce uint64) RollResult {
	sum := sha256.Sum256([]byte(Message(serverSeed, clientSeed, nonce)))
	// The first 4 bytes are the first 8 hex characters of the digest.
	slice := binary.BigEndian.Uint32(sum[:4])
	return RollResult{
		ClientSeed: clientSeed,
		Nonce:      nonce,
		Digest:     hex.EncodeToString(sum[:]),
		Slice:      slice,
		Value:      float64(slice) / MaxSlice,
	}
}

// CalculateRoll returns the roll value in [0, 1] for the given seed pair and nonce.
func CalculateRoll(serverSeed, clientSeed string, nonce uint64) float64 {
	return Evaluate(serverSeed, clientSeed, nonce).Value
}
