package fairness

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

const (
	// ClientSeedBytes is the number of random bytes in a generated client seed.
	ClientSeedBytes = 16
	// ServerSeedBytes is the number of random bytes in a generated server seed.
	ServerSeedBytes = 32
)

// GenerateClientSeed draws ClientSeedBytes from src and returns them as a
// lowercase hex string of 32 characters. A nil src means crypto/rand.
func GenerateClientSeed(src Source) string {
	return randomHex(src, ClientSeedBytes)
}

// GenerateServerSeed draws ServerSeedBytes from src and returns them as a
// lowercase hex string of 64 characters. A nil src means crypto/rand.
func GenerateServerSeed(src Source) string {
	return randomHex(src, ServerSeedBytes)
}

func randomHex(src Source, n int) string {
	if src == nil {
		src = NewCryptoSource()
	}
	buf := make([]byte, n)
	src.Fill(buf)
	return hex.EncodeToString(buf)
}

// Commit returns the commitment published for serverSeed before any roll is
// made with it: the lowercase hex SHA-256 digest of the seed.
func Commit(serverSeed string) string {
	sum := sha256.Sum256([]byte(serverSeed))
	return hex.EncodeToString(sum[:])
}

// VerifyCommitment reports whether commitment was produced by Commit(serverSeed).
// The comparison runs in constant time.
func VerifyCommitment(serverSeed, commitment string) bool {
	return subtle.ConstantTimeCompare([]byte(Commit(serverSeed)), []byte(commitment)) == 1
}
