package fairness

import "crypto/rand"

// cryptoSource implements Source using crypto/rand.
//
// Invariant: every byte produced comes from the operating system CSPRNG.
type cryptoSource struct{}

// NewCryptoSource returns a Source backed by crypto/rand.
func NewCryptoSource() Source {
	return &cryptoSource{}
}

// Fill overwrites p with cryptographically secure random bytes.
//
// Panics with "fairness: crypto/rand failure: <err>" if crypto/rand fails.
// There is no fallback to a non-cryptographic generator.
func (c *cryptoSource) Fill(p []byte) {
	if _, err := rand.Read(p); err != nil {
		panic("fairness: crypto/rand failure: " + err.Error())
	}
}
