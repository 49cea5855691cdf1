package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Generate returns a uniformly distributed random integer in [min, max],
// inclusive on both ends. Each call is independent; single-use enforcement
// is the caller's responsibility.
func Generate(min, max int) (int, error) {
	if min > max {
		return 0, fmt.Errorf("invalid range [%d, %d]", min, max)
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max-min+1)))
	if err != nil {
		return 0, fmt.Errorf("generate otp: %w", err)
	}
	return min + int(n.Int64()), nil
}
