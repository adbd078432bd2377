package services

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"
)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

var serviceCodeSpace = big.NewInt(1_000_000)

// generateServiceCode returns a uniformly random, zero-padded 6-digit code.
func generateServiceCode(r io.Reader) (string, error) {
	n, err := rand.Int(r, serviceCodeSpace)
	if err != nil {
		return "", fmt.Errorf("failed to generate service code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
