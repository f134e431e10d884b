package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	apperrors "github.com/kwizz/kwizz-go/internal/errors"
)

const (
	pinMin         = 1000
	pinSpan        = 9000
	maxPinAttempts = 10
)

type pinChecker interface {
	PinInUse(ctx context.Context, pin string) (bool, error)
}

// generatePin returns a four digit pin uniform over 1000..9999.
func generatePin() string {
	n, err := rand.Int(rand.Reader, big.NewInt(pinSpan))
	if err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return fmt.Sprintf("%d", pinMin+n.Int64())
}

// allocatePin draws pins until one is not held by an unfinished game.
func allocatePin(ctx context.Context, games pinChecker, gen func() string) (string, error) {
	for attempt := 0; attempt < maxPinAttempts; attempt++ {
		pin := gen()
		inUse, err := games.PinInUse(ctx, pin)
		if err != nil {
			return "", fmt.Errorf("check pin: %w", err)
		}
		if !inUse {
			return pin, nil
		}
	}
	return "", apperrors.Conflict("Could not allocate a free game pin")
}
