package order

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
)

const (
	refCodePrefix      = "CHP-"
	refCodeDigits      = 1000
	defaultRefAttempts = 25
)

// ErrReferenceExhausted means the generator ran out of attempts without
// finding a free code. The code space is nearly full and needs to be
// widened; this is an operational condition, not a caller bug.
var ErrReferenceExhausted = errors.New("reference code space exhausted")

// RefCodeGenerator draws short payment reference codes of the form CHP-###.
// It only checks candidates against the taken-lookup; persisting the winner
// is the caller's job.
type RefCodeGenerator struct {
	attempts int
	randInt  func(n int) int
}

func NewRefCodeGenerator() *RefCodeGenerator {
	return &RefCodeGenerator{
		attempts: defaultRefAttempts,
		randInt:  rand.IntN,
	}
}

func (g *RefCodeGenerator) Generate(ctx context.Context, taken func(context.Context, string) (bool, error)) (string, error) {
	for i := 0; i < g.attempts; i++ {
		code := fmt.Sprintf("%s%03d", refCodePrefix, g.randInt(refCodeDigits))
		exists, err := taken(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check reference code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", ErrReferenceExhausted
}
