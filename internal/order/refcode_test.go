package order

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func neverTaken(context.Context, string) (bool, error) {
	return false, nil
}

func TestGenerateFormat(t *testing.T) {
	g := NewRefCodeGenerator()
	pattern := regexp.MustCompile(`^CHP-\d{3}$`)

	for i := 0; i < 50; i++ {
		code, err := g.Generate(context.Background(), neverTaken)
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
	}
}

func TestGenerateRetriesOnCollision(t *testing.T) {
	g := &RefCodeGenerator{attempts: defaultRefAttempts, randInt: seq(7, 7, 42)}

	taken := map[string]bool{"CHP-007": true}
	var checked []string
	code, err := g.Generate(context.Background(), func(_ context.Context, c string) (bool, error) {
		checked = append(checked, c)
		return taken[c], nil
	})

	require.NoError(t, err)
	assert.Equal(t, "CHP-042", code)
	assert.Equal(t, []string{"CHP-007", "CHP-007", "CHP-042"}, checked)
}

func TestGenerateExhaustion(t *testing.T) {
	g := NewRefCodeGenerator()

	_, err := g.Generate(context.Background(), func(context.Context, string) (bool, error) {
		return true, nil
	})

	assert.ErrorIs(t, err, ErrReferenceExhausted)
}

func TestGenerateLookupError(t *testing.T) {
	g := NewRefCodeGenerator()
	boom := errors.New("db down")

	_, err := g.Generate(context.Background(), func(context.Context, string) (bool, error) {
		return false, boom
	})

	assert.ErrorIs(t, err, boom)
}

// seq returns a randInt stub yielding the given values in order, then the
// last one forever.
func seq(values ...int) func(int) int {
	i := 0
	return func(int) int {
		v := values[i]
		if i < len(values)-1 {
			i++
		}
		return v
	}
}
