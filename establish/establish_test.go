package establish

import (
	"context"
	"errors"
	"testing"

	"gotraverse/decision"
	"gotraverse/nat"
	"gotraverse/technique"

	"github.com/stretchr/testify/require"
)

var errRefused = errors.New("refused")

func strategy(t *testing.T, ts ...technique.Technique) *decision.Strategy {
	reg, err := technique.NewRegistry(ts...)
	require.Nil(t, err)
	return decision.NewStrategy(reg, nil)
}

func TestConnectFirstSuccessWins(t *testing.T) {
	s := strategy(t, technique.Builtin()...)
	var order []string
	got, err := Connect(context.Background(), s, nat.UnknownSituation, func(ctx context.Context, tech technique.Technique) error {
		order = append(order, tech.Metadata().Name)
		if tech.Metadata().Name == technique.HolePunchingName {
			return nil
		}
		return errRefused
	})
	require.Nil(t, err)
	require.Equal(t, technique.HolePunchingName, got.Metadata().Name)
	require.Equal(t, []string{technique.DirectConnectionName, technique.ReversalName, technique.HolePunchingName}, order)
}

func TestConnectAllFail(t *testing.T) {
	s := strategy(t, technique.Builtin()...)
	got, err := Connect(context.Background(), s, nat.UnknownSituation, func(ctx context.Context, tech technique.Technique) error {
		return errRefused
	})
	require.Nil(t, got)
	require.True(t, errors.Is(err, errRefused))

	var attemptErr *AttemptError
	require.True(t, errors.As(err, &attemptErr))
	require.Len(t, attemptErr.Tried, 4)
	require.Len(t, attemptErr.Errors(), 4)
	require.Contains(t, err.Error(), technique.RelayingName)
}

func TestConnectNoTechnique(t *testing.T) {
	s := strategy(t)
	_, err := Connect(context.Background(), s, nat.UnknownSituation, func(ctx context.Context, tech technique.Technique) error {
		t.Fatal("should not be called")
		return nil
	})
	require.Equal(t, ErrNoTechnique, err)
}

func TestConnectCancelled(t *testing.T) {
	s := strategy(t, technique.Builtin()...)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Connect(ctx, s, nat.UnknownSituation, func(ctx context.Context, tech technique.Technique) error {
		calls++
		cancel()
		return errRefused
	})
	require.Equal(t, 1, calls)
	require.True(t, errors.Is(err, context.Canceled))
	require.True(t, errors.Is(err, errRefused))
}
