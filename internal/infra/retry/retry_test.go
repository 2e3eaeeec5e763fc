package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), "test", zerolog.Nop(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoStopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(2), "test", zerolog.Nop(), func(context.Context) error {
		calls++
		return errors.New("down")
	})
	require.Error(t, err)
	require.Equal(t, 2, calls)
}

func TestDoDoesNotRetryPermanent(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), "test", zerolog.Nop(), func(context.Context) error {
		calls++
		return Permanent(errors.New("bad request"))
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestDoHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := Do(ctx, fastPolicy(3), "test", zerolog.Nop(), func(context.Context) error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, calls)
}
