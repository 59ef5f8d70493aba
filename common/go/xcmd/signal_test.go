package xcmd

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInterruptedMatchesAnySignal(t *testing.T) {
	err := fmt.Errorf("run: %w", Interrupted{Signal: syscall.SIGTERM})

	require.ErrorIs(t, err, Interrupted{})
	require.False(t, errors.Is(err, context.Canceled))
	require.Equal(t, "run: interrupted by terminated", err.Error())
}

func TestWaitInterruptedContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WaitInterrupted(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, errors.Is(err, Interrupted{}))
}
