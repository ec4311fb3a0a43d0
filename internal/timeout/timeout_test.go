package timeout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/ownerportal/internal/apperr"
)

func TestPolicy_For(t *testing.T) {
	p := Policy{Auth: time.Second}

	require.Equal(t, time.Second, p.For(Auth))
	require.Equal(t, 20*time.Second, p.For(Query))
	require.Equal(t, 30*time.Second, p.For(Write))
	require.Equal(t, 60*time.Second, p.For(Upload))
	require.Equal(t, 8*time.Second, p.For(Login))
}

func TestPolicy_Run(t *testing.T) {
	ctx := context.Background()
	p := Policy{Query: 20 * time.Millisecond}

	t.Run("deadline becomes upstream timeout", func(t *testing.T) {
		err := p.Run(ctx, Query, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		require.ErrorIs(t, err, apperr.ErrUpstreamTimeout)
		require.Equal(t, "UpstreamTimeout", apperr.Code(err))
	})

	t.Run("callee that swallows ctx error still times out", func(t *testing.T) {
		err := p.Run(ctx, Query, func(ctx context.Context) error {
			<-ctx.Done()
			return errors.New("connection reset")
		})
		require.ErrorIs(t, err, apperr.ErrUpstreamTimeout)
	})

	t.Run("other errors pass through", func(t *testing.T) {
		want := errors.New("boom")
		err := p.Run(ctx, Query, func(ctx context.Context) error { return want })
		require.Same(t, want, err)
	})

	t.Run("cancellation is not a timeout", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := p.Run(cctx, Query, func(ctx context.Context) error { return ctx.Err() })
		require.ErrorIs(t, err, context.Canceled)
		require.NotErrorIs(t, err, apperr.ErrUpstreamTimeout)
	})
}

func TestDo(t *testing.T) {
	v, err := Do(context.Background(), DefaultPolicy(), Write, func(ctx context.Context) (int, error) {
		_, ok := ctx.Deadline()
		require.True(t, ok)
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, v)
}
