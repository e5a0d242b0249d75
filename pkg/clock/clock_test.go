package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestSleepWaitsOnClock(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := NewMockClock(ctrl)

	fired := make(chan time.Time, 1)
	fired <- time.Now()

	c.EXPECT().After(500 * time.Millisecond).Return(fired)

	require.NoError(t, Sleep(context.Background(), c, 500*time.Millisecond))
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Sleep(ctx, Real(), time.Hour)
	require.ErrorIs(t, err, context.Canceled)

	require.ErrorIs(t, Sleep(ctx, Real(), 0), context.Canceled)
	require.NoError(t, Sleep(context.Background(), Real(), 0))
}

func TestRealTicker(t *testing.T) {
	ticker := Real().Ticker(time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.Chan():
	case <-time.After(time.Second):
		assert.Fail(t, "ticker never fired")
	}
}
