package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyDelay(t *testing.T) {
	p := DefaultRetryPolicy()

	assert.Equal(t, 3, p.Attempts())
	assert.Equal(t, time.Duration(0), p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 8*time.Second, p.Delay(3))
	assert.Equal(t, 30*time.Second, p.Delay(10))
}

func TestRetryPolicyDegenerateValues(t *testing.T) {
	p := RetryPolicy{}
	assert.Equal(t, 1, p.Attempts())
	assert.Equal(t, time.Duration(0), p.Delay(3))

	flat := RetryPolicy{MaxAttempts: 4, BaseDelay: time.Second, Multiplier: 0.5}
	assert.Equal(t, time.Second, flat.Delay(3))
}

func TestRetryPolicyWaitHonoursContext(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Hour, Multiplier: 2}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	started := time.Now()
	err := p.Wait(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(started), time.Second)

	assert.NoError(t, RetryPolicy{}.Wait(context.Background(), 1))
}
