package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Attempts: 6, Initial: 100 * time.Millisecond, Max: time.Second}
	assert.Equal(t, time.Duration(0), b.Delay(0))
	assert.Equal(t, 100*time.Millisecond, b.Delay(1))
	assert.Equal(t, 200*time.Millisecond, b.Delay(2))
	assert.Equal(t, 800*time.Millisecond, b.Delay(4))
	assert.Equal(t, time.Second, b.Delay(5))
	assert.Equal(t, 100*time.Millisecond+200*time.Millisecond+400*time.Millisecond+800*time.Millisecond+time.Second, b.Total())
}

func TestBackoffDoRetriesUntilSuccess(t *testing.T) {
	b := Backoff{Attempts: 4, Initial: time.Millisecond, Max: time.Millisecond}
	calls := 0
	err := b.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestBackoffDoReturnsLastError(t *testing.T) {
	b := Backoff{Attempts: 2, Initial: time.Millisecond}
	calls := 0
	err := b.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("down")
	})
	assert.EqualError(t, err, "down")
	assert.Equal(t, 2, calls)
}

func TestBackoffDoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := Backoff{Attempts: 5, Initial: time.Hour}
	calls := 0
	err := b.Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("down")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoffSingleAttemptDoesNotRetry(t *testing.T) {
	for _, attempts := range []int{0, 1} {
		calls := 0
		err := Backoff{Attempts: attempts, Initial: time.Millisecond}.Do(context.Background(), func(context.Context) error {
			calls++
			return errors.New("down")
		})
		assert.EqualError(t, err, "down")
		assert.Equal(t, 1, calls, "attempts=%d", attempts)
	}
}

func TestBackoffWithoutMaxKeepsDoubling(t *testing.T) {
	b := Backoff{Attempts: 4, Initial: 10 * time.Millisecond}
	assert.Equal(t, 40*time.Millisecond, b.Delay(3))
	assert.Equal(t, 70*time.Millisecond, b.Total())
}
