package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"babyguardian-vitals/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCorrelator() *Correlator {
	return NewCorrelator(nil, zap.NewNop())
}

func sample(id string) models.CleanReading {
	return models.CleanReading{DeviceID: id, TemperatureC: 36.7, SpO2: 98, HeartRate: 120, Quality: models.QualityOK}
}

func TestAwait_DeliveredWhenCompleted(t *testing.T) {
	c := newTestCorrelator()

	res, err := c.Await(context.Background(), "dev-x", 2*time.Second, func() error {
		go func() {
			time.Sleep(10 * time.Millisecond)
			assert.True(t, c.Complete("dev-x", sample("dev-x")))
		}()
		return nil
	})
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Equal(t, "dev-x", res.Reading.DeviceID)
	assert.Equal(t, 0, c.Pending())
}

func TestAwait_CompleteInsideTriggerIsNotLost(t *testing.T) {
	c := newTestCorrelator()

	res, err := c.Await(context.Background(), "DEV-X", time.Second, func() error {
		c.Complete("dev-x", sample("dev-x"))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDelivered, res.Outcome)
}

func TestAwait_TimeoutReturnsEmpty(t *testing.T) {
	c := newTestCorrelator()

	start := time.Now()
	res, err := c.Await(context.Background(), "dev-x", 30*time.Millisecond, nil)
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, OutcomeTimeout, res.Outcome)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, 0, c.Pending())
}

func TestComplete_NoWaiterIsNoop(t *testing.T) {
	c := newTestCorrelator()
	assert.False(t, c.Complete("dev-x", sample("dev-x")))
	assert.Equal(t, 0, c.Pending())
}

func TestAwait_SecondCallerReplacesFirst(t *testing.T) {
	c := newTestCorrelator()

	firstRegistered := make(chan struct{})
	firstResult := make(chan Result, 1)
	go func() {
		res, _ := c.Await(context.Background(), "dev-x", 5*time.Second, func() error {
			close(firstRegistered)
			return nil
		})
		firstResult <- res
	}()
	<-firstRegistered

	secondResult := make(chan Result, 1)
	go func() {
		res, _ := c.Await(context.Background(), "dev-x", 5*time.Second, nil)
		secondResult <- res
	}()

	select {
	case res := <-firstResult:
		assert.Equal(t, OutcomeReplaced, res.Outcome)
	case <-time.After(time.Second):
		t.Fatal("first waiter was not cancelled by the second")
	}

	require.Eventually(t, func() bool { return c.Complete("dev-x", sample("dev-x")) }, time.Second, time.Millisecond)
	select {
	case res := <-secondResult:
		assert.Equal(t, OutcomeDelivered, res.Outcome)
	case <-time.After(time.Second):
		t.Fatal("second waiter did not receive the reading")
	}
}

func TestAwait_TriggerError(t *testing.T) {
	c := newTestCorrelator()
	_, err := c.Await(context.Background(), "dev-x", time.Second, func() error {
		return errors.New("broker unavailable")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unavailable")
	assert.Equal(t, 0, c.Pending())
}

func TestAwait_ContextCancelled(t *testing.T) {
	c := newTestCorrelator()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := c.Await(ctx, "dev-x", time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, res.Outcome)
}

func TestAwait_IndependentDevices(t *testing.T) {
	c := newTestCorrelator()

	var wg sync.WaitGroup
	results := make([]Result, 2)
	for i, id := range []string{"dev-a", "dev-b"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			results[i], _ = c.Await(context.Background(), id, time.Second, nil)
		}(i, id)
	}

	require.Eventually(t, func() bool { return c.Pending() == 2 }, time.Second, time.Millisecond)
	assert.True(t, c.Complete("dev-a", sample("dev-a")))
	assert.True(t, c.Complete("dev-b", sample("dev-b")))
	wg.Wait()

	assert.Equal(t, "dev-a", results[0].Reading.DeviceID)
	assert.Equal(t, "dev-b", results[1].Reading.DeviceID)
}
