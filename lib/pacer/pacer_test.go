package pacer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultCalculatorDecaysOnSuccess(t *testing.T) {
	c := NewDefault(MinSleep(10*time.Millisecond), MaxSleep(2*time.Second), DecayConstant(2))
	state := State{SleepTime: 320 * time.Millisecond, ConsecutiveRetries: 0}
	got := c.Calculate(state)
	assert.Less(t, got, state.SleepTime)
	assert.GreaterOrEqual(t, got, c.minSleep)
}

func TestDefaultCalculatorAttacksOnRetry(t *testing.T) {
	c := NewDefault(MinSleep(10*time.Millisecond), MaxSleep(2*time.Second), AttackConstant(1))
	state := State{SleepTime: 100 * time.Millisecond, ConsecutiveRetries: 1}
	got := c.Calculate(state)
	assert.Greater(t, got, state.SleepTime)
}

func TestDefaultCalculatorClampsToMax(t *testing.T) {
	c := NewDefault(MaxSleep(500 * time.Millisecond))
	state := State{SleepTime: 400 * time.Millisecond, ConsecutiveRetries: 5}
	got := c.Calculate(state)
	assert.LessOrEqual(t, got, 500*time.Millisecond)
}

func TestAzureIMDSEscalation(t *testing.T) {
	c := NewAzureIMDS()
	assert.Equal(t, time.Duration(0), c.Calculate(State{ConsecutiveRetries: 0}))
	assert.Equal(t, 2*time.Second, c.Calculate(State{ConsecutiveRetries: 1}))
	assert.Equal(t, 6*time.Second, c.Calculate(State{ConsecutiveRetries: 2}))
	assert.Equal(t, 14*time.Second, c.Calculate(State{ConsecutiveRetries: 3}))
	assert.Equal(t, 30*time.Second, c.Calculate(State{ConsecutiveRetries: 4}))
	assert.Equal(t, 30*time.Second, c.Calculate(State{ConsecutiveRetries: 9}))
}

func TestGoogleDriveBurstIsFree(t *testing.T) {
	c := NewGoogleDrive(GoogleDriveBurst(4))
	for i := 0; i <= 4; i++ {
		got := c.Calculate(State{ConsecutiveRetries: i})
		if i == 0 {
			assert.Equal(t, time.Duration(0), got)
		} else {
			assert.LessOrEqual(t, got, c.minSleep)
		}
	}
}

func TestGoogleDriveBacksOffPastBurst(t *testing.T) {
	c := NewGoogleDrive(GoogleDriveBurst(2), GoogleDriveMinSleep(10*time.Millisecond))
	got := c.Calculate(State{ConsecutiveRetries: 5})
	assert.Greater(t, got, c.minSleep)
	assert.LessOrEqual(t, got, c.maxSleep)
}

func TestPacerCallRetriesUntilSuccess(t *testing.T) {
	p := New(RetriesOption(5), CalculatorOption(NewDefault(MinSleep(time.Millisecond), MaxSleep(2*time.Millisecond))))
	attempts := 0
	err := p.Call(func() (bool, error) {
		attempts++
		if attempts < 3 {
			return true, assert.AnError
		}
		return false, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestPacerCallNoRetryStopsAfterOneAttempt(t *testing.T) {
	p := New()
	attempts := 0
	err := p.CallNoRetry(func() (bool, error) {
		attempts++
		return true, assert.AnError
	})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestPacerMaxConnectionsLimitsConcurrency(t *testing.T) {
	p := New()
	p.SetMaxConnections(2)

	running := make(chan struct{}, 10)
	release := make(chan struct{})
	done := make(chan struct{}, 3)

	for i := 0; i < 3; i++ {
		go func() {
			_ = p.CallNoRetry(func() (bool, error) {
				running <- struct{}{}
				<-release
				return false, nil
			})
			done <- struct{}{}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, len(running), 2)
	close(release)
	for i := 0; i < 3; i++ {
		<-done
	}
}
