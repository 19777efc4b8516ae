package pacer

import (
	"math"
	"math/rand"
	"time"
)

// Default implements the default pacing algorithm, decaying the sleep time
// exponentially on success and attacking it exponentially on failure.
type Default struct {
	minSleep      time.Duration
	maxSleep      time.Duration
	decayConstant uint
	attackConstant uint
}

// DefaultOption configures a Default calculator.
type DefaultOption func(*Default)

// MinSleep sets the minimum sleep time.
func MinSleep(d time.Duration) DefaultOption { return func(c *Default) { c.minSleep = d } }

// MaxSleep sets the maximum sleep time.
func MaxSleep(d time.Duration) DefaultOption { return func(c *Default) { c.maxSleep = d } }

// DecayConstant sets the decay constant (higher = recovers more slowly).
func DecayConstant(n uint) DefaultOption { return func(c *Default) { c.decayConstant = n } }

// AttackConstant sets the attack constant (higher = backs off more slowly).
func AttackConstant(n uint) DefaultOption { return func(c *Default) { c.attackConstant = n } }

// NewDefault returns a Default calculator with rclone's usual defaults
// applied before options.
func NewDefault(options ...DefaultOption) *Default {
	c := &Default{
		minSleep:       10 * time.Millisecond,
		maxSleep:       2 * time.Second,
		decayConstant:  2,
		attackConstant: 1,
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// Calculate decays the sleep time towards minSleep on success, or attacks it
// towards maxSleep on a consecutive retry.
func (c *Default) Calculate(state State) time.Duration {
	sleepTime := state.SleepTime
	if state.ConsecutiveRetries == 0 {
		sleepTime = time.Duration(float64(sleepTime) / math.Exp2(1/float64(c.decayConstant)))
		if sleepTime < c.minSleep {
			sleepTime = c.minSleep
		}
	} else {
		if sleepTime == 0 {
			sleepTime = c.minSleep
		}
		sleepTime = time.Duration(float64(sleepTime) * math.Exp2(1/float64(c.attackConstant)))
		if sleepTime > c.maxSleep {
			sleepTime = c.maxSleep
		}
	}
	return sleepTime
}

// S3 implements S3's recommended pacing: the same decay/attack shape as
// Default but tuned constants, kept as a distinct type so callers can select
// it by name the way rclone's s3 backend does.
type S3 struct {
	*Default
}

// NewS3 returns an S3 calculator.
func NewS3(options ...DefaultOption) *S3 {
	opts := append([]DefaultOption{
		MinSleep(10 * time.Millisecond),
		MaxSleep(5 * time.Minute),
		DecayConstant(2),
	}, options...)
	return &S3{Default: NewDefault(opts...)}
}

// GoogleDrive implements Google Drive's recommended randomized exponential
// backoff: burst requests incur no sleep at all, then sleep is
// 1.5*2^(n-1) seconds plus up to one second of random jitter, where n counts
// the retries past the burst, floored at minSleep and capped at maxSleep.
type GoogleDrive struct {
	minSleep time.Duration
	burst    int
	maxSleep time.Duration
}

// GoogleDriveOption configures a GoogleDrive calculator.
type GoogleDriveOption func(*GoogleDrive)

// GoogleDriveMinSleep sets the minimum sleep time once burst is exhausted.
func GoogleDriveMinSleep(d time.Duration) GoogleDriveOption {
	return func(c *GoogleDrive) { c.minSleep = d }
}

// GoogleDriveBurst sets the number of consecutive retries allowed before
// backoff sleeping begins.
func GoogleDriveBurst(n int) GoogleDriveOption {
	return func(c *GoogleDrive) { c.burst = n }
}

// NewGoogleDrive returns a GoogleDrive calculator.
func NewGoogleDrive(options ...GoogleDriveOption) *GoogleDrive {
	c := &GoogleDrive{
		minSleep: 10 * time.Millisecond,
		burst:    4,
		maxSleep: 2 * time.Minute,
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// Calculate implements Calculator for GoogleDrive.
func (c *GoogleDrive) Calculate(state State) time.Duration {
	if state.ConsecutiveRetries == 0 {
		return 0
	}
	if state.ConsecutiveRetries <= c.burst {
		return 0
	}
	retries := state.ConsecutiveRetries - c.burst
	base := 1.5 * math.Exp2(float64(retries-1))
	jitter := rand.Float64()
	sleepTime := time.Duration((base + jitter) * float64(time.Second))
	if sleepTime < c.minSleep {
		sleepTime = c.minSleep
	}
	if sleepTime > c.maxSleep {
		sleepTime = c.maxSleep
	}
	return sleepTime
}

// AzureIMDS implements the escalation schedule Azure's instance metadata
// service recommends for its token endpoint: fixed steps rather than a
// continuous formula.
type AzureIMDS struct{}

// NewAzureIMDS returns an AzureIMDS calculator.
func NewAzureIMDS() *AzureIMDS { return &AzureIMDS{} }

// Calculate implements Calculator for AzureIMDS.
func (c *AzureIMDS) Calculate(state State) time.Duration {
	if state.ConsecutiveRetries == 0 {
		return 0
	}
	switch {
	case state.ConsecutiveRetries == 1:
		return 2 * time.Second
	case state.ConsecutiveRetries == 2:
		return 6 * time.Second
	case state.ConsecutiveRetries == 3:
		return 14 * time.Second
	default:
		return 30 * time.Second
	}
}
