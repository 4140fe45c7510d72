package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds the failed-login padding settings
type TimingConfig struct {
	BaseDelayMs   int // Minimum response time for a failed login
	RandomDelayMs int // Upper bound of extra jitter
}

// TimingDelay pads failed logins so "no such user" and "wrong password"
// take the same observable time.
type TimingDelay struct {
	base   time.Duration
	jitter int
	sleep  func(ctx context.Context, d time.Duration)
}

// NewTimingDelay creates a new TimingDelay instance
func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{
		base:   time.Duration(config.BaseDelayMs) * time.Millisecond,
		jitter: config.RandomDelayMs,
		sleep:  sleepContext,
	}
}

// Target returns the padded duration for one failure: base plus jitter
func (td *TimingDelay) Target() time.Duration {
	if td == nil {
		return 0
	}
	target := td.base
	if td.jitter > 0 {
		if n, err := cryptoRandIntn(td.jitter); err == nil {
			target += time.Duration(n) * time.Millisecond
		}
	}
	return target
}

// PadFrom blocks until at least Target() has elapsed since start, or ctx is done
func (td *TimingDelay) PadFrom(ctx context.Context, start time.Time) {
	if td == nil {
		return
	}
	if remaining := td.Target() - time.Since(start); remaining > 0 {
		td.sleep(ctx, remaining)
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// cryptoRandIntn returns a uniform-enough value in [0, max) from crypto/rand
func cryptoRandIntn(max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return int(binary.BigEndian.Uint64(buf[:]) % uint64(max)), nil
}
