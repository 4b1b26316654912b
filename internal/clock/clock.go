package clock

import (
	"context"
	"time"
)

// Clock abstracts time so the controller loop can run on virtual time in tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type Real struct{}

func (Real) Now() time.Time { return time.Now() }

// Sleep blocks for d or until ctx is done.
func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Fake is a manual clock; Sleep advances virtual time instantly.
type Fake struct {
	now    time.Time
	slept  time.Duration
	sleeps int
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time { return f.now }

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.Advance(d)
	f.slept += d
	f.sleeps++
	return nil
}

func (f *Fake) Advance(d time.Duration) {
	f.now = f.now.Add(d)
}

// Slept returns the total virtual time spent in Sleep and the number of calls.
func (f *Fake) Slept() (time.Duration, int) { return f.slept, f.sleeps }
