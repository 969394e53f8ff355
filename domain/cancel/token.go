package cancel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrCancelled is returned by every suspension point once the token fires.
var ErrCancelled = errors.New("cancelled")

// DefaultPollInterval is the cadence used by listeners that poll external state.
const DefaultPollInterval = 50 * time.Millisecond

// Token is a one-way cancellation flag shared by all suspension points of a
// session. Once cancelled it never resets.
type Token struct {
	cancelled atomic.Bool
	once      sync.Once
	done      chan struct{}
	poll      time.Duration
}

// NewToken returns a running token. poll <= 0 selects DefaultPollInterval.
func NewToken(poll time.Duration) *Token {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	return &Token{done: make(chan struct{}), poll: poll}
}

// Cancel sets the flag. Safe to call any number of times from any goroutine.
func (t *Token) Cancel() {
	t.once.Do(func() {
		t.cancelled.Store(true)
		close(t.done)
	})
}

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool { return t.cancelled.Load() }

// Done returns a channel closed on cancellation.
func (t *Token) Done() <-chan struct{} { return t.done }

// Err returns ErrCancelled after cancellation, nil before.
func (t *Token) Err() error {
	if t.Cancelled() {
		return ErrCancelled
	}
	return nil
}

// PollInterval is the cadence for listeners polling keyboard or similar state.
func (t *Token) PollInterval() time.Duration { return t.poll }

// Sleep waits for d or until cancellation, whichever comes first.
func (t *Token) Sleep(d time.Duration) error {
	if t.Cancelled() {
		return ErrCancelled
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-t.done:
		return ErrCancelled
	}
}

// Context returns a context cancelled together with the token.
func (t *Token) Context() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-t.done
		cancel()
	}()
	return ctx
}

// Tie cancels the token when ctx is done. It returns immediately.
func (t *Token) Tie(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			t.Cancel()
		case <-t.done:
		}
	}()
}

// Await runs fn on its own goroutine and returns its result, or ErrCancelled
// as soon as the token fires. The result of an abandoned fn is discarded.
func Await[T any](t *Token, fn func() (T, error)) (T, error) {
	var zero T
	if t.Cancelled() {
		return zero, ErrCancelled
	}
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{zero, fmt.Errorf("await: panic: %v", r)}
			}
		}()
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-t.done:
		return zero, ErrCancelled
	}
}
