package cancel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCancelIsIdempotent(t *testing.T) {
	tok := NewToken(0)
	if tok.Cancelled() || tok.Err() != nil {
		t.Fatalf("new token should be running")
	}
	if tok.PollInterval() != DefaultPollInterval {
		t.Fatalf("poll=%v", tok.PollInterval())
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() { defer wg.Done(); tok.Cancel() }()
	}
	wg.Wait()
	if !tok.Cancelled() || !errors.Is(tok.Err(), ErrCancelled) {
		t.Fatalf("token should be cancelled")
	}
	select {
	case <-tok.Done():
	default:
		t.Fatalf("done channel not closed")
	}
}

func TestSleepInterruptedByCancel(t *testing.T) {
	tok := NewToken(10 * time.Millisecond)
	go func() {
		time.Sleep(20 * time.Millisecond)
		tok.Cancel()
	}()
	start := time.Now()
	err := tok.Sleep(5 * time.Second)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err=%v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("sleep not interrupted promptly")
	}
}

func TestSleepCompletes(t *testing.T) {
	tok := NewToken(0)
	if err := tok.Sleep(5 * time.Millisecond); err != nil {
		t.Fatalf("err=%v", err)
	}
	tok.Cancel()
	if err := tok.Sleep(0); !errors.Is(err, ErrCancelled) {
		t.Fatalf("sleep after cancel returned %v", err)
	}
}

func TestAwaitReturnsBeforeWorkFinishes(t *testing.T) {
	tok := NewToken(0)
	release := make(chan struct{})
	defer close(release)
	go func() {
		time.Sleep(20 * time.Millisecond)
		tok.Cancel()
	}()
	_, err := Await(tok, func() (int, error) {
		<-release
		return 1, nil
	})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("err=%v", err)
	}
}

func TestAwaitPassesThroughResult(t *testing.T) {
	tok := NewToken(0)
	v, err := Await(tok, func() (string, error) { return "ok", nil })
	if err != nil || v != "ok" {
		t.Fatalf("v=%q err=%v", v, err)
	}
	boom := errors.New("boom")
	_, err = Await(tok, func() (string, error) { return "", boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
}

func TestAwaitRecoversPanic(t *testing.T) {
	tok := NewToken(0)
	_, err := Await(tok, func() (int, error) { panic("bad frame") })
	if err == nil {
		t.Fatalf("expected error from panicking fn")
	}
}

func TestContextAndTie(t *testing.T) {
	tok := NewToken(0)
	ctx := tok.Context()
	tok.Cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("context not cancelled with token")
	}

	other := NewToken(0)
	parent, cancel := context.WithCancel(context.Background())
	other.Tie(parent)
	cancel()
	select {
	case <-other.Done():
	case <-time.After(time.Second):
		t.Fatalf("token not cancelled by context")
	}
}
