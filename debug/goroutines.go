package debug

// Debug goroutine metrics logger. Started only when debug=true.
// Emits goroutine count (runtime metrics) and stack usage at a fixed interval
// until the session token fires.

import (
	"log/slog"
	"runtime"
	"runtime/metrics"
	"time"

	"github.com/soocke/pull-bot-go/domain/cancel"
)

// StartGoroutineLogger launches a ticker that logs goroutine count and stack memory.
func StartGoroutineLogger(interval time.Duration, tok *cancel.Token, logger *slog.Logger) {
	if interval <= 0 {
		interval = time.Second
	}
	samples := []metrics.Sample{{Name: "/sched/goroutines:goroutines"}}
	go every(interval, tok, func() {
		metrics.Read(samples)
		var goroutines uint64
		if samples[0].Value.Kind() == metrics.KindUint64 {
			goroutines = samples[0].Value.Uint64()
		}
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		logger.Info("goroutine-stacks",
			slog.Uint64("goroutines", goroutines),
			slog.Uint64("stack_inuse", ms.StackInuse),
			slog.Uint64("stack_sys", ms.StackSys),
			slog.Uint64("heap_alloc", ms.HeapAlloc),
		)
	})
}

// every calls fn on each tick until tok is cancelled.
func every(interval time.Duration, tok *cancel.Token, fn func()) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-tok.Done():
			return
		case <-t.C:
			fn()
		}
	}
}
