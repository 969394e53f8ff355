package debug

// Memory/RSS periodic logger enabled when debug=true.
// Logs resident set size along with Go heap stats to correlate native vs heap
// growth, mostly from capture buffers.

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/soocke/pull-bot-go/domain/cancel"
)

// StartMemLogger launches a goroutine that logs memory stats every interval.
// It is best-effort; failures to query RSS are logged once and suppressed.
func StartMemLogger(interval time.Duration, tok *cancel.Token, logger *slog.Logger) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	var rssErrLogged bool
	go every(interval, tok, func() {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		rss, err := residentSetSize()
		if err != nil && !rssErrLogged {
			logger.Warn("memlog: rss query failed", slog.String("err", err.Error()))
			rssErrLogged = true
		}
		logger.Info("memstats",
			slog.Int("goroutines", runtime.NumGoroutine()),
			slog.Uint64("heap_alloc", ms.HeapAlloc),
			slog.Uint64("heap_inuse", ms.HeapInuse),
			slog.Uint64("heap_idle", ms.HeapIdle),
			slog.Uint64("heap_sys", ms.HeapSys),
			slog.Uint64("next_gc", ms.NextGC),
			slog.Uint64("rss", rss),
			slog.Uint64("num_gc", uint64(ms.NumGC)),
		)
	})
}
