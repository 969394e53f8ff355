//go:build windows

package input

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sys/windows"

	"github.com/soocke/pull-bot-go/domain/cancel"
)

var procGetAsyncKeyState = windows.NewLazySystemDLL("user32.dll").NewProc("GetAsyncKeyState")

func escapeDown() bool {
	r, _, _ := procGetAsyncKeyState.Call(keyEscape)
	return r&0x8000 != 0
}

func listen(tok *cancel.Token, logger *slog.Logger) func() {
	quit := make(chan struct{})
	var once sync.Once
	go pollKeys(tok, logger, escapeDown, quit)
	return func() { once.Do(func() { close(quit) }) }
}

// pollKeys checks down at the token's poll interval until cancellation or quit.
func pollKeys(tok *cancel.Token, logger *slog.Logger, down func() bool, quit <-chan struct{}) {
	ticker := time.NewTicker(tok.PollInterval())
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return
		case <-tok.Done():
			return
		case <-ticker.C:
			if down() {
				logger.Info("escape pressed, stopping")
				tok.Cancel()
				return
			}
		}
	}
}
