//go:build !windows

package input

import (
	"io"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/term"

	"github.com/soocke/pull-bot-go/domain/cancel"
)

const keyCtrlC = 0x03

func listen(tok *cancel.Token, logger *slog.Logger) func() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		logger.Debug("stdin is not a terminal, escape listener disabled")
		return func() {}
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		logger.Warn("raw terminal unavailable", "error", err)
		return func() {}
	}
	var once sync.Once
	restore := func() {
		once.Do(func() {
			if err := term.Restore(fd, state); err != nil {
				logger.Warn("restore terminal", "error", err)
			}
		})
	}
	go func() {
		watchKeys(os.Stdin, tok, logger)
		restore()
	}()
	return restore
}

// watchKeys reads raw key bytes from r. ESCAPE, and Ctrl-C since raw mode
// swallows SIGINT, cancel the token.
func watchKeys(r io.Reader, tok *cancel.Token, logger *slog.Logger) {
	buf := make([]byte, 16)
	for !tok.Cancelled() {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			if b == keyEscape || b == keyCtrlC {
				logger.Info("escape pressed, stopping")
				tok.Cancel()
				return
			}
		}
		if err != nil {
			return
		}
	}
}
