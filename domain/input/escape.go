// Package input listens for the keyboard cancellation request.
package input

import (
	"log/slog"

	"github.com/soocke/pull-bot-go/domain/cancel"
)

const keyEscape = 0x1B

// ListenEscape cancels tok when ESCAPE is pressed. The returned function
// stops the listener and restores any terminal state; it is safe to call more
// than once.
func ListenEscape(tok *cancel.Token, logger *slog.Logger) (stop func()) {
	if logger == nil {
		logger = slog.Default()
	}
	return listen(tok, logger)
}
