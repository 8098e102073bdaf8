package common

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// InterruptContext is cancelled on the first interrupt or termination signal.
func InterruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
}
