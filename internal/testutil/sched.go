package testutil

import (
	"log/slog"
	"time"

	"github.com/roach88/gasoline/internal/rx"
)

// Epoch is the virtual start time of deterministic runs.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// NewScheduler returns a virtual scheduler starting at Epoch.
func NewScheduler() *rx.VirtualScheduler {
	return rx.NewVirtualScheduler(Epoch)
}

// QuietLogger discards every record.
func QuietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
