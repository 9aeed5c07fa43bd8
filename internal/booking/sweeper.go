package booking

import (
	"context"
	"fmt"
	"time"
)

// RunCompletionSweeper completes ended rentals once immediately and then
// every interval until ctx is done.
func (s *BookingService) RunCompletionSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Logger.LogProcess("COMPLETION_SWEEP", fmt.Sprintf("running every %s", interval))
	for {
		if _, err := s.CompleteEndedRentals(ctx, s.now()); err != nil && ctx.Err() == nil {
			s.Logger.Error("WORKER", fmt.Sprintf("completion sweep failed: %v", err))
		}
		select {
		case <-ctx.Done():
			s.Logger.LogProcess("COMPLETION_SWEEP", "stopped")
			return
		case <-ticker.C:
		}
	}
}
