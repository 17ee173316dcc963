package storage

import (
	"context"
	"time"

	"github.com/SrujanaJ313/claimant-gateway/internal/log"
)

// CleanupManager runs the abandoned-attempt sweepers on an interval.
type CleanupManager struct {
	sweepers []AttemptSweeper
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewCleanupManager creates a cleanup manager over the given sweepers.
func NewCleanupManager(interval time.Duration, sweepers ...AttemptSweeper) *CleanupManager {
	return &CleanupManager{
		sweepers: sweepers,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the cleanup loop in a goroutine.
func (cm *CleanupManager) Start(ctx context.Context) {
	log.LogInfoWithFields("cleanup", "Starting abandoned login attempt cleanup", map[string]any{
		"interval": cm.interval.String(),
	})

	go cm.run(ctx)
}

// Stop gracefully stops the cleanup loop.
func (cm *CleanupManager) Stop() {
	close(cm.stopChan)
	<-cm.doneChan
	log.LogInfoWithFields("cleanup", "Abandoned login attempt cleanup stopped", nil)
}

func (cm *CleanupManager) run(ctx context.Context) {
	defer close(cm.doneChan)

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run cleanup immediately on start
	cm.cleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.cleanup(ctx)
		case <-cm.stopChan:
			// Final cleanup on shutdown
			cm.cleanup(ctx)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (cm *CleanupManager) cleanup(ctx context.Context) {
	total := 0
	for _, sweeper := range cm.sweepers {
		count, err := sweeper.CleanupAbandonedAttempts(ctx)
		total += count
		if err != nil {
			log.LogErrorWithFields("cleanup", "Failed to clean up abandoned login attempts", map[string]any{
				"error": err.Error(),
			})
		}
	}

	if total > 0 {
		log.LogInfoWithFields("cleanup", "Cleaned up abandoned login attempts", map[string]any{
			"removed": total,
		})
	}
}
