package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingSweeper struct {
	calls chan struct{}
}

func (s *countingSweeper) CleanupAbandonedAttempts(context.Context) (int, error) {
	s.calls <- struct{}{}
	return 1, nil
}

func TestCleanupManagerSweepsOnStartAndStop(t *testing.T) {
	sweeper := &countingSweeper{calls: make(chan struct{}, 4)}
	cm := NewCleanupManager(time.Hour, sweeper)

	cm.Start(context.Background())

	select {
	case <-sweeper.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("no sweep after start")
	}

	cm.Stop()

	select {
	case <-sweeper.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("no final sweep on stop")
	}
}

func TestCleanupManagerRunsAllSweepers(t *testing.T) {
	first := &countingSweeper{calls: make(chan struct{}, 4)}
	second := &countingSweeper{calls: make(chan struct{}, 4)}
	cm := NewCleanupManager(time.Hour, first, second)

	cm.cleanup(context.Background())

	assert.Len(t, first.calls, 1)
	assert.Len(t, second.calls, 1)
}
