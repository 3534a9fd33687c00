// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/listkeep/listkeep/pkg/errutil"
)

// Sweeper periodically prunes expired sessions.
type Sweeper struct {
	manager  *SessionManager
	interval time.Duration
	logger   *slog.Logger
	onPrune  func(n int64)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a Sweeper. onPrune, if non-nil, is called after every
// successful pass with the number of removed sessions.
func NewSweeper(manager *SessionManager, interval time.Duration, logger *slog.Logger, onPrune func(n int64)) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		manager:  manager,
		interval: interval,
		logger:   logger,
		onPrune:  onPrune,
	}
}

// Start launches the sweep loop. It is a no-op if already running or if
// the interval is not positive.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil || s.interval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, s.done)
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.manager.PruneExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			errutil.LogError(s.logger, "session sweep failed", err)
		}
		return
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "pruned expired sessions", "count", n)
	}
	if s.onPrune != nil {
		s.onPrune(n)
	}
}

// Stop halts the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
