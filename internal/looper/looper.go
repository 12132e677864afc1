// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package looper provides the host "main thread": a FIFO of jobs drained by
// whichever goroutine calls Run. Hosts that require registration on a single
// context hand a Looper to the bridge as its Executor.
package looper

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/relabs-tech/location_bridge/internal/logging"
)

// Looper is an unbounded FIFO job queue.
type Looper struct {
	log zerolog.Logger

	mu     sync.Mutex
	jobs   []func()
	wake   chan struct{}
	closed bool
}

// New returns an idle Looper. Jobs run once Run is called.
func New() *Looper {
	return &Looper{
		log:  logging.WithComponent("looper"),
		wake: make(chan struct{}, 1),
	}
}

// Post queues job without blocking. It returns false once the looper has
// stopped running.
func (l *Looper) Post(job func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.jobs = append(l.jobs, job)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Run executes queued jobs on the calling goroutine until ctx is done. Jobs
// still queued at that point are discarded. Run returns ctx.Err().
func (l *Looper) Run(ctx context.Context) error {
	defer l.close()
	for {
		for {
			job, ok := l.next()
			if !ok {
				break
			}
			l.runJob(job)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Looper) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.jobs) == 0 {
		return nil, false
	}
	job := l.jobs[0]
	l.jobs[0] = nil
	l.jobs = l.jobs[1:]
	return job, true
}

func (l *Looper) runJob(job func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error().Interface("panic", r).Msg("looper job panicked")
		}
	}()
	job()
}

func (l *Looper) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if n := len(l.jobs); n > 0 {
		l.log.Warn().Int("discarded", n).Msg("looper stopped with queued jobs")
	}
	l.jobs = nil
}
