// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

// Package executor provides serial execution contexts.
//
// A Serial runs submitted tasks one at a time, in submission order, on a
// single goroutine. The server uses one Serial as the main context that
// owns the player registry, and one per connection as that connection's
// processing context.
package executor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/samber/oops"
)

// CodeStopped is the error code returned by Submit after Stop.
const CodeStopped = "EXECUTOR_STOPPED"

// Executor accepts units of work for serialized execution.
type Executor interface {
	// Submit queues task. It returns an error when the executor no longer
	// accepts work; the task will then never run.
	Submit(task func()) error
}

// Func adapts a plain function to Executor. It is mostly useful in tests
// where running a task inline is acceptable.
type Func func(task func()) error

// Submit calls f(task).
func (f Func) Submit(task func()) error {
	return f(task)
}

// Serial executes tasks sequentially on the goroutine running Run.
type Serial struct {
	name   string
	logger *slog.Logger

	mu      sync.Mutex
	queue   []func()
	stopped bool

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewSerial creates a stopped-until-Run executor. name is used in logs.
func NewSerial(name string, logger *slog.Logger) *Serial {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Serial{
		name:   name,
		logger: logger,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Submit queues task. The queue is unbounded so a task may submit
// follow-up work to its own executor without deadlocking.
func (s *Serial) Submit(task func()) error {
	if task == nil {
		return oops.Code("EXECUTOR_NIL_TASK").With("executor", s.name).Errorf("task is nil")
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return oops.Code(CodeStopped).With("executor", s.name).Errorf("executor stopped")
	}
	s.queue = append(s.queue, task)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Run executes tasks until ctx is cancelled or Stop is called. Tasks still
// queued at that point are discarded. Run must be called at most once.
func (s *Serial) Run(ctx context.Context) {
	defer close(s.done)
	defer s.Stop()

	for {
		for {
			task, ok := s.next()
			if !ok {
				break
			}
			s.execute(task)
			select {
			case <-s.stop:
				return
			default:
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-s.wake:
		}
	}
}

// Start runs the executor on a new goroutine.
func (s *Serial) Start(ctx context.Context) {
	go s.Run(ctx)
}

// Stop makes further Submit calls fail and ends Run after the current task.
// It is safe to call from any goroutine, including from inside a task.
func (s *Serial) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.queue = nil
		s.mu.Unlock()
		close(s.stop)
	})
}

// Stopped reports whether the executor has stopped accepting work.
func (s *Serial) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Done is closed once Run has returned.
func (s *Serial) Done() <-chan struct{} {
	return s.done
}

func (s *Serial) next() (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || len(s.queue) == 0 {
		return nil, false
	}
	task := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return task, true
}

func (s *Serial) execute(task func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panicked",
				"event", "executor_task_panic",
				"executor", s.name,
				"panic", r,
			)
		}
	}()
	task()
}
