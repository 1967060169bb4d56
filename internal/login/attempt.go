// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package login

import (
	"sync"

	"github.com/glowline/glowline/internal/profile"
)

// Attempt is the progress of one handshake. It is safe to observe from
// any goroutine.
type Attempt struct {
	mu       sync.Mutex
	state    State
	err      error
	identity *profile.PlayerIdentity
	done     chan struct{}
}

func newAttempt() *Attempt {
	return &Attempt{state: StateStart, done: make(chan struct{})}
}

// State returns the current state.
func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Err returns why the attempt was aborted, or nil.
func (a *Attempt) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Identity returns the admitted identity, or nil.
func (a *Attempt) Identity() *profile.PlayerIdentity {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.identity
}

// Done is closed once the attempt reaches a terminal state.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// advance moves to s unless the attempt already finished.
func (a *Attempt) advance(s State) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.Terminal() {
		return false
	}
	a.state = s
	return true
}

func (a *Attempt) abortWith(err error) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.Terminal() {
		return false
	}
	a.state = StateAborted
	a.err = err
	close(a.done)
	return true
}

func (a *Attempt) admit(identity *profile.PlayerIdentity) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.Terminal() {
		return false
	}
	a.state = StateAdmitted
	a.identity = identity
	close(a.done)
	return true
}
