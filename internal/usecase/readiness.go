package usecase

import (
	"fmt"
	"sync"
	"time"

	"retrieval/internal/domain"
)

type ReadyState int

const (
	NotReady ReadyState = iota
	Building
	Ready
	Failed
)

func (s ReadyState) String() string {
	switch s {
	case Building:
		return "building"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "not_ready"
	}
}

// Readiness is the NotReady -> Building -> Ready | Failed state machine
// shared between the index builder and request handlers. A failed or ready
// system may build again.
type Readiness struct {
	mu      sync.RWMutex
	state   ReadyState
	err     error
	changed time.Time
}

func NewReadiness() *Readiness {
	return &Readiness{changed: time.Now()}
}

// Begin moves to Building. It refuses while another build is running.
func (r *Readiness) Begin() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Building {
		return false
	}
	r.state = Building
	r.err = nil
	r.changed = time.Now()
	return true
}

// Finish ends a build: Ready on nil, Failed otherwise.
func (r *Readiness) Finish(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.state = Failed
	} else {
		r.state = Ready
	}
	r.err = err
	r.changed = time.Now()
}

// Run wraps fn in Begin/Finish.
func (r *Readiness) Run(fn func() error) error {
	if !r.Begin() {
		return fmt.Errorf("%w: build already in progress", domain.ErrNotReady)
	}
	err := fn()
	r.Finish(err)
	return err
}

func (r *Readiness) State() ReadyState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Readiness) Ready() bool {
	return r.State() == Ready
}

// Err is the failure of the last build, if it failed.
func (r *Readiness) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

func (r *Readiness) Since() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.changed
}
