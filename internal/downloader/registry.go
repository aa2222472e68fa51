package downloader

import (
	"context"
	"sync"

	"romm-downloader/pkg/models"
)

// Registry holds the live transfer state and cancel signal for every
// in-flight transfer, keyed by rom id. One mutex guards both maps and is
// never held across I/O.
type Registry struct {
	mu      sync.Mutex
	states  map[int64]models.TransferState
	cancels map[int64]context.CancelFunc
}

// NewRegistry creates an empty transfer registry
func NewRegistry() *Registry {
	return &Registry{
		states:  make(map[int64]models.TransferState),
		cancels: make(map[int64]context.CancelFunc),
	}
}

// register installs the initial state and cancel signal for a transfer.
// Registering a rom that is already in flight overwrites the previous entry;
// callers de-duplicate.
func (r *Registry) register(romID int64, state models.TransferState, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[romID] = state
	r.cancels[romID] = cancel
}

// update applies fn to the rom's state under the lock. A rom with no state
// entry is ignored.
func (r *Registry) update(romID int64, fn func(*models.TransferState)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[romID]
	if !ok {
		return
	}
	fn(&state)
	r.states[romID] = state
}

// State returns a snapshot of the rom's transfer state
func (r *Registry) State(romID int64) (models.TransferState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[romID]
	return state, ok
}

// Cancel fires the rom's cancel signal. Returns false when no signal is
// registered, including after the transfer goroutine has finished.
func (r *Registry) Cancel(romID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.cancels[romID]
	if !ok {
		return false
	}
	cancel()
	return true
}

// releaseCancel drops the rom's cancel signal. Called by the transfer
// goroutine on every exit path; the state entry stays until delivered.
func (r *Registry) releaseCancel(romID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, romID)
}

// ClearFinished removes the rom's state entry only once it is terminal
func (r *Registry) ClearFinished(romID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[romID]
	if ok && state.Status.IsTerminal() {
		delete(r.states, romID)
	}
}

// cancelAll fires every registered cancel signal
func (r *Registry) cancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cancel := range r.cancels {
		cancel()
	}
}
