// Package widget reconciles agent-streamed widget definitions with user-owned
// selection state.
//
// The agent owns structure (labels, options) and may redefine it at any time
// while it streams; the user owns selections within that structure. A
// Synchronizer merges each changed payload into the current state without
// clobbering selections, and only when the payload's values change.
package widget

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/gowebpki/jcs"
)

// MergeFunc combines the current state with an incoming payload.
type MergeFunc[S, P any] func(current S, incoming P) S

// Synchronizer holds a merged state and the canonical snapshot of the last
// payload it merged.
type Synchronizer[S, P any] struct {
	merge    MergeFunc[S, P]
	present  func(P) bool
	snapshot func(P) any

	mu     sync.Mutex
	state  S
	last   []byte
	merges int
}

type SyncOption[S, P any] func(*Synchronizer[S, P])

// WithSnapshot sets the value whose canonical form identifies a payload. By
// default it is the payload itself.
func WithSnapshot[S, P any](fn func(P) any) SyncOption[S, P] {
	return func(s *Synchronizer[S, P]) { s.snapshot = fn }
}

// WithPresence overrides how a payload is judged to carry any data. By
// default a payload is absent when its JSON form is null or an object whose
// fields are all null.
func WithPresence[S, P any](fn func(P) bool) SyncOption[S, P] {
	return func(s *Synchronizer[S, P]) { s.present = fn }
}

func NewSynchronizer[S, P any](initial S, merge MergeFunc[S, P], opts ...SyncOption[S, P]) *Synchronizer[S, P] {
	s := &Synchronizer[S, P]{merge: merge, state: initial}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tick offers a payload to the synchronizer. It returns the resulting state and
// whether a merge ran. Payloads with every field absent and payloads whose
// values equal the last merged payload are ignored.
func (s *Synchronizer[S, P]) Tick(payload P) (S, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var v any = payload
	if s.snapshot != nil {
		v = s.snapshot(payload)
	}
	snapshot, err := canonical(v)
	if s.present != nil {
		if !s.present(payload) {
			return s.state, false
		}
	} else if err == nil && absent(snapshot) {
		return s.state, false
	}

	if err == nil && s.last != nil && bytes.Equal(snapshot, s.last) {
		return s.state, false
	}

	s.state = s.merge(s.state, payload)
	s.last = snapshot
	s.merges++
	return s.state, true
}

// Update applies a user mutation. The payload snapshot is left alone so the
// next identical payload still does not re-merge.
func (s *Synchronizer[S, P]) Update(fn func(S) S) S {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = fn(s.state)
	return s.state
}

func (s *Synchronizer[S, P]) State() S {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Merges reports how many ticks resulted in a merge.
func (s *Synchronizer[S, P]) Merges() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.merges
}

// canonical returns the RFC 8785 form of v, so that payloads are compared by
// value regardless of field order or container identity.
func canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}

func absent(snapshot []byte) bool {
	if bytes.Equal(snapshot, []byte("null")) {
		return true
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(snapshot, &fields); err != nil {
		return false
	}
	for _, v := range fields {
		if !bytes.Equal(v, []byte("null")) {
			return false
		}
	}
	return true
}
