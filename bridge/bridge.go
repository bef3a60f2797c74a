// Package bridge mirrors live surface events into UI state. It tracks loading
// progress and readiness, keeps a mirror of the surface state and maintains the
// error log shown to the user: evaluation errors accumulate and the log is
// cleared by the first state change that carries no error.
package bridge

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/m4xw311/strudelgate/surface"
)

const defaultStatus = "Loading..."

// Source is the live surface as seen by the bridge.
type Source interface {
	IsReady() bool
	Init(ctx context.Context) error
	State() surface.State
	SubscribeState() *surface.Subscription[surface.State]
	SubscribeProgress() *surface.Subscription[surface.Progress]
	SubscribeErrors() *surface.Subscription[surface.EvalError]
}

// View is the UI-facing snapshot maintained by the bridge.
type View struct {
	Status  string        `json:"status"`
	Percent int           `json:"percent"`
	Ready   bool          `json:"ready"`
	State   surface.State `json:"state"`
	Errors  []string      `json:"errors"`
}

type eventKind int

const (
	progressEvent eventKind = iota
	stateEvent
	errorEvent
)

type event struct {
	kind     eventKind
	seq      uint64
	progress surface.Progress
	state    surface.State
	evalErr  surface.EvalError
}

// Bridge adapts a Source's channels into a View. Events are applied on the
// consumer's turn, either explicitly with Drain or continuously with Run.
type Bridge struct {
	src    Source
	logger *slog.Logger

	mu        sync.Mutex
	mounted   bool
	states    *surface.Subscription[surface.State]
	progress  *surface.Subscription[surface.Progress]
	errs      *surface.Subscription[surface.EvalError]
	done      chan struct{}
	view      View
	listeners map[int]func(View)
	nextID    int
}

func New(src Source, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		src:       src,
		logger:    logger,
		view:      View{Status: defaultStatus, Errors: []string{}},
		listeners: make(map[int]func(View)),
	}
}

// Mount subscribes to every channel, seeds the mirror with the surface's
// current state and then, if the surface is not ready yet, starts its
// initialization. Subscribing first guarantees no early progress or state
// event is missed. Mounting an already mounted bridge does nothing.
func (b *Bridge) Mount(ctx context.Context) error {
	b.mu.Lock()
	if b.mounted {
		b.mu.Unlock()
		return nil
	}
	b.states = b.src.SubscribeState()
	b.progress = b.src.SubscribeProgress()
	b.errs = b.src.SubscribeErrors()
	b.done = make(chan struct{})
	b.mounted = true
	if st := b.src.State(); st.Seq >= b.view.State.Seq {
		b.view.State = st
	}
	b.mu.Unlock()

	if b.src.IsReady() {
		b.apply([]event{{kind: progressEvent, progress: surface.Progress{Status: "Ready", Percent: 100}}})
		return nil
	}
	go func() {
		if err := b.src.Init(ctx); err != nil {
			b.logger.Warn("surface initialization failed", "error", err)
		}
	}()
	return nil
}

// Unmount cancels every subscription handle. It is safe to call repeatedly.
func (b *Bridge) Unmount() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.mounted {
		return
	}
	b.states.Cancel()
	b.progress.Cancel()
	b.errs.Cancel()
	close(b.done)
	b.mounted = false
}

// Drain applies every pending event without blocking and reports how many were
// applied.
func (b *Bridge) Drain() int {
	batch := b.collect(nil)
	b.apply(batch)
	return len(batch)
}

// Run applies events as they arrive until ctx is done or the bridge is
// unmounted.
func (b *Bridge) Run(ctx context.Context) {
	b.mu.Lock()
	if !b.mounted {
		b.mu.Unlock()
		return
	}
	states, progress, errs, done := b.states.C(), b.progress.C(), b.errs.C(), b.done
	b.mu.Unlock()

	for {
		var first event
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case st, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			first = event{kind: stateEvent, seq: st.Seq, state: st}
		case p, ok := <-progress:
			if !ok {
				progress = nil
				continue
			}
			first = event{kind: progressEvent, progress: p}
		case e, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			first = event{kind: errorEvent, seq: e.Seq, evalErr: e}
		}
		b.apply(b.collect(&first))
	}
}

// collect gathers everything already queued. Events are ordered by the
// surface's sequence number since the channels are independent.
func (b *Bridge) collect(first *event) []event {
	b.mu.Lock()
	if !b.mounted {
		b.mu.Unlock()
		if first != nil {
			return []event{*first}
		}
		return nil
	}
	states, progress, errs := b.states.C(), b.progress.C(), b.errs.C()
	b.mu.Unlock()

	var batch []event
	if first != nil {
		batch = append(batch, *first)
	}
	for {
		select {
		case st, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			batch = append(batch, event{kind: stateEvent, seq: st.Seq, state: st})
		case p, ok := <-progress:
			if !ok {
				progress = nil
				continue
			}
			batch = append(batch, event{kind: progressEvent, progress: p})
		case e, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			batch = append(batch, event{kind: errorEvent, seq: e.Seq, evalErr: e})
		default:
			sort.SliceStable(batch, func(i, j int) bool { return batch[i].seq < batch[j].seq })
			return batch
		}
	}
}

func (b *Bridge) apply(batch []event) {
	if len(batch) == 0 {
		return
	}
	b.mu.Lock()
	for _, ev := range batch {
		switch ev.kind {
		case progressEvent:
			b.onLoadingProgress(ev.progress)
		case stateEvent:
			b.onStateChange(ev.state)
		case errorEvent:
			b.onEvaluationError(ev.evalErr)
		}
	}
	view := b.snapshotLocked()
	listeners := make([]func(View), 0, len(b.listeners))
	for _, fn := range b.listeners {
		listeners = append(listeners, fn)
	}
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(view)
	}
}

func (b *Bridge) onLoadingProgress(p surface.Progress) {
	b.view.Status = p.Status
	if b.view.Status == "" {
		b.view.Status = defaultStatus
	}
	if p.Percent > b.view.Percent {
		b.view.Percent = p.Percent
	}
	if p.Percent >= 100 {
		b.view.Ready = true
	}
}

func (b *Bridge) onStateChange(st surface.State) {
	if st.Seq < b.view.State.Seq {
		return
	}
	b.view.State = st
	if st.EvalError == "" {
		b.view.Errors = []string{}
	}
}

func (b *Bridge) onEvaluationError(e surface.EvalError) {
	b.view.Errors = append(b.view.Errors, e.Message)
}

// SetError appends a UI-originated error. Empty messages are ignored.
func (b *Bridge) SetError(msg string) {
	if msg == "" {
		return
	}
	b.mutate(func(v *View) { v.Errors = append(v.Errors, msg) })
}

func (b *Bridge) ClearErrors() {
	b.mutate(func(v *View) { v.Errors = []string{} })
}

func (b *Bridge) mutate(fn func(*View)) {
	b.mu.Lock()
	fn(&b.view)
	view := b.snapshotLocked()
	listeners := make([]func(View), 0, len(b.listeners))
	for _, l := range b.listeners {
		listeners = append(listeners, l)
	}
	b.mu.Unlock()
	for _, l := range listeners {
		l(view)
	}
}

// Snapshot returns a copy of the current view.
func (b *Bridge) Snapshot() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Bridge) snapshotLocked() View {
	v := b.view
	v.Errors = append([]string{}, b.view.Errors...)
	return v
}

// OnChange registers fn to be called with the new view after every applied
// batch. The returned function removes the listener.
func (b *Bridge) OnChange(fn func(View)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}
}
