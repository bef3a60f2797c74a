// Package surface is the live surface: the single owner of the committed
// pattern and the playback status. Content changes only through Evaluate, which
// commits on success and leaves the committed state untouched on failure.
// Observers receive state, loading-progress and evaluation-error events on
// cancellable channels.
package surface

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m4xw311/strudelgate/errors"
)

// ErrNotReady is returned by operations that need an initialized surface.
var ErrNotReady = errors.Sentinel("surface is not initialized")

// ErrNothingToPlay is returned by Play when no pattern has been committed.
var ErrNothingToPlay = errors.Sentinel("no committed pattern to play")

// State is a snapshot of the surface. EvalError is non-empty iff the most
// recent evaluation failed.
type State struct {
	// Seq orders state and error events across channels.
	Seq       uint64    `json:"seq"`
	Code      string    `json:"code"`
	Draft     string    `json:"draft,omitempty"`
	Started   bool      `json:"started"`
	EvalError string    `json:"evalError,omitempty"`
	Updated   time.Time `json:"updated"`
}

// Progress reports initialization. Percent is monotonically increasing and
// reaches 100 exactly once.
type Progress struct {
	Status  string `json:"status"`
	Percent int    `json:"percent"`
}

// EvalError is published whenever an evaluation is rejected.
type EvalError struct {
	Seq     uint64 `json:"seq"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Evaluator decides whether candidate code is valid.
type Evaluator interface {
	Check(code string) error
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithInitSteps sets the loading stages reported as progress during Init.
func WithInitSteps(steps ...string) Option {
	return func(s *Service) { s.steps = steps }
}

// WithStepDelay pauses between loading stages.
func WithStepDelay(d time.Duration) Option {
	return func(s *Service) { s.stepDelay = d }
}

// WithBuffer sets the per-subscriber event buffer.
func WithBuffer(n int) Option {
	return func(s *Service) { s.buffer = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service owns the surface state. Construct one per session and pass it to
// every component that needs it.
type Service struct {
	evaluator Evaluator
	logger    *slog.Logger
	steps     []string
	stepDelay time.Duration
	buffer    int
	now       func() time.Time

	initMu   sync.Mutex
	initDone chan struct{}
	initErr  error
	ready    atomic.Bool

	// evalMu serializes evaluations so at most one is in flight.
	evalMu sync.Mutex

	mu       sync.RWMutex
	seq      uint64
	state    State
	threadID string

	states   *hub[State]
	progress *hub[Progress]
	errs     *hub[EvalError]
}

func New(evaluator Evaluator, opts ...Option) *Service {
	s := &Service{
		evaluator: evaluator,
		logger:    slog.Default(),
		steps:     []string{"Loading"},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.states = newHub[State](s.buffer)
	s.progress = newHub[Progress](s.buffer)
	s.errs = newHub[EvalError](s.buffer)
	return s
}

// Init loads the surface. It is idempotent: concurrent and repeated calls wait
// for the same single initialization, and progress is reported once. A caller
// whose ctx ends stops waiting but does not abort the load.
func (s *Service) Init(ctx context.Context) error {
	s.initMu.Lock()
	if s.initDone == nil {
		s.initDone = make(chan struct{})
		go s.load(s.initDone)
	}
	done := s.initDone
	s.initMu.Unlock()

	select {
	case <-done:
		return s.initErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) load(done chan struct{}) {
	defer close(done)
	if s.evaluator == nil {
		s.initErr = errors.New("surface has no evaluator")
		return
	}
	for i, step := range s.steps {
		s.progress.publish(Progress{Status: step, Percent: i * 100 / len(s.steps)})
		if s.stepDelay > 0 {
			time.Sleep(s.stepDelay)
		}
	}
	s.ready.Store(true)
	s.progress.publish(Progress{Status: "Ready", Percent: 100})
	s.logger.Info("surface ready", "steps", len(s.steps))
}

func (s *Service) IsReady() bool { return s.ready.Load() }

// Evaluate validates code and commits it on success. On failure the committed
// code and playback status are unchanged, the state records the error and the
// evaluator's error is returned as is. Once started an evaluation runs to
// completion; ctx is only consulted before it begins.
func (s *Service) Evaluate(ctx context.Context, code string) error {
	if !s.IsReady() {
		return ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.evalMu.Lock()
	defer s.evalMu.Unlock()

	checkErr := s.evaluator.Check(code)

	s.mu.Lock()
	if checkErr != nil {
		s.state.EvalError = checkErr.Error()
	} else {
		s.state.Code = code
		s.state.Draft = ""
		s.state.Started = true
		s.state.EvalError = ""
	}
	s.state.Updated = s.now()
	s.seq++
	s.state.Seq = s.seq
	snapshot := s.state
	var errEvent EvalError
	if checkErr != nil {
		s.seq++
		errEvent = EvalError{Seq: s.seq, Message: checkErr.Error(), Code: code}
	}
	s.mu.Unlock()

	s.states.publish(snapshot)
	if checkErr != nil {
		s.logger.Debug("evaluation rejected", "error", checkErr)
		s.errs.publish(errEvent)
		return checkErr
	}
	s.logger.Debug("evaluation committed", "bytes", len(code))
	return nil
}

// SetCode replaces the editor contents. With evaluate it behaves like
// Evaluate; otherwise the code is kept as an uncommitted draft.
func (s *Service) SetCode(ctx context.Context, code string, evaluate bool) error {
	if evaluate {
		return s.Evaluate(ctx, code)
	}
	s.update(func(st *State) { st.Draft = code })
	return nil
}

// Play starts playback of the committed pattern.
func (s *Service) Play(ctx context.Context) error {
	if !s.IsReady() {
		return ErrNotReady
	}
	s.mu.RLock()
	code := s.state.Code
	s.mu.RUnlock()
	if code == "" {
		return ErrNothingToPlay
	}
	s.update(func(st *State) { st.Started = true })
	return nil
}

func (s *Service) Stop() {
	s.update(func(st *State) { st.Started = false })
}

// Reset stops playback and clears the committed code, draft and error.
func (s *Service) Reset() {
	s.update(func(st *State) { *st = State{} })
}

func (s *Service) update(fn func(*State)) {
	s.mu.Lock()
	fn(&s.state)
	s.state.Updated = s.now()
	s.seq++
	s.state.Seq = s.seq
	snapshot := s.state
	s.mu.Unlock()
	s.states.publish(snapshot)
}

// State returns a snapshot of the current state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Service) ThreadID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threadID
}

func (s *Service) SetThreadID(id string) {
	s.mu.Lock()
	s.threadID = id
	s.mu.Unlock()
}

func (s *Service) SubscribeState() *Subscription[State]       { return s.states.subscribe() }
func (s *Service) SubscribeProgress() *Subscription[Progress] { return s.progress.subscribe() }
func (s *Service) SubscribeErrors() *Subscription[EvalError]  { return s.errs.subscribe() }

// Subscribers reports the number of live subscriptions across all channels.
func (s *Service) Subscribers() int {
	return s.states.count() + s.progress.count() + s.errs.count()
}

// Dropped reports how many events were discarded because a subscriber lagged.
func (s *Service) Dropped() int64 {
	return s.states.dropped.Load() + s.progress.dropped.Load() + s.errs.dropped.Load()
}

// Close cancels every subscription.
func (s *Service) Close() {
	s.states.closeAll()
	s.progress.closeAll()
	s.errs.closeAll()
}
