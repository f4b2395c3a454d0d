// File: internal/turn/coordinator.go
package turn

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/internal/config"
)

// State of the open conversation turn.
type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateDebouncing State = "debouncing"
	StateDispatched State = "dispatched"
	StateResponded  State = "responded"
)

// Turn is one user utterance on its way to the intent source.
type Turn struct {
	ID                  string    `json:"id"`
	RawTranscript       string    `json:"rawTranscript"`
	FinalizedTranscript string    `json:"finalizedTranscript,omitempty"`
	StartedAt           time.Time `json:"startedAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
	State               State     `json:"state"`
}

// Reply is what a dispatch produced for the user. An empty Spoken means
// there is nothing to say.
type Reply struct {
	Spoken string
}

// Dispatcher handles a finalized turn. It is called at most once per turn and
// never concurrently within one coordinator.
type Dispatcher interface {
	Dispatch(ctx context.Context, t Turn) (Reply, error)
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(ctx context.Context, t Turn) (Reply, error)

func (f DispatchFunc) Dispatch(ctx context.Context, t Turn) (Reply, error) { return f(ctx, t) }

// Sink is the audio channel side of the coordinator.
type Sink interface {
	// Speak sends text to be voiced.
	Speak(text string) error
	// Display shows an agent utterance that is not an echo.
	Display(text string) error
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithClock replaces the wall clock.
func WithClock(clk Clock) Option {
	return func(c *Coordinator) { c.clock = clk }
}

type utterance struct {
	text string
	at   time.Time
}

// Coordinator turns a stream of transcript fragments into debounced,
// single-flight dispatches and keeps the audio channel from talking over
// itself or repeating its own echo.
type Coordinator struct {
	cfg        config.TurnConfig
	dispatcher Dispatcher
	sink       Sink
	clock      Clock
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu             sync.Mutex
	stopped        bool
	turn           *Turn
	debounce       Timer
	generation     uint64
	inFlight       bool
	cancelDispatch context.CancelFunc
	held           string

	speaking     bool
	queued       string
	speechTimer  Timer
	lastSpoken   utterance
	echoConsumed bool
	lastShown    utterance
}

// New creates a coordinator. It is live immediately; call Stop to end it.
func New(cfg config.TurnConfig, d Dispatcher, sink Sink, logger *zap.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:        cfg,
		dispatcher: d,
		sink:       sink,
		clock:      RealClock(),
		logger:     logger.Named("turn"),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State reports the state of the open turn, or idle.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turn == nil {
		return StateIdle
	}
	return c.turn.State
}

// Current returns a copy of the open turn.
func (c *Coordinator) Current() (Turn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turn == nil {
		return Turn{}, false
	}
	return *c.turn, true
}

// InFlight reports whether a dispatch is outstanding.
func (c *Coordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// OnUserFragment feeds one transcript fragment. Fragments inside the
// freshness window replace the open turn's text; a fragment arriving while a
// dispatch is outstanding is held and replayed once it completes.
func (c *Coordinator) OnUserFragment(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	if c.inFlight {
		c.held = text
		c.logger.Debug("Holding fragment until the outstanding dispatch completes")
		return
	}
	c.acceptLocked(text)
}

func (c *Coordinator) acceptLocked(text string) {
	now := c.clock.Now()
	t := c.turn
	// Freshness is the turn's age, not the gap since its last fragment.
	fresh := t != nil &&
		(t.State == StateListening || t.State == StateDebouncing) &&
		now.Sub(t.StartedAt) <= c.cfg.Freshness

	if fresh {
		t.RawTranscript = text
		t.UpdatedAt = now
	} else {
		if t != nil && t.State == StateDebouncing {
			c.logger.Debug("Replacing a stale turn that never fired", zap.String("turn_id", t.ID))
		}
		c.turn = &Turn{
			ID:            uuid.New().String(),
			RawTranscript: text,
			StartedAt:     now,
			UpdatedAt:     now,
			State:         StateListening,
		}
	}
	c.scheduleLocked()
}

// scheduleLocked (re)arms the debounce timer for the open turn.
func (c *Coordinator) scheduleLocked() {
	if c.debounce != nil {
		c.debounce.Stop()
	}
	c.generation++
	gen, id := c.generation, c.turn.ID
	c.turn.State = StateDebouncing
	c.debounce = c.clock.AfterFunc(c.cfg.Debounce, func() { c.fire(id, gen) })
}

// fire dispatches the turn unless the timer was superseded.
func (c *Coordinator) fire(id string, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || c.inFlight || c.turn == nil || c.turn.ID != id ||
		gen != c.generation || c.turn.State != StateDebouncing {
		return
	}

	c.debounce = nil
	c.turn.FinalizedTranscript = c.turn.RawTranscript
	c.turn.State = StateDispatched
	c.inFlight = true

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.cfg.DispatchTimeout > 0 {
		ctx, cancel = context.WithTimeout(c.ctx, c.cfg.DispatchTimeout)
	} else {
		ctx, cancel = context.WithCancel(c.ctx)
	}
	c.cancelDispatch = cancel

	snapshot := *c.turn
	c.logger.Info("Dispatching turn", zap.String("turn_id", snapshot.ID), zap.String("transcript", snapshot.FinalizedTranscript))

	c.wg.Add(1)
	go c.dispatch(ctx, cancel, snapshot)
}

func (c *Coordinator) dispatch(ctx context.Context, cancel context.CancelFunc, t Turn) {
	defer c.wg.Done()
	reply, err := c.dispatcher.Dispatch(ctx, t)
	cancel()

	var effects []func()
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.inFlight = false
	c.cancelDispatch = nil

	if c.turn != nil && c.turn.ID == t.ID {
		if err != nil {
			c.logger.Warn("Dispatch failed, turn abandoned", zap.String("turn_id", t.ID), zap.Error(err))
			c.turn.State = StateIdle
		} else {
			c.turn.State = StateResponded
			if reply.Spoken != "" {
				effects = append(effects, c.speakLocked(reply.Spoken)...)
			}
		}
		c.turn = nil
	}

	if held := c.held; held != "" {
		c.held = ""
		c.logger.Debug("Replaying held fragment as a new turn")
		c.acceptLocked(held)
	}
	c.mu.Unlock()

	for _, f := range effects {
		f()
	}
}

// Speak queues text for the audio channel outside of any turn.
func (c *Coordinator) Speak(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	effects := c.speakLocked(text)
	c.mu.Unlock()
	for _, f := range effects {
		f()
	}
}

// speakLocked sends text now, or parks it in the single-slot queue when a
// response is still being voiced. The returned effects must run unlocked.
func (c *Coordinator) speakLocked(text string) []func() {
	if c.speaking {
		if c.queued != "" {
			c.logger.Debug("Dropping queued speech in favour of a newer response")
		}
		c.queued = text
		return nil
	}

	now := c.clock.Now()
	c.speaking = true
	c.lastSpoken = utterance{text: text, at: now}
	c.echoConsumed = false
	c.speechTimer = c.clock.AfterFunc(c.speakingTime(text), c.speechDone)

	sink := c.sink
	return []func(){func() {
		if err := sink.Speak(text); err != nil {
			c.logger.Warn("Failed to send speech", zap.Error(err))
		}
	}}
}

func (c *Coordinator) speechDone() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.speaking = false
	c.speechTimer = nil
	var effects []func()
	if next := c.queued; next != "" {
		c.queued = ""
		effects = c.speakLocked(next)
	}
	c.mu.Unlock()
	for _, f := range effects {
		f()
	}
}

// speakingTime estimates how long text takes to say.
func (c *Coordinator) speakingTime(text string) time.Duration {
	wpm := c.cfg.WordsPerMinute
	if wpm <= 0 {
		wpm = 150
	}
	words := len(strings.Fields(text))
	d := time.Duration(words) * time.Minute / time.Duration(wpm)
	if d < c.cfg.MinSpeechDuration {
		d = c.cfg.MinSpeechDuration
	}
	return d
}

// OnAgentUtterance handles text the voice agent said on its own. Echoes of
// our last response are suppressed once, noise is dropped, and anything else
// is displayed once per echo window.
func (c *Coordinator) OnAgentUtterance(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	if c.isNoise(text) {
		c.mu.Unlock()
		c.logger.Debug("Filtered noise utterance", zap.String("text", text))
		return
	}

	now := c.clock.Now()
	if c.lastSpoken.text != "" && !c.echoConsumed &&
		now.Sub(c.lastSpoken.at) <= c.cfg.EchoWindow && Overlaps(text, c.lastSpoken.text) {
		c.echoConsumed = true
		c.mu.Unlock()
		c.logger.Debug("Suppressed echo of last response", zap.String("text", text))
		return
	}
	if c.lastShown.text != "" && normalize(c.lastShown.text) == normalize(text) &&
		now.Sub(c.lastShown.at) <= c.cfg.EchoWindow {
		c.mu.Unlock()
		c.logger.Debug("Suppressed repeated utterance", zap.String("text", text))
		return
	}
	c.lastShown = utterance{text: text, at: now}
	sink := c.sink
	c.mu.Unlock()

	if err := sink.Display(text); err != nil {
		c.logger.Warn("Failed to display utterance", zap.Error(err))
	}
}

func (c *Coordinator) isNoise(text string) bool {
	n := normalize(text)
	for _, phrase := range c.cfg.NoisePhrases {
		if p := normalize(phrase); p != "" && strings.Contains(n, p) {
			return true
		}
	}
	return false
}

// Stop cancels the debounce timer, the outstanding dispatch and any queued
// speech, then waits for the dispatch goroutine to return. It is idempotent.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	if c.speechTimer != nil {
		c.speechTimer.Stop()
		c.speechTimer = nil
	}
	if c.cancelDispatch != nil {
		c.cancelDispatch()
		c.cancelDispatch = nil
	}
	c.inFlight = false
	c.held = ""
	c.queued = ""
	c.speaking = false
	c.turn = nil
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	c.logger.Debug("Coordinator stopped")
}
