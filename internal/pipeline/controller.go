package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/voxmemo/internal/audio"
	"github.com/scrypster/voxmemo/internal/logging"
	"github.com/scrypster/voxmemo/internal/storage"
	"github.com/scrypster/voxmemo/pkg/types"
)

// ErrAlreadyRunning is returned by Run when the controller loop is already
// running.
var ErrAlreadyRunning = errors.New("pipeline: controller already running")

// Recorder captures one recording at a time.
type Recorder interface {
	Start(ctx context.Context) (string, error)
	Stop() (string, error)
	Active() bool
	Level() float64
	Elapsed() time.Duration
}

// Transcriber turns a finished recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) types.Transcription
}

// Analyzer extracts a structured analysis from transcription text. Retry is
// used for a user-requested retry after a failed Analyze.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*types.Analysis, error)
	Retry(ctx context.Context, text string) (*types.Analysis, error)
}

// Options tunes a Controller.
type Options struct {
	TickInterval time.Duration // default 50ms
	MaxSamples   int           // default 100
	Logger       *zap.SugaredLogger
}

type msgKind int

const (
	msgIntent msgKind = iota
	msgToggle
	msgCompletion
	msgTick
	msgMemories
	msgLibraryError
)

type message struct {
	kind  msgKind
	event Event
	gen   uint64

	transcription types.Transcription
	analysis      *types.Analysis
	memories      []*types.Memory
	seq           uint64
	err           error
}

// Controller owns the pipeline session. All session state is read and written
// only by the goroutine running Run; other goroutines communicate with it
// through messages and observe it through snapshots.
type Controller struct {
	recorder    Recorder
	transcriber Transcriber
	analyzer    Analyzer
	store       storage.MemoryStore
	tick        time.Duration
	log         *zap.SugaredLogger

	events  chan message
	done    chan struct{}
	life    context.Context
	endLife context.CancelFunc
	running atomic.Bool
	listSeq atomic.Uint64

	// Loop-owned state.
	rootCtx       context.Context
	sessionCtx    context.Context
	cancelSession context.CancelFunc
	stopTicker    context.CancelFunc
	state         State
	gen           uint64
	samples       *audio.SampleBuffer
	elapsed       time.Duration
	path          string
	stopErr       error
	transcription types.Transcription
	transcribing  bool
	analyzing     bool
	analysis      *types.Analysis
	errKind       ErrorKind
	errMsg        string
	memories      []types.Memory
	appliedSeq    uint64
	libraryErr    string

	mu     sync.Mutex
	latest Snapshot
	subs   map[int]chan Snapshot
	nextID int
	closed bool
}

// NewController wires the pipeline stages together. Call Run to start it.
func NewController(rec Recorder, tr Transcriber, an Analyzer, store storage.MemoryStore, opts Options) (*Controller, error) {
	if rec == nil || tr == nil || an == nil || store == nil {
		return nil, fmt.Errorf("pipeline: recorder, transcriber, analyzer and store are required")
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = 50 * time.Millisecond
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 100
	}

	c := &Controller{
		recorder:    rec,
		transcriber: tr,
		analyzer:    an,
		store:       store,
		tick:        opts.TickInterval,
		log:         logging.OrNop(opts.Logger),
		events:      make(chan message, 64),
		done:        make(chan struct{}),
		samples:     audio.NewSampleBuffer(opts.MaxSamples),
		subs:        make(map[int]chan Snapshot),
	}
	c.life, c.endLife = context.WithCancel(context.Background())
	c.latest = Snapshot{State: Idle, Samples: []float64{}, Memories: []types.Memory{}}
	return c, nil
}

// Run processes events until ctx is cancelled. On return any active
// recording is discarded and subscriber channels are closed.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(c.done)
	defer c.endLife()

	c.rootCtx = ctx
	c.sessionCtx, c.cancelSession = context.WithCancel(ctx)
	c.gen = 1
	c.publish()
	c.refreshMemories()

	c.log.Infow("pipeline controller started")
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			c.log.Infow("pipeline controller stopped")
			return nil
		case m := <-c.events:
			c.handle(m)
		}
	}
}

// Start begins a new recording, superseding any session in progress.
func (c *Controller) Start() { c.send(message{kind: msgIntent, event: Event{Kind: EventStart}}) }

// Stop ends the recording and starts transcription.
func (c *Controller) Stop() { c.send(message{kind: msgIntent, event: Event{Kind: EventStop}}) }

// Toggle stops an active recording or starts a new one.
func (c *Controller) Toggle() { c.send(message{kind: msgToggle}) }

// Retry re-sends the analysis request after an analysis failure.
func (c *Controller) Retry() { c.send(message{kind: msgIntent, event: Event{Kind: EventRetry}}) }

// Save persists the current analysis as a memory.
func (c *Controller) Save() { c.send(message{kind: msgIntent, event: Event{Kind: EventSave}}) }

// Discard abandons the current session.
func (c *Controller) Discard() { c.send(message{kind: msgIntent, event: Event{Kind: EventDiscard}}) }

// DeleteMemory removes a saved memory and refreshes the memory list. It runs
// on the caller's goroutine and returns storage.ErrNotFound for unknown IDs.
func (c *Controller) DeleteMemory(ctx context.Context, id string) error {
	if err := c.store.Delete(ctx, id); err != nil {
		c.send(message{kind: msgLibraryError, err: fmt.Errorf("failed to delete memory: %w", err)})
		return err
	}
	c.log.Infow("memory deleted", "id", id)
	c.refreshMemories()
	return nil
}

// Refresh reloads the memory list from the store.
func (c *Controller) Refresh() { c.refreshMemories() }

// Snapshot returns the most recently published snapshot.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// Subscribe returns a channel that receives snapshots, starting with the
// current one. Delivery is latest-wins: a slow reader skips intermediate
// snapshots but always sees the newest. The channel is closed by cancel or
// when the controller stops.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextID
	c.nextID++
	c.subs[id] = ch
	ch <- c.latest

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(ch)
			}
		})
	}
}

// send delivers m to the loop, giving up once the loop has exited.
func (c *Controller) send(m message) bool {
	select {
	case c.events <- m:
		return true
	case <-c.done:
		return false
	}
}

func (c *Controller) handle(m message) {
	switch m.kind {
	case msgIntent:
		c.dispatch(m.event, nil)

	case msgToggle:
		kind := EventStart
		if c.state == Recording {
			kind = EventStop
		}
		c.dispatch(Event{Kind: kind}, nil)

	case msgTick:
		if m.gen != c.gen || c.state != Recording {
			return
		}
		c.samples.Push(audio.Amplitude(c.recorder.Level()))
		c.elapsed = c.recorder.Elapsed()
		c.publish()

	case msgCompletion:
		if m.gen != c.gen {
			c.log.Debugw("discarding stale completion", "event", m.event.Kind.String(), "generation", m.gen, "current", c.gen)
			return
		}
		c.dispatch(m.event, func() { c.applyCompletion(m) })

	case msgMemories:
		if m.seq <= c.appliedSeq {
			return
		}
		c.appliedSeq = m.seq
		if m.err != nil {
			c.libraryErr = fmt.Sprintf("failed to load memories: %v", m.err)
		} else {
			c.libraryErr = ""
			c.memories = make([]types.Memory, 0, len(m.memories))
			for _, mem := range m.memories {
				c.memories = append(c.memories, *mem)
			}
		}
		c.publish()

	case msgLibraryError:
		c.libraryErr = m.err.Error()
		c.publish()
	}
}

// dispatch applies one transition. apply runs only if the event is accepted,
// before the transition's effects.
func (c *Controller) dispatch(e Event, apply func()) {
	next, effects, ok := Transition(c.state, e)
	if !ok {
		c.log.Debugw("ignoring event", "state", c.state.String(), "event", e.Kind.String())
		return
	}
	c.log.Debugw("transition",
		"from", c.state.String(),
		"to", next.String(),
		"event", e.Kind.String(),
		"generation", c.gen,
	)
	c.state = next
	if apply != nil {
		apply()
	}
	for _, eff := range effects {
		c.run(eff)
	}
	c.publish()
}

func (c *Controller) applyCompletion(m message) {
	switch m.event.Kind {
	case EventTranscribed:
		c.transcribing = false
		c.transcription = m.transcription
	case EventTranscriptionFailed:
		c.transcribing = false
		c.transcription = m.transcription
		if errors.Is(m.err, audio.ErrDeviceUnavailable) {
			c.setError(ErrorDevice, m.err.Error())
		} else {
			c.setError(ErrorTranscription, m.transcription.Error)
		}
	case EventAnalyzed:
		c.analyzing = false
		c.analysis = m.analysis
		c.clearError()
	case EventAnalysisFailed:
		c.analyzing = false
		c.setError(ErrorAnalysis, m.err.Error())
	case EventPersisted:
		c.clearError()
	case EventPersistFailed:
		c.setError(ErrorStorage, fmt.Sprintf("failed to save memory: %v", m.err))
	}
}

func (c *Controller) run(eff Effect) {
	switch eff {
	case EffectReset:
		c.reset()

	case EffectStartRecorder:
		c.clearError()
		c.samples.Reset()
		c.elapsed = 0
		path, err := c.recorder.Start(c.sessionCtx)
		if err != nil {
			c.log.Warnw("recorder failed to start", "error", err)
			c.dispatch(Event{Kind: EventRecorderFailed}, func() {
				c.setError(ErrorDevice, err.Error())
			})
			return
		}
		c.path = path
		c.startTicker()

	case EffectStopRecorder:
		c.haltTicker()
		c.elapsed = c.recorder.Elapsed()
		path, err := c.recorder.Stop()
		if path != "" {
			c.path = path
		}
		c.stopErr = err

	case EffectTranscribe:
		c.transcribing = true
		gen, ctx, path, stopErr := c.gen, c.sessionCtx, c.path, c.stopErr
		go func() {
			if stopErr != nil {
				res := types.Transcription{Error: fmt.Sprintf("transcription failed: %v", stopErr)}
				c.send(message{kind: msgCompletion, gen: gen, event: Event{Kind: EventTranscriptionFailed}, transcription: res, err: stopErr})
				return
			}
			res := c.transcriber.Transcribe(ctx, path)
			kind := EventTranscribed
			if !res.Success {
				kind = EventTranscriptionFailed
			}
			c.send(message{kind: msgCompletion, gen: gen, event: Event{Kind: kind, Text: res.Text}, transcription: res})
		}()

	case EffectAnalyze, EffectReanalyze:
		c.analyzing = true
		c.analysis = nil
		c.clearError()
		gen, ctx, text := c.gen, c.sessionCtx, c.transcription.Text
		analyze := c.analyzer.Analyze
		if eff == EffectReanalyze {
			analyze = c.analyzer.Retry
		}
		go func() {
			analysis, err := analyze(ctx, text)
			if err != nil {
				c.send(message{kind: msgCompletion, gen: gen, event: Event{Kind: EventAnalysisFailed}, err: err})
				return
			}
			c.send(message{kind: msgCompletion, gen: gen, event: Event{Kind: EventAnalyzed}, analysis: analysis})
		}()

	case EffectPersist:
		gen, ctx := c.gen, c.rootCtx
		analysis, text := cloneAnalysis(c.analysis), c.transcription.Text
		go func() {
			memory, err := c.store.Save(ctx, *analysis, text)
			if err != nil {
				c.log.Errorw("failed to save memory", "error", err)
				c.send(message{kind: msgCompletion, gen: gen, event: Event{Kind: EventPersistFailed}, err: err})
				return
			}
			c.log.Infow("memory saved", "id", memory.ID, "category", memory.Category)
			c.refreshMemories()
			c.send(message{kind: msgCompletion, gen: gen, event: Event{Kind: EventPersisted}})
		}()

	case EffectSettle:
		c.publish()
		c.dispatch(Event{Kind: EventSettle}, nil)
	}
}

// reset retires the current generation, cancels its in-flight work and
// removes its recording.
func (c *Controller) reset() {
	c.haltTicker()
	c.cancelSession()
	if c.recorder.Active() {
		path, err := c.recorder.Stop()
		if err != nil {
			c.log.Warnw("failed to stop superseded recording", "error", err)
		}
		if path != "" {
			c.path = path
		}
	}
	c.removeRecording()

	c.gen++
	c.sessionCtx, c.cancelSession = context.WithCancel(c.rootCtx)
	c.samples.Reset()
	c.elapsed = 0
	c.stopErr = nil
	c.transcription = types.Transcription{}
	c.transcribing = false
	c.analyzing = false
	c.analysis = nil
	c.clearError()
}

func (c *Controller) removeRecording() {
	if c.path == "" {
		return
	}
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.log.Warnw("failed to remove recording", "path", c.path, "error", err)
	}
	c.path = ""
}

func (c *Controller) startTicker() {
	ctx, cancel := context.WithCancel(c.sessionCtx)
	c.stopTicker = cancel
	gen := c.gen
	go func() {
		t := time.NewTicker(c.tick)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case <-t.C:
				// Ticks are dropped rather than queued when the loop is busy.
				select {
				case c.events <- message{kind: msgTick, gen: gen}:
				default:
				}
			}
		}
	}()
}

func (c *Controller) haltTicker() {
	if c.stopTicker != nil {
		c.stopTicker()
		c.stopTicker = nil
	}
}

func (c *Controller) refreshMemories() {
	seq := c.listSeq.Add(1)
	go func() {
		memories, err := c.store.List(c.life)
		if err != nil {
			c.log.Errorw("failed to list memories", "error", err)
		}
		c.send(message{kind: msgMemories, seq: seq, memories: memories, err: err})
	}()
}

func (c *Controller) setError(kind ErrorKind, msg string) {
	c.errKind = kind
	c.errMsg = msg
}

func (c *Controller) clearError() {
	c.errKind = ErrorNone
	c.errMsg = ""
}

func (c *Controller) shutdown() {
	c.haltTicker()
	c.cancelSession()
	if c.recorder.Active() {
		if _, err := c.recorder.Stop(); err != nil {
			c.log.Warnw("failed to stop recording on shutdown", "error", err)
		}
	}
	if c.state == Recording {
		c.removeRecording()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}

// publish builds a snapshot and delivers it to every subscriber.
func (c *Controller) publish() {
	snap := Snapshot{
		State:         c.state,
		Generation:    c.gen,
		Elapsed:       c.elapsed,
		Samples:       c.samples.Samples(),
		RecordingPath: c.path,
		Transcribing:  c.transcribing,
		Transcription: c.transcription,
		Analyzing:     c.analyzing,
		Analysis:      cloneAnalysis(c.analysis),
		ErrorKind:     c.errKind,
		Error:         c.errMsg,
		Memories:      cloneMemories(c.memories),
		LibraryError:  c.libraryErr,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest = snap
	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
