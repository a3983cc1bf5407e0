// Package live runs a single real-time voice session between the local
// microphone and speaker and a speech-to-speech service.
//
// A [Controller] owns every resource of the active session: the microphone
// stream and its capture pipeline, the speaker sink and its playback
// scheduler, and the transport handle. Inbound transport traffic is consumed
// by one event loop per session, in the order the service produced it, so an
// interruption is always applied before any audio that follows it.
//
// Resources are acquired all-or-nothing in [Controller.Connect] and released
// together in [Controller.Disconnect], which may be called from any goroutine
// and any number of times.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/aura/internal/notify"
	"github.com/MrWong99/aura/internal/observe"
	"github.com/MrWong99/aura/internal/persona"
	"github.com/MrWong99/aura/pkg/audio"
	"github.com/MrWong99/aura/pkg/audio/capture"
	"github.com/MrWong99/aura/pkg/audio/pcm"
	"github.com/MrWong99/aura/pkg/audio/playback"
	"github.com/MrWong99/aura/pkg/memory"
	"github.com/MrWong99/aura/pkg/provider/s2s"
	"github.com/MrWong99/aura/pkg/types"
)

// User-facing messages passed to [notify.Notifier.Error].
const (
	MsgConnectFailed     = "Failed to connect."
	MsgMicrophoneDenied  = "Microphone access denied."
	MsgOutputUnavailable = "Audio output unavailable."
	MsgConnectionError   = "Connection error occurred."
)

// ErrConnectAborted is returned by [Controller.Connect] when Disconnect was
// called while the session was still being set up.
var ErrConnectAborted = errors.New("live: connect aborted")

// State is the lifecycle state of a [Controller].
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// TranscriptSink receives transcription fragments of a live session.
type TranscriptSink interface {
	Record(ctx context.Context, role, text string) error
}

// Config holds the collaborators of a [Controller]. All fields except
// Transcripts are required.
type Config struct {
	Microphone audio.Microphone
	Speaker    audio.Speaker
	Provider   s2s.Provider
	Memory     *memory.Store
	Notifier   notify.Notifier

	// Transcripts, when set, enables transcription and receives every
	// fragment the service emits.
	Transcripts TranscriptSink
}

// Option is a functional option for a [Controller].
type Option func(*Controller)

// WithMetrics sets the metric instruments. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithProviderName labels metrics and spans with the transport name.
func WithProviderName(name string) Option {
	return func(c *Controller) { c.providerName = name }
}

// WithFrameSize overrides the capture frame size. Tests use it to keep
// fixtures small.
func WithFrameSize(n int) Option {
	return func(c *Controller) { c.frameSize = n }
}

// Controller is the session state machine. All methods are safe for
// concurrent use.
type Controller struct {
	mic          audio.Microphone
	speaker      audio.Speaker
	provider     s2s.Provider
	mem          *memory.Store
	notifier     notify.Notifier
	transcripts  TranscriptSink
	metrics      *observe.Metrics
	providerName string
	frameSize    int

	// mu guards the fields below. The capture send path holds it while
	// checking the connected flag and sending, so a frame can never reach the
	// transport after Disconnect flipped the state.
	mu    sync.Mutex
	state State
	muted bool
	sess  *session

	// attempt identifies the connect in flight, 0 when none. An attempt whose
	// id no longer matches was aborted and must not touch the fields above.
	attempt  uint64
	attempts uint64
	abort    context.CancelFunc

	// lastLoop is the event loop of the most recently ended session.
	lastLoop chan struct{}
}

// session groups the resources of one established connection. They are
// released together by teardown.
type session struct {
	handle   s2s.SessionHandle
	stream   audio.InputStream
	sink     audio.Sink
	capture  *capture.Pipeline
	sched    *playback.Scheduler
	cancel   context.CancelFunc
	ctx      context.Context
	started  time.Time
	released atomic.Bool
	loopDone chan struct{}
}

// New validates cfg and returns a disconnected Controller.
func New(cfg Config, opts ...Option) (*Controller, error) {
	var errs []error
	if cfg.Microphone == nil {
		errs = append(errs, errors.New("microphone is required"))
	}
	if cfg.Speaker == nil {
		errs = append(errs, errors.New("speaker is required"))
	}
	if cfg.Provider == nil {
		errs = append(errs, errors.New("provider is required"))
	}
	if cfg.Memory == nil {
		errs = append(errs, errors.New("memory store is required"))
	}
	if cfg.Notifier == nil {
		errs = append(errs, errors.New("notifier is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("live: %w", err)
	}

	c := &Controller{
		mic:          cfg.Microphone,
		speaker:      cfg.Speaker,
		provider:     cfg.Provider,
		mem:          cfg.Memory,
		notifier:     cfg.Notifier,
		transcripts:  cfg.Transcripts,
		metrics:      observe.DefaultMetrics(),
		providerName: "gemini-live",
		frameSize:    audio.FrameSize,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetMuted stops (or resumes) sending microphone audio. Volume is still
// reported while muted.
func (c *Controller) SetMuted(muted bool) {
	c.mu.Lock()
	c.muted = muted
	c.mu.Unlock()
	slog.Info("live: microphone mute changed", "muted", muted)
}

// Muted reports whether the microphone is muted.
func (c *Controller) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// setupError pairs an internal failure with the message shown to the user.
type setupError struct {
	msg string
	err error
}

func (e *setupError) Error() string { return e.err.Error() }
func (e *setupError) Unwrap() error { return e.err }

// Connect establishes a live session using settings for the bot identity.
// It is a no-op returning nil unless the controller is disconnected.
//
// On failure every partially acquired resource is released, one error
// notification is raised and the controller returns to disconnected.
func (c *Controller) Connect(ctx context.Context, settings memory.BotSettings) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.attempts++
	id := c.attempts
	c.attempt = id
	setupCtx, abort := context.WithCancel(ctx)
	c.abort = abort
	c.mu.Unlock()
	defer abort()

	setupCtx, span := observe.StartSpan(setupCtx, "live.connect",
		trace.WithAttributes(
			attribute.String("provider", c.providerName),
			attribute.String("voice", string(settings.VoiceName)),
		),
	)
	start := time.Now()
	sess, err := c.setup(setupCtx, settings)
	c.metrics.ConnectDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("provider", c.providerName)))

	c.mu.Lock()
	aborted := c.attempt != id
	if !aborted {
		c.attempt = 0
		c.abort = nil
		if err == nil {
			c.state = StateConnected
			c.sess = sess
			c.metrics.ActiveSessions.Add(ctx, 1)
		} else {
			c.state = StateDisconnected
		}
	}
	c.mu.Unlock()

	if aborted {
		if sess != nil {
			c.release(sess)
		}
		observe.EndSpan(span, ErrConnectAborted)
		slog.Info("live: connect aborted by disconnect")
		return ErrConnectAborted
	}
	observe.EndSpan(span, err)
	if err != nil {
		msg := MsgConnectFailed
		var se *setupError
		if errors.As(err, &se) {
			msg = se.msg
		}
		c.metrics.RecordProviderRequest(ctx, c.providerName, "live", "error")
		c.metrics.RecordProviderError(ctx, c.providerName, "live")
		slog.Warn("live: connect failed", "err", err)
		c.notifier.Error(msg)
		return fmt.Errorf("live: connect: %w", err)
	}
	c.metrics.RecordProviderRequest(ctx, c.providerName, "live", "ok")

	// Capture starts only once the session is visible as connected so the
	// very first frame passes the send check.
	if err := sess.capture.Start(sess.stream, c.sendFrame(sess)); err != nil {
		slog.Warn("live: start capture", "err", err)
	}
	if err := c.mem.RecordInteraction(ctx); err != nil {
		slog.Warn("live: record interaction", "err", err)
	}
	go c.run(sess)
	go c.watchCapture(sess)

	slog.Info("live: session started",
		"bot", settings.BotName,
		"voice", settings.VoiceName,
		"setup_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// setup acquires devices, composes the instructions and opens the transport.
// Partially acquired resources are released before an error is returned.
func (c *Controller) setup(ctx context.Context, settings memory.BotSettings) (*session, error) {
	var (
		stream audio.InputStream
		sink   audio.Sink
		tl     = playback.NewTimeline(audio.PlaybackSampleRate)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := c.speaker.Open(gctx, audio.PlaybackSampleRate, tl)
		if err != nil {
			return &setupError{msg: MsgOutputUnavailable, err: fmt.Errorf("open speaker: %w", err)}
		}
		sink = s
		return nil
	})
	g.Go(func() error {
		s, err := c.mic.Open(gctx, audio.CaptureSampleRate)
		if err != nil {
			return &setupError{msg: MsgMicrophoneDenied, err: fmt.Errorf("open microphone: %w", err)}
		}
		stream = s
		return nil
	})
	if err := g.Wait(); err != nil {
		closeDevices(stream, sink)
		_ = tl.Close()
		return nil, err
	}

	memCtx, err := c.mem.ContextPrompt(ctx)
	if err != nil {
		slog.Warn("live: memory context unavailable", "err", err)
	}
	cfg := s2s.SessionConfig{
		Voice:        string(settings.VoiceName),
		Instructions: persona.Compose(settings.BotName, memCtx),
		Tools:        []types.ToolDefinition{RememberTool()},
		Transcribe:   c.transcripts != nil,
	}

	handle, err := c.provider.Connect(ctx, cfg)
	if err != nil {
		closeDevices(stream, sink)
		_ = tl.Close()
		return nil, &setupError{msg: MsgConnectFailed, err: fmt.Errorf("open transport: %w", err)}
	}

	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess := &session{
		handle:   handle,
		stream:   stream,
		sink:     sink,
		cancel:   cancel,
		ctx:      sessCtx,
		started:  time.Now(),
		loopDone: make(chan struct{}),
	}
	sess.capture = capture.New(
		capture.WithFrameSize(c.frameSize),
		capture.WithVolume(c.notifier.Volume),
	)
	sess.sched = playback.New(tl,
		playback.WithSampleRate(audio.PlaybackSampleRate),
		playback.WithOnScheduled(func(u playback.Unit) {
			c.notifier.Volume(u.Volume)
		}),
		playback.WithOnDiscarded(func(playback.Unit) {
			c.metrics.DiscardedUnits.Add(sessCtx, 1)
		}),
		playback.WithOnDecodeError(func(err error) {
			c.metrics.DecodeErrors.Add(sessCtx, 1)
			slog.Warn("live: dropping undecodable audio", "err", err)
		}),
	)
	return sess, nil
}

func closeDevices(stream audio.InputStream, sink audio.Sink) {
	if stream != nil {
		_ = stream.Close()
	}
	if sink != nil {
		_ = sink.Close()
	}
}

// sendFrame returns the capture callback for sess. The connected check and
// the send happen under c.mu.
func (c *Controller) sendFrame(sess *session) func(audio.AudioFrame) {
	return func(f audio.AudioFrame) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.sess != sess || c.state != StateConnected || c.muted {
			return
		}
		if err := sess.handle.SendAudio(pcm.Encode(f.Samples, f.SampleRate)); err != nil {
			slog.Debug("live: send audio", "err", err)
			return
		}
		c.metrics.RecordAudioChunk(sess.ctx, observe.DirectionIn)
	}
}

// Disconnect ends the current session, or aborts one that is still being set
// up. It is idempotent and safe to call from any goroutine, including the
// session's own event loop.
func (c *Controller) Disconnect() {
	c.teardown(nil)
}

// disconnectSession ends sess only if it is still the current session. It
// reports whether this call ended it.
func (c *Controller) disconnectSession(sess *session) bool {
	return c.teardown(sess)
}

// teardown ends the current session, or aborts a pending connect when match
// is nil. A non-nil match restricts it to that session.
func (c *Controller) teardown(match *session) bool {
	c.mu.Lock()
	if match != nil && (c.sess != match || c.state != StateConnected) {
		c.mu.Unlock()
		return false
	}
	switch c.state {
	case StateDisconnected:
		c.mu.Unlock()
		return false
	case StateConnecting:
		c.state = StateDisconnected
		c.attempt = 0
		if c.abort != nil {
			c.abort()
			c.abort = nil
		}
		c.mu.Unlock()
		return true
	}
	sess := c.sess
	c.sess = nil
	c.state = StateDisconnected
	c.lastLoop = sess.loopDone
	c.mu.Unlock()

	if c.release(sess) {
		c.metrics.ActiveSessions.Add(context.Background(), -1)
		slog.Info("live: session stopped", "duration", time.Since(sess.started).Round(time.Millisecond))
		c.notifier.Closed()
	}
	return true
}

// release tears down every resource of sess exactly once. It reports whether
// this call did the work.
func (c *Controller) release(sess *session) bool {
	if sess == nil || !sess.released.CompareAndSwap(false, true) {
		return false
	}
	// Order: stop the scheduler first so nothing more is scheduled, then the
	// capture tap, then the devices and the transport.
	if err := sess.sched.Teardown(); err != nil {
		slog.Debug("live: scheduler teardown", "err", err)
	}
	sess.capture.Stop()
	closeDevices(sess.stream, sess.sink)
	if err := sess.handle.Close(); err != nil {
		slog.Debug("live: close transport", "err", err)
	}
	sess.cancel()
	return true
}

// Wait blocks until the event loop of the current session has exited. After
// Disconnect it waits for the loop of the session that was just ended, so
// handlers still running in it complete first. It returns immediately when
// no session was ever established.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.lastLoop
	if c.sess != nil {
		done = c.sess.loopDone
	}
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// run is the per-session event loop. It consumes the transport stream in
// order and ends the session when the stream closes.
func (c *Controller) run(sess *session) {
	defer close(sess.loopDone)

	for msg := range sess.handle.Messages() {
		c.handle(sess, msg)
	}

	err := sess.handle.Err()
	if !c.disconnectSession(sess) {
		return
	}
	if err != nil {
		slog.Warn("live: transport failed", "err", err)
		c.metrics.RecordProviderError(sess.ctx, c.providerName, "live")
		c.notifier.Error(MsgConnectionError)
		return
	}
	slog.Info("live: transport closed by remote")
}

// watchCapture ends sess when its microphone stream stops on its own, for
// example when the recorder process exits or the device is revoked.
func (c *Controller) watchCapture(sess *session) {
	select {
	case <-sess.ctx.Done():
		return
	case <-sess.capture.Done():
	}
	err := sess.stream.Err()
	if !c.disconnectSession(sess) {
		return
	}
	slog.Warn("live: microphone stream ended", "err", err)
	c.notifier.Error(MsgMicrophoneDenied)
}

func (c *Controller) handle(sess *session, msg s2s.Message) {
	if msg.Interrupted {
		sess.sched.Interrupt()
		c.metrics.Interruptions.Add(sess.ctx, 1)
		slog.Debug("live: interrupted")
	}
	for _, chunk := range msg.Audio {
		sess.sched.Enqueue(chunk)
		c.metrics.RecordAudioChunk(sess.ctx, observe.DirectionOut)
	}
	if len(msg.ToolCalls) > 0 {
		responses := make([]s2s.ToolResponse, 0, len(msg.ToolCalls))
		for _, call := range msg.ToolCalls {
			responses = append(responses, c.callTool(sess.ctx, call))
		}
		if err := sess.handle.SendToolResponse(responses...); err != nil {
			slog.Warn("live: send tool response", "err", err)
		}
	}
	if c.transcripts != nil {
		for _, tr := range msg.Transcripts {
			if err := c.transcripts.Record(sess.ctx, tr.Role, tr.Text); err != nil {
				slog.Warn("live: record transcript", "err", err)
			}
		}
	}
}
