// Package gemini connects live sessions to the Gemini Live API
// (BidiGenerateContent over a WebSocket with JSON frames).
//
// Microphone audio goes up as base64 PCM media chunks. Each server frame comes
// back as exactly one s2s.Message, so interruption, audio and tool calls keep
// the order the service sent them in.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/aura/pkg/audio/pcm"
	"github.com/MrWong99/aura/pkg/provider/s2s"
)

var (
	_ s2s.Provider      = (*Provider)(nil)
	_ s2s.SessionHandle = (*session)(nil)
)

// DefaultModel is the native-audio Live model.
const DefaultModel = "gemini-2.5-flash-native-audio-preview-12-2025"

const (
	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"
	endpoint       = "/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	pingEvery   = 20 * time.Second
	pingTimeout = 5 * time.Second

	// Audio frames routinely exceed the library's 32 KiB default.
	readLimit = 16 << 20
	inboxSize = 64
)

// errLocalClose ends a session without it counting as a failure.
var errLocalClose = errors.New("gemini: closed")

// Option configures a Provider.
type Option func(*Provider)

// WithModel selects the Live model. Empty keeps [DefaultModel].
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL points the provider at another WebSocket host, e.g. a test
// server. Empty keeps the public endpoint.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.baseURL = u
		}
	}
}

// WithHTTPClient sets the client used for the WebSocket handshake.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider opens Gemini Live sessions.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// New returns a Provider authenticating with apiKey.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{apiKey: apiKey, model: DefaultModel, baseURL: defaultBaseURL}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Connect dials the service, sends the setup frame and waits for
// setupComplete. ctx bounds the handshake only; the session lives until Close
// or until the service ends it.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	conn, _, err := websocket.Dial(ctx, p.baseURL+endpoint+"?key="+url.QueryEscape(p.apiKey), &websocket.DialOptions{
		HTTPClient: p.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: dial: %w", err)
	}
	conn.SetReadLimit(readLimit)

	if err := handshake(ctx, conn, newSetup(p.model, cfg)); err != nil {
		conn.Close(websocket.StatusPolicyViolation, "setup failed")
		return nil, fmt.Errorf("gemini: setup: %w", err)
	}
	slog.Debug("gemini: session open", "model", p.model, "voice", cfg.Voice)

	sctx, cancel := context.WithCancelCause(context.Background())
	s := &session{conn: conn, inbox: make(chan s2s.Message, inboxSize), ctx: sctx, cancel: cancel}
	go s.read()
	go s.ping()
	return s, nil
}

// handshake writes the setup frame and reads until the service accepts or
// rejects it.
func handshake(ctx context.Context, conn *websocket.Conn, f *clientFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return err
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("await setupComplete: %w", err)
		}
		var sf serverFrame
		if json.Unmarshal(data, &sf) != nil {
			continue
		}
		switch {
		case sf.Error != nil:
			return sf.Error
		case sf.SetupComplete != nil:
			return nil
		}
	}
}

// ── Session ───────────────────────────────────────────────────────────────────

// session is one open Live connection. Its context is cancelled with the
// reason the session ended; errLocalClose marks a clean end.
type session struct {
	conn   *websocket.Conn
	inbox  chan s2s.Message
	ctx    context.Context
	cancel context.CancelCauseFunc

	closed   atomic.Bool
	stopOnce sync.Once
}

// read owns inbox and closes it on exit.
func (s *session) read() {
	defer close(s.inbox)
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			switch {
			case s.ctx.Err() != nil:
			case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
				websocket.CloseStatus(err) == websocket.StatusGoingAway:
				s.stop(errLocalClose)
			default:
				s.stop(fmt.Errorf("gemini: read: %w", err))
			}
			return
		}

		var sf serverFrame
		if err := json.Unmarshal(data, &sf); err != nil {
			slog.Debug("gemini: skipping malformed frame", "err", err)
			continue
		}
		if sf.Error != nil {
			s.stop(sf.Error)
			return
		}
		if sf.GoAway != nil {
			slog.Warn("gemini: service will end the session soon", "time_left", sf.GoAway.TimeLeft)
		}

		msg := sf.message()
		if msg.Empty() {
			continue
		}
		select {
		case s.inbox <- msg:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *session) ping() {
	t := time.NewTicker(pingEvery)
	defer t.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(s.ctx, pingTimeout)
			if err := s.conn.Ping(ctx); err != nil && s.ctx.Err() == nil {
				slog.Debug("gemini: ping failed", "err", err)
			}
			cancel()
		}
	}
}

// stop ends the session with cause. Only the first cause is kept.
func (s *session) stop(cause error) {
	s.stopOnce.Do(func() {
		s.closed.Store(true)
		s.cancel(cause)
		if err := s.conn.Close(websocket.StatusNormalClosure, ""); err != nil && !errors.Is(err, context.Canceled) {
			slog.Debug("gemini: close", "err", err)
		}
	})
}

func (s *session) write(f *clientFrame) error {
	if s.closed.Load() {
		return s2s.ErrSessionClosed
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("gemini: marshal: %w", err)
	}
	if err := s.conn.Write(s.ctx, websocket.MessageText, data); err != nil {
		if s.ctx.Err() != nil {
			return s2s.ErrSessionClosed
		}
		return fmt.Errorf("gemini: write: %w", err)
	}
	return nil
}

// SendAudio implements s2s.SessionHandle.
func (s *session) SendAudio(chunk pcm.Chunk) error {
	return s.write(&clientFrame{RealtimeInput: &realtimeInput{
		MediaChunks: []blob{{MIMEType: chunk.MIMEType, Data: chunk.Data}},
	}})
}

// SendToolResponse implements s2s.SessionHandle. All responses go out in one
// frame.
func (s *session) SendToolResponse(responses ...s2s.ToolResponse) error {
	if len(responses) == 0 {
		return nil
	}
	tr := &toolResponse{FunctionResponses: make([]functionResponse, 0, len(responses))}
	for _, r := range responses {
		tr.FunctionResponses = append(tr.FunctionResponses, functionResponse(r))
	}
	return s.write(&clientFrame{ToolResponse: tr})
}

// Messages implements s2s.SessionHandle.
func (s *session) Messages() <-chan s2s.Message { return s.inbox }

// Err implements s2s.SessionHandle.
func (s *session) Err() error {
	if err := context.Cause(s.ctx); err != nil && !errors.Is(err, errLocalClose) {
		return err
	}
	return nil
}

// Close implements s2s.SessionHandle.
func (s *session) Close() error {
	s.stop(errLocalClose)
	return nil
}
