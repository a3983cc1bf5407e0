// Package mock holds recording fakes of the s2s interfaces.
//
// Use Provider to verify Connect calls and hand out controlled sessions.
// Use Session to inject inbound messages and inspect what the caller sent.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.Connect(ctx, cfg)
//	sess.Emit(s2s.Message{Interrupted: true})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/aura/pkg/audio/pcm"
	"github.com/MrWong99/aura/pkg/provider/s2s"
)

var (
	_ s2s.Provider      = (*Provider)(nil)
	_ s2s.SessionHandle = (*Session)(nil)
)

// ConnectCall is one Connect invocation.
type ConnectCall struct {
	Cfg s2s.SessionConfig
}

// Provider hands out a scripted session and records every Connect.
type Provider struct {
	mu sync.Mutex

	// Session is what Connect returns. If nil, Connect returns
	// a fresh Session from NewSession.
	Session s2s.SessionHandle

	// ConnectErr fails every Connect when set.
	ConnectErr error

	// ConnectHook, if set, runs before Connect returns. Tests use it to block
	// or observe the handshake.
	ConnectHook func(ctx context.Context) error

	// ConnectCalls is appended to by Connect.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns Session, ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	p.mu.Lock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Cfg: cfg})
	hook := p.ConnectHook
	p.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session == nil {
		p.Session = NewSession()
	}
	return p.Session, nil
}

// Calls returns a snapshot of ConnectCalls.
func (p *Provider) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ConnectCall(nil), p.ConnectCalls...)
}

// Session is a SessionHandle driven by the test through Emit and Fail.
type Session struct {
	messages chan s2s.Message

	mu     sync.Mutex
	closed bool
	err    error

	// SendAudioErr is returned by SendAudio when set.
	SendAudioErr error

	// SentAudio records every chunk passed to SendAudio.
	SentAudio []pcm.Chunk

	// SentToolResponses records every response passed to SendToolResponse.
	SentToolResponses []s2s.ToolResponse

	// CallCountClose counts Close invocations.
	CallCountClose int
}

// NewSession returns an open session with a buffered message channel.
func NewSession() *Session {
	return &Session{messages: make(chan s2s.Message, 64)}
}

// Emit delivers an inbound message. It reports false once the session ended.
func (s *Session) Emit(m s2s.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.messages <- m
	return true
}

// Fail ends the session from the remote side with err. A nil err simulates a
// clean remote close.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.err = err
	s.closed = true
	close(s.messages)
}

// SendAudio implements s2s.SessionHandle.
func (s *Session) SendAudio(chunk pcm.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s2s.ErrSessionClosed
	}
	if s.SendAudioErr != nil {
		return s.SendAudioErr
	}
	s.SentAudio = append(s.SentAudio, chunk)
	return nil
}

// SendToolResponse implements s2s.SessionHandle.
func (s *Session) SendToolResponse(responses ...s2s.ToolResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s2s.ErrSessionClosed
	}
	s.SentToolResponses = append(s.SentToolResponses, responses...)
	return nil
}

// Messages implements s2s.SessionHandle.
func (s *Session) Messages() <-chan s2s.Message { return s.messages }

// Err implements s2s.SessionHandle.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close implements s2s.SessionHandle.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	if !s.closed {
		s.closed = true
		close(s.messages)
	}
	return nil
}

// Audio returns a snapshot of SentAudio.
func (s *Session) Audio() []pcm.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pcm.Chunk(nil), s.SentAudio...)
}

// ToolResponses returns a snapshot of SentToolResponses.
func (s *Session) ToolResponses() []s2s.ToolResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]s2s.ToolResponse(nil), s.SentToolResponses...)
}

// Closes returns CallCountClose.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountClose
}
