// Package s2s defines the Provider interface for speech-to-speech backends.
//
// An S2S provider wraps a real-time voice AI service that accepts raw audio
// input and returns synthesised audio output in a single, stateful session.
// The Gemini Live API is the reference backend.
//
// The central abstraction is SessionHandle. Outbound traffic (microphone audio
// and tool responses) goes through Send* methods. Inbound traffic is a
// single ordered stream of [Message] values so the consumer sees interruption
// signals, audio fragments and tool calls in exactly the order the service
// produced them.
//
// All implementations must be safe for concurrent use.
package s2s

import (
	"context"
	"errors"

	"github.com/MrWong99/aura/pkg/audio/pcm"
	"github.com/MrWong99/aura/pkg/types"
)

// ErrSessionClosed is returned by Send* methods after the session has ended.
var ErrSessionClosed = errors.New("s2s: session closed")

// SessionConfig is the configuration bundle for a new S2S session. It is
// immutable for the lifetime of the session.
type SessionConfig struct {
	// Voice is the provider voice identifier (e.g. "Kore").
	Voice string

	// Instructions is the system-level prompt that defines the companion's
	// personality and carries remembered context.
	Instructions string

	// Tools is the set of function declarations offered to the model.
	Tools []types.ToolDefinition

	// Transcribe asks the provider to emit input and output transcripts when
	// it supports them.
	Transcribe bool
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	// ID correlates the call with its [ToolResponse].
	ID string

	// Name is the declared function name.
	Name string

	// Args holds the decoded JSON arguments.
	Args map[string]any
}

// ToolResponse answers a [ToolCall].
type ToolResponse struct {
	// ID must equal the originating ToolCall.ID.
	ID string

	// Name is the function name of the originating call.
	Name string

	// Response is the JSON object returned to the model.
	Response map[string]any
}

// Speaker roles for transcripts.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Transcript is a text rendition of speech on either side of the session.
type Transcript struct {
	// Role is RoleUser or RoleModel.
	Role string

	// Text is the recognised or generated text fragment.
	Text string
}

// Message is one inbound event from the service. A single message may carry
// several kinds of content; consumers must handle Interrupted before anything
// else in the same message.
type Message struct {
	// Interrupted signals that the user barged in and all pending output
	// audio belongs to a cancelled turn.
	Interrupted bool

	// Audio holds synthesised speech fragments in arrival order.
	Audio []pcm.Chunk

	// ToolCalls holds function invocations requested by the model.
	ToolCalls []ToolCall

	// Transcripts holds input/output transcription fragments.
	Transcripts []Transcript

	// TurnComplete marks the end of a model turn.
	TurnComplete bool
}

// Empty reports whether the message carries nothing actionable.
func (m Message) Empty() bool {
	return !m.Interrupted && !m.TurnComplete &&
		len(m.Audio) == 0 && len(m.ToolCalls) == 0 && len(m.Transcripts) == 0
}

// SessionHandle represents an open S2S session.
//
// The session is the hot path of the voice pipeline; every method must return
// quickly. Callers must call Close when the session is no longer needed.
type SessionHandle interface {
	// SendAudio delivers one encoded microphone chunk. Returns
	// [ErrSessionClosed] after the session ended.
	SendAudio(chunk pcm.Chunk) error

	// SendToolResponse answers one or more tool calls.
	SendToolResponse(responses ...ToolResponse) error

	// Messages returns the ordered stream of inbound events. The channel is
	// closed when the session ends for any reason; afterwards Err tells a
	// clean close apart from a failure.
	Messages() <-chan Message

	// Err returns the error that ended the session, or nil if it ended
	// cleanly or is still open.
	Err() error

	// Close terminates the session and closes the Messages channel. Calling
	// Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any S2S backend.
type Provider interface {
	// Connect establishes a new session. It returns once the service has
	// acknowledged the configuration, or with an error if the handshake fails
	// or ctx ends first. The caller owns the SessionHandle.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)
}
