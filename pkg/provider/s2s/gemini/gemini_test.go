package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/aura/pkg/audio/pcm"
	"github.com/MrWong99/aura/pkg/provider/s2s"
	"github.com/MrWong99/aura/pkg/types"
)

// fakeLive is a scripted Live endpoint. script runs after the setup frame was
// read; a nil script acknowledges it and delivers every later client frame on
// frames.
type fakeLive struct {
	srv    *httptest.Server
	setups chan *setup
	frames chan clientFrame
	query  chan string
}

func newFakeLive(t *testing.T, script func(ctx context.Context, conn *websocket.Conn)) *fakeLive {
	t.Helper()
	f := &fakeLive{
		setups: make(chan *setup, 1),
		frames: make(chan clientFrame, 16),
		query:  make(chan string, 1),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		f.query <- r.URL.Path + "?" + r.URL.RawQuery

		ctx := r.Context()
		var first clientFrame
		if !readFrame(ctx, conn, &first) {
			return
		}
		f.setups <- first.Setup
		if script != nil {
			script(ctx, conn)
			return
		}
		send(ctx, conn, `{"setupComplete":{}}`)
		for {
			var cf clientFrame
			if !readFrame(ctx, conn, &cf) {
				return
			}
			f.frames <- cf
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func readFrame(ctx context.Context, conn *websocket.Conn, v any) bool {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

func send(ctx context.Context, conn *websocket.Conn, frames ...string) {
	for _, f := range frames {
		_ = conn.Write(ctx, websocket.MessageText, []byte(f))
	}
}

func (f *fakeLive) provider(opts ...Option) *Provider {
	return New("test-key", append([]Option{WithBaseURL("ws" + strings.TrimPrefix(f.srv.URL, "http"))}, opts...)...)
}

func open(t *testing.T, p *Provider, cfg s2s.SessionConfig) s2s.SessionHandle {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	h, err := p.Connect(ctx, cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatal("timed out")
		var zero T
		return zero
	}
}

func drain(t *testing.T, h s2s.SessionHandle) {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-h.Messages():
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("Messages not closed")
		}
	}
}

// ── Handshake ─────────────────────────────────────────────────────────────────

func TestConnect_Setup(t *testing.T) {
	t.Parallel()
	f := newFakeLive(t, nil)
	open(t, f.provider(), s2s.SessionConfig{
		Voice:        "Kore",
		Instructions: "Your name is Aura.",
		Tools:        []types.ToolDefinition{{Name: "remember", Parameters: map[string]any{"type": "object"}}},
		Transcribe:   true,
	})

	if q := recv(t, f.query); !strings.HasSuffix(strings.Split(q, "?")[0], "BidiGenerateContent") || !strings.Contains(q, "key=test-key") {
		t.Errorf("request = %q", q)
	}
	st := recv(t, f.setups)
	if st.Model != "models/"+DefaultModel {
		t.Errorf("model = %q", st.Model)
	}
	if m := st.GenerationConfig.ResponseModalities; len(m) != 1 || m[0] != "audio" {
		t.Errorf("modalities = %v", m)
	}
	if sp := st.GenerationConfig.SpeechConfig; sp == nil || sp.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Kore" {
		t.Errorf("speech config = %+v", sp)
	}
	if si := st.SystemInstruction; si == nil || si.Parts[0].Text != "Your name is Aura." {
		t.Errorf("system instruction = %+v", si)
	}
	if len(st.Tools) != 1 || st.Tools[0].FunctionDeclarations[0].Name != "remember" {
		t.Errorf("tools = %+v", st.Tools)
	}
	if st.InputAudioTranscription == nil || st.OutputAudioTranscription == nil {
		t.Error("transcription not requested")
	}
}

func TestConnect_MinimalSetup(t *testing.T) {
	t.Parallel()
	f := newFakeLive(t, nil)
	open(t, f.provider(WithModel("custom-model")), s2s.SessionConfig{})

	st := recv(t, f.setups)
	if st.Model != "models/custom-model" {
		t.Errorf("model = %q", st.Model)
	}
	if st.SystemInstruction != nil || st.GenerationConfig.SpeechConfig != nil || st.Tools != nil || st.InputAudioTranscription != nil {
		t.Errorf("unexpected optional fields: %+v", st)
	}
}

func TestConnect_Failures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		script  func(ctx context.Context, conn *websocket.Conn)
		timeout time.Duration
		want    string
	}{
		{
			name: "rejected",
			script: func(ctx context.Context, conn *websocket.Conn) {
				send(ctx, conn, `{"error":{"code":400,"message":"bad voice"}}`)
				<-conn.CloseRead(ctx).Done()
			},
			want: "bad voice",
		},
		{
			name:    "never acknowledged",
			script:  func(ctx context.Context, conn *websocket.Conn) { <-conn.CloseRead(ctx).Done() },
			timeout: 100 * time.Millisecond,
			want:    "setupComplete",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFakeLive(t, tc.script)
			ctx := context.Background()
			if tc.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, tc.timeout)
				defer cancel()
			}
			_, err := f.provider().Connect(ctx, s2s.SessionConfig{})
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want it to mention %q", err, tc.want)
			}
		})
	}
}

func TestConnect_DialFailure(t *testing.T) {
	t.Parallel()
	if _, err := New("k", WithBaseURL("ws://127.0.0.1:1")).Connect(context.Background(), s2s.SessionConfig{}); err == nil {
		t.Error("expected dial error")
	}
}

// ── Outbound ──────────────────────────────────────────────────────────────────

func TestSend(t *testing.T) {
	t.Parallel()
	f := newFakeLive(t, nil)
	h := open(t, f.provider(), s2s.SessionConfig{})

	chunk := pcm.Encode([]float32{0.5, -0.5}, 16000)
	if err := h.SendAudio(chunk); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	rt := recv(t, f.frames).RealtimeInput
	if rt == nil || len(rt.MediaChunks) != 1 || rt.MediaChunks[0] != (blob{MIMEType: "audio/pcm;rate=16000", Data: chunk.Data}) {
		t.Errorf("realtimeInput = %+v", rt)
	}

	err := h.SendToolResponse(
		s2s.ToolResponse{ID: "call-7", Name: "remember", Response: map[string]any{"result": "ok"}},
		s2s.ToolResponse{ID: "call-8", Name: "remember", Response: map[string]any{"result": "ok"}},
	)
	if err != nil {
		t.Fatalf("SendToolResponse: %v", err)
	}
	tr := recv(t, f.frames).ToolResponse
	if tr == nil || len(tr.FunctionResponses) != 2 || tr.FunctionResponses[0].ID != "call-7" || tr.FunctionResponses[1].ID != "call-8" {
		t.Fatalf("toolResponse = %+v", tr)
	}
	if tr.FunctionResponses[0].Response["result"] != "ok" {
		t.Errorf("response = %v", tr.FunctionResponses[0].Response)
	}

	if err := h.SendToolResponse(); err != nil {
		t.Errorf("empty SendToolResponse: %v", err)
	}
}

// ── Inbound ───────────────────────────────────────────────────────────────────

func TestMessages_KeepServerOrder(t *testing.T) {
	t.Parallel()
	f := newFakeLive(t, func(ctx context.Context, conn *websocket.Conn) {
		send(ctx, conn,
			`{"setupComplete":{}}`,
			`{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"AAA="}},{"text":"thinking"},{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"AQA="}}]}}}`,
			`{not json`,
			`{"toolCallCancellation":{"ids":["x"]}}`,
			`{"serverContent":{"interrupted":true}}`,
			`{"toolCall":{"functionCalls":[{"id":"c1","name":"remember","args":{"fact":"likes hiking"}}]}}`,
			`{"goAway":{"timeLeft":"10s"}}`,
			`{"serverContent":{"inputTranscription":{"text":"hi"},"outputTranscription":{"text":"hello"},"turnComplete":true}}`,
		)
		<-conn.CloseRead(ctx).Done()
	})
	h := open(t, f.provider(), s2s.SessionConfig{})

	m := recv(t, h.Messages())
	if len(m.Audio) != 2 || m.Audio[0].Data != "AAA=" || m.Audio[1].Data != "AQA=" || m.Interrupted {
		t.Errorf("audio message = %+v", m)
	}
	if m = recv(t, h.Messages()); !m.Interrupted || len(m.Audio) != 0 {
		t.Errorf("message = %+v, want interruption", m)
	}
	m = recv(t, h.Messages())
	if len(m.ToolCalls) != 1 || m.ToolCalls[0].ID != "c1" || m.ToolCalls[0].Args["fact"] != "likes hiking" {
		t.Errorf("tool call message = %+v", m)
	}
	m = recv(t, h.Messages())
	want := []s2s.Transcript{{Role: s2s.RoleUser, Text: "hi"}, {Role: s2s.RoleModel, Text: "hello"}}
	if !m.TurnComplete || len(m.Transcripts) != 2 || m.Transcripts[0] != want[0] || m.Transcripts[1] != want[1] {
		t.Errorf("transcript message = %+v", m)
	}
}

// ── Lifecycle ─────────────────────────────────────────────────────────────────

func TestSessionEnd(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		script  func(ctx context.Context, conn *websocket.Conn)
		local   bool
		wantErr string
	}{
		{
			name: "server error",
			script: func(ctx context.Context, conn *websocket.Conn) {
				send(ctx, conn, `{"setupComplete":{}}`, `{"error":{"code":500,"message":"internal"}}`)
				<-conn.CloseRead(ctx).Done()
			},
			wantErr: "server error 500: internal",
		},
		{
			name: "server closes normally",
			script: func(ctx context.Context, conn *websocket.Conn) {
				send(ctx, conn, `{"setupComplete":{}}`)
				conn.Close(websocket.StatusNormalClosure, "bye")
			},
		},
		{
			name:  "local close",
			local: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFakeLive(t, tc.script)
			h := open(t, f.provider(), s2s.SessionConfig{})
			if tc.local {
				if err := h.Close(); err != nil {
					t.Fatal(err)
				}
				if err := h.Close(); err != nil {
					t.Fatalf("second Close: %v", err)
				}
			}
			drain(t, h)

			err := h.Err()
			switch {
			case tc.wantErr == "" && err != nil:
				t.Errorf("Err = %v, want nil", err)
			case tc.wantErr != "" && (err == nil || !strings.Contains(err.Error(), tc.wantErr)):
				t.Errorf("Err = %v, want %q", err, tc.wantErr)
			}
			if err := h.SendAudio(pcm.Chunk{}); !errors.Is(err, s2s.ErrSessionClosed) {
				t.Errorf("SendAudio after end = %v, want ErrSessionClosed", err)
			}
		})
	}
}

func TestAPIError(t *testing.T) {
	t.Parallel()
	if got := (&apiError{}).Error(); got != "gemini: server error: unknown error" {
		t.Errorf("empty = %q", got)
	}
	if got := (&apiError{Code: 429, Message: "quota"}).Error(); got != "gemini: server error 429: quota" {
		t.Errorf("coded = %q", got)
	}
}
