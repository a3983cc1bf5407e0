package gemini

import (
	"fmt"

	"github.com/MrWong99/aura/pkg/audio/pcm"
	"github.com/MrWong99/aura/pkg/provider/s2s"
)

// BidiGenerateContent frames. Only the fields the companion uses are modelled.

// clientFrame is one message to the service. Exactly one field is set.
type clientFrame struct {
	Setup         *setup         `json:"setup,omitempty"`
	RealtimeInput *realtimeInput `json:"realtimeInput,omitempty"`
	ToolResponse  *toolResponse  `json:"toolResponse,omitempty"`
}

type setup struct {
	Model             string     `json:"model"`
	GenerationConfig  generation `json:"generationConfig"`
	SystemInstruction *content   `json:"systemInstruction,omitempty"`
	Tools             []toolSet  `json:"tools,omitempty"`

	InputAudioTranscription  *struct{} `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{} `json:"outputAudioTranscription,omitempty"`
}

type generation struct {
	ResponseModalities []string `json:"responseModalities"`
	SpeechConfig       *speech  `json:"speechConfig,omitempty"`
}

type speech struct {
	VoiceConfig struct {
		PrebuiltVoiceConfig struct {
			VoiceName string `json:"voiceName"`
		} `json:"prebuiltVoiceConfig"`
	} `json:"voiceConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type toolSet struct {
	FunctionDeclarations []function `json:"functionDeclarations"`
}

type function struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type realtimeInput struct {
	MediaChunks []blob `json:"mediaChunks"`
}

type toolResponse struct {
	FunctionResponses []functionResponse `json:"functionResponses"`
}

type functionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// newSetup builds the opening frame for a session on model.
func newSetup(model string, cfg s2s.SessionConfig) *clientFrame {
	st := &setup{
		Model:            "models/" + model,
		GenerationConfig: generation{ResponseModalities: []string{"audio"}},
	}
	if cfg.Instructions != "" {
		st.SystemInstruction = &content{Parts: []part{{Text: cfg.Instructions}}}
	}
	if cfg.Voice != "" {
		sp := &speech{}
		sp.VoiceConfig.PrebuiltVoiceConfig.VoiceName = cfg.Voice
		st.GenerationConfig.SpeechConfig = sp
	}
	if len(cfg.Tools) > 0 {
		var ts toolSet
		for _, t := range cfg.Tools {
			ts.FunctionDeclarations = append(ts.FunctionDeclarations, function{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			})
		}
		st.Tools = []toolSet{ts}
	}
	if cfg.Transcribe {
		st.InputAudioTranscription = &struct{}{}
		st.OutputAudioTranscription = &struct{}{}
	}
	return &clientFrame{Setup: st}
}

// ── Inbound ───────────────────────────────────────────────────────────────────

type serverFrame struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *serverContent `json:"serverContent,omitempty"`
	ToolCall      *struct {
		FunctionCalls []functionCall `json:"functionCalls"`
	} `json:"toolCall,omitempty"`
	GoAway *struct {
		TimeLeft string `json:"timeLeft"`
	} `json:"goAway,omitempty"`
	Error *apiError `json:"error,omitempty"`
}

type functionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type serverContent struct {
	ModelTurn           *content `json:"modelTurn,omitempty"`
	TurnComplete        bool     `json:"turnComplete,omitempty"`
	Interrupted         bool     `json:"interrupted,omitempty"`
	InputTranscription  *text    `json:"inputTranscription,omitempty"`
	OutputTranscription *text    `json:"outputTranscription,omitempty"`
}

type text struct {
	Text string `json:"text"`
}

// apiError is the error object the service sends before closing.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unknown error"
	}
	if e.Code == 0 {
		return "gemini: server error: " + msg
	}
	return fmt.Sprintf("gemini: server error %d: %s", e.Code, msg)
}

// message flattens f into one s2s.Message, keeping audio parts in order.
func (f *serverFrame) message() s2s.Message {
	var m s2s.Message
	if sc := f.ServerContent; sc != nil {
		m.Interrupted = sc.Interrupted
		m.TurnComplete = sc.TurnComplete
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p.InlineData == nil || p.InlineData.Data == "" {
					continue
				}
				m.Audio = append(m.Audio, pcm.Chunk{Data: p.InlineData.Data, MIMEType: p.InlineData.MIMEType})
			}
		}
		m.Transcripts = appendTranscript(m.Transcripts, s2s.RoleUser, sc.InputTranscription)
		m.Transcripts = appendTranscript(m.Transcripts, s2s.RoleModel, sc.OutputTranscription)
	}
	if f.ToolCall != nil {
		for _, fc := range f.ToolCall.FunctionCalls {
			m.ToolCalls = append(m.ToolCalls, s2s.ToolCall(fc))
		}
	}
	return m
}

func appendTranscript(ts []s2s.Transcript, role string, t *text) []s2s.Transcript {
	if t == nil || t.Text == "" {
		return ts
	}
	return append(ts, s2s.Transcript{Role: role, Text: t.Text})
}
