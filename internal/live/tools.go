package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/aura/pkg/memory"
	"github.com/MrWong99/aura/pkg/provider/s2s"
	"github.com/MrWong99/aura/pkg/types"
)

// RememberToolName is the function the model calls to store a fact about the
// user.
const RememberToolName = "remember"

// FactSavedResult is the tool result returned for every successful remember
// call, including facts that were already known.
const FactSavedResult = "Fact saved successfully."

// RememberTool returns the declaration of the remember function.
func RememberTool() types.ToolDefinition {
	return types.ToolDefinition{
		Name: RememberToolName,
		Description: "Call this function when the user tells you a new fact about themselves that should be " +
			"remembered long-term (e.g. name, hobby, favorite color, pet, life event). Do not use for trivial things.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"fact": map[string]any{
					"type":        "string",
					"description": "The concise fact to store.",
				},
			},
			"required": []string{"fact"},
		},
	}
}

// callTool executes one tool call and builds its response. Failures are
// reported to the model in the response, never to the user.
func (c *Controller) callTool(ctx context.Context, call s2s.ToolCall) s2s.ToolResponse {
	resp := s2s.ToolResponse{ID: call.ID, Name: call.Name}

	if call.Name != RememberToolName {
		slog.Warn("live: unknown tool called", "tool", call.Name, "id", call.ID)
		c.metrics.RecordToolCall(ctx, call.Name, "unknown")
		resp.Response = map[string]any{"error": fmt.Sprintf("unknown tool %q", call.Name)}
		return resp
	}

	fact, _ := call.Args["fact"].(string)
	if strings.TrimSpace(fact) == "" {
		c.metrics.RecordToolCall(ctx, call.Name, "invalid")
		resp.Response = map[string]any{"error": "missing required argument \"fact\""}
		return resp
	}

	added, err := c.mem.SaveFact(ctx, fact)
	switch {
	case errors.Is(err, memory.ErrEmptyFact):
		c.metrics.RecordToolCall(ctx, call.Name, "invalid")
		resp.Response = map[string]any{"error": err.Error()}
		return resp
	case err != nil:
		slog.Error("live: save fact", "err", err)
		c.metrics.RecordToolCall(ctx, call.Name, "error")
		resp.Response = map[string]any{"error": "could not save the fact"}
		return resp
	}

	c.metrics.RecordToolCall(ctx, call.Name, "ok")
	if added {
		slog.Info("live: fact remembered", "fact", fact)
		c.notifier.MemoryUpdated()
	} else {
		slog.Debug("live: fact already known", "fact", fact)
	}
	resp.Response = map[string]any{"result": FactSavedResult}
	return resp
}
