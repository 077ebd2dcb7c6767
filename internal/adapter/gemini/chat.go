package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"

	"webchat/internal/apperr"
)

const DefaultChatModel = "gemini-2.0-flash-001"

var errEmptyCandidate = errors.New("model returned no candidates")

// ChatModel generates turns with a fixed system instruction and tool set.
type ChatModel struct {
	pool   *ClientPool
	model  string
	guard  *Guard
	system string
	tools  []*genai.Tool
}

func NewChatModel(pool *ClientPool, model string, guard *Guard, system string, tools ...*genai.Tool) *ChatModel {
	if model == "" {
		model = DefaultChatModel
	}
	return &ChatModel{pool: pool, model: model, guard: guard, system: system, tools: tools}
}

// Generate sends the last entry of history as the new message and returns the
// model's reply. With FunctionCallingAny the reply is restricted to the declared tools.
func (m *ChatModel) Generate(ctx context.Context, history []*genai.Content, mode genai.FunctionCallingMode) (*genai.Content, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: empty conversation", apperr.ErrInvalidInput)
	}
	client, release, err := m.pool.Client(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	gm := client.GenerativeModel(m.model)
	gm.SetTemperature(0.2)
	if m.system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(m.system)}}
	}
	if len(m.tools) > 0 {
		gm.Tools = m.tools
		cfg := &genai.FunctionCallingConfig{Mode: mode}
		if mode == genai.FunctionCallingAny {
			for _, t := range m.tools {
				for _, fd := range t.FunctionDeclarations {
					cfg.AllowedFunctionNames = append(cfg.AllowedFunctionNames, fd.Name)
				}
			}
		}
		gm.ToolConfig = &genai.ToolConfig{FunctionCallingConfig: cfg}
	}

	cs := gm.StartChat()
	// SendMessage appends to History; never let it write into the caller's slice.
	cs.History = append([]*genai.Content(nil), history[:len(history)-1]...)
	last := history[len(history)-1]

	resp, err := Do(ctx, m.guard, func() (*genai.GenerateContentResponse, error) {
		return cs.SendMessage(ctx, last.Parts...)
	})
	if err != nil {
		slog.ErrorContext(ctx, "chat generation failed", "model", m.model, "error", err)
		if errors.Is(err, apperr.ErrBackendUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("gemini generate: %w: %w", apperr.ErrBackendUnavailable, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini generate: %w: %w", apperr.ErrBackendUnavailable, errEmptyCandidate)
	}
	return resp.Candidates[0].Content, nil
}
