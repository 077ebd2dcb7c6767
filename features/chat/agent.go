package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"

	"webchat/internal/grounding"
)

const SystemPrompt = `You are a helpful assistant that answers questions about a specific website.

Rules:
1. ALWAYS call the search_website tool before answering, even for follow-up questions.
2. Answer ONLY from the chunks returned by search_website. Do not use prior knowledge.
3. If the chunks do not contain the answer, say that the website does not cover it.
4. Cite the chunks you used inline as [Chunk N], matching the numbers in the tool output.
5. Never fabricate facts, quotes, links or chunk numbers.
6. If the tool reports that no website has been ingested, tell the user to ingest a URL first.`

const (
	roleUser  = "user"
	roleModel = "model"

	// maxTurns bounds the history replayed to the model.
	maxTurns = 10
)

var errNoAnswer = errors.New("model returned no text")

// SearchTool declares search_website to the model.
var SearchTool = &genai.Tool{
	FunctionDeclarations: []*genai.FunctionDeclaration{{
		Name:        grounding.ToolName,
		Description: grounding.ToolDescription,
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"query": {
					Type:        genai.TypeString,
					Description: "Natural-language search query about the website content.",
				},
			},
			Required: []string{"query"},
		},
	}},
}

// Model produces the next model turn for history. mode controls function calling:
// ANY forces a search_website call, NONE forces a text answer.
type Model interface {
	Generate(ctx context.Context, history []*genai.Content, mode genai.FunctionCallingMode) (*genai.Content, error)
}

type Agent struct {
	model     Model
	maxRounds int
}

func NewAgent(m Model, maxToolRounds int) *Agent {
	if maxToolRounds <= 0 {
		maxToolRounds = 4
	}
	return &Agent{model: m, maxRounds: maxToolRounds}
}

// Ask runs one user turn on s. The first model call of the turn must search the
// website; later calls may search again until the round budget is spent, after
// which the model has to answer from what it has.
func (a *Agent) Ask(ctx context.Context, s *Session, message string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append([]*genai.Content(nil), s.history...)
	history = append(history, &genai.Content{Role: roleUser, Parts: []genai.Part{genai.Text(message)}})

	searched := false
	for round := 0; ; round++ {
		mode := genai.FunctionCallingAuto
		switch {
		case !searched:
			mode = genai.FunctionCallingAny
		case round >= a.maxRounds:
			mode = genai.FunctionCallingNone
		}

		reply, err := a.model.Generate(ctx, history, mode)
		if err != nil {
			return "", err
		}

		calls := functionCalls(reply)
		if len(calls) > 0 && mode == genai.FunctionCallingNone {
			return "", fmt.Errorf("%w: tool call after %d rounds", errNoAnswer, round)
		}
		if len(calls) == 0 && !searched {
			slog.WarnContext(ctx, "model answered without searching, forcing search", "url", s.URL)
			call := genai.FunctionCall{Name: grounding.ToolName, Args: map[string]any{"query": message}}
			reply = &genai.Content{Role: roleModel, Parts: []genai.Part{call}}
			calls = []genai.FunctionCall{call}
		}

		if len(calls) == 0 {
			answer := textOf(reply)
			if answer == "" {
				return "", fmt.Errorf("%w after %d rounds", errNoAnswer, round)
			}
			s.remember(message, answer)
			return answer, nil
		}

		history = append(history, reply)
		history = append(history, &genai.Content{Role: roleUser, Parts: a.execute(ctx, s, calls)})
		searched = true
	}
}

func (a *Agent) execute(ctx context.Context, s *Session, calls []genai.FunctionCall) []genai.Part {
	parts := make([]genai.Part, 0, len(calls))
	for _, call := range calls {
		var result string
		if call.Name != grounding.ToolName {
			result = fmt.Sprintf("Error: unknown tool %q", call.Name)
		} else {
			query, _ := call.Args["query"].(string)
			slog.InfoContext(ctx, "search_website called", "url", s.URL, "query", query)
			result = s.Tool.SearchWebsite(ctx, query)
		}
		parts = append(parts, genai.FunctionResponse{
			Name:     call.Name,
			Response: map[string]any{"result": result},
		})
	}
	return parts
}

func functionCalls(c *genai.Content) []genai.FunctionCall {
	if c == nil {
		return nil
	}
	var calls []genai.FunctionCall
	for _, p := range c.Parts {
		switch fc := p.(type) {
		case genai.FunctionCall:
			calls = append(calls, fc)
		case *genai.FunctionCall:
			calls = append(calls, *fc)
		}
	}
	return calls
}

func textOf(c *genai.Content) string {
	if c == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range c.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return strings.TrimSpace(b.String())
}
