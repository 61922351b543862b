package backend

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"enkai/internal/capability"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiConfig holds configuration for the Gemini backend.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// Gemini implements Backend on the Gemini API. Registered capabilities are
// advertised as function declarations so the model can propose actions
// instead of free text. The registry is read when a conversation starts,
// so registration only has to finish before the first inbound event.
type Gemini struct {
	client   *genai.Client
	model    string
	registry *capability.Registry
	logger   *zap.Logger
}

// NewGemini creates a Gemini backend advertising the given capabilities.
func NewGemini(ctx context.Context, cfg GeminiConfig, registry *capability.Registry, logger *zap.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Gemini{
		client:   client,
		model:    model,
		registry: registry,
		logger:   logger,
	}, nil
}

// NewConversation starts a chat primed with the instruction text.
func (g *Gemini) NewConversation(ctx context.Context, instructions string) (Conversation, error) {
	cfg := &genai.GenerateContentConfig{
		Tools: declarationsToTools(g.registry.All()),
	}
	if instructions != "" {
		cfg.SystemInstruction = genai.NewContentFromText(instructions, genai.RoleUser)
	}

	chat, err := g.client.Chats.Create(ctx, g.model, cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start gemini chat: %w", err)
	}
	return &geminiConversation{chat: chat, logger: g.logger}, nil
}

// Complete answers a one-shot prompt with no tools and no chat state.
func (g *Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini completion failed: %w", err)
	}
	return resp.Text(), nil
}

type geminiConversation struct {
	chat   *genai.Chat
	logger *zap.Logger
}

func (c *geminiConversation) Send(ctx context.Context, prompt string) (*Reply, error) {
	resp, err := c.chat.SendMessage(ctx, genai.Part{Text: prompt})
	if err != nil {
		return nil, fmt.Errorf("gemini send failed: %w", err)
	}

	reply := &Reply{Text: resp.Text()}
	for _, call := range resp.FunctionCalls() {
		c.logger.Debug("model proposed action",
			zap.String("name", call.Name),
			zap.Int("args", len(call.Args)))
		reply.Proposals = append(reply.Proposals, Proposal{
			Name: call.Name,
			Args: call.Args,
		})
	}
	return reply, nil
}

// declarationsToTools converts registered capability declarations into the
// function declarations the model sees.
func declarationsToTools(decls []*capability.Declaration) []*genai.Tool {
	if len(decls) == 0 {
		return nil
	}

	fns := make([]*genai.FunctionDeclaration, 0, len(decls))
	for _, d := range decls {
		fns = append(fns, declarationToFunction(d))
	}
	return []*genai.Tool{{FunctionDeclarations: fns}}
}

func declarationToFunction(d *capability.Declaration) *genai.FunctionDeclaration {
	props := make(map[string]*genai.Schema, len(d.Params))
	var required []string
	for name, p := range d.Params {
		props[name] = paramToSchema(p)
		if p.Required {
			required = append(required, name)
		}
	}

	sort.Strings(required)

	var params *genai.Schema
	if len(props) > 0 {
		params = &genai.Schema{
			Type:       genai.TypeObject,
			Properties: props,
			Required:   required,
		}
	}

	return &genai.FunctionDeclaration{
		Name:        d.Name,
		Description: d.Description,
		Parameters:  params,
	}
}

func paramToSchema(p capability.Param) *genai.Schema {
	switch p.Kind {
	case capability.KindNumber:
		return &genai.Schema{Type: genai.TypeNumber, Description: p.Description}
	case capability.KindBool:
		return &genai.Schema{Type: genai.TypeBoolean, Description: p.Description}
	case capability.KindStringList:
		return &genai.Schema{
			Type:        genai.TypeArray,
			Description: p.Description,
			Items:       &genai.Schema{Type: genai.TypeString},
		}
	default:
		return &genai.Schema{Type: genai.TypeString, Description: p.Description}
	}
}
