package provider

import (
	"context"
	"fmt"
	"strings"

	"sparkchat/internal/config"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// chatModelFactory builds the chat model for one configured backend.
// Declared as a variable so tests can swap in fakes.
var chatModelFactory = newChatModel

type backend struct {
	model model.ToolCallingChatModel
	agent *react.Agent
	// vision is non-nil only for backends whose kind supports image input.
	vision      *genai.Client
	visionModel string
}

// ChatService holds one initialized backend per configured provider id and
// runs single requests against a chosen backend. Fallback across backends
// is the caller's job via RunFallback.
type ChatService struct {
	backends map[string]*backend
}

// NewChatService initializes every provider in the config. A backend that
// fails to initialize is skipped so one bad credential does not take the
// whole queue down.
func NewChatService(ctx context.Context, cfg *config.Config) (*ChatService, error) {
	tools := InitToolsChain()

	svc := &ChatService{backends: make(map[string]*backend)}
	var lastErr error
	for id, provCfg := range cfg.Providers {
		b, err := buildBackend(ctx, provCfg, tools)
		if err != nil {
			lastErr = fmt.Errorf("init provider %s: %w", id, err)
			continue
		}
		svc.backends[id] = b
	}
	if len(svc.backends) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, fmt.Errorf("no providers configured")
	}
	return svc, nil
}

func buildBackend(ctx context.Context, provCfg config.ProviderConfig, tools []tool.BaseTool) (*backend, error) {
	b := &backend{}

	chatModel, visionClient, err := chatModelFactory(ctx, provCfg)
	if err != nil {
		return nil, err
	}
	b.model = chatModel
	b.vision = visionClient
	b.visionModel = provCfg.Model

	if len(tools) > 0 {
		agent, err := react.NewAgent(ctx, &react.AgentConfig{
			ToolCallingModel: chatModel,
			ToolsConfig: compose.ToolsNodeConfig{
				Tools: tools,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("init react agent: %w", err)
		}
		b.agent = agent
	}
	return b, nil
}

func newChatModel(ctx context.Context, provCfg config.ProviderConfig) (model.ToolCallingChatModel, *genai.Client, error) {
	switch strings.ToLower(provCfg.Kind) {
	case "openai":
		m, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   provCfg.Model,
			APIKey:  provCfg.APIKey,
		})
		return m, nil, err
	case "gemini":
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("new gemini client: %w", err)
		}
		m, err := gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  provCfg.Model,
		})
		if err != nil {
			return nil, nil, err
		}
		return m, client, nil
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		m, err := claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     provCfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: 3000,
		})
		return m, nil, err
	default:
		return nil, nil, fmt.Errorf("invalid provider kind: %s", provCfg.Kind)
	}
}

// GenerateText runs one text completion against the named backend. The full
// prompt, including persona and history, arrives as a single assembled
// string.
func (s *ChatService) GenerateText(ctx context.Context, providerID, prompt string) (string, error) {
	b, ok := s.backends[providerID]
	if !ok {
		return "", &TransportError{Provider: providerID, Err: fmt.Errorf("provider not initialized")}
	}

	msgs := []*schema.Message{
		{Role: schema.User, Content: prompt},
	}

	var (
		resp *schema.Message
		err  error
	)
	if b.agent != nil {
		resp, err = b.agent.Generate(ctx, msgs)
	} else {
		resp, err = b.model.Generate(ctx, msgs)
	}
	if err != nil {
		return "", &TransportError{Provider: providerID, Err: err}
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", &MalformedResponseError{Provider: providerID}
	}
	return resp.Content, nil
}

// AnalyzeImage runs one vision request against the named backend. Only
// gemini-kind backends carry a vision client; others report a transport
// error so the fallback queue can move on.
func (s *ChatService) AnalyzeImage(ctx context.Context, providerID, prompt string, image []byte, mimeType string) (string, error) {
	b, ok := s.backends[providerID]
	if !ok {
		return "", &TransportError{Provider: providerID, Err: fmt.Errorf("provider not initialized")}
	}
	if b.vision == nil {
		return "", &TransportError{Provider: providerID, Err: fmt.Errorf("provider does not support image input")}
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	contents := []*genai.Content{
		{
			Role: genai.RoleUser,
			Parts: []*genai.Part{
				{InlineData: &genai.Blob{MIMEType: mimeType, Data: image}},
				{Text: prompt},
			},
		},
	}

	resp, err := b.vision.Models.GenerateContent(ctx, b.visionModel, contents, nil)
	if err != nil {
		return "", &TransportError{Provider: providerID, Err: err}
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", &MalformedResponseError{Provider: providerID}
	}
	return text, nil
}
