package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"gymchat/internal/config"
)

const defaultClaudeMaxTokens = 3000

// Backend bundles the chat model with the genai client when the provider is
// gemini; the client is shared with the Files API uploader.
type Backend struct {
	Model  model.ToolCallingChatModel
	Genai  *genai.Client
	Config config.AIConfig
}

// NewBackend builds the chat model for the configured provider.
func NewBackend(ctx context.Context, cfg config.AIConfig) (*Backend, error) {
	if !cfg.Enabled() {
		return nil, ErrAIDisabled
	}
	var (
		chatModel model.ToolCallingChatModel
		client    *genai.Client
		err       error
	)

	switch cfg.Provider {
	case "", "gemini":
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:      cfg.APIKey,
			Backend:     genai.BackendGeminiAPI,
			HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
		})
		if err != nil {
			return nil, fmt.Errorf("new genai client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  cfg.Model,
		})
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
		})
	case "claude":
		var baseURLPtr *string
		if cfg.BaseURL != "" {
			baseURLPtr = &cfg.BaseURL
		}
		maxTokens := cfg.MaxTokens
		if maxTokens <= 0 {
			maxTokens = defaultClaudeMaxTokens
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: maxTokens,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", cfg.Provider, err)
	}
	return &Backend{Model: chatModel, Genai: client, Config: cfg}, nil
}

// inlineImageTypes are the image formats both the OpenAI and Anthropic
// vision APIs take as base64 input.
var inlineImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// AcceptsFile reports whether the provider can take an attachment of
// mimeType. Gemini receives everything through the Files API; the OpenAI and
// Claude models only convert image parts.
func (b *Backend) AcceptsFile(mimeType string) bool {
	switch b.Config.Provider {
	case "openai", "claude":
		return inlineImageTypes[mimeType]
	default:
		return true
	}
}
