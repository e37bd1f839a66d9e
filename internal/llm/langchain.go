package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/raphaelgruber/vaultwiz/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// defaultMaxTokens caps replies of langchaingo-backed providers.
const defaultMaxTokens = 2048

// ModelBuilder creates a langchaingo model for a configured model.
type ModelBuilder func(ctx context.Context, settings models.ProviderSettings) (llms.Model, error)

// LangchainInvoker streams replies through langchaingo for the OpenAI,
// Anthropic, Ollama and Bedrock providers.
type LangchainInvoker struct {
	build  ModelBuilder
	logger *slog.Logger
}

// NewLangchainInvoker creates an invoker that builds provider clients from
// each model's settings.
func NewLangchainInvoker(logger *slog.Logger) *LangchainInvoker {
	return NewLangchainInvokerWithBuilder(NewModel, logger)
}

// NewLangchainInvokerWithBuilder uses build to create the langchaingo model.
func NewLangchainInvokerWithBuilder(build ModelBuilder, logger *slog.Logger) *LangchainInvoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &LangchainInvoker{build: build, logger: logger}
}

// NewModel creates the langchaingo model for settings.
func NewModel(ctx context.Context, settings models.ProviderSettings) (llms.Model, error) {
	switch s := settings.(type) {
	case models.OllamaSettings:
		opts := []ollama.Option{ollama.WithModel(s.Model)}
		if s.ServerURL != "" {
			opts = append(opts, ollama.WithServerURL(s.ServerURL))
		}
		model, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}
		return model, nil

	case models.OpenAISettings:
		opts := []openai.Option{openai.WithToken(s.APIKey), openai.WithModel(s.Model)}
		if s.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(s.BaseURL))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}
		return model, nil

	case models.AnthropicSettings:
		opts := []anthropic.Option{anthropic.WithToken(s.APIKey), anthropic.WithModel(s.Model)}
		if s.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(s.BaseURL))
		}
		model, err := anthropic.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}
		return model, nil

	case models.BedrockSettings:
		client, err := newBedrockClient(ctx, s)
		if err != nil {
			return nil, err
		}
		model, err := bedrock.New(bedrock.WithClient(client), bedrock.WithModel(s.Model))
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}
		return model, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrNoInvoker, settings.Provider())
	}
}

func newBedrockClient(ctx context.Context, s models.BedrockSettings) (*bedrockruntime.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if s.Region != "" {
		opts = append(opts, awsconfig.WithRegion(s.Region))
	}
	if s.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.AccessKeyID, s.SecretAccessKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return bedrockruntime.NewFromConfig(cfg, func(o *bedrockruntime.Options) {
		o.Retryer = aws.NopRetryer{}
	}), nil
}

// Stream implements Invoker.
func (l *LangchainInvoker) Stream(ctx context.Context, req Request, onChunk func(string)) (*models.TokenUsage, error) {
	settings, err := req.Model.ProviderSettings()
	if err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	model, err := l.build(ctx, settings)
	if err != nil {
		return nil, err
	}

	opts := append([]llms.CallOption{
		llms.WithMaxTokens(defaultMaxTokens),
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if len(chunk) > 0 {
				onChunk(string(chunk))
			}
			return nil
		}),
	}, l.callOptions(settings.ExtraBody())...)

	start := time.Now()
	resp, err := model.GenerateContent(ctx, toMessageContent(req.Messages), opts...)
	duration := time.Since(start)
	if err != nil {
		return nil, wrapFatalError(fmt.Errorf("%s generate: %w", settings.Provider(), err))
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s generate: no response choices", settings.Provider())
	}

	usage := UsageFromGenerationInfo(resp.Choices[0].GenerationInfo)
	l.logger.Debug("langchain reply complete",
		"conversation_id", req.ConversationID,
		"provider", settings.Provider(),
		"duration_ms", duration.Milliseconds(),
		"has_usage", usage != nil)
	return usage, nil
}

// callOptions maps the well-known keys of the additional JSON body onto
// langchaingo call options. Other keys are ignored.
func (l *LangchainInvoker) callOptions(extra map[string]any) []llms.CallOption {
	var opts []llms.CallOption
	for key, v := range extra {
		switch key {
		case "temperature":
			if f, ok := v.(float64); ok {
				opts = append(opts, llms.WithTemperature(f))
			}
		case "top_p":
			if f, ok := v.(float64); ok {
				opts = append(opts, llms.WithTopP(f))
			}
		case "max_tokens", "max_output_tokens":
			if f, ok := v.(float64); ok && f > 0 {
				opts = append(opts, llms.WithMaxTokens(int(f)))
			}
		case "stop":
			if list, ok := v.([]any); ok {
				var words []string
				for _, w := range list {
					if s, ok := w.(string); ok {
						words = append(words, s)
					}
				}
				opts = append(opts, llms.WithStopWords(words))
			}
		default:
			l.logger.Debug("ignoring additional body key", "key", key)
		}
	}
	return opts
}

// toMessageContent converts the log into langchaingo messages, using the
// same role mapping as BuildInput.
func toMessageContent(messages []models.ChatMessage) []llms.MessageContent {
	items := BuildInput(messages)
	out := make([]llms.MessageContent, 0, len(items))
	for _, item := range items {
		var role llms.ChatMessageType
		switch models.Role(item.Role) {
		case models.RoleSystem:
			role = llms.ChatMessageTypeSystem
		case models.RoleAssistant:
			role = llms.ChatMessageTypeAI
		default:
			role = llms.ChatMessageTypeHuman
		}
		out = append(out, llms.TextParts(role, item.Content))
	}
	return out
}
