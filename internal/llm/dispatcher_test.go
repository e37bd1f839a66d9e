package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/raphaelgruber/vaultwiz/internal/llm"
	"github.com/raphaelgruber/vaultwiz/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type stubInvoker struct {
	chunks []string
	usage  *models.TokenUsage
	err    error
	calls  int
	last   llm.Request
}

func (s *stubInvoker) Stream(_ context.Context, req llm.Request, onChunk func(string)) (*models.TokenUsage, error) {
	s.calls++
	s.last = req
	for _, c := range s.chunks {
		onChunk(c)
	}
	return s.usage, s.err
}

type fixedSelector struct {
	model *models.ConfiguredModel
}

func (f fixedSelector) Selected() (models.ConfiguredModel, bool) {
	if f.model == nil {
		return models.ConfiguredModel{}, false
	}
	return *f.model, true
}

func TestDispatcherWithoutModel(t *testing.T) {
	stub := &stubInvoker{}
	d := llm.NewDispatcher(llm.NewFactory(map[models.Provider]llm.Invoker{models.ProviderAzure: stub}), fixedSelector{}, nil)

	var chunks []string
	res, err := d.StreamAssistantReply(context.Background(), llm.Turn{Prompt: "hi"}, func(c string) { chunks = append(chunks, c) })
	require.NoError(t, err)
	assert.Nil(t, res.TokenUsage)
	assert.Equal(t, []string{llm.NoModelSelectedMessage}, chunks)
	assert.Equal(t, 0, stub.calls)
}

func TestDispatcherUsesSelectedModel(t *testing.T) {
	usage := &models.TokenUsage{InputTokens: 10, OutputTokens: 5}
	stub := &stubInvoker{chunks: []string{"Hi", " there"}, usage: usage}
	model := models.ConfiguredModel{ID: "m1", Provider: models.ProviderAzure}
	d := llm.NewDispatcher(llm.NewFactory(map[models.Provider]llm.Invoker{models.ProviderAzure: stub}), fixedSelector{&model}, nil)

	var chunks []string
	res, err := d.StreamAssistantReply(context.Background(), llm.Turn{ConversationID: "c1", Prompt: "hello"}, func(c string) {
		chunks = append(chunks, c)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hi", " there"}, chunks)
	assert.Equal(t, usage, res.TokenUsage)
	assert.Equal(t, "m1", stub.last.Model.ID)
	assert.Equal(t, "c1", stub.last.ConversationID)
}

func TestDispatcherModelOverride(t *testing.T) {
	stub := &stubInvoker{}
	selected := models.ConfiguredModel{ID: "selected", Provider: models.ProviderAzure}
	override := models.ConfiguredModel{ID: "snapshot", Provider: models.ProviderAzure}
	d := llm.NewDispatcher(llm.NewFactory(map[models.Provider]llm.Invoker{models.ProviderAzure: stub}), fixedSelector{&selected}, nil)

	_, err := d.StreamAssistantReply(context.Background(), llm.Turn{Model: &override}, func(string) {})
	require.NoError(t, err)
	assert.Equal(t, "snapshot", stub.last.Model.ID)
}

func TestDispatcherErrors(t *testing.T) {
	model := models.ConfiguredModel{ID: "m1", Provider: models.ProviderOllama}

	t.Run("no invoker for provider", func(t *testing.T) {
		d := llm.NewDispatcher(llm.NewFactory(nil), fixedSelector{&model}, nil)
		_, err := d.StreamAssistantReply(context.Background(), llm.Turn{}, func(string) {})
		assert.ErrorIs(t, err, llm.ErrNoInvoker)
		assert.Contains(t, err.Error(), "ollama")
	})

	t.Run("invoker error", func(t *testing.T) {
		stub := &stubInvoker{chunks: []string{"partial"}, err: errors.New("boom")}
		d := llm.NewDispatcher(llm.NewFactory(map[models.Provider]llm.Invoker{models.ProviderOllama: stub}), fixedSelector{&model}, nil)
		_, err := d.StreamAssistantReply(context.Background(), llm.Turn{}, func(string) {})
		assert.EqualError(t, err, "boom")
	})
}

type fakeModel struct {
	chunks   []string
	info     map[string]any
	err      error
	messages []llms.MessageContent
	opts     llms.CallOptions
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	for _, opt := range options {
		opt(&f.opts)
	}
	if f.err != nil {
		return nil, f.err
	}
	for _, c := range f.chunks {
		if err := f.opts.StreamingFunc(ctx, []byte(c)); err != nil {
			return nil, err
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{GenerationInfo: f.info}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "", errors.New("not used")
}

func TestLangchainInvokerStreams(t *testing.T) {
	fake := &fakeModel{
		chunks: []string{"Hel", "lo"},
		info:   map[string]any{"InputTokens": 7, "OutputTokens": 2},
	}
	var built models.ProviderSettings
	inv := llm.NewLangchainInvokerWithBuilder(func(_ context.Context, s models.ProviderSettings) (llms.Model, error) {
		built = s
		return fake, nil
	}, nil)

	chunks, usage, err := collect(t, inv, llm.Request{
		Messages: []models.ChatMessage{
			{Role: models.RoleSystem, Content: "sys"},
			{Role: models.RoleUser, Content: "q"},
			{Role: models.RoleDeveloper, Content: "ctx"},
			{Role: models.RoleAssistant, Content: "earlier"},
		},
		Model: models.ConfiguredModel{
			Provider:  models.ProviderOllama,
			ModelName: "llama3",
			Settings:  map[string]string{models.SettingAdditionalJSONBody: `{"temperature":0.5,"max_tokens":64,"seed":1}`},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hel", "lo"}, chunks)
	assert.Equal(t, &models.TokenUsage{InputTokens: 7, OutputTokens: 2}, usage)
	assert.Equal(t, "llama3", built.(models.OllamaSettings).Model)

	require.Len(t, fake.messages, 4)
	assert.Equal(t, llms.ChatMessageTypeSystem, fake.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, fake.messages[1].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, fake.messages[2].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, fake.messages[3].Role)
	assert.Equal(t, 0.5, fake.opts.Temperature)
	assert.Equal(t, 64, fake.opts.MaxTokens)
}

func TestLangchainInvokerErrors(t *testing.T) {
	t.Run("missing setting", func(t *testing.T) {
		inv := llm.NewLangchainInvokerWithBuilder(func(context.Context, models.ProviderSettings) (llms.Model, error) {
			t.Fatal("builder must not be called")
			return nil, nil
		}, nil)
		_, _, err := collect(t, inv, llm.Request{Model: models.ConfiguredModel{Provider: models.ProviderOpenAI, ModelName: "gpt"}})
		assert.ErrorIs(t, err, models.ErrMissingSetting)
	})

	t.Run("fatal provider error", func(t *testing.T) {
		inv := llm.NewLangchainInvokerWithBuilder(func(context.Context, models.ProviderSettings) (llms.Model, error) {
			return &fakeModel{err: errors.New("invalid api key")}, nil
		}, nil)
		_, _, err := collect(t, inv, llm.Request{Model: models.ConfiguredModel{
			Provider:  models.ProviderAnthropic,
			ModelName: "claude",
			Settings:  map[string]string{models.SettingAPIKey: "k"},
		}})
		assert.ErrorIs(t, err, llm.ErrFatalAPI)
	})
}

func TestNewModelRejectsAzure(t *testing.T) {
	_, err := llm.NewModel(context.Background(), models.AzureSettings{})
	assert.ErrorIs(t, err, llm.ErrNoInvoker)
}
