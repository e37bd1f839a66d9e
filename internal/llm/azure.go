package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/raphaelgruber/vaultwiz/internal/models"
)

// azureMaxOutputTokens caps the reply length of Azure Responses requests.
const azureMaxOutputTokens = 2048

// AzureInvoker streams replies from the Azure OpenAI Responses API.
type AzureInvoker struct {
	client *http.Client
	logger *slog.Logger
}

// NewAzureInvoker creates an Azure client. A nil client uses a client
// without an overall timeout, since replies are streamed.
func NewAzureInvoker(client *http.Client, logger *slog.Logger) *AzureInvoker {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AzureInvoker{client: client, logger: logger}
}

// Stream implements Invoker.
func (a *AzureInvoker) Stream(ctx context.Context, req Request, onChunk func(string)) (*models.TokenUsage, error) {
	raw, err := req.Model.ProviderSettings()
	if err != nil {
		return nil, err
	}
	settings, ok := raw.(models.AzureSettings)
	if !ok {
		return nil, fmt.Errorf("azure invoker cannot serve provider %s", raw.Provider())
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	body := map[string]any{
		"model":             settings.DeploymentName,
		"input":             BuildInput(req.Messages),
		"max_output_tokens": azureMaxOutputTokens,
		"stream":            true,
	}
	for k, v := range settings.ExtraBody() {
		body[k] = v
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal azure request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, responsesURL(settings), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build azure request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+settings.APIKey)

	start := time.Now()
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("azure request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, wrapFatalError(&StatusError{
			Provider:   "Azure",
			StatusCode: resp.StatusCode,
			Body:       string(text),
		})
	}

	var usage *models.TokenUsage
	if isJSON(resp.Header.Get("Content-Type")) {
		usage, err = consumeBuffered(resp.Body, onChunk)
	} else {
		usage, err = consumeStream(resp.Body, onChunk)
	}
	if err != nil {
		return nil, err
	}

	a.logger.Debug("azure reply complete",
		"conversation_id", req.ConversationID,
		"deployment", settings.DeploymentName,
		"duration_ms", time.Since(start).Milliseconds(),
		"has_usage", usage != nil)
	return usage, nil
}

// consumeStream applies every delta in order and keeps the last usage seen.
func consumeStream(r io.Reader, onChunk func(string)) (*models.TokenUsage, error) {
	var usage *models.TokenUsage
	err := readSSE(r, func(_, data string) error {
		for _, event := range decodeEventData(data) {
			if u := ExtractUsage(event); u != nil {
				usage = u
			}
			if delta := ExtractDelta(event); delta != "" {
				onChunk(delta)
			}
		}
		return nil
	})
	if err != nil {
		return usage, fmt.Errorf("read azure stream: %w", err)
	}
	return usage, nil
}

func consumeBuffered(r io.Reader, onChunk func(string)) (*models.TokenUsage, error) {
	var body map[string]any
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode azure response: %w", err)
	}
	if text := ExtractText(body); text != "" {
		onChunk(text)
	}
	return ExtractUsage(body), nil
}

func responsesURL(s models.AzureSettings) string {
	base := strings.TrimRight(s.Endpoint, "/")
	return base + "/openai/responses?api-version=" + url.QueryEscape(s.APIVersion)
}

// isJSON reports a buffered JSON body. Anything else is read as a stream.
func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json"
}
