package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Provider identifies an LLM backend.
type Provider string

// Supported providers.
const (
	ProviderAzure     Provider = "azure"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderOllama    Provider = "ollama"
	ProviderBedrock   Provider = "bedrock"
)

// Providers lists every provider in display order.
var Providers = []Provider{ProviderAzure, ProviderOpenAI, ProviderAnthropic, ProviderOllama, ProviderBedrock}

// ParseProvider validates a provider name.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Providers {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown provider: %q", s)
}

// Setting keys stored in ConfiguredModel.Settings.
const (
	SettingEndpoint           = "endpoint"
	SettingAPIKey             = "apiKey"
	SettingDeploymentName     = "deploymentName"
	SettingAPIVersion         = "apiVersion"
	SettingModel              = "model"
	SettingBaseURL            = "baseUrl"
	SettingServerURL          = "serverUrl"
	SettingRegion             = "region"
	SettingAccessKeyID        = "accessKeyId"
	SettingSecretAccessKey    = "secretAccessKey"
	SettingAdditionalJSONBody = "additional_json_body"
)

var (
	// ErrMissingSetting is returned when a provider-required setting is empty.
	ErrMissingSetting = errors.New("Missing required setting")

	// ErrInvalidJSONBody is returned when the additional JSON body is not a JSON object.
	ErrInvalidJSONBody = errors.New("invalid additional JSON body")
)

// ConfiguredModel is a user-configured model endpoint.
type ConfiguredModel struct {
	ID        string            `json:"id"`
	Provider  Provider          `json:"provider"`
	ModelName string            `json:"modelName"`
	Settings  map[string]string `json:"settings"`
	CreatedAt int64             `json:"createdAt"`
}

// NewConfiguredModelInput carries the user-editable fields of a model.
type NewConfiguredModelInput struct {
	Provider  Provider          `json:"provider" yaml:"provider"`
	ModelName string            `json:"modelName" yaml:"modelName"`
	Settings  map[string]string `json:"settings" yaml:"settings"`
}

// Clone returns a copy with its own settings map.
func (m ConfiguredModel) Clone() ConfiguredModel {
	out := m
	if m.Settings != nil {
		out.Settings = make(map[string]string, len(m.Settings))
		for k, v := range m.Settings {
			out.Settings[k] = v
		}
	}
	return out
}

// Setting returns a trimmed setting value.
func (m ConfiguredModel) Setting(key string) string {
	return strings.TrimSpace(m.Settings[key])
}

// ProviderSettings is the typed view over a model's raw settings.
type ProviderSettings interface {
	Provider() Provider
	// Validate reports the first missing required setting.
	Validate() error
	// ExtraBody returns the parsed additional JSON body, or nil.
	ExtraBody() map[string]any
}

// AzureSettings configures the Azure OpenAI Responses API.
type AzureSettings struct {
	Endpoint           string
	APIKey             string
	DeploymentName     string
	APIVersion         string
	AdditionalJSONBody map[string]any
}

func (s AzureSettings) Provider() Provider        { return ProviderAzure }
func (s AzureSettings) ExtraBody() map[string]any { return s.AdditionalJSONBody }

func (s AzureSettings) Validate() error {
	return requireSettings(
		SettingEndpoint, s.Endpoint,
		SettingAPIKey, s.APIKey,
		SettingDeploymentName, s.DeploymentName,
		SettingAPIVersion, s.APIVersion,
	)
}

// OpenAISettings configures an OpenAI-compatible chat endpoint.
type OpenAISettings struct {
	APIKey             string
	Model              string
	BaseURL            string
	AdditionalJSONBody map[string]any
}

func (s OpenAISettings) Provider() Provider        { return ProviderOpenAI }
func (s OpenAISettings) ExtraBody() map[string]any { return s.AdditionalJSONBody }

func (s OpenAISettings) Validate() error {
	return requireSettings(SettingAPIKey, s.APIKey, SettingModel, s.Model)
}

// AnthropicSettings configures the Anthropic messages API.
type AnthropicSettings struct {
	APIKey             string
	Model              string
	BaseURL            string
	AdditionalJSONBody map[string]any
}

func (s AnthropicSettings) Provider() Provider        { return ProviderAnthropic }
func (s AnthropicSettings) ExtraBody() map[string]any { return s.AdditionalJSONBody }

func (s AnthropicSettings) Validate() error {
	return requireSettings(SettingAPIKey, s.APIKey, SettingModel, s.Model)
}

// OllamaSettings configures a local Ollama server.
type OllamaSettings struct {
	ServerURL          string
	Model              string
	AdditionalJSONBody map[string]any
}

func (s OllamaSettings) Provider() Provider        { return ProviderOllama }
func (s OllamaSettings) ExtraBody() map[string]any { return s.AdditionalJSONBody }

func (s OllamaSettings) Validate() error {
	return requireSettings(SettingModel, s.Model)
}

// BedrockSettings configures AWS Bedrock. Empty credentials fall back to the
// default AWS credential chain.
type BedrockSettings struct {
	Region             string
	AccessKeyID        string
	SecretAccessKey    string
	Model              string
	AdditionalJSONBody map[string]any
}

func (s BedrockSettings) Provider() Provider        { return ProviderBedrock }
func (s BedrockSettings) ExtraBody() map[string]any { return s.AdditionalJSONBody }

func (s BedrockSettings) Validate() error {
	if (s.AccessKeyID == "") != (s.SecretAccessKey == "") {
		if s.AccessKeyID == "" {
			return requireSettings(SettingAccessKeyID, "")
		}
		return requireSettings(SettingSecretAccessKey, "")
	}
	return requireSettings(SettingModel, s.Model)
}

// ProviderSettings converts the raw settings map into its typed variant.
// The model setting falls back to ModelName when unset.
func (m ConfiguredModel) ProviderSettings() (ProviderSettings, error) {
	extra, err := ParseAdditionalJSONBody(m.Settings[SettingAdditionalJSONBody])
	if err != nil {
		return nil, err
	}

	model := m.Setting(SettingModel)
	if model == "" {
		model = strings.TrimSpace(m.ModelName)
	}

	switch m.Provider {
	case ProviderAzure:
		return AzureSettings{
			Endpoint:           m.Setting(SettingEndpoint),
			APIKey:             m.Setting(SettingAPIKey),
			DeploymentName:     m.Setting(SettingDeploymentName),
			APIVersion:         m.Setting(SettingAPIVersion),
			AdditionalJSONBody: extra,
		}, nil
	case ProviderOpenAI:
		return OpenAISettings{
			APIKey:             m.Setting(SettingAPIKey),
			Model:              model,
			BaseURL:            m.Setting(SettingBaseURL),
			AdditionalJSONBody: extra,
		}, nil
	case ProviderAnthropic:
		return AnthropicSettings{
			APIKey:             m.Setting(SettingAPIKey),
			Model:              model,
			BaseURL:            m.Setting(SettingBaseURL),
			AdditionalJSONBody: extra,
		}, nil
	case ProviderOllama:
		return OllamaSettings{
			ServerURL:          m.Setting(SettingServerURL),
			Model:              model,
			AdditionalJSONBody: extra,
		}, nil
	case ProviderBedrock:
		return BedrockSettings{
			Region:             m.Setting(SettingRegion),
			AccessKeyID:        m.Setting(SettingAccessKeyID),
			SecretAccessKey:    m.Setting(SettingSecretAccessKey),
			Model:              model,
			AdditionalJSONBody: extra,
		}, nil
	default:
		return nil, fmt.Errorf("unknown provider: %q", m.Provider)
	}
}

// ParseAdditionalJSONBody parses the raw additional body override.
// An empty value yields nil; anything but a JSON object is rejected.
func ParseAdditionalJSONBody(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf(`%w: "Additional JSON body" must be valid JSON`, ErrInvalidJSONBody)
	}
	obj, ok := parsed.(map[string]any)
	if !ok {
		return nil, fmt.Errorf(`%w: "Additional JSON body" must be a JSON object`, ErrInvalidJSONBody)
	}
	return obj, nil
}

// requireSettings takes alternating key/value pairs and reports the first empty value.
func requireSettings(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] == "" {
			return fmt.Errorf("%w: %s", ErrMissingSetting, pairs[i])
		}
	}
	return nil
}
