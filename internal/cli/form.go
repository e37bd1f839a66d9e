package cli

import (
	"fmt"
	"strings"

	"github.com/raphaelgruber/vaultwiz/internal/models"
)

const (
	formProviderKey = "provider"
	formNameKey     = "modelName"
)

// providerFields lists the settings offered for each provider, in form order.
var providerFields = map[models.Provider][]string{
	models.ProviderAzure:     {models.SettingEndpoint, models.SettingAPIKey, models.SettingDeploymentName, models.SettingAPIVersion},
	models.ProviderOpenAI:    {models.SettingAPIKey, models.SettingModel, models.SettingBaseURL},
	models.ProviderAnthropic: {models.SettingAPIKey, models.SettingModel, models.SettingBaseURL},
	models.ProviderOllama:    {models.SettingServerURL, models.SettingModel},
	models.ProviderBedrock:   {models.SettingRegion, models.SettingAccessKeyID, models.SettingSecretAccessKey, models.SettingModel},
}

// modelForm renders the editable text of the model form. m is nil for a
// new model.
func modelForm(provider models.Provider, m *models.ConfiguredModel) string {
	var name string
	settings := map[string]string{}
	if m != nil {
		provider, name, settings = m.Provider, m.ModelName, m.Settings
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", formProviderKey, provider)
	fmt.Fprintf(&b, "%s: %s\n", formNameKey, name)
	seen := map[string]bool{}
	for _, key := range providerFields[provider] {
		fmt.Fprintf(&b, "%s: %s\n", key, settings[key])
		seen[key] = true
	}
	for key, value := range settings {
		if !seen[key] && key != models.SettingAdditionalJSONBody {
			fmt.Fprintf(&b, "%s: %s\n", key, value)
		}
	}
	fmt.Fprintf(&b, "%s: %s", models.SettingAdditionalJSONBody, settings[models.SettingAdditionalJSONBody])
	return b.String()
}

// parseModelForm reads "key: value" lines back into a model input. Empty
// values are dropped; blank and '#' lines are ignored.
func parseModelForm(text string) (models.NewConfiguredModelInput, error) {
	in := models.NewConfiguredModelInput{Settings: map[string]string{}}
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return in, fmt.Errorf("line %d: expected key: value", i+1)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch key {
		case formProviderKey:
			p, err := models.ParseProvider(value)
			if err != nil {
				return in, err
			}
			in.Provider = p
		case formNameKey:
			in.ModelName = value
		default:
			if value != "" {
				in.Settings[key] = value
			}
		}
	}
	if in.Provider == "" {
		return in, fmt.Errorf("provider is required")
	}
	if body := in.Settings[models.SettingAdditionalJSONBody]; body != "" {
		if _, err := models.ParseAdditionalJSONBody(body); err != nil {
			return in, err
		}
	}
	return in, nil
}

// nextProvider cycles through the supported providers.
func nextProvider(p models.Provider) models.Provider {
	for i, candidate := range models.Providers {
		if candidate == p {
			return models.Providers[(i+1)%len(models.Providers)]
		}
	}
	return models.Providers[0]
}
