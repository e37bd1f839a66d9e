package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/vaultwiz/internal/models"
	"github.com/raphaelgruber/vaultwiz/internal/registry"
)

var (
	modelProvider string
	modelName     string
	modelSettings map[string]string
	modelBody     string
	modelAskKey   bool
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage configured models",
	Long: `List, add, update and remove configured models.

Models are stored in the plugin data directory of the vault. The first
model is selected by default; use --model <id> (or $VAULTWIZ_MODEL) to pick
another one for a command.

Provider settings:
  azure      endpoint, apiKey, deploymentName, apiVersion
  openai     apiKey, model, baseUrl (optional)
  anthropic  apiKey, model, baseUrl (optional)
  ollama     serverUrl (optional), model
  bedrock    region, model, accessKeyId + secretAccessKey (optional)

Examples:
  vaultwiz models list
  vaultwiz models add --provider azure --name gpt-4o \
      --set endpoint=https://me.openai.azure.com --set deploymentName=gpt-4o \
      --set apiVersion=2025-04-01-preview --api-key
  vaultwiz models add --provider ollama --name llama --set model=llama3.2
  vaultwiz models update 1718000000000-a1b2c3 --body '{"temperature":0.2}'
  vaultwiz models rm 1718000000000-a1b2c3
  vaultwiz models import models.yaml`,
	Args: cobra.NoArgs,
	RunE: runModelsList,
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured models",
	Args:  cobra.NoArgs,
	RunE:  runModelsList,
}

var modelsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a model",
	Args:  cobra.NoArgs,
	RunE:  runModelsAdd,
}

var modelsUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change a model; unspecified fields are kept",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelsUpdate,
}

var modelsRmCmd = &cobra.Command{
	Use:     "rm <id>",
	Aliases: []string{"delete"},
	Short:   "Remove a model",
	Args:    cobra.ExactArgs(1),
	RunE:    runModelsRm,
}

var modelsImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Add the models listed in a YAML file",
	Long: `Add every entry of a YAML file of the form:

  models:
    - provider: openai
      modelName: gpt-4o-mini
      settings:
        apiKey: sk-...
        model: gpt-4o-mini`,
	Args: cobra.ExactArgs(1),
	RunE: runModelsImport,
}

func init() {
	for _, c := range []*cobra.Command{modelsAddCmd, modelsUpdateCmd} {
		c.Flags().StringVarP(&modelProvider, "provider", "p", "", "provider: azure, openai, anthropic, ollama, bedrock")
		c.Flags().StringVarP(&modelName, "name", "n", "", "display name")
		c.Flags().StringToStringVar(&modelSettings, "set", nil, "provider setting key=value (repeatable)")
		c.Flags().StringVar(&modelBody, "body", "", "additional JSON object merged into each request")
		c.Flags().BoolVar(&modelAskKey, "api-key", false, "prompt for the API key without echo")
	}

	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsAddCmd)
	modelsCmd.AddCommand(modelsUpdateCmd)
	modelsCmd.AddCommand(modelsRmCmd)
	modelsCmd.AddCommand(modelsImportCmd)
}

func runModelsList(cmd *cobra.Command, args []string) error {
	list := application.Controller.Models()
	if len(list) == 0 {
		fmt.Println("No models configured. Add one with 'vaultwiz models add'.")
		return nil
	}

	selected, _ := application.Controller.SelectedModel()
	fmt.Printf("Models (%d):\n\n", len(list))
	for _, m := range list {
		mark := " "
		if m.ID == selected.ID {
			mark = "*"
		}
		fmt.Printf("%s %s  %-9s %s\n", mark, m.ID, m.Provider, m.ModelName)
		if verbose {
			keys := make([]string, 0, len(m.Settings))
			for k := range m.Settings {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("    %s: %s\n", k, maskSetting(k, m.Settings[k]))
			}
		}
	}
	return nil
}

func runModelsAdd(cmd *cobra.Command, args []string) error {
	if modelProvider == "" || strings.TrimSpace(modelName) == "" {
		return fmt.Errorf("--provider and --name are required")
	}
	in := models.NewConfiguredModelInput{
		Provider:  models.Provider(modelProvider),
		ModelName: modelName,
		Settings:  map[string]string{},
	}
	if err := applyModelFlags(&in); err != nil {
		return err
	}

	m, _, err := application.Controller.SaveConfiguredModel(context.Background(), in)
	if err != nil {
		return fmt.Errorf("add model: %w", err)
	}
	if err := validateModel(m); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	fmt.Printf("Added model %s (%s %s)\n", m.ID, m.Provider, m.ModelName)
	return nil
}

func runModelsUpdate(cmd *cobra.Command, args []string) error {
	id := args[0]
	current, ok := application.Registry.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", registry.ErrModelNotFound, id)
	}

	in := models.NewConfiguredModelInput{
		Provider:  current.Provider,
		ModelName: current.ModelName,
		Settings:  current.Clone().Settings,
	}
	if in.Settings == nil {
		in.Settings = map[string]string{}
	}
	if modelProvider != "" {
		in.Provider = models.Provider(modelProvider)
	}
	if modelName != "" {
		in.ModelName = modelName
	}
	if err := applyModelFlags(&in); err != nil {
		return err
	}

	m, err := application.Controller.UpdateConfiguredModel(context.Background(), id, in)
	if err != nil {
		return fmt.Errorf("update model: %w", err)
	}
	if err := validateModel(m); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	fmt.Printf("Updated model %s\n", m.ID)
	return nil
}

func runModelsRm(cmd *cobra.Command, args []string) error {
	if err := application.Controller.DeleteConfiguredModel(context.Background(), args[0]); err != nil {
		return fmt.Errorf("delete model: %w", err)
	}
	fmt.Printf("Removed model %s\n", args[0])
	return nil
}

func runModelsImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	inputs, err := registry.ParseModelsYAML(data)
	if err != nil {
		return err
	}

	ctx := context.Background()
	added := 0
	for _, in := range inputs {
		m, ok, err := application.Controller.SaveConfiguredModel(ctx, in)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipped %q: %v\n", in.ModelName, err)
			continue
		}
		if !ok {
			continue
		}
		added++
		if verbose {
			fmt.Printf("  Added: %s (%s %s)\n", m.ID, m.Provider, m.ModelName)
		}
	}
	fmt.Printf("Imported %d of %d models\n", added, len(inputs))
	return nil
}

// applyModelFlags merges --set, --body and --api-key into in.
func applyModelFlags(in *models.NewConfiguredModelInput) error {
	for k, v := range modelSettings {
		in.Settings[k] = v
	}
	if modelBody != "" {
		if _, err := models.ParseAdditionalJSONBody(modelBody); err != nil {
			return err
		}
		in.Settings[models.SettingAdditionalJSONBody] = modelBody
	}
	if modelAskKey {
		key, err := readSecret("API key: ")
		if err != nil {
			return err
		}
		in.Settings[models.SettingAPIKey] = key
	}
	return nil
}

// validateModel reports missing provider settings. The model is stored
// anyway; turns against it fail with the same message.
func validateModel(m models.ConfiguredModel) error {
	_, err := m.ProviderSettings()
	return err
}

// readSecret reads a line without echo when stdin is a terminal.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read secret: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func maskSetting(key, value string) string {
	switch key {
	case models.SettingAPIKey, models.SettingSecretAccessKey, models.SettingAccessKeyID:
		if len(value) <= 4 {
			return "****"
		}
		return "****" + value[len(value)-4:]
	}
	return value
}
