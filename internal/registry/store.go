package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/raphaelgruber/vaultwiz/internal/fsutil"
	"github.com/raphaelgruber/vaultwiz/internal/models"
	"gopkg.in/yaml.v3"
)

// SettingsFileName is the model settings file inside the plugin directory.
const SettingsFileName = ".model_settings.json"

type settingsFile struct {
	Models []models.ConfiguredModel `json:"models"`
}

// JSONSettingsStore keeps the model list in one JSON document.
type JSONSettingsStore struct {
	path   string
	logger *slog.Logger
}

// NewJSONSettingsStore stores models in SettingsFileName under pluginDir.
func NewJSONSettingsStore(pluginDir string, logger *slog.Logger) *JSONSettingsStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &JSONSettingsStore{path: filepath.Join(pluginDir, SettingsFileName), logger: logger}
}

// Path returns the settings file location.
func (s *JSONSettingsStore) Path() string {
	return s.path
}

// LoadModels reads the stored models. A missing or unreadable file yields
// an empty list.
func (s *JSONSettingsStore) LoadModels(ctx context.Context) ([]models.ConfiguredModel, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("read model settings failed", "path", s.path, "error", err)
		}
		return []models.ConfiguredModel{}, nil
	}

	var file settingsFile
	if err := json.Unmarshal(data, &file); err != nil {
		s.logger.Warn("parse model settings failed", "path", s.path, "error", err)
		return []models.ConfiguredModel{}, nil
	}
	if file.Models == nil {
		return []models.ConfiguredModel{}, nil
	}
	return file.Models, nil
}

// SaveModels replaces the stored list.
func (s *JSONSettingsStore) SaveModels(ctx context.Context, list []models.ConfiguredModel) error {
	if list == nil {
		list = []models.ConfiguredModel{}
	}
	data, err := json.MarshalIndent(settingsFile{Models: list}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal model settings: %w", err)
	}
	return fsutil.WriteFileAtomic(s.path, data, 0o600)
}

type yamlModels struct {
	Models []models.NewConfiguredModelInput `yaml:"models"`
}

// ParseModelsYAML reads model definitions for bulk import:
//
//	models:
//	  - provider: azure
//	    modelName: gpt-4.1
//	    settings:
//	      endpoint: https://example.openai.azure.com
func ParseModelsYAML(data []byte) ([]models.NewConfiguredModelInput, error) {
	var doc yamlModels
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse models yaml: %w", err)
	}
	for i, m := range doc.Models {
		if _, err := models.ParseProvider(string(m.Provider)); err != nil {
			return nil, fmt.Errorf("model %d: %w", i+1, err)
		}
	}
	return doc.Models, nil
}
