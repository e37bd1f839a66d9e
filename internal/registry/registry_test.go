package registry_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/raphaelgruber/vaultwiz/internal/models"
	"github.com/raphaelgruber/vaultwiz/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	models  []models.ConfiguredModel
	saves   int
	saveErr error
}

func (s *memStore) LoadModels(context.Context) ([]models.ConfiguredModel, error) {
	return s.models, nil
}

func (s *memStore) SaveModels(_ context.Context, list []models.ConfiguredModel) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.models = list
	return nil
}

func input(name string) models.NewConfiguredModelInput {
	return models.NewConfiguredModelInput{
		Provider:  models.ProviderOllama,
		ModelName: name,
		Settings:  map[string]string{models.SettingServerURL: "http://localhost:11434"},
	}
}

func TestSelectUnknownIDOnEmptyRegistry(t *testing.T) {
	r := registry.New(&memStore{}, nil)
	require.NoError(t, r.Load(context.Background()))

	assert.False(t, r.Select("x"))
	_, ok := r.Selected()
	assert.False(t, ok)
}

func TestSelectUnknownIDClearsSelection(t *testing.T) {
	ctx := context.Background()
	r := registry.New(&memStore{}, nil)
	m, ok, err := r.Add(ctx, input("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, r.Select(m.ID))

	calls := 0
	r.Selection().Subscribe(func() { calls++ })

	assert.False(t, r.Select("does-not-exist"))
	_, ok = r.Selected()
	assert.False(t, ok)
	assert.Equal(t, 1, calls)
	assert.Len(t, r.Models(), 1)
}

func TestLoadSelectsFirst(t *testing.T) {
	store := &memStore{models: []models.ConfiguredModel{
		{ID: "1", Provider: models.ProviderOllama, ModelName: "a"},
		{ID: "2", Provider: models.ProviderOllama, ModelName: "b"},
	}}
	r := registry.New(store, nil)
	require.NoError(t, r.Load(context.Background()))

	sel, ok := r.Selected()
	require.True(t, ok)
	assert.Equal(t, "1", sel.ID)
	assert.Len(t, r.Models(), 2)
}

func TestAdd(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	r := registry.New(store, nil)

	_, ok, err := r.Add(ctx, input("   "))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, store.saves)

	first, ok, err := r.Add(ctx, input("  llama3  "))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "llama3", first.ModelName)
	assert.Regexp(t, `^\d+-[0-9a-z]{6}$`, first.ID)
	assert.NotZero(t, first.CreatedAt)

	second, _, err := r.Add(ctx, input("mistral"))
	require.NoError(t, err)

	sel, _ := r.Selected()
	assert.Equal(t, first.ID, sel.ID, "second add must not steal the selection")
	assert.Equal(t, 2, store.saves)
	assert.Equal(t, []string{first.ID, second.ID}, ids(r.Models()))
}

func TestAddRejectsUnknownProvider(t *testing.T) {
	r := registry.New(&memStore{}, nil)
	_, _, err := r.Add(context.Background(), models.NewConfiguredModelInput{Provider: "nope", ModelName: "x"})
	assert.Error(t, err)
	assert.Empty(t, r.Models())
}

func TestAddStoreFailureLeavesMemoryUntouched(t *testing.T) {
	store := &memStore{saveErr: errors.New("disk full")}
	r := registry.New(store, nil)

	_, _, err := r.Add(context.Background(), input("llama3"))
	require.Error(t, err)
	assert.Empty(t, r.Models())
	_, ok := r.Selected()
	assert.False(t, ok)
}

func TestUpdateRefreshesSelection(t *testing.T) {
	ctx := context.Background()
	r := registry.New(&memStore{}, nil)
	m, _, err := r.Add(ctx, input("llama3"))
	require.NoError(t, err)

	updated, err := r.Update(ctx, m.ID, input("llama3.1"))
	require.NoError(t, err)
	assert.Equal(t, m.ID, updated.ID)
	assert.Equal(t, m.CreatedAt, updated.CreatedAt)

	sel, _ := r.Selected()
	assert.Equal(t, "llama3.1", sel.ModelName)

	_, err = r.Update(ctx, "missing", input("x"))
	assert.ErrorIs(t, err, registry.ErrModelNotFound)
}

func TestDeleteSelectedFallsBack(t *testing.T) {
	ctx := context.Background()
	r := registry.New(&memStore{}, nil)
	a, _, _ := r.Add(ctx, input("a"))
	b, _, _ := r.Add(ctx, input("b"))

	require.True(t, r.Select(b.ID))
	require.NoError(t, r.Delete(ctx, b.ID))
	sel, ok := r.Selected()
	require.True(t, ok)
	assert.Equal(t, a.ID, sel.ID)

	require.NoError(t, r.Delete(ctx, a.ID))
	_, ok = r.Selected()
	assert.False(t, ok)

	assert.ErrorIs(t, r.Delete(ctx, a.ID), registry.ErrModelNotFound)
}

func TestSelectionIsSnapshot(t *testing.T) {
	ctx := context.Background()
	r := registry.New(&memStore{}, nil)
	m, _, _ := r.Add(ctx, input("a"))

	calls := 0
	r.Selection().Subscribe(func() { calls++ })

	sel, _ := r.Selected()
	sel.Settings[models.SettingServerURL] = "changed"

	again, _ := r.Selected()
	assert.Equal(t, "http://localhost:11434", again.Settings[models.SettingServerURL])

	r.Select(m.ID)
	assert.Equal(t, 1, calls)
}

func TestJSONSettingsStore(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), ".vaultwiz")
	store := registry.NewJSONSettingsStore(dir, nil)

	loaded, err := store.LoadModels(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)

	want := []models.ConfiguredModel{{
		ID:        "1-abcdef",
		Provider:  models.ProviderAzure,
		ModelName: "gpt",
		Settings:  map[string]string{models.SettingEndpoint: "https://x"},
		CreatedAt: 1,
	}}
	require.NoError(t, store.SaveModels(ctx, want))

	loaded, err = store.LoadModels(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, loaded)

	require.NoError(t, os.WriteFile(store.Path(), []byte("{broken"), 0o600))
	loaded, err = store.LoadModels(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestParseModelsYAML(t *testing.T) {
	data := []byte(`
models:
  - provider: azure
    modelName: gpt-4.1
    settings:
      endpoint: https://example.openai.azure.com
      deploymentName: gpt-4.1
  - provider: ollama
    modelName: llama3
`)
	got, err := registry.ParseModelsYAML(data)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.ProviderAzure, got[0].Provider)
	assert.Equal(t, "gpt-4.1", got[0].Settings[models.SettingDeploymentName])
	assert.Equal(t, "llama3", got[1].ModelName)

	_, err = registry.ParseModelsYAML([]byte("models:\n  - provider: nope\n    modelName: x\n"))
	assert.Error(t, err)
}

func ids(list []models.ConfiguredModel) []string {
	out := make([]string, len(list))
	for i, m := range list {
		out[i] = m.ID
	}
	return out
}
