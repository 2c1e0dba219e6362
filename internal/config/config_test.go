package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SD_WEBUI_URL", "http://sd.local:7860/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, int64(1), cfg.Concurrency)
	assert.Equal(t, 512, cfg.TargetSize)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, "http://sd.local:7860", cfg.Models.BaseURL)
	assert.Equal(t, 300*time.Second, cfg.Models.Timeout)
	assert.True(t, cfg.Models.DiffusionEnabled)
	assert.True(t, cfg.Models.PoseEnabled)
	assert.Equal(t, []string{"control_v11p_sd15_openpose"}, cfg.Models.ControlNetModels)
	assert.False(t, cfg.DB.Enabled())
	assert.False(t, cfg.Queue.Enabled())
	assert.False(t, cfg.Storage.Enabled())
	assert.Equal(t, DefaultPrompts(), cfg.Prompts)
}

func TestLoad_CapabilityFlagsAndLists(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DIFFUSION_ENABLED", "false")
	t.Setenv("POSE_DETECTOR_ENABLED", "0")
	t.Setenv("CONTROLNET_MODELS", "openpose_model, lineart_model ,")
	t.Setenv("WORKER_CONCURRENCY", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.Models.DiffusionEnabled)
	assert.False(t, cfg.Models.PoseEnabled)
	assert.Equal(t, []string{"openpose_model", "lineart_model"}, cfg.Models.ControlNetModels)
	assert.Equal(t, int64(3), cfg.Concurrency)
}

func TestLoad_DatabaseRequiresUserAndName(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_HOST", "localhost")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_USER")

	t.Setenv("DB_USER", "worker")
	t.Setenv("DB_NAME", "stylemesh")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "host=localhost port=5432 user=worker password= dbname=stylemesh sslmode=disable", cfg.GetDSN())
}

func TestLoad_StorageRequiresCredentials(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MINIO_ENDPOINT", "minio:9000")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MINIO_ACCESS_KEY")
}

func TestValidate_RejectsNonPositiveValues(t *testing.T) {
	cfg := &Config{TargetSize: 0, Concurrency: 1, Models: ModelServerConfig{BaseURL: "http://x"}}
	assert.Error(t, cfg.Validate())

	cfg.TargetSize = 512
	cfg.Concurrency = 0
	assert.Error(t, cfg.Validate())
}

func TestLoadPrompts_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("prompt: watercolor hero\nmale: bearded\n"), 0o644))

	prompts, err := LoadPrompts(path)
	require.NoError(t, err)

	def := DefaultPrompts()
	assert.Equal(t, "watercolor hero", prompts.Prompt)
	assert.Equal(t, "bearded", prompts.Male)
	assert.Equal(t, def.NegativePrompt, prompts.NegativePrompt)
	assert.Equal(t, def.WeaponTerms, prompts.WeaponTerms)
}

func TestLoad_PromptsFileMissing(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PROMPTS_FILE", "does-not-exist.yaml")

	_, err := Load()
	assert.Error(t, err)
}
