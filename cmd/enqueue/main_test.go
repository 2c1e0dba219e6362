package main

import (
	"encoding/json"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basel-ax/stylemesh/internal/codec"
	"github.com/basel-ax/stylemesh/internal/domain"
)

func writePNG(t *testing.T) (string, []byte) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	img.SetNRGBA(0, 0, color.NRGBA{G: 255, A: 255})
	data, err := codec.EncodePNG(img)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "hero.png")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path, data
}

func TestBuildJob_FromImage(t *testing.T) {
	path, data := writePNG(t)

	job, err := buildJob("", path, domain.ActionProcessImage, `{"steps":20}`)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionProcessImage, job.Input.Action)
	assert.Equal(t, codec.EncodeBytes(data), job.Input.ImageData)
	assert.JSONEq(t, `{"steps":20}`, string(job.Input.Config))

	job, err = buildJob("", path, domain.ActionGenerate3DModel, "")
	require.NoError(t, err)
	assert.NotEmpty(t, job.Input.ProcessedImageData)
	assert.Empty(t, job.Input.ImageData)

	_, err = buildJob("", path, domain.ActionHealthCheck, "")
	assert.Error(t, err)

	_, err = buildJob("", path, domain.ActionProcessImage, `{broken`)
	assert.Error(t, err)
}

func TestBuildJob_RejectsNonImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.png")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

	_, err := buildJob("", path, domain.ActionProcessImage, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a supported image")
}

func TestBuildJob_FromDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.json")
	doc, err := json.Marshal(domain.Job{ID: "j1", Input: domain.JobInput{Action: domain.ActionHealthCheck}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, doc, 0o644))

	job, err := buildJob(path, "", "", "")
	require.NoError(t, err)
	assert.Equal(t, "j1", job.ID)
	assert.Equal(t, domain.ActionHealthCheck, job.Input.Action)

	_, err = buildJob("", "", "", "")
	assert.Error(t, err)
}

func TestRun_RequiresQueue(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("LOG_LEVEL", "error")

	assert.Equal(t, 1, run([]string{"-image", "hero.png"}))
	assert.Equal(t, 2, run([]string{"-unknown"}))
}
