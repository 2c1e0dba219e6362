package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectURL(t *testing.T) {
	assert.Equal(t, "http://minio:9000/exports/job-1/model.glb", ObjectURL("minio:9000", "exports", "job-1/model.glb", false))
	assert.Equal(t, "https://s3.example.com/exports/a.obj", ObjectURL("s3.example.com", "exports", "a.obj", true))
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("localhost:9000", "access", "secret", "exports", false)
	require.NoError(t, err)
	assert.Equal(t, "exports", c.bucket)
	assert.Equal(t, "localhost:9000", c.endpoint)
}
