package service

import (
	"context"
	"image"
	"path"

	"go.uber.org/zap"

	"github.com/basel-ax/stylemesh/internal/codec"
	"github.com/basel-ax/stylemesh/internal/domain"
	"github.com/basel-ax/stylemesh/internal/mesh"
	"github.com/basel-ax/stylemesh/internal/models"
)

// PlaceholderNote is returned with every mesh export
const PlaceholderNote = "placeholder geometry: mesh reconstruction from the image is not implemented, " +
	"a fixed unit cube is exported with the image as texture"

const modelName = "model"

// Uploader stores an exported file and returns where it can be fetched
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// ModelGenerationService exports the placeholder mesh
type ModelGenerationService struct {
	registry *models.Registry
	uploader Uploader
	logger   *zap.Logger
}

// NewModelGenerationService creates a new mesh export service. uploader may be nil.
func NewModelGenerationService(registry *models.Registry, uploader Uploader, logger *zap.Logger) *ModelGenerationService {
	return &ModelGenerationService{
		registry: registry,
		uploader: uploader,
		logger:   logger.With(zap.String("component", "model_generation")),
	}
}

// Generate exports the unit cube as OBJ and GLB, texturing the GLB with texture.
// jobID namespaces uploaded files.
func (s *ModelGenerationService) Generate(ctx context.Context, jobID string, texture image.Image) (*domain.ModelOutput, error) {
	if !s.registry.Flags().MeshExport {
		return nil, domain.DependencyError("mesh export is not available")
	}

	m := mesh.UnitCube()
	s.logger.Warn("exporting placeholder mesh", zap.String("job_id", jobID))

	glb, err := mesh.ExportGLB(m, modelName, texture)
	if err != nil {
		return nil, domain.RuntimeError(err, "glb export failed")
	}

	exports := []struct {
		format, mime string
		data         []byte
	}{
		{"obj", codec.MimeOBJ, mesh.ExportOBJ(m, modelName)},
		{"glb", codec.MimeGLB, glb},
	}

	files := make([]domain.ModelFile, 0, len(exports))
	for _, e := range exports {
		b64 := codec.EncodeBytes(e.data)
		file := domain.ModelFile{
			Filename: modelName + "." + e.format,
			Format:   e.format,
			MimeType: e.mime,
			URL:      codec.DataURL(e.mime, b64),
			Data:     b64,
			Size:     len(e.data),
		}
		if s.uploader != nil {
			url, err := s.uploader.Upload(ctx, path.Join(jobID, file.Filename), e.data, e.mime)
			if err != nil {
				return nil, domain.RuntimeError(err, "failed to upload "+file.Filename)
			}
			file.StorageURL = url
		}
		files = append(files, file)
	}

	return &domain.ModelOutput{
		ModelFiles:  files,
		VertexCount: len(m.Vertices),
		FaceCount:   len(m.Faces),
		Placeholder: true,
		Note:        PlaceholderNote,
	}, nil
}
