package service

import (
	"context"
	"image"
	"strings"

	"go.uber.org/zap"

	"github.com/basel-ax/stylemesh/internal/config"
	"github.com/basel-ax/stylemesh/internal/domain"
	"github.com/basel-ax/stylemesh/internal/imaging"
	"github.com/basel-ax/stylemesh/internal/models"
)

// StyleConversionService restyles an image through pose detection, a conditioned diffusion
// pass and flat-shading post-processing
type StyleConversionService struct {
	registry        *models.Registry
	prompts         config.Prompts
	targetSize      int
	seed            int64
	controlModels   []string
	secondaryModule string
	logger          *zap.Logger
}

// StyleOptions are the fixed, deployment-wide settings of the style conversion
type StyleOptions struct {
	Prompts         config.Prompts
	TargetSize      int
	Seed            int64
	ControlModels   []string
	SecondaryModule string
}

// NewStyleConversionService creates a new style conversion service
func NewStyleConversionService(registry *models.Registry, opts StyleOptions, logger *zap.Logger) *StyleConversionService {
	return &StyleConversionService{
		registry:        registry,
		prompts:         opts.Prompts,
		targetSize:      opts.TargetSize,
		seed:            opts.Seed,
		controlModels:   opts.ControlModels,
		secondaryModule: opts.SecondaryModule,
		logger:          logger.With(zap.String("component", "style_conversion")),
	}
}

// ResolveConfig fills missing generation parameters with defaults and applies the gender and
// weapon prompt modifiers
func (s *StyleConversionService) ResolveConfig(cfg domain.GenerationConfig) domain.GenerationConfig {
	if cfg.Prompt == "" {
		cfg.Prompt = s.prompts.Prompt
	}
	if cfg.NegativePrompt == "" {
		cfg.NegativePrompt = s.prompts.NegativePrompt
	}
	if cfg.Steps <= 0 {
		cfg.Steps = domain.DefaultSteps
	}
	if cfg.GuidanceScale <= 0 {
		cfg.GuidanceScale = domain.DefaultGuidanceScale
	}
	if len(cfg.ControlNetScales) == 0 {
		cfg.ControlNetScales = domain.DefaultControlNetScales()
	}
	if cfg.Sampler == "" {
		cfg.Sampler = domain.DefaultSampler
	}

	switch strings.ToLower(cfg.CharacterGender) {
	case "male":
		cfg.Prompt = joinPrompt(cfg.Prompt, s.prompts.Male)
	case "female":
		cfg.Prompt = joinPrompt(cfg.Prompt, s.prompts.Female)
	}
	if cfg.RemoveWeapon {
		cfg.Prompt = joinPrompt(cfg.Prompt, s.prompts.NoWeapon)
		cfg.NegativePrompt = joinPrompt(cfg.NegativePrompt, s.prompts.WeaponTerms)
	}
	return cfg
}

func joinPrompt(base, extra string) string {
	if extra == "" {
		return base
	}
	if base == "" {
		return extra
	}
	return base + ", " + extra
}

// Convert runs the full restyling chain on img. cfg must already be resolved.
func (s *StyleConversionService) Convert(ctx context.Context, img image.Image, cfg domain.GenerationConfig) (image.Image, error) {
	pose, err := s.registry.PoseDetector()
	if err != nil {
		return nil, err
	}
	diffusion, err := s.registry.Diffusion()
	if err != nil {
		return nil, err
	}

	resized := imaging.Resize(img, s.targetSize)

	s.logger.Debug("detecting pose", zap.Int("size", s.targetSize))
	poseMap, err := pose.DetectPose(ctx, resized)
	if err != nil {
		return nil, domain.RuntimeError(err, "pose detection failed")
	}

	req := domain.DiffusionRequest{
		Prompt:         cfg.Prompt,
		NegativePrompt: cfg.NegativePrompt,
		Steps:          cfg.Steps,
		GuidanceScale:  cfg.GuidanceScale,
		Width:          s.targetSize,
		Height:         s.targetSize,
		Seed:           s.seed,
		Sampler:        cfg.Sampler,
		Controls:       s.controls(poseMap, resized, cfg.ControlNetScales),
	}

	s.logger.Info("running diffusion",
		zap.Int("steps", req.Steps),
		zap.Float64("guidance_scale", req.GuidanceScale),
		zap.Int("controlnet_units", len(req.Controls)))
	generated, err := diffusion.Generate(ctx, req)
	if err != nil {
		return nil, domain.RuntimeError(err, "diffusion failed")
	}

	return imaging.Stylize(generated), nil
}

// controls builds the ControlNet units: the pose map always comes first, the resized
// source is attached as a second unit only when a second model and scale are configured.
func (s *StyleConversionService) controls(poseMap, source image.Image, scales []float64) []domain.ControlInput {
	var poseModel string
	if len(s.controlModels) > 0 {
		poseModel = s.controlModels[0]
	}
	units := []domain.ControlInput{{
		Image:  poseMap,
		Model:  poseModel,
		Module: "none",
		Weight: scales[0],
	}}
	if len(s.controlModels) > 1 && len(scales) > 1 {
		units = append(units, domain.ControlInput{
			Image:  source,
			Model:  s.controlModels[1],
			Module: s.secondaryModule,
			Weight: scales[1],
		})
	}
	return units
}
