// Package handler routes jobs to the style conversion, mesh export and health services and
// turns every failure, panics included, into an ERROR result.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/basel-ax/stylemesh/internal/codec"
	"github.com/basel-ax/stylemesh/internal/domain"
)

// StyleConverter restyles an image
type StyleConverter interface {
	ResolveConfig(cfg domain.GenerationConfig) domain.GenerationConfig
	Convert(ctx context.Context, img image.Image, cfg domain.GenerationConfig) (image.Image, error)
}

// ModelGenerator exports a mesh textured with an image
type ModelGenerator interface {
	Generate(ctx context.Context, jobID string, texture image.Image) (*domain.ModelOutput, error)
}

// HealthChecker reports worker health
type HealthChecker interface {
	Check(ctx context.Context) domain.HealthReport
}

// Observer is notified of every finished job
type Observer interface {
	ObserveJob(ctx context.Context, job domain.Job, res domain.Result, d time.Duration) error
}

// starter is implemented by observers that track in-flight jobs
type starter interface {
	JobStarted()
}

// Handler dispatches jobs by action
type Handler struct {
	style     StyleConverter
	model     ModelGenerator
	health    HealthChecker
	gpuName   string
	observers []Observer
	logger    *zap.Logger
}

// New creates a new job handler. gpuName is reported as gpu_used by process_image.
func New(style StyleConverter, model ModelGenerator, health HealthChecker, gpuName string, logger *zap.Logger, observers ...Observer) *Handler {
	return &Handler{
		style:     style,
		model:     model,
		health:    health,
		gpuName:   gpuName,
		observers: observers,
		logger:    logger.With(zap.String("component", "handler")),
	}
}

// Handle runs job to completion. It always returns a result; it never panics.
func (h *Handler) Handle(ctx context.Context, job domain.Job) (res domain.Result) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	start := time.Now()
	logger := h.logger.With(zap.String("job_id", job.ID), zap.String("action", job.Input.Action))

	for _, o := range h.observers {
		if s, ok := o.(starter); ok {
			s.JobStarted()
		}
	}

	defer func() {
		if r := recover(); r != nil {
			res = domain.Result{
				Status:    domain.StatusError,
				Error:     fmt.Sprintf("panic: %v", r),
				ErrorType: domain.KindRuntime,
				Traceback: string(debug.Stack()),
			}
			logger.Error("job panicked", zap.Any("panic", r))
		}
		res.ID = job.ID
		h.notify(ctx, job, res, time.Since(start))
	}()

	logger.Info("job received")
	output, err := h.dispatch(ctx, job)
	if err != nil {
		logger.Error("job failed", zap.Error(err), zap.String("error_type", string(domain.KindOf(err))))
		return failure(err)
	}

	logger.Info("job finished", zap.Duration("duration", time.Since(start)))
	return domain.Result{Status: domain.StatusSuccess, Output: output}
}

func (h *Handler) notify(ctx context.Context, job domain.Job, res domain.Result, d time.Duration) {
	for _, o := range h.observers {
		if err := o.ObserveJob(ctx, job, res, d); err != nil {
			h.logger.Warn("job observer failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

func failure(err error) domain.Result {
	res := domain.Result{
		Status:    domain.StatusError,
		Error:     err.Error(),
		ErrorType: domain.KindOf(err),
		Traceback: fmt.Sprintf("%+v", err),
	}
	if res.ErrorType == domain.KindRouting {
		res.AvailableActions = domain.AvailableActions()
	}
	return res
}

func (h *Handler) dispatch(ctx context.Context, job domain.Job) (interface{}, error) {
	switch job.Input.Action {
	case domain.ActionProcessImage:
		return h.processImage(ctx, job.Input)
	case domain.ActionGenerate3DModel:
		return h.generateModel(ctx, job.ID, job.Input)
	case domain.ActionHealthCheck:
		return h.health.Check(ctx), nil
	default:
		return nil, domain.RoutingError("Unknown action: %s", job.Input.Action)
	}
}

func (h *Handler) processImage(ctx context.Context, in domain.JobInput) (*domain.ProcessImageOutput, error) {
	start := time.Now()
	if in.ImageData == "" {
		return nil, domain.ValidationError("No image data provided")
	}

	img, err := codec.DecodeImage(in.ImageData)
	if err != nil {
		return nil, domain.WrapValidation(err, "invalid image_data")
	}

	var cfg domain.GenerationConfig
	if err := decodeConfig(in.Config, &cfg); err != nil {
		return nil, err
	}
	cfg = h.style.ResolveConfig(cfg)

	out, err := h.style.Convert(ctx, img, cfg)
	if err != nil {
		return nil, err
	}

	b64, err := codec.EncodeImage(out)
	if err != nil {
		return nil, domain.RuntimeError(err, "failed to encode processed image")
	}

	bounds := out.Bounds()
	return &domain.ProcessImageOutput{
		ProcessedImageURL:  codec.DataURL(codec.MimePNG, b64),
		ProcessedImageData: b64,
		Width:              bounds.Dx(),
		Height:             bounds.Dy(),
		ConfigUsed:         cfg,
		ProcessingTime:     time.Since(start).Seconds(),
		GPUUsed:            h.gpuName,
	}, nil
}

func (h *Handler) generateModel(ctx context.Context, jobID string, in domain.JobInput) (*domain.ModelOutput, error) {
	start := time.Now()
	if in.ProcessedImageData == "" {
		return nil, domain.ValidationError("No processed image data provided")
	}

	texture, err := codec.DecodeImage(in.ProcessedImageData)
	if err != nil {
		return nil, domain.WrapValidation(err, "invalid processed_image_data")
	}

	var cfg domain.MeshConfig
	if err := decodeConfig(in.Config, &cfg); err != nil {
		return nil, err
	}

	out, err := h.model.Generate(ctx, jobID, texture)
	if err != nil {
		return nil, err
	}
	out.ConfigUsed = cfg
	out.ProcessingTime = time.Since(start).Seconds()
	return out, nil
}

// decodeConfig leaves v untouched when raw is absent or null
func decodeConfig(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return domain.WrapValidation(err, "invalid config")
	}
	return nil
}
