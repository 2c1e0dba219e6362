// Package models initialises the external model handles once at startup and exposes them,
// together with the capability flags decided at that point, as a read-only Registry.
package models

import (
	"context"

	"go.uber.org/zap"

	"github.com/basel-ax/stylemesh/internal/config"
	"github.com/basel-ax/stylemesh/internal/domain"
	"github.com/basel-ax/stylemesh/internal/infrastructure/accelerator"
)

// Server is a model server offering both pose detection and diffusion
type Server interface {
	domain.PoseDetector
	domain.DiffusionPipeline
	CheckDiffusion(ctx context.Context) error
	CheckPoseDetector(ctx context.Context) error
}

// Registry holds the model handles. It is never mutated after Load returns.
type Registry struct {
	pose        domain.PoseDetector
	diffusion   domain.DiffusionPipeline
	flags       domain.ModelFlags
	accelerator domain.AcceleratorInfo
}

// Load probes the accelerator and the model server and returns the resulting registry.
// A model that is disabled in configuration or fails its startup probe is reported as not
// loaded; Load itself does not fail.
func Load(ctx context.Context, cfg config.ModelServerConfig, server Server, run accelerator.CommandRunner, logger *zap.Logger) *Registry {
	logger = logger.With(zap.String("component", "models"))
	r := &Registry{
		accelerator: accelerator.Probe(ctx, run, cfg.NvidiaSMIPath),
		flags:       domain.ModelFlags{MeshExport: true},
	}
	if r.accelerator.Available {
		logger.Info("accelerator found",
			zap.String("name", r.accelerator.Name),
			zap.Int("memory_total_mb", r.accelerator.MemoryTotalMB))
	} else {
		logger.Warn("no accelerator found, model server will run on whatever device it has")
	}

	if cfg.DiffusionEnabled {
		if err := probe(ctx, cfg.ProbeOnStart, server.CheckDiffusion); err != nil {
			logger.Error("diffusion pipeline unavailable", zap.Error(err))
		} else {
			r.diffusion = server
			r.flags.Diffusion = true
		}
	}

	if cfg.PoseEnabled {
		if err := probe(ctx, cfg.ProbeOnStart, server.CheckPoseDetector); err != nil {
			logger.Error("pose detector unavailable", zap.Error(err))
		} else {
			r.pose = server
			r.flags.PoseDetector = true
		}
	}

	logger.Info("models loaded",
		zap.Bool("diffusion", r.flags.Diffusion),
		zap.Bool("pose_detector", r.flags.PoseDetector),
		zap.Bool("mesh_export", r.flags.MeshExport))
	return r
}

// NewRegistry builds a registry from already constructed handles. A nil handle is reported
// as not loaded.
func NewRegistry(pose domain.PoseDetector, diffusion domain.DiffusionPipeline, accel domain.AcceleratorInfo) *Registry {
	return &Registry{
		pose:        pose,
		diffusion:   diffusion,
		accelerator: accel,
		flags: domain.ModelFlags{
			PoseDetector: pose != nil,
			Diffusion:    diffusion != nil,
			MeshExport:   true,
		},
	}
}

func probe(ctx context.Context, enabled bool, check func(context.Context) error) error {
	if !enabled {
		return nil
	}
	return check(ctx)
}

// PoseDetector returns the pose detector or a dependency error when it did not load
func (r *Registry) PoseDetector() (domain.PoseDetector, error) {
	if r.pose == nil {
		return nil, domain.DependencyError("pose detector is not loaded")
	}
	return r.pose, nil
}

// Diffusion returns the diffusion pipeline or a dependency error when it did not load
func (r *Registry) Diffusion() (domain.DiffusionPipeline, error) {
	if r.diffusion == nil {
		return nil, domain.DependencyError("diffusion pipeline is not loaded")
	}
	return r.diffusion, nil
}

// Flags returns the capability flags decided at startup
func (r *Registry) Flags() domain.ModelFlags {
	return r.flags
}

// Accelerator returns the GPU found at startup
func (r *Registry) Accelerator() domain.AcceleratorInfo {
	return r.accelerator
}
