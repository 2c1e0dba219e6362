package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/basel-ax/stylemesh/internal/domain"
	"github.com/basel-ax/stylemesh/internal/models"
)

// HostStatsFunc samples host resource usage
type HostStatsFunc func(ctx context.Context) (*domain.HostStats, error)

// HealthService reports accelerator and model availability
type HealthService struct {
	registry  *models.Registry
	hostStats HostStatsFunc
	logger    *zap.Logger
}

// NewHealthService creates a new health service. hostStats may be nil.
func NewHealthService(registry *models.Registry, hostStats HostStatsFunc, logger *zap.Logger) *HealthService {
	return &HealthService{
		registry:  registry,
		hostStats: hostStats,
		logger:    logger.With(zap.String("component", "health")),
	}
}

// Check never fails: host stats that cannot be sampled are left out of the report
func (s *HealthService) Check(ctx context.Context) domain.HealthReport {
	report := domain.HealthReport{
		AcceleratorInfo: s.registry.Accelerator(),
		Models:          s.registry.Flags(),
	}
	if s.hostStats != nil {
		stats, err := s.hostStats(ctx)
		if err != nil {
			s.logger.Warn("failed to sample host stats", zap.Error(err))
		} else {
			report.Host = stats
		}
	}
	return report
}
