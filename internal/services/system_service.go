package services

import (
	"context"
	"errors"

	"github.com/pawmart/api/internal/repositories"
)

// SystemServiceDeps bundles collaborators required to construct the system service.
type SystemServiceDeps struct {
	Health repositories.HealthRepository
	Logger Logger
}

type systemService struct {
	health repositories.HealthRepository
	logger Logger
}

// NewSystemService wires dependencies into a concrete SystemService implementation.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.Health == nil {
		return nil, errors.New("system service: health repository is required")
	}
	return &systemService{
		health: deps.Health,
		logger: normalizeLogger(deps.Logger),
	}, nil
}

func (s *systemService) Health(ctx context.Context) (HealthReport, error) {
	report, err := s.health.Collect(ctx)
	if err != nil {
		s.logger(ctx, "system.health.failed", map[string]any{"error": err.Error()})
		return HealthReport{}, err
	}
	return report, nil
}

var _ SystemService = (*systemService)(nil)
