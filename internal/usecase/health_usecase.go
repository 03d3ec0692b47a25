package usecase

import (
	"context"
	"time"
)

// HealthChecker is a dependency that can be pinged.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

func (f HealthCheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

type HealthUsecase interface {
	Check(ctx context.Context) (map[string]string, bool)
}

type healthUsecase struct {
	checks map[string]HealthChecker
}

// NewHealthUsecase takes named dependencies; nil entries are reported as
// "disabled".
func NewHealthUsecase(checks map[string]HealthChecker) HealthUsecase {
	return &healthUsecase{checks: checks}
}

func (u *healthUsecase) Check(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok"}
	healthy := true
	for name, check := range u.checks {
		if check == nil {
			status[name] = "disabled"
			continue
		}
		if err := check.HealthCheck(ctx); err != nil {
			status[name] = "down"
			healthy = false
			continue
		}
		status[name] = "up"
	}
	if !healthy {
		status["status"] = "degraded"
	}
	return status, healthy
}
