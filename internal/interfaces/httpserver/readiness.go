package httpserver

import (
	"context"
	"time"

	"gorm.io/gorm"

	"jan-server/services/knowledge-api/internal/infrastructure/database"
)

const readinessTimeout = 3 * time.Second

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Readiness probes the database and the object store for /readyz.
type Readiness struct {
	db      *gorm.DB
	storage HealthChecker
}

func NewReadiness(db *gorm.DB, storage HealthChecker) *Readiness {
	return &Readiness{db: db, storage: storage}
}

// Check returns the name of the first unreachable dependency, or "" when all are up.
func (r *Readiness) Check(ctx context.Context) string {
	if r == nil {
		return ""
	}
	if r.db != nil {
		if err := database.Ping(r.db); err != nil {
			return "database"
		}
	}
	if r.storage != nil {
		ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
		defer cancel()
		if err := r.storage.Health(ctx); err != nil {
			return "storage"
		}
	}
	return ""
}
